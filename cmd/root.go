// Package cmd implements the presensia command line interface.
package cmd

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "presensia",
	Short: "Face-verified employee attendance service",
	Long: `Presensia is the backend for a mobile attendance application.
Employees authenticate with on-device face embeddings; the server matches
them against enrolled templates, issues sessions and keeps an append-only
check-in/check-out ledger.`,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
}

func initConfig() {
	// .env file is optional, don't fail if not found
	_ = godotenv.Load()
}
