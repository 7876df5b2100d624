package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/presensia/presensia/internal/config"
	"github.com/presensia/presensia/internal/database/postgres"
	"github.com/presensia/presensia/internal/face"
)

var templatesCmd = &cobra.Command{
	Use:   "templates",
	Short: "Maintain enrolled face templates",
}

var templatesReindexCmd = &cobra.Command{
	Use:   "reindex",
	Short: "Re-normalize stored templates and rebuild the vector index",
	Long: `Walk every active face template, re-run embedding preprocessing and
write back any template whose stored vector drifted from unit length, then
rebuild the pgvector IVFFlat index.`,
	RunE: runTemplatesReindex,
}

func init() {
	rootCmd.AddCommand(templatesCmd)
	templatesCmd.AddCommand(templatesReindexCmd)

	templatesReindexCmd.Flags().Bool("dry-run", false, "Report what would change without writing")
}

func runTemplatesReindex(cmd *cobra.Command, args []string) error {
	cfg := config.Load()
	if cfg.Database.URL == "" {
		return errors.New("DATABASE_URL environment variable is required")
	}
	pool, err := postgres.Initialize(&cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to initialize PostgreSQL: %w", err)
	}
	defer pool.Close()

	dryRun := mustGetBool(cmd, "dry-run")
	repo := postgres.NewTemplateRepository(pool)
	ctx := context.Background()

	templates, err := repo.ListActiveTemplates(ctx)
	if err != nil {
		return fmt.Errorf("list templates: %w", err)
	}
	if len(templates) == 0 {
		fmt.Println("No active templates found")
		return nil
	}

	bar := progressbar.NewOptions(len(templates),
		progressbar.OptionSetDescription("Reindexing templates"),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetItsString("templates"),
		progressbar.OptionShowElapsedTimeOnFinish(),
	)

	fixed := 0
	for i := range templates {
		tpl := &templates[i]

		if !face.IsNormalized(tpl.Embedding) {
			prepared, err := face.Preprocess(tpl.Embedding)
			if err != nil {
				fmt.Printf("\nWarning: template %s is invalid and was skipped: %v\n", tpl.ID, err)
				bar.Add(1)
				continue
			}
			if !dryRun {
				tpl.Embedding = prepared
				if err := repo.UpsertTemplate(ctx, tpl); err != nil {
					return fmt.Errorf("update template %s: %w", tpl.ID, err)
				}
			}
			fixed++
		}
		bar.Add(1)
	}
	fmt.Println()

	if dryRun {
		fmt.Printf("Dry run: %d of %d templates would be re-normalized\n", fixed, len(templates))
		return nil
	}

	fmt.Printf("Re-normalized %d of %d templates\n", fixed, len(templates))

	fmt.Println("Rebuilding vector index...")
	if err := pool.CreateVectorIndex(ctx); err != nil {
		return fmt.Errorf("rebuild vector index: %w", err)
	}
	fmt.Println("Vector index ready")
	return nil
}
