package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/presensia/presensia/internal/config"
	"github.com/presensia/presensia/internal/database"
	"github.com/presensia/presensia/internal/database/postgres"
)

var settingsCmd = &cobra.Command{
	Use:   "settings",
	Short: "Manage tunable application settings",
}

var settingsInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Seed the settings table with embedded defaults",
	Long: `Insert the built-in default settings (match threshold, liveness
threshold, capture skew window and so on) into the database. Existing keys
are left untouched unless --force is given.`,
	RunE: runSettingsInit,
}

var settingsListCmd = &cobra.Command{
	Use:   "list",
	Short: "Print the current settings",
	RunE:  runSettingsList,
}

var settingsSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Update one setting",
	Args:  cobra.ExactArgs(2),
	RunE:  runSettingsSet,
}

func init() {
	rootCmd.AddCommand(settingsCmd)
	settingsCmd.AddCommand(settingsInitCmd)
	settingsCmd.AddCommand(settingsListCmd)
	settingsCmd.AddCommand(settingsSetCmd)

	settingsInitCmd.Flags().Bool("force", false, "Overwrite existing values with the defaults")
	settingsListCmd.Flags().String("category", "", "Only show settings in this category")
}

func openSettingsRepo() (*postgres.SettingsRepository, *postgres.Pool, *config.Config, error) {
	cfg := config.Load()
	if cfg.Database.URL == "" {
		return nil, nil, nil, errors.New("DATABASE_URL environment variable is required")
	}
	pool, err := postgres.Initialize(&cfg.Database)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to initialize PostgreSQL: %w", err)
	}
	return postgres.NewSettingsRepository(pool), pool, cfg, nil
}

// seedDefaultSettings inserts the embedded defaults. With force set, values
// already present are overwritten.
func seedDefaultSettings(ctx context.Context, repo *postgres.SettingsRepository, defaults config.DefaultSettings, force bool) error {
	for i := range defaults.Settings {
		setting := defaults.Settings[i]
		if force {
			if err := repo.UpsertSetting(ctx, &setting); err != nil {
				return fmt.Errorf("upsert %s: %w", setting.Key, err)
			}
			continue
		}
		if _, err := repo.SeedSetting(ctx, &setting); err != nil {
			return fmt.Errorf("seed %s: %w", setting.Key, err)
		}
	}
	return nil
}

func runSettingsInit(cmd *cobra.Command, args []string) error {
	repo, pool, cfg, err := openSettingsRepo()
	if err != nil {
		return err
	}
	defer pool.Close()

	ctx := context.Background()
	force := mustGetBool(cmd, "force")

	seeded := 0
	for i := range cfg.Defaults.Settings {
		setting := cfg.Defaults.Settings[i]
		if force {
			if err := repo.UpsertSetting(ctx, &setting); err != nil {
				return fmt.Errorf("upsert %s: %w", setting.Key, err)
			}
			fmt.Printf("  set    %s = %s\n", setting.Key, setting.Value)
			seeded++
			continue
		}
		inserted, err := repo.SeedSetting(ctx, &setting)
		if err != nil {
			return fmt.Errorf("seed %s: %w", setting.Key, err)
		}
		if inserted {
			fmt.Printf("  seeded %s = %s\n", setting.Key, setting.Value)
			seeded++
		} else {
			fmt.Printf("  kept   %s\n", setting.Key)
		}
	}
	fmt.Printf("Done, %d of %d settings written\n", seeded, len(cfg.Defaults.Settings))
	return nil
}

func runSettingsList(cmd *cobra.Command, args []string) error {
	repo, pool, _, err := openSettingsRepo()
	if err != nil {
		return err
	}
	defer pool.Close()

	items, err := repo.ListSettings(context.Background(), mustGetString(cmd, "category"))
	if err != nil {
		return fmt.Errorf("list settings: %w", err)
	}
	if len(items) == 0 {
		fmt.Println("No settings found, run 'presensia settings init' first")
		return nil
	}
	for _, s := range items {
		fmt.Printf("%-32s %-10s %s\n", s.Key, s.Value, s.Description)
	}
	return nil
}

func runSettingsSet(cmd *cobra.Command, args []string) error {
	repo, pool, _, err := openSettingsRepo()
	if err != nil {
		return err
	}
	defer pool.Close()

	setting := &database.Setting{Key: args[0], Value: args[1]}
	if err := repo.UpsertSetting(context.Background(), setting); err != nil {
		return fmt.Errorf("update setting: %w", err)
	}
	fmt.Printf("Updated %s = %s\n", setting.Key, setting.Value)
	return nil
}
