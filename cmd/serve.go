package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/presensia/presensia/internal/auth"
	"github.com/presensia/presensia/internal/blob"
	"github.com/presensia/presensia/internal/config"
	"github.com/presensia/presensia/internal/database/postgres"
	"github.com/presensia/presensia/internal/device"
	"github.com/presensia/presensia/internal/identity"
	"github.com/presensia/presensia/internal/ledger"
	"github.com/presensia/presensia/internal/settings"
	"github.com/presensia/presensia/internal/web"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the attendance API server",
	Long: `Start the Presensia API server.
The server exposes the mobile face-login, attendance and enrollment
endpoints backed by PostgreSQL with pgvector.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().Bool("skip-hnsw", false, "Skip building the in-memory similarity index")
	serveCmd.Flags().String("timezone", "", "IANA timezone for attendance day boundaries (defaults to system)")
}

// initTemplateHNSW builds the in-memory index for fast template matching.
func initTemplateHNSW(ctx context.Context, templates *postgres.TemplateRepository) {
	fmt.Println("Building in-memory similarity index for face templates...")
	if err := templates.EnableHNSW(ctx); err != nil {
		fmt.Printf("Warning: failed to build similarity index: %v\n", err)
		fmt.Println("Face matching will use PostgreSQL queries (slower)")
		return
	}
	fmt.Printf("Similarity index built with %d templates (in-memory only)\n", templates.IndexCount())
}

func resolveLedgerLocation(cmd *cobra.Command) (*time.Location, error) {
	name := mustGetString(cmd, "timezone")
	if name == "" {
		name = os.Getenv("ATTENDANCE_TIMEZONE")
	}
	if name == "" {
		return nil, nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone %q: %w", name, err)
	}
	return loc, nil
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := config.Load()

	if cfg.Database.URL == "" {
		return errors.New("DATABASE_URL environment variable is required")
	}
	if cfg.Auth.JWTSecret == "" {
		return errors.New("APP_JWT_SECRET environment variable is required")
	}
	if cfg.Blob.URLSecret == "" {
		return errors.New("BLOB_URL_SECRET environment variable is required")
	}

	fmt.Println("Connecting to PostgreSQL database...")
	pool, err := postgres.Initialize(&cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to initialize PostgreSQL: %w", err)
	}
	defer pool.Close()

	templateRepo := postgres.NewTemplateRepository(pool)
	employeeRepo := postgres.NewEmployeeRepository(pool)
	deviceRepo := postgres.NewDeviceRepository(pool)
	sessionRepo := postgres.NewSessionRepository(pool)
	attendanceRepo := postgres.NewAttendanceRepository(pool)
	settingsRepo := postgres.NewSettingsRepository(pool)

	ctx := context.Background()
	if !mustGetBool(cmd, "skip-hnsw") {
		initTemplateHNSW(ctx, templateRepo)
	}

	if err := seedDefaultSettings(ctx, settingsRepo, cfg.Defaults, false); err != nil {
		return fmt.Errorf("failed to seed default settings: %w", err)
	}

	loc, err := resolveLedgerLocation(cmd)
	if err != nil {
		return err
	}

	blobs, err := blob.NewStore(cfg.Blob.Dir, []byte(cfg.Blob.URLSecret), cfg.Blob.URLExpiry, cfg.Blob.ThumbWidth)
	if err != nil {
		return fmt.Errorf("failed to create blob store: %w", err)
	}

	tokenCfg := auth.TokenConfig{
		Issuer:     cfg.Auth.Issuer,
		AccessTTL:  cfg.Auth.AccessTTL,
		RefreshTTL: cfg.Auth.RefreshTTL,
		SigningKey: []byte(cfg.Auth.JWTSecret),
	}

	provider := settings.NewProvider(settingsRepo)
	server := web.NewServer(cfg, web.Deps{
		TokenConfig: tokenCfg,
		Gate:        device.NewGate(deviceRepo, provider),
		Matcher:     identity.NewMatcher(templateRepo, employeeRepo, provider),
		Issuer:      auth.NewIssuer(tokenCfg, sessionRepo, employeeRepo, deviceRepo),
		Ledger:      ledger.New(attendanceRepo, attendanceRepo, provider, loc),
		Settings:    provider,
		Blobs:       blobs,
		Employees:   employeeRepo,
		Templates:   templateRepo,
		Attendance:  attendanceRepo,
	})

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		fmt.Println("\nShutting down...")

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			fmt.Printf("Error during shutdown: %v\n", err)
		}
	}()

	fmt.Printf("Starting Presensia API on http://0.0.0.0:%d\n", cfg.Server.Port)
	fmt.Println("Press Ctrl+C to stop")

	if err := server.Start(); err != nil {
		return fmt.Errorf("starting server: %w", err)
	}
	return nil
}
