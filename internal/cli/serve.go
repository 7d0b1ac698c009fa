package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/randalmurphal/flowd/internal/api"
	"github.com/randalmurphal/flowd/internal/config"
	"github.com/randalmurphal/flowd/internal/db"
	"github.com/randalmurphal/flowd/internal/db/driver"
	"github.com/randalmurphal/flowd/internal/events"
)

// newServeCmd creates the serve command for the API server.
func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the API server",
		Long: `Start the flowd API server.

The server provides REST endpoints, SSE streaming, and a WebSocket for:
  • Workspace, workflow, and deployment management
  • Live execution streaming
  • Copilot chat
  • Collaborative editing signals

Example:
  flowd serve              # Start on the configured address
  flowd serve --port 3000  # Start on a custom port`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("port") {
				cfg.Server.Port, _ = cmd.Flags().GetInt("port")
			}

			logger := newLogger()

			database, err := openDatabase(cfg)
			if err != nil {
				return err
			}
			defer func() { _ = database.Close() }()
			if err := database.Migrate(); err != nil {
				return fmt.Errorf("migrate database: %w", err)
			}

			pub, err := newPublisher(cfg, logger)
			if err != nil {
				return err
			}
			defer pub.Close()

			server := api.New(&api.Config{
				Addr:      cfg.Addr(),
				Logger:    logger,
				DB:        database,
				Publisher: pub,
				Platform:  cfg,
			})

			fmt.Printf("Starting flowd on %s\n", cfg.Addr())
			fmt.Println("Press Ctrl+C to stop")

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

			go func() {
				<-sigCh
				fmt.Println("\nShutting down...")
				cancel()
			}()

			return server.StartContext(ctx)
		},
	}

	cmd.Flags().Int("port", 8080, "port to listen on")
	return cmd
}

// loadConfig resolves the config file, honoring the global --config flag.
func loadConfig() (*config.Config, error) {
	if cfgFile != "" {
		return config.LoadFrom(cfgFile)
	}
	return config.Load()
}

// openDatabase opens the configured storage backend.
func openDatabase(cfg *config.Config) (*db.DB, error) {
	switch cfg.Database.Driver {
	case "postgres", "postgresql", "pg":
		return db.OpenWithDialect(cfg.Database.DSN, driver.DialectPostgres)
	default:
		return db.Open(cfg.Database.Path)
	}
}

// newPublisher picks NATS when configured, in-process otherwise.
func newPublisher(cfg *config.Config, logger *slog.Logger) (events.Publisher, error) {
	if cfg.Events.NATSURL == "" {
		return events.NewMemoryPublisher(), nil
	}
	pub, err := events.NewNATSPublisher(cfg.Events.NATSURL, logger)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}
	return pub, nil
}

// newLogger builds the process logger, verbose flips debug level.
func newLogger() *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}
