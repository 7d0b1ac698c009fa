package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/randalmurphal/flowd/internal/config"
	"github.com/randalmurphal/flowd/internal/db"
)

// newInitCmd creates the init command.
func newInitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Initialize flowd in the current directory",
		Long: `Write a default .flowd/flowd.yaml and create the database.

Running init twice is safe; an existing config is left untouched.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := filepath.Join(config.ConfigDir, config.ConfigFileName)
			if _, err := os.Stat(path); err == nil {
				fmt.Printf("Config already exists at %s\n", path)
			} else {
				if err := config.Default().Save(path); err != nil {
					return err
				}
				fmt.Printf("Wrote %s\n", path)
			}

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			database, err := openDatabase(cfg)
			if err != nil {
				return err
			}
			defer func() { _ = database.Close() }()
			if err := database.Migrate(); err != nil {
				return fmt.Errorf("migrate database: %w", err)
			}
			fmt.Println("Database ready")
			return nil
		},
	}
}

// withDatabase opens the configured database, migrates it, and runs fn.
func withDatabase(fn func(*db.DB) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	database, err := openDatabase(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = database.Close() }()
	if err := database.Migrate(); err != nil {
		return fmt.Errorf("migrate database: %w", err)
	}
	return fn(database)
}
