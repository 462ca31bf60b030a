package main

import (
	"context"
	"fmt"
	"os"

	"github.com/desertthunder/syncctl/internal/shared"
	"github.com/urfave/cli/v3"
)

// SetupConfig writes the example config to --config. An existing file is left alone.
func (r *Runner) SetupConfig(ctx context.Context, cmd *cli.Command) error {
	path := r.configPath
	if path == "" {
		path = "config.toml"
	}

	if _, err := os.Stat(path); err == nil {
		r.logger.Info("config file already exists", "path", path)
		r.writePlain("Config already present at %s\n", path)
		return nil
	}

	if err := shared.CreateConfigFile(path); err != nil {
		return err
	}
	r.logger.Info("config file created", "path", path)

	r.writePlain("✓ Config written to %s\n", path)
	r.writePlainln("Next steps:")
	r.writePlain("1. Set backend.url to the migration backend\n")
	r.writePlain("2. Run 'syncctl setup database'\n")
	return nil
}

// SetupDatabase initializes the client-state database and runs migrations.
func (r *Runner) SetupDatabase(ctx context.Context, cmd *cli.Command) error {
	if r.configPath != "" {
		if _, err := os.Stat(r.configPath); err != nil {
			r.logger.Info("config file not found, creating from template", "path", r.configPath)
			if err := shared.CreateConfigFile(r.configPath); err != nil {
				r.logger.Warn("failed to create config file, using defaults", "error", err)
			}
		}
	}

	config := r.config.Database
	r.logger.Info("initializing database", "path", config.Path)

	db, err := shared.NewDatabase(config.Path)
	if err != nil {
		return fmt.Errorf("failed to create database: %w", err)
	}
	defer closeDB(r.logger, db)

	shared.ConfigureDatabase(db, max(config.MaxOpenConns, 1), max(config.MaxIdleConns, 1))

	r.logger.Info("running database migrations")
	if err := shared.RunMigrations(db); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	applied, err := shared.AppliedVersions(db)
	if err != nil {
		return fmt.Errorf("failed to read applied migrations: %w", err)
	}
	r.logger.Infof("setup complete for database: %v", config.Path)
	r.writePlain("✓ Database ready at %s (%d migrations applied)\n", config.Path, len(applied))
	return nil
}
