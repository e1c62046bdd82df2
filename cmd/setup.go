package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/desertthunder/pulsemix/internal/shared"
	"github.com/urfave/cli/v3"
)

// SetupConfig writes the embedded example config to the --config path.
func (r *Runner) SetupConfig(ctx context.Context, cmd *cli.Command) error {
	configPath := cmd.String("config")
	if configPath == "" {
		configPath = r.configPath
	}

	if _, err := os.Stat(configPath); err == nil {
		r.logger.Info("config file already exists", "path", configPath)
		return r.writePlain("Config already exists at %s\n", configPath)
	} else if !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to check config file: %w", err)
	}

	if err := shared.CreateConfigFile(configPath); err != nil {
		return err
	}
	r.logger.Info("config file created", "path", configPath)

	r.writePlain("✓ Config written to %s\n", configPath)
	r.writePlainln("Next steps:")
	r.writePlain("1. Fill in credentials.whoop and credentials.spotify (or set PULSEMIX_* variables)\n")
	r.writePlain("2. Run 'pulsemix auth whoop' and 'pulsemix auth spotify'\n")
	return nil
}

// SetupDatabase initializes the sqlite database and runs migrations.
func (r *Runner) SetupDatabase(ctx context.Context, cmd *cli.Command) error {
	storage := r.config.Storage
	if path := cmd.String("path"); path != "" {
		storage.Path = path
	}
	if storage.Path == "" {
		return fmt.Errorf("%w: storage.path or --path", shared.ErrMissingArgument)
	}

	r.logger.Info("initializing database", "path", storage.Path)

	db, err := shared.NewDatabase(storage.Path)
	if err != nil {
		return fmt.Errorf("failed to create database: %w", err)
	}
	defer db.Close()

	shared.ConfigureDatabase(db, storage.Path, storage.MaxOpenConns, storage.MaxIdleConns)

	if cmd.Bool("rollback") {
		r.logger.Info("rolling back latest migration")
		if err := shared.RollbackMigration(db); err != nil {
			return fmt.Errorf("failed to roll back migration: %w", err)
		}
	} else {
		r.logger.Info("running database migrations")
		if err := shared.RunMigrations(db); err != nil {
			return fmt.Errorf("failed to run migrations: %w", err)
		}
	}

	versions, err := shared.AppliedVersions(db)
	if err != nil {
		return err
	}
	r.logger.Infof("setup complete for database: %v", storage.Path)
	return r.writePlain("✓ Database %s at migration %d\n", storage.Path, latest(versions))
}

func latest(versions []int) int {
	v := -1
	for _, version := range versions {
		v = max(v, version)
	}
	return v
}
