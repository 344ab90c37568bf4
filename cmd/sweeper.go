/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"context"
	"fmt"

	"github.com/recallpro/auth/config"
	"github.com/recallpro/auth/internal/mq"
	"github.com/recallpro/auth/internal/server"
	"github.com/recallpro/auth/internal/storage"
	"github.com/recallpro/auth/internal/sweeper"
	"github.com/spf13/cobra"
)

// sweeperCmd represents the sweeper command
var sweeperCmd = &cobra.Command{
	Use:   "sweeper",
	Short: "Runs the expired refresh token sweeper",
	Long: `Runs the expired refresh token sweeper. It consumes cleanup jobs from
QUEUE_CLEANUP_CHANNEL and publishes one every SWEEPER_INTERVAL. With
QUEUE_BACKEND=none it sweeps on the interval directly. Set ARCHIVE_BACKEND
to keep a JSON report of every sweep in MinIO or GCS. Usage:

	recallpro sweeper
`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, log, err := loadConfig()
		if err != nil {
			return err
		}

		engine, err := server.NewEngine(cfg, log)
		if err != nil {
			return err
		}

		backend, err := mq.NewBackend(cmd.Context(), cfg.Queue)
		if err != nil {
			return fmt.Errorf("connect queue: %w", err)
		}
		if backend != nil {
			defer backend.Close()
		}

		opts, closeArchive, err := archiveOptions(cmd.Context(), cfg.Archive)
		if err != nil {
			return err
		}
		defer closeArchive()

		return sweeper.New(backend, engine, cfg.Queue.CleanupChannel, cfg.Sweeper.Interval, log, opts...).Run(cmd.Context())
	},
}

func init() {
	rootCmd.AddCommand(sweeperCmd)
}

// archiveOptions connects the report archive when one is configured.
func archiveOptions(ctx context.Context, cfg config.ArchiveConfig) ([]sweeper.Option, func(), error) {
	objects, err := storage.New(ctx, cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("connect archive: %w", err)
	}
	if objects == nil {
		return nil, func() {}, nil
	}
	archive := storage.NewReportArchive(objects, cfg.Prefix)
	return []sweeper.Option{sweeper.WithArchiver(archive)}, func() { _ = objects.Close() }, nil
}
