/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"errors"
	"fmt"

	"github.com/recallpro/auth/internal/mq"
	"github.com/recallpro/auth/internal/server"
	"github.com/recallpro/auth/internal/sweeper"
	"github.com/spf13/cobra"
)

var cleanupEnqueue bool

// cleanupCmd represents the cleanup command
var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Deletes expired refresh tokens once",
	Long: `Deletes expired refresh tokens through the credential store, or with
--enqueue publishes a cleanup job for a running sweeper. Usage:

	recallpro cleanup
	recallpro cleanup --enqueue
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

		if !cleanupEnqueue {
			opts, closeArchive, err := archiveOptions(cmd.Context(), cfg.Archive)
			if err != nil {
				return err
			}
			defer closeArchive()

			deleted, err := sweeper.New(nil, engine, "", 0, log, opts...).Sweep(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deleted %d expired refresh tokens\n", deleted)
			return nil
		}

		backend, err := mq.NewBackend(cmd.Context(), cfg.Queue)
		if err != nil {
			return fmt.Errorf("connect queue: %w", err)
		}
		if backend == nil {
			return errors.New("--enqueue needs QUEUE_BACKEND to be set")
		}
		defer backend.Close()

		id, err := sweeper.New(backend, engine, cfg.Queue.CleanupChannel, 0, log).Enqueue(cmd.Context(), "cli")
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "enqueued cleanup job %s\n", id)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(cleanupCmd)

	cleanupCmd.Flags().BoolVar(&cleanupEnqueue, "enqueue", false, "publish a cleanup job instead of sweeping in-process")
}
