/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"fmt"

	"github.com/recallpro/auth/internal/server"
	"github.com/spf13/cobra"
)

// storeCmd represents the store command
var storeCmd = &cobra.Command{
	Use:   "store",
	Short: "Starts the credential store server",
	Long: `Starts the credential store server, which owns the users and
refresh_tokens tables. Set STORE_BACKEND=memory to run without Postgres. Usage:

	recallpro store
`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, log, err := loadConfig()
		if err != nil {
			return err
		}

		srv, err := server.NewStore(cmd.Context(), cfg, log)
		if err != nil {
			return fmt.Errorf("failed to start store: %w", err)
		}
		log.Info("credential store listening", "port", cfg.StoreServerPort)
		return serve(cmd.Context(), srv, log)
	},
}

func init() {
	rootCmd.AddCommand(storeCmd)
}
