/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"fmt"

	"github.com/recallpro/auth/internal/server"
	"github.com/spf13/cobra"
)

// authCmd represents the auth command
var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Starts the auth server",
	Long: `Starts the auth server. It keeps no state of its own and reaches the
credential store at DATABASE_SERVICE_URL. JWT_SECRET is required. Usage:

	recallpro auth
`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, log, err := loadConfig()
		if err != nil {
			return err
		}

		srv, err := server.NewAuth(cfg, log)
		if err != nil {
			return fmt.Errorf("failed to start auth: %w", err)
		}
		log.Info("auth service listening", "port", cfg.AuthServerPort)
		return serve(cmd.Context(), srv, log)
	},
}

func init() {
	rootCmd.AddCommand(authCmd)
}
