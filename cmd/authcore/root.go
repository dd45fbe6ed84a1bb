package main

import (
	"github.com/spf13/cobra"
)

// NewRootCmd creates the root command for the authcore CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "authcore",
		Short: "authcore - credential and token lifecycle server",
		Long: `authcore serves account signup with email verification, password login,
JWT access/refresh issuance with rotation, and logout. Configuration is read
from environment variables.`,
		SilenceUsage: true,
	}

	cmd.AddCommand(NewServeCmd())
	cmd.AddCommand(NewMigrateCmd())

	return cmd
}
