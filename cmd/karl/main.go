// Package main is the karl CLI: a single executable exposing create-user,
// server, and test actions over a shared --config/--no-perms flag surface.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	configPath string
	noPerms    bool
	logger     *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "karl",
	Short: "Karl curates deduplicated, cross-supermarket product prices.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		l, err := zap.NewProduction()
		if err != nil {
			return fmt.Errorf("karl: build logger: %w", err)
		}
		logger = l
		if noPerms {
			logger.Warn("--no-perms is set: password and session checks are DISABLED")
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "C", "./config.yaml", "path to the YAML config file")
	rootCmd.PersistentFlags().BoolVarP(&noPerms, "no-perms", "n", false, "disable password and session enforcement (dev/seeding only)")

	rootCmd.AddCommand(createUserCmd, serverCmd, testCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
