// Package cli provides the portal-notify commands.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/nhle/portal-notify/internal/model"
)

var (
	configPath string
	logLevel   string
)

var rootCmd = &cobra.Command{
	Use:   "portal-notify",
	Short: "portal-notify - staff notifications of the water utility portal",
	Long: `portal-notify follows the staff notification stream of the water
utility portal from the terminal.

It provides:
  - A live notification bell with 'portal-notify watch'
  - A headless watcher with Prometheus metrics ('watch --headless')
  - History and unread queries ('history', 'unread')
  - Read receipts ('read <id>', 'read-all')`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", model.DefaultConfigPath(), "config file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override log.level")

	rootCmd.AddCommand(loginCmd)
	rootCmd.AddCommand(logoutCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(unreadCmd)
	rootCmd.AddCommand(readCmd)
	rootCmd.AddCommand(readAllCmd)
	rootCmd.AddCommand(postCmd)
	rootCmd.AddCommand(versionCmd)
}
