// Package commands implements the hub CLI: serve starts the synchronization
// server, status queries a running instance's health endpoint.
package commands

import (
	"github.com/spf13/cobra"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "hub",
	Short: "STYLY-NetSync synchronization hub",
	Long: `hub runs the real-time multiplayer synchronization server for
location-based VR/AR clients: per-room transform broadcast, shared
network-variable state, and RPC relay over a WebSocket transport.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command. Called once from main.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "path to a TOML config file")
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(statusCmd)
}
