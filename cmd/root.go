/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"log/slog"
	"os"

	"github.com/orderdesk/apiserver/config"
	"github.com/orderdesk/apiserver/internal/logging"
	"github.com/spf13/cobra"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "orderdesk",
	Short: "Order desk backend",
	Long: `Order desk backend: user accounts, bearer-token auth and
order records with optional image uploads.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// newLogger builds the process logger from cfg and makes it the slog default.
func newLogger(cfg config.Config) *slog.Logger {
	logger := logging.New(os.Stderr, cfg.Env, cfg.LogLevel)
	slog.SetDefault(logger)
	return logger
}
