package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/aretw0/enginegate/internal/config"
	"github.com/aretw0/enginegate/internal/logging"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "enginegate",
	Short: "enginegate launches a game engine and talks to it over a loopback socket",
	Long: `enginegate runs one engine process at a time, hands it the port of a local listener
and exchanges length-prefixed frames with it once it connects back.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringP("config", "c", config.DefaultPath, "Configuration file (YAML or JSON)")
	rootCmd.PersistentFlags().Bool("debug", false, "Enable debug logging")
}

// loadConfig reads --config and applies --debug.
func loadConfig(cmd *cobra.Command) (config.Config, *slog.Logger, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return config.Config{}, nil, err
	}
	if debug, _ := cmd.Flags().GetBool("debug"); debug {
		cfg.LogLevel = "debug"
	}
	return cfg, logging.New(logging.ParseLevel(cfg.LogLevel)), nil
}
