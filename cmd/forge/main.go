package main

import (
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/forgekit/forge"
	"github.com/forgekit/forge/commands"
	"github.com/forgekit/forge/config"
	"github.com/forgekit/forge/logging"
)

var (
	Version = "0.0.0"

	addr              string
	timestamps, quiet bool
	verbose           bool
	logger            logging.Logger
)

func main() {
	cobra.EnableCommandSorting = false
	rootCmd := &cobra.Command{
		Use:   "forge",
		Short: "Build container images with a remote BuildKit daemon",
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if os.Getenv("FORGE_LOG_LEVEL") == "debug" {
				verbose = true
			}
			logger = *logging.NewLogger(os.Stdout, os.Stderr, verbose, timestamps)
			if addr == "" {
				addr = defaultAddress()
			}
		},
	}
	rootCmd.PersistentFlags().StringVar(&addr, "addr", "", "Daemon address (tcp://host:port or unix://path)")
	rootCmd.PersistentFlags().BoolVar(&color.NoColor, "no-color", false, "Disable color output")
	rootCmd.PersistentFlags().BoolVar(&timestamps, "timestamps", false, "Enable timestamps in output")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "Show less output")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Show more output")
	commands.AddHelpFlag(rootCmd, "forge")

	rootCmd.AddCommand(commands.Local(&logger, &addr, &quiet))
	rootCmd.AddCommand(commands.Github(&logger, &addr, &quiet))
	rootCmd.AddCommand(commands.Health(&logger, &addr))
	rootCmd.AddCommand(commands.Version(&logger, Version))

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func defaultAddress() string {
	cfg, err := config.NewDefault()
	if err == nil && cfg.DefaultAddress != "" {
		return cfg.DefaultAddress
	}
	return forge.DefaultAddress
}
