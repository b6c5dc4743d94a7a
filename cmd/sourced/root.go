package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/papyr-io/papyr/internal/config"
	"github.com/papyr-io/papyr/internal/engine"
	"github.com/papyr-io/papyr/internal/logging"
	"github.com/papyr-io/papyr/internal/security"
)

var rootCmd = &cobra.Command{
	Use:   "sourced",
	Short: "Sandboxed book-source script engine",
	Long: `sourced runs book-source extraction scripts in a capability-mediated
sandbox. Sources are YAML descriptors combining declarative selectors with
optional script snippets; every network and file access a script makes is
checked against the active security policy.`,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().String("config", "", "Path to TOML config file")
	rootCmd.PersistentFlags().String("level", "", "Override security level: standard, compatible, trusted")
	rootCmd.PersistentFlags().String("confirm", "", "Confirmation token (required for trusted)")
}

// buildEngine wires config, logging, policy, and engine for a subcommand.
func buildEngine(cmd *cobra.Command) (*engine.Engine, *security.Manager, *logging.Logger, error) {
	cfgPath, _ := cmd.Flags().GetString("config")

	var cfg *config.Config
	var err error
	if cfgPath != "" {
		cfg, err = config.LoadFile(cfgPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, nil, nil, fmt.Errorf("config: %w", err)
	}

	logger, err := logging.New(logging.Config{
		Level:       cfg.Logging.Level,
		Development: cfg.Logging.Development,
		OutputPaths: []string{"stderr"},
	})
	if err != nil {
		return nil, nil, nil, fmt.Errorf("logging: %w", err)
	}

	policies := security.NewManager(security.Tunables{
		SandboxRoot:        cfg.Security.SandboxRoot,
		BlockedDomains:     cfg.Security.BlockedDomains,
		MaxResponseSize:    cfg.Security.MaxResponseSize,
		MaxHTTPRequests:    cfg.Security.MaxHTTPRequests,
		InstructionCeiling: cfg.Engine.InstructionCeiling,
	}, cfg.Security.StateFile, logger)

	if levelStr, _ := cmd.Flags().GetString("level"); levelStr != "" {
		level, err := security.ParseLevel(levelStr)
		if err != nil {
			return nil, nil, nil, err
		}
		confirm, _ := cmd.Flags().GetString("confirm")
		if err := policies.SetLevel(level, confirm); err != nil {
			return nil, nil, nil, err
		}
	}

	return engine.New(cfg.Engine, policies, logger), policies, logger, nil
}
