// Jarvis is a voice-first personal assistant. The assistant command runs the
// listening loop on the terminal; the proxy command runs the answer service
// that fronts the language model.
//
// Usage:
//
//	jarvis assistant [--config jarvis.yaml] [--print-urls]
//	jarvis proxy [--config jarvis.yaml]
//	jarvis version
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/nadzzz/jarvis/internal/config"
)

// version is set at build time via ldflags.
var version = "dev"

var configFile string

func main() {
	if err := newRootCmd().Execute(); err != nil {
		slog.Error("jarvis failed", "error", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "jarvis",
		Short:         "Voice-first personal assistant",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configFile, "config", "", "path to config file (e.g. configs/jarvis.yaml)")

	root.AddCommand(newAssistantCmd(), newProxyCmd(), &cobra.Command{
		Use:   "version",
		Short: "Print the version and exit",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "jarvis %s\n", version)
		},
	})
	return root
}

// loadConfig loads the configuration and installs the global logger.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configFile)
	if err != nil {
		return nil, fmt.Errorf("loading configuration: %w", err)
	}
	config.SetupLogging(cfg.Logging)
	return cfg, nil
}
