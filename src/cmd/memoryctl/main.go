// Package main provides memoryctl, the operator CLI for Jenkins conversation
// memory: inspecting and clearing history, one-off retention sweeps,
// publishing typed records and the interactive history viewer.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"jenkins-memory-agent/src/config"
	"jenkins-memory-agent/src/logger"
	"jenkins-memory-agent/src/store"
)

// errNotReady makes "ready" exit with status 2 without an error message.
var errNotReady = errors.New("build not ready")

// app holds state shared by all subcommands.
type app struct {
	dsn     string
	verbose bool

	cfg *config.Config
	log logger.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:   "memoryctl",
		Short: "Inspect and manage Jenkins conversation memory",
		Long: `memoryctl works directly against the conversation store configured by
MEMORY_DSN (or --dsn). Conversations are keyed by Jenkins job name.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup()
		},
	}

	root.PersistentFlags().StringVar(&a.dsn, "dsn", "", "conversation store DSN (overrides MEMORY_DSN)")
	root.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "log at debug level")

	root.AddCommand(
		newHistoryCmd(a),
		newConversationsCmd(a),
		newClearCmd(a),
		newReadyCmd(a),
		newPruneCmd(a),
		newPublishCmd(a),
		newViewCmd(a),
		newLocalCmd(a),
	)
	return root
}

// setup loads configuration and builds the logger. CLI logs go to stderr
// at warn level so command output stays clean.
func (a *app) setup() error {
	cfg, err := config.LoadFromEnv()
	if err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}
	if a.dsn != "" {
		cfg.MemoryDSN = a.dsn
	}
	a.cfg = cfg

	logCfg := logger.DefaultConfig()
	logCfg.Level = "warn"
	if a.verbose {
		logCfg.Level = "debug"
	}
	logCfg.Format = cfg.LogFormat
	logCfg.Service = "memoryctl"
	log, err := logger.NewZapLogger(logCfg)
	if err != nil {
		return err
	}
	a.log = log
	return nil
}

// openStore opens the configured conversation store.
func (a *app) openStore(ctx context.Context) (*store.SQLStore, error) {
	memory, err := store.Open(ctx, a.cfg.MemoryDSN, store.Options{Logger: a.log})
	if err != nil {
		return nil, fmt.Errorf("failed to open conversation store: %w", err)
	}
	return memory, nil
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		if errors.Is(err, errNotReady) {
			os.Exit(2)
		}
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
