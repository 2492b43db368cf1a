// Package main provides the long-running memory agent. It consumes typed
// Jenkins records, keeps conversation history and prunes it on a schedule.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"jenkins-memory-agent/src/config"
	"jenkins-memory-agent/src/logger"
	"jenkins-memory-agent/src/metrics"
	"jenkins-memory-agent/src/pipeline"
)

var (
	flagDSN         string
	flagMaxMessages int
	flagMetricsAddr string
	flagLogLevel    string
)

var rootCmd = &cobra.Command{
	Use:   "memory-agent",
	Short: "Jenkins conversation memory agent",
	Long: `memory-agent stores typed Jenkins pipeline records as per-job conversation
history and publishes an analysis trigger once a build is ready.

Mode is auto-detected: with REDPANDA_BROKERS set, records are consumed from
Redpanda; otherwise an in-memory broker is used.`,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadFromEnv()
		if err != nil {
			return fmt.Errorf("configuration error: %w", err)
		}
		applyFlags(cmd, cfg)
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("configuration error: %w", err)
		}
		return run(cfg)
	},
}

func init() {
	rootCmd.Flags().StringVar(&flagDSN, "dsn", "", "conversation store DSN (overrides MEMORY_DSN)")
	rootCmd.Flags().IntVar(&flagMaxMessages, "max-messages", 0, "messages kept per conversation (overrides MAX_MESSAGES_PER_CONVERSATION)")
	rootCmd.Flags().StringVar(&flagMetricsAddr, "metrics-addr", "", "listen address for /metrics (overrides METRICS_ADDR)")
	rootCmd.Flags().StringVar(&flagLogLevel, "log-level", "", "log level (overrides LOG_LEVEL)")
}

func applyFlags(cmd *cobra.Command, cfg *config.Config) {
	if cmd.Flags().Changed("dsn") {
		cfg.MemoryDSN = flagDSN
	}
	if cmd.Flags().Changed("max-messages") {
		cfg.MaxMessagesPerConversation = flagMaxMessages
	}
	if cmd.Flags().Changed("metrics-addr") {
		cfg.MetricsAddr = flagMetricsAddr
	}
	if cmd.Flags().Changed("log-level") {
		cfg.LogLevel = flagLogLevel
	}
}

func run(cfg *config.Config) error {
	logCfg := logger.DefaultConfig()
	logCfg.Level = cfg.LogLevel
	logCfg.Format = cfg.LogFormat
	logCfg.File = cfg.LogFile
	log, err := logger.NewZapLogger(logCfg)
	if err != nil {
		return err
	}
	defer log.Sync()

	// Setup context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		log.Info("Shutdown signal received, stopping agent...")
		cancel()
	}()

	m := metrics.New()

	p, err := pipeline.New(ctx, cfg, log, m)
	if err != nil {
		return err
	}
	defer p.Close()

	log.Info("Starting memory agent (%s mode)", p.Mode())
	if p.Mode() == pipeline.DistributedMode {
		log.Info("Redpanda brokers: %v", cfg.RedpandaBrokers)
	}
	log.Info("Retention: %d messages per conversation, every %s", cfg.MaxMessagesPerConversation, cfg.RetentionInterval)

	if cfg.MetricsAddr != "" {
		srv := &http.Server{
			Addr:              cfg.MetricsAddr,
			Handler:           metricsMux(m),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			log.Info("Serving metrics on %s/metrics", cfg.MetricsAddr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error("Metrics server error: %v", err)
			}
		}()
		defer func() {
			shutdownCtx, stop := context.WithTimeout(context.Background(), 5*time.Second)
			defer stop()
			srv.Shutdown(shutdownCtx)
		}()
	}

	if err := p.Start(ctx); err != nil {
		return err
	}

	<-ctx.Done()
	log.Info("Memory agent stopped")
	return nil
}

func metricsMux(m *metrics.Metrics) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprintln(w, "ok")
	})
	return mux
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
