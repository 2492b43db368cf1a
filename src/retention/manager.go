// Package retention bounds conversation storage by periodically pruning
// every conversation down to its most recent messages.
package retention

import (
	"context"
	"errors"
	"fmt"
	"time"

	"jenkins-memory-agent/src/logger"
	"jenkins-memory-agent/src/metrics"
	"jenkins-memory-agent/src/store"
)

const (
	DefaultInterval     = time.Hour
	DefaultInitialDelay = time.Hour
)

// Pruner is the slice of store.ChatMemory the manager needs.
type Pruner interface {
	ConversationIDs(ctx context.Context) ([]string, error)
	Prune(ctx context.Context, conversationID string, keep int) (int, error)
}

// Config controls the sweep schedule and the retention window.
type Config struct {
	MaxMessagesPerConversation int
	Interval                   time.Duration
	InitialDelay               time.Duration
}

// SweepResult summarizes one sweep.
type SweepResult struct {
	Conversations int
	Pruned        int
	Failures      int
}

// Manager runs retention sweeps on a fixed schedule.
type Manager struct {
	pruner  Pruner
	cfg     Config
	logger  logger.Logger
	metrics *metrics.Metrics
}

// NewManager validates cfg and fills in default durations.
func NewManager(pruner Pruner, cfg Config, log logger.Logger, m *metrics.Metrics) (*Manager, error) {
	if pruner == nil {
		return nil, errors.New("retention: pruner is required")
	}
	if cfg.MaxMessagesPerConversation < 1 {
		return nil, &store.PreconditionError{Op: "retention", Field: "max messages per conversation", Err: store.ErrInvalidRetention}
	}
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.InitialDelay < 0 {
		cfg.InitialDelay = DefaultInitialDelay
	}
	if log == nil {
		log = logger.NewSilentLogger()
	}

	return &Manager{pruner: pruner, cfg: cfg, logger: log, metrics: m}, nil
}

// Run waits for the initial delay, then sweeps once per interval until ctx
// is cancelled. Sweeps never overlap.
func (m *Manager) Run(ctx context.Context) error {
	m.logger.Info("[RetentionManager] Starting (keep %d messages per conversation, every %s, first run in %s)",
		m.cfg.MaxMessagesPerConversation, m.cfg.Interval, m.cfg.InitialDelay)

	delay := time.NewTimer(m.cfg.InitialDelay)
	defer delay.Stop()

	select {
	case <-delay.C:
	case <-ctx.Done():
		m.logger.Info("[RetentionManager] Context cancelled, shutting down")
		return ctx.Err()
	}

	ticker := time.NewTicker(m.cfg.Interval)
	defer ticker.Stop()

	for {
		if _, err := m.Sweep(ctx); err != nil {
			m.logger.Error("[RetentionManager] Sweep failed: %v", err)
		}

		select {
		case <-ticker.C:
		case <-ctx.Done():
			m.logger.Info("[RetentionManager] Context cancelled, shutting down")
			return ctx.Err()
		}
	}
}

// Sweep prunes every known conversation once. A conversation that fails to
// prune is logged and counted; the others are still processed. The error is
// non-nil only when the conversation list could not be read.
func (m *Manager) Sweep(ctx context.Context) (SweepResult, error) {
	start := time.Now()
	var result SweepResult

	ids, err := m.pruner.ConversationIDs(ctx)
	if err != nil {
		m.metrics.ObserveSweep(0, 1, time.Since(start))
		return result, fmt.Errorf("failed to list conversations: %w", err)
	}

	for _, id := range ids {
		if ctx.Err() != nil {
			break
		}
		result.Conversations++

		removed, err := m.pruner.Prune(ctx, id, m.cfg.MaxMessagesPerConversation)
		if err != nil {
			result.Failures++
			m.logger.Error("[RetentionManager] Failed to prune conversation %s: %v", id, err)
			continue
		}
		if removed > 0 {
			m.logger.Debug("[RetentionManager] Pruned %d messages from %s", removed, id)
		}
		result.Pruned += removed
	}

	elapsed := time.Since(start)
	m.metrics.ObserveSweep(result.Pruned, result.Failures, elapsed)
	m.logger.Info("[RetentionManager] Sweep complete: %d conversations, %d messages pruned, %d failures in %s",
		result.Conversations, result.Pruned, result.Failures, elapsed.Round(time.Millisecond))

	return result, nil
}
