// Package pipeline wires the broker, conversation store, ingest agent and
// retention manager together. It is shared by memory-agent, memoryctl and
// the MCP server.
package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"jenkins-memory-agent/src/broker"
	"jenkins-memory-agent/src/codec"
	"jenkins-memory-agent/src/config"
	"jenkins-memory-agent/src/contracts"
	"jenkins-memory-agent/src/ingest"
	"jenkins-memory-agent/src/logger"
	"jenkins-memory-agent/src/metrics"
	"jenkins-memory-agent/src/records"
	"jenkins-memory-agent/src/retention"
	"jenkins-memory-agent/src/store"
)

// Mode is how records reach the ingest agent.
type Mode int

const (
	// LocalMode runs everything in one process over an in-memory broker.
	LocalMode Mode = iota
	// DistributedMode consumes from Redpanda.
	DistributedMode
)

func (m Mode) String() string {
	if m == DistributedMode {
		return "distributed"
	}
	return "local"
}

// DetectMode picks DistributedMode when Redpanda brokers are configured.
func DetectMode(cfg *config.Config) Mode {
	if cfg.LocalMode() {
		return LocalMode
	}
	return DistributedMode
}

// Pipeline owns the broker and the conversation store.
type Pipeline struct {
	mode       Mode
	cfg        *config.Config
	broker     broker.Broker
	memory     store.ChatMemory
	normalizer *records.Normalizer
	logger     logger.Logger
	metrics    *metrics.Metrics
}

// New opens the broker and the store described by cfg.
func New(ctx context.Context, cfg *config.Config, log logger.Logger, m *metrics.Metrics) (*Pipeline, error) {
	if log == nil {
		log = logger.NewSilentLogger()
	}

	mode := DetectMode(cfg)

	var brk broker.Broker
	if mode == DistributedMode {
		rp, err := broker.NewRedpandaBroker(cfg.RedpandaBrokers, log)
		if err != nil {
			return nil, fmt.Errorf("failed to create Redpanda broker: %w", err)
		}
		brk = rp
	} else {
		brk = broker.NewInMemoryBroker()
	}

	memory, err := store.Open(ctx, cfg.MemoryDSN, store.Options{Logger: log, Metrics: m})
	if err != nil {
		brk.Close()
		return nil, fmt.Errorf("failed to open conversation store: %w", err)
	}

	return NewWith(mode, cfg, brk, memory, log, m), nil
}

// NewWith builds a pipeline around an existing broker and store.
func NewWith(mode Mode, cfg *config.Config, brk broker.Broker, memory store.ChatMemory, log logger.Logger, m *metrics.Metrics) *Pipeline {
	if log == nil {
		log = logger.NewSilentLogger()
	}
	return &Pipeline{
		mode:       mode,
		cfg:        cfg,
		broker:     brk,
		memory:     memory,
		normalizer: records.NewNormalizer(codec.StdJSON, log),
		logger:     log,
		metrics:    m,
	}
}

// Mode returns the detected mode.
func (p *Pipeline) Mode() Mode { return p.mode }

// Memory returns the conversation store.
func (p *Pipeline) Memory() store.ChatMemory { return p.memory }

// Normalizer returns the record normalizer.
func (p *Pipeline) Normalizer() *records.Normalizer { return p.normalizer }

// Start subscribes the ingest agent, then runs it and the retention manager
// as goroutines until ctx is done. Agent failures are logged.
func (p *Pipeline) Start(ctx context.Context) error {
	manager, err := retention.NewManager(p.memory, retention.Config{
		MaxMessagesPerConversation: p.cfg.MaxMessagesPerConversation,
		Interval:                   p.cfg.RetentionInterval,
		InitialDelay:               p.cfg.RetentionInitialDelay,
	}, p.logger, p.metrics)
	if err != nil {
		return fmt.Errorf("failed to create retention manager: %w", err)
	}

	// Subscribe before returning so records submitted right after Start
	// are not missed by the in-memory broker.
	agent := ingest.NewAgent(p.broker, p.memory, p.normalizer, p.logger, p.metrics)
	msgChan, err := agent.Subscribe(ctx)
	if err != nil {
		return err
	}
	go func() {
		if err := agent.Consume(ctx, msgChan); err != nil && !errors.Is(err, context.Canceled) {
			p.logger.Error("[Pipeline] Ingest agent error: %v", err)
		}
	}()

	go func() {
		if err := manager.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			p.logger.Error("[Pipeline] Retention manager error: %v", err)
		}
	}()

	p.logger.Info("[Pipeline] Started in %s mode", p.mode)
	return nil
}

// Submit validates a typed record and publishes it, keyed by job name.
func (p *Pipeline) Submit(ctx context.Context, data []byte) (records.Record, error) {
	rec, err := p.normalizer.Decode(data)
	if err != nil {
		return nil, err
	}
	if err := p.broker.Publish(ctx, contracts.TopicTypedLogs, rec.ConversationID(), data); err != nil {
		return nil, fmt.Errorf("failed to publish record: %w", err)
	}
	return rec, nil
}

// Triggers streams analysis triggers as the AI caller would see them.
func (p *Pipeline) Triggers(ctx context.Context, groupID string) (<-chan contracts.AnalysisTrigger, error) {
	msgChan, err := p.broker.Subscribe(ctx, contracts.TopicAnalysisTriggers, groupID)
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe to triggers: %w", err)
	}

	out := make(chan contracts.AnalysisTrigger, 16)
	go func() {
		defer close(out)
		for {
			select {
			case msg, ok := <-msgChan:
				if !ok {
					return
				}

				var trigger contracts.AnalysisTrigger
				if err := json.Unmarshal(msg.Value, &trigger); err != nil {
					p.logger.Warn("[Pipeline] Failed to unmarshal analysis trigger: %v", err)
					continue
				}

				select {
				case out <- trigger:
				case <-ctx.Done():
					return
				}

			case <-ctx.Done():
				return
			}
		}
	}()

	return out, nil
}

// Close shuts down the broker and the store.
func (p *Pipeline) Close() error {
	brokerErr := p.broker.Close()
	storeErr := p.memory.Close()
	if brokerErr != nil {
		return brokerErr
	}
	return storeErr
}
