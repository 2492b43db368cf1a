// Package ingest provides the memory ingest agent. It consumes typed Jenkins
// records, stores them as conversation history and signals the AI caller
// once a build is ready for analysis.
package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"jenkins-memory-agent/src/broker"
	"jenkins-memory-agent/src/contracts"
	"jenkins-memory-agent/src/logger"
	"jenkins-memory-agent/src/metrics"
	"jenkins-memory-agent/src/records"
	"jenkins-memory-agent/src/store"
)

// GroupID is the consumer group of the ingest agent.
const GroupID = "jenkins-memory-ingest"

// Agent consumes typed records and appends them to conversation memory.
type Agent struct {
	broker     broker.Broker
	memory     store.ChatMemory
	normalizer *records.Normalizer
	logger     logger.Logger
	metrics    *metrics.Metrics
}

// NewAgent creates a new ingest agent. m may be nil.
func NewAgent(brk broker.Broker, memory store.ChatMemory, normalizer *records.Normalizer, log logger.Logger, m *metrics.Metrics) *Agent {
	return &Agent{
		broker:     brk,
		memory:     memory,
		normalizer: normalizer,
		logger:     log,
		metrics:    m,
	}
}

// Run subscribes and then consumes records until ctx is done.
func (a *Agent) Run(ctx context.Context) error {
	msgChan, err := a.Subscribe(ctx)
	if err != nil {
		return err
	}
	return a.Consume(ctx, msgChan)
}

// Subscribe registers the agent on jenkins.logs.typed. Records published
// after it returns are delivered on the returned channel.
func (a *Agent) Subscribe(ctx context.Context) (<-chan broker.Message, error) {
	a.logger.Info("[IngestAgent] Starting...")

	msgChan, err := a.broker.Subscribe(ctx, contracts.TopicTypedLogs, GroupID)
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe to %s: %w", contracts.TopicTypedLogs, err)
	}

	a.logger.Info("[IngestAgent] Listening for records on '%s' topic...", contracts.TopicTypedLogs)
	return msgChan, nil
}

// Consume stores every record received on msgChan until the channel closes
// or ctx is done.
func (a *Agent) Consume(ctx context.Context, msgChan <-chan broker.Message) error {
	for {
		select {
		case msg, ok := <-msgChan:
			if !ok {
				a.logger.Info("[IngestAgent] Message channel closed, shutting down")
				return nil
			}

			if err := a.Process(ctx, msg.Value); err != nil {
				a.logger.Error("[IngestAgent] Error processing record at offset %d: %v", msg.Offset, err)
			}

		case <-ctx.Done():
			a.logger.Info("[IngestAgent] Context cancelled, shutting down")
			return ctx.Err()
		}
	}
}

// Process decodes one typed record, stores it and checks build readiness.
func (a *Agent) Process(ctx context.Context, data []byte) error {
	rec, err := a.normalizer.Decode(data)
	if err != nil {
		a.metrics.ObserveRecord("unknown", err)
		return fmt.Errorf("failed to decode record: %w", err)
	}

	err = a.store(ctx, rec)
	a.metrics.ObserveRecord(string(rec.Type()), err)
	if err != nil {
		return err
	}

	if sd, ok := rec.(*records.SecretDetection); ok && sd.Source == records.SourceBuildLog {
		if err := a.checkReady(ctx, rec.ConversationID(), rec.BuildNumber()); err != nil {
			return err
		}
	}

	return nil
}

func (a *Agent) store(ctx context.Context, rec records.Record) error {
	content, err := a.normalizer.ContentToAnalyze(rec)
	if err != nil {
		return fmt.Errorf("failed to normalize %s record for %s #%d: %w",
			rec.Type(), rec.ConversationID(), rec.BuildNumber(), err)
	}

	meta := store.MetadataFromMap(map[string]any{
		"build_number": rec.BuildNumber(),
		"type":         string(rec.Type()),
		"job_name":     rec.ConversationID(),
	}, a.logger)
	msg := contracts.UserMessage(Tagged(rec.Type(), content), meta)

	if err := a.memory.Add(ctx, rec.ConversationID(), []contracts.Message{msg}); err != nil {
		return fmt.Errorf("failed to store %s record for %s #%d: %w",
			rec.Type(), rec.ConversationID(), rec.BuildNumber(), err)
	}

	a.logger.Debug("[IngestAgent] Stored %s record for %s #%d (%d chars)",
		rec.Type(), rec.ConversationID(), rec.BuildNumber(), len(content))
	return nil
}

// checkReady publishes an analysis trigger once both build logs of the
// build are stored.
func (a *Agent) checkReady(ctx context.Context, conversationID string, buildNumber int) error {
	ready, err := a.memory.HasTwoBuildLogs(ctx, conversationID, buildNumber)
	if err != nil {
		return fmt.Errorf("failed to check build logs for %s #%d: %w", conversationID, buildNumber, err)
	}
	if !ready {
		a.logger.Debug("[IngestAgent] Build %s #%d not ready for analysis yet", conversationID, buildNumber)
		return nil
	}

	trigger := contracts.AnalysisTrigger{
		ConversationID: conversationID,
		BuildNumber:    buildNumber,
		Timestamp:      time.Now().UTC().Format(time.RFC3339),
	}
	data, err := json.Marshal(trigger)
	if err != nil {
		return fmt.Errorf("failed to marshal analysis trigger: %w", err)
	}

	if err := a.broker.Publish(ctx, contracts.TopicAnalysisTriggers, conversationID, data); err != nil {
		return fmt.Errorf("failed to publish analysis trigger for %s #%d: %w", conversationID, buildNumber, err)
	}

	a.metrics.RecordTrigger()
	a.logger.Info("[IngestAgent] Build %s #%d ready, published analysis trigger", conversationID, buildNumber)
	return nil
}

// Tagged prefixes content with the record type line used for build log
// detection.
func Tagged(t records.Type, content string) string {
	return "type: " + string(t) + "\n" + content
}
