package pipeline

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"jenkins-memory-agent/src/broker"
	"jenkins-memory-agent/src/config"
	"jenkins-memory-agent/src/logger"
	"jenkins-memory-agent/src/store"
)

func TestDetectMode(t *testing.T) {
	tests := []struct {
		name     string
		config   *config.Config
		expected Mode
	}{
		{
			name:     "Local mode - nil brokers",
			config:   &config.Config{},
			expected: LocalMode,
		},
		{
			name:     "Local mode - empty brokers",
			config:   &config.Config{RedpandaBrokers: []string{}},
			expected: LocalMode,
		},
		{
			name:     "Distributed mode - one broker",
			config:   &config.Config{RedpandaBrokers: []string{"localhost:19092"}},
			expected: DistributedMode,
		},
		{
			name:     "Distributed mode - multiple brokers",
			config:   &config.Config{RedpandaBrokers: []string{"broker1:9092", "broker2:9092"}},
			expected: DistributedMode,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DetectMode(tt.config); got != tt.expected {
				t.Errorf("DetectMode() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func testConfig() *config.Config {
	return &config.Config{
		MaxMessagesPerConversation: 100,
		RetentionInterval:          time.Hour,
		RetentionInitialDelay:      time.Hour,
	}
}

func TestPipeline_LocalEndToEnd(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg := testConfig()
	cfg.MemoryDSN = "sqlite://" + filepath.Join(t.TempDir(), "memory.db")

	p, err := New(ctx, cfg, logger.NewSilentLogger(), nil)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer p.Close()

	if p.Mode() != LocalMode {
		t.Fatalf("Expected local mode, got %s", p.Mode())
	}

	triggers, err := p.Triggers(ctx, "test")
	if err != nil {
		t.Fatalf("Triggers failed: %v", err)
	}
	if err := p.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	inputs := []string{
		`{"type":"build_log_data","job_name":"api","build_number":3,"log":"stage one"}`,
		`{"type":"build_log_data","job_name":"api","build_number":3,"log":"stage two"}`,
		`{"type":"secret_detection","job_name":"api","build_number":3,"source":"build_log"}`,
	}
	for _, in := range inputs {
		if _, err := p.Submit(ctx, []byte(in)); err != nil {
			t.Fatalf("Submit failed: %v", err)
		}
	}

	select {
	case trigger := <-triggers:
		if trigger.ConversationID != "api" || trigger.BuildNumber != 3 {
			t.Errorf("Unexpected trigger: %+v", trigger)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Timeout waiting for analysis trigger")
	}

	history, err := p.Memory().Get(ctx, "api", 10)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if len(history) != 3 {
		t.Errorf("Expected 3 messages in history, got %d", len(history))
	}
}

func TestPipeline_SubmitRejectsInvalidRecords(t *testing.T) {
	brk := broker.NewInMemoryBroker()
	p := NewWith(LocalMode, testConfig(), brk, store.NewMemoryStore(store.Options{}), nil, nil)
	defer p.Close()

	if _, err := p.Submit(context.Background(), []byte(`{"type":"nope","job_name":"api"}`)); err == nil {
		t.Error("Expected error for unknown record type")
	}
}

func TestPipeline_StartRejectsInvalidRetention(t *testing.T) {
	cfg := testConfig()
	cfg.MaxMessagesPerConversation = 0

	p := NewWith(LocalMode, cfg, broker.NewInMemoryBroker(), store.NewMemoryStore(store.Options{}), nil, nil)
	defer p.Close()

	if err := p.Start(context.Background()); err == nil {
		t.Error("Expected error for zero retention limit")
	}
}

func TestPipeline_StartFailsOnClosedBroker(t *testing.T) {
	brk := broker.NewInMemoryBroker()
	brk.Close()

	p := NewWith(LocalMode, testConfig(), brk, store.NewMemoryStore(store.Options{}), nil, nil)
	defer p.Close()

	if err := p.Start(context.Background()); err == nil {
		t.Error("Expected subscribe error on closed broker")
	}
}
