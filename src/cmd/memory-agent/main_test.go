package main

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"jenkins-memory-agent/src/config"
	"jenkins-memory-agent/src/metrics"
)

func TestMetricsMux(t *testing.T) {
	m := metrics.New()
	m.RecordTrigger()
	mux := metricsMux(m)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("/metrics returned %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "jenkins_memory_analysis_triggers_total 1") {
		t.Error("/metrics is missing the trigger counter")
	}

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK || strings.TrimSpace(rec.Body.String()) != "ok" {
		t.Errorf("/healthz returned %d %q", rec.Code, rec.Body.String())
	}
}

func TestApplyFlags(t *testing.T) {
	cfg := &config.Config{MemoryDSN: "sqlite://a.db", MaxMessagesPerConversation: 100, LogLevel: "info"}

	if err := rootCmd.Flags().Parse([]string{"--dsn", "sqlite://b.db", "--max-messages", "5"}); err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	applyFlags(rootCmd, cfg)

	if cfg.MemoryDSN != "sqlite://b.db" {
		t.Errorf("MemoryDSN = %q", cfg.MemoryDSN)
	}
	if cfg.MaxMessagesPerConversation != 5 {
		t.Errorf("MaxMessagesPerConversation = %d", cfg.MaxMessagesPerConversation)
	}
	if cfg.LogLevel != "info" {
		t.Errorf("LogLevel changed without flag: %q", cfg.LogLevel)
	}
}
