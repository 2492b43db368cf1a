package main

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jenkins-memory-agent/src/contracts"
	"jenkins-memory-agent/src/store"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func writeRecords(t *testing.T, dir string, records ...string) []string {
	t.Helper()
	paths := make([]string, len(records))
	for i, rec := range records {
		paths[i] = filepath.Join(dir, "record"+string(rune('a'+i))+".json")
		require.NoError(t, os.WriteFile(paths[i], []byte(rec), 0o644))
	}
	return paths
}

func setupEnv(t *testing.T) string {
	t.Helper()
	t.Setenv("REDPANDA_BROKERS", "")
	t.Setenv("MEMORY_DSN", "")
	t.Setenv("RETENTION_INITIAL_DELAY", "")
	return "sqlite://" + filepath.Join(t.TempDir(), "memory.db")
}

func TestLocalThenInspect(t *testing.T) {
	dsn := setupEnv(t)
	files := writeRecords(t, t.TempDir(),
		`{"type":"build_log_data","job_name":"api","build_number":3,"log":"stage one"}`,
		`{"type":"build_log_data","job_name":"api","build_number":3,"log":"stage two"}`,
		`{"type":"secret_detection","job_name":"api","build_number":3,"source":"build_log"}`,
	)

	out, err := execute(t, append([]string{"local", "--dsn", dsn}, files...)...)
	require.NoError(t, err)
	assert.Contains(t, out, "Stored 3 records")
	assert.Contains(t, out, "Build api #3: 3 of 14 records")
	assert.Contains(t, out, "Analysis trigger: api #3")

	out, err = execute(t, "history", "api", "--dsn", dsn)
	require.NoError(t, err)
	assert.Contains(t, out, "stage one")
	assert.Contains(t, out, "--- [3] USER build #3")

	out, err = execute(t, "conversations", "--dsn", dsn)
	require.NoError(t, err)
	assert.Equal(t, "api\t3\n", out)

	out, err = execute(t, "ready", "api", "3", "--dsn", dsn)
	require.NoError(t, err)
	assert.Equal(t, "ready\n", out)

	out, err = execute(t, "ready", "api", "4", "--dsn", dsn)
	assert.True(t, errors.Is(err, errNotReady))
	assert.Equal(t, "not ready\n", out)

	out, err = execute(t, "prune", "--max", "1", "--dsn", dsn)
	require.NoError(t, err)
	assert.Contains(t, out, "Swept 1 conversations: 2 messages pruned, 0 failures")

	out, err = execute(t, "clear", "api", "--dsn", dsn)
	require.NoError(t, err)
	assert.Equal(t, "Cleared api\n", out)

	out, err = execute(t, "history", "api", "--dsn", dsn)
	require.NoError(t, err)
	assert.Equal(t, "No messages for api\n", out)
}

func TestLocalRejectsInvalidRecord(t *testing.T) {
	dsn := setupEnv(t)
	files := writeRecords(t, t.TempDir(), `{"type":"not_a_record","job_name":"api"}`)

	_, err := execute(t, append([]string{"local", "--dsn", dsn}, files...)...)
	require.Error(t, err)
}

func TestLocalReportsUnrenderableRecord(t *testing.T) {
	dsn := setupEnv(t)
	files := writeRecords(t, t.TempDir(),
		`{"type":"build_log_data","job_name":"api","build_number":1,"log":"ok"}`,
		`{"type":"build_log_data","job_name":"api","build_number":1,"log":"%%%","log_compressed":true}`,
	)

	_, err := execute(t, append([]string{"local", "--dsn", dsn}, files...)...)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "record 2")
	assert.NotContains(t, err.Error(), "timed out")

	out, err := execute(t, "conversations", "--dsn", dsn)
	require.NoError(t, err)
	assert.Empty(t, out, "nothing is submitted when a record is invalid")
}

func TestPublishRequiresBrokers(t *testing.T) {
	dsn := setupEnv(t)
	files := writeRecords(t, t.TempDir(), `{"type":"build_log_data","job_name":"api","build_number":1,"log":"x"}`)

	_, err := execute(t, append([]string{"publish", "--dsn", dsn}, files...)...)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "REDPANDA_BROKERS")
}

func TestReadyRejectsNonNumericBuild(t *testing.T) {
	dsn := setupEnv(t)
	_, err := execute(t, "ready", "api", "latest", "--dsn", dsn)
	require.Error(t, err)
	assert.False(t, errors.Is(err, errNotReady))
}

func TestHistoryLoader(t *testing.T) {
	memory := store.NewMemoryStore(store.Options{})
	ctx := context.Background()
	require.NoError(t, memory.Add(ctx, "api", []contracts.Message{
		contracts.UserMessage("first", contracts.WithBuildNumber(1)),
		contracts.UserMessage("second", contracts.WithBuildNumber(1)),
	}))

	messages, err := historyLoader(memory, "api", 1)(ctx)
	require.NoError(t, err)
	require.Len(t, messages, 1)
	assert.Equal(t, "second", messages[0].Content)
}

func TestPrintHistoryJSON(t *testing.T) {
	dsn := setupEnv(t)
	memory, err := store.Open(context.Background(), dsn, store.Options{})
	require.NoError(t, err)
	require.NoError(t, memory.Add(context.Background(), "api", []contracts.Message{
		contracts.AssistantMessage("root cause: flaky test", contracts.WithBuildNumber(7)),
	}))
	require.NoError(t, memory.Close())

	out, err := execute(t, "history", "api", "--json", "--dsn", dsn)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "["))
	assert.Contains(t, out, `"role": "ASSISTANT"`)
	assert.Contains(t, out, `"build_number": 7`)
}
