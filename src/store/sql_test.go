package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jenkins-memory-agent/src/contracts"
)

func openSQLite(t *testing.T, opts Options) *SQLStore {
	t.Helper()
	dsn := "sqlite://" + filepath.Join(t.TempDir(), "memory.db")
	s, err := Open(context.Background(), dsn, opts)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSQLStore_SQLite(t *testing.T) {
	runChatMemoryTests(t, func(t *testing.T, opts Options) ChatMemory {
		return openSQLite(t, opts)
	})
}

// Set TEST_POSTGRES_DSN to run against a disposable Postgres database.
// The chat_messages table is emptied before each test.
func TestSQLStore_Postgres(t *testing.T) {
	dsn := os.Getenv("TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("TEST_POSTGRES_DSN not set")
	}

	runChatMemoryTests(t, func(t *testing.T, opts Options) ChatMemory {
		s, err := Open(context.Background(), dsn, opts)
		require.NoError(t, err)
		_, err = s.db.Exec(`DELETE FROM chat_messages`)
		require.NoError(t, err)
		t.Cleanup(func() { s.Close() })
		return s
	})
}

func TestParseDSN(t *testing.T) {
	tests := []struct {
		dsn         string
		wantDialect Dialect
		wantSource  string
		wantErr     bool
	}{
		{"postgres://u:p@localhost:5432/memory?sslmode=disable", DialectPostgres, "postgres://u:p@localhost:5432/memory?sslmode=disable", false},
		{"postgresql://localhost/memory", DialectPostgres, "postgresql://localhost/memory", false},
		{"sqlite:///var/lib/memory.db", DialectSQLite, "/var/lib/memory.db?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", false},
		{"sqlite://:memory:", DialectSQLite, ":memory:", false},
		{"file:memory.db?mode=memory", DialectSQLite, "file:memory.db?mode=memory", false},
		{"sqlite://", "", "", true},
		{"mysql://localhost/memory", "", "", true},
		{"", "", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.dsn, func(t *testing.T) {
			dialect, source, err := ParseDSN(tt.dsn)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantDialect, dialect)
			assert.Equal(t, tt.wantSource, source)
		})
	}
}

func TestSQLStore_Rebind(t *testing.T) {
	pg := &SQLStore{dialect: DialectPostgres}
	lite := &SQLStore{dialect: DialectSQLite}

	query := `SELECT 1 FROM t WHERE a = ? AND b = ? LIMIT ?`
	assert.Equal(t, `SELECT 1 FROM t WHERE a = $1 AND b = $2 LIMIT $3`, pg.rebind(query))
	assert.Equal(t, query, lite.rebind(query))
}

func TestSQLStore_PersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	dsn := "sqlite://" + filepath.Join(t.TempDir(), "memory.db")

	s, err := Open(ctx, dsn, Options{})
	require.NoError(t, err)
	meta := contracts.WithBuildNumber(3)
	meta.Attributes = map[string]string{"type": "build_log_data"}
	require.NoError(t, s.Add(ctx, "api", []contracts.Message{contracts.UserMessage("hello", meta)}))
	require.NoError(t, s.Close())

	s, err = Open(ctx, dsn, Options{})
	require.NoError(t, err)
	defer s.Close()

	got, err := s.Get(ctx, "api", 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "hello", got[0].Content)
	assert.Equal(t, 3, got[0].BuildNumber)
	assert.Equal(t, "build_log_data", got[0].Metadata.Attributes["type"])
}

func TestSQLStore_InMemoryDatabase(t *testing.T) {
	ctx := context.Background()
	s, err := Open(ctx, "sqlite://:memory:", Options{})
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.Add(ctx, "api", []contracts.Message{user("a", 1), user("b", 1)}))

	count, err := s.Count(ctx, "api")
	require.NoError(t, err)
	assert.Equal(t, 2, count)
	assert.Equal(t, DialectSQLite, s.Dialect())
}
