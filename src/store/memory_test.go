package store

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jenkins-memory-agent/src/contracts"
)

func TestMemoryStore(t *testing.T) {
	runChatMemoryTests(t, func(t *testing.T, opts Options) ChatMemory {
		s := NewMemoryStore(opts)
		t.Cleanup(func() { s.Close() })
		return s
	})
}

func TestMemoryStore_ConcurrentAdds(t *testing.T) {
	s := NewMemoryStore(Options{})
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			_ = s.Add(ctx, "api", []contracts.Message{user("msg", n)})
		}(i)
	}
	wg.Wait()

	count, err := s.Count(ctx, "api")
	require.NoError(t, err)
	assert.Equal(t, 20, count)

	got, err := s.Get(ctx, "api", 20)
	require.NoError(t, err)
	seen := make(map[string]bool)
	for i, m := range got {
		assert.False(t, seen[m.ID], "duplicate id %s", m.ID)
		seen[m.ID] = true
		if i > 0 {
			assert.True(t, m.Timestamp.After(got[i-1].Timestamp))
			assert.Greater(t, m.ID, got[i-1].ID, "ids sort in write order")
		}
	}
}
