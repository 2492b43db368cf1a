package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jenkins-memory-agent/src/contracts"
	"jenkins-memory-agent/src/logger"
)

// factory builds a fresh, empty ChatMemory for one test.
type factory func(t *testing.T, opts Options) ChatMemory

func user(content string, build int) contracts.Message {
	return contracts.UserMessage(content, contracts.WithBuildNumber(build))
}

func buildLogMessage(build int) contracts.Message {
	return user("type: build_log_data\nJob: api\nBuild Number: "+fmt.Sprint(build), build)
}

// runChatMemoryTests exercises the behavior every ChatMemory must share.
func runChatMemoryTests(t *testing.T, newStore factory) {
	ctx := context.Background()

	t.Run("add and get preserve order", func(t *testing.T) {
		s := newStore(t, Options{})

		require.NoError(t, s.Add(ctx, "api", []contracts.Message{
			user("first", 1),
			contracts.AssistantMessage("second", contracts.WithBuildNumber(1)),
			user("third", 2),
		}))

		got, err := s.Get(ctx, "api", 10)
		require.NoError(t, err)
		require.Len(t, got, 3)

		assert.Equal(t, "first", got[0].Content)
		assert.Equal(t, contracts.RoleAssistant, got[1].Role)
		assert.Equal(t, "third", got[2].Content)
		assert.Equal(t, 2, got[2].BuildNumber)
		assert.Equal(t, 2, got[2].Metadata.BuildNumberOrZero())

		for i, m := range got {
			assert.NotEmpty(t, m.ID)
			assert.Equal(t, "api", m.ConversationID)
			if i > 0 {
				assert.True(t, m.Timestamp.After(got[i-1].Timestamp), "timestamps must strictly increase")
			}
		}
	})

	t.Run("get returns the last N", func(t *testing.T) {
		s := newStore(t, Options{})
		for i := 1; i <= 5; i++ {
			require.NoError(t, s.Add(ctx, "api", []contracts.Message{user(fmt.Sprintf("m%d", i), i)}))
		}

		got, err := s.Get(ctx, "api", 2)
		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.Equal(t, "m4", got[0].Content)
		assert.Equal(t, "m5", got[1].Content)

		none, err := s.Get(ctx, "api", 0)
		require.NoError(t, err)
		assert.Empty(t, none)

		unknown, err := s.Get(ctx, "nobody", 10)
		require.NoError(t, err)
		assert.Empty(t, unknown)
	})

	t.Run("system messages are filtered after the limit", func(t *testing.T) {
		s := newStore(t, Options{})
		require.NoError(t, s.Add(ctx, "api", []contracts.Message{
			user("question", 1),
			contracts.AssistantMessage("answer", contracts.WithBuildNumber(1)),
			contracts.NewMessage(contracts.RoleSystem, "internal note", contracts.WithBuildNumber(1)),
		}))

		all, err := s.Get(ctx, "api", 10)
		require.NoError(t, err)
		require.Len(t, all, 2)
		for _, m := range all {
			assert.NotEqual(t, contracts.RoleSystem, m.Role)
		}

		last, err := s.Get(ctx, "api", 1)
		require.NoError(t, err)
		assert.Empty(t, last, "the most recent message is SYSTEM so nothing is returned")

		count, err := s.Count(ctx, "api")
		require.NoError(t, err)
		assert.Equal(t, 3, count)
	})

	t.Run("empty batch is a logged no-op", func(t *testing.T) {
		rec := logger.NewRecorder()
		s := newStore(t, Options{Logger: rec})

		require.NoError(t, s.Add(ctx, "api", nil))

		count, err := s.Count(ctx, "api")
		require.NoError(t, err)
		assert.Zero(t, count)
		assert.True(t, rec.Contains("info", "No messages to add"))
	})

	t.Run("empty conversation id is rejected", func(t *testing.T) {
		s := newStore(t, Options{})

		err := s.Add(ctx, "", []contracts.Message{user("x", 1)})
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrNilConversationID)

		var pe *PreconditionError
		require.True(t, errors.As(err, &pe))
		assert.Equal(t, "add", pe.Op)

		_, err = s.Get(ctx, "", 10)
		assert.ErrorIs(t, err, ErrNilConversationID)
		assert.ErrorIs(t, s.Clear(ctx, ""), ErrNilConversationID)
		_, err = s.HasTwoBuildLogs(ctx, "", 1)
		assert.ErrorIs(t, err, ErrNilConversationID)
	})

	t.Run("messages without content are skipped", func(t *testing.T) {
		rec := logger.NewRecorder()
		s := newStore(t, Options{Logger: rec})

		require.NoError(t, s.Add(ctx, "api", []contracts.Message{
			{Role: contracts.RoleUser},
			user("kept", 1),
		}))

		got, err := s.Get(ctx, "api", 10)
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "kept", got[0].Content)
		assert.True(t, rec.Contains("warn", "content is missing"))
	})

	t.Run("intentionally empty content is stored", func(t *testing.T) {
		s := newStore(t, Options{})
		require.NoError(t, s.Add(ctx, "api", []contracts.Message{user("", 1)}))

		got, err := s.Get(ctx, "api", 10)
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "", got[0].Content)
	})

	t.Run("oversized content is truncated", func(t *testing.T) {
		rec := logger.NewRecorder()
		s := newStore(t, Options{Logger: rec, MaxContentLength: 10})

		require.NoError(t, s.Add(ctx, "api", []contracts.Message{user(strings.Repeat("é", 15), 1)}))

		got, err := s.Get(ctx, "api", 1)
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, strings.Repeat("é", 10), got[0].Content)
		assert.True(t, rec.Contains("warn", "from 15 to 10 characters"))
	})

	t.Run("content at the cap is untouched", func(t *testing.T) {
		rec := logger.NewRecorder()
		s := newStore(t, Options{Logger: rec, MaxContentLength: 10})

		require.NoError(t, s.Add(ctx, "api", []contracts.Message{user(strings.Repeat("a", 10), 1)}))

		got, err := s.Get(ctx, "api", 1)
		require.NoError(t, err)
		assert.Len(t, got[0].Content, 10)
		assert.Empty(t, rec.Entries("warn"))
	})

	t.Run("negative build number in metadata is stored as zero", func(t *testing.T) {
		rec := logger.NewRecorder()
		s := newStore(t, Options{Logger: rec})

		require.NoError(t, s.Add(ctx, "api", []contracts.Message{user("x", -4)}))

		got, err := s.Get(ctx, "api", 1)
		require.NoError(t, err)
		assert.Equal(t, 0, got[0].BuildNumber)
		assert.True(t, rec.Contains("warn", "Negative build number"))
	})

	t.Run("clear removes only the target conversation", func(t *testing.T) {
		s := newStore(t, Options{})
		require.NoError(t, s.Add(ctx, "api", []contracts.Message{user("a", 1)}))
		require.NoError(t, s.Add(ctx, "web", []contracts.Message{user("b", 1)}))

		ids, err := s.ConversationIDs(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"api", "web"}, ids)

		require.NoError(t, s.Clear(ctx, "api"))
		require.NoError(t, s.Clear(ctx, "never-existed"))

		got, err := s.Get(ctx, "api", 10)
		require.NoError(t, err)
		assert.Empty(t, got)

		got, err = s.Get(ctx, "web", 10)
		require.NoError(t, err)
		assert.Len(t, got, 1)

		ids, err = s.ConversationIDs(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"web"}, ids)
	})

	t.Run("has two build logs", func(t *testing.T) {
		tests := []struct {
			name      string
			buildLogs int
			want      bool
		}{
			{"none", 0, false},
			{"one", 1, false},
			{"two", 2, true},
			{"three", 3, false},
		}

		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				s := newStore(t, Options{})

				msgs := []contracts.Message{user("type: code_changes\nJob: api", 7)}
				for i := 0; i < tt.buildLogs; i++ {
					msgs = append(msgs, buildLogMessage(7))
				}
				// Build logs of another build never count
				msgs = append(msgs, buildLogMessage(8))
				require.NoError(t, s.Add(ctx, "api", msgs))

				got, err := s.HasTwoBuildLogs(ctx, "api", 7)
				require.NoError(t, err)
				assert.Equal(t, tt.want, got)
			})
		}
	})

	t.Run("has two build logs matches the tag literally", func(t *testing.T) {
		s := newStore(t, Options{})

		require.NoError(t, s.Add(ctx, "api", []contracts.Message{
			buildLogMessage(7),
			user("type: BUILD_LOG_DATA\nJob: api", 7),
			user("type: buildXlogXdata\nJob: api", 7),
		}))

		got, err := s.HasTwoBuildLogs(ctx, "api", 7)
		require.NoError(t, err)
		assert.False(t, got, "only exact build_log_data tags count")

		require.NoError(t, s.Add(ctx, "api", []contracts.Message{buildLogMessage(7)}))
		got, err = s.HasTwoBuildLogs(ctx, "api", 7)
		require.NoError(t, err)
		assert.True(t, got)
	})

	t.Run("has two build logs rejects negative build numbers", func(t *testing.T) {
		s := newStore(t, Options{})
		_, err := s.HasTwoBuildLogs(ctx, "api", -1)
		assert.ErrorIs(t, err, ErrNegativeBuildNumber)
	})

	t.Run("prune keeps the most recent messages", func(t *testing.T) {
		s := newStore(t, Options{})
		for i := 1; i <= 5; i++ {
			require.NoError(t, s.Add(ctx, "api", []contracts.Message{user(fmt.Sprintf("m%d", i), i)}))
		}

		removed, err := s.Prune(ctx, "api", 2)
		require.NoError(t, err)
		assert.Equal(t, 3, removed)

		got, err := s.Get(ctx, "api", 10)
		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.Equal(t, "m4", got[0].Content)
		assert.Equal(t, "m5", got[1].Content)

		removed, err = s.Prune(ctx, "api", 10)
		require.NoError(t, err)
		assert.Zero(t, removed)

		_, err = s.Prune(ctx, "api", 0)
		assert.ErrorIs(t, err, ErrInvalidRetention)
	})

	t.Run("full size content is capped at ten million characters", func(t *testing.T) {
		if testing.Short() {
			t.Skip("skipping large payload in short mode")
		}
		rec := logger.NewRecorder()
		s := newStore(t, Options{Logger: rec})

		require.NoError(t, s.Add(ctx, "big", []contracts.Message{user(strings.Repeat("a", 11_000_000), 1)}))

		got, err := s.Get(ctx, "big", 1)
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Len(t, got[0].Content, DefaultMaxContentLength)
		assert.True(t, rec.Contains("warn", "from 11000000 to 10000000 characters"))
	})
}
