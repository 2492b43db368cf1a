package store

import (
	"crypto/rand"
	"io"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/oklog/ulid/v2"

	"jenkins-memory-agent/src/contracts"
	"jenkins-memory-agent/src/logger"
	"jenkins-memory-agent/src/metrics"
)

// Options configures a store.
type Options struct {
	// MaxContentLength caps content in characters. Zero means DefaultMaxContentLength.
	MaxContentLength int
	Logger           logger.Logger
	Metrics          *metrics.Metrics
	// Now overrides the wall clock, for tests.
	Now func() time.Time
}

// writer holds the write path shared by every ChatMemory implementation:
// id and timestamp assignment, truncation and build number resolution.
type writer struct {
	maxLen  int
	log     logger.Logger
	metrics *metrics.Metrics

	mu      sync.Mutex
	now     func() time.Time
	last    time.Time
	entropy io.Reader
}

func newWriter(opts Options) *writer {
	w := &writer{
		maxLen:  opts.MaxContentLength,
		log:     opts.Logger,
		metrics: opts.Metrics,
		now:     opts.Now,
		entropy: ulid.Monotonic(rand.Reader, 0),
	}
	if w.maxLen <= 0 {
		w.maxLen = DefaultMaxContentLength
	}
	if w.log == nil {
		w.log = logger.NewSilentLogger()
	}
	if w.now == nil {
		w.now = time.Now
	}
	return w
}

// stamp returns a strictly increasing timestamp and a ULID derived from it.
func (w *writer) stamp() (time.Time, string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	ts := w.now().UTC()
	if !ts.After(w.last) {
		ts = w.last.Add(time.Nanosecond)
	}
	w.last = ts

	return ts, ulid.MustNew(ulid.Timestamp(ts), w.entropy).String()
}

// prepare turns caller messages into rows ready to insert. Messages without
// content are dropped with a warning.
func (w *writer) prepare(conversationID string, messages []contracts.Message) []contracts.Message {
	rows := make([]contracts.Message, 0, len(messages))

	for i, m := range messages {
		if !m.ContentSet {
			w.log.Warn("[ChatMemory] Skipping message %d for conversation %s: content is missing", i, conversationID)
			w.metrics.RecordSkipped()
			continue
		}

		content, original, truncated := truncate(m.Content, w.maxLen)
		if truncated {
			w.log.Warn("[ChatMemory] Truncated message content for conversation %s from %d to %d characters",
				conversationID, original, w.maxLen)
			w.metrics.RecordTruncation()
		}

		build := w.buildNumber(conversationID, m)
		meta := contracts.Metadata{
			BuildNumber: &build,
			Attributes:  copyAttributes(m.Metadata.Attributes),
		}

		ts, id := w.stamp()
		rows = append(rows, contracts.Message{
			ID:             id,
			ConversationID: conversationID,
			BuildNumber:    build,
			Role:           m.Role,
			Content:        content,
			ContentSet:     true,
			Timestamp:      ts,
			Metadata:       meta,
		})
	}

	return rows
}

func (w *writer) buildNumber(conversationID string, m contracts.Message) int {
	n := m.BuildNumber
	if m.Metadata.BuildNumber != nil {
		n = *m.Metadata.BuildNumber
	}
	if n < 0 {
		w.log.Warn("[ChatMemory] Negative build number %d for conversation %s, storing 0", n, conversationID)
		return 0
	}
	return n
}

// truncate cuts s to at most max runes. It returns the original rune count
// when truncation happened.
func truncate(s string, max int) (string, int, bool) {
	if len(s) <= max {
		return s, len(s), false
	}
	n := utf8.RuneCountInString(s)
	if n <= max {
		return s, n, false
	}

	i := 0
	for idx := range s {
		if i == max {
			return s[:idx], n, true
		}
		i++
	}
	return s, n, false
}

func copyAttributes(in map[string]string) map[string]string {
	if len(in) == 0 {
		return nil
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
