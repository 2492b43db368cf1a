// Package broker defines the message broker used between Jenkins producers,
// the memory agent and the AI caller.
package broker

import (
	"context"
	"errors"
)

// ErrClosed is returned by operations on a closed broker.
var ErrClosed = errors.New("broker is closed")

// Broker abstracts message publishing and consumption.
// Implemented in-memory for local mode and tests, and by Redpanda/Kafka in production.
type Broker interface {
	// Publish sends a message to a topic. The key selects the partition on
	// Redpanda; the in-memory broker carries it through unchanged.
	Publish(ctx context.Context, topic string, key string, value []byte) error

	// Subscribe returns a channel of messages from a topic. The channel is
	// closed when ctx is done or the broker is closed.
	// groupID is used for consumer group coordination in Kafka.
	Subscribe(ctx context.Context, topic string, groupID string) (<-chan Message, error)

	// Close shuts down the broker connection gracefully.
	Close() error
}

// Message represents a consumed message from a broker.
type Message struct {
	Topic     string
	Key       string
	Value     []byte
	Offset    int64
	Partition int32
	Timestamp int64 // unix millis
}
