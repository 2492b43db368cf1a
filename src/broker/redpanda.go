package broker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"

	"jenkins-memory-agent/src/logger"
)

const (
	clientID = "jenkins-memory-agent"

	// Compressed build logs can reach several MB per record.
	maxProduceBatchBytes = 16 << 20
	maxFetchBytes        = 64 << 20

	redpandaSubscriberBuffer = 100
)

// RedpandaBroker is a Kafka-compatible broker backed by franz-go. One
// producer client is shared; every subscription gets its own consumer
// client, released when the subscription's context ends.
type RedpandaBroker struct {
	brokers  []string
	producer *kgo.Client
	logger   logger.Logger

	mu        sync.Mutex
	consumers map[string]*kgo.Client // consumerKey -> client
	closed    bool
}

// NewRedpandaBroker creates a broker for the given seed addresses
// (e.g. ["localhost:19092"]). No connection is made until first use.
func NewRedpandaBroker(brokers []string, log logger.Logger) (*RedpandaBroker, error) {
	if len(brokers) == 0 {
		return nil, fmt.Errorf("at least one broker address is required")
	}
	if log == nil {
		log = logger.NewSilentLogger()
	}

	producer, err := kgo.NewClient(producerOpts(brokers)...)
	if err != nil {
		return nil, fmt.Errorf("failed to create Kafka client: %w", err)
	}

	return &RedpandaBroker{
		brokers:   brokers,
		producer:  producer,
		logger:    log,
		consumers: make(map[string]*kgo.Client),
	}, nil
}

// Records are keyed by job name and the default partitioner hashes the key,
// so all records of a build land on one partition in publish order.
func producerOpts(brokers []string) []kgo.Opt {
	return []kgo.Opt{
		kgo.SeedBrokers(brokers...),
		kgo.ClientID(clientID),
		kgo.AllowAutoTopicCreation(),
		kgo.ProducerBatchMaxBytes(maxProduceBatchBytes),
	}
}

// consumerOpts starts new groups from the beginning of the topic so a fresh
// agent replays history it has not stored yet.
func consumerOpts(brokers []string, topic, groupID string) []kgo.Opt {
	return []kgo.Opt{
		kgo.SeedBrokers(brokers...),
		kgo.ClientID(clientID),
		kgo.ConsumerGroup(groupID),
		kgo.ConsumeTopics(topic),
		kgo.ConsumeResetOffset(kgo.NewOffset().AtStart()),
		kgo.FetchMaxBytes(maxFetchBytes),
	}
}

func consumerKey(topic, groupID string) string {
	return topic + ":" + groupID
}

// Publish produces one record synchronously.
func (b *RedpandaBroker) Publish(ctx context.Context, topic string, key string, value []byte) error {
	b.mu.Lock()
	closed := b.closed
	b.mu.Unlock()
	if closed {
		return ErrClosed
	}

	record := &kgo.Record{
		Topic:     topic,
		Key:       []byte(key),
		Value:     value,
		Timestamp: time.Now(),
	}
	if err := b.producer.ProduceSync(ctx, record).FirstErr(); err != nil {
		return fmt.Errorf("failed to produce to %s: %w", topic, err)
	}
	return nil
}

// Subscribe joins groupID on topic. Only one subscription per topic and
// group may be active in a broker; the channel closes when ctx ends or the
// broker is closed.
func (b *RedpandaBroker) Subscribe(ctx context.Context, topic string, groupID string) (<-chan Message, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil, ErrClosed
	}

	key := consumerKey(topic, groupID)
	if _, exists := b.consumers[key]; exists {
		return nil, fmt.Errorf("consumer already exists for topic %s and group %s", topic, groupID)
	}

	consumer, err := kgo.NewClient(consumerOpts(b.brokers, topic, groupID)...)
	if err != nil {
		return nil, fmt.Errorf("failed to create consumer: %w", err)
	}
	b.consumers[key] = consumer
	b.logger.Info("[RedpandaBroker] Subscribed to %s as group %s", topic, groupID)

	msgChan := make(chan Message, redpandaSubscriberBuffer)
	go b.consume(ctx, key, consumer, msgChan)

	return msgChan, nil
}

// consume polls until ctx ends or the client is closed, then releases the
// consumer.
func (b *RedpandaBroker) consume(ctx context.Context, key string, consumer *kgo.Client, msgChan chan<- Message) {
	defer close(msgChan)
	defer b.release(key, consumer)

	for ctx.Err() == nil {
		fetches := consumer.PollFetches(ctx)
		if fetches.IsClientClosed() {
			return
		}

		for _, fe := range fetches.Errors() {
			if ctx.Err() != nil {
				return
			}
			b.logger.Error("[RedpandaBroker] Fetch error on %s/%d: %v", fe.Topic, fe.Partition, fe.Err)
		}

		iter := fetches.RecordIter()
		for !iter.Done() {
			select {
			case msgChan <- toMessage(iter.Next()):
			case <-ctx.Done():
				return
			}
		}
	}
}

// release forgets the consumer so the group can subscribe again. Consumers
// already taken by Close are closed there.
func (b *RedpandaBroker) release(key string, consumer *kgo.Client) {
	b.mu.Lock()
	owned := b.consumers[key] == consumer
	if owned {
		delete(b.consumers, key)
	}
	b.mu.Unlock()

	if owned {
		consumer.Close()
	}
}

func toMessage(r *kgo.Record) Message {
	return Message{
		Topic:     r.Topic,
		Key:       string(r.Key),
		Value:     r.Value,
		Offset:    r.Offset,
		Partition: r.Partition,
		Timestamp: r.Timestamp.UnixMilli(),
	}
}

// Close shuts down the producer and every consumer. It is safe to call
// more than once.
func (b *RedpandaBroker) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	consumers := b.consumers
	b.consumers = make(map[string]*kgo.Client)
	b.mu.Unlock()

	for _, consumer := range consumers {
		consumer.Close()
	}
	b.producer.Close()
	return nil
}
