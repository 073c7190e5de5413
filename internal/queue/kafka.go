package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"time"

	"github.com/segmentio/kafka-go"
)

// publishBatchTimeout bounds how long a synchronous publish waits for more
// messages to join its batch. Readings and alerts are published one at a time.
const publishBatchTimeout = 10 * time.Millisecond

// Producer publishes keyed records to one topic. Records with the same key
// (a location id) land on the same partition and stay in order.
type Producer struct {
	writer *kafka.Writer
	topic  string
}

// NewProducer creates a synchronous producer for topic
func NewProducer(brokers []string, topic string) *Producer {
	return &Producer{
		topic: topic,
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireOne,
			BatchTimeout: publishBatchTimeout,
		},
	}
}

// Publish writes one record and waits for the broker to acknowledge it
func (p *Producer) Publish(ctx context.Context, key string, value []byte) error {
	err := p.writer.WriteMessages(ctx, kafka.Message{Key: []byte(key), Value: value})
	if err != nil {
		return fmt.Errorf("failed to publish to %s (key %s): %w", p.topic, key, err)
	}
	return nil
}

func (p *Producer) Close() error {
	return p.writer.Close()
}

// Consumer reads one topic as a member of a consumer group. Offsets are
// committed only through Commit, after a record has been handled.
type Consumer struct {
	reader *kafka.Reader
	topic  string
	group  string
}

// NewConsumer joins group on topic. A group with no committed offset starts
// from the oldest retained record, so a replay re-runs idempotent handlers.
func NewConsumer(brokers []string, topic, group string) *Consumer {
	return &Consumer{
		topic: topic,
		group: group,
		reader: kafka.NewReader(kafka.ReaderConfig{
			Brokers:        brokers,
			Topic:          topic,
			GroupID:        group,
			MinBytes:       1,
			MaxBytes:       10e6,
			MaxWait:        time.Second,
			CommitInterval: 0,
			StartOffset:    kafka.FirstOffset,
		}),
	}
}

// Consume blocks until the next record arrives or ctx is done
func (c *Consumer) Consume(ctx context.Context) (kafka.Message, error) {
	msg, err := c.reader.FetchMessage(ctx)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("failed to fetch from %s: %w", c.topic, err)
	}
	return msg, nil
}

// Commit marks msg and everything before it on its partition as handled
func (c *Consumer) Commit(ctx context.Context, msg kafka.Message) error {
	if err := c.reader.CommitMessages(ctx, msg); err != nil {
		return fmt.Errorf("failed to commit %s[%d]@%d: %w", c.topic, msg.Partition, msg.Offset, err)
	}
	return nil
}

func (c *Consumer) Close() error {
	return c.reader.Close()
}

// ConsumerStats is a snapshot of consumer progress. Counters cover the
// period since the previous snapshot.
type ConsumerStats struct {
	Topic      string `json:"topic"`
	Group      string `json:"group"`
	Messages   int64  `json:"messages"`
	Errors     int64  `json:"errors"`
	Rebalances int64  `json:"rebalances"`
	Lag        int64  `json:"lag"`
}

func consumerStats(topic, group string, s kafka.ReaderStats) ConsumerStats {
	return ConsumerStats{
		Topic:      topic,
		Group:      group,
		Messages:   s.Messages,
		Errors:     s.Errors,
		Rebalances: s.Rebalances,
		Lag:        s.Lag,
	}
}

// Stats takes a snapshot and resets the reader's counters
func (c *Consumer) Stats() ConsumerStats {
	return consumerStats(c.topic, c.group, c.reader.Stats())
}

// ReportStats logs a snapshot every interval until ctx is done. A growing
// lag means the handlers are falling behind the producers.
func (c *Consumer) ReportStats(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s := c.Stats()
			slog.Info("consumer stats",
				"topic", s.Topic,
				"group", s.Group,
				"messages", s.Messages,
				"errors", s.Errors,
				"rebalances", s.Rebalances,
				"lag", s.Lag)
		}
	}
}

// EnsureTopics creates any missing topics through the cluster controller.
// Brokers are tried in order until one answers.
func EnsureTopics(ctx context.Context, brokers []string, numPartitions, replicationFactor int, topics ...string) error {
	if len(brokers) == 0 {
		return errors.New("no kafka brokers configured")
	}

	var (
		conn    *kafka.Conn
		dialErr error
	)
	for _, broker := range brokers {
		conn, dialErr = kafka.DialContext(ctx, "tcp", broker)
		if dialErr == nil {
			break
		}
		slog.Warn("kafka broker unreachable", "broker", broker, "error", dialErr)
	}
	if dialErr != nil {
		return fmt.Errorf("failed to dial any broker: %w", dialErr)
	}
	defer conn.Close()

	controller, err := conn.Controller()
	if err != nil {
		return fmt.Errorf("failed to find controller: %w", err)
	}
	addr := net.JoinHostPort(controller.Host, strconv.Itoa(controller.Port))
	controllerConn, err := kafka.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to dial controller %s: %w", addr, err)
	}
	defer controllerConn.Close()

	configs := make([]kafka.TopicConfig, len(topics))
	for i, topic := range topics {
		configs[i] = kafka.TopicConfig{
			Topic:             topic,
			NumPartitions:     numPartitions,
			ReplicationFactor: replicationFactor,
		}
	}
	if err := controllerConn.CreateTopics(configs...); err != nil && !errors.Is(err, kafka.TopicAlreadyExists) {
		return fmt.Errorf("failed to create topics %v: %w", topics, err)
	}

	slog.Info("kafka topics ready", "topics", topics, "partitions", numPartitions)
	return nil
}
