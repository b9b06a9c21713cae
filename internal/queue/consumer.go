package queue

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"sync"

	"github.com/segmentio/kafka-go"
)

// ConsumerConfig holds Kafka consumer configuration.
type ConsumerConfig struct {
	Brokers []string
	Topic   string
	GroupID string
	Buffer  int // channel capacity, default 1000
}

// messageReader is the part of kafka.Reader the consumer uses.
type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaConsumer streams journaled operations from Kafka. An offset is
// committed only after its delivery and every earlier one on the same
// partition are committed by the receiver, so delivery is at least once and
// receivers must tolerate duplicates.
type KafkaConsumer struct {
	reader  messageReader
	buffer  int
	logger  *log.Logger
	commits *pendingOffsets
}

// NewKafkaConsumer creates a consumer reading from the oldest uncommitted
// offset of its group.
func NewKafkaConsumer(config ConsumerConfig, logger *log.Logger) *KafkaConsumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        config.Brokers,
		Topic:          config.Topic,
		GroupID:        config.GroupID,
		MinBytes:       1,
		MaxBytes:       10e6,
		CommitInterval: 0, // explicit commits
		StartOffset:    kafka.FirstOffset,
	})
	return newKafkaConsumer(reader, config.Buffer, logger)
}

func newKafkaConsumer(reader messageReader, buffer int, logger *log.Logger) *KafkaConsumer {
	if buffer <= 0 {
		buffer = 1000
	}
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &KafkaConsumer{
		reader:  reader,
		buffer:  buffer,
		logger:  logger,
		commits: newPendingOffsets(),
	}
}

// Subscribe returns a channel of decoded operations. The channel is closed
// when ctx is done or the reader fails. Undecodable messages are skipped and
// count as committed.
func (c *KafkaConsumer) Subscribe(ctx context.Context) (<-chan Delivery, error) {
	ch := make(chan Delivery, c.buffer)

	go func() {
		defer close(ch)
		for {
			msg, err := c.reader.FetchMessage(ctx)
			if err != nil {
				if ctx.Err() == nil && !errors.Is(err, io.EOF) {
					c.logger.Printf("kafka fetch: %v", err)
				}
				return
			}
			m := c.commits.track(msg)

			op, err := DecodeMessage(msg)
			if err != nil {
				c.logger.Printf("skipping message at %d/%d: %v", msg.Partition, msg.Offset, err)
				if err := c.commit(ctx, m); err != nil && ctx.Err() == nil {
					c.logger.Printf("kafka commit: %v", err)
				}
				continue
			}

			d := NewDelivery(op, func(ctx context.Context) error { return c.commit(ctx, m) })
			select {
			case ch <- d:
			case <-ctx.Done():
				return
			}
		}
	}()

	return ch, nil
}

func (c *KafkaConsumer) commit(ctx context.Context, m *inflight) error {
	c.commits.mu.Lock()
	defer c.commits.mu.Unlock()

	last, ok := c.commits.ackLocked(m)
	if !ok {
		return nil
	}
	if err := c.reader.CommitMessages(ctx, last); err != nil {
		return fmt.Errorf("commit %d/%d: %w", last.Partition, last.Offset, err)
	}
	return nil
}

// Close closes the underlying reader.
func (c *KafkaConsumer) Close() error {
	if err := c.reader.Close(); err != nil {
		return fmt.Errorf("close kafka reader: %w", err)
	}
	return nil
}

// pendingOffsets tracks fetched messages per partition in fetch order.
type pendingOffsets struct {
	mu         sync.Mutex
	partitions map[int][]*inflight
}

type inflight struct {
	msg   kafka.Message
	acked bool
}

func newPendingOffsets() *pendingOffsets {
	return &pendingOffsets{partitions: make(map[int][]*inflight)}
}

func (p *pendingOffsets) track(msg kafka.Message) *inflight {
	p.mu.Lock()
	defer p.mu.Unlock()
	m := &inflight{msg: msg}
	p.partitions[msg.Partition] = append(p.partitions[msg.Partition], m)
	return m
}

// ackLocked marks m acknowledged. When that extends the acknowledged prefix
// of its partition, the prefix is dropped and its last message returned.
func (p *pendingOffsets) ackLocked(m *inflight) (kafka.Message, bool) {
	if m.acked {
		return kafka.Message{}, false
	}
	m.acked = true

	fetched := p.partitions[m.msg.Partition]
	n := 0
	for n < len(fetched) && fetched[n].acked {
		n++
	}
	if n == 0 {
		return kafka.Message{}, false
	}
	last := fetched[n-1].msg
	p.partitions[m.msg.Partition] = fetched[n:]
	return last, true
}
