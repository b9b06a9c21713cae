// Package queue publishes journaled operations to Kafka.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"reflection-token-lab/internal/api"
	"reflection-token-lab/internal/domain"
)

// KafkaConfig holds Kafka connection configuration.
type KafkaConfig struct {
	Brokers      []string
	Topic        string
	BatchTimeout time.Duration
}

// Publisher publishes committed operations.
type Publisher interface {
	Publish(ctx context.Context, op *domain.Operation) error
	Close() error
}

// messageWriter is the part of kafka.Writer the producer uses.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaProducer implements Publisher using Kafka.
type KafkaProducer struct {
	writer messageWriter
	now    func() time.Time
}

var _ Publisher = (*KafkaProducer)(nil)

// NewKafkaProducer creates a new Kafka producer.
func NewKafkaProducer(config KafkaConfig) *KafkaProducer {
	batchTimeout := config.BatchTimeout
	if batchTimeout <= 0 {
		batchTimeout = 10 * time.Millisecond
	}
	writer := &kafka.Writer{
		Addr:         kafka.TCP(config.Brokers...),
		Topic:        config.Topic,
		Balancer:     &kafka.Hash{}, // same sender, same partition
		RequiredAcks: kafka.RequireAll,
		BatchTimeout: batchTimeout,
	}
	return &KafkaProducer{writer: writer, now: time.Now}
}

// Publish sends op keyed by the account whose balance it debits, so a
// sender's operations stay ordered within one partition.
func (p *KafkaProducer) Publish(ctx context.Context, op *domain.Operation) error {
	msg, err := BuildMessage(op, p.now())
	if err != nil {
		return err
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("write kafka message: %w", err)
	}
	return nil
}

// Close closes the producer.
func (p *KafkaProducer) Close() error {
	return p.writer.Close()
}

// BuildMessage encodes op as a Kafka message.
func BuildMessage(op *domain.Operation, now time.Time) (kafka.Message, error) {
	data, err := json.Marshal(api.FromOperation(op))
	if err != nil {
		return kafka.Message{}, fmt.Errorf("marshal operation: %w", err)
	}
	return kafka.Message{
		Key:   []byte(PartitionKey(op).String()),
		Value: data,
		Time:  now,
		Headers: []kafka.Header{
			{Key: "kind", Value: []byte(op.Kind)},
			{Key: "operation_id", Value: []byte(op.OperationID)},
		},
	}, nil
}

// DecodeMessage is the inverse of BuildMessage.
func DecodeMessage(msg kafka.Message) (*domain.Operation, error) {
	var wire api.Operation
	if err := json.Unmarshal(msg.Value, &wire); err != nil {
		return nil, fmt.Errorf("unmarshal operation: %w", err)
	}
	return wire.ToDomain()
}

// PartitionKey is the sender for transfers and the caller otherwise.
func PartitionKey(op *domain.Operation) domain.Address {
	if op.Kind == domain.OperationTransfer {
		return op.From
	}
	return op.Caller
}
