package events

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/segmentio/kafka-go"
)

// Sink delivers serialized events to an external system.
type Sink interface {
	Name() string
	Send(ctx context.Context, event Event) error
}

// KafkaSink writes events to a Kafka topic keyed by ticket id.
type KafkaSink struct {
	writer *kafka.Writer
	topic  string
}

// NewKafkaSink creates the sink. It returns nil when brokers or topic are empty.
func NewKafkaSink(brokers []string, topic string) *KafkaSink {
	if len(brokers) == 0 || topic == "" {
		return nil
	}
	return &KafkaSink{
		topic: topic,
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			BatchTimeout: 10 * time.Millisecond,
			RequiredAcks: kafka.RequireOne,
		},
	}
}

func (k *KafkaSink) Name() string {
	return "kafka:" + k.topic
}

func (k *KafkaSink) Send(ctx context.Context, event Event) error {
	body, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return k.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(event.TicketID),
		Value: body,
		Time:  event.Timestamp,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(event.Type)},
		},
	})
}

// Close flushes pending writes.
func (k *KafkaSink) Close() error {
	if k == nil || k.writer == nil {
		return nil
	}
	return k.writer.Close()
}

// Publisher is the pub/sub subset of a Redis client.
type Publisher interface {
	Publish(ctx context.Context, channel string, payload []byte) error
}

// RedisSink publishes events on a Redis channel for live dashboards.
type RedisSink struct {
	publisher Publisher
	channel   string
}

// NewRedisSink creates the sink. It returns nil when no publisher or channel is configured.
func NewRedisSink(publisher Publisher, channel string) *RedisSink {
	if publisher == nil || channel == "" {
		return nil
	}
	return &RedisSink{publisher: publisher, channel: channel}
}

func (r *RedisSink) Name() string {
	return "redis:" + r.channel
}

func (r *RedisSink) Send(ctx context.Context, event Event) error {
	if r.publisher == nil {
		return errors.New("redis publisher not configured")
	}
	body, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return r.publisher.Publish(ctx, r.channel, body)
}
