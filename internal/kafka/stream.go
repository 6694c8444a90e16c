package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// streamRecord is the wire shape of one record on the notification
// stream.
type streamRecord struct {
	Event     string          `json:"event"`
	Data      json.RawMessage `json:"data"`
	Timestamp int64           `json:"timestamp"`
}

// Publisher writes coordinator events onto the notification stream so
// downstream consumers (push gateways, audit) can react to them.
type Publisher struct {
	producer MessageProducer
	topic    string
}

// NewPublisher creates a Publisher on top of an existing producer.
func NewPublisher(producer MessageProducer, topic string) *Publisher {
	return &Publisher{producer: producer, topic: topic}
}

// Publish marshals the payload and sends it to the notification topic.
// The key should identify the affected user or conversation so related
// events land in order on the same partition.
func (p *Publisher) Publish(ctx context.Context, name string, key string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload for stream event %s: %w", name, err)
	}
	record := streamRecord{
		Event:     name,
		Data:      data,
		Timestamp: time.Now().UnixMilli(),
	}
	value, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal stream record for event %s: %w", name, err)
	}
	return p.producer.SendMessage(ctx, p.topic, []byte(key), value)
}
