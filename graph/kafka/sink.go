// Copyright 2025 Vectral Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


// Package kafka publishes provenance edges to a Kafka topic as JSON
// events, keyed by source node so all edges of one document land on the
// same partition.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/vectral/normpipe/graph"
)

// DefaultTopic is the edge event topic.
const DefaultTopic = "normpipe.graph.edges"

// Sink implements graph.Sink over a Kafka writer.
type Sink struct {
	writer *kafka.Writer
	logger *slog.Logger
}

var _ graph.Sink = (*Sink)(nil)

// NewSink creates a sink publishing to topic on the given brokers.
func NewSink(brokers []string, topic string) (*Sink, error) {
	if len(brokers) == 0 {
		return nil, fmt.Errorf("at least one broker required")
	}
	if topic == "" {
		topic = DefaultTopic
	}

	w := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		BatchSize:    100,
		BatchTimeout: 10 * time.Millisecond,
		MaxAttempts:  3,
		RequiredAcks: kafka.RequireAll,
		Async:        false,
	}
	return &Sink{
		writer: w,
		logger: slog.Default().With("component", "kafka-sink", "topic", topic),
	}, nil
}

// InsertEdges publishes the edges in a single write call.
func (s *Sink) InsertEdges(ctx context.Context, edges []graph.Edge) error {
	messages := make([]kafka.Message, 0, len(edges))
	for _, edge := range edges {
		value, err := json.Marshal(edge)
		if err != nil {
			return fmt.Errorf("marshaling edge: %w", err)
		}
		messages = append(messages, kafka.Message{
			Key:   []byte(edge.From),
			Value: value,
		})
	}

	if err := s.writer.WriteMessages(ctx, messages...); err != nil {
		s.logger.Error("failed to publish edges", "count", len(messages), "error", err)
		return fmt.Errorf("publishing edges: %w", err)
	}
	s.logger.Debug("edges published", "count", len(messages))
	return nil
}

// Close flushes pending writes and closes the writer.
func (s *Sink) Close() error {
	return s.writer.Close()
}
