package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/couchcryptid/gauge-forecast-etl/internal/config"
	"github.com/couchcryptid/gauge-forecast-etl/internal/domain"
	kafkago "github.com/segmentio/kafka-go"
)

// messageWriter is the part of kafkago.Writer the sink uses.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// Writer publishes encoded records to a Kafka topic, one message per segment.
// It implements pipeline.BatchLoader.
type Writer struct {
	writer       messageWriter
	targetColumn string
	withCategory bool
	logger       *slog.Logger
}

// NewWriter creates a Kafka producer for the configured record topic.
func NewWriter(cfg *config.Config, logger *slog.Logger) *Writer {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(cfg.KafkaBrokers...),
		Topic:        cfg.KafkaTopic,
		Balancer:     &kafkago.Hash{},
		RequiredAcks: kafkago.RequireAll,
	}
	return &Writer{
		writer:       w,
		targetColumn: cfg.TargetColumn,
		withCategory: cfg.CategoryFromStation,
		logger:       logger,
	}
}

// LoadBatch encodes every segment of the batch and publishes them in a single
// WriteMessages call. Messages of one station share a partition.
func (w *Writer) LoadBatch(ctx context.Context, batch domain.Batch) error {
	if len(batch.Segments) == 0 {
		return nil
	}
	var cat *string
	if w.withCategory {
		cat = batch.Category()
	}
	records, err := domain.EncodeAll(batch.Segments, w.targetColumn, domain.EncodeOptions{Cat: cat})
	if err != nil {
		return fmt.Errorf("encode %s: %w", batch.Group, err)
	}

	msgs := make([]kafkago.Message, len(records))
	for i := range records {
		msg, err := serializeToMessage(batch.Group, records[i])
		if err != nil {
			return err
		}
		msgs[i] = msg
	}
	if err := w.writer.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("publish %d records for %s: %w", len(msgs), batch.Group, err)
	}
	w.logger.Debug("records published", "station", batch.Group, "count", len(msgs))
	return nil
}

func (w *Writer) Close() error {
	return w.writer.Close()
}

// serializeToMessage marshals a Record into a Kafka message keyed by station and start.
func serializeToMessage(group string, rec domain.Record) (kafkago.Message, error) {
	data, err := json.Marshal(rec)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize record: %w", err)
	}
	return kafkago.Message{
		Key:   []byte(group + "-" + rec.Start),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "station", Value: []byte(group)},
			{Key: "start", Value: []byte(rec.Start)},
		},
	}, nil
}
