// Package jsonl writes DeepAR records as JSON Lines datasets.
package jsonl

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/couchcryptid/gauge-forecast-etl/internal/domain"
)

// WriteDataset appends one record per segment to destination, creating the
// file if needed. Records keep their whole target.
func WriteDataset(segments []domain.Series, targetCol, destination string, cat *string) error {
	records, err := domain.EncodeAll(segments, targetCol, domain.EncodeOptions{Cat: cat})
	if err != nil {
		return err
	}
	return appendRecords(destination, records)
}

// Writer appends each batch of segments to a JSON Lines file.
// It implements pipeline.BatchLoader.
type Writer struct {
	path             string
	targetCol        string
	predictionLength int
	cat              *string
	stationCategory  bool
}

// Option configures a Writer.
type Option func(*Writer)

// WithPredictionLength holds back the last n target values of every record.
func WithPredictionLength(n int) Option {
	return func(w *Writer) { w.predictionLength = n }
}

// WithCategory writes cat on every record instead of the batch group.
func WithCategory(cat string) Option {
	return func(w *Writer) { w.cat = &cat }
}

// WithStationCategory writes the batch group as the category of its records.
func WithStationCategory() Option {
	return func(w *Writer) { w.stationCategory = true }
}

// NewWriter creates a Writer appending to path.
func NewWriter(path, targetCol string, opts ...Option) *Writer {
	w := &Writer{path: path, targetCol: targetCol}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Path returns the destination file.
func (w *Writer) Path() string {
	return w.path
}

// LoadBatch encodes the batch and appends one line per segment.
func (w *Writer) LoadBatch(ctx context.Context, batch domain.Batch) error {
	if len(batch.Segments) == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	cat := w.cat
	if cat == nil && w.stationCategory {
		cat = batch.Category()
	}
	records, err := domain.EncodeAll(batch.Segments, w.targetCol, domain.EncodeOptions{
		PredictionLength: w.predictionLength,
		Cat:              cat,
	})
	if err != nil {
		return fmt.Errorf("encode %s: %w", batch.Group, err)
	}
	return appendRecords(w.path, records)
}

func appendRecords(path string, records []domain.Record) error {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open dataset %s: %w", path, err)
	}

	bw := bufio.NewWriter(f)
	enc := json.NewEncoder(bw)
	for i := range records {
		// Encode terminates every value with '\n'.
		if err := enc.Encode(records[i]); err != nil {
			_ = f.Close()
			return fmt.Errorf("write record %d to %s: %w", i, path, err)
		}
	}
	if err := bw.Flush(); err != nil {
		_ = f.Close()
		return fmt.Errorf("flush %s: %w", path, err)
	}
	return f.Close()
}
