// Package parquet exports kept segments to a Parquet file in long format, one
// row per reading, for inspection with DuckDB, pandas or Spark.
package parquet

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/couchcryptid/gauge-forecast-etl/internal/domain"
	"github.com/parquet-go/parquet-go"
)

// SegmentRow is one reading of one column of one kept segment.
type SegmentRow struct {
	// Station is the archive group the segment came from.
	Station string `parquet:"station,snappy,dict"`

	// Segment numbers the kept segments of a station from 0 in time order.
	Segment int32 `parquet:"segment,snappy"`

	Timestamp time.Time `parquet:"timestamp,snappy"`
	Column    string    `parquet:"column,snappy,dict"`
	Value     float64   `parquet:"value,snappy"`
}

// Writer streams segment rows into a single Parquet file.
// It implements pipeline.BatchLoader; Close must be called to write the footer.
type Writer struct {
	mu     sync.Mutex
	file   *os.File
	writer *parquet.GenericWriter[SegmentRow]
	rows   int64
}

// NewWriter creates (or truncates) the file at path.
func NewWriter(path string) (*Writer, error) {
	file, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create parquet file: %w", err)
	}
	return &Writer{
		file:   file,
		writer: parquet.NewGenericWriter[SegmentRow](file),
	}, nil
}

// LoadBatch appends every reading of every segment in the batch.
func (w *Writer) LoadBatch(ctx context.Context, batch domain.Batch) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	rows := Rows(batch)
	if len(rows) == 0 {
		return nil
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	n, err := w.writer.Write(rows)
	w.rows += int64(n)
	if err != nil {
		return fmt.Errorf("write %s segments to parquet: %w", batch.Group, err)
	}
	return nil
}

// RowsWritten returns the number of rows written so far.
func (w *Writer) RowsWritten() int64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.rows
}

// Close flushes buffered rows, writes the footer and closes the file.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.writer.Close(); err != nil {
		_ = w.file.Close()
		return fmt.Errorf("close parquet writer: %w", err)
	}
	return w.file.Close()
}

// Rows flattens a batch into long-format rows ordered by segment, column, time.
func Rows(batch domain.Batch) []SegmentRow {
	var rows []SegmentRow
	for i, seg := range batch.Segments {
		for c, name := range seg.Columns {
			for r, ts := range seg.Index {
				rows = append(rows, SegmentRow{
					Station:   batch.Group,
					Segment:   int32(i),
					Timestamp: ts,
					Column:    name,
					Value:     seg.Values[c][r],
				})
			}
		}
	}
	return rows
}
