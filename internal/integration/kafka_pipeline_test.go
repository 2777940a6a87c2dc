//go:build integration

package integration_test

import (
	"archive/zip"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/couchcryptid/gauge-forecast-etl/internal/adapter/archive"
	"github.com/couchcryptid/gauge-forecast-etl/internal/adapter/csvfile"
	"github.com/couchcryptid/gauge-forecast-etl/internal/adapter/kafka"
	"github.com/couchcryptid/gauge-forecast-etl/internal/config"
	"github.com/couchcryptid/gauge-forecast-etl/internal/domain"
	"github.com/couchcryptid/gauge-forecast-etl/internal/observability"
	"github.com/couchcryptid/gauge-forecast-etl/internal/pipeline"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tckafka "github.com/testcontainers/testcontainers-go/modules/kafka"
)

const testTopic = "test-records"

// publishedRecord holds a deserialized message read from the record topic.
type publishedRecord struct {
	Record  domain.Record
	Key     string
	Headers map[string]string
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func startKafka(ctx context.Context, t *testing.T) string {
	t.Helper()
	container, err := tckafka.Run(ctx, "confluentinc/confluent-local:7.5.0", tckafka.WithClusterID("gauge-etl-test"))
	testcontainers.CleanupContainer(t, container)
	require.NoError(t, err, "start kafka container")

	brokers, err := container.Brokers(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, brokers)
	return brokers[0]
}

func createTopic(t *testing.T, broker, topic string) {
	t.Helper()
	conn, err := kafkago.Dial("tcp", broker)
	require.NoError(t, err)
	defer conn.Close()

	controller, err := conn.Controller()
	require.NoError(t, err)
	ctrl, err := kafkago.Dial("tcp", net.JoinHostPort(controller.Host, strconv.Itoa(controller.Port)))
	require.NoError(t, err)
	defer ctrl.Close()

	require.NoError(t, ctrl.CreateTopics(kafkago.TopicConfig{
		Topic:             topic,
		NumPartitions:     1,
		ReplicationFactor: 1,
	}))
}

// readPublished reads n messages from the record topic.
func readPublished(ctx context.Context, t *testing.T, broker string, n int) []publishedRecord {
	t.Helper()
	consumer := kafkago.NewReader(kafkago.ReaderConfig{
		Brokers:     []string{broker},
		Topic:       testTopic,
		GroupID:     fmt.Sprintf("test-consumer-%d", time.Now().UnixNano()),
		StartOffset: kafkago.FirstOffset,
	})
	defer consumer.Close()

	readCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	out := make([]publishedRecord, 0, n)
	for len(out) < n {
		msg, err := consumer.ReadMessage(readCtx)
		require.NoError(t, err, "read from record topic")

		headers := make(map[string]string, len(msg.Headers))
		for _, h := range msg.Headers {
			headers[h.Key] = string(h.Value)
		}
		var rec domain.Record
		require.NoError(t, json.Unmarshal(msg.Value, &rec), "unmarshal record message")
		out = append(out, publishedRecord{Record: rec, Key: string(msg.Key), Headers: headers})
	}
	return out
}

func gaugeCSV(values []string) string {
	var b strings.Builder
	b.WriteString("Station,Test Gauge\nVariable,Mean\nInterval,1 hour\n")
	b.WriteString(`"Date and time","Mean","Quality"` + "\n")
	start := time.Date(2010, time.January, 1, 0, 0, 0, 0, time.UTC)
	for i, v := range values {
		quality := 10
		if v == "" {
			quality = 255
		}
		ts := start.Add(time.Duration(i) * time.Hour).Format("02/01/2006 15:04:05")
		fmt.Fprintf(&b, "%q,%q,%d\n", ts, v, quality)
	}
	b.WriteString("Total,\nGenerated by test\n")
	return b.String()
}

func writeArchive(t *testing.T, path string, files map[string]string) {
	t.Helper()
	f, err := os.Create(path)
	require.NoError(t, err)
	zw := zip.NewWriter(f)
	for name, content := range files {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	require.NoError(t, f.Close())
}

// TestKafkaWriter verifies the sink publishes one keyed message per segment.
func TestKafkaWriter(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 90*time.Second)
	defer cancel()

	broker := startKafka(ctx, t)
	createTopic(t, broker, testTopic)

	cfg := &config.Config{
		KafkaBrokers:        []string{broker},
		KafkaTopic:          testTopic,
		TargetColumn:        "flow_Mean",
		CategoryFromStation: true,
	}
	writer := kafka.NewWriter(cfg, discardLogger())
	t.Cleanup(func() { _ = writer.Close() })

	seg, err := domain.NewSeries(
		domain.Steps(time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC), time.Hour, 3),
		[]string{"flow_Mean", "rain_Mean"},
		[][]float64{{1.5, 2.5, 3.5}, {0, 0.4, 0.2}},
	)
	require.NoError(t, err)
	require.NoError(t, writer.LoadBatch(ctx, domain.Batch{Group: "station_1", Segments: []domain.Series{seg}}))

	got := readPublished(ctx, t, broker, 1)
	assert.Equal(t, "station_1-2024-01-01 00:00:00", got[0].Key)
	assert.Equal(t, "station_1", got[0].Headers["station"])
	assert.Equal(t, "2024-01-01 00:00:00", got[0].Headers["start"])
	assert.Equal(t, []float64{1.5, 2.5, 3.5}, got[0].Record.Target)
	assert.Equal(t, [][]float64{{0, 0.4, 0.2}}, got[0].Record.DynamicFeat)
	require.NotNil(t, got[0].Record.Cat)
	assert.Equal(t, "station_1", *got[0].Record.Cat)
}

// TestPipelineEndToEnd runs archives through the full pipeline into Kafka.
func TestPipelineEndToEnd(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 120*time.Second)
	defer cancel()

	broker := startKafka(ctx, t)
	createTopic(t, broker, testTopic)

	dataDir := t.TempDir()
	// The missing flow reading at hour 3 splits station_1 into two segments.
	writeArchive(t, filepath.Join(dataDir, "station_1.zip"), map[string]string{
		"flow_station_1.csv": gaugeCSV([]string{"1", "2", "3", "", "5", "6"}),
		"rain_station_1.csv": gaugeCSV([]string{"0", "1", "0", "0", "2", "0"}),
	})
	writeArchive(t, filepath.Join(dataDir, "station_2.zip"), map[string]string{
		"flow_station_2.csv": gaugeCSV([]string{"7", "8"}),
		"rain_station_2.csv": gaugeCSV([]string{"0", "0"}),
	})

	cfg := &config.Config{
		KafkaBrokers:        []string{broker},
		KafkaTopic:          testTopic,
		TargetColumn:        "flow_Mean",
		CategoryFromStation: true,
		SourcePrefixes: []config.SourcePrefix{
			{Match: "flow", Prefix: "flow_"},
			{Match: "rain", Prefix: "rain_"},
		},
	}
	writer := kafka.NewWriter(cfg, discardLogger())
	t.Cleanup(func() { _ = writer.Close() })

	reader := csvfile.NewReader(csvfile.Options{
		SkipRows:        3,
		SkipFooter:      2,
		TimeColumn:      "Date and time",
		ValueColumns:    []string{"Mean"},
		QualityColumn:   "Quality",
		AcceptedQuality: []int{10},
	})
	segmenter := pipeline.NewSegmenter(domain.SegmentOptions{
		TimeDelta:       time.Hour,
		SecondaryColumn: "rain_Mean",
	})
	p := pipeline.New(archive.NewExtractor(discardLogger()), reader, segmenter,
		[]pipeline.Sink{{Name: observability.SinkKafka, Loader: writer}},
		discardLogger(), observability.NewMetricsForTesting(),
		pipeline.Options{DataDir: dataDir, PrefixFor: cfg.PrefixFor})

	summary, err := p.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Stations)
	assert.Equal(t, 3, summary.Segments)
	require.NoError(t, p.CheckReadiness(ctx))

	got := readPublished(ctx, t, broker, 3)
	keys := make([]string, len(got))
	for i, m := range got {
		keys[i] = m.Key
	}
	assert.ElementsMatch(t, []string{
		"station_1-2010-01-01 00:00:00",
		"station_1-2010-01-01 04:00:00",
		"station_2-2010-01-01 00:00:00",
	}, keys)

	for _, m := range got {
		if m.Key == "station_1-2010-01-01 04:00:00" {
			assert.Equal(t, []float64{5, 6}, m.Record.Target)
			assert.Equal(t, [][]float64{{2, 0}}, m.Record.DynamicFeat)
		}
	}
}
