package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "data", cfg.DataDir)
	assert.Equal(t, "train.jsonl", cfg.OutputPath)
	assert.Empty(t, cfg.TestOutputPath)
	assert.Equal(t, 0, cfg.PredictionLength)
	assert.Equal(t, 3, cfg.SkipRows)
	assert.Equal(t, 2, cfg.SkipFooter)
	assert.Equal(t, "Date and time", cfg.TimeColumn)
	assert.Equal(t, []string{"Mean"}, cfg.ValueColumns)
	assert.Equal(t, []string{"2006-01-02 15:04:05", "02/01/2006 15:04:05", "02/01/2006 15:04"}, cfg.TimeLayouts)
	assert.Empty(t, cfg.QualityColumn)
	assert.Empty(t, cfg.AcceptedQuality)
	assert.Empty(t, cfg.SourcePrefixes)
	assert.Equal(t, "flow_Mean", cfg.TargetColumn)
	assert.Equal(t, "rain_Mean", cfg.SecondaryColumn)
	assert.Equal(t, time.Hour, cfg.TimeDelta)
	assert.Equal(t, 0, cfg.MinLength)
	assert.Zero(t, cfg.MinRain)
	assert.False(t, cfg.CategoryFromStation)
	assert.Equal(t, time.Hour, cfg.Freq)
	assert.Empty(t, cfg.KafkaBrokers)
	assert.Equal(t, "deepar-records", cfg.KafkaTopic)
	assert.False(t, cfg.KafkaEnabled)
	assert.Empty(t, cfg.ParquetPath)
	assert.Empty(t, cfg.EndpointURL)
	assert.Equal(t, 30*time.Second, cfg.EndpointTimeout)
	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Equal(t, 10*time.Second, cfg.ShutdownTimeout)
}

func TestLoad_CustomEnv(t *testing.T) {
	t.Setenv("DATA_DIR", "/srv/gauges")
	t.Setenv("OUTPUT_PATH", "/srv/out/train.jsonl")
	t.Setenv("TEST_OUTPUT_PATH", "/srv/out/test.jsonl")
	t.Setenv("PREDICTION_LENGTH", "48")
	t.Setenv("SKIP_ROWS", "0")
	t.Setenv("SKIP_FOOTER", "1")
	t.Setenv("TIME_COLUMN", "Timestamp")
	t.Setenv("VALUE_COLUMNS", "Mean, Max")
	t.Setenv("TIME_LAYOUTS", "2006-01-02T15:04")
	t.Setenv("QUALITY_COLUMN", "Quality")
	t.Setenv("ACCEPTED_QUALITY", "10,20, 30")
	t.Setenv("SOURCE_PREFIXES", "flow=flow_,rain=rain_")
	t.Setenv("TARGET_COLUMN", "flow_Max")
	t.Setenv("SECONDARY_COLUMN", "rain_Max")
	t.Setenv("TIME_DELTA", "2h")
	t.Setenv("MIN_LENGTH", "24")
	t.Setenv("MIN_RAIN", "1.5")
	t.Setenv("CATEGORY_FROM_STATION", "true")
	t.Setenv("FREQ", "15min")
	t.Setenv("KAFKA_BROKERS", "broker1:9092,broker2:9092")
	t.Setenv("KAFKA_TOPIC", "records")
	t.Setenv("PARQUET_PATH", "/srv/out/segments.parquet")
	t.Setenv("ENDPOINT_URL", "http://model:8080/invocations")
	t.Setenv("ENDPOINT_TIMEOUT", "5s")
	t.Setenv("HTTP_ADDR", ":9090")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("LOG_FORMAT", "text")
	t.Setenv("SHUTDOWN_TIMEOUT", "30s")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "/srv/gauges", cfg.DataDir)
	assert.Equal(t, "/srv/out/train.jsonl", cfg.OutputPath)
	assert.Equal(t, "/srv/out/test.jsonl", cfg.TestOutputPath)
	assert.Equal(t, 48, cfg.PredictionLength)
	assert.Equal(t, 0, cfg.SkipRows)
	assert.Equal(t, 1, cfg.SkipFooter)
	assert.Equal(t, "Timestamp", cfg.TimeColumn)
	assert.Equal(t, []string{"Mean", "Max"}, cfg.ValueColumns)
	assert.Equal(t, []string{"2006-01-02T15:04"}, cfg.TimeLayouts)
	assert.Equal(t, "Quality", cfg.QualityColumn)
	assert.Equal(t, []int{10, 20, 30}, cfg.AcceptedQuality)
	assert.Equal(t, []SourcePrefix{{Match: "flow", Prefix: "flow_"}, {Match: "rain", Prefix: "rain_"}}, cfg.SourcePrefixes)
	assert.Equal(t, "flow_Max", cfg.TargetColumn)
	assert.Equal(t, "rain_Max", cfg.SecondaryColumn)
	assert.Equal(t, 2*time.Hour, cfg.TimeDelta)
	assert.Equal(t, 24, cfg.MinLength)
	assert.InEpsilon(t, 1.5, cfg.MinRain, 0.0001)
	assert.True(t, cfg.CategoryFromStation)
	assert.Equal(t, 15*time.Minute, cfg.Freq)
	assert.Equal(t, []string{"broker1:9092", "broker2:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, "records", cfg.KafkaTopic)
	assert.True(t, cfg.KafkaEnabled)
	assert.Equal(t, "/srv/out/segments.parquet", cfg.ParquetPath)
	assert.Equal(t, "http://model:8080/invocations", cfg.EndpointURL)
	assert.Equal(t, 5*time.Second, cfg.EndpointTimeout)
	assert.Equal(t, ":9090", cfg.HTTPAddr)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "text", cfg.LogFormat)
	assert.Equal(t, 30*time.Second, cfg.ShutdownTimeout)
}

func TestLoad_InvalidValues(t *testing.T) {
	tests := []struct {
		key, value string
	}{
		{"SHUTDOWN_TIMEOUT", "not-a-duration"},
		{"PREDICTION_LENGTH", "-1"},
		{"SKIP_ROWS", "three"},
		{"SKIP_FOOTER", "-2"},
		{"MIN_LENGTH", "x"},
		{"MIN_RAIN", "lots"},
		{"TIME_DELTA", "0s"},
		{"TIME_DELTA", "soon"},
		{"ENDPOINT_TIMEOUT", "-5s"},
		{"ACCEPTED_QUALITY", "10,good"},
		{"SOURCE_PREFIXES", "flow_"},
		{"SOURCE_PREFIXES", "=flow_"},
		{"FREQ", "M"},
		{"CATEGORY_FROM_STATION", "maybe"},
	}

	for _, tt := range tests {
		t.Run(tt.key+"="+tt.value, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)
			_, err := Load()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.key)
		})
	}
}

func TestLoad_KafkaEnabledWithoutBrokers(t *testing.T) {
	t.Setenv("KAFKA_ENABLED", "true")
	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "KAFKA_BROKERS")
}

func TestLoad_KafkaExplicitlyDisabled(t *testing.T) {
	t.Setenv("KAFKA_BROKERS", "localhost:9092")
	t.Setenv("KAFKA_ENABLED", "false")
	cfg, err := Load()
	require.NoError(t, err)
	assert.False(t, cfg.KafkaEnabled)
	assert.Equal(t, []string{"localhost:9092"}, cfg.KafkaBrokers)
}

func TestPrefixFor(t *testing.T) {
	cfg := &Config{SourcePrefixes: []SourcePrefix{
		{Match: "flow", Prefix: "flow_"},
		{Match: "rain", Prefix: "rain_"},
		{Match: "gauge", Prefix: "g_"},
	}}

	assert.Equal(t, "flow_", cfg.PrefixFor("station_flow_2010.csv"))
	assert.Equal(t, "rain_", cfg.PrefixFor("rain.csv"))
	assert.Equal(t, "flow_", cfg.PrefixFor("gauge_flow.csv"))
	assert.Empty(t, cfg.PrefixFor("level.csv"))
}

func TestSegmentOptions(t *testing.T) {
	cfg := &Config{TimeDelta: time.Hour, MinLength: 2, PredictionLength: 24, MinRain: 0.5, SecondaryColumn: "rain_Mean"}

	opts := cfg.SegmentOptions()
	assert.Equal(t, 2, opts.MinLength)
	assert.Equal(t, time.Hour, opts.TimeDelta)
	assert.InDelta(t, 0.5, opts.MinRain, 1e-9)
	assert.Equal(t, "rain_Mean", opts.SecondaryColumn)

	cfg.TestOutputPath = "test.jsonl"
	assert.Equal(t, 24, cfg.SegmentOptions().MinLength)

	cfg.MinLength = 48
	assert.Equal(t, 48, cfg.SegmentOptions().MinLength)
}
