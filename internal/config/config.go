package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/couchcryptid/gauge-forecast-etl/internal/domain"
	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
)

// SourcePrefix assigns a column prefix to files whose base name contains Match.
type SourcePrefix struct {
	Match  string
	Prefix string
}

// Config holds all service settings, populated from environment variables.
type Config struct {
	DataDir          string
	OutputPath       string
	TestOutputPath   string
	PredictionLength int

	// CSV layout.
	SkipRows        int
	SkipFooter      int
	TimeColumn      string
	ValueColumns    []string
	TimeLayouts     []string
	QualityColumn   string
	AcceptedQuality []int
	SourcePrefixes  []SourcePrefix

	// Segmentation and encoding.
	TargetColumn        string
	SecondaryColumn     string
	TimeDelta           time.Duration
	MinLength           int
	MinRain             float64
	CategoryFromStation bool
	Freq                time.Duration

	// Optional Kafka sink.
	KafkaBrokers []string
	KafkaTopic   string
	KafkaEnabled bool

	// Optional Parquet export.
	ParquetPath string

	// Prediction endpoint.
	EndpointURL     string
	EndpointTimeout time.Duration

	HTTPAddr        string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration
}

// Load reads configuration from environment variables, applying defaults where unset.
func Load() (*Config, error) {
	shutdownTimeout, err := sharedcfg.ParseShutdownTimeout()
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		DataDir:         sharedcfg.EnvOrDefault("DATA_DIR", "data"),
		OutputPath:      sharedcfg.EnvOrDefault("OUTPUT_PATH", "train.jsonl"),
		TestOutputPath:  os.Getenv("TEST_OUTPUT_PATH"),
		TimeColumn:      sharedcfg.EnvOrDefault("TIME_COLUMN", "Date and time"),
		ValueColumns:    splitList(sharedcfg.EnvOrDefault("VALUE_COLUMNS", "Mean")),
		TimeLayouts:     splitList(sharedcfg.EnvOrDefault("TIME_LAYOUTS", "2006-01-02 15:04:05,02/01/2006 15:04:05,02/01/2006 15:04")),
		QualityColumn:   os.Getenv("QUALITY_COLUMN"),
		TargetColumn:    sharedcfg.EnvOrDefault("TARGET_COLUMN", "flow_Mean"),
		SecondaryColumn: sharedcfg.EnvOrDefault("SECONDARY_COLUMN", "rain_Mean"),
		KafkaTopic:      sharedcfg.EnvOrDefault("KAFKA_TOPIC", "deepar-records"),
		ParquetPath:     os.Getenv("PARQUET_PATH"),
		EndpointURL:     os.Getenv("ENDPOINT_URL"),
		HTTPAddr:        sharedcfg.EnvOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:        sharedcfg.EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:       sharedcfg.EnvOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout: shutdownTimeout,
	}

	if cfg.PredictionLength, err = parseNonNegativeInt("PREDICTION_LENGTH", "0"); err != nil {
		return nil, err
	}
	if cfg.SkipRows, err = parseNonNegativeInt("SKIP_ROWS", "3"); err != nil {
		return nil, err
	}
	if cfg.SkipFooter, err = parseNonNegativeInt("SKIP_FOOTER", "2"); err != nil {
		return nil, err
	}
	if cfg.MinLength, err = parseNonNegativeInt("MIN_LENGTH", "0"); err != nil {
		return nil, err
	}
	if cfg.AcceptedQuality, err = parseQualityCodes(os.Getenv("ACCEPTED_QUALITY")); err != nil {
		return nil, err
	}
	if cfg.SourcePrefixes, err = parseSourcePrefixes(os.Getenv("SOURCE_PREFIXES")); err != nil {
		return nil, err
	}
	if cfg.TimeDelta, err = parsePositiveDuration("TIME_DELTA", "1h"); err != nil {
		return nil, err
	}
	if cfg.EndpointTimeout, err = parsePositiveDuration("ENDPOINT_TIMEOUT", "30s"); err != nil {
		return nil, err
	}

	minRain, err := strconv.ParseFloat(sharedcfg.EnvOrDefault("MIN_RAIN", "0"), 64)
	if err != nil {
		return nil, errors.New("invalid MIN_RAIN")
	}
	cfg.MinRain = minRain

	freq, err := domain.ParseFreq(sharedcfg.EnvOrDefault("FREQ", "H"))
	if err != nil {
		return nil, fmt.Errorf("invalid FREQ: %w", err)
	}
	cfg.Freq = freq

	cfg.CategoryFromStation, err = parseBool("CATEGORY_FROM_STATION", false)
	if err != nil {
		return nil, err
	}

	if brokers := os.Getenv("KAFKA_BROKERS"); brokers != "" {
		cfg.KafkaBrokers = sharedcfg.ParseBrokers(brokers)
	}
	cfg.KafkaEnabled = len(cfg.KafkaBrokers) > 0
	if v := os.Getenv("KAFKA_ENABLED"); v != "" {
		cfg.KafkaEnabled = v == "true"
	}

	if cfg.DataDir == "" {
		return nil, errors.New("DATA_DIR is required")
	}
	if cfg.OutputPath == "" {
		return nil, errors.New("OUTPUT_PATH is required")
	}
	if len(cfg.ValueColumns) == 0 {
		return nil, errors.New("VALUE_COLUMNS is required")
	}
	if cfg.TargetColumn == "" {
		return nil, errors.New("TARGET_COLUMN is required")
	}
	if cfg.SecondaryColumn == "" {
		return nil, errors.New("SECONDARY_COLUMN is required")
	}
	if cfg.KafkaEnabled && len(cfg.KafkaBrokers) == 0 {
		return nil, errors.New("KAFKA_ENABLED is true but KAFKA_BROKERS is not set")
	}
	if cfg.KafkaEnabled && cfg.KafkaTopic == "" {
		return nil, errors.New("KAFKA_TOPIC is required when Kafka is enabled")
	}

	return cfg, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func parseNonNegativeInt(key, def string) (int, error) {
	n, err := strconv.Atoi(sharedcfg.EnvOrDefault(key, def))
	if err != nil || n < 0 {
		return 0, fmt.Errorf("invalid %s", key)
	}
	return n, nil
}

func parsePositiveDuration(key, def string) (time.Duration, error) {
	d, err := time.ParseDuration(sharedcfg.EnvOrDefault(key, def))
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid %s", key)
	}
	return d, nil
}

func parseBool(key string, def bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("invalid %s", key)
	}
	return b, nil
}

// parseQualityCodes parses a comma-separated list of integer quality codes.
func parseQualityCodes(s string) ([]int, error) {
	var codes []int
	for _, part := range splitList(s) {
		n, err := strconv.Atoi(part)
		if err != nil {
			return nil, fmt.Errorf("invalid ACCEPTED_QUALITY code %q", part)
		}
		codes = append(codes, n)
	}
	return codes, nil
}

// parseSourcePrefixes parses "match=prefix" pairs such as "flow=flow_,rain=rain_".
func parseSourcePrefixes(s string) ([]SourcePrefix, error) {
	var out []SourcePrefix
	for _, part := range splitList(s) {
		match, prefix, ok := strings.Cut(part, "=")
		match = strings.TrimSpace(match)
		if !ok || match == "" {
			return nil, fmt.Errorf("invalid SOURCE_PREFIXES entry %q, want match=prefix", part)
		}
		out = append(out, SourcePrefix{Match: match, Prefix: strings.TrimSpace(prefix)})
	}
	return out, nil
}

// SegmentOptions returns the segmentation settings. When a test split is
// written the training records hold back PredictionLength points, so the
// minimum length is raised to keep at least one training target point in
// every kept segment.
func (c *Config) SegmentOptions() domain.SegmentOptions {
	minLength := c.MinLength
	if c.TestOutputPath != "" {
		minLength = max(minLength, c.PredictionLength)
	}
	return domain.SegmentOptions{
		TimeDelta:       c.TimeDelta,
		MinLength:       minLength,
		MinRain:         c.MinRain,
		SecondaryColumn: c.SecondaryColumn,
	}
}

// PrefixFor returns the prefix of the first rule whose Match occurs in name.
func (c *Config) PrefixFor(name string) string {
	for _, p := range c.SourcePrefixes {
		if strings.Contains(name, p.Match) {
			return p.Prefix
		}
	}
	return ""
}
