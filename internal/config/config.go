package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Common contains Elasticsearch parameters shared by every service.
type Common struct {
	ElasticsearchAddr  string
	ElasticsearchIndex string
}

// Resilience tunes retries and circuit breaking around Elasticsearch and Kafka writes.
type Resilience struct {
	RetryAttempts       int
	RetryBackoff        time.Duration
	BreakerEnabled      bool
	BreakerFailureRatio float64
	BreakerOpenTimeout  time.Duration
}

// Worker holds configuration for the Kafka -> governance -> Elasticsearch worker.
type Worker struct {
	Common
	Resilience
	KafkaBrokers    []string
	KafkaTopic      string
	KafkaConsumer   string
	CleanTopic      string
	QuarantineTopic string
	DedupeCapacity  int
	DedupeTTL       time.Duration
	BatchSize       int
	MetricsAddr     string
}

// DLQTopic is where messages that could not be routed or indexed end up.
func (w *Worker) DLQTopic() string {
	return w.KafkaTopic + "_dlq"
}

// API describes HTTP-layer configuration.
type API struct {
	Common
	BindAddr     string
	DefaultPage  int
	MaxPage      int
	RateLimit    float64
	RateBurst    int
	MaxBodyBytes int64
}

// Retention configures the cleanup loop.
type Retention struct {
	Common
	Interval  time.Duration
	MaxAge    time.Duration
	BatchSize int
}

func loadCommon() Common {
	return Common{
		ElasticsearchAddr:  getEnv("ELASTICSEARCH_ADDR", "http://elasticsearch:9200"),
		ElasticsearchIndex: getEnv("ELASTICSEARCH_INDEX", "governed_records"),
	}
}

// LoadResilience reads the RESILIENCE_* variables.
func LoadResilience() (Resilience, error) {
	r := Resilience{
		RetryAttempts:       getInt("RESILIENCE_RETRY_ATTEMPTS", 3),
		RetryBackoff:        getDuration("RESILIENCE_RETRY_BACKOFF", "200ms"),
		BreakerEnabled:      getBool("RESILIENCE_BREAKER_ENABLED", true),
		BreakerFailureRatio: getFloat("RESILIENCE_BREAKER_FAILURE_RATIO", 0.5),
		BreakerOpenTimeout:  getDuration("RESILIENCE_BREAKER_OPEN_TIMEOUT", "30s"),
	}

	if r.RetryAttempts <= 0 {
		return r, fmt.Errorf("RESILIENCE_RETRY_ATTEMPTS must be positive")
	}
	if r.BreakerFailureRatio <= 0 || r.BreakerFailureRatio > 1 {
		return r, fmt.Errorf("RESILIENCE_BREAKER_FAILURE_RATIO must be in (0, 1]")
	}
	return r, nil
}

// LoadWorker builds a Worker config from environment variables.
func LoadWorker() (*Worker, error) {
	res, err := LoadResilience()
	if err != nil {
		return nil, err
	}

	topic := getEnv("KAFKA_TOPIC", "gtm_records_raw")
	c := &Worker{
		Common:          loadCommon(),
		Resilience:      res,
		KafkaBrokers:    splitAndTrim(getEnv("KAFKA_BROKERS", "kafka:9092")),
		KafkaTopic:      topic,
		KafkaConsumer:   getEnv("KAFKA_CONSUMER_GROUP", "governance-worker"),
		CleanTopic:      getEnv("KAFKA_CLEAN_TOPIC", topic+"_clean"),
		QuarantineTopic: getEnv("KAFKA_QUARANTINE_TOPIC", topic+"_quarantine"),
		DedupeCapacity:  getInt("WORKER_DEDUPE_CAPACITY", 20000),
		DedupeTTL:       getDuration("WORKER_DEDUPE_TTL", "24h"),
		BatchSize:       getInt("WORKER_BATCH_SIZE", 10),
		MetricsAddr:     getEnv("WORKER_METRICS_ADDR", ":9102"),
	}

	if len(c.KafkaBrokers) == 0 {
		return nil, fmt.Errorf("KAFKA_BROKERS must contain at least one broker")
	}
	if c.CleanTopic == c.QuarantineTopic {
		return nil, fmt.Errorf("KAFKA_CLEAN_TOPIC and KAFKA_QUARANTINE_TOPIC must differ")
	}
	if c.CleanTopic == c.KafkaTopic || c.QuarantineTopic == c.KafkaTopic {
		return nil, fmt.Errorf("output topics must differ from KAFKA_TOPIC")
	}
	if c.BatchSize <= 0 {
		return nil, fmt.Errorf("WORKER_BATCH_SIZE must be positive")
	}
	if c.DedupeCapacity <= 0 {
		return nil, fmt.Errorf("WORKER_DEDUPE_CAPACITY must be positive")
	}

	return c, nil
}

// LoadAPI builds an API config from environment variables.
func LoadAPI() (*API, error) {
	c := &API{
		Common:       loadCommon(),
		BindAddr:     getEnv("API_BIND_ADDR", "0.0.0.0:8080"),
		DefaultPage:  getInt("API_PAGE_SIZE", 20),
		MaxPage:      getInt("API_MAX_PAGE_SIZE", 100),
		RateLimit:    getFloat("API_RATE_LIMIT", 50),
		RateBurst:    getInt("API_RATE_BURST", 100),
		MaxBodyBytes: int64(getInt("API_MAX_BODY_BYTES", 1<<20)),
	}

	if c.DefaultPage <= 0 {
		return nil, fmt.Errorf("API_PAGE_SIZE must be positive")
	}
	if c.MaxPage <= 0 {
		return nil, fmt.Errorf("API_MAX_PAGE_SIZE must be positive")
	}
	if c.DefaultPage > c.MaxPage {
		return nil, fmt.Errorf("API_PAGE_SIZE cannot exceed API_MAX_PAGE_SIZE")
	}
	if c.RateLimit <= 0 {
		return nil, fmt.Errorf("API_RATE_LIMIT must be positive")
	}
	if c.RateBurst <= 0 {
		return nil, fmt.Errorf("API_RATE_BURST must be positive")
	}
	if c.MaxBodyBytes <= 0 {
		return nil, fmt.Errorf("API_MAX_BODY_BYTES must be positive")
	}

	return c, nil
}

// LoadRetention builds a Retention config from environment variables.
func LoadRetention() (*Retention, error) {
	c := &Retention{
		Common:    loadCommon(),
		Interval:  getDuration("RETENTION_CRON", "24h"),
		MaxAge:    getDuration("RETENTION_MAX_AGE", "720h"),
		BatchSize: getInt("RETENTION_BATCH_SIZE", 500),
	}

	if c.MaxAge <= 0 {
		return nil, fmt.Errorf("RETENTION_MAX_AGE must be positive")
	}
	if c.Interval <= 0 {
		return nil, fmt.Errorf("RETENTION_CRON must be positive")
	}
	if c.BatchSize <= 0 {
		return nil, fmt.Errorf("RETENTION_BATCH_SIZE must be positive")
	}

	return c, nil
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			return parsed
		}
	}
	return fallback
}

func getFloat(key string, fallback float64) float64 {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if parsed, err := strconv.ParseFloat(v, 64); err == nil {
			return parsed
		}
	}
	return fallback
}

func getBool(key string, fallback bool) bool {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if parsed, err := strconv.ParseBool(v); err == nil {
			return parsed
		}
	}
	return fallback
}

func getDuration(key, fallback string) time.Duration {
	if d, err := time.ParseDuration(getEnv(key, fallback)); err == nil {
		return d
	}
	d, err := time.ParseDuration(fallback)
	if err != nil {
		panic(fmt.Sprintf("invalid fallback duration %q: %v", fallback, err))
	}
	return d
}

func splitAndTrim(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
