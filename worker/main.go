package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"

	"github.com/DeafMist/governance-gate/internal/config"
	"github.com/DeafMist/governance-gate/internal/dedupe"
	"github.com/DeafMist/governance-gate/internal/elasticsearch"
	"github.com/DeafMist/governance-gate/internal/governance"
	"github.com/DeafMist/governance-gate/internal/logger"
	"github.com/DeafMist/governance-gate/internal/metrics"
	"github.com/DeafMist/governance-gate/internal/models"
	"github.com/DeafMist/governance-gate/internal/processing"
	"github.com/DeafMist/governance-gate/internal/resilience"
)

type recordIndexer interface {
	IndexRecord(ctx context.Context, doc models.GovernedRecord) error
}

type indexEnsurer interface {
	EnsureIndex(ctx context.Context) error
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

type handler struct {
	log     *slog.Logger
	cfg     *config.Worker
	engine  *governance.Engine
	index   recordIndexer
	out     messageWriter
	cache   *dedupe.Cache
	exec    *resilience.Executor
	metrics *metrics.WorkerMetrics
	now     func() time.Time
}

func main() {
	log := logger.New("worker")
	cfg, err := config.LoadWorker()
	if err != nil {
		log.Error("load config", slog.Any("err", err))
		os.Exit(1)
	}

	esClient, err := elasticsearch.New(cfg.ElasticsearchAddr, cfg.ElasticsearchIndex, log)
	if err != nil {
		log.Error("init elasticsearch", slog.Any("err", err))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        cfg.KafkaBrokers,
		Topic:          cfg.KafkaTopic,
		GroupID:        cfg.KafkaConsumer,
		QueueCapacity:  cfg.BatchSize,
		MinBytes:       1e3,
		MaxBytes:       10e6,
		CommitInterval: 0, // manual commit only
	})
	defer reader.Close()

	// Topic is set per message: clean and quarantine records go to different topics.
	outWriter := &kafka.Writer{
		Addr:         kafka.TCP(cfg.KafkaBrokers...),
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		// Retries happen in the executor around each publish.
		MaxAttempts: 1,
	}
	defer outWriter.Close()

	dlqWriter := kafka.NewWriter(kafka.WriterConfig{
		Brokers:     cfg.KafkaBrokers,
		Topic:       cfg.DLQTopic(),
		MaxAttempts: 1,
	})
	defer dlqWriter.Close()

	m := metrics.NewWorkerMetrics("worker")
	metricsSrv := serveMetrics(log, cfg.MetricsAddr, m)

	h := &handler{
		log:     log,
		cfg:     cfg,
		engine:  governance.NewEngine(),
		index:   esClient,
		out:     outWriter,
		cache:   dedupe.NewCache(cfg.DedupeCapacity, cfg.DedupeTTL),
		exec:    resilience.NewExecutor(resilience.FromConfig(cfg.Resilience), log),
		metrics: m,
		now:     time.Now,
	}

	if err := ensureIndex(ctx, h.exec, esClient); err != nil {
		if ctx.Err() != nil {
			log.Info("shutdown signal received during startup")
			return
		}
		log.Error("ensure elasticsearch index", slog.Any("err", err))
		os.Exit(1)
	}

	log.Info("worker started",
		slog.String("topic", cfg.KafkaTopic),
		slog.String("group", cfg.KafkaConsumer),
		slog.String("clean_topic", cfg.CleanTopic),
		slog.String("quarantine_topic", cfg.QuarantineTopic),
		slog.String("dlq_topic", cfg.DLQTopic()),
		slog.String("logic_version", governance.LogicVersion),
	)

	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
			log.Error("metrics server shutdown", slog.Any("err", err))
		}
	}()

	for {
		msg, err := reader.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				log.Info("context canceled, stopping")
				return
			}
			log.Error("fetch message", slog.Any("err", err))
			continue
		}

		start := time.Now()
		m.StartMessage()
		err = h.processMessage(ctx, msg)
		m.FinishMessage(time.Since(start), err)

		if err != nil {
			log.Warn("process message failed, sending to DLQ",
				slog.Any("err", err),
				slog.Bool("circuit_open", resilience.IsCircuitOpen(err)),
				slog.Int("partition", msg.Partition),
				slog.Int64("offset", msg.Offset),
			)

			ok, canceled := sendToDLQ(ctx, log, dlqWriter, msg, err)
			if canceled {
				log.Info("context canceled during DLQ retry")
				return
			}
			m.ObserveDLQ(ok)

			// Only commit if DLQ write succeeded; otherwise skip commit and reprocess on restart
			if !ok {
				log.Error("DLQ write exhausted retries, message may be lost if later messages commit",
					slog.Int("partition", msg.Partition),
					slog.Int64("offset", msg.Offset),
				)
				continue
			}
		}

		if err := reader.CommitMessages(ctx, msg); err != nil {
			log.Error("commit message", slog.Any("err", err))
		}
	}
}

// processMessage governs one raw record, routes the outcome to the clean or
// quarantine topic and indexes it. Undecodable payloads still produce a
// quarantined fail-safe record; only delivery failures are returned.
func (h *handler) processMessage(ctx context.Context, msg kafka.Message) error {
	id := processing.BuildRecordID(msg.Value)
	if id == "" {
		id = uuid.NewString()
	}

	if h.cache.IsSeen(id) {
		h.log.Debug("duplicate record", slog.String("id", id))
		h.metrics.ObserveDuplicate()
		return nil
	}

	out, payload, err := governance.Encode(h.govern(msg.Value))
	if err != nil {
		return fmt.Errorf("marshal outcome: %w", err)
	}
	h.metrics.ObserveOutcome(out)

	topic := h.cfg.CleanTopic
	if out.Status() == governance.StatusQuarantine {
		topic = h.cfg.QuarantineTopic
	}

	routed := kafka.Message{
		Topic: topic,
		Key:   []byte(id),
		Value: payload,
		Headers: []kafka.Header{
			{Key: "record_id", Value: []byte(id)},
			{Key: "governance_status", Value: []byte(out.Status())},
			{Key: "logic_version", Value: []byte(governance.LogicVersion)},
		},
	}
	if err := h.exec.Execute(ctx, "kafka.publish", func(ctx context.Context) error {
		return h.out.WriteMessages(ctx, routed)
	}, nil); err != nil {
		return fmt.Errorf("publish to %s: %w", topic, err)
	}

	doc := models.NewGovernedRecord(id, msg.Topic, out, h.now())
	if err := h.exec.Execute(ctx, "elasticsearch.index", func(ctx context.Context) error {
		return h.index.IndexRecord(ctx, doc)
	}, elasticsearch.IsRetryable); err != nil {
		return fmt.Errorf("index record: %w", err)
	}

	h.cache.MarkSeen(id)
	h.metrics.SetDedupeEntries(h.cache.Len())

	attrs := []any{
		slog.String("id", id),
		slog.String("status", string(out.Status())),
		slog.String("reason", out.Reason()),
	}
	if out.Failed {
		h.log.Warn("record quarantined by fail-safe", append(attrs, slog.String("message", out.Message))...)
	} else {
		h.log.Info("governed record", append(attrs, slog.String("normalized_name", out.Meta.NormalizedName))...)
	}
	return nil
}

func (h *handler) govern(raw []byte) governance.Outcome {
	rec, err := processing.DecodeRecord(raw)
	if err != nil {
		return governance.FailSafe(fmt.Errorf("decode record: %w", err))
	}
	return h.engine.Process(rec)
}

// ensureIndex creates the records index mapping before the first record is indexed.
func ensureIndex(ctx context.Context, exec *resilience.Executor, es indexEnsurer) error {
	return exec.Execute(ctx, "elasticsearch.ensure_index", func(ctx context.Context) error {
		subCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		return es.EnsureIndex(subCtx)
	}, elasticsearch.IsRetryable)
}

// sendToDLQ writes the original message with error context, retrying with
// exponential backoff. canceled is true when ctx ended mid-retry.
func sendToDLQ(ctx context.Context, log *slog.Logger, w messageWriter, msg kafka.Message, cause error) (ok, canceled bool) {
	headers := make([]kafka.Header, 0, len(msg.Headers)+5)
	headers = append(headers, msg.Headers...)
	headers = append(headers,
		kafka.Header{Key: "original_partition", Value: []byte(fmt.Sprintf("%d", msg.Partition))},
		kafka.Header{Key: "original_offset", Value: []byte(fmt.Sprintf("%d", msg.Offset))},
		kafka.Header{Key: "error", Value: []byte(cause.Error())},
		kafka.Header{Key: "circuit_open", Value: []byte(strconv.FormatBool(resilience.IsCircuitOpen(cause)))},
		kafka.Header{Key: "timestamp", Value: []byte(time.Now().UTC().Format(time.RFC3339))},
	)
	dlqMsg := kafka.Message{Key: msg.Key, Value: msg.Value, Headers: headers}

	for attempt := range 5 {
		dlqErr := w.WriteMessages(ctx, dlqMsg)
		if dlqErr == nil {
			log.Info("message sent to DLQ",
				slog.Int("partition", msg.Partition),
				slog.Int64("offset", msg.Offset),
				slog.Int("attempt", attempt+1),
			)
			return true, false
		}
		if attempt == 4 {
			break
		}

		backoff := time.Duration(1<<uint(attempt)) * time.Second
		log.Warn("DLQ write failed, retrying",
			slog.Any("err", dlqErr),
			slog.Int("attempt", attempt+1),
			slog.Duration("backoff", backoff),
		)
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return false, true
		}
	}
	return false, false
}

func serveMetrics(log *slog.Logger, addr string, m *metrics.WorkerMetrics) *http.Server {
	r := chi.NewRouter()
	r.Handle("/metrics", m.Handler())
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		log.Info("metrics server starting", slog.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("metrics server stopped", slog.Any("err", err))
		}
	}()
	return srv
}
