package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/DeafMist/governance-gate/internal/config"
	"github.com/DeafMist/governance-gate/internal/elasticsearch"
	"github.com/DeafMist/governance-gate/internal/governance"
	"github.com/DeafMist/governance-gate/internal/logger"
	"github.com/DeafMist/governance-gate/internal/metrics"
	"github.com/DeafMist/governance-gate/internal/processing"
)

const requestIDHeader = "X-Request-Id"

type recordStore interface {
	Health(ctx context.Context) error
	SearchRecords(ctx context.Context, params elasticsearch.SearchParams) (*elasticsearch.SearchResult, error)
}

func main() {
	log := logger.New("api")
	cfg, err := config.LoadAPI()
	if err != nil {
		log.Error("load config", slog.Any("err", err))
		os.Exit(1)
	}

	esClient, err := elasticsearch.New(cfg.ElasticsearchAddr, cfg.ElasticsearchIndex, log)
	if err != nil {
		log.Error("init elasticsearch", slog.Any("err", err))
		os.Exit(1)
	}

	ensureCtx, cancelEnsure := context.WithTimeout(context.Background(), 10*time.Second)
	if err := esClient.EnsureIndex(ensureCtx); err != nil {
		// Search fails until the index exists; govern does not need it.
		log.Warn("ensure elasticsearch index", slog.Any("err", err))
	}
	cancelEnsure()

	srv := newServer(log, cfg, esClient, governance.NewEngine())

	httpServer := &http.Server{
		Addr:              cfg.BindAddr,
		Handler:           srv.routes(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      15 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	go func() {
		log.Info("api server starting",
			slog.String("addr", cfg.BindAddr),
			slog.String("logic_version", governance.LogicVersion),
		)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server stopped", slog.Any("err", err))
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	log.Info("shutdown signal received")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error("server shutdown", slog.Any("err", err))
	}
}

type server struct {
	log     *slog.Logger
	cfg     *config.API
	store   recordStore
	engine  *governance.Engine
	metrics *metrics.HTTPMetrics
	limiter *rate.Limiter
}

func newServer(log *slog.Logger, cfg *config.API, store recordStore, engine *governance.Engine) *server {
	return &server{
		log:     log,
		cfg:     cfg,
		store:   store,
		engine:  engine,
		metrics: metrics.NewHTTPMetrics("api"),
		limiter: rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.RateBurst),
	}
}

func (s *server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(ensureRequestID)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(s.metrics.Middleware)

	r.Get("/health", s.handleHealth)
	r.Get("/records", s.handleSearch)
	r.Get("/ruleset", s.handleRuleset)
	r.With(s.rateLimit).Post("/v1/govern", s.handleGovern)
	r.Handle("/metrics", s.metrics.Handler())

	return r
}

type errorResponse struct {
	Error string `json:"error"`
}

// ensureRequestID assigns a UUID to requests that arrive without one and echoes it back.
func ensureRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get(requestIDHeader))
		if id == "" {
			id = uuid.NewString()
			r.Header.Set(requestIDHeader, id)
		}
		w.Header().Set(requestIDHeader, id)
		next.ServeHTTP(w, r)
	})
}

func (s *server) rateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.limiter.Allow() {
			w.Header().Set("Retry-After", "1")
			writeJSON(w, http.StatusTooManyRequests, errorResponse{Error: "rate limit exceeded"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := s.store.Health(ctx); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "logic_version": governance.LogicVersion})
}

func (s *server) handleRuleset(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, governance.Rules())
}

// handleGovern evaluates one record synchronously. Every readable body gets an
// outcome; bodies that do not decode into a record get the fail-safe outcome.
func (s *server) handleGovern(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.cfg.MaxBodyBytes))
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeJSON(w, http.StatusRequestEntityTooLarge, errorResponse{Error: fmt.Sprintf("body exceeds %d bytes", maxErr.Limit)})
			return
		}
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	var out governance.Outcome
	rec, err := processing.DecodeRecord(body)
	if err != nil {
		out = governance.FailSafe(fmt.Errorf("decode record: %w", err))
	} else {
		out = s.engine.Process(rec)
	}
	out, data, err := governance.Encode(out)
	if err != nil {
		s.log.Error("encode govern outcome", slog.Any("err", err))
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "encode outcome"})
		return
	}
	s.metrics.ObserveGovern(out)

	if out.Failed {
		s.log.Warn("govern fail-safe",
			slog.String("request_id", middleware.GetReqID(r.Context())),
			slog.String("message", out.Message),
		)
	}

	w.Header().Set("X-Governance-Status", string(out.Status()))
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(append(data, '\n'))
}

func (s *server) handleSearch(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	q := r.URL.Query()
	status := strings.ToUpper(strings.TrimSpace(q.Get("status")))
	if status != "" && status != string(governance.StatusClean) && status != string(governance.StatusQuarantine) {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "status must be CLEAN or QUARANTINE"})
		return
	}

	params := elasticsearch.SearchParams{
		Query:        strings.TrimSpace(q.Get("q")),
		Status:       status,
		Term:         strings.TrimSpace(q.Get("term")),
		LogicVersion: strings.TrimSpace(q.Get("logic_version")),
		ErrorsOnly:   parseBool(q.Get("errors")),
		From:         clampInt(q.Get("from"), 0, 10_000),
		Size:         clampInt(q.Get("size"), s.cfg.DefaultPage, s.cfg.MaxPage),
		Sort:         strings.TrimSpace(q.Get("sort")),
		Start:        parseTime(q.Get("start")),
		End:          parseTime(q.Get("end")),
	}

	result, err := s.store.SearchRecords(ctx, params)
	if err != nil {
		s.log.Error("search records", slog.Any("err", err))
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, result)
}

func parseTime(raw string) *time.Time {
	ts := processing.ParseTimestamp(raw)
	if ts.IsZero() {
		return nil
	}
	return &ts
}

func parseBool(raw string) bool {
	v, err := strconv.ParseBool(strings.TrimSpace(raw))
	return err == nil && v
}

func clampInt(raw string, fallback, max int) int {
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	if value <= 0 {
		return fallback
	}
	if value > max {
		return max
	}
	return value
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
