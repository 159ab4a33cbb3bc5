package elasticsearch_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/DeafMist/governance-gate/internal/elasticsearch"
	"github.com/DeafMist/governance-gate/internal/governance"
	"github.com/DeafMist/governance-gate/internal/models"
)

type capturedRequest struct {
	method string
	path   string
	body   string
}

type recorder struct {
	mu   sync.Mutex
	reqs []capturedRequest
}

func (r *recorder) all() []capturedRequest {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]capturedRequest(nil), r.reqs...)
}

func newFakeES(t *testing.T, status int, response string) (*elasticsearch.Client, *recorder) {
	t.Helper()

	rec := &recorder{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, _ := io.ReadAll(r.Body)
		rec.mu.Lock()
		rec.reqs = append(rec.reqs, capturedRequest{method: r.Method, path: r.URL.Path, body: string(data)})
		rec.mu.Unlock()

		w.Header().Set("X-Elastic-Product", "Elasticsearch")
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = io.WriteString(w, response)
	}))
	t.Cleanup(srv.Close)

	client, err := elasticsearch.New(srv.URL, "governed_records", nil)
	require.NoError(t, err)
	return client, rec
}

func TestIndexRecord(t *testing.T) {
	client, captured := newFakeES(t, http.StatusCreated, `{"result":"created"}`)

	doc := models.GovernedRecord{
		ID:             "abc123",
		NormalizedName: "Acme",
		Status:         governance.StatusClean,
		Reason:         governance.CleanReason,
		LogicVersion:   governance.LogicVersion,
		ProcessedAt:    time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		Record:         map[string]any{"company_name": "Acme Inc"},
	}
	require.NoError(t, client.IndexRecord(context.Background(), doc))

	require.Len(t, captured.all(), 1)
	req := captured.all()[0]
	require.Equal(t, http.MethodPut, req.method)
	require.Equal(t, "/governed_records/_doc/abc123", req.path)

	var stored map[string]any
	require.NoError(t, json.Unmarshal([]byte(req.body), &stored))
	require.Equal(t, "CLEAN", stored["governance_status"])
	require.Equal(t, "Acme", stored["normalized_name"])
}

func TestIndexRecordErrorIsClassified(t *testing.T) {
	client, _ := newFakeES(t, http.StatusBadRequest, `{"error":"mapper_parsing_exception"}`)

	err := client.IndexRecord(context.Background(), models.GovernedRecord{ID: "x"})
	require.Error(t, err)

	var respErr *elasticsearch.ResponseError
	require.ErrorAs(t, err, &respErr)
	require.Equal(t, http.StatusBadRequest, respErr.StatusCode)
	require.False(t, elasticsearch.IsRetryable(err))
}

func TestIsRetryable(t *testing.T) {
	require.True(t, elasticsearch.IsRetryable(errors.New("connection refused")))
	require.True(t, elasticsearch.IsRetryable(&elasticsearch.ResponseError{StatusCode: http.StatusTooManyRequests}))
	require.True(t, elasticsearch.IsRetryable(&elasticsearch.ResponseError{StatusCode: http.StatusBadGateway}))
	require.False(t, elasticsearch.IsRetryable(&elasticsearch.ResponseError{StatusCode: http.StatusConflict}))
	require.False(t, elasticsearch.IsRetryable(nil))
}

func TestSearchRecords(t *testing.T) {
	client, captured := newFakeES(t, http.StatusOK, `{
		"hits": {
			"total": {"value": 1},
			"hits": [{"_source": {"id": "r1", "normalized_name": "Globex", "governance_status": "QUARANTINE", "restricted_term": "lawsuit"}}]
		}
	}`)

	res, err := client.SearchRecords(context.Background(), elasticsearch.SearchParams{Status: "quarantine"})
	require.NoError(t, err)
	require.Equal(t, int64(1), res.Total)
	require.Len(t, res.Items, 1)
	require.Equal(t, governance.StatusQuarantine, res.Items[0].Status)
	require.Equal(t, "lawsuit", res.Items[0].RestrictedTerm)

	require.Equal(t, "/governed_records/_search", captured.all()[0].path)
	require.True(t, strings.Contains(captured.all()[0].body, `"governance_status":"QUARANTINE"`))
}

func TestDeleteOlderThanStopsOnShortBatch(t *testing.T) {
	client, captured := newFakeES(t, http.StatusOK, `{"deleted": 3}`)

	deleted, err := client.DeleteOlderThan(context.Background(), time.Hour, 10)
	require.NoError(t, err)
	require.Equal(t, int64(3), deleted)
	require.Len(t, captured.all(), 1)
	require.Equal(t, "/governed_records/_delete_by_query", captured.all()[0].path)
	require.Contains(t, captured.all()[0].body, "processed_at")
}

func newIndexAdminES(t *testing.T, existsStatus, createStatus int, createBody string) (*elasticsearch.Client, *recorder) {
	t.Helper()

	rec := &recorder{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, _ := io.ReadAll(r.Body)
		rec.mu.Lock()
		rec.reqs = append(rec.reqs, capturedRequest{method: r.Method, path: r.URL.Path, body: string(data)})
		rec.mu.Unlock()

		w.Header().Set("X-Elastic-Product", "Elasticsearch")
		w.Header().Set("Content-Type", "application/json")
		if r.Method == http.MethodHead {
			w.WriteHeader(existsStatus)
			return
		}
		w.WriteHeader(createStatus)
		_, _ = io.WriteString(w, createBody)
	}))
	t.Cleanup(srv.Close)

	client, err := elasticsearch.New(srv.URL, "governed_records", nil)
	require.NoError(t, err)
	return client, rec
}

func TestEnsureIndexCreatesMapping(t *testing.T) {
	client, captured := newIndexAdminES(t, http.StatusNotFound, http.StatusOK, `{"acknowledged":true}`)

	require.NoError(t, client.EnsureIndex(context.Background()))

	reqs := captured.all()
	require.Len(t, reqs, 2)
	require.Equal(t, http.MethodHead, reqs[0].method)
	require.Equal(t, http.MethodPut, reqs[1].method)
	require.Equal(t, "/governed_records", reqs[1].path)

	var body struct {
		Mappings struct {
			Properties map[string]map[string]any `json:"properties"`
		} `json:"mappings"`
	}
	require.NoError(t, json.Unmarshal([]byte(reqs[1].body), &body))
	props := body.Mappings.Properties
	require.Equal(t, "keyword", props["governance_status"]["type"])
	require.Equal(t, "keyword", props["restricted_term"]["type"])
	require.Equal(t, "date", props["processed_at"]["type"])
	require.Equal(t, false, props["record"]["enabled"])
}

func TestEnsureIndexSkipsExistingIndex(t *testing.T) {
	client, captured := newIndexAdminES(t, http.StatusOK, http.StatusInternalServerError, "")

	require.NoError(t, client.EnsureIndex(context.Background()))
	require.Len(t, captured.all(), 1)
}

func TestEnsureIndexToleratesConcurrentCreate(t *testing.T) {
	client, _ := newIndexAdminES(t, http.StatusNotFound, http.StatusBadRequest,
		`{"error":{"type":"resource_already_exists_exception"}}`)

	require.NoError(t, client.EnsureIndex(context.Background()))
}

func TestEnsureIndexReportsFailure(t *testing.T) {
	client, _ := newIndexAdminES(t, http.StatusNotFound, http.StatusServiceUnavailable, `{"error":"unavailable"}`)

	err := client.EnsureIndex(context.Background())
	var respErr *elasticsearch.ResponseError
	require.ErrorAs(t, err, &respErr)
	require.Equal(t, http.StatusServiceUnavailable, respErr.StatusCode)
	require.True(t, elasticsearch.IsRetryable(err))
}
