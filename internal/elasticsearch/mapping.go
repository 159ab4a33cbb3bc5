package elasticsearch

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
)

// indexMapping pins field types so term filters and sorts do not depend on
// dynamic mapping. Pass-through fields are stored but not indexed, since
// upstream producers disagree on their types.
const indexMapping = `{
  "mappings": {
    "dynamic": false,
    "properties": {
      "id":                {"type": "keyword"},
      "source_topic":      {"type": "keyword"},
      "normalized_name":   {"type": "text", "fields": {"keyword": {"type": "keyword", "ignore_above": 256}}},
      "governance_status": {"type": "keyword"},
      "governance_reason": {"type": "text"},
      "restricted_term":   {"type": "keyword"},
      "logic_version":     {"type": "keyword"},
      "processed_at":      {"type": "date"},
      "error":             {"type": "boolean"},
      "message":           {"type": "text"},
      "record":            {"type": "object", "enabled": false}
    }
  }
}`

// EnsureIndex creates the records index with its mapping when it does not exist yet.
func (c *Client) EnsureIndex(ctx context.Context) error {
	exists, err := c.es.Indices.Exists([]string{c.index}, c.es.Indices.Exists.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("check index: %w", err)
	}
	exists.Body.Close()

	switch {
	case exists.StatusCode == http.StatusOK:
		return nil
	case exists.StatusCode != http.StatusNotFound:
		return &ResponseError{Op: "check index", StatusCode: exists.StatusCode}
	}

	res, err := c.es.Indices.Create(
		c.index,
		c.es.Indices.Create.WithContext(ctx),
		c.es.Indices.Create.WithBody(bytes.NewReader([]byte(indexMapping))),
	)
	if err != nil {
		return fmt.Errorf("create index: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		data, _ := io.ReadAll(res.Body)
		body := strings.TrimSpace(string(data))
		// Another instance won the race.
		if res.StatusCode == http.StatusBadRequest && strings.Contains(body, "resource_already_exists_exception") {
			return nil
		}
		return &ResponseError{Op: "create index", StatusCode: res.StatusCode, Body: body}
	}

	c.log.Info("created index", slog.String("index", c.index))
	return nil
}
