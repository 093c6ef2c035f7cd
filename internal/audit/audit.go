// Package audit keeps a searchable security trail of authentication
// events in Elasticsearch. Recording is best-effort: indexing failures
// are logged and never surfaced to the request path.
package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/elastic/go-elasticsearch/v9"
)

type Entry struct {
	Event  string    `json:"event"`
	Email  string    `json:"email,omitempty"`
	UserID string    `json:"user_id,omitempty"`
	Reason string    `json:"reason,omitempty"`
	At     time.Time `json:"at"`
}

type Recorder struct {
	es    *elasticsearch.Client
	index string
	log   *slog.Logger
}

func NewRecorder(url, user, password, index string, log *slog.Logger) (*Recorder, error) {
	client, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses: []string{url},
		Username:  user,
		Password:  password,
	})
	if err != nil {
		return nil, fmt.Errorf("elasticsearch client: %w", err)
	}
	return &Recorder{es: client, index: index, log: log}, nil
}

func (r *Recorder) Record(ctx context.Context, e Entry) {
	if e.At.IsZero() {
		e.At = time.Now().UTC()
	}
	data, err := json.Marshal(e)
	if err != nil {
		r.log.Error("audit_marshal_failed", "event", e.Event, "error", err)
		return
	}
	res, err := r.es.Index(r.index, bytes.NewReader(data), r.es.Index.WithContext(ctx))
	if err != nil {
		r.log.Error("audit_index_failed", "event", e.Event, "error", err)
		return
	}
	defer res.Body.Close()
	if res.IsError() {
		r.log.Error("audit_index_failed", "event", e.Event, "status", res.Status())
	}
}

// SearchByEmail returns the most recent audit entries for an address,
// newest first.
func (r *Recorder) SearchByEmail(ctx context.Context, email string, size int) ([]Entry, error) {
	body := map[string]interface{}{
		"query": map[string]interface{}{
			"term": map[string]interface{}{
				"email": email,
			},
		},
		"sort": []map[string]interface{}{
			{"at": map[string]interface{}{"order": "desc"}},
		},
		"size": size,
	}

	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(body); err != nil {
		return nil, err
	}

	res, err := r.es.Search(
		r.es.Search.WithContext(ctx),
		r.es.Search.WithIndex(r.index),
		r.es.Search.WithBody(&buf),
	)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()
	if res.IsError() {
		return nil, fmt.Errorf("audit search: %s", res.Status())
	}

	var parsed struct {
		Hits struct {
			Hits []struct {
				Source Entry `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return nil, err
	}

	entries := make([]Entry, len(parsed.Hits.Hits))
	for i, hit := range parsed.Hits.Hits {
		entries[i] = hit.Source
	}
	return entries, nil
}
