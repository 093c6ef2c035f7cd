package audit

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeES struct {
	mu       sync.Mutex
	indexed  []map[string]interface{}
	searches []map[string]interface{}
}

func (f *fakeES) handler(t *testing.T) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Elastic-Product", "Elasticsearch")
		w.Header().Set("Content-Type", "application/json")

		switch {
		case r.URL.Path == "/":
			io.WriteString(w, `{"version":{"number":"9.0.0"}}`)
		case r.URL.Path == "/auth_audit/_doc":
			var doc map[string]interface{}
			require.NoError(t, json.NewDecoder(r.Body).Decode(&doc))
			f.mu.Lock()
			f.indexed = append(f.indexed, doc)
			f.mu.Unlock()
			io.WriteString(w, `{"result":"created"}`)
		case r.URL.Path == "/auth_audit/_search":
			var query map[string]interface{}
			require.NoError(t, json.NewDecoder(r.Body).Decode(&query))
			f.mu.Lock()
			f.searches = append(f.searches, query)
			f.mu.Unlock()
			io.WriteString(w, `{"hits":{"hits":[
				{"_source":{"event":"login_failed","email":"a@x.com","reason":"wrong password","at":"2026-08-29T10:00:00Z"}},
				{"_source":{"event":"login_succeeded","email":"a@x.com","at":"2026-08-29T09:00:00Z"}}
			]}}`)
		default:
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		}
	}
}

func newTestRecorder(t *testing.T) (*Recorder, *fakeES) {
	t.Helper()
	backend := &fakeES{}
	srv := httptest.NewServer(backend.handler(t))
	t.Cleanup(srv.Close)

	rec, err := NewRecorder(srv.URL, "", "", "auth_audit", slog.Default())
	require.NoError(t, err)
	return rec, backend
}

func TestRecord_IndexesEntry(t *testing.T) {
	t.Parallel()

	rec, backend := newTestRecorder(t)
	rec.Record(context.Background(), Entry{
		Event:  "login_failed",
		Email:  "a@x.com",
		Reason: "wrong password",
	})

	backend.mu.Lock()
	defer backend.mu.Unlock()
	require.Len(t, backend.indexed, 1)
	doc := backend.indexed[0]
	assert.Equal(t, "login_failed", doc["event"])
	assert.Equal(t, "a@x.com", doc["email"])
	assert.NotEmpty(t, doc["at"])
}

func TestSearchByEmail(t *testing.T) {
	t.Parallel()

	rec, backend := newTestRecorder(t)
	entries, err := rec.SearchByEmail(context.Background(), "a@x.com", 10)
	require.NoError(t, err)

	require.Len(t, entries, 2)
	assert.Equal(t, "login_failed", entries[0].Event)
	assert.Equal(t, "wrong password", entries[0].Reason)
	assert.Equal(t, "login_succeeded", entries[1].Event)
	assert.Equal(t, time.Date(2026, 8, 29, 10, 0, 0, 0, time.UTC), entries[0].At)

	backend.mu.Lock()
	defer backend.mu.Unlock()
	require.Len(t, backend.searches, 1)
	query := backend.searches[0]["query"].(map[string]interface{})
	term := query["term"].(map[string]interface{})
	assert.Equal(t, "a@x.com", term["email"])
}
