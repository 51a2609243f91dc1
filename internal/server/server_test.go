package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/bloomlabs/moderationd/internal/backend"
	"github.com/bloomlabs/moderationd/internal/chat"
	"github.com/bloomlabs/moderationd/internal/config"
	"github.com/bloomlabs/moderationd/internal/flagging"
	"github.com/bloomlabs/moderationd/internal/history"
	"github.com/bloomlabs/moderationd/internal/ingest"
	"github.com/bloomlabs/moderationd/internal/metrics"
	"github.com/bloomlabs/moderationd/internal/moderation"
	"github.com/bloomlabs/moderationd/internal/queue"
	"github.com/bloomlabs/moderationd/internal/services"
)

const (
	testWait = 2 * time.Second
	testTick = 5 * time.Millisecond
)

// fakeBackend is a configurable stand-in for the backend services.
type fakeBackend struct {
	mu       sync.Mutex
	live     []chat.Message
	flagged  []chat.Message
	flaggedE bool
	flagE    bool
}

func (f *fakeBackend) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/live", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		json.NewEncoder(w).Encode(f.live)
	})
	mux.HandleFunc("/api/flagged", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		if f.flaggedE {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		json.NewEncoder(w).Encode(f.flagged)
	})
	mux.HandleFunc("/api/flag", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		json.NewEncoder(w).Encode(map[string]any{"success": !f.flagE, "message": "nope"})
	})
	return mux
}

type fixture struct {
	server    *Server
	backend   *fakeBackend
	processor *moderation.Processor
	ledger    *history.Ledger
	poller    *ingest.Poller
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger := zaptest.NewLogger(t)

	fb := &fakeBackend{}
	srv := httptest.NewServer(fb.handler())
	t.Cleanup(srv.Close)

	cfg, err := config.Load()
	require.NoError(t, err)
	cfg.Backend.BaseURL = srv.URL

	client, err := backend.NewClient(backend.Config{BaseURL: srv.URL, FallbackRPS: 1000, FallbackBurst: 1000}, logger)
	require.NoError(t, err)

	reg := prometheus.NewRegistry()
	pm := metrics.New(reg)
	ledger := history.NewLedger(logger)
	flags := flagging.NewManager(client, pm, logger)
	proc := moderation.NewProcessor(client, ledger, flags, pm, logger)
	poller := ingest.NewPoller(client, proc, &ingest.Config{Interval: time.Hour, Limit: 20}, pm, logger)

	registry := services.NewRegistry(services.Options{
		Processor: proc,
		Flags:     flags,
		History:   ledger,
		Backend:   client,
		Poller:    poller,
	})

	return &fixture{
		server:    NewServer(cfg, registry, reg, logger),
		backend:   fb,
		processor: proc,
		ledger:    ledger,
		poller:    poller,
	}
}

func (f *fixture) do(method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	f.server.Echo().ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	f := newFixture(t)

	rec := f.do(http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var got HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "ok", got.Status)
	assert.Equal(t, "moderationd", got.Service)
	assert.False(t, got.AutoMod)
}

func TestQueue(t *testing.T) {
	f := newFixture(t)
	f.backend.flagged = []chat.Message{
		{MessageID: "m1", PlayerID: 1, Text: "low", ModerationAction: "WARNING", ModerationReason: "Harassment"},
		{MessageID: "m2", PlayerID: 2, Text: "high", ModerationAction: "BAN", ModerationReason: "Repeat offender"},
	}

	rec := f.do(http.MethodGet, "/api/queue", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var items []queue.Item
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &items))
	require.Len(t, items, 2)
	// Critical entries sort ahead of moderate ones.
	assert.Equal(t, "queue_m2", items[0].ID)
	assert.Equal(t, chat.PriorityCritical, items[0].Priority)
	assert.Equal(t, "queue_m1", items[1].ID)
}

func TestQueue_EmptyIsArray(t *testing.T) {
	f := newFixture(t)

	rec := f.do(http.MethodGet, "/api/queue", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "[]", strings.TrimSpace(rec.Body.String()))
}

func TestQueue_BackendFailure(t *testing.T) {
	f := newFixture(t)
	f.backend.flaggedE = true

	rec := f.do(http.MethodGet, "/api/queue", "")
	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestHistory(t *testing.T) {
	f := newFixture(t)
	f.ledger.RecordAutomatedAction(chat.ActionWarning, chat.Message{MessageID: "m1"}, "Auto-flagged: x")

	rec := f.do(http.MethodGet, "/api/history", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var entries []history.Entry
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &entries))
	require.Len(t, entries, 1)
	assert.Equal(t, "Auto-flagged: x", entries[0].Reason)
}

func TestAutoModStatusAndToggle(t *testing.T) {
	f := newFixture(t)

	rec := f.do(http.MethodGet, "/api/automod", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"enabled": false}`, rec.Body.String())

	rec = f.do(http.MethodPost, "/api/automod", `{"enabled": true}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"enabled": true}`, rec.Body.String())
	assert.True(t, f.processor.Enabled())

	rec = f.do(http.MethodPost, "/api/automod", `{"enabled": false}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, f.processor.Enabled())
}

func TestAutoModToggle_BackfillsLastBatch(t *testing.T) {
	f := newFixture(t)
	f.backend.live = []chat.Message{
		{MessageID: "m1", PlayerID: 7, Text: "pii", ModerationAction: "DELETE_MESSAGE", ModerationReason: "PII detected"},
	}

	// Populate the poller's last batch while the gate is still off.
	f.poller.Start(context.Background())
	t.Cleanup(f.poller.Stop)
	require.Eventually(t, func() bool { return len(f.poller.LastBatch()) == 1 }, testWait, testTick)
	require.False(t, f.processor.IsDeleted("m1"))

	rec := f.do(http.MethodPost, "/api/automod", `{"enabled": true}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, f.processor.IsDeleted("m1"), "enabling must replay backend decisions from the last batch")
}

func TestFlag(t *testing.T) {
	f := newFixture(t)

	rec := f.do(http.MethodPost, "/api/flags", `{"message_id": "m1", "reason": "spam"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"flagged": true}`, rec.Body.String())
}

func TestFlag_MissingMessageID(t *testing.T) {
	f := newFixture(t)

	rec := f.do(http.MethodPost, "/api/flags", `{"reason": "spam"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestFlag_BackendRejection(t *testing.T) {
	f := newFixture(t)
	f.backend.flagE = true

	rec := f.do(http.MethodPost, "/api/flags", `{"message_id": "m1"}`)
	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	f := newFixture(t)

	rec := f.do(http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}
