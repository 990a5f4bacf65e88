package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"setback/internal/config"
	"setback/internal/db"
	"setback/internal/events"
	"setback/internal/migrate"
	"setback/internal/repo"
)

type hookRecorder struct {
	mu       sync.Mutex
	received []webhookEvent
	headers  []http.Header
	fail     bool
	hit      chan struct{}
}

func (h *hookRecorder) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	data, _ := io.ReadAll(r.Body)
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.fail {
		http.Error(w, "down", http.StatusBadGateway)
		return
	}
	var evt webhookEvent
	_ = json.Unmarshal(data, &evt)
	h.received = append(h.received, evt)
	h.headers = append(h.headers, r.Header.Clone())
	select {
	case h.hit <- struct{}{}:
	default:
	}
}

func (h *hookRecorder) types() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	var out []string
	for _, evt := range h.received {
		out = append(out, evt.Type)
	}
	return out
}

func openRepo(t *testing.T) (repo.Repo, func()) {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	require.NoError(t, err)
	require.NoError(t, migrate.Migrate(context.Background(), conn))
	return repo.Repo{DB: conn}, func() { _ = conn.Close() }
}

func appendEvent(t *testing.T, r repo.Repo, typ, entity string) {
	t.Helper()
	tx, err := r.DB.Begin()
	require.NoError(t, err)
	defer tx.Rollback()
	require.NoError(t, events.Writer{}.Append(context.Background(), tx, typ, "worker", entity, "tester", events.EventPayload{"entity": entity}))
	require.NoError(t, tx.Commit())
}

func newTestDispatcher(r repo.Repo, hooks []config.Webhook) *WebhookDispatcher {
	d := NewWebhookDispatcher(r, hooks, nil)
	d.client = &http.Client{Timeout: time.Second, Transport: &http.Transport{DisableKeepAlives: true}}
	return d
}

func TestWebhookDeliversNewMatchingEvents(t *testing.T) {
	r, closeRepo := openRepo(t)
	defer closeRepo()
	rec := &hookRecorder{hit: make(chan struct{}, 8)}
	hook := httptest.NewServer(rec)
	defer hook.Close()

	appendEvent(t, r, events.WorkerSpawned, "old")
	d := newTestDispatcher(r, []config.Webhook{{ID: "h1", URL: hook.URL, Events: []string{events.FailureResponded}, Secret: "shh"}})
	ctx := context.Background()
	d.DispatchOnce(ctx)
	assert.Empty(t, rec.types())

	appendEvent(t, r, events.WorkerSpawned, "w1")
	appendEvent(t, r, events.FailureResponded, "w1")
	d.DispatchOnce(ctx)
	assert.Equal(t, []string{events.FailureResponded}, rec.types())

	rec.mu.Lock()
	h := rec.headers[0]
	got := rec.received[0]
	rec.mu.Unlock()
	assert.Equal(t, events.FailureResponded, h.Get("X-Setback-Event"))
	assert.Equal(t, "shh", h.Get("X-Setback-Secret"))
	assert.Equal(t, "w1", got.EntityID)
	assert.JSONEq(t, `{"entity":"w1"}`, string(got.Payload))

	d.DispatchOnce(ctx)
	assert.Len(t, rec.types(), 1)
}

func TestWebhookRetriesFailedDelivery(t *testing.T) {
	r, closeRepo := openRepo(t)
	defer closeRepo()
	rec := &hookRecorder{hit: make(chan struct{}, 8), fail: true}
	hook := httptest.NewServer(rec)
	defer hook.Close()

	d := newTestDispatcher(r, []config.Webhook{{URL: hook.URL}})
	ctx := context.Background()
	d.DispatchOnce(ctx)
	appendEvent(t, r, events.WorkerDespawned, "w1")
	d.DispatchOnce(ctx)
	assert.Empty(t, rec.types())

	rec.mu.Lock()
	rec.fail = false
	rec.mu.Unlock()
	d.DispatchOnce(ctx)
	assert.Equal(t, []string{events.WorkerDespawned}, rec.types())
}

func TestWebhookRunStopsOnCancel(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, migrate.Migrate(context.Background(), conn))
	r := repo.Repo{DB: conn}
	rec := &hookRecorder{hit: make(chan struct{}, 8)}
	hook := httptest.NewServer(rec)
	defer hook.Close()

	d := newTestDispatcher(r, []config.Webhook{{URL: hook.URL}})
	d.interval = 10 * time.Millisecond
	d.DispatchOnce(context.Background())
	appendEvent(t, r, events.WorkerSpawned, "w1")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		d.Run(ctx)
		close(done)
	}()
	select {
	case <-rec.hit:
	case <-time.After(5 * time.Second):
		t.Fatal("webhook not delivered")
	}
	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("dispatcher did not stop")
	}
}
