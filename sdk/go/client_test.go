package setbacksdk

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"setback/internal/app"
	"setback/internal/server"
)

func newClient(t *testing.T) *Client {
	t.Helper()
	rt, err := app.Open(context.Background(), app.Options{Workspace: t.TempDir(), Seed: 5, Logger: zap.NewNop()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = rt.Close() })
	handler, err := server.New(server.Config{Engine: rt.Engine, Auth: server.AuthConfig{AllowAnonymous: true}})
	require.NoError(t, err)
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return New(srv.URL)
}

func TestClientRoundTrip(t *testing.T) {
	ctx := context.Background()
	c := newClient(t)

	w, err := c.SpawnWorker(ctx, SpawnRequest{ID: "w1", Name: "Pat", Preset: "veteran"})
	require.NoError(t, err)
	assert.Equal(t, "Pat", w.Name)

	resp, err := c.ReportFailure(ctx, "w1", Failure{FailureType: "tool-breakage", Score: 15})
	require.NoError(t, err)
	assert.Equal(t, "minor", resp.Severity)
	assert.Equal(t, []string{"craft-replacement", "resume-task"}, resp.RecoveryPlan)

	resp, err = c.ReportFailure(ctx, "w1", Failure{FailureType: "tool-breakage", Score: 15})
	require.NoError(t, err)
	assert.NotEmpty(t, resp.LearningStatement)

	learnings, err := c.Learnings(ctx, "w1", 5)
	require.NoError(t, err)
	assert.Len(t, learnings, 1)

	line, err := c.HelpRequest(ctx, "w1", Failure{FailureType: "navigation-blocked", Score: 50})
	require.NoError(t, err)
	assert.NotEmpty(t, line)

	w, err = c.SetPersonality(ctx, "w1", "", nil, map[string]int{"humor": 5})
	require.NoError(t, err)
	assert.Equal(t, 5, w.Profile.Humor)

	evts, err := c.Events(ctx, 10)
	require.NoError(t, err)
	assert.NotEmpty(t, evts)

	require.NoError(t, c.DespawnWorker(ctx, "w1"))
	_, err = c.Worker(ctx, "w1")
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusNotFound, apiErr.StatusCode)
}
