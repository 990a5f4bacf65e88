package app

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"setback/internal/config"
	"setback/internal/domain"
	"setback/internal/engine"
	"setback/internal/library"
)

func writeConfig(t *testing.T, dir, body string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "setback.yml"), []byte(body), 0o644))
}

func TestOpenWithDefaults(t *testing.T) {
	ctx := context.Background()
	rt, err := Open(ctx, Options{Workspace: t.TempDir(), Seed: 3, Logger: zap.NewNop()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = rt.Close() })

	_, err = rt.Engine.SpawnWorker(ctx, engine.SpawnOptions{ID: "w1", Preset: "artist"})
	require.NoError(t, err)
	out, err := rt.Engine.HandleFailure(ctx, engine.FailureEvent{WorkerID: "w1", FailureType: domain.FailureCombatLoss, Score: 45})
	require.NoError(t, err)
	assert.Equal(t, domain.SeveritySignificant, out.Severity)
	assert.Empty(t, out.RecoveryPlan)
}

func TestOpenUsesRedisRecency(t *testing.T) {
	mr := miniredis.RunT(t)
	ctx := context.Background()
	rt, err := Open(ctx, Options{Workspace: t.TempDir(), RedisAddr: mr.Addr(), Logger: zap.NewNop()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = rt.Close() })

	_, err = rt.Engine.SpawnWorker(ctx, engine.SpawnOptions{ID: "w1"})
	require.NoError(t, err)
	out, err := rt.Engine.HandleFailure(ctx, engine.FailureEvent{WorkerID: "w1", FailureType: domain.FailureToolBreakage, Score: 10})
	require.NoError(t, err)

	recent, err := mr.List("setback:recency:w1:error")
	require.NoError(t, err)
	assert.Equal(t, []string{out.TemplateID}, recent)
}

func TestOpenRejectsBrokenContent(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, `templates:
  - {id: bad-1, category: error, text: "I broke the {gizmo}"}
`)
	_, err := Open(context.Background(), Options{Workspace: dir, Logger: zap.NewNop()})
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrConfiguration))
	assert.Contains(t, err.Error(), "gizmo")
}

func TestOpenRejectsUnreachableRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()
	_, err := Open(context.Background(), Options{Workspace: t.TempDir(), RedisAddr: addr, Logger: zap.NewNop()})
	assert.Error(t, err)
}

func TestNewRecency(t *testing.T) {
	cfg := config.Default()
	store, client, err := NewRecency(cfg)
	require.NoError(t, err)
	assert.Nil(t, client)
	assert.IsType(t, &library.MemoryRecency{}, store)

	cfg.Recency.Backend = "redis"
	cfg.Recency.Redis.Addr = ""
	_, _, err = NewRecency(cfg)
	assert.True(t, errors.Is(err, domain.ErrConfiguration))

	cfg.Recency.Backend = "etcd"
	_, _, err = NewRecency(cfg)
	assert.Error(t, err)
}

func TestNewGeneratorReportsDuplicateIDs(t *testing.T) {
	cfg := config.Default()
	cfg.Templates = []domain.ResponseTemplate{
		{ID: "err-balanced-1", Category: domain.CategoryError, Text: "a different line"},
	}
	_, err := NewGenerator(cfg, "")
	assert.True(t, errors.Is(err, domain.ErrConfiguration))
}
