package library

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"setback/internal/domain"
)

func tmpl(id, archetype, text string) domain.ResponseTemplate {
	return domain.ResponseTemplate{ID: id, Category: domain.CategoryError, ArchetypeTag: archetype, Text: text}
}

func threeErrors() []domain.ResponseTemplate {
	return []domain.ResponseTemplate{
		tmpl("err-1", "", "Oops, {failure_label}."),
		tmpl("err-2", "", "That {failure_type} was on me."),
		tmpl("err-3", "", "Well, that went badly."),
	}
}

func TestSelectExcludesRecentTemplates(t *testing.T) {
	ctx := context.Background()
	for seed := uint64(0); seed < 20; seed++ {
		lib := New(WithSeed(seed))
		require.NoError(t, lib.Register(domain.CategoryError, threeErrors()))

		seen := map[string]bool{}
		for i := 0; i < 3; i++ {
			got, err := lib.Select(ctx, domain.CategoryError, "", "w1", true)
			require.NoError(t, err)
			assert.False(t, seen[got.ID], "seed %d draw %d repeated %s", seed, i, got.ID)
			seen[got.ID] = true
			require.NoError(t, lib.RecordUsage(ctx, "w1", domain.CategoryError, got.ID))
		}
		assert.Len(t, seen, 3)
	}
}

func TestSelectSingleTemplateNeverStarves(t *testing.T) {
	ctx := context.Background()
	lib := New(WithSeed(1))
	require.NoError(t, lib.Register(domain.CategoryError, threeErrors()[:1]))
	for i := 0; i < 10; i++ {
		got, err := lib.Select(ctx, domain.CategoryError, "", "w1", true)
		require.NoError(t, err)
		assert.Equal(t, "err-1", got.ID)
		require.NoError(t, lib.RecordUsage(ctx, "w1", domain.CategoryError, got.ID))
	}
}

func TestSelectFallsBackWhenEverythingIsRecent(t *testing.T) {
	ctx := context.Background()
	lib := New(WithSeed(3))
	require.NoError(t, lib.Register(domain.CategoryError, threeErrors()))
	for _, id := range []string{"err-1", "err-2", "err-3"} {
		require.NoError(t, lib.RecordUsage(ctx, "w1", domain.CategoryError, id))
	}
	got, err := lib.Select(ctx, domain.CategoryError, "", "w1", true)
	require.NoError(t, err)
	assert.Contains(t, []string{"err-1", "err-2", "err-3"}, got.ID)
}

func TestSelectRecencyIsPerWorker(t *testing.T) {
	ctx := context.Background()
	lib := New(WithSeed(5))
	ts := threeErrors()[:2]
	require.NoError(t, lib.Register(domain.CategoryError, ts))
	require.NoError(t, lib.RecordUsage(ctx, "w1", domain.CategoryError, "err-1"))

	got, err := lib.Select(ctx, domain.CategoryError, "", "w1", true)
	require.NoError(t, err)
	assert.Equal(t, "err-2", got.ID)

	// w2 has no history, both remain eligible.
	drawn := map[string]bool{}
	for i := 0; i < 50; i++ {
		got, err := lib.Select(ctx, domain.CategoryError, "", "w2", true)
		require.NoError(t, err)
		drawn[got.ID] = true
	}
	assert.Len(t, drawn, 2)
}

func TestSelectPrefersArchetype(t *testing.T) {
	ctx := context.Background()
	lib := New(WithSeed(9))
	require.NoError(t, lib.Register(domain.CategoryError, []domain.ResponseTemplate{
		tmpl("a", "pessimist", "It always ends like this."),
		tmpl("b", "", "Oops."),
		tmpl("c", "overconfident", "Barely a scratch."),
	}))
	for i := 0; i < 20; i++ {
		got, err := lib.Select(ctx, domain.CategoryError, "pessimist", "w1", false)
		require.NoError(t, err)
		assert.Equal(t, "a", got.ID)
	}
	// Unknown hint falls back to the whole category.
	got, err := lib.Select(ctx, domain.CategoryError, "stoic", "w1", false)
	require.NoError(t, err)
	assert.NotEmpty(t, got.ID)
}

func TestSelectEmptyCategory(t *testing.T) {
	lib := New()
	_, err := lib.Select(context.Background(), domain.CategoryCompletion, "", "w1", true)
	var empty *domain.EmptyCategoryError
	require.True(t, errors.As(err, &empty))
	assert.Equal(t, domain.CategoryCompletion, empty.Category)
}

func TestRegisterIsIdempotentForIdenticalTemplates(t *testing.T) {
	lib := New()
	require.NoError(t, lib.Register(domain.CategoryError, threeErrors()))
	require.NoError(t, lib.Register(domain.CategoryError, threeErrors()))
	assert.Len(t, lib.Templates(domain.CategoryError), 3)
}

func TestRegisterRejectsConflicts(t *testing.T) {
	lib := New()
	require.NoError(t, lib.Register(domain.CategoryError, threeErrors()))

	err := lib.Register(domain.CategoryError, []domain.ResponseTemplate{tmpl("err-1", "", "different text")})
	assert.True(t, errors.Is(err, domain.ErrConfiguration))

	err = lib.Register(domain.CategoryError, []domain.ResponseTemplate{
		tmpl("err-9", "", "x"),
		tmpl("err-9", "", "y"),
	})
	assert.True(t, errors.Is(err, domain.ErrConfiguration))
	// Rejected batches leave the table untouched.
	assert.Len(t, lib.Templates(domain.CategoryError), 3)

	err = lib.Register(domain.Category("gossip"), threeErrors())
	assert.True(t, errors.Is(err, domain.ErrConfiguration))

	err = lib.Register(domain.CategoryCompletion, threeErrors())
	assert.True(t, errors.Is(err, domain.ErrConfiguration), "category mismatch")
}

func TestRender(t *testing.T) {
	vars := map[string]any{"failure_type": "tool-breakage", "count": 2, "worker": "Bram"}
	out, err := Render(tmpl("l-1", "", "{worker}: {failure_type} x{count}, {count} times."), vars)
	require.NoError(t, err)
	assert.Equal(t, "Bram: tool-breakage x2, 2 times.", out)
	assert.NotContains(t, out, "{")

	_, err = Render(tmpl("l-2", "", "I hit {failure_type} after {attempts} tries."), vars)
	var missing *domain.MissingVariableError
	require.True(t, errors.As(err, &missing))
	assert.Equal(t, "attempts", missing.Name)
	assert.Equal(t, "l-2", missing.TemplateID)

	out, err = Render(tmpl("l-3", "", "No placeholders { here }."), nil)
	require.NoError(t, err)
	assert.Equal(t, "No placeholders { here }.", out)
}

func TestPlaceholders(t *testing.T) {
	assert.Equal(t, []string{"failure_type", "count"}, Placeholders("{failure_type} {count} {failure_type}"))
	assert.Empty(t, Placeholders("plain"))
}

func TestResetForgetsWorker(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryRecency(5)
	lib := New(WithRecency(store))
	require.NoError(t, lib.RecordUsage(ctx, "w1", domain.CategoryError, "err-1"))
	require.NoError(t, lib.RecordUsage(ctx, "w2", domain.CategoryError, "err-2"))
	require.NoError(t, lib.Reset(ctx, "w1"))

	got, err := store.Recent(ctx, "w1", domain.CategoryError)
	require.NoError(t, err)
	assert.Empty(t, got)
	got, err = store.Recent(ctx, "w2", domain.CategoryError)
	require.NoError(t, err)
	assert.Equal(t, []string{"err-2"}, got)
}

func TestMemoryRecencyIsBounded(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryRecency(3)
	for i := 0; i < 10; i++ {
		require.NoError(t, store.Push(ctx, "w1", domain.CategoryError, fmt.Sprintf("t%d", i)))
	}
	got, err := store.Recent(ctx, "w1", domain.CategoryError)
	require.NoError(t, err)
	assert.Equal(t, []string{"t9", "t8", "t7"}, got)
}

func TestMemoryRecencyConcurrentWorkers(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryRecency(5)
	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			id := fmt.Sprintf("w%d", w)
			for i := 0; i < 100; i++ {
				_ = store.Push(ctx, id, domain.CategoryError, fmt.Sprintf("%s-%d", id, i))
			}
		}(w)
	}
	wg.Wait()
	for w := 0; w < 8; w++ {
		id := fmt.Sprintf("w%d", w)
		got, err := store.Recent(ctx, id, domain.CategoryError)
		require.NoError(t, err)
		require.Len(t, got, 5)
		for _, tid := range got {
			assert.True(t, strings.HasPrefix(tid, id+"-"), "window of %s leaked %s", id, tid)
		}
	}
}

func TestRedisRecency(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	store := NewRedisRecency(client, RedisRecencyConfig{Prefix: "setback", Size: 2})
	got, err := store.Recent(ctx, "w1", domain.CategoryError)
	require.NoError(t, err)
	assert.Empty(t, got)

	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, store.Push(ctx, "w1", domain.CategoryError, id))
	}
	require.NoError(t, store.Push(ctx, "w1", domain.CategoryCompletion, "h"))
	got, err = store.Recent(ctx, "w1", domain.CategoryError)
	require.NoError(t, err)
	assert.Equal(t, []string{"c", "b"}, got)
	assert.True(t, mr.Exists("setback:w1:error"))

	require.NoError(t, store.Clear(ctx, "w1"))
	assert.False(t, mr.Exists("setback:w1:error"))
	assert.False(t, mr.Exists("setback:w1:completion"))
}

type delRecorder struct {
	mu   sync.Mutex
	dels [][]any
}

func (h *delRecorder) DialHook(next redis.DialHook) redis.DialHook {
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		return next(ctx, network, addr)
	}
}

func (h *delRecorder) ProcessHook(next redis.ProcessHook) redis.ProcessHook {
	return func(ctx context.Context, cmd redis.Cmder) error {
		h.record(cmd)
		return next(ctx, cmd)
	}
}

func (h *delRecorder) ProcessPipelineHook(next redis.ProcessPipelineHook) redis.ProcessPipelineHook {
	return func(ctx context.Context, cmds []redis.Cmder) error {
		for _, cmd := range cmds {
			h.record(cmd)
		}
		return next(ctx, cmds)
	}
}

func (h *delRecorder) record(cmd redis.Cmder) {
	if cmd.Name() != "del" {
		return
	}
	h.mu.Lock()
	h.dels = append(h.dels, cmd.Args())
	h.mu.Unlock()
}

func TestRedisRecencyClearDeletesKeysSeparately(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	hook := &delRecorder{}
	client.AddHook(hook)

	store := NewRedisRecency(client, RedisRecencyConfig{Prefix: "setback", Size: 4})
	for _, c := range domain.Categories {
		require.NoError(t, store.Push(ctx, "w1", c, "t-"+string(c)))
	}
	require.NoError(t, store.Push(ctx, "w2", domain.CategoryError, "keep"))

	require.NoError(t, store.Clear(ctx, "w1"))
	for _, c := range domain.Categories {
		assert.False(t, mr.Exists("setback:w1:"+string(c)), c)
	}
	assert.True(t, mr.Exists("setback:w2:error"))

	hook.mu.Lock()
	defer hook.mu.Unlock()
	require.Len(t, hook.dels, len(domain.Categories))
	for _, args := range hook.dels {
		assert.Len(t, args, 2, "one key per DEL: %v", args)
	}
}

func TestLibraryWithRedisRecency(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	lib := New(WithSeed(11), WithRecency(NewRedisRecency(client, RedisRecencyConfig{})))
	require.NoError(t, lib.Register(domain.CategoryError, threeErrors()))
	seen := map[string]bool{}
	for i := 0; i < 3; i++ {
		got, err := lib.Select(ctx, domain.CategoryError, "", "w1", true)
		require.NoError(t, err)
		require.False(t, seen[got.ID])
		seen[got.ID] = true
		require.NoError(t, lib.RecordUsage(ctx, "w1", domain.CategoryError, got.ID))
	}
}
