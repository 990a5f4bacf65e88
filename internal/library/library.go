// Package library holds the registered response templates, selects one per
// request with archetype preference and recency exclusion, and renders it.
package library

import (
	"context"
	"fmt"
	"math/rand/v2"
	"regexp"
	"sort"
	"sync"
	"time"

	"setback/internal/domain"
)

// DefaultWindowSize is the number of recent template ids remembered per worker and category.
const DefaultWindowSize = 5

var placeholderRe = regexp.MustCompile(`\{([A-Za-z0-9_]+)\}`)

// Library is the process-wide template table. Template tables are read-mostly;
// recency state lives in the RecencyStore keyed by worker id.
type Library struct {
	mu        sync.RWMutex
	templates map[domain.Category][]domain.ResponseTemplate

	recency RecencyStore

	rngMu sync.Mutex
	rng   *rand.Rand
}

// Option configures a Library.
type Option func(*Library)

// WithRand injects the random source used for draws. Tests pass a seeded one.
func WithRand(r *rand.Rand) Option {
	return func(l *Library) { l.rng = r }
}

// WithSeed seeds the draw source deterministically.
func WithSeed(seed uint64) Option {
	return func(l *Library) { l.rng = rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)) }
}

// WithRecency replaces the default in-memory recency store.
func WithRecency(store RecencyStore) Option {
	return func(l *Library) { l.recency = store }
}

// New returns an empty library.
func New(opts ...Option) *Library {
	l := &Library{templates: make(map[domain.Category][]domain.ResponseTemplate)}
	for _, opt := range opts {
		opt(l)
	}
	if l.recency == nil {
		l.recency = NewMemoryRecency(DefaultWindowSize)
	}
	if l.rng == nil {
		now := uint64(time.Now().UnixNano())
		l.rng = rand.New(rand.NewPCG(now, now>>7|1))
	}
	return l
}

// Register bulk-loads templates into category. The batch is applied atomically:
// duplicate ids inside the batch, or an id already registered with different
// content, fail the whole call with a ConfigurationError. Re-registering an
// identical template is a no-op.
func (l *Library) Register(category domain.Category, templates []domain.ResponseTemplate) error {
	if !category.Valid() {
		return domain.NewConfigurationError("unknown category %q", category)
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	existing := make(map[string]domain.ResponseTemplate, len(l.templates[category]))
	for _, t := range l.templates[category] {
		existing[t.ID] = t
	}
	var (
		problems []string
		added    []domain.ResponseTemplate
		seen     = make(map[string]struct{}, len(templates))
	)
	for i, t := range templates {
		if t.Category == "" {
			t.Category = category
		}
		switch {
		case t.ID == "":
			problems = append(problems, fmt.Sprintf("%s template #%d has no id", category, i))
			continue
		case t.Category != category:
			problems = append(problems, fmt.Sprintf("template %s declares category %q, registered under %q", t.ID, t.Category, category))
			continue
		case t.Text == "":
			problems = append(problems, fmt.Sprintf("template %s has empty text", t.ID))
			continue
		}
		if _, dup := seen[t.ID]; dup {
			problems = append(problems, fmt.Sprintf("duplicate template id %s in %s", t.ID, category))
			continue
		}
		seen[t.ID] = struct{}{}
		if prev, ok := existing[t.ID]; ok {
			if prev != t {
				problems = append(problems, fmt.Sprintf("template %s already registered in %s with different content", t.ID, category))
			}
			continue
		}
		added = append(added, t)
	}
	if len(problems) > 0 {
		return &domain.ConfigurationError{Problems: problems}
	}
	l.templates[category] = append(l.templates[category], added...)
	return nil
}

// Templates returns a copy of the templates registered for category.
func (l *Library) Templates(category domain.Category) []domain.ResponseTemplate {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]domain.ResponseTemplate(nil), l.templates[category]...)
}

// Categories lists the categories that have at least one template, sorted.
func (l *Library) Categories() []domain.Category {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]domain.Category, 0, len(l.templates))
	for c, ts := range l.templates {
		if len(ts) > 0 {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Select draws one template from category. Templates tagged with
// archetypeHint are preferred when any exist. With excludeRecent, ids in the
// worker's recency window are skipped unless that would empty the pool.
func (l *Library) Select(ctx context.Context, category domain.Category, archetypeHint, workerID string, excludeRecent bool) (domain.ResponseTemplate, error) {
	pool := l.Templates(category)
	if len(pool) == 0 {
		return domain.ResponseTemplate{}, &domain.EmptyCategoryError{Category: category}
	}
	if archetypeHint != "" {
		var preferred []domain.ResponseTemplate
		for _, t := range pool {
			if t.ArchetypeTag == archetypeHint {
				preferred = append(preferred, t)
			}
		}
		if len(preferred) > 0 {
			pool = preferred
		}
	}
	if excludeRecent && len(pool) > 1 {
		recent, err := l.recency.Recent(ctx, workerID, category)
		if err != nil {
			return domain.ResponseTemplate{}, fmt.Errorf("read recency window: %w", err)
		}
		if fresh := withoutRecent(pool, recent); len(fresh) > 0 {
			pool = fresh
		}
	}
	return pool[l.intN(len(pool))], nil
}

// Render substitutes every {name} placeholder in t from vars.
func (l *Library) Render(t domain.ResponseTemplate, vars map[string]any) (string, error) {
	return Render(t, vars)
}

// RecordUsage pushes templateID into the worker's window for category.
func (l *Library) RecordUsage(ctx context.Context, workerID string, category domain.Category, templateID string) error {
	return l.recency.Push(ctx, workerID, category, templateID)
}

// Reset forgets every recency window of workerID. Called on despawn.
func (l *Library) Reset(ctx context.Context, workerID string) error {
	return l.recency.Clear(ctx, workerID)
}

func (l *Library) intN(n int) int {
	l.rngMu.Lock()
	defer l.rngMu.Unlock()
	return l.rng.IntN(n)
}

func withoutRecent(pool []domain.ResponseTemplate, recent []string) []domain.ResponseTemplate {
	if len(recent) == 0 {
		return pool
	}
	skip := make(map[string]struct{}, len(recent))
	for _, id := range recent {
		skip[id] = struct{}{}
	}
	out := make([]domain.ResponseTemplate, 0, len(pool))
	for _, t := range pool {
		if _, ok := skip[t.ID]; !ok {
			out = append(out, t)
		}
	}
	return out
}

// Render substitutes placeholders; the first unbound one fails with MissingVariableError.
func Render(t domain.ResponseTemplate, vars map[string]any) (string, error) {
	var missing string
	out := placeholderRe.ReplaceAllStringFunc(t.Text, func(m string) string {
		name := m[1 : len(m)-1]
		v, ok := vars[name]
		if !ok {
			if missing == "" {
				missing = name
			}
			return m
		}
		return fmt.Sprint(v)
	})
	if missing != "" {
		return "", &domain.MissingVariableError{Name: missing, TemplateID: t.ID}
	}
	return out, nil
}

// Placeholders lists the distinct placeholder names in text, in order of appearance.
func Placeholders(text string) []string {
	var names []string
	seen := map[string]struct{}{}
	for _, m := range placeholderRe.FindAllStringSubmatch(text, -1) {
		if _, ok := seen[m[1]]; ok {
			continue
		}
		seen[m[1]] = struct{}{}
		names = append(names, m[1])
	}
	return names
}
