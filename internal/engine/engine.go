package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"setback/internal/config"
	"setback/internal/domain"
	"setback/internal/events"
	"setback/internal/generator"
	"setback/internal/logging"
	"setback/internal/repo"
)

// ErrInvalidInput marks caller mistakes: unknown presets, traits or failure types.
var ErrInvalidInput = errors.New("invalid input")

type Engine struct {
	DB        *sql.DB
	Repo      repo.Repo
	Events    events.Writer
	Config    *config.Config
	Generator *generator.Generator
	Logger    *zap.Logger
	Now       func() time.Time

	locks *workerLocks
}

func New(db *sql.DB, cfg *config.Config, gen *generator.Generator, logger *zap.Logger) Engine {
	return Engine{
		DB:        db,
		Repo:      repo.Repo{DB: db},
		Events:    events.Writer{},
		Config:    cfg,
		Generator: gen,
		Logger:    logging.OrNop(logger),
		Now:       time.Now,
		locks:     &workerLocks{m: map[string]*sync.Mutex{}},
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e Engine) logger() *zap.Logger {
	return logging.OrNop(e.Logger)
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}

// SpawnOptions describe a new worker. At most one of Preset and Profile may
// be set; neither means the default profile. Overrides apply last.
type SpawnOptions struct {
	ID        string
	Name      string
	Preset    string
	Profile   *domain.Profile
	Overrides map[domain.Trait]int
	ActorID   string
}

func (e Engine) SpawnWorker(ctx context.Context, opts SpawnOptions) (domain.Worker, error) {
	profile, preset, err := e.resolveProfile(domain.DefaultProfile(), opts.Preset, opts.Profile, opts.Overrides)
	if err != nil {
		return domain.Worker{}, err
	}
	id := opts.ID
	if id == "" {
		id = uuid.New().String()
	}
	name := opts.Name
	if name == "" {
		name = id
	}
	// Names are bound into dialogue; a brace would read as a placeholder.
	if strings.ContainsAny(name, "{}") {
		return domain.Worker{}, invalid("worker name %q must not contain braces", name)
	}
	now := e.now().UTC().Format(time.RFC3339)
	w := domain.Worker{ID: id, Name: name, Preset: preset, Profile: profile, CreatedAt: now, UpdatedAt: now}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Worker{}, err
	}
	defer tx.Rollback()
	if _, err := e.Repo.GetWorkerTx(ctx, tx, id); err == nil {
		return domain.Worker{}, fmt.Errorf("worker %s already exists", id)
	} else if !errors.Is(err, repo.ErrNotFound) {
		return domain.Worker{}, err
	}
	if err := e.Repo.InsertWorker(ctx, tx, w); err != nil {
		return domain.Worker{}, fmt.Errorf("insert worker: %w", err)
	}
	if err := e.Events.Append(ctx, tx, events.WorkerSpawned, "worker", w.ID, opts.ActorID, events.EventPayload{
		"name":    w.Name,
		"preset":  w.Preset,
		"profile": w.Profile,
	}); err != nil {
		return domain.Worker{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Worker{}, err
	}
	e.refreshWorkerGauge(ctx)
	e.logger().Info("worker spawned", zap.String("worker_id", w.ID), zap.String("preset", w.Preset))
	return w, nil
}

// SetPersonalityOptions replace or adjust a worker's profile. With neither
// Preset nor Profile the current profile is the base for Overrides.
type SetPersonalityOptions struct {
	WorkerID  string
	Preset    string
	Profile   *domain.Profile
	Overrides map[domain.Trait]int
	ActorID   string
}

func (e Engine) SetPersonality(ctx context.Context, opts SetPersonalityOptions) (domain.Worker, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Worker{}, err
	}
	defer tx.Rollback()
	w, err := e.Repo.GetWorkerTx(ctx, tx, opts.WorkerID)
	if err != nil {
		return domain.Worker{}, err
	}
	profile, preset, err := e.resolveProfile(w.Profile, opts.Preset, opts.Profile, opts.Overrides)
	if err != nil {
		return domain.Worker{}, err
	}
	if opts.Preset == "" && opts.Profile == nil && len(opts.Overrides) == 0 {
		return domain.Worker{}, invalid("no personality change requested")
	}
	if opts.Preset == "" && opts.Profile == nil {
		preset = ""
	}
	w.Profile = profile
	w.Preset = preset
	w.UpdatedAt = e.now().UTC().Format(time.RFC3339)
	if err := e.Repo.UpdateWorkerProfile(ctx, tx, w.ID, w.Profile, w.Preset, w.UpdatedAt); err != nil {
		return domain.Worker{}, err
	}
	if err := e.Events.Append(ctx, tx, events.PersonalityUpdated, "worker", w.ID, opts.ActorID, events.EventPayload{
		"preset":  w.Preset,
		"profile": w.Profile,
	}); err != nil {
		return domain.Worker{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Worker{}, err
	}
	return w, nil
}

// DespawnWorker deletes the worker with its history and forgets its recency windows.
func (e Engine) DespawnWorker(ctx context.Context, workerID, actorID string) error {
	unlock := e.lockWorker(workerID)
	defer unlock()

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := e.Repo.DeleteWorker(ctx, tx, workerID); err != nil {
		return err
	}
	if err := e.Events.Append(ctx, tx, events.WorkerDespawned, "worker", workerID, actorID, nil); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	e.refreshWorkerGauge(ctx)
	if e.Generator != nil {
		if err := e.Generator.Library().Reset(ctx, workerID); err != nil {
			return fmt.Errorf("reset recency for %s: %w", workerID, err)
		}
	}
	return nil
}

func (e Engine) resolveProfile(base domain.Profile, preset string, explicit *domain.Profile, overrides map[domain.Trait]int) (domain.Profile, string, error) {
	if preset != "" && explicit != nil {
		return domain.Profile{}, "", invalid("preset and explicit profile are mutually exclusive")
	}
	profile := base
	switch {
	case preset != "":
		if e.Config == nil {
			return domain.Profile{}, "", errors.New("config not loaded")
		}
		p, ok := e.Config.Preset(preset)
		if !ok {
			return domain.Profile{}, "", invalid("unknown preset %q", preset)
		}
		profile = p
	case explicit != nil:
		profile = explicit.Clamp()
	}
	for _, trait := range domain.Traits {
		v, ok := overrides[trait]
		if !ok {
			continue
		}
		profile, _ = profile.With(trait, v)
	}
	for trait := range overrides {
		if !trait.Valid() {
			return domain.Profile{}, "", invalid("unknown trait %q", trait)
		}
	}
	return profile, preset, nil
}

// ValidateContent checks the loaded content pack against the generator's needs.
func (e Engine) ValidateContent() error {
	if e.Generator == nil {
		return errors.New("generator not configured")
	}
	return e.Generator.Validate()
}

// workerLocks serialises failure handling per worker so the previous-failure
// count read and the insert that follows cannot interleave.
type workerLocks struct {
	mu sync.Mutex
	m  map[string]*sync.Mutex
}

func (e Engine) lockWorker(id string) func() {
	if e.locks == nil {
		return func() {}
	}
	e.locks.mu.Lock()
	l, ok := e.locks.m[id]
	if !ok {
		l = &sync.Mutex{}
		e.locks.m[id] = l
	}
	e.locks.mu.Unlock()
	l.Lock()
	return l.Unlock
}
