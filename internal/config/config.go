package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"setback/internal/domain"
	"setback/internal/generator"
	"setback/internal/severity"
)

// Config models setback.yml.
type Config struct {
	Severity severity.Thresholds `yaml:"severity"`
	Recency  struct {
		WindowSize int    `yaml:"window_size"`
		Backend    string `yaml:"backend"`
		Redis      struct {
			Addr   string        `yaml:"addr"`
			DB     int           `yaml:"db"`
			Prefix string        `yaml:"prefix"`
			TTL    time.Duration `yaml:"ttl"`
		} `yaml:"redis"`
	} `yaml:"recency"`
	Archetypes struct {
		MinScore   float64              `yaml:"min_score"`
		Fallback   string               `yaml:"fallback"`
		Affinities []generator.Affinity `yaml:"affinities"`
	} `yaml:"archetypes"`
	Failures map[domain.FailureType]FailurePolicy `yaml:"failures"`
	Presets  map[string]domain.Profile           `yaml:"presets"`
	Fallback struct {
		Dialogue string `yaml:"dialogue"`
	} `yaml:"fallback"`
	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`
	Webhooks     []Webhook                 `yaml:"webhooks"`
	ContentPacks []string                  `yaml:"content_packs"`
	Templates    []domain.ResponseTemplate `yaml:"templates"`
}

// FailurePolicy is the per failure type response wiring.
type FailurePolicy struct {
	Category domain.Category       `yaml:"category"`
	Recovery []domain.RecoveryStep `yaml:"recovery"`
}

// Webhook is a delivery target for engine events.
type Webhook struct {
	ID     string   `yaml:"id"`
	URL    string   `yaml:"url"`
	Events []string `yaml:"events"`
	Secret string   `yaml:"secret"`
}

// Load reads and validates config from workspace.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found; create one with setback config init", path)
		}
		return nil, err
	}
	return FromYAML(data)
}

// LoadOptional returns the built-in defaults if the config file does not exist.
func LoadOptional(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "setback.yml")
}

// GenerateDefault returns the default config YAML.
func GenerateDefault() string {
	return defaultTemplate
}

// Default returns the built-in configuration.
func Default() *Config {
	var cfg Config
	_ = yaml.NewDecoder(bytes.NewBufferString(defaultTemplate)).Decode(&cfg)
	return &cfg
}

// FromYAML overlays raw YAML on the defaults and validates the result.
// Maps merge key by key; lists replace the default list.
func FromYAML(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// FromFile reads YAML config from the given path.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}

// Validate collects every structural problem into one ConfigurationError.
func (c *Config) Validate() error {
	var problems []string
	add := func(format string, args ...any) { problems = append(problems, fmt.Sprintf(format, args...)) }

	if err := c.Severity.Validate(); err != nil {
		add("%v", err)
	}
	if c.Recency.WindowSize <= 0 {
		add("recency.window_size must be positive")
	}
	switch c.Recency.Backend {
	case "", "memory":
	case "redis":
		if c.Recency.Redis.Addr == "" {
			add("recency.redis.addr is required when backend is redis")
		}
	default:
		add("recency.backend must be memory or redis, got %q", c.Recency.Backend)
	}

	if c.Archetypes.Fallback == "" {
		add("archetypes.fallback is required")
	}
	seenTags := map[string]bool{}
	for i, a := range c.Archetypes.Affinities {
		if a.Tag == "" {
			add("archetypes.affinities[%d] has no tag", i)
			continue
		}
		if seenTags[a.Tag] {
			add("archetype %s defined twice", a.Tag)
		}
		seenTags[a.Tag] = true
		if len(a.Weights) == 0 {
			add("archetype %s has no weights", a.Tag)
		}
		for trait := range a.Weights {
			if !trait.Valid() {
				add("archetype %s weights unknown trait %q", a.Tag, trait)
			}
		}
	}

	for ft, policy := range c.Failures {
		if !ft.Valid() {
			add("failures: unknown failure type %q", ft)
			continue
		}
		if policy.Category != "" && !policy.Category.Valid() {
			add("failures.%s.category: unknown category %q", ft, policy.Category)
		}
		for _, step := range policy.Recovery {
			if step == "" {
				add("failures.%s.recovery has an empty step", ft)
			}
		}
	}

	for name, p := range c.Presets {
		if name == "" {
			add("presets contains an empty name")
		}
		if p != p.Clamp() {
			add("preset %s has trait values outside [0,100]", name)
		}
	}

	if c.Fallback.Dialogue == "" {
		add("fallback.dialogue is required")
	}
	switch c.Log.Level {
	case "", "debug", "info", "warn", "error":
	default:
		add("log.level must be debug, info, warn or error, got %q", c.Log.Level)
	}
	switch c.Log.Format {
	case "", "json", "console":
	default:
		add("log.format must be json or console, got %q", c.Log.Format)
	}

	webhookIDs := map[string]bool{}
	for i, wh := range c.Webhooks {
		if wh.ID == "" {
			add("webhooks[%d] has no id", i)
		} else if webhookIDs[wh.ID] {
			add("webhook %s defined twice", wh.ID)
		}
		webhookIDs[wh.ID] = true
		if wh.URL == "" {
			add("webhooks[%d] has no url", i)
		}
	}

	for i, pack := range c.ContentPacks {
		if pack == "" {
			add("content_packs[%d] is empty", i)
		}
	}
	for i, t := range c.Templates {
		if !t.Category.Valid() {
			add("templates[%d] (%s): unknown category %q", i, t.ID, t.Category)
		}
	}

	if len(problems) > 0 {
		return &domain.ConfigurationError{Problems: problems}
	}
	return nil
}

// Preset returns the named personality preset.
func (c *Config) Preset(name string) (domain.Profile, bool) {
	p, ok := c.Presets[name]
	return p, ok
}

// GeneratorSettings projects the config onto the generator's tables.
func (c *Config) GeneratorSettings() generator.Settings {
	s := generator.Settings{
		Archetypes:        append([]generator.Affinity(nil), c.Archetypes.Affinities...),
		MinArchetypeScore: c.Archetypes.MinScore,
		FallbackArchetype: c.Archetypes.Fallback,
		RecoveryPlans:     make(map[domain.FailureType][]domain.RecoveryStep, len(c.Failures)),
		ResponseCategory:  make(map[domain.FailureType]domain.Category, len(c.Failures)),
	}
	for ft, policy := range c.Failures {
		s.RecoveryPlans[ft] = append([]domain.RecoveryStep(nil), policy.Recovery...)
		if policy.Category != "" {
			s.ResponseCategory[ft] = policy.Category
		}
	}
	return s
}

const defaultTemplate = `severity:
  moderate: 20
  significant: 40
  critical: 60

recency:
  window_size: 5
  backend: memory
  redis:
    prefix: setback:recency

archetypes:
  min_score: 0.25
  fallback: balanced
  affinities:
    - tag: worrier
      weights: {neuroticism: 1.0, extraversion: -0.3}
    - tag: perfectionist
      weights: {conscientiousness: 0.7, formality: 0.5}
    - tag: enthusiast
      weights: {extraversion: 0.5, humor: 0.5, encouragement: 0.3}
    - tag: stoic
      weights: {neuroticism: -0.6, extraversion: -0.5, humor: -0.3}
    - tag: people-pleaser
      weights: {agreeableness: 0.8, neuroticism: 0.2}
    - tag: innovator
      weights: {openness: 0.9}
    - tag: overconfident
      weights: {extraversion: 0.7, conscientiousness: -0.6}

# Dialogue comes from the error category. A failure type may opt into
# another category, e.g. "category: danger" under combat-loss.
failures:
  tool-breakage:
    recovery: [craft-replacement, resume-task]
  navigation-blocked:
    recovery: [return-to-known-location, replan-route, resume-task]
  resource-depleted:
    recovery: [gather-resources, resume-task]
  structural-collapse:
    recovery: [clear-debris, rebuild-structure, resume-task]
  combat-loss:
    recovery: []
  task-timeout:
    recovery: [restart-task]
  item-loss:
    recovery: [recover-items, resume-task]
  communication-error:
    recovery: [request-clarification, resume-task]

presets:
  foreman:           {openness: 50, conscientiousness: 85, extraversion: 65, agreeableness: 60, neuroticism: 35, formality: 55, humor: 45, encouragement: 75}
  builder:           {openness: 40, conscientiousness: 95, extraversion: 40, agreeableness: 55, neuroticism: 45, formality: 45, humor: 30, encouragement: 65}
  optimist:          {openness: 80, conscientiousness: 70, extraversion: 85, agreeableness: 85, neuroticism: 25, formality: 20, humor: 80, encouragement: 90}
  veteran:           {openness: 45, conscientiousness: 75, extraversion: 45, agreeableness: 65, neuroticism: 40, formality: 60, humor: 50, encouragement: 70}
  rookie:            {openness: 75, conscientiousness: 65, extraversion: 70, agreeableness: 80, neuroticism: 55, formality: 40, humor: 60, encouragement: 85}
  techie:            {openness: 85, conscientiousness: 75, extraversion: 50, agreeableness: 50, neuroticism: 40, formality: 50, humor: 55, encouragement: 65}
  artist:            {openness: 95, conscientiousness: 55, extraversion: 60, agreeableness: 70, neuroticism: 50, formality: 35, humor: 50, encouragement: 80}
  efficiency-expert: {openness: 55, conscientiousness: 90, extraversion: 55, agreeableness: 40, neuroticism: 50, formality: 60, humor: 35, encouragement: 60}

fallback:
  dialogue: "Something went wrong. Give me a moment to sort it out."

log:
  level: info
  format: json

content_packs: [builtin]
`
