package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"setback/internal/app"
	"setback/internal/config"
	"setback/internal/db"
	"setback/internal/domain"
	"setback/internal/engine"
	"setback/internal/repo"
	"setback/internal/server"
)

var rootCmd = &cobra.Command{
	Use:   "setback",
	Short: "Setback failure-response engine",
	Long: `Setback gives game AI workers a personality-driven way to respond to failure.
Core concepts:
- Worker: a spawned AI worker with a personality profile (eight traits, 0..100).
- Preset: a named starting profile such as veteran or rookie; traits can be overridden.
- Failure: a failure type (tool-breakage, combat-loss, ...) with a raw severity score.
- Response: dialogue, an optional learning statement, a recovery plan and whether the player should reassure the worker.
- Content packs: YAML template libraries, validated when the runtime starts.
- Event log: every spawn, personality change and failure response; view with 'setback events'.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		workspace := viper.GetString("workspace")
		if _, err := db.EnsureWorkspace(workspace); err != nil {
			return err
		}
		return nil
	},
	SilenceUsage: true,
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		stop()
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("SETBACK")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("actor-id", "local-user", "actor identifier")
	rootCmd.PersistentFlags().String("redis-addr", "", "use the redis recency backend at this address")
	rootCmd.PersistentFlags().String("log-level", "", "log level (overrides setback.yml)")
	rootCmd.PersistentFlags().Uint64("seed", 0, "seed template selection for reproducible output")
	for _, name := range []string{"workspace", "json", "actor-id", "redis-addr", "log-level", "seed"} {
		_ = viper.BindPFlag(name, rootCmd.PersistentFlags().Lookup(name))
	}
}

func registerCommands() {
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(workerCmd())
	rootCmd.AddCommand(respondCmd())
	rootCmd.AddCommand(lineCmd("help-request", "Ask the player for help with a failure", engine.Engine.HelpRequest))
	rootCmd.AddCommand(lineCmd("embarrass", "React to a failure the player witnessed", engine.Engine.Embarrassment))
	rootCmd.AddCommand(learningsCmd())
	rootCmd.AddCommand(templatesCmd())
	rootCmd.AddCommand(presetsCmd())
	rootCmd.AddCommand(eventsCmd())
	rootCmd.AddCommand(apiKeyCmd())
	rootCmd.AddCommand(serveCmd())
}

func configCmd() *cobra.Command {
	cfg := &cobra.Command{
		Use:   "config",
		Short: "Manage setback.yml",
		Long:  "setback.yml holds severity thresholds, archetypes, presets, recovery plans, content packs and webhooks. Without it the built-in defaults apply.",
	}
	cfg.AddCommand(configInitCmd())
	cfg.AddCommand(configShowCmd())
	cfg.AddCommand(configValidateCmd())
	return cfg
}

func configInitCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write the default setback.yml",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := config.Path(viper.GetString("workspace"))
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", path)
			}
			if err := os.WriteFile(path, []byte(config.GenerateDefault()), 0o644); err != nil {
				return err
			}
			fmt.Println("wrote", path)
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")
	return cmd
}

func configShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show the effective config",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadOptional(viper.GetString("workspace"))
			if err != nil {
				return err
			}
			return printJSON(cfg)
		},
	}
}

// configValidateCmd checks setback.yml and every content pack it names.
func configValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate config and content packs",
		RunE: func(cmd *cobra.Command, args []string) error {
			err := withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				return e.ValidateContent()
			})
			if viper.GetBool("json") {
				out := map[string]any{"ok": err == nil}
				if err != nil {
					out["error"] = err.Error()
				}
				return printJSON(out)
			}
			if err != nil {
				return err
			}
			fmt.Println("config OK")
			return nil
		},
	}
}

func workerCmd() *cobra.Command {
	w := &cobra.Command{Use: "worker", Short: "Manage workers"}
	w.AddCommand(workerSpawnCmd())
	w.AddCommand(workerListCmd())
	w.AddCommand(workerShowCmd())
	w.AddCommand(workerSetCmd())
	w.AddCommand(workerDespawnCmd())
	return w
}

func workerSpawnCmd() *cobra.Command {
	var id, name, preset string
	var traits map[string]int
	cmd := &cobra.Command{
		Use:   "spawn",
		Short: "Spawn a worker",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				w, err := e.SpawnWorker(ctx, engine.SpawnOptions{
					ID:        id,
					Name:      name,
					Preset:    preset,
					Overrides: toTraits(traits),
					ActorID:   viper.GetString("actor-id"),
				})
				if err != nil {
					return err
				}
				return printWorker(e, w)
			})
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "worker id (generated when empty)")
	cmd.Flags().StringVar(&name, "name", "", "display name")
	cmd.Flags().StringVar(&preset, "preset", "", "personality preset")
	cmd.Flags().StringToIntVar(&traits, "trait", nil, "trait overrides, e.g. --trait humor=80,neuroticism=20")
	return cmd
}

func workerListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List workers",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.Repo.ListWorkers(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := newTable()
				tw.AppendHeader(table.Row{"ID", "Name", "Preset", "Archetype", "Profile"})
				for _, w := range items {
					tw.AppendRow(table.Row{w.ID, w.Name, w.Preset, e.Generator.Archetype(w.Profile), w.Profile.String()})
				}
				fmt.Println(tw.Render())
				return nil
			})
		},
	}
}

func workerShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show a worker and its failure history",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				w, err := e.Repo.GetWorker(ctx, args[0])
				if err != nil {
					return err
				}
				counts, err := e.Repo.FailureCounts(ctx, w.ID)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(map[string]any{
						"worker":         w,
						"archetype":      e.Generator.Archetype(w.Profile),
						"failure_counts": counts,
					})
				}
				if err := printWorker(e, w); err != nil {
					return err
				}
				if len(counts) == 0 {
					fmt.Println("No failures recorded.")
					return nil
				}
				tw := newTable()
				tw.AppendHeader(table.Row{"Failure type", "Count"})
				for _, ft := range sortedKeys(counts) {
					tw.AppendRow(table.Row{ft, counts[ft]})
				}
				fmt.Println(tw.Render())
				return nil
			})
		},
	}
}

func workerSetCmd() *cobra.Command {
	var preset string
	var traits map[string]int
	cmd := &cobra.Command{
		Use:   "set <id>",
		Short: "Change a worker's personality",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				w, err := e.SetPersonality(ctx, engine.SetPersonalityOptions{
					WorkerID:  args[0],
					Preset:    preset,
					Overrides: toTraits(traits),
					ActorID:   viper.GetString("actor-id"),
				})
				if err != nil {
					return err
				}
				return printWorker(e, w)
			})
		},
	}
	cmd.Flags().StringVar(&preset, "preset", "", "personality preset")
	cmd.Flags().StringToIntVar(&traits, "trait", nil, "trait overrides, e.g. --trait humor=80")
	return cmd
}

func workerDespawnCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "despawn <id>",
		Short: "Despawn a worker and forget its history",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				if err := e.DespawnWorker(ctx, args[0], viper.GetString("actor-id")); err != nil {
					return err
				}
				fmt.Println("despawned", args[0])
				return nil
			})
		},
	}
}

type failureFlags struct {
	failureType string
	score       float64
	emotion     string
}

func (f *failureFlags) bind(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.failureType, "type", "", "failure type")
	cmd.Flags().Float64Var(&f.score, "score", 0, "raw severity score (0..100)")
	cmd.Flags().StringVar(&f.emotion, "emotion", "", "emotional state")
	_ = cmd.MarkFlagRequired("type")
}

func (f *failureFlags) event(workerID string) (engine.FailureEvent, error) {
	ft, err := domain.ParseFailureType(f.failureType)
	if err != nil {
		return engine.FailureEvent{}, err
	}
	mood, err := domain.ParseEmotionalState(f.emotion)
	if err != nil {
		return engine.FailureEvent{}, err
	}
	return engine.FailureEvent{
		WorkerID:    workerID,
		FailureType: ft,
		Score:       f.score,
		Emotion:     mood,
		ActorID:     viper.GetString("actor-id"),
	}, nil
}

func respondCmd() *cobra.Command {
	var ff failureFlags
	cmd := &cobra.Command{
		Use:   "respond <worker-id>",
		Short: "Report a failure and print the worker's response",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ev, err := ff.event(args[0])
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				out, err := e.HandleFailure(ctx, ev)
				if err != nil && !out.Fallback {
					return err
				}
				if viper.GetBool("json") {
					payload := map[string]any{"response": out}
					if err != nil {
						payload["error"] = err.Error()
					}
					return printJSON(payload)
				}
				printOutcome(out)
				if err != nil {
					fmt.Fprintln(os.Stderr, "warning: fallback dialogue used:", err)
				}
				return nil
			})
		},
	}
	ff.bind(cmd)
	return cmd
}

func lineCmd(use, short string, say func(engine.Engine, context.Context, engine.FailureEvent) (string, error)) *cobra.Command {
	var ff failureFlags
	cmd := &cobra.Command{
		Use:   use + " <worker-id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ev, err := ff.event(args[0])
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				text, err := say(e, ctx, ev)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(map[string]string{"worker_id": ev.WorkerID, "text": text})
				}
				fmt.Println(text)
				return nil
			})
		},
	}
	ff.bind(cmd)
	return cmd
}

func learningsCmd() *cobra.Command {
	var n int
	cmd := &cobra.Command{
		Use:   "learnings <worker-id>",
		Short: "List what a worker has learned",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				items, err := r.ListLearnings(ctx, args[0], n)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := newTable()
				tw.AppendHeader(table.Row{"When", "Failure type", "Statement"})
				for _, l := range items {
					tw.AppendRow(table.Row{l.CreatedAt, l.FailureType, l.Statement})
				}
				fmt.Println(tw.Render())
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&n, "n", 20, "number of learnings")
	return cmd
}

func templatesCmd() *cobra.Command {
	tpl := &cobra.Command{Use: "templates", Short: "Inspect response templates"}
	tpl.AddCommand(templatesListCmd())
	tpl.AddCommand(templatesPreviewCmd())
	return tpl
}

func templatesListCmd() *cobra.Command {
	var category string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List loaded templates",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				lib := e.Generator.Library()
				categories := lib.Categories()
				if category != "" {
					c := domain.Category(category)
					if !c.Valid() {
						return fmt.Errorf("unknown category %q", category)
					}
					categories = []domain.Category{c}
				}
				var items []domain.ResponseTemplate
				for _, c := range categories {
					items = append(items, lib.Templates(c)...)
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := newTable()
				tw.AppendHeader(table.Row{"ID", "Category", "Archetype", "Text"})
				for _, t := range items {
					tw.AppendRow(table.Row{t.ID, t.Category, t.ArchetypeTag, t.Text})
				}
				fmt.Println(tw.Render())
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&category, "category", "", "only this category")
	return cmd
}

// templatesPreviewCmd previews one response for a hypothetical worker without
// recording anything.
func templatesPreviewCmd() *cobra.Command {
	var ff failureFlags
	var preset string
	var previous int
	cmd := &cobra.Command{
		Use:   "preview",
		Short: "Preview a response for a preset without recording it",
		RunE: func(cmd *cobra.Command, args []string) error {
			ev, err := ff.event("preview")
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				profile := domain.DefaultProfile()
				if preset != "" {
					p, ok := e.Config.Preset(preset)
					if !ok {
						return fmt.Errorf("unknown preset %q", preset)
					}
					profile = p
				}
				fc := domain.NewFailureContext(ev.WorkerID, ev.FailureType, ev.Score, profile, previous, ev.Emotion)
				fc.WorkerName = "Preview"
				resp, err := e.Generator.GenerateResponse(ctx, fc)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(resp)
				}
				printOutcome(engine.FailureOutcome{FailureResponse: resp, WorkerID: ev.WorkerID, FailureType: ev.FailureType, PreviousFailureCount: previous})
				return nil
			})
		},
	}
	ff.bind(cmd)
	cmd.Flags().StringVar(&preset, "preset", "", "personality preset")
	cmd.Flags().IntVar(&previous, "previous", 0, "previous failures of this type")
	return cmd
}

func presetsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "presets",
		Short: "List personality presets",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadOptional(viper.GetString("workspace"))
			if err != nil {
				return err
			}
			if viper.GetBool("json") {
				return printJSON(cfg.Presets)
			}
			tw := newTable()
			tw.AppendHeader(table.Row{"Preset", "Profile"})
			for _, name := range sortedKeys(cfg.Presets) {
				tw.AppendRow(table.Row{name, cfg.Presets[name].String()})
			}
			fmt.Println(tw.Render())
			return nil
		},
	}
}

func eventsCmd() *cobra.Command {
	var n int
	var evtType, entityKind, entityID string
	cmd := &cobra.Command{
		Use:   "events",
		Short: "Tail the event log",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				items, err := r.LatestEvents(ctx, repo.EventFilters{Type: evtType, EntityKind: entityKind, EntityID: entityID, Limit: n})
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := newTable()
				tw.AppendHeader(table.Row{"ID", "TS", "Type", "Entity", "Actor"})
				for _, evt := range items {
					tw.AppendRow(table.Row{evt.ID, evt.TS, evt.Type, evt.EntityKind + ":" + evt.EntityID, evt.ActorID})
				}
				fmt.Println(tw.Render())
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&n, "n", 20, "number of events")
	cmd.Flags().StringVar(&evtType, "type", "", "event type filter")
	cmd.Flags().StringVar(&entityKind, "entity-kind", "", "entity kind")
	cmd.Flags().StringVar(&entityID, "entity-id", "", "entity id")
	return cmd
}

func apiKeyCmd() *cobra.Command {
	k := &cobra.Command{Use: "apikey", Short: "Manage API keys for game hosts"}
	k.AddCommand(&cobra.Command{
		Use:   "create <name>",
		Short: "Create an API key (printed once)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				key, plain, err := e.CreateAPIKey(ctx, args[0])
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(map[string]string{"id": key.ID, "name": key.Name, "key": plain})
				}
				fmt.Printf("id:  %s\nkey: %s\n", key.ID, plain)
				return nil
			})
		},
	})
	k.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List API keys",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				items, err := r.ListAPIKeys(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := newTable()
				tw.AppendHeader(table.Row{"ID", "Name", "Created"})
				for _, key := range items {
					tw.AppendRow(table.Row{key.ID, key.Name, key.CreatedAt})
				}
				fmt.Println(tw.Render())
				return nil
			})
		},
	})
	k.AddCommand(&cobra.Command{
		Use:   "delete <id>",
		Short: "Revoke an API key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				return r.DeleteAPIKey(ctx, args[0])
			})
		},
	})
	return k
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	var allowAnonymous, devLogin, metrics bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			rt, err := openRuntime(ctx, viper.GetString("log-level"))
			if err != nil {
				return err
			}
			defer rt.Close()

			authCfg := server.AuthConfig{
				JWTSecret:      viper.GetString("jwt-secret"),
				AllowAnonymous: allowAnonymous,
				DevLogin:       devLogin,
				Logger:         rt.Logger,
			}
			if authCfg.JWTSecret == "" && !allowAnonymous {
				return fmt.Errorf("SETBACK_JWT_SECRET is required for bearer auth (or pass --allow-anonymous)")
			}
			handler, err := server.New(server.Config{Engine: rt.Engine, BasePath: basePath, Auth: authCfg, Metrics: metrics, Logger: rt.Logger})
			if err != nil {
				return err
			}

			dispatcher := server.NewWebhookDispatcher(rt.Engine.Repo, rt.Config.Webhooks, rt.Logger.Named("webhooks"))
			go dispatcher.Run(ctx)

			srv := &http.Server{Addr: addr, Handler: handler, ReadHeaderTimeout: 10 * time.Second}
			go func() {
				<-ctx.Done()
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_ = srv.Shutdown(shutdownCtx)
			}()
			rt.Logger.Info("serving setback API",
				zap.String("addr", addr),
				zap.String("base_path", basePath),
				zap.Int("webhooks", len(rt.Config.Webhooks)))
			fmt.Printf("Serving Setback API on http://%s%s (OpenAPI at %s/openapi.json, docs at %s/docs)\n", addr, basePath, basePath, basePath)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "listen address")
	cmd.Flags().StringVar(&basePath, "base-path", "/v0", "API base path")
	cmd.Flags().String("jwt-secret", "", "HS256 secret for bearer tokens (env SETBACK_JWT_SECRET)")
	cmd.Flags().BoolVar(&allowAnonymous, "allow-anonymous", false, "accept requests without credentials")
	cmd.Flags().BoolVar(&devLogin, "dev-login", false, "expose POST /auth/dev/login (development only)")
	cmd.Flags().BoolVar(&metrics, "metrics", true, "serve Prometheus metrics at /metrics")
	_ = viper.BindPFlag("jwt-secret", cmd.Flags().Lookup("jwt-secret"))
	return cmd
}

// --- helpers ---

func openRuntime(ctx context.Context, logLevel string) (*app.Runtime, error) {
	return app.Open(ctx, app.Options{
		Workspace: viper.GetString("workspace"),
		RedisAddr: viper.GetString("redis-addr"),
		LogLevel:  logLevel,
		Seed:      viper.GetUint64("seed"),
	})
}

// withEngine opens a runtime for one command. Command output goes to stdout,
// so logging is quieter than under serve unless --log-level says otherwise.
func withEngine(ctx context.Context, fn func(context.Context, engine.Engine) error) error {
	level := viper.GetString("log-level")
	if level == "" {
		level = "warn"
	}
	rt, err := openRuntime(ctx, level)
	if err != nil {
		return err
	}
	defer rt.Close()
	return fn(ctx, rt.Engine)
}

func withRepo(ctx context.Context, fn func(context.Context, repo.Repo) error) error {
	return withEngine(ctx, func(ctx context.Context, e engine.Engine) error {
		return fn(ctx, e.Repo)
	})
}

func printWorker(e engine.Engine, w domain.Worker) error {
	if viper.GetBool("json") {
		return printJSON(w)
	}
	tw := newTable()
	tw.AppendRow(table.Row{"ID", w.ID})
	tw.AppendRow(table.Row{"Name", w.Name})
	tw.AppendRow(table.Row{"Preset", w.Preset})
	tw.AppendRow(table.Row{"Archetype", e.Generator.Archetype(w.Profile)})
	for _, t := range domain.Traits {
		v := w.Profile.Value(t)
		tw.AppendRow(table.Row{string(t), fmt.Sprintf("%d (%s)", v, domain.TraitLevel(v))})
	}
	fmt.Println(tw.Render())
	return nil
}

func printOutcome(out engine.FailureOutcome) {
	fmt.Printf("%s [%s, %s]\n", out.Dialogue, out.Severity, out.Archetype)
	if out.LearningStatement != "" {
		fmt.Println("Learned:", out.LearningStatement)
	}
	if len(out.RecoveryPlan) > 0 {
		steps := make([]string, len(out.RecoveryPlan))
		for i, s := range out.RecoveryPlan {
			steps[i] = string(s)
		}
		fmt.Println("Plan:", strings.Join(steps, " -> "))
	}
	if out.NeedsPlayerReassurance {
		fmt.Println("Needs reassurance:", out.Reassurance)
	}
}

func newTable() table.Writer {
	tw := table.NewWriter()
	tw.SetStyle(table.StyleLight)
	return tw
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func toTraits(in map[string]int) map[domain.Trait]int {
	if len(in) == 0 {
		return nil
	}
	out := make(map[domain.Trait]int, len(in))
	for k, v := range in {
		out[domain.Trait(k)] = v
	}
	return out
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
