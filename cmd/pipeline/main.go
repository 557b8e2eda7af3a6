package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/ruxailab/disgitbot/internal/config"
	"github.com/ruxailab/disgitbot/internal/contrib"
	"github.com/ruxailab/disgitbot/internal/discord"
	"github.com/ruxailab/disgitbot/internal/github"
	"github.com/ruxailab/disgitbot/internal/pipeline"
	"github.com/ruxailab/disgitbot/internal/storage"
	"github.com/ruxailab/disgitbot/pkg/logger"
)

func main() {
	configPath := flag.String("config", "", "Path to configuration file")
	once := flag.Bool("once", false, "Execute a single pipeline run and exit (for cron dispatch)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Init("debug", "")
		logger.Fatal().Err(err).Msg("Failed to load configuration")
	}

	if err := logger.Init(cfg.Log.Level, cfg.Log.File); err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}

	logger.Info().Str("org", cfg.GitHub.Org).Str("guild", cfg.Discord.GuildID).Msg("Starting contribution pipeline")

	db, err := storage.NewDatabase(cfg.Database.Path)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to initialize database")
	}
	defer db.Close()

	store := storage.NewStore(db)
	logger.Info().Str("path", cfg.Database.Path).Msg("Database initialized")

	var commitsSince time.Time
	if cfg.Pipeline.CommitLookbackMo > 0 {
		commitsSince = time.Now().UTC().AddDate(0, -cfg.Pipeline.CommitLookbackMo, 0)
	}
	collector := github.NewCollector(github.NewClient(cfg.GitHub.Token), github.CollectorConfig{
		Org:            cfg.GitHub.Org,
		Workers:        cfg.Pipeline.Workers,
		FetchTimeout:   cfg.FetchTimeout(),
		RateWaitBudget: cfg.RateWaitBudget(),
		Retry:          github.DefaultRetryConfig(),
		CommitsSince:   commitsSince,
	})

	discordClient, err := discord.NewClient(
		cfg.Discord.Token,
		cfg.Discord.GuildID,
		cfg.Pipeline.RoleCallsPerSec,
		cfg.Pipeline.RoleCallBurst,
	)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to initialize Discord client")
	}
	syncer := discord.NewSyncer(discordClient, contrib.DefaultPolicy().ManagedRoles())

	runner := pipeline.NewRunner(collector, store, syncer, pipeline.Config{
		GuildID: cfg.Discord.GuildID,
		LockTTL: cfg.LockTTL(),
	})

	if *once {
		runOnce(runner, cfg.GitHub.Repos)
		return
	}

	serve(cfg, runner, store)
}

// runOnce executes a single pipeline pass for scheduler-driven dispatch.
func runOnce(runner *pipeline.Runner, repos []string) {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	summary, err := runner.Run(ctx, repos)
	if err != nil {
		if errors.Is(err, storage.ErrRunConflict) {
			logger.Warn().Msg("Another run is already in flight, exiting")
			os.Exit(2)
		}
		logger.Error().Err(err).Msg("Run failed")
		os.Exit(1)
	}
	logger.Info().
		Str("run_id", summary.RunID).
		Int("contributors", summary.Contributors).
		Msg("Run complete")
}

// serve exposes the trigger boundary over HTTP until shut down.
func serve(cfg *config.Config, runner *pipeline.Runner, store *storage.Store) {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	// Manual dispatch: runs the pipeline synchronously and returns the summary.
	r.Post("/run", func(w http.ResponseWriter, req *http.Request) {
		var body struct {
			Repos []string `json:"repos"`
		}
		if req.Body != nil {
			// An empty body means "the whole organization".
			_ = json.NewDecoder(req.Body).Decode(&body)
		}

		summary, err := runner.Run(req.Context(), body.Repos)
		switch {
		case errors.Is(err, storage.ErrRunConflict):
			writeJSON(w, http.StatusConflict, map[string]string{"error": "a run is already in flight"})
		case err != nil:
			status := map[string]any{"error": err.Error()}
			if summary != nil {
				status["summary"] = summary
			}
			writeJSON(w, http.StatusInternalServerError, status)
		default:
			writeJSON(w, http.StatusOK, summary)
		}
	})

	r.Get("/runs/latest", func(w http.ResponseWriter, req *http.Request) {
		rec, err := store.LatestRun(req.Context())
		if err != nil {
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
			return
		}
		if rec == nil {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "no runs recorded"})
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		// Summary is stored as JSON already; emit the record wrapping it raw.
		json.NewEncoder(w).Encode(map[string]any{
			"run_id":      rec.RunID,
			"started_at":  rec.StartedAt,
			"finished_at": rec.FinishedAt,
			"status":      rec.Status,
			"summary":     json.RawMessage(rec.Summary),
		})
	})

	server := &http.Server{
		Addr:    cfg.ServerAddress(),
		Handler: r,
	}

	go func() {
		logger.Info().Str("address", cfg.ServerAddress()).Msg("Starting HTTP server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("HTTP server error")
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	logger.Info().Msg("Shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Error().Err(err).Msg("HTTP server shutdown error")
	}

	logger.Info().Msg("Shutdown complete")
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error().Err(err).Msg("Failed to encode response")
	}
}
