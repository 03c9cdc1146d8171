package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"callbridge/internal/audit"
	"callbridge/internal/auth"
	"callbridge/internal/callflow"
	"callbridge/internal/config"
	"callbridge/internal/escalation"
	"callbridge/internal/llm"
	"callbridge/internal/mediastream"
	"callbridge/internal/respond"
	"callbridge/internal/security"
	"callbridge/internal/session"
	"callbridge/internal/speech"
	"callbridge/internal/telephony"
	"callbridge/internal/voicenote"
	"callbridge/pkg/logger"
	"callbridge/pkg/utils"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
)

func main() {
	configPath := flag.String("config", envOr("CALLBRIDGE_CONFIG", "callbridge.yaml"), "path to the YAML config file")
	flag.Parse()

	// Root context that cancels on shutdown
	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, warnings := config.Load(*configPath)

	log := logger.New(cfg.App.Env, logger.FileConfig{Path: cfg.App.LogFile})
	slog.SetDefault(log)
	for _, w := range warnings {
		log.Warn("config", "warning", w)
	}

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	auditSvc := audit.NewService(audit.NewFileRepo(filepath.Join(cfg.App.DataDir, "audit.jsonl")))

	var rdb *redis.Client
	if cfg.Redis.Addr != "" {
		c, err := utils.OpenRedis(rootCtx, utils.RedisConfig{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		if err != nil {
			log.Warn("redis unavailable, rate limiting is per process", "err", err)
		} else {
			rdb = c
			defer rdb.Close()
		}
	}
	var limiter security.Limiter
	memLimiter := security.NewMemoryLimiter(cfg.Security.RateLimit.Window, cfg.Security.RateLimit.MaxCalls)
	limiter = memLimiter
	if rdb != nil {
		limiter = security.NewRedisLimiter(rdb, cfg.Security.RateLimit.Window, cfg.Security.RateLimit.MaxCalls, log)
	}

	entries := make([]security.Entry, 0, len(cfg.Security.Allowlist))
	for _, e := range cfg.Security.Allowlist {
		entries = append(entries, security.Entry{Number: e.Number, PIN: e.PIN, Name: e.Name})
	}
	gate := security.NewGate(entries, cfg.Security.MaxPinAttempts, limiter, auditSvc, log)

	var authManager *auth.Manager
	if cfg.Auth.JWTSecret != "" {
		m, err := auth.NewManager(cfg.Auth)
		if err != nil {
			log.Error("auth init failed", "err", err)
			os.Exit(1)
		}
		authManager = m
	}

	var tokens llm.TokenSource
	if authManager != nil {
		tokens = authManager
	}
	streaming, batch := speechProviders(cfg, log)
	client := llm.FromConfig(cfg.LLM, tokens)

	store := session.NewStore()
	queue := escalation.NewQueue(cfg.Escalation.QueueDir)
	responder := respond.New(respond.Config{
		FirstTimeout:    cfg.LLM.FirstTimeout,
		RetryTimeout:    cfg.LLM.RetryTimeout,
		MaxReplyChars:   cfg.LLM.MaxReplyChars,
		DestinationHint: cfg.Escalation.DestinationHint(),
	}, client, queue, log)

	notes := voicenote.NewFileStore(cfg.VoiceNotes.Dir)
	var mirror voicenote.Index
	if cfg.Postgres.DSN != "" {
		db, err := utils.OpenPostgres(rootCtx, utils.DriverPgx, cfg.Postgres.DSN, utils.PostgresPoolConfig{})
		if err != nil {
			log.Warn("postgres unavailable, voice notes are indexed on disk only", "err", err)
		} else {
			defer db.Close()
			index := voicenote.NewPostgresIndex(db)
			if err := index.Migrate(rootCtx); err != nil {
				log.Warn("voice note mirror disabled", "err", err)
			} else {
				mirror = index
			}
		}
	}
	pipeline := voicenote.NewPipeline(voicenote.PipelineConfig{
		Fetcher: telephony.NewRecordingFetcher(cfg.Twilio.AccountSID, cfg.Twilio.AuthToken, cfg.VoiceNotes.Budget, cfg.Twilio.RecordingHosts...),
		Store:   notes,
		Mirror:  mirror,
		Batch:   batch,
		Timeout: cfg.Speech.Timeout,
		Budget:  cfg.VoiceNotes.Budget,
	}, log)

	machine := callflow.NewMachine(
		callflow.OptionsFromConfig(cfg, streaming != nil || batch != nil),
		callflow.Deps{Gate: gate, Store: store, Responder: responder, Tasks: queue, Notes: pipeline},
		log,
	)
	streams := mediastream.NewHandler(mediastream.Config{
		Streaming:    streaming,
		Batch:        batch,
		Store:        store,
		BatchTimeout: cfg.Speech.Timeout,
	}, nil, log)

	// Gin router
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(logger.Middleware(log))

	registerRoutes(r, routeDeps{
		cfg:     cfg,
		voice:   telephony.VoiceHandlers{Flow: machine},
		streams: streams,
		auth:    authManager,
		audit:   auditSvc,
		queue:   queue,
		notes:   notes,
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	g, ctx := errgroup.WithContext(rootCtx)
	g.Go(func() error {
		log.Info("api listening", "addr", srv.Addr, "env", cfg.App.Env, "allowlisted", len(entries))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		sweep(ctx, log, store, memLimiter, cfg.App.SessionTTL)
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		log.Info("shutdown initiated", "active_calls", store.Len(), "active_streams", streams.Registry().Active(), "stream_calls", streams.Registry().Calls())

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error("http shutdown failed", "err", err)
		}
		return logger.ShutdownFlush(shutdownCtx, 2*time.Second)
	})

	if err := g.Wait(); err != nil {
		log.Error("api stopped", "err", err)
		os.Exit(1)
	}
}

// speechProviders builds the configured streaming and batch providers.
// Either may be nil.
func speechProviders(cfg config.Config, log *slog.Logger) (speech.StreamingProvider, speech.BatchProvider) {
	var dg *speech.Deepgram
	deepgram := func() *speech.Deepgram {
		if dg == nil {
			dg = speech.NewDeepgram(speech.DeepgramConfig{
				APIKey:    cfg.Speech.Deepgram.APIKey,
				BaseURL:   cfg.Speech.Deepgram.BaseURL,
				StreamURL: cfg.Speech.Deepgram.StreamURL,
				Model:     cfg.Speech.Deepgram.Model,
				Timeout:   cfg.Speech.Timeout,
			}, log)
		}
		return dg
	}

	var streaming speech.StreamingProvider
	if cfg.Speech.Streaming == "deepgram" {
		streaming = deepgram()
	}

	var batch speech.BatchProvider
	switch cfg.Speech.Batch {
	case "whisper":
		batch = speech.NewWhisper(speech.WhisperConfig{
			APIKey:  cfg.Speech.Whisper.APIKey,
			BaseURL: cfg.Speech.Whisper.BaseURL,
			Model:   cfg.Speech.Whisper.Model,
			Timeout: cfg.Speech.Timeout,
		})
	case "deepgram":
		batch = deepgram()
	}
	return streaming, batch
}

// sweep reclaims abandoned sessions and stale rate-limit windows.
func sweep(ctx context.Context, log *slog.Logger, store *session.Store, limiter *security.MemoryLimiter, ttl time.Duration) {
	interval := ttl / 4
	if interval < time.Minute {
		interval = time.Minute
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if n := store.Sweep(ttl); n > 0 {
				log.Info("expired idle sessions", "count", n)
			}
			limiter.Prune()
		}
	}
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
