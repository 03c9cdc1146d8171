// Command drainer delivers queued escalations. It runs beside the API process
// and coordinates with it only through the queue directory.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"callbridge/internal/auth"
	"callbridge/internal/config"
	"callbridge/internal/escalation"
	"callbridge/internal/llm"
	"callbridge/internal/notify"
	"callbridge/pkg/logger"

	"golang.org/x/sync/errgroup"
)

func main() {
	configPath := flag.String("config", envOr("CALLBRIDGE_CONFIG", "callbridge.yaml"), "path to the YAML config file")
	once := flag.Bool("once", false, "drain a single time and exit")
	flag.Parse()

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, warnings := config.Load(*configPath)
	log := logger.New(cfg.App.Env, logger.FileConfig{Path: cfg.App.LogFile}).With("process", "drainer")
	slog.SetDefault(log)
	for _, w := range warnings {
		log.Warn("config", "warning", w)
	}

	var tokens llm.TokenSource
	if cfg.Auth.JWTSecret != "" {
		m, err := auth.NewManager(cfg.Auth)
		if err != nil {
			log.Error("auth init failed", "err", err)
			os.Exit(1)
		}
		tokens = m
	}

	notifier, err := notify.New(cfg.Escalation, cfg.Twilio, tokens)
	if err != nil {
		log.Error("notifier init failed", "err", err)
		os.Exit(1)
	}
	if notifier == nil {
		log.Warn("escalation.method is empty; entries are answered and recorded but not delivered")
	}

	queue := escalation.NewQueue(cfg.Escalation.QueueDir)
	worker := escalation.NewWorker(queue, llm.FromConfig(cfg.LLM, tokens), notifier, cfg.LLM.AsyncTimeout, log)

	if *once {
		st, err := worker.RunOnce(rootCtx)
		if err != nil {
			log.Error("drain failed", "err", err)
			os.Exit(1)
		}
		log.Info("drain complete", "drained", st.Drained, "delivered", st.Delivered, "failed", st.Failed, "skipped", st.Skipped, "requeued", st.Requeued)
		return
	}

	g, ctx := errgroup.WithContext(rootCtx)
	g.Go(func() error {
		log.Info("drainer started", "queue_dir", cfg.Escalation.QueueDir, "interval", cfg.Escalation.PollInterval)
		return worker.Run(ctx, cfg.Escalation.PollInterval)
	})
	g.Go(func() error {
		<-ctx.Done()
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return logger.ShutdownFlush(flushCtx, 2*time.Second)
	})
	if err := g.Wait(); err != nil {
		log.Error("drainer stopped", "err", err)
		os.Exit(1)
	}
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
