package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/gridpack/gridpack/core/audit"
	"github.com/gridpack/gridpack/core/hooks"
	"github.com/gridpack/gridpack/core/infra/bus"
	"github.com/gridpack/gridpack/core/infra/config"
	"github.com/gridpack/gridpack/core/infra/locks"
	infraMetrics "github.com/gridpack/gridpack/core/infra/metrics"
	"github.com/gridpack/gridpack/core/ingress"
	"github.com/gridpack/gridpack/core/offers"
	"github.com/gridpack/gridpack/core/project"
)

func main() {
	log.Println("gridpack operator starting...")

	cfg := config.Load()

	metrics := infraMetrics.NewProm("gridpack")
	resolverMetrics := infraMetrics.NewResolverProm("gridpack")
	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", infraMetrics.Handler())
		srv := &http.Server{
			Addr:         cfg.MetricsAddr,
			Handler:      mux,
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 5 * time.Second,
			IdleTimeout:  60 * time.Second,
		}
		log.Printf("operator metrics on %s/metrics", cfg.MetricsAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("metrics server error: %v", err)
		}
	}()

	natsBus, err := bus.NewNatsBus(cfg.NatsURL)
	if err != nil {
		log.Fatalf("failed to connect to NATS: %v", err)
	}
	defer natsBus.Close()

	sink := audit.Sink(audit.LogSink{Component: "operator"})
	if !cfg.AuditBusDisabled {
		sink = audit.MultiSink{sink, bus.AuditSink{Bus: natsBus}}
	}

	var lockStore locks.Store
	if cfg.RedisURL != "" {
		redisStore, err := locks.NewRedisStore(cfg.RedisURL)
		if err != nil {
			log.Fatalf("failed to connect to Redis for lock store: %v", err)
		}
		defer redisStore.Close()
		lockStore = redisStore
	} else {
		lockStore = locks.NewMemoryStore()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	handle := offers.NewHandle(cfg.ProjectRoot, sink, metrics)
	if err := handle.Reload(ctx); err != nil {
		log.Fatalf("initial registry load failed: %v", err)
	}
	go func() {
		if err := handle.Watch(ctx); err != nil && ctx.Err() == nil {
			log.Printf("catalog watch stopped: %v", err)
		}
	}()

	resolver := project.NewResolver(cfg.ProjectRoot, lockStore, sink, resolverMetrics)
	if _, err := resolver.ResolveAll(ctx); err != nil {
		log.Printf("initial resolve incomplete: %v", err)
	}

	scheduler := cron.New()
	if _, err := scheduler.AddFunc(cfg.ResolveSchedule, func() {
		if _, err := resolver.ResolveAll(ctx); err != nil {
			log.Printf("scheduled resolve incomplete: %v", err)
		}
	}); err != nil {
		log.Fatalf("invalid resolve schedule %q: %v", cfg.ResolveSchedule, err)
	}
	scheduler.Start()
	defer scheduler.Stop()

	invoker := bus.RuntimeInvoker{Bus: natsBus, Timeout: cfg.InvokeTimeout}
	runner := hooks.NewRunner(handle, invoker, sink, metrics, cfg.InvokeTimeout)
	pipeline := ingress.NewPipeline(cfg.ProjectRoot, runner, ingress.Options{
		HooksEnabled:      cfg.HooksEnabled,
		EventHooksEnabled: cfg.EventHooksEnabled,
	})
	consumer := &ingress.Consumer{Bus: natsBus, Pipeline: pipeline}
	if err := consumer.Start(ctx); err != nil {
		log.Fatalf("failed to subscribe ingress: %v", err)
	}

	log.Printf("operator ready (root=%s hooks=%v event_hooks=%v)",
		cfg.ProjectRoot, cfg.HooksEnabled, cfg.EventHooksEnabled)
	<-ctx.Done()
	log.Println("gridpack operator shutting down")
}
