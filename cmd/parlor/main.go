// Command parlor runs the game-room orchestration server: a websocket
// endpoint for room commands and fan-out, a Prometheus metrics endpoint,
// and an NDJSON durable event log.
package main

import (
	"context"
	"errors"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/parlorgames/parlor/internal/config"
	"github.com/parlorgames/parlor/internal/engine"
	"github.com/parlorgames/parlor/internal/eventlog"
	"github.com/parlorgames/parlor/internal/identity"
	"github.com/parlorgames/parlor/internal/metrics"
	"github.com/parlorgames/parlor/internal/modes"
	"github.com/parlorgames/parlor/internal/modes/agent"
	"github.com/parlorgames/parlor/internal/modes/amongus"
	"github.com/parlorgames/parlor/internal/modes/mafia"
	"github.com/parlorgames/parlor/internal/modes/villa"
	"github.com/parlorgames/parlor/internal/ws"
)

func main() {
	log := logrus.New()

	cfg, err := config.Load()
	if err != nil {
		log.WithError(err).Fatal("configuration")
	}
	if level, err := logrus.ParseLevel(cfg.LogLevel); err == nil {
		log.SetLevel(level)
	}

	if err := run(cfg, log); err != nil {
		log.WithError(err).Fatal("server exited")
	}
}

func run(cfg config.Config, log *logrus.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sink, err := eventlog.NewNDJSONSink(cfg.EventLogPath)
	if err != nil {
		return err
	}
	defer sink.Close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	m := metrics.New(reg)

	events := eventlog.New(sink, log,
		eventlog.WithFlushInterval(cfg.FlushInterval),
		eventlog.WithFlushErrorHook(func(error) { m.FlushFailed() }),
	)

	registry := modes.NewRegistry()
	registry.Register(mafia.New())
	registry.Register(amongus.New())
	registry.Register(villa.New())
	registry.Register(agent.New())

	var tickets identity.TicketStore
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return err
		}
		tickets = identity.NewRedisTickets(redis.NewClient(opts))
		log.Info("claim tickets backed by redis")
	}

	eng := engine.New(engine.Options{
		Registry: registry,
		Events:   events,
		Tickets:  tickets,
		Metrics:  m,
		Rand:     rand.New(rand.NewSource(time.Now().UnixNano())),
		Logger:   log,
	})

	hub := ws.NewHub(eng, log)
	eng.SetNotifier(hub)

	mux := http.NewServeMux()
	mux.Handle("/ws", ws.NewHandler(eng, hub, log))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	srv := &http.Server{Addr: cfg.Addr, Handler: mux}
	errCh := make(chan error, 2)
	go func() {
		log.WithField("addr", cfg.Addr).Info("listening")
		errCh <- srv.ListenAndServe()
	}()

	var metricsSrv *http.Server
	if cfg.MetricsAddr != "" {
		metricsMux := http.NewServeMux()
		metricsMux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		metricsSrv = &http.Server{Addr: cfg.MetricsAddr, Handler: metricsMux}
		go func() {
			log.WithField("addr", cfg.MetricsAddr).Info("metrics listening")
			errCh <- metricsSrv.ListenAndServe()
		}()
	}

	select {
	case <-ctx.Done():
		log.Info("shutting down")
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
	if metricsSrv != nil {
		_ = metricsSrv.Shutdown(shutdownCtx)
	}
	return eng.Close(shutdownCtx)
}
