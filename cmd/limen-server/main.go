package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "modernc.org/sqlite"

	"github.com/moli-lab/limen/internal/config"
	"github.com/moli-lab/limen/internal/db"
	"github.com/moli-lab/limen/internal/httpapi"
	"github.com/moli-lab/limen/internal/limen/service"
	"github.com/moli-lab/limen/internal/limen/store/sqlite"
	"github.com/moli-lab/limen/internal/lock"
	"github.com/moli-lab/limen/internal/notify"
)

func main() {
	cfg := config.FromEnv()
	logger := log.New(os.Stdout, "limen-server ", log.LstdFlags|log.LUTC)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	conn, err := db.Open(ctx, db.Config{Path: cfg.DBPath, Env: cfg.Env})
	if err != nil {
		logger.Fatalf("open db: %v", err)
	}
	defer conn.Close()

	if cfg.Env == "dev" {
		if err := db.SeedDev(ctx, conn); err != nil {
			logger.Fatalf("seed dev db: %v", err)
		}
	}

	writer := db.NewWorker(conn)
	defer writer.Close()

	creds := sqlite.NewCredentialStore(conn, writer)
	logs := sqlite.NewAccessLogStore(conn, writer)
	sessions := sqlite.NewSessionStore(conn, writer)
	registrar := sqlite.NewRegistrar(conn, writer)

	// Notification channel: AMQP when configured, process log otherwise.
	var notifier notify.Publisher
	if cfg.AMQPURL != "" {
		p := notify.NewAMQPPublisher(cfg.AMQPURL, cfg.AMQPQueue, logger)
		defer p.Close()
		notifier = p
	} else {
		logger.Printf("no LIMEN_AMQP_URL set, publishing events to the log")
		notifier = notify.NewLogPublisher(logger)
	}

	pulser := lock.NewPulser(lock.NopDriver{}, logger)
	defer pulser.Shutdown()

	modes := service.NewModeController(sessions, time.Duration(cfg.RegisterTimeoutS)*time.Second, logger)
	dispatcher := service.NewDispatcher(service.DispatcherConfig{
		Modes:         modes,
		Creds:         creds,
		Sessions:      sessions,
		Logs:          logs,
		Registrar:     registrar,
		Actuator:      pulser,
		Notifier:      notifier,
		Logger:        logger,
		PulseDuration: time.Duration(cfg.PulseMs) * time.Millisecond,
	})

	sweeper := service.NewSessionSweeper(sessions, time.Duration(cfg.SessionSweepMins)*time.Minute, logger)
	sweeper.Start(ctx)
	defer sweeper.Stop()

	reporter := service.NewReporter(logs, creds, notifier, cfg.ReportHour, logger)
	reporter.Start(ctx)
	defer reporter.Stop()

	srv := httpapi.NewServer(httpapi.Dependencies{
		Logger:     logger,
		Addr:       cfg.HTTPAddr,
		Dispatcher: dispatcher,
		Modes:      modes,
		Creds:      creds,
		Reporter:   reporter,
	})

	go func() {
		logger.Printf("listening on %s", cfg.HTTPAddr)
		if err := srv.Start(); err != nil {
			logger.Printf("server error: %v", err)
			stop()
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
}
