package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dgraph-io/badger/v4"

	"chat-router/internal"
	"chat-router/repositories"
	"chat-router/runtime"
	"chat-router/runtime/workers"
	"chat-router/transport"
)

// Exit codes to provide meaningful status to the operating system or
// service manager (e.g., systemd).
const (
	exitOK      = 0
	exitRuntime = 1
	exitConfig  = 2
)

func main() {
	// main is a thin wrapper: call run() and translate its outcome
	// into an OS exit code, letting every defer fire first.
	code, err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Server terminated with error: %v\n", err)
	}
	os.Exit(code)
}

func run() (int, error) {
	cfg, err := internal.Load()
	if err != nil {
		return exitConfig, err
	}

	overflow, err := runtime.ParseOverflowPolicy(cfg.OverflowPolicy)
	if err != nil {
		return exitConfig, err
	}

	logger := internal.NewLogger(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := badger.Open(badger.DefaultOptions(cfg.BadgerFilepath).WithLogger(nil))
	if err != nil {
		return exitRuntime, fmt.Errorf("database opening failed: %w", err)
	}
	defer func() {
		logger.Info("Closing BadgerDB...")
		_ = db.Close()
	}()

	eventStore := repositories.NewEventStore(db, logger)
	snapshotStore := repositories.NewBadgerSnapshotStore(db, logger)

	runtimeCfg := runtime.Config{
		ShardCount:     cfg.ShardCount,
		MailboxSize:    cfg.MailboxSize,
		OutBufferSize:  cfg.OutBufferSize,
		Overflow:       overflow,
		AskTimeout:     cfg.AskTimeout,
		PassivateAfter: cfg.PassivateAfter,
		SnapshotEvery:  cfg.SnapshotEvery,
	}

	supervisor := workers.NewSupervisor(logger)
	router := runtime.NewRouter(eventStore, snapshotStore, supervisor, runtimeCfg, logger)
	router.Start(ctx)

	supervisor.Add(
		workers.NewPassivationWorker(router, cfg.PassivateAfter, cfg.SweepInterval, logger),
		workers.NewMailboxTelemetryWorker(router, cfg.MetricInterval, logger),
	)

	supervised := make(chan struct{})
	go func() {
		defer close(supervised)
		supervisor.Run(ctx)
	}()

	sessions := transport.NewSessionHandler(router, logger)
	rooms := transport.NewRoomsHandler(router, eventStore, logger)

	server := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler: transport.NewMux(sessions, rooms),
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("Chat router listening", "addr", server.Addr, "shards", cfg.ShardCount)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	select {
	case err := <-serveErr:
		stop()
		<-supervised
		return exitRuntime, fmt.Errorf("http server failed: %w", err)
	case <-ctx.Done():
	}

	logger.Info("Shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("HTTP shutdown incomplete", "error", err)
	}

	supervisor.Stop()
	<-supervised
	return exitOK, nil
}
