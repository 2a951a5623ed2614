package main

import (
	"chat-relay/contract"
	"chat-relay/internal"
	"chat-relay/moderation"
	"chat-relay/observability"
	"chat-relay/repositories"
	"chat-relay/runtime"
	"chat-relay/runtime/workers"
	"chat-relay/sink"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/dgraph-io/badger/v4"
	"github.com/mama165/sdk-go/logs"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Fatal error: %v\n", err)
		os.Exit(1)
	}
}

// run wires every component, blocks until a signal or a listener failure,
// then shuts down in reverse order so deferred cleanups always execute.
func run() error {
	// 1. Configuration & Logger
	config, err := internal.LoadFromEnviron()
	if err != nil {
		return err
	}
	log := logs.GetLoggerFromString(config.LogLevel)
	port := config.GetPort(log)

	// 2. Audit log
	audit, err := sink.OpenAuditLog(config.AuditLogPath, log)
	if err != nil {
		return err
	}
	defer func() {
		if err := audit.Close(); err != nil {
			log.Warn("Closing audit log failed", "error", err)
		}
	}()

	// 3. Supervision
	sup := workers.NewSupervisor(log, config.RestartInterval)
	var sinks []contract.EventSink

	// 4. Optional archive (BadgerDB)
	if config.ArchivePath != "" {
		db, err := badger.Open(badger.DefaultOptions(config.ArchivePath).
			WithLoggingLevel(badger.WARNING))
		if err != nil {
			return fmt.Errorf("database opening failed: %w", err)
		}
		defer func() {
			log.Info("Closing BadgerDB...")
			_ = db.Close()
		}()

		queue := make(chan repositories.DiskMessage, config.ArchiveBufferSize)
		repository := repositories.NewMessageRepository(db, log, config.LimitMessages)
		sinks = append(sinks, sink.NewArchiveSink(queue))
		sup.Add(workers.NewArchiveWorker(repository, queue, log))
		if config.StatsInterval > 0 {
			sup.Add(workers.NewChannelCapacityWorker(log,
				[]workers.NamedChannel{{Name: "archive", Channel: queue}}, config.StatsInterval))
		}
		log.Info("Archive enabled", "path", config.ArchivePath)
	}

	// 5. Optional moderation
	moderator, err := loadModerator(log, config)
	if err != nil {
		return err
	}

	// 6. Registry & listener
	registry := runtime.NewRegistry(log, audit, sinks...)
	listener := runtime.NewListener(log, registry, audit, moderator, config.Host,
		runtime.SessionSettings{
			WriteTimeout:  config.WriteTimeout,
			MaxLineLength: config.MaxLineLength,
		})

	if config.StatsInterval > 0 {
		sup.Add(workers.NewStatsWorker(log, registry, config.StatsInterval))
	}

	// 7. Context & Signals
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	supervised := make(chan struct{})
	go func() {
		defer close(supervised)
		sup.Run(ctx)
	}()

	// 8. Optional health server
	var health *observability.HealthServer
	if config.HealthPort > 0 {
		health = observability.NewHealthServer(log)
		if err := health.Listen(config.Host, config.HealthPort); err != nil {
			sup.Stop()
			<-supervised
			return err
		}
		go func() {
			if err := health.Serve(); err != nil {
				log.Error("Health server stopped", "error", err)
			}
		}()
	}

	// 9. Chat listener
	errChan := make(chan error, 1)
	go func() {
		errChan <- listener.Start(port)
	}()
	go func() {
		select {
		case <-listener.Ready():
			if health != nil {
				health.SetServing(true)
			}
		case <-ctx.Done():
		}
	}()

	// 10. Wait for Stop or Error
	var runErr error
	select {
	case <-ctx.Done():
		log.Info("Shutting down gracefully...")
	case err := <-errChan:
		runErr = err
	}

	// 11. Final Cleanup
	if health != nil {
		health.SetServing(false)
	}
	listener.Stop()
	if health != nil {
		health.Stop()
	}
	sup.Stop()
	<-supervised
	log.Info("Program stopped cleanly")

	return runErr
}

// loadModerator returns a nil interface when no dictionary directory is configured,
// which leaves chat content untouched.
func loadModerator(log *slog.Logger, config internal.Config) (contract.Moderator, error) {
	if config.CensoredDir == "" {
		return nil, nil
	}
	replacement, err := internal.CharacterRune(config.CharReplacement)
	if err != nil {
		return nil, err
	}
	data, err := runtime.NewCensoredLoader(os.DirFS(config.CensoredDir)).LoadAll(".")
	if err != nil {
		return nil, fmt.Errorf("loading censored words from %s: %w", config.CensoredDir, err)
	}
	moderator, err := moderation.NewModerator(data.Words, replacement)
	if err != nil {
		return nil, err
	}
	log.Info("Moderation enabled", "languages", data.Languages, "words", len(data.Words))
	return moderator, nil
}
