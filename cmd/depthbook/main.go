// Command depthbook maintains a local replica of an exchange order book from
// its WebSocket depth-update stream and renders it to stdout.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/rickgao/depthbook/internal/book"
	"github.com/rickgao/depthbook/internal/config"
	"github.com/rickgao/depthbook/internal/connection"
	"github.com/rickgao/depthbook/internal/database"
	"github.com/rickgao/depthbook/internal/metrics"
	"github.com/rickgao/depthbook/internal/presenter"
	"github.com/rickgao/depthbook/internal/session"
	"github.com/rickgao/depthbook/internal/version"
	"github.com/rickgao/depthbook/internal/writer"
)

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "", "path to config file (defaults only when empty)")
	url := flag.String("url", "", "depth stream URL (overrides stream.url)")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(version.String())
		return 0
	}

	// Load configuration
	cfg, err := config.LoadWithDefaults(*configPath)
	if err == nil {
		if *url != "" {
			cfg.Stream.URL = *url
		}
		err = cfg.Validate()
	}
	if err != nil {
		slog.Error("failed to load config", "config", *configPath, "error", err)
		return 1
	}

	// Book output goes to stdout, so logs go to stderr.
	logger := newLogger(cfg.Log, os.Stderr)
	slog.SetDefault(logger)

	logger.Info("starting depthbook",
		"version", version.Version,
		"commit", version.Commit,
		"instance_id", cfg.Instance.ID,
		"url", cfg.Stream.URL,
	)

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case sig := <-sigCh:
			logger.Info("received shutdown signal", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	var collector *metrics.Collector
	registry := prometheus.NewRegistry()
	if cfg.Metrics.Enabled {
		collector = metrics.NewCollector(registry)
	}

	b := book.New()
	opts := []session.Option{
		session.WithID(cfg.Instance.ID),
		session.WithLogger(logger),
		session.WithMetrics(collector),
	}
	if cfg.PresenterEnabled() {
		opts = append(opts, session.WithRenderer(presenter.New(os.Stdout, cfg.Presenter.Depth)))
	}

	// Optional top-of-book recorder
	var (
		pool     *pgxpool.Pool
		recorder *writer.TopOfBookWriter
	)
	if cfg.Recorder.Enabled {
		logger.Info("connecting to database",
			"host", cfg.Database.Host,
			"port", cfg.Database.Port,
			"database", cfg.Database.Name,
		)
		pool, err = database.Connect(ctx, cfg.Database, logger)
		if err != nil {
			logger.Error("failed to connect to database", "error", err)
			return 1
		}
		defer pool.Close()

		queue := writer.NewQueue[writer.BookSample](min(1024, cfg.Recorder.BufferSize), cfg.Recorder.BufferSize)
		recorder = writer.NewTopOfBookWriter(writer.WriterConfig{
			BatchSize:     cfg.Recorder.BatchSize,
			FlushInterval: cfg.Recorder.FlushInterval,
		}, queue, pool, logger)
		if err := recorder.Start(ctx); err != nil {
			logger.Error("failed to start recorder", "error", err)
			return 1
		}
		opts = append(opts, session.WithSampleSink(queue))
	}

	clientCfg := connection.ClientConfig{
		URL:              cfg.Stream.URL,
		HandshakeTimeout: cfg.Stream.HandshakeTimeout,
		WriteTimeout:     cfg.Stream.WriteTimeout,
	}
	dial := func(ctx context.Context) (session.Conn, error) {
		c, err := connection.Dial(ctx, clientCfg, logger)
		if err != nil {
			return nil, err
		}
		return c, nil
	}
	sess := session.New(dial, b, opts...)

	var healthServer *http.Server
	if cfg.Metrics.Enabled {
		var db pinger
		if pool != nil {
			db = pool
		}
		healthServer = &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Metrics.Port),
			Handler:           createHealthHandler(sess, registry, cfg.Metrics.Path, db),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			logger.Info("starting health server", "port", cfg.Metrics.Port, "metrics_path", cfg.Metrics.Path)
			if err := healthServer.ListenAndServe(); err != http.ErrServerClosed {
				logger.Error("health server error", "error", err)
			}
		}()
	}

	exitCode := 0
	err = sess.Run(ctx)
	switch {
	case err == nil:
		logger.Info("stream closed by server")
	case errors.Is(err, context.Canceled):
		logger.Info("shutting down...")
	default:
		logger.Error("session failed", "error", err)
		exitCode = 1
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if healthServer != nil {
		healthServer.Shutdown(shutdownCtx)
	}
	if recorder != nil {
		if err := recorder.Stop(shutdownCtx); err != nil {
			logger.Warn("recorder stop failed", "error", err)
		}
		st := recorder.Stats()
		logger.Info("recorder stopped", "inserts", st.Inserts, "errors", st.Errors, "flushes", st.Flushes)
	}

	st := sess.Stats()
	logger.Info("depthbook stopped",
		"frames", st.FramesReceived,
		"messages", st.MessagesApplied,
		"parse_errors", st.ParseErrors,
		"field_errors", st.FieldErrors,
		"pongs", st.PongsSent,
		"bid_levels", b.Len(book.Bid),
		"ask_levels", b.Len(book.Ask),
	)
	return exitCode
}

// newLogger builds the process logger from log config.
func newLogger(cfg config.LogConfig, out io.Writer) *slog.Logger {
	level, err := config.ParseLevel(cfg.Level)
	if err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(out, opts))
	}
	return slog.New(slog.NewTextHandler(out, opts))
}
