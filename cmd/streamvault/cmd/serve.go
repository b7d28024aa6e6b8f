package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/streamvault/streamvault/internal/config"
	"github.com/streamvault/streamvault/internal/database"
	internalhttp "github.com/streamvault/streamvault/internal/http"
	"github.com/streamvault/streamvault/internal/http/handlers"
	"github.com/streamvault/streamvault/internal/maintenance"
	"github.com/streamvault/streamvault/internal/models"
	"github.com/streamvault/streamvault/internal/observability"
	"github.com/streamvault/streamvault/internal/postprocess"
	"github.com/streamvault/streamvault/internal/queue"
	"github.com/streamvault/streamvault/internal/recorder"
	"github.com/streamvault/streamvault/internal/recovery"
	"github.com/streamvault/streamvault/internal/repository"
	"github.com/streamvault/streamvault/internal/storage"
	"github.com/streamvault/streamvault/internal/supervisor"
	"github.com/streamvault/streamvault/internal/version"
	"github.com/streamvault/streamvault/internal/ws"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the streamvault server",
	Long: `Start the streamvault recording service and HTTP API.

The server provides:
- Automatic recording of live streams and post-processing into MP4 episodes
- REST API for recordings, background tasks, and finished videos
- WebSocket endpoint for realtime task and recording updates
- Prometheus metrics and OpenAPI documentation at /docs`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().String("host", "0.0.0.0", "Host to bind to")
	serveCmd.Flags().Int("port", 8080, "Port to listen on")
	serveCmd.Flags().String("database", "streamvault.db", "Database DSN")
	serveCmd.Flags().String("recordings-dir", "./recordings", "Root directory for recordings")

	viper.BindPFlag("server.host", serveCmd.Flags().Lookup("host"))
	viper.BindPFlag("server.port", serveCmd.Flags().Lookup("port"))
	viper.BindPFlag("database.dsn", serveCmd.Flags().Lookup("database"))
	viper.BindPFlag("storage.recordings_dir", serveCmd.Flags().Lookup("recordings-dir"))
}

func runServe(cmd *cobra.Command, args []string) error {
	logger := slog.Default()

	conf, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	// Database.
	db, err := database.New(conf.Database, logger)
	if err != nil {
		return fmt.Errorf("initializing database: %w", err)
	}
	defer db.Close()

	if err := db.AutoMigrate(models.AllModels()...); err != nil {
		return fmt.Errorf("migrating database: %w", err)
	}

	// Repositories.
	streamerRepo := repository.NewStreamerRepository(db.DB)
	streamRepo := repository.NewStreamRepository(db.DB)
	recordingRepo := repository.NewRecordingRepository(db.DB)
	activeRepo := repository.NewActiveRecordingRepository(db.DB)
	stateRepo := repository.NewProcessingStateRepository(db.DB)
	chapterRepo := repository.NewChapterRepository(db.DB)
	metaRepo := repository.NewStreamMetadataRepository(db.DB)
	settingsRepo := repository.NewSettingsRepository(db.DB)
	sessionRepo := repository.NewSessionRepository(db.DB)
	tokenRepo := repository.NewShareTokenRepository(db.DB)

	// Recordings root.
	vault, err := storage.NewVault(conf.Storage.RecordingsDir)
	if err != nil {
		return fmt.Errorf("initializing recordings root: %w", err)
	}

	metrics := observability.NewMetrics()

	// Queue manager and post-processing pipeline.
	manager := queue.NewManager(conf.Queue, stateRepo, logger, metrics)
	pipeline := postprocess.New(conf.PostProcess, conf.FFmpeg, vault,
		stateRepo, recordingRepo, streamRepo, streamerRepo, chapterRepo, metaRepo, logger)
	pipeline.Register(manager)

	// Realtime fan-out.
	hub := ws.NewHub(logger, metrics)
	go hub.Run()
	defer hub.Close()

	fanout := ws.NewFanout(hub, manager.Tracker(), conf.Queue.StatsInterval, logger)
	manager.Tracker().RegisterCallback(fanout.TaskEvent)
	manager.SetStatsBroadcast(fanout.QueueStats)

	// Capture supervisor and recorder. The exit callback is bound after the
	// recorder exists; no capture starts before then.
	var rec *recorder.Recorder
	sup := supervisor.New(conf.Capture, conf.Recorder.TerminateTimeout, logger,
		func(processID string, exitErr error) {
			rec.OnCaptureExit(processID, exitErr)
		})
	rec = recorder.New(conf.Recorder, vault,
		streamerRepo, streamRepo, recordingRepo, activeRepo, settingsRepo,
		sup, manager, fanout, metrics, logger)

	// Recovery: one-shot startup scan, then the periodic reaper.
	scanner := recovery.NewScanner(vault, manager, recordingRepo, streamRepo,
		streamerRepo, stateRepo, activeRepo, logger)
	manager.RegisterHandler(queue.TaskTypeOrphanCheck, scanner.OrphanCheckHandler())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	manager.Start(ctx)
	defer manager.Shutdown()

	report, err := scanner.ScanOnStartup(ctx)
	if err != nil {
		return fmt.Errorf("startup recovery scan: %w", err)
	}
	logger.Info("startup recovery scan complete",
		slog.Int("captures_reconciled", report.CapturesReconciled),
		slog.Int("resumed", report.Resumed),
		slog.Int("unclaimed", report.Unclaimed))

	reaper := recovery.NewReaper(conf.Recovery, manager, activeRepo, logger)
	go reaper.Run(ctx)
	go fanout.RunSnapshots(ctx)

	// Scheduled maintenance.
	janitor := maintenance.NewJanitor(conf.Maintenance, sessionRepo, tokenRepo, logger)
	if err := janitor.Start(ctx); err != nil {
		return fmt.Errorf("starting maintenance: %w", err)
	}
	defer janitor.Stop()

	// HTTP server.
	server := internalhttp.NewServer(conf.Server, logger, version.Version)

	handlers.NewHealthHandler(version.Version, db.DB).Register(server.API())
	handlers.NewTaskHandler(manager).WithEnqueuer(scanner).Register(server.API())
	handlers.NewRecordingHandler(rec, activeRepo, recordingRepo).Register(server.API())
	handlers.NewVideoHandler(rec, janitor, streamRepo, streamerRepo, metaRepo).Register(server.API())

	server.MountMetrics(metrics.Registry())
	server.MountWebSocket(hub)

	// Graceful shutdown: stop accepting HTTP, stop captures cleanly, then
	// drain the queue.
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		logger.Info("received shutdown signal", slog.String("signal", sig.String()))
		cancel()
	}()

	logger.Info("starting streamvault server",
		slog.String("host", conf.Server.Host),
		slog.Int("port", conf.Server.Port),
		slog.String("recordings_dir", conf.Storage.RecordingsDir),
		slog.String("version", version.Version))

	serveErr := server.ListenAndServe(ctx)

	// Stop captures before the deferred queue shutdown so their exit events
	// still find a live manager.
	rec.GracefulShutdown(context.Background())

	return serveErr
}
