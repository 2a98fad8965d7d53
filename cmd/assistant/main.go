package main

import (
	"context"
	"errors"
	"flag"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"spark-assistant/config"
	"spark-assistant/internal/application"
	"spark-assistant/internal/credentials"
	"spark-assistant/internal/dispatch"
	"spark-assistant/internal/infra/audio"
	"spark-assistant/internal/providers"
	"spark-assistant/internal/web"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	flag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		slog.Error("loading config", "error", err)
		os.Exit(1)
	}

	logger := setupLogger(cfg.Log)

	if err := run(cfg, logger); err != nil {
		logger.Error("assistant error", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	creds, err := credentials.Open(cfg.Credentials.File, logger)
	if err != nil {
		return err
	}

	d := dispatch.New(logger)
	ep, bin := providers.FromConfig(cfg)
	services := providers.Register(d, ep, bin)

	player, err := createPlayer(cfg.Audio.Player)
	if err != nil {
		return err
	}

	microphone := audio.NewMicrophone(audio.RecorderConfig{
		SampleRate: cfg.Audio.SampleRate,
		Duration:   cfg.RecordDuration(),
		Attempts:   cfg.Audio.RecordAttempts,
	}, logger)

	hub := web.NewHub(logger)
	playback := application.NewPlayback(player, hub, logger)

	conv, err := application.NewConversation(
		d,
		creds,
		microphone,
		playback,
		hub,
		cfg.Selection(),
		application.Options{
			SystemPrompt: cfg.Conversation.SystemPrompt,
			Greeting:     cfg.Conversation.Greeting,
			Farewell:     cfg.Conversation.Farewell,
			ExitPhrases:  cfg.Conversation.ExitPhrases,
			OutputDir:    cfg.Server.OutputDir,
			LocalModels:  cfg.LocalModels(),
			TurnTimeout:  cfg.TurnTimeout(),
		},
		logger,
	)
	if err != nil {
		return err
	}

	server, err := web.NewServer(
		web.Config{UploadDir: cfg.Server.OutputDir, RateLimit: cfg.Server.RateLimit},
		conv,
		creds,
		services,
		providers.NewCatalog(d, services),
		hub,
		logger,
	)
	if err != nil {
		return err
	}

	selection := cfg.Selection()
	logger.Info("starting spark assistant",
		"addr", cfg.Server.Addr,
		"transcription", selection.Transcription.Provider,
		"response", selection.Response.Provider,
		"speech", selection.Speech.Provider,
	)

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		hub.Run(ctx)
		return nil
	})

	if cfg.Credentials.Watch {
		g.Go(func() error {
			return creds.Watch(ctx)
		})
	}

	g.Go(func() error {
		return server.Listen(cfg.Server.Addr)
	})

	g.Go(func() error {
		<-ctx.Done()
		logger.Info("shutting down")
		conv.Stop()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

// loadConfig falls back to defaults when the file does not exist.
func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if errors.Is(err, fs.ErrNotExist) {
		slog.Warn("config file not found, using defaults", "path", path)
		return config.Default(), nil
	}
	return cfg, err
}

func createPlayer(setting string) (application.Player, error) {
	switch setting {
	case "none":
		return nil, nil
	case "portaudio":
		return audio.NewDevicePlayer(), nil
	default:
		p, err := audio.NewCommandPlayer(setting)
		if err != nil {
			return nil, err
		}
		return p, nil
	}
}

func setupLogger(cfg config.LogConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}
