// Command livcapd runs the caption and translation pipeline and serves it to
// clients over a Unix socket.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/w93163red/LivCap-Translate/internal/config"
	"github.com/w93163red/LivCap-Translate/internal/daemon"
	"github.com/w93163red/LivCap-Translate/internal/db"
	"github.com/w93163red/LivCap-Translate/internal/pipeline"
	"github.com/w93163red/LivCap-Translate/internal/recognizer"
	"github.com/w93163red/LivCap-Translate/internal/telemetry"
	"github.com/w93163red/LivCap-Translate/internal/translate"
)

const shutdownTimeout = 10 * time.Second

func main() {
	configPath := flag.String("config", "", "config file (default $LIVCAP_CONFIG or config.yaml in the data dir)")
	flag.Parse()

	cfg, err := config.Loader{}.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "livcapd:", err)
		os.Exit(2)
	}
	logger := config.NewLogger(cfg.LogLevel, os.Stderr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("livcapd stopped", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	store, err := db.Open(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer store.Close()
	if n, err := store.EndActiveSessions(); err != nil {
		logger.Warn("close stale sessions", "error", err)
	} else if n > 0 {
		logger.Info("closed sessions left active by a previous run", "count", n)
	}

	backend, err := newBackend(ctx, cfg.Translation)
	if err != nil {
		return err
	}

	metrics := telemetry.NewRecorder(logger)
	defer metrics.LogSummary()

	bridge := recognizer.New(recognizer.Config{
		URL:              cfg.Recognizer.URL,
		Token:            cfg.Recognizer.Token,
		HandshakeTimeout: cfg.Recognizer.HandshakeTimeout,
	}, logger)
	defer bridge.Close()

	hub := daemon.NewHub(logger)
	p := pipeline.New(pipeline.Config{
		Engine:     cfg.EngineConfig(),
		Controller: cfg.ControllerConfig(),
		Locale:     cfg.Recognition.Locale,
	}, bridge, backend,
		pipeline.WithLogger(logger),
		pipeline.WithRecorder(metrics),
		pipeline.WithStore(store),
		pipeline.WithSubscriber(hub),
	)
	bridge.OnFrame(p.Frame)
	p.Start(ctx)

	ln, err := daemon.Listen(cfg.Socket)
	if err != nil {
		p.Close()
		return err
	}
	defer os.Remove(cfg.Socket)

	logger.Info("livcapd listening",
		"socket", cfg.Socket,
		"recognizer", cfg.Recognizer.URL,
		"translation", cfg.Translation.Backend,
		"target_language", cfg.Translation.TargetLanguage,
	)
	serveErr := daemon.NewServer(p, store, hub, logger).Serve(ctx, ln)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := p.Shutdown(shutdownCtx); err != nil {
		logger.Warn("pending translations abandoned", "error", err)
	}
	return serveErr
}

// newBackend builds the configured translation backend behind the request
// throttle. It returns nil when translation is disabled.
func newBackend(ctx context.Context, t config.TranslationConfig) (translate.Backend, error) {
	var b translate.Backend
	switch t.Backend {
	case config.BackendNone:
		return nil, nil
	case config.BackendGemini:
		g, err := translate.NewGemini(ctx, translate.GeminiConfig{
			APIKey:         t.GeminiAPIKey,
			Model:          t.Model,
			BaseURL:        t.BaseURL,
			SourceLanguage: t.SourceLanguage,
			TargetLanguage: t.TargetLanguage,
		})
		if err != nil {
			return nil, err
		}
		b = g
	default:
		b = translate.NewOpenAI(t.Model, t.TargetLanguage,
			translate.WithBaseURL(t.BaseURL),
			translate.WithAPIKey(t.OpenAIAPIKey),
			translate.WithSourceLanguage(t.SourceLanguage),
		)
	}
	return translate.NewThrottle(b, t.MinInterval), nil
}
