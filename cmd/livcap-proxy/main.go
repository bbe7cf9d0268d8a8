// Command livcap-proxy serves an OpenAI-compatible chat completions API backed
// by Gemini.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/w93163red/LivCap-Translate/internal/config"
	"github.com/w93163red/LivCap-Translate/internal/proxy"
)

func main() {
	configPath := flag.String("config", "", "config file (default $LIVCAP_CONFIG or config.yaml in the data dir)")
	addr := flag.String("addr", "", "listen address (default proxy.addr, 127.0.0.1:11435)")
	flag.Parse()

	cfg, err := config.Loader{}.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "livcap-proxy:", err)
		os.Exit(2)
	}
	logger := config.NewLogger(cfg.LogLevel, os.Stderr)
	if *addr != "" {
		cfg.Proxy.Addr = *addr
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	gen, err := proxy.NewGemini(ctx, cfg.Translation.GeminiAPIKey, cfg.Proxy.BaseURL)
	if err != nil {
		logger.Error("create upstream client", "error", err)
		os.Exit(1)
	}
	srv := proxy.NewServer(gen,
		proxy.WithMinInterval(cfg.Proxy.MinInterval),
		proxy.WithLogger(logger),
	)
	if err := srv.ListenAndServe(ctx, cfg.Proxy.Addr); err != nil {
		logger.Error("proxy stopped", "error", err)
		os.Exit(1)
	}
}
