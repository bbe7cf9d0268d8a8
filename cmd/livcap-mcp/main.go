// Command livcap-mcp serves recorded captions and translations to MCP
// clients over stdio.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/mark3labs/mcp-go/server"

	"github.com/w93163red/LivCap-Translate/internal/config"
	"github.com/w93163red/LivCap-Translate/internal/db"
	"github.com/w93163red/LivCap-Translate/internal/mcpserver"
)

var version = "dev"

func main() {
	configPath := flag.String("config", "", "config file (default $LIVCAP_CONFIG or config.yaml in the data dir)")
	flag.Parse()

	cfg, err := config.Loader{}.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "livcap-mcp:", err)
		os.Exit(2)
	}
	// stdout carries the protocol.
	logger := config.NewLogger(cfg.LogLevel, os.Stderr)

	store, err := db.OpenReadOnly(cfg.Database)
	if err != nil {
		logger.Error("open caption store", "path", cfg.Database, "error", err)
		os.Exit(1)
	}
	defer store.Close()

	if err := server.ServeStdio(mcpserver.New(store, version, logger)); err != nil {
		logger.Error("serve stdio", "error", err)
		os.Exit(1)
	}
}
