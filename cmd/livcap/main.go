// Command livcap is the terminal client of livcapd: live captions with their
// translations, and a browser for recorded sessions.
package main

import (
	"flag"
	"fmt"
	"os"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/w93163red/LivCap-Translate/internal/app"
	"github.com/w93163red/LivCap-Translate/internal/config"
)

func main() {
	configPath := flag.String("config", "", "config file (default $LIVCAP_CONFIG or config.yaml in the data dir)")
	flag.Parse()

	cfg, err := config.Loader{}.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "livcap:", err)
		os.Exit(2)
	}

	m := app.New(app.Options{SocketPath: cfg.Socket, DatabasePath: cfg.Database})
	if _, err := tea.NewProgram(m, tea.WithAltScreen()).Run(); err != nil {
		fmt.Fprintln(os.Stderr, "livcap:", err)
		os.Exit(1)
	}
}
