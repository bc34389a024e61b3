package main

import (
	"flag"
	"fmt"
	"net/url"
	"os"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/sandeepprukmani-maker/jobstream/internal/client"
	"github.com/sandeepprukmani-maker/jobstream/internal/config"
	"github.com/sandeepprukmani-maker/jobstream/internal/watch"
)

func main() {
	wsURL := flag.String("url", "ws://127.0.0.1:8080/ws", "WebSocket URL of the jobstream server")
	token := flag.String("token", "", "Auth token (if the server requires one)")
	poll := flag.Duration("poll", 0, "Poll fallback interval (overrides config)")
	configPath := flag.String("config", "", "Optional config file for observer settings")
	flag.Parse()

	jobID := flag.Arg(0)
	if jobID == "" {
		fmt.Fprintln(os.Stderr, "usage: jobwatch [flags] <job-id>")
		os.Exit(2)
	}

	obsCfg := config.Default().Observer
	if *configPath != "" {
		cfg, err := config.Load(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
			os.Exit(1)
		}
		obsCfg = cfg.Observer
	}
	if *poll > 0 {
		obsCfg.PollInterval = *poll
	}

	httpBase := deriveHTTPBase(*wsURL)

	obs := client.NewObserver(*wsURL, *token, jobID)
	obs.SetBackoff(obsCfg.ReconnectBase, obsCfg.ReconnectMax, obsCfg.ReconnectAttempts)
	api := client.NewAPIClient(httpBase, *token)
	watcher := client.NewWatcher(obs, api, jobID, obsCfg.PollInterval)

	p := tea.NewProgram(watch.New(obs, watcher, jobID))
	if _, err := p.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// deriveHTTPBase converts ws://host:port/ws → http://host:port
func deriveHTTPBase(wsURL string) string {
	u, err := url.Parse(wsURL)
	if err != nil {
		return "http://127.0.0.1:8080"
	}
	scheme := "http"
	if strings.HasPrefix(u.Scheme, "wss") {
		scheme = "https"
	}
	return fmt.Sprintf("%s://%s", scheme, u.Host)
}
