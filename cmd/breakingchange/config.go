package main

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"

	"github.com/hazyhaar/breakingchange/notify"
)

// envConfig is read from the environment. Credentials never come from flags.
type envConfig struct {
	SlackWebhookURL string        `env:"SLACK_WEBHOOK_URL"`
	GitHubToken     string        `env:"GITHUB_TOKEN"`
	GitHubRepo      string        `env:"GITHUB_REPOSITORY"`
	GitHubAPI       string        `env:"GITHUB_API_URL"               envDefault:"https://api.github.com"`
	DataDir         string        `env:"BREAKINGCHANGE_DATA_DIR"      envDefault:"data"`
	SiteDir         string        `env:"BREAKINGCHANGE_SITE_DIR"      envDefault:"docs"`
	Concurrency     int           `env:"BREAKINGCHANGE_CONCURRENCY"   envDefault:"1"`
	FetchTimeout    time.Duration `env:"BREAKINGCHANGE_FETCH_TIMEOUT" envDefault:"45s"`
	AuthUser        string        `env:"BREAKINGCHANGE_AUTH_USER"`
	AuthHash        string        `env:"BREAKINGCHANGE_AUTH_HASH"`
}

func loadEnv() (envConfig, error) {
	var cfg envConfig
	if err := env.Parse(&cfg); err != nil {
		return cfg, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}

// notifiers returns the channels whose credentials are present.
func (c envConfig) notifiers() []notify.Notifier {
	var ns []notify.Notifier
	if c.SlackWebhookURL != "" {
		ns = append(ns, &notify.Slack{WebhookURL: c.SlackWebhookURL})
	}
	if c.GitHubToken != "" && c.GitHubRepo != "" {
		ns = append(ns, &notify.GitHubIssues{APIBase: c.GitHubAPI, Repo: c.GitHubRepo, Token: c.GitHubToken})
	}
	return ns
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
