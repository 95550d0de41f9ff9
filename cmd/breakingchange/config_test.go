package main

import (
	"log/slog"
	"testing"
	"time"
)

func TestLoadEnv_Defaults(t *testing.T) {
	for _, k := range []string{"SLACK_WEBHOOK_URL", "GITHUB_TOKEN", "GITHUB_REPOSITORY", "BREAKINGCHANGE_DATA_DIR", "BREAKINGCHANGE_FETCH_TIMEOUT"} {
		t.Setenv(k, "")
	}
	cfg, err := loadEnv()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.SiteDir != "docs" || cfg.Concurrency != 1 || cfg.GitHubAPI != "https://api.github.com" {
		t.Errorf("defaults: %+v", cfg)
	}
	if len(cfg.notifiers()) != 0 {
		t.Error("no credentials, no notifiers")
	}
}

func TestLoadEnv_Overrides(t *testing.T) {
	t.Setenv("BREAKINGCHANGE_DATA_DIR", "/var/lib/bc")
	t.Setenv("BREAKINGCHANGE_CONCURRENCY", "4")
	t.Setenv("BREAKINGCHANGE_FETCH_TIMEOUT", "10s")
	cfg, err := loadEnv()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.DataDir != "/var/lib/bc" || cfg.Concurrency != 4 || cfg.FetchTimeout != 10*time.Second {
		t.Errorf("got %+v", cfg)
	}

	t.Setenv("BREAKINGCHANGE_CONCURRENCY", "many")
	if _, err := loadEnv(); err == nil {
		t.Error("want error for a non-numeric concurrency")
	}
}

func TestNotifiers(t *testing.T) {
	tests := []struct {
		name string
		cfg  envConfig
		want []string
	}{
		{"slack only", envConfig{SlackWebhookURL: "https://hooks.example/x"}, []string{"slack"}},
		{"token without repo", envConfig{GitHubToken: "t"}, nil},
		{"both", envConfig{SlackWebhookURL: "https://hooks.example/x", GitHubToken: "t", GitHubRepo: "o/r"}, []string{"slack", "github_issues"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ns := tt.cfg.notifiers()
			if len(ns) != len(tt.want) {
				t.Fatalf("got %d notifiers, want %d", len(ns), len(tt.want))
			}
			for i, n := range ns {
				if n.Name() != tt.want[i] {
					t.Errorf("notifier %d: got %s", i, n.Name())
				}
			}
		})
	}
}

func TestParseLevel(t *testing.T) {
	if parseLevel("DEBUG") != slog.LevelDebug || parseLevel("warn") != slog.LevelWarn || parseLevel("bogus") != slog.LevelInfo {
		t.Error("unexpected level mapping")
	}
}
