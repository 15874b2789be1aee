package config

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "painminer.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "{}\n"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Storage.Driver != "sqlite" || cfg.Storage.DSN != "painminer.db" {
		t.Errorf("unexpected storage defaults %+v", cfg.Storage)
	}
	if cfg.Reddit.Limit != 50 || cfg.Reddit.TimeWindow != "year" || cfg.Reddit.Timeout != 15*time.Second {
		t.Errorf("unexpected reddit defaults %+v", cfg.Reddit)
	}
	if cfg.Reddit.UserAgent != "PainMiner/1.0 (Startup Research)" {
		t.Errorf("unexpected user agent %q", cfg.Reddit.UserAgent)
	}
	if cfg.Pipeline.FetchConcurrency != 1 {
		t.Errorf("expected sequential fetches by default, got %d", cfg.Pipeline.FetchConcurrency)
	}
	if len(cfg.Presets) != 5 {
		t.Errorf("expected 5 default presets, got %d", len(cfg.Presets))
	}
	if _, ok := cfg.Preset("saas_gaps"); !ok {
		t.Error("expected saas_gaps preset")
	}
	rules, err := cfg.Rules()
	if err != nil || len(rules) != 5 {
		t.Errorf("expected default rules, got %d (%v)", len(rules), err)
	}
}

func TestLoad_FileAndEnv(t *testing.T) {
	path := writeConfig(t, `
storage:
  driver: postgres
  dsn: postgres://localhost/painminer
reddit:
  timeout: 5s
  fingerprint: chrome
  rotate_user_agent: true
  proxies:
    - http://proxy1.local:8080
    - proxy2.local:3128
  proxy_cooldown: 1m
pipeline:
  fetch_concurrency: 3
scoring:
  rules:
    - name: churn
      pattern: 'cancel(l)?ing'
      weight: 3
presets:
  - name: weekly
    query: invoicing
    subreddits: [smallbusiness]
    schedule: "@weekly"
`)
	t.Setenv("PAINMINER_REDDIT_LIMIT", "25")
	t.Setenv("ANTHROPIC_API_KEY", "sk-from-env")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Storage.Driver != "postgres" || cfg.Reddit.Timeout != 5*time.Second || cfg.Reddit.Fingerprint != "chrome" {
		t.Errorf("file values not applied: %+v %+v", cfg.Storage, cfg.Reddit)
	}
	if !cfg.Reddit.RotateUserAgent || len(cfg.Reddit.Proxies) != 2 || cfg.Reddit.ProxyCooldown != time.Minute || cfg.Reddit.ProxyMaxFailures != 3 {
		t.Errorf("proxy settings not applied: %+v", cfg.Reddit)
	}
	if cfg.Reddit.Limit != 25 {
		t.Errorf("expected env override limit 25, got %d", cfg.Reddit.Limit)
	}
	if cfg.Anthropic.APIKey != "sk-from-env" {
		t.Errorf("expected api key from ANTHROPIC_API_KEY, got %q", cfg.Anthropic.APIKey)
	}
	if cfg.Pipeline.FetchConcurrency != 3 {
		t.Errorf("expected fetch_concurrency 3, got %d", cfg.Pipeline.FetchConcurrency)
	}

	rules, err := cfg.Rules()
	if err != nil || len(rules) != 1 || rules[0].Name != "churn" {
		t.Errorf("expected custom rules, got %+v (%v)", rules, err)
	}

	p, ok := cfg.Preset("weekly")
	if !ok || p.Schedule != "@weekly" || len(p.Subreddits) != 1 {
		t.Errorf("unexpected preset %+v", p)
	}
	if _, ok := cfg.Preset("saas_gaps"); ok {
		t.Error("configured presets should replace the defaults")
	}
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"driver", "storage: {driver: mysql}\n", "storage.driver"},
		{"fingerprint", "reddit: {fingerprint: netscape}\n", "reddit.fingerprint"},
		{"jitter", "reddit: {jitter: 2}\n", "reddit.jitter"},
		{"concurrency", "pipeline: {fetch_concurrency: 0}\n", "fetch_concurrency"},
		{"rule", "scoring: {rules: [{name: x, pattern: '(', weight: 1}]}\n", "scoring.rules"},
		{"preset", "presets: [{name: p, query: ''}]\n", "presets.p"},
		{"duplicate preset", "presets: [{name: p, query: q, subreddits: [a]}, {name: p, query: q, subreddits: [a]}]\n", "duplicate"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.body))
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("expected error containing %q, got %v", tt.want, err)
			}
		})
	}
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("expected error for missing config file")
	}
}

func TestLogConfig_NewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger, err := LogConfig{Level: "warn", Format: "json"}.NewLogger(&buf)
	if err != nil {
		t.Fatalf("NewLogger: %v", err)
	}
	logger.Info("hidden")
	logger.Warn("shown", "k", "v")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Error("info should be filtered at warn level")
	}
	if !strings.Contains(out, `"msg":"shown"`) || !strings.Contains(out, `"k":"v"`) {
		t.Errorf("unexpected json output %q", out)
	}

	if _, err := (LogConfig{Level: "loud"}).NewLogger(&buf); err == nil {
		t.Error("expected error for bad level")
	}
	if _, err := (LogConfig{Level: "info", Format: "xml"}).NewLogger(&buf); err == nil {
		t.Error("expected error for bad format")
	}
}
