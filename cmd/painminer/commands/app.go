// Package commands implements the painminer CLI subcommands.
package commands

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"github.com/FranksOps/painminer/internal/analyzer"
	"github.com/FranksOps/painminer/internal/cache"
	"github.com/FranksOps/painminer/internal/config"
	"github.com/FranksOps/painminer/internal/fingerprint"
	"github.com/FranksOps/painminer/internal/llm"
	"github.com/FranksOps/painminer/internal/pipeline"
	"github.com/FranksOps/painminer/internal/ranking"
	"github.com/FranksOps/painminer/internal/report"
	"github.com/FranksOps/painminer/internal/scraper"
	"github.com/FranksOps/painminer/internal/storage"
	"github.com/FranksOps/painminer/internal/storage/postgres"
	"github.com/FranksOps/painminer/internal/storage/sqlite"
	"github.com/FranksOps/painminer/internal/summarizer"
	"github.com/FranksOps/painminer/pkg/proxy"
	"github.com/FranksOps/painminer/pkg/ratelimit"
	"github.com/FranksOps/painminer/pkg/useragent"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
)

// loadConfig reads the config file named by --config and applies the
// persistent flag overrides.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	v, err := config.NewViper(path)
	if err != nil {
		return nil, err
	}
	if f := cmd.Flags().Lookup("log-level"); f != nil && f.Changed {
		v.Set("log.level", f.Value.String())
	}
	if f := cmd.Flags().Lookup("db"); f != nil && f.Changed {
		v.Set("storage.dsn", f.Value.String())
	}
	return config.FromViper(v)
}

func newLogger(cfg *config.Config, w io.Writer) (*slog.Logger, error) {
	logger, err := cfg.Log.NewLogger(w)
	if err != nil {
		return nil, err
	}
	slog.SetDefault(logger)
	return logger, nil
}

func openStore(ctx context.Context, cfg config.StorageConfig) (storage.Backend, error) {
	switch cfg.Driver {
	case "postgres":
		return postgres.New(ctx, cfg.DSN)
	default:
		return sqlite.New(cfg.DSN)
	}
}

// textOptions builds report options; evidence quotes use the configured
// scoring rules.
func textOptions(cfg *config.Config, top int, evidence bool) (report.TextOptions, error) {
	opts := report.TextOptions{TopPosts: top}
	if evidence {
		rules, err := cfg.Rules()
		if err != nil {
			return opts, err
		}
		opts.Evidence = analyzer.NewScorer(rules...)
	}
	return opts, nil
}

// app holds everything a job-running command needs.
type app struct {
	cfg      *config.Config
	logger   *slog.Logger
	store    storage.Backend
	redis    *redis.Client
	pipeline *pipeline.Pipeline
}

func newApp(ctx context.Context, cmd *cobra.Command) (*app, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	logger, err := newLogger(cfg, os.Stderr)
	if err != nil {
		return nil, err
	}

	a := &app{cfg: cfg, logger: logger}
	if a.store, err = openStore(ctx, cfg.Storage); err != nil {
		return nil, fmt.Errorf("failed to open storage: %w", err)
	}

	source, err := a.newSource(ctx)
	if err != nil {
		a.Close()
		return nil, err
	}

	rules, err := cfg.Rules()
	if err != nil {
		a.Close()
		return nil, err
	}
	ranker := ranking.New(analyzer.NewScorer(rules...))

	sum, err := newSummarizer(cfg, logger)
	if err != nil {
		a.Close()
		return nil, err
	}

	a.pipeline = pipeline.New(a.store, source, ranker, sum, pipeline.Config{
		FetchConcurrency: cfg.Pipeline.FetchConcurrency,
		RunTimeout:       cfg.Pipeline.RunTimeout,
	}, logger.With("component", "pipeline"))
	return a, nil
}

// newSummarizer builds the opportunity summarizer over the configured
// Anthropic client.
func newSummarizer(cfg *config.Config, logger *slog.Logger) (*summarizer.Summarizer, error) {
	client, err := llm.NewClient(llm.Config{
		APIKey:    cfg.Anthropic.APIKey,
		BaseURL:   cfg.Anthropic.BaseURL,
		Model:     cfg.Anthropic.Model,
		MaxTokens: cfg.Anthropic.MaxTokens,
		Timeout:   cfg.Anthropic.Timeout,
	})
	if err != nil {
		return nil, err
	}
	if cfg.Anthropic.APIKey == "" {
		logger.Warn("no Anthropic API key configured; analysis will complete without opportunities")
	}
	return summarizer.New(client,
		summarizer.WithTimeout(cfg.Anthropic.Timeout),
		summarizer.WithLogger(logger.With("component", "summarizer")),
	), nil
}

func (a *app) newSource(ctx context.Context) (pipeline.Source, error) {
	fetcher, err := newFetcher(a.cfg.Reddit, a.logger)
	if err != nil {
		return nil, err
	}

	if a.cfg.Cache.RedisURL == "" {
		return fetcher, nil
	}
	rdb, err := cache.NewRedisClient(ctx, a.cfg.Cache.RedisURL)
	if err != nil {
		a.logger.Warn("fetch cache disabled", "error", err)
		return fetcher, nil
	}
	a.redis = rdb
	return cache.NewFetcher(fetcher, rdb, a.cfg.Cache.TTL, a.logger.With("component", "cache")), nil
}

// newFetcher builds the Reddit fetcher with pacing, fingerprint, user agent
// rotation and proxies as configured.
func newFetcher(rc config.RedditConfig, logger *slog.Logger) (*scraper.Fetcher, error) {
	profile, err := fingerprint.ParseProfile(rc.Fingerprint)
	if err != nil {
		return nil, err
	}
	fc := scraper.FetchConfig{
		BaseURL:     rc.BaseURL,
		UserAgent:   rc.UserAgent,
		Limit:       rc.Limit,
		TimeWindow:  rc.TimeWindow,
		Timeout:     rc.Timeout,
		Fingerprint: profile,
		Limiter:     ratelimit.NewLimiter(rc.RequestsPerSecond, rc.Jitter),
	}
	if rc.RotateUserAgent {
		fc.UserAgents = useragent.ForFamily(string(profile))
	}
	if len(rc.Proxies) > 0 || rc.ProxyFile != "" {
		pool := proxy.NewPool(proxy.Config{MaxFailures: rc.ProxyMaxFailures, Cooldown: rc.ProxyCooldown})
		if err := pool.Add(rc.Proxies...); err != nil {
			return nil, err
		}
		if rc.ProxyFile != "" {
			if err := pool.LoadFile(rc.ProxyFile); err != nil {
				return nil, err
			}
		}
		logger.Info("routing fetches through proxies", "proxies", pool.Len())
		fc.Proxies = pool
	}

	return scraper.NewFetcher(fc, logger.With("component", "scraper"))
}

// Close waits for background runs and releases resources.
func (a *app) Close() {
	if a.pipeline != nil {
		a.pipeline.Wait()
	}
	if a.redis != nil {
		_ = a.redis.Close()
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.logger.Error("failed to close storage", "error", err)
		}
	}
}

// render writes a job report in the requested format. opts only affects
// the text format.
func render(w io.Writer, d *pipeline.JobDetails, format string, opts report.TextOptions) error {
	switch format {
	case "text":
		return report.WriteText(w, d, opts)
	case "json":
		return report.WriteJSON(w, report.GenerateSummary(d))
	case "csv":
		return report.WriteCSV(w, d)
	case "html":
		return report.WriteHTML(w, d)
	}
	return validFormat(format)
}

var formats = []string{"text", "json", "csv", "html"}

func validFormat(format string) error {
	if slices.Contains(formats, format) {
		return nil
	}
	return fmt.Errorf("unsupported format %q (want text, json, csv or html)", format)
}
