// Package scheduler submits configured preset searches on their cron
// schedules.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/FranksOps/painminer/internal/config"
	"github.com/FranksOps/painminer/internal/storage"
	"github.com/robfig/cron/v3"
)

// Submitter starts a search job.
type Submitter interface {
	Submit(ctx context.Context, query string, sources []string) (*storage.SearchJob, error)
}

// Entry describes one scheduled preset.
type Entry struct {
	Preset string
	Spec   string
	Next   time.Time
}

// Scheduler wraps robfig/cron and submits a job per preset tick.
type Scheduler struct {
	cron    *cron.Cron
	submit  Submitter
	presets []config.Preset
	logger  *slog.Logger
	entries map[string]cron.EntryID
}

// New creates a Scheduler for the presets that carry a schedule.
func New(submit Submitter, presets []config.Preset, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	cl := cronLogger{logger: logger}
	return &Scheduler{
		cron:    cron.New(cron.WithLogger(cl), cron.WithChain(cron.Recover(cl))),
		submit:  submit,
		presets: presets,
		logger:  logger,
		entries: make(map[string]cron.EntryID),
	}
}

// Start registers every scheduled preset and starts the cron loop. ctx is
// passed to each submission.
func (s *Scheduler) Start(ctx context.Context) error {
	for _, p := range s.presets {
		if p.Schedule == "" {
			continue
		}
		id, err := s.cron.AddFunc(p.Schedule, func() {
			s.Trigger(ctx, p)
		})
		if err != nil {
			return fmt.Errorf("preset %s: cron.AddFunc(%q): %w", p.Name, p.Schedule, err)
		}
		s.entries[p.Name] = id
	}

	s.cron.Start()
	s.logger.Info("scheduler started", "presets", len(s.entries))
	return nil
}

// Stop halts the cron loop and returns a context that is done once any
// running trigger has returned.
func (s *Scheduler) Stop() context.Context {
	ctx := s.cron.Stop()
	s.logger.Info("scheduler stopped")
	return ctx
}

// Trigger submits preset p immediately.
func (s *Scheduler) Trigger(ctx context.Context, p config.Preset) (*storage.SearchJob, error) {
	job, err := s.submit.Submit(ctx, p.Query, p.Subreddits)
	if err != nil {
		s.logger.Error("preset submit failed", "preset", p.Name, "error", err)
		return nil, err
	}
	s.logger.Info("preset submitted", "preset", p.Name, "job_id", job.ID)
	return job, nil
}

// Entries lists scheduled presets by name with their next run time.
func (s *Scheduler) Entries() []Entry {
	out := make([]Entry, 0, len(s.entries))
	for _, p := range s.presets {
		id, ok := s.entries[p.Name]
		if !ok {
			continue
		}
		out = append(out, Entry{Preset: p.Name, Spec: p.Schedule, Next: s.cron.Entry(id).Next})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Preset < out[j].Preset })
	return out
}

// cronLogger adapts slog to cron.Logger.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error("cron: "+msg, append([]any{"error", err}, keysAndValues...)...)
}
