// Package pipeline runs search jobs: fetch every requested source, rank the
// posts, persist them, summarize the top of the list and record the outcome
// on the job.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/FranksOps/painminer/internal/metrics"
	"github.com/FranksOps/painminer/internal/ranking"
	"github.com/FranksOps/painminer/internal/scraper"
	"github.com/FranksOps/painminer/internal/storage"
	"github.com/FranksOps/painminer/internal/summarizer"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// Source fetches posts for one community. It never fails; problems surface
// as an empty result.
type Source interface {
	Fetch(ctx context.Context, source, query string) []scraper.RawPost
}

// Summarizer turns ranked posts into a summary and opportunities.
type Summarizer interface {
	Summarize(ctx context.Context, posts []*storage.RankedPost) summarizer.Result
}

// Config tunes job execution.
type Config struct {
	// FetchConcurrency bounds parallel source fetches; 1 fetches sequentially.
	FetchConcurrency int
	// RunTimeout bounds a background run; zero means no limit.
	RunTimeout time.Duration
}

// JobDetails is a job together with the rows it owns.
type JobDetails struct {
	*storage.SearchJob
	Posts         []*storage.RankedPost  `json:"posts"`
	Opportunities []*storage.Opportunity `json:"opportunities"`
}

// Pipeline coordinates search jobs against a storage backend.
type Pipeline struct {
	store      storage.Backend
	source     Source
	ranker     *ranking.Aggregator
	summarizer Summarizer
	cfg        Config
	logger     *slog.Logger

	wg sync.WaitGroup
}

// New creates a Pipeline. A nil ranker uses the default scoring rules.
func New(store storage.Backend, source Source, ranker *ranking.Aggregator, sum Summarizer, cfg Config, logger *slog.Logger) *Pipeline {
	if cfg.FetchConcurrency <= 0 {
		cfg.FetchConcurrency = 1
	}
	if ranker == nil {
		ranker = ranking.New(nil)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		store:      store,
		source:     source,
		ranker:     ranker,
		summarizer: sum,
		cfg:        cfg,
		logger:     logger,
	}
}

// Submit validates the request, creates a pending job and starts its run in
// the background. The run outlives ctx; use Wait to drain runs on shutdown.
func (p *Pipeline) Submit(ctx context.Context, query string, sources []string) (*storage.SearchJob, error) {
	query, sources, err := Validate(query, sources)
	if err != nil {
		return nil, err
	}

	job, err := p.store.CreateJob(ctx, query, sources)
	if err != nil {
		return nil, fmt.Errorf("create job: %w", err)
	}
	metrics.JobsTotal.WithLabelValues(string(storage.StatusPending)).Inc()

	runCtx := context.WithoutCancel(ctx)
	snapshot := *job
	snapshot.Sources = append([]string(nil), job.Sources...)

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		if p.cfg.RunTimeout > 0 {
			var cancel context.CancelFunc
			runCtx, cancel = context.WithTimeout(runCtx, p.cfg.RunTimeout)
			defer cancel()
		}
		_ = p.Run(runCtx, &snapshot)
	}()

	return job, nil
}

// Wait blocks until every background run started by Submit has finished.
func (p *Pipeline) Wait() {
	p.wg.Wait()
}

// Run executes job synchronously. Any persistence error or panic moves the
// job to failed and is returned; otherwise the job ends completed.
func (p *Pipeline) Run(ctx context.Context, job *storage.SearchJob) (err error) {
	runID := uuid.NewString()
	log := p.logger.With("job_id", job.ID, "run_id", runID)
	start := time.Now()

	log.Info("search started", "query", job.Query, "sources", job.Sources)

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic during search run: %v", r)
			log.Error("search panicked", "panic", r, "stack", string(debug.Stack()))
		}
		if err != nil {
			log.Error("search failed", "error", err, "duration", time.Since(start))
			p.markFailed(ctx, job.ID, log)
			metrics.RecordJob(string(storage.StatusFailed), time.Since(start))
			return
		}
		metrics.RecordJob(string(storage.StatusCompleted), time.Since(start))
	}()

	return p.run(ctx, job, log, start)
}

func (p *Pipeline) run(ctx context.Context, job *storage.SearchJob, log *slog.Logger, start time.Time) error {
	raw := p.fetchAll(ctx, job)

	ranked := p.ranker.Rank(job.ID, raw)
	metrics.RankedPosts.Observe(float64(len(ranked)))
	log.Info("posts ranked", "fetched", len(raw), "kept", len(ranked))

	if err := p.store.SavePosts(ctx, job.ID, ranked); err != nil {
		return fmt.Errorf("save posts: %w", err)
	}

	top := ranked
	if len(top) > summarizer.MaxDigestPosts {
		top = top[:summarizer.MaxDigestPosts]
	}
	res := p.summarizer.Summarize(ctx, top)

	for _, o := range res.Opportunities {
		o.JobID = job.ID
	}
	if err := p.store.SaveOpportunities(ctx, job.ID, res.Opportunities); err != nil {
		return fmt.Errorf("save opportunities: %w", err)
	}

	if err := p.store.UpdateJobStatus(ctx, job.ID, storage.StatusCompleted, res.Summary); err != nil {
		return fmt.Errorf("complete job: %w", err)
	}

	log.Info("search completed",
		"posts", len(ranked),
		"opportunities", len(res.Opportunities),
		"summary_outcome", res.Outcome,
		"duration", time.Since(start),
	)
	return nil
}

// fetchAll fetches every source, at most FetchConcurrency at a time, and
// returns the posts in source order.
func (p *Pipeline) fetchAll(ctx context.Context, job *storage.SearchJob) []scraper.RawPost {
	results := make([][]scraper.RawPost, len(job.Sources))

	var g errgroup.Group
	g.SetLimit(p.cfg.FetchConcurrency)
	for i, src := range job.Sources {
		g.Go(func() error {
			results[i] = p.source.Fetch(ctx, src, job.Query)
			return nil
		})
	}
	_ = g.Wait()

	var all []scraper.RawPost
	for _, r := range results {
		all = append(all, r...)
	}
	return all
}

func (p *Pipeline) markFailed(ctx context.Context, id int64, log *slog.Logger) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := p.store.UpdateJobStatus(ctx, id, storage.StatusFailed, ""); err != nil {
		log.Error("failed to mark job failed", "error", err)
	}
}

// Get returns a job with its posts ranked by pain score and its
// opportunities ranked by confidence.
func (p *Pipeline) Get(ctx context.Context, id int64) (*JobDetails, error) {
	job, err := p.store.GetJob(ctx, id)
	if err != nil {
		return nil, err
	}
	posts, err := p.store.ListPosts(ctx, storage.PostFilter{JobID: id})
	if err != nil {
		return nil, fmt.Errorf("list posts: %w", err)
	}
	opps, err := p.store.ListOpportunities(ctx, storage.OpportunityFilter{JobID: id})
	if err != nil {
		return nil, fmt.Errorf("list opportunities: %w", err)
	}
	if posts == nil {
		posts = []*storage.RankedPost{}
	}
	if opps == nil {
		opps = []*storage.Opportunity{}
	}
	return &JobDetails{SearchJob: job, Posts: posts, Opportunities: opps}, nil
}

// List returns jobs newest first.
func (p *Pipeline) List(ctx context.Context, filter storage.JobFilter) ([]*storage.SearchJob, error) {
	return p.store.ListJobs(ctx, filter)
}

// Opportunities lists opportunities across jobs, newest first, unless the
// filter names a job.
func (p *Pipeline) Opportunities(ctx context.Context, filter storage.OpportunityFilter) ([]*storage.Opportunity, error) {
	return p.store.ListOpportunities(ctx, filter)
}
