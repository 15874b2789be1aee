package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/FranksOps/painminer/internal/storage"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ensure postgresBackend implements storage.Backend
var _ storage.Backend = (*postgresBackend)(nil)

type postgresBackend struct {
	pool *pgxpool.Pool
}

const schema = `
CREATE TABLE IF NOT EXISTS searches (
	id BIGSERIAL PRIMARY KEY,
	query TEXT NOT NULL,
	subreddits TEXT[] NOT NULL,
	status TEXT NOT NULL DEFAULT 'pending',
	summary TEXT,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS posts (
	id BIGSERIAL PRIMARY KEY,
	search_id BIGINT NOT NULL REFERENCES searches(id),
	reddit_id TEXT NOT NULL,
	subreddit TEXT NOT NULL,
	title TEXT NOT NULL,
	body TEXT NOT NULL,
	score INTEGER NOT NULL,
	num_comments INTEGER NOT NULL,
	url TEXT NOT NULL,
	pain_score INTEGER NOT NULL,
	signals JSONB,
	created_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS posts_search_pain ON posts (search_id, pain_score DESC);

CREATE TABLE IF NOT EXISTS opportunities (
	id BIGSERIAL PRIMARY KEY,
	search_id BIGINT NOT NULL REFERENCES searches(id),
	name TEXT NOT NULL,
	problem TEXT NOT NULL,
	target_user TEXT NOT NULL,
	pricing TEXT NOT NULL,
	confidence INTEGER NOT NULL,
	validation_test TEXT,
	description TEXT,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS opportunities_search ON opportunities (search_id, confidence DESC);
`

// New creates a new Postgres-backed storage.Backend.
func New(ctx context.Context, dsn string) (storage.Backend, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	return &postgresBackend{pool: pool}, nil
}

func (b *postgresBackend) CreateJob(ctx context.Context, query string, sources []string) (*storage.SearchJob, error) {
	job := &storage.SearchJob{
		Query:   query,
		Sources: append([]string(nil), sources...),
		Status:  storage.StatusPending,
	}

	err := b.pool.QueryRow(ctx,
		`INSERT INTO searches (query, subreddits, status) VALUES ($1, $2, $3) RETURNING id, created_at`,
		job.Query, job.Sources, string(job.Status),
	).Scan(&job.ID, &job.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert search: %w", err)
	}
	return job, nil
}

const jobColumns = `id, query, subreddits, status, summary, created_at`

func scanJob(row pgx.Row) (*storage.SearchJob, error) {
	var (
		j       storage.SearchJob
		status  string
		summary *string
	)
	if err := row.Scan(&j.ID, &j.Query, &j.Sources, &status, &summary, &j.CreatedAt); err != nil {
		return nil, err
	}
	j.Status = storage.Status(status)
	if summary != nil {
		j.Summary = *summary
	}
	return &j, nil
}

func (b *postgresBackend) GetJob(ctx context.Context, id int64) (*storage.SearchJob, error) {
	j, err := scanJob(b.pool.QueryRow(ctx, `SELECT `+jobColumns+` FROM searches WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("search %d: %w", id, storage.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get search %d: %w", id, err)
	}
	return j, nil
}

func (b *postgresBackend) ListJobs(ctx context.Context, filter storage.JobFilter) ([]*storage.SearchJob, error) {
	query := `SELECT ` + jobColumns + ` FROM searches WHERE 1=1`
	args := []any{}
	paramCount := 1

	if filter.Status != nil {
		query += fmt.Sprintf(` AND status = $%d`, paramCount)
		args = append(args, string(*filter.Status))
		paramCount++
	}

	query += ` ORDER BY created_at DESC, id DESC`

	if filter.Limit > 0 {
		query += fmt.Sprintf(` LIMIT $%d`, paramCount)
		args = append(args, filter.Limit)
		paramCount++
	}
	if filter.Offset > 0 {
		query += fmt.Sprintf(` OFFSET $%d`, paramCount)
		args = append(args, filter.Offset)
	}

	rows, err := b.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list searches: %w", err)
	}
	defer rows.Close()

	var jobs []*storage.SearchJob
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan search: %w", err)
		}
		jobs = append(jobs, j)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list searches: %w", err)
	}
	return jobs, nil
}

func (b *postgresBackend) UpdateJobStatus(ctx context.Context, id int64, status storage.Status, summary string) error {
	var summaryArg *string
	if summary != "" {
		summaryArg = &summary
	}

	tag, err := b.pool.Exec(ctx,
		`UPDATE searches SET status = $1, summary = $2 WHERE id = $3 AND status = $4`,
		string(status), summaryArg, id, string(storage.StatusPending),
	)
	if err != nil {
		return fmt.Errorf("update search %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		if _, err := b.GetJob(ctx, id); err != nil {
			return err
		}
		return fmt.Errorf("search %d: %w", id, storage.ErrNotPending)
	}
	return nil
}

func (b *postgresBackend) SavePosts(ctx context.Context, jobID int64, posts []*storage.RankedPost) error {
	if len(posts) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, p := range posts {
		signalsJSON, err := json.Marshal(p.Signals)
		if err != nil {
			return fmt.Errorf("encode signals: %w", err)
		}
		batch.Queue(`
		INSERT INTO posts (
			search_id, reddit_id, subreddit, title, body, score, num_comments, url, pain_score, signals, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id`,
			jobID, p.NativeID, p.Source, p.Title, p.Body, p.Upvotes, p.NumComments,
			p.URL, p.PainScore, signalsJSON, p.CreatedAt,
		)
	}

	return pgx.BeginFunc(ctx, b.pool, func(tx pgx.Tx) error {
		br := tx.SendBatch(ctx, batch)
		for _, p := range posts {
			if err := br.QueryRow().Scan(&p.ID); err != nil {
				_ = br.Close()
				return fmt.Errorf("insert post %s: %w", p.NativeID, err)
			}
			p.JobID = jobID
		}
		if err := br.Close(); err != nil {
			return fmt.Errorf("insert posts: %w", err)
		}
		return nil
	})
}

func (b *postgresBackend) ListPosts(ctx context.Context, filter storage.PostFilter) ([]*storage.RankedPost, error) {
	query := `SELECT id, search_id, reddit_id, subreddit, title, body, score, num_comments, url, pain_score, signals, created_at
	FROM posts WHERE search_id = $1`
	args := []any{filter.JobID}
	paramCount := 2

	if filter.MinPainScore > 0 {
		query += fmt.Sprintf(` AND pain_score >= $%d`, paramCount)
		args = append(args, filter.MinPainScore)
		paramCount++
	}

	query += ` ORDER BY pain_score DESC, id ASC`

	if filter.Limit > 0 {
		query += fmt.Sprintf(` LIMIT $%d`, paramCount)
		args = append(args, filter.Limit)
	}

	rows, err := b.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list posts: %w", err)
	}
	defer rows.Close()

	var posts []*storage.RankedPost
	for rows.Next() {
		var p storage.RankedPost
		var signalsJSON []byte

		err := rows.Scan(
			&p.ID, &p.JobID, &p.NativeID, &p.Source, &p.Title, &p.Body, &p.Upvotes,
			&p.NumComments, &p.URL, &p.PainScore, &signalsJSON, &p.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan post: %w", err)
		}
		if len(signalsJSON) > 0 {
			if err := json.Unmarshal(signalsJSON, &p.Signals); err != nil {
				return nil, fmt.Errorf("decode signals: %w", err)
			}
		}
		posts = append(posts, &p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list posts: %w", err)
	}
	return posts, nil
}

func (b *postgresBackend) SaveOpportunities(ctx context.Context, jobID int64, opps []*storage.Opportunity) error {
	if len(opps) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, o := range opps {
		batch.Queue(`
		INSERT INTO opportunities (
			search_id, name, problem, target_user, pricing, confidence, validation_test, description
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, created_at`,
			jobID, o.Name, o.Problem, o.TargetUser, o.Pricing, o.Confidence,
			optional(o.ValidationTest), optional(o.Description),
		)
	}

	return pgx.BeginFunc(ctx, b.pool, func(tx pgx.Tx) error {
		br := tx.SendBatch(ctx, batch)
		for _, o := range opps {
			if err := br.QueryRow().Scan(&o.ID, &o.CreatedAt); err != nil {
				_ = br.Close()
				return fmt.Errorf("insert opportunity %q: %w", o.Name, err)
			}
			o.JobID = jobID
		}
		if err := br.Close(); err != nil {
			return fmt.Errorf("insert opportunities: %w", err)
		}
		return nil
	})
}

func (b *postgresBackend) ListOpportunities(ctx context.Context, filter storage.OpportunityFilter) ([]*storage.Opportunity, error) {
	query := `SELECT id, search_id, name, problem, target_user, pricing, confidence, validation_test, description, created_at
	FROM opportunities`
	args := []any{}
	paramCount := 1

	if filter.JobID > 0 {
		query += fmt.Sprintf(` WHERE search_id = $%d ORDER BY confidence DESC, id ASC`, paramCount)
		args = append(args, filter.JobID)
		paramCount++
	} else {
		query += ` ORDER BY created_at DESC, id DESC`
	}

	if filter.Limit > 0 {
		query += fmt.Sprintf(` LIMIT $%d`, paramCount)
		args = append(args, filter.Limit)
	}

	rows, err := b.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list opportunities: %w", err)
	}
	defer rows.Close()

	var opps []*storage.Opportunity
	for rows.Next() {
		var o storage.Opportunity
		var validation, description *string
		var createdAt time.Time

		err := rows.Scan(
			&o.ID, &o.JobID, &o.Name, &o.Problem, &o.TargetUser, &o.Pricing,
			&o.Confidence, &validation, &description, &createdAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan opportunity: %w", err)
		}
		if validation != nil {
			o.ValidationTest = *validation
		}
		if description != nil {
			o.Description = *description
		}
		o.CreatedAt = createdAt
		opps = append(opps, &o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list opportunities: %w", err)
	}
	return opps, nil
}

func (b *postgresBackend) Close() error {
	b.pool.Close()
	return nil
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
