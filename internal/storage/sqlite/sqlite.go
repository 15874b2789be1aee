package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/FranksOps/painminer/internal/storage"
	_ "modernc.org/sqlite"
)

// ensure sqliteBackend implements storage.Backend
var _ storage.Backend = (*sqliteBackend)(nil)

type sqliteBackend struct {
	db *sql.DB
}

const schema = `
PRAGMA foreign_keys = ON;

CREATE TABLE IF NOT EXISTS searches (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	query TEXT NOT NULL,
	subreddits TEXT NOT NULL,
	status TEXT NOT NULL DEFAULT 'pending',
	summary TEXT,
	created_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS posts (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	search_id INTEGER NOT NULL REFERENCES searches(id),
	reddit_id TEXT NOT NULL,
	subreddit TEXT NOT NULL,
	title TEXT NOT NULL,
	body TEXT NOT NULL,
	score INTEGER NOT NULL,
	num_comments INTEGER NOT NULL,
	url TEXT NOT NULL,
	pain_score INTEGER NOT NULL,
	signals TEXT,
	created_at DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS posts_search_pain ON posts (search_id, pain_score DESC);

CREATE TABLE IF NOT EXISTS opportunities (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	search_id INTEGER NOT NULL REFERENCES searches(id),
	name TEXT NOT NULL,
	problem TEXT NOT NULL,
	target_user TEXT NOT NULL,
	pricing TEXT NOT NULL,
	confidence INTEGER NOT NULL,
	validation_test TEXT,
	description TEXT,
	created_at DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS opportunities_search ON opportunities (search_id, confidence DESC);
`

// New creates a new SQLite-backed storage.Backend.
func New(dsn string) (storage.Backend, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// A single connection serializes writers from concurrent job runs and
	// keeps in-memory databases shared.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	return &sqliteBackend{db: db}, nil
}

func (b *sqliteBackend) CreateJob(ctx context.Context, query string, sources []string) (*storage.SearchJob, error) {
	sourcesJSON, err := json.Marshal(sources)
	if err != nil {
		return nil, fmt.Errorf("encode sources: %w", err)
	}

	job := &storage.SearchJob{
		Query:     query,
		Sources:   append([]string(nil), sources...),
		Status:    storage.StatusPending,
		CreatedAt: time.Now().UTC(),
	}

	res, err := b.db.ExecContext(ctx,
		`INSERT INTO searches (query, subreddits, status, created_at) VALUES (?, ?, ?, ?)`,
		job.Query, string(sourcesJSON), string(job.Status), job.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("insert search: %w", err)
	}

	job.ID, err = res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("insert search: %w", err)
	}
	return job, nil
}

const jobColumns = `id, query, subreddits, status, summary, created_at`

func scanJob(row interface{ Scan(...any) error }) (*storage.SearchJob, error) {
	var (
		j           storage.SearchJob
		sourcesJSON string
		status      string
		summary     sql.NullString
	)
	if err := row.Scan(&j.ID, &j.Query, &sourcesJSON, &status, &summary, &j.CreatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(sourcesJSON), &j.Sources); err != nil {
		return nil, fmt.Errorf("decode sources: %w", err)
	}
	j.Status = storage.Status(status)
	j.Summary = summary.String
	return &j, nil
}

func (b *sqliteBackend) GetJob(ctx context.Context, id int64) (*storage.SearchJob, error) {
	row := b.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM searches WHERE id = ?`, id)
	j, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("search %d: %w", id, storage.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get search %d: %w", id, err)
	}
	return j, nil
}

func (b *sqliteBackend) ListJobs(ctx context.Context, filter storage.JobFilter) ([]*storage.SearchJob, error) {
	query := `SELECT ` + jobColumns + ` FROM searches WHERE 1=1`
	args := []any{}

	if filter.Status != nil {
		query += ` AND status = ?`
		args = append(args, string(*filter.Status))
	}

	query += ` ORDER BY created_at DESC, id DESC`

	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
		if filter.Offset > 0 {
			query += ` OFFSET ?`
			args = append(args, filter.Offset)
		}
	}

	rows, err := b.db.QueryContext(ctx, query, args...)
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

func (b *sqliteBackend) UpdateJobStatus(ctx context.Context, id int64, status storage.Status, summary string) error {
	var summaryArg any
	if summary != "" {
		summaryArg = summary
	}

	res, err := b.db.ExecContext(ctx,
		`UPDATE searches SET status = ?, summary = ? WHERE id = ? AND status = ?`,
		string(status), summaryArg, id, string(storage.StatusPending),
	)
	if err != nil {
		return fmt.Errorf("update search %d: %w", id, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update search %d: %w", id, err)
	}
	if n == 0 {
		if _, err := b.GetJob(ctx, id); err != nil {
			return err
		}
		return fmt.Errorf("search %d: %w", id, storage.ErrNotPending)
	}
	return nil
}

func (b *sqliteBackend) SavePosts(ctx context.Context, jobID int64, posts []*storage.RankedPost) error {
	if len(posts) == 0 {
		return nil
	}

	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
	INSERT INTO posts (
		search_id, reddit_id, subreddit, title, body, score, num_comments, url, pain_score, signals, created_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("prepare insert post: %w", err)
	}
	defer stmt.Close()

	for _, p := range posts {
		signalsJSON, err := json.Marshal(p.Signals)
		if err != nil {
			return fmt.Errorf("encode signals: %w", err)
		}
		res, err := stmt.ExecContext(ctx,
			jobID, p.NativeID, p.Source, p.Title, p.Body, p.Upvotes, p.NumComments,
			p.URL, p.PainScore, string(signalsJSON), p.CreatedAt.UTC(),
		)
		if err != nil {
			return fmt.Errorf("insert post %s: %w", p.NativeID, err)
		}
		if p.ID, err = res.LastInsertId(); err != nil {
			return fmt.Errorf("insert post %s: %w", p.NativeID, err)
		}
		p.JobID = jobID
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit posts: %w", err)
	}
	return nil
}

func (b *sqliteBackend) ListPosts(ctx context.Context, filter storage.PostFilter) ([]*storage.RankedPost, error) {
	query := `SELECT id, search_id, reddit_id, subreddit, title, body, score, num_comments, url, pain_score, signals, created_at
	FROM posts WHERE search_id = ?`
	args := []any{filter.JobID}

	if filter.MinPainScore > 0 {
		query += ` AND pain_score >= ?`
		args = append(args, filter.MinPainScore)
	}

	query += ` ORDER BY pain_score DESC, id ASC`

	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
	}

	rows, err := b.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list posts: %w", err)
	}
	defer rows.Close()

	var posts []*storage.RankedPost
	for rows.Next() {
		var p storage.RankedPost
		var signalsJSON sql.NullString

		err := rows.Scan(
			&p.ID, &p.JobID, &p.NativeID, &p.Source, &p.Title, &p.Body, &p.Upvotes,
			&p.NumComments, &p.URL, &p.PainScore, &signalsJSON, &p.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan post: %w", err)
		}
		if signalsJSON.Valid {
			if err := json.Unmarshal([]byte(signalsJSON.String), &p.Signals); err != nil {
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

func (b *sqliteBackend) SaveOpportunities(ctx context.Context, jobID int64, opps []*storage.Opportunity) error {
	if len(opps) == 0 {
		return nil
	}

	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
	INSERT INTO opportunities (
		search_id, name, problem, target_user, pricing, confidence, validation_test, description, created_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("prepare insert opportunity: %w", err)
	}
	defer stmt.Close()

	now := time.Now().UTC()
	for _, o := range opps {
		res, err := stmt.ExecContext(ctx,
			jobID, o.Name, o.Problem, o.TargetUser, o.Pricing, o.Confidence,
			nullString(o.ValidationTest), nullString(o.Description), now,
		)
		if err != nil {
			return fmt.Errorf("insert opportunity %q: %w", o.Name, err)
		}
		if o.ID, err = res.LastInsertId(); err != nil {
			return fmt.Errorf("insert opportunity %q: %w", o.Name, err)
		}
		o.JobID = jobID
		o.CreatedAt = now
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit opportunities: %w", err)
	}
	return nil
}

func (b *sqliteBackend) ListOpportunities(ctx context.Context, filter storage.OpportunityFilter) ([]*storage.Opportunity, error) {
	query := `SELECT id, search_id, name, problem, target_user, pricing, confidence, validation_test, description, created_at
	FROM opportunities`
	args := []any{}

	if filter.JobID > 0 {
		query += ` WHERE search_id = ? ORDER BY confidence DESC, id ASC`
		args = append(args, filter.JobID)
	} else {
		query += ` ORDER BY created_at DESC, id DESC`
	}

	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
	}

	rows, err := b.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list opportunities: %w", err)
	}
	defer rows.Close()

	var opps []*storage.Opportunity
	for rows.Next() {
		var o storage.Opportunity
		var validation, description sql.NullString

		err := rows.Scan(
			&o.ID, &o.JobID, &o.Name, &o.Problem, &o.TargetUser, &o.Pricing,
			&o.Confidence, &validation, &description, &o.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan opportunity: %w", err)
		}
		o.ValidationTest = validation.String
		o.Description = description.String
		opps = append(opps, &o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list opportunities: %w", err)
	}
	return opps, nil
}

func (b *sqliteBackend) Close() error {
	return b.db.Close()
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
