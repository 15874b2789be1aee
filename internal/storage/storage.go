package storage

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrNotFound is returned when a job id does not exist.
	ErrNotFound = errors.New("not found")
	// ErrNotPending is returned when a status update targets a job that has
	// already reached a terminal status.
	ErrNotPending = errors.New("job is not pending")
)

// Status is the lifecycle state of a SearchJob.
type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// ParseStatus converts a raw string to a Status.
func ParseStatus(s string) (Status, error) {
	st := Status(s)
	switch st {
	case StatusPending, StatusCompleted, StatusFailed:
		return st, nil
	}
	return "", fmt.Errorf("unknown job status %q", s)
}

// Terminal reports whether no further transitions are allowed from s.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// SearchJob is one user-initiated search-and-analyze run.
type SearchJob struct {
	ID        int64     `json:"id"`
	Query     string    `json:"query"`
	Sources   []string  `json:"subreddits"`
	Status    Status    `json:"status"`
	Summary   string    `json:"summary,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// RankedPost is a fetched post annotated with its pain score.
type RankedPost struct {
	ID          int64          `json:"id"`
	JobID       int64          `json:"searchId"`
	NativeID    string         `json:"redditId"`
	Source      string         `json:"subreddit"`
	Title       string         `json:"title"`
	Body        string         `json:"body"`
	Upvotes     int            `json:"score"`
	NumComments int            `json:"numComments"`
	URL         string         `json:"url"`
	PainScore   int            `json:"painScore"`
	Signals     map[string]int `json:"signals"`
	// CreatedAt is when the post was published at the source.
	CreatedAt time.Time `json:"createdAt"`
}

// Opportunity is a candidate product idea derived from a job's posts.
type Opportunity struct {
	ID             int64     `json:"id"`
	JobID          int64     `json:"searchId"`
	Name           string    `json:"name"`
	Problem        string    `json:"problem"`
	TargetUser     string    `json:"targetUser"`
	Pricing        string    `json:"pricing"`
	Confidence     int       `json:"confidence"`
	ValidationTest string    `json:"validationTest,omitempty"`
	Description    string    `json:"description,omitempty"`
	CreatedAt      time.Time `json:"createdAt"`
}

// JobFilter narrows ListJobs. Results are ordered newest first.
type JobFilter struct {
	Status *Status
	Limit  int
	Offset int
}

// PostFilter narrows ListPosts. Results are ordered by pain score descending.
type PostFilter struct {
	JobID        int64
	MinPainScore int
	Limit        int
}

// OpportunityFilter narrows ListOpportunities. With a JobID, results are
// ordered by confidence descending; without, newest first.
type OpportunityFilter struct {
	JobID int64
	Limit int
}

// Backend persists jobs and the rows each job owns.
type Backend interface {
	CreateJob(ctx context.Context, query string, sources []string) (*SearchJob, error)
	GetJob(ctx context.Context, id int64) (*SearchJob, error)
	ListJobs(ctx context.Context, filter JobFilter) ([]*SearchJob, error)
	// UpdateJobStatus moves a pending job to status. It returns ErrNotPending
	// if the job already left pending and ErrNotFound if it does not exist.
	UpdateJobStatus(ctx context.Context, id int64, status Status, summary string) error

	// SavePosts writes all posts for a job atomically.
	SavePosts(ctx context.Context, jobID int64, posts []*RankedPost) error
	ListPosts(ctx context.Context, filter PostFilter) ([]*RankedPost, error)

	// SaveOpportunities writes all opportunities for a job atomically.
	SaveOpportunities(ctx context.Context, jobID int64, opps []*Opportunity) error
	ListOpportunities(ctx context.Context, filter OpportunityFilter) ([]*Opportunity, error)

	Close() error
}
