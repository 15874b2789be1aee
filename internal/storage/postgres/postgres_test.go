package postgres

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/FranksOps/painminer/internal/storage"
)

func TestPostgresBackend(t *testing.T) {
	// Only run this test if PAINMINER_TEST_PG_DSN is set
	dsn := os.Getenv("PAINMINER_TEST_PG_DSN")
	if dsn == "" {
		t.Skip("Skipping Postgres backend test: PAINMINER_TEST_PG_DSN not set")
	}

	ctx := context.Background()
	b, err := New(ctx, dsn)
	if err != nil {
		t.Fatalf("Failed to create Postgres backend: %v", err)
	}
	defer b.Close()

	job, err := b.CreateJob(ctx, "pg test", []string{"SaaS", "startups"})
	if err != nil {
		t.Fatalf("Failed to create job: %v", err)
	}

	got, err := b.GetJob(ctx, job.ID)
	if err != nil {
		t.Fatalf("Failed to get job: %v", err)
	}
	if got.Status != storage.StatusPending || len(got.Sources) != 2 {
		t.Errorf("Unexpected job: %+v", got)
	}

	now := time.Now().UTC()
	posts := []*storage.RankedPost{
		{NativeID: "pg1", Source: "SaaS", Title: "t1", Body: "b1", URL: "u1", PainScore: 4, Signals: map[string]int{"stuck": 1}, CreatedAt: now},
		{NativeID: "pg2", Source: "SaaS", Title: "t2", Body: "b2", URL: "u2", PainScore: 8, Signals: map[string]int{"buyer": 1}, CreatedAt: now},
	}
	if err := b.SavePosts(ctx, job.ID, posts); err != nil {
		t.Fatalf("Failed to save posts: %v", err)
	}

	listed, err := b.ListPosts(ctx, storage.PostFilter{JobID: job.ID})
	if err != nil {
		t.Fatalf("Failed to list posts: %v", err)
	}
	if len(listed) != 2 || listed[0].NativeID != "pg2" {
		t.Fatalf("Expected pain-descending posts, got %+v", listed)
	}
	if listed[0].Signals["buyer"] != 1 {
		t.Errorf("Expected signals to round-trip, got %v", listed[0].Signals)
	}
	// Postgres timestamps might differ slightly in sub-millisecond precision
	if listed[0].CreatedAt.Unix() != now.Unix() {
		t.Errorf("Expected CreatedAt %v, got %v", now, listed[0].CreatedAt)
	}

	opps := []*storage.Opportunity{
		{Name: "A", Problem: "p", TargetUser: "u", Pricing: "low", Confidence: 3},
		{Name: "B", Problem: "p", TargetUser: "u", Pricing: "high", Confidence: 9, Description: "d"},
	}
	if err := b.SaveOpportunities(ctx, job.ID, opps); err != nil {
		t.Fatalf("Failed to save opportunities: %v", err)
	}
	listedOpps, err := b.ListOpportunities(ctx, storage.OpportunityFilter{JobID: job.ID})
	if err != nil {
		t.Fatalf("Failed to list opportunities: %v", err)
	}
	if len(listedOpps) != 2 || listedOpps[0].Name != "B" {
		t.Errorf("Expected confidence-descending opportunities, got %+v", listedOpps)
	}

	if err := b.UpdateJobStatus(ctx, job.ID, storage.StatusCompleted, "done"); err != nil {
		t.Fatalf("Failed to update status: %v", err)
	}
	if err := b.UpdateJobStatus(ctx, job.ID, storage.StatusFailed, ""); !errors.Is(err, storage.ErrNotPending) {
		t.Errorf("Expected ErrNotPending, got %v", err)
	}
	if _, err := b.GetJob(ctx, -1); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}
