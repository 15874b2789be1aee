package pipeline

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/FranksOps/painminer/internal/storage"
)

// memStore is an in-memory storage.Backend with failure injection.
type memStore struct {
	mu      sync.Mutex
	nextID  int64
	jobs    map[int64]*storage.SearchJob
	posts   map[int64][]*storage.RankedPost
	opps    map[int64][]*storage.Opportunity
	updates map[int64]int

	failSavePosts error
	failSaveOpps  error
	panicOnSave   bool
}

func newMemStore() *memStore {
	return &memStore{
		jobs:    map[int64]*storage.SearchJob{},
		posts:   map[int64][]*storage.RankedPost{},
		opps:    map[int64][]*storage.Opportunity{},
		updates: map[int64]int{},
	}
}

func (m *memStore) CreateJob(ctx context.Context, query string, sources []string) (*storage.SearchJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	j := &storage.SearchJob{ID: m.nextID, Query: query, Sources: sources, Status: storage.StatusPending, CreatedAt: time.Now()}
	m.jobs[j.ID] = j
	cp := *j
	return &cp, nil
}

func (m *memStore) GetJob(ctx context.Context, id int64) (*storage.SearchJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	cp := *j
	return &cp, nil
}

func (m *memStore) ListJobs(ctx context.Context, filter storage.JobFilter) ([]*storage.SearchJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*storage.SearchJob
	for _, j := range m.jobs {
		cp := *j
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, k int) bool { return out[i].ID > out[k].ID })
	return out, nil
}

func (m *memStore) UpdateJobStatus(ctx context.Context, id int64, status storage.Status, summary string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[id]
	if !ok {
		return storage.ErrNotFound
	}
	if j.Status != storage.StatusPending {
		return storage.ErrNotPending
	}
	m.updates[id]++
	j.Status = status
	j.Summary = summary
	return nil
}

func (m *memStore) SavePosts(ctx context.Context, jobID int64, posts []*storage.RankedPost) error {
	if m.panicOnSave {
		panic("disk on fire")
	}
	if m.failSavePosts != nil {
		return m.failSavePosts
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.posts[jobID] = append(m.posts[jobID], posts...)
	return nil
}

func (m *memStore) ListPosts(ctx context.Context, filter storage.PostFilter) ([]*storage.RankedPost, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*storage.RankedPost(nil), m.posts[filter.JobID]...), nil
}

func (m *memStore) SaveOpportunities(ctx context.Context, jobID int64, opps []*storage.Opportunity) error {
	if m.failSaveOpps != nil {
		return m.failSaveOpps
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.opps[jobID] = append(m.opps[jobID], opps...)
	return nil
}

func (m *memStore) ListOpportunities(ctx context.Context, filter storage.OpportunityFilter) ([]*storage.Opportunity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if filter.JobID != 0 {
		return append([]*storage.Opportunity(nil), m.opps[filter.JobID]...), nil
	}
	var out []*storage.Opportunity
	for _, o := range m.opps {
		out = append(out, o...)
	}
	return out, nil
}

func (m *memStore) Close() error { return nil }

func (m *memStore) job(id int64) storage.SearchJob {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *m.jobs[id]
}

func (m *memStore) updateCount(id int64) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.updates[id]
}

var errDiskFull = errors.New("disk full")
