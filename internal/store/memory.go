package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/multiviral/api/internal/model"
)

type memoryEntry struct {
	mu  sync.Mutex
	job *model.Job
}

// MemoryStore keeps jobs in process memory.
type MemoryStore struct {
	mu   sync.RWMutex
	jobs map[string]*memoryEntry
	now  func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		jobs: make(map[string]*memoryEntry),
		now:  time.Now,
	}
}

func (s *MemoryStore) Create(ctx context.Context, params model.CreateJobParams) (*model.Job, error) {
	if params.ID == "" {
		params.ID = uuid.New().String()
	}
	job := model.NewJob(params, s.now())

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.jobs[job.ID]; exists {
		return nil, fmt.Errorf("job %s already exists", job.ID)
	}
	s.jobs[job.ID] = &memoryEntry{job: job}
	return job.Clone(), nil
}

func (s *MemoryStore) Get(ctx context.Context, id string) (*model.Job, error) {
	entry, ok := s.entry(id)
	if !ok {
		return nil, ErrNotFound
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()
	return entry.job.Clone(), nil
}

func (s *MemoryStore) Update(ctx context.Context, id string, fn UpdateFunc) (*model.Job, error) {
	entry, ok := s.entry(id)
	if !ok {
		return nil, ErrNotFound
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()

	// work on a copy so a failing fn leaves the record untouched
	working := entry.job.Clone()
	if err := fn(working); err != nil {
		return nil, err
	}
	working.ID = entry.job.ID
	working.CreatedAt = entry.job.CreatedAt
	working.UpdatedAt = s.now()
	if working.UpdatedAt.Before(working.CreatedAt) {
		working.UpdatedAt = working.CreatedAt
	}
	entry.job = working
	return working.Clone(), nil
}

func (s *MemoryStore) List(ctx context.Context) ([]*model.Job, error) {
	s.mu.RLock()
	entries := make([]*memoryEntry, 0, len(s.jobs))
	for _, e := range s.jobs {
		entries = append(entries, e)
	}
	s.mu.RUnlock()

	jobs := make([]*model.Job, 0, len(entries))
	for _, e := range entries {
		e.mu.Lock()
		jobs = append(jobs, e.job.Clone())
		e.mu.Unlock()
	}
	sortNewestFirst(jobs)
	return jobs, nil
}

// Prune drops terminal jobs last updated before the cutoff and returns
// how many were removed.
func (s *MemoryStore) Prune(olderThan time.Duration) int {
	cutoff := s.now().Add(-olderThan)

	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, e := range s.jobs {
		e.mu.Lock()
		stale := e.job.Status.IsTerminal() && e.job.UpdatedAt.Before(cutoff)
		e.mu.Unlock()
		if stale {
			delete(s.jobs, id)
			removed++
		}
	}
	return removed
}

func (s *MemoryStore) entry(id string) (*memoryEntry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.jobs[id]
	return e, ok
}

func sortNewestFirst(jobs []*model.Job) {
	sort.SliceStable(jobs, func(i, j int) bool {
		return jobs[i].CreatedAt.After(jobs[j].CreatedAt)
	})
}
