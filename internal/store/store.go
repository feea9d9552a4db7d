// Package store holds render job records for the lifetime of the process.
// It is the only shared mutable state in the system: at most one job may be
// "current" (rendering) at any instant, and the check-and-set that claims a
// job as current happens under a single lock acquisition.
package store

import (
	"errors"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/lyricmotion/api/internal/model"
)

var (
	// ErrNotFound is returned when a job id is unknown.
	ErrNotFound = errors.New("job not found")
	// ErrBusy is returned by MarkRendering while another job is current.
	ErrBusy = errors.New("another job is already rendering")
	// ErrBadTransition is returned for a transition the lifecycle forbids.
	ErrBadTransition = errors.New("invalid job state transition")
)

// Store is an in-memory job table with FIFO pending ordering.
type Store struct {
	mu      sync.Mutex
	jobs    map[string]*model.RenderJob
	order   []string
	current string
}

func New() *Store {
	return &Store{
		jobs: make(map[string]*model.RenderJob),
	}
}

// Create allocates a new pending job holding the resolved input. tempFiles
// lists transient local files the invoker removes after the render.
func (s *Store) Create(input *model.ResolvedInput, tempFiles []string) *model.RenderJob {
	s.mu.Lock()
	defer s.mu.Unlock()

	job := &model.RenderJob{
		ID:        uuid.New().String(),
		Status:    model.JobStatusPending,
		Progress:  0,
		Input:     input,
		TempFiles: tempFiles,
		CreatedAt: time.Now(),
	}
	s.jobs[job.ID] = job
	s.order = append(s.order, job.ID)
	return snapshot(job)
}

// Get returns a copy of the job, or false if the id is unknown.
func (s *Store) Get(id string) (*model.RenderJob, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		return nil, false
	}
	return snapshot(job), true
}

// SetProgress records engine progress. Unknown ids are a no-op. Values are
// clamped to [0,100], rounded to two decimals, and never move backwards.
func (s *Store) SetProgress(id string, pct float64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok || job.IsTerminal() {
		return
	}
	pct = math.Round(math.Max(0, math.Min(100, pct))*100) / 100
	if pct > job.Progress {
		job.Progress = pct
	}
}

// MarkRendering claims the job as current and moves it pending→rendering.
// The busy check and the claim are one critical section: a second caller
// always observes ErrBusy, never a second current job.
func (s *Store) MarkRendering(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current != "" {
		return ErrBusy
	}
	job, ok := s.jobs[id]
	if !ok {
		return ErrNotFound
	}
	if job.Status != model.JobStatusPending {
		return ErrBadTransition
	}
	job.Status = model.JobStatusRendering
	s.current = id
	return nil
}

// MarkCompleted moves the job rendering→completed and releases the current
// slot. Progress is forced to 100.
func (s *Store) MarkCompleted(id, outputPath string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		return ErrNotFound
	}
	if job.Status != model.JobStatusRendering {
		return ErrBadTransition
	}
	now := time.Now()
	job.Status = model.JobStatusCompleted
	job.Progress = 100
	job.OutputPath = outputPath
	job.CompletedAt = &now
	if s.current == id {
		s.current = ""
	}
	return nil
}

// MarkFailed moves any non-terminal job to failed and releases the current
// slot if the job held it.
func (s *Store) MarkFailed(id, message string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		return ErrNotFound
	}
	if job.IsTerminal() {
		return ErrBadTransition
	}
	now := time.Now()
	job.Status = model.JobStatusFailed
	job.Error = &message
	job.CompletedAt = &now
	if s.current == id {
		s.current = ""
	}
	return nil
}

// NextPending returns the earliest-created job still pending. It returns
// nothing while a job is current, so the scheduler never double-dispatches.
func (s *Store) NextPending() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current != "" {
		return "", false
	}
	for _, id := range s.order {
		if job, ok := s.jobs[id]; ok && job.Status == model.JobStatusPending {
			return id, true
		}
	}
	return "", false
}

// Busy reports whether a job is currently rendering.
func (s *Store) Busy() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current != ""
}

// CleanupOlderThan drops completed and failed jobs whose completion
// timestamp predates the cutoff. Pending and rendering jobs are never
// removed regardless of age.
func (s *Store) CleanupOlderThan(maxAge time.Duration) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := time.Now().Add(-maxAge)
	removed := 0
	kept := s.order[:0]
	for _, id := range s.order {
		job, ok := s.jobs[id]
		if !ok {
			continue
		}
		if job.IsTerminal() && job.CompletedAt != nil && job.CompletedAt.Before(cutoff) {
			delete(s.jobs, id)
			removed++
			continue
		}
		kept = append(kept, id)
	}
	s.order = kept
	return removed
}

// Len returns the number of retained jobs.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.jobs)
}

// snapshot copies a job so callers never share the locked record.
func snapshot(job *model.RenderJob) *model.RenderJob {
	out := *job
	if job.TempFiles != nil {
		out.TempFiles = append([]string(nil), job.TempFiles...)
	}
	if job.Error != nil {
		msg := *job.Error
		out.Error = &msg
	}
	if job.CompletedAt != nil {
		t := *job.CompletedAt
		out.CompletedAt = &t
	}
	return &out
}
