// Package scheduler drives the single-worker render queue: a recurring
// check that hands the oldest pending job to the invoker whenever the
// store is idle, plus a slower sweep that expires old terminal jobs.
package scheduler

import (
	"context"
	"log"
	"time"

	"github.com/lyricmotion/api/internal/model"
	"github.com/lyricmotion/api/internal/store"
)

// Dispatcher starts a render for a pending job. It must claim the job via
// the store's check-and-set before doing anything else.
type Dispatcher interface {
	Dispatch(job *model.RenderJob) error
}

type Scheduler struct {
	store           *store.Store
	dispatcher      Dispatcher
	pollInterval    time.Duration
	cleanupInterval time.Duration
	retention       time.Duration
}

func New(st *store.Store, d Dispatcher, pollInterval, cleanupInterval, retention time.Duration) *Scheduler {
	return &Scheduler{
		store:           st,
		dispatcher:      d,
		pollInterval:    pollInterval,
		cleanupInterval: cleanupInterval,
		retention:       retention,
	}
}

// Run loops until the context is cancelled. A failed dispatch or render
// never stops the loop; the next tick simply tries again.
func (s *Scheduler) Run(ctx context.Context) {
	poll := time.NewTicker(s.pollInterval)
	defer poll.Stop()
	cleanup := time.NewTicker(s.cleanupInterval)
	defer cleanup.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-poll.C:
			s.Tick()
		case <-cleanup.C:
			if removed := s.store.CleanupOlderThan(s.retention); removed > 0 {
				log.Printf("Removed %d expired render jobs", removed)
			}
		}
	}
}

// Tick runs one scheduling pass. NextPending returns nothing while a job is
// current, and Dispatch re-checks via the store's atomic claim, so a tick
// firing during a long render can never double-dispatch.
func (s *Scheduler) Tick() {
	id, ok := s.store.NextPending()
	if !ok {
		return
	}
	job, ok := s.store.Get(id)
	if !ok {
		return
	}
	if job.Input == nil {
		// Internal consistency fault: a job reached the queue without a
		// resolved input. Never hand it to the renderer.
		log.Printf("Job %s has no resolved input, failing", id)
		if err := s.store.MarkFailed(id, "job is missing its resolved input"); err != nil {
			log.Printf("Failed to fail job %s: %v", id, err)
		}
		return
	}
	if err := s.dispatcher.Dispatch(job); err != nil {
		log.Printf("Dispatch of job %s skipped: %v", id, err)
	}
}
