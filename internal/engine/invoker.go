package engine

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/lyricmotion/api/internal/model"
	"github.com/lyricmotion/api/internal/store"
	ws "github.com/lyricmotion/api/internal/websocket"
)

// Invoker hands a claimed job to the engine and reports the outcome back to
// the store. Dispatch claims the job synchronously so the scheduler's next
// tick already sees the store busy; the engine call itself runs in a
// goroutine so submission stays responsive while a render is in flight.
type Invoker struct {
	store  *store.Store
	engine Engine
	hub    *ws.Hub
}

func NewInvoker(st *store.Store, eng Engine, hub *ws.Hub) *Invoker {
	return &Invoker{store: st, engine: eng, hub: hub}
}

// Dispatch claims the job as current and starts the render. If another job
// already holds the slot the claim fails and nothing is started.
func (inv *Invoker) Dispatch(job *model.RenderJob) error {
	if err := inv.store.MarkRendering(job.ID); err != nil {
		return err
	}
	log.Printf("Starting render job: %s", job.ID)
	if inv.hub != nil {
		inv.hub.BroadcastProgress(job.ID, 0, model.JobStatusRendering)
	}
	go inv.run(job)
	return nil
}

func (inv *Invoker) run(job *model.RenderJob) {
	// Once rendering begins it runs to completion or failure; there is no
	// cancellation path.
	outputPath, err := inv.engine.Render(context.Background(), job.Input, func(pct float64) {
		inv.store.SetProgress(job.ID, pct)
		if inv.hub != nil {
			inv.hub.BroadcastProgress(job.ID, pct, model.JobStatusRendering)
		}
	})

	if err != nil {
		msg := fmt.Sprintf("render failed: %v", err)
		if markErr := inv.store.MarkFailed(job.ID, msg); markErr != nil {
			log.Printf("Failed to mark job %s as failed: %v", job.ID, markErr)
		}
		if inv.hub != nil {
			inv.hub.BroadcastError(job.ID, "RENDER_FAILED", msg)
		}
		log.Printf("Render job %s failed: %v", job.ID, err)
	} else {
		if markErr := inv.store.MarkCompleted(job.ID, outputPath); markErr != nil {
			log.Printf("Failed to mark job %s as completed: %v", job.ID, markErr)
		}
		if inv.hub != nil {
			inv.hub.BroadcastProgress(job.ID, 100, model.JobStatusCompleted)
			inv.hub.BroadcastComplete(job.ID)
		}
		log.Printf("Render job %s completed", job.ID)
	}

	// Cleanup is best effort either way; a cleanup error never overrides
	// the job's recorded outcome.
	inv.cleanupTempFiles(job)
}

func (inv *Invoker) cleanupTempFiles(job *model.RenderJob) {
	for _, path := range job.TempFiles {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			log.Printf("Warning: failed to remove temp file %s: %v", path, err)
		}
	}
}
