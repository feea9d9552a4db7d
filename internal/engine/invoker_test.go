package engine

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/lyricmotion/api/internal/model"
	"github.com/lyricmotion/api/internal/store"
)

// fakeEngine reports a scripted progress sequence then succeeds or fails.
type fakeEngine struct {
	progress []float64
	output   string
	err      error
	started  chan struct{}
	release  chan struct{}
}

func (f *fakeEngine) Render(_ context.Context, _ *model.ResolvedInput, onProgress func(float64)) (string, error) {
	if f.started != nil {
		close(f.started)
	}
	if f.release != nil {
		<-f.release
	}
	for _, p := range f.progress {
		onProgress(p)
	}
	return f.output, f.err
}

func testInput() *model.ResolvedInput {
	return &model.ResolvedInput{AudioURL: "http://localhost:3000/uploads/a.mp3"}
}

func waitTerminal(t *testing.T, st *store.Store, id string) *model.RenderJob {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		job, ok := st.Get(id)
		if ok && job.IsTerminal() {
			return job
		}
		select {
		case <-deadline:
			t.Fatalf("job %s never reached a terminal state", id)
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func TestDispatchSuccess(t *testing.T) {
	st := store.New()
	tmp := filepath.Join(t.TempDir(), "audio.mp3")
	if err := os.WriteFile(tmp, []byte("audio"), 0o644); err != nil {
		t.Fatal(err)
	}

	job := st.Create(testInput(), []string{tmp})
	inv := NewInvoker(st, &fakeEngine{progress: []float64{10, 50, 90}, output: "/out/video.mov"}, nil)

	if err := inv.Dispatch(job); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}

	done := waitTerminal(t, st, job.ID)
	if done.Status != model.JobStatusCompleted {
		t.Fatalf("expected completed, got %s (%v)", done.Status, done.Error)
	}
	if done.OutputPath != "/out/video.mov" {
		t.Errorf("output path = %q", done.OutputPath)
	}
	if done.Progress != 100 {
		t.Errorf("progress = %v", done.Progress)
	}
	if _, err := os.Stat(tmp); !os.IsNotExist(err) {
		t.Error("temp audio file should be removed after the render")
	}
	if st.Busy() {
		t.Error("completed render must release the current slot")
	}
}

func TestDispatchFailureCleansTempFiles(t *testing.T) {
	st := store.New()
	tmp := filepath.Join(t.TempDir(), "audio.mp3")
	if err := os.WriteFile(tmp, []byte("audio"), 0o644); err != nil {
		t.Fatal(err)
	}

	job := st.Create(testInput(), []string{tmp})
	inv := NewInvoker(st, &fakeEngine{err: os.ErrDeadlineExceeded}, nil)

	if err := inv.Dispatch(job); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}

	done := waitTerminal(t, st, job.ID)
	if done.Status != model.JobStatusFailed {
		t.Fatalf("expected failed, got %s", done.Status)
	}
	if done.Error == nil {
		t.Fatal("expected an error message")
	}
	if _, err := os.Stat(tmp); !os.IsNotExist(err) {
		t.Error("temp files must be cleaned on failure too")
	}
	if st.Busy() {
		t.Error("failed render must release the current slot")
	}
}

func TestDispatchRejectedWhileBusy(t *testing.T) {
	st := store.New()
	blocker := &fakeEngine{
		output:  "/out/a.mov",
		started: make(chan struct{}),
		release: make(chan struct{}),
	}
	inv := NewInvoker(st, blocker, nil)

	a := st.Create(testInput(), nil)
	b := st.Create(testInput(), nil)

	if err := inv.Dispatch(a); err != nil {
		t.Fatalf("Dispatch(a): %v", err)
	}
	<-blocker.started

	if err := inv.Dispatch(b); err != store.ErrBusy {
		t.Fatalf("expected ErrBusy, got %v", err)
	}
	got, _ := st.Get(b.ID)
	if got.Status != model.JobStatusPending {
		t.Errorf("rejected dispatch must leave the job pending, got %s", got.Status)
	}

	close(blocker.release)
	waitTerminal(t, st, a.ID)
}

func TestProgressMonotonicThroughInvoker(t *testing.T) {
	st := store.New()
	// Engine reports a regression; the store must never move backwards.
	inv := NewInvoker(st, &fakeEngine{progress: []float64{30, 20, 60}, output: "/out/a.mov"}, nil)

	job := st.Create(testInput(), nil)
	if err := inv.Dispatch(job); err != nil {
		t.Fatal(err)
	}
	done := waitTerminal(t, st, job.ID)
	if done.Progress != 100 {
		t.Errorf("progress = %v", done.Progress)
	}
}
