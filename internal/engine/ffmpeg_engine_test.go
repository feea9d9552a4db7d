package engine

import (
	"os"
	"strings"
	"testing"

	"github.com/lyricmotion/api/internal/model"
)

func newLocalEngine(t *testing.T) *FFmpegEngine {
	return NewFFmpegEngine("ffmpeg", "/srv/uploads", t.TempDir(), "http://localhost:3000/")
}

func TestLocalPathMapping(t *testing.T) {
	e := newLocalEngine(t)

	path, ok := e.localPath("http://localhost:3000/uploads/abc.png")
	if !ok || path != "/srv/uploads/abc.png" {
		t.Errorf("got %q (ok=%v)", path, ok)
	}

	if _, ok := e.localPath("http://elsewhere.example/uploads/abc.png"); ok {
		t.Error("foreign URLs must not map into the upload dir")
	}
	// A crafted name must not escape the upload dir.
	path, ok = e.localPath("http://localhost:3000/uploads/../../etc/passwd")
	if ok && !strings.HasPrefix(path, "/srv/uploads/") {
		t.Errorf("traversal escaped upload dir: %q", path)
	}
}

func TestCollectFramesGrouped(t *testing.T) {
	e := newLocalEngine(t)
	input := &model.ResolvedInput{
		UseGrouping: true,
		SceneGroups: []model.SceneGroup{
			{ID: "g1", StartTime: 0, EndTime: 4, MediaURL: "http://localhost:3000/uploads/a.png"},
			{ID: "g2", StartTime: 4, EndTime: 10, MediaURL: "http://localhost:3000/uploads/b.png"},
			{ID: "g3", StartTime: 10, EndTime: 12}, // medialess, skipped
		},
	}

	frames, total := e.collectFrames(input)
	if len(frames) != 2 {
		t.Fatalf("expected 2 frames, got %d", len(frames))
	}
	if frames[0].duration != 4 || frames[1].duration != 6 {
		t.Errorf("durations = %v, %v", frames[0].duration, frames[1].duration)
	}
	if total != 10 {
		t.Errorf("total = %v", total)
	}
}

func TestCollectFramesLegacy(t *testing.T) {
	e := newLocalEngine(t)
	input := &model.ResolvedInput{
		Scenes: []model.Scene{
			{Lyric: "a", Start: 0, End: 2, ImagePath: "http://localhost:3000/uploads/a.png"},
			{Lyric: "b", Start: 2, End: 5, ImagePath: "/abs/local/b.png"},
			{Lyric: "c", Start: 5, End: 6}, // no image
		},
	}

	frames, total := e.collectFrames(input)
	if len(frames) != 2 {
		t.Fatalf("expected 2 frames, got %d", len(frames))
	}
	if frames[1].path != "/abs/local/b.png" {
		t.Errorf("absolute paths must pass through, got %q", frames[1].path)
	}
	if total != 5 {
		t.Errorf("total = %v", total)
	}
}

func TestWriteConcatFile(t *testing.T) {
	frames := []timedFrame{
		{path: "/srv/uploads/a.png", duration: 2.5},
		{path: "/srv/uploads/b.png", duration: 4},
	}
	path, err := writeConcatFile(frames)
	if err != nil {
		t.Fatal(err)
	}
	defer os.Remove(path)

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	content := string(data)
	if !strings.Contains(content, "duration 2.5\n") {
		t.Errorf("missing duration line: %s", content)
	}
	// ffmpeg requires the final frame repeated without a duration.
	if !strings.HasSuffix(content, "file '/srv/uploads/b.png'\n") {
		t.Errorf("concat file must end with the last frame: %s", content)
	}
}

func TestReportProgress(t *testing.T) {
	var seen []float64
	cb := func(p float64) { seen = append(seen, p) }

	reportProgress("out_time_ms=5000000", 10, cb) // 5s of 10s
	reportProgress("frame=42", 10, cb)            // ignored
	reportProgress("out_time_ms=junk", 10, cb)    // ignored
	reportProgress("out_time_ms=20000000", 10, cb)

	if len(seen) != 2 || seen[0] != 50 || seen[1] != 100 {
		t.Errorf("progress = %v", seen)
	}
}
