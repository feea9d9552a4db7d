package engine

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/lyricmotion/api/internal/model"
)

// FFmpegEngine is a local rendering engine: it turns the resolved document
// into an ffmpeg concat script and assembles the video on this machine.
// Used when no external engine URL is configured.
type FFmpegEngine struct {
	binary        string
	uploadDir     string
	outputDir     string
	publicBaseURL string
}

func NewFFmpegEngine(binary, uploadDir, outputDir, publicBaseURL string) *FFmpegEngine {
	if binary == "" {
		binary = "ffmpeg"
	}
	return &FFmpegEngine{
		binary:        binary,
		uploadDir:     uploadDir,
		outputDir:     outputDir,
		publicBaseURL: strings.TrimRight(publicBaseURL, "/"),
	}
}

type timedFrame struct {
	path     string
	duration float64
}

func (e *FFmpegEngine) Render(ctx context.Context, input *model.ResolvedInput, onProgress func(float64)) (string, error) {
	if _, err := exec.LookPath(e.binary); err != nil {
		return "", fmt.Errorf("ffmpeg binary not found: %w", err)
	}

	audioPath, ok := e.localPath(input.AudioURL)
	if !ok {
		return "", fmt.Errorf("audio %q is not under the local upload directory", input.AudioURL)
	}

	frames, total := e.collectFrames(input)
	if len(frames) == 0 {
		return "", errors.New("no renderable media in input")
	}

	concatPath, err := writeConcatFile(frames)
	if err != nil {
		return "", err
	}
	defer os.Remove(concatPath)

	if err := os.MkdirAll(e.outputDir, 0o755); err != nil {
		return "", err
	}
	outputPath := filepath.Join(e.outputDir, uuid.New().String()+".mov")

	args := []string{
		"-f", "concat",
		"-safe", "0",
		"-i", concatPath,
		"-i", audioPath,
		"-vf", "scale=1920:1080:force_original_aspect_ratio=decrease,pad=1920:1080:(ow-iw)/2:(oh-ih)/2:black,format=yuv420p",
		"-c:v", "libx264",
		"-preset", "slow",
		"-crf", "18",
		"-c:a", "aac",
		"-b:a", "320k",
		"-shortest",
		"-pix_fmt", "yuv420p",
		"-progress", "pipe:1",
		"-nostats",
		"-y",
		outputPath,
	}

	cmd := exec.CommandContext(ctx, e.binary, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return "", err
	}
	if err := cmd.Start(); err != nil {
		return "", fmt.Errorf("starting ffmpeg: %w", err)
	}

	scanner := bufio.NewScanner(stdout)
	for scanner.Scan() {
		reportProgress(scanner.Text(), total, onProgress)
	}

	if err := cmd.Wait(); err != nil {
		os.Remove(outputPath)
		return "", fmt.Errorf("ffmpeg failed: %w: %s", err, tail(stderr.String(), 500))
	}
	if onProgress != nil {
		onProgress(100)
	}
	return outputPath, nil
}

// collectFrames flattens the input into an ordered list of image/video
// frames with durations, across both grouping and legacy modes. Entries
// whose media cannot be located locally are skipped with a warning, the
// same way an unresolved group renders without media.
func (e *FFmpegEngine) collectFrames(input *model.ResolvedInput) ([]timedFrame, float64) {
	var frames []timedFrame
	total := 0.0

	if input.UseGrouping {
		for _, g := range input.SceneGroups {
			if g.MediaURL == "" {
				continue
			}
			path, ok := e.localPath(g.MediaURL)
			if !ok {
				log.Printf("Warning: skipping group %s, media %q not local", g.ID, g.MediaURL)
				continue
			}
			d := g.EndTime - g.StartTime
			if d <= 0 {
				d = g.Duration
			}
			if d <= 0 {
				continue
			}
			frames = append(frames, timedFrame{path: path, duration: d})
			total += d
		}
		return frames, total
	}

	for _, sc := range input.Scenes {
		if sc.ImagePath == "" {
			continue
		}
		path, ok := e.localPath(sc.ImagePath)
		if !ok {
			// Legacy scenes may already carry absolute local paths.
			if filepath.IsAbs(sc.ImagePath) {
				path = sc.ImagePath
			} else {
				log.Printf("Warning: skipping scene, image %q not local", sc.ImagePath)
				continue
			}
		}
		d := sc.End - sc.Start
		if d <= 0 {
			continue
		}
		frames = append(frames, timedFrame{path: path, duration: d})
		total += d
	}
	return frames, total
}

// localPath maps a public asset URL back into the upload directory.
func (e *FFmpegEngine) localPath(url string) (string, bool) {
	prefix := e.publicBaseURL + "/uploads/"
	if !strings.HasPrefix(url, prefix) {
		return "", false
	}
	name := filepath.Base(strings.TrimPrefix(url, prefix))
	return filepath.Join(e.uploadDir, name), true
}

// writeConcatFile emits the ffmpeg concat script: each frame with its
// duration, and the last frame repeated without one as ffmpeg requires.
func writeConcatFile(frames []timedFrame) (string, error) {
	f, err := os.CreateTemp("", "render-concat-*.txt")
	if err != nil {
		return "", err
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	for _, fr := range frames {
		fmt.Fprintf(w, "file '%s'\n", fr.path)
		fmt.Fprintf(w, "duration %g\n", fr.duration)
	}
	fmt.Fprintf(w, "file '%s'\n", frames[len(frames)-1].path)
	if err := w.Flush(); err != nil {
		os.Remove(f.Name())
		return "", err
	}
	return f.Name(), nil
}

// reportProgress parses one line of ffmpeg -progress output.
func reportProgress(line string, total float64, onProgress func(float64)) {
	if onProgress == nil || total <= 0 {
		return
	}
	if !strings.HasPrefix(line, "out_time_ms=") {
		return
	}
	us, err := strconv.ParseInt(strings.TrimPrefix(line, "out_time_ms="), 10, 64)
	if err != nil {
		return
	}
	pct := float64(us) / 1e6 / total * 100
	if pct > 100 {
		pct = 100
	}
	onProgress(pct)
}

func tail(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}
