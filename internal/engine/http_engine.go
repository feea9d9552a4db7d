package engine

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/lyricmotion/api/internal/model"
)

// HTTPEngine drives a rendering engine over HTTP. The engine streams
// newline-delimited JSON events while it works: progress events followed by
// a final event carrying the output path or an error.
type HTTPEngine struct {
	baseURL string
	client  *http.Client
}

type engineEvent struct {
	Progress   *float64 `json:"progress,omitempty"`
	OutputPath string   `json:"outputPath,omitempty"`
	Error      string   `json:"error,omitempty"`
}

func NewHTTPEngine(baseURL string) *HTTPEngine {
	// Renders routinely run for many minutes; the client carries no
	// timeout and the context is never cancelled mid-render.
	return &HTTPEngine{
		baseURL: baseURL,
		client:  &http.Client{},
	}
}

func (e *HTTPEngine) Render(ctx context.Context, input *model.ResolvedInput, onProgress func(float64)) (string, error) {
	body, err := json.Marshal(input)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+"/render", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := e.client.Do(req)
	if err != nil {
		return "", err
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return "", fmt.Errorf("render engine http %d: %s", res.StatusCode, bytes.TrimSpace(detail))
	}

	scanner := bufio.NewScanner(res.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	outputPath := ""
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var ev engineEvent
		if err := json.Unmarshal(line, &ev); err != nil {
			return "", fmt.Errorf("malformed engine event: %w", err)
		}
		if ev.Error != "" {
			return "", errors.New(ev.Error)
		}
		if ev.Progress != nil && onProgress != nil {
			onProgress(*ev.Progress)
		}
		if ev.OutputPath != "" {
			outputPath = ev.OutputPath
		}
	}
	if err := scanner.Err(); err != nil {
		return "", fmt.Errorf("engine stream interrupted: %w", err)
	}
	if outputPath == "" {
		return "", errors.New("engine stream ended without an output path")
	}
	return outputPath, nil
}
