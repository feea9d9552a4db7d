// Package engine adapts the external rendering engine. The engine itself is
// opaque: it receives a resolved input document and reports progress until
// it produces an output file or fails.
package engine

import (
	"context"

	"github.com/lyricmotion/api/internal/model"
)

// Engine renders one resolved input document into a video file. onProgress
// receives percentages as the engine reports them. The call blocks until
// the render finishes; no timeout is imposed.
type Engine interface {
	Render(ctx context.Context, input *model.ResolvedInput, onProgress func(float64)) (outputPath string, err error)
}
