// Package render implements renderers which display the frames of
// environments as episodes are played
package render

import (
	"context"
	"image"
)

// Renderer displays frames of an environment. Frames are rendered in
// the order they are produced.
type Renderer interface {
	Render(ctx context.Context, frame *image.Gray) error
	Close() error
}
