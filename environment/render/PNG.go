package render

import (
	"context"
	"fmt"
	"image"
	"os"
	"path/filepath"

	"github.com/fogleman/gg"
	"github.com/samuelfneumann/rlrunner/experiment/checkpointer"
)

// PNG renders frames to consecutively numbered PNG files in a
// directory, e.g. frame1.png, frame2.png, ...
type PNG struct {
	dir   string
	scale float64
	next  func() string
}

// NewPNG returns a new PNG renderer which writes frames to dir, scaled
// up by an integer factor. The directory is created if needed.
func NewPNG(dir string, scale int) (*PNG, error) {
	if scale < 1 {
		return nil, fmt.Errorf("newPNG: scale must be positive, got %v",
			scale)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("newPNG: could not create directory: %w", err)
	}

	return &PNG{
		dir:   dir,
		scale: float64(scale),
		next: checkpointer.FilenameEnumerator(0,
			filepath.Join(dir, "frame"), ".png"),
	}, nil
}

// Render writes a frame to the next file
func (p *PNG) Render(ctx context.Context, frame *image.Gray) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("render: %w", err)
	}

	bounds := frame.Bounds()
	dc := gg.NewContext(int(float64(bounds.Dx())*p.scale),
		int(float64(bounds.Dy())*p.scale))
	dc.Scale(p.scale, p.scale)
	dc.DrawImage(frame, -bounds.Min.X, -bounds.Min.Y)

	if err := dc.SavePNG(p.next()); err != nil {
		return fmt.Errorf("render: could not save frame: %w", err)
	}
	return nil
}

// Dir returns the directory frames are written to
func (p *PNG) Dir() string {
	return p.dir
}

// Close implements the Renderer interface
func (p *PNG) Close() error {
	return nil
}
