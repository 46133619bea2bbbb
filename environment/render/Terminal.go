package render

import (
	"bufio"
	"context"
	"fmt"
	"image"
	"io"

	"golang.org/x/time/rate"
)

// ramp maps pixel intensities to characters, from dark to light
const ramp = " .:-=+*#%@"

// Terminal renders frames as ASCII art to a terminal, redrawing each
// frame in place. Rendering is paced so that at most fps frames are
// drawn per second.
type Terminal struct {
	out     *bufio.Writer
	cols    int
	limiter *rate.Limiter
	drawn   bool
	rows    int
}

// NewTerminal returns a new Terminal renderer which draws frames
// cols characters wide. If fps <= 0 rendering is not paced.
func NewTerminal(out io.Writer, cols int, fps float64) *Terminal {
	if cols <= 0 {
		panic("newTerminal: columns must be positive")
	}

	limit := rate.Inf
	if fps > 0 {
		limit = rate.Limit(fps)
	}
	return &Terminal{
		out:     bufio.NewWriter(out),
		cols:    cols,
		limiter: rate.NewLimiter(limit, 1),
	}
}

// Render draws a frame, blocking until the frame rate allows it
func (t *Terminal) Render(ctx context.Context, frame *image.Gray) error {
	if err := t.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("render: %w", err)
	}

	// Characters are about twice as tall as they are wide
	bounds := frame.Bounds()
	cols := min(t.cols, bounds.Dx())
	rows := max(1, bounds.Dy()*cols/bounds.Dx()/2)

	if t.drawn {
		// Move the cursor back to the top of the last frame
		fmt.Fprintf(t.out, "\033[%dA", t.rows)
	}
	for r := 0; r < rows; r++ {
		y := bounds.Min.Y + r*bounds.Dy()/rows
		for c := 0; c < cols; c++ {
			x := bounds.Min.X + c*bounds.Dx()/cols
			shade := int(frame.GrayAt(x, y).Y) * (len(ramp) - 1) / 255
			t.out.WriteByte(ramp[shade])
		}
		t.out.WriteString("\033[K\n")
	}
	t.drawn = true
	t.rows = rows

	if err := t.out.Flush(); err != nil {
		return fmt.Errorf("render: %w", err)
	}
	return nil
}

// Close implements the Renderer interface
func (t *Terminal) Close() error {
	return t.out.Flush()
}
