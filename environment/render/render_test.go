package render

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func gradient() *image.Gray {
	img := image.NewGray(image.Rect(0, 0, 4, 4))
	for x := 0; x < 4; x++ {
		for y := 0; y < 4; y++ {
			img.SetGray(x, y, color.Gray{Y: uint8(x * 85)})
		}
	}
	return img
}

func TestTerminal(t *testing.T) {
	var buf bytes.Buffer
	term := NewTerminal(&buf, 4, 0)

	if err := term.Render(context.Background(), gradient()); err != nil {
		t.Fatal(err)
	}
	first := buf.String()
	if lines := strings.Count(first, "\n"); lines != 2 {
		t.Errorf("rows: got %v, want 2", lines)
	}
	if !strings.HasPrefix(first, " ") || !strings.Contains(first, "@") {
		t.Errorf("expected dark-to-light ramp, got %q", first)
	}

	// Subsequent frames redraw in place
	buf.Reset()
	term.Render(context.Background(), gradient())
	if !strings.HasPrefix(buf.String(), "\033[2A") {
		t.Errorf("expected cursor to move up, got %q", buf.String())
	}
}

func TestTerminalCancelled(t *testing.T) {
	term := NewTerminal(&bytes.Buffer{}, 4, 0.001)
	ctx, cancel := context.WithCancel(context.Background())

	// The first frame consumes the burst
	if err := term.Render(ctx, gradient()); err != nil {
		t.Fatal(err)
	}
	cancel()
	if err := term.Render(ctx, gradient()); err == nil {
		t.Error("expected error rendering with a cancelled context")
	}
}

func TestPNG(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "frames")
	p, err := NewPNG(dir, 2)
	if err != nil {
		t.Fatal(err)
	}

	for i := 0; i < 2; i++ {
		if err := p.Render(context.Background(), gradient()); err != nil {
			t.Fatal(err)
		}
	}

	for _, name := range []string{"frame_000001.png", "frame_000002.png"} {
		file, err := os.Open(filepath.Join(dir, name))
		if err != nil {
			t.Fatal(err)
		}
		img, err := png.Decode(file)
		file.Close()
		if err != nil {
			t.Fatal(err)
		}
		if b := img.Bounds(); b.Dx() != 8 || b.Dy() != 8 {
			t.Errorf("%v: got size %vx%v, want 8x8", name, b.Dx(), b.Dy())
		}
	}

	if _, err := NewPNG(dir, 0); err == nil {
		t.Error("expected error for zero scale")
	}
}
