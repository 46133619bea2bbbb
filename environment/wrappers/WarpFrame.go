package wrappers

import (
	"fmt"

	env "github.com/samuelfneumann/rlrunner/environment"
	ts "github.com/samuelfneumann/rlrunner/timestep"
	"gonum.org/v1/gonum/mat"
	"gorgonia.org/tensor"
)

// MaxPixel is the largest pixel intensity of a grayscale frame
const MaxPixel float64 = 255

// WarpFrame wraps a pixel-based environment and downsamples its frames
// to dim x dim pixels by averaging over the source pixels covered by
// each target pixel. Intensities are scaled to [0, 1].
//
// Frame and FrameShape still describe the full resolution frames of the
// wrapped environment, which are no longer the observations.
type WarpFrame struct {
	env.Pixels
	dim      int
	height   int
	width    int
	lastStep ts.TimeStep
}

// NewWarpFrame returns a new WarpFrame environment
func NewWarpFrame(e env.Pixels, dim int) (*WarpFrame, error) {
	height, width := e.FrameShape()
	if dim < 1 || dim > height || dim > width {
		return nil, fmt.Errorf("newWarpFrame: dimension %v must be in "+
			"[1, %v]", dim, min(height, width))
	}

	w := &WarpFrame{Pixels: e, dim: dim, height: height, width: width}
	step, err := w.warp(e.CurrentTimeStep())
	if err != nil {
		return nil, fmt.Errorf("newWarpFrame: %w", err)
	}
	w.lastStep = step
	return w, nil
}

// Reset resets the environment and returns the starting TimeStep
func (w *WarpFrame) Reset() (ts.TimeStep, error) {
	step, err := w.Pixels.Reset()
	if err != nil {
		return ts.TimeStep{}, fmt.Errorf("reset: %w", err)
	}
	if step, err = w.warp(step); err != nil {
		return ts.TimeStep{}, fmt.Errorf("reset: %w", err)
	}
	w.lastStep = step
	return step, nil
}

// Step takes one environmental step
func (w *WarpFrame) Step(a *mat.VecDense) (ts.TimeStep, bool, error) {
	step, _, err := w.Pixels.Step(a)
	if err != nil {
		return ts.TimeStep{}, false, fmt.Errorf("step: %w", err)
	}
	if step, err = w.warp(step); err != nil {
		return ts.TimeStep{}, false, fmt.Errorf("step: %w", err)
	}
	w.lastStep = step
	return step, step.Last(), nil
}

// warp returns a copy of t with a downsampled observation
func (w *WarpFrame) warp(t ts.TimeStep) (ts.TimeStep, error) {
	if t.Observation.Len() != w.height*w.width {
		return ts.TimeStep{}, fmt.Errorf("warp: observation of length %v "+
			"is not a %vx%v frame", t.Observation.Len(), w.height, w.width)
	}

	pixels := make([]float64, w.height*w.width)
	for i := range pixels {
		pixels[i] = t.Observation.AtVec(i)
	}
	frame := tensor.NewDense(tensor.Float64, []int{w.height, w.width},
		tensor.WithBacking(pixels))

	warped := Downsample(frame, w.dim)
	obs := warped.Data().([]float64)
	for i := range obs {
		obs[i] /= MaxPixel
	}

	out := ts.New(t.StepType, t.Reward, t.Discount,
		mat.NewVecDense(len(obs), obs), t.Number)
	if t.Last() {
		out.SetEnd(t.EndType())
	}
	return out, nil
}

// Downsample average-pools a 2-dimensional frame to dim x dim. Each
// target pixel averages the source pixels in its block; when dim does
// not divide the frame size, blocks differ in size by at most one row
// or column.
func Downsample(frame *tensor.Dense, dim int) *tensor.Dense {
	shape := frame.Shape()
	if len(shape) != 2 {
		panic(fmt.Sprintf("downsample: frame must be 2-dimensional, "+
			"got shape %v", shape))
	}
	height, width := shape[0], shape[1]
	src := frame.Data().([]float64)

	out := make([]float64, dim*dim)
	for i := 0; i < dim; i++ {
		r0, r1 := i*height/dim, (i+1)*height/dim
		for j := 0; j < dim; j++ {
			c0, c1 := j*width/dim, (j+1)*width/dim

			sum := 0.0
			for r := r0; r < r1; r++ {
				for c := c0; c < c1; c++ {
					sum += src[r*width+c]
				}
			}
			out[i*dim+j] = sum / float64((r1-r0)*(c1-c0))
		}
	}

	return tensor.NewDense(tensor.Float64, []int{dim, dim},
		tensor.WithBacking(out))
}

// Dim returns the side length of the downsampled frames
func (w *WarpFrame) Dim() int {
	return w.dim
}

// CurrentTimeStep returns the last TimeStep returned by the wrapper
func (w *WarpFrame) CurrentTimeStep() ts.TimeStep {
	return w.lastStep
}

// ObservationSpec returns the observation specification of the
// environment
func (w *WarpFrame) ObservationSpec() env.Spec {
	return env.NewBoxSpec(w.dim*w.dim, env.Observation, 0, 1, env.Continuous)
}

func (w *WarpFrame) String() string {
	return fmt.Sprintf("WarpFrame(%vx%v): %v", w.dim, w.dim, w.Pixels)
}
