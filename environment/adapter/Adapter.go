// Package adapter constructs environments by identifier and exposes
// them through the minimal reset/step/close contract used by agents and
// evaluation, with preprocessing and rendering applied.
package adapter

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/samuelfneumann/rlrunner/environment"
	"github.com/samuelfneumann/rlrunner/environment/render"
	"github.com/samuelfneumann/rlrunner/environment/wrappers"
	ts "github.com/samuelfneumann/rlrunner/timestep"
	"gonum.org/v1/gonum/mat"

	// Register native environments
	_ "github.com/samuelfneumann/rlrunner/environment/atari/breakout"
	_ "github.com/samuelfneumann/rlrunner/environment/classiccontrol/cartpole"
	_ "github.com/samuelfneumann/rlrunner/environment/classiccontrol/mountaincar"
)

// ErrNoFrames is returned when rendering is requested for an
// environment which cannot draw frames
var ErrNoFrames = errors.New("environment cannot render frames")

// Preprocessing determines how observations are transformed before an
// agent sees them. FrameSkip and Dim only apply to pixel-based
// environments. A zero value in any field disables that step.
type Preprocessing struct {
	FrameSkip  int
	Dim        int
	FrameStack int
}

// Info holds auxiliary information about an environmental step
type Info struct {
	// RawSteps is the step number of the underlying environment, which
	// counts skipped frames
	RawSteps int

	// EndType describes why the episode ended, or ts.Unknown if it has
	// not ended
	EndType ts.EndType

	// Lives is the number of lives left for environments with lives,
	// or -1
	Lives int
}

// Option configures an Adapter
type Option func(*Adapter)

// WithRenderer renders every frame of the environment with r. The
// Adapter closes r when it is closed.
func WithRenderer(r render.Renderer) Option {
	return func(a *Adapter) {
		a.renderer = r
	}
}

// WithContext sets the context used to pace rendering. It defaults to
// context.Background().
func WithContext(ctx context.Context) Option {
	return func(a *Adapter) {
		a.ctx = ctx
	}
}

// WithLogger sets the logger of the Adapter
func WithLogger(l *slog.Logger) Option {
	return func(a *Adapter) {
		a.logger = l
	}
}

type liver interface {
	Lives() int
}

// Adapter wraps a registered environment behind the reset/step/close
// contract.
//
// Adapter is not safe for concurrent use; concurrent samplers should
// each construct their own Adapter.
type Adapter struct {
	id       environment.ID
	raw      environment.Environment
	env      environment.Environment
	renderer render.Renderer
	ctx      context.Context
	logger   *slog.Logger
	closed   bool
}

// New constructs the environment registered as id, seeded with seed,
// and applies the preprocessing p. An unregistered id results in an
// error wrapping environment.ErrUnknownEnvironment.
func New(id environment.ID, seed uint64, p Preprocessing,
	opts ...Option) (*Adapter, error) {
	raw, err := environment.Make(id, seed)
	if err != nil {
		return nil, fmt.Errorf("new: %w", err)
	}

	a := &Adapter{
		id:     id,
		raw:    raw,
		ctx:    context.Background(),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(a)
	}

	if a.renderer != nil {
		if _, ok := raw.(environment.Framer); !ok {
			raw.Close()
			return nil, fmt.Errorf("new: could not render %v: %w", id,
				ErrNoFrames)
		}
	}

	if a.env, err = preprocess(raw, p); err != nil {
		raw.Close()
		return nil, fmt.Errorf("new: could not preprocess %v: %w", id, err)
	}

	a.logger.Debug("environment created", "env", id, "seed", seed,
		"observation_len", a.env.ObservationSpec().Len())
	return a, nil
}

// preprocess wraps e in the preprocessing pipeline
func preprocess(e environment.Environment,
	p Preprocessing) (environment.Environment, error) {
	if pixels, ok := e.(environment.Pixels); ok {
		if p.FrameSkip > 1 {
			skip, err := wrappers.NewFrameSkip(pixels, p.FrameSkip)
			if err != nil {
				return nil, err
			}
			pixels = skip
		}
		e = pixels

		if p.Dim > 0 {
			warp, err := wrappers.NewWarpFrame(pixels, p.Dim)
			if err != nil {
				return nil, err
			}
			e = warp
		}
	}

	if p.FrameStack > 1 {
		stack, err := wrappers.NewFrameStack(e, p.FrameStack)
		if err != nil {
			return nil, err
		}
		e = stack
	}
	return e, nil
}

// Reset starts a new episode and returns its first observation
func (a *Adapter) Reset() (mat.Vector, error) {
	step, err := a.env.Reset()
	if err != nil {
		return nil, fmt.Errorf("reset: %v: %w", a.id, err)
	}
	if err := a.render(); err != nil {
		return nil, fmt.Errorf("reset: %w", err)
	}
	return step.Observation, nil
}

// Step takes action in the environment and returns the next
// observation, the reward for the action, and whether the episode
// ended
func (a *Adapter) Step(action *mat.VecDense) (mat.Vector, float64, bool,
	Info, error) {
	step, done, err := a.env.Step(action)
	if err != nil {
		return nil, 0, false, Info{}, fmt.Errorf("step: %v: %w", a.id, err)
	}
	if err := a.render(); err != nil {
		return nil, 0, false, Info{}, fmt.Errorf("step: %w", err)
	}

	info := Info{
		RawSteps: a.raw.CurrentTimeStep().Number,
		EndType:  step.EndType(),
		Lives:    -1,
	}
	if l, ok := a.raw.(liver); ok {
		info.Lives = l.Lives()
	}
	return step.Observation, step.Reward, done, info, nil
}

func (a *Adapter) render() error {
	if a.renderer == nil {
		return nil
	}
	frame := a.raw.(environment.Framer).Frame()
	return a.renderer.Render(a.ctx, frame)
}

// ID returns the identifier of the environment
func (a *Adapter) ID() environment.ID {
	return a.id
}

// ObservationSpec returns the specification of preprocessed
// observations
func (a *Adapter) ObservationSpec() environment.Spec {
	return a.env.ObservationSpec()
}

// ActionSpec returns the action specification of the environment
func (a *Adapter) ActionSpec() environment.Spec {
	return a.env.ActionSpec()
}

// Close releases the environment and renderer. Calls after the first
// have no effect.
func (a *Adapter) Close() error {
	if a.closed {
		return nil
	}
	a.closed = true

	err := a.raw.Close()
	if a.renderer != nil {
		err = errors.Join(err, a.renderer.Close())
	}
	if err != nil {
		return fmt.Errorf("close: %v: %w", a.id, err)
	}
	return nil
}
