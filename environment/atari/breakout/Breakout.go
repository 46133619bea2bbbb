// Package breakout implements a small pixel-based clone of the Atari
// 2600 game Breakout, registered as "Breakout-v0".
//
// Observations are raw grayscale frames flattened in row major order,
// as emitted by the Arcade Learning Environment, so the environment is
// meant to be used through a frame preprocessing pipeline
// (see environment/wrappers).
package breakout

import (
	"fmt"
	"image"
	"image/color"

	"golang.org/x/exp/rand"

	env "github.com/samuelfneumann/rlrunner/environment"
	ts "github.com/samuelfneumann/rlrunner/timestep"
	"gonum.org/v1/gonum/mat"
)

// ID is the identifier Breakout is registered under
const ID env.ID = "Breakout-v0"

const (
	Height int = 84
	Width  int = 84

	// Actions
	Noop  int = 0
	Fire  int = 1
	Right int = 2
	Left  int = 3

	NumActions int = 4
	Lives      int = 5

	// MaxEpisodeSteps is the number of raw frames after which an
	// episode is cut off
	MaxEpisodeSteps int = 10_000

	// RepeatActionProbability is the probability with which the
	// previous action is repeated instead of the selected one
	RepeatActionProbability float64 = 0.25

	// ServeDelay is the number of frames after which a ball is served
	// even if Fire was never pressed
	ServeDelay int = 30

	Discount float64 = 0.99
)

// Layout of the playing field, in pixels
const (
	wall        = 2
	brickTop    = 12
	brickRows   = 6
	brickCols   = 10
	brickHeight = 3
	brickWidth  = (Width - 2*wall) / brickCols
	paddleY     = Height - 6
	paddleH     = 2
	paddleW     = 12
	paddleSpeed = 3
	ballSize    = 2
)

// Pixel intensities
const (
	background  uint8 = 0
	wallShade   uint8 = 142
	paddleShade uint8 = 200
	ballShade   uint8 = 255
)

// rowRewards are the points for the brick rows, from the top down
var rowRewards = [brickRows]float64{7, 7, 4, 4, 1, 1}
var rowShades = [brickRows]uint8{180, 170, 150, 130, 110, 90}

func init() {
	env.Register(ID, func(seed uint64) (env.Environment, error) {
		return New(seed, Discount, MaxEpisodeSteps, RepeatActionProbability)
	})
}

// Breakout implements the Breakout game. The agent controls a paddle at
// the bottom of the screen and must bounce a ball into the rows of
// bricks at the top of the screen. Each brick hit is removed and
// rewarded by the points of its row. When the ball falls past the
// paddle a life is lost; the episode ends when all lives are lost or
// all bricks are cleared.
//
// Actions are discrete:
//
//	Action	Meaning
//	  0		Noop
//	  1		Fire (serve the ball)
//	  2		Move right
//	  3		Move left
//
// With probability RepeatActionProbability the previous action is
// repeated instead of the selected one. The random source is seeded
// at construction, so two environments with the same seed and the same
// action sequence produce the same episode.
type Breakout struct {
	rng         *rand.Rand
	stickyProb  float64
	stepLimit   *env.StepLimit
	discount    float64
	currentStep ts.TimeStep

	bricks     [brickRows][brickCols]bool
	bricksLeft int
	lives      int
	paddleX    int
	ballX      int
	ballY      int
	ballVX     int
	ballVY     int
	served     bool
	idle       int
	lastAction int

	frame *image.Gray
}

// New returns a new Breakout environment
func New(seed uint64, discount float64, episodeSteps int,
	stickyProb float64) (*Breakout, error) {
	if stickyProb < 0 || stickyProb > 1 {
		return nil, fmt.Errorf("new: repeat action probability %v ∉ [0, 1]",
			stickyProb)
	}

	b := &Breakout{
		rng:        rand.New(rand.NewSource(seed)),
		stickyProb: stickyProb,
		stepLimit:  env.NewStepLimit(episodeSteps),
		discount:   discount,
		frame:      image.NewGray(image.Rect(0, 0, Width, Height)),
	}
	if _, err := b.Reset(); err != nil {
		return nil, err
	}
	return b, nil
}

// Reset starts a new game
func (b *Breakout) Reset() (ts.TimeStep, error) {
	for r := range b.bricks {
		for c := range b.bricks[r] {
			b.bricks[r][c] = true
		}
	}
	b.bricksLeft = brickRows * brickCols
	b.lives = Lives
	b.paddleX = (Width - paddleW) / 2
	b.lastAction = Noop
	b.resetBall()

	b.draw()
	b.currentStep = ts.New(ts.First, 0, b.discount, b.observation(), 0)
	return b.currentStep, nil
}

// resetBall places an unserved ball above the paddle
func (b *Breakout) resetBall() {
	b.served = false
	b.idle = 0
	b.ballX = b.paddleX + paddleW/2
	b.ballY = paddleY - 2*ballSize
	b.ballVX = 0
	b.ballVY = 0
}

// serve launches the ball in a random horizontal direction
func (b *Breakout) serve() {
	b.served = true
	b.ballX = wall + b.rng.Intn(Width-2*wall-ballSize)
	b.ballY = brickTop + brickRows*brickHeight + 4
	b.ballVY = 2
	if b.rng.Float64() < 0.5 {
		b.ballVX = -1
	} else {
		b.ballVX = 1
	}
}

// Step takes one frame of the game
func (b *Breakout) Step(a *mat.VecDense) (ts.TimeStep, bool, error) {
	if a.Len() != 1 {
		return ts.TimeStep{}, false, fmt.Errorf("step: actions should be " +
			"1-dimensional")
	}
	if b.currentStep.Last() {
		return ts.TimeStep{}, true, fmt.Errorf("step: episode has ended, " +
			"call Reset")
	}

	action := int(a.AtVec(0))
	if action < 0 || action >= NumActions {
		return ts.TimeStep{}, false, fmt.Errorf("step: illegal action %v "+
			"∉ [0, %v)", action, NumActions)
	}
	if b.rng.Float64() < b.stickyProb {
		action = b.lastAction
	}
	b.lastAction = action

	switch action {
	case Right:
		b.paddleX = clamp(b.paddleX+paddleSpeed, wall, Width-wall-paddleW)
	case Left:
		b.paddleX = clamp(b.paddleX-paddleSpeed, wall, Width-wall-paddleW)
	}

	reward := 0.0
	if !b.served {
		b.idle++
		b.ballX = b.paddleX + paddleW/2
		if action == Fire || b.idle >= ServeDelay {
			b.serve()
		}
	} else {
		reward = b.moveBall()
	}

	b.draw()
	next := ts.New(ts.Mid, reward, b.discount, b.observation(),
		b.currentStep.Number+1)
	if b.lives == 0 || b.bricksLeft == 0 {
		next.StepType = ts.Last
		next.SetEnd(ts.TerminalStateReached)
	} else {
		b.stepLimit.End(&next)
	}

	b.currentStep = next
	return next, next.Last(), nil
}

// moveBall advances the ball by one frame and returns the reward for
// any brick it broke
func (b *Breakout) moveBall() float64 {
	x, y := b.ballX+b.ballVX, b.ballY+b.ballVY

	// Walls
	if x < wall {
		x = wall
		b.ballVX = -b.ballVX
	} else if x > Width-wall-ballSize {
		x = Width - wall - ballSize
		b.ballVX = -b.ballVX
	}
	if y < wall {
		y = wall
		b.ballVY = -b.ballVY
	}

	// Paddle
	if b.ballVY > 0 && y+ballSize >= paddleY && y < paddleY+paddleH &&
		x+ballSize > b.paddleX && x < b.paddleX+paddleW {
		y = paddleY - ballSize
		b.ballVY = -b.ballVY

		// Steer the ball by where it hit the paddle
		offset := (x + ballSize/2) - (b.paddleX + paddleW/2)
		b.ballVX = clamp(offset/3, -2, 2)
		if b.ballVX == 0 {
			b.ballVX = 1
		}
	}

	// Bricks
	reward := 0.0
	if row, col, ok := brickAt(x+ballSize/2, y+ballSize/2); ok &&
		b.bricks[row][col] {
		b.bricks[row][col] = false
		b.bricksLeft--
		reward = rowRewards[row]
		b.ballVY = -b.ballVY
	}

	// Missed the ball
	if y >= Height {
		b.lives--
		b.resetBall()
		return reward
	}

	b.ballX, b.ballY = x, y
	return reward
}

// brickAt returns the brick covering pixel (x, y)
func brickAt(x, y int) (row, col int, ok bool) {
	if y < brickTop || y >= brickTop+brickRows*brickHeight {
		return 0, 0, false
	}
	if x < wall || x >= wall+brickCols*brickWidth {
		return 0, 0, false
	}
	return (y - brickTop) / brickHeight, (x - wall) / brickWidth, true
}

// draw renders the current game state to the frame buffer
func (b *Breakout) draw() {
	for i := range b.frame.Pix {
		b.frame.Pix[i] = background
	}

	fill(b.frame, 0, 0, Width, wall, wallShade)
	fill(b.frame, 0, 0, wall, Height, wallShade)
	fill(b.frame, Width-wall, 0, Width, Height, wallShade)

	for r := range b.bricks {
		for c := range b.bricks[r] {
			if !b.bricks[r][c] {
				continue
			}
			x0 := wall + c*brickWidth
			y0 := brickTop + r*brickHeight
			fill(b.frame, x0, y0, x0+brickWidth-1, y0+brickHeight-1,
				rowShades[r])
		}
	}

	fill(b.frame, b.paddleX, paddleY, b.paddleX+paddleW, paddleY+paddleH,
		paddleShade)
	fill(b.frame, b.ballX, b.ballY, b.ballX+ballSize, b.ballY+ballSize,
		ballShade)
}

// observation returns the current frame as a vector
func (b *Breakout) observation() *mat.VecDense {
	obs := make([]float64, len(b.frame.Pix))
	for i, p := range b.frame.Pix {
		obs[i] = float64(p)
	}
	return mat.NewVecDense(len(obs), obs)
}

// Frame returns a copy of the current frame
func (b *Breakout) Frame() *image.Gray {
	frame := image.NewGray(b.frame.Rect)
	copy(frame.Pix, b.frame.Pix)
	return frame
}

// FrameShape returns the height and width of frames
func (b *Breakout) FrameShape() (int, int) {
	return Height, Width
}

// CurrentTimeStep returns the last TimeStep in the environment
func (b *Breakout) CurrentTimeStep() ts.TimeStep {
	return b.currentStep
}

// Lives returns the number of lives left in the current game
func (b *Breakout) Lives() int {
	return b.lives
}

// ObservationSpec returns the observation specification of the
// environment
func (b *Breakout) ObservationSpec() env.Spec {
	return env.NewBoxSpec(Height*Width, env.Observation, 0, 255,
		env.Discrete)
}

// ActionSpec returns the action specification of the environment
func (b *Breakout) ActionSpec() env.Spec {
	return env.NewDiscreteActionSpec(NumActions)
}

// DiscountSpec returns the discounting specification of the environment
func (b *Breakout) DiscountSpec() env.Spec {
	return env.NewBoxSpec(1, env.Discount, b.discount, b.discount,
		env.Continuous)
}

// Close implements the environment.Environment interface
func (b *Breakout) Close() error {
	return nil
}

func (b *Breakout) String() string {
	return fmt.Sprintf("Breakout  |  Lives: %v  |  Bricks: %v", b.lives,
		b.bricksLeft)
}

// fill fills the rectangle [x0, x1) x [y0, y1), clipped to the frame
func fill(img *image.Gray, x0, y0, x1, y1 int, shade uint8) {
	r := image.Rect(x0, y0, x1, y1).Intersect(img.Rect)
	c := color.Gray{Y: shade}
	for y := r.Min.Y; y < r.Max.Y; y++ {
		for x := r.Min.X; x < r.Max.X; x++ {
			img.SetGray(x, y, c)
		}
	}
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
