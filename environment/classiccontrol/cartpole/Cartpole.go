// Package cartpole implements the Cartpole classic control environment
package cartpole

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r1"

	env "github.com/latentrl/dreamer/environment"
	ts "github.com/latentrl/dreamer/timestep"
)

const (
	// Physical constants
	Gravity        float64 = 9.8
	CartMass       float64 = 1.0
	PoleMass       float64 = 0.1
	HalfPoleLength float64 = 0.5  // half of pole length
	ForceMag       float64 = 10.0 // Magnification of force applied
	Dt             float64 = 0.02 // seconds between state updates

	// Episode failure thresholds
	FailAngle    float64 = 12 * 2 * math.Pi / 360
	FailPosition float64 = 2.4

	// Bounds (+/-) on state variables
	SpeedBounds           float64 = math.MaxFloat64
	AngularVelocityBounds float64 = math.MaxFloat64

	// Discrete Actions
	MinDiscreteAction int = 0
	MaxDiscreteAction int = 2

	// StartBounds is the half-width of the uniform distribution each
	// state variable starts in
	StartBounds float64 = 0.05
)

// Cartpole implements the classic control Cartpole Balance task. A
// pole is attached to a cart, which can move horizontally, and the
// agent must keep the pole upright for as long as possible.
//
// The state features are continuous and consist of the cart's x
// position and speed, as well as the pole's angle from the positive
// y-axis and the pole's angular velocity.
//
// Actions are discrete and consist of the force applied to the cart:
//
//	Action	Meaning
//	  0		Accelerate left
//	  1		Do nothing
//	  2		Accelerate right
//
// Rewards are +1 on every step while the pole is balanced and -1 on
// the step the pole falls past FailAngle or the cart leaves
// [-FailPosition, FailPosition]. Falling ends the episode in a
// terminal state; reaching the step limit cuts the episode off, which
// the final timestep reports through a nonzero discount.
type Cartpole struct {
	env.Starter
	lastStep     ts.TimeStep
	episodeSteps int

	positionBounds r1.Interval
	angleBounds    r1.Interval
}

// New constructs a new Cartpole environment whose episodes are cut off
// after episodeSteps steps. Start states draw every state variable
// uniformly from [-StartBounds, StartBounds] using seed.
func New(episodeSteps int, seed uint64) (*Cartpole, error) {
	if episodeSteps <= 0 {
		return nil, fmt.Errorf("new: episode step limit must be "+
			"positive, got %v", episodeSteps)
	}

	bounds := make([]r1.Interval, 4)
	for i := range bounds {
		bounds[i] = r1.Interval{Min: -StartBounds, Max: StartBounds}
	}
	starter := env.NewUniformStarter(bounds, seed)

	return &Cartpole{
		Starter:        starter,
		episodeSteps:   episodeSteps,
		positionBounds: r1.Interval{Min: -FailPosition, Max: FailPosition},
		angleBounds:    r1.Interval{Min: -FailAngle, Max: FailAngle},
	}, nil
}

// Reset resets the environment and returns a starting state drawn from
// the environment Starter
func (c *Cartpole) Reset() (ts.TimeStep, error) {
	state := c.Start()
	if state.Len() != 4 {
		return ts.TimeStep{}, fmt.Errorf("reset: invalid state size "+
			"\n\twant(4)\n\thave(%v)", state.Len())
	}

	startStep := ts.New(ts.First, 0, 1, state, 0)
	c.lastStep = startStep
	return startStep, nil
}

// Step takes one environmental step given action a and returns the
// next state as a timestep.TimeStep and a bool indicating whether or
// not the episode has ended
func (c *Cartpole) Step(a *mat.VecDense) (ts.TimeStep, bool, error) {
	action := int(a.AtVec(0))
	if action < MinDiscreteAction || action > MaxDiscreteAction {
		return ts.TimeStep{}, false, fmt.Errorf("step: illegal action "+
			"%v ∉ (0, 1, 2)", action)
	}

	// Get state variables
	state := c.lastStep.Observation
	x, xDot := state.AtVec(0), state.AtVec(1)
	th, thDot := state.AtVec(2), state.AtVec(3)

	// Magnify the action force in the appropriate direction
	var force float64
	switch action {
	case 0:
		force = -ForceMag
	case 2:
		force = ForceMag
	default:
		force = 0.0 // No action taken
	}

	// Calculate physical variables to determine next state
	cosTheta := math.Cos(th)
	sinTheta := math.Sin(th)

	totalMass := PoleMass + CartMass
	poleMassLength := PoleMass * HalfPoleLength

	temp := (force + poleMassLength*thDot*thDot*sinTheta) / totalMass
	thAcc := (Gravity*sinTheta - cosTheta*temp) / (HalfPoleLength *
		(4.0/3.0 - PoleMass*cosTheta*cosTheta/totalMass))
	xAcc := temp - poleMassLength*thAcc*cosTheta/totalMass

	// Update state variables using Euler kinematic integration
	x += Dt * xDot
	xDot += Dt * xAcc
	th += Dt * thDot
	thDot += Dt * thAcc

	newState := mat.NewVecDense(4, []float64{x, xDot, th, thDot})
	fell := !within(x, c.positionBounds) || !within(th, c.angleBounds)

	reward := 1.0
	if fell {
		reward = -1.0
	}

	stepType := ts.Mid
	discount := 1.0
	number := c.lastStep.Number + 1
	if fell {
		// Terminal state
		stepType = ts.Last
		discount = 0.0
	} else if number >= c.episodeSteps {
		// Cutoff, the episode would otherwise have continued
		stepType = ts.Last
	}

	nextStep := ts.New(stepType, reward, discount, newState, number)
	c.lastStep = nextStep
	return nextStep, nextStep.Last(), nil
}

// ActionSpec returns the action specification of the environment
func (c *Cartpole) ActionSpec() env.Spec {
	shape := mat.NewVecDense(1, nil)
	lowerBound := mat.NewVecDense(1, []float64{float64(MinDiscreteAction)})
	upperBound := mat.NewVecDense(1, []float64{float64(MaxDiscreteAction)})

	return env.Spec{
		Shape:       shape,
		Type:        env.Action,
		LowerBound:  lowerBound,
		UpperBound:  upperBound,
		Cardinality: env.Discrete,
	}
}

// ObservationSpec returns the observation specification of the
// environment
func (c *Cartpole) ObservationSpec() env.Spec {
	shape := mat.NewVecDense(4, nil)

	lower := []float64{c.positionBounds.Min, -SpeedBounds,
		c.angleBounds.Min, -AngularVelocityBounds}
	lowerBound := mat.NewVecDense(4, lower)

	upper := []float64{c.positionBounds.Max, SpeedBounds,
		c.angleBounds.Max, AngularVelocityBounds}
	upperBound := mat.NewVecDense(4, upper)

	return env.Spec{
		Shape:       shape,
		Type:        env.Observation,
		LowerBound:  lowerBound,
		UpperBound:  upperBound,
		Cardinality: env.Continuous,
	}
}

// DiscountSpec returns the discounting specification of the environment
func (c *Cartpole) DiscountSpec() env.Spec {
	shape := mat.NewVecDense(1, nil)
	lowerBound := mat.NewVecDense(1, []float64{0})
	upperBound := mat.NewVecDense(1, []float64{1})

	return env.Spec{
		Shape:       shape,
		Type:        env.Discount,
		LowerBound:  lowerBound,
		UpperBound:  upperBound,
		Cardinality: env.Continuous,
	}
}

func (c *Cartpole) String() string {
	return "Cartpole"
}

// within returns whether v lies inside the interval i
func within(v float64, i r1.Interval) bool {
	return v >= i.Min && v <= i.Max
}
