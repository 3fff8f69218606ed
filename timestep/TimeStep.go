// Package timestep implements timesteps of the agent-environment interaction
package timestep

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// StepType denotes the type of step that a TimeStep can be, either first
// environmental step, a middle step, or a last step
type StepType int

const (
	First StepType = iota
	Mid
	Last
)

func (s StepType) String() string {
	switch s {
	case First:
		return "First"
	case Last:
		return "Last"
	default:
		return "Mid"
	}
}

// TimeStep packages together a single timestep in an environment.
//
// The Discount field distinguishes environmental termination from
// truncation: a Last step with Discount == 0 means the episode ended
// in a terminal state, while a Last step with a nonzero Discount means
// the episode was cut off (e.g. by a step limit) and would otherwise
// have continued.
type TimeStep struct {
	StepType    StepType
	Reward      float64
	Discount    float64
	Observation mat.Vector
	Number      int
}

func New(t StepType, r, d float64, o mat.Vector, n int) TimeStep {
	return TimeStep{t, r, d, o, n}
}

// First returns whether a TimeStep is the first in an environment
func (t *TimeStep) First() bool {
	return t.StepType == First
}

// Mid returns whether a TimeStep is a middle step in an environment
func (t *TimeStep) Mid() bool {
	return t.StepType == Mid
}

// Last returns whether a TimeStep is the last step in an environment
func (t *TimeStep) Last() bool {
	return t.StepType == Last
}

// Terminal returns whether a TimeStep ended its episode in a true
// terminal state, as opposed to a step-limit truncation.
func (t *TimeStep) Terminal() bool {
	return t.StepType == Last && t.Discount == 0
}

func (t TimeStep) String() string {
	str := "TimeStep | Type: %v  |  Reward:  %.2f  |  Discount: %.2f  |  " +
		"Step Number:  %v"

	return fmt.Sprintf(str, t.StepType, t.Reward, t.Discount, t.Number)
}

// Transition records a single environment transition: the observation
// an action was taken from, the (one-hot) action itself, the reward
// received, and whether the episode continued afterwards. Transitions
// are immutable once stored in a replay buffer.
type Transition struct {
	Obs     mat.Vector
	Action  mat.Vector
	Reward  float64
	NonTerm float64
}

// NewTransition packages a transition from the observation obs on
// which action was taken, yielding the timestep next.
func NewTransition(obs, action mat.Vector, next TimeStep) Transition {
	nonTerm := 1.0
	if next.Terminal() {
		nonTerm = 0.0
	}
	return Transition{
		Obs:     obs,
		Action:  action,
		Reward:  next.Reward,
		NonTerm: nonTerm,
	}
}
