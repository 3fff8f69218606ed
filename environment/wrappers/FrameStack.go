package wrappers

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	env "github.com/latentrl/dreamer/environment"
	ts "github.com/latentrl/dreamer/timestep"
)

// FrameStack wraps an environment so that observations are the
// concatenation of the last frames observations of the wrapped
// environment, newest last. On reset the stack is filled with copies
// of the starting observation. Stacking past observations restores a
// Markov state from partially observable ones, e.g. positions occluded
// of their velocities.
type FrameStack struct {
	env.Environment
	frames int
	obsLen int
	stack  []float64
}

// NewFrameStack wraps e, stacking its last frames observations
func NewFrameStack(e env.Environment, frames int) (*FrameStack, error) {
	if frames <= 0 {
		return nil, fmt.Errorf("newFrameStack: frames must be "+
			"positive, got %v", frames)
	}
	obsLen := e.ObservationSpec().Shape.Len()
	return &FrameStack{
		Environment: e,
		frames:      frames,
		obsLen:      obsLen,
		stack:       make([]float64, frames*obsLen),
	}, nil
}

// Reset resets the wrapped environment and fills the stack with the
// starting observation
func (f *FrameStack) Reset() (ts.TimeStep, error) {
	step, err := f.Environment.Reset()
	if err != nil {
		return step, err
	}

	for i := 0; i < f.frames; i++ {
		for j := 0; j < f.obsLen; j++ {
			f.stack[i*f.obsLen+j] = step.Observation.AtVec(j)
		}
	}
	return f.stacked(step), nil
}

// Step takes one step in the wrapped environment and pushes the new
// observation onto the stack
func (f *FrameStack) Step(action *mat.VecDense) (ts.TimeStep, bool, error) {
	step, last, err := f.Environment.Step(action)
	if err != nil {
		return step, last, err
	}

	copy(f.stack, f.stack[f.obsLen:])
	for j := 0; j < f.obsLen; j++ {
		f.stack[(f.frames-1)*f.obsLen+j] = step.Observation.AtVec(j)
	}
	return f.stacked(step), last, nil
}

// ObservationSpec returns the observation specification of the stacked
// observations
func (f *FrameStack) ObservationSpec() env.Spec {
	inner := f.Environment.ObservationSpec()
	size := f.frames * f.obsLen

	shape := mat.NewVecDense(size, nil)
	lower := mat.NewVecDense(size, nil)
	upper := mat.NewVecDense(size, nil)
	for i := 0; i < f.frames; i++ {
		for j := 0; j < f.obsLen; j++ {
			lower.SetVec(i*f.obsLen+j, inner.LowerBound.AtVec(j))
			upper.SetVec(i*f.obsLen+j, inner.UpperBound.AtVec(j))
		}
	}

	return env.Spec{
		Shape:       shape,
		Type:        env.Observation,
		LowerBound:  lower,
		UpperBound:  upper,
		Cardinality: inner.Cardinality,
	}
}

func (f *FrameStack) stacked(step ts.TimeStep) ts.TimeStep {
	obs := make([]float64, len(f.stack))
	copy(obs, f.stack)
	step.Observation = mat.NewVecDense(len(obs), obs)
	return step
}
