// Package wrappers provides environment wrappers that change the
// observability of the wrapped environment without touching its
// dynamics.
package wrappers

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	env "github.com/latentrl/dreamer/environment"
	ts "github.com/latentrl/dreamer/timestep"
)

// Occlude wraps an environment and zeroes a fixed set of observation
// features, making the environment partially observable. The occluded
// features stay in the observation vector so that network input sizes
// are unchanged.
type Occlude struct {
	env.Environment
	indices []int
}

// NewOcclude wraps e, occluding the observation features at the given
// indices
func NewOcclude(e env.Environment, indices []int) (*Occlude, error) {
	obsLen := e.ObservationSpec().Shape.Len()
	for _, i := range indices {
		if i < 0 || i >= obsLen {
			return nil, fmt.Errorf("newOcclude: index %v out of range "+
				"for observations of length %v", i, obsLen)
		}
	}
	return &Occlude{Environment: e, indices: indices}, nil
}

// Reset resets the wrapped environment and occludes the starting
// observation
func (o *Occlude) Reset() (ts.TimeStep, error) {
	step, err := o.Environment.Reset()
	if err != nil {
		return step, err
	}
	return o.occlude(step), nil
}

// Step takes one step in the wrapped environment and occludes the
// resulting observation
func (o *Occlude) Step(action *mat.VecDense) (ts.TimeStep, bool, error) {
	step, last, err := o.Environment.Step(action)
	if err != nil {
		return step, last, err
	}
	return o.occlude(step), last, nil
}

func (o *Occlude) occlude(step ts.TimeStep) ts.TimeStep {
	obs := mat.VecDenseCopyOf(step.Observation)
	for _, i := range o.indices {
		obs.SetVec(i, 0)
	}
	step.Observation = obs
	return step
}
