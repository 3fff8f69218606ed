// Package agent outlines the interfaces needed to implement concrete
// agents
package agent

import (
	"gonum.org/v1/gonum/mat"

	"github.com/latentrl/dreamer/environment"
	"github.com/latentrl/dreamer/timestep"
)

// Policy selects actions in an environment based on timesteps
type Policy interface {
	SelectAction(t timestep.TimeStep) *mat.VecDense
}

// Learner observes the stream of environment interaction and updates
// itself from it. Step performs any updates scheduled for the current
// frame and may perform none; its error is fatal to the training run.
type Learner interface {
	ObserveFirst(t timestep.TimeStep) error
	Observe(action mat.Vector, next timestep.TimeStep) error
	Step() error
}

// Agent determines the implementation details of an agent or algorithm
//
// Agents maintain a train mode, in which action selection explores and
// Step learns, and an eval mode, in which action selection is greedy
// and Step is a no-op.
type Agent interface {
	Learner
	Policy

	Train()
	Eval()
	IsEval() bool
}

// Config represents a configuration for creating an agent
type Config interface {
	// CreateAgent creates the agent that the config describes in the
	// given environment
	CreateAgent(e environment.Environment, seed uint64) (Agent, error)

	// Validate returns an error describing whether or not the
	// configuration is valid
	Validate() error
}
