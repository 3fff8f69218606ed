// Package experiment implements functionality for running an
// experiment. Experiments step an agent through an environment,
// sending every timestep to registered trackers and periodically
// checkpointing the agent. The Run method runs episodes until the
// maximum timestep limit is reached.
package experiment

import (
	"github.com/latentrl/dreamer/experiment/trackers"

	ts "github.com/latentrl/dreamer/timestep"
)

// Experiment outlines structs that can run experiments
type Experiment interface {
	// Run runs episodes until the experiment's step limit is reached
	// or the agent fails
	Run() error

	// RunEpisode runs a single episode, returning whether the step
	// limit has been reached
	RunEpisode() (bool, error)

	// Register adds a Tracker to the (possibly already running)
	// experiment
	Register(t trackers.Tracker)

	// Save persists all tracked data to disk
	Save() error
}

// track sends a timestep to every tracker
func track(tr []trackers.Tracker, step ts.TimeStep) {
	for _, t := range tr {
		t.Track(step)
	}
}
