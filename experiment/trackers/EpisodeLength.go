package trackers

import (
	ts "github.com/latentrl/dreamer/timestep"
)

// EpisodeLength tracks and saves the number of steps in each episode
// of an experiment
type EpisodeLength struct {
	currentLength  int
	episodeLengths []float64
	filename       string
}

// NewEpisodeLength creates and returns a new *EpisodeLength Tracker
// saving to the file at filename
func NewEpisodeLength(filename string) *EpisodeLength {
	return &EpisodeLength{filename: filename}
}

// Track tracks the length of the current episode, recording it once a
// timestep ends the episode
func (e *EpisodeLength) Track(step ts.TimeStep) {
	if step.First() {
		e.currentLength = 0
		return
	}

	e.currentLength++
	if step.Last() {
		e.episodeLengths = append(e.episodeLengths,
			float64(e.currentLength))
	}
}

// Data returns the episode lengths recorded so far
func (e *EpisodeLength) Data() []float64 {
	return e.episodeLengths
}

// Save saves the data tracked by the EpisodeLength Tracker to disk
func (e *EpisodeLength) Save() error {
	return save(e.filename, e.episodeLengths)
}
