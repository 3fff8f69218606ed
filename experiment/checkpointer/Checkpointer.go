// Package checkpointer implements periodic checkpointing of
// serializable objects during an experiment
package checkpointer

import (
	"fmt"
	"path/filepath"
)

// Serializable is an object that can save itself to a file
type Serializable interface {
	Save(filename string) error
}

// Checkpointer saves serializable objects based on the cumulative
// environment step count of an experiment
type Checkpointer interface {
	Checkpoint(step int) error
}

// Dir returns the checkpoint directory for a run, derived from the
// environment name and its observability mode (e.g. "full",
// "occluded", "stacked").
func Dir(root, envName, obsMode string) string {
	return filepath.Join(root, fmt.Sprintf("%v-%v", envName, obsMode))
}

// StepNamer returns a function naming checkpoint files inside dir by
// the step count they were taken at
func StepNamer(dir string) func(step int) string {
	return func(step int) string {
		return filepath.Join(dir, fmt.Sprintf("step-%d.bin", step))
	}
}
