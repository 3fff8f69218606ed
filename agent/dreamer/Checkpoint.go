package dreamer

import (
	"encoding/gob"
	"fmt"
	"os"
	"path/filepath"

	"github.com/latentrl/dreamer/network"
	"github.com/latentrl/dreamer/solver"
)

// allParams returns every learnable and target parameter of the agent
// in a fixed order for checkpointing
func (d *Dreamer) allParams() []*network.Param {
	params := make([]*network.Param, 0, len(d.worldParams))
	params = append(params, d.worldParams...)
	params = append(params, d.actor.Params()...)
	params = append(params, d.value.Params()...)
	if d.config.UseFixedTarget {
		params = append(params, d.target.Params()...)
	}
	return params
}

// Save writes the agent's parameters, optimizer state, and step
// counters to the file at filename, creating parent directories as
// needed. The replay buffer is not persisted; a restored agent
// recollects experience before resuming training.
func (d *Dreamer) Save(filename string) error {
	if err := os.MkdirAll(filepath.Dir(filename), 0o755); err != nil {
		return fmt.Errorf("save: could not create checkpoint "+
			"directory: %v", err)
	}

	f, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("save: could not create checkpoint file: %v",
			err)
	}
	defer f.Close()

	enc := gob.NewEncoder(f)
	if err := enc.Encode(d.frames); err != nil {
		return fmt.Errorf("save: could not encode frame count: %v", err)
	}
	if err := enc.Encode(d.iterations); err != nil {
		return fmt.Errorf("save: could not encode iteration count: %v",
			err)
	}
	for _, p := range d.allParams() {
		if err := enc.Encode(p); err != nil {
			return fmt.Errorf("save: could not encode parameter %v: %v",
				p.Name, err)
		}
	}
	for _, s := range d.solvers() {
		if err := enc.Encode(s); err != nil {
			return fmt.Errorf("save: could not encode solver state: %v",
				err)
		}
	}
	return nil
}

// Restore loads a checkpoint written by Save into the agent. The agent
// must have been constructed with the same configuration that produced
// the checkpoint.
func (d *Dreamer) Restore(filename string) error {
	f, err := os.Open(filename)
	if err != nil {
		return fmt.Errorf("restore: could not open checkpoint file: %v",
			err)
	}
	defer f.Close()

	dec := gob.NewDecoder(f)
	if err := dec.Decode(&d.frames); err != nil {
		return fmt.Errorf("restore: could not decode frame count: %v",
			err)
	}
	if err := dec.Decode(&d.iterations); err != nil {
		return fmt.Errorf("restore: could not decode iteration count: "+
			"%v", err)
	}
	for _, p := range d.allParams() {
		if err := dec.Decode(p); err != nil {
			return fmt.Errorf("restore: could not decode parameter %v: "+
				"%v", p.Name, err)
		}
	}
	for _, s := range d.solvers() {
		if err := dec.Decode(s); err != nil {
			return fmt.Errorf("restore: could not decode solver state: "+
				"%v", err)
		}
	}

	d.resetActingState()
	return nil
}

// solvers returns the agent's solvers in a fixed order for
// checkpointing. Decoding restores moment estimates in place, so the
// order must match between Save and Restore.
func (d *Dreamer) solvers() []*solver.AdamSolver {
	return []*solver.AdamSolver{d.modelSolver, d.actorSolver, d.valueSolver}
}
