package experiment

import (
	"fmt"

	"github.com/latentrl/dreamer/agent"
	env "github.com/latentrl/dreamer/environment"
	"github.com/latentrl/dreamer/experiment/checkpointer"
	"github.com/latentrl/dreamer/experiment/trackers"
	"github.com/latentrl/dreamer/metrics"
)

// Online is an Experiment that trains an agent online, interleaving
// environment steps with the agent's own training schedule. An
// Evaluator may be registered to periodically score the policy without
// learning.
type Online struct {
	environment env.Environment
	agent       agent.Agent

	maxSteps     uint
	currentSteps uint

	trackers      []trackers.Tracker
	checkpointers []checkpointer.Checkpointer

	evaluator *Evaluator
	evalEvery uint
	lastEval  uint

	logger metrics.Logger
}

// NewOnline creates and returns a new online experiment on a given
// environment with a given agent. The steps parameter determines how
// many timesteps the experiment is run for.
func NewOnline(e env.Environment, a agent.Agent, steps uint,
	t []trackers.Tracker, c []checkpointer.Checkpointer) *Online {
	return &Online{
		environment:   e,
		agent:         a,
		maxSteps:      steps,
		trackers:      t,
		checkpointers: c,
		logger:        metrics.Nop{},
	}
}

// Register registers a Tracker with the experiment so that data
// generated during the experiment can be tracked and saved
func (o *Online) Register(t trackers.Tracker) {
	o.trackers = append(o.trackers, t)
}

// SetLogger directs episodic metrics to the given sink
func (o *Online) SetLogger(l metrics.Logger) {
	o.logger = l
}

// SetEvaluator registers an evaluator to score the policy every the
// given number of environment steps
func (o *Online) SetEvaluator(e *Evaluator, every uint) {
	o.evaluator = e
	o.evalEvery = every
}

// RunEpisode runs a single episode of the experiment, returning
// whether the maximum timestep limit has been reached
func (o *Online) RunEpisode() (bool, error) {
	step, err := o.environment.Reset()
	if err != nil {
		return false, fmt.Errorf("runEpisode: could not reset "+
			"environment: %v", err)
	}
	if err := o.agent.ObserveFirst(step); err != nil {
		return false, fmt.Errorf("runEpisode: %v", err)
	}
	track(o.trackers, step)

	episodeReturn := 0.0
	for !step.Last() && o.currentSteps < o.maxSteps {
		o.currentSteps++

		// Select action, step in environment
		action := o.agent.SelectAction(step)
		step, _, err = o.environment.Step(action)
		if err != nil {
			return false, fmt.Errorf("runEpisode: could not step "+
				"environment: %v", err)
		}
		track(o.trackers, step)
		episodeReturn += step.Reward

		// Observe the timestep and step the agent
		if err := o.agent.Observe(action, step); err != nil {
			return false, fmt.Errorf("runEpisode: %v", err)
		}
		if err := o.agent.Step(); err != nil {
			return false, fmt.Errorf("runEpisode: %w", err)
		}

		if err := o.checkpoint(); err != nil {
			return false, fmt.Errorf("runEpisode: %v", err)
		}
	}

	if step.Last() {
		o.logger.Log(map[string]float64{
			"episode/return": episodeReturn,
			"episode/length": float64(step.Number),
		}, int(o.currentSteps))
	}

	if err := o.evaluate(); err != nil {
		return false, err
	}

	return o.currentSteps >= o.maxSteps, nil
}

// Run runs the entire experiment for all timesteps
func (o *Online) Run() error {
	ended := false

	var err error
	for !ended {
		ended, err = o.RunEpisode()
		if err != nil {
			return fmt.Errorf("run: %w", err)
		}
	}
	return nil
}

// Save saves all the data cached by the Trackers to disk
func (o *Online) Save() error {
	for _, t := range o.trackers {
		if err := t.Save(); err != nil {
			return fmt.Errorf("save: %v", err)
		}
	}
	return nil
}

// checkpoint runs every registered checkpointer at the current step
func (o *Online) checkpoint() error {
	for _, c := range o.checkpointers {
		if err := c.Checkpoint(int(o.currentSteps)); err != nil {
			return fmt.Errorf("checkpoint: %v", err)
		}
	}
	return nil
}

// evaluate runs the registered evaluator if enough steps have passed
// since the last evaluation
func (o *Online) evaluate() error {
	if o.evaluator == nil || o.currentSteps-o.lastEval < o.evalEvery {
		return nil
	}
	o.lastEval = o.currentSteps

	mean, err := o.evaluator.Evaluate(o.agent)
	if err != nil {
		return fmt.Errorf("evaluate: %v", err)
	}
	o.logger.Log(map[string]float64{"eval/return": mean},
		int(o.currentSteps))
	return nil
}
