package experiment

import (
	"fmt"

	"github.com/latentrl/dreamer/agent"
	env "github.com/latentrl/dreamer/environment"
	"github.com/latentrl/dreamer/utils/floatutils"
)

// Evaluator scores a policy by running it in an environment without
// learning. The agent is switched to evaluation mode for the duration
// of the evaluation, so action selection is greedy and no parameter
// update can run while evaluation episodes observe the weights, and is
// switched back afterwards.
type Evaluator struct {
	environment env.Environment
	episodes    int
	maxSteps    int // Per-episode step cutoff; <= 0 disables
}

// NewEvaluator returns an evaluator running the given number of
// episodes, each cut off after maxSteps steps
func NewEvaluator(e env.Environment, episodes,
	maxSteps int) (*Evaluator, error) {
	if episodes <= 0 {
		return nil, fmt.Errorf("newEvaluator: episodes must be "+
			"positive, got %v", episodes)
	}
	return &Evaluator{
		environment: e,
		episodes:    episodes,
		maxSteps:    maxSteps,
	}, nil
}

// Evaluate runs the evaluation episodes and returns the mean episodic
// return
func (e *Evaluator) Evaluate(a agent.Agent) (float64, error) {
	wasEval := a.IsEval()
	a.Eval()
	if !wasEval {
		defer a.Train()
	}

	returns := make([]float64, e.episodes)
	for i := 0; i < e.episodes; i++ {
		episodeReturn, err := e.runEpisode(a)
		if err != nil {
			return 0, fmt.Errorf("evaluate: %v", err)
		}
		returns[i] = episodeReturn
	}
	return floatutils.Mean(returns...), nil
}

// runEpisode runs a single evaluation episode and returns its return
func (e *Evaluator) runEpisode(a agent.Agent) (float64, error) {
	step, err := e.environment.Reset()
	if err != nil {
		return 0, fmt.Errorf("runEpisode: could not reset "+
			"environment: %v", err)
	}
	if err := a.ObserveFirst(step); err != nil {
		return 0, fmt.Errorf("runEpisode: %v", err)
	}

	episodeReturn := 0.0
	steps := 0
	for !step.Last() {
		action := a.SelectAction(step)
		step, _, err = e.environment.Step(action)
		if err != nil {
			return 0, fmt.Errorf("runEpisode: could not step "+
				"environment: %v", err)
		}
		episodeReturn += step.Reward

		steps++
		if e.maxSteps > 0 && steps >= e.maxSteps {
			break
		}
	}
	return episodeReturn, nil
}
