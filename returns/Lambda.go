// Package returns computes multi-step return targets for policy
// evaluation and improvement.
package returns

import (
	"fmt"

	"github.com/latentrl/dreamer/network"
)

// Lambda computes TD(λ) return targets over an imagined or recorded
// trajectory. The slices hold, for each of H time steps, a (batch, 1)
// node of rewards, state values, and discounts, where the discount
// carries both the discount factor and the predicted continuation
// probability. The bootstrap node holds the value of the state after
// the final step.
//
// The returned slice holds one (batch, 1) node per time step,
// satisfying the recursion
//
//	R_t = r_t + d_t * ((1-λ) * v_{t+1} + λ * R_{t+1})
//
// with R_H equal to the bootstrap value. Computed on the tape, so
// gradients flow back to every input.
func Lambda(t *network.Tape, rewards, values, discounts []*network.Node,
	bootstrap *network.Node, lambda float64) ([]*network.Node, error) {
	if len(rewards) != len(values) || len(rewards) != len(discounts) {
		return nil, fmt.Errorf("lambda: rewards, values, and discounts "+
			"must have equal lengths, got (%v, %v, %v)", len(rewards),
			len(values), len(discounts))
	}
	if lambda < 0 || lambda > 1 {
		return nil, fmt.Errorf("lambda: λ must be in [0, 1], got %v",
			lambda)
	}

	horizon := len(rewards)
	if horizon == 0 {
		return []*network.Node{bootstrap}, nil
	}

	targets := make([]*network.Node, horizon)
	next := bootstrap
	nextValue := bootstrap
	for i := horizon - 1; i >= 0; i-- {
		blend := t.Add(t.Scale(nextValue, 1-lambda), t.Scale(next, lambda))
		targets[i] = t.Add(rewards[i], t.Mul(discounts[i], blend))

		next = targets[i]
		if i > 0 {
			nextValue = values[i]
		}
	}
	return targets, nil
}
