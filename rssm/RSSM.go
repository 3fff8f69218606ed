// Package rssm implements a recurrent state-space model with discrete
// stochastic latents. The model state is the pair of a deterministic
// recurrent state and a stochastic latent sampled from a factored
// one-hot categorical distribution. The prior predicts the next latent
// from the deterministic state alone; the posterior corrects it with
// an embedding of the current observation.
package rssm

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/latentrl/dreamer/distribution"
	"github.com/latentrl/dreamer/network"
)

// State is the model state at a single time step. Logits holds the
// logits of the distribution Stoch was sampled from, and is nil for
// initial and masked states, which are not sampled.
type State struct {
	Deter  *network.Node
	Stoch  *network.Node
	Logits *network.Node
}

// ImaginationPolicy selects actions during imagined rollouts. Given the
// model state features of a batch of states, it returns the one-hot
// actions taken, their log probabilities, and the policy entropies,
// each batched row-wise.
type ImaginationPolicy interface {
	ImagineAction(t *network.Tape, feat *network.Node) (action, logProb,
		entropy *network.Node)
}

// RSSM is a recurrent state-space model. The transition function embeds
// the previous latent and action, updates the deterministic state with
// a GRU cell, and predicts the prior logits of the next latent from
// the new deterministic state.
type RSSM struct {
	actionSize int
	embedSize  int
	deterSize  int

	dist *distribution.OneHotCategorical

	fcInput *network.Dense
	cell    *network.GRUCell
	prior   *network.MLP
	post    *network.MLP
}

// New returns a new recurrent state-space model. The stochastic latent
// consists of categories one-hot vectors of classes classes each, and
// hidden sets the width of the hidden layer of the prior and posterior
// logit networks.
func New(actionSize, embedSize, deterSize, categories, classes,
	hidden int, init network.InitFn, seed uint64) (*RSSM, error) {
	if actionSize <= 0 || embedSize <= 0 || deterSize <= 0 || hidden <= 0 {
		return nil, fmt.Errorf("new: sizes must be positive, got "+
			"action %v, embed %v, deter %v, hidden %v", actionSize,
			embedSize, deterSize, hidden)
	}

	dist, err := distribution.NewOneHotCategorical(categories, classes,
		seed)
	if err != nil {
		return nil, fmt.Errorf("new: could not create latent "+
			"distribution: %v", err)
	}
	stochSize := dist.Size()

	r := &RSSM{
		actionSize: actionSize,
		embedSize:  embedSize,
		deterSize:  deterSize,
		dist:       dist,

		fcInput: network.NewDense("RSSMInput", stochSize+actionSize,
			deterSize, network.ELU(), init),
		cell: network.NewGRUCell("RSSMCell", deterSize, deterSize, init),
	}

	r.prior, err = network.NewMLP("RSSMPrior", deterSize, stochSize,
		[]int{hidden}, []*network.Activation{network.ELU()}, init)
	if err != nil {
		return nil, fmt.Errorf("new: could not create prior network: %v",
			err)
	}
	r.post, err = network.NewMLP("RSSMPosterior", deterSize+embedSize,
		stochSize, []int{hidden}, []*network.Activation{network.ELU()},
		init)
	if err != nil {
		return nil, fmt.Errorf("new: could not create posterior "+
			"network: %v", err)
	}
	return r, nil
}

// StochSize returns the length of the flattened stochastic latent
func (r *RSSM) StochSize() int {
	return r.dist.Size()
}

// FeatureSize returns the length of the model state features
func (r *RSSM) FeatureSize() int {
	return r.deterSize + r.dist.Size()
}

// Dist returns the distribution of the stochastic latent
func (r *RSSM) Dist() *distribution.OneHotCategorical {
	return r.dist
}

// InitState returns the all-zero model state for a batch of the given
// size.
func (r *RSSM) InitState(t *network.Tape, batch int) State {
	return State{
		Deter: t.Constant(mat.NewDense(batch, r.deterSize, nil)),
		Stoch: t.Constant(mat.NewDense(batch, r.dist.Size(), nil)),
	}
}

// Features returns the model state features, the concatenation of the
// deterministic and stochastic states.
func (r *RSSM) Features(t *network.Tape, s State) *network.Node {
	return t.Concat(s.Deter, s.Stoch)
}

// MaskState zeroes the rows of the model state whose entry in the
// (batch, 1) node nonterm is zero, resetting the recurrent state at
// episode boundaries.
func (r *RSSM) MaskState(t *network.Tape, s State,
	nonterm *network.Node) State {
	return State{
		Deter: t.MulBroadcast(s.Deter, nonterm),
		Stoch: t.MulBroadcast(s.Stoch, nonterm),
	}
}

// Prior advances the model state by one step: it updates the
// deterministic state from the previous state and action, predicts the
// prior logits of the next latent, and samples the latent with a
// straight-through gradient.
func (r *RSSM) Prior(t *network.Tape, prev State,
	action *network.Node) State {
	x := r.fcInput.Forward(t, t.Concat(prev.Stoch, action))
	deter := r.cell.Step(t, x, prev.Deter)
	logits := r.prior.Forward(t, deter)
	return State{
		Deter:  deter,
		Stoch:  r.dist.StraightThroughSample(t, logits),
		Logits: logits,
	}
}

// Posterior corrects the latent of a prior state with an embedding of
// the current observation, keeping the deterministic state.
func (r *RSSM) Posterior(t *network.Tape, prior State,
	embed *network.Node) State {
	logits := r.post.Forward(t, t.Concat(prior.Deter, embed))
	return State{
		Deter:  prior.Deter,
		Stoch:  r.dist.StraightThroughSample(t, logits),
		Logits: logits,
	}
}

// RolloutObservation filters a batch of observation sequences through
// the model. For each step it resets the previous state and action
// where the previous step ended an episode, advances the prior, and
// corrects it with the observation embedding. It returns the posterior
// and prior states of every step.
func (r *RSSM) RolloutObservation(t *network.Tape, init State, embeds,
	actions, nonterms []*network.Node) (posteriors, priors []State,
	err error) {
	if len(embeds) != len(actions) || len(embeds) != len(nonterms) {
		return nil, nil, fmt.Errorf("rolloutObservation: embeds, "+
			"actions, and nonterms must have equal lengths, got "+
			"(%v, %v, %v)", len(embeds), len(actions), len(nonterms))
	}

	posteriors = make([]State, len(embeds))
	priors = make([]State, len(embeds))
	prev := init
	for i := range embeds {
		prev = r.MaskState(t, prev, nonterms[i])
		action := t.MulBroadcast(actions[i], nonterms[i])

		priors[i] = r.Prior(t, prev, action)
		posteriors[i] = r.Posterior(t, priors[i], embeds[i])
		prev = posteriors[i]
	}
	return posteriors, priors, nil
}

// RolloutImagination rolls the prior forward for horizon steps from
// init, selecting actions with the given policy. It returns the
// horizon+1 visited states, starting with init, and the actions, log
// probabilities, and policy entropies of each of the horizon steps.
func (r *RSSM) RolloutImagination(t *network.Tape, init State,
	horizon int, policy ImaginationPolicy) (states []State, actions,
	logProbs, entropies []*network.Node, err error) {
	if horizon < 0 {
		return nil, nil, nil, nil, fmt.Errorf("rolloutImagination: "+
			"horizon must be non-negative, got %v", horizon)
	}

	states = make([]State, horizon+1)
	actions = make([]*network.Node, horizon)
	logProbs = make([]*network.Node, horizon)
	entropies = make([]*network.Node, horizon)

	states[0] = init
	for h := 0; h < horizon; h++ {
		feat := r.Features(t, states[h])
		actions[h], logProbs[h], entropies[h] = policy.ImagineAction(t,
			feat)
		states[h+1] = r.Prior(t, states[h], actions[h])
	}
	return states, actions, logProbs, entropies, nil
}

// Params returns the learnable parameters of the model
func (r *RSSM) Params() []*network.Param {
	params := r.fcInput.Params()
	params = append(params, r.cell.Params()...)
	params = append(params, r.prior.Params()...)
	params = append(params, r.post.Params()...)
	return params
}
