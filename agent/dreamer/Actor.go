package dreamer

import (
	"fmt"

	"github.com/latentrl/dreamer/distribution"
	"github.com/latentrl/dreamer/network"
)

// actor is the policy over latent model states. It implements
// rssm.ImaginationPolicy, sampling imagined actions with the gradient
// pathway matching the configured estimator: straight-through samples
// for the dynamics estimator, detached samples for the score-function
// estimator.
type actor struct {
	net       *network.MLP
	dist      *distribution.OneHotCategorical
	estimator string
}

// newActor returns a policy with numActions actions over features of
// the given size
func newActor(features, numActions, nodeSize, hiddenLayers int,
	estimator string, init network.InitFn, seed uint64) (*actor, error) {
	net, err := newMLP("Actor", features, numActions, nodeSize,
		hiddenLayers, init)
	if err != nil {
		return nil, fmt.Errorf("newActor: %v", err)
	}

	dist, err := distribution.NewOneHotCategorical(1, numActions, seed)
	if err != nil {
		return nil, fmt.Errorf("newActor: %v", err)
	}

	return &actor{net: net, dist: dist, estimator: estimator}, nil
}

// ImagineAction samples one-hot actions for a batch of model state
// features, returning the actions, their log probabilities, and the
// policy entropies.
func (a *actor) ImagineAction(t *network.Tape, feat *network.Node) (action,
	logProb, entropy *network.Node) {
	logits := a.net.Forward(t, feat)

	if a.estimator == Dynamics {
		action = a.dist.StraightThroughSample(t, logits)
	} else {
		probs := t.SoftmaxBlocks(logits, a.dist.Classes)
		action = t.Constant(a.dist.Sample(probs.Value))
	}

	logProb = a.dist.LogProb(t, logits, action.Value)
	entropy = a.dist.Entropy(t, logits)
	return action, logProb, entropy
}

// Params returns the learnable parameters of the policy
func (a *actor) Params() []*network.Param {
	return a.net.Params()
}

// newMLP builds a network with hiddenLayers ELU hidden layers of
// nodeSize units each and a linear output layer.
func newMLP(name string, features, outputs, nodeSize,
	hiddenLayers int, init network.InitFn) (*network.MLP, error) {
	sizes := make([]int, hiddenLayers)
	acts := make([]*network.Activation, hiddenLayers)
	for i := range sizes {
		sizes[i] = nodeSize
		acts[i] = network.ELU()
	}
	return network.NewMLP(name, features, outputs, sizes, acts, init)
}
