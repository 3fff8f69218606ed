// Package distribution implements the probability distributions used
// by the world model and the actor: one-hot categorical distributions
// factored into independent blocks, and log-likelihood helpers for the
// Bernoulli and unit-variance Gaussian observation heads.
package distribution

import (
	"fmt"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/latentrl/dreamer/network"
)

// OneHotCategorical is a distribution over concatenated one-hot
// vectors: Blocks independent categorical variables, each over Classes
// classes, laid out side by side so a sample has Blocks * Classes
// entries. Logits and samples are batched row-wise.
type OneHotCategorical struct {
	Blocks  int
	Classes int

	src rand.Source
}

// NewOneHotCategorical returns a distribution of blocks independent
// categorical variables with classes classes each, drawing samples
// from a source seeded with seed.
func NewOneHotCategorical(blocks, classes int,
	seed uint64) (*OneHotCategorical, error) {
	if blocks <= 0 || classes <= 0 {
		return nil, fmt.Errorf("newOneHotCategorical: blocks and "+
			"classes must be positive, got (%v, %v)", blocks, classes)
	}
	return &OneHotCategorical{
		Blocks:  blocks,
		Classes: classes,
		src:     rand.NewSource(seed),
	}, nil
}

// Size returns the length of a single flattened sample
func (o *OneHotCategorical) Size() int {
	return o.Blocks * o.Classes
}

// Sample draws a one-hot sample for every block of every row of
// probs. The probabilities of each block must be normalized, as
// produced by a block softmax.
func (o *OneHotCategorical) Sample(probs *mat.Dense) *mat.Dense {
	rows, cols := probs.Dims()
	if cols != o.Size() {
		panic(fmt.Sprintf("sample: probabilities have %v columns, "+
			"expected %v", cols, o.Size()))
	}

	out := mat.NewDense(rows, cols, nil)
	weights := make([]float64, o.Classes)
	for i := 0; i < rows; i++ {
		for b := 0; b < o.Blocks; b++ {
			start := b * o.Classes
			copy(weights, probs.RawRowView(i)[start:start+o.Classes])
			dist := distuv.NewCategorical(weights, o.src)
			class := int(dist.Rand())
			out.Set(i, start+class, 1)
		}
	}
	return out
}

// Mode returns the most likely one-hot vector of every block of every
// row of the given logits or probabilities.
func (o *OneHotCategorical) Mode(logits *mat.Dense) *mat.Dense {
	rows, cols := logits.Dims()
	if cols != o.Size() {
		panic(fmt.Sprintf("mode: logits have %v columns, expected %v",
			cols, o.Size()))
	}

	out := mat.NewDense(rows, cols, nil)
	for i := 0; i < rows; i++ {
		row := logits.RawRowView(i)
		for b := 0; b < o.Blocks; b++ {
			start := b * o.Classes
			best := start
			for j := start + 1; j < start+o.Classes; j++ {
				if row[j] > row[best] {
					best = j
				}
			}
			out.Set(i, best, 1)
		}
	}
	return out
}

// StraightThroughSample draws a one-hot sample from the given logits
// and places it on the tape so that its value is the discrete sample
// while its gradient flows to the block softmax probabilities.
func (o *OneHotCategorical) StraightThroughSample(t *network.Tape,
	logits *network.Node) *network.Node {
	probs := t.SoftmaxBlocks(logits, o.Classes)
	sample := o.Sample(probs.Value)
	return t.StraightThrough(probs, sample)
}

// KL returns the mean over the batch of the KL divergence from the
// distribution with logits q to the distribution with logits p, summed
// over blocks.
func (o *OneHotCategorical) KL(t *network.Tape, p, q *network.Node) *network.Node {
	rows, _ := p.Dims()
	probs := t.SoftmaxBlocks(p, o.Classes)
	logP := t.LogSoftmaxBlocks(p, o.Classes)
	logQ := t.LogSoftmaxBlocks(q, o.Classes)
	perElem := t.Mul(probs, t.Sub(logP, logQ))
	return t.Scale(t.SumAll(perElem), 1/float64(rows))
}

// BalancedKL returns the KL divergence between the distributions with
// logits post and prior, balanced so that a fraction scale of the
// gradient trains the prior toward the posterior and the remaining
// fraction trains the posterior toward the prior.
func (o *OneHotCategorical) BalancedKL(t *network.Tape, post,
	prior *network.Node, scale float64) *network.Node {
	lhs := t.Scale(o.KL(t, t.Detach(post), prior), scale)
	rhs := t.Scale(o.KL(t, post, t.Detach(prior)), 1-scale)
	return t.Add(lhs, rhs)
}

// Entropy returns the entropy of every row of the given logits, summed
// over blocks, as a (batch, 1) node.
func (o *OneHotCategorical) Entropy(t *network.Tape,
	logits *network.Node) *network.Node {
	probs := t.SoftmaxBlocks(logits, o.Classes)
	logP := t.LogSoftmaxBlocks(logits, o.Classes)
	return t.Scale(t.RowSum(t.Mul(probs, logP)), -1)
}

// LogProb returns the log probability of the given one-hot samples
// under the distribution with the given logits, summed over blocks, as
// a (batch, 1) node. The samples are treated as constants.
func (o *OneHotCategorical) LogProb(t *network.Tape, logits *network.Node,
	onehot *mat.Dense) *network.Node {
	logP := t.LogSoftmaxBlocks(logits, o.Classes)
	return t.RowSum(t.Mul(logP, t.Constant(onehot)))
}

// GaussianNLL returns the negative log likelihood of target under
// unit-variance Gaussians centered at mean, summed over event
// dimensions and averaged over the batch.
func GaussianNLL(t *network.Tape, mean *network.Node,
	target *mat.Dense) *network.Node {
	rows, _ := target.Dims()
	logProb := t.GaussianLogProb(mean, target)
	return t.Scale(t.SumAll(logProb), -1/float64(rows))
}

// BernoulliNLL returns the negative log likelihood of target under
// Bernoulli distributions with the given logits, summed over event
// dimensions and averaged over the batch.
func BernoulliNLL(t *network.Tape, logits *network.Node,
	target *mat.Dense) *network.Node {
	rows, _ := target.Dims()
	logProb := t.BernoulliLogProb(logits, target)
	return t.Scale(t.SumAll(logProb), -1/float64(rows))
}
