package rssm

import (
	"testing"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/mat"

	"github.com/latentrl/dreamer/network"
)

const (
	actionSize = 3
	embedSize  = 5
	deterSize  = 6
	categories = 2
	classes    = 4
	hidden     = 8
)

func newTestRSSM(t *testing.T, seed uint64) *RSSM {
	t.Helper()

	rng := rand.New(rand.NewSource(seed))
	init := func(rows, cols int) []float64 {
		data := make([]float64, rows*cols)
		for i := range data {
			data[i] = 0.2 * (rng.Float64() - 0.5)
		}
		return data
	}

	r, err := New(actionSize, embedSize, deterSize, categories, classes,
		hidden, init, seed)
	if err != nil {
		t.Fatal(err)
	}
	return r
}

// uniformPolicy imagines by always taking the first action
type uniformPolicy struct{}

func (uniformPolicy) ImagineAction(t *network.Tape,
	feat *network.Node) (action, logProb, entropy *network.Node) {
	rows, _ := feat.Dims()
	sample := mat.NewDense(rows, actionSize, nil)
	for i := 0; i < rows; i++ {
		sample.Set(i, 0, 1)
	}

	a := t.Constant(sample)
	zero := t.Constant(mat.NewDense(rows, 1, nil))
	return a, zero, zero
}

func TestInitStateIsZero(t *testing.T) {
	r := newTestRSSM(t, 30)

	tape := network.NewTape()
	s := r.InitState(tape, 3)

	if rows, cols := s.Deter.Dims(); rows != 3 || cols != deterSize {
		t.Errorf("invalid deterministic shape (%v x %v)", rows, cols)
	}
	if rows, cols := s.Stoch.Dims(); rows != 3 || cols != r.StochSize() {
		t.Errorf("invalid stochastic shape (%v x %v)", rows, cols)
	}
	for _, v := range s.Deter.Value.RawMatrix().Data {
		if v != 0 {
			t.Fatal("initial deterministic state is not zero")
		}
	}
	for _, v := range s.Stoch.Value.RawMatrix().Data {
		if v != 0 {
			t.Fatal("initial stochastic state is not zero")
		}
	}
}

func TestPriorShapesAndOneHotLatent(t *testing.T) {
	r := newTestRSSM(t, 31)

	tape := network.NewTape()
	prev := r.InitState(tape, 2)
	action := tape.Constant(mat.NewDense(2, actionSize,
		[]float64{1, 0, 0, 0, 1, 0}))

	next := r.Prior(tape, prev, action)
	if rows, cols := next.Deter.Dims(); rows != 2 || cols != deterSize {
		t.Errorf("invalid deterministic shape (%v x %v)", rows, cols)
	}
	if rows, cols := next.Logits.Dims(); rows != 2 ||
		cols != r.StochSize() {
		t.Errorf("invalid logit shape (%v x %v)", rows, cols)
	}

	// Each latent block of the sample must be exactly one-hot
	for i := 0; i < 2; i++ {
		for b := 0; b < categories; b++ {
			ones := 0
			for j := 0; j < classes; j++ {
				if next.Stoch.Value.At(i, b*classes+j) == 1 {
					ones++
				}
			}
			if ones != 1 {
				t.Errorf("latent block (%d, %d) has %d ones", i, b, ones)
			}
		}
	}
}

func TestPosteriorKeepsDeterministicState(t *testing.T) {
	r := newTestRSSM(t, 32)

	tape := network.NewTape()
	prev := r.InitState(tape, 1)
	action := tape.Constant(mat.NewDense(1, actionSize,
		[]float64{0, 1, 0}))
	embed := tape.Constant(mat.NewDense(1, embedSize,
		[]float64{0.1, -0.2, 0.3, 0, 0.5}))

	prior := r.Prior(tape, prev, action)
	post := r.Posterior(tape, prior, embed)

	if post.Deter != prior.Deter {
		t.Error("posterior does not share the prior's deterministic " +
			"state")
	}
	if post.Logits == prior.Logits {
		t.Error("posterior logits alias the prior logits")
	}
}

func TestMaskStateZeroesFinishedRows(t *testing.T) {
	r := newTestRSSM(t, 33)

	tape := network.NewTape()
	prev := r.InitState(tape, 2)
	action := tape.Constant(mat.NewDense(2, actionSize,
		[]float64{1, 0, 0, 1, 0, 0}))
	state := r.Prior(tape, prev, action)

	nonterm := tape.Constant(mat.NewDense(2, 1, []float64{0, 1}))
	masked := r.MaskState(tape, state, nonterm)

	for j := 0; j < deterSize; j++ {
		if masked.Deter.Value.At(0, j) != 0 {
			t.Fatal("terminated row was not reset")
		}
		if masked.Deter.Value.At(1, j) != state.Deter.Value.At(1, j) {
			t.Fatal("continuing row was changed")
		}
	}
	for j := 0; j < r.StochSize(); j++ {
		if masked.Stoch.Value.At(0, j) != 0 {
			t.Fatal("terminated row latent was not reset")
		}
	}
}

func TestRolloutObservationLengths(t *testing.T) {
	r := newTestRSSM(t, 34)

	tape := network.NewTape()
	L, B := 4, 3
	embeds := make([]*network.Node, L)
	actions := make([]*network.Node, L)
	nonterms := make([]*network.Node, L)
	for i := 0; i < L; i++ {
		embeds[i] = tape.Constant(mat.NewDense(B, embedSize, nil))
		a := mat.NewDense(B, actionSize, nil)
		for b := 0; b < B; b++ {
			a.Set(b, i%actionSize, 1)
		}
		actions[i] = tape.Constant(a)

		ones := mat.NewDense(B, 1, nil)
		for b := 0; b < B; b++ {
			ones.Set(b, 0, 1)
		}
		nonterms[i] = tape.Constant(ones)
	}

	posts, priors, err := r.RolloutObservation(tape,
		r.InitState(tape, B), embeds, actions, nonterms)
	if err != nil {
		t.Fatal(err)
	}
	if len(posts) != L || len(priors) != L {
		t.Fatalf("invalid rollout lengths (%v, %v)", len(posts),
			len(priors))
	}

	for i := 0; i < L; i++ {
		if posts[i].Deter != priors[i].Deter {
			t.Errorf("step %d posterior does not share the prior's "+
				"deterministic state", i)
		}
		if posts[i].Logits == nil || priors[i].Logits == nil {
			t.Errorf("step %d state has no logits", i)
		}
	}
}

func TestRolloutImaginationLengths(t *testing.T) {
	r := newTestRSSM(t, 35)

	tape := network.NewTape()
	H, B := 5, 2
	states, actions, logProbs, entropies, err := r.RolloutImagination(
		tape, r.InitState(tape, B), H, uniformPolicy{})
	if err != nil {
		t.Fatal(err)
	}

	if len(states) != H+1 {
		t.Errorf("invalid state count \n\twant(%v)\n\thave(%v)", H+1,
			len(states))
	}
	if len(actions) != H || len(logProbs) != H || len(entropies) != H {
		t.Errorf("invalid trajectory lengths (%v, %v, %v)", len(actions),
			len(logProbs), len(entropies))
	}

	feat := r.Features(tape, states[H])
	if _, cols := feat.Dims(); cols != r.FeatureSize() {
		t.Errorf("invalid feature size \n\twant(%v)\n\thave(%v)",
			r.FeatureSize(), cols)
	}
}

func TestRolloutImaginationZeroHorizon(t *testing.T) {
	r := newTestRSSM(t, 36)

	tape := network.NewTape()
	states, actions, _, _, err := r.RolloutImagination(tape,
		r.InitState(tape, 1), 0, uniformPolicy{})
	if err != nil {
		t.Fatal(err)
	}
	if len(states) != 1 || len(actions) != 0 {
		t.Errorf("invalid zero-horizon lengths (%v, %v)", len(states),
			len(actions))
	}
}

func TestWorldModelGradientsReachAllParams(t *testing.T) {
	r := newTestRSSM(t, 37)

	tape := network.NewTape()
	B := 2
	embed := tape.Constant(mat.NewDense(B, embedSize, []float64{
		0.1, 0.2, -0.1, 0.3, -0.2,
		-0.3, 0.1, 0.2, -0.1, 0.4,
	}))
	action := tape.Constant(mat.NewDense(B, actionSize,
		[]float64{1, 0, 0, 0, 0, 1}))
	ones := tape.Constant(mat.NewDense(B, 1, []float64{1, 1}))

	posts, priors, err := r.RolloutObservation(tape,
		r.InitState(tape, B), []*network.Node{embed},
		[]*network.Node{action}, []*network.Node{ones})
	if err != nil {
		t.Fatal(err)
	}

	kl := r.Dist().KL(tape, posts[0].Logits, priors[0].Logits)
	loss := tape.Add(kl, tape.MeanAll(tape.Square(
		r.Features(tape, posts[0]))))

	for _, p := range r.Params() {
		p.ZeroGrad()
	}
	if err := tape.Backward(loss); err != nil {
		t.Fatal(err)
	}

	for _, p := range r.Params() {
		nonzero := false
		for _, v := range p.Grad.RawMatrix().Data {
			if v != 0 {
				nonzero = true
				break
			}
		}
		if !nonzero {
			t.Errorf("parameter %v received no gradient", p.Name)
		}
	}
}
