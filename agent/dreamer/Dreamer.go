// Package dreamer implements the Dreamer agent, which learns a world
// model of its environment from replayed experience and improves its
// policy entirely inside imagined rollouts of that model.
//
// The world model is a recurrent state-space model with discrete
// latents, trained to reconstruct observations and to predict rewards
// and episode continuation from its latent state. The actor and critic
// never see raw observations: starting from posterior latent states of
// real sequences, the model's prior imagines trajectories under the
// current policy, and the actor-critic is updated on TD(λ) returns
// computed over the imagined rewards and continuation probabilities.
package dreamer

import (
	"errors"
	"fmt"
	"math"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/mat"

	"github.com/latentrl/dreamer/distribution"
	"github.com/latentrl/dreamer/environment"
	"github.com/latentrl/dreamer/metrics"
	"github.com/latentrl/dreamer/network"
	"github.com/latentrl/dreamer/replay"
	"github.com/latentrl/dreamer/returns"
	"github.com/latentrl/dreamer/rssm"
	"github.com/latentrl/dreamer/solver"
	ts "github.com/latentrl/dreamer/timestep"
	"github.com/latentrl/dreamer/utils/floatutils"
)

// Dreamer implements the Dreamer agent
type Dreamer struct {
	config Config

	obsSize    int
	numActions int

	encoder *network.MLP
	model   *rssm.RSSM
	decoder *network.MLP
	reward  *network.MLP
	pcont   *network.MLP
	actor   *actor
	value   *network.MLP
	target  *network.MLP

	worldParams []*network.Param

	modelSolver *solver.AdamSolver
	actorSolver *solver.AdamSolver
	valueSolver *solver.AdamSolver

	buffer *replay.Buffer
	logger metrics.Logger

	// Recurrent acting state, reset at every episode start
	deter      *mat.Dense
	stoch      *mat.Dense
	prevAction *mat.Dense
	lastObs    mat.Vector

	frames     int // environment frames observed in train mode
	iterations int // completed training iterations

	eval bool
	rng  *rand.Rand
}

// New creates a new Dreamer agent acting in the given environment
func New(e environment.Environment, config Config,
	seed uint64) (*Dreamer, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("dreamer: %v", err)
	}

	obsSize := e.ObservationSpec().Shape.Len()
	numActions := int(e.ActionSpec().UpperBound.AtVec(0)) + 1
	init := config.InitWFn.InitFn()

	d := &Dreamer{
		config:     config,
		obsSize:    obsSize,
		numActions: numActions,
		logger:     metrics.Nop{},
		rng:        rand.New(rand.NewSource(seed)),
	}

	var err error
	d.encoder, err = newMLP("Encoder", obsSize, config.EmbeddingSize,
		config.NodeSize, config.HiddenLayers, init)
	if err != nil {
		return nil, fmt.Errorf("dreamer: could not create encoder: %v", err)
	}

	d.model, err = rssm.New(numActions, config.EmbeddingSize,
		config.DeterSize, config.CategorySize, config.ClassSize,
		config.NodeSize, init, seed+1)
	if err != nil {
		return nil, fmt.Errorf("dreamer: could not create world model: "+
			"%v", err)
	}
	features := d.model.FeatureSize()

	// The heads are created in a fixed order so that a seed always
	// draws the same weights for each of them.
	heads := []struct {
		name    string
		outputs int
		dest    **network.MLP
	}{
		{"Decoder", obsSize, &d.decoder},
		{"Reward", 1, &d.reward},
		{"Discount", 1, &d.pcont},
		{"Value", 1, &d.value},
	}
	for _, h := range heads {
		*h.dest, err = newMLP(h.name, features, h.outputs, config.NodeSize,
			config.HiddenLayers, init)
		if err != nil {
			return nil, fmt.Errorf("dreamer: could not create %v head: "+
				"%v", h.name, err)
		}
	}

	d.actor, err = newActor(features, numActions, config.NodeSize,
		config.HiddenLayers, config.ActorGrad, init, seed+2)
	if err != nil {
		return nil, fmt.Errorf("dreamer: %v", err)
	}

	if config.UseFixedTarget {
		d.target, err = newMLP("TargetValue", features, 1,
			config.NodeSize, config.HiddenLayers, init)
		if err != nil {
			return nil, fmt.Errorf("dreamer: could not create target "+
				"value head: %v", err)
		}
		if err := network.SetParams(d.target.Params(),
			d.value.Params()); err != nil {
			return nil, fmt.Errorf("dreamer: could not sync target "+
				"value head: %v", err)
		}
	} else {
		d.target = d.value
	}

	d.worldParams = d.encoder.Params()
	d.worldParams = append(d.worldParams, d.model.Params()...)
	d.worldParams = append(d.worldParams, d.decoder.Params()...)
	d.worldParams = append(d.worldParams, d.reward.Params()...)
	d.worldParams = append(d.worldParams, d.pcont.Params()...)

	d.modelSolver, err = solver.NewAdam(config.ModelLR, 1e-8, 0.9, 0.999,
		config.GradClipNorm, d.worldParams)
	if err != nil {
		return nil, fmt.Errorf("dreamer: could not create model "+
			"solver: %v", err)
	}
	d.actorSolver, err = solver.NewAdam(config.ActorLR, 1e-8, 0.9, 0.999,
		config.GradClipNorm, d.actor.Params())
	if err != nil {
		return nil, fmt.Errorf("dreamer: could not create actor "+
			"solver: %v", err)
	}
	d.valueSolver, err = solver.NewAdam(config.ValueLR, 1e-8, 0.9, 0.999,
		config.GradClipNorm, d.value.Params())
	if err != nil {
		return nil, fmt.Errorf("dreamer: could not create value "+
			"solver: %v", err)
	}

	d.buffer, err = replay.New(config.BufferCapacity, obsSize,
		numActions, seed+3)
	if err != nil {
		return nil, fmt.Errorf("dreamer: could not create replay "+
			"buffer: %v", err)
	}

	d.resetActingState()
	return d, nil
}

// SetLogger directs training metrics to the given sink
func (d *Dreamer) SetLogger(l metrics.Logger) {
	d.logger = l
}

// Train sets the agent to training mode
func (d *Dreamer) Train() { d.eval = false }

// Eval sets the agent to evaluation mode, in which action selection is
// greedy and no learning or experience collection happens
func (d *Dreamer) Eval() { d.eval = true }

// IsEval returns whether the agent is in evaluation mode
func (d *Dreamer) IsEval() bool { return d.eval }

// resetActingState zeroes the recurrent state used for action
// selection
func (d *Dreamer) resetActingState() {
	d.deter = mat.NewDense(1, d.config.DeterSize, nil)
	d.stoch = mat.NewDense(1, d.config.StochSize, nil)
	d.prevAction = mat.NewDense(1, d.numActions, nil)
}

// ObserveFirst observes the first timestep of an episode
func (d *Dreamer) ObserveFirst(t ts.TimeStep) error {
	if !t.First() {
		return fmt.Errorf("observeFirst: timestep is not first "+
			"\n\twant(%v)\n\thave(%v)", ts.First, t.StepType)
	}
	d.resetActingState()
	d.lastObs = t.Observation
	return nil
}

// Observe observes an action taken in the environment and the timestep
// it resulted in, recording the transition for replay. In evaluation
// mode nothing is recorded.
func (d *Dreamer) Observe(action mat.Vector, next ts.TimeStep) error {
	if d.eval {
		return nil
	}

	trans := ts.NewTransition(d.lastObs, d.oneHot(int(action.AtVec(0))),
		next)
	if err := d.buffer.Store(trans); err != nil {
		return fmt.Errorf("observe: could not store transition: %v", err)
	}
	if next.Last() {
		if err := d.buffer.EndEpisode(next.Observation); err != nil {
			return fmt.Errorf("observe: could not end episode: %v", err)
		}
	}

	d.lastObs = next.Observation
	d.frames++
	return nil
}

// SelectAction filters the latent state with the current observation
// and selects an action from the policy over the resulting model
// state. In training mode actions are sampled with annealed
// exploration noise; in evaluation mode the most probable action is
// taken.
func (d *Dreamer) SelectAction(t ts.TimeStep) *mat.VecDense {
	tape := network.NewNoGradTape()

	obs := mat.NewDense(1, d.obsSize, nil)
	for i := 0; i < d.obsSize; i++ {
		obs.Set(0, i, t.Observation.AtVec(i))
	}

	embed := d.encoder.Forward(tape, tape.Constant(obs))
	prev := rssm.State{
		Deter: tape.Constant(d.deter),
		Stoch: tape.Constant(d.stoch),
	}
	prior := d.model.Prior(tape, prev, tape.Constant(d.prevAction))
	post := d.model.Posterior(tape, prior, embed)

	feat := d.model.Features(tape, post)
	logits := d.actor.net.Forward(tape, feat)

	var idx int
	switch {
	case d.eval:
		_, idx = floatutils.Max(logits.Value.RawRowView(0)...)

	case d.seedPhase() || d.rng.Float64() < d.explRate():
		idx = d.rng.Intn(d.numActions)

	default:
		probs := tape.SoftmaxBlocks(logits, d.numActions)
		sample := d.actor.dist.Sample(probs.Value)
		_, idx = floatutils.Max(sample.RawRowView(0)...)
	}

	d.deter = mat.DenseCopyOf(post.Deter.Value)
	d.stoch = mat.DenseCopyOf(post.Stoch.Value)
	d.prevAction = mat.NewDense(1, d.numActions, nil)
	d.prevAction.Set(0, idx, 1)

	return mat.NewVecDense(1, []float64{float64(idx)})
}

// seedPhase returns whether the agent is still collecting its initial
// random-action episodes
func (d *Dreamer) seedPhase() bool {
	return d.buffer.Episodes() < d.config.SeedEpisodes
}

// explRate returns the current exploration noise, annealed over
// environment frames
func (d *Dreamer) explRate() float64 {
	c := d.config
	return c.ExplMin + (c.ExplNoise-c.ExplMin)*
		math.Exp(-float64(d.frames)/c.ExplDecay)
}

// oneHot returns the one-hot encoding of an action index
func (d *Dreamer) oneHot(idx int) *mat.VecDense {
	action := mat.NewVecDense(d.numActions, nil)
	action.SetVec(idx, 1)
	return action
}

// Step performs the training cycle scheduled for the current frame, if
// any: every TrainEvery frames, CollectIntervals iterations of world
// model update, imagination, and actor-critic update. An underfilled
// buffer skips the cycle; numerical instability is fatal.
func (d *Dreamer) Step() error {
	if d.eval || d.seedPhase() || d.frames%d.config.TrainEvery != 0 {
		return nil
	}

	for i := 0; i < d.config.CollectIntervals; i++ {
		batch, err := d.buffer.Sample(d.config.BatchSize, d.config.SeqLen)
		if errors.Is(err, replay.ErrInsufficientData) {
			d.logger.Log(map[string]float64{"train/skipped": 1}, d.frames)
			return nil
		} else if err != nil {
			return fmt.Errorf("step: could not sample batch: %v", err)
		}

		seedDeter, seedStoch, scalars, err := d.trainWorldModel(batch)
		if err != nil {
			return fmt.Errorf("step: %w", err)
		}

		acScalars, err := d.trainActorCritic(seedDeter, seedStoch)
		if err != nil {
			return fmt.Errorf("step: %w", err)
		}
		for name, value := range acScalars {
			scalars[name] = value
		}

		d.iterations++
		if d.config.UseFixedTarget &&
			d.iterations%d.config.TargetUpdateInterval == 0 {
			if err := network.SetParams(d.target.Params(),
				d.value.Params()); err != nil {
				return fmt.Errorf("step: could not sync target value "+
					"head: %v", err)
			}
		}

		d.logger.Log(scalars, d.frames)
	}
	return nil
}

// trainWorldModel performs one world model update on a batch of real
// sequences and returns the detached posterior model states of all but
// the final sequence step, flattened over time into the batch
// dimension, to seed imagination.
func (d *Dreamer) trainWorldModel(batch *replay.Batch) (seedDeter,
	seedStoch *mat.Dense, scalars map[string]float64, err error) {
	L := len(batch.Obs)
	B, _ := batch.Obs[0].Dims()

	tape := network.NewTape()

	embeds := make([]*network.Node, L)
	actions := make([]*network.Node, L)
	nonterms := make([]*network.Node, L)
	for i := 0; i < L; i++ {
		embeds[i] = d.encoder.Forward(tape, tape.Constant(batch.Obs[i]))
		actions[i] = tape.Constant(batch.Actions[i])
		nonterms[i] = tape.Constant(batch.NonTerms[i])
	}

	posts, priors, err := d.model.RolloutObservation(tape,
		d.model.InitState(tape, B), embeds, actions, nonterms)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("trainWorldModel: %v", err)
	}

	var klLoss, priorEnt, postEnt *network.Node
	latents := d.model.Dist()
	for i := 0; i < L; i++ {
		step := latents.BalancedKL(tape, posts[i].Logits,
			priors[i].Logits, d.config.KLBalanceScale)
		klLoss = accum(tape, klLoss, step)

		priorEnt = accum(tape, priorEnt, tape.MeanAll(
			latents.Entropy(tape, priors[i].Logits)))
		postEnt = accum(tape, postEnt, tape.MeanAll(
			latents.Entropy(tape, posts[i].Logits)))
	}
	klLoss = tape.Scale(klLoss, 1/float64(L))

	// Every posterior state reconstructs the observation of its own
	// step. Reward and continuation are predicted one step ahead, so
	// the final posterior state has no target for them.
	var obsLoss, rewardLoss, pcontLoss *network.Node
	for i := 0; i < L; i++ {
		feat := d.model.Features(tape, posts[i])
		obsLoss = accum(tape, obsLoss, distribution.GaussianNLL(tape,
			d.decoder.Forward(tape, feat), batch.Obs[i]))
		if i == L-1 {
			break
		}
		rewardLoss = accum(tape, rewardLoss, distribution.GaussianNLL(
			tape, d.reward.Forward(tape, feat), batch.Rewards[i+1]))
		pcontLoss = accum(tape, pcontLoss, distribution.BernoulliNLL(
			tape, d.pcont.Forward(tape, feat), batch.NonTerms[i+1]))
	}
	obsLoss = tape.Scale(obsLoss, 1/float64(L))
	rewardLoss = tape.Scale(rewardLoss, 1/float64(L-1))
	pcontLoss = tape.Scale(pcontLoss, 1/float64(L-1))

	loss := tape.Add(
		tape.Add(tape.Scale(klLoss, d.config.KLScale), obsLoss),
		tape.Add(rewardLoss, tape.Scale(pcontLoss, d.config.PcontScale)))

	if !floatutils.Finite(loss.Scalar()) {
		return nil, nil, nil, &NumericalError{
			Component: "world model",
			Loss:      loss.Scalar(),
			Iteration: d.iterations,
		}
	}

	scalars = map[string]float64{
		"model/kl":        klLoss.Scalar(),
		"model/obs":       obsLoss.Scalar(),
		"model/reward":    rewardLoss.Scalar(),
		"model/discount":  pcontLoss.Scalar(),
		"model/loss":      loss.Scalar(),
		"model/prior_ent": priorEnt.Scalar() / float64(L),
		"model/post_ent":  postEnt.Scalar() / float64(L),
	}

	if err := tape.Backward(loss); err != nil {
		return nil, nil, nil, fmt.Errorf("trainWorldModel: %v", err)
	}
	if err := d.modelSolver.Step(); err != nil {
		return nil, nil, nil, fmt.Errorf("trainWorldModel: %v", err)
	}

	seedDeter = mat.NewDense(B*(L-1), d.config.DeterSize, nil)
	seedStoch = mat.NewDense(B*(L-1), d.config.StochSize, nil)
	for i := 0; i < L-1; i++ {
		for b := 0; b < B; b++ {
			seedDeter.SetRow(i*B+b, posts[i].Deter.Value.RawRowView(b))
			seedStoch.SetRow(i*B+b, posts[i].Stoch.Value.RawRowView(b))
		}
	}
	return seedDeter, seedStoch, scalars, nil
}

// trainActorCritic imagines a rollout from the given seed states and
// performs one actor and one critic update on its TD(λ) returns.
func (d *Dreamer) trainActorCritic(seedDeter,
	seedStoch *mat.Dense) (map[string]float64, error) {
	c := d.config
	H := c.Horizon
	N, _ := seedDeter.Dims()

	// The actor update must not touch the world model, the critic, or
	// the critic's target: gradients flow through them to the actions,
	// but only the actor's parameters move.
	ta := network.NewTape()
	ta.Freeze(d.worldParams...)
	ta.Freeze(d.value.Params()...)
	ta.Freeze(d.target.Params()...)

	init := rssm.State{
		Deter: ta.Constant(seedDeter),
		Stoch: ta.Constant(seedStoch),
	}
	states, _, logProbs, entropies, err := d.model.RolloutImagination(ta,
		init, H, d.actor)
	if err != nil {
		return nil, fmt.Errorf("trainActorCritic: %v", err)
	}

	feats := make([]*network.Node, H+1)
	rewards := make([]*network.Node, H+1)
	values := make([]*network.Node, H+1)
	discounts := make([]*network.Node, H+1)
	for t := 0; t <= H; t++ {
		feats[t] = d.model.Features(ta, states[t])
		rewards[t] = d.reward.Forward(ta, feats[t])
		values[t] = d.target.Forward(ta, feats[t])
		discounts[t] = ta.Scale(
			ta.Sigmoid(d.pcont.Forward(ta, feats[t])), c.Discount)
	}

	targets, err := returns.Lambda(ta, rewards[:H], values[:H],
		discounts[:H], values[H], c.Lambda)
	if err != nil {
		return nil, fmt.Errorf("trainActorCritic: %v", err)
	}

	// Trajectory weights discount each step by the product of the
	// preceding continuation probabilities. Treated as constants in
	// both losses.
	weights := make([]*mat.Dense, H)
	ones := make([]float64, N)
	for i := range ones {
		ones[i] = 1
	}
	weights[0] = mat.NewDense(N, 1, ones)
	for t := 1; t < H; t++ {
		weights[t] = mat.NewDense(N, 1, nil)
		weights[t].MulElem(weights[t-1], discounts[t].Value)
	}

	var actorSum *network.Node
	for t := 0; t < H; t++ {
		var objective *network.Node
		if c.ActorGrad == Dynamics {
			objective = targets[t]
		} else {
			adv := mat.NewDense(N, 1, nil)
			adv.Sub(targets[t].Value, values[t].Value)
			objective = ta.Mul(logProbs[t], ta.Constant(adv))
		}

		term := ta.Add(objective,
			ta.Scale(entropies[t], c.ActorEntropyScale))
		weighted := ta.Mul(ta.Constant(weights[t]), term)
		actorSum = accum(ta, actorSum,
			ta.Scale(ta.SumAll(weighted), 1/float64(N)))
	}
	actorLoss := ta.Scale(actorSum, -1)

	if !floatutils.Finite(actorLoss.Scalar()) {
		return nil, &NumericalError{
			Component: "actor-critic",
			Loss:      actorLoss.Scalar(),
			Iteration: d.iterations,
		}
	}

	if err := ta.Backward(actorLoss); err != nil {
		return nil, fmt.Errorf("trainActorCritic: %v", err)
	}
	if err := d.actorSolver.Step(); err != nil {
		return nil, fmt.Errorf("trainActorCritic: %v", err)
	}

	// The critic regresses toward the return targets on a separate
	// tape, with states and targets detached.
	tb := network.NewTape()
	var criticSum *network.Node
	targetMean := 0.0
	for t := 0; t < H; t++ {
		v := d.value.Forward(tb, tb.Constant(feats[t].Value))
		residual := tb.Sub(tb.Constant(targets[t].Value), v)
		weighted := tb.Mul(tb.Constant(weights[t]), tb.Square(residual))
		criticSum = accum(tb, criticSum,
			tb.Scale(tb.SumAll(weighted), 0.5/float64(N)))

		targetMean += floatutils.Mean(targets[t].Value.RawMatrix().Data...)
	}
	targetMean /= float64(H)

	if !floatutils.Finite(criticSum.Scalar()) {
		return nil, &NumericalError{
			Component: "actor-critic",
			Loss:      criticSum.Scalar(),
			Iteration: d.iterations,
		}
	}

	if err := tb.Backward(criticSum); err != nil {
		return nil, fmt.Errorf("trainActorCritic: %v", err)
	}
	if err := d.valueSolver.Step(); err != nil {
		return nil, fmt.Errorf("trainActorCritic: %v", err)
	}

	return map[string]float64{
		"actor/loss":    actorLoss.Scalar(),
		"critic/loss":   criticSum.Scalar(),
		"critic/target": targetMean,
	}, nil
}

// accum adds v into a running sum of tape nodes
func accum(t *network.Tape, sum, v *network.Node) *network.Node {
	if sum == nil {
		return v
	}
	return t.Add(sum, v)
}
