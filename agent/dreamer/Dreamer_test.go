package dreamer

import (
	"math"
	"path/filepath"
	"testing"

	"gonum.org/v1/gonum/mat"

	"github.com/latentrl/dreamer/environment/classiccontrol/cartpole"
	"github.com/latentrl/dreamer/initwfn"
	"github.com/latentrl/dreamer/network"
	"github.com/latentrl/dreamer/replay"
	ts "github.com/latentrl/dreamer/timestep"
	"github.com/latentrl/dreamer/utils/floatutils"
)

// newTestConfig returns a small configuration that trains quickly on
// low-dimensional observations
func newTestConfig(t *testing.T, seed uint64) Config {
	t.Helper()

	init, err := initwfn.NewGlorotU(1.0, seed)
	if err != nil {
		t.Fatal(err)
	}

	return Config{
		InitWFn: init,

		BufferCapacity:   500,
		SeedEpisodes:     1,
		TrainEvery:       10,
		CollectIntervals: 1,
		BatchSize:        2,
		SeqLen:           4,

		EmbeddingSize: 6,
		NodeSize:      8,
		HiddenLayers:  1,
		DeterSize:     6,
		StochSize:     6,
		ClassSize:     3,
		CategorySize:  2,

		KLScale:        0.1,
		KLBalanceScale: 0.8,
		PcontScale:     10.0,

		Horizon:              3,
		Discount:             0.99,
		Lambda:               0.95,
		ActorGrad:            Reinforce,
		ActorEntropyScale:    1e-3,
		UseFixedTarget:       true,
		TargetUpdateInterval: 2,

		ExplNoise: 0.4,
		ExplMin:   0.05,
		ExplDecay: 100,

		ModelLR:      2e-4,
		ActorLR:      4e-5,
		ValueLR:      1e-4,
		GradClipNorm: 100.0,
	}
}

func newTestAgent(t *testing.T, seed uint64) *Dreamer {
	t.Helper()

	e, err := cartpole.New(20, seed)
	if err != nil {
		t.Fatal(err)
	}
	d, err := New(e, newTestConfig(t, seed), seed)
	if err != nil {
		t.Fatal(err)
	}
	return d
}

// captureLogger records every logged scalar
type captureLogger struct {
	scalars []map[string]float64
}

func (c *captureLogger) Log(scalars map[string]float64, step int) {
	copied := make(map[string]float64, len(scalars))
	for k, v := range scalars {
		copied[k] = v
	}
	c.scalars = append(c.scalars, copied)
}

func (c *captureLogger) Close() error { return nil }

// runEpisodes interacts with e for the given number of episodes,
// calling the agent's Step after every environment step
func runEpisodes(t *testing.T, d *Dreamer, e *cartpole.Cartpole,
	episodes int) {
	t.Helper()

	for ep := 0; ep < episodes; ep++ {
		step, err := e.Reset()
		if err != nil {
			t.Fatal(err)
		}
		if err := d.ObserveFirst(step); err != nil {
			t.Fatal(err)
		}

		for !step.Last() {
			action := d.SelectAction(step)
			next, _, err := e.Step(action)
			if err != nil {
				t.Fatal(err)
			}
			if err := d.Observe(action, next); err != nil {
				t.Fatal(err)
			}
			if err := d.Step(); err != nil {
				t.Fatal(err)
			}
			step = next
		}
	}
}

func TestConfigValidate(t *testing.T) {
	valid := newTestConfig(t, 1)
	if err := valid.Validate(); err != nil {
		t.Fatalf("valid configuration was rejected: %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"no initializer", func(c *Config) { c.InitWFn = nil }},
		{"mismatched stochastic size", func(c *Config) { c.StochSize = 7 }},
		{"non-positive batch size", func(c *Config) { c.BatchSize = 0 }},
		{"short sequence", func(c *Config) {
			c.SeqLen = 1
		}},
		{"unknown estimator", func(c *Config) { c.ActorGrad = "policy" }},
		{"discount out of range", func(c *Config) { c.Discount = 1.5 }},
		{"non-positive learning rate", func(c *Config) { c.ModelLR = 0 }},
		{"non-positive target interval", func(c *Config) {
			c.TargetUpdateInterval = 0
		}},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			config := newTestConfig(t, 1)
			test.mutate(&config)
			if err := config.Validate(); err == nil {
				t.Error("invalid configuration was accepted")
			}
		})
	}
}

func TestObserveFirstRejectsNonFirstSteps(t *testing.T) {
	d := newTestAgent(t, 2)

	e, err := cartpole.New(20, 2)
	if err != nil {
		t.Fatal(err)
	}
	step, err := e.Reset()
	if err != nil {
		t.Fatal(err)
	}
	step, _, err = e.Step(mat.NewVecDense(1, []float64{1}))
	if err != nil {
		t.Fatal(err)
	}

	if err := d.ObserveFirst(step); err == nil {
		t.Error("non-first timestep was accepted")
	}
}

func TestSelectActionReturnsLegalActions(t *testing.T) {
	d := newTestAgent(t, 3)

	e, err := cartpole.New(20, 3)
	if err != nil {
		t.Fatal(err)
	}
	step, err := e.Reset()
	if err != nil {
		t.Fatal(err)
	}
	if err := d.ObserveFirst(step); err != nil {
		t.Fatal(err)
	}

	for i := 0; i < 20; i++ {
		action := d.SelectAction(step)
		idx := int(action.AtVec(0))
		if idx < 0 || idx > 2 {
			t.Fatalf("illegal action %v", idx)
		}
	}

	// Evaluation mode is greedy and therefore deterministic for a fixed
	// observation
	d.Eval()
	first := d.SelectAction(step).AtVec(0)
	for i := 0; i < 5; i++ {
		if a := d.SelectAction(step).AtVec(0); a != first {
			t.Fatal("evaluation actions are not deterministic")
		}
	}
}

func TestEvalModeDoesNotCollect(t *testing.T) {
	d := newTestAgent(t, 4)
	d.Eval()

	e, err := cartpole.New(20, 4)
	if err != nil {
		t.Fatal(err)
	}
	step, err := e.Reset()
	if err != nil {
		t.Fatal(err)
	}
	if err := d.ObserveFirst(step); err != nil {
		t.Fatal(err)
	}

	action := d.SelectAction(step)
	next, _, err := e.Step(action)
	if err != nil {
		t.Fatal(err)
	}
	if err := d.Observe(action, next); err != nil {
		t.Fatal(err)
	}

	if n := d.buffer.Transitions(); n != 0 {
		t.Errorf("evaluation stored %v transitions", n)
	}
}

func TestStepSkipsDuringSeedPhase(t *testing.T) {
	d := newTestAgent(t, 5)
	logger := &captureLogger{}
	d.SetLogger(logger)

	// No episode has finished, so the agent is still seeding
	if err := d.Step(); err != nil {
		t.Fatal(err)
	}
	if d.iterations != 0 {
		t.Errorf("training ran during the seed phase, %v iterations",
			d.iterations)
	}
	if len(logger.scalars) != 0 {
		t.Error("training metrics were logged during the seed phase")
	}
}

func TestTrainingProducesFiniteLosses(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping training run in short mode")
	}

	d := newTestAgent(t, 6)
	logger := &captureLogger{}
	d.SetLogger(logger)

	e, err := cartpole.New(20, 6)
	if err != nil {
		t.Fatal(err)
	}
	runEpisodes(t, d, e, 4)

	if d.iterations == 0 {
		t.Fatal("no training iterations ran")
	}

	trained := 0
	for _, scalars := range logger.scalars {
		loss, ok := scalars["model/loss"]
		if !ok {
			continue
		}
		trained++

		for _, name := range []string{"model/kl", "model/obs",
			"model/reward", "model/discount", "model/prior_ent",
			"model/post_ent", "actor/loss", "critic/loss"} {
			if _, ok := scalars[name]; !ok {
				t.Fatalf("metric %v was not logged", name)
			}
		}
		if math.IsNaN(loss) || math.IsInf(loss, 0) {
			t.Fatalf("world model loss is not finite: %v", loss)
		}
	}
	if trained == 0 {
		t.Fatal("no training metrics were logged")
	}
}

func TestWorldModelReconstructsFinalObservation(t *testing.T) {
	d := newTestAgent(t, 12)

	// Only the final sequence step carries a nonzero observation, so
	// the reconstruction loss is large only if the final posterior
	// state is decoded too.
	const L, B = 4, 2
	batch := &replay.Batch{
		Obs:      make([]*mat.Dense, L),
		Actions:  make([]*mat.Dense, L),
		Rewards:  make([]*mat.Dense, L),
		NonTerms: make([]*mat.Dense, L),
	}
	for i := 0; i < L; i++ {
		batch.Obs[i] = mat.NewDense(B, d.obsSize, nil)
		batch.Actions[i] = mat.NewDense(B, d.numActions, nil)
		batch.Rewards[i] = mat.NewDense(B, 1, nil)
		batch.NonTerms[i] = mat.NewDense(B, 1, nil)
		for b := 0; b < B; b++ {
			batch.Actions[i].Set(b, 0, 1)
			batch.NonTerms[i].Set(b, 0, 1)
		}
	}
	for b := 0; b < B; b++ {
		for j := 0; j < d.obsSize; j++ {
			batch.Obs[L-1].Set(b, j, 50)
		}
	}

	_, _, scalars, err := d.trainWorldModel(batch)
	if err != nil {
		t.Fatal(err)
	}
	if scalars["model/obs"] < 100 {
		t.Errorf("final observation does not contribute to the "+
			"reconstruction loss: %v", scalars["model/obs"])
	}
}

func TestWorldModelLossDecreasesOnFixedData(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping training run in short mode")
	}

	config := newTestConfig(t, 13)
	config.ModelLR = 1e-2

	e, err := cartpole.New(20, 13)
	if err != nil {
		t.Fatal(err)
	}
	d, err := New(e, config, 13)
	if err != nil {
		t.Fatal(err)
	}

	// A deterministic episode of null observations under a fixed
	// action gives the model an exactly learnable target.
	obs := mat.NewVecDense(d.obsSize, nil)
	action := mat.NewVecDense(d.numActions, nil)
	action.SetVec(0, 1)
	for i := 0; i < 12; i++ {
		err := d.buffer.Store(ts.Transition{
			Obs:     obs,
			Action:  action,
			Reward:  0,
			NonTerm: 1,
		})
		if err != nil {
			t.Fatal(err)
		}
	}
	if err := d.buffer.EndEpisode(obs); err != nil {
		t.Fatal(err)
	}

	const iters = 40
	losses := make([]float64, iters)
	obsLosses := make([]float64, iters)
	for i := 0; i < iters; i++ {
		batch, err := d.buffer.Sample(config.BatchSize, config.SeqLen)
		if err != nil {
			t.Fatal(err)
		}
		_, _, scalars, err := d.trainWorldModel(batch)
		if err != nil {
			t.Fatal(err)
		}
		losses[i] = scalars["model/loss"]
		obsLosses[i] = scalars["model/obs"]
	}

	// Averaged endpoints, since Adam oscillates near a minimum
	first := floatutils.Mean(losses[:3]...)
	last := floatutils.Mean(losses[iters-3:]...)
	if last >= first {
		t.Errorf("world model loss did not decrease "+
			"\n\twant(< %v)\n\thave(%v)", first, last)
	}

	firstObs := floatutils.Mean(obsLosses[:3]...)
	lastObs := floatutils.Mean(obsLosses[iters-3:]...)
	if lastObs >= firstObs {
		t.Errorf("null observations were not learned "+
			"\n\twant(< %v)\n\thave(%v)", firstObs, lastObs)
	}
}

func TestCheckpointRoundTrip(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping training run in short mode")
	}

	d := newTestAgent(t, 7)
	e, err := cartpole.New(20, 7)
	if err != nil {
		t.Fatal(err)
	}
	runEpisodes(t, d, e, 3)
	if d.iterations == 0 {
		t.Fatal("no training iterations ran")
	}

	filename := filepath.Join(t.TempDir(), "checkpoints", "agent.bin")
	if err := d.Save(filename); err != nil {
		t.Fatal(err)
	}

	// A freshly seeded agent has different parameters until restored
	restored := newTestAgent(t, 8)
	if err := restored.Restore(filename); err != nil {
		t.Fatal(err)
	}

	if restored.frames != d.frames {
		t.Errorf("invalid frame count \n\twant(%v)\n\thave(%v)", d.frames,
			restored.frames)
	}
	if restored.iterations != d.iterations {
		t.Errorf("invalid iteration count \n\twant(%v)\n\thave(%v)",
			d.iterations, restored.iterations)
	}

	want := d.allParams()
	have := restored.allParams()
	if len(want) != len(have) {
		t.Fatalf("invalid parameter count \n\twant(%v)\n\thave(%v)",
			len(want), len(have))
	}
	for i := range want {
		if !mat.Equal(want[i].Value, have[i].Value) {
			t.Errorf("parameter %v was not restored", want[i].Name)
		}
	}
}

func TestSameSeedAgentsHaveIdenticalParameters(t *testing.T) {
	newAgent := func() *Dreamer {
		e, err := cartpole.New(20, 11)
		if err != nil {
			t.Fatal(err)
		}
		d, err := New(e, newTestConfig(t, 11), 11)
		if err != nil {
			t.Fatal(err)
		}
		return d
	}

	want := newAgent().allParams()
	have := newAgent().allParams()
	if len(want) != len(have) {
		t.Fatalf("invalid parameter count \n\twant(%v)\n\thave(%v)",
			len(want), len(have))
	}
	for i := range want {
		if want[i].Name != have[i].Name {
			t.Fatalf("invalid parameter order \n\twant(%v)\n\thave(%v)",
				want[i].Name, have[i].Name)
		}
		if !mat.Equal(want[i].Value, have[i].Value) {
			t.Errorf("parameter %v differs between same-seed agents",
				want[i].Name)
		}
	}
}

func TestTargetValueHeadIsIndependent(t *testing.T) {
	d := newTestAgent(t, 9)

	valueParams := d.value.Params()
	targetParams := d.target.Params()
	for i := range valueParams {
		if valueParams[i] == targetParams[i] {
			t.Fatal("target value head aliases the online value head")
		}
		if !mat.Equal(valueParams[i].Value, targetParams[i].Value) {
			t.Error("target value head was not synced at construction")
		}
	}

	// Moving the online head must not move the target
	valueParams[0].Value.Set(0, 0, valueParams[0].Value.At(0, 0)+1)
	if mat.Equal(valueParams[0].Value, targetParams[0].Value) {
		t.Error("target value head shares storage with the online head")
	}

	if err := network.SetParams(targetParams, valueParams); err != nil {
		t.Fatal(err)
	}
	if !mat.Equal(valueParams[0].Value, targetParams[0].Value) {
		t.Error("target value head was not synced")
	}
}
