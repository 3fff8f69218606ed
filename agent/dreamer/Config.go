package dreamer

import (
	"fmt"

	"github.com/latentrl/dreamer/agent"
	"github.com/latentrl/dreamer/environment"
	"github.com/latentrl/dreamer/initwfn"
)

// Gradient estimators for the actor update
const (
	// Dynamics backpropagates the return estimate through the imagined
	// trajectory and the straight-through action samples
	Dynamics string = "dynamics"

	// Reinforce uses the score-function estimator with the value
	// baseline
	Reinforce string = "reinforce"
)

// Config implements a configuration for a Dreamer agent
type Config struct {
	InitWFn *initwfn.InitWFn

	// Data collection
	BufferCapacity   int
	SeedEpisodes     int // Episodes of random actions before training
	TrainEvery       int // Environment frames between training cycles
	CollectIntervals int // Training iterations per cycle
	BatchSize        int
	SeqLen           int

	// World model sizes
	EmbeddingSize int
	NodeSize      int // Hidden layer width of every network
	HiddenLayers  int // Hidden layers of heads, actor, and critic
	DeterSize     int
	StochSize     int // Must equal CategorySize * ClassSize
	ClassSize     int
	CategorySize  int

	// World model loss
	KLScale        float64
	KLBalanceScale float64
	PcontScale     float64

	// Actor-critic
	Horizon              int
	Discount             float64
	Lambda               float64
	ActorGrad            string // Dynamics or Reinforce
	ActorEntropyScale    float64
	UseFixedTarget       bool
	TargetUpdateInterval int // Training iterations between target syncs

	// Exploration noise for action selection, annealed from ExplNoise
	// to ExplMin over ExplDecay environment frames
	ExplNoise float64
	ExplMin   float64
	ExplDecay float64

	// Optimization
	ModelLR      float64
	ActorLR      float64
	ValueLR      float64
	GradClipNorm float64
}

// NewDefaultConfig returns a Config with default hyperparameters for
// low-dimensional observations, initializing weights with seed.
func NewDefaultConfig(seed uint64) (Config, error) {
	init, err := initwfn.NewGlorotU(1.0, seed)
	if err != nil {
		return Config{}, fmt.Errorf("newDefaultConfig: %v", err)
	}

	return Config{
		InitWFn: init,

		BufferCapacity:   100_000,
		SeedEpisodes:     5,
		TrainEvery:       50,
		CollectIntervals: 5,
		BatchSize:        50,
		SeqLen:           50,

		EmbeddingSize: 100,
		NodeSize:      100,
		HiddenLayers:  2,
		DeterSize:     100,
		StochSize:     20 * 20,
		ClassSize:     20,
		CategorySize:  20,

		KLScale:        0.1,
		KLBalanceScale: 0.8,
		PcontScale:     10.0,

		Horizon:              10,
		Discount:             0.99,
		Lambda:               0.95,
		ActorGrad:            Reinforce,
		ActorEntropyScale:    1e-3,
		UseFixedTarget:       true,
		TargetUpdateInterval: 100,

		ExplNoise: 0.4,
		ExplMin:   0.05,
		ExplDecay: 7_000,

		ModelLR:      2e-4,
		ActorLR:      4e-5,
		ValueLR:      1e-4,
		GradClipNorm: 100.0,
	}, nil
}

// Validate returns an error describing whether or not the
// configuration is valid
func (c Config) Validate() error {
	if c.InitWFn == nil {
		return fmt.Errorf("validate: no weight initializer given")
	}
	if c.StochSize != c.CategorySize*c.ClassSize {
		return fmt.Errorf("validate: invalid stochastic size "+
			"\n\twant(%v)\n\thave(%v)", c.CategorySize*c.ClassSize,
			c.StochSize)
	}

	positive := map[string]int{
		"buffer capacity":    c.BufferCapacity,
		"seed episodes":      c.SeedEpisodes,
		"train every":        c.TrainEvery,
		"collect intervals":  c.CollectIntervals,
		"batch size":         c.BatchSize,
		"embedding size":     c.EmbeddingSize,
		"node size":          c.NodeSize,
		"hidden layers":      c.HiddenLayers,
		"deterministic size": c.DeterSize,
		"class size":         c.ClassSize,
		"category size":      c.CategorySize,
		"horizon":            c.Horizon,
	}
	for name, value := range positive {
		if value <= 0 {
			return fmt.Errorf("validate: %v must be positive, got %v",
				name, value)
		}
	}

	// Heads are trained on all but the final sequence step, so at
	// least two steps are needed
	if c.SeqLen < 2 {
		return fmt.Errorf("validate: sequence length must be at least "+
			"2, got %v", c.SeqLen)
	}

	if c.ActorGrad != Dynamics && c.ActorGrad != Reinforce {
		return fmt.Errorf("validate: unknown actor gradient estimator "+
			"%q", c.ActorGrad)
	}

	unit := map[string]float64{
		"discount":         c.Discount,
		"lambda":           c.Lambda,
		"KL balance scale": c.KLBalanceScale,
	}
	for name, value := range unit {
		if value < 0 || value > 1 {
			return fmt.Errorf("validate: %v must be in [0, 1], got %v",
				name, value)
		}
	}

	if c.ModelLR <= 0 || c.ActorLR <= 0 || c.ValueLR <= 0 {
		return fmt.Errorf("validate: learning rates must be positive, "+
			"got (%v, %v, %v)", c.ModelLR, c.ActorLR, c.ValueLR)
	}
	if c.UseFixedTarget && c.TargetUpdateInterval <= 0 {
		return fmt.Errorf("validate: target update interval must be "+
			"positive, got %v", c.TargetUpdateInterval)
	}
	return nil
}

// CreateAgent creates a new Dreamer agent in the given environment
func (c Config) CreateAgent(e environment.Environment,
	seed uint64) (agent.Agent, error) {
	return New(e, c, seed)
}
