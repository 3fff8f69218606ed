package initwfn

import (
	"math"

	"golang.org/x/exp/rand"

	"github.com/latentrl/dreamer/network"
)

// GlorotUConfig implements a configuration of the Glorot Uniform
// initialization algorithm.
type GlorotUConfig struct {
	Gain float64
	Seed uint64
}

// NewGlorotU returns a new Glorot Uniform weight initializer
func NewGlorotU(gain float64, seed uint64) (*InitWFn, error) {
	config := GlorotUConfig{
		Gain: gain,
		Seed: seed,
	}

	return newInitWFn(config)
}

// Type returns the type of initialization algorithm described by
// the configuration.
func (g GlorotUConfig) Type() Type {
	return GlorotU
}

// Create returns the weight initialization algorithm described by the
// configuration
func (g GlorotUConfig) Create() network.InitFn {
	rng := rand.New(rand.NewSource(g.Seed))
	return func(rows, cols int) []float64 {
		limit := g.Gain * math.Sqrt(6.0/float64(rows+cols))
		data := make([]float64, rows*cols)
		for i := range data {
			data[i] = (2*rng.Float64() - 1) * limit
		}
		return data
	}
}

// GlorotNConfig implements a configuration of the Glorot Normal
// initialization algorithm.
type GlorotNConfig struct {
	Gain float64
	Seed uint64
}

// NewGlorotN returns a new Glorot Normal weight initializer.
func NewGlorotN(gain float64, seed uint64) (*InitWFn, error) {
	config := GlorotNConfig{
		Gain: gain,
		Seed: seed,
	}

	return newInitWFn(config)
}

// Type returns the type of initialization algorithm described by the
// configuration.
func (g GlorotNConfig) Type() Type {
	return GlorotN
}

// Create returns the weight initialization algorithm described by the
// configuration
func (g GlorotNConfig) Create() network.InitFn {
	rng := rand.New(rand.NewSource(g.Seed))
	return func(rows, cols int) []float64 {
		std := g.Gain * math.Sqrt(2.0/float64(rows+cols))
		data := make([]float64, rows*cols)
		for i := range data {
			data[i] = rng.NormFloat64() * std
		}
		return data
	}
}
