package initwfn

import (
	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/latentrl/dreamer/network"
)

// UniformConfig implements a configuration of uniform random weight
// initialization within [Low, High).
type UniformConfig struct {
	Low  float64
	High float64
	Seed uint64
}

// NewUniform returns a new uniform random weight initializer
func NewUniform(low, high float64, seed uint64) (*InitWFn, error) {
	config := UniformConfig{
		Low:  low,
		High: high,
		Seed: seed,
	}

	return newInitWFn(config)
}

// Type returns the type of initialization algorithm described by the
// configuration.
func (u UniformConfig) Type() Type {
	return Uniform
}

// Create returns the weight initialization algorithm described by the
// configuration
func (u UniformConfig) Create() network.InitFn {
	dist := distuv.Uniform{
		Min: u.Low,
		Max: u.High,
		Src: rand.NewSource(u.Seed),
	}
	return func(rows, cols int) []float64 {
		data := make([]float64, rows*cols)
		for i := range data {
			data[i] = dist.Rand()
		}
		return data
	}
}

// GaussianConfig implements a configuration of Gaussian random weight
// initialization.
type GaussianConfig struct {
	Mean   float64
	StdDev float64
	Seed   uint64
}

// NewGaussian returns a new Gaussian random weight initializer
func NewGaussian(mean, stddev float64, seed uint64) (*InitWFn, error) {
	config := GaussianConfig{
		Mean:   mean,
		StdDev: stddev,
		Seed:   seed,
	}

	return newInitWFn(config)
}

// Type returns the type of initialization algorithm described by the
// configuration.
func (g GaussianConfig) Type() Type {
	return Gaussian
}

// Create returns the weight initialization algorithm described by the
// configuration
func (g GaussianConfig) Create() network.InitFn {
	dist := distuv.Normal{
		Mu:    g.Mean,
		Sigma: g.StdDev,
		Src:   rand.NewSource(g.Seed),
	}
	return func(rows, cols int) []float64 {
		data := make([]float64, rows*cols)
		for i := range data {
			data[i] = dist.Rand()
		}
		return data
	}
}
