package initwfn

import "github.com/latentrl/dreamer/network"

// ZeroesConfig implements a configuration of zero weight
// initialization.
type ZeroesConfig struct{}

// NewZeroes returns a new zero weight initializer
func NewZeroes() (*InitWFn, error) {
	return newInitWFn(ZeroesConfig{})
}

// Type returns the type of initialization algorithm described by the
// configuration.
func (z ZeroesConfig) Type() Type {
	return Zeroes
}

// Create returns the weight initialization algorithm described by the
// configuration
func (z ZeroesConfig) Create() network.InitFn {
	return func(rows, cols int) []float64 {
		return make([]float64, rows*cols)
	}
}
