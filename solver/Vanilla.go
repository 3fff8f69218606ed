package solver

import (
	"fmt"

	"github.com/latentrl/dreamer/network"
)

// VanillaConfig describes a configuration of the vanilla stochastic
// gradient descent solver
type VanillaConfig struct {
	StepSize float64
	ClipNorm float64 // Global gradient norm clip; <= 0 disables
}

// NewVanilla returns a new vanilla gradient descent solver
func NewVanilla(stepSize, clipNorm float64,
	params []*network.Param) (*VanillaSolver, error) {
	config := VanillaConfig{StepSize: stepSize, ClipNorm: clipNorm}
	solver, err := config.Create(params)
	if err != nil {
		return nil, err
	}
	return solver.(*VanillaSolver), nil
}

// Create returns a new vanilla SGD solver as described by the
// VanillaConfig
func (v VanillaConfig) Create(params []*network.Param) (Solver, error) {
	if v.StepSize <= 0 {
		return nil, fmt.Errorf("create: step size must be positive, "+
			"got %v", v.StepSize)
	}
	if len(params) == 0 {
		return nil, fmt.Errorf("create: no parameters to optimize")
	}
	return &VanillaSolver{config: v, params: params}, nil
}

// ValidType returns if the given solver type is a valid type to be
// created with this config.
func (v VanillaConfig) ValidType(t Type) bool {
	return t == Vanilla
}

// VanillaSolver implements plain stochastic gradient descent
type VanillaSolver struct {
	config VanillaConfig
	params []*network.Param
}

// Step clips the accumulated gradients, applies one gradient descent
// update to every parameter, and zeroes the gradients.
func (v *VanillaSolver) Step() error {
	clipGradNorm(v.params, v.config.ClipNorm)

	for _, p := range v.params {
		value := p.Value.RawMatrix().Data
		grad := p.Grad.RawMatrix().Data
		for j := range value {
			value[j] -= v.config.StepSize * grad[j]
		}
	}

	v.ZeroGrad()
	return nil
}

// ZeroGrad zeroes the gradients of all parameters
func (v *VanillaSolver) ZeroGrad() {
	for _, p := range v.params {
		p.ZeroGrad()
	}
}
