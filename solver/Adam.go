package solver

import (
	"bytes"
	"encoding/gob"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/latentrl/dreamer/network"
)

// AdamConfig describes a configuration of the Adam solver
type AdamConfig struct {
	StepSize float64
	Epsilon  float64 // Smoothing factor
	Beta1    float64
	Beta2    float64
	ClipNorm float64 // Global gradient norm clip; <= 0 disables
}

// NewDefaultAdam returns a new Adam solver with default hyperparameters
// over the given parameters
func NewDefaultAdam(stepSize float64,
	params []*network.Param) (*AdamSolver, error) {
	return NewAdam(stepSize, 1e-8, 0.9, 0.999, 0, params)
}

// NewAdam returns a new Adam solver
func NewAdam(stepSize, epsilon, beta1, beta2, clipNorm float64,
	params []*network.Param) (*AdamSolver, error) {
	config := AdamConfig{
		StepSize: stepSize,
		Epsilon:  epsilon,
		Beta1:    beta1,
		Beta2:    beta2,
		ClipNorm: clipNorm,
	}
	solver, err := config.Create(params)
	if err != nil {
		return nil, err
	}
	return solver.(*AdamSolver), nil
}

// Create returns a new Adam solver as described by the AdamConfig
func (a AdamConfig) Create(params []*network.Param) (Solver, error) {
	if a.StepSize <= 0 {
		return nil, fmt.Errorf("create: step size must be positive, "+
			"got %v", a.StepSize)
	}
	if len(params) == 0 {
		return nil, fmt.Errorf("create: no parameters to optimize")
	}

	m := make([]*mat.Dense, len(params))
	v := make([]*mat.Dense, len(params))
	for i, p := range params {
		rows, cols := p.Dims()
		m[i] = mat.NewDense(rows, cols, nil)
		v[i] = mat.NewDense(rows, cols, nil)
	}

	return &AdamSolver{
		config: a,
		params: params,
		m:      m,
		v:      v,
	}, nil
}

// ValidType returns if the given solver type is a valid type to be
// created with this config.
func (a AdamConfig) ValidType(t Type) bool {
	return t == Adam
}

// AdamSolver implements the Adam optimization algorithm with optional
// global gradient norm clipping
type AdamSolver struct {
	config AdamConfig
	params []*network.Param
	m      []*mat.Dense
	v      []*mat.Dense
	step   int
}

// Step clips the accumulated gradients, applies one Adam update to
// every parameter, and zeroes the gradients.
func (a *AdamSolver) Step() error {
	clipGradNorm(a.params, a.config.ClipNorm)

	a.step++
	correction1 := 1 - math.Pow(a.config.Beta1, float64(a.step))
	correction2 := 1 - math.Pow(a.config.Beta2, float64(a.step))

	for i, p := range a.params {
		value := p.Value.RawMatrix().Data
		grad := p.Grad.RawMatrix().Data
		m := a.m[i].RawMatrix().Data
		v := a.v[i].RawMatrix().Data

		for j := range value {
			g := grad[j]
			m[j] = a.config.Beta1*m[j] + (1-a.config.Beta1)*g
			v[j] = a.config.Beta2*v[j] + (1-a.config.Beta2)*g*g

			mHat := m[j] / correction1
			vHat := v[j] / correction2
			value[j] -= a.config.StepSize * mHat /
				(math.Sqrt(vHat) + a.config.Epsilon)
		}
	}

	a.ZeroGrad()
	return nil
}

// ZeroGrad zeroes the gradients of all parameters
func (a *AdamSolver) ZeroGrad() {
	for _, p := range a.params {
		p.ZeroGrad()
	}
}

// GobEncode implements the gob.GobEncoder interface, serializing the
// solver's moment estimates and step count
func (a *AdamSolver) GobEncode() ([]byte, error) {
	var buf bytes.Buffer
	enc := gob.NewEncoder(&buf)

	if err := enc.Encode(a.step); err != nil {
		return nil, fmt.Errorf("gobencode: could not encode step: %v", err)
	}
	for i := range a.params {
		if err := enc.Encode(a.m[i].RawMatrix().Data); err != nil {
			return nil, fmt.Errorf("gobencode: could not encode first "+
				"moment %v: %v", i, err)
		}
		if err := enc.Encode(a.v[i].RawMatrix().Data); err != nil {
			return nil, fmt.Errorf("gobencode: could not encode second "+
				"moment %v: %v", i, err)
		}
	}
	return buf.Bytes(), nil
}

// GobDecode implements the gob.GobDecoder interface. The solver must
// already be constructed over the same parameter shapes that were
// encoded.
func (a *AdamSolver) GobDecode(in []byte) error {
	dec := gob.NewDecoder(bytes.NewReader(in))

	if err := dec.Decode(&a.step); err != nil {
		return fmt.Errorf("gobdecode: could not decode step: %v", err)
	}
	for i, p := range a.params {
		rows, cols := p.Dims()

		var mData []float64
		if err := dec.Decode(&mData); err != nil {
			return fmt.Errorf("gobdecode: could not decode first "+
				"moment %v: %v", i, err)
		}
		var vData []float64
		if err := dec.Decode(&vData); err != nil {
			return fmt.Errorf("gobdecode: could not decode second "+
				"moment %v: %v", i, err)
		}
		if len(mData) != rows*cols || len(vData) != rows*cols {
			return fmt.Errorf("gobdecode: moment %v does not match "+
				"parameter shape (%v x %v)", i, rows, cols)
		}
		a.m[i] = mat.NewDense(rows, cols, mData)
		a.v[i] = mat.NewDense(rows, cols, vData)
	}
	return nil
}
