// Package solver implements gradient-based optimizers over network
// parameters behind JSON-serializable configurations.
package solver

import (
	"encoding/json"
	"fmt"
	"math"
	"reflect"

	"github.com/latentrl/dreamer/network"
)

// Type describes different types of solvers that are available
type Type string

// Available solver types
const (
	Adam    Type = "Adam"
	Vanilla Type = "Vanilla"
)

// Solver updates a fixed set of parameters from their accumulated
// gradients. Step consumes and zeroes the gradients.
type Solver interface {
	Step() error
	ZeroGrad()
}

// Config implements a solver configuration and can be used to create
// the solvers it describes.
type Config interface {
	// Create returns the solver that the Config describes, operating
	// over the given parameters
	Create(params []*network.Param) (Solver, error)

	// ValidType returns whether a specific solver type can be created
	// with the Config
	ValidType(Type) bool
}

// TypedConfig wraps solver Configs so that they can be JSON marshalled
// and unmarshalled.
type TypedConfig struct {
	Type
	Config
}

// NewTypedConfig returns a new TypedConfig with the given type and
// configuration.
func NewTypedConfig(t Type, c Config) (*TypedConfig, error) {
	if !c.ValidType(t) {
		return nil, fmt.Errorf("newtypedconfig: invalid solver type %v for "+
			"configuration %T", t, c)
	}
	return &TypedConfig{Type: t, Config: c}, nil
}

// UnmarshalJSON implements the json.Unmarshaller interface
func (s *TypedConfig) UnmarshalJSON(data []byte) error {
	config, typeName, err := unmarshalConfig(
		data,
		"Type",
		"Config",
		map[string]reflect.Type{
			string(Vanilla): reflect.TypeOf(VanillaConfig{}),
			string(Adam):    reflect.TypeOf(AdamConfig{}),
		})
	if err != nil {
		return err
	}

	s.Type = typeName
	s.Config = config

	return nil
}

// unmarshalConfig uses reflection to unmarshall a Config into its
// concrete type. Both the Config and its Type are returned.
func unmarshalConfig(data []byte, typeJsonField, valueJsonField string,
	customTypes map[string]reflect.Type) (Config, Type, error) {
	m := map[string]interface{}{}
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, "", err
	}

	typeName := m[typeJsonField].(string)
	var value Config
	if ty, found := customTypes[typeName]; found {
		value = reflect.New(ty).Interface().(Config)
	}

	valueBytes, err := json.Marshal(m[valueJsonField])
	if err != nil {
		return nil, "", err
	}

	if err = json.Unmarshal(valueBytes, &value); err != nil {
		return nil, "", err
	}
	concreteValue := reflect.ValueOf(value).Elem().Interface().(Config)

	return concreteValue, Type(typeName), nil
}

// clipGradNorm rescales the gradients of params in place so that their
// global L2 norm does not exceed maxNorm. A maxNorm <= 0 disables
// clipping.
func clipGradNorm(params []*network.Param, maxNorm float64) {
	if maxNorm <= 0 {
		return
	}

	total := 0.0
	for _, p := range params {
		data := p.Grad.RawMatrix().Data
		for _, g := range data {
			total += g * g
		}
	}
	total = math.Sqrt(total)
	if total <= maxNorm {
		return
	}

	scale := maxNorm / total
	for _, p := range params {
		p.Grad.Scale(scale, p.Grad)
	}
}
