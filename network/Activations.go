package network

import (
	"fmt"
)

type activationType string

const (
	relu     activationType = "relu"
	elu      activationType = "elu"
	tanh     activationType = "tanh"
	identity activationType = "identity"
)

// Activation represents an activation function type
type Activation struct {
	activationType
	f func(t *Tape, x *Node) *Node
}

// fwd performs the forward pass of an Activation
func (a *Activation) fwd(t *Tape, x *Node) *Node {
	return a.f(t, x)
}

// String implements the Stringer interface
func (a *Activation) String() string {
	return string(a.activationType)
}

// IsIdentity returns whether or not the Activation is the identity
// function.
func (a *Activation) IsIdentity() bool {
	return a.activationType == identity
}

// GobEncode implements the GobEncoder interface
func (a *Activation) GobEncode() ([]byte, error) {
	return []byte(a.activationType), nil
}

// GobDecode implements the GobDecoder interface
func (a *Activation) GobDecode(encoded []byte) error {
	switch activationType(encoded) {
	case relu:
		*a = *ReLU()
	case elu:
		*a = *ELU()
	case tanh:
		*a = *TanH()
	case identity:
		*a = *Identity()
	default:
		return fmt.Errorf("gobdecode: illegal Activation type")
	}
	return nil
}

// Identity returns an identity *Activation
func Identity() *Activation {
	return &Activation{
		activationType: identity,
		f: func(_ *Tape, x *Node) *Node {
			return x
		},
	}
}

// ReLU returns a ReLU *Activation
func ReLU() *Activation {
	return &Activation{
		activationType: relu,
		f:              (*Tape).ReLU,
	}
}

// ELU returns an ELU *Activation
func ELU() *Activation {
	return &Activation{
		activationType: elu,
		f:              (*Tape).ELU,
	}
}

// TanH returns a tanh *Activation
func TanH() *Activation {
	return &Activation{
		activationType: tanh,
		f:              (*Tape).Tanh,
	}
}
