package network

import "fmt"

// InitFn generates initial weight values for a (rows x cols) parameter
// in row-major order
type InitFn func(rows, cols int) []float64

// Dense implements a fully connected layer with a bias unit and an
// activation
type Dense struct {
	weights *Param
	bias    *Param
	act     *Activation
}

// NewDense creates a fully connected layer mapping in features to out
// features. Weights are drawn from init and biases start at zero.
func NewDense(name string, in, out int, act *Activation, init InitFn) *Dense {
	return &Dense{
		weights: NewParam(name+"/weights", in, out, init(in, out)),
		bias:    NewParam(name+"/bias", 1, out, make([]float64, out)),
		act:     act,
	}
}

// Forward adds the forward pass of the layer to the tape
func (d *Dense) Forward(t *Tape, x *Node) *Node {
	out := t.AddBias(t.MatMul(x, t.Param(d.weights)), t.Param(d.bias))
	return d.act.fwd(t, out)
}

// Params returns the learnable parameters of the layer
func (d *Dense) Params() []*Param {
	return []*Param{d.weights, d.bias}
}

// MLP implements a multi-layered perceptron. The network has
// len(hiddenSizes)+1 layers: one per hidden size with the matching
// activation, plus a final linear layer producing outputs features.
type MLP struct {
	layers   []*Dense
	features int
	outputs  int
}

// NewMLP creates and returns a new multi-layered perceptron. For index
// i, hiddenSizes[i] is the number of nodes in hidden layer i and
// activations[i] is its activation function.
func NewMLP(name string, features, outputs int, hiddenSizes []int,
	activations []*Activation, init InitFn) (*MLP, error) {
	if len(hiddenSizes) != len(activations) {
		return nil, fmt.Errorf("newmlp: invalid number of activations"+
			"\n\twant(%d)\n\thave(%d)", len(hiddenSizes), len(activations))
	}
	if features <= 0 || outputs <= 0 {
		return nil, fmt.Errorf("newmlp: features and outputs must be "+
			"positive, got %v and %v", features, outputs)
	}

	layers := make([]*Dense, 0, len(hiddenSizes)+1)
	in := features
	for i, size := range hiddenSizes {
		layers = append(layers, NewDense(
			fmt.Sprintf("%v/layer%d", name, i), in, size, activations[i],
			init))
		in = size
	}
	layers = append(layers, NewDense(
		fmt.Sprintf("%v/output", name), in, outputs, Identity(), init))

	return &MLP{layers: layers, features: features, outputs: outputs}, nil
}

// Forward adds the forward pass of the network to the tape
func (m *MLP) Forward(t *Tape, x *Node) *Node {
	pred := x
	for _, l := range m.layers {
		pred = l.Forward(t, pred)
	}
	return pred
}

// Features returns the number of features in a single input vector
func (m *MLP) Features() int {
	return m.features
}

// Outputs returns the number of outputs from the network
func (m *MLP) Outputs() int {
	return m.outputs
}

// Params returns the learnable parameters of all layers
func (m *MLP) Params() []*Param {
	params := make([]*Param, 0, 2*len(m.layers))
	for _, l := range m.layers {
		params = append(params, l.Params()...)
	}
	return params
}
