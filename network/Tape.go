// Package network implements the neural network primitives used by the
// world model and the actor-critic: an explicit reverse-mode
// differentiation tape over gonum matrices, fully connected layers, a
// GRU cell, and multi-layer perceptrons.
//
// The tape is a dual-pass abstraction: every operation computes its
// value eagerly on the forward pass and registers a closure that
// propagates gradients on the backward pass. This makes gradient
// surgery explicit where the training algorithms need it: Detach stops
// gradients, StraightThrough substitutes the gradient of one node for
// the value of another, and Freeze excludes parameter sets from a
// backward pass without touching the forward computation.
package network

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// Node is a value on the tape. All values are dense matrices; scalars
// are 1x1 and batched vectors are (batch, 1).
type Node struct {
	Value *mat.Dense

	grad         *mat.Dense
	back         func()
	requiresGrad bool
}

// Grad returns the gradient accumulated at this node during the last
// call to Tape.Backward, or nil if no gradient reached it.
func (n *Node) Grad() *mat.Dense {
	return n.grad
}

// Dims returns the shape of the node's value
func (n *Node) Dims() (int, int) {
	return n.Value.Dims()
}

// Scalar returns the value of a 1x1 node
func (n *Node) Scalar() float64 {
	r, c := n.Dims()
	if r != 1 || c != 1 {
		panic(fmt.Sprintf("scalar: node is not a scalar, has shape "+
			"(%v x %v)", r, c))
	}
	return n.Value.At(0, 0)
}

// accumGrad adds delta into the node's gradient, allocating on first
// use. The delta is copied so callers may reuse their buffer.
func (n *Node) accumGrad(delta mat.Matrix) {
	if n.grad == nil {
		r, c := delta.Dims()
		n.grad = mat.NewDense(r, c, nil)
	}
	n.grad.Add(n.grad, delta)
}

// Tape records operations in creation order so that Backward can
// replay them in reverse. A Tape is built fresh for each forward pass
// and discarded afterwards; only Params outlive it.
type Tape struct {
	nodes  []*Node
	params map[*Param]*Node
	frozen map[*Param]bool
	noGrad bool
}

// NewTape returns a new empty tape
func NewTape() *Tape {
	return &Tape{
		params: make(map[*Param]*Node),
		frozen: make(map[*Param]bool),
	}
}

// NewNoGradTape returns a tape that records no backward closures. Used
// for action selection and evaluation, where only forward values are
// needed.
func NewNoGradTape() *Tape {
	t := NewTape()
	t.noGrad = true
	return t
}

// Freeze excludes the given parameters from gradient computation on
// this tape. Values still flow forward through frozen parameters, and
// gradients still flow through the operations that consume them, but
// nothing is accumulated into their Grad. Must be called before the
// parameters are first used on the tape.
func (t *Tape) Freeze(params ...*Param) {
	for _, p := range params {
		if _, used := t.params[p]; used {
			panic(fmt.Sprintf("freeze: parameter %v already in use on "+
				"this tape", p.Name))
		}
		t.frozen[p] = true
	}
}

// newNode appends a node holding value to the tape. The caller sets the
// backward closure afterwards if tracked reports true.
func (t *Tape) newNode(value *mat.Dense, requiresGrad bool) *Node {
	n := &Node{Value: value, requiresGrad: requiresGrad && !t.noGrad}
	t.nodes = append(t.nodes, n)
	return n
}

// tracked reports whether an operation over inputs with the given
// requires-grad flag needs a backward closure on this tape.
func (t *Tape) tracked(requiresGrad bool) bool {
	return requiresGrad && !t.noGrad
}

// Constant places a value on the tape that does not require gradients.
// The matrix is used as-is and must not be mutated afterwards.
func (t *Tape) Constant(m *mat.Dense) *Node {
	return t.newNode(m, false)
}

// Param places a learnable parameter on the tape, returning the same
// node for repeated uses of the same parameter. Frozen parameters are
// placed as constants.
func (t *Tape) Param(p *Param) *Node {
	if n, ok := t.params[p]; ok {
		return n
	}

	var n *Node
	if t.frozen[p] || t.noGrad {
		n = t.newNode(p.Value, false)
	} else {
		n = t.newNode(p.Value, true)
		n.back = func() {
			p.Grad.Add(p.Grad, n.grad)
		}
	}
	t.params[p] = n
	return n
}

// Backward seeds the scalar loss node with gradient 1 and propagates
// gradients through the tape in reverse creation order, accumulating
// into the Grad of every non-frozen parameter used on the tape.
func (t *Tape) Backward(loss *Node) error {
	r, c := loss.Dims()
	if r != 1 || c != 1 {
		return fmt.Errorf("backward: loss must be scalar, has shape "+
			"(%v x %v)", r, c)
	}
	if !loss.requiresGrad {
		return fmt.Errorf("backward: loss does not depend on any " +
			"learnable parameters")
	}

	loss.accumGrad(mat.NewDense(1, 1, []float64{1}))
	for i := len(t.nodes) - 1; i >= 0; i-- {
		n := t.nodes[i]
		if n.back != nil && n.grad != nil {
			n.back()
		}
	}
	return nil
}
