package network

import "fmt"

// GRUCell implements a single gated recurrent unit cell. Given an
// input x and the previous hidden state h, one forward step computes
//
//	r = σ(x·Wxr + h·Whr + br)
//	u = σ(x·Wxu + h·Whu + bu)
//	c = tanh(x·Wxc + (r∘h)·Whc + bc)
//	h' = u∘h + (1-u)∘c
//
// where r is the reset gate and u the update gate.
type GRUCell struct {
	wxr, whr, br *Param
	wxu, whu, bu *Param
	wxc, whc, bc *Param

	inputs int
	hidden int
}

// NewGRUCell creates a GRU cell with the given input and hidden sizes
func NewGRUCell(name string, inputs, hidden int, init InitFn) *GRUCell {
	zeros := func(n int) []float64 { return make([]float64, n) }
	return &GRUCell{
		wxr: NewParam(name+"/wxr", inputs, hidden, init(inputs, hidden)),
		whr: NewParam(name+"/whr", hidden, hidden, init(hidden, hidden)),
		br:  NewParam(name+"/br", 1, hidden, zeros(hidden)),
		wxu: NewParam(name+"/wxu", inputs, hidden, init(inputs, hidden)),
		whu: NewParam(name+"/whu", hidden, hidden, init(hidden, hidden)),
		bu:  NewParam(name+"/bu", 1, hidden, zeros(hidden)),
		wxc: NewParam(name+"/wxc", inputs, hidden, init(inputs, hidden)),
		whc: NewParam(name+"/whc", hidden, hidden, init(hidden, hidden)),
		bc:  NewParam(name+"/bc", 1, hidden, zeros(hidden)),

		inputs: inputs,
		hidden: hidden,
	}
}

// Step adds one recurrent step to the tape, returning the next hidden
// state. The input x must be (batch x inputs) and h (batch x hidden).
func (g *GRUCell) Step(t *Tape, x, h *Node) *Node {
	if _, xc := x.Dims(); xc != g.inputs {
		panic(fmt.Sprintf("step: invalid input size \n\twant(%v)"+
			"\n\thave(%v)", g.inputs, xc))
	}
	if _, hc := h.Dims(); hc != g.hidden {
		panic(fmt.Sprintf("step: invalid hidden size \n\twant(%v)"+
			"\n\thave(%v)", g.hidden, hc))
	}

	r := t.Sigmoid(t.AddBias(
		t.Add(t.MatMul(x, t.Param(g.wxr)), t.MatMul(h, t.Param(g.whr))),
		t.Param(g.br)))
	u := t.Sigmoid(t.AddBias(
		t.Add(t.MatMul(x, t.Param(g.wxu)), t.MatMul(h, t.Param(g.whu))),
		t.Param(g.bu)))
	c := t.Tanh(t.AddBias(
		t.Add(t.MatMul(x, t.Param(g.wxc)),
			t.MatMul(t.Mul(r, h), t.Param(g.whc))),
		t.Param(g.bc)))

	return t.Add(t.Mul(u, h), t.Mul(t.OneMinus(u), c))
}

// Hidden returns the hidden state size of the cell
func (g *GRUCell) Hidden() int {
	return g.hidden
}

// Params returns the learnable parameters of the cell
func (g *GRUCell) Params() []*Param {
	return []*Param{
		g.wxr, g.whr, g.br,
		g.wxu, g.whu, g.bu,
		g.wxc, g.whc, g.bc,
	}
}
