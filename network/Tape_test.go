package network

import (
	"math"
	"testing"

	"gonum.org/v1/gonum/mat"
)

func TestBackwardRequiresScalarLoss(t *testing.T) {
	p := NewParam("p", 2, 2, []float64{1, 2, 3, 4})

	tape := NewTape()
	out := tape.Square(tape.Param(p))
	if err := tape.Backward(out); err == nil {
		t.Error("expected error for non-scalar loss")
	}
}

func TestBackwardRequiresLearnableLoss(t *testing.T) {
	tape := NewTape()
	loss := tape.SumAll(tape.Constant(mat.NewDense(1, 2, []float64{1, 2})))
	if err := tape.Backward(loss); err == nil {
		t.Error("expected error for loss with no learnable parameters")
	}
}

func TestRepeatedParamUseAccumulates(t *testing.T) {
	p := NewParam("p", 1, 1, []float64{3})

	// loss = p * p, so dloss/dp = 2p = 6
	tape := NewTape()
	n := tape.Param(p)
	loss := tape.SumAll(tape.Mul(n, tape.Param(p)))

	p.ZeroGrad()
	if err := tape.Backward(loss); err != nil {
		t.Fatal(err)
	}
	if have := p.Grad.At(0, 0); math.Abs(have-6) > 1e-12 {
		t.Errorf("invalid gradient \n\twant(6)\n\thave(%v)", have)
	}
}

func TestFreezeExcludesParams(t *testing.T) {
	p := NewParam("p", 1, 1, []float64{2})
	q := NewParam("q", 1, 1, []float64{5})

	tape := NewTape()
	tape.Freeze(q)
	loss := tape.SumAll(tape.Mul(tape.Param(p), tape.Param(q)))

	p.ZeroGrad()
	q.ZeroGrad()
	if err := tape.Backward(loss); err != nil {
		t.Fatal(err)
	}

	if have := p.Grad.At(0, 0); math.Abs(have-5) > 1e-12 {
		t.Errorf("invalid gradient \n\twant(5)\n\thave(%v)", have)
	}
	if have := q.Grad.At(0, 0); have != 0 {
		t.Errorf("frozen parameter received gradient %v", have)
	}
}

func TestFreezeAfterUsePanics(t *testing.T) {
	p := NewParam("p", 1, 1, []float64{1})

	defer func() {
		if recover() == nil {
			t.Error("expected panic freezing a parameter already in use")
		}
	}()

	tape := NewTape()
	tape.Param(p)
	tape.Freeze(p)
}

func TestDetachStopsGradient(t *testing.T) {
	p := NewParam("p", 1, 1, []float64{4})

	tape := NewTape()
	detached := tape.Detach(tape.Square(tape.Param(p)))
	loss := tape.SumAll(tape.Mul(detached, tape.Param(p)))

	// loss = sg(p^2) * p, so dloss/dp = p^2 = 16 with no term through
	// the detached branch
	p.ZeroGrad()
	if err := tape.Backward(loss); err != nil {
		t.Fatal(err)
	}
	if have := p.Grad.At(0, 0); math.Abs(have-16) > 1e-12 {
		t.Errorf("invalid gradient \n\twant(16)\n\thave(%v)", have)
	}
}

func TestNoGradTapeAccumulatesNothing(t *testing.T) {
	p := NewParam("p", 1, 1, []float64{2})

	tape := NewNoGradTape()
	loss := tape.SumAll(tape.Square(tape.Param(p)))

	if loss.Scalar() != 4 {
		t.Errorf("invalid forward value \n\twant(4)\n\thave(%v)",
			loss.Scalar())
	}
	if err := tape.Backward(loss); err == nil {
		t.Error("expected error backpropagating on a no-grad tape")
	}
}

func TestSetParams(t *testing.T) {
	src := []*Param{NewParam("a", 1, 2, []float64{1, 2})}
	dst := []*Param{NewParam("b", 1, 2, []float64{0, 0})}

	if err := SetParams(dst, src); err != nil {
		t.Fatal(err)
	}
	if !mat.Equal(dst[0].Value, src[0].Value) {
		t.Error("destination values do not match source")
	}

	// Copies must be independent of the source
	src[0].Value.Set(0, 0, 100)
	if dst[0].Value.At(0, 0) == 100 {
		t.Error("destination aliases source storage")
	}
}
