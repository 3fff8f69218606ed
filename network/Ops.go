package network

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// unary applies f element-wise and registers a backward closure using
// df, which receives the input and output of f at an element and
// returns the local derivative there.
func (t *Tape) unary(a *Node, f func(float64) float64,
	df func(x, y float64) float64) *Node {
	var v mat.Dense
	v.Apply(func(_, _ int, x float64) float64 { return f(x) }, a.Value)

	n := t.newNode(&v, a.requiresGrad)
	if n.requiresGrad {
		n.back = func() {
			r, c := a.Dims()
			delta := mat.NewDense(r, c, nil)
			for i := 0; i < r; i++ {
				for j := 0; j < c; j++ {
					x := a.Value.At(i, j)
					y := n.Value.At(i, j)
					delta.Set(i, j, n.grad.At(i, j)*df(x, y))
				}
			}
			a.accumGrad(delta)
		}
	}
	return n
}

// MatMul computes the matrix product a*b
func (t *Tape) MatMul(a, b *Node) *Node {
	var v mat.Dense
	v.Mul(a.Value, b.Value)

	n := t.newNode(&v, a.requiresGrad || b.requiresGrad)
	if n.requiresGrad {
		n.back = func() {
			if a.requiresGrad {
				var da mat.Dense
				da.Mul(n.grad, b.Value.T())
				a.accumGrad(&da)
			}
			if b.requiresGrad {
				var db mat.Dense
				db.Mul(a.Value.T(), n.grad)
				b.accumGrad(&db)
			}
		}
	}
	return n
}

// Add computes the element-wise sum of two same-shaped nodes
func (t *Tape) Add(a, b *Node) *Node {
	var v mat.Dense
	v.Add(a.Value, b.Value)

	n := t.newNode(&v, a.requiresGrad || b.requiresGrad)
	if n.requiresGrad {
		n.back = func() {
			if a.requiresGrad {
				a.accumGrad(n.grad)
			}
			if b.requiresGrad {
				b.accumGrad(n.grad)
			}
		}
	}
	return n
}

// Sub computes the element-wise difference a - b
func (t *Tape) Sub(a, b *Node) *Node {
	var v mat.Dense
	v.Sub(a.Value, b.Value)

	n := t.newNode(&v, a.requiresGrad || b.requiresGrad)
	if n.requiresGrad {
		n.back = func() {
			if a.requiresGrad {
				a.accumGrad(n.grad)
			}
			if b.requiresGrad {
				var db mat.Dense
				db.Scale(-1, n.grad)
				b.accumGrad(&db)
			}
		}
	}
	return n
}

// Mul computes the element-wise (Hadamard) product of two same-shaped
// nodes
func (t *Tape) Mul(a, b *Node) *Node {
	var v mat.Dense
	v.MulElem(a.Value, b.Value)

	n := t.newNode(&v, a.requiresGrad || b.requiresGrad)
	if n.requiresGrad {
		n.back = func() {
			if a.requiresGrad {
				var da mat.Dense
				da.MulElem(n.grad, b.Value)
				a.accumGrad(&da)
			}
			if b.requiresGrad {
				var db mat.Dense
				db.MulElem(n.grad, a.Value)
				b.accumGrad(&db)
			}
		}
	}
	return n
}

// Scale multiplies every element of a by the constant c
func (t *Tape) Scale(a *Node, c float64) *Node {
	return t.unary(a,
		func(x float64) float64 { return c * x },
		func(_, _ float64) float64 { return c })
}

// AddConst adds the constant c to every element of a
func (t *Tape) AddConst(a *Node, c float64) *Node {
	return t.unary(a,
		func(x float64) float64 { return x + c },
		func(_, _ float64) float64 { return 1 })
}

// OneMinus computes 1 - a element-wise
func (t *Tape) OneMinus(a *Node) *Node {
	return t.unary(a,
		func(x float64) float64 { return 1 - x },
		func(_, _ float64) float64 { return -1 })
}

// Square computes a² element-wise
func (t *Tape) Square(a *Node) *Node {
	return t.unary(a,
		func(x float64) float64 { return x * x },
		func(x, _ float64) float64 { return 2 * x })
}

// Tanh computes the hyperbolic tangent element-wise
func (t *Tape) Tanh(a *Node) *Node {
	return t.unary(a, math.Tanh,
		func(_, y float64) float64 { return 1 - y*y })
}

// Sigmoid computes the logistic function element-wise
func (t *Tape) Sigmoid(a *Node) *Node {
	return t.unary(a, sigmoid,
		func(_, y float64) float64 { return y * (1 - y) })
}

// ReLU computes the rectified linear unit element-wise
func (t *Tape) ReLU(a *Node) *Node {
	return t.unary(a,
		func(x float64) float64 { return math.Max(x, 0) },
		func(x, _ float64) float64 {
			if x > 0 {
				return 1
			}
			return 0
		})
}

// ELU computes the exponential linear unit element-wise with unit
// scale
func (t *Tape) ELU(a *Node) *Node {
	return t.unary(a,
		func(x float64) float64 {
			if x > 0 {
				return x
			}
			return math.Exp(x) - 1
		},
		func(x, y float64) float64 {
			if x > 0 {
				return 1
			}
			return y + 1
		})
}

// AddBias adds a (1 x C) bias row to every row of the (R x C) node x
func (t *Tape) AddBias(x, bias *Node) *Node {
	r, c := x.Dims()
	br, bc := bias.Dims()
	if br != 1 || bc != c {
		panic(fmt.Sprintf("addbias: invalid bias shape \n\twant(1 x %v)"+
			"\n\thave(%v x %v)", c, br, bc))
	}

	v := mat.NewDense(r, c, nil)
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			v.Set(i, j, x.Value.At(i, j)+bias.Value.At(0, j))
		}
	}

	n := t.newNode(v, x.requiresGrad || bias.requiresGrad)
	if n.requiresGrad {
		n.back = func() {
			if x.requiresGrad {
				x.accumGrad(n.grad)
			}
			if bias.requiresGrad {
				db := mat.NewDense(1, c, nil)
				for j := 0; j < c; j++ {
					sum := 0.0
					for i := 0; i < r; i++ {
						sum += n.grad.At(i, j)
					}
					db.Set(0, j, sum)
				}
				bias.accumGrad(db)
			}
		}
	}
	return n
}

// MulBroadcast multiplies every row i of the (R x C) node x by the
// scalar in row i of the (R x 1) node m
func (t *Tape) MulBroadcast(x, m *Node) *Node {
	r, c := x.Dims()
	mr, mc := m.Dims()
	if mr != r || mc != 1 {
		panic(fmt.Sprintf("mulbroadcast: invalid multiplier shape "+
			"\n\twant(%v x 1)\n\thave(%v x %v)", r, mr, mc))
	}

	v := mat.NewDense(r, c, nil)
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			v.Set(i, j, x.Value.At(i, j)*m.Value.At(i, 0))
		}
	}

	n := t.newNode(v, x.requiresGrad || m.requiresGrad)
	if n.requiresGrad {
		n.back = func() {
			if x.requiresGrad {
				dx := mat.NewDense(r, c, nil)
				for i := 0; i < r; i++ {
					for j := 0; j < c; j++ {
						dx.Set(i, j, n.grad.At(i, j)*m.Value.At(i, 0))
					}
				}
				x.accumGrad(dx)
			}
			if m.requiresGrad {
				dm := mat.NewDense(r, 1, nil)
				for i := 0; i < r; i++ {
					sum := 0.0
					for j := 0; j < c; j++ {
						sum += n.grad.At(i, j) * x.Value.At(i, j)
					}
					dm.Set(i, 0, sum)
				}
				m.accumGrad(dm)
			}
		}
	}
	return n
}

// Concat concatenates two nodes along the feature (column) dimension
func (t *Tape) Concat(a, b *Node) *Node {
	ar, ac := a.Dims()
	br, bc := b.Dims()
	if ar != br {
		panic(fmt.Sprintf("concat: row mismatch \n\twant(%v)\n\thave(%v)",
			ar, br))
	}

	v := mat.NewDense(ar, ac+bc, nil)
	v.Slice(0, ar, 0, ac).(*mat.Dense).Copy(a.Value)
	v.Slice(0, ar, ac, ac+bc).(*mat.Dense).Copy(b.Value)

	n := t.newNode(v, a.requiresGrad || b.requiresGrad)
	if n.requiresGrad {
		n.back = func() {
			if a.requiresGrad {
				a.accumGrad(n.grad.Slice(0, ar, 0, ac))
			}
			if b.requiresGrad {
				b.accumGrad(n.grad.Slice(0, ar, ac, ac+bc))
			}
		}
	}
	return n
}

// SumAll reduces a node to the 1x1 sum of all its elements
func (t *Tape) SumAll(a *Node) *Node {
	v := mat.NewDense(1, 1, []float64{mat.Sum(a.Value)})

	n := t.newNode(v, a.requiresGrad)
	if n.requiresGrad {
		n.back = func() {
			r, c := a.Dims()
			g := n.grad.At(0, 0)
			delta := mat.NewDense(r, c, nil)
			for i := 0; i < r; i++ {
				for j := 0; j < c; j++ {
					delta.Set(i, j, g)
				}
			}
			a.accumGrad(delta)
		}
	}
	return n
}

// MeanAll reduces a node to the 1x1 mean of all its elements
func (t *Tape) MeanAll(a *Node) *Node {
	r, c := a.Dims()
	return t.Scale(t.SumAll(a), 1/float64(r*c))
}

// RowSum reduces an (R x C) node to the (R x 1) per-row sums
func (t *Tape) RowSum(a *Node) *Node {
	r, c := a.Dims()
	v := mat.NewDense(r, 1, nil)
	for i := 0; i < r; i++ {
		sum := 0.0
		for j := 0; j < c; j++ {
			sum += a.Value.At(i, j)
		}
		v.Set(i, 0, sum)
	}

	n := t.newNode(v, a.requiresGrad)
	if n.requiresGrad {
		n.back = func() {
			delta := mat.NewDense(r, c, nil)
			for i := 0; i < r; i++ {
				g := n.grad.At(i, 0)
				for j := 0; j < c; j++ {
					delta.Set(i, j, g)
				}
			}
			a.accumGrad(delta)
		}
	}
	return n
}

// SoftmaxBlocks applies a numerically stable softmax independently to
// each contiguous block of blockSize columns within each row. The
// number of columns must be a multiple of blockSize.
func (t *Tape) SoftmaxBlocks(a *Node, blockSize int) *Node {
	r, c := a.Dims()
	if c%blockSize != 0 {
		panic(fmt.Sprintf("softmaxblocks: columns (%v) not a multiple of "+
			"block size (%v)", c, blockSize))
	}

	v := mat.NewDense(r, c, nil)
	for i := 0; i < r; i++ {
		for s := 0; s < c; s += blockSize {
			max := math.Inf(-1)
			for j := s; j < s+blockSize; j++ {
				max = math.Max(max, a.Value.At(i, j))
			}
			sum := 0.0
			for j := s; j < s+blockSize; j++ {
				e := math.Exp(a.Value.At(i, j) - max)
				v.Set(i, j, e)
				sum += e
			}
			for j := s; j < s+blockSize; j++ {
				v.Set(i, j, v.At(i, j)/sum)
			}
		}
	}

	n := t.newNode(v, a.requiresGrad)
	if n.requiresGrad {
		n.back = func() {
			delta := mat.NewDense(r, c, nil)
			for i := 0; i < r; i++ {
				for s := 0; s < c; s += blockSize {
					dot := 0.0
					for j := s; j < s+blockSize; j++ {
						dot += n.grad.At(i, j) * n.Value.At(i, j)
					}
					for j := s; j < s+blockSize; j++ {
						p := n.Value.At(i, j)
						delta.Set(i, j, p*(n.grad.At(i, j)-dot))
					}
				}
			}
			a.accumGrad(delta)
		}
	}
	return n
}

// LogSoftmaxBlocks applies a numerically stable log-softmax
// independently to each contiguous block of blockSize columns within
// each row
func (t *Tape) LogSoftmaxBlocks(a *Node, blockSize int) *Node {
	r, c := a.Dims()
	if c%blockSize != 0 {
		panic(fmt.Sprintf("logsoftmaxblocks: columns (%v) not a multiple "+
			"of block size (%v)", c, blockSize))
	}

	v := mat.NewDense(r, c, nil)
	for i := 0; i < r; i++ {
		for s := 0; s < c; s += blockSize {
			max := math.Inf(-1)
			for j := s; j < s+blockSize; j++ {
				max = math.Max(max, a.Value.At(i, j))
			}
			sum := 0.0
			for j := s; j < s+blockSize; j++ {
				sum += math.Exp(a.Value.At(i, j) - max)
			}
			lse := max + math.Log(sum)
			for j := s; j < s+blockSize; j++ {
				v.Set(i, j, a.Value.At(i, j)-lse)
			}
		}
	}

	n := t.newNode(v, a.requiresGrad)
	if n.requiresGrad {
		n.back = func() {
			delta := mat.NewDense(r, c, nil)
			for i := 0; i < r; i++ {
				for s := 0; s < c; s += blockSize {
					gsum := 0.0
					for j := s; j < s+blockSize; j++ {
						gsum += n.grad.At(i, j)
					}
					for j := s; j < s+blockSize; j++ {
						p := math.Exp(n.Value.At(i, j))
						delta.Set(i, j, n.grad.At(i, j)-p*gsum)
					}
				}
			}
			a.accumGrad(delta)
		}
	}
	return n
}

// Detach returns a node sharing a's value through which no gradient
// flows
func (t *Tape) Detach(a *Node) *Node {
	return t.Constant(a.Value)
}

// StraightThrough returns a node whose forward value is sample but
// whose backward pass routes gradients unchanged into probs, the
// differentiable probabilities the sample was drawn from. This is the
// straight-through estimator for discrete sampling: the forward pass
// sees the drawn one-hot category while gradients behave as if the
// network had emitted the probabilities directly.
func (t *Tape) StraightThrough(probs *Node, sample *mat.Dense) *Node {
	pr, pc := probs.Dims()
	sr, sc := sample.Dims()
	if pr != sr || pc != sc {
		panic(fmt.Sprintf("straightthrough: shape mismatch \n\twant"+
			"(%v x %v)\n\thave(%v x %v)", pr, pc, sr, sc))
	}

	n := t.newNode(sample, probs.requiresGrad)
	if n.requiresGrad {
		n.back = func() {
			probs.accumGrad(n.grad)
		}
	}
	return n
}

// BernoulliLogProb computes the element-wise Bernoulli log-likelihood
// of the binary targets under the given logits:
// target*x - softplus(x), which equals target*log σ(x) +
// (1-target)*log(1-σ(x)).
func (t *Tape) BernoulliLogProb(logits *Node, target *mat.Dense) *Node {
	r, c := logits.Dims()
	v := mat.NewDense(r, c, nil)
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			x := logits.Value.At(i, j)
			v.Set(i, j, target.At(i, j)*x-softplus(x))
		}
	}

	n := t.newNode(v, logits.requiresGrad)
	if n.requiresGrad {
		n.back = func() {
			delta := mat.NewDense(r, c, nil)
			for i := 0; i < r; i++ {
				for j := 0; j < c; j++ {
					x := logits.Value.At(i, j)
					delta.Set(i, j,
						n.grad.At(i, j)*(target.At(i, j)-sigmoid(x)))
				}
			}
			logits.accumGrad(delta)
		}
	}
	return n
}

// GaussianLogProb computes the element-wise log-likelihood of the
// targets under unit-variance Gaussians centered on mean:
// -0.5*(target-mean)² - 0.5*ln(2π)
func (t *Tape) GaussianLogProb(mean *Node, target *mat.Dense) *Node {
	const halfLog2Pi = 0.9189385332046727

	r, c := mean.Dims()
	v := mat.NewDense(r, c, nil)
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			diff := target.At(i, j) - mean.Value.At(i, j)
			v.Set(i, j, -0.5*diff*diff-halfLog2Pi)
		}
	}

	n := t.newNode(v, mean.requiresGrad)
	if n.requiresGrad {
		n.back = func() {
			delta := mat.NewDense(r, c, nil)
			for i := 0; i < r; i++ {
				for j := 0; j < c; j++ {
					diff := target.At(i, j) - mean.Value.At(i, j)
					delta.Set(i, j, n.grad.At(i, j)*diff)
				}
			}
			mean.accumGrad(delta)
		}
	}
	return n
}

func sigmoid(x float64) float64 {
	if x >= 0 {
		return 1 / (1 + math.Exp(-x))
	}
	e := math.Exp(x)
	return e / (1 + e)
}

// softplus computes log(1 + exp(x)) without overflowing for large x
func softplus(x float64) float64 {
	return math.Max(x, 0) + math.Log1p(math.Exp(-math.Abs(x)))
}
