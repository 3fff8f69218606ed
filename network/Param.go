package network

import (
	"bytes"
	"encoding/gob"
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// Param is a learnable parameter matrix together with its accumulated
// gradient. Params persist across Tapes: each training iteration builds
// a fresh Tape over the same Params, and Tape.Backward accumulates into
// Grad. Optimizers own the update and zeroing of Grad.
type Param struct {
	Name  string
	Value *mat.Dense
	Grad  *mat.Dense
}

// NewParam creates a parameter of the given shape backed by data, which
// must have length rows*cols and is used in row-major order.
func NewParam(name string, rows, cols int, data []float64) *Param {
	if len(data) != rows*cols {
		panic(fmt.Sprintf("newparam: invalid backing length \n\twant(%v)"+
			"\n\thave(%v)", rows*cols, len(data)))
	}
	return &Param{
		Name:  name,
		Value: mat.NewDense(rows, cols, data),
		Grad:  mat.NewDense(rows, cols, nil),
	}
}

// Dims returns the shape of the parameter
func (p *Param) Dims() (int, int) {
	return p.Value.Dims()
}

// ZeroGrad resets the accumulated gradient to zero
func (p *Param) ZeroGrad() {
	p.Grad.Zero()
}

// Set copies the values of another parameter into p. The shapes must
// match.
func (p *Param) Set(source *Param) error {
	pr, pc := p.Dims()
	sr, sc := source.Dims()
	if pr != sr || pc != sc {
		return fmt.Errorf("set: shape mismatch \n\twant(%v x %v)"+
			"\n\thave(%v x %v)", pr, pc, sr, sc)
	}
	p.Value.Copy(source.Value)
	return nil
}

// Polyak sets the values of p to a polyak average between its existing
// values and those of another parameter: p <- (1-tau)*p + tau*source.
func (p *Param) Polyak(source *Param, tau float64) error {
	pr, pc := p.Dims()
	sr, sc := source.Dims()
	if pr != sr || pc != sc {
		return fmt.Errorf("polyak: shape mismatch \n\twant(%v x %v)"+
			"\n\thave(%v x %v)", pr, pc, sr, sc)
	}
	p.Value.Scale(1-tau, p.Value)
	var scaled mat.Dense
	scaled.Scale(tau, source.Value)
	p.Value.Add(p.Value, &scaled)
	return nil
}

// Clone returns a deep copy of the parameter. The gradient is not
// copied.
func (p *Param) Clone() *Param {
	rows, cols := p.Dims()
	clone := NewParam(p.Name, rows, cols, make([]float64, rows*cols))
	clone.Value.Copy(p.Value)
	return clone
}

// GobEncode implements the gob.GobEncoder interface
func (p *Param) GobEncode() ([]byte, error) {
	var buf bytes.Buffer
	enc := gob.NewEncoder(&buf)

	rows, cols := p.Dims()
	if err := enc.Encode(p.Name); err != nil {
		return nil, fmt.Errorf("gobencode: could not encode name: %v", err)
	}
	if err := enc.Encode(rows); err != nil {
		return nil, fmt.Errorf("gobencode: could not encode rows: %v", err)
	}
	if err := enc.Encode(cols); err != nil {
		return nil, fmt.Errorf("gobencode: could not encode cols: %v", err)
	}
	if err := enc.Encode(p.Value.RawMatrix().Data); err != nil {
		return nil, fmt.Errorf("gobencode: could not encode data: %v", err)
	}
	return buf.Bytes(), nil
}

// GobDecode implements the gob.GobDecoder interface
func (p *Param) GobDecode(in []byte) error {
	dec := gob.NewDecoder(bytes.NewReader(in))

	var name string
	if err := dec.Decode(&name); err != nil {
		return fmt.Errorf("gobdecode: could not decode name: %v", err)
	}
	var rows, cols int
	if err := dec.Decode(&rows); err != nil {
		return fmt.Errorf("gobdecode: could not decode rows: %v", err)
	}
	if err := dec.Decode(&cols); err != nil {
		return fmt.Errorf("gobdecode: could not decode cols: %v", err)
	}
	var data []float64
	if err := dec.Decode(&data); err != nil {
		return fmt.Errorf("gobdecode: could not decode data: %v", err)
	}
	if len(data) != rows*cols {
		return fmt.Errorf("gobdecode: invalid backing length \n\twant(%v)"+
			"\n\thave(%v)", rows*cols, len(data))
	}

	p.Name = name
	p.Value = mat.NewDense(rows, cols, data)
	p.Grad = mat.NewDense(rows, cols, nil)
	return nil
}

// SetParams copies the values of source parameters into dest
// element-wise. Used to synchronize target networks and to build
// evaluation snapshots.
func SetParams(dest, source []*Param) error {
	if len(dest) != len(source) {
		return fmt.Errorf("setparams: parameter count mismatch "+
			"\n\twant(%v)\n\thave(%v)", len(dest), len(source))
	}
	for i := range dest {
		if err := dest[i].Set(source[i]); err != nil {
			return fmt.Errorf("setparams: could not set %v: %v",
				dest[i].Name, err)
		}
	}
	return nil
}
