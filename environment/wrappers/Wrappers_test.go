package wrappers

import (
	"testing"

	"gonum.org/v1/gonum/mat"

	env "github.com/latentrl/dreamer/environment"
	ts "github.com/latentrl/dreamer/timestep"
)

// countEnv is a deterministic environment whose observation is the pair
// (step number, -step number)
type countEnv struct {
	steps int
}

func (c *countEnv) obs() *mat.VecDense {
	return mat.NewVecDense(2, []float64{float64(c.steps),
		-float64(c.steps)})
}

func (c *countEnv) Reset() (ts.TimeStep, error) {
	c.steps = 0
	return ts.New(ts.First, 0, 1, c.obs(), 0), nil
}

func (c *countEnv) Step(_ *mat.VecDense) (ts.TimeStep, bool, error) {
	c.steps++
	step := ts.New(ts.Mid, 1, 1, c.obs(), c.steps)
	return step, false, nil
}

func (c *countEnv) ObservationSpec() env.Spec {
	return env.Spec{
		Shape:       mat.NewVecDense(2, nil),
		Type:        env.Observation,
		LowerBound:  mat.NewVecDense(2, []float64{0, -100}),
		UpperBound:  mat.NewVecDense(2, []float64{100, 0}),
		Cardinality: env.Continuous,
	}
}

func (c *countEnv) ActionSpec() env.Spec {
	return env.Spec{
		Shape:       mat.NewVecDense(1, nil),
		Type:        env.Action,
		LowerBound:  mat.NewVecDense(1, nil),
		UpperBound:  mat.NewVecDense(1, []float64{1}),
		Cardinality: env.Discrete,
	}
}

func (c *countEnv) DiscountSpec() env.Spec {
	return env.Spec{
		Shape:       mat.NewVecDense(1, nil),
		Type:        env.Discount,
		LowerBound:  mat.NewVecDense(1, nil),
		UpperBound:  mat.NewVecDense(1, []float64{1}),
		Cardinality: env.Continuous,
	}
}

func TestOccludeZeroesIndices(t *testing.T) {
	o, err := NewOcclude(&countEnv{}, []int{1})
	if err != nil {
		t.Fatal(err)
	}

	step, err := o.Reset()
	if err != nil {
		t.Fatal(err)
	}
	if step.Observation.AtVec(1) != 0 {
		t.Error("occluded feature is visible after reset")
	}

	action := mat.NewVecDense(1, nil)
	for i := 1; i <= 3; i++ {
		step, _, err = o.Step(action)
		if err != nil {
			t.Fatal(err)
		}
		if step.Observation.AtVec(0) != float64(i) {
			t.Errorf("visible feature was changed "+
				"\n\twant(%v)\n\thave(%v)", float64(i),
				step.Observation.AtVec(0))
		}
		if step.Observation.AtVec(1) != 0 {
			t.Errorf("occluded feature is visible at step %d", i)
		}
	}

	// Spec size is unchanged
	if o.ObservationSpec().Shape.Len() != 2 {
		t.Error("occlusion changed the observation size")
	}
}

func TestOccludeRejectsOutOfRangeIndices(t *testing.T) {
	if _, err := NewOcclude(&countEnv{}, []int{2}); err == nil {
		t.Error("out-of-range index was not rejected")
	}
	if _, err := NewOcclude(&countEnv{}, []int{-1}); err == nil {
		t.Error("negative index was not rejected")
	}
}

func TestFrameStackResetFillsStack(t *testing.T) {
	f, err := NewFrameStack(&countEnv{}, 3)
	if err != nil {
		t.Fatal(err)
	}

	step, err := f.Reset()
	if err != nil {
		t.Fatal(err)
	}
	if step.Observation.Len() != 6 {
		t.Fatalf("invalid stacked size \n\twant(%v)\n\thave(%v)", 6,
			step.Observation.Len())
	}
	for i := 0; i < 3; i++ {
		if step.Observation.AtVec(2*i) != 0 {
			t.Errorf("frame %d was not filled with the start "+
				"observation", i)
		}
	}
}

func TestFrameStackShiftsNewestLast(t *testing.T) {
	f, err := NewFrameStack(&countEnv{}, 3)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.Reset(); err != nil {
		t.Fatal(err)
	}

	action := mat.NewVecDense(1, nil)
	var step ts.TimeStep
	for i := 0; i < 4; i++ {
		var err error
		step, _, err = f.Step(action)
		if err != nil {
			t.Fatal(err)
		}
	}

	// After 4 steps the stack holds the observations of steps 2, 3, 4
	want := []float64{2, -2, 3, -3, 4, -4}
	for i, w := range want {
		if step.Observation.AtVec(i) != w {
			t.Errorf("invalid stack entry %d \n\twant(%v)\n\thave(%v)",
				i, w, step.Observation.AtVec(i))
		}
	}
}

func TestFrameStackObservationSpec(t *testing.T) {
	f, err := NewFrameStack(&countEnv{}, 2)
	if err != nil {
		t.Fatal(err)
	}

	spec := f.ObservationSpec()
	if spec.Shape.Len() != 4 {
		t.Fatalf("invalid spec size \n\twant(%v)\n\thave(%v)", 4,
			spec.Shape.Len())
	}
	for i := 0; i < 2; i++ {
		if spec.LowerBound.AtVec(2*i+1) != -100 {
			t.Errorf("frame %d lower bound was not repeated", i)
		}
		if spec.UpperBound.AtVec(2*i) != 100 {
			t.Errorf("frame %d upper bound was not repeated", i)
		}
	}
}

func TestFrameStackRejectsNonPositiveFrames(t *testing.T) {
	if _, err := NewFrameStack(&countEnv{}, 0); err == nil {
		t.Error("zero frame count was not rejected")
	}
}
