package cartpole

import (
	"math"
	"testing"

	"gonum.org/v1/gonum/mat"
)

func TestResetStartsWithinBounds(t *testing.T) {
	c, err := New(500, 14)
	if err != nil {
		t.Fatal(err)
	}

	for i := 0; i < 10; i++ {
		step, err := c.Reset()
		if err != nil {
			t.Fatal(err)
		}
		if !step.First() {
			t.Error("reset did not return a first timestep")
		}
		if step.Observation.Len() != 4 {
			t.Fatalf("invalid observation size \n\twant(%v)\n\thave(%v)",
				4, step.Observation.Len())
		}
		for j := 0; j < 4; j++ {
			if v := step.Observation.AtVec(j); math.Abs(v) > StartBounds {
				t.Errorf("state variable %d outside start bounds: %v", j, v)
			}
		}
	}
}

func TestStepRewardsBalancing(t *testing.T) {
	c, err := New(500, 15)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := c.Reset(); err != nil {
		t.Fatal(err)
	}

	step, done, err := c.Step(mat.NewVecDense(1, []float64{1}))
	if err != nil {
		t.Fatal(err)
	}
	if done {
		t.Error("episode ended on the first step")
	}
	if step.Reward != 1 {
		t.Errorf("invalid balancing reward \n\twant(%v)\n\thave(%v)", 1.0,
			step.Reward)
	}
	if step.Number != 1 {
		t.Errorf("invalid step number \n\twant(%v)\n\thave(%v)", 1,
			step.Number)
	}
}

func TestFallingEndsEpisodeWithZeroDiscount(t *testing.T) {
	c, err := New(10000, 16)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := c.Reset(); err != nil {
		t.Fatal(err)
	}

	// Pushing left forever topples the pole
	left := mat.NewVecDense(1, []float64{0})
	for i := 0; i < 1000; i++ {
		step, done, err := c.Step(left)
		if err != nil {
			t.Fatal(err)
		}
		if done {
			if step.Reward != -1 {
				t.Errorf("invalid failure reward \n\twant(%v)\n\thave(%v)",
					-1.0, step.Reward)
			}
			if step.Discount != 0 {
				t.Errorf("invalid terminal discount "+
					"\n\twant(%v)\n\thave(%v)", 0.0, step.Discount)
			}
			if !step.Terminal() {
				t.Error("falling was not reported as terminal")
			}
			return
		}
	}
	t.Fatal("pole never fell")
}

func TestStepLimitCutsOffWithFullDiscount(t *testing.T) {
	c, err := New(3, 17)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := c.Reset(); err != nil {
		t.Fatal(err)
	}

	noOp := mat.NewVecDense(1, []float64{1})
	var last bool
	for i := 0; i < 3; i++ {
		step, done, err := c.Step(noOp)
		if err != nil {
			t.Fatal(err)
		}
		last = done
		if done {
			if i != 2 {
				t.Errorf("episode cut off at step %d", i+1)
			}
			if step.Discount != 1 {
				t.Errorf("invalid cutoff discount "+
					"\n\twant(%v)\n\thave(%v)", 1.0, step.Discount)
			}
			if step.Terminal() {
				t.Error("cutoff was reported as terminal")
			}
		}
	}
	if !last {
		t.Error("episode was not cut off at the step limit")
	}
}

func TestStepRejectsIllegalActions(t *testing.T) {
	c, err := New(500, 18)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := c.Reset(); err != nil {
		t.Fatal(err)
	}

	for _, a := range []float64{-1, 3} {
		if _, _, err := c.Step(mat.NewVecDense(1, []float64{a})); err == nil {
			t.Errorf("action %v was not rejected", a)
		}
	}
}

func TestActionSpec(t *testing.T) {
	c, err := New(500, 19)
	if err != nil {
		t.Fatal(err)
	}

	spec := c.ActionSpec()
	if spec.LowerBound.AtVec(0) != 0 || spec.UpperBound.AtVec(0) != 2 {
		t.Errorf("invalid action bounds (%v, %v)",
			spec.LowerBound.AtVec(0), spec.UpperBound.AtVec(0))
	}
}
