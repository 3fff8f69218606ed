package dreamer

import "fmt"

// NumericalError indicates that a training update produced a
// non-finite loss. It is fatal: continuing to train after a NaN or Inf
// corrupts the recurrent state and the optimizer moments irreversibly,
// so the run must stop at the offending update.
type NumericalError struct {
	Component string // "world model" or "actor-critic"
	Loss      float64
	Iteration int
}

func (n *NumericalError) Error() string {
	return fmt.Sprintf("non-finite %v loss %v at training iteration %v",
		n.Component, n.Loss, n.Iteration)
}
