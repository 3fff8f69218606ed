package main

import (
	"fmt"

	"github.com/spf13/cobra"

	env "github.com/latentrl/dreamer/environment"
	"github.com/latentrl/dreamer/environment/classiccontrol/cartpole"
	"github.com/latentrl/dreamer/environment/wrappers"
)

// Observability modes of the environment
const (
	obsFull     = "full"     // raw observations
	obsOccluded = "occluded" // velocities zeroed
	obsStacked  = "stacked"  // velocities zeroed, frames stacked
)

const envName = "cartpole"

var (
	seed         uint64
	obsMode      string
	outDir       string
	episodeSteps int
	stackFrames  int

	steps           uint
	actorGrad       string
	checkpointEvery int
	evalEvery       uint
	evalEpisodes    int

	checkpointFile string
)

func rootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dreamer",
		Short: "Train and evaluate a Dreamer agent on Cartpole",
	}

	cmd.PersistentFlags().Uint64Var(&seed, "seed", 42, "Random seed")
	cmd.PersistentFlags().StringVar(&obsMode, "obs-mode", obsFull,
		"Observability mode: full, occluded, or stacked")
	cmd.PersistentFlags().StringVar(&outDir, "out", "results",
		"Directory for checkpoints, metrics, and tracked data")
	cmd.PersistentFlags().IntVar(&episodeSteps, "episode-steps", 500,
		"Step limit per episode")
	cmd.PersistentFlags().IntVar(&stackFrames, "stack-frames", 3,
		"Frames to stack in stacked mode")

	cmd.AddCommand(
		trainCommand(),
		evalCommand(),
	)

	return cmd
}

// buildEnvironment constructs the Cartpole environment wrapped for the
// selected observability mode. Occluded modes zero the cart speed and
// the pole's angular velocity.
func buildEnvironment(seed uint64) (env.Environment, error) {
	e, err := cartpole.New(episodeSteps, seed)
	if err != nil {
		return nil, fmt.Errorf("buildEnvironment: %v", err)
	}

	velocities := []int{1, 3}
	switch obsMode {
	case obsFull:
		return e, nil

	case obsOccluded:
		return wrappers.NewOcclude(e, velocities)

	case obsStacked:
		occluded, err := wrappers.NewOcclude(e, velocities)
		if err != nil {
			return nil, fmt.Errorf("buildEnvironment: %v", err)
		}
		return wrappers.NewFrameStack(occluded, stackFrames)

	default:
		return nil, fmt.Errorf("buildEnvironment: unknown "+
			"observability mode %q", obsMode)
	}
}
