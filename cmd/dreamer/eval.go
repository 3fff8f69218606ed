package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/latentrl/dreamer/agent/dreamer"
	"github.com/latentrl/dreamer/experiment"
)

func evalCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "eval",
		Short: "Evaluate a Dreamer agent from a checkpoint",
		RunE: func(cmd *cobra.Command, args []string) error {
			return eval()
		},
	}

	cmd.Flags().StringVar(&checkpointFile, "checkpoint", "",
		"Checkpoint file to evaluate")
	cmd.Flags().IntVar(&evalEpisodes, "eval-episodes", 10,
		"Episodes to evaluate for")
	cmd.MarkFlagRequired("checkpoint")

	return cmd
}

func eval() error {
	e, err := buildEnvironment(seed)
	if err != nil {
		return fmt.Errorf("eval: %v", err)
	}

	config, err := dreamer.NewDefaultConfig(seed)
	if err != nil {
		return fmt.Errorf("eval: %v", err)
	}

	agent, err := dreamer.New(e, config, seed)
	if err != nil {
		return fmt.Errorf("eval: %v", err)
	}
	if err := agent.Restore(checkpointFile); err != nil {
		return fmt.Errorf("eval: %v", err)
	}

	evaluator, err := experiment.NewEvaluator(e, evalEpisodes,
		episodeSteps)
	if err != nil {
		return fmt.Errorf("eval: %v", err)
	}

	mean, err := evaluator.Evaluate(agent)
	if err != nil {
		return fmt.Errorf("eval: %v", err)
	}

	fmt.Printf("mean return over %d episodes: %f\n", evalEpisodes, mean)
	return nil
}
