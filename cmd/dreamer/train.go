package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/latentrl/dreamer/agent/dreamer"
	"github.com/latentrl/dreamer/experiment"
	"github.com/latentrl/dreamer/experiment/checkpointer"
	"github.com/latentrl/dreamer/experiment/trackers"
	"github.com/latentrl/dreamer/metrics"
)

func trainCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "train",
		Short: "Train a Dreamer agent",
		RunE: func(cmd *cobra.Command, args []string) error {
			return train()
		},
	}

	cmd.Flags().UintVar(&steps, "steps", 100_000,
		"Environment steps to train for")
	cmd.Flags().StringVar(&actorGrad, "actor-grad", dreamer.Reinforce,
		"Actor gradient estimator: dynamics or reinforce")
	cmd.Flags().IntVar(&checkpointEvery, "checkpoint-every", 10_000,
		"Environment steps between checkpoints")
	cmd.Flags().UintVar(&evalEvery, "eval-every", 5_000,
		"Environment steps between evaluations")
	cmd.Flags().IntVar(&evalEpisodes, "eval-episodes", 5,
		"Episodes per evaluation")

	return cmd
}

func train() error {
	runDir := checkpointer.Dir(outDir, envName, obsMode)
	if err := os.MkdirAll(runDir, 0o755); err != nil {
		return fmt.Errorf("train: could not create output directory: %v",
			err)
	}

	e, err := buildEnvironment(seed)
	if err != nil {
		return fmt.Errorf("train: %v", err)
	}
	evalEnv, err := buildEnvironment(seed + 1)
	if err != nil {
		return fmt.Errorf("train: %v", err)
	}

	config, err := dreamer.NewDefaultConfig(seed)
	if err != nil {
		return fmt.Errorf("train: %v", err)
	}
	config.ActorGrad = actorGrad

	agent, err := dreamer.New(e, config, seed)
	if err != nil {
		return fmt.Errorf("train: %v", err)
	}

	fileSink, err := metrics.NewFile(filepath.Join(runDir, "metrics.bin"))
	if err != nil {
		return fmt.Errorf("train: %v", err)
	}
	logger := metrics.NewMulti(metrics.NewConsole(), fileSink)
	defer logger.Close()
	agent.SetLogger(logger)

	track := []trackers.Tracker{
		trackers.NewReturn(filepath.Join(runDir, "returns.bin")),
		trackers.NewEpisodeLength(filepath.Join(runDir, "lengths.bin")),
	}
	check := []checkpointer.Checkpointer{
		checkpointer.NewNStep(checkpointEvery, agent,
			checkpointer.StepNamer(runDir)),
	}

	exp := experiment.NewOnline(e, agent, steps, track, check)
	exp.SetLogger(logger)

	evaluator, err := experiment.NewEvaluator(evalEnv, evalEpisodes,
		episodeSteps)
	if err != nil {
		return fmt.Errorf("train: %v", err)
	}
	exp.SetEvaluator(evaluator, evalEvery)

	if err := exp.Run(); err != nil {
		return fmt.Errorf("train: %w", err)
	}
	return exp.Save()
}
