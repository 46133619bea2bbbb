package agent

import (
	"fmt"
	"io"

	"gopkg.in/yaml.v3"
)

// Report summarizes a training iteration
type Report struct {
	Iteration         int     `yaml:"iteration"`
	TimestepsTotal    int     `yaml:"timesteps_total"`
	TimestepsThisIter int     `yaml:"timesteps_this_iter"`
	EpisodesThisIter  int     `yaml:"episodes_this_iter"`
	EpisodeRewardMean float64 `yaml:"episode_reward_mean"`
	EpisodeRewardMin  float64 `yaml:"episode_reward_min"`
	EpisodeRewardMax  float64 `yaml:"episode_reward_max"`
	EpisodeLenMean    float64 `yaml:"episode_len_mean"`
	PolicyLoss        float64 `yaml:"policy_loss"`
	VFLoss            float64 `yaml:"vf_loss"`
	Entropy           float64 `yaml:"entropy"`
	TimeThisIterS     float64 `yaml:"time_this_iter_s"`
	NumWorkers        int     `yaml:"num_workers"`

	Evaluation *EvaluationReport `yaml:"evaluation,omitempty"`
}

// EvaluationReport summarizes the greedy episodes of a periodic
// evaluation
type EvaluationReport struct {
	Episodes          int     `yaml:"episodes"`
	EpisodeRewardMean float64 `yaml:"episode_reward_mean"`
	EpisodeLenMean    float64 `yaml:"episode_len_mean"`
}

// Write writes the Report to w as YAML
func (r Report) Write(w io.Writer) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(r); err != nil {
		return fmt.Errorf("write: could not encode report: %w", err)
	}
	return enc.Close()
}
