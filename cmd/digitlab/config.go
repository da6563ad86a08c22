package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/pkg/errors"

	"github.com/openfluke/digitlab/analytics"
	"github.com/openfluke/digitlab/nn"
)

// Config is the JSON file accepted by -config. Missing fields keep their
// defaults.
type Config struct {
	Training nn.TrainingConfig       `json:"training"`
	Schedule nn.ScheduleConfig       `json:"schedule"`
	Monitor  analytics.MonitorConfig `json:"monitor"`

	Epochs          int `json:"epochs"`
	BatchSize       int `json:"batch_size"`
	EvalSize        int `json:"eval_size"`        // test samples used by the monitor
	HistoryCapacity int `json:"history_capacity"` // ring size of both recorders
	FrameEvery      int `json:"frame_every"`      // epochs between weight frames
	LogEvery        int `json:"log_every"`
	DreamClass      int `json:"dream_class"` // -1 disables the final dream
}

func defaultConfig() *Config {
	return &Config{
		Training:        *nn.DefaultTrainingConfig(),
		Monitor:         analytics.DefaultMonitorConfig(),
		Epochs:          200,
		BatchSize:       32,
		EvalSize:        500,
		HistoryCapacity: 100,
		FrameEvery:      10,
		LogEvery:        10,
		DreamClass:      3,
	}
}

// loadConfig reads path over the defaults. An empty path returns the defaults.
func loadConfig(path string) (*Config, error) {
	cfg := defaultConfig()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read config")
	}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, errors.Wrapf(err, "parse config %s", path)
	}
	return cfg, nil
}

// Validate checks the driver settings and the embedded training config.
func (c *Config) Validate() error {
	if err := c.Training.Validate(); err != nil {
		return err
	}
	if _, err := nn.NewScheduler(c.Schedule, c.Training.LearningRate); err != nil {
		return err
	}
	positive := []struct {
		field string
		v     int
	}{
		{"epochs", c.Epochs},
		{"batch_size", c.BatchSize},
		{"eval_size", c.EvalSize},
		{"history_capacity", c.HistoryCapacity},
		{"frame_every", c.FrameEvery},
	}
	for _, p := range positive {
		if p.v <= 0 {
			return &nn.ConfigError{Field: p.field, Reason: fmt.Sprintf("must be > 0, got %d", p.v)}
		}
	}
	if c.DreamClass >= nn.NumClasses {
		return &nn.ConfigError{Field: "dream_class", Reason: fmt.Sprintf("must be < %d, got %d", nn.NumClasses, c.DreamClass)}
	}
	return nil
}
