package nn

import (
	"testing"

	"github.com/pkg/errors"
)

func TestSchedulers(t *testing.T) {
	tests := []struct {
		name  string
		cfg   ScheduleConfig
		epoch int
		want  float32
	}{
		{"constant", ScheduleConfig{}, 100, 0.1},
		{"step before first decay", ScheduleConfig{Kind: "step", DecayFactor: 0.5, StepSize: 10}, 9, 0.1},
		{"step after two decays", ScheduleConfig{Kind: "step", DecayFactor: 0.5, StepSize: 10}, 25, 0.025},
		{"cosine start", ScheduleConfig{Kind: "cosine", MinLR: 0.01, TotalSteps: 100}, 0, 0.1},
		{"cosine midpoint", ScheduleConfig{Kind: "cosine", MinLR: 0.01, TotalSteps: 100}, 50, 0.055},
		{"cosine past end", ScheduleConfig{Kind: "cosine", MinLR: 0.01, TotalSteps: 100}, 500, 0.01},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			s, err := NewScheduler(tc.cfg, 0.1)
			if err != nil {
				t.Fatalf("NewScheduler failed: %v", err)
			}
			if got := s.GetLR(tc.epoch); got-tc.want > 1e-6 || tc.want-got > 1e-6 {
				t.Errorf("%s.GetLR(%d) = %v, want %v", s.Name(), tc.epoch, got, tc.want)
			}
		})
	}
}

func TestSchedulerValidation(t *testing.T) {
	bad := []ScheduleConfig{
		{Kind: "warp"},
		{Kind: "step", DecayFactor: 0.5},
		{Kind: "step", DecayFactor: 2, StepSize: 3},
		{Kind: "cosine", MinLR: 0.01},
		{Kind: "cosine", MinLR: 0.5, TotalSteps: 10},
	}
	for _, cfg := range bad {
		var cfgErr *ConfigError
		if _, err := NewScheduler(cfg, 0.1); !errors.As(err, &cfgErr) {
			t.Errorf("Expected *ConfigError for %+v, got %v", cfg, err)
		}
	}
	if _, err := NewScheduler(ScheduleConfig{}, 0); err == nil {
		t.Error("Expected error for zero base learning rate")
	}
}

func TestApplySchedule(t *testing.T) {
	network, _ := NewNetwork(4, TrainingConfig{LearningRate: 0.2, Layers: []LayerConfig{{Neurons: 3}}, Seed: 1})
	s, _ := NewScheduler(ScheduleConfig{Kind: "step", DecayFactor: 0.5, StepSize: 1}, 0.2)

	input := [][]float32{{1, 0, 0, 0}}
	for i := 0; i < 2; i++ {
		if _, err := network.TrainBatch(input, []int{0}); err != nil {
			t.Fatalf("TrainBatch failed: %v", err)
		}
	}
	if err := network.ApplySchedule(s); err != nil {
		t.Fatalf("ApplySchedule failed: %v", err)
	}
	if lr := network.Config().LearningRate; lr != 0.05 {
		t.Errorf("Expected learning rate 0.05 after 2 epochs, got %v", lr)
	}
}
