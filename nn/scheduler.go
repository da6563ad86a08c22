package nn

import (
	"fmt"

	"github.com/chewxy/math32"
)

// LRScheduler maps a training epoch to a learning rate.
type LRScheduler interface {
	// GetLR returns the learning rate to use for the step after epoch.
	GetLR(epoch int) float32
	Name() string
}

// ScheduleConfig selects and parameterizes a scheduler.
type ScheduleConfig struct {
	Kind        string  `json:"kind"`                   // "constant", "step" or "cosine"
	DecayFactor float32 `json:"decay_factor,omitempty"` // step
	StepSize    int     `json:"step_size,omitempty"`    // step
	MinLR       float32 `json:"min_lr,omitempty"`       // cosine
	TotalSteps  int     `json:"total_steps,omitempty"`  // cosine
}

// NewScheduler builds the scheduler described by cfg, starting at baseLR.
// An empty Kind means constant.
func NewScheduler(cfg ScheduleConfig, baseLR float32) (LRScheduler, error) {
	if err := validateLearningRate(baseLR); err != nil {
		return nil, err
	}
	switch cfg.Kind {
	case "", "constant":
		return ConstantScheduler{baseLR: baseLR}, nil
	case "step":
		if cfg.StepSize <= 0 {
			return nil, &ConfigError{Field: "schedule.step_size", Reason: fmt.Sprintf("must be > 0, got %d", cfg.StepSize)}
		}
		if !(cfg.DecayFactor > 0) || cfg.DecayFactor > 1 {
			return nil, &ConfigError{Field: "schedule.decay_factor", Reason: fmt.Sprintf("must be in (0, 1], got %g", cfg.DecayFactor)}
		}
		return StepDecayScheduler{initialLR: baseLR, decayFactor: cfg.DecayFactor, stepSize: cfg.StepSize}, nil
	case "cosine":
		if cfg.TotalSteps <= 0 {
			return nil, &ConfigError{Field: "schedule.total_steps", Reason: fmt.Sprintf("must be > 0, got %d", cfg.TotalSteps)}
		}
		if !(cfg.MinLR > 0) || cfg.MinLR > baseLR {
			return nil, &ConfigError{Field: "schedule.min_lr", Reason: fmt.Sprintf("must be in (0, %g], got %g", baseLR, cfg.MinLR)}
		}
		return CosineAnnealingScheduler{initialLR: baseLR, minLR: cfg.MinLR, totalSteps: cfg.TotalSteps}, nil
	}
	return nil, &ConfigError{Field: "schedule.kind", Reason: fmt.Sprintf("unknown scheduler %q", cfg.Kind)}
}

// ApplySchedule sets the learning rate the scheduler gives for the
// network's current epoch.
func (n *Network) ApplySchedule(s LRScheduler) error {
	return n.SetLearningRate(s.GetLR(n.epoch))
}

// ============================================================================
// Constant Scheduler - Fixed learning rate
// ============================================================================

type ConstantScheduler struct {
	baseLR float32
}

func (s ConstantScheduler) GetLR(int) float32 { return s.baseLR }

func (s ConstantScheduler) Name() string { return "constant" }

// ============================================================================
// Step Decay Scheduler - lr = initialLR * decayFactor^(epoch / stepSize)
// ============================================================================

type StepDecayScheduler struct {
	initialLR   float32
	decayFactor float32
	stepSize    int
}

func (s StepDecayScheduler) GetLR(epoch int) float32 {
	return s.initialLR * math32.Pow(s.decayFactor, float32(epoch/s.stepSize))
}

func (s StepDecayScheduler) Name() string { return "step" }

// ============================================================================
// Cosine Annealing Scheduler - half a cosine from initialLR down to minLR
// ============================================================================

type CosineAnnealingScheduler struct {
	initialLR  float32
	minLR      float32
	totalSteps int
}

func (s CosineAnnealingScheduler) GetLR(epoch int) float32 {
	if epoch >= s.totalSteps {
		return s.minLR
	}
	progress := float32(epoch) / float32(s.totalSteps)
	return s.minLR + (s.initialLR-s.minLR)*(1+math32.Cos(math32.Pi*progress))/2
}

func (s CosineAnnealingScheduler) Name() string { return "cosine" }
