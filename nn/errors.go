package nn

import (
	"fmt"

	"github.com/pkg/errors"
)

// These are the sentinel errors returned by the engine.
var (
	// ErrDiverged is returned by TrainBatch when the batch loss is NaN or
	// infinite. The update is discarded and the epoch does not advance.
	ErrDiverged = errors.New("training diverged: batch loss is not finite")

	ErrEmptyBatch = errors.New("batch has no samples")
	ErrLabelRange = errors.New("label out of range")
)

// ConfigError reports an invalid TrainingConfig or analysis configuration.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid config: %s %s", e.Field, e.Reason)
}

// IndexError reports a mask access outside the network's hidden layers.
type IndexError struct {
	Layer, Neuron   int
	Layers, Neurons int // bounds at the time of the call; Neurons is 0 if Layer was invalid
}

func (e *IndexError) Error() string {
	if e.Layer < 0 || e.Layer >= e.Layers {
		return fmt.Sprintf("layer index %d out of range [0, %d)", e.Layer, e.Layers)
	}
	return fmt.Sprintf("neuron index %d out of range [0, %d) in layer %d", e.Neuron, e.Neurons, e.Layer)
}

// SizeMismatchError reports a slice whose length does not match what the
// network expects.
type SizeMismatchError struct {
	What     string
	Expected int
	Got      int
}

func (e *SizeMismatchError) Error() string {
	return fmt.Sprintf("%s: expected length %d, got %d", e.What, e.Expected, e.Got)
}

func checkLen(what string, expected, got int) error {
	if expected != got {
		return &SizeMismatchError{What: what, Expected: expected, Got: got}
	}
	return nil
}

func checkLabel(label int) error {
	if label < 0 || label >= NumClasses {
		return errors.Wrapf(ErrLabelRange, "label %d not in [0, %d)", label, NumClasses)
	}
	return nil
}

// CheckLabel validates a class label for packages built on the engine.
func CheckLabel(label int) error {
	return checkLabel(label)
}
