package nn

import (
	"fmt"

	"github.com/pkg/errors"
)

const (
	// DefaultInputSize is a flattened 28x28 grayscale drawing.
	DefaultInputSize = 784
	// NumClasses is the width of the softmax output layer (digits 0-9).
	NumClasses = 10

	// MaxHiddenLayers bounds TrainingConfig.Layers.
	MaxHiddenLayers = 5
	// MaxLearningRate is the largest learning rate the engine accepts.
	MaxLearningRate = 1.0
)

// ActivationType defines the activation function used in a layer
type ActivationType int

const (
	ActivationReLU    ActivationType = 0 // max(0, v)
	ActivationSigmoid ActivationType = 1 // 1 / (1 + exp(-v))
	ActivationTanh    ActivationType = 2 // tanh(v)
)

var activationNames = [...]string{
	ActivationReLU:    "relu",
	ActivationSigmoid: "sigmoid",
	ActivationTanh:    "tanh",
}

// Valid reports whether a is one of the known activations.
func (a ActivationType) Valid() bool {
	return a >= 0 && int(a) < len(activationNames)
}

func (a ActivationType) String() string {
	if !a.Valid() {
		return "unknown"
	}
	return activationNames[a]
}

// ParseActivation maps "relu", "sigmoid" or "tanh" to an ActivationType.
func ParseActivation(s string) (ActivationType, error) {
	for i, name := range activationNames {
		if name == s {
			return ActivationType(i), nil
		}
	}
	return 0, errors.Errorf("unknown activation %q", s)
}

// MarshalText implements encoding.TextMarshaler so configs serialize as names.
func (a ActivationType) MarshalText() ([]byte, error) {
	if !a.Valid() {
		return nil, errors.Errorf("invalid activation %d", int(a))
	}
	return []byte(a.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (a *ActivationType) UnmarshalText(text []byte) error {
	parsed, err := ParseActivation(string(text))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// NeuronStatus is the ablation mask value of a single neuron.
type NeuronStatus int

const (
	// NeuronActive computes and learns normally.
	NeuronActive NeuronStatus = 0
	// NeuronFrozen computes normally but its incoming weights and bias are not updated.
	NeuronFrozen NeuronStatus = 1
	// NeuronKilled always outputs 0 and receives no gradient.
	NeuronKilled NeuronStatus = 2
)

var statusNames = [...]string{
	NeuronActive: "active",
	NeuronFrozen: "frozen",
	NeuronKilled: "killed",
}

func (s NeuronStatus) String() string {
	if s < 0 || int(s) >= len(statusNames) {
		return "unknown"
	}
	return statusNames[s]
}

// MarshalText implements encoding.TextMarshaler.
func (s NeuronStatus) MarshalText() ([]byte, error) {
	if s < 0 || int(s) >= len(statusNames) {
		return nil, errors.Errorf("invalid neuron status %d", int(s))
	}
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *NeuronStatus) UnmarshalText(text []byte) error {
	for i, name := range statusNames {
		if name == string(text) {
			*s = NeuronStatus(i)
			return nil
		}
	}
	return errors.Errorf("unknown neuron status %q", string(text))
}

// LayerConfig holds configuration for a single hidden layer
type LayerConfig struct {
	Neurons    int            `json:"neurons"`
	Activation ActivationType `json:"activation"`
}

// TrainingConfig defines the network topology and the SGD learning rate.
// Changing Layers requires building a new Network.
type TrainingConfig struct {
	LearningRate float32       `json:"learning_rate"`
	Layers       []LayerConfig `json:"layers"`
	Momentum     float32       `json:"momentum,omitempty"` // 0 = plain SGD
	Seed         int64         `json:"seed,omitempty"`     // 0 = seed from the clock
}

// DefaultTrainingConfig returns sensible defaults
func DefaultTrainingConfig() *TrainingConfig {
	return &TrainingConfig{
		LearningRate: 0.01,
		Layers: []LayerConfig{
			{Neurons: 32, Activation: ActivationReLU},
		},
	}
}

// Validate checks the config and returns a *ConfigError describing the first problem found.
func (c *TrainingConfig) Validate() error {
	if c == nil {
		return &ConfigError{Field: "config", Reason: "is nil"}
	}
	if err := validateLearningRate(c.LearningRate); err != nil {
		return err
	}
	if c.Momentum < 0 || c.Momentum >= 1 {
		return &ConfigError{Field: "momentum", Reason: fmt.Sprintf("must be in [0, 1), got %g", c.Momentum)}
	}
	if len(c.Layers) == 0 {
		return &ConfigError{Field: "layers", Reason: "at least one hidden layer is required"}
	}
	if len(c.Layers) > MaxHiddenLayers {
		return &ConfigError{Field: "layers", Reason: fmt.Sprintf("at most %d hidden layers are supported, got %d", MaxHiddenLayers, len(c.Layers))}
	}
	for i, l := range c.Layers {
		if l.Neurons <= 0 {
			return &ConfigError{Field: fmt.Sprintf("layers[%d].neurons", i), Reason: fmt.Sprintf("must be > 0, got %d", l.Neurons)}
		}
		if !l.Activation.Valid() {
			return &ConfigError{Field: fmt.Sprintf("layers[%d].activation", i), Reason: "unknown activation"}
		}
	}
	return nil
}

// clone returns a deep copy so callers cannot mutate a network's topology.
func (c TrainingConfig) clone() TrainingConfig {
	out := c
	out.Layers = make([]LayerConfig, len(c.Layers))
	copy(out.Layers, c.Layers)
	return out
}

func validateLearningRate(lr float32) error {
	if !(lr > 0) || lr > MaxLearningRate {
		return &ConfigError{Field: "learning_rate", Reason: fmt.Sprintf("must be in (0, %g], got %g", MaxLearningRate, lr)}
	}
	return nil
}

// LayerState is a point-in-time copy of one layer. It never aliases the
// network's live arrays.
type LayerState struct {
	Weights        [][]float32    `json:"weights"` // [neurons][inputs]
	Biases         []float32      `json:"biases"`
	PreActivations []float32      `json:"pre_activations"`
	Activations    []float32      `json:"activations"`
	Mask           []NeuronStatus `json:"mask"`
}

// Clone returns a deep copy of s.
func (s LayerState) Clone() LayerState {
	return LayerState{
		Weights:        copyMatrix(s.Weights),
		Biases:         copySlice(s.Biases),
		PreActivations: copySlice(s.PreActivations),
		Activations:    copySlice(s.Activations),
		Mask:           copyMask(s.Mask),
	}
}

// Prediction is the result of a single forward pass.
type Prediction struct {
	Label         int          `json:"label"`
	Probabilities []float32    `json:"probabilities"`
	Layers        []LayerState `json:"layers"` // hidden layers only
}

// TrainingSnapshot is an immutable copy of the network state after one TrainBatch call.
type TrainingSnapshot struct {
	NetworkID           string       `json:"network_id"`
	Epoch               int          `json:"epoch"`
	Loss                float32      `json:"loss"`
	Accuracy            float32      `json:"accuracy"`
	Layers              []LayerState `json:"layers"` // hidden layers only
	Predictions         []int        `json:"predictions"`
	OutputProbabilities []float32    `json:"output_probabilities"` // last sample of the batch
}

// LayerParams holds one layer's trainable parameters and its mask.
type LayerParams struct {
	Weights [][]float32    `json:"weights"`
	Biases  []float32      `json:"biases"`
	Mask    []NeuronStatus `json:"mask"`
}

// Params is a deep copy of every layer, hidden layers first and the
// softmax output layer last.
type Params struct {
	NetworkID string        `json:"network_id"`
	Epoch     int           `json:"epoch"`
	InputSize int           `json:"input_size"`
	Layers    []LayerParams `json:"layers"`
}

// Clone returns a deep copy of p.
func (p *Params) Clone() *Params {
	if p == nil {
		return nil
	}
	out := &Params{
		NetworkID: p.NetworkID,
		Epoch:     p.Epoch,
		InputSize: p.InputSize,
		Layers:    make([]LayerParams, len(p.Layers)),
	}
	for i, l := range p.Layers {
		out.Layers[i] = LayerParams{
			Weights: copyMatrix(l.Weights),
			Biases:  copySlice(l.Biases),
			Mask:    copyMask(l.Mask),
		}
	}
	return out
}
