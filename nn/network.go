package nn

import (
	"math/rand"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// Network is a fully-connected feed-forward classifier: the hidden layers
// described by a TrainingConfig followed by a 10-way softmax output layer.
//
// A Network has exactly one owner. Query methods return deep copies, so a
// snapshot held by a reader is never changed by a later training step.
// Methods must not be called concurrently.
type Network struct {
	ID        string // changes on Reset
	InputSize int

	config TrainingConfig
	rng    *rand.Rand

	layers []*denseLayer // hidden layers, then the output layer
	input  []float32     // input of the most recent forward pass

	epoch           int
	lossHistory     []float32
	accuracyHistory []float32

	optimizer *SGDOptimizer
	observer  Observer
}

// InitNetwork builds a network for flattened 28x28 drawings.
func InitNetwork(config TrainingConfig) (*Network, error) {
	return NewNetwork(DefaultInputSize, config)
}

// NewNetwork creates a network with the given input width. The config is
// validated and copied; an invalid config yields a *ConfigError.
func NewNetwork(inputSize int, config TrainingConfig) (*Network, error) {
	if inputSize <= 0 {
		return nil, &ConfigError{Field: "input_size", Reason: "must be > 0"}
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}

	n := &Network{
		InputSize: inputSize,
		config:    config.clone(),
		optimizer: NewSGDOptimizerWithMomentum(config.Momentum),
	}
	n.init()
	return n, nil
}

// init (re)allocates all layers from the config with fresh random weights.
func (n *Network) init() {
	seed := n.config.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	n.rng = rand.New(rand.NewSource(seed))
	n.ID = uuid.NewString()

	n.layers = make([]*denseLayer, 0, len(n.config.Layers)+1)
	prev := n.InputSize
	for _, lc := range n.config.Layers {
		n.layers = append(n.layers, newDenseLayer(prev, lc.Neurons, lc.Activation, false, n.rng))
		prev = lc.Neurons
	}
	// the output activation is unused: logits go straight through softmax
	n.layers = append(n.layers, newDenseLayer(prev, NumClasses, ActivationReLU, true, n.rng))

	n.input = make([]float32, n.InputSize)
	n.epoch = 0
	n.lossHistory = nil
	n.accuracyHistory = nil
	n.optimizer.Reset()
}

// Reset discards all trained state: weights are re-initialized, masks and
// history cleared, and the network receives a new ID. With a fixed Seed
// the fresh weights equal those of a newly constructed network.
func (n *Network) Reset() {
	n.init()
}

// Config returns a copy of the configuration the network was built from,
// including the current learning rate.
func (n *Network) Config() TrainingConfig {
	return n.config.clone()
}

// SetLearningRate changes the SGD step size without rebuilding the network.
func (n *Network) SetLearningRate(lr float32) error {
	if err := validateLearningRate(lr); err != nil {
		return err
	}
	n.config.LearningRate = lr
	return nil
}

// SetObserver attaches an observer notified after every training step. Pass nil to detach.
func (n *Network) SetObserver(o Observer) {
	n.observer = o
}

// HiddenLayers returns the number of hidden (maskable) layers.
func (n *Network) HiddenLayers() int {
	return len(n.layers) - 1
}

// Epoch returns the number of successful TrainBatch calls since construction or Reset.
func (n *Network) Epoch() int {
	return n.epoch
}

// LossHistory returns a copy of the per-epoch mean batch loss.
func (n *Network) LossHistory() []float32 {
	return copySlice(n.lossHistory)
}

// AccuracyHistory returns a copy of the per-epoch batch accuracy.
func (n *Network) AccuracyHistory() []float32 {
	return copySlice(n.accuracyHistory)
}

// Forward runs one sample through the network, filling every layer's
// pre-activation and activation buffers. The output layer's activations
// are the class probabilities. Non-finite probabilities yield ErrDiverged.
func (n *Network) Forward(input []float32) error {
	if err := checkLen("input", n.InputSize, len(input)); err != nil {
		return err
	}
	n.forward(input)
	if !n.outputFinite() {
		return errors.Wrap(ErrDiverged, "forward: output is not finite")
	}
	return nil
}

func (n *Network) outputFinite() bool {
	for _, p := range n.probabilities() {
		if !IsFinite(p) {
			return false
		}
	}
	return true
}

func (n *Network) forward(input []float32) {
	copy(n.input, input)
	data := n.input
	for _, l := range n.layers {
		l.forward(data)
		data = l.act
	}
}

func (n *Network) outputLayer() *denseLayer {
	return n.layers[len(n.layers)-1]
}

// probabilities returns the live softmax buffer; callers must copy it.
func (n *Network) probabilities() []float32 {
	return n.outputLayer().act
}

// Predict runs a forward pass and returns a snapshot of the result. It does
// not touch training history.
func (n *Network) Predict(input []float32) (*Prediction, error) {
	if err := n.Forward(input); err != nil {
		return nil, err
	}
	probs := copySlice(n.probabilities())
	return &Prediction{
		Label:         Argmax(probs),
		Probabilities: probs,
		Layers:        n.hiddenStates(),
	}, nil
}

// Probabilities runs a forward pass and returns only the class probabilities.
func (n *Network) Probabilities(input []float32) ([]float32, error) {
	if err := n.Forward(input); err != nil {
		return nil, err
	}
	return copySlice(n.probabilities()), nil
}

func (n *Network) hiddenStates() []LayerState {
	states := make([]LayerState, n.HiddenLayers())
	for i := range states {
		states[i] = n.layers[i].state()
	}
	return states
}

// Layers returns copies of the hidden layers as of the most recent forward pass.
func (n *Network) Layers() []LayerState {
	return n.hiddenStates()
}

// Params returns a deep copy of all parameters and masks, output layer last.
func (n *Network) Params() *Params {
	p := &Params{
		NetworkID: n.ID,
		Epoch:     n.epoch,
		InputSize: n.InputSize,
		Layers:    make([]LayerParams, len(n.layers)),
	}
	for i, l := range n.layers {
		p.Layers[i] = l.params()
	}
	return p
}

// restoreParams copies saved weights and biases back into the live layers.
// Masks are left as they are.
func (n *Network) restoreParams(p *Params) {
	for i, l := range n.layers {
		saved := p.Layers[i]
		for o, row := range saved.Weights {
			copy(l.weights[o], row)
		}
		copy(l.biases, saved.Biases)
	}
}

// Activation returns the activation function of hidden layer idx.
func (n *Network) Activation(layerIdx int) (ActivationType, error) {
	if layerIdx < 0 || layerIdx >= n.HiddenLayers() {
		return 0, &IndexError{Layer: layerIdx, Layers: n.HiddenLayers()}
	}
	return n.layers[layerIdx].activation, nil
}

// ============================================================================
// Ablation masks
// ============================================================================

func (n *Network) checkNeuron(layerIdx, neuronIdx int) error {
	if layerIdx < 0 || layerIdx >= n.HiddenLayers() {
		return &IndexError{Layer: layerIdx, Neuron: neuronIdx, Layers: n.HiddenLayers()}
	}
	size := n.layers[layerIdx].size()
	if neuronIdx < 0 || neuronIdx >= size {
		return &IndexError{Layer: layerIdx, Neuron: neuronIdx, Layers: n.HiddenLayers(), Neurons: size}
	}
	return nil
}

// SetNeuronStatus sets the mask of one hidden neuron. Out-of-range indices
// return an *IndexError.
func (n *Network) SetNeuronStatus(layerIdx, neuronIdx int, status NeuronStatus) error {
	if err := n.checkNeuron(layerIdx, neuronIdx); err != nil {
		return err
	}
	if status < NeuronActive || status > NeuronKilled {
		return errors.Errorf("invalid neuron status %d", int(status))
	}
	n.layers[layerIdx].mask[neuronIdx] = status
	return nil
}

// GetNeuronStatus returns the mask of one hidden neuron.
func (n *Network) GetNeuronStatus(layerIdx, neuronIdx int) (NeuronStatus, error) {
	if err := n.checkNeuron(layerIdx, neuronIdx); err != nil {
		return NeuronActive, err
	}
	return n.layers[layerIdx].mask[neuronIdx], nil
}

// ClearAllMasks marks every neuron active.
func (n *Network) ClearAllMasks() {
	for _, l := range n.layers {
		for i := range l.mask {
			l.mask[i] = NeuronActive
		}
	}
}
