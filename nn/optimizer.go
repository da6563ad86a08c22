package nn

// ============================================================================
// SGD Optimizer (Stochastic Gradient Descent with optional momentum)
// ============================================================================

// SGDOptimizer applies accumulated gradients to a network's layers. Neurons
// whose mask is frozen or killed keep their incoming weights and bias.
type SGDOptimizer struct {
	momentum   float32
	velocities map[int]*layerVelocity // keyed by layer index
}

type layerVelocity struct {
	weights [][]float32
	biases  []float32
}

func NewSGDOptimizerWithMomentum(momentum float32) *SGDOptimizer {
	return &SGDOptimizer{
		momentum:   momentum,
		velocities: make(map[int]*layerVelocity),
	}
}

// Step updates every layer: w -= scale * grad, or with momentum
// v = momentum*v + grad; w -= scale * v. Rows of frozen or killed neurons
// are skipped and their velocity cleared. Columns fed by a killed neuron of
// the previous layer are skipped the same way, so stale momentum never
// moves a killed neuron's outgoing weights.
func (opt *SGDOptimizer) Step(layers []*denseLayer, scale float32) {
	for idx, l := range layers {
		var sources []NeuronStatus
		if idx > 0 {
			sources = layers[idx-1].mask
		}
		if opt.momentum == 0 {
			opt.stepSimple(l, sources, scale)
			continue
		}
		opt.stepWithMomentum(idx, l, sources, scale)
	}
}

func killedSource(sources []NeuronStatus, i int) bool {
	return sources != nil && sources[i] == NeuronKilled
}

func (opt *SGDOptimizer) stepSimple(l *denseLayer, sources []NeuronStatus, scale float32) {
	for o, row := range l.weights {
		if l.mask[o] != NeuronActive {
			continue
		}
		grads := l.gradWeights[o]
		for i := range row {
			if killedSource(sources, i) {
				continue
			}
			row[i] -= scale * grads[i]
		}
		l.biases[o] -= scale * l.gradBiases[o]
	}
}

func (opt *SGDOptimizer) stepWithMomentum(idx int, l *denseLayer, sources []NeuronStatus, scale float32) {
	v := opt.velocities[idx]
	if v == nil {
		v = &layerVelocity{
			weights: make([][]float32, len(l.weights)),
			biases:  make([]float32, len(l.biases)),
		}
		for o := range v.weights {
			v.weights[o] = make([]float32, len(l.weights[o]))
		}
		opt.velocities[idx] = v
	}

	for o, row := range l.weights {
		vRow := v.weights[o]
		if l.mask[o] != NeuronActive {
			zeroSlice(vRow)
			v.biases[o] = 0
			continue
		}
		grads := l.gradWeights[o]
		for i := range row {
			if killedSource(sources, i) {
				vRow[i] = 0
				continue
			}
			vRow[i] = opt.momentum*vRow[i] + grads[i]
			row[i] -= scale * vRow[i]
		}
		v.biases[o] = opt.momentum*v.biases[o] + l.gradBiases[o]
		l.biases[o] -= scale * v.biases[o]
	}
}

// Reset clears momentum buffers.
func (opt *SGDOptimizer) Reset() {
	opt.velocities = make(map[int]*layerVelocity)
}

func (opt *SGDOptimizer) Name() string {
	if opt.momentum != 0 {
		return "sgd_momentum"
	}
	return "sgd"
}
