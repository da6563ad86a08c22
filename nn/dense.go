package nn

import (
	"math"
	"math/rand"
)

// denseLayer is a fully-connected layer with a per-neuron ablation mask.
// The output layer has no activation; its activations hold the softmax
// probabilities.
type denseLayer struct {
	activation ActivationType
	output     bool

	weights [][]float32 // [neurons][inputs]
	biases  []float32
	mask    []NeuronStatus

	preAct []float32
	act    []float32

	// gradient accumulators, reset at the start of every batch
	gradWeights [][]float32
	gradBiases  []float32
}

// newDenseLayer allocates a layer and initializes its weights.
// Hidden ReLU layers use He initialization, everything else Xavier; biases start at zero.
func newDenseLayer(inputSize, outputSize int, activation ActivationType, output bool, rng *rand.Rand) *denseLayer {
	fanIn := float64(inputSize)
	stddev := math.Sqrt(1.0 / fanIn)
	if !output && activation == ActivationReLU {
		stddev = math.Sqrt(2.0 / fanIn)
	}

	l := &denseLayer{
		activation:  activation,
		output:      output,
		weights:     make([][]float32, outputSize),
		biases:      make([]float32, outputSize),
		mask:        make([]NeuronStatus, outputSize),
		preAct:      make([]float32, outputSize),
		act:         make([]float32, outputSize),
		gradWeights: make([][]float32, outputSize),
		gradBiases:  make([]float32, outputSize),
	}
	for o := 0; o < outputSize; o++ {
		l.weights[o] = make([]float32, inputSize)
		l.gradWeights[o] = make([]float32, inputSize)
		for i := range l.weights[o] {
			l.weights[o][i] = float32(rng.NormFloat64() * stddev)
		}
	}
	return l
}

func (l *denseLayer) size() int { return len(l.weights) }

// forward computes pre-activations and activations for one sample.
// Killed neurons are forced to 0 regardless of their weighted sum.
func (l *denseLayer) forward(input []float32) {
	for o, row := range l.weights {
		sum := l.biases[o]
		for i, w := range row {
			sum += w * input[i]
		}
		l.preAct[o] = sum
	}

	if l.output {
		softmaxInto(l.act, l.preAct)
		return
	}

	for o, pre := range l.preAct {
		if l.mask[o] == NeuronKilled {
			l.act[o] = 0
			continue
		}
		l.act[o] = l.activation.Activate(pre)
	}
}

// backward takes dL/d(activation) for a hidden layer, or dL/d(logits) for
// the output layer, and returns dL/d(input). When accumulate is set the
// parameter gradients are added into the layer's accumulators.
func (l *denseLayer) backward(gradOut, input []float32, accumulate bool) (gradInput, delta []float32) {
	delta = make([]float32, len(gradOut))
	for o, g := range gradOut {
		switch {
		case l.output:
			delta[o] = g
		case l.mask[o] == NeuronKilled:
			// constant output, no gradient in either direction
			delta[o] = 0
		default:
			delta[o] = g * l.activation.Derivative(l.preAct[o])
		}
	}

	gradInput = make([]float32, len(input))
	for o, d := range delta {
		if d == 0 {
			continue
		}
		row := l.weights[o]
		for i, w := range row {
			gradInput[i] += w * d
		}
		if accumulate {
			gRow := l.gradWeights[o]
			for i, x := range input {
				gRow[i] += x * d
			}
			l.gradBiases[o] += d
		}
	}
	return gradInput, delta
}

func (l *denseLayer) zeroGradients() {
	zeroMatrix(l.gradWeights)
	zeroSlice(l.gradBiases)
}

func (l *denseLayer) state() LayerState {
	return LayerState{
		Weights:        copyMatrix(l.weights),
		Biases:         copySlice(l.biases),
		PreActivations: copySlice(l.preAct),
		Activations:    copySlice(l.act),
		Mask:           copyMask(l.mask),
	}
}

func (l *denseLayer) params() LayerParams {
	return LayerParams{
		Weights: copyMatrix(l.weights),
		Biases:  copySlice(l.biases),
		Mask:    copyMask(l.mask),
	}
}
