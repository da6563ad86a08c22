package nn

import (
	"github.com/pkg/errors"
)

// ComputeInputGradient returns d log p[target] / d input for a single
// sample, treating the input as the only variable. Parameters are not
// modified.
func (n *Network) ComputeInputGradient(input []float32, targetClass int) ([]float32, error) {
	if err := checkLabel(targetClass); err != nil {
		return nil, err
	}
	weights := make([]float32, NumClasses)
	weights[targetClass] = 1
	return n.ComputeWeightedInputGradient(input, weights)
}

// ComputeWeightedInputGradient returns the input gradient of
// sum_c weights[c] * log p[c]. Because the objective is linear in the
// per-class log-probabilities, this equals the weighted sum of the
// per-class ComputeInputGradient results but needs a single backward pass.
func (n *Network) ComputeWeightedInputGradient(input []float32, weights []float32) ([]float32, error) {
	if err := checkLen("class weights", NumClasses, len(weights)); err != nil {
		return nil, err
	}
	if err := n.Forward(input); err != nil {
		return nil, err
	}

	// d/dlogits of sum_c w_c log p_c = w - (sum w) * p
	probs := n.probabilities()
	total := float32(0)
	for _, w := range weights {
		total += w
	}
	dLogits := make([]float32, NumClasses)
	for c := range dLogits {
		dLogits[c] = weights[c] - total*probs[c]
	}

	gradInput, _ := n.backward(dLogits, false)
	return gradInput, nil
}

// LayerGradient holds single-sample gradients of the cross-entropy loss for one layer.
type LayerGradient struct {
	Weights [][]float32 `json:"weights"` // dL/dW, [neurons][inputs]
	Biases  []float32   `json:"biases"`  // dL/db
	Deltas  []float32   `json:"deltas"`  // dL/d(pre-activation)
}

// GradientSample is the result of a forward and backward pass for one
// labeled sample without a parameter update.
type GradientSample struct {
	Loss          float32         `json:"loss"`
	Probabilities []float32       `json:"probabilities"`
	Layers        []LayerGradient `json:"layers"` // hidden layers, then output
	States        []LayerState    `json:"states"` // hidden layers, then output
	Input         []float32       `json:"input"`  // dL/dinput
}

// SampleGradients runs forward and backward for one sample and returns the
// gradients every layer would receive, leaving the parameters unchanged.
func (n *Network) SampleGradients(input []float32, label int) (*GradientSample, error) {
	if err := checkLabel(label); err != nil {
		return nil, err
	}
	if err := n.Forward(input); err != nil {
		return nil, errors.Wrap(err, "sample gradients")
	}

	probs := copySlice(n.probabilities())
	dLogits := copySlice(probs)
	dLogits[label] -= 1
	gradInput, deltas := n.backward(dLogits, false)

	sample := &GradientSample{
		Loss:          CrossEntropy(probs, label),
		Probabilities: probs,
		Layers:        make([]LayerGradient, len(n.layers)),
		States:        make([]LayerState, len(n.layers)),
		Input:         gradInput,
	}

	for i, l := range n.layers {
		in := n.input
		if i > 0 {
			in = n.layers[i-1].act
		}
		g := LayerGradient{
			Weights: make([][]float32, l.size()),
			Biases:  copySlice(deltas[i]),
			Deltas:  deltas[i],
		}
		for o, d := range deltas[i] {
			row := make([]float32, len(in))
			for j, x := range in {
				row[j] = x * d
			}
			g.Weights[o] = row
		}
		sample.Layers[i] = g
		sample.States[i] = l.state()
	}

	return sample, nil
}
