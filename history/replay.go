package history

import (
	"github.com/pkg/errors"

	"github.com/openfluke/digitlab/nn"
)

// Replay is a prediction computed from saved parameters.
type Replay struct {
	Probabilities []float32 `json:"probabilities"`
	Label         int       `json:"label"`
}

// ReplayForward runs input through saved parameters without touching any
// live network. activations gives one function per hidden layer; a single
// entry applies to all of them. Killed neurons in the saved masks output 0.
func ReplayForward(params *nn.Params, input []float32, activations []nn.ActivationType) (*Replay, error) {
	if params == nil || len(params.Layers) < 2 {
		return nil, errors.New("replay: params need at least one hidden layer and an output layer")
	}
	hidden := len(params.Layers) - 1
	if len(activations) != 1 && len(activations) != hidden {
		return nil, &nn.SizeMismatchError{What: "activations", Expected: hidden, Got: len(activations)}
	}
	if len(input) != params.InputSize {
		return nil, &nn.SizeMismatchError{What: "input", Expected: params.InputSize, Got: len(input)}
	}

	data := input
	for li, layer := range params.Layers {
		out := make([]float32, len(layer.Weights))
		for o, row := range layer.Weights {
			if len(row) != len(data) {
				return nil, errors.Wrapf(&nn.SizeMismatchError{What: "weights", Expected: len(data), Got: len(row)}, "layer %d neuron %d", li, o)
			}
			sum := layer.Biases[o]
			for i, w := range row {
				sum += w * data[i]
			}
			out[o] = sum
		}

		if li == hidden {
			probs := nn.Softmax(out)
			return &Replay{Probabilities: probs, Label: nn.Argmax(probs)}, nil
		}

		act := activations[0]
		if len(activations) > 1 {
			act = activations[li]
		}
		for o := range out {
			if o < len(layer.Mask) && layer.Mask[o] == nn.NeuronKilled {
				out[o] = 0
				continue
			}
			out[o] = act.Activate(out[o])
		}
		data = out
	}
	return nil, errors.New("replay: unreachable")
}

// ConfidencePoint is the replayed confidence of one frame.
type ConfidencePoint struct {
	Epoch      int     `json:"epoch"`
	Confidence float32 `json:"confidence"` // probability of the requested label
	Predicted  int     `json:"predicted"`
}

// ConfidenceTimeline replays input through every frame, oldest first, and
// reports the probability assigned to label at each one.
func ConfidenceTimeline(frames []WeightFrame, input []float32, label int) ([]ConfidencePoint, error) {
	if err := nn.CheckLabel(label); err != nil {
		return nil, err
	}
	points := make([]ConfidencePoint, len(frames))
	for i, f := range frames {
		r, err := f.Replay(input)
		if err != nil {
			return nil, errors.Wrapf(err, "frame at epoch %d", f.Epoch)
		}
		points[i] = ConfidencePoint{Epoch: f.Epoch, Confidence: r.Probabilities[label], Predicted: r.Label}
	}
	return points, nil
}
