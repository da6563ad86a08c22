package pca

import (
	"github.com/pkg/errors"

	"github.com/openfluke/digitlab/nn"
)

// ProjectionData places a labeled dataset, and optionally the user's
// current drawing, in the 2-D activation space of one hidden layer.
type ProjectionData struct {
	Points         [][2]float32 `json:"points"`
	Labels         []int        `json:"labels"`
	UserProjection *[2]float32  `json:"user_projection,omitempty"`
}

// ActivationSpace runs every input through net, collects the activations
// of hidden layer layerIdx and projects them with ProjectTo2D. A non-nil
// user drawing is projected in the same call, so it shares the dataset's
// axes, and returned separately.
func ActivationSpace(net *nn.Network, inputs [][]float32, labels []int, layerIdx int, user []float32) (*ProjectionData, error) {
	if len(labels) != len(inputs) {
		return nil, &nn.SizeMismatchError{What: "labels", Expected: len(inputs), Got: len(labels)}
	}
	if layerIdx < 0 || layerIdx >= net.HiddenLayers() {
		return nil, &nn.IndexError{Layer: layerIdx, Layers: net.HiddenLayers()}
	}

	vectors := make([][]float32, 0, len(inputs)+1)
	for i, in := range inputs {
		pred, err := net.Predict(in)
		if err != nil {
			return nil, errors.Wrapf(err, "sample %d", i)
		}
		vectors = append(vectors, pred.Layers[layerIdx].Activations)
	}
	if user != nil {
		pred, err := net.Predict(user)
		if err != nil {
			return nil, errors.Wrap(err, "user drawing")
		}
		vectors = append(vectors, pred.Layers[layerIdx].Activations)
	}

	proj, err := ProjectTo2D(vectors)
	if err != nil {
		return nil, err
	}

	data := &ProjectionData{
		Points: proj.Points[:len(inputs)],
		Labels: append([]int(nil), labels...),
	}
	if user != nil {
		pt := proj.Points[len(inputs)]
		data.UserProjection = &pt
	}
	return data, nil
}
