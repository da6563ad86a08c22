package analytics

import (
	"github.com/pkg/errors"

	"github.com/openfluke/digitlab/nn"
)

// NeuronImpact is the accuracy measured with one neuron killed.
type NeuronImpact struct {
	Neuron   int     `json:"neuron"`
	Accuracy float64 `json:"accuracy"`
	Drop     float64 `json:"drop"` // baseline accuracy minus Accuracy
}

// AblationImpact kills each neuron of hidden layer layerIdx in turn and
// measures accuracy on the sample set. Already-killed neurons are skipped.
// Every neuron's original status is restored before returning, including
// on error.
func AblationImpact(net *nn.Network, inputs [][]float32, labels []int, layerIdx int) (baseline float64, impacts []NeuronImpact, err error) {
	if err := checkSamples(inputs, labels); err != nil {
		return 0, nil, err
	}
	if layerIdx < 0 || layerIdx >= net.HiddenLayers() {
		return 0, nil, &nn.IndexError{Layer: layerIdx, Layers: net.HiddenLayers()}
	}

	baseline, err = accuracy(net, inputs, labels)
	if err != nil {
		return 0, nil, err
	}

	width := len(net.Layers()[layerIdx].Mask)
	for n := 0; n < width; n++ {
		status, err := net.GetNeuronStatus(layerIdx, n)
		if err != nil {
			return 0, nil, err
		}
		if status == nn.NeuronKilled {
			continue
		}

		if err := net.SetNeuronStatus(layerIdx, n, nn.NeuronKilled); err != nil {
			return 0, nil, err
		}
		acc, evalErr := accuracy(net, inputs, labels)
		if err := net.SetNeuronStatus(layerIdx, n, status); err != nil {
			return 0, nil, err
		}
		if evalErr != nil {
			return 0, nil, errors.Wrapf(evalErr, "neuron %d", n)
		}

		impacts = append(impacts, NeuronImpact{Neuron: n, Accuracy: acc, Drop: baseline - acc})
	}
	return baseline, impacts, nil
}

func accuracy(net *nn.Network, inputs [][]float32, labels []int) (float64, error) {
	if len(inputs) == 0 {
		return 0, nil
	}
	correct := 0
	for i, in := range inputs {
		pred, err := net.Predict(in)
		if err != nil {
			return 0, errors.Wrapf(err, "sample %d", i)
		}
		if pred.Label == labels[i] {
			correct++
		}
	}
	return float64(correct) / float64(len(inputs)), nil
}
