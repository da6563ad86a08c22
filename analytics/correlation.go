package analytics

import (
	"fmt"
	"math"
	"sort"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/stat"

	"github.com/openfluke/digitlab/nn"
)

// CorrelationMatrix holds the Pearson correlation between the activations of
// every pair of neurons in one hidden layer, measured over a sample set.
type CorrelationMatrix struct {
	Layer   int         `json:"layer"`
	Matrix  [][]float64 `json:"matrix"` // [neuron][neuron], values in [-1, 1]
	Means   []float64   `json:"means"`
	StdDevs []float64   `json:"std_devs"`
	Samples int         `json:"samples"`
}

// NeuronPair is one off-diagonal entry of a CorrelationMatrix.
type NeuronPair struct {
	A           int     `json:"a"`
	B           int     `json:"b"`
	Correlation float64 `json:"correlation"`
}

// NeuronCorrelation records the activations of hidden layer layerIdx for
// every input and correlates each pair of neurons. Neurons whose activation
// never varies (dead or killed) correlate 0 with everything but themselves.
func NeuronCorrelation(net *nn.Network, inputs [][]float32, layerIdx int) (*CorrelationMatrix, error) {
	if layerIdx < 0 || layerIdx >= net.HiddenLayers() {
		return nil, &nn.IndexError{Layer: layerIdx, Layers: net.HiddenLayers()}
	}
	if len(inputs) < 2 {
		return nil, errors.Errorf("need at least 2 samples, got %d", len(inputs))
	}

	width := len(net.Layers()[layerIdx].Mask)
	columns := make([][]float64, width)
	for n := range columns {
		columns[n] = make([]float64, len(inputs))
	}
	for i, in := range inputs {
		pred, err := net.Predict(in)
		if err != nil {
			return nil, errors.Wrapf(err, "sample %d", i)
		}
		for n, a := range pred.Layers[layerIdx].Activations {
			columns[n][i] = float64(a)
		}
	}

	cm := &CorrelationMatrix{
		Layer:   layerIdx,
		Matrix:  make([][]float64, width),
		Means:   make([]float64, width),
		StdDevs: make([]float64, width),
		Samples: len(inputs),
	}
	for n, col := range columns {
		cm.Means[n], cm.StdDevs[n] = stat.PopMeanStdDev(col, nil)
		cm.Matrix[n] = make([]float64, width)
	}
	for i := 0; i < width; i++ {
		cm.Matrix[i][i] = 1
		for j := i + 1; j < width; j++ {
			var r float64
			if cm.StdDevs[i] > 0 && cm.StdDevs[j] > 0 {
				r = stat.Correlation(columns[i], columns[j], nil)
			}
			cm.Matrix[i][j], cm.Matrix[j][i] = r, r
		}
	}
	return cm, nil
}

// RedundantPairs returns the neuron pairs with |correlation| >= threshold,
// strongest first. Such pairs carry nearly the same signal, so one of each
// is a candidate for killing.
func (cm *CorrelationMatrix) RedundantPairs(threshold float64) []NeuronPair {
	var pairs []NeuronPair
	for i := range cm.Matrix {
		for j := i + 1; j < len(cm.Matrix); j++ {
			if r := cm.Matrix[i][j]; math.Abs(r) >= threshold {
				pairs = append(pairs, NeuronPair{A: i, B: j, Correlation: r})
			}
		}
	}
	sort.SliceStable(pairs, func(a, b int) bool {
		return math.Abs(pairs[a].Correlation) > math.Abs(pairs[b].Correlation)
	})
	return pairs
}

// PrintRedundant prints up to limit redundant pairs.
func (cm *CorrelationMatrix) PrintRedundant(threshold float64, limit int) {
	pairs := cm.RedundantPairs(threshold)
	fmt.Printf("\n=== Redundant neurons in hidden layer %d (|r| >= %.2f) ===\n", cm.Layer, threshold)
	if len(pairs) == 0 {
		fmt.Println("  none")
		return
	}
	for i, p := range pairs {
		if i == limit {
			fmt.Printf("  ... %d more\n", len(pairs)-limit)
			break
		}
		fmt.Printf("  %3d ~ %3d  r=%+.3f\n", p.A, p.B, p.Correlation)
	}
}
