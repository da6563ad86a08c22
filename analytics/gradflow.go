package analytics

import (
	"math"

	"github.com/chewxy/math32"
	"gonum.org/v1/gonum/floats"

	"github.com/openfluke/digitlab/nn"
)

// FlowHealth classifies how gradients travel through the network.
type FlowHealth string

const (
	FlowHealthy   FlowHealth = "healthy"
	FlowVanishing FlowHealth = "vanishing"
	FlowExploding FlowHealth = "exploding"
)

const (
	// ExplodingThreshold is the largest per-weight gradient magnitude
	// considered healthy.
	ExplodingThreshold = 10.0
	// VanishingRatio flags vanishing gradients when the weakest layer's
	// mean gradient is below this fraction of the strongest layer's.
	VanishingRatio = 1e-3
	// DeadEpsilon is the delta magnitude under which a non-ReLU neuron
	// counts as dead.
	DeadEpsilon = 1e-8
)

// LayerFlow summarizes one layer's weight gradients.
type LayerFlow struct {
	Layer        int     `json:"layer"`
	Output       bool    `json:"output"`
	MeanAbsGrad  float64 `json:"mean_abs_grad"`
	MaxAbsGrad   float64 `json:"max_abs_grad"`
	DeadFraction float64 `json:"dead_fraction"`
}

// GradientFlow is the per-layer gradient picture for one sample.
type GradientFlow struct {
	Layers []LayerFlow `json:"layers"` // hidden layers, then output
	Health FlowHealth  `json:"health"`
}

// MeasureGradientFlow backpropagates one labeled sample without updating
// the network and reports gradient statistics per layer.
//
// A neuron is dead when its ReLU activation is exactly 0, or for other
// activations (and the output layer) when |delta| < DeadEpsilon. Killed
// neurons count as dead.
func MeasureGradientFlow(net *nn.Network, input []float32, label int) (*GradientFlow, error) {
	sample, err := net.SampleGradients(input, label)
	if err != nil {
		return nil, err
	}

	flow := &GradientFlow{Layers: make([]LayerFlow, len(sample.Layers))}
	for i, g := range sample.Layers {
		output := i == len(sample.Layers)-1
		lf := LayerFlow{Layer: i, Output: output}

		abs := make([]float64, 0, len(g.Weights)*len(g.Weights[0]))
		for _, row := range g.Weights {
			for _, w := range row {
				abs = append(abs, float64(math32.Abs(w)))
			}
		}
		if len(abs) > 0 {
			lf.MeanAbsGrad = floats.Sum(abs) / float64(len(abs))
			lf.MaxAbsGrad = floats.Max(abs)
		}

		relu := false
		if !output {
			act, _ := net.Activation(i)
			relu = act == nn.ActivationReLU
		}
		dead := 0
		state := sample.States[i]
		for n, d := range g.Deltas {
			switch {
			case relu && state.Activations[n] == 0:
				dead++
			case !relu && math32.Abs(d) < DeadEpsilon:
				dead++
			}
		}
		if len(g.Deltas) > 0 {
			lf.DeadFraction = float64(dead) / float64(len(g.Deltas))
		}
		flow.Layers[i] = lf
	}

	flow.Health = classifyFlow(flow.Layers)
	return flow, nil
}

func classifyFlow(layers []LayerFlow) FlowHealth {
	if len(layers) == 0 {
		return FlowHealthy
	}
	minMean, maxMean := math.Inf(1), 0.0
	for _, l := range layers {
		if l.MaxAbsGrad > ExplodingThreshold || math.IsNaN(l.MaxAbsGrad) {
			return FlowExploding
		}
		minMean = math.Min(minMean, l.MeanAbsGrad)
		maxMean = math.Max(maxMean, l.MeanAbsGrad)
	}
	if maxMean > 0 && minMean < VanishingRatio*maxMean {
		return FlowVanishing
	}
	return FlowHealthy
}
