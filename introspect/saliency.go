// Package introspect runs gradient-based probes against a trained network:
// saliency maps, class dreaming and multi-class chimeras. The network's
// parameters are read but never written.
package introspect

import (
	"github.com/chewxy/math32"
	"gonum.org/v1/gonum/floats"

	"github.com/openfluke/digitlab/nn"
)

// Saliency returns |d log p[label] / d input| for every pixel. With
// normalize set the map is scaled so its largest entry is 1; an all-zero
// gradient stays all zero.
func Saliency(net *nn.Network, input []float32, label int, normalize bool) ([]float32, error) {
	grad, err := net.ComputeInputGradient(input, label)
	if err != nil {
		return nil, err
	}

	sal := make([]float64, len(grad))
	for i, g := range grad {
		sal[i] = float64(math32.Abs(g))
	}
	if normalize && len(sal) > 0 {
		if peak := floats.Max(sal); peak > 0 {
			floats.Scale(1/peak, sal)
		}
	}

	out := make([]float32, len(sal))
	for i, v := range sal {
		out[i] = float32(v)
	}
	return out, nil
}
