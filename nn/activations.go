package nn

import (
	"github.com/chewxy/math32"
)

// activationFuncs pairs an activation with its derivative so forward and
// backward stay symmetric. The derivative takes the PRE-activation value.
type activationFuncs struct {
	fn         func(v float32) float32
	derivative func(pre float32) float32
}

var activationTable = [...]activationFuncs{
	ActivationReLU: {
		fn: func(v float32) float32 {
			if v < 0 {
				return 0
			}
			return v
		},
		derivative: func(pre float32) float32 {
			if pre > 0 {
				return 1
			}
			return 0
		},
	},
	ActivationSigmoid: {
		fn: sigmoid,
		derivative: func(pre float32) float32 {
			s := sigmoid(pre)
			return s * (1 - s)
		},
	},
	ActivationTanh: {
		fn: math32.Tanh,
		derivative: func(pre float32) float32 {
			t := math32.Tanh(pre)
			return 1 - t*t
		},
	},
}

func sigmoid(v float32) float32 {
	return 1 / (1 + math32.Exp(-v))
}

// Activate applies the activation function to a single pre-activation value.
// Unknown activations pass the value through unchanged.
func (a ActivationType) Activate(v float32) float32 {
	if !a.Valid() {
		return v
	}
	return activationTable[a].fn(v)
}

// Derivative returns d activation / d pre evaluated at pre.
func (a ActivationType) Derivative(pre float32) float32 {
	if !a.Valid() {
		return 1
	}
	return activationTable[a].derivative(pre)
}
