package introspect

import (
	"fmt"
	"math/rand"

	"github.com/chewxy/math32"
	"github.com/pkg/errors"

	"github.com/openfluke/digitlab/nn"
)

const (
	// DefaultNoiseSeed seeds the start image when Dream is called without one.
	DefaultNoiseSeed = 1
	// DefaultNoiseAmplitude bounds the pixels of the default start image.
	DefaultNoiseAmplitude = 0.1
)

// DreamResult is the synthesized image and the target probability seen
// before each ascent step.
type DreamResult struct {
	Image             []float32 `json:"image"`
	ConfidenceHistory []float32 `json:"confidence_history"`
}

// ChimeraResult is the synthesized image and the full class distribution
// seen before each ascent step.
type ChimeraResult struct {
	Image             []float32   `json:"image"`
	ConfidenceHistory [][]float32 `json:"confidence_history"`
}

// NoiseImage returns size pixels drawn uniformly from [0, amplitude].
func NoiseImage(r *rand.Rand, size int, amplitude float32) []float32 {
	img := make([]float32, size)
	for i := range img {
		img[i] = r.Float32() * amplitude
	}
	return img
}

// Dream performs gradient ascent on the input to maximize log p[targetClass]:
// each step computes the input gradient, adds lr times it to the image and
// clamps every pixel to [0,1]. A nil start uses NoiseImage with
// DefaultNoiseSeed, so repeated calls on the same network agree.
func Dream(net *nn.Network, targetClass, steps int, lr float32, start []float32) (*DreamResult, error) {
	if err := nn.CheckLabel(targetClass); err != nil {
		return nil, err
	}
	img, err := startImage(net, steps, lr, start)
	if err != nil {
		return nil, err
	}

	result := &DreamResult{Image: img, ConfidenceHistory: make([]float32, 0, steps)}
	for s := 0; s < steps; s++ {
		probs, err := net.Probabilities(img)
		if err != nil {
			return nil, err
		}
		result.ConfidenceHistory = append(result.ConfidenceHistory, probs[targetClass])

		grad, err := net.ComputeInputGradient(img, targetClass)
		if err != nil {
			return nil, errors.Wrapf(err, "dream step %d", s)
		}
		ascend(img, grad, lr)
	}
	return result, nil
}

// DreamChimera dreams toward sum_c classWeights[c] * log p[c]. Weights need
// not sum to one. If they sum to zero the start image is returned
// unchanged with no history.
func DreamChimera(net *nn.Network, classWeights []float32, steps int, lr float32, start []float32) (*ChimeraResult, error) {
	if len(classWeights) != nn.NumClasses {
		return nil, &nn.SizeMismatchError{What: "class weights", Expected: nn.NumClasses, Got: len(classWeights)}
	}
	img, err := startImage(net, steps, lr, start)
	if err != nil {
		return nil, err
	}

	total := float32(0)
	for _, w := range classWeights {
		total += w
	}
	if total == 0 {
		return &ChimeraResult{Image: img}, nil
	}

	result := &ChimeraResult{Image: img, ConfidenceHistory: make([][]float32, 0, steps)}
	for s := 0; s < steps; s++ {
		probs, err := net.Probabilities(img)
		if err != nil {
			return nil, err
		}
		result.ConfidenceHistory = append(result.ConfidenceHistory, probs)

		grad, err := net.ComputeWeightedInputGradient(img, classWeights)
		if err != nil {
			return nil, errors.Wrapf(err, "chimera step %d", s)
		}
		ascend(img, grad, lr)
	}
	return result, nil
}

// startImage validates the loop arguments and returns a private copy of
// the image to mutate.
func startImage(net *nn.Network, steps int, lr float32, start []float32) ([]float32, error) {
	if steps < 0 {
		return nil, &nn.ConfigError{Field: "steps", Reason: fmt.Sprintf("must be >= 0, got %d", steps)}
	}
	if !(lr > 0) || !nn.IsFinite(lr) {
		return nil, &nn.ConfigError{Field: "lr", Reason: fmt.Sprintf("must be a positive finite number, got %g", lr)}
	}
	if start == nil {
		return NoiseImage(rand.New(rand.NewSource(DefaultNoiseSeed)), net.InputSize, DefaultNoiseAmplitude), nil
	}
	if len(start) != net.InputSize {
		return nil, &nn.SizeMismatchError{What: "start image", Expected: net.InputSize, Got: len(start)}
	}
	img := make([]float32, len(start))
	copy(img, start)
	return img, nil
}

func ascend(img, grad []float32, lr float32) {
	for i, g := range grad {
		if math32.IsNaN(g) {
			continue
		}
		img[i] += lr * g
	}
	nn.Clamp01(img)
}
