package nn

import (
	"github.com/chewxy/math32"
)

// Softmax converts logits into a probability distribution. The maximum logit
// is subtracted first for numerical stability.
func Softmax(logits []float32) []float32 {
	probs := make([]float32, len(logits))
	softmaxInto(probs, logits)
	return probs
}

func softmaxInto(dst, logits []float32) {
	if len(logits) == 0 {
		return
	}

	maxLogit := logits[0]
	for _, v := range logits[1:] {
		if v > maxLogit {
			maxLogit = v
		}
	}

	sum := float32(0)
	for i, v := range logits {
		dst[i] = math32.Exp(v - maxLogit)
		sum += dst[i]
	}

	for i := range dst {
		dst[i] /= sum
	}
}

// CrossEntropy returns -log(p[label]) with the probability floored at 1e-7.
func CrossEntropy(probs []float32, label int) float32 {
	p := probs[label]
	if p < crossEntropyEpsilon {
		p = crossEntropyEpsilon
	}
	return -math32.Log(p)
}

const crossEntropyEpsilon = 1e-7
