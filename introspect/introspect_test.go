package introspect

import (
	"math/rand"
	"testing"

	"gonum.org/v1/gonum/floats"

	"github.com/openfluke/digitlab/nn"
)

func trainedToyNetwork(t *testing.T) *nn.Network {
	t.Helper()
	const size = 10
	net, err := nn.NewNetwork(size, nn.TrainingConfig{
		LearningRate: 0.5,
		Layers:       []nn.LayerConfig{{Neurons: 12, Activation: nn.ActivationTanh}},
		Seed:         3,
	})
	if err != nil {
		t.Fatalf("NewNetwork failed: %v", err)
	}

	rng := rand.New(rand.NewSource(4))
	var inputs [][]float32
	var labels []int
	for c := 0; c < 5; c++ {
		for k := 0; k < 4; k++ {
			v := NoiseImage(rng, size, 0.1)
			v[c] = 1
			inputs = append(inputs, v)
			labels = append(labels, c)
		}
	}
	for epoch := 0; epoch < 150; epoch++ {
		if _, err := net.TrainBatch(inputs, labels); err != nil {
			t.Fatalf("TrainBatch failed: %v", err)
		}
	}
	return net
}

func weightsEqual(a, b *nn.Params) bool {
	for l := range a.Layers {
		for o := range a.Layers[l].Weights {
			if nn.MaxAbsDiff(a.Layers[l].Weights[o], b.Layers[l].Weights[o]) != 0 {
				return false
			}
		}
		if nn.MaxAbsDiff(a.Layers[l].Biases, b.Layers[l].Biases) != 0 {
			return false
		}
	}
	return true
}

// TestDreamUntrainedStaysInRange dreams on a fresh 784-input network
func TestDreamUntrainedStaysInRange(t *testing.T) {
	net, err := nn.InitNetwork(nn.TrainingConfig{
		LearningRate: 0.01,
		Layers:       []nn.LayerConfig{{Neurons: 16, Activation: nn.ActivationReLU}},
		Seed:         1,
	})
	if err != nil {
		t.Fatalf("InitNetwork failed: %v", err)
	}

	result, err := Dream(net, 5, 10, 0.5, nil)
	if err != nil {
		t.Fatalf("Dream failed: %v", err)
	}
	if len(result.Image) != 784 {
		t.Errorf("Expected 784 pixels, got %d", len(result.Image))
	}
	for i, p := range result.Image {
		if p < 0 || p > 1 {
			t.Fatalf("Pixel %d = %v outside [0, 1]", i, p)
		}
	}
	if len(result.ConfidenceHistory) != 10 {
		t.Errorf("Expected 10 history entries, got %d", len(result.ConfidenceHistory))
	}
}

func TestDreamIncreasesTargetConfidence(t *testing.T) {
	net := trainedToyNetwork(t)
	before := net.Params()

	result, err := Dream(net, 2, 80, 0.5, nil)
	if err != nil {
		t.Fatalf("Dream failed: %v", err)
	}
	first := result.ConfidenceHistory[0]
	last := result.ConfidenceHistory[len(result.ConfidenceHistory)-1]
	if last < first {
		t.Errorf("Target confidence fell from %v to %v", first, last)
	}
	probs, _ := net.Probabilities(result.Image)
	if nn.Argmax(probs) != 2 {
		t.Errorf("Dreamed image classified as %d, expected 2 (probs %v)", nn.Argmax(probs), probs)
	}

	if !weightsEqual(before, net.Params()) {
		t.Error("Dream modified network parameters")
	}
}

func TestDreamIsDeterministic(t *testing.T) {
	net := trainedToyNetwork(t)
	a, _ := Dream(net, 1, 5, 0.2, nil)
	b, _ := Dream(net, 1, 5, 0.2, nil)
	if d := nn.MaxAbsDiff(a.Image, b.Image); d != 0 {
		t.Errorf("Two dreams from the default start differ by %v", d)
	}
}

func TestDreamDoesNotMutateStart(t *testing.T) {
	net := trainedToyNetwork(t)
	start := make([]float32, net.InputSize)
	start[0] = 0.5
	if _, err := Dream(net, 3, 5, 0.5, start); err != nil {
		t.Fatalf("Dream failed: %v", err)
	}
	if start[0] != 0.5 || start[3] != 0 {
		t.Errorf("Dream wrote into the caller's start image: %v", start)
	}
}

func TestDreamRejectsBadArguments(t *testing.T) {
	net := trainedToyNetwork(t)
	if _, err := Dream(net, 10, 5, 0.5, nil); err == nil {
		t.Error("Expected error for class 10")
	}
	if _, err := Dream(net, 1, -1, 0.5, nil); err == nil {
		t.Error("Expected error for negative steps")
	}
	if _, err := Dream(net, 1, 5, 0, nil); err == nil {
		t.Error("Expected error for zero learning rate")
	}
	if _, err := Dream(net, 1, 5, 0.5, make([]float32, 3)); err == nil {
		t.Error("Expected error for short start image")
	}
}

func TestChimeraZeroWeightsIsNoOp(t *testing.T) {
	net := trainedToyNetwork(t)
	start := NoiseImage(rand.New(rand.NewSource(9)), net.InputSize, 0.3)

	weights := make([]float32, nn.NumClasses)
	weights[1], weights[4] = 1, -1
	result, err := DreamChimera(net, weights, 20, 0.5, start)
	if err != nil {
		t.Fatalf("DreamChimera failed: %v", err)
	}
	if d := nn.MaxAbsDiff(result.Image, start); d != 0 {
		t.Errorf("Zero-sum weights changed the image by %v", d)
	}
	if result.ConfidenceHistory != nil {
		t.Errorf("Expected no history, got %d entries", len(result.ConfidenceHistory))
	}
}

func TestChimeraRecordsFullDistribution(t *testing.T) {
	net := trainedToyNetwork(t)
	before := net.Params()

	weights := make([]float32, nn.NumClasses)
	weights[0], weights[3] = 0.5, 0.5
	result, err := DreamChimera(net, weights, 15, 0.3, nil)
	if err != nil {
		t.Fatalf("DreamChimera failed: %v", err)
	}
	if len(result.ConfidenceHistory) != 15 {
		t.Fatalf("Expected 15 history entries, got %d", len(result.ConfidenceHistory))
	}
	for s, probs := range result.ConfidenceHistory {
		if len(probs) != nn.NumClasses {
			t.Fatalf("Step %d recorded %d probabilities", s, len(probs))
		}
	}
	for _, p := range result.Image {
		if p < 0 || p > 1 {
			t.Fatalf("Pixel %v outside [0, 1]", p)
		}
	}
	if !weightsEqual(before, net.Params()) {
		t.Error("DreamChimera modified network parameters")
	}
	if _, err := DreamChimera(net, weights[:4], 1, 0.3, nil); err == nil {
		t.Error("Expected error for short weight vector")
	}
}

func TestSaliencyIsAbsoluteGradient(t *testing.T) {
	net := trainedToyNetwork(t)
	input := NoiseImage(rand.New(rand.NewSource(2)), net.InputSize, 1)

	grad, _ := net.ComputeInputGradient(input, 4)
	raw, err := Saliency(net, input, 4, false)
	if err != nil {
		t.Fatalf("Saliency failed: %v", err)
	}
	for i := range raw {
		g := grad[i]
		if g < 0 {
			g = -g
		}
		if raw[i] != g {
			t.Errorf("Pixel %d: saliency %v, |grad| %v", i, raw[i], g)
		}
	}

	norm, _ := Saliency(net, input, 4, true)
	n64 := make([]float64, len(norm))
	for i, v := range norm {
		n64[i] = float64(v)
	}
	if max := floats.Max(n64); max < 0.9999 || max > 1.0001 {
		t.Errorf("Normalized saliency peaks at %v, expected 1", max)
	}
	if min := floats.Min(n64); min < 0 {
		t.Errorf("Normalized saliency has negative entry %v", min)
	}
}
