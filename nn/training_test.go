package nn

import (
	"math"
	"math/rand"
	"testing"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/diff/fd"
	"gonum.org/v1/gonum/floats"
)

// separableBatch returns one-hot style samples of width size for labels 0..classes-1.
func separableBatch(size, classes, perClass int, rng *rand.Rand) ([][]float32, []int) {
	var inputs [][]float32
	var labels []int
	for c := 0; c < classes; c++ {
		for k := 0; k < perClass; k++ {
			v := make([]float32, size)
			for i := range v {
				v[i] = 0.05 * rng.Float32()
			}
			v[c] = 1
			inputs = append(inputs, v)
			labels = append(labels, c)
		}
	}
	return inputs, labels
}

func TestTrainingReducesLoss(t *testing.T) {
	cfg := TrainingConfig{
		LearningRate: 0.5,
		Layers:       []LayerConfig{{Neurons: 12, Activation: ActivationTanh}},
		Seed:         21,
	}
	network, err := NewNetwork(10, cfg)
	if err != nil {
		t.Fatalf("NewNetwork failed: %v", err)
	}
	inputs, labels := separableBatch(10, 4, 3, rand.New(rand.NewSource(1)))

	var first, last *TrainingSnapshot
	for epoch := 0; epoch < 50; epoch++ {
		snap, err := network.TrainBatch(inputs, labels)
		if err != nil {
			t.Fatalf("Epoch %d failed: %v", epoch, err)
		}
		if first == nil {
			first = snap
		}
		last = snap
	}

	if last.Loss >= first.Loss {
		t.Errorf("Loss did not decrease: first=%v last=%v", first.Loss, last.Loss)
	}
	if last.Accuracy < 0.5 {
		t.Errorf("Expected separable data to be mostly learned, accuracy=%v", last.Accuracy)
	}
	if got := len(network.LossHistory()); got != 50 {
		t.Errorf("Expected 50 loss entries, got %d", got)
	}
	if got := len(network.AccuracyHistory()); got != 50 {
		t.Errorf("Expected 50 accuracy entries, got %d", got)
	}
}

func TestTrainingWithMomentum(t *testing.T) {
	cfg := TrainingConfig{
		LearningRate: 0.1,
		Momentum:     0.9,
		Layers:       []LayerConfig{{Neurons: 8, Activation: ActivationReLU}},
		Seed:         5,
	}
	network, _ := NewNetwork(10, cfg)
	inputs, labels := separableBatch(10, 3, 2, rand.New(rand.NewSource(2)))

	first, err := network.TrainBatch(inputs, labels)
	if err != nil {
		t.Fatalf("TrainBatch failed: %v", err)
	}
	var last *TrainingSnapshot
	for i := 0; i < 40; i++ {
		last, _ = network.TrainBatch(inputs, labels)
	}
	if last.Loss >= first.Loss {
		t.Errorf("Momentum SGD did not reduce loss: first=%v last=%v", first.Loss, last.Loss)
	}
}

func TestFrozenNeuronKeepsIncomingWeights(t *testing.T) {
	network, _ := NewNetwork(10, TrainingConfig{
		LearningRate: 0.5,
		Layers:       []LayerConfig{{Neurons: 6, Activation: ActivationSigmoid}},
		Seed:         13,
	})
	if err := network.SetNeuronStatus(0, 2, NeuronFrozen); err != nil {
		t.Fatalf("SetNeuronStatus failed: %v", err)
	}
	before := network.Params()
	inputs, labels := separableBatch(10, 4, 2, rand.New(rand.NewSource(3)))

	snap, err := network.TrainBatch(inputs, labels)
	if err != nil {
		t.Fatalf("TrainBatch failed: %v", err)
	}
	after := network.Params()

	if d := MaxAbsDiff(before.Layers[0].Weights[2], after.Layers[0].Weights[2]); d != 0 {
		t.Errorf("Frozen neuron's incoming weights changed by %v", d)
	}
	if before.Layers[0].Biases[2] != after.Layers[0].Biases[2] {
		t.Error("Frozen neuron's bias changed")
	}
	if d := MaxAbsDiff(before.Layers[0].Weights[1], after.Layers[0].Weights[1]); d == 0 {
		t.Error("Active neuron's weights did not change")
	}
	// frozen neurons still compute
	if snap.Layers[0].Activations[2] == 0 {
		t.Error("Frozen sigmoid neuron produced 0")
	}
}

func TestKilledNeuronGetsNoUpdate(t *testing.T) {
	for _, momentum := range []float32{0, 0.9} {
		network, _ := NewNetwork(10, TrainingConfig{
			LearningRate: 0.5,
			Layers: []LayerConfig{
				{Neurons: 5, Activation: ActivationTanh},
				{Neurons: 5, Activation: ActivationTanh},
			},
			Momentum: momentum,
			Seed:     17,
		})
		inputs, labels := separableBatch(10, 4, 2, rand.New(rand.NewSource(4)))

		// build up velocity before the kill
		for e := 0; e < 5; e++ {
			if _, err := network.TrainBatch(inputs, labels); err != nil {
				t.Fatalf("momentum %v: warm-up failed: %v", momentum, err)
			}
		}
		_ = network.SetNeuronStatus(0, 1, NeuronKilled)
		before := network.Params()

		snap, err := network.TrainBatch(inputs, labels)
		if err != nil {
			t.Fatalf("momentum %v: TrainBatch failed: %v", momentum, err)
		}
		after := network.Params()

		if d := MaxAbsDiff(before.Layers[0].Weights[1], after.Layers[0].Weights[1]); d != 0 {
			t.Errorf("momentum %v: killed neuron's incoming weights changed by %v", momentum, d)
		}
		if before.Layers[0].Biases[1] != after.Layers[0].Biases[1] {
			t.Errorf("momentum %v: killed neuron's bias changed", momentum)
		}
		if snap.Layers[0].Activations[1] != 0 {
			t.Errorf("momentum %v: killed neuron activation %v, expected 0", momentum, snap.Layers[0].Activations[1])
		}
		// the next layer sees a constant 0, so its weights from the killed neuron stay put
		for o := range after.Layers[1].Weights {
			if before.Layers[1].Weights[o][1] != after.Layers[1].Weights[o][1] {
				t.Errorf("momentum %v: outgoing weight %d from killed neuron changed", momentum, o)
			}
		}
	}
}

func TestUnfrozenNeuronStartsWithoutVelocity(t *testing.T) {
	network, _ := NewNetwork(10, TrainingConfig{
		LearningRate: 0.5,
		Layers:       []LayerConfig{{Neurons: 5, Activation: ActivationTanh}},
		Momentum:     0.9,
		Seed:         5,
	})
	inputs, labels := separableBatch(10, 4, 2, rand.New(rand.NewSource(6)))
	for e := 0; e < 5; e++ {
		_, _ = network.TrainBatch(inputs, labels)
	}
	_ = network.SetNeuronStatus(0, 2, NeuronFrozen)
	_, _ = network.TrainBatch(inputs, labels)
	_ = network.SetNeuronStatus(0, 2, NeuronActive)

	// with the velocity cleared, the first step after unfreezing is a plain
	// SGD step on this batch's gradient
	grads := make([]float32, 10)
	for i, in := range inputs {
		sample, err := network.SampleGradients(in, labels[i])
		if err != nil {
			t.Fatalf("SampleGradients failed: %v", err)
		}
		for j, g := range sample.Layers[0].Weights[2] {
			grads[j] += g
		}
	}
	before := network.Params()
	if _, err := network.TrainBatch(inputs, labels); err != nil {
		t.Fatalf("TrainBatch failed: %v", err)
	}
	after := network.Params()

	scale := network.Config().LearningRate / float32(len(inputs))
	for i, w := range before.Layers[0].Weights[2] {
		want := w - scale*grads[i]
		if d := after.Layers[0].Weights[2][i] - want; d > 1e-5 || d < -1e-5 {
			t.Fatalf("Weight %d moved to %v, want %v", i, after.Layers[0].Weights[2][i], want)
		}
	}
}

func TestDivergedStepLeavesNetworkUntouched(t *testing.T) {
	network, _ := InitNetwork(testConfig(23))
	before := network.Params()

	bad := make([]float32, DefaultInputSize)
	bad[0] = float32(math.NaN())
	_, err := network.TrainBatch([][]float32{bad}, []int{1})
	if !errors.Is(err, ErrDiverged) {
		t.Fatalf("Expected ErrDiverged, got %v", err)
	}
	if network.Epoch() != 0 || len(network.LossHistory()) != 0 {
		t.Errorf("Diverged step advanced the epoch to %d", network.Epoch())
	}
	after := network.Params()
	for l := range before.Layers {
		for o := range before.Layers[l].Weights {
			if d := MaxAbsDiff(before.Layers[l].Weights[o], after.Layers[l].Weights[o]); d != 0 {
				t.Fatalf("Layer %d row %d changed after divergence", l, o)
			}
		}
	}
}

func TestOverflowingStepIsRolledBack(t *testing.T) {
	network, _ := NewNetwork(2, TrainingConfig{LearningRate: 1, Layers: []LayerConfig{{Neurons: 4}}, Seed: 3})
	// finite before the step, overflowing after it
	network.layers[0].weights[0] = []float32{1e37, 0}
	network.layers[0].biases[0] = 0
	input := []float32{1, 0}

	pred, err := network.Predict(input)
	if err != nil {
		t.Fatalf("Predict failed before training: %v", err)
	}
	before := network.Params()

	_, err = network.TrainBatch([][]float32{input}, []int{(pred.Label + 1) % NumClasses})
	if !errors.Is(err, ErrDiverged) {
		t.Fatalf("Expected ErrDiverged, got %v", err)
	}
	if network.Epoch() != 0 {
		t.Errorf("Rolled back step advanced the epoch to %d", network.Epoch())
	}
	after := network.Params()
	for l := range before.Layers {
		for o := range before.Layers[l].Weights {
			if d := MaxAbsDiff(before.Layers[l].Weights[o], after.Layers[l].Weights[o]); d != 0 {
				t.Fatalf("Layer %d row %d not restored", l, o)
			}
		}
		if d := MaxAbsDiff(before.Layers[l].Biases, after.Layers[l].Biases); d != 0 {
			t.Fatalf("Layer %d biases not restored", l)
		}
	}
	if _, err := network.Predict(input); err != nil {
		t.Errorf("Network unusable after rollback: %v", err)
	}
}

// TestDeepReLUAtMaxLearningRateStaysUsable trains at the largest accepted
// rate; every accepted step must leave the batch predictable and every
// rejected one must leave the parameters as they were.
func TestDeepReLUAtMaxLearningRateStaysUsable(t *testing.T) {
	layers := make([]LayerConfig, MaxHiddenLayers)
	for i := range layers {
		layers[i] = LayerConfig{Neurons: 64, Activation: ActivationReLU}
	}
	network, _ := InitNetwork(TrainingConfig{LearningRate: MaxLearningRate, Layers: layers, Seed: 1})
	rng := rand.New(rand.NewSource(2))

	accepted := 0
	for tick := 0; tick < 10; tick++ {
		inputs := make([][]float32, 8)
		labels := make([]int, 8)
		for i := range inputs {
			inputs[i] = randomDrawing(rng, DefaultInputSize)
			labels[i] = rng.Intn(NumClasses)
		}
		before := network.Params()

		_, err := network.TrainBatch(inputs, labels)
		switch {
		case err == nil:
			accepted++
			for i, in := range inputs {
				probs, err := network.Probabilities(in)
				if err != nil {
					t.Fatalf("tick %d: sample %d unpredictable after an accepted step: %v", tick, i, err)
				}
				if sum := floats32Sum(probs); sum < 0.999 || sum > 1.001 {
					t.Fatalf("tick %d: probabilities sum to %v", tick, sum)
				}
			}
		case errors.Is(err, ErrDiverged):
			after := network.Params()
			for l := range before.Layers {
				for o := range before.Layers[l].Weights {
					if d := MaxAbsDiff(before.Layers[l].Weights[o], after.Layers[l].Weights[o]); d != 0 {
						t.Fatalf("tick %d: rejected step changed layer %d", tick, l)
					}
				}
			}
		default:
			t.Fatalf("tick %d: unexpected error %v", tick, err)
		}
	}
	if network.Epoch() != accepted {
		t.Errorf("Epoch %d, expected %d accepted steps", network.Epoch(), accepted)
	}
}

func floats32Sum(v []float32) float32 {
	var sum float32
	for _, x := range v {
		sum += x
	}
	return sum
}

func TestTrainBatchRejectsBadInput(t *testing.T) {
	network, _ := InitNetwork(testConfig(1))
	good := make([]float32, DefaultInputSize)

	if _, err := network.TrainBatch(nil, nil); !errors.Is(err, ErrEmptyBatch) {
		t.Errorf("Expected ErrEmptyBatch, got %v", err)
	}
	if _, err := network.TrainBatch([][]float32{good}, []int{1, 2}); err == nil {
		t.Error("Expected error for label count mismatch")
	}
	if _, err := network.TrainBatch([][]float32{good}, []int{10}); !errors.Is(err, ErrLabelRange) {
		t.Errorf("Expected ErrLabelRange, got %v", err)
	}
	var sizeErr *SizeMismatchError
	if _, err := network.TrainBatch([][]float32{good, good[:5]}, []int{1, 2}); !errors.As(err, &sizeErr) {
		t.Errorf("Expected *SizeMismatchError, got %v", err)
	}
	if network.Epoch() != 0 {
		t.Errorf("Rejected batches advanced the epoch to %d", network.Epoch())
	}
}

// TestInputGradientMatchesFiniteDifference checks d log p[c] / d input
// against central differences.
func TestInputGradientMatchesFiniteDifference(t *testing.T) {
	const size = 6
	network, _ := NewNetwork(size, TrainingConfig{
		LearningRate: 0.1,
		Layers: []LayerConfig{
			{Neurons: 5, Activation: ActivationTanh},
			{Neurons: 4, Activation: ActivationSigmoid},
		},
		Seed: 31,
	})
	rng := rand.New(rand.NewSource(6))
	input := randomDrawing(rng, size)
	target := 4

	grad, err := network.ComputeInputGradient(input, target)
	if err != nil {
		t.Fatalf("ComputeInputGradient failed: %v", err)
	}

	logProb := func(x []float64) float64 {
		in := make([]float32, len(x))
		for i, v := range x {
			in[i] = float32(v)
		}
		probs, _ := network.Probabilities(in)
		return math.Log(float64(probs[target]))
	}
	x := make([]float64, size)
	for i, v := range input {
		x[i] = float64(v)
	}
	numeric := fd.Gradient(nil, logProb, x, &fd.Settings{Formula: fd.Central, Step: 1e-2})

	analytic := make([]float64, size)
	for i, g := range grad {
		analytic[i] = float64(g)
	}
	if !floats.EqualApprox(analytic, numeric, 1e-2) {
		t.Errorf("Gradient mismatch:\nanalytic=%v\nnumeric=%v", analytic, numeric)
	}
}

func TestWeightedGradientIsLinear(t *testing.T) {
	network, _ := NewNetwork(8, TrainingConfig{
		LearningRate: 0.1,
		Layers:       []LayerConfig{{Neurons: 6, Activation: ActivationTanh}},
		Seed:         2,
	})
	input := randomDrawing(rand.New(rand.NewSource(9)), 8)

	g3, _ := network.ComputeInputGradient(input, 3)
	g7, _ := network.ComputeInputGradient(input, 7)
	weights := make([]float32, NumClasses)
	weights[3], weights[7] = 0.25, 0.75
	mixed, err := network.ComputeWeightedInputGradient(input, weights)
	if err != nil {
		t.Fatalf("ComputeWeightedInputGradient failed: %v", err)
	}

	for i := range mixed {
		want := 0.25*g3[i] + 0.75*g7[i]
		if d := mixed[i] - want; d > 1e-5 || d < -1e-5 {
			t.Errorf("Component %d: got %v, want %v", i, mixed[i], want)
		}
	}

	if _, err := network.ComputeWeightedInputGradient(input, weights[:3]); err == nil {
		t.Error("Expected error for short weight vector")
	}
}

func TestSampleGradientsDoNotUpdate(t *testing.T) {
	network, _ := NewNetwork(8, TrainingConfig{
		LearningRate: 0.1,
		Layers:       []LayerConfig{{Neurons: 6, Activation: ActivationReLU}},
		Seed:         12,
	})
	before := network.Params()
	sample, err := network.SampleGradients(randomDrawing(rand.New(rand.NewSource(1)), 8), 2)
	if err != nil {
		t.Fatalf("SampleGradients failed: %v", err)
	}
	if len(sample.Layers) != 2 || len(sample.States) != 2 {
		t.Fatalf("Expected hidden and output gradients, got %d", len(sample.Layers))
	}
	if len(sample.Layers[1].Weights) != NumClasses || len(sample.Layers[1].Weights[0]) != 6 {
		t.Errorf("Unexpected output gradient shape")
	}
	// dL/dlogits sums to zero for softmax cross-entropy
	sum := float32(0)
	for _, d := range sample.Layers[1].Deltas {
		sum += d
	}
	if sum > 1e-5 || sum < -1e-5 {
		t.Errorf("Output deltas sum to %v, expected 0", sum)
	}
	after := network.Params()
	if d := MaxAbsDiff(before.Layers[0].Weights[0], after.Layers[0].Weights[0]); d != 0 {
		t.Error("SampleGradients modified weights")
	}
	if network.Epoch() != 0 {
		t.Error("SampleGradients advanced the epoch")
	}
}

func TestChannelObserverReceivesEvents(t *testing.T) {
	network, _ := NewNetwork(10, TrainingConfig{
		LearningRate: 0.1,
		Layers:       []LayerConfig{{Neurons: 4, Activation: ActivationReLU}},
		Seed:         1,
	})
	obs := NewChannelObserver(1)
	network.SetObserver(obs)
	_ = network.SetNeuronStatus(0, 0, NeuronKilled)

	inputs, labels := separableBatch(10, 2, 1, rand.New(rand.NewSource(1)))
	for i := 0; i < 3; i++ {
		if _, err := network.TrainBatch(inputs, labels); err != nil {
			t.Fatalf("TrainBatch failed: %v", err)
		}
	}

	// buffer of 1: the first event is kept, later ones dropped without blocking
	event := <-obs.Events
	if event.Epoch != 1 || event.NetworkID != network.ID {
		t.Errorf("Unexpected event %+v", event)
	}
	if len(event.Layers) != 1 || event.Layers[0].KilledNeurons != 1 || event.Layers[0].TotalNeurons != 4 {
		t.Errorf("Unexpected layer stats %+v", event.Layers)
	}
	select {
	case extra := <-obs.Events:
		t.Errorf("Expected dropped events, got %+v", extra)
	default:
	}
}
