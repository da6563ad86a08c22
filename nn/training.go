package nn

import (
	"github.com/pkg/errors"
)

// TrainBatch performs one epoch: every sample is forwarded, its
// cross-entropy gradient backpropagated and accumulated, and a single SGD
// step scaled by learningRate/batchSize is applied.
//
// Loss is the mean cross-entropy over the batch, accuracy the fraction of
// samples whose argmax equals the label. If the loss is not finite the step
// is discarded and ErrDiverged is returned; the parameters and the epoch
// counter are left untouched. The same happens when the loss is finite but
// the updated parameters overflow on any sample of the batch; momentum
// buffers are cleared in that case.
func (n *Network) TrainBatch(inputs [][]float32, labels []int) (*TrainingSnapshot, error) {
	if len(inputs) == 0 {
		return nil, ErrEmptyBatch
	}
	if err := checkLen("labels", len(inputs), len(labels)); err != nil {
		return nil, err
	}
	for i, in := range inputs {
		if err := checkLen("input", n.InputSize, len(in)); err != nil {
			return nil, errors.Wrapf(err, "sample %d", i)
		}
		if err := checkLabel(labels[i]); err != nil {
			return nil, errors.Wrapf(err, "sample %d", i)
		}
	}

	for _, l := range n.layers {
		l.zeroGradients()
	}

	batchSize := len(inputs)
	predictions := make([]int, batchSize)
	totalLoss := float32(0)
	correct := 0

	for s, input := range inputs {
		n.forward(input)

		probs := n.probabilities()
		label := labels[s]
		totalLoss += CrossEntropy(probs, label)

		predictions[s] = Argmax(probs)
		if predictions[s] == label {
			correct++
		}

		// dL/dlogits for softmax + cross-entropy: p - onehot(label)
		dLogits := copySlice(probs)
		dLogits[label] -= 1
		n.backward(dLogits, true)
	}

	loss := totalLoss / float32(batchSize)
	if !IsFinite(loss) {
		return nil, errors.Wrapf(ErrDiverged, "epoch %d: loss %v", n.epoch+1, loss)
	}
	accuracy := float32(correct) / float32(batchSize)

	saved := n.Params()
	n.optimizer.Step(n.layers, n.config.LearningRate/float32(batchSize))

	// A finite loss does not mean the stepped weights are usable: check
	// that every sample still produces finite probabilities.
	for s, input := range inputs {
		n.forward(input)
		if !n.outputFinite() {
			n.restoreParams(saved)
			n.optimizer.Reset()
			return nil, errors.Wrapf(ErrDiverged, "epoch %d: sample %d overflows after the update", n.epoch+1, s)
		}
	}

	n.epoch++
	n.lossHistory = append(n.lossHistory, loss)
	n.accuracyHistory = append(n.accuracyHistory, accuracy)

	snapshot := &TrainingSnapshot{
		NetworkID:           n.ID,
		Epoch:               n.epoch,
		Loss:                loss,
		Accuracy:            accuracy,
		Layers:              n.hiddenStates(),
		Predictions:         predictions,
		OutputProbabilities: copySlice(n.probabilities()),
	}

	if n.observer != nil {
		n.observer.OnTrainStep(newTrainingEvent(snapshot))
	}

	return snapshot, nil
}

// backward propagates dL/dlogits from the output layer down to the input,
// using the buffers of the most recent forward pass. It returns dL/dinput
// and the per-layer pre-activation deltas.
func (n *Network) backward(dLogits []float32, accumulate bool) ([]float32, [][]float32) {
	deltas := make([][]float32, len(n.layers))
	grad := dLogits
	for i := len(n.layers) - 1; i >= 0; i-- {
		input := n.input
		if i > 0 {
			input = n.layers[i-1].act
		}
		grad, deltas[i] = n.layers[i].backward(grad, input, accumulate)
	}
	return grad, deltas
}
