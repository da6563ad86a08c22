// Package nn provides the fully-connected network engine behind digitlab.
//
// A network maps a flattened 28x28 drawing (784 floats in [0,1]) through 1-5
// hidden dense layers to a 10-way softmax. Every hidden neuron carries an
// ablation mask:
//   - active: computes and learns normally
//   - frozen: computes normally, its incoming weights and bias are not stepped
//   - killed: outputs 0 and receives no gradient
//
// Activations (one per layer):
//   - ReLU: max(0, v)
//   - Sigmoid: 1 / (1 + exp(-v))
//   - Tanh: tanh(v)
//
// Example usage:
//
//	network, err := nn.InitNetwork(nn.TrainingConfig{
//		LearningRate: 0.01,
//		Layers:       []nn.LayerConfig{{Neurons: 16, Activation: nn.ActivationReLU}},
//	})
//
//	// One training tick
//	snapshot, err := network.TrainBatch(inputs, labels)
//
//	// Inference
//	prediction, err := network.Predict(drawing)
//
//	// Ablation
//	err = network.SetNeuronStatus(0, 3, nn.NeuronKilled)
//
// The engine is single-threaded and has one owner. Everything it returns is
// a copy, so readers may keep snapshots across training steps.
package nn
