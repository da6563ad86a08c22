package nn

// ModelTelemetry represents a single network's structure
type ModelTelemetry struct {
	ID           string           `json:"id"`
	InputSize    int              `json:"input_size"`
	TotalLayers  int              `json:"total_layers"`
	TotalParams  int              `json:"total_parameters"`
	LearningRate float32          `json:"learning_rate"`
	Optimizer    string           `json:"optimizer"`
	Epoch        int              `json:"epoch"`
	Layers       []LayerTelemetry `json:"layers"`
}

// LayerTelemetry contains metadata about a specific layer
type LayerTelemetry struct {
	Index      int    `json:"index"`
	Type       string `json:"type"` // "dense" or "softmax"
	Activation string `json:"activation,omitempty"`
	Parameters int    `json:"parameters"`

	InputShape  []int `json:"input_shape"`
	OutputShape []int `json:"output_shape"`

	Killed int `json:"killed,omitempty"`
	Frozen int `json:"frozen,omitempty"`
}

// ExtractNetworkBlueprint describes the network's structure and mask counts.
func ExtractNetworkBlueprint(n *Network) ModelTelemetry {
	telemetry := ModelTelemetry{
		ID:           n.ID,
		InputSize:    n.InputSize,
		TotalLayers:  len(n.layers),
		LearningRate: n.config.LearningRate,
		Optimizer:    n.optimizer.Name(),
		Epoch:        n.epoch,
		Layers:       make([]LayerTelemetry, 0, len(n.layers)),
	}

	prev := n.InputSize
	for i, l := range n.layers {
		tel := LayerTelemetry{
			Index:       i,
			Type:        "dense",
			Activation:  l.activation.String(),
			Parameters:  prev*l.size() + l.size(), // weights + biases
			InputShape:  []int{prev},
			OutputShape: []int{l.size()},
		}
		if l.output {
			tel.Type = "softmax"
			tel.Activation = ""
		}
		for _, s := range l.mask {
			switch s {
			case NeuronKilled:
				tel.Killed++
			case NeuronFrozen:
				tel.Frozen++
			}
		}

		telemetry.Layers = append(telemetry.Layers, tel)
		telemetry.TotalParams += tel.Parameters
		prev = l.size()
	}

	return telemetry
}
