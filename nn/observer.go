package nn

import (
	"log"
	"os"
)

// Observer receives an event after every successful TrainBatch.
// Implementations must not call back into the network.
type Observer interface {
	OnTrainStep(event TrainingEvent)
}

// LayerStats summarizes one hidden layer's activations for the last sample of a batch.
type LayerStats struct {
	LayerIdx      int     `json:"layer_idx"`
	AvgActivation float32 `json:"avg_activation"`
	MaxActivation float32 `json:"max_activation"`
	MinActivation float32 `json:"min_activation"`
	ActiveNeurons int     `json:"active_neurons"` // activation > 0
	TotalNeurons  int     `json:"total_neurons"`
	KilledNeurons int     `json:"killed_neurons"`
	FrozenNeurons int     `json:"frozen_neurons"`
}

// TrainingEvent is the payload delivered to observers.
type TrainingEvent struct {
	NetworkID string       `json:"network_id"`
	Epoch     int          `json:"epoch"`
	Loss      float32      `json:"loss"`
	Accuracy  float32      `json:"accuracy"`
	Layers    []LayerStats `json:"layers"`
}

func newTrainingEvent(s *TrainingSnapshot) TrainingEvent {
	event := TrainingEvent{
		NetworkID: s.NetworkID,
		Epoch:     s.Epoch,
		Loss:      s.Loss,
		Accuracy:  s.Accuracy,
		Layers:    make([]LayerStats, len(s.Layers)),
	}
	for i, l := range s.Layers {
		event.Layers[i] = computeLayerStats(i, l)
	}
	return event
}

// computeLayerStats calculates summary statistics for a layer snapshot
func computeLayerStats(idx int, state LayerState) LayerStats {
	stats := LayerStats{LayerIdx: idx, TotalNeurons: len(state.Activations)}
	if len(state.Activations) == 0 {
		return stats
	}

	stats.MaxActivation = state.Activations[0]
	stats.MinActivation = state.Activations[0]
	for i, v := range state.Activations {
		if v > stats.MaxActivation {
			stats.MaxActivation = v
		}
		if v < stats.MinActivation {
			stats.MinActivation = v
		}
		if v > 0 {
			stats.ActiveNeurons++
		}
		if i < len(state.Mask) {
			switch state.Mask[i] {
			case NeuronKilled:
				stats.KilledNeurons++
			case NeuronFrozen:
				stats.FrozenNeurons++
			}
		}
	}
	stats.AvgActivation = Mean(state.Activations)
	return stats
}

// =============================================================================
// Observer Implementations
// =============================================================================

// ConsoleObserver logs one line per training step.
type ConsoleObserver struct {
	Logger  *log.Logger // nil = stderr with standard flags
	Verbose bool        // also log per-layer activation stats
	Every   int         // log every N epochs (<= 1 logs every epoch)
}

func (o *ConsoleObserver) OnTrainStep(event TrainingEvent) {
	if o.Every > 1 && event.Epoch%o.Every != 0 {
		return
	}
	logger := o.Logger
	if logger == nil {
		logger = log.New(os.Stderr, "", log.LstdFlags)
	}

	logger.Printf("[TRAIN] epoch %d: loss=%.4f acc=%.1f%%", event.Epoch, event.Loss, event.Accuracy*100)
	if !o.Verbose {
		return
	}
	for _, s := range event.Layers {
		logger.Printf("        layer %d: avg=%.4f max=%.4f active=%d/%d killed=%d frozen=%d",
			s.LayerIdx, s.AvgActivation, s.MaxActivation,
			s.ActiveNeurons, s.TotalNeurons, s.KilledNeurons, s.FrozenNeurons)
	}
}

// ChannelObserver sends events to a Go channel (for internal processing)
type ChannelObserver struct {
	Events chan TrainingEvent
}

func NewChannelObserver(bufferSize int) *ChannelObserver {
	return &ChannelObserver{
		Events: make(chan TrainingEvent, bufferSize),
	}
}

func (o *ChannelObserver) OnTrainStep(event TrainingEvent) {
	select {
	case o.Events <- event:
	default:
		// Channel full, drop event to avoid blocking
	}
}
