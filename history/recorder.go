package history

import (
	"fmt"
	"sync"

	"github.com/openfluke/digitlab/nn"
)

// EpochSnapshot is one training tick as kept by an EpochRecorder.
type EpochSnapshot struct {
	NetworkID           string          `json:"network_id"`
	Epoch               int             `json:"epoch"`
	Loss                float32         `json:"loss"`
	Accuracy            float32         `json:"accuracy"`
	Layers              []nn.LayerState `json:"layers"`
	OutputProbabilities []float32       `json:"output_probabilities"`
}

// WeightFrame is a saved copy of every parameter plus the hidden-layer
// activations needed to replay it.
type WeightFrame struct {
	NetworkID   string              `json:"network_id"`
	Epoch       int                 `json:"epoch"`
	Params      *nn.Params          `json:"params"`
	Activations []nn.ActivationType `json:"activations"`
}

// CaptureFrame copies the network's current parameters into a frame.
func CaptureFrame(net *nn.Network) WeightFrame {
	params := net.Params()
	layers := net.Config().Layers
	acts := make([]nn.ActivationType, len(layers))
	for i, l := range layers {
		acts[i] = l.Activation
	}
	return WeightFrame{
		NetworkID:   params.NetworkID,
		Epoch:       params.Epoch,
		Params:      params,
		Activations: acts,
	}
}

func (s EpochSnapshot) clone() EpochSnapshot {
	out := s
	if s.Layers != nil {
		out.Layers = make([]nn.LayerState, len(s.Layers))
		for i, l := range s.Layers {
			out.Layers[i] = l.Clone()
		}
	}
	if s.OutputProbabilities != nil {
		out.OutputProbabilities = append([]float32(nil), s.OutputProbabilities...)
	}
	return out
}

func (f WeightFrame) clone() WeightFrame {
	out := f
	out.Params = f.Params.Clone()
	if f.Activations != nil {
		out.Activations = append([]nn.ActivationType(nil), f.Activations...)
	}
	return out
}

// Replay runs input through the frame's saved weights.
func (f WeightFrame) Replay(input []float32) (*Replay, error) {
	return ReplayForward(f.Params, input, f.Activations)
}

// recorder is a mutex-guarded ring that starts over whenever training is
// reset: a new network ID, or an epoch that is not after the newest entry.
// Entries are deep-copied on the way in and on the way out.
type recorder[T any] struct {
	mu    sync.RWMutex
	ring  *ring[T]
	key   func(T) (id string, epoch int)
	clone func(T) T
}

func newRecorder[T any](capacity int, key func(T) (string, int), clone func(T) T) (*recorder[T], error) {
	if capacity <= 0 {
		return nil, &nn.ConfigError{Field: "capacity", Reason: fmt.Sprintf("must be > 0, got %d", capacity)}
	}
	return &recorder[T]{ring: newRing[T](capacity), key: key, clone: clone}, nil
}

func (r *recorder[T]) record(v T) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if last, ok := r.ring.newest(); ok {
		lastID, lastEpoch := r.key(last)
		id, epoch := r.key(v)
		if id != lastID || epoch <= lastEpoch {
			r.ring.clear()
		}
	}
	r.ring.push(r.clone(v))
}

func (r *recorder[T]) items() []T {
	r.mu.RLock()
	defer r.mu.RUnlock()
	items := r.ring.items()
	for i, v := range items {
		items[i] = r.clone(v)
	}
	return items
}

func (r *recorder[T]) len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.ring.n
}

func (r *recorder[T]) capacity() int {
	return len(r.ring.buf)
}

func (r *recorder[T]) clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ring.clear()
}

// EpochRecorder keeps the most recent training snapshots. It is safe for
// one writer and any number of readers; neither the recorded snapshot nor
// a returned timeline shares memory with the stored entries.
type EpochRecorder struct {
	r *recorder[EpochSnapshot]
}

// NewEpochRecorder creates a recorder holding at most capacity epochs.
func NewEpochRecorder(capacity int) (*EpochRecorder, error) {
	r, err := newRecorder(capacity, func(s EpochSnapshot) (string, int) { return s.NetworkID, s.Epoch }, EpochSnapshot.clone)
	if err != nil {
		return nil, err
	}
	return &EpochRecorder{r: r}, nil
}

// Record appends a training snapshot, evicting the oldest when full.
func (er *EpochRecorder) Record(s *nn.TrainingSnapshot) {
	er.r.record(EpochSnapshot{
		NetworkID:           s.NetworkID,
		Epoch:               s.Epoch,
		Loss:                s.Loss,
		Accuracy:            s.Accuracy,
		Layers:              s.Layers,
		OutputProbabilities: s.OutputProbabilities,
	})
}

// Timeline returns the recorded snapshots in epoch order.
func (er *EpochRecorder) Timeline() []EpochSnapshot { return er.r.items() }

// Len returns the number of recorded snapshots.
func (er *EpochRecorder) Len() int { return er.r.len() }

// Capacity returns the maximum number of snapshots kept.
func (er *EpochRecorder) Capacity() int { return er.r.capacity() }

// Clear drops every snapshot.
func (er *EpochRecorder) Clear() { er.r.clear() }

// LossCurve returns the recorded losses in epoch order.
func (er *EpochRecorder) LossCurve() []float32 {
	timeline := er.Timeline()
	curve := make([]float32, len(timeline))
	for i, s := range timeline {
		curve[i] = s.Loss
	}
	return curve
}

// WeightRecorder keeps the most recent weight frames.
type WeightRecorder struct {
	r *recorder[WeightFrame]
}

// NewWeightRecorder creates a recorder holding at most capacity frames.
func NewWeightRecorder(capacity int) (*WeightRecorder, error) {
	r, err := newRecorder(capacity, func(f WeightFrame) (string, int) { return f.NetworkID, f.Epoch }, WeightFrame.clone)
	if err != nil {
		return nil, err
	}
	return &WeightRecorder{r: r}, nil
}

// Record appends a frame, evicting the oldest when full.
func (wr *WeightRecorder) Record(f WeightFrame) { wr.r.record(f) }

// Frames returns the recorded frames in epoch order.
func (wr *WeightRecorder) Frames() []WeightFrame { return wr.r.items() }

// Len returns the number of recorded frames.
func (wr *WeightRecorder) Len() int { return wr.r.len() }

// Capacity returns the maximum number of frames kept.
func (wr *WeightRecorder) Capacity() int { return wr.r.capacity() }

// Clear drops every frame.
func (wr *WeightRecorder) Clear() { wr.r.clear() }
