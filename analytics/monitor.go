package analytics

import (
	"github.com/pkg/errors"

	"github.com/openfluke/digitlab/nn"
)

// Cadence runs an analysis every N epochs. Zero or negative disables it.
type Cadence int

// Due reports whether the analysis should run after the given epoch.
func (c Cadence) Due(epoch int) bool {
	return c > 0 && epoch > 0 && epoch%int(c) == 0
}

// MonitorConfig sets how often each sweep runs during training.
type MonitorConfig struct {
	ConfusionEvery    Cadence `json:"confusion_every"`
	MisfitsEvery      Cadence `json:"misfits_every"`
	GradientFlowEvery Cadence `json:"gradient_flow_every"`
	BoundaryEvery     Cadence `json:"boundary_every"`

	TopMisfits      int            `json:"top_misfits"`
	BoundaryClasses [2]int         `json:"boundary_classes"`
	Boundary        BoundaryConfig `json:"boundary"`
}

// DefaultMonitorConfig returns the cadences used by the trainer.
func DefaultMonitorConfig() MonitorConfig {
	return MonitorConfig{
		ConfusionEvery:    5,
		MisfitsEvery:      5,
		GradientFlowEvery: 5,
		BoundaryEvery:     10,
		TopMisfits:        8,
		BoundaryClasses:   [2]int{3, 8},
		Boundary:          DefaultBoundaryConfig(),
	}
}

// Report holds whatever analyses were due at an epoch. Fields for
// analyses that did not run are nil.
type Report struct {
	Epoch        int            `json:"epoch"`
	Confusion    *ConfusionData `json:"confusion,omitempty"`
	Misfits      []Misfit       `json:"misfits,omitempty"`
	GradientFlow *GradientFlow  `json:"gradient_flow,omitempty"`
	Boundary     *BoundaryGrid  `json:"boundary,omitempty"`
}

// Empty reports whether no analysis ran.
func (r *Report) Empty() bool {
	return r.Confusion == nil && r.Misfits == nil && r.GradientFlow == nil && r.Boundary == nil
}

// Monitor evaluates a fixed sample set on its configured cadence.
type Monitor struct {
	config MonitorConfig
	inputs [][]float32
	labels []int

	// first exemplar of each boundary class, -1 if absent
	exemplarA, exemplarB int
}

// NewMonitor validates the sample set and picks the boundary exemplars.
func NewMonitor(config MonitorConfig, inputs [][]float32, labels []int) (*Monitor, error) {
	if err := checkSamples(inputs, labels); err != nil {
		return nil, err
	}
	for _, c := range config.BoundaryClasses {
		if err := nn.CheckLabel(c); err != nil {
			return nil, errors.Wrap(err, "boundary classes")
		}
	}

	m := &Monitor{config: config, inputs: inputs, labels: labels, exemplarA: -1, exemplarB: -1}
	for i, l := range labels {
		if l == config.BoundaryClasses[0] && m.exemplarA < 0 {
			m.exemplarA = i
		}
		if l == config.BoundaryClasses[1] && m.exemplarB < 0 {
			m.exemplarB = i
		}
	}
	return m, nil
}

// Observe runs the analyses due at epoch. It returns nil when nothing was due.
func (m *Monitor) Observe(net *nn.Network, epoch int) (*Report, error) {
	r := &Report{Epoch: epoch}
	var err error

	if m.config.ConfusionEvery.Due(epoch) {
		if r.Confusion, err = ComputeConfusion(net, m.inputs, m.labels); err != nil {
			return nil, errors.Wrap(err, "confusion")
		}
	}
	if m.config.MisfitsEvery.Due(epoch) {
		if r.Misfits, err = RankMisfits(net, m.inputs, m.labels, m.config.TopMisfits); err != nil {
			return nil, errors.Wrap(err, "misfits")
		}
	}
	if m.config.GradientFlowEvery.Due(epoch) && len(m.inputs) > 0 {
		if r.GradientFlow, err = MeasureGradientFlow(net, m.inputs[0], m.labels[0]); err != nil {
			return nil, errors.Wrap(err, "gradient flow")
		}
	}
	if m.config.BoundaryEvery.Due(epoch) && m.exemplarA >= 0 && m.exemplarB >= 0 {
		r.Boundary, err = SampleDecisionBoundary(net,
			m.inputs[m.exemplarA], m.inputs[m.exemplarB],
			m.config.BoundaryClasses[0], m.config.BoundaryClasses[1], m.config.Boundary)
		if err != nil {
			return nil, errors.Wrap(err, "decision boundary")
		}
	}

	if r.Empty() {
		return nil, nil
	}
	return r, nil
}
