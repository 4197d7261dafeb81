package train

const (
	DefaultReleaseStep = 2000
	DefaultDecayWeight = 0.1
)

// ParamGroup is one optimizer parameter group's schedule state.
type ParamGroup struct {
	Name string
	LR   float64
}

// Optimizer exposes its parameter groups to schedule callbacks.
type Optimizer interface {
	Groups() []*ParamGroup
}

// StagedDecay multiplies every parameter group's learning rate by
// DecayWeight exactly once, when the loop's step counter reaches
// ReleaseStep. This is the schedule used when parameter groups frozen
// for the early alignment phase are released into full training.
type StagedDecay struct {
	ReleaseStep int
	DecayWeight float64

	opt      Optimizer
	initial  map[string]float64
	released bool
}

// NewStagedDecay builds the schedule; releaseStep <= 0 and
// decayWeight <= 0 select the defaults.
func NewStagedDecay(opt Optimizer, releaseStep int, decayWeight float64) *StagedDecay {
	if releaseStep <= 0 {
		releaseStep = DefaultReleaseStep
	}
	if decayWeight <= 0 {
		decayWeight = DefaultDecayWeight
	}
	return &StagedDecay{
		ReleaseStep: releaseStep,
		DecayWeight: decayWeight,
		opt:         opt,
	}
}

// Attach wires the schedule into the loop as an OnStep hook.
func (d *StagedDecay) Attach(loop *Loop, priority Priority) {
	loop.OnStep("StagedDecay", priority, d.onStep)
}

func (d *StagedDecay) onStep(loop *Loop, _ float64) error {
	if d.initial == nil {
		d.initial = make(map[string]float64)
		for _, group := range d.opt.Groups() {
			d.initial[group.Name] = group.LR
		}
	}
	if d.released || loop.LoopStep < d.ReleaseStep {
		return nil
	}
	for _, group := range d.opt.Groups() {
		group.LR *= d.DecayWeight
	}
	d.released = true
	return nil
}

// Initial reports the learning rate a group had when the schedule first
// observed it.
func (d *StagedDecay) Initial(name string) (float64, bool) {
	lr, ok := d.initial[name]
	return lr, ok
}
