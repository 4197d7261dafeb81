package train

import (
	"context"
	"math"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
)

func constantLoss(loss float64) StepFn {
	return func(context.Context, int) (float64, error) {
		return loss, nil
	}
}

func TestRunStepsHookOrder(t *testing.T) {
	loop := NewLoop()
	var calls []string
	loop.OnStart("late", 1, func(*Loop) error {
		calls = append(calls, "start-late")
		return nil
	})
	loop.OnStart("early", -1, func(*Loop) error {
		calls = append(calls, "start-early")
		return nil
	})
	loop.OnStep("observe", 0, func(l *Loop, loss float64) error {
		calls = append(calls, "step")
		assert.Equal(t, 0.25, loss)
		return nil
	})
	loop.OnEnd("finish", 0, func(*Loop, float64) error {
		calls = append(calls, "end")
		return nil
	})

	err := loop.RunSteps(context.Background(), 2, constantLoss(0.25))
	assert.NoError(t, err)
	assert.Equal(t,
		[]string{"start-early", "start-late", "step", "step", "end"}, calls)
	assert.Equal(t, 2, loop.LoopStep)
}

func TestRunStepsResumesCounting(t *testing.T) {
	loop := NewLoop()
	step := constantLoss(1)
	assert.NoError(t, loop.RunSteps(context.Background(), 3, step))
	assert.NoError(t, loop.RunSteps(context.Background(), 3, step))
	assert.Equal(t, 3, loop.StartStep)
	assert.Equal(t, 6, loop.LoopStep)
}

func TestRunStepsStepError(t *testing.T) {
	loop := NewLoop()
	hookRan := false
	loop.OnStep("observe", 0, func(*Loop, float64) error {
		hookRan = true
		return nil
	})
	err := loop.RunSteps(context.Background(), 4,
		func(_ context.Context, step int) (float64, error) {
			return 0, errors.New("gradient blew up")
		})
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "gradient blew up")
	assert.False(t, hookRan)
}

func TestRunStepsInterruptsOnNaN(t *testing.T) {
	loop := NewLoop()
	err := loop.RunSteps(context.Background(), 4, constantLoss(math.NaN()))
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "training interrupted")
}

func TestEveryNSteps(t *testing.T) {
	loop := NewLoop()
	var seen []int
	EveryNSteps(loop, 3, "collect", 0, func(l *Loop, _ float64) error {
		seen = append(seen, l.LoopStep)
		return nil
	})
	assert.NoError(t, loop.RunSteps(context.Background(), 10, constantLoss(1)))
	assert.Equal(t, []int{2, 5, 8}, seen)
}

type sgd struct {
	groups []*ParamGroup
}

func (o *sgd) Groups() []*ParamGroup { return o.groups }

func TestStagedDecay(t *testing.T) {
	opt := &sgd{groups: []*ParamGroup{
		{Name: "embeddings", LR: 1e-3},
		{Name: "head", LR: 5e-4},
	}}
	decay := NewStagedDecay(opt, 3, 0.5)
	loop := NewLoop()
	decay.Attach(loop, 0)

	assert.NoError(t, loop.RunSteps(context.Background(), 6, constantLoss(1)))
	assert.InDelta(t, 5e-4, opt.groups[0].LR, 1e-12)
	assert.InDelta(t, 2.5e-4, opt.groups[1].LR, 1e-12)

	initial, ok := decay.Initial("embeddings")
	assert.True(t, ok)
	assert.InDelta(t, 1e-3, initial, 1e-12)

	// Later runs leave the rates alone.
	assert.NoError(t, loop.RunSteps(context.Background(), 6, constantLoss(1)))
	assert.InDelta(t, 5e-4, opt.groups[0].LR, 1e-12)
}

func TestStagedDecayDefaults(t *testing.T) {
	decay := NewStagedDecay(&sgd{}, 0, 0)
	assert.Equal(t, DefaultReleaseStep, decay.ReleaseStep)
	assert.Equal(t, DefaultDecayWeight, decay.DecayWeight)
}
