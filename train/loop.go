// Package train drives staged alignment training: a minimal step-driven
// loop with priority-ordered hooks, and the learning-rate decay applied
// when frozen parameter groups are released.
package train

import (
	"context"
	"math"
	"sort"

	"github.com/pkg/errors"
)

// Priority orders hooks; lower values run first. Negative values are ok.
type Priority int

// OnStartFn is the type of OnStart hooks.
type OnStartFn func(loop *Loop) error

// OnStepFn is the type of OnStep hooks, called after each step with the
// step's loss.
type OnStepFn func(loop *Loop, loss float64) error

// OnEndFn is the type of OnEnd hooks, called with the last loss.
type OnEndFn func(loop *Loop, loss float64) error

// StepFn performs one optimization step and reports its loss.
type StepFn func(ctx context.Context, step int) (float64, error)

// Loop runs a training loop, calling the registered hooks around the
// caller's step function. It holds no model state itself; schedules,
// logging, and checkpointing attach as hooks.
type Loop struct {
	// LoopStep currently being executed. Carries over between runs.
	LoopStep int

	// StartStep is the value of LoopStep at the start of the current run.
	StartStep int

	// EndStep is one past the last step of the current run.
	EndStep int

	onStart *priorityHooks[*hookWithName[OnStartFn]]
	onStep  *priorityHooks[*hookWithName[OnStepFn]]
	onEnd   *priorityHooks[*hookWithName[OnEndFn]]
}

func NewLoop() *Loop {
	return &Loop{
		onStart: newPriorityHooks[*hookWithName[OnStartFn]](),
		onStep:  newPriorityHooks[*hookWithName[OnStepFn]](),
		onEnd:   newPriorityHooks[*hookWithName[OnEndFn]](),
	}
}

// OnStart adds a hook with given priority and name (for error reporting)
// to the start of a run.
func (loop *Loop) OnStart(name string, priority Priority, fn OnStartFn) {
	loop.onStart.Add(priority, &hookWithName[OnStartFn]{name: name, fn: fn})
}

// OnStep adds a hook with given priority and name to each step, called
// after the step function.
func (loop *Loop) OnStep(name string, priority Priority, fn OnStepFn) {
	loop.onStep.Add(priority, &hookWithName[OnStepFn]{name: name, fn: fn})
}

// OnEnd adds a hook with given priority and name to the end of a run.
func (loop *Loop) OnEnd(name string, priority Priority, fn OnEndFn) {
	loop.onEnd.Add(priority, &hookWithName[OnEndFn]{name: name, fn: fn})
}

// RunSteps runs that many steps. StartStep and EndStep adjust to the
// current LoopStep, so successive runs pick up where the last left off.
func (loop *Loop) RunSteps(ctx context.Context, steps int, step StepFn) error {
	if steps == 0 {
		return nil
	}
	loop.StartStep = loop.LoopStep
	loop.EndStep = loop.LoopStep + steps
	if err := loop.start(); err != nil {
		return err
	}
	var loss float64
	for loop.LoopStep = loop.StartStep; loop.LoopStep < loop.EndStep; loop.LoopStep++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		var err error
		loss, err = step(ctx, loop.LoopStep)
		if err != nil {
			return errors.WithMessagef(err,
				"RunSteps(%d): step %d failed", steps, loop.LoopStep)
		}
		if math.IsNaN(loss) || math.IsInf(loss, 0) {
			return errors.Errorf(
				"loss is %f at step %d, training interrupted",
				loss, loop.LoopStep)
		}
		if err := loop.stepHooks(loss); err != nil {
			return err
		}
	}
	return loop.end(loss)
}

func (loop *Loop) start() (err error) {
	loop.onStart.Enumerate(func(hook *hookWithName[OnStartFn]) {
		if err != nil {
			return
		}
		err = hook.fn(loop)
		if err != nil {
			err = errors.WithMessagef(err, "OnStart(hook %q)", hook.name)
		}
	})
	return
}

func (loop *Loop) stepHooks(loss float64) (err error) {
	loop.onStep.Enumerate(func(hook *hookWithName[OnStepFn]) {
		if err != nil {
			return
		}
		err = hook.fn(loop, loss)
		if err != nil {
			err = errors.WithMessagef(err, "OnStep(hook %q)", hook.name)
		}
	})
	return
}

func (loop *Loop) end(loss float64) (err error) {
	loop.onEnd.Enumerate(func(hook *hookWithName[OnEndFn]) {
		if err != nil {
			return
		}
		err = hook.fn(loop, loss)
		if err != nil {
			err = errors.WithMessagef(err, "OnEnd(hook %q)", hook.name)
		}
	})
	return
}

// hookWithName stores a hook name and function.
type hookWithName[F any] struct {
	name string
	fn   F
}

// priorityHooks organizes hooks for type F per priority.
type priorityHooks[H any] struct {
	hooks map[Priority][]H
}

func newPriorityHooks[H any]() *priorityHooks[H] {
	return &priorityHooks[H]{hooks: make(map[Priority][]H)}
}

func (h *priorityHooks[H]) Add(priority Priority, hook H) {
	h.hooks[priority] = append(h.hooks[priority], hook)
}

// Enumerate calls fn for all registered hooks in priority order.
func (h *priorityHooks[H]) Enumerate(fn func(hook H)) {
	keys := make([]Priority, 0, len(h.hooks))
	for key := range h.hooks {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	for _, key := range keys {
		for _, hook := range h.hooks[key] {
			fn(hook)
		}
	}
}
