package train

import (
	"fmt"
)

type everyNSteps struct {
	n, count int
	fn       OnStepFn
}

func (eN *everyNSteps) onStep(loop *Loop, loss float64) error {
	eN.count++
	if eN.count%eN.n != 0 {
		return nil
	}
	return eN.fn(loop, loss)
}

// EveryNSteps registers an OnStep hook on the loop that is called every
// N steps. It does not fire at the last step except by coincidence.
func EveryNSteps(loop *Loop, n int, name string, priority Priority, fn OnStepFn) {
	eN := &everyNSteps{n: n, fn: fn}
	fullName := fmt.Sprintf("EveryNSteps(%d): %s", n, name)
	loop.OnStep(fullName, priority, eN.onStep)
}
