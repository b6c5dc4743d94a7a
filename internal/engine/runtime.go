package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dop251/goja"

	"github.com/papyr-io/papyr/internal/capability"
)

var (
	errInterruptTimeout = errors.New("execution budget exceeded")
	errInterruptCeiling = errors.New("instruction ceiling exceeded")
)

// runtime wraps one goja VM for exactly one execution. A fresh VM per call
// is the isolation boundary: no state survives into the next run, so a
// pooled worker can never leak one source's data to another.
type runtime struct {
	vm      *goja.Runtime
	surface *capability.Surface
}

func newRuntime(surface *capability.Surface) *runtime {
	vm := goja.New()
	vm.SetMaxCallStackSize(1024)
	vm.SetFieldNameMapper(goja.UncapFieldNameMapper())
	surface.Install(vm)
	return &runtime{vm: vm, surface: surface}
}

// run evaluates the script under two independent defenses. The observer
// goroutine periodically compares elapsed time and the surface's host-call
// count against the budget and raises the VM's interrupt flag, which goja
// checks inside its dispatch loop; the caller additionally enforces a
// wall-clock timeout at the pool boundary whether or not the interrupt
// ever lands.
func (r *runtime) run(ctx context.Context, script string, ceiling int64) (goja.Value, error) {
	deadline, hasDeadline := ctx.Deadline()

	done := make(chan struct{})
	defer close(done)

	go func() {
		ticker := time.NewTicker(25 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				r.vm.Interrupt(errInterruptTimeout)
				return
			case <-ticker.C:
				if hasDeadline && time.Now().After(deadline) {
					r.vm.Interrupt(errInterruptTimeout)
					return
				}
				if ceiling > 0 && r.surface.Ops() > ceiling {
					r.vm.Interrupt(errInterruptCeiling)
					return
				}
			}
		}
	}()

	return r.vm.RunString(script)
}

// export coerces a goja value to a plain Go value (string, number, bool,
// list, map) for the caller.
func export(val goja.Value) interface{} {
	if val == nil || goja.IsUndefined(val) || goja.IsNull(val) {
		return nil
	}
	return val.Export()
}

// classify maps an evaluation error to the result taxonomy.
func classify(err error, surface *capability.Surface) *ExecuteResult {
	if v := surface.Violation(); v != nil {
		return &ExecuteResult{Status: StatusSecurityViolation, Rule: v.Rule, Error: v.Detail}
	}

	var interrupted *goja.InterruptedError
	if errors.As(err, &interrupted) {
		return &ExecuteResult{Status: StatusTimeout, Error: fmt.Sprint(interrupted.Value())}
	}

	var exception *goja.Exception
	if errors.As(err, &exception) {
		return &ExecuteResult{Status: StatusScriptError, Error: exception.Error()}
	}

	return &ExecuteResult{Status: StatusScriptError, Error: err.Error()}
}
