package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"tabmon/pkg/model"

	"github.com/dop251/goja"
)

// scriptRunner executes operator-supplied transform scripts in a
// sandboxed VM. A fresh VM is built per run so scripts cannot leak
// state into each other.
type scriptRunner struct {
	timeout time.Duration
}

func newScriptRunner(timeout time.Duration) *scriptRunner {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &scriptRunner{timeout: timeout}
}

// Run evaluates script with the captured response bound to
// responseData. The script's final expression (or return value) is the
// transform result.
func (r *scriptRunner) Run(ctx context.Context, script string, rec model.NetworkResponse) (any, error) {
	vm := goja.New()
	vm.SetMaxCallStackSize(1024)

	// Strip host escape hatches before any user code runs.
	vm.Set("require", goja.Undefined())
	vm.Set("process", goja.Undefined())
	vm.Set("module", goja.Undefined())
	vm.Set("exports", goja.Undefined())

	data, err := recordValue(rec)
	if err != nil {
		return nil, err
	}
	if err := vm.Set("responseData", data); err != nil {
		return nil, fmt.Errorf("bind responseData: %w", err)
	}

	timer := time.NewTimer(r.timeout)
	defer timer.Stop()
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-timer.C:
			vm.Interrupt("script timeout exceeded")
		case <-ctx.Done():
			vm.Interrupt("context cancelled")
		case <-done:
		}
	}()

	val, err := vm.RunString("(function(responseData){\n" + script + "\n})(responseData)")
	if err != nil {
		return nil, fmt.Errorf("run custom script: %w", err)
	}
	return val.Export(), nil
}

// recordValue converts the record into plain maps and strings so the
// script sees JSON-shaped data instead of Go structs.
func recordValue(rec model.NetworkResponse) (any, error) {
	raw, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("encode record for script: %w", err)
	}
	var out any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decode record for script: %w", err)
	}
	return out, nil
}
