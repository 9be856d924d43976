package executors

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dop251/goja"

	"github.com/voiden-dev/scriptrunner/internal/script/bridge"
	"github.com/voiden-dev/scriptrunner/internal/script/runtime"
	"github.com/voiden-dev/scriptrunner/internal/script/wrapper"
)

// interruptSentinel marks a supervisor-initiated interrupt so it can be
// told apart from script-raised values.
type interruptSentinel struct{}

// JavaScriptExecutor runs a script on an embedded interpreter. In worker
// mode the interpreter runs on its own goroutine and is forcibly
// interrupted when the time budget expires; in inline mode it runs on the
// calling goroutine with no isolation at all.
type JavaScriptExecutor struct {
	timeout time.Duration
	inline  bool
}

func NewJavaScriptExecutor(timeout time.Duration, inline bool) *JavaScriptExecutor {
	return &JavaScriptExecutor{timeout: timeout, inline: inline}
}

func (e *JavaScriptExecutor) Language() string {
	return "javascript"
}

// ValidateJavaScript statically checks script syntax without running it.
func ValidateJavaScript(script string) error {
	if _, err := goja.Compile("validation", script, false); err != nil {
		return fmt.Errorf("javascript syntax error: %w", err)
	}
	return nil
}

func (e *JavaScriptExecutor) Execute(ctx context.Context, script string, sess *runtime.Session) error {
	vm := goja.New()

	br := bridge.New(sess.HandleRPC)
	calls := make(chan bridge.Call, 8)
	loopDone := make(chan struct{})
	go func() {
		defer close(loopDone)
		for c := range calls {
			br.Resolve(br.Dispatch(c))
		}
	}()
	defer func() {
		close(calls)
		<-loopDone
	}()

	if err := e.setupShim(ctx, vm, sess, br, calls, script); err != nil {
		return fmt.Errorf("failed to set up sandbox shim: %w", err)
	}

	if e.inline {
		runErr := e.runInline(vm, script)
		return e.finish(vm, sess, runErr)
	}

	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- fmt.Errorf("sandbox panic: %v", r)
			}
		}()
		_, err := vm.RunString(script)
		done <- err
	}()

	timer := time.NewTimer(e.timeout)
	defer timer.Stop()

	select {
	case err := <-done:
		return e.finish(vm, sess, err)
	case <-timer.C:
		vm.Interrupt(interruptSentinel{})
		<-done
		return &runtime.TimeoutError{Budget: e.timeout, Environment: "worker"}
	case <-ctx.Done():
		vm.Interrupt(interruptSentinel{})
		<-done
		return &runtime.TimeoutError{Budget: e.timeout, Environment: "worker"}
	}
}

func (e *JavaScriptExecutor) runInline(vm *goja.Runtime, script string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("sandbox panic: %v", r)
		}
	}()
	_, err = vm.RunString(script)
	return err
}

// setupShim neuters host-process globals, injects the capability object and
// builds the voiden API from the session payload.
func (e *JavaScriptExecutor) setupShim(ctx context.Context, vm *goja.Runtime, sess *runtime.Session, br *bridge.Bridge, calls chan bridge.Call, script string) error {
	_ = vm.Set("require", goja.Undefined())
	_ = vm.Set("process", goja.Undefined())
	_ = vm.Set("module", goja.Undefined())
	_ = vm.Set("exports", goja.Undefined())
	_ = vm.Set("setTimeout", func(call goja.FunctionCall) goja.Value { return goja.Undefined() })
	_ = vm.Set("setInterval", func(call goja.FunctionCall) goja.Value { return goja.Undefined() })

	payloadJSON, err := json.Marshal(sess.Payload(script))
	if err != nil {
		return err
	}
	_ = vm.Set("__payloadJSON", string(payloadJSON))

	// env and variable reads make a full bridge round trip even in-process
	// so the worker path exercises the same id-correlated protocol as the
	// subprocess path.
	host := map[string]interface{}{
		"envGet": func(key string) interface{} {
			v, err := br.RoundTrip(ctx, calls, bridge.MethodEnvGet, []interface{}{key})
			if err != nil {
				return nil
			}
			return v
		},
		"varGet": func(key string) interface{} {
			v, err := br.RoundTrip(ctx, calls, bridge.MethodVarsGet, []interface{}{key})
			if err != nil {
				return nil
			}
			return v
		},
		"varSet": func(key string, value interface{}) {
			_, _ = br.RoundTrip(ctx, calls, bridge.MethodVarsSet, []interface{}{key, value})
		},
		"log": func(args []interface{}) {
			sess.Log(args...)
		},
		"assert": func(actual interface{}, operator string, expected interface{}, message string) {
			sess.Assert(actual, operator, expected, message)
		},
		"cancel": func() {
			sess.Cancel()
		},
	}
	_ = vm.Set("__host", host)

	if _, err := vm.RunString(wrapper.Shim()); err != nil {
		return err
	}
	_, err = vm.RunString(`
		var __built = __buildVoiden(JSON.parse(__payloadJSON), __host);
		var voiden = __built.api;
		var vd = voiden;
	`)
	return err
}

// finish exports the final request/response snapshot while the interpreter
// is still usable, then classifies the run error.
func (e *JavaScriptExecutor) finish(vm *goja.Runtime, sess *runtime.Session, runErr error) error {
	var intr *goja.InterruptedError
	if errors.As(runErr, &intr) {
		return &runtime.TimeoutError{Budget: e.timeout, Environment: "worker"}
	}

	e.exportSnapshot(vm, sess)

	if runErr == nil {
		return nil
	}
	var ex *goja.Exception
	if errors.As(runErr, &ex) {
		return &runtime.ScriptError{Message: ex.Error(), Stack: ex.String()}
	}
	return runErr
}

func (e *JavaScriptExecutor) exportSnapshot(vm *goja.Runtime, sess *runtime.Session) {
	v, err := vm.RunString("JSON.stringify(__built.snapshot())")
	if err != nil {
		return
	}
	var snap struct {
		Request  *runtime.RequestState  `json:"request"`
		Response *runtime.ResponseState `json:"response"`
	}
	if err := json.Unmarshal([]byte(v.String()), &snap); err != nil {
		return
	}
	sess.SetSnapshots(snap.Request, snap.Response)
}
