package runtime

import (
	"fmt"
	"time"
)

// ScriptError is a user-script exception or guest-reported failure. It is
// non-fatal to the host; the stack is preferred over the message when both
// exist.
type ScriptError struct {
	Message string
	Stack   string
}

func (e *ScriptError) Error() string {
	if e.Stack != "" {
		return e.Stack
	}
	return e.Message
}

// TimeoutError is a supervisor-initiated teardown, distinct from script
// cancellation.
type TimeoutError struct {
	Budget      time.Duration
	Environment string
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("script execution exceeded the %s time budget for the %s environment", e.Budget, e.Environment)
}

// BridgeUnavailableError means the host capability needed to spawn the
// selected environment is missing. It maps to exit code -1.
type BridgeUnavailableError struct {
	Capability string
	Err        error
}

func (e *BridgeUnavailableError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("execution bridge unavailable: %s: %v", e.Capability, e.Err)
	}
	return fmt.Sprintf("execution bridge unavailable: %s", e.Capability)
}

func (e *BridgeUnavailableError) Unwrap() error { return e.Err }
