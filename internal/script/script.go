// Package script is the top-level entry point for sandboxed script
// execution. Callers hand it a script plus request/response snapshots and
// always get a structured result back; nothing a user script does can
// surface as an error or panic at this boundary.
package script

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/voiden-dev/scriptrunner/internal/script/executors"
	"github.com/voiden-dev/scriptrunner/internal/script/runtime"
)

// Re-exported so callers only import this package.
type (
	Language         = runtime.Language
	Level            = runtime.Level
	ScriptLog        = runtime.ScriptLog
	RequestState     = runtime.RequestState
	ResponseState    = runtime.ResponseState
	ExecutionRequest = runtime.ExecutionRequest
	ExecutionResult  = runtime.ExecutionResult
)

const (
	LanguageJavaScript = runtime.LanguageJavaScript
	LanguagePython     = runtime.LanguagePython

	ExitSuccess           = runtime.ExitSuccess
	ExitFailure           = runtime.ExitFailure
	ExitBridgeUnavailable = runtime.ExitBridgeUnavailable
)

// Config tunes environment selection for a Runner. The zero value uses the
// default decision table and time budgets.
type Config = executors.Config

// Runner executes scripts. It is stateless and safe for concurrent use;
// every invocation gets its own session and isolation unit.
type Runner struct {
	cfg Config
}

func NewRunner(cfg Config) *Runner {
	return &Runner{cfg: cfg}
}

var defaultRunner = NewRunner(Config{})

// Execute runs one invocation with the default configuration.
func Execute(ctx context.Context, req *ExecutionRequest) *ExecutionResult {
	return defaultRunner.Execute(ctx, req)
}

// Execute runs one script invocation. It never returns an error and never
// panics: every failure mode is folded into the returned result.
func (r *Runner) Execute(ctx context.Context, req *ExecutionRequest) (result *ExecutionResult) {
	sess := runtime.NewSession(req)

	log := slog.With("session", sess.ID, "language", req.Language)

	defer func() {
		if rec := recover(); rec != nil {
			log.Error("script execution panicked", "panic", rec)
			sess.SetState(runtime.StateCrashed)
			result = r.finalize(sess, fmt.Errorf("internal execution failure: %v", rec))
		}
	}()

	sess.SetState(runtime.StateStarting)

	ex, err := executors.Select(req.Language, r.cfg)
	if err != nil {
		log.Warn("no execution environment available", "error", err)
		sess.SetState(runtime.StateCrashed)
		return r.finalize(sess, err)
	}

	log.Debug("executing script", "environment", fmt.Sprintf("%T", ex))
	sess.SetState(runtime.StateRunning)

	runErr := ex.Execute(ctx, req.Script, sess)

	switch {
	case runErr == nil:
		sess.SetState(runtime.StateCompleted)
	case isTimeout(runErr):
		log.Warn("script timed out", "error", runErr)
		sess.SetState(runtime.StateTimedOut)
	case isScriptError(runErr):
		log.Debug("script raised an error", "error", runErr)
		sess.SetState(runtime.StateCompleted)
	default:
		log.Error("execution environment failed", "error", runErr)
		sess.SetState(runtime.StateCrashed)
	}

	return r.finalize(sess, runErr)
}

// finalize assembles the uniform result. Partial logs, assertions and
// variable mutations are always carried over, whatever ended the run.
func (r *Runner) finalize(sess *runtime.Session, runErr error) *ExecutionResult {
	sess.SetState(runtime.StateFinalizing)
	defer sess.SetState(runtime.StateDone)

	result := &ExecutionResult{
		Success:           runErr == nil,
		Logs:              sess.Logs(),
		Assertions:        sess.Assertions(),
		Cancelled:         sess.IsCancelled(),
		ExitCode:          runtime.ExitSuccess,
		ModifiedRequest:   sess.RequestSnapshot(),
		ModifiedResponse:  sess.ResponseSnapshot(),
		ModifiedVariables: sess.Modified(),
	}
	if runErr != nil {
		result.Error = runErr.Error()
		result.ExitCode = runtime.ExitFailure
		if isTimeout(runErr) {
			// a timed-out run never counts as a script-initiated cancel
			result.Cancelled = false
		}
		var unavailable *runtime.BridgeUnavailableError
		if errors.As(runErr, &unavailable) {
			result.ExitCode = runtime.ExitBridgeUnavailable
		}
	}
	return result
}

func isTimeout(err error) bool {
	var t *runtime.TimeoutError
	return errors.As(err, &t)
}

func isScriptError(err error) bool {
	var s *runtime.ScriptError
	return errors.As(err, &s)
}
