// Package executors contains the execution environments a sandbox session
// can run in and the decision table that picks one. JavaScript prefers the
// Node subprocess bridge (external module loading works there), falling
// back to the in-process interpreter worker and finally to same-goroutine
// execution with no isolation. Python always requires the subprocess
// bridge. Whichever environment runs, the caller observes the same result
// shape.
package executors

import (
	"context"
	"fmt"
	"os/exec"
	"time"

	"github.com/voiden-dev/scriptrunner/internal/script/runtime"
)

// Default time budgets. The subprocess budget is deliberately longer than
// the worker budget to absorb interpreter spin-up cost; keep them as two
// independent knobs.
const (
	DefaultWorkerTimeout     = 5 * time.Second
	DefaultSubprocessTimeout = 30 * time.Second
)

const (
	defaultNodeBinary   = "node"
	defaultPythonBinary = "python3"
)

// Executor runs one script inside one isolation unit, recording everything
// it produces into the session. The returned error classifies the outcome:
// nil for a completed run, *runtime.ScriptError for a script-level failure,
// *runtime.TimeoutError for a supervisor teardown,
// *runtime.BridgeUnavailableError for a missing host capability, and
// anything else for an internal sandbox crash.
type Executor interface {
	Language() string
	Execute(ctx context.Context, script string, sess *runtime.Session) error
}

// Config selects and budgets execution environments.
type Config struct {
	WorkerTimeout     time.Duration
	SubprocessTimeout time.Duration
	NodeBinary        string
	PythonBinary      string
	// DisableSubprocess skips the Node bridge so JavaScript runs on the
	// in-process worker path.
	DisableSubprocess bool
	// Inline runs JavaScript on the calling goroutine with no isolation.
	// Last-resort fallback only.
	Inline bool
}

func (c Config) withDefaults() Config {
	if c.WorkerTimeout <= 0 {
		c.WorkerTimeout = DefaultWorkerTimeout
	}
	if c.SubprocessTimeout <= 0 {
		c.SubprocessTimeout = DefaultSubprocessTimeout
	}
	if c.NodeBinary == "" {
		c.NodeBinary = defaultNodeBinary
	}
	if c.PythonBinary == "" {
		c.PythonBinary = defaultPythonBinary
	}
	return c
}

// Select applies the environment decision table for the given language.
func Select(language runtime.Language, cfg Config) (Executor, error) {
	cfg = cfg.withDefaults()
	switch language {
	case runtime.LanguageJavaScript:
		if cfg.Inline {
			return NewJavaScriptExecutor(cfg.WorkerTimeout, true), nil
		}
		if !cfg.DisableSubprocess {
			if path, err := exec.LookPath(cfg.NodeBinary); err == nil {
				return NewNodeExecutor(path, cfg.SubprocessTimeout), nil
			}
		}
		return NewJavaScriptExecutor(cfg.WorkerTimeout, false), nil
	case runtime.LanguagePython:
		path, err := exec.LookPath(cfg.PythonBinary)
		if err != nil {
			return nil, &runtime.BridgeUnavailableError{Capability: "python interpreter", Err: err}
		}
		return NewPythonExecutor(path, cfg.SubprocessTimeout), nil
	default:
		return nil, fmt.Errorf("unsupported language: %q", language)
	}
}
