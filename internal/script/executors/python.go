package executors

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"time"

	"github.com/voiden-dev/scriptrunner/internal/script/runtime"
	"github.com/voiden-dev/scriptrunner/internal/script/wrapper"
)

// PythonExecutor runs a script inside a one-shot python subprocess. Env and
// variable values are resolved into the payload up front, so the process
// needs no interim rpc traffic: payload in on stdin, one result line out.
type PythonExecutor struct {
	binary  string
	timeout time.Duration
	// bootstrapSource is swapped in tests to run against a fake guest.
	bootstrapSource string
}

func NewPythonExecutor(binary string, timeout time.Duration) *PythonExecutor {
	return &PythonExecutor{binary: binary, timeout: timeout, bootstrapSource: wrapper.PythonBootstrap()}
}

func (e *PythonExecutor) Language() string {
	return "python"
}

func (e *PythonExecutor) Execute(ctx context.Context, script string, sess *runtime.Session) error {
	execCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	payload, err := json.Marshal(sess.Payload(script))
	if err != nil {
		return fmt.Errorf("failed to encode payload: %w", err)
	}

	cmd := exec.CommandContext(execCtx, e.binary, "-c", e.bootstrapSource)
	cmd.Stdin = bytes.NewReader(append(payload, '\n'))
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	runErr := cmd.Run()

	var execErr *exec.Error
	if errors.As(runErr, &execErr) {
		return &runtime.BridgeUnavailableError{Capability: "python interpreter", Err: runErr}
	}
	if execCtx.Err() == context.DeadlineExceeded {
		return &runtime.TimeoutError{Budget: e.timeout, Environment: "subprocess"}
	}

	final := lastLine(stdout.Bytes())
	if final == nil {
		return fmt.Errorf("subprocess exited without a result: %w (stderr: %s)", runErr, tail(stderr.String(), 512))
	}

	success, errText, err := sess.AbsorbGuest(final)
	if err != nil {
		return fmt.Errorf("failed to decode subprocess result: %w", err)
	}
	if !success {
		return &runtime.ScriptError{Message: errText}
	}
	return nil
}

func lastLine(out []byte) []byte {
	for len(out) > 0 {
		i := bytes.LastIndexByte(out, '\n')
		line := bytes.TrimSpace(out[i+1:])
		if len(line) > 0 {
			return line
		}
		if i < 0 {
			break
		}
		out = out[:i]
	}
	return nil
}
