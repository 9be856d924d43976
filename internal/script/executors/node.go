package executors

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/voiden-dev/scriptrunner/internal/script/bridge"
	"github.com/voiden-dev/scriptrunner/internal/script/runtime"
	"github.com/voiden-dev/scriptrunner/internal/script/wrapper"
)

// maxGuestLine bounds a single stdout line from the guest. Snapshots of
// large response bodies can be sizeable, so this is generous.
const maxGuestLine = 16 * 1024 * 1024

// NodeExecutor runs a script inside a node subprocess. The process receives
// the payload as one JSON line on stdin, may emit id-correlated rpc lines
// on stdout while running, and reports its outcome as a single final JSON
// line before exiting.
type NodeExecutor struct {
	binary  string
	timeout time.Duration
	// wrapperSource is swapped in tests to run against a fake guest.
	wrapperSource string
}

func NewNodeExecutor(binary string, timeout time.Duration) *NodeExecutor {
	return &NodeExecutor{binary: binary, timeout: timeout, wrapperSource: wrapper.Node()}
}

func (e *NodeExecutor) Language() string {
	return "javascript"
}

func (e *NodeExecutor) Execute(ctx context.Context, script string, sess *runtime.Session) error {
	execCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	cmd := exec.CommandContext(execCtx, e.binary, "--no-warnings", "-e", e.wrapperSource)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("failed to open subprocess stdin: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("failed to open subprocess stdout: %w", err)
	}
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		return &runtime.BridgeUnavailableError{Capability: "node runtime", Err: err}
	}

	payload, err := json.Marshal(sess.Payload(script))
	if err != nil {
		stdin.Close()
		_ = cmd.Wait()
		return fmt.Errorf("failed to encode payload: %w", err)
	}

	var writeMu sync.Mutex
	writeLine := func(line []byte) error {
		writeMu.Lock()
		defer writeMu.Unlock()
		_, werr := stdin.Write(append(line, '\n'))
		return werr
	}

	if err := writeLine(payload); err != nil {
		_ = cmd.Wait()
		return &runtime.BridgeUnavailableError{Capability: "node runtime", Err: err}
	}

	br := bridge.New(sess.HandleRPC)

	var final []byte
	g, _ := errgroup.WithContext(execCtx)
	g.Go(func() error {
		scanner := bufio.NewScanner(stdout)
		scanner.Buffer(make([]byte, 64*1024), maxGuestLine)
		for scanner.Scan() {
			line := bytes.TrimSpace(scanner.Bytes())
			if len(line) == 0 {
				continue
			}
			var probe struct {
				Type string `json:"type"`
			}
			if err := json.Unmarshal(line, &probe); err != nil {
				// Stray prints from the guest are ignored rather than fatal.
				continue
			}
			switch probe.Type {
			case bridge.TypeRequest:
				var call bridge.Call
				if err := json.Unmarshal(line, &call); err != nil {
					continue
				}
				resp := br.Dispatch(call)
				out, err := json.Marshal(resp)
				if err != nil {
					continue
				}
				if err := writeLine(out); err != nil {
					return fmt.Errorf("failed to answer rpc call: %w", err)
				}
			case "done":
				final = append([]byte(nil), line...)
			}
		}
		if err := scanner.Err(); err != nil && !errors.Is(err, io.ErrClosedPipe) {
			return err
		}
		return nil
	})

	pumpErr := g.Wait()
	stdin.Close()
	waitErr := cmd.Wait()

	if final == nil {
		if execCtx.Err() == context.DeadlineExceeded {
			return &runtime.TimeoutError{Budget: e.timeout, Environment: "subprocess"}
		}
		if pumpErr != nil {
			return fmt.Errorf("subprocess stream failed: %w", pumpErr)
		}
		return fmt.Errorf("subprocess exited without a result: %w (stderr: %s)", waitErr, tail(stderr.String(), 512))
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

func tail(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return "..." + s[len(s)-n:]
}
