// Package runtime holds the per-session state of one sandboxed script
// execution: the data model crossing the sandbox boundary, the session
// accumulators behind the script-facing API, and the session lifecycle.
package runtime

import (
	"strings"

	"github.com/voiden-dev/scriptrunner/internal/assertion"
	"github.com/voiden-dev/scriptrunner/internal/collection"
)

// Language selects the guest interpreter.
type Language string

const (
	LanguageJavaScript Language = "javascript"
	LanguagePython     Language = "python"
)

// Level is a script log level.
type Level string

const (
	LevelLog   Level = "log"
	LevelInfo  Level = "info"
	LevelDebug Level = "debug"
	LevelWarn  Level = "warn"
	LevelError Level = "error"
)

// ParseLevel recognizes a log-level keyword, folding the "warning" alias
// onto warn. It reports false for anything else so the caller can treat the
// argument as a plain message.
func ParseLevel(s string) (Level, bool) {
	switch Level(strings.ToLower(s)) {
	case LevelLog, LevelInfo, LevelDebug, LevelWarn, LevelError:
		return Level(strings.ToLower(s)), true
	}
	if strings.EqualFold(s, "warning") {
		return LevelWarn, true
	}
	return "", false
}

// ScriptLog is one log() call, order-preserving within a session.
type ScriptLog struct {
	Level Level         `json:"level"`
	Args  []interface{} `json:"args"`
}

// RequestState is the mutable request snapshot handed to the sandbox.
type RequestState struct {
	URL         string               `json:"url"`
	Method      string               `json:"method"`
	Headers     []collection.KVEntry `json:"headers"`
	QueryParams []collection.KVEntry `json:"queryParams"`
	PathParams  []collection.KVEntry `json:"pathParams"`
	Body        interface{}          `json:"body,omitempty"`
}

// ResponseState is the post-receive snapshot, present only for response
// hooks.
type ResponseState struct {
	Status     int                  `json:"status"`
	StatusText string               `json:"statusText,omitempty"`
	Headers    []collection.KVEntry `json:"headers"`
	Body       interface{}          `json:"body,omitempty"`
}

// ExecutionRequest describes one script invocation. It is created once per
// invocation and never reused.
type ExecutionRequest struct {
	Script    string
	Language  Language
	Request   RequestState
	Response  *ResponseState
	EnvVars   map[string]string
	Variables map[string]interface{}
}

// Result exit codes mirror the subprocess wire contract.
const (
	ExitSuccess           = 0
	ExitFailure           = 1
	ExitBridgeUnavailable = -1
)

// ExecutionResult is the single, always-well-formed outcome of a session.
// The top-level API returns it for every failure mode instead of an error.
type ExecutionResult struct {
	Success           bool                   `json:"success"`
	Logs              []ScriptLog            `json:"logs"`
	Assertions        []assertion.Assertion  `json:"assertions"`
	Cancelled         bool                   `json:"cancelled"`
	Error             string                 `json:"error,omitempty"`
	ExitCode          int                    `json:"exitCode"`
	ModifiedRequest   *RequestState          `json:"modifiedRequest,omitempty"`
	ModifiedResponse  *ResponseState         `json:"modifiedResponse,omitempty"`
	ModifiedVariables map[string]interface{} `json:"modifiedVariables"`
}

// GuestPayload is the one JSON object written to a subprocess at spawn. Env
// and variables are always pre-resolved into it; the Python path has no live
// RPC channel back to the host during execution.
type GuestPayload struct {
	Script    string                 `json:"script"`
	Request   *RequestState          `json:"request"`
	Response  *ResponseState         `json:"response,omitempty"`
	EnvVars   map[string]string      `json:"envVars"`
	Variables map[string]interface{} `json:"variables"`
}

// cloneValue deep-copies a JSON-shaped value so no two sessions ever share
// mutable state.
func cloneValue(v interface{}) interface{} {
	switch t := v.(type) {
	case map[string]interface{}:
		out := make(map[string]interface{}, len(t))
		for k, val := range t {
			out[k] = cloneValue(val)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(t))
		for i, val := range t {
			out[i] = cloneValue(val)
		}
		return out
	default:
		return v
	}
}

func cloneEntries(entries []collection.KVEntry) []collection.KVEntry {
	return collection.NormalizeEntries(entries)
}

func cloneRequest(r RequestState) *RequestState {
	return &RequestState{
		URL:         r.URL,
		Method:      r.Method,
		Headers:     cloneEntries(r.Headers),
		QueryParams: cloneEntries(r.QueryParams),
		PathParams:  cloneEntries(r.PathParams),
		Body:        cloneValue(r.Body),
	}
}

func cloneResponse(r *ResponseState) *ResponseState {
	if r == nil {
		return nil
	}
	return &ResponseState{
		Status:     r.Status,
		StatusText: r.StatusText,
		Headers:    cloneEntries(r.Headers),
		Body:       cloneValue(r.Body),
	}
}
