package runtime

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/voiden-dev/scriptrunner/internal/assertion"
	"github.com/voiden-dev/scriptrunner/internal/script/bridge"
)

// State is one step of the session lifecycle:
// Idle -> Starting -> Running -> {Completed|TimedOut|Crashed} -> Finalizing -> Done.
type State string

const (
	StateIdle       State = "idle"
	StateStarting   State = "starting"
	StateRunning    State = "running"
	StateCompleted  State = "completed"
	StateTimedOut   State = "timed_out"
	StateCrashed    State = "crashed"
	StateFinalizing State = "finalizing"
	StateDone       State = "done"
)

// Session owns everything produced by one sandboxed execution: the mutable
// request/response copies, the live variable table, the log and assertion
// accumulators and the modified-variable tracker. A Session is created for
// one invocation and discarded after finalization; no two sessions ever
// share state, so the mutex only guards against the sandbox goroutine and
// the supervising goroutine overlapping within one session.
type Session struct {
	ID       string
	Request  *RequestState
	Response *ResponseState

	mu         sync.Mutex
	state      State
	envVars    map[string]string
	variables  map[string]interface{}
	modified   map[string]interface{}
	logs       []ScriptLog
	assertions []assertion.Assertion
	cancelled  bool
}

// NewSession copies the invocation inputs into exclusively-owned session
// state. Collections are normalized on the way in.
func NewSession(req *ExecutionRequest) *Session {
	env := make(map[string]string, len(req.EnvVars))
	for k, v := range req.EnvVars {
		env[k] = v
	}
	vars := make(map[string]interface{}, len(req.Variables))
	for k, v := range req.Variables {
		vars[k] = cloneValue(v)
	}
	return &Session{
		ID:        uuid.New().String(),
		Request:   cloneRequest(req.Request),
		Response:  cloneResponse(req.Response),
		state:     StateIdle,
		envVars:   env,
		variables: vars,
		modified:  make(map[string]interface{}),
	}
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// SetState advances the lifecycle. Transitions are one-way; a session that
// reached Done never moves again.
func (s *Session) SetState(st State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateDone {
		return
	}
	s.state = st
}

// Log records one log() call. When the first argument is a recognized level
// keyword the remaining arguments are logged at that level; otherwise every
// argument (the first included) is logged at the default level.
func (s *Session) Log(args ...interface{}) {
	level := LevelLog
	if len(args) > 0 {
		if kw, ok := args[0].(string); ok {
			if lv, ok := ParseLevel(kw); ok {
				level = lv
				args = args[1:]
			}
		}
	}
	if args == nil {
		args = []interface{}{}
	}
	s.mu.Lock()
	s.logs = append(s.logs, ScriptLog{Level: level, Args: args})
	s.mu.Unlock()
}

// Assert evaluates and appends exactly one assertion record. It never
// fails the script.
func (s *Session) Assert(actual interface{}, operator string, expected interface{}, message string) {
	rec := assertion.Check(actual, operator, expected, message)
	s.mu.Lock()
	s.assertions = append(s.assertions, rec)
	s.mu.Unlock()
}

// Cancel flags cooperative cancellation. It is retrospective only: the flag
// surfaces in the final result but nothing preempts the running script.
func (s *Session) Cancel() {
	s.mu.Lock()
	s.cancelled = true
	s.mu.Unlock()
}

// EnvGet reads one environment value from the session snapshot.
func (s *Session) EnvGet(key string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.envVars[key]
	return v, ok
}

// VariableGet reads the live variable table, observing any set() made
// earlier in the same script.
func (s *Session) VariableGet(key string) interface{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.variables[key]
}

// VariableSet updates the live table and records the mutation for post-run
// replay into the persistent store. Both effects happen on every set.
func (s *Session) VariableSet(key string, value interface{}) {
	s.mu.Lock()
	s.variables[key] = value
	s.modified[key] = value
	s.mu.Unlock()
}

// HandleRPC services the three permitted bridge methods against this
// session. Absent env keys resolve to nil so the script observes undefined
// rather than an error.
func (s *Session) HandleRPC(method bridge.Method, args []interface{}) (interface{}, error) {
	switch method {
	case bridge.MethodEnvGet:
		if len(args) < 1 {
			return nil, fmt.Errorf("env:get requires a key argument")
		}
		if v, ok := s.EnvGet(stringArg(args[0])); ok {
			return v, nil
		}
		return nil, nil
	case bridge.MethodVarsGet:
		if len(args) < 1 {
			return nil, fmt.Errorf("variables:get requires a key argument")
		}
		return s.VariableGet(stringArg(args[0])), nil
	case bridge.MethodVarsSet:
		if len(args) < 2 {
			return nil, fmt.Errorf("variables:set requires key and value arguments")
		}
		s.VariableSet(stringArg(args[0]), args[1])
		return args[1], nil
	default:
		return nil, fmt.Errorf("unsupported rpc method: %s", method)
	}
}

// Payload builds the one JSON object written to a subprocess at spawn, with
// env and variables pre-resolved.
func (s *Session) Payload(script string) *GuestPayload {
	s.mu.Lock()
	defer s.mu.Unlock()
	env := make(map[string]string, len(s.envVars))
	for k, v := range s.envVars {
		env[k] = v
	}
	vars := make(map[string]interface{}, len(s.variables))
	for k, v := range s.variables {
		vars[k] = v
	}
	return &GuestPayload{
		Script:    script,
		Request:   cloneRequest(*s.Request),
		Response:  cloneResponse(s.Response),
		EnvVars:   env,
		Variables: vars,
	}
}

// SetSnapshots replaces the session's request/response state with the
// sandbox's final snapshot, re-normalizing collections on the way out.
func (s *Session) SetSnapshots(req *RequestState, resp *ResponseState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if req != nil {
		s.Request = cloneRequest(*req)
	}
	if resp != nil {
		s.Response = cloneResponse(resp)
	}
}

// guestResult is the final JSON line a subprocess writes at exit.
type guestResult struct {
	Success           bool                   `json:"success"`
	Error             string                 `json:"error"`
	Stack             string                 `json:"stack"`
	Cancelled         bool                   `json:"cancelled"`
	Logs              []ScriptLog            `json:"logs"`
	Assertions        []assertion.Assertion  `json:"assertions"`
	ModifiedRequest   *RequestState          `json:"modifiedRequest"`
	ModifiedResponse  *ResponseState         `json:"modifiedResponse"`
	ModifiedVariables map[string]interface{} `json:"modifiedVariables"`
}

// AbsorbGuest folds a subprocess's final result line into the session.
// Guest-side variable mutations are applied locally too, so replay stays
// idempotent whether or not the live bridge already recorded them.
func (s *Session) AbsorbGuest(raw []byte) (success bool, errText string, err error) {
	var g guestResult
	if err := json.Unmarshal(raw, &g); err != nil {
		return false, "", fmt.Errorf("malformed guest result: %w", err)
	}
	s.SetSnapshots(g.ModifiedRequest, g.ModifiedResponse)
	s.mu.Lock()
	s.logs = append(s.logs, g.Logs...)
	s.assertions = append(s.assertions, g.Assertions...)
	if g.Cancelled {
		s.cancelled = true
	}
	for k, v := range g.ModifiedVariables {
		s.variables[k] = v
		s.modified[k] = v
	}
	s.mu.Unlock()
	if g.Stack != "" {
		return g.Success, g.Stack, nil
	}
	return g.Success, g.Error, nil
}

// Logs returns a copy of the ordered log records.
func (s *Session) Logs() []ScriptLog {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]ScriptLog, len(s.logs))
	copy(out, s.logs)
	return out
}

// Assertions returns a copy of the ordered assertion records.
func (s *Session) Assertions() []assertion.Assertion {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]assertion.Assertion, len(s.assertions))
	copy(out, s.assertions)
	return out
}

// Modified returns the variable mutations accumulated this session.
func (s *Session) Modified() map[string]interface{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]interface{}, len(s.modified))
	for k, v := range s.modified {
		out[k] = v
	}
	return out
}

func (s *Session) IsCancelled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancelled
}

// RequestSnapshot returns the final, normalized request state.
func (s *Session) RequestSnapshot() *RequestState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneRequest(*s.Request)
}

// ResponseSnapshot returns the final response state, nil when the session
// had none.
func (s *Session) ResponseSnapshot() *ResponseState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneResponse(s.Response)
}

func stringArg(v interface{}) string {
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}
