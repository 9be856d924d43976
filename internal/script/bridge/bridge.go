// Package bridge implements the message-correlated RPC channel between a
// running sandbox and its host session. A sandbox issues Calls with
// monotonically increasing ids; the host answers each id exactly once; a
// Result carrying an unknown id is silently discarded. Only the three
// capability methods are permitted.
package bridge

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
)

// Method is an RPC method name on the wire.
type Method string

const (
	MethodEnvGet  Method = "env:get"
	MethodVarsGet Method = "variables:get"
	MethodVarsSet Method = "variables:set"
)

// Wire message type tags.
const (
	TypeRequest  = "rpc:request"
	TypeResponse = "rpc:response"
)

// Call is one sandbox-to-host request.
type Call struct {
	Type   string        `json:"type"`
	ID     int64         `json:"id"`
	Method Method        `json:"method"`
	Args   []interface{} `json:"args"`
}

// Result is the single host answer paired with one Call id.
type Result struct {
	Type   string      `json:"type"`
	ID     int64       `json:"id"`
	Result interface{} `json:"result,omitempty"`
	Error  string      `json:"error,omitempty"`
}

// Handler services one permitted method on behalf of the session.
type Handler func(method Method, args []interface{}) (interface{}, error)

// Bridge owns the pending map for one sandbox session. It is safe for use
// from the sandbox goroutine and the host loop concurrently; it is never
// shared between sessions.
type Bridge struct {
	handler Handler
	nextID  atomic.Int64

	mu      sync.Mutex
	pending map[int64]chan Result
}

func New(handler Handler) *Bridge {
	return &Bridge{
		handler: handler,
		pending: make(map[int64]chan Result),
	}
}

// Allowed reports whether a method is one of the three permitted
// capabilities.
func Allowed(m Method) bool {
	switch m {
	case MethodEnvGet, MethodVarsGet, MethodVarsSet:
		return true
	}
	return false
}

// Dispatch services one incoming Call on the host side and produces the
// single Result for its id. It never panics out: handler errors become
// error Results.
func (b *Bridge) Dispatch(c Call) Result {
	if !Allowed(c.Method) {
		return Result{Type: TypeResponse, ID: c.ID, Error: fmt.Sprintf("unsupported rpc method: %s", c.Method)}
	}
	v, err := b.handler(c.Method, c.Args)
	if err != nil {
		return Result{Type: TypeResponse, ID: c.ID, Error: err.Error()}
	}
	return Result{Type: TypeResponse, ID: c.ID, Result: v}
}

// NewCall assigns the next id, registers it in the pending map and returns
// the call together with the channel its Result will arrive on.
func (b *Bridge) NewCall(m Method, args []interface{}) (Call, <-chan Result) {
	id := b.nextID.Add(1)
	ch := make(chan Result, 1)
	b.mu.Lock()
	b.pending[id] = ch
	b.mu.Unlock()
	return Call{Type: TypeRequest, ID: id, Method: m, Args: args}, ch
}

// Resolve delivers a Result to the caller that issued the matching id.
// Unknown ids are discarded; a second Result for the same id is likewise
// discarded, so exactly one response is ever observed per request.
func (b *Bridge) Resolve(r Result) {
	b.mu.Lock()
	ch, ok := b.pending[r.ID]
	if ok {
		delete(b.pending, r.ID)
	}
	b.mu.Unlock()
	if ok {
		ch <- r
	}
}

// RoundTrip issues one call over the supplied outgoing channel and blocks
// until its Result is resolved or the context ends. Distinct concurrent
// round trips are resolved independently; no relative ordering is imposed.
func (b *Bridge) RoundTrip(ctx context.Context, out chan<- Call, m Method, args []interface{}) (interface{}, error) {
	call, ch := b.NewCall(m, args)
	select {
	case out <- call:
	case <-ctx.Done():
		b.drop(call.ID)
		return nil, ctx.Err()
	}
	select {
	case r := <-ch:
		if r.Error != "" {
			return nil, fmt.Errorf("%s: %s", m, r.Error)
		}
		return r.Result, nil
	case <-ctx.Done():
		b.drop(call.ID)
		return nil, ctx.Err()
	}
}

func (b *Bridge) drop(id int64) {
	b.mu.Lock()
	delete(b.pending, id)
	b.mu.Unlock()
}
