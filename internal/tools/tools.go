package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/Alserial/VoiceRAG/internal/quote"
	"github.com/Alserial/VoiceRAG/internal/utils"
)

// Direction says where a tool result goes: back to the upstream model as a
// function call output, or out to the browser for display.
type Direction int

const (
	ToServer Direction = iota + 1
	ToClient
)

// Result is the single outcome of one tool call.
type Result struct {
	Text      string
	Direction Direction
}

// JSONResult marshals v as the result payload. Marshal failures come back as
// an error payload to the server so the model always receives something.
func JSONResult(v interface{}, dir Direction) Result {
	data, err := json.Marshal(v)
	if err != nil {
		return ErrorResult(err)
	}
	return Result{Text: string(data), Direction: dir}
}

// ErrorResult wraps a handler failure in the error payload shape the model
// understands.
func ErrorResult(err error) Result {
	data, _ := json.Marshal(map[string]string{
		"error":  err.Error(),
		"status": "error",
	})
	return Result{Text: string(data), Direction: ToServer}
}

// Invocation carries everything a handler may need about the calling session.
type Invocation struct {
	SessionID string
	Args      json.RawMessage

	// Transcript is the recent conversation, formatted one "ROLE: text"
	// line per turn.
	Transcript string

	// State is the session's slot-filling state. Nil for sessions without
	// one (tests, manual dispatch).
	State *quote.SessionState
}

// Handler runs one tool call. It must return a result or an error, never
// both silently dropped.
type Handler func(ctx context.Context, inv Invocation) (Result, error)

// Tool couples a function schema with its handler. Schema is what gets
// advertised to the upstream model in session.update.
type Tool struct {
	Name        string
	Description string
	Parameters  map[string]interface{}
	Handler     Handler
}

// Schema renders the function declaration for the realtime session config.
func (t Tool) Schema() map[string]interface{} {
	params := t.Parameters
	if params == nil {
		params = map[string]interface{}{
			"type":                 "object",
			"properties":           map[string]interface{}{},
			"required":             []string{},
			"additionalProperties": false,
		}
	}
	return map[string]interface{}{
		"type":        "function",
		"name":        t.Name,
		"description": t.Description,
		"parameters":  params,
	}
}

// Registry holds the tools exposed to the realtime model.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Tool
}

func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]Tool)}
}

func (r *Registry) Register(t Tool) error {
	const op = "Registry.Register"
	if t.Name == "" {
		return utils.E(utils.CodeInvalidArgument, op, "tool name is required", nil)
	}
	if t.Handler == nil {
		return utils.E(utils.CodeInvalidArgument, op, "tool handler is required", nil)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.tools[t.Name]; ok {
		return utils.E(utils.CodeConflict, op, fmt.Sprintf("tool %q already registered", t.Name), nil)
	}
	r.tools[t.Name] = t
	return nil
}

func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tools)
}

// Schemas returns the function declarations in name order, for a stable
// session.update payload.
func (r *Registry) Schemas() []map[string]interface{} {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]map[string]interface{}, 0, len(names))
	for _, name := range names {
		out = append(out, r.tools[name].Schema())
	}
	return out
}

// Dispatch runs the named tool and always produces exactly one result, even
// for unknown tools or failing handlers. The error return is for logging
// only; the result already encodes the failure for the model.
func (r *Registry) Dispatch(ctx context.Context, name string, inv Invocation) (res Result, err error) {
	const op = "Registry.Dispatch"

	// A panicking handler must not take down the session goroutine.
	defer func() {
		if rec := recover(); rec != nil {
			err = utils.E(utils.CodeInternal, op, fmt.Sprintf("tool %q panicked: %v", name, rec), nil)
			res = ErrorResult(err)
		}
	}()

	tool, ok := r.Get(name)
	if !ok {
		err := utils.E(utils.CodeNotFound, op, fmt.Sprintf("unknown tool %q", name), nil)
		return ErrorResult(err), err
	}
	res, err = tool.Handler(ctx, inv)
	if err != nil {
		return ErrorResult(err), err
	}
	if res.Direction != ToServer && res.Direction != ToClient {
		res.Direction = ToServer
	}
	return res, nil
}
