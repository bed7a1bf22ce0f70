package tool

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
)

var ErrUnknownTool = errors.New("unknown tool")

// Handler executes a function call. The result is marshalled to JSON and sent
// back as the call output.
type Handler func(ctx context.Context, args json.RawMessage) (any, error)

type entry struct {
	tool    Tool
	handler Handler
}

// Registry maps function names to their definitions and handlers.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]entry
	order   []string
}

func NewRegistry() *Registry {
	return &Registry{entries: map[string]entry{}}
}

// Register adds or replaces a function tool.
func (r *Registry) Register(t Tool, h Handler) error {
	if err := t.Validate(); err != nil {
		return err
	}
	if t.Type != TypeFunction {
		return fmt.Errorf("%w: only function tools have handlers", ErrInvalidTool)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.entries[t.Name]; !ok {
		r.order = append(r.order, t.Name)
	}
	r.entries[t.Name] = entry{tool: t, handler: h}
	return nil
}

// Tools returns the registered definitions in registration order.
func (r *Registry) Tools() []Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Tool, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.entries[name].tool)
	}
	return out
}

func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.entries[name]
	return ok
}

// Call runs the named handler and renders the call output. Handler errors are
// rendered as {"error": "..."} so the model can see them; only an unknown
// name is returned as an error.
func (r *Registry) Call(ctx context.Context, name string, arguments string) (string, error) {
	r.mu.RLock()
	e, ok := r.entries[name]
	r.mu.RUnlock()
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownTool, name)
	}

	args := json.RawMessage(arguments)
	if len(args) == 0 {
		args = json.RawMessage("{}")
	}

	res, err := e.handler(ctx, args)
	return renderOutput(res, err), nil
}

func renderOutput(res any, err error) string {
	var v any
	switch {
	case err != nil:
		v = map[string]any{"error": err.Error()}
	case res == nil:
		v = map[string]any{"success": true}
	default:
		if s, ok := res.(string); ok {
			return s
		}
		v = res
	}
	d, mErr := json.Marshal(v)
	if mErr != nil {
		d, _ = json.Marshal(map[string]any{"error": mErr.Error()})
	}
	return string(d)
}
