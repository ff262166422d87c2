// Package action routes named module actions triggered by click events.
//
// Actions are carried in the block instance field as
//
//	<button>#<module>.<action>[.<data>]
//
// e.g. "1#date.toggle" for a left click on the date module's toggle action.
package action

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
)

var (
	ErrUnknownAction = errors.New("unknown action")
	ErrDuplicate     = errors.New("action already registered")
	ErrMalformed     = errors.New("malformed action string")
)

// Action identifies an action bound to a mouse button.
type Action struct {
	Button int
	Module string
	Name   string
	Data   string // optional
}

func (a Action) String() string {
	s := strconv.Itoa(a.Button) + "#" + a.Module + "." + a.Name
	if a.Data != "" {
		s += "." + a.Data
	}
	return s
}

// Parse parses an action string.
func Parse(s string) (Action, error) {
	btn, rest, ok := strings.Cut(s, "#")
	if !ok {
		return Action{}, fmt.Errorf("%w %q: missing #", ErrMalformed, s)
	}
	n, err := strconv.Atoi(btn)
	if err != nil || n <= 0 {
		return Action{}, fmt.Errorf("%w %q: invalid button", ErrMalformed, s)
	}
	module, rest, ok := strings.Cut(rest, ".")
	if !ok || module == "" || rest == "" {
		return Action{}, fmt.Errorf("%w %q: missing module or action name", ErrMalformed, s)
	}
	name, data, _ := strings.Cut(rest, ".")
	if name == "" {
		return Action{}, fmt.Errorf("%w %q: missing action name", ErrMalformed, s)
	}
	return Action{Button: n, Module: module, Name: name, Data: data}, nil
}

// Handler handles an action. The data is empty if none was given.
type Handler func(data string)

// Router maps action names to handlers. It is safe for concurrent use.
type Router struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

// Register adds a handler for name.
func (r *Router) Register(name string, fn Handler) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.handlers[name]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicate, name)
	}
	if r.handlers == nil {
		r.handlers = make(map[string]Handler)
	}
	r.handlers[name] = fn
	return nil
}

// Has checks whether name is registered.
func (r *Router) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.handlers[name]
	return ok
}

// Invoke calls the handler for name.
func (r *Router) Invoke(name, data string) error {
	r.mu.RLock()
	fn, ok := r.handlers[name]
	r.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownAction, name)
	}
	fn(data)
	return nil
}
