package object

import (
	"context"
	"sort"
	"time"

	"github.com/manav03panchal/cmdstack/internal/command"
	"github.com/manav03panchal/cmdstack/internal/errors"
)

// MethodFunc runs a method against the properties of one object. It is called
// with the store locked.
type MethodFunc func(props *Props, params []any) (any, error)

// ReverseFunc undoes or redoes a previous call given its params and result.
type ReverseFunc func(props *Props, params []any, result any) error

// Method is a named operation on objects. Undoable methods provide Undo and
// Redo and are recorded in command diffs; the rest are not.
type Method struct {
	Name     string
	Undoable bool
	Call     MethodFunc
	Undo     ReverseFunc
	Redo     ReverseFunc
}

// Props gives methods path access to one object's properties.
type Props struct {
	e *entry
}

// Get reads the property at path.
func (p *Props) Get(path string) any {
	v, _ := lookup(p.e.props, path)
	return v
}

// Set writes the property at path; nil deletes it.
func (p *Props) Set(path string, value any) error {
	return assign(p.e, path, value)
}

// Touch marks the object as updated.
func (p *Props) Touch() {
	p.e.updatedAt = time.Now()
}

// RegisterMethod installs or replaces a method.
func (s *Store) RegisterMethod(m Method) error {
	if m.Name == "" || m.Call == nil {
		return errors.Wrap(errors.ErrInvalidArguments, "method needs a name and a body")
	}
	if m.Undoable && (m.Undo == nil || m.Redo == nil) {
		return errors.Wrapf(errors.ErrInvalidArguments, "undoable method %s needs undo and redo", m.Name)
	}
	s.mu.Lock()
	s.methods[m.Name] = m
	s.mu.Unlock()
	return nil
}

// Method looks up a method by name.
func (s *Store) Method(name string) (Method, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.methods[name]
	return m, ok
}

// Methods returns the method names in sorted order.
func (s *Store) Methods() []string {
	s.mu.RLock()
	names := make([]string, 0, len(s.methods))
	for name := range s.methods {
		names = append(names, name)
	}
	s.mu.RUnlock()
	sort.Strings(names)
	return names
}

// Invoke calls a method on an object and notifies listeners of the call.
func (s *Store) Invoke(ctx context.Context, id command.ObjectID, method string, params []any) (any, error) {
	m, ok := s.Method(method)
	if !ok {
		return nil, errors.Wrapf(errors.ErrNotSupported, "method %s", method)
	}

	s.mu.Lock()
	e, ok := s.objects[id]
	if !ok {
		s.mu.Unlock()
		return nil, notFound(id)
	}
	result, err := m.Call(&Props{e: e}, params)
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}

	mut := command.Mutation{
		Kind:     command.MutationInvoke,
		Object:   id,
		Path:     method,
		Params:   params,
		Result:   result,
		Undoable: m.Undoable,
	}
	for _, l := range s.snapshotListeners() {
		l.AfterMutation(ctx, mut)
	}
	return result, nil
}

// UndoInvoke reverses an earlier Invoke.
func (s *Store) UndoInvoke(ctx context.Context, id command.ObjectID, method string, params []any, result any) error {
	return s.reverse(id, method, func(m Method, p *Props) error {
		return m.Undo(p, params, result)
	})
}

// RedoInvoke reapplies an earlier Invoke.
func (s *Store) RedoInvoke(ctx context.Context, id command.ObjectID, method string, params []any, result any) error {
	return s.reverse(id, method, func(m Method, p *Props) error {
		return m.Redo(p, params, result)
	})
}

func (s *Store) reverse(id command.ObjectID, method string, fn func(Method, *Props) error) error {
	m, ok := s.Method(method)
	if !ok || !m.Undoable {
		return errors.Wrapf(errors.ErrNotSupported, "method %s cannot be reversed", method)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.objects[id]
	if !ok {
		return notFound(id)
	}
	return fn(m, &Props{e: e})
}

func builtinMethods() []Method {
	return []Method{
		{
			Name:     "increment",
			Undoable: true,
			Call: func(p *Props, params []any) (any, error) {
				path, by, err := incrementParams(params)
				if err != nil {
					return nil, err
				}
				cur, err := number(p.Get(path))
				if err != nil {
					return nil, err
				}
				next := cur + by
				return next, p.Set(path, next)
			},
			Undo: func(p *Props, params []any, result any) error {
				path, by, err := incrementParams(params)
				if err != nil {
					return err
				}
				n, err := number(result)
				if err != nil {
					return err
				}
				return p.Set(path, n-by)
			},
			Redo: func(p *Props, params []any, result any) error {
				path, _, err := incrementParams(params)
				if err != nil {
					return err
				}
				n, err := number(result)
				if err != nil {
					return err
				}
				return p.Set(path, n)
			},
		},
		{
			Name:     "append",
			Undoable: true,
			Call: func(p *Props, params []any) (any, error) {
				path, value, err := appendParams(params)
				if err != nil {
					return nil, err
				}
				list, err := listAt(p, path)
				if err != nil {
					return nil, err
				}
				list = append(list, value)
				return len(list), p.Set(path, list)
			},
			Undo: func(p *Props, params []any, result any) error {
				path, _, err := appendParams(params)
				if err != nil {
					return err
				}
				list, err := listAt(p, path)
				if err != nil || len(list) == 0 {
					return err
				}
				list = list[:len(list)-1]
				if len(list) == 0 {
					return p.Set(path, nil)
				}
				return p.Set(path, list)
			},
			Redo: func(p *Props, params []any, result any) error {
				path, value, err := appendParams(params)
				if err != nil {
					return err
				}
				list, err := listAt(p, path)
				if err != nil {
					return err
				}
				return p.Set(path, append(list, value))
			},
		},
		{
			Name: "touch",
			Call: func(p *Props, params []any) (any, error) {
				p.Touch()
				return nil, nil
			},
		},
	}
}

func incrementParams(params []any) (string, float64, error) {
	if len(params) == 0 || len(params) > 2 {
		return "", 0, errors.Wrap(errors.ErrInvalidArguments, "increment takes a path and an optional amount")
	}
	path, ok := params[0].(string)
	if !ok || path == "" {
		return "", 0, errors.Wrap(errors.ErrInvalidArguments, "increment path must be a string")
	}
	by := 1.0
	if len(params) == 2 {
		n, err := number(params[1])
		if err != nil {
			return "", 0, err
		}
		by = n
	}
	return path, by, nil
}

func appendParams(params []any) (string, any, error) {
	if len(params) != 2 {
		return "", nil, errors.Wrap(errors.ErrInvalidArguments, "append takes a path and a value")
	}
	path, ok := params[0].(string)
	if !ok || path == "" {
		return "", nil, errors.Wrap(errors.ErrInvalidArguments, "append path must be a string")
	}
	return path, params[1], nil
}

func listAt(p *Props, path string) ([]any, error) {
	switch v := p.Get(path).(type) {
	case nil:
		return nil, nil
	case []any:
		return append([]any(nil), v...), nil
	default:
		return nil, errors.Wrapf(errors.ErrInvalidValue, "%s is not a list", path)
	}
}

// number converts the numeric types produced by parsing and decoding.
func number(v any) (float64, error) {
	switch n := v.(type) {
	case nil:
		return 0, nil
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	default:
		return 0, errors.Wrapf(errors.ErrInvalidValue, "%v is not a number", v)
	}
}
