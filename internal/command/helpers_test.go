package command

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/manav03panchal/cmdstack/internal/errors"
)

// memStore is a minimal property system: flat properties per object plus an
// undoable "add" method on the "count" property.
type memStore struct {
	mu        sync.Mutex
	objects   map[ObjectID]map[string]any
	listeners []MutationListener
	created   int
}

func newMemStore(ids ...ObjectID) *memStore {
	s := &memStore{objects: make(map[ObjectID]map[string]any)}
	for _, id := range ids {
		s.objects[id] = make(map[string]any)
	}
	return s
}

func (s *memStore) Exists(id ObjectID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.objects[id]
	return ok
}

func (s *memStore) get(id ObjectID, path string) any {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.objects[id][path]
}

func (s *memStore) create(id ObjectID) {
	s.mu.Lock()
	s.objects[id] = make(map[string]any)
	s.mu.Unlock()
}

func (s *memStore) remove(id ObjectID) {
	s.mu.Lock()
	delete(s.objects, id)
	s.mu.Unlock()
}

// dump copies every non-nil property, keyed by object.
func (s *memStore) dump() map[ObjectID]map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[ObjectID]map[string]any, len(s.objects))
	for id, props := range s.objects {
		cp := make(map[string]any, len(props))
		for k, v := range props {
			if v != nil {
				cp[k] = cloneValue(v)
			}
		}
		out[id] = cp
	}
	return out
}

func (s *memStore) nextID() ObjectID {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.created++
	return ObjectID(fmt.Sprintf("obj-%d", s.created))
}

func (s *memStore) GetValue(ctx context.Context, id ObjectID, path string) (any, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	obj, ok := s.objects[id]
	if !ok {
		return nil, errors.Wrapf(errors.ErrNotFound, "object %s", id)
	}
	return obj[path], nil
}

func (s *memStore) SetValue(ctx context.Context, id ObjectID, path string, value any) error {
	s.mu.Lock()
	obj, ok := s.objects[id]
	if !ok {
		s.mu.Unlock()
		return errors.Wrapf(errors.ErrNotFound, "object %s", id)
	}
	old := obj[path]
	listeners := s.listeners
	s.mu.Unlock()

	mut := Mutation{Kind: MutationSet, Object: id, Path: path, Old: old, New: value}
	for _, l := range listeners {
		l.BeforeMutation(ctx, mut)
	}
	s.mu.Lock()
	obj[path] = value
	s.mu.Unlock()
	for _, l := range listeners {
		l.AfterMutation(ctx, mut)
	}
	return nil
}

func (s *memStore) add(id ObjectID, n int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	obj, ok := s.objects[id]
	if !ok {
		return 0, errors.Wrapf(errors.ErrNotFound, "object %s", id)
	}
	cur, _ := obj["count"].(int)
	obj["count"] = cur + n
	return cur + n, nil
}

func (s *memStore) Invoke(ctx context.Context, id ObjectID, method string, params []any) (any, error) {
	if method != "add" || len(params) != 1 {
		return nil, errors.Wrapf(errors.ErrNotSupported, "method %s", method)
	}
	n, _ := params[0].(int)
	result, err := s.add(id, n)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	listeners := s.listeners
	s.mu.Unlock()
	mut := Mutation{Kind: MutationInvoke, Object: id, Path: method, Params: params, Result: result, Undoable: true}
	for _, l := range listeners {
		l.AfterMutation(ctx, mut)
	}
	return result, nil
}

func (s *memStore) UndoInvoke(ctx context.Context, id ObjectID, method string, params []any, result any) error {
	n, _ := params[0].(int)
	_, err := s.add(id, -n)
	return err
}

func (s *memStore) RedoInvoke(ctx context.Context, id ObjectID, method string, params []any, result any) error {
	n, _ := params[0].(int)
	_, err := s.add(id, n)
	return err
}

func (s *memStore) Subscribe(l MutationListener) func() {
	s.mu.Lock()
	s.listeners = append(s.listeners, l)
	s.mu.Unlock()
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		for n, cur := range s.listeners {
			if cur == l {
				s.listeners = append(s.listeners[:n:n], s.listeners[n+1:]...)
				return
			}
		}
	}
}

// setArgs sets one property of one object.
type setArgs struct {
	Object ObjectID `json:"object"`
	Path   string   `json:"path"`
	Value  any      `json:"value"`
}

func (a setArgs) WithObject(id ObjectID) any {
	a.Object = id
	return a
}

func (a setArgs) ContextObject() ObjectID { return a.Object }

func init() {
	RegisterType[setArgs]()
}

// newTestManager creates a manager over store with the test commands
// registered, closed when the test ends.
func newTestManager(t *testing.T, store *memStore, opts ...Option) *Manager {
	t.Helper()
	opts = append([]Option{WithAccessor(store)}, opts...)
	m := NewManager(opts...)
	t.Cleanup(func() { _ = m.Close() })

	set := func(ctx context.Context, args any) (any, error) {
		a := args.(setArgs)
		return nil, store.SetValue(ctx, a.Object, a.Path, a.Value)
	}
	validateSet := func(args any) error {
		a, ok := args.(setArgs)
		if !ok || a.Path == "" {
			return errors.ErrInvalidValue
		}
		return nil
	}

	require.NoError(t, m.Register(&Definition{Name: "Set", Thread: AffinityUI, Validate: validateSet, Run: set}))
	require.NoError(t, m.Register(&Definition{Name: "WorkerSet", Thread: AffinityWorker, Validate: validateSet, Run: set}))
	require.NoError(t, m.Register(&Definition{
		Name:   "Inc",
		Thread: AffinityUI,
		Run: func(ctx context.Context, args any) (any, error) {
			id := args.(ObjectID)
			v, err := store.GetValue(ctx, id, "count")
			if err != nil {
				return nil, err
			}
			n, _ := v.(int)
			return n + 1, store.SetValue(ctx, id, "count", n+1)
		},
	}))
	require.NoError(t, m.Register(&Definition{
		Name:   "Add",
		Thread: AffinityAny,
		Run: func(ctx context.Context, args any) (any, error) {
			return store.Invoke(ctx, "a", "add", []any{args.(int)})
		},
	}))
	require.NoError(t, m.Register(&Definition{
		Name:   "Create",
		Thread: AffinityUI,
		Run: func(ctx context.Context, args any) (any, error) {
			id := store.nextID()
			store.create(id)
			return id, nil
		},
		UndoFunc: func(ctx context.Context, inst *Instance) error {
			store.remove(inst.Result().(ObjectID))
			return nil
		},
		RedoFunc: func(ctx context.Context, inst *Instance) error {
			store.create(inst.Result().(ObjectID))
			return nil
		},
	}))
	return m
}

// recorder collects events.
type recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *recorder) handle(e Event) {
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()
}

func (r *recorder) kinds() []EventKind {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]EventKind, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.Kind)
	}
	return out
}
