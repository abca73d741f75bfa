// Package object provides the in-memory object store that commands mutate:
// objects are typed bags of nested properties addressed by dot separated
// paths. The store is the property accessor and object resolver of the
// command manager, and registers the built-in object commands.
package object

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/manav03panchal/cmdstack/internal/command"
	"github.com/manav03panchal/cmdstack/internal/errors"
	"github.com/manav03panchal/cmdstack/internal/model"
)

// Object is a point-in-time copy of a stored object.
type Object struct {
	ID        command.ObjectID `json:"id"`
	Type      string           `json:"type,omitempty"`
	Props     map[string]any   `json:"props,omitempty"`
	CreatedAt time.Time        `json:"created_at"`
	UpdatedAt time.Time        `json:"updated_at"`
}

func init() {
	command.RegisterType[Object]()
}

type entry struct {
	typ       string
	props     map[string]any
	createdAt time.Time
	updatedAt time.Time
}

func (e *entry) snapshot(id command.ObjectID) Object {
	return Object{
		ID:        id,
		Type:      e.typ,
		Props:     cloneMap(e.props),
		CreatedAt: e.createdAt,
		UpdatedAt: e.updatedAt,
	}
}

// Store holds objects and notifies listeners around every property write and
// method invocation. It is safe for concurrent use.
type Store struct {
	mu      sync.RWMutex
	objects map[command.ObjectID]*entry
	methods map[string]Method

	lmu       sync.Mutex
	listeners []command.MutationListener
}

// NewStore creates an empty store with the built-in methods installed.
func NewStore() *Store {
	s := &Store{
		objects: make(map[command.ObjectID]*entry),
		methods: make(map[string]Method),
	}
	for _, m := range builtinMethods() {
		s.methods[m.Name] = m
	}
	return s
}

// NewID generates an object id.
func NewID() command.ObjectID {
	return command.ObjectID("obj-" + uuid.New().String()[:8])
}

// Create adds a new object. An empty id is replaced by a generated one.
func (s *Store) Create(id command.ObjectID, typ string, props map[string]any) (command.ObjectID, error) {
	if id == "" {
		id = NewID()
	}
	now := time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.objects[id]; ok {
		return "", errors.Wrapf(errors.ErrAlreadyExists, "object %s", id)
	}
	s.objects[id] = &entry{
		typ:       typ,
		props:     cloneMap(props),
		createdAt: now,
		updatedAt: now,
	}
	return id, nil
}

// Delete removes an object and returns its last state.
func (s *Store) Delete(id command.ObjectID) (Object, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.objects[id]
	if !ok {
		return Object{}, notFound(id)
	}
	delete(s.objects, id)
	return e.snapshot(id), nil
}

// Restore puts obj back into the store, replacing any object with the same id.
func (s *Store) Restore(obj Object) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[obj.ID] = &entry{
		typ:       obj.Type,
		props:     cloneMap(obj.Props),
		createdAt: obj.CreatedAt,
		updatedAt: obj.UpdatedAt,
	}
}

// Exists reports whether id names a live object.
func (s *Store) Exists(id command.ObjectID) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.objects[id]
	return ok
}

// Get returns a copy of one object.
func (s *Store) Get(id command.ObjectID) (Object, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.objects[id]
	if !ok {
		return Object{}, notFound(id)
	}
	return e.snapshot(id), nil
}

// List returns copies of all objects ordered by id.
func (s *Store) List() []Object {
	s.mu.RLock()
	objs := make([]Object, 0, len(s.objects))
	for id, e := range s.objects {
		objs = append(objs, e.snapshot(id))
	}
	s.mu.RUnlock()

	sort.Slice(objs, func(i, j int) bool { return objs[i].ID < objs[j].ID })
	return objs
}

// Len returns the number of objects.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.objects)
}

// Load replaces the store contents with persisted objects.
func (s *Store) Load(records []*model.Object) {
	objects := make(map[command.ObjectID]*entry, len(records))
	for _, r := range records {
		objects[command.ObjectID(r.ID)] = &entry{
			typ:       r.Type,
			props:     cloneMap(r.Props),
			createdAt: r.CreatedAt,
			updatedAt: r.UpdatedAt,
		}
	}
	s.mu.Lock()
	s.objects = objects
	s.mu.Unlock()
}

// Records converts the store contents into persisted objects.
func (s *Store) Records() []*model.Object {
	objs := s.List()
	records := make([]*model.Object, 0, len(objs))
	for _, o := range objs {
		r := model.NewObject(string(o.ID), o.Type, o.Props)
		r.CreatedAt = o.CreatedAt
		r.UpdatedAt = o.UpdatedAt
		records = append(records, r)
	}
	return records
}

// Subscribe adds a mutation listener.
func (s *Store) Subscribe(l command.MutationListener) (unsubscribe func()) {
	s.lmu.Lock()
	s.listeners = append(s.listeners, l)
	s.lmu.Unlock()

	return func() {
		s.lmu.Lock()
		defer s.lmu.Unlock()
		for i, cur := range s.listeners {
			if cur == l {
				s.listeners = append(s.listeners[:i:i], s.listeners[i+1:]...)
				return
			}
		}
	}
}

func (s *Store) snapshotListeners() []command.MutationListener {
	s.lmu.Lock()
	defer s.lmu.Unlock()
	return s.listeners
}

// GetValue reads the property at path. Missing properties read as nil.
func (s *Store) GetValue(ctx context.Context, id command.ObjectID, path string) (any, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.objects[id]
	if !ok {
		return nil, notFound(id)
	}
	v, _ := lookup(e.props, path)
	return cloneValue(v), nil
}

// SetValue writes the property at path, creating intermediate maps. Writing
// nil deletes the property.
func (s *Store) SetValue(ctx context.Context, id command.ObjectID, path string, value any) error {
	if path == "" {
		return errors.Wrap(errors.ErrInvalidPath, "empty property path")
	}

	s.mu.RLock()
	e, ok := s.objects[id]
	var old any
	if ok {
		v, _ := lookup(e.props, path)
		old = cloneValue(v)
	}
	s.mu.RUnlock()
	if !ok {
		return notFound(id)
	}

	mut := command.Mutation{
		Kind:   command.MutationSet,
		Object: id,
		Path:   path,
		Old:    old,
		New:    cloneValue(value),
	}
	listeners := s.snapshotListeners()
	for _, l := range listeners {
		l.BeforeMutation(ctx, mut)
	}

	s.mu.Lock()
	e, ok = s.objects[id]
	if !ok {
		s.mu.Unlock()
		return notFound(id)
	}
	if err := assign(e, path, cloneValue(value)); err != nil {
		s.mu.Unlock()
		return err
	}
	s.mu.Unlock()

	for _, l := range listeners {
		l.AfterMutation(ctx, mut)
	}
	return nil
}

func assign(e *entry, path string, value any) error {
	if e.props == nil {
		e.props = make(map[string]any)
	}
	segments := strings.Split(path, ".")
	cur := e.props
	for _, seg := range segments[:len(segments)-1] {
		next, ok := cur[seg]
		if !ok || next == nil {
			if value == nil {
				return nil
			}
			m := make(map[string]any)
			cur[seg] = m
			cur = m
			continue
		}
		m, ok := next.(map[string]any)
		if !ok {
			return errors.Wrapf(errors.ErrInvalidPath, "%s: %s is not an object", path, seg)
		}
		cur = m
	}

	last := segments[len(segments)-1]
	if value == nil {
		delete(cur, last)
	} else {
		cur[last] = value
	}
	e.updatedAt = time.Now()
	return nil
}

func lookup(props map[string]any, path string) (any, bool) {
	var cur any = props
	for _, seg := range strings.Split(path, ".") {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = m[seg]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

func cloneMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return cloneMap(t)
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = cloneValue(item)
		}
		return out
	}
	return v
}

func notFound(id command.ObjectID) error {
	return errors.Wrap(errors.ErrNotFound, fmt.Sprintf("object %s", id))
}
