package command

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/manav03panchal/cmdstack/internal/errors"
)

// mutationChild marks the point where a child instance completed. It never
// reaches a MutationListener.
const mutationChild MutationKind = -1

type changeKey struct {
	object ObjectID
	path   string
}

type change struct {
	kind     MutationKind
	object   ObjectID
	path     string
	typeName string
	pre      any
	post     any
	params   []any
	result   any
	child    int
}

// step is one decoded replay action. Values are live Go values.
type step struct {
	kind     MutationKind
	object   ObjectID
	path     string
	typeName string
	value    any
	params   []any
	result   any
	child    int
}

// op is one entry of a persisted buffer.
type op struct {
	Kind     MutationKind `json:"k"`
	Object   ObjectID     `json:"o,omitempty"`
	Path     string       `json:"p,omitempty"`
	TypeName string       `json:"type,omitempty"`
	Value    Value        `json:"v"`
	Params   []Value      `json:"a,omitempty"`
	Result   Value        `json:"r"`
	Child    int          `json:"c,omitempty"`
}

// DiffRecord captures property and method mutations while an instance runs.
//
// The value before the first write to each (object, path) is kept, later writes
// only move the post value. Child instances that complete while the owner runs
// leave a marker, and writes after a marker start new changes, so replay keeps
// the order in which the owner and its children touched shared state.
//
// Once the instance completes the record is consolidated into undo steps (pre
// values, reverse order) and redo steps (post values, original order). The
// steps keep live values; the JSON buffers used for persistence are encoded on
// demand and decoded lazily for restored records.
type DiffRecord struct {
	accessor PropertyAccessor
	resolver ObjectResolver

	mu           sync.Mutex
	changes      []*change
	index        map[changeKey]*change
	undoSteps    []step
	redoSteps    []step
	undoBuf      []byte
	redoBuf      []byte
	consolidated bool
	loaded       bool
	encoded      bool
	inert        bool
	count        int
}

func newDiffRecord(accessor PropertyAccessor, resolver ObjectResolver) *DiffRecord {
	return &DiffRecord{
		accessor: accessor,
		resolver: resolver,
		index:    make(map[changeKey]*change),
	}
}

// NewDiffRecordFromBuffers rebuilds a consolidated record, typically from
// persisted history.
func NewDiffRecordFromBuffers(accessor PropertyAccessor, resolver ObjectResolver, undo, redo []byte) (*DiffRecord, error) {
	r := newDiffRecord(accessor, resolver)
	var ops []op
	if len(redo) > 0 {
		if err := json.Unmarshal(redo, &ops); err != nil {
			return nil, errors.Wrap(err, "decode redo buffer")
		}
	}
	for _, o := range ops {
		if o.Kind != mutationChild {
			r.count++
		}
	}
	r.undoBuf = undo
	r.redoBuf = redo
	r.consolidated = true
	r.encoded = true
	return r, nil
}

func (r *DiffRecord) before(m Mutation) {
	if m.Kind != MutationSet {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.consolidated {
		return
	}

	key := changeKey{object: m.Object, path: m.Path}
	if _, ok := r.index[key]; ok {
		return
	}
	pre := cloneValue(m.Old)
	c := &change{
		kind:     MutationSet,
		object:   m.Object,
		path:     m.Path,
		typeName: TypeName(m.Old),
		pre:      pre,
		post:     pre,
	}
	r.index[key] = c
	r.changes = append(r.changes, c)
}

func (r *DiffRecord) after(m Mutation) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.consolidated {
		return
	}

	switch m.Kind {
	case MutationSet:
		if c, ok := r.index[changeKey{object: m.Object, path: m.Path}]; ok {
			c.post = cloneValue(m.New)
		}
	case MutationInvoke:
		if !m.Undoable {
			return
		}
		params := make([]any, len(m.Params))
		for n, p := range m.Params {
			params[n] = cloneValue(p)
		}
		r.changes = append(r.changes, &change{
			kind:   MutationInvoke,
			object: m.Object,
			path:   m.Path,
			params: params,
			result: cloneValue(m.Result),
		})
	}
}

// markChild records that child n of the owning instance completed here.
func (r *DiffRecord) markChild(n int) {
	if n < 0 {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.consolidated {
		return
	}
	r.changes = append(r.changes, &change{kind: mutationChild, child: n})
	r.index = make(map[changeKey]*change)
}

// dropChild shifts the markers after child n once that child is removed from
// the owning instance.
func (r *DiffRecord) dropChild(n int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.consolidated {
		return
	}
	kept := r.changes[:0]
	for _, c := range r.changes {
		if c.kind == mutationChild {
			if c.child == n {
				continue
			}
			if c.child > n {
				c.child--
			}
		}
		kept = append(kept, c)
	}
	r.changes = kept
}

// markedChildren returns the children replayed from inside the record.
func (r *DiffRecord) markedChildren() map[int]bool {
	if r == nil {
		return nil
	}
	steps, err := r.steps(false)
	if err != nil {
		return nil
	}
	var marked map[int]bool
	for _, s := range steps {
		if s.kind != mutationChild {
			continue
		}
		if marked == nil {
			marked = make(map[int]bool)
		}
		marked[s.child] = true
	}
	return marked
}

// consolidate turns the live changes into undo and redo steps.
func (r *DiffRecord) consolidate() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.consolidated {
		return
	}

	r.redoSteps = make([]step, 0, len(r.changes))
	r.undoSteps = make([]step, 0, len(r.changes))
	for _, c := range r.changes {
		r.redoSteps = append(r.redoSteps, c.step(false))
		r.undoSteps = append(r.undoSteps, c.step(true))
		if c.kind != mutationChild {
			r.count++
		}
	}
	for i, j := 0, len(r.undoSteps)-1; i < j; i, j = i+1, j-1 {
		r.undoSteps[i], r.undoSteps[j] = r.undoSteps[j], r.undoSteps[i]
	}

	r.changes = nil
	r.index = nil
	r.consolidated = true
	r.loaded = true
}

func (c *change) step(undo bool) step {
	s := step{kind: c.kind, object: c.object, path: c.path, child: c.child}
	switch c.kind {
	case MutationSet:
		s.value = c.post
		if undo {
			s.value = c.pre
		}
		s.typeName = c.typeName
	case MutationInvoke:
		s.params = c.params
		s.result = c.result
	}
	return s
}

func (s step) op() (op, error) {
	o := op{Kind: s.kind, Object: s.object, Path: s.path, TypeName: s.typeName, Child: s.child}
	var err error
	switch s.kind {
	case MutationSet:
		o.Value, err = EncodeValue(s.value)
	case MutationInvoke:
		o.Params = make([]Value, 0, len(s.params))
		for _, p := range s.params {
			pv, perr := EncodeValue(p)
			if perr != nil {
				return o, perr
			}
			o.Params = append(o.Params, pv)
		}
		o.Result, err = EncodeValue(s.result)
	}
	return o, err
}

func (o op) step() (step, error) {
	s := step{kind: o.Kind, object: o.Object, path: o.Path, typeName: o.TypeName, child: o.Child}
	var err error
	switch o.Kind {
	case MutationSet:
		s.value, err = o.Value.Decode()
	case MutationInvoke:
		s.params = make([]any, 0, len(o.Params))
		for _, p := range o.Params {
			v, perr := p.Decode()
			if perr != nil {
				return s, perr
			}
			s.params = append(s.params, v)
		}
		s.result, err = o.Result.Decode()
	}
	return s, err
}

func encodeSteps(steps []step) ([]byte, error) {
	ops := make([]op, 0, len(steps))
	for _, s := range steps {
		o, err := s.op()
		if err != nil {
			return nil, err
		}
		ops = append(ops, o)
	}
	return json.Marshal(ops)
}

func decodeSteps(buf []byte) ([]step, error) {
	if len(buf) == 0 {
		return nil, nil
	}
	var ops []op
	if err := json.Unmarshal(buf, &ops); err != nil {
		return nil, err
	}
	steps := make([]step, 0, len(ops))
	for _, o := range ops {
		s, err := o.step()
		if err != nil {
			return nil, err
		}
		steps = append(steps, s)
	}
	return steps, nil
}

// steps returns the undo or redo steps, decoding restored buffers on first use.
func (r *DiffRecord) steps(undo bool) ([]step, error) {
	r.consolidate()
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.loaded {
		redo, err := decodeSteps(r.redoBuf)
		if err != nil {
			return nil, errors.Wrap(err, "decode redo buffer")
		}
		back, err := decodeSteps(r.undoBuf)
		if err != nil {
			return nil, errors.Wrap(err, "decode undo buffer")
		}
		r.redoSteps, r.undoSteps = redo, back
		r.loaded = true
	}
	if undo {
		return r.undoSteps, nil
	}
	return r.redoSteps, nil
}

// Undo applies the undo steps. Child markers are skipped; the owning instance
// replays its children around them.
func (r *DiffRecord) Undo(ctx context.Context) error {
	return r.apply(ctx, true, nil)
}

// Redo applies the redo steps.
func (r *DiffRecord) Redo(ctx context.Context) error {
	return r.apply(ctx, false, nil)
}

func (r *DiffRecord) apply(ctx context.Context, undo bool, child func(n int) error) error {
	steps, err := r.steps(undo)
	if err != nil {
		return err
	}

	r.mu.Lock()
	inert := r.inert
	r.mu.Unlock()
	if inert || len(steps) == 0 {
		return nil
	}

	verb := "redo"
	if undo {
		verb = "undo"
	}
	replay := withReplay(ctx)
	var errs []error
	for _, s := range steps {
		if s.kind == mutationChild {
			if child != nil {
				if err := child(s.child); err != nil {
					errs = append(errs, err)
				}
			}
			continue
		}
		if r.accessor == nil {
			continue
		}
		// Objects may have been destroyed since the record was captured.
		if r.resolver != nil && !r.resolver.Exists(s.object) {
			continue
		}
		if err := r.applyStep(replay, s, undo); err != nil {
			errs = append(errs, errors.Wrapf(err, "%s %s.%s", verb, s.object, s.path))
		}
	}
	return errors.Join(errs...)
}

func (r *DiffRecord) applyStep(ctx context.Context, s step, undo bool) error {
	switch s.kind {
	case MutationSet:
		return r.accessor.SetValue(ctx, s.object, s.path, cloneValue(s.value))
	case MutationInvoke:
		params := make([]any, len(s.params))
		for n, p := range s.params {
			params[n] = cloneValue(p)
		}
		result := cloneValue(s.result)
		if undo {
			return r.accessor.UndoInvoke(ctx, s.object, s.path, params, result)
		}
		return r.accessor.RedoInvoke(ctx, s.object, s.path, params, result)
	}
	return nil
}

// markInert disables undo and redo for the record.
func (r *DiffRecord) markInert() {
	r.mu.Lock()
	r.inert = true
	r.mu.Unlock()
}

// Inert reports whether the record belongs to a failed instance.
func (r *DiffRecord) Inert() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.inert
}

// Len returns the number of captured changes.
func (r *DiffRecord) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.consolidated {
		return r.count
	}
	n := 0
	for _, c := range r.changes {
		if c.kind != mutationChild {
			n++
		}
	}
	return n
}

// Buffers returns the undo and redo steps encoded for persistence.
func (r *DiffRecord) Buffers() (undo, redo []byte, err error) {
	r.consolidate()
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.encoded {
		if r.undoBuf, err = encodeSteps(r.undoSteps); err != nil {
			return nil, nil, errors.Wrap(err, "encode undo buffer")
		}
		if r.redoBuf, err = encodeSteps(r.redoSteps); err != nil {
			return nil, nil, errors.Wrap(err, "encode redo buffer")
		}
		r.encoded = true
	}
	return r.undoBuf, r.redoBuf, nil
}

func (r *DiffRecord) Describe() string {
	n := r.Len()
	if n == 1 {
		return "1 change"
	}
	return fmt.Sprintf("%d changes", n)
}

// cloneValue copies maps and slices so the values a record replays never alias
// the ones held by the store.
func cloneValue(v any) any {
	switch x := v.(type) {
	case map[string]any:
		if x == nil {
			return x
		}
		out := make(map[string]any, len(x))
		for k, e := range x {
			out[k] = cloneValue(e)
		}
		return out
	case []any:
		if x == nil {
			return x
		}
		out := make([]any, len(x))
		for n, e := range x {
			out[n] = cloneValue(e)
		}
		return out
	}
	return v
}
