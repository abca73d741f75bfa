package command

import (
	"context"
)

// thread is the execution context of one goroutine taking part in dispatch:
// the owner (UI) goroutine or the worker. Its frame stack is touched only by
// that goroutine, so it needs no locking.
type thread struct {
	m        *Manager
	name     string
	affinity Affinity
	frames   []*frame
}

// frame tracks one executing instance or one open batch.
type frame struct {
	inst  *Instance
	batch bool
	// immediate holds children queued by the running instance that may run on
	// this thread. They run when the instance waits for them or returns.
	immediate []*Instance
	// pending holds children executing elsewhere that must complete before the
	// frame closes.
	pending []*Instance
}

func (t *thread) push(f *frame) {
	t.frames = append(t.frames, f)
}

func (t *thread) pop(f *frame) {
	for n := len(t.frames) - 1; n >= 0; n-- {
		if t.frames[n] == f {
			t.frames[n] = nil
			t.frames = append(t.frames[:n], t.frames[n+1:]...)
			return
		}
	}
}

func (t *thread) top() *frame {
	if len(t.frames) == 0 {
		return nil
	}
	return t.frames[len(t.frames)-1]
}

// executing returns the instance whose body is running on top of the stack.
func (t *thread) executing() *Instance {
	f := t.top()
	if f == nil || f.batch {
		return nil
	}
	return f.inst
}

// encloses reports whether inst descends from an instance on t's stack.
func (t *thread) encloses(inst *Instance) bool {
	for p := inst.parent; p != nil; p = p.parent {
		for _, f := range t.frames {
			if f.inst == p {
				return true
			}
		}
	}
	return false
}

func (t *thread) inGroup() bool {
	for _, f := range t.frames {
		if f.batch || isGroup(f.inst.cmd) {
			return true
		}
	}
	return false
}

type threadKey struct{}

// bind marks ctx as belonging to t. Contexts handed to command bodies are bound,
// so nested calls made with them are attributed to the right goroutine.
func (t *thread) bind(ctx context.Context) context.Context {
	if cur, ok := ctx.Value(threadKey{}).(*thread); ok && cur == t {
		return ctx
	}
	return context.WithValue(ctx, threadKey{}, t)
}

// threadFor returns the thread ctx is bound to. Unbound contexts belong to the
// owner goroutine.
func (m *Manager) threadFor(ctx context.Context) *thread {
	if t, ok := ctx.Value(threadKey{}).(*thread); ok && t.m == m {
		return t
	}
	return m.owner
}

// Executing returns the instance whose body is running on ctx's goroutine, or
// nil when ctx does not come from a command body.
func Executing(ctx context.Context) *Instance {
	t, ok := ctx.Value(threadKey{}).(*thread)
	if !ok {
		return nil
	}
	return t.executing()
}

// OnWorker reports whether ctx belongs to the worker goroutine of its manager.
func OnWorker(ctx context.Context) bool {
	t, ok := ctx.Value(threadKey{}).(*thread)
	return ok && t == t.m.worker
}
