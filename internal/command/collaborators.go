package command

import (
	"context"
	"sync"
)

// MutationKind distinguishes property writes from method invocations.
type MutationKind int

const (
	MutationSet MutationKind = iota
	MutationInvoke
)

// Mutation describes one change made through a PropertyAccessor.
// For MutationSet, Old is the value before the write and New the value written.
// For MutationInvoke, Params and Result describe the call; Undoable reports
// whether the method can be reversed.
type Mutation struct {
	Kind     MutationKind
	Object   ObjectID
	Path     string
	Old      any
	New      any
	Params   []any
	Result   any
	Undoable bool
}

// MutationListener receives notifications around every mutation. The ctx is the
// one passed to the mutating call, which lets the manager attribute the change
// to the instance executing on that goroutine.
type MutationListener interface {
	BeforeMutation(ctx context.Context, m Mutation)
	AfterMutation(ctx context.Context, m Mutation)
}

// PropertyAccessor reads and writes object properties by path.
type PropertyAccessor interface {
	GetValue(ctx context.Context, id ObjectID, path string) (any, error)
	SetValue(ctx context.Context, id ObjectID, path string, value any) error
	Invoke(ctx context.Context, id ObjectID, method string, params []any) (any, error)
	UndoInvoke(ctx context.Context, id ObjectID, method string, params []any, result any) error
	RedoInvoke(ctx context.Context, id ObjectID, method string, params []any, result any) error
	Subscribe(l MutationListener) (unsubscribe func())
}

// ObjectResolver maps an object id back to a live object.
type ObjectResolver interface {
	Exists(id ObjectID) bool
}

// EventLoop is the owner goroutine's task queue. Post may be called from any
// goroutine; RunPending runs on the owner only.
type EventLoop interface {
	Post(task func())
	RunPending() int
	Ready() <-chan struct{}
}

// TaskLoop is a minimal EventLoop for hosts without an event loop of their own.
type TaskLoop struct {
	mu    sync.Mutex
	tasks []func()
	ready chan struct{}
}

// NewTaskLoop creates an empty TaskLoop.
func NewTaskLoop() *TaskLoop {
	return &TaskLoop{ready: make(chan struct{}, 1)}
}

// Post appends a task and signals Ready.
func (l *TaskLoop) Post(task func()) {
	l.mu.Lock()
	l.tasks = append(l.tasks, task)
	l.mu.Unlock()

	select {
	case l.ready <- struct{}{}:
	default:
	}
}

// RunPending runs queued tasks in FIFO order until the queue is empty. Tasks
// may post further tasks; those run in the same call.
func (l *TaskLoop) RunPending() int {
	n := 0
	for {
		l.mu.Lock()
		if len(l.tasks) == 0 {
			l.mu.Unlock()
			return n
		}
		task := l.tasks[0]
		l.tasks[0] = nil
		l.tasks = l.tasks[1:]
		l.mu.Unlock()

		task()
		n++
	}
}

// Ready is signalled after Post.
func (l *TaskLoop) Ready() <-chan struct{} {
	return l.ready
}

// Len returns the number of queued tasks.
func (l *TaskLoop) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.tasks)
}
