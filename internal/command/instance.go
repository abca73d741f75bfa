package command

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/manav03panchal/cmdstack/internal/errors"
)

// Instance is one invocation of a Command.
//
// Children are owned by their parent: a batch owns every instance queued while
// it was open, and a running command owns the instances it queued. The parent
// link exists only while the instance is in flight.
type Instance struct {
	id        string
	cmd       Command
	args      any
	createdAt time.Time
	batch     bool
	events    *eventBus

	parent *Instance

	mu            sync.Mutex
	status        Status
	code          ErrorCode
	err           error
	result        any
	children      []*Instance
	record        Record
	recorder      *DiffRecord
	contextObject ObjectID
	description   string
	progress      float64
	done          chan struct{}
}

func newInstance(cmd Command, args any, events *eventBus) *Instance {
	inst := &Instance{
		id:        uuid.NewString(),
		cmd:       cmd,
		args:      args,
		createdAt: time.Now(),
		events:    events,
		status:    StatusQueued,
		done:      make(chan struct{}),
	}
	if c, ok := args.(Contextual); ok {
		inst.contextObject = c.ContextObject()
	}
	inst.description = describe(cmd, args)
	return inst
}

// ID returns the unique id of the instance.
func (i *Instance) ID() string { return i.id }

// CommandID returns the id of the command this instance invokes.
func (i *Instance) CommandID() string {
	if i.cmd == nil {
		return ""
	}
	return i.cmd.ID()
}

// Command returns the invoked command.
func (i *Instance) Command() Command { return i.cmd }

// Arguments returns the argument payload.
func (i *Instance) Arguments() any { return i.args }

// CreatedAt returns when the instance was queued.
func (i *Instance) CreatedAt() time.Time { return i.createdAt }

// IsBatch reports whether the instance groups a batch.
func (i *Instance) IsBatch() bool { return i.batch }

// Done is closed once the instance reaches StatusComplete.
func (i *Instance) Done() <-chan struct{} { return i.done }

func (i *Instance) Status() Status {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.status
}

func (i *Instance) ErrorCode() ErrorCode {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.code
}

// Err returns the error reported by the command body, or the sentinel for the
// instance's error code.
func (i *Instance) Err() error {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.err != nil {
		return i.err
	}
	return i.code.Err()
}

func (i *Instance) Result() any {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.result
}

// Children returns a copy of the child list.
func (i *Instance) Children() []*Instance {
	i.mu.Lock()
	defer i.mu.Unlock()
	out := make([]*Instance, len(i.children))
	copy(out, i.children)
	return out
}

// Record returns the undo/redo record, or nil.
func (i *Instance) Record() Record {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.record
}

func (i *Instance) ContextObject() ObjectID {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.contextObject
}

func (i *Instance) SetContextObject(id ObjectID) {
	i.mu.Lock()
	i.contextObject = id
	i.mu.Unlock()
}

func (i *Instance) Description() string {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.description
}

func (i *Instance) setDescription(d string) {
	i.mu.Lock()
	i.description = d
	i.mu.Unlock()
}

// Progress returns the last reported progress in [0, 1].
func (i *Instance) Progress() float64 {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.progress
}

// ReportProgress records partial progress and notifies observers.
func (i *Instance) ReportProgress(fraction float64) {
	if fraction < 0 {
		fraction = 0
	}
	if fraction > 1 {
		fraction = 1
	}
	i.mu.Lock()
	i.progress = fraction
	i.mu.Unlock()
	i.events.publish(Event{Kind: EventProgressMade, Instance: i, Progress: fraction})
}

// Succeeded reports whether the instance completed with CodeOK.
func (i *Instance) Succeeded() bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.status == StatusComplete && i.code == CodeOK
}

func (i *Instance) addChild(child *Instance) {
	i.mu.Lock()
	i.children = append(i.children, child)
	i.mu.Unlock()
	child.parent = i
}

func (i *Instance) removeChild(child *Instance) {
	i.mu.Lock()
	defer i.mu.Unlock()
	for n, c := range i.children {
		if c == child {
			i.children = append(i.children[:n], i.children[n+1:]...)
			if i.recorder != nil {
				i.recorder.dropChild(n)
			}
			return
		}
	}
}

func (i *Instance) childIndex(child *Instance) int {
	i.mu.Lock()
	defer i.mu.Unlock()
	for n, c := range i.children {
		if c == child {
			return n
		}
	}
	return -1
}

// start moves a queued instance to running. It fails when the instance was
// canceled in the meantime.
func (i *Instance) start() bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.status != StatusQueued {
		return false
	}
	i.status = StatusRunning
	return true
}

// finish moves the instance to complete and wakes waiters.
func (i *Instance) finish(result any, code ErrorCode, err error) bool {
	i.mu.Lock()
	if i.status == StatusComplete {
		i.mu.Unlock()
		return false
	}
	i.status = StatusComplete
	i.result = result
	i.code = code
	i.err = err
	i.mu.Unlock()
	close(i.done)
	return true
}

// abort completes a queued instance with CodeAborted and an empty result.
func (i *Instance) abort() bool {
	i.mu.Lock()
	if i.status != StatusQueued {
		i.mu.Unlock()
		return false
	}
	i.status = StatusComplete
	i.code = CodeAborted
	i.mu.Unlock()
	close(i.done)
	return true
}

func (i *Instance) isComplete() bool {
	select {
	case <-i.done:
		return true
	default:
		return false
	}
}

// undo reverses the instance. Failed instances are inert.
func (i *Instance) undo(ctx context.Context) error {
	return i.replay(ctx, true)
}

// redo replays the instance.
func (i *Instance) redo(ctx context.Context) error {
	return i.replay(ctx, false)
}

func (i *Instance) replay(ctx context.Context, undo bool) error {
	i.mu.Lock()
	code, record := i.code, i.record
	children := make([]*Instance, len(i.children))
	copy(children, i.children)
	i.mu.Unlock()

	if code != CodeOK {
		return nil
	}
	return unwind(ctx, record, children, undo)
}

// unwind undoes or redoes a record together with the children it owns.
// Children marked in a DiffRecord run at their marker. The others run before
// the record on undo, in reverse order, and after it on redo.
func unwind(ctx context.Context, record Record, children []*Instance, undo bool) error {
	run := func(c *Instance) error {
		if undo {
			return c.undo(ctx)
		}
		return c.redo(ctx)
	}

	diff, _ := record.(*DiffRecord)
	marked := diff.markedChildren()
	rest := make([]*Instance, 0, len(children))
	for n, c := range children {
		if !marked[n] {
			rest = append(rest, c)
		}
	}

	var errs []error
	if undo {
		for n := len(rest) - 1; n >= 0; n-- {
			if err := run(rest[n]); err != nil {
				errs = append(errs, err)
			}
		}
	}

	switch {
	case diff != nil:
		err := diff.apply(ctx, undo, func(n int) error {
			if n >= len(children) {
				return nil
			}
			return run(children[n])
		})
		if err != nil {
			errs = append(errs, err)
		}
	case record != nil && undo:
		if err := record.Undo(ctx); err != nil {
			errs = append(errs, err)
		}
	case record != nil:
		if err := record.Redo(ctx); err != nil {
			errs = append(errs, err)
		}
	}

	if !undo {
		for _, c := range rest {
			if err := run(c); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}
