package command

import (
	"context"
	"fmt"

	"github.com/manav03panchal/cmdstack/internal/errors"
	"github.com/manav03panchal/cmdstack/internal/logging"
)

// BatchCommandID is the id of the built-in batch marker command.
const BatchCommandID = "BatchCommand"

// BatchStage selects what a batch marker invocation does.
type BatchStage int

const (
	BatchBegin BatchStage = iota
	BatchEnd
	BatchAbort
)

func (s BatchStage) String() string {
	switch s {
	case BatchBegin:
		return "begin"
	case BatchEnd:
		return "end"
	default:
		return "abort"
	}
}

// BatchArgs are the arguments of the batch marker command.
type BatchArgs struct {
	Stage       BatchStage
	Description string
}

// batchCommand opens, closes or discards the batch frame of the calling
// goroutine. The batch instance it opens groups every instance queued until
// the matching end, and undoes and redoes them as one unit.
type batchCommand struct {
	m *Manager
}

func (c *batchCommand) ID() string               { return BatchCommandID }
func (c *batchCommand) Affinity() Affinity       { return AffinityAny }
func (c *batchCommand) IsGroup() bool            { return true }
func (c *batchCommand) CanUndo(args any) bool    { return false }
func (c *batchCommand) Describe(args any) string { return "Batch" }

func (c *batchCommand) ValidateArguments(args any) error {
	if _, ok := args.(BatchArgs); !ok {
		return fmt.Errorf("expected BatchArgs, got %T", args)
	}
	return nil
}

func (c *batchCommand) Execute(ctx context.Context, args any) (any, error) {
	a, _ := args.(BatchArgs)
	switch a.Stage {
	case BatchBegin:
		return c.m.openBatch(ctx), nil
	case BatchEnd, BatchAbort:
		return c.m.closeBatch(ctx, a)
	}
	return nil, errors.Wrapf(errors.ErrInvalidArguments, "batch stage %d", a.Stage)
}

// queueBatchStage runs a batch marker inline on the calling goroutine. The
// marker instance is transient; its result is the batch instance.
func (m *Manager) queueBatchStage(ctx context.Context, args any) (*Instance, error) {
	marker := newInstance(m.batch, args, nil)
	marker.start()
	result, err := m.batch.Execute(ctx, args)
	marker.finish(result, Code(err), err)
	if err != nil {
		return marker, err
	}
	return marker, nil
}

func (m *Manager) openBatch(ctx context.Context) *Instance {
	t := m.threadFor(ctx)
	group := newInstance(m.batch, nil, m.events)
	group.batch = true
	group.start()
	if top := t.top(); top != nil {
		top.inst.addChild(group)
	}
	t.push(&frame{inst: group, batch: true})

	m.logger.Debug("batch begin", logging.KeyInstance, group.id, logging.KeyThread, t.name)
	m.events.publish(Event{Kind: EventStatusChanged, Instance: group, Status: StatusRunning})
	m.events.publish(Event{Kind: EventMultiCommandBegin, Instance: group})
	return group
}

func (m *Manager) closeBatch(ctx context.Context, a BatchArgs) (*Instance, error) {
	t := m.threadFor(ctx)
	f := t.top()
	if f == nil || !f.batch {
		return nil, errors.Wrapf(errors.ErrInvalidOperation, "%s batch: no open batch", a.Stage)
	}

	m.drainFrame(ctx, t, f)
	t.pop(f)
	group := f.inst
	parent := group.parent
	group.parent = nil

	if a.Stage == BatchAbort {
		if err := group.undo(withReplay(ctx)); err != nil {
			m.logger.Warn("batch abort rollback failed", logging.KeyInstance, group.id, logging.KeyError, err)
		}
		if parent != nil {
			parent.removeChild(group)
		}
		group.finish(nil, CodeAborted, nil)
		m.logger.Debug("batch aborted", logging.KeyInstance, group.id, logging.KeyCount, len(group.Children()))
		m.events.publish(Event{Kind: EventStatusChanged, Instance: group, Status: StatusComplete})
		m.events.publish(Event{Kind: EventMultiCommandCancel, Instance: group})
		return group, nil
	}

	children := group.Children()
	if a.Description != "" {
		group.setDescription(a.Description)
	} else {
		group.setDescription(fmt.Sprintf("Batch (%d commands)", len(children)))
	}
	code := batchCode(children)

	switch {
	case code != CodeOK && parent != nil:
		parent.removeChild(group)
	case code == CodeOK && parent == nil:
		m.addToHistory(t, group)
	default:
		markChild(parent, group)
	}
	group.finish(nil, code, nil)

	m.logger.Debug("batch end",
		logging.KeyInstance, group.id,
		logging.KeyCount, len(children),
		logging.KeyErrorCode, code.String())
	m.events.publish(Event{Kind: EventStatusChanged, Instance: group, Status: StatusComplete})
	m.events.publish(Event{Kind: EventMultiCommandComplete, Instance: group})
	m.events.publish(Event{Kind: EventCommandExecuted, Instance: group, Operation: OpExecute})
	return group, nil
}

// batchCode is CodeOK when at least one child succeeded. An empty batch
// counts as aborted.
func batchCode(children []*Instance) ErrorCode {
	if len(children) == 0 {
		return CodeAborted
	}
	for _, c := range children {
		if c.ErrorCode() == CodeOK {
			return CodeOK
		}
	}
	return CodeFailed
}

// BeginBatch opens a batch on the calling goroutine and returns its instance.
func (m *Manager) BeginBatch(ctx context.Context) (*Instance, error) {
	marker, err := m.Queue(ctx, BatchCommandID, BatchArgs{Stage: BatchBegin})
	if err != nil {
		return nil, err
	}
	group, _ := marker.Result().(*Instance)
	return group, nil
}

// EndBatch waits for the children of the innermost open batch and closes it.
// The outermost batch enters the history as a single entry.
func (m *Manager) EndBatch(ctx context.Context, description string) (*Instance, error) {
	marker, err := m.Queue(ctx, BatchCommandID, BatchArgs{Stage: BatchEnd, Description: description})
	if err != nil {
		return nil, err
	}
	group, _ := marker.Result().(*Instance)
	return group, nil
}

// AbortBatch waits for the children of the innermost open batch, undoes them in
// reverse order and discards the batch.
func (m *Manager) AbortBatch(ctx context.Context) error {
	_, err := m.Queue(ctx, BatchCommandID, BatchArgs{Stage: BatchAbort})
	return err
}
