package command

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/manav03panchal/cmdstack/internal/errors"
	"github.com/manav03panchal/cmdstack/internal/logging"
)

// The history is a slice of top-level instances and a cursor in [-1, len-1].
// Entries after the cursor form the redo tail.

// sync runs tasks posted to the owner goroutine, such as history appends for
// instances completed on the worker, when called from the owner.
func (m *Manager) sync(ctx context.Context) {
	if m.threadFor(ctx) == m.owner {
		m.loop.RunPending()
	}
}

func (m *Manager) appendHistory(inst *Instance) {
	m.historyMu.Lock()
	old := m.index
	m.historyMu.Unlock()
	m.events.publish(Event{Kind: EventPreCommandIndexChanged, Index: old})

	m.historyMu.Lock()
	if m.index < len(m.history)-1 {
		for n := m.index + 1; n < len(m.history); n++ {
			m.history[n] = nil
		}
		m.history = m.history[:m.index+1]
	}
	m.history = append(m.history, inst)
	if m.historyLimit > 0 && len(m.history) > m.historyLimit {
		evict := len(m.history) - m.historyLimit
		kept := make([]*Instance, m.historyLimit)
		copy(kept, m.history[evict:])
		m.history = kept
	}
	m.index = len(m.history) - 1
	index := m.index
	m.historyMu.Unlock()

	m.logger.Debug("history append",
		logging.KeyCommand, inst.CommandID(),
		logging.KeyIndex, index)
	m.events.publish(Event{Kind: EventPostCommandIndexChanged, Index: index})
}

// History returns the top-level instances in order.
func (m *Manager) History(ctx context.Context) []*Instance {
	m.sync(ctx)
	m.historyMu.Lock()
	defer m.historyMu.Unlock()
	out := make([]*Instance, len(m.history))
	copy(out, m.history)
	return out
}

// CommandIndex returns the cursor; -1 means before the first entry.
func (m *Manager) CommandIndex(ctx context.Context) int {
	m.sync(ctx)
	m.historyMu.Lock()
	defer m.historyMu.Unlock()
	return m.index
}

// CanUndo reports whether the cursor points at an entry.
func (m *Manager) CanUndo(ctx context.Context) bool {
	return m.CommandIndex(ctx) >= 0
}

// CanRedo reports whether entries follow the cursor.
func (m *Manager) CanRedo(ctx context.Context) bool {
	m.sync(ctx)
	m.historyMu.Lock()
	defer m.historyMu.Unlock()
	return m.index < len(m.history)-1
}

// Undo reverses the entry at the cursor and moves the cursor back one step.
// It returns ErrNoHistory when there is nothing to undo.
func (m *Manager) Undo(ctx context.Context) error {
	m.sync(ctx)
	m.navMu.Lock()
	defer m.navMu.Unlock()
	return m.step(ctx, OpUndo)
}

// Redo replays the entry after the cursor and moves the cursor forward.
// It returns ErrNoHistory when there is nothing to redo.
func (m *Manager) Redo(ctx context.Context) error {
	m.sync(ctx)
	m.navMu.Lock()
	defer m.navMu.Unlock()
	return m.step(ctx, OpRedo)
}

// step moves the cursor by one. Callers hold navMu.
func (m *Manager) step(ctx context.Context, op Operation) error {
	m.historyMu.Lock()
	old := m.index
	target := old + 1
	entry := old + 1
	if op == OpUndo {
		target = old - 1
		entry = old
	}
	if entry < 0 || entry >= len(m.history) {
		m.historyMu.Unlock()
		return errors.ErrNoHistory
	}
	inst := m.history[entry]
	m.historyMu.Unlock()

	m.events.publish(Event{Kind: EventPreCommandIndexChanged, Index: old})
	err := m.apply(ctx, inst, op)

	m.historyMu.Lock()
	m.index = target
	m.historyMu.Unlock()

	m.events.publish(Event{Kind: EventPostCommandIndexChanged, Index: target})
	m.events.publish(Event{Kind: EventCommandExecuted, Instance: inst, Operation: op})
	return err
}

func (m *Manager) apply(ctx context.Context, inst *Instance, op Operation) error {
	ctx, span := m.tracer.Start(ctx, "command."+op.String(), trace.WithAttributes(
		attribute.String("command.id", inst.CommandID()),
		attribute.String("command.instance", inst.id),
	))
	defer span.End()

	var err error
	if op == OpUndo {
		err = inst.undo(withReplay(ctx))
	} else {
		err = inst.redo(withReplay(ctx))
	}
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		m.logger.Warn("record application failed",
			logging.KeyOperation, op.String(),
			logging.KeyCommand, inst.CommandID(),
			logging.KeyError, err)
	}
	return err
}

// MoveCommandIndex undoes or redoes until the cursor equals n.
func (m *Manager) MoveCommandIndex(ctx context.Context, n int) error {
	m.sync(ctx)
	m.navMu.Lock()
	defer m.navMu.Unlock()

	m.historyMu.Lock()
	cur, size := m.index, len(m.history)
	m.historyMu.Unlock()
	if n < -1 || n >= size {
		return errors.Wrapf(errors.ErrOutOfRange, "index %d not in [-1, %d]", n, size-1)
	}

	var errs []error
	for ; cur > n; cur-- {
		if err := m.step(ctx, OpUndo); err != nil {
			if errors.Is(err, errors.ErrNoHistory) {
				break
			}
			errs = append(errs, err)
		}
	}
	for ; cur < n; cur++ {
		if err := m.step(ctx, OpRedo); err != nil {
			if errors.Is(err, errors.ErrNoHistory) {
				break
			}
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// RemoveCommands drops every entry matching pred, keeping the cursor on the
// same surviving entry. It returns the number of removed entries.
func (m *Manager) RemoveCommands(ctx context.Context, pred func(*Instance) bool) int {
	m.sync(ctx)
	m.navMu.Lock()
	defer m.navMu.Unlock()

	m.events.publish(Event{Kind: EventHistoryPreReset})
	m.historyMu.Lock()
	kept := m.history[:0:0]
	removedBefore := 0
	for n, inst := range m.history {
		if pred(inst) {
			if n <= m.index {
				removedBefore++
			}
			continue
		}
		kept = append(kept, inst)
	}
	removed := len(m.history) - len(kept)
	m.history = kept
	m.index -= removedBefore
	index := m.index
	m.historyMu.Unlock()

	m.logger.Debug("history pruned", logging.KeyCount, removed, logging.KeyIndex, index)
	m.events.publish(Event{Kind: EventHistoryPostReset, Index: index})
	return removed
}

// ClearHistory empties the history.
func (m *Manager) ClearHistory(ctx context.Context) {
	m.sync(ctx)
	m.navMu.Lock()
	defer m.navMu.Unlock()
	m.resetHistory(nil, -1)
}

func (m *Manager) resetHistory(entries []*Instance, index int) {
	if index < -1 {
		index = -1
	}
	if index >= len(entries) {
		index = len(entries) - 1
	}
	m.events.publish(Event{Kind: EventHistoryPreReset})
	m.historyMu.Lock()
	m.history = entries
	m.index = index
	m.historyMu.Unlock()
	m.events.publish(Event{Kind: EventHistoryPostReset, Index: index})
}
