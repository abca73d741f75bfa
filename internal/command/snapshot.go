package command

import (
	"context"
	"encoding/json"
	"io"
	"time"

	"github.com/manav03panchal/cmdstack/internal/errors"
	"github.com/manav03panchal/cmdstack/internal/logging"
)

// historyFormat is bumped whenever Entry changes incompatibly.
const historyFormat = 1

// Entry is the persisted form of one history instance.
type Entry struct {
	CommandID   string          `json:"command"`
	Description string          `json:"description,omitempty"`
	Undo        json.RawMessage `json:"undo,omitempty"`
	Redo        json.RawMessage `json:"redo,omitempty"`
	Arguments   Value           `json:"args"`
	Result      Value           `json:"result"`
	Code        ErrorCode       `json:"code"`
	Context     ObjectID        `json:"context,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	Batch       bool            `json:"batch,omitempty"`
	Children    []Entry         `json:"children,omitempty"`
}

// Snapshot is the persisted history with its cursor.
type Snapshot struct {
	Index   int     `json:"index"`
	Entries []Entry `json:"entries"`
}

type historyHeader struct {
	Format int `json:"format"`
	Index  int `json:"index"`
	Count  int `json:"count"`
}

// Snapshot captures the history for persistence.
func (m *Manager) Snapshot(ctx context.Context) (Snapshot, error) {
	m.sync(ctx)
	m.navMu.Lock()
	defer m.navMu.Unlock()

	m.historyMu.Lock()
	history := make([]*Instance, len(m.history))
	copy(history, m.history)
	index := m.index
	m.historyMu.Unlock()

	snap := Snapshot{Index: index, Entries: make([]Entry, 0, len(history))}
	for _, inst := range history {
		e, err := encodeInstance(inst)
		if err != nil {
			return Snapshot{}, err
		}
		snap.Entries = append(snap.Entries, e)
	}
	return snap, nil
}

func encodeInstance(inst *Instance) (Entry, error) {
	e := Entry{
		CommandID:   inst.CommandID(),
		Description: inst.Description(),
		Code:        inst.ErrorCode(),
		Context:     inst.ContextObject(),
		CreatedAt:   inst.CreatedAt(),
		Batch:       inst.IsBatch(),
	}
	var err error
	if e.Arguments, err = EncodeValue(inst.Arguments()); err != nil {
		return Entry{}, errors.Wrapf(err, "instance %s arguments", inst.ID())
	}
	if e.Result, err = EncodeValue(inst.Result()); err != nil {
		return Entry{}, errors.Wrapf(err, "instance %s result", inst.ID())
	}
	if rec, ok := inst.Record().(*DiffRecord); ok {
		undo, redo, err := rec.Buffers()
		if err != nil {
			return Entry{}, errors.Wrapf(err, "instance %s record", inst.ID())
		}
		e.Undo, e.Redo = undo, redo
	}
	for _, c := range inst.Children() {
		ce, err := encodeInstance(c)
		if err != nil {
			return Entry{}, err
		}
		e.Children = append(e.Children, ce)
	}
	return e, nil
}

// Restore replaces the history with a snapshot. Entries whose command is no
// longer registered are restored inert.
func (m *Manager) Restore(ctx context.Context, snap Snapshot) error {
	m.sync(ctx)
	entries := make([]*Instance, 0, len(snap.Entries))
	for _, e := range snap.Entries {
		inst, err := m.decodeEntry(e)
		if err != nil {
			return err
		}
		entries = append(entries, inst)
	}

	m.navMu.Lock()
	defer m.navMu.Unlock()
	m.resetHistory(entries, snap.Index)
	m.logger.Debug("history restored", logging.KeyCount, len(entries), logging.KeyIndex, snap.Index)
	return nil
}

func (m *Manager) decodeEntry(e Entry) (*Instance, error) {
	var cmd Command
	switch {
	case e.Batch:
		cmd = m.batch
	default:
		if found, ok := m.Find(e.CommandID); ok {
			cmd = found
		} else {
			cmd = missingCommand(e.CommandID)
		}
	}

	args, err := e.Arguments.Decode()
	if err != nil {
		return nil, errors.Wrapf(err, "entry %s arguments", e.CommandID)
	}
	result, err := e.Result.Decode()
	if err != nil {
		return nil, errors.Wrapf(err, "entry %s result", e.CommandID)
	}

	inst := newInstance(cmd, args, m.events)
	inst.batch = e.Batch
	inst.createdAt = e.CreatedAt
	if e.Description != "" {
		inst.description = e.Description
	}
	inst.contextObject = e.Context
	inst.status = StatusComplete
	inst.code = e.Code
	inst.result = result
	close(inst.done)

	if _, missing := cmd.(missingCommand); missing && e.Code == CodeOK {
		inst.code = CodeNotSupported
	}

	switch rev, custom := customUndo(cmd); {
	case custom:
		inst.record = newDelegateRecord(inst, rev)
	case len(e.Undo) > 0 || len(e.Redo) > 0:
		rec, err := NewDiffRecordFromBuffers(m.accessor, m.resolver, e.Undo, e.Redo)
		if err != nil {
			return nil, errors.Wrapf(err, "entry %s record", e.CommandID)
		}
		if inst.code != CodeOK {
			rec.markInert()
		}
		inst.record = rec
	}

	for _, ce := range e.Children {
		child, err := m.decodeEntry(ce)
		if err != nil {
			return nil, err
		}
		inst.children = append(inst.children, child)
	}
	return inst, nil
}

// WriteHistory streams the history as JSON lines: a header followed by one
// entry per line.
func (m *Manager) WriteHistory(ctx context.Context, w io.Writer) error {
	snap, err := m.Snapshot(ctx)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(w)
	if err := enc.Encode(historyHeader{Format: historyFormat, Index: snap.Index, Count: len(snap.Entries)}); err != nil {
		return errors.Wrap(err, "write history header")
	}
	for _, e := range snap.Entries {
		if err := enc.Encode(e); err != nil {
			return errors.Wrapf(err, "write history entry %s", e.CommandID)
		}
	}
	return nil
}

// ReadHistory replaces the history with one written by WriteHistory.
func (m *Manager) ReadHistory(ctx context.Context, r io.Reader) error {
	dec := json.NewDecoder(r)
	var header historyHeader
	if err := dec.Decode(&header); err != nil {
		return errors.Wrap(errors.ErrInvalidValue, "read history header: "+err.Error())
	}
	if header.Format != historyFormat {
		return errors.Wrapf(errors.ErrNotSupported, "history format %d", header.Format)
	}

	if header.Count < 0 {
		return errors.Wrapf(errors.ErrInvalidValue, "history header count %d", header.Count)
	}

	var snap Snapshot
	snap.Index = header.Index
	for {
		var e Entry
		err := dec.Decode(&e)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return errors.Wrap(errors.ErrInvalidValue, "read history entry: "+err.Error())
		}
		snap.Entries = append(snap.Entries, e)
	}
	if len(snap.Entries) != header.Count {
		return errors.Wrapf(errors.ErrInvalidValue, "history has %d entries, header says %d", len(snap.Entries), header.Count)
	}
	return m.Restore(ctx, snap)
}

// missingCommand stands in for commands that were not registered when a
// history was restored.
type missingCommand string

func (c missingCommand) ID() string         { return string(c) }
func (c missingCommand) Affinity() Affinity { return AffinityAny }

func (c missingCommand) Execute(ctx context.Context, args any) (any, error) {
	return nil, errors.Wrapf(errors.ErrNotSupported, "command %q is not registered", string(c))
}
