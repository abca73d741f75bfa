package command

import (
	"context"
)

// Command is a named, stateless unit of behavior. Per-invocation state lives on
// the Instance passed to undo/redo, never on the Command.
type Command interface {
	ID() string
	Affinity() Affinity
	Execute(ctx context.Context, args any) (any, error)
}

// Validator commands check arguments before an instance is created.
type Validator interface {
	ValidateArguments(args any) error
}

// Undoable commands decide whether an invocation enters the history.
// Commands that do not implement it are undoable.
type Undoable interface {
	CanUndo(args any) bool
}

// Reverter commands with CustomUndo() == true reverse their own effects instead
// of relying on captured property diffs.
type Reverter interface {
	CustomUndo() bool
	Undo(ctx context.Context, inst *Instance) error
	Redo(ctx context.Context, inst *Instance) error
}

// Describer commands provide a human readable summary of an invocation.
type Describer interface {
	Describe(args any) string
}

// Group commands open a command group while they execute.
type Group interface {
	IsGroup() bool
}

// Definition builds a Command from plain functions.
type Definition struct {
	Name     string
	Thread   Affinity
	Validate func(args any) error
	Run      func(ctx context.Context, args any) (any, error)
	// UndoFunc and RedoFunc, when both set, select delegate undo.
	UndoFunc     func(ctx context.Context, inst *Instance) error
	RedoFunc     func(ctx context.Context, inst *Instance) error
	CanUndoFunc  func(args any) bool
	DescribeFunc func(args any) string
}

func (d *Definition) ID() string         { return d.Name }
func (d *Definition) Affinity() Affinity { return d.Thread }

func (d *Definition) Execute(ctx context.Context, args any) (any, error) {
	if d.Run == nil {
		return nil, nil
	}
	return d.Run(ctx, args)
}

func (d *Definition) ValidateArguments(args any) error {
	if d.Validate == nil {
		return nil
	}
	return d.Validate(args)
}

func (d *Definition) CanUndo(args any) bool {
	if d.CanUndoFunc == nil {
		return true
	}
	return d.CanUndoFunc(args)
}

func (d *Definition) CustomUndo() bool {
	return d.UndoFunc != nil && d.RedoFunc != nil
}

func (d *Definition) Undo(ctx context.Context, inst *Instance) error {
	if d.UndoFunc == nil {
		return nil
	}
	return d.UndoFunc(ctx, inst)
}

func (d *Definition) Redo(ctx context.Context, inst *Instance) error {
	if d.RedoFunc == nil {
		return nil
	}
	return d.RedoFunc(ctx, inst)
}

func (d *Definition) Describe(args any) string {
	if d.DescribeFunc == nil {
		return d.Name
	}
	return d.DescribeFunc(args)
}

func canUndo(cmd Command, args any) bool {
	if u, ok := cmd.(Undoable); ok {
		return u.CanUndo(args)
	}
	return true
}

func customUndo(cmd Command) (Reverter, bool) {
	r, ok := cmd.(Reverter)
	if !ok || !r.CustomUndo() {
		return nil, false
	}
	return r, true
}

func isGroup(cmd Command) bool {
	g, ok := cmd.(Group)
	return ok && g.IsGroup()
}

func describe(cmd Command, args any) string {
	if d, ok := cmd.(Describer); ok {
		return d.Describe(args)
	}
	return cmd.ID()
}
