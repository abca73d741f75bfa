package command

import (
	"context"
)

// Record reverses and replays the effect of one executed instance.
type Record interface {
	Undo(ctx context.Context) error
	Redo(ctx context.Context) error
	Describe() string
}

// DelegateRecord forwards undo and redo to the command's own implementation.
type DelegateRecord struct {
	inst *Instance
	rev  Reverter
}

func newDelegateRecord(inst *Instance, rev Reverter) *DelegateRecord {
	return &DelegateRecord{inst: inst, rev: rev}
}

func (r *DelegateRecord) Undo(ctx context.Context) error {
	return r.rev.Undo(withReplay(ctx), r.inst)
}

func (r *DelegateRecord) Redo(ctx context.Context) error {
	return r.rev.Redo(withReplay(ctx), r.inst)
}

func (r *DelegateRecord) Describe() string {
	return r.inst.Description()
}

type replayKey struct{}

// withReplay marks ctx so mutations made while applying a record are not
// captured into whatever instance is executing.
func withReplay(ctx context.Context) context.Context {
	if isReplay(ctx) {
		return ctx
	}
	return context.WithValue(ctx, replayKey{}, true)
}

func isReplay(ctx context.Context) bool {
	v, _ := ctx.Value(replayKey{}).(bool)
	return v
}
