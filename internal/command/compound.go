package command

import (
	"context"
	"sync"

	"github.com/manav03panchal/cmdstack/internal/errors"
)

// BindingKind selects how a macro step argument is produced at replay time.
type BindingKind int

const (
	// BindLiteral replays the captured value unchanged.
	BindLiteral BindingKind = iota
	// BindContext rebinds the captured value to the replay context object.
	BindContext
	// BindResult rebinds the captured value to the object returned by an
	// earlier step.
	BindResult
)

func (k BindingKind) String() string {
	switch k {
	case BindContext:
		return "context"
	case BindResult:
		return "result"
	default:
		return "literal"
	}
}

// Argument is the controller for one captured macro argument.
type Argument struct {
	Kind  BindingKind
	Value any
	// Offset is negative and relative to the step owning the argument.
	Offset int
}

// Literal returns an argument replayed as captured.
func Literal(v any) Argument {
	return Argument{Kind: BindLiteral, Value: v}
}

// ContextBound returns an argument retargeted to the replay context object.
func ContextBound(v any) Argument {
	return Argument{Kind: BindContext, Value: v}
}

// ResultOf returns an argument retargeted to the result of the step offset
// steps before the owning one. offset must be negative.
func ResultOf(offset int, v any) Argument {
	return Argument{Kind: BindResult, Value: v, Offset: offset}
}

// Replay carries the state of one compound execution.
type Replay struct {
	Context ObjectID
	results []any
}

// Resolve produces the argument for the given step.
func (a Argument) Resolve(r *Replay, step int) (any, error) {
	switch a.Kind {
	case BindContext:
		if r.Context == "" {
			return a.Value, nil
		}
		return retarget(a.Value, r.Context)
	case BindResult:
		target := step + a.Offset
		if a.Offset >= 0 || target < 0 || target >= len(r.results) {
			return nil, errors.Wrapf(errors.ErrOutOfRange, "step %d references step %d", step, target)
		}
		result := r.results[target]
		id, ok := asObjectID(result)
		if !ok {
			if a.Value == nil {
				return result, nil
			}
			return nil, errors.Wrapf(errors.ErrInvalidArguments, "step %d result %T is not an object id", target, result)
		}
		if a.Value == nil {
			return id, nil
		}
		return retarget(a.Value, id)
	default:
		return a.Value, nil
	}
}

func retarget(v any, id ObjectID) (any, error) {
	rt, ok := v.(Retargetable)
	if !ok {
		return nil, errors.Wrapf(errors.ErrInvalidArguments, "%T cannot be rebound to an object", v)
	}
	return rt.WithObject(id), nil
}

func asObjectID(v any) (ObjectID, bool) {
	switch id := v.(type) {
	case ObjectID:
		return id, id != ""
	case string:
		return ObjectID(id), id != ""
	}
	return "", false
}

// Step is one (sub-command, argument) pair of a compound command.
type Step struct {
	CommandID string
	Argument  Argument
}

// MacroArgs are the arguments of a compound invocation.
type MacroArgs struct {
	// Context, when set, is the object steps with BindContext arguments are
	// rebound to.
	Context ObjectID
}

// ContextObject implements Contextual.
func (a MacroArgs) ContextObject() ObjectID { return a.Context }

// CompoundCommand replays a stored sequence of sub-commands as one action.
// Its sub-instances become its children, so the whole replay is undone and
// redone as a unit.
type CompoundCommand struct {
	id string
	m  *Manager

	mu    sync.RWMutex
	steps []Step
}

// NewCompoundCommand creates a compound command bound to m.
func NewCompoundCommand(m *Manager, id string, steps []Step) *CompoundCommand {
	c := &CompoundCommand{id: id, m: m}
	c.steps = append(c.steps, steps...)
	return c
}

func (c *CompoundCommand) ID() string               { return c.id }
func (c *CompoundCommand) Affinity() Affinity       { return AffinityAny }
func (c *CompoundCommand) IsGroup() bool            { return true }
func (c *CompoundCommand) Describe(args any) string { return c.id }

func (c *CompoundCommand) ValidateArguments(args any) error {
	switch args.(type) {
	case nil, MacroArgs, ObjectID:
		return nil
	}
	return errors.Wrapf(errors.ErrInvalidArguments, "expected MacroArgs, got %T", args)
}

// Steps returns a copy of the steps.
func (c *CompoundCommand) Steps() []Step {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Step, len(c.steps))
	copy(out, c.steps)
	return out
}

// SetArgument replaces the argument controller of step i.
func (c *CompoundCommand) SetArgument(i int, a Argument) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if i < 0 || i >= len(c.steps) {
		return errors.Wrapf(errors.ErrOutOfRange, "step %d of %d", i, len(c.steps))
	}
	if a.Kind == BindResult && (a.Offset >= 0 || i+a.Offset < 0) {
		return errors.Wrapf(errors.ErrOutOfRange, "step %d cannot reference offset %d", i, a.Offset)
	}
	c.steps[i].Argument = a
	return nil
}

// Execute queues each step in order and waits for it, stopping at the first
// failure. The result is the last step's result.
func (c *CompoundCommand) Execute(ctx context.Context, args any) (any, error) {
	r := &Replay{}
	switch a := args.(type) {
	case MacroArgs:
		r.Context = a.Context
	case ObjectID:
		r.Context = a
	}

	var last any
	for n, s := range c.Steps() {
		arg, err := s.Argument.Resolve(r, n)
		if err != nil {
			return nil, err
		}
		inst, err := c.m.Queue(ctx, s.CommandID, arg)
		if err != nil {
			return nil, err
		}
		if err := c.m.WaitFor(ctx, inst); err != nil {
			return nil, err
		}
		if inst.ErrorCode() != CodeOK {
			return nil, inst.Err()
		}
		last = inst.Result()
		r.results = append(r.results, last)
	}
	return last, nil
}
