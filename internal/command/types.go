package command

import (
	"github.com/manav03panchal/cmdstack/internal/errors"
)

// Affinity declares which goroutine a command may run on.
type Affinity int

const (
	// AffinityAny commands run wherever they are scheduled.
	AffinityAny Affinity = iota
	// AffinityUI commands run only on the owner goroutine.
	AffinityUI
	// AffinityWorker commands run only on the worker goroutine.
	AffinityWorker
)

func (a Affinity) String() string {
	switch a {
	case AffinityUI:
		return "ui"
	case AffinityWorker:
		return "worker"
	default:
		return "any"
	}
}

// ParseAffinity converts "ui", "worker" or "any" into an Affinity.
func ParseAffinity(s string) (Affinity, error) {
	switch s {
	case "ui", "UI":
		return AffinityUI, nil
	case "worker", "WORKER":
		return AffinityWorker, nil
	case "any", "ANY", "":
		return AffinityAny, nil
	}
	return AffinityAny, errors.Wrapf(errors.ErrInvalidArguments, "unknown affinity %q", s)
}

// Status is the lifecycle state of an Instance.
type Status int

const (
	StatusQueued Status = iota
	StatusRunning
	StatusComplete
)

func (s Status) String() string {
	switch s {
	case StatusQueued:
		return "queued"
	case StatusRunning:
		return "running"
	default:
		return "complete"
	}
}

// ErrorCode is the terminal outcome of an Instance.
type ErrorCode int

const (
	CodeOK ErrorCode = iota
	CodeInvalidArguments
	CodeAborted
	CodeFailed
	CodeNotSupported
	CodeInvalidOperation
	CodeInvalidValue
	CodeNoHistory
	CodeOutOfRange
)

var codeErrors = map[ErrorCode]error{
	CodeInvalidArguments: errors.ErrInvalidArguments,
	CodeAborted:          errors.ErrAborted,
	CodeFailed:           errors.ErrFailed,
	CodeNotSupported:     errors.ErrNotSupported,
	CodeInvalidOperation: errors.ErrInvalidOperation,
	CodeInvalidValue:     errors.ErrInvalidValue,
	CodeNoHistory:        errors.ErrNoHistory,
	CodeOutOfRange:       errors.ErrOutOfRange,
}

func (c ErrorCode) String() string {
	if c == CodeOK {
		return "ok"
	}
	if err, ok := codeErrors[c]; ok {
		return err.Error()
	}
	return "unknown"
}

// Err returns the sentinel error for the code, or nil for CodeOK.
func (c ErrorCode) Err() error {
	return codeErrors[c]
}

// Code maps an error returned by a command body onto an ErrorCode.
// Errors that wrap none of the engine sentinels are reported as CodeFailed.
func Code(err error) ErrorCode {
	if err == nil {
		return CodeOK
	}
	// Checked in declaration order so the most specific sentinel wins.
	for c := CodeInvalidArguments; c <= CodeOutOfRange; c++ {
		if errors.Is(err, codeErrors[c]) {
			return c
		}
	}
	return CodeFailed
}

// Operation identifies what a CommandExecuted event reports.
type Operation int

const (
	OpExecute Operation = iota
	OpUndo
	OpRedo
)

func (o Operation) String() string {
	switch o {
	case OpUndo:
		return "undo"
	case OpRedo:
		return "redo"
	default:
		return "execute"
	}
}

// ObjectID identifies an object owned by the property system.
type ObjectID string

// Retargetable arguments can be rebound to a different context object.
// Macro replay uses it to run recorded steps against a new object.
type Retargetable interface {
	WithObject(id ObjectID) any
}

// Contextual arguments name the object a command acts on.
type Contextual interface {
	ContextObject() ObjectID
}

// WithObject makes a bare object id retargetable.
func (id ObjectID) WithObject(other ObjectID) any { return other }

// ContextObject makes a bare object id its own context.
func (id ObjectID) ContextObject() ObjectID { return id }
