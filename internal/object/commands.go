package object

import (
	"context"
	"fmt"

	"github.com/manav03panchal/cmdstack/internal/command"
	"github.com/manav03panchal/cmdstack/internal/errors"
	"github.com/manav03panchal/cmdstack/internal/validate"
)

// Built-in command ids.
const (
	CmdSetProperty  = "SetProperty"
	CmdInvokeMethod = "InvokeMethod"
	CmdCreateObject = "CreateObject"
	CmdDeleteObject = "DeleteObject"
)

// SetPropertyArgs are the arguments of SetProperty.
type SetPropertyArgs struct {
	Object command.ObjectID `json:"object"`
	Path   string           `json:"path"`
	Value  any              `json:"value"`
}

func (a SetPropertyArgs) WithObject(id command.ObjectID) any {
	a.Object = id
	return a
}

func (a SetPropertyArgs) ContextObject() command.ObjectID { return a.Object }

// InvokeArgs are the arguments of InvokeMethod.
type InvokeArgs struct {
	Object command.ObjectID `json:"object"`
	Method string           `json:"method"`
	Params []any            `json:"params,omitempty"`
}

func (a InvokeArgs) WithObject(id command.ObjectID) any {
	a.Object = id
	return a
}

func (a InvokeArgs) ContextObject() command.ObjectID { return a.Object }

// CreateArgs are the arguments of CreateObject. An empty ID is generated.
type CreateArgs struct {
	ID    command.ObjectID `json:"id,omitempty"`
	Type  string           `json:"type,omitempty"`
	Props map[string]any   `json:"props,omitempty"`
}

func init() {
	command.RegisterType[SetPropertyArgs]()
	command.RegisterType[InvokeArgs]()
	command.RegisterType[CreateArgs]()
}

// Register adds the built-in object commands to m.
func Register(m *command.Manager, s *Store) error {
	cmds := []command.Command{
		setPropertyCommand(s),
		invokeMethodCommand(s),
		createObjectCommand(s),
		deleteObjectCommand(s),
	}
	for _, c := range cmds {
		if err := m.Register(c); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) requireObject(id command.ObjectID) error {
	if err := validate.ObjectID(string(id)); err != nil {
		return err
	}
	if !s.Exists(id) {
		return notFound(id)
	}
	return nil
}

func setPropertyCommand(s *Store) *command.Definition {
	return &command.Definition{
		Name:   CmdSetProperty,
		Thread: command.AffinityUI,
		Validate: func(args any) error {
			a, ok := args.(SetPropertyArgs)
			if !ok {
				return errors.Wrapf(errors.ErrInvalidArguments, "expected SetPropertyArgs, got %T", args)
			}
			if err := validate.PropertyPath(a.Path); err != nil {
				return err
			}
			return s.requireObject(a.Object)
		},
		Run: func(ctx context.Context, args any) (any, error) {
			a := args.(SetPropertyArgs)
			return nil, s.SetValue(ctx, a.Object, a.Path, a.Value)
		},
		DescribeFunc: func(args any) string {
			a, _ := args.(SetPropertyArgs)
			if a.Value == nil {
				return fmt.Sprintf("Unset %s.%s", a.Object, a.Path)
			}
			return fmt.Sprintf("Set %s.%s = %v", a.Object, a.Path, a.Value)
		},
	}
}

func invokeMethodCommand(s *Store) *command.Definition {
	return &command.Definition{
		Name:   CmdInvokeMethod,
		Thread: command.AffinityUI,
		Validate: func(args any) error {
			a, ok := args.(InvokeArgs)
			if !ok {
				return errors.Wrapf(errors.ErrInvalidArguments, "expected InvokeArgs, got %T", args)
			}
			if _, ok := s.Method(a.Method); !ok {
				return errors.Wrapf(errors.ErrNotSupported, "method %s", a.Method)
			}
			return s.requireObject(a.Object)
		},
		Run: func(ctx context.Context, args any) (any, error) {
			a := args.(InvokeArgs)
			return s.Invoke(ctx, a.Object, a.Method, a.Params)
		},
		CanUndoFunc: func(args any) bool {
			a, ok := args.(InvokeArgs)
			if !ok {
				return false
			}
			m, ok := s.Method(a.Method)
			return ok && m.Undoable
		},
		DescribeFunc: func(args any) string {
			a, _ := args.(InvokeArgs)
			return fmt.Sprintf("Call %s.%s%v", a.Object, a.Method, a.Params)
		},
	}
}

func createObjectCommand(s *Store) *command.Definition {
	return &command.Definition{
		Name:   CmdCreateObject,
		Thread: command.AffinityUI,
		Validate: func(args any) error {
			a, ok := args.(CreateArgs)
			if !ok {
				return errors.Wrapf(errors.ErrInvalidArguments, "expected CreateArgs, got %T", args)
			}
			if a.ID == "" {
				return nil
			}
			if err := validate.ObjectID(string(a.ID)); err != nil {
				return err
			}
			if s.Exists(a.ID) {
				return errors.Wrapf(errors.ErrAlreadyExists, "object %s", a.ID)
			}
			return nil
		},
		Run: func(ctx context.Context, args any) (any, error) {
			a := args.(CreateArgs)
			return s.Create(a.ID, a.Type, a.Props)
		},
		UndoFunc: func(ctx context.Context, inst *command.Instance) error {
			id, ok := inst.Result().(command.ObjectID)
			if !ok {
				return errors.Wrapf(errors.ErrInvalidValue, "create result %T", inst.Result())
			}
			_, err := s.Delete(id)
			return err
		},
		RedoFunc: func(ctx context.Context, inst *command.Instance) error {
			id, ok := inst.Result().(command.ObjectID)
			if !ok {
				return errors.Wrapf(errors.ErrInvalidValue, "create result %T", inst.Result())
			}
			a, _ := inst.Arguments().(CreateArgs)
			_, err := s.Create(id, a.Type, a.Props)
			return err
		},
		DescribeFunc: func(args any) string {
			a, _ := args.(CreateArgs)
			if a.ID == "" {
				return "Create object"
			}
			return fmt.Sprintf("Create %s", a.ID)
		},
	}
}

func deleteObjectCommand(s *Store) *command.Definition {
	return &command.Definition{
		Name:   CmdDeleteObject,
		Thread: command.AffinityUI,
		Validate: func(args any) error {
			id, ok := args.(command.ObjectID)
			if !ok {
				return errors.Wrapf(errors.ErrInvalidArguments, "expected ObjectID, got %T", args)
			}
			return s.requireObject(id)
		},
		Run: func(ctx context.Context, args any) (any, error) {
			return s.Delete(args.(command.ObjectID))
		},
		UndoFunc: func(ctx context.Context, inst *command.Instance) error {
			obj, ok := inst.Result().(Object)
			if !ok {
				return errors.Wrapf(errors.ErrInvalidValue, "delete result %T", inst.Result())
			}
			s.Restore(obj)
			return nil
		},
		RedoFunc: func(ctx context.Context, inst *command.Instance) error {
			_, err := s.Delete(inst.Arguments().(command.ObjectID))
			return err
		},
		DescribeFunc: func(args any) string {
			return fmt.Sprintf("Delete %v", args)
		},
	}
}
