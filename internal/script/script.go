// Package script loads commands whose bodies are written in Lua.
//
// A script file declares one or more commands:
//
//	command{
//	  id = "Grow",
//	  affinity = "ui",
//	  undoable = true,
//	  description = "Double the size of an object",
//	  execute = function(args)
//	    local size = get(args.object, "size") or 1
//	    set(args.object, "size", size * 2)
//	    return size * 2
//	  end,
//	}
//
// Bodies run in a fresh sandboxed state per invocation and reach objects only
// through get, set, invoke and exists, so their changes are captured for undo
// like those of any other command.
package script

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	lua "github.com/yuin/gopher-lua"
	"github.com/yuin/gopher-lua/parse"

	"github.com/manav03panchal/cmdstack/internal/command"
	"github.com/manav03panchal/cmdstack/internal/config"
	"github.com/manav03panchal/cmdstack/internal/errors"
	"github.com/manav03panchal/cmdstack/internal/validate"
)

// DefaultTimeout bounds one script invocation when neither the Env nor the
// global configuration sets a timeout.
const DefaultTimeout = 5 * time.Second

// Args are the arguments of a script command. The "object" key names the
// object the command acts on and is rebound when a macro replays it.
type Args map[string]any

func (a Args) WithObject(id command.ObjectID) any {
	out := make(Args, len(a)+1)
	for k, v := range a {
		out[k] = v
	}
	out["object"] = string(id)
	return out
}

func (a Args) ContextObject() command.ObjectID {
	switch v := a["object"].(type) {
	case string:
		return command.ObjectID(v)
	case command.ObjectID:
		return v
	}
	return ""
}

func init() {
	command.RegisterType[Args]()
}

// Env is what script bodies can reach.
type Env struct {
	Accessor command.PropertyAccessor
	Resolver command.ObjectResolver
	Timeout  time.Duration
}

// Command is a command declared by a script file.
type Command struct {
	id          string
	affinity    command.Affinity
	undoable    bool
	description string
	path        string
	proto       *lua.FunctionProto
	env         Env
}

func (c *Command) ID() string                 { return c.id }
func (c *Command) Affinity() command.Affinity { return c.affinity }
func (c *Command) CanUndo(args any) bool      { return c.undoable }
func (c *Command) Path() string               { return c.path }
func (c *Command) Description() string        { return c.description }

// Describe names the command and its target object when it has one.
func (c *Command) Describe(args any) string {
	if a, ok := args.(Args); ok {
		if id := a.ContextObject(); id != "" {
			return fmt.Sprintf("%s %s", c.id, id)
		}
	}
	return c.id
}

// ValidateArguments accepts nil or Args.
func (c *Command) ValidateArguments(args any) error {
	switch a := args.(type) {
	case nil:
		return nil
	case Args:
		if id := a.ContextObject(); id != "" {
			return validate.ObjectID(string(id))
		}
		return nil
	}
	return errors.Wrapf(errors.ErrInvalidArguments, "expected script arguments, got %T", args)
}

// Execute runs the body in a new sandboxed state bound to ctx.
func (c *Command) Execute(ctx context.Context, args any) (any, error) {
	timeout := c.env.Timeout
	if timeout <= 0 {
		timeout = config.Global.Script.Timeout
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	L := newSandbox()
	defer L.Close()
	L.SetContext(runCtx)
	installAPI(L, ctx, c.env)

	decls, err := declare(L, c.proto)
	if err != nil {
		return nil, c.fail(runCtx, err)
	}
	var body *lua.LFunction
	for _, d := range decls {
		if d.id == c.id {
			body = d.execute
		}
	}
	if body == nil {
		return nil, errors.Wrapf(errors.ErrNotSupported, "%s no longer declares %s", c.path, c.id)
	}

	a, _ := args.(Args)
	L.Push(body)
	L.Push(toLValue(L, map[string]any(a)))
	if err := L.PCall(1, 1, nil); err != nil {
		return nil, c.fail(runCtx, err)
	}
	ret := L.Get(-1)
	L.Pop(1)
	return fromLValue(ret), nil
}

func (c *Command) fail(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return errors.Wrapf(errors.ErrFailed, "%s: timed out", c.id)
	}
	return errors.Wrapf(errors.ErrFailed, "%s: %v", c.id, err)
}

// declaration is one command{...} call.
type declaration struct {
	id          string
	affinity    string
	undoable    bool
	description string
	execute     *lua.LFunction
}

// declare runs a compiled script in L, collecting its command declarations.
func declare(L *lua.LState, proto *lua.FunctionProto) ([]declaration, error) {
	var decls []declaration
	L.SetGlobal("command", L.NewFunction(func(L *lua.LState) int {
		tbl := L.CheckTable(1)
		d := declaration{
			id:          lua.LVAsString(tbl.RawGetString("id")),
			affinity:    lua.LVAsString(tbl.RawGetString("affinity")),
			undoable:    true,
			description: lua.LVAsString(tbl.RawGetString("description")),
		}
		if v := tbl.RawGetString("undoable"); v != lua.LNil {
			d.undoable = lua.LVAsBool(v)
		}
		fn, ok := tbl.RawGetString("execute").(*lua.LFunction)
		if !ok {
			L.RaiseError("command %q has no execute function", d.id)
			return 0
		}
		d.execute = fn
		decls = append(decls, d)
		return 0
	}))

	L.Push(L.NewFunctionFromProto(proto))
	if err := L.PCall(0, 0, nil); err != nil {
		return nil, err
	}
	return decls, nil
}

// compile parses a script into a proto shared by all invocations.
func compile(path string, src []byte) (*lua.FunctionProto, error) {
	chunk, err := parse.Parse(strings.NewReader(string(src)), path)
	if err != nil {
		return nil, err
	}
	return lua.Compile(chunk, path)
}

// LoadFile compiles a script and returns the commands it declares.
func LoadFile(path string, env Env) ([]*Command, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.NewSystemErrorWithOp("load script", err.Error(), err)
	}
	return Load(path, src, env)
}

// Load compiles src, named path in messages, and returns its commands.
func Load(path string, src []byte, env Env) ([]*Command, error) {
	proto, err := compile(path, src)
	if err != nil {
		return nil, errors.Wrapf(errors.ErrInvalidValue, "%s: %v", path, err)
	}

	L := newSandbox()
	defer L.Close()
	installAPI(L, context.Background(), Env{})
	decls, err := declare(L, proto)
	if err != nil {
		return nil, errors.Wrapf(errors.ErrInvalidValue, "%s: %v", path, err)
	}
	if len(decls) == 0 {
		return nil, errors.Wrapf(errors.ErrInvalidValue, "%s declares no commands", path)
	}

	cmds := make([]*Command, 0, len(decls))
	seen := make(map[string]bool, len(decls))
	for _, d := range decls {
		if err := validate.Name(d.id); err != nil {
			return nil, errors.Wrapf(errors.ErrInvalidValue, "%s: %v", path, err)
		}
		if seen[d.id] {
			return nil, errors.Wrapf(errors.ErrAlreadyExists, "%s declares %s twice", path, d.id)
		}
		seen[d.id] = true
		aff, err := command.ParseAffinity(d.affinity)
		if err != nil {
			return nil, errors.Wrapf(errors.ErrInvalidValue, "%s: %v", path, err)
		}
		cmds = append(cmds, &Command{
			id:          d.id,
			affinity:    aff,
			undoable:    d.undoable,
			description: d.description,
			path:        path,
			proto:       proto,
			env:         env,
		})
	}
	return cmds, nil
}

// LoadDir loads every *.lua file in dir in name order. A missing directory
// holds no commands.
func LoadDir(dir string, env Env) ([]*Command, error) {
	if dir == "" {
		return nil, nil
	}
	paths, err := filepath.Glob(filepath.Join(dir, "*.lua"))
	if err != nil {
		return nil, err
	}
	sort.Strings(paths)

	var cmds []*Command
	for _, p := range paths {
		loaded, err := LoadFile(p, env)
		if err != nil {
			return nil, err
		}
		cmds = append(cmds, loaded...)
	}
	return cmds, nil
}

// Register adds script commands to m.
func Register(m *command.Manager, cmds []*Command) error {
	for _, c := range cmds {
		if err := m.Register(c); err != nil {
			return errors.Wrapf(err, "%s", c.path)
		}
	}
	return nil
}
