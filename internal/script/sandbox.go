package script

import (
	"context"
	"fmt"
	"sort"

	lua "github.com/yuin/gopher-lua"

	"github.com/manav03panchal/cmdstack/internal/command"
	"github.com/manav03panchal/cmdstack/internal/logging"
)

// newSandbox creates a state with only the base, string, table and math
// libraries, without file loading.
func newSandbox() *lua.LState {
	L := lua.NewState(lua.Options{SkipOpenLibs: true})
	for _, lib := range []struct {
		name string
		fn   lua.LGFunction
	}{
		{lua.BaseLibName, lua.OpenBase},
		{lua.StringLibName, lua.OpenString},
		{lua.TabLibName, lua.OpenTable},
		{lua.MathLibName, lua.OpenMath},
	} {
		L.Push(L.NewFunction(lib.fn))
		L.Push(lua.LString(lib.name))
		L.Call(1, 0)
	}
	for _, name := range []string{"dofile", "loadfile", "load", "loadstring", "require", "module"} {
		L.SetGlobal(name, lua.LNil)
	}
	return L
}

// installAPI binds the object functions to env. Calls made through an empty
// env raise errors, which is what happens while a file is being loaded.
func installAPI(L *lua.LState, ctx context.Context, env Env) {
	logger := logging.Component("script")

	L.SetGlobal("get", L.NewFunction(func(L *lua.LState) int {
		if env.Accessor == nil {
			L.RaiseError("get is not available here")
			return 0
		}
		id := command.ObjectID(L.CheckString(1))
		v, err := env.Accessor.GetValue(ctx, id, L.CheckString(2))
		if err != nil {
			L.RaiseError("%v", err)
			return 0
		}
		L.Push(toLValue(L, v))
		return 1
	}))

	L.SetGlobal("set", L.NewFunction(func(L *lua.LState) int {
		if env.Accessor == nil {
			L.RaiseError("set is not available here")
			return 0
		}
		id := command.ObjectID(L.CheckString(1))
		if err := env.Accessor.SetValue(ctx, id, L.CheckString(2), fromLValue(L.Get(3))); err != nil {
			L.RaiseError("%v", err)
		}
		return 0
	}))

	L.SetGlobal("invoke", L.NewFunction(func(L *lua.LState) int {
		if env.Accessor == nil {
			L.RaiseError("invoke is not available here")
			return 0
		}
		id := command.ObjectID(L.CheckString(1))
		method := L.CheckString(2)
		var params []any
		for n := 3; n <= L.GetTop(); n++ {
			params = append(params, fromLValue(L.Get(n)))
		}
		result, err := env.Accessor.Invoke(ctx, id, method, params)
		if err != nil {
			L.RaiseError("%v", err)
			return 0
		}
		L.Push(toLValue(L, result))
		return 1
	}))

	L.SetGlobal("exists", L.NewFunction(func(L *lua.LState) int {
		if env.Resolver == nil {
			L.RaiseError("exists is not available here")
			return 0
		}
		L.Push(lua.LBool(env.Resolver.Exists(command.ObjectID(L.CheckString(1)))))
		return 1
	}))

	L.SetGlobal("progress", L.NewFunction(func(L *lua.LState) int {
		fraction := float64(L.CheckNumber(1))
		if inst := command.Executing(ctx); inst != nil {
			inst.ReportProgress(fraction)
		}
		return 0
	}))

	L.SetGlobal("log", L.NewFunction(func(L *lua.LState) int {
		logger.Info(L.CheckString(1))
		return 0
	}))
}

func toLValue(L *lua.LState, v any) lua.LValue {
	switch x := v.(type) {
	case nil:
		return lua.LNil
	case string:
		return lua.LString(x)
	case command.ObjectID:
		return lua.LString(x)
	case bool:
		return lua.LBool(x)
	case int:
		return lua.LNumber(float64(x))
	case int64:
		return lua.LNumber(float64(x))
	case float64:
		return lua.LNumber(x)
	case map[string]any:
		tbl := L.NewTable()
		keys := make([]string, 0, len(x))
		for k := range x {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			tbl.RawSetString(k, toLValue(L, x[k]))
		}
		return tbl
	case []any:
		tbl := L.NewTable()
		for i, item := range x {
			tbl.RawSetInt(i+1, toLValue(L, item))
		}
		return tbl
	default:
		return lua.LString(fmt.Sprint(x))
	}
}

// fromLValue converts a Lua value; tables with keys 1..n become lists.
func fromLValue(v lua.LValue) any {
	switch v.Type() {
	case lua.LTNil:
		return nil
	case lua.LTBool:
		return lua.LVAsBool(v)
	case lua.LTNumber:
		return float64(v.(lua.LNumber))
	case lua.LTString:
		return v.String()
	case lua.LTTable:
		t := v.(*lua.LTable)
		if n := t.MaxN(); n > 0 && n == countKeys(t) {
			list := make([]any, 0, n)
			for i := 1; i <= n; i++ {
				list = append(list, fromLValue(t.RawGetInt(i)))
			}
			return list
		}
		obj := make(map[string]any)
		t.ForEach(func(k, val lua.LValue) {
			obj[k.String()] = fromLValue(val)
		})
		return obj
	default:
		return nil
	}
}

func countKeys(t *lua.LTable) int {
	n := 0
	t.ForEach(func(lua.LValue, lua.LValue) { n++ })
	return n
}
