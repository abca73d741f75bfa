package script

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/manav03panchal/cmdstack/internal/command"
	"github.com/manav03panchal/cmdstack/internal/errors"
	"github.com/manav03panchal/cmdstack/internal/object"
)

const growScript = `
command{
  id = "Grow",
  affinity = "ui",
  description = "Double the size of an object",
  execute = function(args)
    local size = get(args.object, "size") or 1
    set(args.object, "size", size * 2)
    return size * 2
  end,
}

command{
  id = "Probe",
  affinity = "worker",
  undoable = false,
  execute = function(args)
    progress(0.5)
    return { exists = exists(args.object), methods = { "a", "b" } }
  end,
}
`

func setup(t *testing.T, src string, timeout time.Duration) (*command.Manager, *object.Store) {
	t.Helper()
	s := object.NewStore()
	m := command.NewManager(command.WithAccessor(s), command.WithResolver(s))
	t.Cleanup(func() { _ = m.Close() })

	cmds, err := Load("test.lua", []byte(src), Env{Accessor: s, Resolver: s, Timeout: timeout})
	require.NoError(t, err)
	require.NoError(t, Register(m, cmds))
	return m, s
}

func TestLoad(t *testing.T) {
	t.Run("declares commands with their settings", func(t *testing.T) {
		cmds, err := Load("grow.lua", []byte(growScript), Env{})
		require.NoError(t, err)
		require.Len(t, cmds, 2)

		assert.Equal(t, "Grow", cmds[0].ID())
		assert.Equal(t, command.AffinityUI, cmds[0].Affinity())
		assert.True(t, cmds[0].CanUndo(nil))
		assert.Equal(t, "Double the size of an object", cmds[0].Description())

		assert.Equal(t, "Probe", cmds[1].ID())
		assert.Equal(t, command.AffinityWorker, cmds[1].Affinity())
		assert.False(t, cmds[1].CanUndo(nil))
	})

	t.Run("rejects broken scripts", func(t *testing.T) {
		tests := []struct {
			name string
			src  string
		}{
			{"syntax error", "command{"},
			{"no commands", "local x = 1"},
			{"missing execute", `command{ id = "A" }`},
			{"bad id", `command{ id = "1bad", execute = function() end }`},
			{"bad affinity", `command{ id = "A", affinity = "gpu", execute = function() end }`},
			{"top level object access", `get("a", "b")`},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				_, err := Load("bad.lua", []byte(tt.src), Env{})
				assert.ErrorIs(t, err, errors.ErrInvalidValue)
			})
		}
	})

	t.Run("duplicate ids in one file", func(t *testing.T) {
		src := `command{ id = "A", execute = function() end }
command{ id = "A", execute = function() end }`
		_, err := Load("dup.lua", []byte(src), Env{})
		assert.ErrorIs(t, err, errors.ErrAlreadyExists)
	})

	t.Run("sandbox has no file access", func(t *testing.T) {
		src := `command{ id = "A", execute = function() return dofile == nil and io == nil and os == nil end }`
		m, _ := setup(t, src, 0)
		inst, err := m.Execute(context.Background(), "A", nil)
		require.NoError(t, err)
		assert.Equal(t, true, inst.Result())
	})
}

func TestLoadDir(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.lua"), []byte(`command{ id = "B", execute = function() end }`), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.lua"), []byte(`command{ id = "A", execute = function() end }`), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignored"), 0644))

	cmds, err := LoadDir(dir, Env{})
	require.NoError(t, err)
	require.Len(t, cmds, 2)
	assert.Equal(t, "A", cmds[0].ID())
	assert.Equal(t, filepath.Join(dir, "a.lua"), cmds[0].Path())

	cmds, err = LoadDir("", Env{})
	require.NoError(t, err)
	assert.Empty(t, cmds)

	cmds, err = LoadDir(filepath.Join(dir, "missing"), Env{})
	require.NoError(t, err)
	assert.Empty(t, cmds)
}

func TestExecute(t *testing.T) {
	ctx := context.Background()

	t.Run("mutations are undoable", func(t *testing.T) {
		m, s := setup(t, growScript, 0)
		_, err := s.Create("cube", "", map[string]any{"size": 3.0})
		require.NoError(t, err)

		inst, err := m.Execute(ctx, "Grow", Args{"object": "cube"})
		require.NoError(t, err)
		require.Equal(t, command.CodeOK, inst.ErrorCode())
		assert.Equal(t, 6.0, inst.Result())
		assert.Equal(t, "Grow cube", inst.Description())

		require.NoError(t, m.Undo(ctx))
		v, _ := s.GetValue(ctx, "cube", "size")
		assert.Equal(t, 3.0, v)

		require.NoError(t, m.Redo(ctx))
		v, _ = s.GetValue(ctx, "cube", "size")
		assert.Equal(t, 6.0, v)
	})

	t.Run("worker bodies report progress and return tables", func(t *testing.T) {
		m, s := setup(t, growScript, 0)
		_, _ = s.Create("cube", "", nil)

		inst, err := m.Execute(ctx, "Probe", Args{"object": "cube"})
		require.NoError(t, err)
		require.Equal(t, command.CodeOK, inst.ErrorCode())
		assert.Equal(t, map[string]any{"exists": true, "methods": []any{"a", "b"}}, inst.Result())
		assert.Equal(t, 0.5, inst.Progress())
		assert.Empty(t, m.History(ctx))
	})

	t.Run("lua errors fail the instance and roll back", func(t *testing.T) {
		src := `command{ id = "Half", execute = function(args)
  set(args.object, "size", 1)
  error("boom")
end }`
		m, s := setup(t, src, 0)
		_, _ = s.Create("cube", "", map[string]any{"size": 8.0})

		inst, err := m.Execute(ctx, "Half", Args{"object": "cube"})
		require.NoError(t, err)
		assert.Equal(t, command.CodeFailed, inst.ErrorCode())
		assert.Contains(t, inst.Err().Error(), "boom")

		v, _ := s.GetValue(ctx, "cube", "size")
		assert.Equal(t, 8.0, v)
	})

	t.Run("runaway scripts time out", func(t *testing.T) {
		src := `command{ id = "Spin", execute = function() while true do end end }`
		m, _ := setup(t, src, 20*time.Millisecond)

		inst, err := m.Execute(ctx, "Spin", nil)
		require.NoError(t, err)
		assert.Equal(t, command.CodeFailed, inst.ErrorCode())
		assert.Contains(t, inst.Err().Error(), "timed out")
	})

	t.Run("invoke calls store methods", func(t *testing.T) {
		src := `command{ id = "Bump", execute = function(args) return invoke(args.object, "increment", "count", 3) end }`
		m, s := setup(t, src, 0)
		_, _ = s.Create("cube", "", nil)

		inst, err := m.Execute(ctx, "Bump", Args{"object": "cube"})
		require.NoError(t, err)
		assert.Equal(t, 3.0, inst.Result())

		require.NoError(t, m.Undo(ctx))
		v, _ := s.GetValue(ctx, "cube", "count")
		assert.Equal(t, 0.0, v)
	})

	t.Run("rejects foreign argument types", func(t *testing.T) {
		m, _ := setup(t, growScript, 0)
		_, err := m.Queue(ctx, "Grow", 42)
		assert.ErrorIs(t, err, errors.ErrInvalidArguments)
	})
}

func TestArgs(t *testing.T) {
	a := Args{"object": "cube", "n": 1.0}
	assert.Equal(t, command.ObjectID("cube"), a.ContextObject())

	moved := a.WithObject("sphere").(Args)
	assert.Equal(t, command.ObjectID("sphere"), moved.ContextObject())
	assert.Equal(t, 1.0, moved["n"])
	assert.Equal(t, command.ObjectID("cube"), a.ContextObject())

	assert.Equal(t, command.ObjectID(""), Args{}.ContextObject())
}
