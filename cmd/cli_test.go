package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/manav03panchal/cmdstack/internal/output"
)

// testContext runs CLI invocations against a temporary workspace.
type testContext struct {
	t      *testing.T
	dbDir  string
	config string
}

func setup(t *testing.T) *testContext {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("CMDSTACK_SCRIPT_DIR", filepath.Join(dir, "scripts"))
	return &testContext{
		t:      t,
		dbDir:  filepath.Join(dir, "db"),
		config: filepath.Join(dir, "config.yaml"),
	}
}

// resetFlags restores every flag to its default so invocations do not leak
// state into each other.
func resetFlags(c *cobra.Command) {
	reset := func(f *pflag.Flag) {
		_ = f.Value.Set(f.DefValue)
		f.Changed = false
	}
	c.Flags().VisitAll(reset)
	c.PersistentFlags().VisitAll(reset)
	for _, sub := range c.Commands() {
		resetFlags(sub)
	}
}

// run executes the CLI with JSON output and returns stdout and stderr.
func (tc *testContext) run(args ...string) (string, string, error) {
	tc.t.Helper()
	resetFlags(rootCmd)

	var stdout, stderr bytes.Buffer
	rootCmd.SetOut(&stdout)
	rootCmd.SetErr(&stderr)
	defer func() {
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
	}()

	full := append([]string{"--db", tc.dbDir, "--config", tc.config, "--format", "json", "--color", "never"}, args...)
	err := run(context.Background(), full)
	return stdout.String(), stderr.String(), err
}

func (tc *testContext) mustRun(args ...string) string {
	tc.t.Helper()
	out, stderr, err := tc.run(args...)
	require.NoError(tc.t, err, "stderr: %s\nstdout: %s", stderr, out)
	return out
}

func (tc *testContext) history() output.HistoryResponse {
	tc.t.Helper()
	var resp output.HistoryResponse
	require.NoError(tc.t, json.Unmarshal([]byte(tc.mustRun("history")), &resp))
	return resp
}

func (tc *testContext) property(object, path string) any {
	tc.t.Helper()
	var resp output.PropertyResponse
	require.NoError(tc.t, json.Unmarshal([]byte(tc.mustRun("get", object, path)), &resp))
	return resp.Value
}

// =============================================================================
// Object commands
// =============================================================================

func TestObjectLifecycle(t *testing.T) {
	tc := setup(t)

	var exec output.ExecResponse
	require.NoError(t, json.Unmarshal([]byte(tc.mustRun("new", "cube", "--type", "mesh", "size=1", "position.x=2")), &exec))
	assert.Equal(t, "ok", exec.Status)
	assert.Equal(t, "cube", exec.Result)
	assert.True(t, exec.Recorded)

	tc.mustRun("set", "cube", "size", "4")
	assert.Equal(t, 4.0, tc.property("cube", "size"))
	assert.Equal(t, 2.0, tc.property("cube", "position.x"))

	tc.mustRun("call", "cube", "increment", "size", "0.5")
	assert.Equal(t, 4.5, tc.property("cube", "size"))

	var objs output.ObjectsResponse
	require.NoError(t, json.Unmarshal([]byte(tc.mustRun("objects")), &objs))
	require.Equal(t, 1, objs.Count)
	assert.Equal(t, "mesh", objs.Objects[0].Type)

	tc.mustRun("rm", "cube")
	_, _, err := tc.run("get", "cube")
	assert.Error(t, err)

	assert.Equal(t, 4, tc.history().Count)
}

func TestSetUnknownObjectFails(t *testing.T) {
	tc := setup(t)

	_, stderr, err := tc.run("set", "ghost", "size", "1")
	require.Error(t, err)
	assert.Empty(t, stderr)
	assert.Equal(t, 0, tc.history().Count)
}

// =============================================================================
// History navigation
// =============================================================================

func TestUndoRedoGoto(t *testing.T) {
	tc := setup(t)
	tc.mustRun("new", "cube")
	tc.mustRun("set", "cube", "size", "1")
	tc.mustRun("set", "cube", "size", "2")

	var nav output.NavigationResponse
	require.NoError(t, json.Unmarshal([]byte(tc.mustRun("undo")), &nav))
	assert.Equal(t, "ok", nav.Status)
	assert.Equal(t, 1, nav.Index)
	assert.Equal(t, "Set cube.size = 2", nav.Description)
	assert.Equal(t, 1.0, tc.property("cube", "size"))

	tc.mustRun("redo")
	assert.Equal(t, 2.0, tc.property("cube", "size"))

	tc.mustRun("goto", "0")
	assert.Nil(t, tc.property("cube", "size"))

	h := tc.history()
	assert.Equal(t, 0, h.Index)
	assert.True(t, h.CanRedo)

	tc.mustRun("goto", "--", "-1")
	_, _, err := tc.run("get", "cube")
	assert.Error(t, err)

	require.NoError(t, json.Unmarshal([]byte(tc.mustRun("undo")), &nav))
	assert.Equal(t, "nothing_to_undo", nav.Status)

	_, _, err = tc.run("goto", "9")
	assert.Error(t, err)
}

func TestNewCommandTruncatesRedo(t *testing.T) {
	tc := setup(t)
	tc.mustRun("new", "cube")
	tc.mustRun("set", "cube", "size", "1")
	tc.mustRun("undo")
	tc.mustRun("set", "cube", "color", "red")

	h := tc.history()
	assert.Equal(t, 2, h.Count)
	assert.False(t, h.CanRedo)
}

func TestHistoryPruneClearExportImport(t *testing.T) {
	tc := setup(t)
	tc.mustRun("new", "cube")
	tc.mustRun("set", "cube", "size", "1")

	var count output.CountResponse
	require.NoError(t, json.Unmarshal([]byte(tc.mustRun("history", "prune", "--before", "yesterday")), &count))
	assert.Equal(t, 0, count.Count)

	file := filepath.Join(t.TempDir(), "history.jsonl")
	tc.mustRun("history", "export", file)
	_, err := os.Stat(file)
	require.NoError(t, err)

	require.NoError(t, json.Unmarshal([]byte(tc.mustRun("history", "clear")), &count))
	assert.Equal(t, 2, count.Count)
	assert.Equal(t, 0, tc.history().Count)

	tc.mustRun("history", "import", file)
	h := tc.history()
	assert.Equal(t, 2, h.Count)
	assert.Equal(t, 1, h.Index)

	tc.mustRun("undo")
	assert.Nil(t, tc.property("cube", "size"))

	_, _, err = tc.run("history", "prune", "--before", "xyzzy plugh")
	assert.Error(t, err)
}

// =============================================================================
// Batches and macros
// =============================================================================

func TestRunScript(t *testing.T) {
	tc := setup(t)
	script := filepath.Join(t.TempDir(), "scene.yaml")
	require.NoError(t, os.WriteFile(script, []byte(`
description: Build the scene
steps:
  - command: CreateObject
    args: {id: cube, type: mesh}
  - command: SetProperty
    args: {object: cube, path: size, value: 2}
`), 0o644))

	tc.mustRun("run", script)
	h := tc.history()
	require.Equal(t, 1, h.Count)
	assert.True(t, h.Entries[0].Batch)
	assert.Equal(t, "Build the scene", h.Entries[0].Description)
	assert.Equal(t, 2.0, tc.property("cube", "size"))

	tc.mustRun("undo")
	_, _, err := tc.run("get", "cube")
	assert.Error(t, err)
}

func TestRunScriptAbortOnError(t *testing.T) {
	tc := setup(t)
	script := filepath.Join(t.TempDir(), "broken.yaml")
	require.NoError(t, os.WriteFile(script, []byte(`
steps:
  - command: CreateObject
    args: {id: cube}
  - command: SetProperty
    args: {object: ghost, path: size, value: 2}
`), 0o644))

	out, _, err := tc.run("run", script, "--abort-on-error")
	require.Error(t, err)
	assert.Contains(t, out, `"aborted"`)

	assert.Equal(t, 0, tc.history().Count)
	_, _, err = tc.run("get", "cube")
	assert.Error(t, err)
}

func TestMacroCreateAndRun(t *testing.T) {
	tc := setup(t)
	tc.mustRun("new", "cube", "size=1")
	tc.mustRun("new", "sphere", "size=1")
	tc.mustRun("set", "cube", "size", "5")

	var macro output.MacroOutput
	require.NoError(t, json.Unmarshal([]byte(tc.mustRun("macro", "create", "2", "--name", "Grow")), &macro))
	assert.Equal(t, "Grow", macro.Name)
	require.Len(t, macro.Steps, 1)

	var macros output.MacrosResponse
	require.NoError(t, json.Unmarshal([]byte(tc.mustRun("macro", "list")), &macros))
	require.Len(t, macros.Macros, 1)

	tc.mustRun("macro", "run", "Grow", "--on", "sphere")
	assert.Equal(t, 5.0, tc.property("sphere", "size"))

	tc.mustRun("undo")
	assert.Equal(t, 1.0, tc.property("sphere", "size"))

	tc.mustRun("macro", "delete", "Grow")
	_, _, err := tc.run("macro", "run", "Grow")
	assert.Error(t, err)
}

func TestExecListAndScripts(t *testing.T) {
	tc := setup(t)
	dir := os.Getenv("CMDSTACK_SCRIPT_DIR")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "grow.lua"), []byte(`
command{
  id = "Double",
  execute = function(args)
    set(args.object, "size", (get(args.object, "size") or 1) * 2)
  end,
}
`), 0o644))

	var list struct {
		Commands []commandOutput `json:"commands"`
	}
	require.NoError(t, json.Unmarshal([]byte(tc.mustRun("exec", "--list")), &list))
	kinds := map[string]string{}
	for _, c := range list.Commands {
		kinds[c.ID] = c.Kind
	}
	assert.Equal(t, "script", kinds["Double"])
	assert.Equal(t, "builtin", kinds["SetProperty"])
	assert.NotContains(t, kinds, "BatchCommand")

	tc.mustRun("new", "cube", "size=3")
	tc.mustRun("exec", "Double", "--on", "cube")
	assert.Equal(t, 6.0, tc.property("cube", "size"))

	tc.mustRun("exec", "SetProperty", "object=cube", "path=color", "value=red")
	assert.Equal(t, "red", tc.property("cube", "color"))

	tc.mustRun("undo")
	tc.mustRun("undo")
	assert.Equal(t, 3.0, tc.property("cube", "size"))
}

// =============================================================================
// Misc
// =============================================================================

func TestConfigAndVersion(t *testing.T) {
	tc := setup(t)

	out := tc.mustRun("config")
	var cfg map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &cfg))
	assert.Contains(t, cfg, "Engine")

	_, _, err := tc.run("version")
	assert.NoError(t, err)
}

func TestErrorOutputIsJSON(t *testing.T) {
	tc := setup(t)

	out, _, err := tc.run("undo-everything")
	require.Error(t, err)
	assert.Empty(t, out)

	out, _, err = tc.run("get", "ghost")
	require.Error(t, err)
	var resp output.ErrorResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "error", resp.Status)
	assert.NotEmpty(t, resp.Suggestion)
}

func TestCompletion(t *testing.T) {
	name := rootCmd.Name()
	assert.Contains(t, completionCmd.Long, name+" completion bash")
	assert.NotContains(t, completionCmd.Long, "%[1]s")

	for _, shell := range completionShells {
		t.Run(shell, func(t *testing.T) {
			var out bytes.Buffer
			rootCmd.SetOut(&out)
			defer rootCmd.SetOut(nil)

			require.NoError(t, completionCmd.RunE(completionCmd, []string{shell}))
			assert.Contains(t, out.String(), name)
		})
	}
}
