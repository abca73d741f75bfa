package cmd

import (
	"encoding/json"

	"github.com/spf13/cobra"

	"github.com/manav03panchal/cmdstack/internal/command"
	"github.com/manav03panchal/cmdstack/internal/errors"
	"github.com/manav03panchal/cmdstack/internal/object"
	"github.com/manav03panchal/cmdstack/internal/output"
	"github.com/manav03panchal/cmdstack/internal/parser"
	"github.com/manav03panchal/cmdstack/internal/script"
)

// Exec command flags.
var (
	execFlagOn   string
	execFlagList bool
)

// execCmd runs any registered command.
var execCmd = &cobra.Command{
	Use:   "exec COMMAND [KEY=VALUE...]",
	Short: "Run a registered command",
	Long: `Run any registered command by id: built-in object commands, Lua
commands from the script directory and macros.

Arguments are given as KEY=VALUE pairs and converted to the command's argument
type. --on sets the object the command acts on.

Examples:
  cmdstack exec --list
  cmdstack exec SetProperty object=cube path=size value=3
  cmdstack exec Grow --on cube
  cmdstack exec Macro1 --on sphere`,
	ValidArgsFunction: completeCommands,
	RunE:              runExec,
}

func init() {
	execCmd.Flags().StringVar(&execFlagOn, "on", "", "Object the command acts on")
	execCmd.Flags().BoolVarP(&execFlagList, "list", "l", false, "List registered commands")
	execCmd.RegisterFlagCompletionFunc("on", completeObjects)

	rootCmd.AddCommand(execCmd)
}

func runExec(cmd *cobra.Command, args []string) error {
	if execFlagList {
		return listCommands()
	}
	if len(args) == 0 {
		return errors.NewUserError("a command id is required", "Use 'cmdstack exec --list' to see registered commands")
	}

	fields, err := parser.ParseAssignments(args[1:])
	if err != nil {
		return err
	}
	cmdArgs, err := buildArgs(args[0], fields, command.ObjectID(execFlagOn))
	if err != nil {
		return err
	}
	return execute(cmd, args[0], cmdArgs)
}

// argDecoders convert KEY=VALUE fields into the argument types of the
// built-in commands.
var argDecoders = map[string]func(map[string]any) (any, error){
	object.CmdSetProperty:  decodeArgs[object.SetPropertyArgs],
	object.CmdInvokeMethod: decodeArgs[object.InvokeArgs],
	object.CmdCreateObject: decodeArgs[object.CreateArgs],
}

func decodeArgs[T any](fields map[string]any) (any, error) {
	var out T
	data, err := json.Marshal(fields)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, errors.NewUserError("arguments do not fit the command", "Check the argument names and value types").
			WithCause(errors.ErrInvalidArguments)
	}
	return out, nil
}

// buildArgs shapes fields for the command registered under id. on, when set,
// names the object the command acts on.
func buildArgs(id string, fields map[string]any, on command.ObjectID) (any, error) {
	cmd, ok := ws.Manager.Find(id)
	if !ok {
		return nil, errors.Wrapf(errors.ErrInvalidArguments, "unknown command %q", id)
	}

	switch cmd.(type) {
	case *command.CompoundCommand:
		return command.MacroArgs{Context: on}, nil
	case *script.Command:
		a := script.Args(fields)
		if on != "" {
			return a.WithObject(on), nil
		}
		return a, nil
	}

	if id == object.CmdDeleteObject {
		if on == "" {
			if v, ok := fields["object"].(string); ok {
				on = command.ObjectID(v)
			}
		}
		return on, nil
	}

	if on != "" {
		fields["object"] = string(on)
	}
	if decode, ok := argDecoders[id]; ok {
		return decode(fields)
	}
	if len(fields) == 0 {
		return nil, nil
	}
	return fields, nil
}

// commandOutput describes one registered command.
type commandOutput struct {
	ID       string `json:"id"`
	Kind     string `json:"kind"`
	Affinity string `json:"affinity"`
	Source   string `json:"source,omitempty"`
}

func listCommands() error {
	ids := ws.Manager.Commands()
	out := make([]commandOutput, 0, len(ids))
	for _, id := range ids {
		c, ok := ws.Manager.Find(id)
		if !ok || id == command.BatchCommandID {
			continue
		}
		entry := commandOutput{ID: id, Kind: "builtin", Affinity: c.Affinity().String()}
		switch v := c.(type) {
		case *command.CompoundCommand:
			entry.Kind = "macro"
		case *script.Command:
			entry.Kind = "script"
			entry.Source = v.Path()
		}
		out = append(out, entry)
	}

	if ws.IsJSON() {
		return ws.Formatter.JSON(map[string]any{"commands": out})
	}

	rows := make([]output.TableRow, 0, len(out))
	for _, c := range out {
		rows = append(rows, output.TableRow{Columns: []string{c.ID, c.Kind, c.Affinity, c.Source}})
	}
	ws.CLIFormatter().PrintTable([]string{"ID", "KIND", "AFFINITY", "SOURCE"}, rows)
	return nil
}
