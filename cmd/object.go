package cmd

import (
	"github.com/spf13/cobra"

	"github.com/manav03panchal/cmdstack/internal/command"
	"github.com/manav03panchal/cmdstack/internal/object"
	"github.com/manav03panchal/cmdstack/internal/output"
	"github.com/manav03panchal/cmdstack/internal/parser"
)

var newFlagType string

// newCmd creates an object.
var newCmd = &cobra.Command{
	Use:     "new NAME [KEY=VALUE...]",
	Aliases: []string{"create", "mk"},
	Short:   "Create an object",
	Long: `Create an object with optional initial properties.

Values are parsed as JSON when possible: numbers, booleans, null, lists and
objects. Anything else is a string. Dotted keys create nested properties.

Examples:
  cmdstack new cube
  cmdstack new cube --type mesh size=2 color=red
  cmdstack new light position.x=1.5 position.y=3`,
	Args: cobra.MinimumNArgs(1),
	RunE: runNew,
}

// rmCmd deletes an object.
var rmCmd = &cobra.Command{
	Use:               "rm OBJECT",
	Aliases:           []string{"delete", "del"},
	Short:             "Delete an object",
	Args:              cobra.ExactArgs(1),
	ValidArgsFunction: completeObjects,
	RunE: func(cmd *cobra.Command, args []string) error {
		return execute(cmd, object.CmdDeleteObject, command.ObjectID(args[0]))
	},
}

// setCmd sets one property.
var setCmd = &cobra.Command{
	Use:   "set OBJECT PATH VALUE",
	Short: "Set a property",
	Long: `Set a property of an object. A value of null removes the property.

Examples:
  cmdstack set cube size 4
  cmdstack set cube position.x 1.5
  cmdstack set cube tags '["a","b"]'
  cmdstack set cube color null`,
	Args:              cobra.ExactArgs(3),
	ValidArgsFunction: completeObjects,
	RunE: func(cmd *cobra.Command, args []string) error {
		return execute(cmd, object.CmdSetProperty, object.SetPropertyArgs{
			Object: command.ObjectID(args[0]),
			Path:   args[1],
			Value:  parser.ParseValue(args[2]),
		})
	},
}

// callCmd invokes a method.
var callCmd = &cobra.Command{
	Use:   "call OBJECT METHOD [PARAMS...]",
	Short: "Invoke a method on an object",
	Long: `Invoke a method on an object. Undoable methods enter the history.

Built-in methods:
  increment PATH [BY]   add BY (default 1) to a number
  append PATH VALUE     append VALUE to a list
  touch                 update the modification time (not undoable)

Examples:
  cmdstack call cube increment size
  cmdstack call cube increment size 0.5
  cmdstack call cube append tags red`,
	Args:              cobra.MinimumNArgs(2),
	ValidArgsFunction: completeObjects,
	RunE: func(cmd *cobra.Command, args []string) error {
		return execute(cmd, object.CmdInvokeMethod, object.InvokeArgs{
			Object: command.ObjectID(args[0]),
			Method: args[1],
			Params: parser.ParseValues(args[2:]),
		})
	},
}

// getCmd reads an object or one of its properties.
var getCmd = &cobra.Command{
	Use:               "get OBJECT [PATH]",
	Aliases:           []string{"show"},
	Short:             "Show an object or one property",
	Args:              cobra.RangeArgs(1, 2),
	ValidArgsFunction: completeObjects,
	RunE:              runGet,
}

// objectsCmd lists objects.
var objectsCmd = &cobra.Command{
	Use:     "objects",
	Aliases: []string{"ls", "list"},
	Short:   "List objects",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		objs := ws.Objects.List()
		if ws.IsJSON() {
			return ws.JSONFormatter().PrintObjects(objs)
		}
		ws.CLIFormatter().PrintObjects(objs)
		return nil
	},
}

func init() {
	newCmd.Flags().StringVarP(&newFlagType, "type", "t", "", "Object type")

	rootCmd.AddCommand(newCmd)
	rootCmd.AddCommand(rmCmd)
	rootCmd.AddCommand(setCmd)
	rootCmd.AddCommand(callCmd)
	rootCmd.AddCommand(getCmd)
	rootCmd.AddCommand(objectsCmd)
}

func runNew(cmd *cobra.Command, args []string) error {
	props, err := parser.ParseAssignments(args[1:])
	if err != nil {
		return err
	}
	return execute(cmd, object.CmdCreateObject, object.CreateArgs{
		ID:    command.ObjectID(args[0]),
		Type:  newFlagType,
		Props: props,
	})
}

func runGet(cmd *cobra.Command, args []string) error {
	id := command.ObjectID(args[0])
	obj, err := ws.Objects.Get(id)
	if err != nil {
		return err
	}

	if len(args) == 1 {
		if ws.IsJSON() {
			return ws.Formatter.JSON(output.NewObjectOutput(obj))
		}
		ws.CLIFormatter().PrintObject(obj)
		return nil
	}

	v, err := ws.Objects.GetValue(cmd.Context(), id, args[1])
	if err != nil {
		return err
	}
	if ws.IsJSON() {
		return ws.Formatter.JSON(&output.PropertyResponse{Object: args[0], Path: args[1], Value: v})
	}
	ws.Formatter.Println(output.FormatValue(v))
	return nil
}
