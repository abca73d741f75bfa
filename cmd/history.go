package cmd

import (
	"bytes"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/manav03panchal/cmdstack/internal/command"
	"github.com/manav03panchal/cmdstack/internal/errors"
	"github.com/manav03panchal/cmdstack/internal/output"
	"github.com/manav03panchal/cmdstack/internal/parser"
	"github.com/manav03panchal/cmdstack/internal/storage"
)

// undoCmd moves the history cursor back one entry.
var undoCmd = &cobra.Command{
	Use:   "undo",
	Short: "Undo the last command",
	Long: `Undo the command at the history cursor and move the cursor back.

Examples:
  cmdstack set cube size 4
  cmdstack undo
  # cube.size is back to its previous value`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return navigate(cmd, command.OpUndo)
	},
}

// redoCmd moves the history cursor forward one entry.
var redoCmd = &cobra.Command{
	Use:   "redo",
	Short: "Redo the next command",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return navigate(cmd, command.OpRedo)
	},
}

// gotoCmd moves the history cursor to an entry.
var gotoCmd = &cobra.Command{
	Use:   "goto INDEX",
	Short: "Undo or redo until the cursor is at INDEX",
	Long: `Undo or redo until the history cursor is at INDEX. Index -1 undoes
everything; pass it after -- so it is not read as a flag.

Examples:
  cmdstack goto 3
  cmdstack goto -- -1`,
	Args: cobra.ExactArgs(1),
	RunE: runGoto,
}

// historyCmd lists the history.
var historyCmd = &cobra.Command{
	Use:     "history",
	Aliases: []string{"h", "log"},
	Short:   "Show the command history",
	Args:    cobra.NoArgs,
	RunE:    runHistory,
}

var historyFlagBefore string

var historyPruneCmd = &cobra.Command{
	Use:   "prune --before EXPR",
	Short: "Remove history entries older than a time expression",
	Long: `Remove history entries created before a point in time. The cursor
stays on the same surviving entry.

Examples:
  cmdstack history prune --before "2 hours ago"
  cmdstack history prune --before yesterday
  cmdstack history prune --before "last week"`,
	Args: cobra.NoArgs,
	RunE: runHistoryPrune,
}

var historyClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove every history entry",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		n := len(ws.Manager.History(cmd.Context()))
		ws.Manager.ClearHistory(cmd.Context())
		if err := save(cmd); err != nil {
			return err
		}
		return printCount(n, fmt.Sprintf("Cleared %d entries", n))
	},
}

var historyExportCmd = &cobra.Command{
	Use:   "export FILE",
	Short: "Write the history as a JSON stream",
	Long: `Write the history and its cursor as a JSON stream. Use '-' for stdout.

Examples:
  cmdstack history export history.jsonl
  cmdstack history export - | jq .`,
	Args: cobra.ExactArgs(1),
	RunE: runHistoryExport,
}

var historyImportCmd = &cobra.Command{
	Use:   "import FILE",
	Short: "Replace the history with a JSON stream",
	Args:  cobra.ExactArgs(1),
	RunE:  runHistoryImport,
}

func init() {
	historyPruneCmd.Flags().StringVar(&historyFlagBefore, "before", "", "Time expression (e.g. '2 hours ago')")
	_ = historyPruneCmd.MarkFlagRequired("before")

	historyCmd.AddCommand(historyPruneCmd)
	historyCmd.AddCommand(historyClearCmd)
	historyCmd.AddCommand(historyExportCmd)
	historyCmd.AddCommand(historyImportCmd)

	rootCmd.AddCommand(undoCmd)
	rootCmd.AddCommand(redoCmd)
	rootCmd.AddCommand(gotoCmd)
	rootCmd.AddCommand(historyCmd)
}

func runHistory(cmd *cobra.Command, args []string) error {
	c := cmd.Context()
	entries := ws.Manager.History(c)
	index := ws.Manager.CommandIndex(c)
	if ws.IsJSON() {
		return ws.JSONFormatter().PrintHistory(entries, index)
	}
	ws.CLIFormatter().PrintHistory(entries, index)
	return nil
}

// navigate undoes or redoes one entry. An empty direction is a no-op.
func navigate(cmd *cobra.Command, op command.Operation) error {
	c := cmd.Context()
	entries := ws.Manager.History(c)
	before := ws.Manager.CommandIndex(c)

	var err error
	entry := before
	if op == command.OpUndo {
		err = ws.Manager.Undo(c)
	} else {
		err = ws.Manager.Redo(c)
		entry = before + 1
	}

	if errors.Is(err, errors.ErrNoHistory) {
		if ws.IsJSON() {
			return ws.Formatter.JSON(&output.NavigationResponse{
				Status:    "nothing_to_" + op.String(),
				Operation: op.String(),
				Index:     before,
			})
		}
		ws.CLIFormatter().Muted(fmt.Sprintf("Nothing to %s", op))
		return nil
	}
	if serr := save(cmd); serr != nil {
		return serr
	}

	resp := &output.NavigationResponse{
		Status:      "ok",
		Operation:   op.String(),
		Index:       ws.Manager.CommandIndex(c),
		Description: entries[entry].Description(),
	}
	if err != nil {
		resp.Status = "error"
	}
	if ws.IsJSON() {
		if jerr := ws.Formatter.JSON(resp); jerr != nil {
			return jerr
		}
	} else if err == nil {
		verb := "Undid"
		if op == command.OpRedo {
			verb = "Redid"
		}
		ws.CLIFormatter().Success(fmt.Sprintf("%s: %s", verb, resp.Description))
	}
	return err
}

func runGoto(cmd *cobra.Command, args []string) error {
	n, err := strconv.Atoi(args[0])
	if err != nil {
		return errors.NewUserErrorWithField("index", args[0], "Index must be a number",
			"Use an index shown by 'cmdstack history'").WithCause(errors.ErrOutOfRange)
	}

	c := cmd.Context()
	moveErr := ws.Manager.MoveCommandIndex(c, n)
	if errors.Is(moveErr, errors.ErrOutOfRange) {
		return moveErr
	}
	if err := save(cmd); err != nil {
		return err
	}

	index := ws.Manager.CommandIndex(c)
	if ws.IsJSON() {
		resp := &output.NavigationResponse{Status: "ok", Operation: "goto", Index: index}
		if moveErr != nil {
			resp.Status = "error"
		}
		if err := ws.Formatter.JSON(resp); err != nil {
			return err
		}
		return moveErr
	}
	if moveErr == nil {
		ws.CLIFormatter().Success(fmt.Sprintf("Cursor at %d", index))
	}
	return moveErr
}

func runHistoryPrune(cmd *cobra.Command, args []string) error {
	before, err := parser.ParseTime(historyFlagBefore)
	if err != nil {
		return err
	}

	n := ws.Manager.RemoveCommands(cmd.Context(), func(inst *command.Instance) bool {
		return inst.CreatedAt().Before(before)
	})
	if err := save(cmd); err != nil {
		return err
	}
	return printCount(n, fmt.Sprintf("Removed %d entries older than %s", n, before.Format(time.RFC3339)))
}

func runHistoryExport(cmd *cobra.Command, args []string) error {
	var buf bytes.Buffer
	if err := ws.Manager.WriteHistory(cmd.Context(), &buf); err != nil {
		return err
	}

	if args[0] == "-" {
		_, err := ws.Formatter.Writer.Write(buf.Bytes())
		return err
	}
	if err := storage.SafeWrite(args[0], buf.Bytes(), 0o644); err != nil {
		return err
	}
	n := len(ws.Manager.History(cmd.Context()))
	return printCount(n, fmt.Sprintf("Exported %d entries to %s", n, args[0]))
}

func runHistoryImport(cmd *cobra.Command, args []string) error {
	f, err := os.Open(args[0])
	if err != nil {
		return errors.NewUserErrorWithField("file", args[0], "Cannot open history file", "Check the file path").WithCause(err)
	}
	defer f.Close()

	if err := ws.Manager.ReadHistory(cmd.Context(), f); err != nil {
		return err
	}
	if err := save(cmd); err != nil {
		return err
	}
	n := len(ws.Manager.History(cmd.Context()))
	return printCount(n, fmt.Sprintf("Imported %d entries", n))
}

func printCount(n int, message string) error {
	if ws.IsJSON() {
		return ws.Formatter.JSON(&output.CountResponse{Status: "ok", Count: n})
	}
	ws.CLIFormatter().Success(message)
	return nil
}
