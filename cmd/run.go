package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/manav03panchal/cmdstack/internal/command"
	"github.com/manav03panchal/cmdstack/internal/errors"
	"github.com/manav03panchal/cmdstack/internal/output"
	"github.com/manav03panchal/cmdstack/internal/validate"
)

var runFlagAbortOnError bool

// runCmd runs a YAML script as one batch.
var runCmd = &cobra.Command{
	Use:   "run SCRIPT",
	Short: "Run a YAML script of commands as one undoable batch",
	Long: `Run the steps of a YAML script inside one batch. The whole script
enters the history as a single entry and is undone with one 'cmdstack undo'.

A failed step is reported and the script carries on, unless --abort-on-error is
given: then the steps already run are rolled back and nothing is recorded.

Script format:
  description: Build the scene
  steps:
    - command: CreateObject
      args: {id: cube, type: mesh}
    - command: SetProperty
      args: {object: cube, path: size, value: 2}
    - command: Grow
      on: cube

Examples:
  cmdstack run scene.yaml
  cmdstack run scene.yaml --abort-on-error`,
	Args: cobra.ExactArgs(1),
	RunE: runScript,
}

func init() {
	runCmd.Flags().BoolVar(&runFlagAbortOnError, "abort-on-error", false,
		"Roll back the whole script when a step fails")
	rootCmd.AddCommand(runCmd)
}

// Script is a batch of steps read from YAML.
type Script struct {
	Description string       `yaml:"description"`
	Steps       []ScriptStep `yaml:"steps"`
}

// ScriptStep is one command of a Script.
type ScriptStep struct {
	Command string         `yaml:"command"`
	Args    map[string]any `yaml:"args"`
	On      string         `yaml:"on"`
}

// LoadScript reads and checks a YAML script.
func LoadScript(data []byte) (*Script, error) {
	var s Script
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, errors.NewUserError("Invalid script", "Check the YAML syntax").WithCause(err)
	}
	if len(s.Steps) == 0 {
		return nil, errors.NewUserError("Script has no steps", "Add a 'steps' list").
			WithCause(errors.ErrInvalidArguments)
	}
	for n, step := range s.Steps {
		if step.Command == "" {
			return nil, errors.NewUserErrorWithField("command", fmt.Sprintf("step %d", n+1),
				"Step has no command", "Every step needs a 'command' key").
				WithCause(errors.ErrInvalidArguments)
		}
	}
	if s.Description == "" {
		s.Description = fmt.Sprintf("Run %d steps", len(s.Steps))
	}
	return &s, nil
}

// stepResult is the outcome of one script step.
type stepResult struct {
	Step      int    `json:"step"`
	Command   string `json:"command"`
	ErrorCode string `json:"error_code"`
	Error     string `json:"error,omitempty"`
}

// runResponse represents the outcome of a script run.
type runResponse struct {
	Status      string                     `json:"status"`
	Description string                     `json:"description"`
	Steps       []stepResult               `json:"steps"`
	Entry       *output.HistoryEntryOutput `json:"entry,omitempty"`
}

func runScript(cmd *cobra.Command, args []string) error {
	data, err := os.ReadFile(args[0])
	if err != nil {
		return errors.NewUserErrorWithField("script", args[0], "Cannot read script", "Check the file path").WithCause(err)
	}
	s, err := LoadScript(data)
	if err != nil {
		return err
	}

	c := cmd.Context()
	if _, err := ws.Manager.BeginBatch(c); err != nil {
		return err
	}

	resp := &runResponse{Status: "ok", Description: s.Description}
	var failed error
	for n, step := range s.Steps {
		res, err := runStep(cmd, step)
		res.Step = n + 1
		resp.Steps = append(resp.Steps, res)
		if err == nil {
			continue
		}
		failed = errors.Wrapf(err, "step %d (%s)", n+1, step.Command)
		if runFlagAbortOnError {
			break
		}
	}

	if failed != nil && runFlagAbortOnError {
		if err := ws.Manager.AbortBatch(c); err != nil {
			return err
		}
		resp.Status = "aborted"
		if err := printRun(resp); err != nil {
			return err
		}
		return reportedError{failed}
	}

	batch, err := ws.Manager.EndBatch(c, validate.SanitizeDescription(s.Description))
	if err != nil {
		return err
	}
	if err := save(cmd); err != nil {
		return err
	}

	if batch != nil && recorded(c, batch) {
		idx := ws.Manager.CommandIndex(c)
		resp.Entry = output.NewHistoryEntryOutput(idx, batch, idx)
	}
	if failed != nil {
		resp.Status = "partial"
	}
	if err := printRun(resp); err != nil {
		return err
	}
	if failed != nil {
		return reportedError{failed}
	}
	return nil
}

func runStep(cmd *cobra.Command, step ScriptStep) (stepResult, error) {
	res := stepResult{Command: step.Command}
	fields := step.Args
	if fields == nil {
		fields = map[string]any{}
	}

	cmdArgs, err := buildArgs(step.Command, fields, command.ObjectID(step.On))
	if err != nil {
		res.ErrorCode = command.CodeInvalidArguments.String()
		res.Error = err.Error()
		return res, err
	}
	inst, err := ws.Manager.Execute(cmd.Context(), step.Command, cmdArgs)
	if err != nil {
		res.ErrorCode = command.CodeInvalidArguments.String()
		res.Error = err.Error()
		return res, err
	}
	res.ErrorCode = inst.ErrorCode().String()
	if err := inst.Err(); err != nil {
		res.Error = err.Error()
		return res, err
	}
	return res, nil
}

func printRun(resp *runResponse) error {
	if ws.IsJSON() {
		return ws.Formatter.JSON(resp)
	}

	cli := ws.CLIFormatter()
	for _, r := range resp.Steps {
		if r.Error != "" {
			cli.Error(fmt.Sprintf("%d. %s: %s", r.Step, r.Command, r.Error))
			continue
		}
		cli.Muted(fmt.Sprintf("%d. %s", r.Step, r.Command))
	}
	switch resp.Status {
	case "aborted":
		cli.Warning("Script aborted, all steps rolled back")
	case "partial":
		cli.Warning(resp.Description + " (with failures)")
	default:
		cli.Success(resp.Description)
	}
	return nil
}
