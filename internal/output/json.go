package output

import (
	"time"

	"github.com/manav03panchal/cmdstack/internal/command"
	"github.com/manav03panchal/cmdstack/internal/object"
)

// JSONFormatter provides JSON-specific formatting.
type JSONFormatter struct {
	*Formatter
}

// NewJSONFormatter creates a new JSON formatter.
func NewJSONFormatter(f *Formatter) *JSONFormatter {
	return &JSONFormatter{Formatter: f}
}

// Entry states relative to the history cursor.
const (
	StateDone   = "done"
	StateUndone = "undone"
)

// HistoryEntryOutput represents one history entry in JSON output.
type HistoryEntryOutput struct {
	Position    int                   `json:"position"`
	Command     string                `json:"command"`
	Description string                `json:"description"`
	State       string                `json:"state"`
	ErrorCode   string                `json:"error_code"`
	Current     bool                  `json:"current"`
	Batch       bool                  `json:"batch,omitempty"`
	Context     string                `json:"context,omitempty"`
	CreatedAt   string                `json:"created_at"`
	Children    []*HistoryEntryOutput `json:"children,omitempty"`
}

// NewHistoryEntryOutput describes inst at position pos of a history whose
// cursor is index.
func NewHistoryEntryOutput(pos int, inst *command.Instance, index int) *HistoryEntryOutput {
	out := newEntryOutput(inst)
	out.Position = pos
	out.Current = pos == index
	out.State = StateDone
	if pos > index {
		out.State = StateUndone
	}
	return out
}

func newEntryOutput(inst *command.Instance) *HistoryEntryOutput {
	out := &HistoryEntryOutput{
		Command:     inst.CommandID(),
		Description: inst.Description(),
		ErrorCode:   inst.ErrorCode().String(),
		Batch:       inst.IsBatch(),
		Context:     string(inst.ContextObject()),
		CreatedAt:   inst.CreatedAt().Format(time.RFC3339),
	}
	if inst.IsBatch() {
		for _, c := range inst.Children() {
			out.Children = append(out.Children, newEntryOutput(c))
		}
	}
	return out
}

// HistoryResponse represents the history list output in JSON.
type HistoryResponse struct {
	Index   int                   `json:"index"`
	Count   int                   `json:"count"`
	CanUndo bool                  `json:"can_undo"`
	CanRedo bool                  `json:"can_redo"`
	Entries []*HistoryEntryOutput `json:"entries"`
}

// NewHistoryResponse describes a history and its cursor.
func NewHistoryResponse(entries []*command.Instance, index int) *HistoryResponse {
	resp := &HistoryResponse{
		Index:   index,
		Count:   len(entries),
		CanUndo: index >= 0,
		CanRedo: index < len(entries)-1,
		Entries: make([]*HistoryEntryOutput, 0, len(entries)),
	}
	for pos, inst := range entries {
		resp.Entries = append(resp.Entries, NewHistoryEntryOutput(pos, inst, index))
	}
	return resp
}

// ObjectOutput represents an object in JSON output.
type ObjectOutput struct {
	ID        string         `json:"id"`
	Type      string         `json:"type,omitempty"`
	Props     map[string]any `json:"props"`
	CreatedAt string         `json:"created_at"`
	UpdatedAt string         `json:"updated_at"`
}

// NewObjectOutput creates an ObjectOutput from an object.
func NewObjectOutput(o object.Object) *ObjectOutput {
	props := o.Props
	if props == nil {
		props = map[string]any{}
	}
	return &ObjectOutput{
		ID:        string(o.ID),
		Type:      o.Type,
		Props:     props,
		CreatedAt: o.CreatedAt.Format(time.RFC3339),
		UpdatedAt: o.UpdatedAt.Format(time.RFC3339),
	}
}

// ObjectsResponse represents the object list output in JSON.
type ObjectsResponse struct {
	Objects []*ObjectOutput `json:"objects"`
	Count   int             `json:"count"`
}

// NewObjectsResponse creates an ObjectsResponse.
func NewObjectsResponse(objs []object.Object) *ObjectsResponse {
	out := make([]*ObjectOutput, 0, len(objs))
	for _, o := range objs {
		out = append(out, NewObjectOutput(o))
	}
	return &ObjectsResponse{Objects: out, Count: len(out)}
}

// PropertyResponse represents one property read.
type PropertyResponse struct {
	Object string `json:"object"`
	Path   string `json:"path"`
	Value  any    `json:"value"`
}

// StepOutput represents one macro step.
type StepOutput struct {
	Command string `json:"command"`
	Binding string `json:"binding"`
	Offset  int    `json:"offset,omitempty"`
	Value   any    `json:"value,omitempty"`
}

// MacroOutput represents a macro in JSON output.
type MacroOutput struct {
	Name  string        `json:"name"`
	Steps []*StepOutput `json:"steps"`
}

// NewMacroOutput creates a MacroOutput from a compound command.
func NewMacroOutput(c *command.CompoundCommand) *MacroOutput {
	out := &MacroOutput{Name: c.ID()}
	for _, s := range c.Steps() {
		out.Steps = append(out.Steps, &StepOutput{
			Command: s.CommandID,
			Binding: s.Argument.Kind.String(),
			Offset:  s.Argument.Offset,
			Value:   s.Argument.Value,
		})
	}
	return out
}

// MacrosResponse represents the macro list output in JSON.
type MacrosResponse struct {
	Macros []*MacroOutput `json:"macros"`
}

// NewMacrosResponse creates a MacrosResponse.
func NewMacrosResponse(macros []*command.CompoundCommand) *MacrosResponse {
	out := make([]*MacroOutput, 0, len(macros))
	for _, m := range macros {
		out = append(out, NewMacroOutput(m))
	}
	return &MacrosResponse{Macros: out}
}

// ExecResponse represents the outcome of running a command.
type ExecResponse struct {
	Status      string `json:"status"`
	Command     string `json:"command"`
	Instance    string `json:"instance"`
	Description string `json:"description"`
	ErrorCode   string `json:"error_code"`
	Result      any    `json:"result,omitempty"`
	Error       string `json:"error,omitempty"`
	Recorded    bool   `json:"recorded"`
}

// NewExecResponse describes a completed instance. Recorded reports whether it
// entered the history.
func NewExecResponse(inst *command.Instance, recorded bool) *ExecResponse {
	resp := &ExecResponse{
		Status:      "ok",
		Command:     inst.CommandID(),
		Instance:    inst.ID(),
		Description: inst.Description(),
		ErrorCode:   inst.ErrorCode().String(),
		Result:      inst.Result(),
		Recorded:    recorded,
	}
	if err := inst.Err(); err != nil {
		resp.Status = "error"
		resp.Error = err.Error()
	}
	return resp
}

// NavigationResponse represents undo, redo and goto output.
type NavigationResponse struct {
	Status      string `json:"status"`
	Operation   string `json:"operation"`
	Index       int    `json:"index"`
	Description string `json:"description,omitempty"`
}

// CountResponse reports how many entries an operation affected.
type CountResponse struct {
	Status string `json:"status"`
	Count  int    `json:"count"`
}

// ErrorResponse represents an error in JSON.
type ErrorResponse struct {
	Status     string `json:"status"`
	Error      string `json:"error"`
	Message    string `json:"message,omitempty"`
	Suggestion string `json:"suggestion,omitempty"`
}

// PrintHistory outputs a history listing.
func (j *JSONFormatter) PrintHistory(entries []*command.Instance, index int) error {
	return j.JSON(NewHistoryResponse(entries, index))
}

// PrintObjects outputs an object listing.
func (j *JSONFormatter) PrintObjects(objs []object.Object) error {
	return j.JSON(NewObjectsResponse(objs))
}

// PrintMacros outputs a macro listing.
func (j *JSONFormatter) PrintMacros(macros []*command.CompoundCommand) error {
	return j.JSON(NewMacrosResponse(macros))
}

// PrintError outputs an error with its suggestion.
func (j *JSONFormatter) PrintError(err error, suggestion string) error {
	return j.JSON(&ErrorResponse{
		Status:     "error",
		Error:      err.Error(),
		Suggestion: suggestion,
	})
}
