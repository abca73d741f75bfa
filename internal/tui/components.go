package tui

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/manav03panchal/cmdstack/internal/command"
	"github.com/manav03panchal/cmdstack/internal/output"
	"github.com/manav03panchal/cmdstack/internal/validate"
)

// StatusComponent displays the history cursor.
type StatusComponent struct {
	Index int
	Count int
	Width int
}

// NewStatusComponent creates a new status component.
func NewStatusComponent(index, count, width int) *StatusComponent {
	return &StatusComponent{Index: index, Count: count, Width: width}
}

// Percentage is the share of the history currently applied.
func (sc *StatusComponent) Percentage() float64 {
	if sc.Count == 0 {
		return 0
	}
	return float64(sc.Index+1) * 100 / float64(sc.Count)
}

// View renders the status component.
func (sc *StatusComponent) View() string {
	var content strings.Builder

	if sc.Count == 0 {
		content.WriteString(StyleMuted.Render("History is empty"))
		return StyleStatusBox.Width(sc.Width - 4).Render(content.String())
	}

	content.WriteString(fmt.Sprintf("Cursor %s of %d",
		StyleCursor.Render(fmt.Sprintf("%d", sc.Index+1)), sc.Count))
	content.WriteString("\n")

	barWidth := sc.Width - 12
	if barWidth < 10 {
		barWidth = 10
	}
	content.WriteString(ProgressBar(sc.Percentage(), barWidth))
	content.WriteString("\n")

	var flags []string
	if sc.Index >= 0 {
		flags = append(flags, StyleSuccess.Render("undo available"))
	}
	if sc.Index < sc.Count-1 {
		flags = append(flags, StyleWarning.Render(fmt.Sprintf("%d to redo", sc.Count-1-sc.Index)))
	}
	content.WriteString(strings.Join(flags, "  "))

	return StyleStatusBox.Width(sc.Width - 4).Render(content.String())
}

// EntriesComponent displays a window of history entries around the
// selection.
type EntriesComponent struct {
	Entries  []*command.Instance
	Index    int
	Selected int
	Width    int
	Limit    int
	Now      time.Time
}

// Window returns the half-open range of entries that fit in Limit rows while
// keeping Selected visible.
func (ec *EntriesComponent) Window() (int, int) {
	n := len(ec.Entries)
	if ec.Limit <= 0 || n <= ec.Limit {
		return 0, n
	}
	start := ec.Selected - ec.Limit/2
	if start < 0 {
		start = 0
	}
	if start+ec.Limit > n {
		start = n - ec.Limit
	}
	return start, start + ec.Limit
}

// View renders the entries component.
func (ec *EntriesComponent) View() string {
	var content strings.Builder
	content.WriteString(StyleTitle.Render("History"))
	content.WriteString("\n")

	if len(ec.Entries) == 0 {
		content.WriteString(StyleMuted.Render("Nothing recorded yet"))
		return StyleEntriesBox.Width(ec.Width - 4).Render(content.String())
	}

	descWidth := ec.Width - 36
	if descWidth < 16 {
		descWidth = 16
	}

	start, end := ec.Window()
	for pos := start; pos < end; pos++ {
		if pos > start {
			content.WriteString("\n")
		}
		content.WriteString(ec.renderEntry(pos, descWidth))
	}

	return StyleEntriesBox.Width(ec.Width - 4).Render(content.String())
}

func (ec *EntriesComponent) renderEntry(pos, descWidth int) string {
	inst := ec.Entries[pos]

	pointer := "  "
	if pos == ec.Selected {
		pointer = "> "
	}
	marker := " "
	if pos == ec.Index {
		marker = "→"
	}

	desc := inst.Description()
	if inst.IsBatch() {
		desc = fmt.Sprintf("%s [%d]", desc, len(inst.Children()))
	}
	line := fmt.Sprintf("%s%s %3d  %-*s  %s",
		pointer, marker, pos,
		descWidth, validate.TruncateString(desc, descWidth),
		output.FormatAge(inst.CreatedAt(), ec.Now))

	switch {
	case pos == ec.Selected:
		return StyleSelected.Render(line)
	case pos == ec.Index:
		return StyleCursor.Render(line)
	case pos > ec.Index:
		return StyleMuted.Render(line)
	}
	return line
}

// DetailComponent displays one history entry.
type DetailComponent struct {
	Instance *command.Instance
	Width    int
}

// View renders the detail component.
func (dc *DetailComponent) View() string {
	if dc.Instance == nil {
		return ""
	}
	inst := dc.Instance

	var content strings.Builder
	content.WriteString(StyleCommand.Render(inst.CommandID()))
	content.WriteString("  ")
	content.WriteString(StyleSubtitle.Render(output.FormatTime(inst.CreatedAt())))
	content.WriteString("\n")
	if ctxObj := inst.ContextObject(); ctxObj != "" {
		content.WriteString(fmt.Sprintf("context: %s\n", ctxObj))
	}
	if args := inst.Arguments(); args != nil {
		argWidth := dc.Width - 16
		if argWidth < 20 {
			argWidth = 20
		}
		content.WriteString(fmt.Sprintf("args:    %s\n", validate.TruncateString(formatArgs(args), argWidth)))
	}
	if r := inst.Result(); r != nil {
		content.WriteString(fmt.Sprintf("result:  %s\n", output.FormatValue(r)))
	}
	if code := inst.ErrorCode(); code != command.CodeOK {
		content.WriteString(StyleError.Render(fmt.Sprintf("error:   %s", code)))
		content.WriteString("\n")
	}
	for _, c := range inst.Children() {
		content.WriteString(StyleSubtitle.Render("  • " + c.Description()))
		content.WriteString("\n")
	}

	return StyleDetailBox.Width(dc.Width - 4).Render(strings.TrimRight(content.String(), "\n"))
}

func formatArgs(args any) string {
	data, err := json.Marshal(args)
	if err != nil {
		return fmt.Sprint(args)
	}
	return string(data)
}

// HelpBar renders the key bindings.
func HelpBar() string {
	keys := []struct {
		key  string
		desc string
	}{
		{"↑/↓", "select"},
		{"enter", "jump"},
		{"u", "undo"},
		{"r", "redo"},
		{"q", "quit"},
	}

	var parts []string
	for _, k := range keys {
		parts = append(parts, StyleHelpKey.Render(k.key)+" "+StyleHelpDesc.Render(k.desc))
	}

	return StyleHelp.Render(strings.Join(parts, "  •  "))
}
