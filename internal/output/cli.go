package output

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/manav03panchal/cmdstack/internal/command"
	"github.com/manav03panchal/cmdstack/internal/object"
	"github.com/manav03panchal/cmdstack/internal/validate"
)

// Styles for CLI output.
var (
	colorPrimary = lipgloss.Color("#7C3AED") // Purple
	colorMuted   = lipgloss.Color("#6B7280") // Gray
	colorWarning = lipgloss.Color("#F59E0B") // Yellow
	colorError   = lipgloss.Color("#EF4444") // Red
	colorSuccess = lipgloss.Color("#10B981") // Green

	styleTitle = lipgloss.NewStyle().
			Bold(true).
			Foreground(colorPrimary)

	styleSuccess = lipgloss.NewStyle().
			Foreground(colorSuccess)

	styleWarning = lipgloss.NewStyle().
			Foreground(colorWarning)

	styleError = lipgloss.NewStyle().
			Foreground(colorError)

	styleMuted = lipgloss.NewStyle().
			Foreground(colorMuted)

	styleBold = lipgloss.NewStyle().
			Bold(true)

	styleCurrent = lipgloss.NewStyle().
			Bold(true).
			Foreground(colorPrimary)
)

// CLIFormatter provides CLI-specific formatting.
type CLIFormatter struct {
	*Formatter
	now func() time.Time
}

// NewCLIFormatter creates a new CLI formatter.
func NewCLIFormatter(f *Formatter) *CLIFormatter {
	return &CLIFormatter{Formatter: f, now: time.Now}
}

func (c *CLIFormatter) render(style lipgloss.Style, text string) string {
	if c.IsColorEnabled() {
		return style.Render(text)
	}
	return text
}

// Title prints a title.
func (c *CLIFormatter) Title(text string) {
	c.Println(c.render(styleTitle, text))
}

// Success prints a success message.
func (c *CLIFormatter) Success(text string) {
	c.Println(c.render(styleSuccess, "✓ "+text))
}

// Warning prints a warning message.
func (c *CLIFormatter) Warning(text string) {
	c.Println(c.render(styleWarning, "⚠ "+text))
}

// Error prints an error message.
func (c *CLIFormatter) Error(text string) {
	c.Println(c.render(styleError, "✗ "+text))
}

// Muted prints muted text.
func (c *CLIFormatter) Muted(text string) {
	c.Println(c.render(styleMuted, text))
}

// PrintHistory prints the history oldest first, marking the cursor. Entries
// past the cursor can be redone and are muted.
func (c *CLIFormatter) PrintHistory(entries []*command.Instance, index int) {
	if len(entries) == 0 {
		c.Muted("History is empty.")
		return
	}

	now := c.now()
	rows := make([]TableRow, 0, len(entries))
	descWidth := c.Width() - 40
	if descWidth < 20 {
		descWidth = 20
	}
	for pos, inst := range entries {
		marker := " "
		if pos == index {
			marker = "→"
		}
		desc := inst.Description()
		if inst.IsBatch() {
			desc = fmt.Sprintf("%s [%d]", desc, len(inst.Children()))
		}
		if code := inst.ErrorCode(); code != command.CodeOK {
			desc = fmt.Sprintf("%s (%s)", desc, code)
		}
		rows = append(rows, TableRow{
			Columns: []string{
				marker,
				fmt.Sprintf("%d", pos),
				validate.TruncateString(desc, descWidth),
				inst.CommandID(),
				FormatAge(inst.CreatedAt(), now),
			},
			Muted:   pos > index,
			Current: pos == index,
		})
	}
	c.PrintTable([]string{"", "#", "DESCRIPTION", "COMMAND", "AGE"}, rows)

	if index < 0 {
		c.Muted("Cursor is before the first entry.")
	}
}

// PrintObject prints one object with its properties sorted by path.
func (c *CLIFormatter) PrintObject(o object.Object) {
	title := string(o.ID)
	if o.Type != "" {
		title = fmt.Sprintf("%s (%s)", o.ID, o.Type)
	}
	c.Title(title)

	flat := make(map[string]any)
	flatten("", o.Props, flat)
	paths := make([]string, 0, len(flat))
	for p := range flat {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	if len(paths) == 0 {
		c.Muted("  no properties")
	}
	for _, p := range paths {
		c.Printf("  %s = %s\n", c.render(styleBold, p), FormatValue(flat[p]))
	}
	c.Muted(fmt.Sprintf("  updated %s", FormatAge(o.UpdatedAt, c.now())))
}

func flatten(prefix string, props map[string]any, out map[string]any) {
	for k, v := range props {
		path := k
		if prefix != "" {
			path = prefix + "." + k
		}
		if m, ok := v.(map[string]any); ok && len(m) > 0 {
			flatten(path, m, out)
			continue
		}
		out[path] = v
	}
}

// PrintObjects prints a table of objects.
func (c *CLIFormatter) PrintObjects(objs []object.Object) {
	if len(objs) == 0 {
		c.Muted("No objects.")
		return
	}
	now := c.now()
	rows := make([]TableRow, 0, len(objs))
	for _, o := range objs {
		rows = append(rows, TableRow{Columns: []string{
			string(o.ID),
			o.Type,
			fmt.Sprintf("%d", len(o.Props)),
			FormatAge(o.UpdatedAt, now),
		}})
	}
	c.PrintTable([]string{"ID", "TYPE", "PROPS", "UPDATED"}, rows)
}

// PrintMacros prints macros and their steps.
func (c *CLIFormatter) PrintMacros(macros []*command.CompoundCommand) {
	if len(macros) == 0 {
		c.Muted("No macros.")
		return
	}
	for _, m := range macros {
		steps := m.Steps()
		c.Title(fmt.Sprintf("%s (%d steps)", m.ID(), len(steps)))
		for n, s := range steps {
			binding := s.Argument.Kind.String()
			if s.Argument.Kind == command.BindResult {
				binding = fmt.Sprintf("%s %d", binding, s.Argument.Offset)
			}
			c.Printf("  %d. %s %s\n", n+1, s.CommandID, c.render(styleMuted, "["+binding+"]"))
		}
	}
}

// PrintExec prints the outcome of a command run.
func (c *CLIFormatter) PrintExec(inst *command.Instance, recorded bool) {
	if err := inst.Err(); err != nil {
		c.Error(fmt.Sprintf("%s: %v", inst.Description(), err))
		return
	}
	c.Success(inst.Description())
	if r := inst.Result(); r != nil {
		c.Printf("  result: %s\n", FormatValue(r))
	}
	if !recorded {
		c.Muted("  (not undoable)")
	}
}

// TableRow is one row of PrintTable.
type TableRow struct {
	Columns []string
	Muted   bool
	Current bool
}

// PrintTable prints a simple table.
func (c *CLIFormatter) PrintTable(headers []string, rows []TableRow) {
	if len(rows) == 0 {
		return
	}

	widths := make([]int, len(headers))
	for i, h := range headers {
		widths[i] = lipgloss.Width(h)
	}
	for _, row := range rows {
		for i, col := range row.Columns {
			if i < len(widths) && lipgloss.Width(col) > widths[i] {
				widths[i] = lipgloss.Width(col)
			}
		}
	}

	line := func(cols []string) string {
		var sb strings.Builder
		for i, col := range cols {
			if i >= len(widths) {
				break
			}
			sb.WriteString(col)
			sb.WriteString(strings.Repeat(" ", widths[i]-lipgloss.Width(col)+2))
		}
		return strings.TrimRight(sb.String(), " ")
	}

	c.Println(c.render(styleBold, line(headers)))
	var sep strings.Builder
	for _, w := range widths {
		sep.WriteString(strings.Repeat("─", w) + "  ")
	}
	c.Println(strings.TrimRight(sep.String(), " "))

	for _, row := range rows {
		text := line(row.Columns)
		switch {
		case row.Current:
			text = c.render(styleCurrent, text)
		case row.Muted:
			text = c.render(styleMuted, text)
		}
		c.Println(text)
	}
}
