package tui

import (
	"context"
	"fmt"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"

	"github.com/manav03panchal/cmdstack/internal/command"
	"github.com/manav03panchal/cmdstack/internal/errors"
)

// tickMsg is sent when the browser ticks.
type tickMsg time.Time

// refreshMsg is sent when the history needs to be reloaded.
type refreshMsg struct{}

// BrowserModel is the bubbletea model for the history browser.
type BrowserModel struct {
	ctx     context.Context
	manager *command.Manager

	// Data
	entries []*command.Instance
	index   int

	// UI state
	selected   int
	width      int
	height     int
	err        error
	message    string
	messageExp time.Time
	changed    bool

	refreshInterval time.Duration
	maxEntries      int
}

// BrowserConfig holds configuration for the browser.
type BrowserConfig struct {
	Manager         *command.Manager
	RefreshInterval time.Duration
	// MaxEntries bounds the visible rows. Zero sizes it from the terminal.
	MaxEntries int
}

// NewBrowserModel creates a new browser model.
func NewBrowserModel(ctx context.Context, config BrowserConfig) *BrowserModel {
	if config.RefreshInterval == 0 {
		config.RefreshInterval = time.Second
	}
	m := &BrowserModel{
		ctx:             ctx,
		manager:         config.Manager,
		refreshInterval: config.RefreshInterval,
		maxEntries:      config.MaxEntries,
	}
	m.loadData()
	m.selected = m.index
	if m.selected < 0 && len(m.entries) > 0 {
		m.selected = 0
	}
	return m
}

// Changed reports whether the browser moved the history cursor.
func (m *BrowserModel) Changed() bool {
	return m.changed
}

// Init initializes the model.
func (m *BrowserModel) Init() tea.Cmd {
	return tea.Batch(m.tickCmd(), m.refreshCmd())
}

// Update handles messages and updates the model.
func (m *BrowserModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKeyPress(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case tickMsg:
		if !m.messageExp.IsZero() && time.Now().After(m.messageExp) {
			m.message = ""
			m.messageExp = time.Time{}
		}
		return m, m.tickCmd()

	case refreshMsg:
		m.loadData()
		return m, nil
	}

	return m, nil
}

func (m *BrowserModel) handleKeyPress(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c", "esc":
		return m, tea.Quit

	case "up", "k":
		if m.selected > 0 {
			m.selected--
		}

	case "down", "j":
		if m.selected < len(m.entries)-1 {
			m.selected++
		}

	case "home", "g":
		if len(m.entries) > 0 {
			m.selected = 0
		}

	case "end", "G":
		m.selected = len(m.entries) - 1

	case "enter":
		if len(m.entries) == 0 {
			return m, nil
		}
		m.navigate(fmt.Sprintf("Moved to entry %d", m.selected), func() error {
			return m.manager.MoveCommandIndex(m.ctx, m.selected)
		})

	case "backspace", "0":
		m.navigate("Moved before the first entry", func() error {
			return m.manager.MoveCommandIndex(m.ctx, -1)
		})

	case "u":
		m.navigate("Undone", func() error { return m.manager.Undo(m.ctx) })
		if m.index >= 0 {
			m.selected = m.index
		}

	case "r":
		m.navigate("Redone", func() error { return m.manager.Redo(m.ctx) })
		if m.index >= 0 {
			m.selected = m.index
		}
	}

	return m, nil
}

func (m *BrowserModel) navigate(success string, fn func() error) {
	before := m.index
	err := fn()
	m.loadData()
	if m.index != before {
		m.changed = true
	}
	if err != nil {
		m.err = err
		return
	}
	m.err = nil
	m.setMessage(success, 2*time.Second)
}

// View renders the browser.
func (m *BrowserModel) View() string {
	if m.width == 0 {
		return "Loading..."
	}

	var sections []string
	sections = append(sections, m.renderHeader())

	if m.err != nil {
		sections = append(sections, StyleError.Render(fmt.Sprintf("Error: %v", m.err)))
	}
	if m.message != "" {
		sections = append(sections, StyleSuccess.Render(m.message))
	}

	sections = append(sections, NewStatusComponent(m.index, len(m.entries), m.width).View())

	entries := &EntriesComponent{
		Entries:  m.entries,
		Index:    m.index,
		Selected: m.selected,
		Width:    m.width,
		Limit:    m.visibleRows(),
		Now:      time.Now(),
	}
	sections = append(sections, entries.View())

	if m.selected >= 0 && m.selected < len(m.entries) {
		detail := &DetailComponent{Instance: m.entries[m.selected], Width: m.width}
		sections = append(sections, detail.View())
	}

	sections = append(sections, HelpBar())

	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

func (m *BrowserModel) renderHeader() string {
	title := StyleTitle.Render("Command History")
	now := StyleSubtitle.Render(time.Now().Format("Mon Jan 2, 15:04:05"))
	return lipgloss.JoinHorizontal(lipgloss.Top, title, "  ", now) + "\n"
}

// visibleRows leaves room for the header, status and detail boxes.
func (m *BrowserModel) visibleRows() int {
	if m.maxEntries > 0 {
		return m.maxEntries
	}
	rows := m.height - 20
	if rows < 5 {
		rows = 5
	}
	return rows
}

func (m *BrowserModel) loadData() {
	m.entries = m.manager.History(m.ctx)
	m.index = m.manager.CommandIndex(m.ctx)
	if m.selected >= len(m.entries) {
		m.selected = len(m.entries) - 1
	}
}

func (m *BrowserModel) setMessage(msg string, duration time.Duration) {
	m.message = msg
	m.messageExp = time.Now().Add(duration)
}

func (m *BrowserModel) tickCmd() tea.Cmd {
	return tea.Tick(m.refreshInterval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m *BrowserModel) refreshCmd() tea.Cmd {
	return func() tea.Msg {
		return refreshMsg{}
	}
}

// Run starts the browser and reports whether the history cursor moved.
func Run(ctx context.Context, config BrowserConfig) (bool, error) {
	if !term.IsTerminal(int(os.Stdout.Fd())) {
		return false, errors.NewUserError("browse requires a terminal", "Use 'cmdstack history' for non-interactive output")
	}
	model := NewBrowserModel(ctx, config)
	p := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx))
	_, err := p.Run()
	return model.Changed(), err
}
