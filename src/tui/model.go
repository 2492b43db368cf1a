// Package tui provides the terminal viewer for Jenkins conversation memory.
// It lists the stored messages of one conversation next to a detail panel
// with the full content of the selected message.
package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"jenkins-memory-agent/src/contracts"
)

// Loader fetches the conversation history to display.
type Loader func(ctx context.Context) ([]contracts.Message, error)

// historyLoadedMsg carries the result of a Loader call.
type historyLoadedMsg struct {
	messages []contracts.Message
	err      error
}

// Model is the Bubble Tea model of the history viewer.
type Model struct {
	load   Loader
	styles *StyleConfig

	header   Header
	list     list.Model
	delegate *Delegate
	detail   viewport.Model
	spinner  spinner.Model

	items         []Item
	selectedID    string
	searchMode    bool
	searchQuery   string
	detailFocused bool
	loading       bool
	err           error

	width  int
	height int
	ready  bool
}

// NewModel creates a viewer for conversationID. load is called on start and
// on every reload.
func NewModel(conversationID string, load Loader) Model {
	styles := DefaultStyles()

	delegate := NewDelegate(styles)
	l := list.New([]list.Item{}, &delegate, 0, 0)
	l.SetShowStatusBar(false)
	l.SetShowTitle(false)
	l.SetFilteringEnabled(false)
	l.SetShowHelp(false)

	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(styles.PrimaryBlue)

	return Model{
		load:     load,
		styles:   styles,
		header:   NewHeader(conversationID, styles),
		list:     l,
		delegate: &delegate,
		detail:   viewport.New(0, 0),
		spinner:  s,
		loading:  true,
	}
}

// Run starts the viewer in the alternate screen.
func Run(conversationID string, load Loader) error {
	p := tea.NewProgram(NewModel(conversationID, load), tea.WithAltScreen())
	_, err := p.Run()
	return err
}

// Init starts the first load.
func (m Model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.loadCmd())
}

func (m Model) loadCmd() tea.Cmd {
	load := m.load
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		messages, err := load(ctx)
		return historyLoadedMsg{messages: messages, err: err}
	}
}

// Update handles messages and updates the model state.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.ready = true
		m.resizeComponents()
		return m, nil

	case historyLoadedMsg:
		m.loading = false
		m.err = msg.err
		if msg.err == nil {
			m.setMessages(msg.messages)
		}
		return m, nil

	case spinner.TickMsg:
		if !m.loading {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case tea.KeyMsg:
		if m.searchMode {
			return m.updateSearch(msg)
		}
		if m.detailFocused {
			return m.updateDetail(msg)
		}
		return m.updateList(msg)
	}

	return m, nil
}

func (m Model) updateSearch(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyEsc:
		m.searchMode = false
		m.searchQuery = ""
	case tea.KeyEnter:
		m.searchMode = false
	case tea.KeyBackspace:
		if r := []rune(m.searchQuery); len(r) > 0 {
			m.searchQuery = string(r[:len(r)-1])
		}
	case tea.KeyRunes, tea.KeySpace:
		m.searchQuery += string(msg.Runes)
	default:
		return m, nil
	}
	m.header.SetSearch(m.searchQuery, m.searchMode)
	m.applyFilter()
	return m, nil
}

func (m Model) updateDetail(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		return m, tea.Quit
	case "esc", "tab":
		m.detailFocused = false
		return m, nil
	}
	var cmd tea.Cmd
	m.detail, cmd = m.detail.Update(msg)
	return m, cmd
}

func (m Model) updateList(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		return m, tea.Quit
	case "/":
		m.searchMode = true
		m.header.SetSearch(m.searchQuery, true)
		return m, nil
	case "enter", "tab":
		if len(m.list.Items()) > 0 {
			m.detailFocused = true
		}
		return m, nil
	case "f":
		m.header.CycleRoleFilter()
		m.applyFilter()
		return m, nil
	case "r":
		m.loading = true
		m.err = nil
		return m, tea.Batch(m.spinner.Tick, m.loadCmd())
	}

	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	m.syncDetail()
	return m, cmd
}

// setMessages replaces the items, keeping the selection when possible.
func (m *Model) setMessages(messages []contracts.Message) {
	m.items = make([]Item, len(messages))
	maxBuild := 0
	for i, msg := range messages {
		m.items[i] = Item{Message: msg, Index: i + 1}
		maxBuild = max(maxBuild, msg.BuildNumber)
	}
	m.delegate.SetColumnWidths(len(messages), maxBuild)
	m.applyFilter()
}

// applyFilter filters items by role and search query.
func (m *Model) applyFilter() {
	role := m.header.RoleFilter()

	var filtered []list.Item
	for _, item := range m.items {
		if role != "ALL" && string(item.Message.Role) != role {
			continue
		}
		if m.searchQuery != "" && !item.Matches(m.searchQuery) {
			continue
		}
		filtered = append(filtered, item)
	}

	m.list.SetItems(filtered)
	m.header.SetCounts(len(m.items), len(filtered))

	// Keep the previous selection if it survived the filter
	for i, it := range filtered {
		if it.(Item).Message.ID == m.selectedID {
			m.list.Select(i)
			break
		}
	}
	m.selectedID = ""
	m.syncDetail()
}

// SelectedItem returns the highlighted item.
func (m Model) SelectedItem() (Item, bool) {
	item, ok := m.list.SelectedItem().(Item)
	return item, ok
}

// syncDetail refreshes the detail panel when the selection changed.
func (m *Model) syncDetail() {
	item, ok := m.SelectedItem()
	if !ok {
		m.selectedID = ""
		m.detail.SetContent("")
		return
	}
	if item.Message.ID == m.selectedID && m.detail.TotalLineCount() > 0 {
		return
	}
	m.selectedID = item.Message.ID
	m.detail.SetContent(m.renderDetail(item, m.detail.Width-2))
	m.detail.GotoTop()
}

// renderDetail renders the full content of an item.
func (m Model) renderDetail(item Item, maxWidth int) string {
	var b strings.Builder

	header := lipgloss.NewStyle().
		Foreground(m.styles.RoleColor(string(item.Message.Role))).
		Bold(true).
		Render(fmt.Sprintf("%s | Build #%d | %s",
			item.Message.Role, item.Message.BuildNumber, item.TypeLabel()))
	fmt.Fprintf(&b, "%s\n", header)

	meta := lipgloss.NewStyle().Foreground(m.styles.TextSecondary).Faint(true).
		Render(fmt.Sprintf("%s  %s", item.Message.Timestamp.Local().Format("2006-01-02 15:04:05"), item.Message.ID))
	fmt.Fprintf(&b, "%s\n\n", meta)

	b.WriteString(WrapLines(item.Message.Content, maxWidth))
	return b.String()
}
