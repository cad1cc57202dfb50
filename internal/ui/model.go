// ABOUTME: Bubbletea model for the listener TUI
// ABOUTME: Defines listener state, key handling and rendering
package ui

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// MoveStep is how far one movement key moves the listener
const MoveStep = 1.0

var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	labelStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	speakStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	warnStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	helpStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	defaultWidth = 60
)

// StreamRow is one playing stream as shown in the TUI
type StreamRow struct {
	StreamID  string
	EntityID  string
	Speaking  bool
	Playing   bool
	Buffered  int64
	Underruns int64
	Dropped   int64
}

// Model represents the TUI state
type Model struct {
	// Connection
	connected  bool
	serverName string

	// Listener
	name     string
	entityID string
	position [3]float64

	// Playback
	streams []StreamRow
	volume  int
	muted   bool

	// Debug
	showDebug  bool
	goroutines int

	// Dimensions
	width  int
	height int

	controls *Controls
}

// Init initializes the model
func (m Model) Init() tea.Cmd {
	return nil
}

// Update handles messages
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
	case StatusMsg:
		m.applyStatus(msg)
	}

	return m, nil
}

// View renders the TUI
func (m Model) View() string {
	var b strings.Builder
	b.WriteString(m.renderHeader())
	b.WriteString(m.renderStreams())
	b.WriteString(m.renderControls())

	if m.showDebug {
		b.WriteString(m.renderDebug())
	}

	b.WriteString(m.renderHelp())
	return b.String()
}

// renderHeader renders connection status and the listener position
func (m Model) renderHeader() string {
	connStatus := warnStyle.Render("Disconnected")
	if m.connected {
		connStatus = fmt.Sprintf("Connected to %s", m.serverName)
	}

	entity := m.entityID
	if entity == "" {
		entity = "(none)"
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render("Proximity Listener "+m.name) + "\n")
	b.WriteString(strings.Repeat("─", m.ruleWidth()) + "\n")
	fmt.Fprintf(&b, "%s %s\n", labelStyle.Render("Status:  "), connStatus)
	fmt.Fprintf(&b, "%s %s\n", labelStyle.Render("Entity:  "), entity)
	fmt.Fprintf(&b, "%s (%.1f, %.1f, %.1f)\n", labelStyle.Render("Position:"),
		m.position[0], m.position[1], m.position[2])
	b.WriteString(strings.Repeat("─", m.ruleWidth()) + "\n")
	return b.String()
}

// renderStreams renders one line per audible stream
func (m Model) renderStreams() string {
	if len(m.streams) == 0 {
		return "No streams in range\n"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Streams (%d):\n", len(m.streams))
	for _, s := range m.streams {
		marker := " "
		if s.Speaking {
			marker = speakStyle.Render("●")
		}
		state := "buffering"
		if s.Playing {
			state = "playing"
		}
		fmt.Fprintf(&b, " %s %-12s %-10s %-9s buf:%-6d under:%-4d drop:%d\n",
			marker, truncate(s.EntityID, 12), truncate(s.StreamID, 10), state,
			s.Buffered, s.Underruns, s.Dropped)
	}
	return b.String()
}

// renderControls renders volume status
func (m Model) renderControls() string {
	muteText := ""
	if m.muted {
		muteText = warnStyle.Render(" (muted)")
	}

	return fmt.Sprintf("\n%s [%s] %d%%%s\n",
		labelStyle.Render("Volume:"), renderBar(m.volume, 100, 10), m.volume, muteText)
}

// renderHelp renders keyboard shortcuts
func (m Model) renderHelp() string {
	return helpStyle.Render("↑/↓:Volume  m:Mute  w/a/s/d:Move  x:Debug  q:Quit") + "\n"
}

// renderDebug renders debug information
func (m Model) renderDebug() string {
	return fmt.Sprintf("%s goroutines: %d\n", labelStyle.Render("DEBUG:"), m.goroutines)
}

func (m Model) ruleWidth() int {
	if m.width > 0 && m.width < defaultWidth {
		return m.width
	}
	return defaultWidth
}

// handleKey handles keyboard input
func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		m.controls.quit()
		return m, tea.Quit
	case "up":
		m.volume = min(m.volume+5, 100)
		m.controls.volume(m.volume, m.muted)
	case "down":
		m.volume = max(m.volume-5, 0)
		m.controls.volume(m.volume, m.muted)
	case "m":
		m.muted = !m.muted
		m.controls.volume(m.volume, m.muted)
	case "w":
		m.move(0, 0, -MoveStep)
	case "s":
		m.move(0, 0, MoveStep)
	case "a":
		m.move(-MoveStep, 0, 0)
	case "d":
		m.move(MoveStep, 0, 0)
	case "x":
		m.showDebug = !m.showDebug
	}

	return m, nil
}

func (m *Model) move(dx, dy, dz float64) {
	if m.entityID == "" {
		return
	}
	m.position[0] += dx
	m.position[1] += dy
	m.position[2] += dz
	m.controls.move(m.position)
}

// applyStatus updates model from status message
func (m *Model) applyStatus(msg StatusMsg) {
	if msg.Connected != nil {
		m.connected = *msg.Connected
	}
	if msg.ServerName != "" {
		m.serverName = msg.ServerName
	}
	if msg.Name != "" {
		m.name = msg.Name
	}
	if msg.EntityID != "" {
		m.entityID = msg.EntityID
	}
	if msg.Position != nil {
		m.position = *msg.Position
	}
	if msg.Streams != nil {
		m.streams = msg.Streams
	}
	if msg.Volume != 0 {
		m.volume = msg.Volume
	}
	if msg.Goroutines != 0 {
		m.goroutines = msg.Goroutines
	}
}

// StatusMsg updates TUI state. Zero fields leave the current value alone.
type StatusMsg struct {
	Connected  *bool
	ServerName string
	Name       string
	EntityID   string
	Position   *[3]float64
	Streams    []StreamRow
	Volume     int
	Goroutines int
}

// Utility functions
func renderBar(value, max, width int) string {
	filled := (value * width) / max
	return strings.Repeat("█", filled) + strings.Repeat("░", width-filled)
}

func truncate(s string, length int) string {
	if len(s) <= length {
		return s
	}
	return s[:length-3] + "..."
}
