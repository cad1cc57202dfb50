// ABOUTME: TUI initialization and control
// ABOUTME: Wraps bubbletea program for the listener UI
package ui

import (
	tea "github.com/charmbracelet/bubbletea"
)

// VolumeChangeMsg is sent when the user changes volume or mute
type VolumeChangeMsg struct {
	Volume int
	Muted  bool
}

// MoveMsg is sent when the user moves the listener
type MoveMsg struct {
	Position [3]float64
}

// Controls holds channels carrying user input out of the TUI
type Controls struct {
	Changes chan VolumeChangeMsg
	Moves   chan MoveMsg
	Quit    chan struct{}
}

// NewControls creates a new control handler
func NewControls() *Controls {
	return &Controls{
		Changes: make(chan VolumeChangeMsg, 10),
		Moves:   make(chan MoveMsg, 10),
		Quit:    make(chan struct{}, 1),
	}
}

func (c *Controls) volume(volume int, muted bool) {
	if c == nil {
		return
	}
	select {
	case c.Changes <- VolumeChangeMsg{Volume: volume, Muted: muted}:
	default:
	}
}

func (c *Controls) move(position [3]float64) {
	if c == nil {
		return
	}
	select {
	case c.Moves <- MoveMsg{Position: position}:
	default:
	}
}

func (c *Controls) quit() {
	if c == nil {
		return
	}
	select {
	case c.Quit <- struct{}{}:
	default:
	}
}

// NewModel creates a new TUI model
func NewModel(controls *Controls) Model {
	return Model{
		volume:   100,
		controls: controls,
	}
}

// Run creates the TUI program; the caller starts it
func Run(controls *Controls) (*tea.Program, error) {
	p := tea.NewProgram(NewModel(controls), tea.WithAltScreen())
	return p, nil
}
