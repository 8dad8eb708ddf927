package tui

import (
	"log"
	"sync"

	tea "github.com/charmbracelet/bubbletea"
)

// Notifier delivers bridge warnings into the running dashboard. Warnings that
// arrive before the program is attached go to the log instead of being lost.
type Notifier struct {
	mu      sync.Mutex
	program *tea.Program
}

// NewNotifier creates an unattached notifier.
func NewNotifier() *Notifier {
	return &Notifier{}
}

// SetProgram attaches the running bubbletea program.
func (n *Notifier) SetProgram(p *tea.Program) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.program = p
}

// Warn surfaces a user-facing warning banner.
func (n *Notifier) Warn(message string) {
	n.mu.Lock()
	p := n.program
	n.mu.Unlock()

	if p == nil {
		log.Printf("warning: %s", message)
		return
	}
	p.Send(warnMsg(message))
}
