package viz

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/san-kum/segway/internal/sim"
)

var scenarioInfo = map[string]string{
	"balance":     "stand still on the spot",
	"ride":        "accelerate, turn and brake",
	"dismount":    "step off while rolling",
	"low_battery": "pack drains to cutoff",
	"recover":     "shoves from both sides",
}

// SessionFactory builds a fresh session for a named scenario.
type SessionFactory func(name string) (*sim.Session, error)

const (
	stateMenu = iota
	stateRide
)

// picker lists scenarios and hands the chosen one to a live Model.
type picker struct {
	state     int
	cursor    int
	scenarios []string
	factory   SessionFactory
	live      Model
	err       error
	styles    styles
}

func NewPicker(scenarios []string, factory SessionFactory) tea.Model {
	return picker{scenarios: scenarios, factory: factory, styles: newStyles(ThemeWorkshop)}
}

func (p picker) Init() tea.Cmd { return nil }

func (p picker) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	if p.state == stateRide {
		if k, ok := msg.(tea.KeyMsg); ok && k.String() == "esc" {
			p.state = stateMenu
			return p, nil
		}
		live, cmd := p.live.Update(msg)
		p.live = live.(Model)
		return p, cmd
	}

	k, ok := msg.(tea.KeyMsg)
	if !ok {
		return p, nil
	}
	switch k.String() {
	case "q", "ctrl+c":
		return p, tea.Quit
	case "up", "k":
		if p.cursor > 0 {
			p.cursor--
		}
	case "down", "j":
		if p.cursor < len(p.scenarios)-1 {
			p.cursor++
		}
	case "enter", " ":
		if len(p.scenarios) == 0 {
			return p, nil
		}
		name := p.scenarios[p.cursor]
		live, err := NewModel(name, func() (*sim.Session, error) { return p.factory(name) })
		if err != nil {
			p.err = err
			return p, nil
		}
		p.err = nil
		p.live = live
		p.state = stateRide
		return p, p.live.Init()
	}
	return p, nil
}

func (p picker) View() string {
	if p.state == stateRide {
		return p.live.View()
	}
	st := p.styles
	var b strings.Builder
	b.WriteString("\n\n    " + st.header.Render("SEGWAY") + "\n")
	b.WriteString("    " + st.muted.Render("self-balancing vehicle bench") + "\n\n")
	for i, name := range p.scenarios {
		line := fmt.Sprintf("%-14s", name)
		if i == p.cursor {
			b.WriteString("    " + st.accent.Render("▸ "+line) + " " + st.value.Render(scenarioInfo[name]) + "\n")
		} else {
			b.WriteString("      " + st.muted.Render(line+" "+scenarioInfo[name]) + "\n")
		}
	}
	if p.err != nil {
		b.WriteString("\n    " + st.bad.Render(p.err.Error()) + "\n")
	}
	b.WriteString("\n    " + st.help.Render("j/k navigate  enter ride  esc back  q quit") + "\n")
	return b.String()
}

func RunInteractive(scenarios []string, factory SessionFactory) error {
	_, err := tea.NewProgram(NewPicker(scenarios, factory), tea.WithAltScreen()).Run()
	return err
}
