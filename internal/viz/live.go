package viz

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/guptarohit/asciigraph"

	"github.com/san-kum/segway/internal/dynamo"
	"github.com/san-kum/segway/internal/physics"
	"github.com/san-kum/segway/internal/sim"
	"github.com/san-kum/segway/internal/vehicle"
)

const (
	width           = 60
	height          = 18
	historyCapacity = 300
	frameRate       = 30

	steerStep = 0.1
	speedStep = 0.25
	maxSpeed  = 4.0

	batteryFull = 2.5 // sense volts of a charged pack
)

type TickMsg time.Time

// Model is the live view of one simulated ride. It starts on the scenario's
// script; any rider key takes over with manual inputs.
type Model struct {
	name       string
	newSession func() (*sim.Session, error)
	sess       *sim.Session

	manual   sim.Manual
	override bool
	running  bool
	last     dynamo.Sample
	err      error

	canvas       *Canvas
	tiltHistory  []float64
	speedHistory []float64

	theme    Theme
	styles   styles
	showHelp bool
}

// NewModel starts a live view. newSession is called again on reset.
func NewModel(name string, newSession func() (*sim.Session, error)) (Model, error) {
	sess, err := newSession()
	if err != nil {
		return Model{}, err
	}
	m := Model{
		name:         name,
		newSession:   newSession,
		sess:         sess,
		running:      true,
		last:         dynamo.Sample{X: sess.State(), U: dynamo.Control{0, 0, 0}},
		canvas:       NewCanvas(width, height),
		tiltHistory:  make([]float64, 0, historyCapacity),
		speedHistory: make([]float64, 0, historyCapacity),
	}
	m.setTheme(ThemeWorkshop)
	return m, nil
}

func (m *Model) setTheme(t Theme) {
	m.theme = t
	m.styles = newStyles(t)
}

func tick() tea.Cmd {
	return tea.Tick(time.Second/frameRate, func(t time.Time) tea.Msg { return TickMsg(t) })
}

func (m Model) Init() tea.Cmd { return tick() }

// Update handles keys and advances the ride by one frame of simulated time.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case " ":
			m.running = !m.running
		case "r":
			m.reset()
		case "t":
			m.setTheme(nextTheme(m.theme.Name))
		case "?":
			m.showHelp = !m.showHelp
		case "s":
			m.takeOver(false)
		case "m":
			m.takeOver(true)
			m.manual.Riding = !m.manual.Riding
		case "left", "a":
			m.takeOver(true)
			m.manual.Steering = clampFloat(m.manual.Steering-steerStep, -1, 1)
		case "right", "d":
			m.takeOver(true)
			m.manual.Steering = clampFloat(m.manual.Steering+steerStep, -1, 1)
		case "c":
			m.takeOver(true)
			m.manual.Steering = 0
		case "up", "w":
			m.takeOver(true)
			m.manual.Speed = clampFloat(m.manual.Speed+speedStep, -maxSpeed, maxSpeed)
		case "down", "x":
			m.takeOver(true)
			m.manual.Speed = clampFloat(m.manual.Speed-speedStep, -maxSpeed, maxSpeed)
		}
	case TickMsg:
		if m.running {
			m.advance(m.stepsPerFrame())
		}
		return m, tick()
	}
	return m, nil
}

// takeOver switches between the script and keyboard inputs. Taking over
// keeps whatever the script was doing at that moment.
func (m *Model) takeOver(manual bool) {
	if manual == m.override {
		return
	}
	m.override = manual
	if !manual {
		m.sess.SetManual(nil)
		return
	}
	m.manual = sim.Manual{
		Riding:   m.sess.Vehicle().State() == vehicle.Active || m.lastRiding(),
		Steering: float64(m.sess.Vehicle().SteeringValue()),
		Speed:    m.last.X[physics.Vel],
	}
	m.sess.SetManual(&m.manual)
}

func (m *Model) lastRiding() bool { return m.last.Active }

func (m *Model) stepsPerFrame() int {
	n := int(math.Round(1 / (frameRate * m.sess.Dt())))
	if n < 1 {
		return 1
	}
	return n
}

// advance runs n ticks unless the ride is over or faulted. A manual ride has
// no end.
func (m *Model) advance(n int) {
	for i := 0; i < n && m.err == nil; i++ {
		if !m.override && m.sess.Done() {
			return
		}
		s, err := m.sess.Step()
		if err != nil {
			m.err = err
			return
		}
		m.last = s
		m.tiltHistory = pushBounded(m.tiltHistory, tiltDegrees(s.X))
		m.speedHistory = pushBounded(m.speedHistory, s.X[physics.Vel])
	}
}

func pushBounded(h []float64, v float64) []float64 {
	h = append(h, v)
	if len(h) > historyCapacity {
		h = h[1:]
	}
	return h
}

func (m *Model) reset() {
	sess, err := m.newSession()
	if err != nil {
		m.err = err
		return
	}
	m.sess = sess
	m.err = nil
	m.last = dynamo.Sample{X: sess.State(), U: dynamo.Control{0, 0, 0}}
	m.tiltHistory = m.tiltHistory[:0]
	m.speedHistory = m.speedHistory[:0]
	if m.override {
		m.manual = sim.Manual{}
		m.sess.SetManual(&m.manual)
	}
}

// status names the condition of the ride, worst first.
func (m Model) status() (string, lipgloss.Style) {
	st := m.styles
	switch {
	case m.err != nil:
		var se *dynamo.SimulationError
		if errors.As(m.err, &se) {
			return "FAULT", st.bad
		}
		return "ERROR", st.bad
	case m.sess.FellAt() >= 0:
		return "FALLEN", st.bad
	case m.sess.Vehicle().Watchdog().Tripped():
		return "BATTERY CUTOFF", st.warn
	case m.sess.Vehicle().State() == vehicle.Active:
		return "ACTIVE", st.good
	}
	return "STANDBY", st.muted
}

func (m Model) View() string {
	st := m.styles
	m.canvas.Clear()
	drawSegway(m.canvas, m.last.X, m.last.U[physics.Lean], m.riding())
	canvasView := st.canvas.Render(m.canvas.String())

	var s strings.Builder
	s.WriteString(st.header.Render(strings.ToUpper(m.name)) + "\n")

	label, style := m.status()
	mode := "script"
	if m.override {
		mode = "manual"
	}
	if !m.running {
		mode += ", paused"
	} else if !m.override && m.sess.Done() {
		mode += ", finished"
	}
	s.WriteString(style.Render(label) + " " + st.muted.Render("("+mode+")") + "\n\n")

	if len(m.tiltHistory) > 1 {
		chart := asciigraph.Plot(m.tiltHistory, asciigraph.Height(5), asciigraph.Width(34), asciigraph.Caption("tilt [deg]"))
		s.WriteString(st.graph.Render(chart) + "\n")
	}

	veh := m.sess.Vehicle()
	x := m.last.X
	row := func(name, value string) {
		s.WriteString(st.label.Render(name) + st.value.Render(value) + "\n")
	}
	row("Time", fmt.Sprintf("%.2f s", m.sess.Time()))
	row("Speed", fmt.Sprintf("%+.2f m/s", x[physics.Vel]))
	row("Tilt", fmt.Sprintf("%+.1f°", tiltDegrees(x)))
	row("Heading", fmt.Sprintf("%+.0f°", x[physics.Yaw]*180/math.Pi))
	row("Left", DutyBar(m.last.U[physics.LeftDuty], 8))
	row("Right", DutyBar(m.last.U[physics.RightDuty], 8))
	row("Steering", fmt.Sprintf("%+.2f", veh.SteeringValue()))
	row("Battery", fmt.Sprintf("%s %.2f V", ProgressBar(m.last.Battery/batteryFull, 10), m.last.Battery))
	if n := veh.Watchdog().Count(); n > 0 {
		row("Low ticks", fmt.Sprintf("%d", n))
	}
	if m.override {
		row("Rider", fmt.Sprintf("on=%v target %+.2f m/s", m.manual.Riding, m.manual.Speed))
	}
	if m.err != nil {
		s.WriteString("\n" + st.bad.Render(m.err.Error()) + "\n")
	}

	s.WriteString(st.help.Render("SP:Pause R:Reset Q:Quit ?:Help\nM:Mount ←→:Steer ↑↓:Speed"))
	view := lipgloss.JoinHorizontal(lipgloss.Top, canvasView, st.panel.Render(s.String()))
	if m.showHelp {
		return helpText + "\n" + view
	}
	return view
}

func (m Model) riding() bool {
	if m.override {
		return m.manual.Riding
	}
	return m.last.Active || m.sess.Vehicle().State() == vehicle.Active
}

const helpText = `
  Space   pause / resume
  R       restart the ride
  S       back to the scripted ride
  M       step on / off the foot switch
  ← →     steer (C centres)
  ↑ ↓     speed the rider leans for
  T       cycle colour themes
  Q       quit
`

// Run opens the live view full screen.
func Run(m Model) error {
	_, err := tea.NewProgram(m, tea.WithAltScreen()).Run()
	return err
}
