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
	"github.com/san-kum/turbinectl/internal/plant"
	"github.com/san-kum/turbinectl/internal/runner"
)

const (
	canvasWidth  = 36
	canvasHeight = 18
	chartWindow  = 400
)

type TickMsg time.Time

// Model steps a runner a fixed number of host steps per frame and draws it.
type Model struct {
	run      *runner.Runner
	name     string
	fps      int
	perFrame int
	channels map[string]int

	canvas   *Canvas
	theme    Theme
	paused   bool
	finished bool
	showHelp bool
	err      error
}

// NewModel shows r at fps frames per second, advancing speed simulated
// seconds per wall-clock second.
func NewModel(r *runner.Runner, name string, fps int, speed float64) Model {
	if fps < 1 {
		fps = 30
	}
	perFrame := int(math.Round(speed / (float64(fps) * r.TimeStep())))

	channels := make(map[string]int)
	for i, ch := range r.Result().Channels {
		channels[ch] = i
	}

	return Model{
		run:      r,
		name:     name,
		fps:      fps,
		perFrame: max(1, perFrame),
		channels: channels,
		canvas:   NewCanvas(canvasWidth, canvasHeight),
		theme:    Themes[0],
	}
}

// Run shows the dashboard until the run ends and the user quits. It returns
// the run's error, if any.
func Run(r *runner.Runner, name string, fps int, speed float64) error {
	final, err := tea.NewProgram(NewModel(r, name, fps, speed), tea.WithAltScreen()).Run()
	if err != nil {
		return errors.Join(err, r.Close())
	}
	return final.(Model).Err()
}

func (m Model) tick() tea.Cmd {
	return tea.Tick(time.Second/time.Duration(m.fps), func(t time.Time) tea.Msg { return TickMsg(t) })
}

func (m Model) Init() tea.Cmd { return m.tick() }

func (m Model) Err() error { return m.err }

func (m Model) Finished() bool { return m.finished }

func (m Model) Paused() bool { return m.paused }

func (m Model) StepsPerFrame() int { return m.perFrame }

func (m Model) Theme() Theme { return m.theme }

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m.finish(nil)
			return m, tea.Quit
		case " ", "p":
			m.paused = !m.paused
		case "+", "=":
			m.perFrame *= 2
		case "-", "_":
			m.perFrame = max(1, m.perFrame/2)
		case "t":
			m.theme = m.theme.next()
		case "?":
			m.showHelp = !m.showHelp
		}
	case TickMsg:
		if m.finished {
			return m, nil
		}
		if !m.paused {
			m.advance()
		}
		return m, m.tick()
	}
	return m, nil
}

func (m *Model) advance() {
	for i := 0; i < m.perFrame && !m.run.Done(); i++ {
		if err := m.run.Step(); err != nil {
			m.finish(err)
			return
		}
	}
	if m.run.Done() {
		m.finish(nil)
	}
}

// finish closes the runner once, keeping the first error.
func (m *Model) finish(err error) {
	if m.finished {
		return
	}
	m.finished = true
	m.err = errors.Join(err, m.run.Close())
}

func (m Model) column(name string) []float64 {
	idx, ok := m.channels[name]
	if !ok {
		return nil
	}
	rows := m.run.Result().Rows
	rows = rows[max(0, len(rows)-chartWindow):]
	out := make([]float64, len(rows))
	for i, row := range rows {
		out[i] = row[idx]
	}
	return out
}

func (m Model) latest(name string) float64 {
	col := m.column(name)
	if len(col) == 0 {
		return 0
	}
	return col[len(col)-1]
}

func (m Model) statusText() string {
	switch {
	case m.err != nil:
		return "FAILED"
	case m.finished:
		return "DONE"
	case m.paused:
		return "PAUSED"
	}
	return "RUNNING"
}

func (m Model) View() string {
	th := m.theme
	tb := m.run.Turbine()
	x := tb.State()

	m.canvas.Clear()
	DrawRotor(m.canvas, x[plant.Azimuth], x[plant.TowerDisp])
	rotorView := lipgloss.NewStyle().Foreground(th.Primary).Render(m.canvas.String())

	var s strings.Builder
	s.WriteString(th.header().Render(strings.ToUpper(m.name)) + "\n")
	s.WriteString(th.status(m.statusText()) + "  " + ProgressBar(m.run.Progress(), 20, th) + "\n\n")

	line := func(label, format string, v float64) {
		s.WriteString(th.label().Render(label) + th.value().Render(fmt.Sprintf(format, v)) + "\n")
	}
	line("Time", "%.2f s", tb.Time())
	line("Wind", "%.2f m/s", m.latest("wind_speed"))
	line("Rotor", "%.3f rad/s", m.latest("rotor_speed"))
	line("Pitch", "%.2f deg", m.latest("pitch_1"))
	line("Gen torque", "%.1f kN·m", m.latest("generator_torque"))
	line("Power", "%.0f kW", m.latest("power"))
	line("Tower", "%.3f m", m.latest("tower_displacement"))

	sess := m.run.Session()
	s.WriteString(th.label().Render("Controller") + th.value().Render(fmt.Sprintf("%s (%d calls)", sess.Phase(), sess.Calls())) + "\n")
	s.WriteString(th.label().Render("Wind trend") + Sparkline(m.column("wind_speed"), 24) + "\n")
	if m.err != nil {
		s.WriteString("\n" + lipgloss.NewStyle().Foreground(th.Bad).Width(48).Render(m.err.Error()) + "\n")
	}

	s.WriteString("\n" + Separator(40, th) + "\n")
	for _, c := range []struct{ name, caption string }{
		{"rotor_speed", "rotor speed (rad/s)"},
		{"pitch_1", "pitch (deg)"},
	} {
		if data := m.column(c.name); len(data) > 1 {
			s.WriteString(asciigraph.Plot(data,
				asciigraph.Height(4),
				asciigraph.Width(40),
				asciigraph.Caption(c.caption),
			) + "\n")
		}
	}
	s.WriteString(th.hint().Render("SP:Pause +/-:Speed T:Theme ?:Help Q:Quit"))

	view := lipgloss.JoinHorizontal(lipgloss.Top, th.panel().Render(rotorView), th.panel().Render(s.String()))
	if m.showHelp {
		help := th.panel().Render(strings.Join([]string{
			"Space   pause or resume",
			"+ / -   double or halve steps per frame",
			"T       cycle themes (" + strings.Join(ThemeNames(), ", ") + ")",
			"?       toggle this help",
			"Q       finalize the controller and quit",
		}, "\n"))
		return help + "\n" + view
	}
	return view
}
