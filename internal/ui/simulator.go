package ui

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/muurk/accelsock/internal/simulator"
	"github.com/muurk/accelsock/internal/telemetry"
)

// TiltStep is how far one key press tilts the simulated device, in radians.
const TiltStep = math.Pi / 36

// fullScale is the reading that fills a bar: two g either way.
const fullScale = 2 * simulator.StandardGravity

// Streamer is the part of simulator.Client the UI drives.
type Streamer interface {
	SessionID() string
	Send(telemetry.Reading) error
	Done() <-chan struct{}
	Close() error
}

// ConnectFunc opens the connection the UI will stream on.
type ConnectFunc func(ctx context.Context) (Streamer, error)

// SimulatorState is where the simulator is in its lifecycle
type SimulatorState int

const (
	StateConnecting SimulatorState = iota
	StateStreaming
	StatePaused
	StateFailed
	StateClosed
)

func (s SimulatorState) String() string {
	switch s {
	case StateConnecting:
		return "Connecting"
	case StateStreaming:
		return "Streaming"
	case StatePaused:
		return "Paused"
	case StateFailed:
		return "Failed"
	case StateClosed:
		return "Disconnected"
	}
	return "Unknown"
}

// Messages for async operations
type connectedMsg struct{ client Streamer }
type connectFailedMsg struct{ err error }
type tickMsg time.Time
type sentMsg struct {
	reading telemetry.Reading
	err     error
}
type disconnectedMsg struct{}

// simulatorKeyMap defines key bindings for the simulator screen
type simulatorKeyMap struct {
	TiltUp    key.Binding
	TiltDown  key.Binding
	TiltLeft  key.Binding
	TiltRight key.Binding
	Level     key.Binding
	Pause     key.Binding
	Quit      key.Binding
}

// ShortHelp returns keybindings to be shown in the mini help view
func (k simulatorKeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.TiltUp, k.TiltDown, k.TiltLeft, k.TiltRight, k.Pause, k.Quit}
}

// FullHelp returns keybindings for the expanded help view
func (k simulatorKeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.TiltUp, k.TiltDown, k.TiltLeft, k.TiltRight},
		{k.Level, k.Pause, k.Quit},
	}
}

func defaultSimulatorKeys() simulatorKeyMap {
	return simulatorKeyMap{
		TiltUp: key.NewBinding(
			key.WithKeys("up", "k"),
			key.WithHelp("↑/k", "pitch up"),
		),
		TiltDown: key.NewBinding(
			key.WithKeys("down", "j"),
			key.WithHelp("↓/j", "pitch down"),
		),
		TiltLeft: key.NewBinding(
			key.WithKeys("left", "h"),
			key.WithHelp("←/h", "roll left"),
		),
		TiltRight: key.NewBinding(
			key.WithKeys("right", "l"),
			key.WithHelp("→/l", "roll right"),
		),
		Level: key.NewBinding(
			key.WithKeys("0"),
			key.WithHelp("0", "level"),
		),
		Pause: key.NewBinding(
			key.WithKeys(" ", "p"),
			key.WithHelp("space", "pause"),
		),
		Quit: key.NewBinding(
			key.WithKeys("q", "ctrl+c", "esc"),
			key.WithHelp("q", "quit"),
		),
	}
}

// SimulatorConfig holds what the simulator screen needs
type SimulatorConfig struct {
	Target   string        // shown under the title
	Connect  ConnectFunc   // opens the connection
	Motion   *simulator.Motion
	Interval time.Duration // between readings
	Count    int           // stop after this many readings; <= 0 means no limit
}

// SimulatorModel is the interactive simulator: it connects, then streams a
// reading every interval while the user tilts the virtual device.
type SimulatorModel struct {
	cfg    SimulatorConfig
	ctx    context.Context
	cancel context.CancelFunc

	State   SimulatorState
	Client  Streamer
	Last    telemetry.Reading
	Sent    int
	Elapsed time.Duration
	Err     error

	width   int
	spinner spinner.Model
	bars    [3]progress.Model
	help    help.Model
	keys    simulatorKeyMap
}

// NewSimulatorModel creates the simulator screen
func NewSimulatorModel(cfg SimulatorConfig) SimulatorModel {
	if cfg.Motion == nil {
		cfg.Motion = simulator.NewMotion()
	}
	if cfg.Interval <= 0 {
		cfg.Interval = simulator.DefaultInterval
	}

	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = SpinnerStyle

	ctx, cancel := context.WithCancel(context.Background())

	m := SimulatorModel{
		cfg:     cfg,
		ctx:     ctx,
		cancel:  cancel,
		State:   StateConnecting,
		spinner: s,
		help:    help.New(),
		keys:    defaultSimulatorKeys(),
	}
	m.setWidth(GetTerminalWidth())
	return m
}

func (m *SimulatorModel) setWidth(width int) {
	m.width = clampWidth(width)
	for i := range m.bars {
		m.bars[i] = progress.New(
			progress.WithDefaultGradient(),
			progress.WithWidth(barWidth(m.width)),
			progress.WithoutPercentage(),
		)
	}
	m.help.Width = m.width
}

// Init implements tea.Model
func (m SimulatorModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.connect())
}

func (m SimulatorModel) connect() tea.Cmd {
	connect := m.cfg.Connect
	ctx := m.ctx
	return func() tea.Msg {
		client, err := connect(ctx)
		if err != nil {
			return connectFailedMsg{err: err}
		}
		return connectedMsg{client: client}
	}
}

func (m SimulatorModel) tick() tea.Cmd {
	return tea.Tick(m.cfg.Interval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func send(client Streamer, r telemetry.Reading) tea.Cmd {
	return func() tea.Msg {
		return sentMsg{reading: r, err: client.Send(r)}
	}
}

func waitForDisconnect(client Streamer) tea.Cmd {
	return func() tea.Msg {
		<-client.Done()
		return disconnectedMsg{}
	}
}

// Update implements tea.Model
func (m SimulatorModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.setWidth(msg.Width)
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case connectedMsg:
		if m.State == StateClosed {
			// Quit while the dial was in flight.
			_ = msg.client.Close()
			return m, nil
		}
		m.Client = msg.client
		m.State = StateStreaming
		return m, tea.Batch(send(m.Client, m.cfg.Motion.Next(0)), m.tick(), waitForDisconnect(m.Client))

	case connectFailedMsg:
		m.State = StateFailed
		m.Err = msg.err
		return m, nil

	case tickMsg:
		if m.State == StatePaused {
			return m, m.tick()
		}
		if m.State != StateStreaming {
			return m, nil
		}
		m.Elapsed += m.cfg.Interval
		return m, tea.Batch(send(m.Client, m.cfg.Motion.Next(m.Elapsed)), m.tick())

	case sentMsg:
		if msg.err != nil {
			if m.State == StateStreaming || m.State == StatePaused {
				m.State = StateFailed
				m.Err = msg.err
			}
			return m, nil
		}
		m.Last = msg.reading
		m.Sent++
		if m.cfg.Count > 0 && m.Sent >= m.cfg.Count {
			return m.quit()
		}
		return m, nil

	case disconnectedMsg:
		if m.State == StateStreaming || m.State == StatePaused {
			m.State = StateClosed
		}
		return m, nil

	case spinner.TickMsg:
		if m.State != StateConnecting {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	return m, nil
}

func (m SimulatorModel) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	motion := m.cfg.Motion

	switch {
	case key.Matches(msg, m.keys.Quit):
		return m.quit()
	case key.Matches(msg, m.keys.TiltUp):
		motion.Tilt(TiltStep, 0)
	case key.Matches(msg, m.keys.TiltDown):
		motion.Tilt(-TiltStep, 0)
	case key.Matches(msg, m.keys.TiltLeft):
		motion.Tilt(0, -TiltStep)
	case key.Matches(msg, m.keys.TiltRight):
		motion.Tilt(0, TiltStep)
	case key.Matches(msg, m.keys.Level):
		motion.Level()
	case key.Matches(msg, m.keys.Pause):
		switch m.State {
		case StateStreaming:
			m.State = StatePaused
		case StatePaused:
			m.State = StateStreaming
		}
	}
	return m, nil
}

func (m SimulatorModel) quit() (tea.Model, tea.Cmd) {
	m.cancel()
	if m.Client != nil {
		_ = m.Client.Close()
	}
	if m.State != StateFailed {
		m.State = StateClosed
	}
	return m, tea.Quit
}

// View implements tea.Model
func (m SimulatorModel) View() string {
	var b strings.Builder

	b.WriteString(TitleStyle.Render("ACCELSOCK SIMULATOR"))
	b.WriteString("\n")
	b.WriteString(TargetStyle.Render(m.cfg.Target))
	b.WriteString("\n\n")
	b.WriteString(m.renderStatus())
	b.WriteString("\n\n")

	if m.State != StateConnecting && !(m.State == StateFailed && m.Client == nil) {
		values := [3]float64{m.Last.X, m.Last.Y, m.Last.Z}
		for i, axis := range [3]string{"X", "Y", "Z"} {
			b.WriteString(m.renderAxis(i, axis, values[i]))
			b.WriteString("\n")
		}
		b.WriteString("\n")

		motion := m.cfg.Motion
		b.WriteString(DetailStyle.Render(fmt.Sprintf(
			"sent %d  •  pitch %+.0f°  •  roll %+.0f°",
			m.Sent, motion.Pitch*180/math.Pi, motion.Roll*180/math.Pi,
		)))
		b.WriteString("\n\n")
	}

	b.WriteString(HelpStyle.Render(m.help.View(m.keys)))

	return FrameStyle(m.width).Render(b.String())
}

func (m SimulatorModel) renderStatus() string {
	prefix := "  "
	switch m.State {
	case StateConnecting:
		return prefix + m.spinner.View() + " Connecting..."
	case StateStreaming:
		return prefix + StatusStreamingStyle.Render("● "+m.State.String()) +
			DetailStyle.Render("session "+m.sessionID())
	case StatePaused:
		return prefix + StatusPausedStyle.Render("❚❚ "+m.State.String()) +
			DetailStyle.Render("session "+m.sessionID())
	case StateFailed:
		msg := "✗ " + m.State.String()
		if m.Err != nil {
			msg += ": " + m.Err.Error()
		}
		return prefix + StatusErrorStyle.Render(msg)
	default:
		return prefix + StatusErrorStyle.Render("✗ "+m.State.String())
	}
}

func (m SimulatorModel) sessionID() string {
	if m.Client == nil {
		return ""
	}
	return m.Client.SessionID()
}

func (m SimulatorModel) renderAxis(i int, label string, value float64) string {
	return AxisLabelStyle.Render(label) +
		m.bars[i].ViewAs(barFraction(value)) +
		AxisValueStyle.Render(fmt.Sprintf("%.2f", value))
}

// barFraction maps a reading onto a bar: magnitude over two g.
func barFraction(v float64) float64 {
	return math.Min(math.Abs(v)/fullScale, 1)
}

// RunSimulator runs the simulator screen until the user quits or Count
// readings have been sent, and returns the final model.
func RunSimulator(cfg SimulatorConfig) (SimulatorModel, error) {
	p := tea.NewProgram(NewSimulatorModel(cfg), tea.WithAltScreen())
	final, err := p.Run()
	if err != nil {
		return SimulatorModel{}, fmt.Errorf("simulator UI failed: %w", err)
	}
	return final.(SimulatorModel), nil
}
