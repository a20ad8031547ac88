// Package tui implements the terminal interface behind the monitor
// command: a viewport streaming manager events, a send input line and a
// status bar showing per-port state.
package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/SujithChristopher/gdserial"
	"github.com/SujithChristopher/gdserial/internal/tui/styles"
)

// pollInterval is how often the model drains the manager's event queue.
// Event delivery is cooperative, so this is the display latency bound.
const pollInterval = 50 * time.Millisecond

type pollMsg time.Time

// Monitor is the bubbletea model for the monitor command. The manager's
// ports are expected to be open before Run is called.
type Monitor struct {
	manager *gdserial.Manager
	ports   []string
	active  int

	viewport viewport.Model
	input    textinput.Model
	insert   bool

	lines        []string
	disconnected map[string]bool
	ready        bool
}

// NewMonitor builds a model over already-open manager ports
func NewMonitor(manager *gdserial.Manager, ports []string) *Monitor {
	input := textinput.New()
	input.Placeholder = "press i to type, enter to send"
	input.CharLimit = 512

	return &Monitor{
		manager:      manager,
		ports:        ports,
		input:        input,
		disconnected: make(map[string]bool),
	}
}

// Run starts the TUI and blocks until the user quits
func Run(manager *gdserial.Manager, ports []string) error {
	p := tea.NewProgram(NewMonitor(manager, ports), tea.WithAltScreen())
	_, err := p.Run()
	return err
}

func (m *Monitor) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.schedulePoll())
}

func (m *Monitor) schedulePoll() tea.Cmd {
	return tea.Tick(pollInterval, func(t time.Time) tea.Msg {
		return pollMsg(t)
	})
}

func (m *Monitor) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		// title + borders + input + status bar
		chromeHeight := 5
		if !m.ready {
			m.viewport = viewport.New(msg.Width, msg.Height-chromeHeight)
			m.ready = true
		} else {
			m.viewport.Width = msg.Width
			m.viewport.Height = msg.Height - chromeHeight
		}
		m.input.Width = msg.Width - 4
		m.refreshContent()

	case pollMsg:
		for _, ev := range m.manager.PollEvents() {
			m.appendEvent(ev)
		}
		cmds = append(cmds, m.schedulePoll())

	case tea.KeyMsg:
		if m.insert {
			switch msg.String() {
			case "esc":
				m.insert = false
				m.input.Blur()
			case "enter":
				m.sendInput()
			default:
				var cmd tea.Cmd
				m.input, cmd = m.input.Update(msg)
				cmds = append(cmds, cmd)
			}
			break
		}

		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case "i":
			m.insert = true
			cmds = append(cmds, m.input.Focus())
		case "tab":
			if len(m.ports) > 0 {
				m.active = (m.active + 1) % len(m.ports)
			}
		case "c":
			m.lines = nil
			m.refreshContent()
		default:
			var cmd tea.Cmd
			m.viewport, cmd = m.viewport.Update(msg)
			cmds = append(cmds, cmd)
		}
	}

	return m, tea.Batch(cmds...)
}

func (m *Monitor) appendEvent(ev gdserial.Event) {
	tag := styles.PortTagStyle.Render(fmt.Sprintf("[%s]", ev.Port))
	switch ev.Type {
	case gdserial.EventDataReceived:
		text := strings.TrimRight(string(ev.Data), "\r\n")
		for _, line := range strings.Split(text, "\n") {
			m.lines = append(m.lines, fmt.Sprintf("%s %s", tag, line))
		}
	case gdserial.EventDisconnected:
		m.disconnected[ev.Port] = true
		m.lines = append(m.lines, fmt.Sprintf("%s %s", tag,
			styles.DisconnectStyle.Render("device disconnected")))
	}
	m.refreshContent()
}

func (m *Monitor) refreshContent() {
	if !m.ready {
		return
	}
	m.viewport.SetContent(strings.Join(m.lines, "\n"))
	m.viewport.GotoBottom()
}

func (m *Monitor) sendInput() {
	line := m.input.Value()
	m.input.Reset()
	if line == "" || len(m.ports) == 0 {
		return
	}

	port := m.ports[m.active]
	if err := m.manager.WriteLinePort(port, line); err != nil {
		m.lines = append(m.lines, styles.DisconnectStyle.Render(
			fmt.Sprintf("send to %s failed: %v", port, err)))
	} else {
		m.lines = append(m.lines, fmt.Sprintf("%s > %s",
			styles.PortTagStyle.Render(fmt.Sprintf("[%s]", port)), line))
	}
	m.refreshContent()
}

func (m *Monitor) View() string {
	if !m.ready {
		return "Initializing..."
	}

	title := styles.TitleStyle.Render("gdserial monitor")

	mode := "NORMAL"
	if m.insert {
		mode = "INSERT"
	}

	var portStates []string
	for i, port := range m.ports {
		render := styles.StatusConnectedStyle.Render
		if m.disconnected[port] {
			render = styles.StatusDisconnectedStyle.Render
		}
		name := port
		if i == m.active {
			name = "*" + name
		}
		portStates = append(portStates, render(name))
	}

	statusBar := lipgloss.JoinHorizontal(lipgloss.Top,
		styles.ModeStyle.Render(mode),
		styles.StatusBarStyle.Render(strings.Join(portStates, "  ")),
	)

	return lipgloss.JoinVertical(lipgloss.Left,
		title,
		styles.ContentBorderStyle.Render(m.viewport.View()),
		m.input.View(),
		statusBar,
	)
}
