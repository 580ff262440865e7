// Package tui is a terminal dashboard for the console engine.
// Engine notifications become tea messages via Presenter, key presses
// become engine intents executed as tea commands.
package tui

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/napd/console/internal/engine"
	"github.com/napd/console/internal/fault"
	"github.com/napd/console/internal/link"
	"github.com/napd/console/internal/selection"
	"github.com/napd/console/internal/telemetry"
	"github.com/napd/console/protocol"
)

// Actions is the subset of engine used by dashboard keys.
type Actions interface {
	TogglePump() error
	SelectPump(selection.Pump) error
	SetPumpState(string) error
	RequestRefresh() error
}

type stateMsg link.State

type telemetryMsg struct {
	domain telemetry.Domain
	fields telemetry.Fields
}

type faultsMsg struct {
	active       []string
	instructions string
}

type selectionMsg selection.Pump

type noteMsg struct {
	text     string
	severity engine.Severity
	at       time.Time
}

type heartbeatMsg time.Time

type actionDoneMsg struct {
	name string
	err  error
}

type tickMsg time.Time

// queueLimit bounds messages waiting for a program that is not reading.
const queueLimit = 1024

// Presenter implements engine.Presenter by sending into a running program.
// Messages are queued in order and a separate goroutine hands them to send,
// which blocks until program is running. Engine loop never waits for UI.
// When queue is full the oldest message is dropped.
type Presenter struct {
	send func(tea.Msg)
	wake chan struct{}
	stop chan struct{}

	mu      sync.Mutex
	queue   []tea.Msg
	dropped uint64
	closed  bool
}

func NewPresenter(send func(tea.Msg)) *Presenter {
	p := &Presenter{
		send: send,
		wake: make(chan struct{}, 1),
		stop: make(chan struct{}),
	}
	go p.forward()
	return p
}

// Close stops forwarding, queued messages are discarded.
func (p *Presenter) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.closed {
		p.closed = true
		p.queue = nil
		close(p.stop)
	}
}

func (p *Presenter) Dropped() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.dropped
}

func (p *Presenter) post(msg tea.Msg) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	if len(p.queue) >= queueLimit {
		p.queue = p.queue[1:]
		p.dropped++
	}
	p.queue = append(p.queue, msg)
	p.mu.Unlock()
	select {
	case p.wake <- struct{}{}:
	default:
	}
}

func (p *Presenter) forward() {
	for {
		select {
		case <-p.wake:
		case <-p.stop:
			return
		}
		for {
			p.mu.Lock()
			batch := p.queue
			p.queue = nil
			p.mu.Unlock()
			if len(batch) == 0 {
				break
			}
			for _, msg := range batch {
				select {
				case <-p.stop:
					return
				default:
				}
				p.send(msg)
			}
		}
	}
}

func (p *Presenter) OnConnectionStateChanged(s link.State) { p.post(stateMsg(s)) }
func (p *Presenter) OnTelemetryChanged(d telemetry.Domain, f telemetry.Fields) {
	p.post(telemetryMsg{domain: d, fields: f})
}
func (p *Presenter) OnFaultsChanged(active []string, instructions string) {
	p.post(faultsMsg{active: active, instructions: instructions})
}
func (p *Presenter) OnSelectionChanged(pump selection.Pump) { p.post(selectionMsg(pump)) }
func (p *Presenter) OnNotification(text string, s engine.Severity) {
	p.post(noteMsg{text: text, severity: s, at: time.Now()})
}
func (p *Presenter) OnHeartbeat(at time.Time) { p.post(heartbeatMsg(at)) }

type theme struct {
	header   lipgloss.Style
	panel    lipgloss.Style
	title    lipgloss.Style
	ok       lipgloss.Style
	warn     lipgloss.Style
	bad      lipgloss.Style
	muted    lipgloss.Style
	selected lipgloss.Style
	fatalBox lipgloss.Style
}

func newTheme() theme {
	green := lipgloss.Color("#05ffa1")
	yellow := lipgloss.Color("#ffd166")
	red := lipgloss.Color("#ff5d5d")
	blue := lipgloss.Color("#01cdfe")
	muted := lipgloss.Color("#9ca3d8")
	return theme{
		header: lipgloss.NewStyle().Bold(true).Padding(0, 1).
			BorderStyle(lipgloss.RoundedBorder()).BorderForeground(blue),
		panel: lipgloss.NewStyle().Padding(0, 1).Width(28).
			BorderStyle(lipgloss.RoundedBorder()).BorderForeground(muted),
		title:    lipgloss.NewStyle().Foreground(blue).Bold(true),
		ok:       lipgloss.NewStyle().Foreground(green).Bold(true),
		warn:     lipgloss.NewStyle().Foreground(yellow).Bold(true),
		bad:      lipgloss.NewStyle().Foreground(red).Bold(true),
		muted:    lipgloss.NewStyle().Foreground(muted),
		selected: lipgloss.NewStyle().Foreground(green).Bold(true).Underline(true),
		fatalBox: lipgloss.NewStyle().Padding(1, 2).Foreground(red).Bold(true).
			BorderStyle(lipgloss.ThickBorder()).BorderForeground(red),
	}
}

type Model struct {
	actions   Actions
	consoleID string
	noteLimit int

	state        link.State
	pump         selection.Pump
	telemetry    map[telemetry.Domain]telemetry.Fields
	faults       []string
	instructions string
	notes        []noteMsg
	lastSeen     time.Time
	fatal        string
	now          time.Time

	spinner spinner.Model
	theme   theme
	width   int
}

func NewModel(actions Actions, consoleID string, noteLimit int) Model {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	return Model{
		actions:      actions,
		consoleID:    consoleID,
		noteLimit:    noteLimit,
		state:        link.StateDisconnected,
		pump:         selection.DefaultPump,
		telemetry:    make(map[telemetry.Domain]telemetry.Fields, len(telemetry.Domains)),
		instructions: fault.NoFaults,
		spinner:      sp,
		theme:        newTheme(),
		width:        100,
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, tickCmd())
}

func tickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (m Model) action(name string, f func() error) tea.Cmd {
	return func() tea.Msg { return actionDoneMsg{name: name, err: f()} }
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width

	case stateMsg:
		m.state = link.State(msg)

	case telemetryMsg:
		stored := m.telemetry[msg.domain]
		if stored == nil {
			stored = make(telemetry.Fields, len(msg.fields))
			m.telemetry[msg.domain] = stored
		}
		for k, v := range msg.fields {
			stored[k] = v
		}

	case faultsMsg:
		m.faults = msg.active
		m.instructions = msg.instructions

	case selectionMsg:
		m.pump = selection.Pump(msg)

	case noteMsg:
		if msg.severity == engine.SeverityFatal {
			m.fatal = msg.text
		}
		m.addNote(msg)

	case heartbeatMsg:
		m.lastSeen = time.Time(msg)

	case actionDoneMsg:
		if msg.err != nil {
			m.addNote(noteMsg{text: fmt.Sprintf("%s: %v", msg.name, msg.err), severity: engine.SeverityWarning, at: time.Now()})
		}

	case tickMsg:
		m.now = time.Time(msg)
		return m, tickCmd()

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m *Model) addNote(n noteMsg) {
	m.notes = append(m.notes, n)
	if over := len(m.notes) - m.noteLimit; m.noteLimit > 0 && over > 0 {
		m.notes = append([]noteMsg(nil), m.notes[over:]...)
	}
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c", "q":
		return m, tea.Quit
	}
	if m.fatal != "" {
		return m, nil
	}
	switch msg.String() {
	case "t", " ":
		return m, m.action("toggle", m.actions.TogglePump)
	case "1":
		return m, m.action("select pump1", func() error { return m.actions.SelectPump(selection.Pump1) })
	case "2":
		return m, m.action("select pump2", func() error { return m.actions.SelectPump(selection.Pump2) })
	case "p":
		return m, m.action("start", func() error { return m.actions.SetPumpState(protocol.PumpStatePumping) })
	case "s":
		return m, m.action("stop", func() error { return m.actions.SetPumpState(protocol.PumpStateStandby) })
	case "r":
		return m, m.action("refresh", m.actions.RequestRefresh)
	}
	return m, nil
}

func (m Model) View() string {
	if m.fatal != "" {
		return m.theme.fatalBox.Render(m.fatal) + "\n"
	}
	var b strings.Builder
	b.WriteString(m.theme.header.Render(m.headerLine()))
	b.WriteString("\n")
	b.WriteString(m.pumpLine())
	b.WriteString("\n")

	panels := make([]string, 0, len(telemetry.Domains))
	for _, d := range telemetry.Domains {
		panels = append(panels, m.domainPanel(d))
	}
	for i := 0; i < len(panels); i += 3 {
		end := i + 3
		if end > len(panels) {
			end = len(panels)
		}
		b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, panels[i:end]...))
		b.WriteString("\n")
	}

	b.WriteString(m.faultsBlock())
	b.WriteString("\n")
	for _, n := range m.notes {
		style := m.theme.muted
		if n.severity != engine.SeverityInfo {
			style = m.theme.warn
		}
		b.WriteString(style.Render(fmt.Sprintf("%s %s", n.at.Format("15:04:05"), n.text)))
		b.WriteString("\n")
	}
	b.WriteString(m.theme.muted.Render("t toggle  1/2 select  p pumping  s standby  r refresh  q quit"))
	b.WriteString("\n")
	return b.String()
}

func (m Model) headerLine() string {
	var state string
	switch m.state {
	case link.StateConnected:
		state = m.theme.ok.Render(m.state.String())
	case link.StateConnecting, link.StateReconnecting:
		state = m.spinner.View() + " " + m.theme.warn.Render(m.state.String())
	default:
		state = m.theme.bad.Render(m.state.String())
	}
	seen := "no heartbeat"
	if !m.lastSeen.IsZero() {
		seen = "heartbeat " + m.lastSeen.Format("15:04:05")
	}
	return fmt.Sprintf("console %s  %s  %s", m.consoleID, state, m.theme.muted.Render(seen))
}

func (m Model) pumpLine() string {
	render := func(p selection.Pump) string {
		if p == m.pump {
			return m.theme.selected.Render("[" + p.String() + "]")
		}
		return m.theme.muted.Render(" " + p.String() + " ")
	}
	return "selected: " + render(selection.Pump1) + " " + render(selection.Pump2)
}

func (m Model) domainPanel(d telemetry.Domain) string {
	var b strings.Builder
	b.WriteString(m.theme.title.Render(string(d)))
	fields := m.telemetry[d]
	if len(fields) == 0 {
		b.WriteString("\n" + m.theme.muted.Render("-"))
	}
	for _, name := range fields.Names() {
		b.WriteString(fmt.Sprintf("\n%s: %s", name, fields[name].String()))
	}
	return m.theme.panel.Render(b.String())
}

func (m Model) faultsBlock() string {
	if len(m.faults) == 0 {
		return m.theme.ok.Render(m.instructions)
	}
	lines := make([]string, 0, len(m.faults)+1)
	for _, f := range m.faults {
		lines = append(lines, m.theme.bad.Render(f))
	}
	lines = append(lines, m.theme.warn.Render(m.instructions))
	return strings.Join(lines, "\n")
}
