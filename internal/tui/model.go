// Package tui is the terminal front-end: relay lamps, a status bar and the
// tail of the event log, driven from the keyboard.
package tui

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/sweeney/lightpanel/internal/eventlog"
	"github.com/sweeney/lightpanel/internal/panel"
	"github.com/sweeney/lightpanel/internal/relay"
	"github.com/sweeney/lightpanel/internal/sheet"
)

// refreshInterval is how often the model polls the panel and the log.
const refreshInterval = 200 * time.Millisecond

// Panel is the command surface the TUI drives.
type Panel interface {
	ToggleRelay(index int) (*panel.Operation, error)
	TestAllRelays() (*panel.Operation, error)
	EnterProgrammingMode() (*panel.Operation, error)
	ExitProgrammingMode() (*panel.Operation, error)
	Reset(c panel.Confirmer) (*panel.Operation, error)
	PlayChannelScene(channel, scene, level int) (*panel.Operation, error)
	ProgramSceneForZone(scene, zone int, c panel.Confirmer) (*panel.Operation, error)
	AllocateToZone(zone int, c panel.Confirmer) (*panel.Operation, error)
	AllOff() error
	Cancel() bool
	SetDebug(on bool)
	Advance() bool
	Status() panel.Status
}

// Hardware is shown in the status bar.
type Hardware struct {
	Driver    string
	Simulated bool
}

// prompt is the input line state for commands that take arguments.
type prompt int

const (
	promptNone prompt = iota
	promptPlay
	promptProgram
	promptAllocate
	promptZone
	promptLevel
	promptConfirm
)

var promptLabels = map[prompt]string{
	promptPlay:     "Play (channel scene):",
	promptProgram:  "Program (scene zone):",
	promptAllocate: "Allocate (zone):",
	promptZone:     "Set zone (channel zone):",
	promptLevel:    "Set level (channel scene level):",
}

type tickMsg time.Time

// Model is the bubbletea model.
type Model struct {
	panel    Panel
	events   *eventlog.Log
	table    *sheet.Table
	hardware Hardware
	site     string

	status  panel.Status
	lines   []eventlog.Entry
	version uint64

	prompt  prompt
	input   string
	confirm func(panel.Confirmer) error
	ask     string
	notice  string

	width  int
	height int
}

// New creates a model over p, showing lines from events. table supplies
// the levels for Play and may be nil.
func New(p Panel, events *eventlog.Log, table *sheet.Table, hw Hardware) Model {
	m := Model{
		panel:    p,
		events:   events,
		table:    table,
		hardware: hw,
		width:    80,
		height:   24,
	}
	if table != nil {
		m.site = table.Sheet().SiteName
	}
	m.refresh()
	return m
}

// Init starts the refresh ticker.
func (m Model) Init() tea.Cmd {
	return tickCmd()
}

func tickCmd() tea.Cmd {
	return tea.Tick(refreshInterval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m *Model) refresh() {
	m.status = m.panel.Status()
	if v := m.events.Version(); v != m.version || m.lines == nil {
		m.version = v
		m.lines = m.events.Tail(m.logHeight())
	}
}

// Update handles messages.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.lines = nil
		m.refresh()
		return m, nil

	case tickMsg:
		m.refresh()
		return m, tickCmd()

	case tea.KeyMsg:
		var cmd tea.Cmd
		m, cmd = m.handleKey(msg)
		m.refresh()
		return m, cmd
	}
	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (Model, tea.Cmd) {
	key := msg.String()
	if key == "ctrl+c" {
		return m, tea.Quit
	}

	switch m.prompt {
	case promptConfirm:
		return m.handleConfirm(key), nil
	case promptPlay, promptProgram, promptAllocate, promptZone, promptLevel:
		return m.handleInput(msg), nil
	}

	m.notice = ""
	switch key {
	case "q":
		return m, tea.Quit
	case "0", "1", "2", "3", "4", "5", "6", "7", "8", "9":
		n, _ := strconv.Atoi(key)
		m.run(m.panel.ToggleRelay(n))
	case "p":
		m.run(m.panel.EnterProgrammingMode())
	case "x":
		m.run(m.panel.ExitProgrammingMode())
	case "t":
		m.run(m.panel.TestAllRelays())
	case "r":
		m.ask = "Are you sure you want to reset? (y/n)"
		m.confirm = func(c panel.Confirmer) error {
			_, err := m.panel.Reset(c)
			return err
		}
		m.prompt = promptConfirm
	case "a":
		if err := m.panel.AllOff(); err != nil {
			m.notice = err.Error()
		}
	case "d":
		m.panel.SetDebug(!m.status.Debug)
	case "n":
		if !m.panel.Advance() {
			m.notice = "nothing is waiting for the next step"
		}
	case "esc":
		if !m.panel.Cancel() {
			m.notice = "nothing to cancel"
		}
	case "P":
		m.prompt = promptPlay
	case "G":
		m.prompt = promptProgram
	case "A":
		m.prompt = promptAllocate
	case "Z":
		m.prompt = promptZone
	case "L":
		m.prompt = promptLevel
	}
	return m, nil
}

func (m Model) handleInput(msg tea.KeyMsg) Model {
	switch msg.Type {
	case tea.KeyEsc:
		m.prompt, m.input = promptNone, ""
	case tea.KeyEnter:
		m = m.submit()
	case tea.KeyBackspace:
		if len(m.input) > 0 {
			m.input = m.input[:len(m.input)-1]
		}
	case tea.KeySpace:
		m.input += " "
	case tea.KeyRunes:
		for _, r := range msg.Runes {
			if r == ' ' || (r >= '0' && r <= '9') {
				m.input += string(r)
			}
		}
	}
	return m
}

// submit parses the input line of the current prompt.
func (m Model) submit() Model {
	kind, input := m.prompt, m.input
	m.prompt, m.input = promptNone, ""

	args, err := parseArgs(input)
	switch {
	case err != nil:
	case kind == promptPlay && len(args) == 2:
		var level int
		level, err = m.level(args[0], args[1])
		if err == nil {
			m.run(m.panel.PlayChannelScene(args[0], args[1], level))
		}
	case kind == promptProgram && len(args) == 2:
		scene, zone := args[0], args[1]
		m.ask = fmt.Sprintf("Program scene %d for zone %d? (y/n)", scene, zone)
		m.confirm = func(c panel.Confirmer) error {
			_, err := m.panel.ProgramSceneForZone(scene, zone, c)
			return err
		}
		m.prompt = promptConfirm
	case kind == promptAllocate && len(args) == 1:
		zone := args[0]
		m.ask = fmt.Sprintf("Allocate channels to zone %d? (y/n)", zone)
		m.confirm = func(c panel.Confirmer) error {
			_, err := m.panel.AllocateToZone(zone, c)
			return err
		}
		m.prompt = promptConfirm
	case kind == promptZone && len(args) == 2:
		err = m.edit(func(t *sheet.Table) error { return t.SetZone(args[0], strconv.Itoa(args[1])) })
	case kind == promptLevel && len(args) == 3:
		err = m.edit(func(t *sheet.Table) error { return t.SetLevel(args[0], args[1], args[2]) })
	default:
		err = fmt.Errorf("%w: %q", panel.ErrInvalidInput, input)
	}
	if err != nil {
		m.notice = err.Error()
	}
	return m
}

func (m Model) handleConfirm(key string) Model {
	var c panel.Confirmer
	switch key {
	case "y", "Y":
		c = panel.Confirmed
	case "n", "N", "esc":
		c = panel.Declined
	default:
		return m
	}
	confirm := m.confirm
	m.prompt, m.confirm, m.ask = promptNone, nil, ""
	if err := confirm(c); err != nil && !errors.Is(err, panel.ErrDeclined) {
		m.notice = err.Error()
	}
	return m
}

func (m *Model) run(_ *panel.Operation, err error) {
	if err != nil {
		m.notice = err.Error()
	}
}

// edit applies a change to the levels sheet.
func (m Model) edit(fn func(*sheet.Table) error) error {
	if m.table == nil {
		return fmt.Errorf("%w: no levels sheet", panel.ErrInvalidInput)
	}
	return fn(m.table)
}

// level reads the sheet cell for channel and scene.
func (m Model) level(channel, scene int) (int, error) {
	if m.table == nil {
		return 0, fmt.Errorf("%w: no levels sheet", panel.ErrInvalidInput)
	}
	rows := m.table.Snapshot()
	if channel < 1 || channel > len(rows) {
		return 0, fmt.Errorf("%w: channel %d not in sheet", panel.ErrInvalidInput, channel)
	}
	return rows[channel-1].Level(scene)
}

func parseArgs(s string) ([]int, error) {
	var out []int
	for _, f := range strings.Fields(s) {
		n, err := strconv.Atoi(f)
		if err != nil {
			return nil, fmt.Errorf("%w: %q", panel.ErrInvalidInput, f)
		}
		out = append(out, n)
	}
	return out, nil
}

func (m Model) logHeight() int {
	// title, lamps (3), status, blank, prompt/notice, footer
	h := m.height - 8
	if h < 3 {
		h = 3
	}
	return h
}

// View renders the screen.
func (m Model) View() string {
	var b strings.Builder

	title := "Light Panel"
	if m.site != "" {
		title += " - " + m.site
	}
	b.WriteString(titleStyle.Render(title))
	b.WriteString("\n")
	b.WriteString(m.renderLamps())
	b.WriteString("\n")
	b.WriteString(m.renderStatusBar())
	b.WriteString("\n\n")
	b.WriteString(m.renderLog())
	b.WriteString("\n")
	b.WriteString(m.renderPromptLine())
	b.WriteString("\n")
	b.WriteString(m.renderFooter())
	return b.String()
}

func (m Model) renderLamps() string {
	word, _ := parseWord(m.status.Word)
	lamps := make([]string, relay.Count)
	for i := range lamps {
		r := relay.Index(i)
		style := lampStyle
		if word.On(r) {
			style = lampOnStyle
		}
		if r == relay.GuardLow || r == relay.GuardHigh {
			style = style.BorderForeground(guardBorder)
		}
		lamps[i] = style.Render(r.String())
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, lamps...)
}

func (m Model) renderStatusBar() string {
	parts := []string{"word " + m.status.Word}
	if m.status.Running != "" {
		parts = append(parts, runningStyle.Render("running "+m.status.Running))
	}
	if m.status.Queued > 0 {
		parts = append(parts, fmt.Sprintf("%d queued", m.status.Queued))
	}
	if m.status.Debug {
		d := "debug"
		if m.status.Waiting {
			d += " (waiting)"
		}
		parts = append(parts, d)
	}
	parts = append(parts, "hold "+m.status.Hold.String())
	hw := m.hardware.Driver
	if m.hardware.Simulated {
		hw = simulatedStyle.Render(hw + " (simulated)")
	}
	parts = append(parts, hw)
	if !m.status.Ready {
		parts = append(parts, errorStyle.Render("not ready"))
	}
	return statusStyle.Render(strings.Join(parts, " · "))
}

func (m Model) renderLog() string {
	lines := m.lines
	if n := m.logHeight(); len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	out := make([]string, 0, len(lines))
	for _, e := range lines {
		text := truncate(e.Text, m.width-9)
		switch {
		case strings.HasPrefix(text, "ERROR"):
			text = errorStyle.Render(text)
		case strings.HasPrefix(text, "==="):
			text = stepStyle.Render(text)
		}
		out = append(out, timestampStyle.Render(e.Time.Format("15:04:05"))+" "+text)
	}
	return strings.Join(out, "\n")
}

func (m Model) renderPromptLine() string {
	switch m.prompt {
	case promptConfirm:
		return promptStyle.Render(m.ask)
	case promptNone:
		if m.notice != "" {
			return errorStyle.Render(m.notice)
		}
		return ""
	}
	return promptStyle.Render(promptLabels[m.prompt]) + " " + m.input + "_"
}

func (m Model) renderFooter() string {
	keys := [][2]string{
		{"0-9", "pulse"}, {"p/x", "prog"}, {"r", "reset"}, {"t", "test"},
		{"a", "all off"}, {"d", "debug"}, {"n", "next"}, {"esc", "cancel"},
		{"P", "play"}, {"G", "program"}, {"A", "allocate"}, {"Z/L", "edit"}, {"q", "quit"},
	}
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = footerKeyStyle.Render(k[0]) + footerDescStyle.Render(" "+k[1])
	}
	return strings.Join(parts, "  ")
}

func parseWord(s string) (relay.Word, error) {
	n, err := strconv.ParseUint(strings.TrimPrefix(s, "0x"), 16, 16)
	if err != nil {
		return relay.Off, err
	}
	return relay.Word(n), nil
}

func truncate(s string, width int) string {
	if width <= 0 || len(s) <= width {
		return s
	}
	return s[:width]
}
