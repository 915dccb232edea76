package tui

import (
	"errors"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/sweeney/lightpanel/internal/eventlog"
	"github.com/sweeney/lightpanel/internal/panel"
	"github.com/sweeney/lightpanel/internal/sheet"
)

type call struct {
	name    string
	args    []int
	confirm bool
}

type fakePanel struct {
	calls   []call
	status  panel.Status
	err     error
	events  *eventlog.Log
	waiting bool
}

func (f *fakePanel) record(name string, args ...int) (*panel.Operation, error) {
	f.calls = append(f.calls, call{name: name, args: args})
	return nil, f.err
}

func (f *fakePanel) confirmed(name string, c panel.Confirmer, args ...int) (*panel.Operation, error) {
	ok := c.Confirm(name)
	f.calls = append(f.calls, call{name: name, args: args, confirm: ok})
	if !ok {
		f.events.Append(name + " canceled.")
		return nil, panel.ErrDeclined
	}
	return nil, f.err
}

func (f *fakePanel) ToggleRelay(i int) (*panel.Operation, error) { return f.record("toggle", i) }
func (f *fakePanel) TestAllRelays() (*panel.Operation, error) { return f.record("test-all") }
func (f *fakePanel) EnterProgrammingMode() (*panel.Operation, error) { return f.record("program-mode") }
func (f *fakePanel) ExitProgrammingMode() (*panel.Operation, error) { return f.record("exit-program-mode") }
func (f *fakePanel) Reset(c panel.Confirmer) (*panel.Operation, error) {
	return f.confirmed("Reset", c)
}
func (f *fakePanel) PlayChannelScene(ch, scene, level int) (*panel.Operation, error) {
	return f.record("play", ch, scene, level)
}
func (f *fakePanel) ProgramSceneForZone(scene, zone int, c panel.Confirmer) (*panel.Operation, error) {
	return f.confirmed("Programming", c, scene, zone)
}
func (f *fakePanel) AllocateToZone(zone int, c panel.Confirmer) (*panel.Operation, error) {
	return f.confirmed("Allocation", c, zone)
}
func (f *fakePanel) AllOff() error {
	f.calls = append(f.calls, call{name: "all-off"})
	return nil
}
func (f *fakePanel) Cancel() bool {
	f.calls = append(f.calls, call{name: "cancel"})
	return false
}
func (f *fakePanel) SetDebug(on bool) {
	f.status.Debug = on
	f.calls = append(f.calls, call{name: "debug"})
}
func (f *fakePanel) Advance() bool {
	f.calls = append(f.calls, call{name: "advance"})
	return f.waiting
}
func (f *fakePanel) Status() panel.Status { return f.status }

func (f *fakePanel) names() []string {
	out := make([]string, len(f.calls))
	for i, c := range f.calls {
		out[i] = c.name
	}
	return out
}

func newTestModel(t *testing.T) (Model, *fakePanel) {
	t.Helper()
	events := eventlog.New(0)
	fp := &fakePanel{events: events, status: panel.Status{Ready: true, Word: "0xFFFF", Hold: 500 * time.Millisecond}}
	sh, _ := sheet.New(3)
	sh.SiteName = "Main Hall"
	sh.Rows[2].Scenes[0] = "65"
	m := New(fp, events, sheet.NewTable(sh), Hardware{Driver: "simulated", Simulated: true})
	return m, fp
}

func press(t *testing.T, m Model, keys ...string) Model {
	t.Helper()
	for _, k := range keys {
		var msg tea.KeyMsg
		switch k {
		case "enter":
			msg = tea.KeyMsg{Type: tea.KeyEnter}
		case "esc":
			msg = tea.KeyMsg{Type: tea.KeyEsc}
		case "backspace":
			msg = tea.KeyMsg{Type: tea.KeyBackspace}
		case " ":
			msg = tea.KeyMsg{Type: tea.KeySpace, Runes: []rune{' '}}
		default:
			msg = tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(k)}
		}
		updated, _ := m.Update(msg)
		m = updated.(Model)
	}
	return m
}

func TestDigitKeysPulseRelays(t *testing.T) {
	m, fp := newTestModel(t)
	press(t, m, "0", "5", "9")

	if len(fp.calls) != 3 {
		t.Fatalf("expected 3 calls, got %v", fp.names())
	}
	for i, want := range []int{0, 5, 9} {
		if fp.calls[i].name != "toggle" || fp.calls[i].args[0] != want {
			t.Errorf("call %d = %+v, want toggle %d", i, fp.calls[i], want)
		}
	}
}

func TestCommandKeys(t *testing.T) {
	m, fp := newTestModel(t)
	press(t, m, "p", "x", "t", "a", "d", "n", "esc")

	want := []string{"program-mode", "exit-program-mode", "test-all", "all-off", "debug", "advance", "cancel"}
	got := fp.names()
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("calls = %v, want %v", got, want)
	}
}

func TestResetConfirmation(t *testing.T) {
	m, fp := newTestModel(t)

	m = press(t, m, "r")
	if m.prompt != promptConfirm {
		t.Fatal("r should ask for confirmation")
	}
	if len(fp.calls) != 0 {
		t.Fatal("reset must not run before confirmation")
	}
	if !strings.Contains(m.View(), "Are you sure you want to reset?") {
		t.Error("confirmation question not shown")
	}

	m = press(t, m, "5")
	if m.prompt != promptConfirm || len(fp.calls) != 0 {
		t.Error("other keys should be ignored while confirming")
	}

	m = press(t, m, "n")
	if m.prompt != promptNone {
		t.Error("prompt should close after answer")
	}
	if len(fp.calls) != 1 || fp.calls[0].confirm {
		t.Errorf("expected a declined reset, got %+v", fp.calls)
	}
	if m.notice != "" {
		t.Errorf("declining is not an error, notice = %q", m.notice)
	}

	press(t, m, "r", "y")
	if len(fp.calls) != 2 || !fp.calls[1].confirm {
		t.Errorf("expected a confirmed reset, got %+v", fp.calls)
	}
}

func TestPlayPromptUsesSheetLevel(t *testing.T) {
	m, fp := newTestModel(t)

	m = press(t, m, "P", "3", " ", "1")
	if !strings.Contains(m.View(), "Play (channel scene): 3 1") {
		t.Errorf("prompt not rendered:\n%s", m.View())
	}
	press(t, m, "enter")

	if len(fp.calls) != 1 {
		t.Fatalf("expected one call, got %v", fp.names())
	}
	c := fp.calls[0]
	if c.name != "play" || c.args[0] != 3 || c.args[1] != 1 || c.args[2] != 65 {
		t.Errorf("call = %+v, want play 3 1 65", c)
	}
}

func TestPlayPromptRejectsBadInput(t *testing.T) {
	m, fp := newTestModel(t)

	m = press(t, m, "P", "7", " ", "1", "enter")
	if len(fp.calls) != 0 {
		t.Errorf("channel outside sheet should not play, got %v", fp.names())
	}
	if m.notice == "" {
		t.Error("expected an error notice")
	}

	m = press(t, m, "P", "3", "enter")
	if len(fp.calls) != 0 || m.notice == "" {
		t.Error("one argument should be rejected")
	}
}

func TestPromptEditing(t *testing.T) {
	m, fp := newTestModel(t)

	m = press(t, m, "A", "4", "backspace", "2")
	if m.input != "2" {
		t.Errorf("input = %q, want 2", m.input)
	}
	m = press(t, m, "esc")
	if m.prompt != promptNone || m.input != "" {
		t.Error("esc should close the prompt")
	}
	if len(fp.calls) != 0 {
		t.Errorf("esc in a prompt should not cancel operations, got %v", fp.names())
	}
}

func TestProgramPromptThenConfirm(t *testing.T) {
	m, fp := newTestModel(t)

	m = press(t, m, "G", "2", " ", "1", "enter")
	if m.prompt != promptConfirm {
		t.Fatal("program should ask for confirmation")
	}
	if !strings.Contains(m.View(), "Program scene 2 for zone 1?") {
		t.Error("confirmation question not shown")
	}
	press(t, m, "y")

	if len(fp.calls) != 1 || !fp.calls[0].confirm || fp.calls[0].args[0] != 2 || fp.calls[0].args[1] != 1 {
		t.Errorf("calls = %+v", fp.calls)
	}
}

func TestAllocateDeclined(t *testing.T) {
	m, fp := newTestModel(t)
	m = press(t, m, "A", "3", "enter", "n")

	if len(fp.calls) != 1 || fp.calls[0].confirm {
		t.Errorf("calls = %+v", fp.calls)
	}
	if !strings.Contains(m.View(), "Allocation canceled.") {
		t.Error("declined allocation should appear in the log pane")
	}
}

func TestEditPrompts(t *testing.T) {
	m, fp := newTestModel(t)

	m = press(t, m, "Z", "2", " ", "7")
	if !strings.Contains(m.View(), "Set zone (channel zone): 2 7") {
		t.Errorf("zone prompt not rendered:\n%s", m.View())
	}
	m = press(t, m, "enter", "L", "2", " ", "0", " ", "8", "enter")
	if m.notice != "" {
		t.Fatalf("unexpected notice %q", m.notice)
	}

	row := m.table.Snapshot()[1]
	if row.Zone != "7" {
		t.Errorf("zone = %q, want 7", row.Zone)
	}
	if row.Scenes[9] != "08" {
		t.Errorf("scene 0 level = %q, want 08", row.Scenes[9])
	}
	if len(fp.calls) != 0 {
		t.Errorf("editing should not drive relays, got %v", fp.names())
	}

	m = press(t, m, "L", "2", " ", "1", " ", "250", "enter")
	if m.notice == "" {
		t.Error("level 250 should be rejected")
	}
	if lv, _ := m.table.Snapshot()[1].Level(1); lv != 90 {
		t.Errorf("rejected edit changed scene 1 to %d", lv)
	}

	m = press(t, m, "Z", "9", " ", "1", "enter")
	if m.notice == "" {
		t.Error("channel outside the sheet should be rejected")
	}
}

func TestErrorsShownAsNotice(t *testing.T) {
	m, fp := newTestModel(t)
	fp.err = errors.New("panel: hardware not ready")

	m = press(t, m, "4")
	if !strings.Contains(m.View(), "hardware not ready") {
		t.Error("error should be shown")
	}
	m = press(t, m, "x")
	if m.notice != "panel: hardware not ready" {
		t.Errorf("notice = %q", m.notice)
	}
}

func TestQuit(t *testing.T) {
	m, _ := newTestModel(t)
	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	if cmd == nil {
		t.Fatal("q should return a command")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Error("q should quit")
	}
}

func TestViewShowsLampsAndLog(t *testing.T) {
	m, fp := newTestModel(t)
	fp.status.Word = "0xFDFE"
	fp.status.Running = "Reset"
	m.events.Append("=== STEP 1: Reset ===")

	updated, _ := m.Update(tickMsg(time.Now()))
	view := updated.(Model).View()

	for _, want := range []string{"Main Hall", "R0", "R9", "word 0xFDFE", "running Reset", "STEP 1: Reset", "simulated"} {
		if !strings.Contains(view, want) {
			t.Errorf("view missing %q", want)
		}
	}
}

func TestWindowResize(t *testing.T) {
	m, _ := newTestModel(t)
	for i := 0; i < 50; i++ {
		m.events.Appendf("line %d", i)
	}
	updated, _ := m.Update(tea.WindowSizeMsg{Width: 100, Height: 14})
	m = updated.(Model)

	if got := len(m.lines); got != m.logHeight() {
		t.Errorf("kept %d lines, want %d", got, m.logHeight())
	}
	if !strings.Contains(m.View(), "line 49") {
		t.Error("newest line should be visible")
	}
}

func TestParseWord(t *testing.T) {
	w, err := parseWord("0xFDFE")
	if err != nil {
		t.Fatalf("parseWord: %v", err)
	}
	if !w.On(0) || !w.On(9) || w.On(1) {
		t.Errorf("unexpected word %v", w)
	}
	if _, err := parseWord("junk"); err == nil {
		t.Error("expected error for junk")
	}
}
