package sequence

import (
	"fmt"

	"github.com/sweeney/lightpanel/internal/relay"
	"github.com/sweeney/lightpanel/internal/sheet"
)

// Trigger is a named panel gesture: either guarded digit pulses or, when
// Together is set, a simultaneous press of its digits.
type Trigger struct {
	Key      string
	Name     string
	Digits   []relay.Index
	Together bool
}

// Phase renders the trigger as a single phase.
func (t Trigger) Phase() Phase {
	if t.Together {
		return DoublePress(t.Name, t.Digits[0], t.Digits[1])
	}
	return GuardedMulti(t.Name, t.Digits...)
}

// Sequence wraps the trigger as a standalone sequence.
func (t Trigger) Sequence() Sequence {
	return Sequence{Name: t.Name, Phases: []Phase{t.Phase()}}
}

var (
	ExitProgramMode = Trigger{Key: "exit-program-mode", Name: "Exit Prog Mode", Digits: []relay.Index{8}}
	ProgramMode     = Trigger{Key: "program-mode", Name: "Program Mode", Digits: []relay.Index{2, 1, 2, 1}}
	Reset           = Trigger{Key: "reset", Name: "Reset", Digits: []relay.Index{4, 5, 6, 6}}

	QuickScene   = Trigger{Key: "scene", Name: "Quick Scene", Digits: []relay.Index{1, 5}, Together: true}
	QuickCircuit = Trigger{Key: "circuit", Name: "Quick Circuit", Digits: []relay.Index{2, 6}, Together: true}
	QuickLevel   = Trigger{Key: "level", Name: "Quick Level", Digits: []relay.Index{3, 7}, Together: true}
	QuickFade    = Trigger{Key: "fade", Name: "Quick Fade", Digits: []relay.Index{4, 8}, Together: true}
)

// Modes are the single-button mode triggers.
var Modes = []Trigger{
	ExitProgramMode,
	{Key: "scene-mode", Name: "Scene Mode", Digits: []relay.Index{1}},
	{Key: "channel-mode", Name: "Channel Mode", Digits: []relay.Index{2}},
	{Key: "level-mode", Name: "Level Mode", Digits: []relay.Index{3}},
	{Key: "fade-short", Name: "Fade Short", Digits: []relay.Index{4}},
	{Key: "fade-long", Name: "Fade Long", Digits: []relay.Index{5}},
	{Key: "circuit-activation", Name: "Circuit Act.", Digits: []relay.Index{6}},
	{Key: "copy", Name: "Copy", Digits: []relay.Index{7}},
	{Key: "zone-left", Name: "Zone Left", Digits: []relay.Index{8, 7, 1, 1}},
	{Key: "zone-right", Name: "Zone Right", Digits: []relay.Index{8, 7, 1, 2}},
}

// Quicks are the four simultaneous-press shortcuts.
var Quicks = []Trigger{QuickScene, QuickCircuit, QuickLevel, QuickFade}

// Lookup finds a trigger by key.
func Lookup(list []Trigger, key string) (Trigger, bool) {
	for _, t := range list {
		if t.Key == key {
			return t, true
		}
	}
	return Trigger{}, false
}

// Toggle pulses one relay for the configured hold.
func Toggle(r relay.Index) Sequence {
	return Sequence{
		Name:   "Toggle " + r.String(),
		Phases: []Phase{{Title: "Toggle", Actions: []Action{Pulse(r)}}},
	}
}

// TestAll pulses every relay in turn.
func TestAll() Sequence {
	var actions []Action
	for r := relay.Index(0); r < relay.Count; r++ {
		actions = append(actions, Pulse(r), Wait(TestGap))
	}
	return Sequence{Name: "Test All Relays", Phases: []Phase{{Title: "Test All Relays", Actions: actions}}}
}

// Play recalls scene on channel at level.
func Play(channel int, scene relay.Index, level int) (Sequence, error) {
	if !scene.Valid() {
		return Sequence{}, fmt.Errorf("scene digit %d out of range", int(scene))
	}
	ch, err := DigitEntry("Channel", channel, 2)
	if err != nil {
		return Sequence{}, err
	}
	lv, err := DigitEntry("Level", level, 2)
	if err != nil {
		return Sequence{}, err
	}

	phases := []Phase{
		ExitProgramMode.Phase(),
		ProgramMode.Phase(),
		QuickScene.Phase(),
		GuardedSingle(fmt.Sprintf("Scene %d", int(scene)), scene),
		QuickCircuit.Phase(),
	}
	phases = append(phases, ch...)
	phases = append(phases, QuickLevel.Phase())
	phases = append(phases, lv...)
	phases = append(phases, ExitProgramMode.Phase())

	return Sequence{
		Name:     fmt.Sprintf("Play channel %d scene %d level %d", channel, int(scene), level),
		Phases:   phases,
		Stepwise: true,
	}, nil
}

// ProgramScene stores scene for every row in zone, using each row's level
// for that scene. Rows in other zones are not touched.
func ProgramScene(scene, zone relay.Index, rows []sheet.Channel) (Sequence, error) {
	if !scene.Valid() || !zone.Valid() {
		return Sequence{}, fmt.Errorf("scene %d / zone %d out of range", int(scene), int(zone))
	}

	phases := []Phase{ExitProgramMode.Phase()}
	phases = append(phases, ZoneProgram(zone)...)
	phases = append(phases,
		ProgramMode.Phase(),
		QuickScene.Phase(),
		GuardedSingle(fmt.Sprintf("Scene %d", int(scene)), scene),
	)

	for _, row := range rows {
		if row.Zone != zoneString(zone) {
			continue
		}
		level, err := row.Level(int(scene))
		if err != nil {
			return Sequence{}, fmt.Errorf("channel %d: %w", row.Number, err)
		}
		ch, err := DigitEntry("Channel", row.Number, 2)
		if err != nil {
			return Sequence{}, err
		}
		lv, err := DigitEntry("Level", level, 2)
		if err != nil {
			return Sequence{}, err
		}
		circuit := QuickCircuit.Phase()
		circuit.Actions = append([]Action{Note("Programming channel %d level %02d", row.Number, level)}, circuit.Actions...)
		phases = append(phases, circuit)
		phases = append(phases, ch...)
		phases = append(phases, QuickLevel.Phase())
		phases = append(phases, lv...)
	}
	phases = append(phases, ExitProgramMode.Phase())

	return Sequence{
		Name:     fmt.Sprintf("Program scene %d zone %d", int(scene), int(zone)),
		Phases:   phases,
		Stepwise: true,
	}, nil
}

// Allocate assigns every row to zone (digit 1) or away from it (digit 0),
// in table order.
func Allocate(zone relay.Index, rows []sheet.Channel) (Sequence, error) {
	if !zone.Valid() {
		return Sequence{}, fmt.Errorf("zone %d out of range", int(zone))
	}

	phases := []Phase{ExitProgramMode.Phase()}
	phases = append(phases, ZoneProgram(zone)...)
	phases = append(phases, ProgramMode.Phase())

	for _, row := range rows {
		ch, err := DigitEntry("Channel", row.Number, 2)
		if err != nil {
			return Sequence{}, err
		}
		digit := AllocationDigit(row, zone)
		phases = append(phases, ch...)
		phases = append(phases, GuardedSingle(fmt.Sprintf("Allocate channel %d digit %d", row.Number, int(digit)), digit))
	}
	phases = append(phases, ExitProgramMode.Phase())

	return Sequence{
		Name:     fmt.Sprintf("Allocate zone %d", int(zone)),
		Phases:   phases,
		Stepwise: true,
	}, nil
}

// AllocationDigit is 1 when row belongs to zone and 0 otherwise.
func AllocationDigit(row sheet.Channel, zone relay.Index) relay.Index {
	if row.Zone == zoneString(zone) {
		return 1
	}
	return 0
}

func zoneString(zone relay.Index) string {
	return fmt.Sprintf("%d", int(zone))
}
