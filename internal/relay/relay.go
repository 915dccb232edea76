// Package relay holds the in-memory mirror of the active-low relay word and
// the only primitives allowed to change it.
package relay

import (
	"errors"
	"fmt"
	"strings"
)

// Count is the number of relays on the board.
const Count = 10

// Index identifies one relay, 0..Count-1. Each index owns exactly one bit.
type Index int

// Guard relays bracket programming-mode gestures.
const (
	GuardLow  Index = 0
	GuardHigh Index = 9
)

// ErrInvalidIndex is returned for an index outside 0..Count-1.
var ErrInvalidIndex = errors.New("relay: invalid index")

// Valid reports whether i names a relay on the board.
func (i Index) Valid() bool {
	return i >= 0 && i < Count
}

func (i Index) String() string {
	return fmt.Sprintf("R%d", int(i))
}

func (i Index) mask() Word {
	return Word(1) << uint(i)
}

// Word is the 16-bit register. A cleared bit energizes its relay.
type Word uint16

// Off is the power-on word: every relay released.
const Off Word = 0xFFFF

// On reports whether relay i is energized in w.
func (w Word) On(i Index) bool {
	return i.Valid() && w&i.mask() == 0
}

// Energized lists the energized relays in index order.
func (w Word) Energized() []Index {
	var out []Index
	for i := Index(0); i < Count; i++ {
		if w.On(i) {
			out = append(out, i)
		}
	}
	return out
}

func (w Word) String() string {
	return fmt.Sprintf("0x%04X", uint16(w))
}

// Names joins relay names with " & ", e.g. "R0 & R9".
func Names(idx ...Index) string {
	parts := make([]string, len(idx))
	for i, r := range idx {
		parts[i] = r.String()
	}
	return strings.Join(parts, " & ")
}
