// Package sheet holds the channel/zone/scene levels sheet the sequences
// read from, and its CSV form.
package sheet

import (
	"errors"
	"fmt"
	"strconv"
)

// Type is the load type of a channel.
type Type string

const (
	Dimmed        Type = "Dimmed"
	Switched      Type = "Switched"
	Switched1to10 Type = "Switched1to10"
)

// Types lists the accepted load types.
var Types = []Type{Dimmed, Switched, Switched1to10}

// Valid reports whether t is one of Types.
func (t Type) Valid() bool {
	for _, k := range Types {
		if t == k {
			return true
		}
	}
	return false
}

const (
	// SceneCount is the number of scene columns. Index 0..8 hold scene
	// digits 1..9, index 9 holds scene digit 0.
	SceneCount = 10

	DefaultChannels = 18
	MaxChannels     = 99
	DefaultZone     = "1"
)

// DefaultScenes are the levels given to a new row.
var DefaultScenes = [SceneCount]string{"90", "70", "50", "30", "99", "99", "99", "99", "99", "00"}

var (
	ErrInvalidCount = errors.New("sheet: invalid channel count")
	ErrInvalidRow   = errors.New("sheet: invalid row")
	ErrMalformed    = errors.New("sheet: malformed csv")
)

// Row is one channel line of the sheet. Its channel number is its position.
type Row struct {
	Zone   string             `json:"zone"`
	DimRef string             `json:"dim_ref"`
	Name   string             `json:"name"`
	Type   Type               `json:"type"`
	Scenes [SceneCount]string `json:"scenes"`
}

// DefaultRow returns a row in zone 1 with the stock levels.
func DefaultRow() Row {
	return Row{Zone: DefaultZone, Type: Dimmed, Scenes: DefaultScenes}
}

// Validate checks zone, type and levels.
func (r Row) Validate() error {
	if !ValidZone(r.Zone) {
		return fmt.Errorf("%w: zone %q", ErrInvalidRow, r.Zone)
	}
	if !r.Type.Valid() {
		return fmt.Errorf("%w: type %q", ErrInvalidRow, r.Type)
	}
	for i, s := range r.Scenes {
		if _, err := ParseLevel(s); err != nil || len(s) != 2 {
			return fmt.Errorf("%w: scene column %d level %q", ErrInvalidRow, i+1, s)
		}
	}
	return nil
}

// Sheet is the whole levels sheet.
type Sheet struct {
	SiteName string `json:"site_name"`
	Date     string `json:"date"`
	Rows     []Row  `json:"rows"`
}

// New creates a sheet of n default rows.
func New(n int) (*Sheet, error) {
	s := &Sheet{}
	if err := s.Resize(n); err != nil {
		return nil, err
	}
	return s, nil
}

// Resize grows or truncates the sheet to n rows. Existing rows keep their
// data by position; new rows are defaults.
func (s *Sheet) Resize(n int) error {
	if n <= 0 || n > MaxChannels {
		return fmt.Errorf("%w: %d (want 1..%d)", ErrInvalidCount, n, MaxChannels)
	}
	if n <= len(s.Rows) {
		s.Rows = s.Rows[:n:n]
		return nil
	}
	for len(s.Rows) < n {
		s.Rows = append(s.Rows, DefaultRow())
	}
	return nil
}

// Clone returns a deep copy.
func (s *Sheet) Clone() *Sheet {
	c := *s
	c.Rows = append([]Row(nil), s.Rows...)
	return &c
}

// Channels returns the read-only view the sequences consume.
func (s *Sheet) Channels() []Channel {
	out := make([]Channel, len(s.Rows))
	for i, r := range s.Rows {
		out[i] = Channel{Number: i + 1, Zone: r.Zone, Scenes: r.Scenes}
	}
	return out
}

// Channel is a row reduced to what sequences need.
type Channel struct {
	Number int
	Zone   string
	Scenes [SceneCount]string
}

// Level returns the level stored for scene digit 0..9.
func (c Channel) Level(scene int) (int, error) {
	idx, err := SceneIndex(scene)
	if err != nil {
		return 0, err
	}
	return ParseLevel(c.Scenes[idx])
}

// SceneIndex maps scene digit 1..9 to column 0..8 and digit 0 to column 9.
func SceneIndex(digit int) (int, error) {
	switch {
	case digit == 0:
		return 9, nil
	case digit >= 1 && digit <= 9:
		return digit - 1, nil
	}
	return 0, fmt.Errorf("scene digit %d out of range", digit)
}

// ValidZone reports whether z is a single decimal digit.
func ValidZone(z string) bool {
	return len(z) == 1 && z[0] >= '0' && z[0] <= '9'
}

// ParseLevel parses a level string in 0..99.
func ParseLevel(s string) (int, error) {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("level %q: %w", s, err)
	}
	if n < 0 || n > 99 {
		return 0, fmt.Errorf("level %d out of range", n)
	}
	return n, nil
}

// FormatLevel renders a level as two digits.
func FormatLevel(n int) string {
	return fmt.Sprintf("%02d", n)
}
