package sheet

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// Fields is the width of every CSV line.
const Fields = 5 + SceneCount

// Header is the fixed third line.
var Header = []string{
	"Channel", "Zone", "Dim Ref", "Name", "Type",
	"Scene 1", "Scene 2", "Scene 3", "Scene 4", "Scene 5",
	"Scene 6", "Scene 7", "Scene 8", "Scene 9", "Scene 0",
}

// Write renders s as CSV: site line, date line, header, then one line per
// channel.
func Write(w io.Writer, s *Sheet) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(padded("Site Name:", s.SiteName)); err != nil {
		return err
	}
	if err := cw.Write(padded("Date:", s.Date)); err != nil {
		return err
	}
	if err := cw.Write(Header); err != nil {
		return err
	}
	for i, r := range s.Rows {
		rec := make([]string, 0, Fields)
		rec = append(rec, strconv.Itoa(i+1), r.Zone, r.DimRef, r.Name, string(r.Type))
		rec = append(rec, r.Scenes[:]...)
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// Generate returns the CSV text of s.
func Generate(s *Sheet) string {
	var buf bytes.Buffer
	Write(&buf, s)
	return buf.String()
}

func padded(label, value string) []string {
	rec := make([]string, Fields)
	rec[0] = label
	rec[1] = value
	return rec
}

// Parse reads a sheet written by Write. Blank lines are ignored, at least
// four lines are required and cells are trimmed. Data rows with fewer than
// Fields cells or unreadable levels are skipped. Unknown zones and types
// fall back to their defaults.
func Parse(r io.Reader) (*Sheet, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	cr.TrimLeadingSpace = true

	records, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformed, err)
	}
	if len(records) < 4 {
		return nil, fmt.Errorf("%w: %d lines, need at least 4", ErrMalformed, len(records))
	}
	if len(records[0]) < 2 || len(records[1]) < 2 {
		return nil, fmt.Errorf("%w: missing site name or date", ErrMalformed)
	}

	s := &Sheet{
		SiteName: strings.TrimSpace(records[0][1]),
		Date:     strings.TrimSpace(records[1][1]),
	}
	for _, rec := range records[3:] {
		row, ok := parseRow(rec)
		if ok {
			s.Rows = append(s.Rows, row)
		}
	}
	if len(s.Rows) == 0 {
		return nil, fmt.Errorf("%w: no channel rows", ErrMalformed)
	}
	if len(s.Rows) > MaxChannels {
		return nil, fmt.Errorf("%w: %d channels", ErrInvalidCount, len(s.Rows))
	}
	return s, nil
}

// ParseString is Parse over a string.
func ParseString(text string) (*Sheet, error) {
	return Parse(strings.NewReader(text))
}

func parseRow(rec []string) (Row, bool) {
	if len(rec) < Fields {
		return Row{}, false
	}
	for i := range rec {
		rec[i] = strings.TrimSpace(rec[i])
	}

	row := DefaultRow()
	if ValidZone(rec[1]) {
		row.Zone = rec[1]
	}
	row.DimRef = rec[2]
	row.Name = rec[3]
	if t := Type(rec[4]); t.Valid() {
		row.Type = t
	}
	for i := 0; i < SceneCount; i++ {
		n, err := strconv.Atoi(rec[5+i])
		if err != nil {
			return Row{}, false
		}
		row.Scenes[i] = FormatLevel(min(max(n, 0), 99))
	}
	return row, true
}
