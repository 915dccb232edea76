package panel

import (
	"sort"
	"time"

	"github.com/sweeney/lightpanel/internal/relay"
)

// Status is a point-in-time view of the panel.
type Status struct {
	Ready     bool          `json:"ready"`
	Word      string        `json:"word"`
	Energized []int         `json:"energized"`
	Running   string        `json:"running,omitempty"`
	Queued    int           `json:"queued"`
	Busy      []Control     `json:"busy"`
	Debug     bool          `json:"debug"`
	Waiting   bool          `json:"waiting"`
	Hold      time.Duration `json:"hold"`
	Settle    time.Duration `json:"settle"`
}

// Status returns the current view.
func (p *Panel) Status() Status {
	w := p.bank.Word()
	s := Status{
		Word:      w.String(),
		Energized: []int{},
		Busy:      []Control{},
		Queued:    len(p.jobs),
		Debug:     p.gate.Enabled(),
		Waiting:   p.gate.Waiting(),
		Hold:      p.engine.Hold(),
		Settle:    p.engine.Settle(),
	}
	for _, r := range w.Energized() {
		s.Energized = append(s.Energized, int(r))
	}

	p.mu.Lock()
	s.Ready = p.ready
	if p.current != nil {
		s.Running = p.current.name
	}
	for c := range p.busy {
		s.Busy = append(s.Busy, c)
	}
	p.mu.Unlock()

	sort.Slice(s.Busy, func(i, j int) bool { return s.Busy[i] < s.Busy[j] })
	return s
}

// Word returns the relay word.
func (p *Panel) Word() relay.Word {
	return p.bank.Word()
}
