package relay

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/sweeney/lightpanel/internal/gpio"
)

// fakeClock advances only when slept on.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Sleep(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestBank(t *testing.T) (*Bank, *gpio.FakeBackend, *fakeClock) {
	t.Helper()
	clock := newFakeClock()
	fake := gpio.NewFakeBackend()
	fake.Now = clock.Now
	return NewBank(fake, WithSleep(clock.Sleep)), fake, clock
}

func TestPulseEnergizesOnlyDuringHold(t *testing.T) {
	for i := Index(0); i < Count; i++ {
		b, fake, _ := newTestBank(t)
		hold := 500 * time.Millisecond

		if b.Word().On(i) {
			t.Fatalf("R%d: expected released before pulse", i)
		}
		if err := b.Pulse(i, hold); err != nil {
			t.Fatalf("R%d: pulse: %v", i, err)
		}

		writes := fake.Writes()
		if len(writes) != 2 {
			t.Fatalf("R%d: expected 2 writes, got %d", i, len(writes))
		}
		if !Word(writes[0].Word).On(i) {
			t.Errorf("R%d: first write %#04x should energize", i, writes[0].Word)
		}
		if Word(writes[1].Word).On(i) {
			t.Errorf("R%d: second write %#04x should release", i, writes[1].Word)
		}
		if got := writes[1].At.Sub(writes[0].At); got != hold {
			t.Errorf("R%d: held for %v, want %v", i, got, hold)
		}
		if b.Word() != Off {
			t.Errorf("R%d: word after pulse = %s, want %s", i, b.Word(), Off)
		}
	}
}

func TestPressUsesSingleWriteEachWay(t *testing.T) {
	b, fake, _ := newTestBank(t)

	if err := b.Press(time.Second, 1, 5); err != nil {
		t.Fatalf("press: %v", err)
	}

	want := []uint16{0xFFFF &^ (1<<1 | 1<<5), 0xFFFF}
	got := fake.Words()
	if len(got) != len(want) {
		t.Fatalf("expected %d writes, got %v", len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("write %d: got %#04x, want %#04x", i, got[i], want[i])
		}
	}
	if b.Pulses() != 1 {
		t.Errorf("expected 1 pulse counted, got %d", b.Pulses())
	}
}

func TestGuardBracket(t *testing.T) {
	b, fake, _ := newTestBank(t)

	if err := b.GuardOn(); err != nil {
		t.Fatal(err)
	}
	if err := b.Pulse(3, time.Millisecond); err != nil {
		t.Fatal(err)
	}
	if err := b.GuardOff(); err != nil {
		t.Fatal(err)
	}

	words := fake.Words()
	for i, w := range words[:len(words)-1] {
		if !Word(w).On(GuardLow) || !Word(w).On(GuardHigh) {
			t.Errorf("write %d (%#04x): guards should stay energized", i, w)
		}
	}
	if words[len(words)-1] != uint16(Off) {
		t.Errorf("final write %#04x, want all off", words[len(words)-1])
	}
}

func TestInvalidIndexWritesNothing(t *testing.T) {
	b, fake, _ := newTestBank(t)

	for _, i := range []Index{-1, Count, 15} {
		if err := b.Pulse(i, time.Millisecond); !errors.Is(err, ErrInvalidIndex) {
			t.Errorf("index %d: expected ErrInvalidIndex, got %v", i, err)
		}
	}
	if err := b.Press(time.Millisecond); !errors.Is(err, ErrInvalidIndex) {
		t.Errorf("empty press: expected ErrInvalidIndex, got %v", err)
	}
	if n := len(fake.Writes()); n != 0 {
		t.Errorf("expected no writes, got %d", n)
	}
}

func TestWriteFailureLeavesWordDesynchronized(t *testing.T) {
	b, fake, _ := newTestBank(t)
	fake.FailOnWrite = 2 // release write of the pulse

	err := b.Pulse(4, time.Millisecond)
	if !errors.Is(err, gpio.ErrWrite) {
		t.Fatalf("expected ErrWrite, got %v", err)
	}
	if b.Word() != Off {
		t.Errorf("in-memory word = %s, want %s", b.Word(), Off)
	}
	if !Word(fake.Last()).On(4) {
		t.Errorf("board should still show R4 energized, got %#04x", fake.Last())
	}

	if err := b.AllOff(); err != nil {
		t.Fatalf("all off: %v", err)
	}
	if fake.Last() != uint16(Off) {
		t.Errorf("all off should resync board, got %#04x", fake.Last())
	}
}

func TestEnergizeFailureReleases(t *testing.T) {
	b, fake, _ := newTestBank(t)
	fake.FailOnWrite = 1

	if err := b.Pulse(2, time.Millisecond); err == nil {
		t.Fatal("expected error")
	}
	if got := fake.Words(); len(got) != 1 || got[0] != uint16(Off) {
		t.Errorf("expected a single release write, got %v", got)
	}
}

func TestConcurrentPulsesNeverLoseBits(t *testing.T) {
	b, fake, _ := newTestBank(t)

	var wg sync.WaitGroup
	for i := Index(0); i < Count; i++ {
		wg.Add(1)
		go func(i Index) {
			defer wg.Done()
			for n := 0; n < 20; n++ {
				if err := b.Pulse(i, time.Microsecond); err != nil {
					t.Errorf("pulse R%d: %v", i, err)
				}
			}
		}(i)
	}
	wg.Wait()

	if b.Word() != Off {
		t.Errorf("word after concurrent pulses = %s, want %s", b.Word(), Off)
	}
	if got := len(fake.Writes()); got != Count*20*2 {
		t.Errorf("expected %d writes, got %d", Count*20*2, got)
	}
	if b.Pulses() != Count*20 {
		t.Errorf("expected %d pulses, got %d", Count*20, b.Pulses())
	}
}

func TestWordHelpers(t *testing.T) {
	w := Off &^ (GuardLow.mask() | GuardHigh.mask())
	got := w.Energized()
	if len(got) != 2 || got[0] != GuardLow || got[1] != GuardHigh {
		t.Errorf("energized = %v", got)
	}
	if w.String() != "0xFDFE" {
		t.Errorf("string = %s", w.String())
	}
	if Names(GuardLow, GuardHigh) != "R0 & R9" {
		t.Errorf("names = %q", Names(GuardLow, GuardHigh))
	}
}
