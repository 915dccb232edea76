package sequence

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sweeney/lightpanel/internal/gpio"
	"github.com/sweeney/lightpanel/internal/relay"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
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

func (c *fakeClock) Elapsed(since time.Time) time.Duration {
	return c.Now().Sub(since)
}

type lineRecorder struct {
	mu    sync.Mutex
	lines []string
}

func (r *lineRecorder) Append(line string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lines = append(r.lines, line)
}

func (r *lineRecorder) Lines() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.lines...)
}

func (r *lineRecorder) Contains(sub string) bool {
	for _, l := range r.Lines() {
		if strings.Contains(l, sub) {
			return true
		}
	}
	return false
}

type harness struct {
	engine *Engine
	bank   *relay.Bank
	fake   *gpio.FakeBackend
	clock  *fakeClock
	log    *lineRecorder
}

func newHarness(t *testing.T, opts ...Option) *harness {
	t.Helper()
	h := &harness{
		fake:  gpio.NewFakeBackend(),
		clock: &fakeClock{now: time.Date(2024, 6, 1, 20, 0, 0, 0, time.UTC)},
		log:   &lineRecorder{},
	}
	h.fake.Now = h.clock.Now
	h.bank = relay.NewBank(h.fake, relay.WithSleep(h.clock.Sleep))
	opts = append([]Option{WithSleep(h.clock.Sleep)}, opts...)
	h.engine = NewEngine(h.bank, h.log, opts...)
	return h
}

// onEvents lists, per write, the relays that became energized.
func onEvents(words []uint16) []string {
	prev := uint16(relay.Off)
	var out []string
	for _, w := range words {
		went := relay.Word(^(prev &^ w))
		if on := went.Energized(); len(on) > 0 {
			out = append(out, relay.Names(on...))
		}
		prev = w
	}
	return out
}

func equalStrings(t *testing.T, got, want []string) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("length mismatch\n got %q\nwant %q", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("item %d: got %q, want %q", i, got[i], want[i])
		}
	}
}

// testContext stands in for testing.T.Context (Go 1.24+): the returned
// context is cancelled when the test finishes.
func testContext(t *testing.T) context.Context {
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	return ctx
}
