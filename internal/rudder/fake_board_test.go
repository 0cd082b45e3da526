package rudder

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/KevinKickass/OpenHelm/internal/calibration"
	"go.uber.org/zap"
)

// fakeBoard emulates the controller board firmware on the other end of the
// serial line: it echoes every command as a report and answers "?" with a
// full status dump.
type fakeBoard struct {
	mu      sync.Mutex
	inbound []byte
	written []string
	state   map[string]int
	silent  bool
	readErr error
	closed  bool
}

func newFakeBoard(booted bool) *fakeBoard {
	b := &fakeBoard{
		state: map[string]int{
			"r": 1023, "l": 0, "p": 512, "x": 0,
			"s": 0, "d": 0, "c": 0, "i": 1000, "e": 1,
		},
	}
	if booted {
		b.inbound = []byte("m=REBOOTED\n")
	}
	return b
}

func (b *fakeBoard) Read(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.readErr != nil {
		err := b.readErr
		b.readErr = nil
		return 0, err
	}
	n := copy(p, b.inbound)
	b.inbound = b.inbound[n:]
	return n, nil
}

func (b *fakeBoard) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return 0, errors.New("port closed")
	}

	for _, line := range strings.Split(strings.TrimRight(string(p), "\n"), "\n") {
		b.written = append(b.written, line)
		b.respond(line)
	}
	return len(p), nil
}

func (b *fakeBoard) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	return nil
}

func (b *fakeBoard) respond(cmd string) {
	if b.silent {
		return
	}

	if cmd == "?" {
		for _, k := range []string{"r", "l", "p", "x", "s", "d", "c", "i", "e"} {
			b.inbound = append(b.inbound, fmt.Sprintf("%s=%d\n", k, b.state[k])...)
		}
		return
	}

	key := cmd[:1]
	v, err := strconv.Atoi(cmd[1:])
	if err != nil {
		return
	}
	b.state[key] = v

	if b.state["e"] == 1 || key == "e" {
		b.inbound = append(b.inbound, fmt.Sprintf("%s=%d\n", key, v)...)
	}
}

func (b *fakeBoard) inject(lines string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.inbound = append(b.inbound, lines...)
}

func (b *fakeBoard) setSilent(silent bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.silent = silent
}

func (b *fakeBoard) failNextRead(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.readErr = err
}

func (b *fakeBoard) commands() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.written...)
}

func testConfig() Config {
	return Config{
		PollInterval:   time.Millisecond,
		BootTimeout:    200 * time.Millisecond,
		ConfirmTimeout: 200 * time.Millisecond,
		ConfirmPoll:    time.Millisecond,
		StatusTimeout:  200 * time.Millisecond,
	}
}

func newTestStore(t *testing.T) *calibration.Store {
	t.Helper()
	store, err := calibration.NewStore("", calibration.Calibration{
		PortLimit:           0,
		StarboardLimit:      1023,
		ReportingIntervalMs: 1000,
		Echo:                true,
		GainProfile:         "calm",
	}, zap.NewNop())
	if err != nil {
		t.Fatalf("NewStore() err=%v", err)
	}
	return store
}

// openLink returns a link that finished its handshake against a fake board.
func openLink(t *testing.T) (*Link, *fakeBoard, *calibration.Store) {
	t.Helper()

	board := newFakeBoard(true)
	store := newTestStore(t)
	link := New(board, testConfig(), store, zap.NewNop())

	if err := link.Open(t.Context()); err != nil {
		t.Fatalf("Open() err=%v", err)
	}
	t.Cleanup(func() { link.Close() })

	return link, board, store
}

func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}
