package indicator

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"badgedesk/directory"
	"badgedesk/scan"
)

// recording notes every call as a short string.
type recording struct {
	mu       sync.Mutex
	calls    []string
	released error
}

func (r *recording) add(s string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, s)
}

func (r *recording) Calls() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.calls...)
}

func (r *recording) Last() string {
	c := r.Calls()
	if len(c) == 0 {
		return ""
	}
	return c[len(c)-1]
}

func (r *recording) Idle() { r.add("idle") }

func (r *recording) Found(info *CardInfo) { r.add("found:" + info.Name) }

func (r *recording) Unregistered(card string) { r.add("unregistered:" + card) }

func (r *recording) Failed() { r.add("failed") }

func (r *recording) ReaderLost() { r.add("lost") }

func (r *recording) Shutdown() { r.add("shutdown") }

func (r *recording) Release() error {
	r.add("release")
	return r.released
}

func TestNewWithoutConfigIsNoop(t *testing.T) {
	ind, err := New(Config{})
	require.NoError(t, err)
	assert.IsType(t, &Noop{}, ind)
	assert.NoError(t, ind.Release())
}

func TestNewNeopixelMissingPipe(t *testing.T) {
	_, err := New(Config{NeopixelPipe: filepath.Join(t.TempDir(), "nope")})
	assert.ErrorContains(t, err, "open neopixel pipe")
}

func TestNeopixelWritesCommands(t *testing.T) {
	path := filepath.Join(t.TempDir(), "neo")
	require.NoError(t, os.WriteFile(path, nil, 0o644))

	ind, err := New(Config{NeopixelPipe: path})
	require.NoError(t, err)
	ind.Found(&CardInfo{Card: "A1"})
	ind.Unregistered("B2")
	ind.Failed()
	ind.Idle()
	require.NoError(t, ind.Release())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	assert.Equal(t, []string{neoFound, neoUnregistered, neoFailed, neoIdle}, lines)
}

func TestMultiFansOut(t *testing.T) {
	a, b := &recording{}, &recording{released: errors.New("busy")}
	m := Combine(a, b)

	m.Found(&CardInfo{Name: "Ada Lovelace"})
	m.ReaderLost()
	assert.ErrorContains(t, m.Release(), "busy")

	want := []string{"found:Ada Lovelace", "lost", "release"}
	assert.Equal(t, want, a.Calls())
	assert.Equal(t, want, b.Calls())
	assert.Same(t, a, Combine(a))
}

func TestScanObserverShowsAndSettles(t *testing.T) {
	rec := &recording{}
	o := NewScanObserver(rec, 20*time.Millisecond)
	assert.Equal(t, "lost", rec.Last())

	o.ReaderState(true)
	assert.Equal(t, "idle", rec.Last())

	o.ObserveScan(scan.Outcome{
		CardID:  "A1B2C3",
		Student: &directory.Student{FirstName: "Ada", LastName: "Lovelace"},
		Success: true,
		Result:  scan.ResultFound,
	})
	assert.Equal(t, "found:Ada Lovelace", rec.Last())
	assert.Eventually(t, func() bool { return rec.Last() == "idle" }, time.Second, 5*time.Millisecond)

	o.ObserveScan(scan.Outcome{CardID: "FF", Success: true, Result: scan.ResultUnregistered})
	assert.Equal(t, "unregistered:FF", rec.Last())

	o.ObserveScan(scan.Outcome{Result: scan.ResultNoCard})
	assert.Equal(t, "failed", rec.Last())
}

func TestScanObserverFallsBackToReaderLost(t *testing.T) {
	rec := &recording{}
	o := NewScanObserver(rec, 10*time.Millisecond)
	o.ReaderState(true)

	// An I/O fault disconnects before the outcome is observed.
	o.ReaderState(false)
	o.ObserveScan(scan.Outcome{Result: scan.ResultIOError})
	assert.Equal(t, "failed", rec.Last())
	assert.Eventually(t, func() bool { return rec.Last() == "lost" }, time.Second, 5*time.Millisecond)
}

func TestScanObserverNewResultRestartsHold(t *testing.T) {
	rec := &recording{}
	o := NewScanObserver(rec, 40*time.Millisecond)
	o.ReaderState(true)

	o.ObserveScan(scan.Outcome{Result: scan.ResultNoCard})
	time.Sleep(25 * time.Millisecond)
	o.ObserveScan(scan.Outcome{CardID: "FF", Result: scan.ResultUnregistered})
	time.Sleep(25 * time.Millisecond)
	assert.Equal(t, "unregistered:FF", rec.Last())

	o.Stop()
	assert.Equal(t, "shutdown", rec.Last())
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, "shutdown", rec.Last())
}
