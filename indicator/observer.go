package indicator

import (
	"sync"
	"time"

	"badgedesk/scan"
)

// DefaultHold is how long a scan result stays shown.
const DefaultHold = 3 * time.Second

// ScanObserver drives an Indicator from scan outcomes and reader state.
// A result is shown for the hold time, then the indicator falls back to
// Idle, or ReaderLost while no reader is connected.
type ScanObserver struct {
	ind  Indicator
	hold time.Duration

	mu        sync.Mutex
	connected bool
	timer     *time.Timer
	gen       int
}

// NewScanObserver creates a ScanObserver. A zero hold uses DefaultHold.
func NewScanObserver(ind Indicator, hold time.Duration) *ScanObserver {
	if hold <= 0 {
		hold = DefaultHold
	}
	o := &ScanObserver{ind: ind, hold: hold}
	ind.ReaderLost()
	return o
}

// ObserveScan implements scan.Observer.
func (o *ScanObserver) ObserveScan(out scan.Outcome) {
	o.mu.Lock()
	defer o.mu.Unlock()

	switch out.Result {
	case scan.ResultFound:
		info := &CardInfo{Card: out.CardID}
		if out.Student != nil {
			info.Name = out.Student.FullName()
		}
		o.ind.Found(info)
	case scan.ResultUnregistered:
		o.ind.Unregistered(out.CardID)
	default:
		o.ind.Failed()
	}

	o.cancel()
	gen := o.gen
	o.timer = time.AfterFunc(o.hold, func() { o.settle(gen) })
}

// ReaderState records a reader connect or disconnect.
func (o *ScanObserver) ReaderState(connected bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.connected = connected
	o.cancel()
	o.rest()
}

// Stop cancels any pending fallback and shows Shutdown.
func (o *ScanObserver) Stop() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.cancel()
	o.ind.Shutdown()
}

// cancel drops the pending fallback. A timer that already fired sees a
// newer generation and does nothing.
func (o *ScanObserver) cancel() {
	o.gen++
	if o.timer != nil {
		o.timer.Stop()
		o.timer = nil
	}
}

func (o *ScanObserver) settle(gen int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if gen != o.gen {
		return
	}
	o.timer = nil
	o.rest()
}

func (o *ScanObserver) rest() {
	if o.connected {
		o.ind.Idle()
	} else {
		o.ind.ReaderLost()
	}
}
