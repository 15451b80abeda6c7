package indicator

// Multi combines multiple Indicator implementations.
type Multi struct {
	indicators []Indicator
}

// Idle implements Indicator.Idle.
func (m *Multi) Idle() {
	for _, ind := range m.indicators {
		ind.Idle()
	}
}

// Found implements Indicator.Found.
func (m *Multi) Found(info *CardInfo) {
	for _, ind := range m.indicators {
		ind.Found(info)
	}
}

// Unregistered implements Indicator.Unregistered.
func (m *Multi) Unregistered(card string) {
	for _, ind := range m.indicators {
		ind.Unregistered(card)
	}
}

// Failed implements Indicator.Failed.
func (m *Multi) Failed() {
	for _, ind := range m.indicators {
		ind.Failed()
	}
}

// ReaderLost implements Indicator.ReaderLost.
func (m *Multi) ReaderLost() {
	for _, ind := range m.indicators {
		ind.ReaderLost()
	}
}

// Shutdown implements Indicator.Shutdown.
func (m *Multi) Shutdown() {
	for _, ind := range m.indicators {
		ind.Shutdown()
	}
}

// Release implements Indicator.Release.
func (m *Multi) Release() error {
	var lastErr error
	for _, ind := range m.indicators {
		if err := ind.Release(); err != nil {
			lastErr = err
		}
	}
	return lastErr
}
