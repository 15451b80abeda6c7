package indicator

// Noop implements Indicator but does nothing.
// Used when no indicators are configured.
type Noop struct{}

func (n *Noop) Idle() {}

func (n *Noop) Found(*CardInfo) {}

func (n *Noop) Unregistered(string) {}

func (n *Noop) Failed() {}

func (n *Noop) ReaderLost() {}

func (n *Noop) Shutdown() {}

func (n *Noop) Release() error { return nil }
