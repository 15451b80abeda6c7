package indicator

// CardInfo describes a resolved card for display purposes.
type CardInfo struct {
	Card string
	Name string
}
