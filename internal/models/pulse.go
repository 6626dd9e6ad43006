package models

// Pulse is the aggregated health color of a topology node.
type Pulse string

const (
	PulseRed     Pulse = "red"
	PulseOrange  Pulse = "orange"
	PulseYellow  Pulse = "yellow"
	PulseGreen   Pulse = "green"
	PulseBlocked Pulse = "blocked"
	PulseSpinner Pulse = "spinner"
)

// IsTerminal reports whether the pulse is a computed (non-spinner) state.
func (p Pulse) IsTerminal() bool {
	switch p {
	case PulseRed, PulseOrange, PulseYellow, PulseGreen, PulseBlocked:
		return true
	}
	return false
}
