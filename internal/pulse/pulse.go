// Package pulse computes the health color of topology nodes.
package pulse

import (
	"fmt"
	"strings"

	"github.com/kubilitics/kubilitics-appstatus/internal/models"
)

// Rank orders the computed pulses: red < orange < yellow < green.
// Any other value is a programming error.
func Rank(p models.Pulse) int {
	switch p {
	case models.PulseRed:
		return 0
	case models.PulseOrange:
		return 1
	case models.PulseYellow:
		return 2
	case models.PulseGreen:
		return 3
	}
	panic(fmt.Sprintf("pulse: no rank for %q", p))
}

// Worst returns the lower ranked of a and b.
func Worst(a, b models.Pulse) models.Pulse {
	if Rank(b) < Rank(a) {
		return b
	}
	return a
}

// DesiredAvailable maps replica counts to a pulse.
func DesiredAvailable(available, desired, unavailable int64) models.Pulse {
	switch {
	case available == desired:
		return models.PulseGreen
	case unavailable > 0 || available == 0:
		return models.PulseRed
	case available < desired:
		return models.PulseYellow
	case desired <= 0:
		return models.PulseYellow
	}
	return models.PulseGreen
}

var (
	redStatuses    = []string{"err", "off", "invalid", "kill", "propagationfailed", "imagepullbackoff", "crashloopbackoff", "lost"}
	yellowStatuses = []string{"pending", "creating", "terminating", "not deployed"}
	greenStatuses  = []string{"running", "bound"}
)

// StatusStringPulse buckets a free form status string.
func StatusStringPulse(status string) models.Pulse {
	s := strings.ToLower(status)
	for _, sub := range redStatuses {
		if strings.Contains(s, sub) {
			return models.PulseRed
		}
	}
	for _, sub := range yellowStatuses {
		if strings.Contains(s, sub) {
			return models.PulseYellow
		}
	}
	for _, sub := range greenStatuses {
		if strings.Contains(s, sub) {
			return models.PulseGreen
		}
	}
	return models.PulseGreen
}

// RecordPulse is the pulse of one observed resource instance.
func RecordPulse(r models.RawResourceRecord) models.Pulse {
	if r.Desired.Valid {
		available := r.Available
		if !available.Valid {
			available = r.Ready
		}
		return DesiredAvailable(available.Int(), r.Desired.Value, r.Unavailable.Int())
	}
	if r.Status != "" {
		return StatusStringPulse(r.Status)
	}
	return models.PulseGreen
}
