package stage

import (
	"strconv"
	"strings"
)

// candidateSlots are the fixed offer grid for a day. Real availability
// lookup is out of scope; the grid matches the clinic's standing schedule.
var candidateSlots = []string{"09:00", "10:30", "14:00", "15:30"}

// proposeSlots picks the slots to offer, narrowed by the client's
// period-of-day hint when one was given.
func proposeSlots(window string, v *Validator) []string {
	var out []string
	for _, slot := range candidateSlots {
		if !v.WithinHours(slot) {
			continue
		}
		if window != "" && !slotInWindow(slot, window) {
			continue
		}
		out = append(out, slot)
	}
	if len(out) == 0 {
		// Hint excluded everything (e.g. "noite" outside opening hours):
		// fall back to the full grid rather than offering nothing.
		for _, slot := range candidateSlots {
			if v.WithinHours(slot) {
				out = append(out, slot)
			}
		}
	}
	return out
}

func slotInWindow(slot, window string) bool {
	minutes, err := parseClock(slot)
	if err != nil {
		return false
	}
	switch window {
	case "manhã":
		return minutes < 12*60
	case "tarde":
		return minutes >= 12*60 && minutes < 18*60
	case "noite":
		return minutes >= 18*60
	default:
		return true
	}
}

// resolveSlotChoice maps a bare "1", "2" or "3" reply onto the slot offered
// under that number. Returns "" when the message is not a plain selection or
// the index is out of range.
func resolveSlotChoice(text string, offered []string) string {
	trimmed := strings.TrimRight(strings.TrimSpace(text), ".!")
	n, err := strconv.Atoi(trimmed)
	if err != nil || n < 1 || n > len(offered) {
		return ""
	}
	return offered[n-1]
}
