package pulse

import (
	"strings"
	"time"

	"github.com/kubilitics/kubilitics-appstatus/internal/models"
)

const (
	windowActive  = "active"
	windowBlocked = "blocked"
)

var hourLayouts = []string{"3:04PM", "3:04 PM", "15:04"}

// IsBlocked reports whether a subscription time window blocks deployment at now.
// An active window blocks outside its days and hours, a blocked window inside them.
// Unparseable hours never match.
func IsBlocked(tw *models.TimeWindow, now time.Time) bool {
	if tw == nil {
		return false
	}
	kind := strings.ToLower(tw.WindowType)
	if kind != windowActive && kind != windowBlocked {
		return false
	}
	loc := time.UTC
	if tw.Location != "" {
		if l, err := time.LoadLocation(tw.Location); err == nil {
			loc = l
		}
	}
	in := inWindow(tw, now.In(loc))
	if kind == windowActive {
		return !in
	}
	return in
}

func inWindow(tw *models.TimeWindow, now time.Time) bool {
	return dayMatches(tw.Daysofweek, now.Weekday()) && hourMatches(tw.Hours, now)
}

func dayMatches(days []string, wd time.Weekday) bool {
	if len(days) == 0 {
		return true
	}
	name := strings.ToLower(wd.String())
	for _, d := range days {
		d = strings.ToLower(strings.TrimSpace(d))
		if len(d) >= 3 && strings.HasPrefix(name, d) {
			return true
		}
	}
	return false
}

func hourMatches(hours []models.HourRange, now time.Time) bool {
	if len(hours) == 0 {
		return true
	}
	minute := now.Hour()*60 + now.Minute()
	for _, h := range hours {
		start, ok1 := parseClock(h.Start)
		end, ok2 := parseClock(h.End)
		if !ok1 || !ok2 {
			continue
		}
		if start <= end {
			if minute >= start && minute < end {
				return true
			}
		} else if minute >= start || minute < end {
			// range wraps midnight
			return true
		}
	}
	return false
}

func parseClock(s string) (int, bool) {
	s = strings.ToUpper(strings.TrimSpace(s))
	for _, layout := range hourLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Hour()*60 + t.Minute(), true
		}
	}
	return 0, false
}
