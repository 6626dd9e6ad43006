package pulse

import (
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/kubilitics/kubilitics-appstatus/internal/models"
	"github.com/stretchr/testify/assert"
)

func TestIsBlocked(t *testing.T) {
	// Monday 2024-01-01
	at := func(hour, min int) time.Time { return time.Date(2024, 1, 1, hour, min, 0, 0, time.UTC) }
	hours := []models.HourRange{{Start: "9:00AM", End: "5:00PM"}}

	tests := []struct {
		name string
		tw   *models.TimeWindow
		now  time.Time
		want bool
	}{
		{"nil", nil, at(10, 0), false},
		{"no type", &models.TimeWindow{Hours: hours}, at(10, 0), false},
		{"active inside", &models.TimeWindow{WindowType: "active", Daysofweek: []string{"Monday"}, Hours: hours}, at(10, 0), false},
		{"active outside hours", &models.TimeWindow{WindowType: "active", Daysofweek: []string{"Monday"}, Hours: hours}, at(18, 0), true},
		{"active other day", &models.TimeWindow{WindowType: "active", Daysofweek: []string{"tue", "wed"}}, at(10, 0), true},
		{"blocked inside", &models.TimeWindow{WindowType: "blocked", Hours: hours}, at(9, 0), true},
		{"blocked at end", &models.TimeWindow{WindowType: "blocked", Hours: hours}, at(17, 0), false},
		{"wraps midnight", &models.TimeWindow{WindowType: "blocked", Hours: []models.HourRange{{Start: "10:00PM", End: "2:00AM"}}}, at(1, 0), true},
		{"24h clock", &models.TimeWindow{WindowType: "active", Hours: []models.HourRange{{Start: "08:00", End: "12:30"}}}, at(12, 15), false},
		{"bad hours", &models.TimeWindow{WindowType: "blocked", Hours: []models.HourRange{{Start: "noon", End: "later"}}}, at(12, 0), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsBlocked(tt.tw, tt.now))
		})
	}
}

func TestIsBlockedUsesLocation(t *testing.T) {
	tw := &models.TimeWindow{WindowType: "active", Location: "America/Toronto",
		Hours: []models.HourRange{{Start: "9:00AM", End: "5:00PM"}}}
	// 15:00 UTC is 10:00 in Toronto in January
	assert.False(t, IsBlocked(tw, time.Date(2024, 1, 1, 15, 0, 0, 0, time.UTC)))
	assert.True(t, IsBlocked(tw, time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)))
}
