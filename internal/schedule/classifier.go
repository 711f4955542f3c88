package schedule

import (
	"time"

	"eventsync/internal/models"
)

// ActiveWindow is how far either side of its start time an event counts as active.
const ActiveWindow = 2 * time.Hour

// Classifier derives an event's lifecycle status from its date and time.
type Classifier struct {
	Parser Parser
}

// Classify never reports active or past for input it cannot parse.
func (c Classifier) Classify(date, clock string, now time.Time) models.EventStatus {
	at, err := c.Parser.EventTime(date, clock)
	if err != nil {
		return models.EventStatusUpcoming
	}
	return StatusAt(at, now)
}

func StatusAt(at, now time.Time) models.EventStatus {
	delta := at.Sub(now)
	switch {
	case delta < -ActiveWindow:
		return models.EventStatusPast
	case delta <= ActiveWindow:
		return models.EventStatusActive
	default:
		return models.EventStatusUpcoming
	}
}

// Restamp returns a copy of events with every status recomputed against now.
func (c Classifier) Restamp(events []models.Event, now time.Time) []models.Event {
	out := make([]models.Event, len(events))
	for i, ev := range events {
		ev.Status = c.Classify(ev.Date, ev.Time, now)
		out[i] = ev
	}
	return out
}
