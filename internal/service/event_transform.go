package service

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"eventsync/internal/models"
	"eventsync/internal/schedule"
	"eventsync/internal/source"
)

var whitespaceRun = regexp.MustCompile(`\s+`)

// mapEventType files a free-form type label under one of the known categories.
// Rules are substring matches, first hit wins.
func mapEventType(raw string) models.EventType {
	t := strings.ToLower(strings.TrimSpace(raw))
	switch {
	case strings.Contains(t, "quiz"):
		return models.EventTypeQuiz
	case strings.Contains(t, "workshop"):
		return models.EventTypeWorkshop
	case strings.Contains(t, "ama"), strings.Contains(t, "ask"):
		return models.EventTypeAMA
	case strings.Contains(t, "game"), strings.Contains(t, "play"):
		return models.EventTypeGame
	case strings.Contains(t, "announcement"):
		return models.EventTypeAnnouncements
	default:
		return models.EventTypeMeeting
	}
}

func eventID(title, date string, ordinal int) string {
	slug := whitespaceRun.ReplaceAllString(strings.ToLower(strings.TrimSpace(title)), "-")
	return slug + "-" + date + "-" + strconv.Itoa(ordinal)
}

func rawClock(ev source.RawEvent) string {
	if t := strings.TrimSpace(ev.Time); t != "" {
		return t
	}
	if t := strings.TrimSpace(ev.StartTime); t != "" {
		return t
	}
	return "TBD"
}

// displayClock shortens HH:MM:SS to HH:MM and leaves every other shape alone.
func displayClock(clock string) string {
	if strings.Count(clock, ":") == 2 && len(clock) >= 5 {
		return clock[:5]
	}
	return clock
}

// transformEvents turns a source batch into events stamped against now.
// Statuses use the full raw time even when the displayed time is shortened.
func transformEvents(raw []source.RawEvent, classifier schedule.Classifier, now time.Time) []models.Event {
	out := make([]models.Event, 0, len(raw))
	for i, ev := range raw {
		clock := rawClock(ev)
		out = append(out, models.Event{
			ID:          eventID(ev.Title, ev.Date, i),
			Title:       ev.Title,
			Description: ev.Description,
			Date:        ev.Date,
			Time:        displayClock(clock),
			Type:        mapEventType(ev.Type),
			Status:      classifier.Classify(ev.Date, clock, now),
			DiscordLink: strings.TrimSpace(ev.DiscordLink),
		})
	}
	return out
}
