package models

// EventType is the category a community event is filed under.
type EventType string

const (
	EventTypeQuiz          EventType = "quiz"
	EventTypeMeeting       EventType = "meeting"
	EventTypeWorkshop      EventType = "workshop"
	EventTypeAMA           EventType = "ama"
	EventTypeGame          EventType = "game"
	EventTypeAnnouncements EventType = "announcements"
)

// EventStatus is derived from the event time relative to now and is never stored.
type EventStatus string

const (
	EventStatusActive   EventStatus = "active"
	EventStatusUpcoming EventStatus = "upcoming"
	EventStatusPast     EventStatus = "past"
)

type Event struct {
	ID          string      `json:"id"`
	Title       string      `json:"title"`
	Description string      `json:"description"`
	Date        string      `json:"date"`
	Time        string      `json:"time"`
	Type        EventType   `json:"type"`
	Status      EventStatus `json:"status,omitempty"`
	DiscordLink string      `json:"discordLink,omitempty"`
}
