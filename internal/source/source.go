package source

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"eventsync/internal/ledger"
)

// Source is where the event list comes from.
type Source interface {
	Name() string
	// Fetch is the cheap read of the current batch.
	Fetch(ctx context.Context) (Batch, error)
	// Refresh asks the source to rebuild its data and blocks until it has.
	// Read-only sources return nil immediately.
	Refresh(ctx context.Context) (RefreshResult, error)
}

// RefreshResult describes the write that backed a refresh, if any.
type RefreshResult struct {
	TxHash   string `json:"tx_hash,omitempty"`
	Appealed bool   `json:"appealed"`
	Attempts int    `json:"attempts"`
}

// RawEvent is one loosely typed record as delivered by a source.
type RawEvent struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Date        string `json:"date"`
	Type        string `json:"type"`
	Time        string `json:"time,omitempty"`
	StartTime   string `json:"start_time,omitempty"`
	DiscordLink string `json:"discord_link,omitempty"`
}

// Batch is a transient snapshot of a source's events.
type Batch struct {
	Events     []RawEvent `json:"events"`
	LastSync   string     `json:"last_sync"`
	TotalCount int        `json:"total_count"`
}

var codeFence = regexp.MustCompile("^```(?:json)?\\s*\\n?([\\s\\S]*?)\\n?```$")

// StripCodeFence removes a surrounding ```json ... ``` block if present.
func StripCodeFence(s string) string {
	trimmed := strings.TrimSpace(s)
	if m := codeFence.FindStringSubmatch(trimmed); m != nil {
		return strings.TrimSpace(m[1])
	}
	return s
}

// DecodeBatch accepts the batch either as a JSON object or as a JSON string
// holding one, optionally fenced as a markdown code block.
func DecodeBatch(raw []byte) (Batch, error) {
	body := strings.TrimSpace(string(raw))
	if body == "" || body == "null" {
		return Batch{}, nil
	}
	if strings.HasPrefix(body, `"`) {
		var inner string
		if err := json.Unmarshal([]byte(body), &inner); err != nil {
			return Batch{}, &ledger.MalformedResponseError{What: "event batch", Err: err}
		}
		body = strings.TrimSpace(StripCodeFence(inner))
	} else {
		body = strings.TrimSpace(StripCodeFence(body))
	}

	var envelope struct {
		Events     json.RawMessage `json:"events"`
		LastSync   json.RawMessage `json:"last_sync"`
		TotalCount int             `json:"total_count"`
	}
	if err := json.Unmarshal([]byte(body), &envelope); err != nil {
		return Batch{}, &ledger.MalformedResponseError{What: "event batch", Err: err}
	}
	batch := Batch{LastSync: looseString(envelope.LastSync), TotalCount: envelope.TotalCount}
	// A missing or non-array events field is an empty batch, not an error.
	if len(envelope.Events) == 0 || envelope.Events[0] != '[' {
		return batch, nil
	}
	if err := json.Unmarshal(envelope.Events, &batch.Events); err != nil {
		return Batch{}, &ledger.MalformedResponseError{What: "event list", Err: fmt.Errorf("decode events: %w", err)}
	}
	return batch, nil
}

func looseString(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	out := strings.TrimSpace(string(raw))
	if out == "null" {
		return ""
	}
	return out
}
