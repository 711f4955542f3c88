package schedule

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// InvalidDateError reports input the parser could not turn into a timestamp.
type InvalidDateError struct {
	Raw    string
	Reason string
}

func (e *InvalidDateError) Error() string {
	return fmt.Sprintf("invalid date %q: %s", e.Raw, e.Reason)
}

var genericLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
}

var meridianTime = regexp.MustCompile(`(?i)^(\d{1,2}):(\d{2})\s?(AM|PM)`)

// Parser converts the date/time strings found in event feeds into timestamps.
// Values without a zone are read in Loc (UTC when nil).
type Parser struct {
	Loc *time.Location
}

func (p Parser) location() *time.Location {
	if p.Loc == nil {
		return time.UTC
	}
	return p.Loc
}

// Parse accepts ISO-like timestamps as well as "M/D/YYYYTH:MM[:SS]" and
// "M/D/YYYYTH:MM AM|PM" forms.
func (p Parser) Parse(raw string) (time.Time, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return time.Time{}, &InvalidDateError{Raw: raw, Reason: "empty"}
	}
	loc := p.location()
	for _, layout := range genericLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, nil
		}
	}
	return p.parseSlashed(raw, s)
}

func (p Parser) parseSlashed(raw, s string) (time.Time, error) {
	datePart, timePart, ok := strings.Cut(s, "T")
	if !ok || datePart == "" || timePart == "" {
		return time.Time{}, &InvalidDateError{Raw: raw, Reason: "missing date/time separator"}
	}

	fields := strings.Split(datePart, "/")
	if len(fields) != 3 {
		return time.Time{}, &InvalidDateError{Raw: raw, Reason: "date is not M/D/YYYY"}
	}
	month, errM := strconv.Atoi(strings.TrimSpace(fields[0]))
	day, errD := strconv.Atoi(strings.TrimSpace(fields[1]))
	year, errY := strconv.Atoi(strings.TrimSpace(fields[2]))
	if errM != nil || errD != nil || errY != nil {
		return time.Time{}, &InvalidDateError{Raw: raw, Reason: "non-numeric date field"}
	}

	var hour, minute, second int
	upper := strings.ToUpper(timePart)
	if strings.Contains(upper, "AM") || strings.Contains(upper, "PM") {
		m := meridianTime.FindStringSubmatch(strings.TrimSpace(timePart))
		if m == nil {
			return time.Time{}, &InvalidDateError{Raw: raw, Reason: "unrecognised 12-hour time"}
		}
		hour, _ = strconv.Atoi(m[1])
		minute, _ = strconv.Atoi(m[2])
		if hour < 1 || hour > 12 {
			return time.Time{}, &InvalidDateError{Raw: raw, Reason: "hour out of range"}
		}
		switch strings.ToUpper(m[3]) {
		case "PM":
			if hour < 12 {
				hour += 12
			}
		case "AM":
			if hour == 12 {
				hour = 0
			}
		}
	} else {
		parts := strings.Split(strings.TrimSpace(timePart), ":")
		if len(parts) < 2 || len(parts) > 3 {
			return time.Time{}, &InvalidDateError{Raw: raw, Reason: "time is not H:MM[:SS]"}
		}
		var err error
		if hour, err = strconv.Atoi(parts[0]); err != nil {
			return time.Time{}, &InvalidDateError{Raw: raw, Reason: "non-numeric hour"}
		}
		if minute, err = strconv.Atoi(parts[1]); err != nil {
			return time.Time{}, &InvalidDateError{Raw: raw, Reason: "non-numeric minute"}
		}
		if len(parts) == 3 {
			if second, err = strconv.Atoi(parts[2]); err != nil {
				return time.Time{}, &InvalidDateError{Raw: raw, Reason: "non-numeric second"}
			}
		}
	}

	if month < 1 || month > 12 || day < 1 || day > daysIn(time.Month(month), year) {
		return time.Time{}, &InvalidDateError{Raw: raw, Reason: "date out of range"}
	}
	if hour < 0 || hour > 23 || minute < 0 || minute > 59 || second < 0 || second > 59 {
		return time.Time{}, &InvalidDateError{Raw: raw, Reason: "time out of range"}
	}
	return time.Date(year, time.Month(month), day, hour, minute, second, 0, p.location()), nil
}

func daysIn(m time.Month, year int) int {
	return time.Date(year, m+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// NormalizeTime maps a loose time string onto HH:MM:SS. Unknown shapes and
// "TBD" become midnight.
func NormalizeTime(raw string) string {
	cleaned := strings.TrimSpace(raw)
	if cleaned == "" || strings.EqualFold(cleaned, "TBD") {
		return "00:00:00"
	}
	switch len(strings.Split(cleaned, ":")) {
	case 2:
		return cleaned + ":00"
	case 3:
		return cleaned
	default:
		return "00:00:00"
	}
}

// EventTime resolves an event's date and time columns into one timestamp.
func (p Parser) EventTime(date, clock string) (time.Time, error) {
	return p.Parse(strings.TrimSpace(date) + "T" + NormalizeTime(clock))
}
