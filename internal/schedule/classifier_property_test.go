package schedule

import (
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"eventsync/internal/models"
)

// Property: for any event time and now, Classify agrees with the ±2h rule.
func TestClassify_WindowProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 500
	properties := gopter.NewProperties(parameters)

	base := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	c := Classifier{}

	properties.Property("status follows the activity window", prop.ForAll(
		func(eventOffsetMin int64, deltaSec int64) bool {
			at := base.Add(time.Duration(eventOffsetMin) * time.Minute)
			now := at.Add(-time.Duration(deltaSec) * time.Second)
			got := c.Classify(at.Format("2006-01-02"), at.Format("15:04:05"), now)

			delta := time.Duration(deltaSec) * time.Second
			var want models.EventStatus
			switch {
			case delta >= -2*time.Hour && delta <= 2*time.Hour:
				want = models.EventStatusActive
			case delta < -2*time.Hour:
				want = models.EventStatusPast
			default:
				want = models.EventStatusUpcoming
			}
			return got == want
		},
		gen.Int64Range(-60*24*365, 60*24*365),
		gen.Int64Range(-6*3600, 6*3600),
	))

	properties.Property("garbage dates are never active or past", prop.ForAll(
		func(junk string) bool {
			return c.Classify("x"+junk, junk, base) == models.EventStatusUpcoming
		},
		gen.AlphaString(),
	))

	properties.TestingRun(t)
}
