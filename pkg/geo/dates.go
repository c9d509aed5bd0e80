package geo

import (
	"fmt"
	"time"
)

const dateLayout = "2006-01-02"

// ParseDate parses an ISO-8601 calendar date (YYYY-MM-DD).
func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q, expected YYYY-MM-DD", s)
	}
	return t, nil
}

// DateRange is an inclusive observation window.
type DateRange struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

// Validate checks both dates parse and the range is ordered.
func (r DateRange) Validate() error {
	start, err := ParseDate(r.Start)
	if err != nil {
		return err
	}
	end, err := ParseDate(r.End)
	if err != nil {
		return err
	}
	if end.Before(start) {
		return fmt.Errorf("end date %s is before start date %s", r.End, r.Start)
	}
	return nil
}
