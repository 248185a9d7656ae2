package billing

import (
	"fmt"
	"regexp"
	"time"

	"github.com/softwareone-finops/cloud-billing/internal/clock"
)

var cyclePattern = regexp.MustCompile(`^\d{4}-\d{2}$`)

// ValidateCycle checks that a billing cycle matches YYYY-MM and names a real
// calendar month. It returns a *ValidationError otherwise.
func ValidateCycle(cycle string) error {
	if !cyclePattern.MatchString(cycle) {
		return &ValidationError{Field: "billing cycle", Reason: fmt.Sprintf("%q does not match YYYY-MM", cycle)}
	}
	if _, err := time.Parse("2006-01", cycle); err != nil {
		return &ValidationError{Field: "billing cycle", Reason: fmt.Sprintf("%q is not a valid month", cycle)}
	}
	return nil
}

// CycleBounds returns the first and last day of a billing cycle as
// YYYY-MM-DD strings.
func CycleBounds(cycle string) (start, end string, err error) {
	if err := ValidateCycle(cycle); err != nil {
		return "", "", err
	}
	first, err := time.Parse("2006-01", cycle)
	if err != nil {
		return "", "", &ValidationError{Field: "billing cycle", Reason: err.Error()}
	}
	last := first.AddDate(0, 1, -1)
	return first.Format("2006-01-02"), last.Format("2006-01-02"), nil
}

// CurrentCycle returns the most recently completed billing cycle, i.e. the
// previous calendar month.
func CurrentCycle(c clock.Clock) string {
	now := c.Now()
	firstOfMonth := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
	return firstOfMonth.AddDate(0, 0, -1).Format("2006-01")
}
