package band

import "time"

// Join back-off duty cycles since device startup, expressed as 1/N. The
// aggregated join traffic is limited to 1% during the first hour, 0.1%
// during the following 10 hours and 0.01% afterwards.
const (
	backOffDC1Hour   = 100
	backOffDC10Hours = 1000
	backOffDC24Hours = 10000
)

// Join back-off regime boundaries.
const (
	backOffWindow1 = time.Hour
	backOffWindow2 = 11 * time.Hour
)

// joinDutyCycle returns the duty-cycle divider that applies to
// join-request traffic for the given time since device startup.
func joinDutyCycle(elapsed time.Duration) int {
	switch {
	case elapsed < backOffWindow1:
		return backOffDC1Hour
	case elapsed < backOffWindow2:
		return backOffDC10Hours
	default:
		return backOffDC24Hours
	}
}
