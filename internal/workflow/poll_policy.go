package workflow

import (
	"time"

	"github.com/openlibraryenvironment/dcb-service-sub000/internal/models"
)

// PollPolicy decides when a quiescent request should next be checked by the
// tracking poller, keyed by its current status. Statuses without an interval
// get no further automatic check.
type PollPolicy interface {
	NextPollAfter(status models.Status) (time.Duration, bool)
}

// StatusPollPolicy is an interval table over statuses.
type StatusPollPolicy struct {
	intervals map[models.Status]time.Duration
}

// DefaultPollPolicy returns the standard interval table: active remote
// states poll frequently, slow-moving loan states poll on the order of
// hours, terminal states never.
func DefaultPollPolicy() *StatusPollPolicy {
	return &StatusPollPolicy{
		intervals: map[models.Status]time.Duration{
			models.StatusRequestPlacedAtSupplyingAgency: 5 * time.Minute,
			models.StatusConfirmed:                      5 * time.Minute,
			models.StatusRequestPlacedAtBorrowingAgency: 5 * time.Minute,
			models.StatusRequestPlacedAtPickupAgency:    5 * time.Minute,
			models.StatusPickupTransit:                  10 * time.Minute,
			models.StatusReceivedAtPickup:               10 * time.Minute,
			models.StatusReadyForPickup:                 30 * time.Minute,
			models.StatusLoaned:                         6 * time.Hour,
			models.StatusReturnTransit:                  1 * time.Hour,
		},
	}
}

// NewStatusPollPolicy builds a policy from an explicit interval table
func NewStatusPollPolicy(intervals map[models.Status]time.Duration) *StatusPollPolicy {
	return &StatusPollPolicy{intervals: intervals}
}

// NextPollAfter returns the poll interval for a status, if any
func (p *StatusPollPolicy) NextPollAfter(status models.Status) (time.Duration, bool) {
	d, ok := p.intervals[status]
	return d, ok
}
