package models

import (
	"time"

	"github.com/google/uuid"
)

// Status is the lifecycle state of a patron request. The workflow engine is
// the only writer; transitions declare which statuses they can fire from.
type Status string

const (
	StatusSubmittedToDCB                 Status = "SUBMITTED_TO_DCB"
	StatusPatronVerified                 Status = "PATRON_VERIFIED"
	StatusResolved                       Status = "RESOLVED"
	StatusNotSuppliedCurrentSupplier     Status = "NOT_SUPPLIED_CURRENT_SUPPLIER"
	StatusNoItemsAvailableAtAnyAgency    Status = "NO_ITEMS_AVAILABLE_AT_ANY_AGENCY"
	StatusRequestPlacedAtSupplyingAgency Status = "REQUEST_PLACED_AT_SUPPLYING_AGENCY"
	StatusConfirmed                      Status = "CONFIRMED"
	StatusRequestPlacedAtBorrowingAgency Status = "REQUEST_PLACED_AT_BORROWING_AGENCY"
	StatusRequestPlacedAtPickupAgency    Status = "REQUEST_PLACED_AT_PICKUP_AGENCY"
	StatusPickupTransit                  Status = "PICKUP_TRANSIT"
	StatusReceivedAtPickup               Status = "RECEIVED_AT_PICKUP"
	StatusReadyForPickup                 Status = "READY_FOR_PICKUP"
	StatusLoaned                         Status = "LOANED"
	StatusReturnTransit                  Status = "RETURN_TRANSIT"
	StatusCompleted                      Status = "COMPLETED"
	StatusCancelled                      Status = "CANCELLED"
	StatusFinalised                      Status = "FINALISED"
	StatusHandedOffAsLocal               Status = "HANDED_OFF_AS_LOCAL"
	StatusError                          Status = "ERROR"
)

// Workflow shapes. The active workflow narrows which transitions apply:
// a local loan never places remote holds, a pickup-anywhere loan places a
// third hold at the pickup system.
const (
	WorkflowStandard       = "RET-STD"
	WorkflowLocal          = "RET-LOCAL"
	WorkflowPickupAnywhere = "RET-PUA"
)

// TerminalStatuses are statuses from which no automatic progression happens.
var TerminalStatuses = map[Status]bool{
	StatusFinalised:                   true,
	StatusError:                       true,
	StatusNoItemsAvailableAtAnyAgency: true,
	StatusHandedOffAsLocal:            true,
}

// PatronRequest is the consortial record of one loan request.
type PatronRequest struct {
	ID                 uuid.UUID  `json:"id"`
	PatronHostLmsCode  string     `json:"patron_host_lms_code"`
	PatronLocalID      string     `json:"patron_local_id"`
	BibClusterID       string     `json:"bib_cluster_id"`
	PickupLocationCode string     `json:"pickup_location_code"`
	PickupHostLmsCode  string     `json:"pickup_host_lms_code,omitempty"`
	Status             Status     `json:"status"`
	ActiveWorkflow     string     `json:"active_workflow"`

	// Local-system mirrors maintained by the tracking poller.
	LocalRequestID     string `json:"local_request_id,omitempty"`
	LocalRequestStatus string `json:"local_request_status,omitempty"`
	LocalItemID        string `json:"local_item_id,omitempty"`
	LocalItemStatus    string `json:"local_item_status,omitempty"`
	LocalBibID         string `json:"local_bib_id,omitempty"`

	// Pickup-system mirrors, populated only for pickup-anywhere loans.
	PickupRequestID string `json:"pickup_request_id,omitempty"`
	PickupItemID    string `json:"pickup_item_id,omitempty"`
	PickupBibID     string `json:"pickup_bib_id,omitempty"`

	RenewalCount      int  `json:"renewal_count"`
	LocalRenewalCount int  `json:"local_renewal_count"`
	ResolutionCount   int  `json:"resolution_count"`
	OutOfSequence     bool `json:"out_of_sequence"`
	ExpeditedCheckout bool `json:"expedited_checkout"`

	ErrorMessage      string     `json:"error_message,omitempty"`
	NextScheduledPoll *time.Time `json:"next_scheduled_poll,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
}

// IsTerminal reports whether the request has reached a status the engine
// never progresses automatically.
func (p *PatronRequest) IsTerminal() bool {
	return TerminalStatuses[p.Status]
}
