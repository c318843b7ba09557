package workflow

import (
	"context"
	"fmt"

	"github.com/openlibraryenvironment/dcb-service-sub000/internal/models"
	"go.uber.org/zap"
)

// Tracking transitions react to remote-status observations. The poller
// refreshes the local-system mirrors on the request and supplier request;
// these transitions read the mirrors and move the consortial status to
// match. None of them calls out to a host system except the checkout
// reaction, whose remote call is advisory.

// SupplierConfirmedTransition reacts to the supplying system confirming the
// hold. Confirmation pins down which physical item will travel, so it
// precedes any borrower-side placement.
type SupplierConfirmedTransition struct {
	supplierRequests SupplierRequestStore
}

// NewSupplierConfirmedTransition creates the supplier confirmation reaction
func NewSupplierConfirmedTransition(supplierRequests SupplierRequestStore) *SupplierConfirmedTransition {
	return &SupplierConfirmedTransition{supplierRequests: supplierRequests}
}

func (t *SupplierConfirmedTransition) Name() string { return "SupplierRequestConfirmed" }

func (t *SupplierConfirmedTransition) PossibleSourceStatus() []models.Status {
	return []models.Status{models.StatusRequestPlacedAtSupplyingAgency}
}

func (t *SupplierConfirmedTransition) TargetStatus() (models.Status, bool) {
	return models.StatusConfirmed, true
}

func (t *SupplierConfirmedTransition) AttemptAutomatically() bool { return true }

func (t *SupplierConfirmedTransition) IsApplicableFor(c *RequestWorkflowContext) bool {
	sr := activeSupplier(c)
	return statusIn(c.PatronRequest.Status, t.PossibleSourceStatus()) &&
		sr != nil && sr.LocalStatus == LocalHoldConfirmed
}

func (t *SupplierConfirmedTransition) Attempt(ctx context.Context, c *RequestWorkflowContext) error {
	sr := activeSupplier(c)
	if sr == nil {
		return fmt.Errorf("no active supplier request for %s", c.PatronRequest.ID)
	}
	sr.StatusCode = models.SupplierStatusConfirmed
	if err := t.supplierRequests.Update(ctx, sr); err != nil {
		return fmt.Errorf("failed to update supplier request: %w", err)
	}
	c.AddMessage(fmt.Sprintf("Supplier confirmed item %s (%s)", sr.LocalItemID, sr.ItemBarcode))
	c.PatronRequest.Status = models.StatusConfirmed
	return nil
}

// SupplierCancelledTransition reacts to the supplying system cancelling the
// hold. The supplier request is deactivated so re-resolution skips its item,
// and the request drops back into the resolution chain.
type SupplierCancelledTransition struct {
	supplierRequests SupplierRequestStore
}

// NewSupplierCancelledTransition creates the supplier cancellation reaction
func NewSupplierCancelledTransition(supplierRequests SupplierRequestStore) *SupplierCancelledTransition {
	return &SupplierCancelledTransition{supplierRequests: supplierRequests}
}

func (t *SupplierCancelledTransition) Name() string { return "SupplierRequestCancelled" }

func (t *SupplierCancelledTransition) PossibleSourceStatus() []models.Status {
	return []models.Status{
		models.StatusRequestPlacedAtSupplyingAgency,
		models.StatusConfirmed,
		models.StatusRequestPlacedAtPickupAgency,
		models.StatusRequestPlacedAtBorrowingAgency,
	}
}

func (t *SupplierCancelledTransition) TargetStatus() (models.Status, bool) {
	return models.StatusNotSuppliedCurrentSupplier, true
}

func (t *SupplierCancelledTransition) AttemptAutomatically() bool { return true }

func (t *SupplierCancelledTransition) IsApplicableFor(c *RequestWorkflowContext) bool {
	sr := activeSupplier(c)
	return statusIn(c.PatronRequest.Status, t.PossibleSourceStatus()) &&
		sr != nil && sr.LocalStatus == LocalHoldCancelled
}

func (t *SupplierCancelledTransition) Attempt(ctx context.Context, c *RequestWorkflowContext) error {
	sr := activeSupplier(c)
	if sr == nil {
		return fmt.Errorf("no active supplier request for %s", c.PatronRequest.ID)
	}
	sr.StatusCode = models.SupplierStatusCancelled
	sr.IsActive = false
	if err := t.supplierRequests.Update(ctx, sr); err != nil {
		return fmt.Errorf("failed to deactivate supplier request: %w", err)
	}
	c.AddMessage(fmt.Sprintf("Supplier %s cancelled hold; re-resolution required", sr.AgencyCode))
	c.PatronRequest.Status = models.StatusNotSuppliedCurrentSupplier
	return nil
}

// ItemInTransitTransition reacts to the virtual item entering transit toward
// the pickup location.
type ItemInTransitTransition struct{}

// NewItemInTransitTransition creates the outbound transit reaction
func NewItemInTransitTransition() *ItemInTransitTransition { return &ItemInTransitTransition{} }

func (t *ItemInTransitTransition) Name() string { return "ItemInTransit" }

func (t *ItemInTransitTransition) PossibleSourceStatus() []models.Status {
	return []models.Status{models.StatusRequestPlacedAtBorrowingAgency}
}

func (t *ItemInTransitTransition) TargetStatus() (models.Status, bool) {
	return models.StatusPickupTransit, true
}

func (t *ItemInTransitTransition) AttemptAutomatically() bool { return true }

func (t *ItemInTransitTransition) IsApplicableFor(c *RequestWorkflowContext) bool {
	return statusIn(c.PatronRequest.Status, t.PossibleSourceStatus()) &&
		c.PatronRequest.LocalItemStatus == LocalItemTransit
}

func (t *ItemInTransitTransition) Attempt(ctx context.Context, c *RequestWorkflowContext) error {
	c.AddMessage("Item in transit to pickup location")
	c.PatronRequest.Status = models.StatusPickupTransit
	return nil
}

// ItemReceivedTransition reacts to the item arriving at the pickup location.
type ItemReceivedTransition struct{}

// NewItemReceivedTransition creates the arrival reaction
func NewItemReceivedTransition() *ItemReceivedTransition { return &ItemReceivedTransition{} }

func (t *ItemReceivedTransition) Name() string { return "ItemReceivedAtPickup" }

func (t *ItemReceivedTransition) PossibleSourceStatus() []models.Status {
	return []models.Status{models.StatusPickupTransit}
}

func (t *ItemReceivedTransition) TargetStatus() (models.Status, bool) {
	return models.StatusReceivedAtPickup, true
}

func (t *ItemReceivedTransition) AttemptAutomatically() bool { return true }

func (t *ItemReceivedTransition) IsApplicableFor(c *RequestWorkflowContext) bool {
	return statusIn(c.PatronRequest.Status, t.PossibleSourceStatus()) &&
		c.PatronRequest.LocalItemStatus == LocalItemReceived
}

func (t *ItemReceivedTransition) Attempt(ctx context.Context, c *RequestWorkflowContext) error {
	c.AddMessage("Item received at pickup location")
	c.PatronRequest.Status = models.StatusReceivedAtPickup
	return nil
}

// ItemOnHoldShelfTransition reacts to the item being shelved for the patron.
// Systems that skip the received scan report ON_HOLD_SHELF straight from
// transit, so both statuses are valid sources.
type ItemOnHoldShelfTransition struct{}

// NewItemOnHoldShelfTransition creates the hold-shelf reaction
func NewItemOnHoldShelfTransition() *ItemOnHoldShelfTransition { return &ItemOnHoldShelfTransition{} }

func (t *ItemOnHoldShelfTransition) Name() string { return "ItemOnHoldShelf" }

func (t *ItemOnHoldShelfTransition) PossibleSourceStatus() []models.Status {
	return []models.Status{models.StatusPickupTransit, models.StatusReceivedAtPickup}
}

func (t *ItemOnHoldShelfTransition) TargetStatus() (models.Status, bool) {
	return models.StatusReadyForPickup, true
}

func (t *ItemOnHoldShelfTransition) AttemptAutomatically() bool { return true }

func (t *ItemOnHoldShelfTransition) IsApplicableFor(c *RequestWorkflowContext) bool {
	return statusIn(c.PatronRequest.Status, t.PossibleSourceStatus()) &&
		c.PatronRequest.LocalItemStatus == LocalItemOnHoldShelf
}

func (t *ItemOnHoldShelfTransition) Attempt(ctx context.Context, c *RequestWorkflowContext) error {
	c.AddMessage("Item on hold shelf, ready for pickup")
	c.PatronRequest.Status = models.StatusReadyForPickup
	return nil
}

// CheckedOutToPatronTransition reacts to the patron collecting the loan. The
// matching virtual checkout at the supplying system keeps the supplier's
// circulation records honest but is advisory: its failure is recorded and
// swallowed, never blocking the loan.
type CheckedOutToPatronTransition struct {
	clients ClientRegistry
	logger  *zap.Logger
}

// NewCheckedOutToPatronTransition creates the checkout reaction
func NewCheckedOutToPatronTransition(clients ClientRegistry, logger *zap.Logger) *CheckedOutToPatronTransition {
	return &CheckedOutToPatronTransition{clients: clients, logger: logger}
}

func (t *CheckedOutToPatronTransition) Name() string { return "CheckedOutToPatron" }

func (t *CheckedOutToPatronTransition) PossibleSourceStatus() []models.Status {
	return []models.Status{models.StatusReceivedAtPickup, models.StatusReadyForPickup}
}

func (t *CheckedOutToPatronTransition) TargetStatus() (models.Status, bool) {
	return models.StatusLoaned, true
}

func (t *CheckedOutToPatronTransition) AttemptAutomatically() bool { return true }

func (t *CheckedOutToPatronTransition) IsApplicableFor(c *RequestWorkflowContext) bool {
	return statusIn(c.PatronRequest.Status, t.PossibleSourceStatus()) &&
		c.PatronRequest.LocalItemStatus == LocalItemLoaned
}

func (t *CheckedOutToPatronTransition) Attempt(ctx context.Context, c *RequestWorkflowContext) error {
	pr := c.PatronRequest
	t.virtualCheckout(ctx, c)
	c.AddMessage("Item checked out to patron")
	pr.Status = models.StatusLoaned
	return nil
}

func (t *CheckedOutToPatronTransition) virtualCheckout(ctx context.Context, c *RequestWorkflowContext) {
	sr := activeSupplier(c)
	if sr == nil || sr.VirtualPatronID == "" {
		return
	}
	client, err := t.clients.ClientFor(sr.HostLmsCode)
	if err == nil {
		err = client.CheckOutItemToPatron(ctx, sr.LocalItemID, sr.VirtualPatronID)
	}
	if err != nil {
		c.AddMessage(fmt.Sprintf("Virtual checkout at supplier failed: %v", err))
		t.logger.Warn("Virtual checkout at supplying agency failed",
			zap.String("patron_request_id", c.PatronRequest.ID.String()),
			zap.String("host_lms", sr.HostLmsCode),
			zap.Error(err))
	}
}

// ReturnTransitTransition reacts to the loaned item entering transit back to
// the supplier.
type ReturnTransitTransition struct{}

// NewReturnTransitTransition creates the return transit reaction
func NewReturnTransitTransition() *ReturnTransitTransition { return &ReturnTransitTransition{} }

func (t *ReturnTransitTransition) Name() string { return "ReturnTransitDetected" }

func (t *ReturnTransitTransition) PossibleSourceStatus() []models.Status {
	return []models.Status{models.StatusLoaned}
}

func (t *ReturnTransitTransition) TargetStatus() (models.Status, bool) {
	return models.StatusReturnTransit, true
}

func (t *ReturnTransitTransition) AttemptAutomatically() bool { return true }

func (t *ReturnTransitTransition) IsApplicableFor(c *RequestWorkflowContext) bool {
	return statusIn(c.PatronRequest.Status, t.PossibleSourceStatus()) &&
		c.PatronRequest.LocalItemStatus == LocalItemTransit
}

func (t *ReturnTransitTransition) Attempt(ctx context.Context, c *RequestWorkflowContext) error {
	c.AddMessage("Item in transit back to supplying agency")
	c.PatronRequest.Status = models.StatusReturnTransit
	return nil
}

// RequestCompletedTransition reacts to the item landing back on the
// supplier's shelf, closing the circulation loop.
type RequestCompletedTransition struct{}

// NewRequestCompletedTransition creates the completion reaction
func NewRequestCompletedTransition() *RequestCompletedTransition { return &RequestCompletedTransition{} }

func (t *RequestCompletedTransition) Name() string { return "RequestCompleted" }

func (t *RequestCompletedTransition) PossibleSourceStatus() []models.Status {
	return []models.Status{models.StatusReturnTransit}
}

func (t *RequestCompletedTransition) TargetStatus() (models.Status, bool) {
	return models.StatusCompleted, true
}

func (t *RequestCompletedTransition) AttemptAutomatically() bool { return true }

func (t *RequestCompletedTransition) IsApplicableFor(c *RequestWorkflowContext) bool {
	return statusIn(c.PatronRequest.Status, t.PossibleSourceStatus()) &&
		c.PatronRequest.LocalItemStatus == LocalItemAvailable
}

func (t *RequestCompletedTransition) Attempt(ctx context.Context, c *RequestWorkflowContext) error {
	c.AddMessage("Item back at supplying agency; request complete")
	c.PatronRequest.Status = models.StatusCompleted
	return nil
}
