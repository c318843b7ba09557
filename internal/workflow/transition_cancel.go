package workflow

import (
	"context"
	"fmt"

	"github.com/openlibraryenvironment/dcb-service-sub000/internal/models"
	"go.uber.org/zap"
)

// CancelRequestTransition handles an operator cancellation. It never fires
// automatically; the HTTP surface routes explicit cancel instructions here.
// Cancellation is only permitted before the loan starts; a loaned item must
// circulate home through the normal return path.
type CancelRequestTransition struct {
	clients          ClientRegistry
	supplierRequests SupplierRequestStore
	logger           *zap.Logger
}

// NewCancelRequestTransition creates the manual cancellation transition
func NewCancelRequestTransition(clients ClientRegistry, supplierRequests SupplierRequestStore, logger *zap.Logger) *CancelRequestTransition {
	return &CancelRequestTransition{clients: clients, supplierRequests: supplierRequests, logger: logger}
}

func (t *CancelRequestTransition) Name() string { return "CancelPatronRequest" }

func (t *CancelRequestTransition) PossibleSourceStatus() []models.Status {
	return []models.Status{
		models.StatusSubmittedToDCB,
		models.StatusPatronVerified,
		models.StatusResolved,
		models.StatusRequestPlacedAtSupplyingAgency,
		models.StatusConfirmed,
		models.StatusRequestPlacedAtPickupAgency,
		models.StatusRequestPlacedAtBorrowingAgency,
		models.StatusPickupTransit,
		models.StatusReceivedAtPickup,
		models.StatusReadyForPickup,
		models.StatusNotSuppliedCurrentSupplier,
	}
}

func (t *CancelRequestTransition) TargetStatus() (models.Status, bool) {
	return models.StatusCancelled, true
}

func (t *CancelRequestTransition) AttemptAutomatically() bool { return false }

func (t *CancelRequestTransition) IsApplicableFor(c *RequestWorkflowContext) bool {
	return statusIn(c.PatronRequest.Status, t.PossibleSourceStatus())
}

func (t *CancelRequestTransition) Attempt(ctx context.Context, c *RequestWorkflowContext) error {
	pr := c.PatronRequest

	// The borrower-side hold is the patron-visible one; it must come off
	// before the request is marked cancelled.
	if pr.LocalRequestID != "" {
		client, err := t.clients.ClientFor(pr.PatronHostLmsCode)
		if err != nil {
			return fmt.Errorf("borrowing system unavailable: %w", err)
		}
		if err := client.CancelHoldRequest(ctx, pr.LocalRequestID); err != nil && !isNotFound(err) {
			return fmt.Errorf("failed to cancel borrower hold: %w", err)
		}
		c.AddMessage(fmt.Sprintf("Borrower hold %s cancelled", pr.LocalRequestID))
	}

	// Supplier and pickup artefacts are swept by finalisation; here the
	// supplier hold is released best-effort so the item frees up promptly.
	if sr := activeSupplier(c); sr != nil {
		if sr.LocalID != "" {
			client, err := t.clients.ClientFor(sr.HostLmsCode)
			if err == nil {
				err = client.CancelHoldRequest(ctx, sr.LocalID)
			}
			if err != nil && !isNotFound(err) {
				c.AddMessage(fmt.Sprintf("Supplier hold release failed: %v", err))
				t.logger.Warn("Failed to release supplier hold on cancellation",
					zap.String("patron_request_id", pr.ID.String()),
					zap.Error(err))
			}
		}
		sr.StatusCode = models.SupplierStatusCancelled
		sr.IsActive = false
		if err := t.supplierRequests.Update(ctx, sr); err != nil {
			return fmt.Errorf("failed to deactivate supplier request: %w", err)
		}
	}

	c.AddMessage("Request cancelled by operator")
	pr.Status = models.StatusCancelled
	return nil
}
