package workflow

import (
	"context"
	"fmt"

	"github.com/openlibraryenvironment/dcb-service-sub000/internal/models"
	"go.uber.org/zap"
)

// ExpeditedCheckoutTransition skips loan detection when an operator flagged
// the request for immediate checkout: the engine checks the item out in the
// borrowing system itself instead of waiting for a circulation-desk scan to
// surface through tracking. This is the path that keeps expedited local
// loans inside the consortial chain.
type ExpeditedCheckoutTransition struct {
	clients ClientRegistry
	logger  *zap.Logger
}

// NewExpeditedCheckoutTransition creates the expedited checkout transition
func NewExpeditedCheckoutTransition(clients ClientRegistry, logger *zap.Logger) *ExpeditedCheckoutTransition {
	return &ExpeditedCheckoutTransition{clients: clients, logger: logger}
}

func (t *ExpeditedCheckoutTransition) Name() string { return "ExpeditedCheckout" }

func (t *ExpeditedCheckoutTransition) PossibleSourceStatus() []models.Status {
	return []models.Status{models.StatusReceivedAtPickup, models.StatusReadyForPickup}
}

func (t *ExpeditedCheckoutTransition) TargetStatus() (models.Status, bool) {
	return models.StatusLoaned, true
}

func (t *ExpeditedCheckoutTransition) AttemptAutomatically() bool { return true }

func (t *ExpeditedCheckoutTransition) IsApplicableFor(c *RequestWorkflowContext) bool {
	return statusIn(c.PatronRequest.Status, t.PossibleSourceStatus()) &&
		c.PatronRequest.ExpeditedCheckout
}

func (t *ExpeditedCheckoutTransition) Attempt(ctx context.Context, c *RequestWorkflowContext) error {
	pr := c.PatronRequest
	if c.BorrowerIdentity == nil {
		return fmt.Errorf("request %s has no borrower identity", pr.ID)
	}

	client, err := t.clients.ClientFor(pr.PatronHostLmsCode)
	if err != nil {
		return fmt.Errorf("borrowing system unavailable: %w", err)
	}
	if err := client.CheckOutItemToPatron(ctx, pr.LocalItemID, c.BorrowerIdentity.LocalID); err != nil {
		return fmt.Errorf("expedited checkout failed at %s: %w", pr.PatronHostLmsCode, err)
	}

	// Keep the supplier's circulation in step, advisory as for a detected
	// checkout.
	if sr := activeSupplier(c); sr != nil && sr.VirtualPatronID != "" {
		supplierClient, err := t.clients.ClientFor(sr.HostLmsCode)
		if err == nil {
			err = supplierClient.CheckOutItemToPatron(ctx, sr.LocalItemID, sr.VirtualPatronID)
		}
		if err != nil {
			c.AddMessage(fmt.Sprintf("Virtual checkout at supplier failed: %v", err))
			t.logger.Warn("Virtual checkout at supplying agency failed",
				zap.String("patron_request_id", pr.ID.String()),
				zap.String("host_lms", sr.HostLmsCode),
				zap.Error(err))
		}
	}

	c.AddMessage("Expedited checkout completed")
	pr.LocalItemStatus = LocalItemLoaned
	pr.Status = models.StatusLoaned
	return nil
}
