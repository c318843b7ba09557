package workflow

import (
	"context"
	"fmt"

	"github.com/openlibraryenvironment/dcb-service-sub000/internal/models"
	"go.uber.org/zap"
)

// ResolveSupplierTransition chooses the supplying agency and item for a
// verified request. Firing from NOT_SUPPLIED_CURRENT_SUPPLIER is a
// re-resolution: previously tried suppliers are excluded and the resolution
// counter advances. Total exhaustion is terminal.
type ResolveSupplierTransition struct {
	resolver         SupplierResolver
	supplierRequests SupplierRequestStore
	logger           *zap.Logger
}

// NewResolveSupplierTransition creates the resolution transition
func NewResolveSupplierTransition(resolver SupplierResolver, supplierRequests SupplierRequestStore, logger *zap.Logger) *ResolveSupplierTransition {
	return &ResolveSupplierTransition{
		resolver:         resolver,
		supplierRequests: supplierRequests,
		logger:           logger,
	}
}

func (t *ResolveSupplierTransition) Name() string { return "ResolveSupplier" }

func (t *ResolveSupplierTransition) PossibleSourceStatus() []models.Status {
	return []models.Status{models.StatusPatronVerified, models.StatusNotSuppliedCurrentSupplier}
}

// TargetStatus is absent: resolution ends at RESOLVED, HANDED_OFF_AS_LOCAL
// or NO_ITEMS_AVAILABLE_AT_ANY_AGENCY depending on the outcome.
func (t *ResolveSupplierTransition) TargetStatus() (models.Status, bool) {
	return "", false
}

func (t *ResolveSupplierTransition) AttemptAutomatically() bool { return true }

func (t *ResolveSupplierTransition) IsApplicableFor(c *RequestWorkflowContext) bool {
	return statusIn(c.PatronRequest.Status, t.PossibleSourceStatus())
}

func (t *ResolveSupplierTransition) Attempt(ctx context.Context, c *RequestWorkflowContext) error {
	pr := c.PatronRequest
	reResolution := pr.Status == models.StatusNotSuppliedCurrentSupplier

	excluded, err := t.excludedItems(ctx, c)
	if err != nil {
		return err
	}

	outcome, err := t.resolver.Resolve(ctx, pr, excluded)
	if err != nil {
		return fmt.Errorf("supplier resolution failed: %w", err)
	}

	if reResolution {
		pr.ResolutionCount++
	}

	if outcome == nil {
		c.AddMessage("No items available at any agency")
		pr.Status = models.StatusNoItemsAvailableAtAnyAgency
		return nil
	}

	// A supplier inside the patron's own agency makes this a local loan.
	// With expedited checkout requested the request stays in the standard
	// chain; otherwise the local system handles circulation from here.
	if c.PatronAgency != nil && outcome.Agency.Code == c.PatronAgency.Code {
		pr.ActiveWorkflow = models.WorkflowLocal
		if !pr.ExpeditedCheckout {
			c.AddMessage(fmt.Sprintf("Local supplier %s; handing off to local circulation", outcome.Agency.Code))
			pr.Status = models.StatusHandedOffAsLocal
			return nil
		}
		c.AddMessage(fmt.Sprintf("Local supplier %s; expedited checkout keeps request in consortial chain", outcome.Agency.Code))
	}

	sr := &models.SupplierRequest{
		PatronRequestID: pr.ID,
		AgencyCode:      outcome.Agency.Code,
		HostLmsCode:     outcome.Item.HostLmsCode,
		LocalItemID:     outcome.Item.LocalItemID,
		ItemBarcode:     outcome.Item.Barcode,
		StatusCode:      models.SupplierStatusPending,
		IsActive:        true,
	}
	if err := t.supplierRequests.Save(ctx, sr); err != nil {
		return fmt.Errorf("failed to save supplier request: %w", err)
	}

	c.SupplierRequest = sr
	c.SupplierAgency = outcome.Agency
	c.AddMessage(fmt.Sprintf("Resolved to agency %s, item %s", outcome.Agency.Code, outcome.Item.LocalItemID))

	pr.Status = models.StatusResolved
	return nil
}

// excludedItems collects local item ids from supplier requests already
// tried and deactivated for this request.
func (t *ResolveSupplierTransition) excludedItems(ctx context.Context, c *RequestWorkflowContext) (map[string]bool, error) {
	history, err := t.supplierRequests.ListByPatronRequest(ctx, c.PatronRequest.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to list supplier request history: %w", err)
	}
	excluded := make(map[string]bool, len(history))
	for _, sr := range history {
		if !sr.IsActive {
			excluded[sr.LocalItemID] = true
		}
	}
	return excluded, nil
}
