package workflow

import (
	"context"
	"fmt"

	"github.com/openlibraryenvironment/dcb-service-sub000/internal/hostlms"
	"github.com/openlibraryenvironment/dcb-service-sub000/internal/models"
	"go.uber.org/zap"
)

// PlaceAtBorrowingAgencyTransition mirrors the loan into the patron's home
// system: for the standard shape it creates a virtual bib and item there and
// places a hold on them; for the local shape the real item already lives in
// the home system and is held directly. Pickup-anywhere requests reach this
// transition only after the pickup-side placement.
type PlaceAtBorrowingAgencyTransition struct {
	clients ClientRegistry
	logger  *zap.Logger
}

// NewPlaceAtBorrowingAgencyTransition creates the borrower placement transition
func NewPlaceAtBorrowingAgencyTransition(clients ClientRegistry, logger *zap.Logger) *PlaceAtBorrowingAgencyTransition {
	return &PlaceAtBorrowingAgencyTransition{clients: clients, logger: logger}
}

func (t *PlaceAtBorrowingAgencyTransition) Name() string { return "PlaceRequestAtBorrowingAgency" }

func (t *PlaceAtBorrowingAgencyTransition) PossibleSourceStatus() []models.Status {
	return []models.Status{models.StatusConfirmed, models.StatusRequestPlacedAtPickupAgency}
}

func (t *PlaceAtBorrowingAgencyTransition) TargetStatus() (models.Status, bool) {
	return models.StatusRequestPlacedAtBorrowingAgency, true
}

func (t *PlaceAtBorrowingAgencyTransition) AttemptAutomatically() bool { return true }

func (t *PlaceAtBorrowingAgencyTransition) IsApplicableFor(c *RequestWorkflowContext) bool {
	if !statusIn(c.PatronRequest.Status, t.PossibleSourceStatus()) || activeSupplier(c) == nil {
		return false
	}
	// Pickup-anywhere requests place at the pickup system before the
	// borrower side.
	if c.PatronRequest.Status == models.StatusConfirmed &&
		c.PatronRequest.ActiveWorkflow == models.WorkflowPickupAnywhere {
		return false
	}
	return true
}

func (t *PlaceAtBorrowingAgencyTransition) Attempt(ctx context.Context, c *RequestWorkflowContext) error {
	pr := c.PatronRequest
	sr := activeSupplier(c)
	if sr == nil {
		return fmt.Errorf("no active supplier request for %s", pr.ID)
	}
	if c.BorrowerIdentity == nil {
		return fmt.Errorf("request %s has no borrower identity", pr.ID)
	}

	client, err := t.clients.ClientFor(pr.PatronHostLmsCode)
	if err != nil {
		return fmt.Errorf("borrowing system unavailable: %w", err)
	}

	itemID := sr.LocalItemID
	if pr.ActiveWorkflow != models.WorkflowLocal {
		itemID, err = t.createVirtualCopy(ctx, client, c)
		if err != nil {
			return err
		}
	} else {
		pr.LocalItemID = itemID
	}

	hold, err := client.PlaceHoldRequest(ctx, hostlms.HoldRequest{
		PatronLocalID:  c.BorrowerIdentity.LocalID,
		ItemLocalID:    itemID,
		PickupLocation: pr.PickupLocationCode,
		Note:           fmt.Sprintf("Consortial request %s", pr.ID),
	})
	if err != nil {
		return fmt.Errorf("failed to place hold at %s: %w", pr.PatronHostLmsCode, err)
	}

	pr.LocalRequestID = hold.LocalID
	pr.LocalRequestStatus = hold.Status
	c.AddMessage(fmt.Sprintf("Hold %s placed at borrowing agency", hold.LocalID))

	pr.Status = models.StatusRequestPlacedAtBorrowingAgency
	return nil
}

// createVirtualCopy creates the virtual bib and item representing the
// supplier's copy in the borrowing system and records their local ids.
func (t *PlaceAtBorrowingAgencyTransition) createVirtualCopy(ctx context.Context, client hostlms.Client, c *RequestWorkflowContext) (string, error) {
	pr := c.PatronRequest
	sr := activeSupplier(c)

	// The cluster id stands in for full bib metadata; member systems only
	// need a placeholder record to hang the virtual item on.
	bib, err := client.CreateBib(ctx, hostlms.Bib{Title: pr.BibClusterID})
	if err != nil {
		return "", fmt.Errorf("failed to create virtual bib: %w", err)
	}
	pr.LocalBibID = bib.LocalID

	item, err := client.CreateItem(ctx, hostlms.Item{
		BibID:    bib.LocalID,
		Barcode:  sr.ItemBarcode,
		Location: pr.PickupLocationCode,
	})
	if err != nil {
		return "", fmt.Errorf("failed to create virtual item: %w", err)
	}
	pr.LocalItemID = item.LocalID
	return item.LocalID, nil
}
