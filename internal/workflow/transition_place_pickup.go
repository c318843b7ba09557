package workflow

import (
	"context"
	"fmt"

	"github.com/openlibraryenvironment/dcb-service-sub000/internal/hostlms"
	"github.com/openlibraryenvironment/dcb-service-sub000/internal/models"
	"go.uber.org/zap"
)

// PlaceAtPickupAgencyTransition handles the pickup-anywhere shape: the item
// travels to a third system that is neither the borrower's nor the
// supplier's, so that system gets its own virtual bib, item and patron plus
// the linked hold. A re-resolution replaces the existing pickup hold instead
// of stacking a second one.
type PlaceAtPickupAgencyTransition struct {
	clients    ClientRegistry
	identities IdentityStore
	logger     *zap.Logger
}

// NewPlaceAtPickupAgencyTransition creates the pickup placement transition
func NewPlaceAtPickupAgencyTransition(clients ClientRegistry, identities IdentityStore, logger *zap.Logger) *PlaceAtPickupAgencyTransition {
	return &PlaceAtPickupAgencyTransition{clients: clients, identities: identities, logger: logger}
}

func (t *PlaceAtPickupAgencyTransition) Name() string { return "PlaceRequestAtPickupAgency" }

func (t *PlaceAtPickupAgencyTransition) PossibleSourceStatus() []models.Status {
	return []models.Status{models.StatusConfirmed}
}

func (t *PlaceAtPickupAgencyTransition) TargetStatus() (models.Status, bool) {
	return models.StatusRequestPlacedAtPickupAgency, true
}

func (t *PlaceAtPickupAgencyTransition) AttemptAutomatically() bool { return true }

func (t *PlaceAtPickupAgencyTransition) IsApplicableFor(c *RequestWorkflowContext) bool {
	return statusIn(c.PatronRequest.Status, t.PossibleSourceStatus()) &&
		c.PatronRequest.ActiveWorkflow == models.WorkflowPickupAnywhere &&
		activeSupplier(c) != nil
}

func (t *PlaceAtPickupAgencyTransition) Attempt(ctx context.Context, c *RequestWorkflowContext) error {
	pr := c.PatronRequest
	sr := activeSupplier(c)
	if sr == nil {
		return fmt.Errorf("no active supplier request for %s", pr.ID)
	}

	code := pr.PickupHostLmsCode
	if code == "" && c.PickupAgency != nil {
		code = c.PickupAgency.HostLmsCode
	}
	if code == "" {
		return fmt.Errorf("request %s has no pickup host system", pr.ID)
	}
	client, err := t.clients.ClientFor(code)
	if err != nil {
		return fmt.Errorf("pickup system unavailable: %w", err)
	}

	// A prior placement from an earlier resolution is superseded, not
	// duplicated.
	if pr.ResolutionCount > 0 && pr.PickupRequestID != "" {
		if err := client.CancelHoldRequest(ctx, pr.PickupRequestID); err != nil && !isNotFound(err) {
			return fmt.Errorf("failed to cancel superseded pickup hold: %w", err)
		}
		c.AddMessage(fmt.Sprintf("Superseded pickup hold %s cancelled", pr.PickupRequestID))
	}

	patron, err := t.ensurePickupPatron(ctx, client, c)
	if err != nil {
		return err
	}

	if pr.PickupBibID == "" {
		bib, err := client.CreateBib(ctx, hostlms.Bib{Title: pr.BibClusterID})
		if err != nil {
			return fmt.Errorf("failed to create pickup bib: %w", err)
		}
		pr.PickupBibID = bib.LocalID
	}

	item, err := client.CreateItem(ctx, hostlms.Item{
		BibID:    pr.PickupBibID,
		Barcode:  sr.ItemBarcode,
		Location: pr.PickupLocationCode,
	})
	if err != nil {
		return fmt.Errorf("failed to create pickup item: %w", err)
	}
	pr.PickupItemID = item.LocalID

	hold, err := client.PlaceHoldRequest(ctx, hostlms.HoldRequest{
		PatronLocalID:  patron.LocalID,
		ItemLocalID:    item.LocalID,
		PickupLocation: pr.PickupLocationCode,
		Note:           fmt.Sprintf("Consortial request %s", pr.ID),
	})
	if err != nil {
		return fmt.Errorf("failed to place hold at %s: %w", code, err)
	}
	pr.PickupRequestID = hold.LocalID
	c.AddMessage(fmt.Sprintf("Hold %s placed at pickup agency", hold.LocalID))

	pr.Status = models.StatusRequestPlacedAtPickupAgency
	return nil
}

// ensurePickupPatron reuses or creates the virtual patron at the pickup
// system.
func (t *PlaceAtPickupAgencyTransition) ensurePickupPatron(ctx context.Context, client hostlms.Client, c *RequestWorkflowContext) (*hostlms.Patron, error) {
	pr := c.PatronRequest
	if c.PickupIdentity != nil && c.PickupIdentity.LocalID != "" {
		return &hostlms.Patron{LocalID: c.PickupIdentity.LocalID, Barcode: c.PickupIdentity.LocalBarcode}, nil
	}
	if c.BorrowerIdentity == nil {
		return nil, fmt.Errorf("request %s has no borrower identity", pr.ID)
	}
	barcode := c.BorrowerIdentity.LocalBarcode

	patron, err := client.FindVirtualPatron(ctx, barcode)
	if err != nil && !isNotFound(err) {
		return nil, fmt.Errorf("failed to look up pickup patron: %w", err)
	}
	if patron == nil {
		patron, err = client.CreatePatron(ctx, hostlms.Patron{
			Barcode:         barcode,
			Ptype:           c.BorrowerIdentity.LocalPtype,
			HomeLibraryCode: c.BorrowerIdentity.HomeLibraryCode,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create pickup patron: %w", err)
		}
	}

	identity := &models.PatronIdentity{
		PatronRequestID: pr.ID,
		HostLmsCode:     client.Code(),
		Role:            models.IdentityRolePickup,
		LocalID:         patron.LocalID,
		LocalBarcode:    patron.Barcode,
		Virtual:         true,
	}
	if err := t.identities.Upsert(ctx, identity); err != nil {
		return nil, fmt.Errorf("failed to store pickup identity: %w", err)
	}
	c.PickupIdentity = identity
	return patron, nil
}
