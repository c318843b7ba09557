package workflow

import (
	"context"
	"fmt"

	"github.com/openlibraryenvironment/dcb-service-sub000/internal/hostlms"
	"github.com/openlibraryenvironment/dcb-service-sub000/internal/models"
	"go.uber.org/zap"
)

// PlaceAtSupplyingAgencyTransition ensures a virtual patron exists at the
// supplying system and places the supplier-side hold on the resolved item.
type PlaceAtSupplyingAgencyTransition struct {
	clients          ClientRegistry
	identities       IdentityStore
	supplierRequests SupplierRequestStore
	agencies         AgencyDirectory
	logger           *zap.Logger
}

// NewPlaceAtSupplyingAgencyTransition creates the supplier placement transition
func NewPlaceAtSupplyingAgencyTransition(
	clients ClientRegistry,
	identities IdentityStore,
	supplierRequests SupplierRequestStore,
	agencies AgencyDirectory,
	logger *zap.Logger,
) *PlaceAtSupplyingAgencyTransition {
	return &PlaceAtSupplyingAgencyTransition{
		clients:          clients,
		identities:       identities,
		supplierRequests: supplierRequests,
		agencies:         agencies,
		logger:           logger,
	}
}

func (t *PlaceAtSupplyingAgencyTransition) Name() string { return "PlaceRequestAtSupplyingAgency" }

func (t *PlaceAtSupplyingAgencyTransition) PossibleSourceStatus() []models.Status {
	return []models.Status{models.StatusResolved}
}

func (t *PlaceAtSupplyingAgencyTransition) TargetStatus() (models.Status, bool) {
	return models.StatusRequestPlacedAtSupplyingAgency, true
}

func (t *PlaceAtSupplyingAgencyTransition) AttemptAutomatically() bool { return true }

func (t *PlaceAtSupplyingAgencyTransition) IsApplicableFor(c *RequestWorkflowContext) bool {
	return statusIn(c.PatronRequest.Status, t.PossibleSourceStatus()) && activeSupplier(c) != nil
}

func (t *PlaceAtSupplyingAgencyTransition) Attempt(ctx context.Context, c *RequestWorkflowContext) error {
	pr := c.PatronRequest
	sr := activeSupplier(c)
	if sr == nil {
		return fmt.Errorf("no active supplier request for %s", pr.ID)
	}

	client, err := t.clients.ClientFor(sr.HostLmsCode)
	if err != nil {
		return fmt.Errorf("supplying system unavailable: %w", err)
	}

	virtual, err := t.ensureVirtualPatron(ctx, client, c)
	if err != nil {
		return err
	}
	sr.VirtualPatronID = virtual.LocalID

	hold, err := client.PlaceHoldRequest(ctx, hostlms.HoldRequest{
		PatronLocalID: virtual.LocalID,
		ItemLocalID:   sr.LocalItemID,
		Note:          fmt.Sprintf("Consortial request %s", pr.ID),
	})
	if err != nil {
		return fmt.Errorf("failed to place hold at %s: %w", sr.HostLmsCode, err)
	}

	sr.LocalID = hold.LocalID
	sr.LocalStatus = hold.Status
	sr.StatusCode = models.SupplierStatusPlaced
	if err := t.supplierRequests.Update(ctx, sr); err != nil {
		return fmt.Errorf("failed to update supplier request: %w", err)
	}

	// Ratio counters feed the resolution sort; a failed bump must not fail
	// the placement.
	if err := t.agencies.IncrementLoanCount(ctx, sr.AgencyCode); err != nil {
		t.logger.Warn("Failed to bump agency loan count", zap.String("agency", sr.AgencyCode), zap.Error(err))
	}
	if c.PatronAgency != nil {
		if err := t.agencies.IncrementBorrowCount(ctx, c.PatronAgency.Code); err != nil {
			t.logger.Warn("Failed to bump agency borrow count", zap.String("agency", c.PatronAgency.Code), zap.Error(err))
		}
	}

	c.AddMessage(fmt.Sprintf("Hold %s placed at supplying agency %s", hold.LocalID, sr.AgencyCode))
	pr.Status = models.StatusRequestPlacedAtSupplyingAgency
	return nil
}

// ensureVirtualPatron reuses or creates the virtual patron representing the
// borrower at the supplying system.
func (t *PlaceAtSupplyingAgencyTransition) ensureVirtualPatron(ctx context.Context, client hostlms.Client, c *RequestWorkflowContext) (*hostlms.Patron, error) {
	pr := c.PatronRequest
	sr := activeSupplier(c)

	// A stored supplier identity is only reusable on the same host system;
	// after re-resolution to a different system the old patron id means
	// nothing there.
	if c.SupplierIdentity != nil && c.SupplierIdentity.LocalID != "" &&
		c.SupplierIdentity.HostLmsCode == sr.HostLmsCode {
		return &hostlms.Patron{LocalID: c.SupplierIdentity.LocalID, Barcode: c.SupplierIdentity.LocalBarcode}, nil
	}

	if c.BorrowerIdentity == nil {
		return nil, fmt.Errorf("request %s has no borrower identity", pr.ID)
	}
	barcode := c.BorrowerIdentity.LocalBarcode

	virtual, err := client.FindVirtualPatron(ctx, barcode)
	if err != nil && !isNotFound(err) {
		return nil, fmt.Errorf("failed to look up virtual patron: %w", err)
	}
	if virtual == nil {
		virtual, err = client.CreatePatron(ctx, hostlms.Patron{
			Barcode:         barcode,
			Ptype:           c.BorrowerIdentity.LocalPtype,
			HomeLibraryCode: c.BorrowerIdentity.HomeLibraryCode,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create virtual patron: %w", err)
		}
	}

	identity := &models.PatronIdentity{
		PatronRequestID: pr.ID,
		HostLmsCode:     client.Code(),
		Role:            models.IdentityRoleSupplier,
		LocalID:         virtual.LocalID,
		LocalBarcode:    virtual.Barcode,
		Virtual:         true,
	}
	if err := t.identities.Upsert(ctx, identity); err != nil {
		return nil, fmt.Errorf("failed to store supplier identity: %w", err)
	}
	c.SupplierIdentity = identity
	return virtual, nil
}
