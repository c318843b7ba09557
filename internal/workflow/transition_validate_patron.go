package workflow

import (
	"context"
	"fmt"

	"github.com/openlibraryenvironment/dcb-service-sub000/internal/models"
	"go.uber.org/zap"
)

// ValidatePatronTransition refreshes the patron's identity from their home
// system and resolves their home library to a consortium agency. A request
// whose home library maps to no agency cannot proceed at all, so that guard
// failure is fatal.
type ValidatePatronTransition struct {
	clients    ClientRegistry
	identities IdentityStore
	agencies   AgencyDirectory
	logger     *zap.Logger
}

// NewValidatePatronTransition creates the patron validation transition
func NewValidatePatronTransition(clients ClientRegistry, identities IdentityStore, agencies AgencyDirectory, logger *zap.Logger) *ValidatePatronTransition {
	return &ValidatePatronTransition{
		clients:    clients,
		identities: identities,
		agencies:   agencies,
		logger:     logger,
	}
}

func (t *ValidatePatronTransition) Name() string { return "ValidatePatron" }

func (t *ValidatePatronTransition) PossibleSourceStatus() []models.Status {
	return []models.Status{models.StatusSubmittedToDCB}
}

func (t *ValidatePatronTransition) TargetStatus() (models.Status, bool) {
	return models.StatusPatronVerified, true
}

func (t *ValidatePatronTransition) AttemptAutomatically() bool { return true }

func (t *ValidatePatronTransition) IsApplicableFor(c *RequestWorkflowContext) bool {
	return statusIn(c.PatronRequest.Status, t.PossibleSourceStatus())
}

func (t *ValidatePatronTransition) Attempt(ctx context.Context, c *RequestWorkflowContext) error {
	pr := c.PatronRequest

	client, err := t.clients.ClientFor(pr.PatronHostLmsCode)
	if err != nil {
		return fmt.Errorf("patron home system unavailable: %w", err)
	}

	patron, err := client.GetPatronByLocalID(ctx, pr.PatronLocalID)
	if err != nil {
		return fmt.Errorf("failed to refresh patron %s at %s: %w", pr.PatronLocalID, pr.PatronHostLmsCode, err)
	}

	agency, err := t.agencies.ResolveLocation(ctx, patron.HomeLibraryCode)
	if err != nil {
		return fmt.Errorf("failed to resolve home library %q: %w", patron.HomeLibraryCode, err)
	}
	if agency == nil {
		return fmt.Errorf("no agency mapping for home library %q of patron %s", patron.HomeLibraryCode, pr.PatronLocalID)
	}

	identity := &models.PatronIdentity{
		PatronRequestID: pr.ID,
		HostLmsCode:     pr.PatronHostLmsCode,
		Role:            models.IdentityRoleBorrower,
		LocalID:         patron.LocalID,
		LocalBarcode:    patron.Barcode,
		LocalPtype:      patron.Ptype,
		HomeLibraryCode: patron.HomeLibraryCode,
	}
	if err := t.identities.Upsert(ctx, identity); err != nil {
		return fmt.Errorf("failed to store borrower identity: %w", err)
	}

	c.BorrowerIdentity = identity
	c.PatronAgency = agency
	c.AddMessage(fmt.Sprintf("Patron verified at %s, agency %s", pr.PatronHostLmsCode, agency.Code))

	pr.Status = models.StatusPatronVerified
	return nil
}
