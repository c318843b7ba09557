package workflow

import (
	"context"
	"fmt"

	"github.com/openlibraryenvironment/dcb-service-sub000/internal/models"
	"go.uber.org/zap"
)

// RenewalTransition propagates a renewal the patron made in their home
// system to the supplying system. It fires when the tracked renewal counter
// has advanced past the consortial one, and only when the consortium enables
// renewal triggering. The target status equals the source status: a renewal
// leaves the loan LOANED and only the counters move.
type RenewalTransition struct {
	clients ClientRegistry
	enabled bool
	logger  *zap.Logger
}

// NewRenewalTransition creates the renewal propagation transition
func NewRenewalTransition(clients ClientRegistry, enabled bool, logger *zap.Logger) *RenewalTransition {
	return &RenewalTransition{clients: clients, enabled: enabled, logger: logger}
}

func (t *RenewalTransition) Name() string { return "RenewalDetected" }

func (t *RenewalTransition) PossibleSourceStatus() []models.Status {
	return []models.Status{models.StatusLoaned}
}

func (t *RenewalTransition) TargetStatus() (models.Status, bool) {
	return models.StatusLoaned, true
}

func (t *RenewalTransition) AttemptAutomatically() bool { return true }

func (t *RenewalTransition) IsApplicableFor(c *RequestWorkflowContext) bool {
	pr := c.PatronRequest
	return statusIn(pr.Status, t.PossibleSourceStatus()) &&
		t.enabled &&
		pr.LocalRenewalCount > pr.RenewalCount
}

// AuditMessage labels the audit entry for a propagated renewal.
func (t *RenewalTransition) AuditMessage(c *RequestWorkflowContext) string {
	return "Renewal : Placed"
}

func (t *RenewalTransition) Attempt(ctx context.Context, c *RequestWorkflowContext) error {
	pr := c.PatronRequest
	sr := activeSupplier(c)
	if sr == nil {
		return fmt.Errorf("no active supplier request for %s", pr.ID)
	}

	client, err := t.clients.ClientFor(sr.HostLmsCode)
	if err != nil {
		return fmt.Errorf("supplying system unavailable: %w", err)
	}
	if err := client.Renew(ctx, sr.VirtualPatronID, sr.LocalItemID); err != nil {
		return fmt.Errorf("failed to renew at %s: %w", sr.HostLmsCode, err)
	}

	c.AddMessage(fmt.Sprintf("Renewal %d propagated to supplying agency", pr.LocalRenewalCount))
	pr.RenewalCount = pr.LocalRenewalCount
	return nil
}
