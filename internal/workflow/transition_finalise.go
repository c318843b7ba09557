package workflow

import (
	"context"
	"fmt"

	"github.com/openlibraryenvironment/dcb-service-sub000/internal/hostlms"
	"github.com/openlibraryenvironment/dcb-service-sub000/internal/models"
	"go.uber.org/zap"
)

// FinaliseTransition retires a finished request: the virtual records seeded
// across the participating systems are torn down and the request reaches its
// resting status. Every cleanup sub-step is best-effort; a failure is noted
// in the workflow messages and logged, and finalisation proceeds. Stranded
// virtual records are an operator chore, an unfinalisable request is a stuck
// patron.
type FinaliseTransition struct {
	clients          ClientRegistry
	supplierRequests SupplierRequestStore
	logger           *zap.Logger
}

// NewFinaliseTransition creates the finalisation transition
func NewFinaliseTransition(clients ClientRegistry, supplierRequests SupplierRequestStore, logger *zap.Logger) *FinaliseTransition {
	return &FinaliseTransition{clients: clients, supplierRequests: supplierRequests, logger: logger}
}

func (t *FinaliseTransition) Name() string { return "FinaliseRequest" }

func (t *FinaliseTransition) PossibleSourceStatus() []models.Status {
	return []models.Status{models.StatusCompleted, models.StatusCancelled}
}

func (t *FinaliseTransition) TargetStatus() (models.Status, bool) {
	return models.StatusFinalised, true
}

func (t *FinaliseTransition) AttemptAutomatically() bool { return true }

func (t *FinaliseTransition) IsApplicableFor(c *RequestWorkflowContext) bool {
	return statusIn(c.PatronRequest.Status, t.PossibleSourceStatus())
}

func (t *FinaliseTransition) Attempt(ctx context.Context, c *RequestWorkflowContext) error {
	pr := c.PatronRequest

	t.cleanupSupplier(ctx, c)
	t.cleanupBorrower(ctx, c)
	if pr.ActiveWorkflow == models.WorkflowPickupAnywhere {
		t.cleanupPickup(ctx, c)
	}

	c.AddMessage("Request finalised")
	pr.Status = models.StatusFinalised
	return nil
}

// cleanupSupplier sweeps the whole supplier-request history, not just the
// active row. Cancelled and superseded rows still own a hold and a virtual
// patron on their system, and context assembly no longer surfaces them.
func (t *FinaliseTransition) cleanupSupplier(ctx context.Context, c *RequestWorkflowContext) {
	rows, err := t.supplierRequests.ListByPatronRequest(ctx, c.PatronRequest.ID)
	if err != nil {
		t.note(c, "supplier cleanup", err)
		return
	}
	swept := make(map[string]bool)
	for _, sr := range rows {
		client, err := t.clients.ClientFor(sr.HostLmsCode)
		if err != nil {
			t.note(c, "supplier cleanup", err)
			continue
		}
		if sr.LocalID != "" && sr.StatusCode != models.SupplierStatusCancelled {
			if err := client.CancelHoldRequest(ctx, sr.LocalID); err != nil && !isNotFound(err) {
				t.note(c, "supplier hold release", err)
			}
		}
		key := sr.HostLmsCode + "/" + sr.VirtualPatronID
		if sr.VirtualPatronID != "" && !swept[key] {
			swept[key] = true
			if err := client.DeletePatron(ctx, sr.VirtualPatronID); err != nil && !isNotFound(err) {
				t.note(c, "virtual patron removal", err)
			}
		}
	}
}

// cleanupBorrower removes the virtual item and bib seeded into the patron's
// home system. Local loans hold the real item, so nothing is deleted there.
func (t *FinaliseTransition) cleanupBorrower(ctx context.Context, c *RequestWorkflowContext) {
	pr := c.PatronRequest
	if pr.ActiveWorkflow == models.WorkflowLocal {
		return
	}
	if pr.LocalItemID == "" && pr.LocalBibID == "" {
		return
	}
	client, err := t.clients.ClientFor(pr.PatronHostLmsCode)
	if err != nil {
		t.note(c, "borrower cleanup", err)
		return
	}
	t.deleteVirtualCopy(ctx, client, c, pr.LocalItemID, pr.LocalBibID, "virtual")
}

// cleanupPickup tears down the pickup-side hold, virtual copy and virtual
// patron created for a pickup-anywhere loan.
func (t *FinaliseTransition) cleanupPickup(ctx context.Context, c *RequestWorkflowContext) {
	pr := c.PatronRequest
	code := pr.PickupHostLmsCode
	if code == "" && c.PickupAgency != nil {
		code = c.PickupAgency.HostLmsCode
	}
	if code == "" {
		return
	}
	client, err := t.clients.ClientFor(code)
	if err != nil {
		t.note(c, "pickup cleanup", err)
		return
	}
	if pr.PickupRequestID != "" {
		if err := client.CancelHoldRequest(ctx, pr.PickupRequestID); err != nil && !isNotFound(err) {
			t.note(c, "pickup hold release", err)
		}
	}
	t.deleteVirtualCopy(ctx, client, c, pr.PickupItemID, pr.PickupBibID, "pickup")
	if c.PickupIdentity != nil && c.PickupIdentity.LocalID != "" {
		if err := client.DeletePatron(ctx, c.PickupIdentity.LocalID); err != nil && !isNotFound(err) {
			t.note(c, "pickup patron removal", err)
		}
	}
}

// deleteVirtualCopy removes an item and its bib, item first so the bib is
// not left with an orphaned attachment when the item delete fails.
func (t *FinaliseTransition) deleteVirtualCopy(ctx context.Context, client hostlms.Client, c *RequestWorkflowContext, itemID, bibID, label string) {
	if itemID != "" {
		if err := client.DeleteItem(ctx, itemID); err != nil && !isNotFound(err) {
			t.note(c, label+" item removal", err)
		}
	}
	if bibID != "" {
		if err := client.DeleteBib(ctx, bibID); err != nil && !isNotFound(err) {
			t.note(c, label+" bib removal", err)
		}
	}
}

func (t *FinaliseTransition) note(c *RequestWorkflowContext, step string, err error) {
	c.AddMessage(fmt.Sprintf("Cleanup step %q failed: %v", step, err))
	t.logger.Warn("Finalisation cleanup step failed",
		zap.String("patron_request_id", c.PatronRequest.ID.String()),
		zap.String("step", step),
		zap.Error(err))
}
