package workflow

import (
	"context"
	"errors"

	"github.com/openlibraryenvironment/dcb-service-sub000/internal/hostlms"
	"github.com/openlibraryenvironment/dcb-service-sub000/internal/models"
)

// Transition is one unit of state-machine logic: a guard over the workflow
// context and a side-effecting attempt. Implementations are stateless;
// everything flows through the context and the persisted entities.
type Transition interface {
	// Name is the stable identifier used in audit messages, logging and
	// ordering. Renaming a transition changes engine ordering.
	Name() string

	// PossibleSourceStatus is the set of statuses the transition can fire
	// from. Outside this set the transition is inert regardless of any
	// other guard.
	PossibleSourceStatus() []models.Status

	// TargetStatus is the nominal destination, used for audit annotation.
	// ok is false for transitions with no single destination.
	TargetStatus() (target models.Status, ok bool)

	// AttemptAutomatically reports whether the engine may fire this
	// transition without an explicit external instruction.
	AttemptAutomatically() bool

	// IsApplicableFor evaluates the full guard: source-status membership
	// first, then any bespoke conditions.
	IsApplicableFor(c *RequestWorkflowContext) bool

	// Attempt performs the transition. Callers must check IsApplicableFor
	// first; the engine guarantees this for automatic progression.
	Attempt(ctx context.Context, c *RequestWorkflowContext) error
}

// statusIn reports whether status is a member of set. Every transition's
// IsApplicableFor starts with this check against its declared source set.
func statusIn(status models.Status, set []models.Status) bool {
	for _, s := range set {
		if s == status {
			return true
		}
	}
	return false
}

// isNotFound reports whether err is the host system's missing-record error.
func isNotFound(err error) bool {
	return errors.Is(err, hostlms.ErrNotFound)
}

// activeSupplier returns the active supplier request, or nil. Deactivated
// supplier requests are invisible to transitions.
func activeSupplier(c *RequestWorkflowContext) *models.SupplierRequest {
	if c.SupplierRequest == nil || !c.SupplierRequest.IsActive {
		return nil
	}
	return c.SupplierRequest
}
