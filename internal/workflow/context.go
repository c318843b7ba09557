package workflow

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/openlibraryenvironment/dcb-service-sub000/internal/models"
	"go.uber.org/zap"
)

// ErrRequestNotFound is returned by context assembly for an unknown request id.
var ErrRequestNotFound = errors.New("patron request not found")

// RequestWorkflowContext is the per-invocation aggregate the engine and the
// transitions work against. It is rebuilt from persisted state on every
// engine pass and discarded afterwards; nothing may cache one across
// invocations.
type RequestWorkflowContext struct {
	PatronRequest   *models.PatronRequest
	SupplierRequest *models.SupplierRequest // active supplier request, nil when none

	BorrowerIdentity *models.PatronIdentity
	SupplierIdentity *models.PatronIdentity
	PickupIdentity   *models.PatronIdentity

	PatronAgency   *models.Agency
	SupplierAgency *models.Agency
	PickupAgency   *models.Agency

	// EntryStatus is the status observed when the context was assembled.
	EntryStatus models.Status

	messages []string
}

// AddMessage records a human-readable workflow message; messages are carried
// into the audit entry written for the transition that produced them.
func (c *RequestWorkflowContext) AddMessage(msg string) {
	c.messages = append(c.messages, msg)
}

// Messages returns the accumulated workflow messages.
func (c *RequestWorkflowContext) Messages() []string {
	return c.messages
}

// ContextService assembles workflow contexts from the repositories.
type ContextService struct {
	requests         PatronRequestStore
	supplierRequests SupplierRequestStore
	identities       IdentityStore
	agencies         AgencyDirectory
	logger           *zap.Logger
}

// NewContextService creates a context assembler
func NewContextService(
	requests PatronRequestStore,
	supplierRequests SupplierRequestStore,
	identities IdentityStore,
	agencies AgencyDirectory,
	logger *zap.Logger,
) *ContextService {
	return &ContextService{
		requests:         requests,
		supplierRequests: supplierRequests,
		identities:       identities,
		agencies:         agencies,
		logger:           logger,
	}
}

// Assemble builds a fully-populated context for a request id. Missing
// optional pieces (no active supplier request yet, no pickup participation)
// leave nil fields; a missing request is ErrRequestNotFound.
func (s *ContextService) Assemble(ctx context.Context, patronRequestID uuid.UUID) (*RequestWorkflowContext, error) {
	pr, err := s.requests.GetByID(ctx, patronRequestID)
	if err != nil {
		return nil, fmt.Errorf("failed to load patron request: %w", err)
	}
	if pr == nil {
		return nil, fmt.Errorf("%w: %s", ErrRequestNotFound, patronRequestID)
	}

	wctx := &RequestWorkflowContext{
		PatronRequest: pr,
		EntryStatus:   pr.Status,
	}

	wctx.SupplierRequest, err = s.supplierRequests.GetActiveByPatronRequest(ctx, pr.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load active supplier request: %w", err)
	}

	wctx.BorrowerIdentity, err = s.identities.GetByRole(ctx, pr.ID, models.IdentityRoleBorrower)
	if err != nil {
		return nil, fmt.Errorf("failed to load borrower identity: %w", err)
	}
	wctx.SupplierIdentity, err = s.identities.GetByRole(ctx, pr.ID, models.IdentityRoleSupplier)
	if err != nil {
		return nil, fmt.Errorf("failed to load supplier identity: %w", err)
	}

	if wctx.BorrowerIdentity != nil && wctx.BorrowerIdentity.HomeLibraryCode != "" {
		wctx.PatronAgency, err = s.agencies.ResolveLocation(ctx, wctx.BorrowerIdentity.HomeLibraryCode)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve patron agency: %w", err)
		}
	}
	if wctx.SupplierRequest != nil {
		wctx.SupplierAgency, err = s.agencies.GetByCode(ctx, wctx.SupplierRequest.AgencyCode)
		if err != nil {
			return nil, fmt.Errorf("failed to load supplier agency: %w", err)
		}
	}

	// Pickup participation only exists for the pickup-anywhere shape.
	if pr.ActiveWorkflow == models.WorkflowPickupAnywhere {
		wctx.PickupIdentity, err = s.identities.GetByRole(ctx, pr.ID, models.IdentityRolePickup)
		if err != nil {
			return nil, fmt.Errorf("failed to load pickup identity: %w", err)
		}
		if pr.PickupLocationCode != "" {
			wctx.PickupAgency, err = s.agencies.ResolveLocation(ctx, pr.PickupLocationCode)
			if err != nil {
				return nil, fmt.Errorf("failed to resolve pickup agency: %w", err)
			}
		}
	}

	return wctx, nil
}
