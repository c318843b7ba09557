package workflow

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/openlibraryenvironment/dcb-service-sub000/internal/hostlms"
	"github.com/openlibraryenvironment/dcb-service-sub000/internal/models"
	"github.com/openlibraryenvironment/dcb-service-sub000/internal/resolution"
)

// Consumer-side contracts for the engine's collaborators. The sqlite
// repositories satisfy these in production; tests substitute fakes.

// PatronRequestStore persists patron requests.
type PatronRequestStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.PatronRequest, error)
	Save(ctx context.Context, pr *models.PatronRequest) error
	Update(ctx context.Context, pr *models.PatronRequest) error
	UpdateStatusWithError(ctx context.Context, id uuid.UUID, message string) error
	UpdateNextScheduledPoll(ctx context.Context, id uuid.UUID, next *time.Time) error
}

// SupplierRequestStore persists supplier requests.
type SupplierRequestStore interface {
	Save(ctx context.Context, sr *models.SupplierRequest) error
	Update(ctx context.Context, sr *models.SupplierRequest) error
	GetActiveByPatronRequest(ctx context.Context, patronRequestID uuid.UUID) (*models.SupplierRequest, error)
	ListByPatronRequest(ctx context.Context, patronRequestID uuid.UUID) ([]*models.SupplierRequest, error)
}

// IdentityStore persists patron identities.
type IdentityStore interface {
	Upsert(ctx context.Context, identity *models.PatronIdentity) error
	GetByRole(ctx context.Context, patronRequestID uuid.UUID, role string) (*models.PatronIdentity, error)
}

// AgencyDirectory resolves agencies and location mappings.
type AgencyDirectory interface {
	GetByCode(ctx context.Context, code string) (*models.Agency, error)
	ResolveLocation(ctx context.Context, locationCode string) (*models.Agency, error)
	IncrementLoanCount(ctx context.Context, code string) error
	IncrementBorrowCount(ctx context.Context, code string) error
}

// AuditLog is the append-only audit sink; the engine never reads it back.
type AuditLog interface {
	Create(ctx context.Context, entry *models.AuditEntry) error
}

// ClientRegistry hands out host system clients by code.
type ClientRegistry interface {
	ClientFor(code string) (hostlms.Client, error)
}

// SupplierResolver runs the resolution pipeline.
type SupplierResolver interface {
	Resolve(ctx context.Context, request *models.PatronRequest, excludedItems map[string]bool) (*resolution.Outcome, error)
}

// ContextAssembler builds a fresh workflow context for a request.
type ContextAssembler interface {
	Assemble(ctx context.Context, patronRequestID uuid.UUID) (*RequestWorkflowContext, error)
}
