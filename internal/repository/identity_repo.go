package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/openlibraryenvironment/dcb-service-sub000/internal/models"
	"go.uber.org/zap"
)

// IdentityRepository handles patron identity database operations
type IdentityRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewIdentityRepository creates a new identity repository
func NewIdentityRepository(db *sql.DB, logger *zap.Logger) *IdentityRepository {
	return &IdentityRepository{
		db:     db,
		logger: logger,
	}
}

// Upsert inserts or replaces the identity for a (request, role) pair. Each
// request holds at most one identity per role.
func (r *IdentityRepository) Upsert(ctx context.Context, identity *models.PatronIdentity) error {
	if identity.ID == uuid.Nil {
		identity.ID = uuid.New()
	}
	identity.CreatedAt = time.Now().UTC()

	query := `
		INSERT INTO patron_identities (
			id, patron_request_id, host_lms_code, role, local_id,
			local_barcode, local_ptype, home_library_code, virtual, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(patron_request_id, role) DO UPDATE SET
			host_lms_code = excluded.host_lms_code,
			local_id = excluded.local_id,
			local_barcode = excluded.local_barcode,
			local_ptype = excluded.local_ptype,
			home_library_code = excluded.home_library_code,
			virtual = excluded.virtual
	`
	_, err := r.db.ExecContext(ctx, query,
		identity.ID.String(),
		identity.PatronRequestID.String(),
		identity.HostLmsCode,
		identity.Role,
		identity.LocalID,
		identity.LocalBarcode,
		identity.LocalPtype,
		identity.HomeLibraryCode,
		identity.Virtual,
		identity.CreatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to upsert patron identity",
			zap.String("patron_request_id", identity.PatronRequestID.String()),
			zap.String("role", identity.Role), zap.Error(err))
		return fmt.Errorf("failed to upsert patron identity: %w", err)
	}
	return nil
}

// GetByRole returns the identity a request holds for one role, or nil
func (r *IdentityRepository) GetByRole(ctx context.Context, patronRequestID uuid.UUID, role string) (*models.PatronIdentity, error) {
	query := `
		SELECT id, patron_request_id, host_lms_code, role, local_id,
			local_barcode, local_ptype, home_library_code, virtual, created_at
		FROM patron_identities
		WHERE patron_request_id = ? AND role = ?
	`
	row := r.db.QueryRowContext(ctx, query, patronRequestID.String(), role)

	var identity models.PatronIdentity
	var id, prID string
	err := row.Scan(
		&id,
		&prID,
		&identity.HostLmsCode,
		&identity.Role,
		&identity.LocalID,
		&identity.LocalBarcode,
		&identity.LocalPtype,
		&identity.HomeLibraryCode,
		&identity.Virtual,
		&identity.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get patron identity",
			zap.String("patron_request_id", patronRequestID.String()),
			zap.String("role", role), zap.Error(err))
		return nil, fmt.Errorf("failed to get patron identity: %w", err)
	}

	parsed, err := uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("invalid identity id %q: %w", id, err)
	}
	identity.ID = parsed
	parsedPR, err := uuid.Parse(prID)
	if err != nil {
		return nil, fmt.Errorf("invalid patron request id %q: %w", prID, err)
	}
	identity.PatronRequestID = parsedPR
	return &identity, nil
}
