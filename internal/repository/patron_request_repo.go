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

// PatronRequestRepository handles patron request database operations
type PatronRequestRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewPatronRequestRepository creates a new patron request repository
func NewPatronRequestRepository(db *sql.DB, logger *zap.Logger) *PatronRequestRepository {
	return &PatronRequestRepository{
		db:     db,
		logger: logger,
	}
}

const patronRequestColumns = `
	id, patron_host_lms_code, patron_local_id, bib_cluster_id,
	pickup_location_code, pickup_host_lms_code, status, active_workflow,
	local_request_id, local_request_status, local_item_id, local_item_status,
	local_bib_id, pickup_request_id, pickup_item_id, pickup_bib_id,
	renewal_count, local_renewal_count, resolution_count,
	out_of_sequence, expedited_checkout, error_message, next_scheduled_poll,
	created_at, updated_at
`

// Save inserts a new patron request
func (r *PatronRequestRepository) Save(ctx context.Context, pr *models.PatronRequest) error {
	if pr.ID == uuid.Nil {
		pr.ID = uuid.New()
	}
	now := time.Now().UTC()
	pr.CreatedAt = now
	pr.UpdatedAt = now

	query := `
		INSERT INTO patron_requests (` + patronRequestColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := r.db.ExecContext(ctx, query,
		pr.ID.String(),
		pr.PatronHostLmsCode,
		pr.PatronLocalID,
		pr.BibClusterID,
		pr.PickupLocationCode,
		pr.PickupHostLmsCode,
		string(pr.Status),
		pr.ActiveWorkflow,
		pr.LocalRequestID,
		pr.LocalRequestStatus,
		pr.LocalItemID,
		pr.LocalItemStatus,
		pr.LocalBibID,
		pr.PickupRequestID,
		pr.PickupItemID,
		pr.PickupBibID,
		pr.RenewalCount,
		pr.LocalRenewalCount,
		pr.ResolutionCount,
		pr.OutOfSequence,
		pr.ExpeditedCheckout,
		pr.ErrorMessage,
		pr.NextScheduledPoll,
		pr.CreatedAt,
		pr.UpdatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to save patron request", zap.String("id", pr.ID.String()), zap.Error(err))
		return fmt.Errorf("failed to save patron request: %w", err)
	}
	return nil
}

// Update writes the whole patron request back by id
func (r *PatronRequestRepository) Update(ctx context.Context, pr *models.PatronRequest) error {
	pr.UpdatedAt = time.Now().UTC()

	query := `
		UPDATE patron_requests SET
			patron_host_lms_code = ?, patron_local_id = ?, bib_cluster_id = ?,
			pickup_location_code = ?, pickup_host_lms_code = ?, status = ?,
			active_workflow = ?, local_request_id = ?, local_request_status = ?,
			local_item_id = ?, local_item_status = ?, local_bib_id = ?,
			pickup_request_id = ?, pickup_item_id = ?, pickup_bib_id = ?,
			renewal_count = ?, local_renewal_count = ?, resolution_count = ?,
			out_of_sequence = ?, expedited_checkout = ?, error_message = ?,
			next_scheduled_poll = ?, updated_at = ?
		WHERE id = ?
	`
	_, err := r.db.ExecContext(ctx, query,
		pr.PatronHostLmsCode,
		pr.PatronLocalID,
		pr.BibClusterID,
		pr.PickupLocationCode,
		pr.PickupHostLmsCode,
		string(pr.Status),
		pr.ActiveWorkflow,
		pr.LocalRequestID,
		pr.LocalRequestStatus,
		pr.LocalItemID,
		pr.LocalItemStatus,
		pr.LocalBibID,
		pr.PickupRequestID,
		pr.PickupItemID,
		pr.PickupBibID,
		pr.RenewalCount,
		pr.LocalRenewalCount,
		pr.ResolutionCount,
		pr.OutOfSequence,
		pr.ExpeditedCheckout,
		pr.ErrorMessage,
		pr.NextScheduledPoll,
		pr.UpdatedAt,
		pr.ID.String(),
	)
	if err != nil {
		r.logger.Error("Failed to update patron request", zap.String("id", pr.ID.String()), zap.Error(err))
		return fmt.Errorf("failed to update patron request: %w", err)
	}
	return nil
}

// GetByID retrieves a patron request by id, returning nil when absent
func (r *PatronRequestRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.PatronRequest, error) {
	query := `SELECT ` + patronRequestColumns + ` FROM patron_requests WHERE id = ?`
	row := r.db.QueryRowContext(ctx, query, id.String())
	pr, err := scanPatronRequest(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get patron request", zap.String("id", id.String()), zap.Error(err))
		return nil, fmt.Errorf("failed to get patron request: %w", err)
	}
	return pr, nil
}

// UpdateStatusWithError writes only the status and error message. Used by
// the workflow error path so a half-mutated in-memory request never reaches
// the database.
func (r *PatronRequestRepository) UpdateStatusWithError(ctx context.Context, id uuid.UUID, message string) error {
	query := `UPDATE patron_requests SET status = ?, error_message = ?, updated_at = ? WHERE id = ?`
	_, err := r.db.ExecContext(ctx, query, string(models.StatusError), message, time.Now().UTC(), id.String())
	if err != nil {
		r.logger.Error("Failed to update status with error", zap.String("id", id.String()), zap.Error(err))
		return fmt.Errorf("failed to update status with error: %w", err)
	}
	return nil
}

// UpdateNextScheduledPoll writes only the next poll timestamp
func (r *PatronRequestRepository) UpdateNextScheduledPoll(ctx context.Context, id uuid.UUID, next *time.Time) error {
	query := `UPDATE patron_requests SET next_scheduled_poll = ?, updated_at = ? WHERE id = ?`
	_, err := r.db.ExecContext(ctx, query, next, time.Now().UTC(), id.String())
	if err != nil {
		r.logger.Error("Failed to update next scheduled poll", zap.String("id", id.String()), zap.Error(err))
		return fmt.Errorf("failed to update next scheduled poll: %w", err)
	}
	return nil
}

// ListDueForPoll returns requests whose next scheduled poll has elapsed,
// oldest first, excluding terminal statuses
func (r *PatronRequestRepository) ListDueForPoll(ctx context.Context, asOf time.Time, limit int) ([]*models.PatronRequest, error) {
	query := `
		SELECT ` + patronRequestColumns + `
		FROM patron_requests
		WHERE next_scheduled_poll IS NOT NULL
			AND next_scheduled_poll <= ?
			AND status NOT IN ('FINALISED', 'ERROR', 'NO_ITEMS_AVAILABLE_AT_ANY_AGENCY', 'HANDED_OFF_AS_LOCAL')
		ORDER BY next_scheduled_poll ASC
		LIMIT ?
	`
	rows, err := r.db.QueryContext(ctx, query, asOf, limit)
	if err != nil {
		r.logger.Error("Failed to list requests due for poll", zap.Error(err))
		return nil, fmt.Errorf("failed to list requests due for poll: %w", err)
	}
	defer rows.Close()

	var out []*models.PatronRequest
	for rows.Next() {
		pr, err := scanPatronRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan patron request: %w", err)
		}
		out = append(out, pr)
	}
	return out, rows.Err()
}

// List retrieves patron requests with pagination, newest first
func (r *PatronRequestRepository) List(ctx context.Context, limit, offset int) ([]*models.PatronRequest, error) {
	query := `
		SELECT ` + patronRequestColumns + `
		FROM patron_requests
		ORDER BY created_at DESC
		LIMIT ? OFFSET ?
	`
	rows, err := r.db.QueryContext(ctx, query, limit, offset)
	if err != nil {
		r.logger.Error("Failed to list patron requests", zap.Error(err))
		return nil, fmt.Errorf("failed to list patron requests: %w", err)
	}
	defer rows.Close()

	var out []*models.PatronRequest
	for rows.Next() {
		pr, err := scanPatronRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan patron request: %w", err)
		}
		out = append(out, pr)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPatronRequest(row rowScanner) (*models.PatronRequest, error) {
	var pr models.PatronRequest
	var id, status string
	var nextPoll sql.NullTime

	err := row.Scan(
		&id,
		&pr.PatronHostLmsCode,
		&pr.PatronLocalID,
		&pr.BibClusterID,
		&pr.PickupLocationCode,
		&pr.PickupHostLmsCode,
		&status,
		&pr.ActiveWorkflow,
		&pr.LocalRequestID,
		&pr.LocalRequestStatus,
		&pr.LocalItemID,
		&pr.LocalItemStatus,
		&pr.LocalBibID,
		&pr.PickupRequestID,
		&pr.PickupItemID,
		&pr.PickupBibID,
		&pr.RenewalCount,
		&pr.LocalRenewalCount,
		&pr.ResolutionCount,
		&pr.OutOfSequence,
		&pr.ExpeditedCheckout,
		&pr.ErrorMessage,
		&nextPoll,
		&pr.CreatedAt,
		&pr.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	parsed, err := uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("invalid patron request id %q: %w", id, err)
	}
	pr.ID = parsed
	pr.Status = models.Status(status)
	if nextPoll.Valid {
		t := nextPoll.Time
		pr.NextScheduledPoll = &t
	}
	return &pr, nil
}
