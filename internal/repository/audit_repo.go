package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/openlibraryenvironment/dcb-service-sub000/internal/models"
	"go.uber.org/zap"
)

// AuditRepository handles the append-only patron request audit trail
type AuditRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewAuditRepository creates a new audit repository
func NewAuditRepository(db *sql.DB, logger *zap.Logger) *AuditRepository {
	return &AuditRepository{
		db:     db,
		logger: logger,
	}
}

// Create appends an audit entry
func (r *AuditRepository) Create(ctx context.Context, entry *models.AuditEntry) error {
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	entry.CreatedAt = time.Now().UTC()

	var auditData []byte
	if entry.AuditData != nil {
		var err error
		auditData, err = json.Marshal(entry.AuditData)
		if err != nil {
			return fmt.Errorf("failed to marshal audit data: %w", err)
		}
	}

	query := `
		INSERT INTO patron_request_audit (
			id, patron_request_id, from_status, to_status, message, audit_data, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?)
	`
	_, err := r.db.ExecContext(ctx, query,
		entry.ID.String(),
		entry.PatronRequestID.String(),
		string(entry.FromStatus),
		string(entry.ToStatus),
		entry.Message,
		string(auditData),
		entry.CreatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to create audit entry",
			zap.String("patron_request_id", entry.PatronRequestID.String()), zap.Error(err))
		return fmt.Errorf("failed to create audit entry: %w", err)
	}
	return nil
}

// ListByPatronRequest returns the audit trail for a request, oldest first
func (r *AuditRepository) ListByPatronRequest(ctx context.Context, patronRequestID uuid.UUID) ([]*models.AuditEntry, error) {
	query := `
		SELECT id, patron_request_id, from_status, to_status, message, audit_data, created_at
		FROM patron_request_audit
		WHERE patron_request_id = ?
		ORDER BY created_at ASC
	`
	rows, err := r.db.QueryContext(ctx, query, patronRequestID.String())
	if err != nil {
		r.logger.Error("Failed to list audit entries",
			zap.String("patron_request_id", patronRequestID.String()), zap.Error(err))
		return nil, fmt.Errorf("failed to list audit entries: %w", err)
	}
	defer rows.Close()

	var out []*models.AuditEntry
	for rows.Next() {
		var entry models.AuditEntry
		var id, prID, fromStatus, toStatus, auditData string

		if err := rows.Scan(&id, &prID, &fromStatus, &toStatus, &entry.Message, &auditData, &entry.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan audit entry: %w", err)
		}

		parsed, err := uuid.Parse(id)
		if err != nil {
			return nil, fmt.Errorf("invalid audit entry id %q: %w", id, err)
		}
		entry.ID = parsed
		parsedPR, err := uuid.Parse(prID)
		if err != nil {
			return nil, fmt.Errorf("invalid patron request id %q: %w", prID, err)
		}
		entry.PatronRequestID = parsedPR
		entry.FromStatus = models.Status(fromStatus)
		entry.ToStatus = models.Status(toStatus)
		if auditData != "" {
			if err := json.Unmarshal([]byte(auditData), &entry.AuditData); err != nil {
				return nil, fmt.Errorf("failed to unmarshal audit data: %w", err)
			}
		}
		out = append(out, &entry)
	}
	return out, rows.Err()
}
