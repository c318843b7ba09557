package models

import (
	"time"

	"github.com/google/uuid"
)

// AuditEntry is one append-only row in a patron request's audit trail. The
// workflow engine writes one per transition applied and one per failure;
// nothing in the core reads them back.
type AuditEntry struct {
	ID              uuid.UUID      `json:"id"`
	PatronRequestID uuid.UUID      `json:"patron_request_id"`
	FromStatus      Status         `json:"from_status,omitempty"`
	ToStatus        Status         `json:"to_status,omitempty"`
	Message         string         `json:"message"`
	AuditData       map[string]any `json:"audit_data,omitempty"`
	CreatedAt       time.Time      `json:"created_at"`
}
