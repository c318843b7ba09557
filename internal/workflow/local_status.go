package workflow

// Canonical local-status vocabulary. Host system adapters normalise their
// vendor-specific state strings to these values before the tracking poller
// writes them into the request/supplier-request mirrors; the transition
// guards match against them.
const (
	LocalHoldConfirmed = "CONFIRMED"
	LocalHoldCancelled = "CANCELLED"

	LocalItemTransit     = "TRANSIT"
	LocalItemReceived    = "RECEIVED"
	LocalItemOnHoldShelf = "ON_HOLD_SHELF"
	LocalItemLoaned      = "LOANED"
	LocalItemAvailable   = "AVAILABLE"
)
