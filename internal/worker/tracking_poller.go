package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/openlibraryenvironment/dcb-service-sub000/internal/models"
	"github.com/openlibraryenvironment/dcb-service-sub000/internal/repository"
	"github.com/openlibraryenvironment/dcb-service-sub000/internal/workflow"
	"go.uber.org/zap"
)

// TrackingPoller is the tracking trigger: it sweeps requests whose
// next-scheduled-poll timestamp has come due, refreshes their local-system
// mirrors from the participating host systems, and hands each refreshed
// request to the workflow engine. Remote scans and cancellations surface to
// the state machine exclusively through this path.
type TrackingPoller struct {
	requests         *repository.PatronRequestRepository
	supplierRequests *repository.SupplierRequestRepository
	clients          workflow.ClientRegistry
	engine           *workflow.Service
	logger           *zap.Logger

	pollInterval time.Duration
	batchSize    int
	callTimeout  time.Duration

	mu        sync.Mutex
	isRunning bool
	ctx       context.Context
	cancel    context.CancelFunc
}

// TrackingConfig tunes the poller sweep.
type TrackingConfig struct {
	PollInterval time.Duration
	BatchSize    int
	CallTimeout  time.Duration
}

// NewTrackingPoller creates a tracking poller
func NewTrackingPoller(
	requests *repository.PatronRequestRepository,
	supplierRequests *repository.SupplierRequestRepository,
	clients workflow.ClientRegistry,
	engine *workflow.Service,
	cfg TrackingConfig,
	logger *zap.Logger,
) *TrackingPoller {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 30 * time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = 30 * time.Second
	}
	return &TrackingPoller{
		requests:         requests,
		supplierRequests: supplierRequests,
		clients:          clients,
		engine:           engine,
		logger:           logger,
		pollInterval:     cfg.PollInterval,
		batchSize:        cfg.BatchSize,
		callTimeout:      cfg.CallTimeout,
	}
}

// Start starts the polling worker
func (p *TrackingPoller) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.isRunning {
		return fmt.Errorf("tracking poller is already running")
	}
	p.ctx, p.cancel = context.WithCancel(ctx)
	p.isRunning = true

	p.logger.Info("TrackingPoller started",
		zap.Duration("poll_interval", p.pollInterval),
		zap.Int("batch_size", p.batchSize))

	go p.pollLoop()
	return nil
}

// Stop stops the polling worker
func (p *TrackingPoller) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.isRunning {
		return
	}
	p.isRunning = false
	if p.cancel != nil {
		p.cancel()
	}
	p.logger.Info("TrackingPoller stopped")
}

// Name returns the worker name for identification
func (p *TrackingPoller) Name() string {
	return "TrackingPoller"
}

func (p *TrackingPoller) pollLoop() {
	ticker := time.NewTicker(p.pollInterval)
	defer ticker.Stop()

	// Sweep immediately on start
	p.sweep()

	for {
		select {
		case <-p.ctx.Done():
			p.logger.Debug("Poll loop context cancelled")
			return
		case <-ticker.C:
			p.sweep()
		}
	}
}

// sweep processes one batch of due requests. A failure on one request is
// logged and never blocks the rest of the batch.
func (p *TrackingPoller) sweep() {
	due, err := p.requests.ListDueForPoll(p.ctx, time.Now(), p.batchSize)
	if err != nil {
		p.logger.Error("Failed to list requests due for polling", zap.Error(err))
		return
	}
	if len(due) == 0 {
		return
	}

	p.logger.Debug("Polling due requests", zap.Int("count", len(due)))

	for _, pr := range due {
		select {
		case <-p.ctx.Done():
			return
		default:
		}
		if err := p.track(pr); err != nil {
			p.logger.Error("Tracking failed for request",
				zap.String("patron_request_id", pr.ID.String()),
				zap.Error(err))
		}
	}
}

// track refreshes one request's mirrors and runs the engine over the
// result.
func (p *TrackingPoller) track(pr *models.PatronRequest) error {
	ctx, cancel := context.WithTimeout(p.ctx, p.callTimeout)
	defer cancel()

	changed, err := p.refreshMirrors(ctx, pr)
	if err != nil {
		return err
	}
	if changed {
		if err := p.requests.Update(ctx, pr); err != nil {
			return fmt.Errorf("failed to persist refreshed mirrors: %w", err)
		}
	}

	// The engine reloads the request itself; running it even without a
	// mirror change reschedules the poll.
	if _, err := p.engine.ProgressAll(ctx, pr); err != nil {
		return err
	}
	return nil
}

// refreshMirrors pulls the current remote view of the supplier hold, the
// borrower hold and the tracked item into the persisted mirrors. Reporting
// whether anything moved lets the caller skip a no-op update.
func (p *TrackingPoller) refreshMirrors(ctx context.Context, pr *models.PatronRequest) (bool, error) {
	changed := false

	sr, err := p.supplierRequests.GetActiveByPatronRequest(ctx, pr.ID)
	if err != nil {
		return false, fmt.Errorf("failed to load active supplier request: %w", err)
	}
	if sr != nil && sr.LocalID != "" {
		if err := p.refreshSupplierHold(ctx, sr); err != nil {
			p.logger.Warn("Failed to refresh supplier hold",
				zap.String("patron_request_id", pr.ID.String()),
				zap.String("host_lms", sr.HostLmsCode),
				zap.Error(err))
		}
	}

	if pr.LocalRequestID != "" {
		if c, err := p.refreshBorrowerSide(ctx, pr); err != nil {
			p.logger.Warn("Failed to refresh borrower hold",
				zap.String("patron_request_id", pr.ID.String()),
				zap.String("host_lms", pr.PatronHostLmsCode),
				zap.Error(err))
		} else if c {
			changed = true
		}
	}

	// After the return scan the item of record is the supplier's real
	// copy; its return to AVAILABLE completes the request.
	if pr.Status == models.StatusReturnTransit && sr != nil {
		if c, err := p.refreshSupplierItem(ctx, pr, sr); err != nil {
			p.logger.Warn("Failed to refresh supplier item",
				zap.String("patron_request_id", pr.ID.String()),
				zap.String("host_lms", sr.HostLmsCode),
				zap.Error(err))
		} else if c {
			changed = true
		}
	}

	return changed, nil
}

func (p *TrackingPoller) refreshSupplierHold(ctx context.Context, sr *models.SupplierRequest) error {
	client, err := p.clients.ClientFor(sr.HostLmsCode)
	if err != nil {
		return err
	}
	hold, err := client.GetRequest(ctx, sr.LocalID)
	if err != nil {
		return err
	}
	if hold.Status == sr.LocalStatus {
		return nil
	}
	sr.LocalStatus = hold.Status
	if hold.ItemLocalID != "" {
		sr.LocalItemID = hold.ItemLocalID
	}
	if hold.ItemBarcode != "" {
		sr.ItemBarcode = hold.ItemBarcode
	}
	return p.supplierRequests.Update(ctx, sr)
}

func (p *TrackingPoller) refreshBorrowerSide(ctx context.Context, pr *models.PatronRequest) (bool, error) {
	client, err := p.clients.ClientFor(pr.PatronHostLmsCode)
	if err != nil {
		return false, err
	}

	changed := false
	hold, err := client.GetRequest(ctx, pr.LocalRequestID)
	if err != nil {
		return false, err
	}
	if hold.Status != pr.LocalRequestStatus {
		pr.LocalRequestStatus = hold.Status
		changed = true
	}
	if hold.RenewalCount != pr.LocalRenewalCount {
		pr.LocalRenewalCount = hold.RenewalCount
		changed = true
	}

	if pr.LocalItemID != "" {
		item, err := client.GetItem(ctx, pr.LocalItemID)
		if err != nil {
			return changed, err
		}
		if item.Status != pr.LocalItemStatus {
			pr.LocalItemStatus = item.Status
			changed = true
		}
	}
	return changed, nil
}

func (p *TrackingPoller) refreshSupplierItem(ctx context.Context, pr *models.PatronRequest, sr *models.SupplierRequest) (bool, error) {
	client, err := p.clients.ClientFor(sr.HostLmsCode)
	if err != nil {
		return false, err
	}
	item, err := client.GetItem(ctx, sr.LocalItemID)
	if err != nil {
		return false, err
	}
	if item.Status == workflow.LocalItemAvailable && pr.LocalItemStatus != workflow.LocalItemAvailable {
		pr.LocalItemStatus = workflow.LocalItemAvailable
		return true, nil
	}
	return false, nil
}
