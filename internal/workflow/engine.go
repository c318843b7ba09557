package workflow

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/openlibraryenvironment/dcb-service-sub000/internal/models"
	"go.uber.org/zap"
)

// Service is the patron request workflow engine. It owns the transition
// catalogue, discovers which transitions apply to a context, applies the
// first match and recurses until the request is quiescent.
//
// There is no engine-level mutual exclusion across concurrently triggered
// invocations for the same request id: a tracking-driven trigger arriving
// while an operator trigger is in flight is a known race window, and
// last-writer-wins applies to the persisted record. Within one ProgressAll
// chain, steps for the same request run strictly sequentially against
// freshly reloaded state.
type Service struct {
	contexts    ContextAssembler
	requests    PatronRequestStore
	audit       AuditLog
	transitions []Transition
	pollPolicy  PollPolicy
	maxChain    int
	clock       func() time.Time
	logger      *zap.Logger
}

// NewService creates a workflow engine over the given transition catalogue.
// maxChain bounds one ProgressAll chain as a guard against a transition
// whose guard never clears.
func NewService(
	contexts ContextAssembler,
	requests PatronRequestStore,
	audit AuditLog,
	transitions []Transition,
	pollPolicy PollPolicy,
	maxChain int,
	logger *zap.Logger,
) *Service {
	if maxChain <= 0 {
		maxChain = 25
	}
	return &Service{
		contexts:    contexts,
		requests:    requests,
		audit:       audit,
		transitions: transitions,
		pollPolicy:  pollPolicy,
		maxChain:    maxChain,
		clock:       time.Now,
		logger:      logger,
	}
}

// Transitions returns the registered catalogue, for inspection surfaces.
func (s *Service) Transitions() []Transition {
	return s.transitions
}

// AssembleContext builds a fresh workflow context for a request, for
// callers driving ProgressUsing.
func (s *Service) AssembleContext(ctx context.Context, id uuid.UUID) (*RequestWorkflowContext, error) {
	return s.contexts.Assemble(ctx, id)
}

// TransitionByName finds a registered transition by its stable name.
func (s *Service) TransitionByName(name string) (Transition, bool) {
	for _, t := range s.transitions {
		if t.Name() == name {
			return t, true
		}
	}
	return nil, false
}

// Initiate is the fire-and-forget entry point for a newly created request.
// The chain runs detached from the caller; completion and failure are
// logged, not returned.
func (s *Service) Initiate(pr *models.PatronRequest) {
	id := pr.ID
	go func() {
		result, err := s.ProgressAll(context.Background(), pr)
		if err != nil {
			s.logger.Error("Initial workflow progression failed",
				zap.String("patron_request_id", id.String()),
				zap.Error(err))
			return
		}
		s.logger.Info("Initial workflow progression completed",
			zap.String("patron_request_id", id.String()),
			zap.String("status", string(result.Status)))
	}()
}

// ProgressAll drives the request through every automatically applicable
// transition: assemble a fresh context, apply the first applicable
// transition (descending lexical name order), persist, audit, and repeat
// against the freshly reloaded request. The quiescent exit schedules the
// next tracking poll and returns the request as last persisted.
func (s *Service) ProgressAll(ctx context.Context, pr *models.PatronRequest) (*models.PatronRequest, error) {
	current := pr

	for step := 0; step < s.maxChain; step++ {
		wctx, err := s.contexts.Assemble(ctx, current.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to assemble workflow context: %w", err)
		}
		current = wctx.PatronRequest

		applicable := s.applicableAutomatic(wctx)
		if len(applicable) == 0 {
			if err := s.scheduleNextPoll(ctx, current); err != nil {
				return nil, err
			}
			return current, nil
		}

		next := applicable[0]
		s.logger.Debug("Applying transition",
			zap.String("patron_request_id", current.ID.String()),
			zap.String("transition", next.Name()),
			zap.String("status", string(current.Status)),
			zap.Int("applicable", len(applicable)))

		if err := s.applyTransition(ctx, wctx, next); err != nil {
			return nil, err
		}
	}

	return nil, fmt.Errorf("request %s exceeded %d transitions in one chain; aborting",
		current.ID, s.maxChain)
}

// ProgressUsing applies one explicitly chosen transition, bypassing
// automatic selection. Manual transitions come through here; the same
// audit/error wrapper applies. The applicability guard is still enforced.
func (s *Service) ProgressUsing(ctx context.Context, wctx *RequestWorkflowContext, transition Transition) (*RequestWorkflowContext, error) {
	if !transition.IsApplicableFor(wctx) {
		return nil, fmt.Errorf("transition %s is not applicable to request %s in status %s",
			transition.Name(), wctx.PatronRequest.ID, wctx.PatronRequest.Status)
	}
	if err := s.applyTransition(ctx, wctx, transition); err != nil {
		return nil, err
	}
	return wctx, nil
}

// applicableAutomatic returns the automatic transitions applicable to the
// context, ordered by descending lexical name. The ordering is load-bearing:
// two transitions can satisfy their guards simultaneously and the winner
// must be deterministic.
func (s *Service) applicableAutomatic(wctx *RequestWorkflowContext) []Transition {
	var out []Transition
	for _, t := range s.transitions {
		if !t.AttemptAutomatically() {
			continue
		}
		if t.IsApplicableFor(wctx) {
			out = append(out, t)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return strings.Compare(out[i].Name(), out[j].Name()) > 0
	})
	return out
}

// applyTransition runs one attempt through the error/audit wrapper. On
// success the mutated request is persisted wholesale and a transition audit
// entry written. On failure the request is forced to ERROR, only the
// status/error-message fields are persisted, an error audit entry is
// written, and the original error is returned. Failures inside the error
// handler itself are logged and swallowed so they never mask the original.
func (s *Service) applyTransition(ctx context.Context, wctx *RequestWorkflowContext, transition Transition) error {
	pr := wctx.PatronRequest
	fromStatus := pr.Status

	if err := transition.Attempt(ctx, wctx); err != nil {
		s.recordError(ctx, wctx, transition, fromStatus, err)
		return fmt.Errorf("transition %s failed for request %s: %w", transition.Name(), pr.ID, err)
	}

	if err := s.requests.Update(ctx, pr); err != nil {
		s.recordError(ctx, wctx, transition, fromStatus, err)
		return fmt.Errorf("failed to persist request %s after %s: %w", pr.ID, transition.Name(), err)
	}

	entry := &models.AuditEntry{
		PatronRequestID: pr.ID,
		FromStatus:      fromStatus,
		ToStatus:        pr.Status,
		Message:         auditMessage(wctx, transition),
		AuditData:       auditData(wctx, transition),
	}
	if err := s.audit.Create(ctx, entry); err != nil {
		// Audit is append-only bookkeeping; a failed write must not undo an
		// applied transition.
		s.logger.Error("Failed to write transition audit entry",
			zap.String("patron_request_id", pr.ID.String()),
			zap.String("transition", transition.Name()),
			zap.Error(err))
	}

	s.logger.Info("Transition applied",
		zap.String("patron_request_id", pr.ID.String()),
		zap.String("transition", transition.Name()),
		zap.String("from", string(fromStatus)),
		zap.String("to", string(pr.Status)))
	return nil
}

// recordError forces the ERROR status and records the failure. Never
// returns an error and never panics: the original failure must surface
// unmasked.
func (s *Service) recordError(ctx context.Context, wctx *RequestWorkflowContext, transition Transition, fromStatus models.Status, cause error) {
	pr := wctx.PatronRequest
	pr.Status = models.StatusError
	pr.ErrorMessage = cause.Error()

	// The in-memory request may be half-mutated; persist only the status
	// and error message.
	if err := s.requests.UpdateStatusWithError(ctx, pr.ID, cause.Error()); err != nil {
		s.logger.Error("Failed to persist error state",
			zap.String("patron_request_id", pr.ID.String()),
			zap.Error(err))
	}

	data := auditData(wctx, transition)
	data["error"] = cause.Error()
	data["originating_status"] = string(fromStatus)
	entry := &models.AuditEntry{
		PatronRequestID: pr.ID,
		FromStatus:      fromStatus,
		ToStatus:        models.StatusError,
		Message:         fmt.Sprintf("%s : Failed", transition.Name()),
		AuditData:       data,
	}
	if err := s.audit.Create(ctx, entry); err != nil {
		s.logger.Error("Failed to write error audit entry",
			zap.String("patron_request_id", pr.ID.String()),
			zap.Error(err))
	}

	s.logger.Error("Transition failed",
		zap.String("patron_request_id", pr.ID.String()),
		zap.String("transition", transition.Name()),
		zap.String("originating_status", string(fromStatus)),
		zap.Error(cause))
}

// scheduleNextPoll applies the poll policy once at the quiescent exit.
func (s *Service) scheduleNextPoll(ctx context.Context, pr *models.PatronRequest) error {
	var next *time.Time
	if interval, ok := s.pollPolicy.NextPollAfter(pr.Status); ok {
		t := s.clock().Add(interval)
		next = &t
	}
	if err := s.requests.UpdateNextScheduledPoll(ctx, pr.ID, next); err != nil {
		return fmt.Errorf("failed to schedule next poll for %s: %w", pr.ID, err)
	}
	pr.NextScheduledPoll = next
	return nil
}

// auditMessenger lets a transition override the audit entry label for a
// successful attempt; the default label is the transition name.
type auditMessenger interface {
	AuditMessage(c *RequestWorkflowContext) string
}

func auditMessage(wctx *RequestWorkflowContext, transition Transition) string {
	if m, ok := transition.(auditMessenger); ok {
		return m.AuditMessage(wctx)
	}
	return transition.Name()
}

func auditData(wctx *RequestWorkflowContext, transition Transition) map[string]any {
	data := map[string]any{}
	if target, ok := transition.TargetStatus(); ok {
		data["target_status"] = string(target)
	}
	if msgs := wctx.Messages(); len(msgs) > 0 {
		data["messages"] = msgs
	}
	return data
}
