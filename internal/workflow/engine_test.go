package workflow

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/openlibraryenvironment/dcb-service-sub000/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestEngine(
	requests *memRequests,
	suppliers *memSuppliers,
	identities *memIdentities,
	agencies *memAgencies,
	audit *memAudit,
	transitions []Transition,
	policy PollPolicy,
) *Service {
	logger := zap.NewNop()
	contexts := NewContextService(requests, suppliers, identities, agencies, logger)
	if policy == nil {
		policy = NewStatusPollPolicy(nil)
	}
	return NewService(contexts, requests, audit, transitions, policy, 25, logger)
}

func newSubmittedRequest() *models.PatronRequest {
	return &models.PatronRequest{
		ID:                 uuid.New(),
		PatronHostLmsCode:  "borrower-sys",
		PatronLocalID:      "patron-1",
		BibClusterID:       "cluster-1",
		PickupLocationCode: "main-desk",
		ActiveWorkflow:     models.WorkflowStandard,
		Status:             models.StatusSubmittedToDCB,
	}
}

func TestProgressAllAppliesDescendingNameOrder(t *testing.T) {
	pr := newSubmittedRequest()
	requests := newMemRequests(pr)
	audit := &memAudit{}

	alpha := &stubTransition{
		name:      "Alpha",
		sources:   []models.Status{models.StatusSubmittedToDCB},
		target:    models.StatusPatronVerified,
		hasTarget: true,
		automatic: true,
	}
	beta := &stubTransition{
		name:      "Beta",
		sources:   []models.Status{models.StatusSubmittedToDCB},
		target:    models.StatusPatronVerified,
		hasTarget: true,
		automatic: true,
	}

	engine := newTestEngine(requests, &memSuppliers{}, newMemIdentities(), newMemAgencies(), audit,
		[]Transition{alpha, beta}, nil)

	result, err := engine.ProgressAll(context.Background(), pr)
	require.NoError(t, err)

	assert.Equal(t, models.StatusPatronVerified, result.Status)
	assert.Equal(t, 1, beta.attempts, "later name must win the tie")
	assert.Equal(t, 0, alpha.attempts)
	assert.Equal(t, []string{"Beta"}, audit.messages())
}

func TestProgressAllChainsUntilQuiescent(t *testing.T) {
	pr := newSubmittedRequest()
	requests := newMemRequests(pr)
	audit := &memAudit{}

	first := &stubTransition{
		name:      "StepOne",
		sources:   []models.Status{models.StatusSubmittedToDCB},
		target:    models.StatusPatronVerified,
		hasTarget: true,
		automatic: true,
	}
	second := &stubTransition{
		name:      "StepTwo",
		sources:   []models.Status{models.StatusPatronVerified},
		target:    models.StatusResolved,
		hasTarget: true,
		automatic: true,
	}

	policy := NewStatusPollPolicy(map[models.Status]time.Duration{
		models.StatusResolved: 5 * time.Minute,
	})
	engine := newTestEngine(requests, &memSuppliers{}, newMemIdentities(), newMemAgencies(), audit,
		[]Transition{first, second}, policy)

	result, err := engine.ProgressAll(context.Background(), pr)
	require.NoError(t, err)

	assert.Equal(t, models.StatusResolved, result.Status)
	assert.Equal(t, []string{"StepOne", "StepTwo"}, audit.messages())
	assert.Equal(t, 1, requests.pollCalls, "poll scheduled exactly once per chain")
	require.NotNil(t, result.NextScheduledPoll)
}

func TestProgressAllQuiescentWithoutApplicableTransitions(t *testing.T) {
	pr := newSubmittedRequest()
	pr.Status = models.StatusLoaned
	requests := newMemRequests(pr)
	audit := &memAudit{}

	engine := newTestEngine(requests, &memSuppliers{}, newMemIdentities(), newMemAgencies(), audit, nil, nil)

	result, err := engine.ProgressAll(context.Background(), pr)
	require.NoError(t, err)

	assert.Equal(t, models.StatusLoaned, result.Status)
	assert.Empty(t, audit.messages())
	assert.Equal(t, 1, requests.pollCalls)
	assert.Nil(t, result.NextScheduledPoll, "no policy entry means no next poll")

	// A repeat run over the quiescent request must not produce audit noise,
	// only a fresh poll reschedule.
	result, err = engine.ProgressAll(context.Background(), result)
	require.NoError(t, err)

	assert.Equal(t, models.StatusLoaned, result.Status)
	assert.Empty(t, audit.messages())
	assert.Equal(t, 2, requests.pollCalls)
}

func TestProgressAllErrorPath(t *testing.T) {
	pr := newSubmittedRequest()
	requests := newMemRequests(pr)
	audit := &memAudit{}

	cause := errors.New("remote system exploded")
	failing := &stubTransition{
		name:      "Explode",
		sources:   []models.Status{models.StatusSubmittedToDCB},
		automatic: true,
		attempt: func(context.Context, *RequestWorkflowContext) error {
			return cause
		},
	}

	engine := newTestEngine(requests, &memSuppliers{}, newMemIdentities(), newMemAgencies(), audit,
		[]Transition{failing}, nil)

	_, err := engine.ProgressAll(context.Background(), pr)
	require.Error(t, err)
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "Explode")

	stored, _ := requests.GetByID(context.Background(), pr.ID)
	assert.Equal(t, models.StatusError, stored.Status)
	assert.Equal(t, cause.Error(), stored.ErrorMessage)
	assert.Equal(t, 1, requests.errorCalls, "only the narrow error write may touch the store")

	require.Len(t, audit.entries, 1)
	entry := audit.entries[0]
	assert.Equal(t, "Explode : Failed", entry.Message)
	assert.Equal(t, models.StatusError, entry.ToStatus)
	assert.Equal(t, cause.Error(), entry.AuditData["error"])
	assert.Equal(t, string(models.StatusSubmittedToDCB), entry.AuditData["originating_status"])

	// The errored request is terminal for automatic progression.
	result, err := engine.ProgressAll(context.Background(), stored)
	require.NoError(t, err)
	assert.Equal(t, models.StatusError, result.Status)
	assert.Equal(t, 1, failing.attempts)
}

func TestProgressAllErrorHandlerFailureDoesNotMaskCause(t *testing.T) {
	pr := newSubmittedRequest()
	requests := newMemRequests(pr)
	audit := &memAudit{err: errors.New("audit store down")}

	cause := errors.New("placement refused")
	failing := &stubTransition{
		name:      "Refuse",
		sources:   []models.Status{models.StatusSubmittedToDCB},
		automatic: true,
		attempt: func(context.Context, *RequestWorkflowContext) error {
			return cause
		},
	}

	engine := newTestEngine(requests, &memSuppliers{}, newMemIdentities(), newMemAgencies(), audit,
		[]Transition{failing}, nil)

	_, err := engine.ProgressAll(context.Background(), pr)
	require.Error(t, err)
	assert.ErrorIs(t, err, cause, "audit failure must not replace the original error")
}

func TestProgressUsingEnforcesGuard(t *testing.T) {
	pr := newSubmittedRequest()
	requests := newMemRequests(pr)
	audit := &memAudit{}

	manual := &stubTransition{
		name:      "ManualOnly",
		sources:   []models.Status{models.StatusReadyForPickup},
		automatic: false,
	}
	engine := newTestEngine(requests, &memSuppliers{}, newMemIdentities(), newMemAgencies(), audit,
		[]Transition{manual}, nil)

	wctx, err := engine.AssembleContext(context.Background(), pr.ID)
	require.NoError(t, err)

	_, err = engine.ProgressUsing(context.Background(), wctx, manual)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not applicable")
	assert.Equal(t, 0, manual.attempts)
}

func TestProgressUsingAppliesManualTransition(t *testing.T) {
	pr := newSubmittedRequest()
	requests := newMemRequests(pr)
	audit := &memAudit{}

	manual := &stubTransition{
		name:      "OperatorCancel",
		sources:   []models.Status{models.StatusSubmittedToDCB},
		target:    models.StatusCancelled,
		hasTarget: true,
		automatic: false,
	}
	engine := newTestEngine(requests, &memSuppliers{}, newMemIdentities(), newMemAgencies(), audit,
		[]Transition{manual}, nil)

	wctx, err := engine.AssembleContext(context.Background(), pr.ID)
	require.NoError(t, err)

	result, err := engine.ProgressUsing(context.Background(), wctx, manual)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCancelled, result.PatronRequest.Status)
	assert.Equal(t, []string{"OperatorCancel"}, audit.messages())

	stored, _ := requests.GetByID(context.Background(), pr.ID)
	assert.Equal(t, models.StatusCancelled, stored.Status)
}

func TestProgressAllAbortsRunawayChain(t *testing.T) {
	pr := newSubmittedRequest()
	requests := newMemRequests(pr)
	audit := &memAudit{}

	spinning := &stubTransition{
		name:      "Spin",
		sources:   []models.Status{models.StatusSubmittedToDCB},
		automatic: true,
		attempt: func(context.Context, *RequestWorkflowContext) error {
			// Guard never clears.
			return nil
		},
	}

	logger := zap.NewNop()
	contexts := NewContextService(requests, &memSuppliers{}, newMemIdentities(), newMemAgencies(), logger)
	engine := NewService(contexts, requests, audit, []Transition{spinning},
		NewStatusPollPolicy(nil), 5, logger)

	_, err := engine.ProgressAll(context.Background(), pr)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exceeded")
	assert.Equal(t, 5, spinning.attempts)
}

// labelled wraps a stub with an audit label override.
type labelled struct {
	stubTransition
	label string
}

func (l *labelled) AuditMessage(*RequestWorkflowContext) string { return l.label }

func TestAuditMessageOverride(t *testing.T) {
	pr := newSubmittedRequest()
	requests := newMemRequests(pr)
	audit := &memAudit{}

	tr := &labelled{
		stubTransition: stubTransition{
			name:      "RenewalDetected",
			sources:   []models.Status{models.StatusSubmittedToDCB},
			target:    models.StatusPatronVerified,
			hasTarget: true,
			automatic: true,
		},
		label: "Renewal : Placed",
	}

	engine := newTestEngine(requests, &memSuppliers{}, newMemIdentities(), newMemAgencies(), audit,
		[]Transition{tr}, nil)

	_, err := engine.ProgressAll(context.Background(), pr)
	require.NoError(t, err)
	assert.Equal(t, []string{"Renewal : Placed"}, audit.messages())
}

func TestTransitionByName(t *testing.T) {
	engine := newTestEngine(newMemRequests(), &memSuppliers{}, newMemIdentities(), newMemAgencies(), &memAudit{},
		[]Transition{&stubTransition{name: "Known"}}, nil)

	tr, found := engine.TransitionByName("Known")
	require.True(t, found)
	assert.Equal(t, "Known", tr.Name())

	_, found = engine.TransitionByName("Unknown")
	assert.False(t, found)
}
