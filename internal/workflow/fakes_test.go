package workflow

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/openlibraryenvironment/dcb-service-sub000/internal/hostlms"
	"github.com/openlibraryenvironment/dcb-service-sub000/internal/models"
	"github.com/openlibraryenvironment/dcb-service-sub000/internal/resolution"
)

// In-memory collaborators shared by the workflow tests. They mirror the
// sqlite repositories closely enough for the engine and the transitions to
// run full chains against them.

type memRequests struct {
	mu         sync.Mutex
	byID       map[uuid.UUID]*models.PatronRequest
	errorCalls int
	pollCalls  int
	updateErr  error
}

func newMemRequests(prs ...*models.PatronRequest) *memRequests {
	m := &memRequests{byID: map[uuid.UUID]*models.PatronRequest{}}
	for _, pr := range prs {
		m.byID[pr.ID] = pr
	}
	return m
}

func (m *memRequests) GetByID(_ context.Context, id uuid.UUID) (*models.PatronRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	pr, ok := m.byID[id]
	if !ok {
		return nil, nil
	}
	cp := *pr
	return &cp, nil
}

func (m *memRequests) Save(_ context.Context, pr *models.PatronRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *pr
	m.byID[pr.ID] = &cp
	return nil
}

func (m *memRequests) Update(_ context.Context, pr *models.PatronRequest) error {
	if m.updateErr != nil {
		return m.updateErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *pr
	m.byID[pr.ID] = &cp
	return nil
}

func (m *memRequests) UpdateStatusWithError(_ context.Context, id uuid.UUID, message string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errorCalls++
	if pr, ok := m.byID[id]; ok {
		pr.Status = models.StatusError
		pr.ErrorMessage = message
	}
	return nil
}

func (m *memRequests) UpdateNextScheduledPoll(_ context.Context, id uuid.UUID, next *time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pollCalls++
	if pr, ok := m.byID[id]; ok {
		pr.NextScheduledPoll = next
	}
	return nil
}

type memSuppliers struct {
	mu   sync.Mutex
	rows []*models.SupplierRequest
}

func (m *memSuppliers) Save(_ context.Context, sr *models.SupplierRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if sr.ID == uuid.Nil {
		sr.ID = uuid.New()
	}
	cp := *sr
	m.rows = append(m.rows, &cp)
	return nil
}

func (m *memSuppliers) Update(_ context.Context, sr *models.SupplierRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, row := range m.rows {
		if row.ID == sr.ID {
			cp := *sr
			m.rows[i] = &cp
			return nil
		}
	}
	return fmt.Errorf("supplier request %s not found", sr.ID)
}

func (m *memSuppliers) GetActiveByPatronRequest(_ context.Context, patronRequestID uuid.UUID) (*models.SupplierRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.rows) - 1; i >= 0; i-- {
		row := m.rows[i]
		if row.PatronRequestID == patronRequestID && row.IsActive {
			cp := *row
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *memSuppliers) ListByPatronRequest(_ context.Context, patronRequestID uuid.UUID) ([]*models.SupplierRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.SupplierRequest
	for _, row := range m.rows {
		if row.PatronRequestID == patronRequestID {
			cp := *row
			out = append(out, &cp)
		}
	}
	return out, nil
}

type memIdentities struct {
	mu   sync.Mutex
	rows map[string]*models.PatronIdentity
}

func newMemIdentities() *memIdentities {
	return &memIdentities{rows: map[string]*models.PatronIdentity{}}
}

func identityKey(patronRequestID uuid.UUID, role string) string {
	return patronRequestID.String() + "/" + role
}

func (m *memIdentities) Upsert(_ context.Context, identity *models.PatronIdentity) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *identity
	m.rows[identityKey(identity.PatronRequestID, identity.Role)] = &cp
	return nil
}

func (m *memIdentities) GetByRole(_ context.Context, patronRequestID uuid.UUID, role string) (*models.PatronIdentity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.rows[identityKey(patronRequestID, role)]
	if !ok {
		return nil, nil
	}
	cp := *row
	return &cp, nil
}

type memAgencies struct {
	mu        sync.Mutex
	byCode    map[string]*models.Agency
	locations map[string]string
}

func newMemAgencies(agencies ...*models.Agency) *memAgencies {
	m := &memAgencies{byCode: map[string]*models.Agency{}, locations: map[string]string{}}
	for _, a := range agencies {
		m.byCode[a.Code] = a
	}
	return m
}

func (m *memAgencies) mapLocation(locationCode, agencyCode string) {
	m.locations[locationCode] = agencyCode
}

func (m *memAgencies) GetByCode(_ context.Context, code string) (*models.Agency, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.byCode[code]
	if !ok {
		return nil, nil
	}
	cp := *a
	return &cp, nil
}

func (m *memAgencies) ResolveLocation(ctx context.Context, locationCode string) (*models.Agency, error) {
	m.mu.Lock()
	code, ok := m.locations[locationCode]
	m.mu.Unlock()
	if !ok {
		return nil, nil
	}
	return m.GetByCode(ctx, code)
}

func (m *memAgencies) IncrementLoanCount(_ context.Context, code string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if a, ok := m.byCode[code]; ok {
		a.LoanCount++
	}
	return nil
}

func (m *memAgencies) IncrementBorrowCount(_ context.Context, code string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if a, ok := m.byCode[code]; ok {
		a.BorrowCount++
	}
	return nil
}

type memAudit struct {
	mu      sync.Mutex
	entries []*models.AuditEntry
	err     error
}

func (m *memAudit) Create(_ context.Context, entry *models.AuditEntry) error {
	if m.err != nil {
		return m.err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *entry
	m.entries = append(m.entries, &cp)
	return nil
}

func (m *memAudit) messages() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.entries))
	for i, e := range m.entries {
		out[i] = e.Message
	}
	return out
}

// fakeClient is a scriptable host system. Method behavior is driven by the
// optional func fields; unset fields return canned success values.
type fakeClient struct {
	code string

	mu          sync.Mutex
	seq         int
	holds       map[string]*hostlms.Hold
	patrons     map[string]*hostlms.Patron
	deletedIDs  []string
	checkouts   []string
	renewals    []string
	cancelled   []string
	placeErr    error
	checkoutErr error
	renewErr    error
	deleteErr   error
	getPatron   func(localID string) (*hostlms.Patron, error)
}

func newFakeClient(code string) *fakeClient {
	return &fakeClient{
		code:    code,
		holds:   map[string]*hostlms.Hold{},
		patrons: map[string]*hostlms.Patron{},
	}
}

func (f *fakeClient) nextID(prefix string) string {
	f.seq++
	return fmt.Sprintf("%s-%s-%d", prefix, f.code, f.seq)
}

func (f *fakeClient) Code() string { return f.code }

func (f *fakeClient) PlaceHoldRequest(_ context.Context, hold hostlms.HoldRequest) (*hostlms.Hold, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.placeErr != nil {
		return nil, f.placeErr
	}
	h := &hostlms.Hold{
		LocalID:     f.nextID("hold"),
		Status:      "PLACED",
		ItemLocalID: hold.ItemLocalID,
	}
	f.holds[h.LocalID] = h
	return h, nil
}

func (f *fakeClient) CancelHoldRequest(_ context.Context, localHoldID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancelled = append(f.cancelled, localHoldID)
	delete(f.holds, localHoldID)
	return nil
}

func (f *fakeClient) GetRequest(_ context.Context, localHoldID string) (*hostlms.Hold, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	h, ok := f.holds[localHoldID]
	if !ok {
		return nil, fmt.Errorf("hold %s: %w", localHoldID, hostlms.ErrNotFound)
	}
	cp := *h
	return &cp, nil
}

func (f *fakeClient) Renew(_ context.Context, patronLocalID, itemLocalID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.renewErr != nil {
		return f.renewErr
	}
	f.renewals = append(f.renewals, patronLocalID+"/"+itemLocalID)
	return nil
}

func (f *fakeClient) CheckOutItemToPatron(_ context.Context, itemLocalID, patronLocalID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.checkoutErr != nil {
		return f.checkoutErr
	}
	f.checkouts = append(f.checkouts, itemLocalID+"/"+patronLocalID)
	return nil
}

func (f *fakeClient) GetItem(_ context.Context, itemLocalID string) (*hostlms.Item, error) {
	return &hostlms.Item{LocalID: itemLocalID, Status: "AVAILABLE"}, nil
}

func (f *fakeClient) UpdateItemStatus(context.Context, string, string) error { return nil }

func (f *fakeClient) CreateBib(_ context.Context, bib hostlms.Bib) (*hostlms.Bib, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	bib.LocalID = f.nextID("bib")
	return &bib, nil
}

func (f *fakeClient) CreateItem(_ context.Context, item hostlms.Item) (*hostlms.Item, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	item.LocalID = f.nextID("item")
	return &item, nil
}

func (f *fakeClient) DeleteBib(_ context.Context, localID string) error {
	return f.recordDelete("bib/" + localID)
}

func (f *fakeClient) DeleteItem(_ context.Context, localID string) error {
	return f.recordDelete("item/" + localID)
}

func (f *fakeClient) recordDelete(key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.deleteErr != nil {
		return f.deleteErr
	}
	f.deletedIDs = append(f.deletedIDs, key)
	return nil
}

func (f *fakeClient) CreatePatron(_ context.Context, patron hostlms.Patron) (*hostlms.Patron, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	patron.LocalID = f.nextID("patron")
	cp := patron
	f.patrons[patron.LocalID] = &cp
	return &patron, nil
}

func (f *fakeClient) UpdatePatron(_ context.Context, patron hostlms.Patron) (*hostlms.Patron, error) {
	return &patron, nil
}

func (f *fakeClient) GetPatronByLocalID(_ context.Context, localID string) (*hostlms.Patron, error) {
	if f.getPatron != nil {
		return f.getPatron(localID)
	}
	return &hostlms.Patron{LocalID: localID, Barcode: "b-" + localID, HomeLibraryCode: "loc-" + f.code}, nil
}

func (f *fakeClient) FindVirtualPatron(_ context.Context, barcode string) (*hostlms.Patron, error) {
	return nil, fmt.Errorf("barcode %s: %w", barcode, hostlms.ErrNotFound)
}

func (f *fakeClient) DeletePatron(_ context.Context, localID string) error {
	return f.recordDelete("patron/" + localID)
}

func (f *fakeClient) Ping(context.Context) error { return nil }

type fakeRegistry struct {
	clients map[string]hostlms.Client
}

func newFakeRegistry(clients ...*fakeClient) *fakeRegistry {
	r := &fakeRegistry{clients: map[string]hostlms.Client{}}
	for _, c := range clients {
		r.clients[c.code] = c
	}
	return r
}

func (r *fakeRegistry) ClientFor(code string) (hostlms.Client, error) {
	c, ok := r.clients[code]
	if !ok {
		return nil, fmt.Errorf("%w: %s", hostlms.ErrNoClient, code)
	}
	return c, nil
}

// fixedResolver returns a preset outcome, or nothing.
type fixedResolver struct {
	outcome *resolution.Outcome
	err     error
}

func (r *fixedResolver) Resolve(context.Context, *models.PatronRequest, map[string]bool) (*resolution.Outcome, error) {
	return r.outcome, r.err
}

// stubTransition is a scriptable transition for engine-level tests.
type stubTransition struct {
	name      string
	sources   []models.Status
	target    models.Status
	hasTarget bool
	automatic bool
	guard     func(c *RequestWorkflowContext) bool
	attempt   func(ctx context.Context, c *RequestWorkflowContext) error
	attempts  int
}

func (s *stubTransition) Name() string                          { return s.name }
func (s *stubTransition) PossibleSourceStatus() []models.Status { return s.sources }
func (s *stubTransition) TargetStatus() (models.Status, bool)   { return s.target, s.hasTarget }
func (s *stubTransition) AttemptAutomatically() bool            { return s.automatic }

func (s *stubTransition) IsApplicableFor(c *RequestWorkflowContext) bool {
	if !statusIn(c.PatronRequest.Status, s.sources) {
		return false
	}
	if s.guard != nil {
		return s.guard(c)
	}
	return true
}

func (s *stubTransition) Attempt(ctx context.Context, c *RequestWorkflowContext) error {
	s.attempts++
	if s.attempt != nil {
		return s.attempt(ctx, c)
	}
	if s.hasTarget {
		c.PatronRequest.Status = s.target
	}
	return nil
}
