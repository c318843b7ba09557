package http

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/openlibraryenvironment/dcb-service-sub000/internal/config"
	"github.com/openlibraryenvironment/dcb-service-sub000/internal/hostlms"
	"github.com/openlibraryenvironment/dcb-service-sub000/internal/models"
	"github.com/openlibraryenvironment/dcb-service-sub000/internal/report"
	"github.com/openlibraryenvironment/dcb-service-sub000/internal/repository"
	"github.com/openlibraryenvironment/dcb-service-sub000/internal/workflow"
	"github.com/openlibraryenvironment/dcb-service-sub000/pkg/database"
)

type testStack struct {
	router   *gin.Engine
	requests *repository.PatronRequestRepository
}

// newTestStack wires the HTTP surface over a real sqlite database with a
// minimal transition catalogue: the manual cancellation plus finalisation.
// Neither needs a reachable host system for a freshly submitted request.
func newTestStack(t *testing.T) *testStack {
	t.Helper()
	logger := zap.NewNop()

	db, err := database.New(database.Config{
		Path:         filepath.Join(t.TempDir(), "test.db"),
		MaxOpenConns: 1,
		MaxIdleConns: 1,
	}, logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, database.NewMigrator(db, logger).RunMigrations("../../../migrations"))

	requests := repository.NewPatronRequestRepository(db.DB, logger)
	suppliers := repository.NewSupplierRequestRepository(db.DB, logger)
	identities := repository.NewIdentityRepository(db.DB, logger)
	agencies := repository.NewAgencyRepository(db.DB, logger)
	audit := repository.NewAuditRepository(db.DB, logger)

	registry := hostlms.NewRegistry(logger)
	transitions := []workflow.Transition{
		workflow.NewCancelRequestTransition(registry, suppliers, logger),
		workflow.NewFinaliseTransition(registry, suppliers, logger),
	}
	contexts := workflow.NewContextService(requests, suppliers, identities, agencies, logger)
	engine := workflow.NewService(contexts, requests, audit, transitions, workflow.DefaultPollPolicy(), 25, logger)

	exporter := report.NewExporter(requests, audit, logger)
	handlers := NewHandlers(engine, requests, audit, exporter, logger)
	server := NewServer(config.ServerConfig{Host: "127.0.0.1", Port: 0}, handlers, logger)

	return &testStack{router: server.Router(), requests: requests}
}

func (s *testStack) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(encoded)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func decodeResponse(t *testing.T, rec *httptest.ResponseRecorder) (Response, map[string]any) {
	t.Helper()
	var resp Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	data, _ := resp.Data.(map[string]any)
	return resp, data
}

func submitBody() map[string]any {
	return map[string]any{
		"patron_host_lms_code": "alpha-sys",
		"patron_local_id":      "patron-7",
		"bib_cluster_id":       "cluster-42",
		"pickup_location_code": "main-desk",
	}
}

func TestHealthEndpoint(t *testing.T) {
	s := newTestStack(t)
	rec := s.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestSubmitRequest(t *testing.T) {
	s := newTestStack(t)

	rec := s.do(t, http.MethodPost, "/api/requests", submitBody())
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())

	resp, data := decodeResponse(t, rec)
	assert.True(t, resp.Success)
	assert.Equal(t, string(models.StatusSubmittedToDCB), data["status"])
	assert.Equal(t, models.WorkflowStandard, data["active_workflow"], "shape defaults to the standard loan")

	id, err := uuid.Parse(data["id"].(string))
	require.NoError(t, err)

	getRec := s.do(t, http.MethodGet, "/api/requests/"+id.String(), nil)
	assert.Equal(t, http.StatusOK, getRec.Code)
}

func TestSubmitRequestValidation(t *testing.T) {
	s := newTestStack(t)

	missing := submitBody()
	delete(missing, "bib_cluster_id")
	rec := s.do(t, http.MethodPost, "/api/requests", missing)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	badShape := submitBody()
	badShape["active_workflow"] = "RET-UNKNOWN"
	rec = s.do(t, http.MethodPost, "/api/requests", badShape)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	resp, _ := decodeResponse(t, rec)
	assert.Contains(t, resp.Error, "unknown workflow shape")
}

func TestGetRequestErrors(t *testing.T) {
	s := newTestStack(t)

	rec := s.do(t, http.MethodGet, "/api/requests/not-a-uuid", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, http.MethodGet, "/api/requests/"+uuid.NewString(), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCancelRunsThroughFinalisation(t *testing.T) {
	s := newTestStack(t)

	rec := s.do(t, http.MethodPost, "/api/requests", submitBody())
	require.Equal(t, http.StatusAccepted, rec.Code)
	_, data := decodeResponse(t, rec)
	id := data["id"].(string)

	cancelRec := s.do(t, http.MethodPost, "/api/requests/"+id+"/cancel", nil)
	require.Equal(t, http.StatusOK, cancelRec.Code, cancelRec.Body.String())
	_, cancelled := decodeResponse(t, cancelRec)
	assert.Equal(t, string(models.StatusFinalised), cancelled["status"],
		"cancellation chains straight into finalisation")

	auditRec := s.do(t, http.MethodGet, "/api/requests/"+id+"/audit", nil)
	require.Equal(t, http.StatusOK, auditRec.Code)
	var auditResp struct {
		Data []models.AuditEntry `json:"data"`
	}
	require.NoError(t, json.Unmarshal(auditRec.Body.Bytes(), &auditResp))
	require.Len(t, auditResp.Data, 2)
	assert.Equal(t, "CancelPatronRequest", auditResp.Data[0].Message)
	assert.Equal(t, "FinaliseRequest", auditResp.Data[1].Message)
}

func TestApplyTransitionGuards(t *testing.T) {
	s := newTestStack(t)

	rec := s.do(t, http.MethodPost, "/api/requests", submitBody())
	require.Equal(t, http.StatusAccepted, rec.Code)
	_, data := decodeResponse(t, rec)
	id := data["id"].(string)

	// Unknown transition name.
	rec = s.do(t, http.MethodPost, "/api/requests/"+id+"/transition", map[string]any{"name": "Teleport"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// Known transition whose guard rejects the current status.
	rec = s.do(t, http.MethodPost, "/api/requests/"+id+"/transition", map[string]any{"name": "FinaliseRequest"})
	assert.Equal(t, http.StatusConflict, rec.Code)

	// Applicable manual transition.
	rec = s.do(t, http.MethodPost, "/api/requests/"+id+"/transition", map[string]any{"name": "CancelPatronRequest"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	_, result := decodeResponse(t, rec)
	assert.Equal(t, string(models.StatusCancelled), result["status"],
		"plain transition endpoint does not chain onward")
}

func TestListTransitions(t *testing.T) {
	s := newTestStack(t)

	rec := s.do(t, http.MethodGet, "/api/transitions", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Data []struct {
			Name      string `json:"name"`
			Automatic bool   `json:"automatic"`
			Target    string `json:"target"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Data, 2)

	byName := map[string]bool{}
	for _, info := range resp.Data {
		byName[info.Name] = info.Automatic
	}
	assert.False(t, byName["CancelPatronRequest"])
	assert.True(t, byName["FinaliseRequest"])
}

func TestExportRequestsReport(t *testing.T) {
	s := newTestStack(t)

	rec := s.do(t, http.MethodPost, "/api/requests", submitBody())
	require.Equal(t, http.StatusAccepted, rec.Code)

	exportRec := s.do(t, http.MethodGet, "/api/reports/requests", nil)
	require.Equal(t, http.StatusOK, exportRec.Code)
	assert.Contains(t, exportRec.Header().Get("Content-Disposition"), "patron_requests.xlsx")
	assert.NotZero(t, exportRec.Body.Len())
}
