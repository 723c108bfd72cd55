package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/bp-reports-api/internal/dto"
	"github.com/noah-isme/bp-reports-api/internal/middleware"
	"github.com/noah-isme/bp-reports-api/internal/models"
	appErrors "github.com/noah-isme/bp-reports-api/pkg/errors"
	"github.com/noah-isme/bp-reports-api/pkg/export"
)

type reportServiceMock struct {
	enqueueResp *dto.EnqueueResponse
	enqueueErr  error
	statusResp  *dto.ReportStatusResponse
	statusErr   error
	download    *dto.ReportDownload
	downloadErr error

	lastCaller string
	lastKey    models.ReportKey
	lastFile   string
}

func (m *reportServiceMock) Enqueue(ctx context.Context, req dto.GenerateReportRequest, callerID string) (*dto.EnqueueResponse, error) {
	m.lastCaller = callerID
	return m.enqueueResp, m.enqueueErr
}

func (m *reportServiceMock) Status(ctx context.Context, req dto.ReportStatusRequest, callerID string) (*dto.ReportStatusResponse, error) {
	m.lastCaller = callerID
	return m.statusResp, m.statusErr
}

func (m *reportServiceMock) Download(ctx context.Context, key models.ReportKey, fileName, callerID string) (*dto.ReportDownload, error) {
	m.lastCaller = callerID
	m.lastKey = key
	m.lastFile = fileName
	return m.download, m.downloadErr
}

func newGinContext(method, path string, body []byte) (*gin.Context, *httptest.ResponseRecorder) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(method, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	c.Request = req
	return c, w
}

func withCaller(c *gin.Context, userID string) {
	claims := &models.JWTClaims{}
	claims.Subject = "f:realm:" + userID
	c.Set(middleware.ContextUserKey, claims)
}

func decodeEnvelope(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

func TestReportHandlerGenerate(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockSvc := &reportServiceMock{enqueueResp: &dto.EnqueueResponse{Status: dto.EnqueueStatusSuccess}}
	handler := NewReportHandler(mockSvc)

	payload, _ := json.Marshal(dto.GenerateReportRequest{OrgID: "org-1", CourseID: "c", BatchID: "b"})
	c, w := newGinContext(http.MethodPost, "/bp/v1/generate/report", payload)
	withCaller(c, "user-1")

	handler.Generate(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "user-1", mockSvc.lastCaller)
	body := decodeEnvelope(t, w)
	assert.Equal(t, map[string]interface{}{"status": "SUCCESS"}, body["data"])
}

func TestReportHandlerGenerateErrors(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewReportHandler(&reportServiceMock{enqueueErr: appErrors.ErrOrgMismatch})

	c, w := newGinContext(http.MethodPost, "/bp/v1/generate/report", []byte(`{"orgId":"org-2","courseId":"c","batchId":"b"}`))
	withCaller(c, "user-1")
	handler.Generate(c)
	require.Equal(t, http.StatusBadRequest, w.Code)
	errBody := decodeEnvelope(t, w)["error"].(map[string]interface{})
	assert.Equal(t, "ORG_MISMATCH", errBody["code"])

	c, w = newGinContext(http.MethodPost, "/bp/v1/generate/report", []byte(`{not json`))
	handler.Generate(c)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	handler = NewReportHandler(&reportServiceMock{enqueueErr: errors.New("pq: connection refused")})
	c, w = newGinContext(http.MethodPost, "/bp/v1/generate/report", []byte(`{"orgId":"o","courseId":"c","batchId":"b"}`))
	handler.Generate(c)
	require.Equal(t, http.StatusInternalServerError, w.Code)
	assert.NotContains(t, w.Body.String(), "pq:")
}

func TestReportHandlerStatus(t *testing.T) {
	gin.SetMode(gin.TestMode)
	payload := []byte(`{"orgId":"org-1","courseId":"c","batchId":"b"}`)

	handler := NewReportHandler(&reportServiceMock{statusResp: &dto.ReportStatusResponse{Count: 0, Content: []models.ReportRequest{}}})
	c, w := newGinContext(http.MethodPost, "/bp/v1/bpreport/status", payload)
	handler.Status(c)
	require.Equal(t, http.StatusOK, w.Code)
	meta := decodeEnvelope(t, w)["meta"].(map[string]interface{})
	assert.Equal(t, ReportNotAvailableMessage, meta["message"])

	record := models.ReportRequest{ReportKey: models.ReportKey{OrgID: "org-1", CourseID: "c", BatchID: "b"}, Status: models.ReportStatusCompleted}
	handler = NewReportHandler(&reportServiceMock{statusResp: &dto.ReportStatusResponse{Count: 1, Content: []models.ReportRequest{record}}})
	c, w = newGinContext(http.MethodPost, "/bp/v1/bpreport/status", payload)
	handler.Status(c)
	require.Equal(t, http.StatusOK, w.Code)
	data := decodeEnvelope(t, w)["data"].(map[string]interface{})
	assert.EqualValues(t, 1, data["count"])
}

func TestReportHandlerDownload(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockSvc := &reportServiceMock{download: &dto.ReportDownload{FileName: "1_b.xlsx", ContentType: export.XLSXContentType, Data: []byte("sheet")}}
	handler := NewReportHandler(mockSvc)

	c, w := newGinContext(http.MethodGet, "/bp/v1/bpreport/download/org-1/c/b/1_b.xlsx", nil)
	c.Params = gin.Params{
		{Key: "orgId", Value: "org-1"}, {Key: "courseId", Value: "c"},
		{Key: "batchId", Value: "b"}, {Key: "fileName", Value: "1_b.xlsx"},
	}
	withCaller(c, "user-1")

	handler.Download(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, export.XLSXContentType, w.Header().Get("Content-Type"))
	assert.Equal(t, `attachment; filename="1_b.xlsx"`, w.Header().Get("Content-Disposition"))
	assert.Equal(t, "sheet", w.Body.String())
	assert.Equal(t, models.ReportKey{OrgID: "org-1", CourseID: "c", BatchID: "b"}, mockSvc.lastKey)
	assert.Equal(t, "1_b.xlsx", mockSvc.lastFile)

	handler = NewReportHandler(&reportServiceMock{downloadErr: appErrors.Clone(appErrors.ErrNotFound, "report file not found")})
	c, w = newGinContext(http.MethodGet, "/bp/v1/bpreport/download/org-1/c/b/x.xlsx", nil)
	handler.Download(c)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestMetricsHandlerHealth(t *testing.T) {
	gin.SetMode(gin.TestMode)

	handler := NewMetricsHandler(nil, map[string]HealthCheck{
		"postgres": func(ctx context.Context) error { return nil },
	})
	c, w := newGinContext(http.MethodGet, "/health", nil)
	handler.Health(c)
	assert.Equal(t, http.StatusOK, w.Code)

	handler = NewMetricsHandler(nil, map[string]HealthCheck{
		"postgres": func(ctx context.Context) error { return nil },
		"redis":    func(ctx context.Context) error { return errors.New("dial tcp: refused") },
	})
	c, w = newGinContext(http.MethodGet, "/health", nil)
	handler.Health(c)
	require.Equal(t, http.StatusServiceUnavailable, w.Code)
	body := decodeEnvelope(t, w)
	assert.Equal(t, "degraded", body["status"])

	c, w = newGinContext(http.MethodGet, "/metrics", nil)
	handler.Prometheus(c)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}
