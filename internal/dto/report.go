package dto

import "github.com/noah-isme/bp-reports-api/internal/models"

// Enqueue outcomes returned by POST /bp/v1/generate/report.
const (
	EnqueueStatusSuccess    = "SUCCESS"
	EnqueueStatusInProgress = "IN_PROGRESS"
)

// GenerateReportRequest captures the POST /bp/v1/generate/report payload.
type GenerateReportRequest struct {
	OrgID         string               `json:"orgId" validate:"required"`
	CourseID      string               `json:"courseId" validate:"required"`
	BatchID       string               `json:"batchId" validate:"required"`
	SurveyID      string               `json:"surveyId,omitempty"`
	RequesterKind models.RequesterKind `json:"requesterKind,omitempty" validate:"omitempty,oneof=MDO_ADMIN MDO_LEADER PC"`
}

// Key returns the composite key addressed by the request.
func (r GenerateReportRequest) Key() models.ReportKey {
	return models.ReportKey{OrgID: r.OrgID, CourseID: r.CourseID, BatchID: r.BatchID, RequesterKind: r.RequesterKind}
}

// ReportStatusRequest captures the POST /bp/v1/bpreport/status payload.
type ReportStatusRequest struct {
	OrgID    string `json:"orgId" validate:"required"`
	CourseID string `json:"courseId" validate:"required"`
	BatchID  string `json:"batchId" validate:"required"`
}

// EnqueueResponse reports whether a new run was queued.
type EnqueueResponse struct {
	Status string `json:"status"`
}

// ReportStatusResponse lists every report request for a batch.
type ReportStatusResponse struct {
	Count   int                    `json:"count"`
	Content []models.ReportRequest `json:"content"`
}

// ReportDownload carries a fetched artifact back to the handler.
type ReportDownload struct {
	FileName    string
	ContentType string
	Data        []byte
}
