package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/bp-reports-api/internal/dto"
	"github.com/noah-isme/bp-reports-api/internal/models"
	appErrors "github.com/noah-isme/bp-reports-api/pkg/errors"
	"github.com/noah-isme/bp-reports-api/pkg/response"
)

// ReportNotAvailableMessage is returned by status when nothing was ever requested.
const ReportNotAvailableMessage = "Report is not available. Please generate the report"

type reportService interface {
	Enqueue(ctx context.Context, req dto.GenerateReportRequest, callerID string) (*dto.EnqueueResponse, error)
	Status(ctx context.Context, req dto.ReportStatusRequest, callerID string) (*dto.ReportStatusResponse, error)
	Download(ctx context.Context, key models.ReportKey, fileName, callerID string) (*dto.ReportDownload, error)
}

// ReportHandler exposes the enrollment report endpoints.
type ReportHandler struct {
	service reportService
}

// NewReportHandler constructs handler.
func NewReportHandler(svc reportService) *ReportHandler {
	return &ReportHandler{service: svc}
}

// Generate godoc
// @Summary Request an enrollment report
// @Tags Reports
// @Accept json
// @Produce json
// @Param payload body dto.GenerateReportRequest true "Report request"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /generate/report [post]
func (h *ReportHandler) Generate(c *gin.Context) {
	var req dto.GenerateReportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid payload"))
		return
	}
	resp, err := h.service.Enqueue(c.Request.Context(), req, callerID(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, resp)
}

// Status godoc
// @Summary List report requests for a batch
// @Tags Reports
// @Accept json
// @Produce json
// @Param payload body dto.ReportStatusRequest true "Batch key"
// @Success 200 {object} response.Envelope
// @Router /bpreport/status [post]
func (h *ReportHandler) Status(c *gin.Context) {
	var req dto.ReportStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid payload"))
		return
	}
	resp, err := h.service.Status(c.Request.Context(), req, callerID(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	if resp.Count == 0 {
		response.Message(c, ReportNotAvailableMessage)
		return
	}
	response.JSON(c, http.StatusOK, resp)
}

// Download godoc
// @Summary Download a generated report
// @Tags Reports
// @Produce application/vnd.openxmlformats-officedocument.spreadsheetml.sheet
// @Param orgId path string true "Org ID"
// @Param courseId path string true "Course ID"
// @Param batchId path string true "Batch ID"
// @Param fileName path string true "File name"
// @Success 200 {file} binary
// @Router /bpreport/download/{orgId}/{courseId}/{batchId}/{fileName} [get]
func (h *ReportHandler) Download(c *gin.Context) {
	key := models.ReportKey{OrgID: c.Param("orgId"), CourseID: c.Param("courseId"), BatchID: c.Param("batchId")}
	file, err := h.service.Download(c.Request.Context(), key, c.Param("fileName"), callerID(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Attachment(c, file.FileName, file.ContentType, file.Data)
}
