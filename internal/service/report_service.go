package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/bp-reports-api/internal/dto"
	"github.com/noah-isme/bp-reports-api/internal/models"
	appErrors "github.com/noah-isme/bp-reports-api/pkg/errors"
	"github.com/noah-isme/bp-reports-api/pkg/export"
	"github.com/noah-isme/bp-reports-api/pkg/storage"
)

type reportStateStore interface {
	GetByKey(ctx context.Context, key models.ReportKey) (*models.ReportRequest, error)
	ListByBatch(ctx context.Context, orgID, courseID, batchID string) ([]models.ReportRequest, error)
	UpsertInProgress(ctx context.Context, key models.ReportKey, surveyID *string, createdBy string) error
	RecordTerminal(ctx context.Context, key models.ReportKey, result models.TerminalResult) error
}

type userOrgReader interface {
	GetRootOrgID(ctx context.Context, userID string) (string, error)
}

type reportQueue interface {
	Publish(ctx context.Context, payload []byte) (string, error)
}

type artifactFetcher interface {
	Fetch(ctx context.Context, key models.ReportKey, fileName string) ([]byte, error)
}

// ReportService backs the report HTTP endpoints. It never runs a report itself.
type ReportService struct {
	store     reportStateStore
	users     userOrgReader
	queue     reportQueue
	artifacts artifactFetcher
	validator *validator.Validate
	metrics   *MetricsService
	logger    *zap.Logger
}

// NewValidator returns a validator that reports JSON field names.
func NewValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return field.Name
		}
		return name
	})
	return v
}

// NewReportService constructs the report service.
func NewReportService(store reportStateStore, users userOrgReader, queue reportQueue, artifacts artifactFetcher, validate *validator.Validate, metrics *MetricsService, logger *zap.Logger) *ReportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = NewValidator()
	}
	return &ReportService{
		store:     store,
		users:     users,
		queue:     queue,
		artifacts: artifacts,
		validator: validate,
		metrics:   metrics,
		logger:    logger,
	}
}

// Enqueue records an IN_PROGRESS request and publishes it, unless one is already running.
func (s *ReportService) Enqueue(ctx context.Context, req dto.GenerateReportRequest, callerID string) (*dto.EnqueueResponse, error) {
	if err := s.validate(req); err != nil {
		return nil, err
	}
	if err := s.checkOrg(ctx, callerID, req.OrgID); err != nil {
		return nil, err
	}

	key := req.Key()
	existing, err := s.store.GetByKey(ctx, key)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.Internal(err, "failed to read report status")
	}
	if existing != nil && !existing.Status.IsTerminal() {
		return &dto.EnqueueResponse{Status: dto.EnqueueStatusInProgress}, nil
	}

	var surveyID *string
	if req.SurveyID != "" {
		surveyID = &req.SurveyID
	}
	if err := s.store.UpsertInProgress(ctx, key, surveyID, callerID); err != nil {
		return nil, appErrors.Internal(err, "failed to save report request")
	}

	payload, err := json.Marshal(models.ReportMessage{
		OrgID:         req.OrgID,
		CourseID:      req.CourseID,
		BatchID:       req.BatchID,
		SurveyID:      req.SurveyID,
		RequesterKind: req.RequesterKind,
		CreatedBy:     callerID,
		Status:        models.ReportStatusInProgress,
	})
	if err != nil {
		return nil, appErrors.Internal(err, "failed to encode report request")
	}
	if _, err := s.queue.Publish(ctx, payload); err != nil {
		// No queued message means no worker will ever finish this record.
		if markErr := s.store.RecordTerminal(ctx, key, models.FailedResult(time.Now().UTC())); markErr != nil {
			s.logger.Warn("failed to mark unpublished report failed", zap.Error(markErr))
		}
		return nil, appErrors.Internal(err, "failed to publish report request")
	}
	s.metrics.ObserveQueueMessage(QueuePublished)

	return &dto.EnqueueResponse{Status: dto.EnqueueStatusSuccess}, nil
}

// Status lists every report request for the batch. An empty list means none exist.
func (s *ReportService) Status(ctx context.Context, req dto.ReportStatusRequest, callerID string) (*dto.ReportStatusResponse, error) {
	if err := s.validate(req); err != nil {
		return nil, err
	}
	if err := s.checkOrg(ctx, callerID, req.OrgID); err != nil {
		return nil, err
	}

	records, err := s.store.ListByBatch(ctx, req.OrgID, req.CourseID, req.BatchID)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to read report status")
	}
	return &dto.ReportStatusResponse{Count: len(records), Content: records}, nil
}

// Download returns a previously published report file.
func (s *ReportService) Download(ctx context.Context, key models.ReportKey, fileName, callerID string) (*dto.ReportDownload, error) {
	if key.OrgID == "" || key.CourseID == "" || key.BatchID == "" || fileName == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "orgId, courseId, batchId and fileName are required")
	}
	if filepath.Base(fileName) != fileName || strings.ContainsAny(fileName, `/\`) || fileName == ".." {
		return nil, appErrors.ErrUnsupportedFile
	}
	if err := s.checkOrg(ctx, callerID, key.OrgID); err != nil {
		return nil, err
	}

	data, err := s.artifacts.Fetch(ctx, key, fileName)
	if err != nil {
		switch {
		case errors.Is(err, storage.ErrObjectNotFound):
			return nil, appErrors.Clone(appErrors.ErrNotFound, "report file not found")
		case errors.Is(err, ErrInvalidArtifactPath):
			return nil, appErrors.ErrUnsupportedFile
		default:
			return nil, appErrors.Internal(err, "failed to download report")
		}
	}
	return &dto.ReportDownload{FileName: fileName, ContentType: ContentTypeFor(fileName), Data: data}, nil
}

// ContentTypeFor infers the download content type from the file extension.
func ContentTypeFor(fileName string) string {
	switch strings.ToLower(filepath.Ext(fileName)) {
	case ".xlsx":
		return export.XLSXContentType
	case ".csv":
		return "text/csv"
	default:
		return "application/octet-stream"
	}
}

func (s *ReportService) checkOrg(ctx context.Context, callerID, orgID string) error {
	if callerID == "" {
		return appErrors.ErrUnauthorized
	}
	rootOrg, err := s.users.GetRootOrgID(ctx, callerID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrUnauthorized, "caller is not a known user")
		}
		return appErrors.Internal(err, "failed to resolve caller organisation")
	}
	if rootOrg != orgID {
		return appErrors.ErrOrgMismatch
	}
	return nil
}

func (s *ReportService) validate(req interface{}) error {
	err := s.validator.Struct(req)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
		fe := fieldErrs[0]
		if fe.Tag() == "required" {
			return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, fe.Field()+" is required")
		}
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid "+fe.Field())
	}
	return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid payload")
}
