package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/bp-reports-api/internal/models"
	"github.com/noah-isme/bp-reports-api/pkg/export"
	"github.com/noah-isme/bp-reports-api/pkg/jobs"
	"github.com/noah-isme/bp-reports-api/pkg/logger"
)

type terminalRecorder interface {
	RecordTerminal(ctx context.Context, key models.ReportKey, result models.TerminalResult) error
}

type reportBuildRunner interface {
	Build(ctx context.Context, req BuildRequest) (*BuildResult, error)
}

type artifactSink interface {
	Publish(ctx context.Context, key models.ReportKey, data []byte, ext, contentType string) (*PublishedArtifact, error)
}

// ReportWorker turns queue messages into report runs. Every valid message ends
// with exactly one terminal write.
type ReportWorker struct {
	store     terminalRecorder
	builder   reportBuildRunner
	publisher artifactSink
	renderer  export.Renderer
	metrics   *MetricsService
	logger    *zap.Logger
	now       func() time.Time
}

// NewReportWorker constructs a worker.
func NewReportWorker(store terminalRecorder, builder reportBuildRunner, publisher artifactSink, renderer export.Renderer, metrics *MetricsService, logger *zap.Logger) *ReportWorker {
	if logger == nil {
		logger = zap.NewNop()
	}
	if renderer == nil {
		renderer = export.NewXLSXExporter()
	}
	return &ReportWorker{
		store:     store,
		builder:   builder,
		publisher: publisher,
		renderer:  renderer,
		metrics:   metrics,
		logger:    logger,
		now:       time.Now,
	}
}

// Handle processes a queue job. Undecodable or incomplete messages are dropped.
// The only error returned is a failed terminal write.
func (w *ReportWorker) Handle(ctx context.Context, job jobs.Job) error {
	var msg models.ReportMessage
	if err := json.Unmarshal(job.Payload, &msg); err != nil {
		w.logger.Warn("dropping undecodable report message", zap.String("message_id", job.ID), zap.Error(err))
		w.metrics.ObserveQueueMessage(QueueDropped)
		return nil
	}
	if missing := missingKeyFields(msg); len(missing) > 0 {
		w.logger.Warn("dropping incomplete report message", zap.String("message_id", job.ID), zap.Strings("missing", missing))
		w.metrics.ObserveQueueMessage(QueueDropped)
		return nil
	}
	w.metrics.ObserveQueueMessage(QueueConsumed)
	return w.Process(ctx, msg)
}

// Process runs the pipeline for msg and records the terminal status.
func (w *ReportWorker) Process(ctx context.Context, msg models.ReportMessage) error {
	key := msg.Key()
	log := w.logger.With(logger.ReportFields(key.OrgID, key.CourseID, key.BatchID, string(key.RequesterKind))...)
	start := w.now()

	result, rows := w.run(ctx, log, msg)
	duration := w.now().Sub(start)

	if err := w.store.RecordTerminal(ctx, key, result); err != nil {
		log.Error("failed to record report status", zap.String("status", string(result.Status)), zap.Error(err))
		return fmt.Errorf("record terminal status: %w", err)
	}

	w.metrics.ObserveReport(key.RequesterKind, result.Status, rows, duration)
	log.Info("report run finished",
		zap.String("status", string(result.Status)),
		zap.Int("rows", rows),
		zap.Int64("duration_ms", duration.Milliseconds()),
	)
	return nil
}

func (w *ReportWorker) run(ctx context.Context, log *zap.Logger, msg models.ReportMessage) (models.TerminalResult, int) {
	built, err := w.builder.Build(ctx, BuildRequest{Key: msg.Key(), SurveyID: msg.SurveyID})
	if err != nil {
		log.Error("report build failed", zap.Error(err))
		return models.FailedResult(w.now().UTC()), 0
	}

	data, err := w.renderer.Render(built.Dataset)
	if err != nil {
		log.Error("report render failed", zap.Error(err))
		return models.FailedResult(w.now().UTC()), 0
	}

	artifact, err := w.publisher.Publish(ctx, msg.Key(), data, w.renderer.Extension(), w.renderer.ContentType())
	if err != nil {
		log.Error("report upload failed", zap.Error(err))
		return models.FailedResult(w.now().UTC()), 0
	}

	return models.TerminalResult{
		Status:       models.ReportStatusCompleted,
		Counters:     built.Counters,
		FileName:     artifact.FileName,
		DownloadLink: artifact.URL,
		GeneratedAt:  w.now().UTC(),
	}, len(built.Dataset.Rows)
}

func missingKeyFields(msg models.ReportMessage) []string {
	missing := make([]string, 0, 3)
	if strings.TrimSpace(msg.OrgID) == "" {
		missing = append(missing, "orgId")
	}
	if strings.TrimSpace(msg.CourseID) == "" {
		missing = append(missing, "courseId")
	}
	if strings.TrimSpace(msg.BatchID) == "" {
		missing = append(missing, "batchId")
	}
	return missing
}
