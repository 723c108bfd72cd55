package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/bp-reports-api/internal/models"
)

const reportRequestColumns = `org_id, course_id, batch_id, requester_kind, survey_id, created_by, status, download_link, file_name,
pending_user_count, approved_user_count, rejected_user_count, last_report_generated_on, created_at`

// ReportRequestRepository persists enrollment report request state in bp_enrolment_report.
type ReportRequestRepository struct {
	db *sqlx.DB
}

// NewReportRequestRepository constructs the repository.
func NewReportRequestRepository(db *sqlx.DB) *ReportRequestRepository {
	return &ReportRequestRepository{db: db}
}

// GetByKey returns the request stored under key. A missing row yields a wrapped sql.ErrNoRows.
func (r *ReportRequestRepository) GetByKey(ctx context.Context, key models.ReportKey) (*models.ReportRequest, error) {
	query := `SELECT ` + reportRequestColumns + `
FROM bp_enrolment_report WHERE org_id = $1 AND course_id = $2 AND batch_id = $3 AND requester_kind = $4`
	var req models.ReportRequest
	if err := r.db.GetContext(ctx, &req, query, key.OrgID, key.CourseID, key.BatchID, key.RequesterKind); err != nil {
		return nil, fmt.Errorf("get report request: %w", err)
	}
	return &req, nil
}

// ListByBatch returns every request for a batch regardless of requester kind.
func (r *ReportRequestRepository) ListByBatch(ctx context.Context, orgID, courseID, batchID string) ([]models.ReportRequest, error) {
	query := `SELECT ` + reportRequestColumns + `
FROM bp_enrolment_report WHERE org_id = $1 AND course_id = $2 AND batch_id = $3 ORDER BY requester_kind ASC`
	var reqs []models.ReportRequest
	if err := r.db.SelectContext(ctx, &reqs, query, orgID, courseID, batchID); err != nil {
		return nil, fmt.Errorf("list report requests: %w", err)
	}
	return reqs, nil
}

// UpsertInProgress inserts the request or resets an existing one to IN_PROGRESS,
// clearing the artifact and zeroing the counters.
func (r *ReportRequestRepository) UpsertInProgress(ctx context.Context, key models.ReportKey, surveyID *string, createdBy string) error {
	const query = `INSERT INTO bp_enrolment_report (org_id, course_id, batch_id, requester_kind, survey_id, created_by, status,
download_link, file_name, pending_user_count, approved_user_count, rejected_user_count, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, NULL, NULL, 0, 0, 0, $8)
ON CONFLICT (org_id, course_id, batch_id, requester_kind) DO UPDATE SET
survey_id = EXCLUDED.survey_id, created_by = EXCLUDED.created_by, status = EXCLUDED.status,
download_link = NULL, file_name = NULL, pending_user_count = 0, approved_user_count = 0, rejected_user_count = 0`
	_, err := r.db.ExecContext(ctx, query,
		key.OrgID, key.CourseID, key.BatchID, key.RequesterKind,
		surveyID, createdBy, models.ReportStatusInProgress, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("upsert report request: %w", err)
	}
	return nil
}

// RecordTerminal writes the final state of a run. Writing the same result twice
// leaves the row unchanged.
func (r *ReportRequestRepository) RecordTerminal(ctx context.Context, key models.ReportKey, result models.TerminalResult) error {
	const query = `UPDATE bp_enrolment_report SET status = $1, pending_user_count = $2, approved_user_count = $3,
rejected_user_count = $4, file_name = $5, download_link = $6, last_report_generated_on = $7
WHERE org_id = $8 AND course_id = $9 AND batch_id = $10 AND requester_kind = $11`

	counters := result.Counters
	fileName, link := nullIfEmpty(result.FileName), nullIfEmpty(result.DownloadLink)
	if result.Status != models.ReportStatusCompleted {
		counters = models.ReportCounters{}
		fileName, link = nil, nil
	}

	_, err := r.db.ExecContext(ctx, query,
		result.Status, counters.Pending, counters.Approved, counters.Rejected,
		fileName, link, result.GeneratedAt,
		key.OrgID, key.CourseID, key.BatchID, key.RequesterKind,
	)
	if err != nil {
		return fmt.Errorf("record terminal report state: %w", err)
	}
	return nil
}

func nullIfEmpty(v string) interface{} {
	if v == "" {
		return nil
	}
	return v
}
