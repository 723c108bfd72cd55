package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/bp-reports-api/internal/models"
)

// DefaultWorkflowPageSize is the number of wf_status rows read per query.
const DefaultWorkflowPageSize = 100

// WorkflowRepository reads enrollment workflow rows from wf_status.
type WorkflowRepository struct {
	db       *sqlx.DB
	pageSize int
}

// NewWorkflowRepository constructs the repository. pageSize <= 0 uses DefaultWorkflowPageSize.
func NewWorkflowRepository(db *sqlx.DB, pageSize int) *WorkflowRepository {
	if pageSize <= 0 {
		pageSize = DefaultWorkflowPageSize
	}
	return &WorkflowRepository{db: db, pageSize: pageSize}
}

// Page returns one page of entries for the batch in storage order.
func (r *WorkflowRepository) Page(ctx context.Context, batchID string, page int) ([]models.WorkflowEntry, error) {
	const query = `SELECT wf_id, userid, applicationid, current_status FROM wf_status
WHERE applicationid = $1 ORDER BY wf_id ASC LIMIT $2 OFFSET $3`
	var entries []models.WorkflowEntry
	if err := r.db.SelectContext(ctx, &entries, query, batchID, r.pageSize, page*r.pageSize); err != nil {
		return nil, fmt.Errorf("list workflow page %d: %w", page, err)
	}
	return entries, nil
}

// ListByBatch reads every page until exhaustion.
func (r *WorkflowRepository) ListByBatch(ctx context.Context, batchID string) ([]models.WorkflowEntry, error) {
	all := make([]models.WorkflowEntry, 0)
	for page := 0; ; page++ {
		entries, err := r.Page(ctx, batchID, page)
		if err != nil {
			return nil, err
		}
		all = append(all, entries...)
		if len(entries) < r.pageSize {
			return all, nil
		}
	}
}
