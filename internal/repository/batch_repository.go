package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/bp-reports-api/internal/models"
)

type batchRow struct {
	CourseID        string         `db:"course_id"`
	BatchID         string         `db:"batch_id"`
	BatchAttributes sql.NullString `db:"batch_attributes"`
	CreatedFor      pq.StringArray `db:"created_for"`
}

type batchAttributesDoc struct {
	MandatoryProfileFields []models.MandatoryProfileField `json:"batchEnrolmentMandatoryProfileFields"`
}

// BatchRepository reads course_batch metadata.
type BatchRepository struct {
	db *sqlx.DB
}

// NewBatchRepository constructs the repository.
func NewBatchRepository(db *sqlx.DB) *BatchRepository {
	return &BatchRepository{db: db}
}

// GetAttributes returns the report-relevant attributes of a batch. A missing
// batch yields a wrapped sql.ErrNoRows.
func (r *BatchRepository) GetAttributes(ctx context.Context, courseID, batchID string) (*models.BatchAttributes, error) {
	const query = `SELECT course_id, batch_id, batch_attributes, created_for FROM course_batch WHERE course_id = $1 AND batch_id = $2`
	var row batchRow
	if err := r.db.GetContext(ctx, &row, query, courseID, batchID); err != nil {
		return nil, fmt.Errorf("get batch attributes: %w", err)
	}

	attrs := &models.BatchAttributes{
		CourseID:   row.CourseID,
		BatchID:    row.BatchID,
		CreatedFor: []string(row.CreatedFor),
	}
	if raw := strings.TrimSpace(row.BatchAttributes.String); raw != "" {
		var doc batchAttributesDoc
		if err := json.Unmarshal([]byte(raw), &doc); err != nil {
			return nil, fmt.Errorf("decode batch attributes: %w", err)
		}
		attrs.MandatoryProfileFields = doc.MandatoryProfileFields
	}
	return attrs, nil
}
