package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/bp-reports-api/internal/models"
)

type userRow struct {
	ID             string         `db:"id"`
	FirstName      sql.NullString `db:"first_name"`
	RootOrgID      sql.NullString `db:"root_org_id"`
	ProfileDetails sql.NullString `db:"profile_details"`
}

// UserRepository reads user rows and their embedded profile blob.
type UserRepository struct {
	db *sqlx.DB
}

// NewUserRepository constructs the repository.
func NewUserRepository(db *sqlx.DB) *UserRepository {
	return &UserRepository{db: db}
}

// GetProfile loads a user and flattens the profile blob. A missing user yields a
// wrapped sql.ErrNoRows and an unreadable blob yields ErrMalformedProfile.
func (r *UserRepository) GetProfile(ctx context.Context, userID string) (*models.UserProfile, error) {
	const query = `SELECT id, first_name, root_org_id, profile_details FROM users WHERE id = $1`
	var row userRow
	if err := r.db.GetContext(ctx, &row, query, userID); err != nil {
		return nil, fmt.Errorf("get user profile: %w", err)
	}
	fields, err := parseProfileDetails(row.FirstName.String, row.ProfileDetails.String)
	if err != nil {
		return nil, fmt.Errorf("user %s: %w", userID, err)
	}
	return &models.UserProfile{UserID: row.ID, RootOrgID: row.RootOrgID.String, Fields: fields}, nil
}

// GetRootOrgID returns the home org of a user.
func (r *UserRepository) GetRootOrgID(ctx context.Context, userID string) (string, error) {
	const query = `SELECT root_org_id FROM users WHERE id = $1`
	var orgID sql.NullString
	if err := r.db.GetContext(ctx, &orgID, query, userID); err != nil {
		return "", fmt.Errorf("get user root org: %w", err)
	}
	return orgID.String, nil
}
