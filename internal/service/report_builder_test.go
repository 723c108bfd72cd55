package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/bp-reports-api/internal/models"
	"github.com/noah-isme/bp-reports-api/internal/repository"
	"github.com/noah-isme/bp-reports-api/pkg/config"
)

type batchStub struct {
	attrs *models.BatchAttributes
	err   error
}

func (s *batchStub) GetAttributes(ctx context.Context, courseID, batchID string) (*models.BatchAttributes, error) {
	if s.err != nil {
		return nil, s.err
	}
	if s.attrs == nil {
		return nil, fmt.Errorf("get batch attributes: %w", sql.ErrNoRows)
	}
	return s.attrs, nil
}

type workflowStub struct {
	entries []models.WorkflowEntry
	err     error
}

func (s *workflowStub) ListByBatch(ctx context.Context, batchID string) ([]models.WorkflowEntry, error) {
	return s.entries, s.err
}

type profileStub struct {
	profiles map[string]*models.UserProfile
	errs     map[string]error
	calls    []string
}

func (s *profileStub) GetProfile(ctx context.Context, userID string) (*models.UserProfile, error) {
	s.calls = append(s.calls, userID)
	if err, ok := s.errs[userID]; ok {
		return nil, err
	}
	p, ok := s.profiles[userID]
	if !ok {
		return nil, fmt.Errorf("get user profile: %w", sql.ErrNoRows)
	}
	return p, nil
}

func (s *profileStub) GetRootOrgID(ctx context.Context, userID string) (string, error) {
	p, err := s.GetProfile(ctx, userID)
	if err != nil {
		return "", err
	}
	return p.RootOrgID, nil
}

type surveyStub struct {
	latest    *models.SurveyResponse
	latestErr error
	byUser    map[string][]models.SurveyResponse
	userErrs  map[string]error
}

func (s *surveyStub) Latest(ctx context.Context, formID string) (*models.SurveyResponse, error) {
	return s.latest, s.latestErr
}

func (s *surveyStub) ByUser(ctx context.Context, formID, userID string) ([]models.SurveyResponse, error) {
	if err, ok := s.userErrs[userID]; ok {
		return nil, err
	}
	return s.byUser[userID], nil
}

func profileOf(userID, rootOrg string, fields map[string]string) *models.UserProfile {
	return &models.UserProfile{UserID: userID, RootOrgID: rootOrg, Fields: fields}
}

func answers(pairs ...string) models.SurveyResponse {
	resp := models.SurveyResponse{}
	for i := 0; i+1 < len(pairs); i += 2 {
		resp.Answers = append(resp.Answers, models.SurveyAnswer{Question: pairs[i], Answer: pairs[i+1]})
	}
	return resp
}

var testBuilderConfig = ReportBuilderConfig{
	DefaultHeaders: []config.HeaderField{
		{Key: models.FieldFirstName, DisplayName: "First Name"},
		{Key: models.FieldPrimaryEmail, DisplayName: "Email"},
		{Key: models.FieldGroup, DisplayName: "Group"},
	},
	ExcludedSurveyKeys: []string{"Name"},
}

func adminKey() models.ReportKey {
	return models.ReportKey{OrgID: "org-1", CourseID: "course-1", BatchID: "batch-1", RequesterKind: models.RequesterMDOAdmin}
}

func TestBuildSingleApprovedUserNoSurvey(t *testing.T) {
	builder := NewReportBuilder(
		&batchStub{attrs: &models.BatchAttributes{CreatedFor: []string{"org-1"}}},
		&workflowStub{entries: []models.WorkflowEntry{{UserID: "u1", CurrentStatus: models.WorkflowApproved}}},
		&profileStub{profiles: map[string]*models.UserProfile{
			"u1": profileOf("u1", "org-1", map[string]string{models.FieldFirstName: "Ada"}),
		}},
		&surveyStub{},
		testBuilderConfig, nil,
	)

	result, err := builder.Build(context.Background(), BuildRequest{Key: adminKey()})
	require.NoError(t, err)
	assert.Equal(t, []string{"First Name", EnrollmentStatusHeader}, result.Dataset.Headers)
	assert.Equal(t, [][]string{{"Ada", "APPROVED"}}, result.Dataset.Rows)
	assert.Equal(t, models.ReportCounters{Approved: 1}, result.Counters)
}

func TestBuildMixedStatusesWithSurvey(t *testing.T) {
	profiles := &profileStub{profiles: map[string]*models.UserProfile{
		"u1": profileOf("u1", "org-1", map[string]string{models.FieldFirstName: "Ada", models.FieldPrimaryEmail: "ada@example.com"}),
		"u2": profileOf("u2", "org-1", map[string]string{models.FieldFirstName: "Grace"}),
		"u3": profileOf("u3", "org-1", map[string]string{models.FieldFirstName: "Linus"}),
	}}
	latest := answers("Name", "x", "Q1", "a", "Q2", "b")
	surveys := &surveyStub{
		latest: &latest,
		byUser: map[string][]models.SurveyResponse{
			"u1": {answers("Q1", "yes"), answers("Q1", "older")},
			"u2": {answers("Q1", "no")},
		},
	}
	builder := NewReportBuilder(
		&batchStub{attrs: &models.BatchAttributes{CreatedFor: []string{"org-1"}}},
		&workflowStub{entries: []models.WorkflowEntry{
			{UserID: "u1", CurrentStatus: models.WorkflowApproved},
			{UserID: "u2", CurrentStatus: models.WorkflowRejected},
			{UserID: "u3", CurrentStatus: models.WorkflowSendForMDOApproval},
		}},
		profiles, surveys, testBuilderConfig, nil,
	)

	result, err := builder.Build(context.Background(), BuildRequest{Key: adminKey(), SurveyID: "survey-1"})
	require.NoError(t, err)
	assert.Equal(t, []string{"First Name", "Email", EnrollmentStatusHeader, "Q1", "Q2"}, result.Dataset.Headers)
	assert.Equal(t, [][]string{
		{"Ada", "ada@example.com", "APPROVED", "yes", EmptyCell},
		{"Grace", EmptyCell, "REJECTED", "no", EmptyCell},
		{"Linus", EmptyCell, models.EnrollmentPendingWithMDO, EmptyCell, EmptyCell},
	}, result.Dataset.Rows)
	assert.Equal(t, models.ReportCounters{Pending: 1, Approved: 1, Rejected: 1}, result.Counters)
	assert.Equal(t, len(result.Dataset.Rows), result.Counters.Total())
}

func TestBuildCrossOrgFilterForDefaultSchema(t *testing.T) {
	entries := make([]models.WorkflowEntry, 0, 5)
	profiles := &profileStub{profiles: map[string]*models.UserProfile{}}
	for i, org := range []string{"org-1", "org-2", "org-1", "org-2", "org-1"} {
		id := fmt.Sprintf("u%d", i+1)
		entries = append(entries, models.WorkflowEntry{UserID: id, CurrentStatus: models.WorkflowSendForPCApproval})
		profiles.profiles[id] = profileOf(id, org, map[string]string{models.FieldFirstName: id})
	}
	build := func(kind models.RequesterKind) *BuildResult {
		builder := NewReportBuilder(
			&batchStub{attrs: &models.BatchAttributes{CreatedFor: []string{"content-org"}}},
			&workflowStub{entries: entries}, profiles, &surveyStub{}, testBuilderConfig, nil,
		)
		key := adminKey()
		key.RequesterKind = kind
		result, err := builder.Build(context.Background(), BuildRequest{Key: key})
		require.NoError(t, err)
		return result
	}

	filtered := build(models.RequesterMDOLeader)
	require.Len(t, filtered.Dataset.Rows, 3)
	assert.Equal(t, 3, filtered.Counters.Total())
	assert.Equal(t, "u1", filtered.Dataset.Rows[0][0])
	assert.Equal(t, "u5", filtered.Dataset.Rows[2][0])
	assert.Equal(t, models.EnrollmentPendingWithPC, filtered.Dataset.Rows[0][1])

	unfiltered := build(models.RequesterPC)
	assert.Equal(t, 5, unfiltered.Counters.Total())
}

func TestBuildContentOrgSeesEveryone(t *testing.T) {
	builder := NewReportBuilder(
		&batchStub{attrs: &models.BatchAttributes{CreatedFor: []string{"org-1"}}},
		&workflowStub{entries: []models.WorkflowEntry{
			{UserID: "u1", CurrentStatus: models.WorkflowApproved},
			{UserID: "u2", CurrentStatus: models.WorkflowApproved},
		}},
		&profileStub{profiles: map[string]*models.UserProfile{
			"u1": profileOf("u1", "org-9", map[string]string{models.FieldFirstName: "A"}),
			"u2": profileOf("u2", "org-8", map[string]string{models.FieldFirstName: "B"}),
		}},
		&surveyStub{}, testBuilderConfig, nil,
	)

	result, err := builder.Build(context.Background(), BuildRequest{Key: adminKey()})
	require.NoError(t, err)
	assert.Equal(t, 2, result.Counters.Approved)
}

func TestBuildMandatorySchema(t *testing.T) {
	attrs := &models.BatchAttributes{
		CreatedFor: []string{"content-org"},
		MandatoryProfileFields: []models.MandatoryProfileField{
			{Field: "profileDetails.personalDetails.firstname", DisplayName: "Learner"},
			{Field: "profileDetails.employmentDetails.departmentName", DisplayName: "Department"},
			{Field: "profileDetails.personalDetails.gender", DisplayName: "Gender"},
		},
	}
	builder := NewReportBuilder(
		&batchStub{attrs: attrs},
		&workflowStub{entries: []models.WorkflowEntry{
			{UserID: "u1", CurrentStatus: models.WorkflowApproved},
			{UserID: "u2", CurrentStatus: models.WorkflowWithdrawn},
			{UserID: "", CurrentStatus: models.WorkflowApproved},
			{UserID: "u3", CurrentStatus: "SOMETHING_ELSE"},
		}},
		&profileStub{profiles: map[string]*models.UserProfile{
			"u1": profileOf("u1", "org-x", map[string]string{models.FieldFirstName: "Ada", models.FieldDepartmentName: "Finance"}),
			"u2": profileOf("u2", "org-x", map[string]string{models.FieldFirstName: "Gone"}),
			"u3": profileOf("u3", "org-y", map[string]string{models.FieldFirstName: "Bob"}),
		}},
		&surveyStub{}, testBuilderConfig, nil,
	)

	key := adminKey()
	key.RequesterKind = models.RequesterPC
	result, err := builder.Build(context.Background(), BuildRequest{Key: key})
	require.NoError(t, err)
	assert.Equal(t, []string{"Learner", "Department", EnrollmentStatusHeader}, result.Dataset.Headers)
	assert.Equal(t, [][]string{
		{"Ada", "Finance", "APPROVED"},
		{"Bob", EmptyCell, EmptyCell},
	}, result.Dataset.Rows)
	assert.Equal(t, models.ReportCounters{Approved: 1, Pending: 1}, result.Counters)
}

func TestBuildSkipsTransientUserFailures(t *testing.T) {
	latest := answers("Q1", "")
	builder := NewReportBuilder(
		&batchStub{attrs: &models.BatchAttributes{CreatedFor: []string{"org-1"}}},
		&workflowStub{entries: []models.WorkflowEntry{
			{UserID: "missing", CurrentStatus: models.WorkflowApproved},
			{UserID: "broken", CurrentStatus: models.WorkflowApproved},
			{UserID: "nosurvey", CurrentStatus: models.WorkflowApproved},
			{UserID: "ok", CurrentStatus: models.WorkflowRejected},
			{UserID: "ok", CurrentStatus: models.WorkflowRejected},
		}},
		&profileStub{
			profiles: map[string]*models.UserProfile{
				"nosurvey": profileOf("nosurvey", "org-1", map[string]string{models.FieldFirstName: "N"}),
				"ok":       profileOf("ok", "org-1", map[string]string{models.FieldFirstName: "K"}),
			},
			errs: map[string]error{"broken": fmt.Errorf("user broken: %w", repository.ErrMalformedProfile)},
		},
		&surveyStub{latest: &latest, userErrs: map[string]error{"nosurvey": errors.New("index unavailable")}},
		testBuilderConfig, nil,
	)

	result, err := builder.Build(context.Background(), BuildRequest{Key: adminKey(), SurveyID: "s"})
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"K", "REJECTED", EmptyCell}}, result.Dataset.Rows)
	assert.Equal(t, models.ReportCounters{Rejected: 1}, result.Counters)
}

func TestBuildFatalOutcomes(t *testing.T) {
	entries := []models.WorkflowEntry{{UserID: "u1", CurrentStatus: models.WorkflowApproved}}
	attrs := &models.BatchAttributes{CreatedFor: []string{"org-1"}}

	t.Run("missing batch", func(t *testing.T) {
		builder := NewReportBuilder(&batchStub{}, &workflowStub{entries: entries}, &profileStub{}, &surveyStub{}, testBuilderConfig, nil)
		_, err := builder.Build(context.Background(), BuildRequest{Key: adminKey()})
		assert.ErrorIs(t, err, ErrBatchNotFound)
	})

	t.Run("empty batch", func(t *testing.T) {
		builder := NewReportBuilder(&batchStub{attrs: attrs}, &workflowStub{}, &profileStub{}, &surveyStub{}, testBuilderConfig, nil)
		_, err := builder.Build(context.Background(), BuildRequest{Key: adminKey()})
		assert.ErrorIs(t, err, ErrNoWorkflowEntries)
	})

	t.Run("survey schema lookup", func(t *testing.T) {
		builder := NewReportBuilder(&batchStub{attrs: attrs}, &workflowStub{entries: entries}, &profileStub{},
			&surveyStub{latestErr: errors.New("timeout")}, testBuilderConfig, nil)
		_, err := builder.Build(context.Background(), BuildRequest{Key: adminKey(), SurveyID: "s"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "discover survey schema")
	})

	t.Run("cancelled context", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		profiles := &profileStub{errs: map[string]error{"u1": context.Canceled}}
		builder := NewReportBuilder(&batchStub{attrs: attrs}, &workflowStub{entries: entries}, profiles, &surveyStub{}, testBuilderConfig, nil)
		_, err := builder.Build(ctx, BuildRequest{Key: adminKey()})
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestSurveyColumnsSkipExcludedAndProfileKeys(t *testing.T) {
	builder := NewReportBuilder(nil, nil, nil, nil, testBuilderConfig, nil)
	profile := []column{{key: models.FieldGroup}}
	assert.Equal(t, []string{"Q1", "Q2"}, builder.surveyColumns(profile, []string{"Name", "Q1", "group", "Q2", "Q1"}))
}

func TestFieldKey(t *testing.T) {
	assert.Equal(t, models.FieldFirstName, fieldKey("profileDetails.personalDetails.firstname"))
	assert.Equal(t, "designation", fieldKey("profileDetails.professionalDetails.designation"))
	assert.Equal(t, "mobile", fieldKey("mobile"))
}

func TestPolicyFor(t *testing.T) {
	assert.Equal(t, BuildPolicy{Schema: SchemaDefault, ApplyCrossOrgFilter: true}, PolicyFor(models.RequesterMDOAdmin))
	assert.Equal(t, BuildPolicy{Schema: SchemaDefault, ApplyCrossOrgFilter: true}, PolicyFor(models.RequesterMDOLeader))
	assert.Equal(t, BuildPolicy{Schema: SchemaMandatory}, PolicyFor(models.RequesterPC))
	assert.Equal(t, BuildPolicy{Schema: SchemaMandatory}, PolicyFor(""))
}

func TestBuildMatchesStatusesIgnoringCase(t *testing.T) {
	builder := NewReportBuilder(
		&batchStub{attrs: &models.BatchAttributes{CreatedFor: []string{"org-1"}}},
		&workflowStub{entries: []models.WorkflowEntry{
			{UserID: "u1", CurrentStatus: "approved"},
			{UserID: "u2", CurrentStatus: "Rejected"},
			{UserID: "u3", CurrentStatus: "withdrawn"},
		}},
		&profileStub{profiles: map[string]*models.UserProfile{
			"u1": profileOf("u1", "org-1", map[string]string{models.FieldFirstName: "Ada"}),
			"u2": profileOf("u2", "org-1", map[string]string{models.FieldFirstName: "Grace"}),
			"u3": profileOf("u3", "org-1", map[string]string{models.FieldFirstName: "Linus"}),
		}},
		&surveyStub{},
		testBuilderConfig, nil,
	)

	result, err := builder.Build(context.Background(), BuildRequest{Key: adminKey()})
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"Ada", "APPROVED"}, {"Grace", "REJECTED"}}, result.Dataset.Rows)
	assert.Equal(t, models.ReportCounters{Approved: 1, Rejected: 1}, result.Counters)
}

func TestBuildPrunesWhitespaceOnlyColumns(t *testing.T) {
	builder := NewReportBuilder(
		&batchStub{attrs: &models.BatchAttributes{CreatedFor: []string{"org-1"}}},
		&workflowStub{entries: []models.WorkflowEntry{{UserID: "u1", CurrentStatus: models.WorkflowApproved}}},
		&profileStub{profiles: map[string]*models.UserProfile{
			"u1": profileOf("u1", "org-1", map[string]string{
				models.FieldFirstName:    "   ",
				models.FieldPrimaryEmail: "ada@example.com",
			}),
		}},
		&surveyStub{},
		testBuilderConfig, nil,
	)

	result, err := builder.Build(context.Background(), BuildRequest{Key: adminKey()})
	require.NoError(t, err)
	assert.Equal(t, []string{"Email", EnrollmentStatusHeader}, result.Dataset.Headers)
	assert.Equal(t, [][]string{{"ada@example.com", "APPROVED"}}, result.Dataset.Rows)
}
