package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/noah-isme/bp-reports-api/internal/models"
	"github.com/noah-isme/bp-reports-api/internal/repository"
	"github.com/noah-isme/bp-reports-api/pkg/config"
	"github.com/noah-isme/bp-reports-api/pkg/export"
)

// EnrollmentStatusHeader is the fixed column that follows the profile columns.
const EnrollmentStatusHeader = "Enrollment Status"

// EmptyCell is written for every missing value.
const EmptyCell = "N/A"

// Fatal build outcomes.
var (
	ErrBatchNotFound     = errors.New("batch not found")
	ErrNoWorkflowEntries = errors.New("no workflow entries for batch")
)

type batchReader interface {
	GetAttributes(ctx context.Context, courseID, batchID string) (*models.BatchAttributes, error)
}

type workflowReader interface {
	ListByBatch(ctx context.Context, batchID string) ([]models.WorkflowEntry, error)
}

type profileReader interface {
	GetProfile(ctx context.Context, userID string) (*models.UserProfile, error)
}

type surveyReader interface {
	Latest(ctx context.Context, formID string) (*models.SurveyResponse, error)
	ByUser(ctx context.Context, formID, userID string) ([]models.SurveyResponse, error)
}

// SchemaKind selects where the profile columns come from.
type SchemaKind int

const (
	// SchemaDefault uses the configured header mapping.
	SchemaDefault SchemaKind = iota
	// SchemaMandatory uses the batch's mandatory profile fields.
	SchemaMandatory
)

// BuildPolicy parameterises one report run.
type BuildPolicy struct {
	Schema              SchemaKind
	ApplyCrossOrgFilter bool
}

// PolicyFor returns the policy used for a requester kind. MDO personas get the
// default schema and only see users from their own org; everyone else gets the
// batch schema with no org filter.
func PolicyFor(kind models.RequesterKind) BuildPolicy {
	if kind.UsesDefaultSchema() {
		return BuildPolicy{Schema: SchemaDefault, ApplyCrossOrgFilter: true}
	}
	return BuildPolicy{Schema: SchemaMandatory}
}

// BuildRequest is the input of one report run.
type BuildRequest struct {
	Key      models.ReportKey
	SurveyID string
}

// BuildResult is the assembled table plus the counters of the included users.
type BuildResult struct {
	Dataset  export.Dataset
	Counters models.ReportCounters
}

// ReportBuilderConfig carries the configured column defaults.
type ReportBuilderConfig struct {
	DefaultHeaders     []config.HeaderField
	ExcludedSurveyKeys []string
}

type column struct {
	key         string
	displayName string
	hasData     bool
}

type reportSchema struct {
	profile    []column
	surveyKeys []string
}

type rowOutcome int

const (
	rowOK rowOutcome = iota
	rowSkip
	rowFatal
)

type reportRow struct {
	userID           string
	profile          *models.UserProfile
	enrollmentStatus string
	answers          map[string]string
}

type rowResult struct {
	outcome rowOutcome
	row     reportRow
	reason  string
	err     error
}

func skipRow(reason string, err error) rowResult {
	return rowResult{outcome: rowSkip, reason: reason, err: err}
}

// ReportBuilder joins workflow, profile and survey data into a report table.
type ReportBuilder struct {
	batches   batchReader
	workflows workflowReader
	profiles  profileReader
	surveys   surveyReader
	cfg       ReportBuilderConfig
	excluded  map[string]struct{}
	logger    *zap.Logger
}

// NewReportBuilder constructs the builder.
func NewReportBuilder(batches batchReader, workflows workflowReader, profiles profileReader, surveys surveyReader, cfg ReportBuilderConfig, logger *zap.Logger) *ReportBuilder {
	if logger == nil {
		logger = zap.NewNop()
	}
	excluded := make(map[string]struct{}, len(cfg.ExcludedSurveyKeys))
	for _, key := range cfg.ExcludedSurveyKeys {
		excluded[key] = struct{}{}
	}
	return &ReportBuilder{
		batches:   batches,
		workflows: workflows,
		profiles:  profiles,
		surveys:   surveys,
		cfg:       cfg,
		excluded:  excluded,
		logger:    logger,
	}
}

// Build runs the pipeline for one request. Any returned error is fatal for the run.
func (b *ReportBuilder) Build(ctx context.Context, req BuildRequest) (*BuildResult, error) {
	key := req.Key
	policy := PolicyFor(key.RequesterKind)

	attrs, err := b.batches.GetAttributes(ctx, key.CourseID, key.BatchID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrBatchNotFound
		}
		return nil, fmt.Errorf("load batch attributes: %w", err)
	}

	entries, err := b.workflows.ListByBatch(ctx, key.BatchID)
	if err != nil {
		return nil, fmt.Errorf("load workflow entries: %w", err)
	}
	if len(entries) == 0 {
		return nil, ErrNoWorkflowEntries
	}

	schema := reportSchema{profile: b.profileColumns(policy, attrs)}
	if req.SurveyID != "" {
		latest, err := b.surveys.Latest(ctx, req.SurveyID)
		if err != nil {
			return nil, fmt.Errorf("discover survey schema: %w", err)
		}
		schema.surveyKeys = b.surveyColumns(schema.profile, latest.Questions())
	}

	contentOrg := attrs.ContentOrg()
	var counters models.ReportCounters
	rows := make([]reportRow, 0, len(entries))
	seen := make(map[string]struct{}, len(entries))

	for _, entry := range entries {
		entry.CurrentStatus = models.NormalizeWorkflowStatus(entry.CurrentStatus)
		if _, dup := seen[entry.UserID]; dup {
			continue
		}
		result := b.buildRow(ctx, entry, key.OrgID, contentOrg, policy, req.SurveyID)
		switch result.outcome {
		case rowFatal:
			return nil, result.err
		case rowSkip:
			if result.err != nil {
				b.logger.Warn("skipping user", zap.String("user_id", entry.UserID), zap.String("reason", result.reason), zap.Error(result.err))
			}
			continue
		}
		seen[entry.UserID] = struct{}{}
		countStatus(&counters, entry.CurrentStatus)
		rows = append(rows, result.row)
	}

	markAvailable(schema.profile, rows)
	return &BuildResult{Dataset: composeDataset(schema, rows), Counters: counters}, nil
}

func (b *ReportBuilder) buildRow(ctx context.Context, entry models.WorkflowEntry, requesterOrg, contentOrg string, policy BuildPolicy, surveyID string) rowResult {
	if entry.CurrentStatus == models.WorkflowWithdrawn {
		return skipRow("withdrawn", nil)
	}
	if strings.TrimSpace(entry.UserID) == "" {
		return skipRow("blank user id", nil)
	}

	profile, err := b.profiles.GetProfile(ctx, entry.UserID)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return rowResult{outcome: rowFatal, err: ctxErr}
		}
		if errors.Is(err, sql.ErrNoRows) {
			return skipRow("user not found", nil)
		}
		if errors.Is(err, repository.ErrMalformedProfile) {
			return skipRow("malformed profile", err)
		}
		return skipRow("profile lookup failed", err)
	}
	if profile == nil {
		return skipRow("user not found", nil)
	}

	if policy.ApplyCrossOrgFilter && requesterOrg != contentOrg && requesterOrg != profile.RootOrgID {
		return skipRow("outside requester org", nil)
	}

	answers := map[string]string{}
	if surveyID != "" {
		responses, err := b.surveys.ByUser(ctx, surveyID, entry.UserID)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return rowResult{outcome: rowFatal, err: ctxErr}
			}
			return skipRow("survey lookup failed", err)
		}
		if len(responses) > 0 {
			answers = responses[0].AnswerMap()
		}
	}

	return rowResult{outcome: rowOK, row: reportRow{
		userID:           entry.UserID,
		profile:          profile,
		enrollmentStatus: models.EnrollmentStatus(entry.CurrentStatus),
		answers:          answers,
	}}
}

func (b *ReportBuilder) profileColumns(policy BuildPolicy, attrs *models.BatchAttributes) []column {
	columns := make([]column, 0)
	seen := map[string]struct{}{}
	add := func(key, display string) {
		if key == "" {
			return
		}
		if _, ok := seen[key]; ok {
			return
		}
		if display == "" {
			display = key
		}
		seen[key] = struct{}{}
		columns = append(columns, column{key: key, displayName: display})
	}

	if policy.Schema == SchemaDefault {
		for _, h := range b.cfg.DefaultHeaders {
			add(h.Key, h.DisplayName)
		}
		return columns
	}
	for _, f := range attrs.MandatoryProfileFields {
		add(fieldKey(f.Field), f.DisplayName)
	}
	return columns
}

func (b *ReportBuilder) surveyColumns(profile []column, questions []string) []string {
	taken := make(map[string]struct{}, len(profile))
	for _, col := range profile {
		taken[col.key] = struct{}{}
	}
	keys := make([]string, 0, len(questions))
	for _, q := range questions {
		if _, skip := b.excluded[q]; skip {
			continue
		}
		if _, dup := taken[q]; dup {
			continue
		}
		taken[q] = struct{}{}
		keys = append(keys, q)
	}
	return keys
}

// fieldKey maps a dotted profile path to the flattened profile key.
func fieldKey(path string) string {
	path = strings.TrimSpace(path)
	if idx := strings.LastIndex(path, "."); idx >= 0 {
		path = path[idx+1:]
	}
	if path == "firstname" {
		return models.FieldFirstName
	}
	return path
}

func countStatus(c *models.ReportCounters, status string) {
	switch status {
	case models.WorkflowApproved:
		c.Approved++
	case models.WorkflowRejected:
		c.Rejected++
	default:
		c.Pending++
	}
}

func markAvailable(columns []column, rows []reportRow) {
	for i := range columns {
		for _, row := range rows {
			if strings.TrimSpace(row.profile.Value(columns[i].key)) != "" {
				columns[i].hasData = true
				break
			}
		}
	}
}

func composeDataset(schema reportSchema, rows []reportRow) export.Dataset {
	visible := make([]column, 0, len(schema.profile))
	for _, col := range schema.profile {
		if col.hasData {
			visible = append(visible, col)
		}
	}

	headers := make([]string, 0, len(visible)+1+len(schema.surveyKeys))
	for _, col := range visible {
		headers = append(headers, col.displayName)
	}
	headers = append(headers, EnrollmentStatusHeader)
	headers = append(headers, schema.surveyKeys...)

	data := make([][]string, 0, len(rows))
	for _, row := range rows {
		cells := make([]string, 0, len(headers))
		for _, col := range visible {
			cells = append(cells, cell(row.profile.Value(col.key)))
		}
		cells = append(cells, cell(row.enrollmentStatus))
		for _, q := range schema.surveyKeys {
			cells = append(cells, cell(row.answers[q]))
		}
		data = append(data, cells)
	}
	return export.Dataset{Headers: headers, Rows: data}
}

func cell(v string) string {
	if strings.TrimSpace(v) == "" {
		return EmptyCell
	}
	return v
}
