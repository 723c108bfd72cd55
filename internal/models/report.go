package models

import "time"

// ReportStatus captures the lifecycle of an enrollment report request.
type ReportStatus string

const (
	ReportStatusInProgress ReportStatus = "IN_PROGRESS"
	ReportStatusCompleted  ReportStatus = "COMPLETED"
	ReportStatusFailed     ReportStatus = "FAILED"
)

// IsTerminal reports whether no further worker transition is expected.
func (s ReportStatus) IsTerminal() bool {
	return s == ReportStatusCompleted || s == ReportStatusFailed
}

// RequesterKind identifies the persona that asked for a report.
type RequesterKind string

const (
	RequesterMDOAdmin  RequesterKind = "MDO_ADMIN"
	RequesterMDOLeader RequesterKind = "MDO_LEADER"
	RequesterPC        RequesterKind = "PC"
)

// UsesDefaultSchema is true for the personas that get the configured column set
// and the cross-org filter.
func (k RequesterKind) UsesDefaultSchema() bool {
	return k == RequesterMDOAdmin || k == RequesterMDOLeader
}

// ReportKey is the composite identity of a report request.
type ReportKey struct {
	OrgID         string        `db:"org_id" json:"orgId"`
	CourseID      string        `db:"course_id" json:"courseId"`
	BatchID       string        `db:"batch_id" json:"batchId"`
	RequesterKind RequesterKind `db:"requester_kind" json:"requesterKind,omitempty"`
}

// ReportCounters tallies included enrollments by approval outcome.
type ReportCounters struct {
	Pending  int `db:"pending_user_count" json:"pendingUserCount"`
	Approved int `db:"approved_user_count" json:"approvedUserCount"`
	Rejected int `db:"rejected_user_count" json:"rejectedUserCount"`
}

// Total is the number of enrollments counted.
func (c ReportCounters) Total() int {
	return c.Pending + c.Approved + c.Rejected
}

// ReportRequest is the persisted state of one report request.
type ReportRequest struct {
	ReportKey
	ReportCounters
	SurveyID        *string      `db:"survey_id" json:"surveyId,omitempty"`
	CreatedBy       string       `db:"created_by" json:"createdBy"`
	Status          ReportStatus `db:"status" json:"status"`
	DownloadLink    *string      `db:"download_link" json:"downloadLink,omitempty"`
	FileName        *string      `db:"file_name" json:"fileName,omitempty"`
	LastGeneratedOn *time.Time   `db:"last_report_generated_on" json:"lastReportGeneratedOn,omitempty"`
	CreatedAt       time.Time    `db:"created_at" json:"createdAt"`
}

// TerminalResult is what a worker writes when a run finishes.
type TerminalResult struct {
	Status       ReportStatus
	Counters     ReportCounters
	FileName     string
	DownloadLink string
	GeneratedAt  time.Time
}

// FailedResult is the terminal write for a failed run: zero counters and no artifact.
func FailedResult(at time.Time) TerminalResult {
	return TerminalResult{Status: ReportStatusFailed, GeneratedAt: at}
}

// ReportMessage is the queue payload handed from the HTTP tier to workers.
type ReportMessage struct {
	OrgID         string        `json:"orgId"`
	CourseID      string        `json:"courseId"`
	BatchID       string        `json:"batchId"`
	SurveyID      string        `json:"surveyId,omitempty"`
	RequesterKind RequesterKind `json:"requesterKind,omitempty"`
	CreatedBy     string        `json:"createdBy"`
	Status        ReportStatus  `json:"status"`
}

// Key returns the composite key carried by the message.
func (m ReportMessage) Key() ReportKey {
	return ReportKey{OrgID: m.OrgID, CourseID: m.CourseID, BatchID: m.BatchID, RequesterKind: m.RequesterKind}
}
