package models

import "strings"

// Workflow statuses relevant to batch enrollment.
const (
	WorkflowSendForMDOApproval = "SEND_FOR_MDO_APPROVAL"
	WorkflowSendForPCApproval  = "SEND_FOR_PC_APPROVAL"
	WorkflowApproved           = "APPROVED"
	WorkflowRejected           = "REJECTED"
	WorkflowWithdrawn          = "WITHDRAWN"
)

// Enrollment status labels written to the report.
const (
	EnrollmentPendingWithMDO = "PENDING_WITH_MDO"
	EnrollmentPendingWithPC  = "PENDING_WITH_PC"
)

// WorkflowEntry is one user's enrollment approval record for a batch.
type WorkflowEntry struct {
	WfID          string `db:"wf_id"`
	UserID        string `db:"userid"`
	ApplicationID string `db:"applicationid"`
	CurrentStatus string `db:"current_status"`
}

// NormalizeWorkflowStatus upper-cases and trims a stored workflow status.
func NormalizeWorkflowStatus(status string) string {
	return strings.ToUpper(strings.TrimSpace(status))
}

// EnrollmentStatus maps a workflow status to the label shown in reports.
// Matching ignores case.
func EnrollmentStatus(currentStatus string) string {
	currentStatus = NormalizeWorkflowStatus(currentStatus)
	switch currentStatus {
	case WorkflowSendForMDOApproval:
		return EnrollmentPendingWithMDO
	case WorkflowSendForPCApproval:
		return EnrollmentPendingWithPC
	case WorkflowApproved, WorkflowRejected:
		return currentStatus
	default:
		return ""
	}
}
