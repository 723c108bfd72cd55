package service

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/bp-reports-api/internal/models"
	"github.com/noah-isme/bp-reports-api/pkg/export"
	"github.com/noah-isme/bp-reports-api/pkg/jobs"
)

type terminalStub struct {
	writes []models.TerminalResult
	keys   []models.ReportKey
	err    error
}

func (s *terminalStub) RecordTerminal(ctx context.Context, key models.ReportKey, result models.TerminalResult) error {
	if s.err != nil {
		return s.err
	}
	s.keys = append(s.keys, key)
	s.writes = append(s.writes, result)
	return nil
}

type publishCall struct {
	key  models.ReportKey
	data []byte
	ext  string
}

type publisherStub struct {
	calls []publishCall
	err   error
}

func (s *publisherStub) Publish(ctx context.Context, key models.ReportKey, data []byte, ext, contentType string) (*PublishedArtifact, error) {
	s.calls = append(s.calls, publishCall{key: key, data: data, ext: ext})
	if s.err != nil {
		return nil, s.err
	}
	name := FileName(time.UnixMilli(42), key.BatchID, ext)
	return &PublishedArtifact{FileName: name, URL: "https://blob.example.com/bpreports/" + name, Size: int64(len(data))}, nil
}

func fixedClock() func() time.Time {
	at := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	return func() time.Time { return at }
}

func messageJob(t *testing.T, msg models.ReportMessage) jobs.Job {
	t.Helper()
	payload, err := json.Marshal(msg)
	require.NoError(t, err)
	return jobs.Job{ID: "1-0", Payload: payload}
}

func approvedBatchBuilder() *ReportBuilder {
	return NewReportBuilder(
		&batchStub{attrs: &models.BatchAttributes{CreatedFor: []string{"org-1"}}},
		&workflowStub{entries: []models.WorkflowEntry{{UserID: "u1", CurrentStatus: models.WorkflowApproved}}},
		&profileStub{profiles: map[string]*models.UserProfile{
			"u1": profileOf("u1", "org-1", map[string]string{models.FieldFirstName: "Ada"}),
		}},
		&surveyStub{}, testBuilderConfig, nil,
	)
}

func newTestWorker(builder reportBuildRunner, store *terminalStub, publisher *publisherStub) *ReportWorker {
	w := NewReportWorker(store, builder, publisher, export.NewCSVExporter(), NewMetricsService(), nil)
	w.now = fixedClock()
	return w
}

var adminMessage = models.ReportMessage{
	OrgID: "org-1", CourseID: "course-1", BatchID: "batch-1",
	RequesterKind: models.RequesterMDOAdmin, CreatedBy: "user-1", Status: models.ReportStatusInProgress,
}

func TestReportWorkerCompletesRun(t *testing.T) {
	store := &terminalStub{}
	publisher := &publisherStub{}
	w := newTestWorker(approvedBatchBuilder(), store, publisher)

	require.NoError(t, w.Handle(context.Background(), messageJob(t, adminMessage)))

	require.Len(t, publisher.calls, 1)
	assert.Equal(t, "First Name,Enrollment Status\nAda,APPROVED\n", string(publisher.calls[0].data))
	assert.Equal(t, export.FormatCSV, publisher.calls[0].ext)

	require.Len(t, store.writes, 1)
	result := store.writes[0]
	assert.Equal(t, models.ReportStatusCompleted, result.Status)
	assert.Equal(t, models.ReportCounters{Approved: 1}, result.Counters)
	assert.Equal(t, "42_batch-1.csv", result.FileName)
	assert.NotEmpty(t, result.DownloadLink)
	assert.Equal(t, adminMessage.Key(), store.keys[0])
}

func TestReportWorkerEmptyBatchFails(t *testing.T) {
	store := &terminalStub{}
	publisher := &publisherStub{}
	builder := NewReportBuilder(
		&batchStub{attrs: &models.BatchAttributes{}}, &workflowStub{}, &profileStub{}, &surveyStub{}, testBuilderConfig, nil,
	)
	w := newTestWorker(builder, store, publisher)

	require.NoError(t, w.Handle(context.Background(), messageJob(t, adminMessage)))
	assert.Empty(t, publisher.calls)
	require.Len(t, store.writes, 1)
	assert.Equal(t, models.ReportStatusFailed, store.writes[0].Status)
	assert.Equal(t, models.ReportCounters{}, store.writes[0].Counters)
	assert.Empty(t, store.writes[0].FileName)
	assert.Empty(t, store.writes[0].DownloadLink)
}

func TestReportWorkerUploadFailureThenRetrySucceeds(t *testing.T) {
	store := &terminalStub{}
	publisher := &publisherStub{err: errors.New("bucket offline")}
	w := newTestWorker(approvedBatchBuilder(), store, publisher)

	require.NoError(t, w.Handle(context.Background(), messageJob(t, adminMessage)))
	require.Len(t, store.writes, 1)
	assert.Equal(t, models.ReportStatusFailed, store.writes[0].Status)

	publisher.err = nil
	require.NoError(t, w.Handle(context.Background(), messageJob(t, adminMessage)))
	require.Len(t, store.writes, 2)
	assert.Equal(t, models.ReportStatusCompleted, store.writes[1].Status)
}

func TestReportWorkerDuplicateDeliveryIsIdempotent(t *testing.T) {
	store := &terminalStub{}
	publisher := &publisherStub{}
	w := newTestWorker(approvedBatchBuilder(), store, publisher)

	job := messageJob(t, adminMessage)
	require.NoError(t, w.Handle(context.Background(), job))
	require.NoError(t, w.Handle(context.Background(), job))

	require.Len(t, store.writes, 2)
	assert.Equal(t, store.writes[0], store.writes[1])
	require.Len(t, publisher.calls, 2)
	assert.Equal(t, publisher.calls[0].data, publisher.calls[1].data)
}

func TestReportWorkerDropsInvalidMessages(t *testing.T) {
	store := &terminalStub{}
	w := newTestWorker(approvedBatchBuilder(), store, &publisherStub{})

	require.NoError(t, w.Handle(context.Background(), jobs.Job{ID: "1-0", Payload: []byte("{broken")}))
	incomplete := adminMessage
	incomplete.BatchID = ""
	require.NoError(t, w.Handle(context.Background(), messageJob(t, incomplete)))
	assert.Empty(t, store.writes)
}

func TestReportWorkerReturnsTerminalWriteError(t *testing.T) {
	store := &terminalStub{err: errors.New("db down")}
	w := newTestWorker(approvedBatchBuilder(), store, &publisherStub{})

	err := w.Handle(context.Background(), messageJob(t, adminMessage))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "record terminal status")
}
