package service

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/bp-reports-api/internal/models"
	"github.com/noah-isme/bp-reports-api/pkg/storage"
)

// scratchPrefix is the top-level folder of every local artifact copy.
const scratchPrefix = "bpreports"

// ErrInvalidArtifactPath marks a key segment or file name that cannot be used in a path.
var ErrInvalidArtifactPath = errors.New("invalid artifact path")

// PublishedArtifact describes an uploaded report file.
type PublishedArtifact struct {
	FileName  string
	ObjectKey string
	URL       string
	Size      int64
}

// ArtifactPublisher stages report files in a per-run scratch directory and
// moves them to the object store.
type ArtifactPublisher struct {
	store     storage.Store
	scratch   *storage.Scratch
	container string
	now       func() time.Time
	logger    *zap.Logger
}

// NewArtifactPublisher constructs a publisher writing under container.
func NewArtifactPublisher(store storage.Store, scratch *storage.Scratch, container string, logger *zap.Logger) *ArtifactPublisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ArtifactPublisher{
		store:     store,
		scratch:   scratch,
		container: strings.Trim(container, "/"),
		now:       time.Now,
		logger:    logger,
	}
}

// FileName is "<epochMillis>_<batchId>.<ext>".
func FileName(at time.Time, batchID, ext string) string {
	return fmt.Sprintf("%d_%s.%s", at.UnixMilli(), batchID, ext)
}

// ObjectKey is "<container>/<orgId>/<courseId>/<batchId>/<fileName>".
func (p *ArtifactPublisher) ObjectKey(key models.ReportKey, fileName string) (string, error) {
	for _, segment := range []string{key.OrgID, key.CourseID, key.BatchID, fileName} {
		if !validSegment(segment) {
			return "", fmt.Errorf("%w: %q", ErrInvalidArtifactPath, segment)
		}
	}
	return path.Join(p.container, key.OrgID, key.CourseID, key.BatchID, fileName), nil
}

// Publish writes data to scratch, uploads it and returns where it landed. The
// scratch copy is removed on every path.
func (p *ArtifactPublisher) Publish(ctx context.Context, key models.ReportKey, data []byte, ext, contentType string) (*PublishedArtifact, error) {
	fileName := FileName(p.now(), key.BatchID, ext)
	objectKey, err := p.ObjectKey(key, fileName)
	if err != nil {
		return nil, err
	}

	run, err := p.scratch.NewRun()
	if err != nil {
		return nil, err
	}
	defer p.cleanup(run)

	local := path.Join(scratchPrefix, key.OrgID, key.CourseID, fileName)
	if _, err := run.Save(local, data); err != nil {
		return nil, err
	}
	staged, err := run.Read(local)
	if err != nil {
		return nil, err
	}

	size, err := p.store.PutObject(ctx, objectKey, staged, contentType)
	if err != nil {
		return nil, fmt.Errorf("upload %s: %w", objectKey, err)
	}
	return &PublishedArtifact{FileName: fileName, ObjectKey: objectKey, URL: p.store.URL(objectKey), Size: size}, nil
}

// Fetch downloads a published file through a scratch copy.
func (p *ArtifactPublisher) Fetch(ctx context.Context, key models.ReportKey, fileName string) ([]byte, error) {
	objectKey, err := p.ObjectKey(key, fileName)
	if err != nil {
		return nil, err
	}

	data, err := p.store.GetObject(ctx, objectKey)
	if err != nil {
		return nil, err
	}

	run, err := p.scratch.NewRun()
	if err != nil {
		return nil, err
	}
	defer p.cleanup(run)

	if _, err := run.Save(fileName, data); err != nil {
		return nil, err
	}
	return run.Read(fileName)
}

func (p *ArtifactPublisher) cleanup(run *storage.RunDir) {
	if err := run.Cleanup(); err != nil {
		p.logger.Warn("scratch cleanup failed", zap.String("dir", run.Path()), zap.Error(err))
	}
}

func validSegment(s string) bool {
	if s == "" || s == "." || s == ".." {
		return false
	}
	return !strings.ContainsAny(s, `/\`)
}
