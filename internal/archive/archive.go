package archive

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/septivank/battery-drain-worker/internal/analysis"
	"github.com/septivank/battery-drain-worker/internal/export"
	"github.com/septivank/battery-drain-worker/tools/timeparser"
	"go.uber.org/zap"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// ObjectPutter is the subset of the object storage client used for archiving
type ObjectPutter interface {
	PutObject(ctx context.Context, bucket, object string, reader io.Reader, size int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
}

// Config holds object storage settings
type Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

// NewMinioClient connects to an S3 compatible store and makes sure the bucket exists
func NewMinioClient(ctx context.Context, cfg Config) (*minio.Client, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("[ARCHIVE] failed to create client: %w", err)
	}

	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("[ARCHIVE] failed to check bucket %s: %w", cfg.Bucket, err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("[ARCHIVE] failed to create bucket %s: %w", cfg.Bucket, err)
		}
	}

	return client, nil
}

// Archiver stores the workbook of every published analysis run
type Archiver struct {
	store  ObjectPutter
	bucket string
	logger *zap.Logger
}

// NewArchiver creates an archiver writing into bucket
func NewArchiver(store ObjectPutter, bucket string, logger *zap.Logger) *Archiver {
	return &Archiver{
		store:  store,
		bucket: bucket,
		logger: logger,
	}
}

// ObjectName returns the key a run's workbook is stored under
func ObjectName(runID string, completedAt time.Time) string {
	return fmt.Sprintf("analysis/%s/%s.xlsx", timeparser.DateStamp(completedAt), runID)
}

// Archive uploads the analysis workbook of one run. Empty results are skipped.
func (a *Archiver) Archive(ctx context.Context, runID string, completedAt time.Time, result analysis.Result) error {
	body, err := export.AnalysisWorkbook(result)
	if err != nil {
		if errors.Is(err, export.ErrNoData) {
			a.logger.Debug("nothing to archive", zap.String("run_id", runID))
			return nil
		}
		return err
	}

	name := ObjectName(runID, completedAt)
	_, err = a.store.PutObject(ctx, a.bucket, name, bytes.NewReader(body), int64(len(body)),
		minio.PutObjectOptions{ContentType: xlsxContentType})
	if err != nil {
		return fmt.Errorf("[ARCHIVE] failed to upload %s: %w", name, err)
	}

	a.logger.Info("analysis archived",
		zap.String("run_id", runID),
		zap.String("bucket", a.bucket),
		zap.String("object", name),
		zap.Int("size", len(body)))
	return nil
}
