package minio

import (
	"context"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"

	"github.com/turtacn/occurrence-matrix/internal/domain/matrix"
	"github.com/turtacn/occurrence-matrix/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/occurrence-matrix/pkg/errors"
)

const archiveContentType = "application/zip"

// ObjectInfo describes one archive object in the bucket.
type ObjectInfo struct {
	Key          string
	Size         int64
	ETag         string
	LastModified time.Time
	// Table and Date are parsed from the object name; they are empty when
	// the name is not an archive name.
	Table matrix.TableType
	Date  string
}

// ArchiveStore moves archive zips between the local work directory and the
// bucket.
type ArchiveStore struct {
	client *Client
	logger logging.Logger
}

// NewArchiveStore returns an ArchiveStore backed by client.
func NewArchiveStore(client *Client, logger logging.Logger) *ArchiveStore {
	if logger == nil {
		logger = client.logger
	}
	return &ArchiveStore{client: client, logger: logger.Named("archive_store")}
}

// Bucket returns the default bucket.
func (s *ArchiveStore) Bucket() string { return s.client.Bucket() }

// ArchiveKey returns the object key for an archive file of the given date:
// <prefix>/<YYYY_MM_DD>/<file>.
func (s *ArchiveStore) ArchiveKey(date, fileName string) string {
	return path.Join(s.client.config.Prefix, date, path.Base(filepath.ToSlash(fileName)))
}

func (s *ArchiveStore) bucket(b string) string {
	if b == "" {
		return s.client.Bucket()
	}
	return b
}

// Upload copies localPath to bucket/key.  An empty bucket selects the
// configured one.
func (s *ArchiveStore) Upload(ctx context.Context, localPath, bucket, key string) error {
	if key == "" {
		return errors.InvalidParam("object key is required")
	}
	if _, err := os.Stat(localPath); err != nil {
		if os.IsNotExist(err) {
			return errors.New(errors.ErrCodeMissingArchiveFile, "local archive does not exist").WithDetail(localPath)
		}
		return errors.Wrap(err, errors.ErrCodeStorageError, "stat local archive").WithDetail(localPath)
	}
	bucket = s.bucket(bucket)

	start := time.Now()
	info, err := s.client.api.FPutObject(ctx, bucket, key, localPath, minio.PutObjectOptions{ContentType: archiveContentType})
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeStorageError, "upload failed").WithDetail(bucket + "/" + key)
	}
	s.logger.Info("archive uploaded",
		logging.String("bucket", bucket),
		logging.String("key", key),
		logging.Int64("bytes", info.Size),
		logging.Duration("duration", time.Since(start)))
	return nil
}

// Download copies bucket/key to localPath and returns localPath.  When
// overwrite is false and localPath already exists, the local copy is
// returned without contacting the bucket.
func (s *ArchiveStore) Download(ctx context.Context, bucket, key, localPath string, overwrite bool) (string, error) {
	if key == "" {
		return "", errors.InvalidParam("object key is required")
	}
	if !overwrite {
		if fi, err := os.Stat(localPath); err == nil && !fi.IsDir() {
			s.logger.Debug("reusing local archive", logging.String(logging.FieldPath, localPath))
			return localPath, nil
		}
	}
	if err := os.MkdirAll(filepath.Dir(localPath), 0o755); err != nil {
		return "", errors.Wrap(err, errors.ErrCodeStorageError, "create download directory")
	}
	bucket = s.bucket(bucket)

	if err := s.client.api.FGetObject(ctx, bucket, key, localPath, minio.GetObjectOptions{}); err != nil {
		if isNoSuchKey(err) {
			return "", errors.New(errors.ErrCodeMissingArchiveFile, "archive not found in bucket").
				WithDetail(bucket + "/" + key)
		}
		return "", errors.Wrap(err, errors.ErrCodeStorageError, "download failed").WithDetail(bucket + "/" + key)
	}
	s.logger.Info("archive downloaded",
		logging.String("bucket", bucket),
		logging.String("key", key),
		logging.String(logging.FieldPath, localPath))
	return localPath, nil
}

// Exists reports whether bucket/key is present.
func (s *ArchiveStore) Exists(ctx context.Context, bucket, key string) (bool, error) {
	bucket = s.bucket(bucket)
	if _, err := s.client.api.StatObject(ctx, bucket, key, minio.StatObjectOptions{}); err != nil {
		if isNoSuchKey(err) {
			return false, nil
		}
		return false, errors.Wrap(err, errors.ErrCodeStorageError, "stat failed").WithDetail(bucket + "/" + key)
	}
	return true, nil
}

// List returns the objects under prefix, sorted by key.
func (s *ArchiveStore) List(ctx context.Context, bucket, prefix string) ([]ObjectInfo, error) {
	bucket = s.bucket(bucket)
	var out []ObjectInfo
	for obj := range s.client.api.ListObjects(ctx, bucket, minio.ListObjectsOptions{Prefix: prefix, Recursive: true}) {
		if obj.Err != nil {
			return nil, errors.Wrap(obj.Err, errors.ErrCodeStorageError, "list failed").WithDetail(bucket + "/" + prefix)
		}
		info := ObjectInfo{Key: obj.Key, Size: obj.Size, ETag: obj.ETag, LastModified: obj.LastModified}
		if strings.HasSuffix(obj.Key, ".zip") {
			if t, date, err := matrix.ParseFileName(obj.Key); err == nil {
				info.Table, info.Date = t, date
			}
		}
		out = append(out, info)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

// Dates returns the distinct date stamps for which an archive of table t is
// stored, oldest first.
func (s *ArchiveStore) Dates(ctx context.Context, t matrix.TableType) ([]string, error) {
	objs, err := s.List(ctx, "", s.client.config.Prefix)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]struct{})
	var dates []string
	for _, o := range objs {
		if o.Table != t {
			continue
		}
		if _, ok := seen[o.Date]; ok {
			continue
		}
		seen[o.Date] = struct{}{}
		dates = append(dates, o.Date)
	}
	sort.Strings(dates)
	return dates, nil
}

// Delete removes bucket/key.
func (s *ArchiveStore) Delete(ctx context.Context, bucket, key string) error {
	bucket = s.bucket(bucket)
	if err := s.client.api.RemoveObject(ctx, bucket, key, minio.RemoveObjectOptions{}); err != nil {
		return errors.Wrap(err, errors.ErrCodeStorageError, "delete failed").WithDetail(bucket + "/" + key)
	}
	return nil
}

func isNoSuchKey(err error) bool {
	return minio.ToErrorResponse(err).Code == "NoSuchKey"
}
