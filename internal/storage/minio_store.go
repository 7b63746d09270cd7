package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/pengKiina/trainwatch/internal/domain"
)

var errObjectNotFound = errors.New("object not found")

// objectStore is the slice of the MinIO client the store needs; tests fake it.
type objectStore interface {
	BucketExists(ctx context.Context, bucket string) (bool, error)
	ReadObject(ctx context.Context, bucket, object string) ([]byte, error)
	WriteObject(ctx context.Context, bucket, object string, payload []byte) error
}

type minioObjectStore struct {
	client *minio.Client
}

func newMinioObjectStore(endpoint, accessKey, secretKey string, useSSL bool) (objectStore, error) {
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}
	return &minioObjectStore{client: client}, nil
}

func (c *minioObjectStore) BucketExists(ctx context.Context, bucket string) (bool, error) {
	return c.client.BucketExists(ctx, bucket)
}

func (c *minioObjectStore) ReadObject(ctx context.Context, bucket, object string) ([]byte, error) {
	obj, err := c.client.GetObject(ctx, bucket, object, minio.GetObjectOptions{})
	if err != nil {
		if isNotFound(err) {
			return nil, errObjectNotFound
		}
		return nil, err
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		if isNotFound(err) {
			return nil, errObjectNotFound
		}
		return nil, err
	}
	return data, nil
}

func (c *minioObjectStore) WriteObject(ctx context.Context, bucket, object string, payload []byte) error {
	_, err := c.client.PutObject(
		ctx,
		bucket,
		object,
		bytes.NewReader(payload),
		int64(len(payload)),
		minio.PutObjectOptions{ContentType: "application/x-ndjson"},
	)
	return err
}

func isNotFound(err error) bool {
	if err == nil {
		return false
	}
	resp := minio.ToErrorResponse(err)
	if resp.Code == "NoSuchKey" || resp.Code == "NoSuchObject" {
		return true
	}
	return resp.StatusCode == http.StatusNotFound
}

// MinIOOptions configures a MinIO-backed progress archive.
type MinIOOptions struct {
	Endpoint  string
	Bucket    string
	AccessKey string
	SecretKey string
	UseSSL    bool
	Prefix    string

	client objectStore
}

// MinIOStore archives progress records into object storage, one dated
// NDJSON object per day, appended via read-modify-write.
type MinIOStore struct {
	client objectStore
	bucket string
	prefix string
	now    func() time.Time

	mu          sync.Mutex
	objectLocks map[string]*sync.Mutex
}

// NewMinIOStore creates a MinIO-backed Store.
func NewMinIOStore(opts MinIOOptions) (*MinIOStore, error) {
	bucket := strings.TrimSpace(opts.Bucket)
	if bucket == "" {
		return nil, errors.New("minio bucket is required")
	}
	prefix := strings.Trim(strings.TrimSpace(opts.Prefix), "/")
	if prefix == "" {
		prefix = "progress"
	}

	client := opts.client
	if client == nil {
		endpoint := strings.TrimSpace(opts.Endpoint)
		accessKey := strings.TrimSpace(opts.AccessKey)
		secretKey := strings.TrimSpace(opts.SecretKey)
		if endpoint == "" {
			return nil, errors.New("minio endpoint is required")
		}
		if accessKey == "" {
			return nil, errors.New("minio access key is required")
		}
		if secretKey == "" {
			return nil, errors.New("minio secret key is required")
		}
		c, err := newMinioObjectStore(endpoint, accessKey, secretKey, opts.UseSSL)
		if err != nil {
			return nil, err
		}
		client = c
	}

	return &MinIOStore{
		client:      client,
		bucket:      bucket,
		prefix:      prefix,
		now:         time.Now,
		objectLocks: make(map[string]*sync.Mutex),
	}, nil
}

// WithClock overrides the archive-dating clock, for deterministic tests.
func (s *MinIOStore) WithClock(now func() time.Time) *MinIOStore {
	if now != nil {
		s.now = now
	}
	return s
}

// Ping verifies the bucket exists and is reachable.
func (s *MinIOStore) Ping(ctx context.Context) error {
	ok, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("check bucket %q: %w", s.bucket, err)
	}
	if !ok {
		return fmt.Errorf("bucket %q does not exist", s.bucket)
	}
	return nil
}

// SaveRecords appends the records to today's archive object.
func (s *MinIOStore) SaveRecords(ctx context.Context, records []domain.Record) error {
	if len(records) == 0 {
		return nil
	}

	var buf bytes.Buffer
	for _, rec := range records {
		data, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("marshal progress record: %w", err)
		}
		buf.Write(data)
		buf.WriteByte('\n')
	}

	object := path.Join(s.prefix, s.now().UTC().Format(dateLayout), archiveName)
	return s.appendToObject(ctx, object, buf.Bytes())
}

func (s *MinIOStore) appendToObject(ctx context.Context, object string, payload []byte) error {
	lock := s.lockFor(object)
	lock.Lock()
	defer lock.Unlock()

	existing, err := s.client.ReadObject(ctx, s.bucket, object)
	if err != nil && !errors.Is(err, errObjectNotFound) {
		return fmt.Errorf("read archive object: %w", err)
	}

	combined := make([]byte, 0, len(existing)+len(payload))
	combined = append(combined, existing...)
	combined = append(combined, payload...)

	if err := s.client.WriteObject(ctx, s.bucket, object, combined); err != nil {
		return fmt.Errorf("write archive object: %w", err)
	}
	return nil
}

func (s *MinIOStore) lockFor(object string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	lock, ok := s.objectLocks[object]
	if !ok {
		lock = &sync.Mutex{}
		s.objectLocks[object] = lock
	}
	return lock
}
