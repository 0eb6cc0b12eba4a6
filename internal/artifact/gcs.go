package artifact

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"cloud.google.com/go/storage"
)

// GCSStore keeps artifacts as objects in a Cloud Storage bucket.
type GCSStore struct {
	client *storage.Client
	bucket string
	prefix string
}

// NewGCSStore opens a storage client using Application Default Credentials.
func NewGCSStore(ctx context.Context, bucket, prefix string) (*GCSStore, error) {
	if bucket == "" {
		return nil, fmt.Errorf("NewGCSStore: bucket is required")
	}
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("NewGCSStore: create storage client: %w", err)
	}
	return NewGCSStoreWithClient(client, bucket, prefix), nil
}

// NewGCSStoreWithClient wraps an existing client.
func NewGCSStoreWithClient(client *storage.Client, bucket, prefix string) *GCSStore {
	return &GCSStore{client: client, bucket: bucket, prefix: strings.Trim(prefix, "/")}
}

// Close releases the storage client.
func (s *GCSStore) Close() error {
	return s.client.Close()
}

// Save uploads r and returns the object name.
func (s *GCSStore) Save(ctx context.Context, filename string, r io.Reader) (string, error) {
	name, err := uniqueName(filename)
	if err != nil {
		return "", fmt.Errorf("GCSStore.Save: generate object id: %w", err)
	}
	objectName := name
	if s.prefix != "" {
		objectName = s.prefix + "/" + name
	}
	if err := s.Upload(ctx, objectName, r); err != nil {
		return "", err
	}
	return objectName, nil
}

// Upload writes r to objectName in the store's bucket.
func (s *GCSStore) Upload(ctx context.Context, objectName string, r io.Reader) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	w := s.client.Bucket(s.bucket).Object(objectName).NewWriter(ctx)
	if _, err := io.Copy(w, r); err != nil {
		_ = w.Close()
		return fmt.Errorf("GCSStore.Upload: copy to GCS writer: %w", err)
	}
	// Close to finalize the upload
	if err := w.Close(); err != nil {
		return fmt.Errorf("GCSStore.Upload: finalize upload: %w", err)
	}
	return nil
}

// ReadBytes downloads an object by name or gs:// URI.
func (s *GCSStore) ReadBytes(ctx context.Context, objectPath string) ([]byte, error) {
	bucket, object, err := s.locate(objectPath)
	if err != nil {
		return nil, err
	}

	rc, err := s.client.Bucket(bucket).Object(object).NewReader(ctx)
	if err != nil {
		return nil, fmt.Errorf("GCSStore.ReadBytes: reading object %s/%s: %w", bucket, object, err)
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("GCSStore.ReadBytes: reading bytes: %w", err)
	}
	return data, nil
}

// Delete removes an object; a missing object is not an error.
func (s *GCSStore) Delete(ctx context.Context, objectPath string) error {
	if objectPath == "" {
		return nil
	}
	bucket, object, err := s.locate(objectPath)
	if err != nil {
		return err
	}
	err = s.client.Bucket(bucket).Object(object).Delete(ctx)
	if err != nil && !errors.Is(err, storage.ErrObjectNotExist) {
		return fmt.Errorf("GCSStore.Delete: %s/%s: %w", bucket, object, err)
	}
	return nil
}

// URL returns the gs:// URI of the object.
func (s *GCSStore) URL(objectPath string) string {
	if strings.HasPrefix(objectPath, "gs://") {
		return objectPath
	}
	return "gs://" + s.bucket + "/" + objectPath
}

func (s *GCSStore) locate(objectPath string) (bucket, object string, err error) {
	if strings.HasPrefix(objectPath, "gs://") {
		return ParseGCSURI(objectPath)
	}
	return s.bucket, objectPath, nil
}

// ParseGCSURI splits "gs://bucket/path/to/file.pdf" into bucket and object.
func ParseGCSURI(gcsURI string) (bucket, object string, err error) {
	if !strings.HasPrefix(gcsURI, "gs://") {
		return "", "", fmt.Errorf("invalid GCS URI: %s", gcsURI)
	}
	parts := strings.SplitN(strings.TrimPrefix(gcsURI, "gs://"), "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("invalid GCS URI (no object path): %s", gcsURI)
	}
	return parts[0], parts[1], nil
}

// FilenameFromGCSURI extracts the filename from a GCS URI.
// e.g., "gs://bucket/folder/file.pdf" → "file.pdf"
func FilenameFromGCSURI(uri string) string {
	trimmed := strings.TrimPrefix(uri, "gs://")
	parts := strings.SplitN(trimmed, "/", 2)
	if len(parts) < 2 {
		return trimmed
	}
	return path.Base(parts[1])
}
