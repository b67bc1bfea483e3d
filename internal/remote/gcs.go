package remote

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"cloud.google.com/go/storage"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	apperrors "github.com/dvloznov/sabadell-dashboard/internal/errors"
)

// GCSStore is the Store implementation backed by Google Cloud Storage.
// Folders are gs://bucket/prefix URIs and file IDs are full object URIs.
// It uses Application Default Credentials unless options say otherwise.
type GCSStore struct {
	client *storage.Client
}

// NewGCSStore creates a storage client.
func NewGCSStore(ctx context.Context, opts ...option.ClientOption) (*GCSStore, error) {
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("NewGCSStore: creating storage client: %w", err)
	}
	return &GCSStore{client: client}, nil
}

// Close releases the storage client.
func (s *GCSStore) Close() error {
	return s.client.Close()
}

// ListFiles implements Store. Only objects directly under the prefix are
// returned; sub-prefixes and the prefix placeholder object are skipped.
func (s *GCSStore) ListFiles(ctx context.Context, folder string) ([]FileDescriptor, error) {
	bucket, prefix, err := ParseGCSURI(folder)
	if err != nil {
		return nil, fmt.Errorf("GCSStore.ListFiles: %w", err)
	}
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}

	it := s.client.Bucket(bucket).Objects(ctx, &storage.Query{Prefix: prefix, Delimiter: "/"})

	var files []FileDescriptor
	for {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, apperrors.Mark(fmt.Errorf("GCSStore.ListFiles: listing %q: %w", folder, err), apperrors.ErrNetwork)
		}
		if attrs.Prefix != "" || attrs.Name == prefix {
			continue
		}
		files = append(files, FileDescriptor{
			ID:           fmt.Sprintf("gs://%s/%s", attrs.Bucket, attrs.Name),
			Name:         path.Base(attrs.Name),
			CreatedTime:  attrs.Created,
			ModifiedTime: attrs.Updated,
			Size:         attrs.Size,
		})
	}
	return files, nil
}

// Open implements Store.
func (s *GCSStore) Open(ctx context.Context, fileID string) (io.ReadCloser, int64, error) {
	bucket, object, err := ParseGCSURI(fileID)
	if err != nil {
		return nil, 0, fmt.Errorf("GCSStore.Open: %w", err)
	}
	if object == "" {
		return nil, 0, fmt.Errorf("GCSStore.Open: invalid GCS URI (no object path): %s", fileID)
	}

	r, err := s.client.Bucket(bucket).Object(object).NewReader(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return nil, 0, apperrors.Mark(fmt.Errorf("GCSStore.Open: %s: %w", fileID, err), apperrors.ErrNoRemoteFile)
		}
		return nil, 0, apperrors.Mark(fmt.Errorf("GCSStore.Open: opening reader: %w", err), apperrors.ErrNetwork)
	}
	return r, r.Attrs.Size, nil
}

// ParseGCSURI splits gs://bucket/path into bucket and path. The path may be
// empty for a bucket root.
func ParseGCSURI(uri string) (bucket, objectPath string, err error) {
	if !strings.HasPrefix(uri, "gs://") {
		return "", "", fmt.Errorf("invalid GCS URI: %s", uri)
	}

	trimmed := strings.TrimPrefix(uri, "gs://")
	parts := strings.SplitN(trimmed, "/", 2)
	if parts[0] == "" {
		return "", "", fmt.Errorf("invalid GCS URI (no bucket): %s", uri)
	}
	if len(parts) == 1 {
		return parts[0], "", nil
	}
	return parts[0], parts[1], nil
}

var _ Store = (*GCSStore)(nil)
