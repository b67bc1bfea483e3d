package remote

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"google.golang.org/api/drive/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	apperrors "github.com/dvloznov/sabadell-dashboard/internal/errors"
)

const driveListFields = "nextPageToken, files(id, name, createdTime, modifiedTime, size)"

// DriveStore is the Store implementation backed by the Drive v3 API.
type DriveStore struct {
	svc *drive.Service
}

// NewDriveStore creates a Drive client. Pass option.WithTokenSource with the
// resolved token in production; tests pass an endpoint and HTTP client.
func NewDriveStore(ctx context.Context, opts ...option.ClientOption) (*DriveStore, error) {
	svc, err := drive.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("NewDriveStore: creating drive service: %w", err)
	}
	return &DriveStore{svc: svc}, nil
}

// ListFiles implements Store. Every result page is read.
func (s *DriveStore) ListFiles(ctx context.Context, folder string) ([]FileDescriptor, error) {
	q := fmt.Sprintf("'%s' in parents and trashed = false", escapeDriveQuery(folder))

	var files []FileDescriptor
	err := s.svc.Files.List().
		Q(q).
		Fields(driveListFields).
		Context(ctx).
		Pages(ctx, func(page *drive.FileList) error {
			for _, f := range page.Files {
				fd, err := descriptorFromDrive(f)
				if err != nil {
					return err
				}
				files = append(files, fd)
			}
			return nil
		})
	if err != nil {
		return nil, classifyDriveError(fmt.Errorf("DriveStore.ListFiles: folder %q: %w", folder, err))
	}
	return files, nil
}

// Open implements Store.
func (s *DriveStore) Open(ctx context.Context, fileID string) (io.ReadCloser, int64, error) {
	resp, err := s.svc.Files.Get(fileID).Context(ctx).Download()
	if err != nil {
		return nil, 0, classifyDriveError(fmt.Errorf("DriveStore.Open: file %q: %w", fileID, err))
	}
	return resp.Body, resp.ContentLength, nil
}

func descriptorFromDrive(f *drive.File) (FileDescriptor, error) {
	created, err := parseDriveTime(f.CreatedTime)
	if err != nil {
		return FileDescriptor{}, fmt.Errorf("file %q createdTime: %w", f.Id, err)
	}
	modified, err := parseDriveTime(f.ModifiedTime)
	if err != nil {
		return FileDescriptor{}, fmt.Errorf("file %q modifiedTime: %w", f.Id, err)
	}
	return FileDescriptor{
		ID:           f.Id,
		Name:         f.Name,
		CreatedTime:  created,
		ModifiedTime: modified,
		Size:         f.Size,
	}, nil
}

func parseDriveTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339, s)
}

// escapeDriveQuery escapes a value for a single-quoted Drive query literal.
func escapeDriveQuery(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	return strings.ReplaceAll(s, `'`, `\'`)
}

// classifyDriveError marks rejected credentials as authentication failures,
// missing files as ErrNoRemoteFile and everything else as network failures.
func classifyDriveError(err error) error {
	var gerr *googleapi.Error
	if apperrors.As(err, &gerr) {
		switch gerr.Code {
		case http.StatusUnauthorized:
			return apperrors.Mark(err, apperrors.ErrAuthentication)
		case http.StatusNotFound:
			return apperrors.Mark(err, apperrors.ErrNoRemoteFile)
		}
	}
	if apperrors.Is(err, apperrors.ErrAuthentication) {
		return err
	}
	return apperrors.Mark(err, apperrors.ErrNetwork)
}

var _ Store = (*DriveStore)(nil)
