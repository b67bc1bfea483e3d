// Package remote lists and downloads the source database file from a
// remote folder (Google Drive or Google Cloud Storage).
package remote

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/rs/zerolog"

	apperrors "github.com/dvloznov/sabadell-dashboard/internal/errors"
	"github.com/dvloznov/sabadell-dashboard/internal/logger"
	"github.com/dvloznov/sabadell-dashboard/internal/metrics"
)

// FileDescriptor describes one file directly inside the remote folder.
type FileDescriptor struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	CreatedTime  time.Time `json:"created_time"`
	ModifiedTime time.Time `json:"modified_time"`
	Size         int64     `json:"size"`
}

// Store provides an interface for remote folder operations.
// This interface enables mocking and testing of the sync flow.
type Store interface {
	// ListFiles returns the non-deleted files directly inside folder.
	ListFiles(ctx context.Context, folder string) ([]FileDescriptor, error)

	// Open streams the content of fileID. size is -1 when unknown.
	Open(ctx context.Context, fileID string) (body io.ReadCloser, size int64, err error)
}

// SelectLatest returns the file with the greatest ModifiedTime. Files with
// the same ModifiedTime are ordered by ID and the smallest wins, so the
// choice does not depend on listing order.
func SelectLatest(files []FileDescriptor) (FileDescriptor, error) {
	if len(files) == 0 {
		return FileDescriptor{}, fmt.Errorf("SelectLatest: %w", apperrors.ErrNoRemoteFile)
	}

	best := files[0]
	for _, f := range files[1:] {
		switch {
		case f.ModifiedTime.After(best.ModifiedTime):
			best = f
		case f.ModifiedTime.Equal(best.ModifiedTime) && f.ID < best.ID:
			best = f
		}
	}
	return best, nil
}

// Locator lists a remote folder and picks the file to download.
type Locator struct {
	store Store
	log   zerolog.Logger
}

// NewLocator creates a Locator over store.
func NewLocator(store Store, log zerolog.Logger) *Locator {
	return &Locator{store: store, log: log}
}

// List returns the files of folder and logs each of them.
func (l *Locator) List(ctx context.Context, folder string) ([]FileDescriptor, error) {
	files, err := l.store.ListFiles(ctx, folder)
	if err != nil {
		metrics.RemoteListings.WithLabelValues("failed").Inc()
		return nil, fmt.Errorf("Locator.List: %w", err)
	}
	metrics.RemoteListings.WithLabelValues("ok").Inc()

	log := logger.FromContextOr(ctx, l.log)
	if len(files) == 0 {
		log.Warn().Str("folder", folder).Msg("No files found")
		return files, nil
	}
	for _, f := range files {
		log.Info().
			Str("name", f.Name).
			Str("file_id", f.ID).
			Time("created", f.CreatedTime).
			Time("modified", f.ModifiedTime).
			Msg("Remote file")
	}
	return files, nil
}

// Latest lists folder and returns its most recently modified file.
func (l *Locator) Latest(ctx context.Context, folder string) (FileDescriptor, error) {
	files, err := l.List(ctx, folder)
	if err != nil {
		return FileDescriptor{}, err
	}
	latest, err := SelectLatest(files)
	if err != nil {
		return FileDescriptor{}, fmt.Errorf("Locator.Latest: folder %q: %w", folder, err)
	}
	return latest, nil
}
