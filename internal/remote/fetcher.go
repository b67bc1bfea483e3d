package remote

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	apperrors "github.com/dvloznov/sabadell-dashboard/internal/errors"
	"github.com/dvloznov/sabadell-dashboard/internal/logger"
	"github.com/dvloznov/sabadell-dashboard/internal/metrics"
)

// DefaultChunkSize is the read size used when none is configured.
const DefaultChunkSize = 1 << 20

// ProgressFunc receives the bytes written so far and the expected total
// (-1 when the remote did not report a size).
type ProgressFunc func(written, total int64)

// Fetcher streams a remote file into a local path.
type Fetcher struct {
	chunkSize int
	progress  ProgressFunc
	log       zerolog.Logger
}

// NewFetcher creates a Fetcher reading chunkSize bytes at a time. Unless
// WithProgress sets a reporter, progress is logged as a completed percentage.
// Log lines go to the logger carried by the Fetch context, falling back to
// log.
func NewFetcher(chunkSize int, log zerolog.Logger) *Fetcher {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	return &Fetcher{chunkSize: chunkSize, log: log}
}

// WithProgress replaces the progress reporter.
func (f *Fetcher) WithProgress(p ProgressFunc) *Fetcher {
	if p != nil {
		f.progress = p
	}
	return f
}

// Fetch downloads fileID from store to dest and returns the number of bytes
// written. The content lands in a temp file next to dest that replaces dest
// only after the whole stream was read, so a failed download keeps the
// previous file.
func (f *Fetcher) Fetch(ctx context.Context, store Store, fileID, dest string) (int64, error) {
	log := logger.FromContextOr(ctx, f.log)
	progress := f.progress
	if progress == nil {
		progress = logProgress(log)
	}

	start := time.Now()
	written, err := f.fetch(ctx, store, fileID, dest, progress)
	metrics.DownloadDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.DownloadsTotal.WithLabelValues("failed").Inc()
		return written, err
	}
	metrics.DownloadsTotal.WithLabelValues("ok").Inc()
	metrics.DownloadBytesTotal.Add(float64(written))

	log.Info().
		Str("file_id", fileID).
		Str("dest", dest).
		Int64("bytes", written).
		Dur("elapsed", time.Since(start)).
		Msg("Download complete")
	return written, nil
}

func (f *Fetcher) fetch(ctx context.Context, store Store, fileID, dest string, progress ProgressFunc) (int64, error) {
	body, total, err := store.Open(ctx, fileID)
	if err != nil {
		return 0, fmt.Errorf("Fetch: opening %q: %w", fileID, markNetwork(err))
	}
	defer body.Close()

	tmp, err := os.CreateTemp(filepath.Dir(dest), filepath.Base(dest)+".*.part")
	if err != nil {
		return 0, fmt.Errorf("Fetch: creating temp file: %w", err)
	}
	tmpName := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			_ = tmp.Close()
			_ = os.Remove(tmpName)
		}
	}()

	written, err := f.copyChunks(ctx, tmp, body, total, progress)
	if err != nil {
		return written, fmt.Errorf("Fetch: streaming %q: %w", fileID, err)
	}
	if err := tmp.Sync(); err != nil {
		return written, fmt.Errorf("Fetch: syncing temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return written, fmt.Errorf("Fetch: closing temp file: %w", err)
	}
	if err := os.Rename(tmpName, dest); err != nil {
		_ = os.Remove(tmpName)
		committed = true
		return written, fmt.Errorf("Fetch: replacing %s: %w", dest, err)
	}
	committed = true
	return written, nil
}

func (f *Fetcher) copyChunks(ctx context.Context, dst io.Writer, src io.Reader, total int64, progress ProgressFunc) (int64, error) {
	buf := make([]byte, f.chunkSize)
	var written int64
	for {
		if err := ctx.Err(); err != nil {
			return written, markNetwork(err)
		}

		n, rerr := io.ReadFull(src, buf)
		if n > 0 {
			if _, werr := dst.Write(buf[:n]); werr != nil {
				return written, fmt.Errorf("writing chunk: %w", werr)
			}
			written += int64(n)
			progress(written, total)
		}

		switch {
		case rerr == nil:
			continue
		case errors.Is(rerr, io.EOF), errors.Is(rerr, io.ErrUnexpectedEOF):
			if total >= 0 && written != total {
				return written, markNetwork(fmt.Errorf("short read: got %d of %d bytes", written, total))
			}
			return written, nil
		default:
			return written, markNetwork(fmt.Errorf("reading chunk: %w", rerr))
		}
	}
}

func logProgress(log zerolog.Logger) ProgressFunc {
	return func(written, total int64) {
		ev := log.Debug().Int64("written", written)
		if total > 0 {
			ev = ev.Int("percent", int(written*100/total))
		}
		ev.Msg("Download progress")
	}
}

// markNetwork tags err as a network failure unless it already carries an
// authentication or missing-file cause.
func markNetwork(err error) error {
	if apperrors.Is(err, apperrors.ErrAuthentication) || apperrors.Is(err, apperrors.ErrNoRemoteFile) {
		return err
	}
	return apperrors.Mark(err, apperrors.ErrNetwork)
}
