package remote_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"

	apperrors "github.com/dvloznov/sabadell-dashboard/internal/errors"
	"github.com/dvloznov/sabadell-dashboard/internal/remote"
)

func at(s string) time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		panic(err)
	}
	return t
}

func TestSelectLatest(t *testing.T) {
	tests := []struct {
		name   string
		files  []remote.FileDescriptor
		wantID string
	}{
		{
			name: "max modified time wins",
			files: []remote.FileDescriptor{
				{ID: "a", ModifiedTime: at("2024-01-01T00:00:00Z")},
				{ID: "b", ModifiedTime: at("2024-03-01T00:00:00Z")},
				{ID: "c", ModifiedTime: at("2024-02-01T00:00:00Z")},
			},
			wantID: "b",
		},
		{
			name: "tie broken by smallest id",
			files: []remote.FileDescriptor{
				{ID: "zeta", ModifiedTime: at("2024-03-01T00:00:00Z")},
				{ID: "alpha", ModifiedTime: at("2024-03-01T00:00:00Z")},
				{ID: "old", ModifiedTime: at("2023-03-01T00:00:00Z")},
			},
			wantID: "alpha",
		},
		{
			name:   "single file",
			files:  []remote.FileDescriptor{{ID: "only"}},
			wantID: "only",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := remote.SelectLatest(tt.files)
			require.NoError(t, err)
			require.Equal(t, tt.wantID, got.ID)
		})
	}
}

func TestSelectLatest_TieIndependentOfOrder(t *testing.T) {
	ts := at("2024-05-05T10:00:00Z")
	forward := []remote.FileDescriptor{{ID: "b", ModifiedTime: ts}, {ID: "a", ModifiedTime: ts}}
	backward := []remote.FileDescriptor{{ID: "a", ModifiedTime: ts}, {ID: "b", ModifiedTime: ts}}

	f, err := remote.SelectLatest(forward)
	require.NoError(t, err)
	b, err := remote.SelectLatest(backward)
	require.NoError(t, err)
	require.Equal(t, f.ID, b.ID)
}

func TestSelectLatest_Empty(t *testing.T) {
	_, err := remote.SelectLatest(nil)
	require.ErrorIs(t, err, apperrors.ErrNoRemoteFile)
}

// driveFake serves the subset of the Drive v3 API used by DriveStore.
type driveFake struct {
	pages   []map[string]any
	content map[string][]byte
	status  int
	queries []string
}

func (d *driveFake) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if d.status != 0 {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(d.status)
		_, _ = io.WriteString(w, `{"error":{"code":`+strconv.Itoa(d.status)+`,"message":"`+http.StatusText(d.status)+`"}}`)
		return
	}

	switch {
	case r.URL.Path == "/files":
		d.queries = append(d.queries, r.URL.Query().Get("q"))
		idx := 0
		if tok := r.URL.Query().Get("pageToken"); tok != "" {
			idx = int(tok[len(tok)-1] - '0')
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(d.pages[idx])
	case strings.HasPrefix(r.URL.Path, "/files/") && r.URL.Query().Get("alt") == "media":
		body, ok := d.content[strings.TrimPrefix(r.URL.Path, "/files/")]
		if !ok {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/octet-stream")
		_, _ = w.Write(body)
	default:
		http.NotFound(w, r)
	}
}

func newDriveStore(t *testing.T, fake *driveFake) *remote.DriveStore {
	t.Helper()
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	store, err := remote.NewDriveStore(context.Background(),
		option.WithHTTPClient(srv.Client()),
		option.WithEndpoint(srv.URL+"/"),
	)
	require.NoError(t, err)
	return store
}

func TestDriveStore_ListFilesFollowsPages(t *testing.T) {
	fake := &driveFake{
		pages: []map[string]any{
			{
				"nextPageToken": "page1",
				"files": []map[string]any{
					{"id": "f1", "name": "2024-01.duckdb", "createdTime": "2024-01-01T08:00:00.000Z", "modifiedTime": "2024-01-02T08:00:00.000Z", "size": "10"},
				},
			},
			{
				"files": []map[string]any{
					{"id": "f2", "name": "2024-02.duckdb", "createdTime": "2024-02-01T08:00:00.000Z", "modifiedTime": "2024-02-02T08:00:00.000Z", "size": "20"},
				},
			},
		},
	}
	store := newDriveStore(t, fake)

	files, err := store.ListFiles(context.Background(), "folder-123")
	require.NoError(t, err)
	require.Len(t, files, 2)
	require.Equal(t, "f1", files[0].ID)
	require.Equal(t, "2024-02.duckdb", files[1].Name)
	require.Equal(t, int64(20), files[1].Size)
	require.True(t, files[1].ModifiedTime.Equal(at("2024-02-02T08:00:00Z")))

	require.Len(t, fake.queries, 2)
	require.Equal(t, "'folder-123' in parents and trashed = false", fake.queries[0])

	latest, err := remote.SelectLatest(files)
	require.NoError(t, err)
	require.Equal(t, "f2", latest.ID)
}

func TestDriveStore_EmptyFolder(t *testing.T) {
	fake := &driveFake{pages: []map[string]any{{"files": []any{}}}}
	locator := remote.NewLocator(newDriveStore(t, fake), zerolog.Nop())

	_, err := locator.Latest(context.Background(), "empty")
	require.ErrorIs(t, err, apperrors.ErrNoRemoteFile)
}

func TestDriveStore_Unauthorized(t *testing.T) {
	store := newDriveStore(t, &driveFake{status: http.StatusUnauthorized})

	_, err := store.ListFiles(context.Background(), "folder")
	require.ErrorIs(t, err, apperrors.ErrAuthentication)
}

func TestDriveStore_Open(t *testing.T) {
	fake := &driveFake{content: map[string][]byte{"f1": []byte("duckdb bytes")}}
	store := newDriveStore(t, fake)

	body, _, err := store.Open(context.Background(), "f1")
	require.NoError(t, err)
	defer body.Close()

	got, err := io.ReadAll(body)
	require.NoError(t, err)
	require.Equal(t, "duckdb bytes", string(got))
}

func TestDriveStore_OpenMissingFile(t *testing.T) {
	store := newDriveStore(t, &driveFake{content: map[string][]byte{}})

	_, _, err := store.Open(context.Background(), "nope")
	require.ErrorIs(t, err, apperrors.ErrNoRemoteFile)
	require.NotErrorIs(t, err, apperrors.ErrNetwork)
}

func TestDriveStore_ServerErrorIsNetworkError(t *testing.T) {
	store := newDriveStore(t, &driveFake{status: http.StatusServiceUnavailable})

	_, err := store.ListFiles(context.Background(), "folder")
	require.ErrorIs(t, err, apperrors.ErrNetwork)
	require.NotErrorIs(t, err, apperrors.ErrAuthentication)
}

// gcsObject is one object held by gcsFake.
type gcsObject struct {
	name     string
	updated  string
	contents []byte
}

// gcsFake serves the JSON listing and XML media endpoints GCSStore uses.
// Listing applies prefix and delimiter the way the service does.
type gcsFake struct {
	bucket  string
	objects []gcsObject
	queries []url.Values
}

func (g *gcsFake) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch {
	case r.URL.Path == "/storage/v1/b/"+g.bucket+"/o":
		q := r.URL.Query()
		g.queries = append(g.queries, q)
		prefix, delim := q.Get("prefix"), q.Get("delimiter")

		items := []map[string]any{}
		prefixes := []string{}
		seen := map[string]bool{}
		for _, o := range g.objects {
			if !strings.HasPrefix(o.name, prefix) {
				continue
			}
			rest := strings.TrimPrefix(o.name, prefix)
			if i := strings.Index(rest, delim); delim != "" && i >= 0 {
				p := prefix + rest[:i+1]
				if !seen[p] {
					seen[p] = true
					prefixes = append(prefixes, p)
				}
				continue
			}
			items = append(items, map[string]any{
				"kind":        "storage#object",
				"bucket":      g.bucket,
				"name":        o.name,
				"timeCreated": o.updated,
				"updated":     o.updated,
				"size":        strconv.Itoa(len(o.contents)),
			})
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"kind":     "storage#objects",
			"items":    items,
			"prefixes": prefixes,
		})
	case strings.HasPrefix(r.URL.Path, "/"+g.bucket+"/"):
		name := strings.TrimPrefix(r.URL.Path, "/"+g.bucket+"/")
		for _, o := range g.objects {
			if o.name == name {
				w.Header().Set("Content-Type", "application/octet-stream")
				w.Header().Set("Content-Length", strconv.Itoa(len(o.contents)))
				_, _ = w.Write(o.contents)
				return
			}
		}
		http.NotFound(w, r)
	default:
		http.NotFound(w, r)
	}
}

func newGCSStore(t *testing.T, fake *gcsFake) *remote.GCSStore {
	t.Helper()
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	store, err := remote.NewGCSStore(context.Background(),
		option.WithEndpoint(srv.URL+"/storage/v1/"),
		option.WithHTTPClient(srv.Client()),
		option.WithoutAuthentication(),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func sabadellBucket() *gcsFake {
	return &gcsFake{
		bucket: "exports",
		objects: []gcsObject{
			{name: "sabadell/", updated: "2024-03-01T00:00:00Z"},
			{name: "sabadell/2024-01.duckdb", updated: "2024-01-02T08:00:00Z", contents: []byte("january")},
			{name: "sabadell/2024-02.duckdb", updated: "2024-02-02T08:00:00Z", contents: []byte("february")},
			{name: "sabadell/archive/2025-01.duckdb", updated: "2025-01-02T08:00:00Z", contents: []byte("archived")},
			{name: "other/2025-06.duckdb", updated: "2025-06-02T08:00:00Z", contents: []byte("other")},
		},
	}
}

func TestGCSStore_ListFilesDirectChildrenOnly(t *testing.T) {
	fake := sabadellBucket()
	store := newGCSStore(t, fake)

	files, err := store.ListFiles(context.Background(), "gs://exports/sabadell")
	require.NoError(t, err)
	require.Len(t, files, 2)

	byID := map[string]remote.FileDescriptor{}
	for _, f := range files {
		byID[f.ID] = f
	}
	feb, ok := byID["gs://exports/sabadell/2024-02.duckdb"]
	require.True(t, ok, files)
	require.Equal(t, "2024-02.duckdb", feb.Name)
	require.Equal(t, int64(len("february")), feb.Size)
	require.True(t, feb.ModifiedTime.Equal(at("2024-02-02T08:00:00Z")))
	require.Contains(t, byID, "gs://exports/sabadell/2024-01.duckdb")

	require.Len(t, fake.queries, 1)
	require.Equal(t, "sabadell/", fake.queries[0].Get("prefix"))
	require.Equal(t, "/", fake.queries[0].Get("delimiter"))

	latest, err := remote.SelectLatest(files)
	require.NoError(t, err)
	require.Equal(t, "gs://exports/sabadell/2024-02.duckdb", latest.ID)
}

func TestGCSStore_EmptyPrefix(t *testing.T) {
	fake := &gcsFake{
		bucket:  "exports",
		objects: []gcsObject{{name: "sabadell/", updated: "2024-03-01T00:00:00Z"}},
	}
	locator := remote.NewLocator(newGCSStore(t, fake), zerolog.Nop())

	_, err := locator.Latest(context.Background(), "gs://exports/sabadell/")
	require.ErrorIs(t, err, apperrors.ErrNoRemoteFile)
}

func TestGCSStore_OpenAndFetch(t *testing.T) {
	store := newGCSStore(t, sabadellBucket())

	body, size, err := store.Open(context.Background(), "gs://exports/sabadell/2024-01.duckdb")
	require.NoError(t, err)
	got, err := io.ReadAll(body)
	require.NoError(t, err)
	require.NoError(t, body.Close())
	require.Equal(t, "january", string(got))
	require.Equal(t, int64(len("january")), size)

	dest := filepath.Join(t.TempDir(), "db.duckdb")
	n, err := remote.NewFetcher(4, zerolog.Nop()).Fetch(context.Background(), store, "gs://exports/sabadell/2024-02.duckdb", dest)
	require.NoError(t, err)
	require.Equal(t, int64(len("february")), n)
	written, err := os.ReadFile(dest)
	require.NoError(t, err)
	require.Equal(t, "february", string(written))
}

func TestGCSStore_OpenMissingObject(t *testing.T) {
	store := newGCSStore(t, sabadellBucket())

	_, _, err := store.Open(context.Background(), "gs://exports/sabadell/missing.duckdb")
	require.ErrorIs(t, err, apperrors.ErrNoRemoteFile)
	require.NotErrorIs(t, err, apperrors.ErrNetwork)
}

func TestParseGCSURI(t *testing.T) {
	tests := []struct {
		uri        string
		wantBucket string
		wantPath   string
		wantErr    bool
	}{
		{uri: "gs://bucket/exports/db.duckdb", wantBucket: "bucket", wantPath: "exports/db.duckdb"},
		{uri: "gs://bucket/exports/", wantBucket: "bucket", wantPath: "exports/"},
		{uri: "gs://bucket", wantBucket: "bucket"},
		{uri: "gs:///path", wantErr: true},
		{uri: "s3://bucket/path", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.uri, func(t *testing.T) {
			bucket, p, err := remote.ParseGCSURI(tt.uri)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.wantBucket, bucket)
			require.Equal(t, tt.wantPath, p)
		})
	}
}

// memStore is an in-memory Store.
type memStore struct {
	files   map[string][]byte
	size    int64
	readErr error
	opens   int
}

func (m *memStore) ListFiles(ctx context.Context, folder string) ([]remote.FileDescriptor, error) {
	var out []remote.FileDescriptor
	for id, b := range m.files {
		out = append(out, remote.FileDescriptor{ID: id, Size: int64(len(b))})
	}
	return out, nil
}

func (m *memStore) Open(ctx context.Context, fileID string) (io.ReadCloser, int64, error) {
	m.opens++
	b, ok := m.files[fileID]
	if !ok {
		return nil, 0, errors.New("no such file")
	}
	size := int64(len(b))
	if m.size != 0 {
		size = m.size
	}
	var r io.Reader = bytes.NewReader(b)
	if m.readErr != nil {
		r = io.MultiReader(bytes.NewReader(b[:len(b)/2]), &failingReader{err: m.readErr})
	}
	return io.NopCloser(r), size, nil
}

type failingReader struct{ err error }

func (f *failingReader) Read(p []byte) (int, error) { return 0, f.err }

func TestFetcher_ChunkedAndIdempotent(t *testing.T) {
	content := bytes.Repeat([]byte("0123456789"), 7)
	store := &memStore{files: map[string][]byte{"f1": content}}
	dest := filepath.Join(t.TempDir(), "db.duckdb")

	var progress [][2]int64
	fetcher := remote.NewFetcher(16, zerolog.Nop()).WithProgress(func(written, total int64) {
		progress = append(progress, [2]int64{written, total})
	})

	n, err := fetcher.Fetch(context.Background(), store, "f1", dest)
	require.NoError(t, err)
	require.Equal(t, int64(len(content)), n)
	first, err := os.ReadFile(dest)
	require.NoError(t, err)

	// 70 bytes in 16-byte chunks
	require.Len(t, progress, 5)
	require.Equal(t, [2]int64{70, 70}, progress[len(progress)-1])

	_, err = fetcher.Fetch(context.Background(), store, "f1", dest)
	require.NoError(t, err)
	second, err := os.ReadFile(dest)
	require.NoError(t, err)

	require.Equal(t, first, second)
	require.Equal(t, content, second)
}

func TestFetcher_FailureKeepsDestination(t *testing.T) {
	dir := t.TempDir()
	dest := filepath.Join(dir, "db.duckdb")
	require.NoError(t, os.WriteFile(dest, []byte("previous"), 0o644))

	store := &memStore{
		files:   map[string][]byte{"f1": []byte("new content that will break")},
		readErr: errors.New("connection reset"),
	}

	_, err := remote.NewFetcher(4, zerolog.Nop()).Fetch(context.Background(), store, "f1", dest)
	require.ErrorIs(t, err, apperrors.ErrNetwork)

	got, err := os.ReadFile(dest)
	require.NoError(t, err)
	require.Equal(t, "previous", string(got))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1, "temp file must be removed")
}

func TestFetcher_ShortRead(t *testing.T) {
	store := &memStore{files: map[string][]byte{"f1": []byte("12345")}, size: 10}
	dest := filepath.Join(t.TempDir(), "db.duckdb")

	_, err := remote.NewFetcher(0, zerolog.Nop()).Fetch(context.Background(), store, "f1", dest)
	require.ErrorIs(t, err, apperrors.ErrNetwork)
	require.NoFileExists(t, dest)
}

func TestFetcher_OpenFailureIsNetworkError(t *testing.T) {
	store := &memStore{files: map[string][]byte{}}
	dest := filepath.Join(t.TempDir(), "db.duckdb")

	_, err := remote.NewFetcher(0, zerolog.Nop()).Fetch(context.Background(), store, "missing", dest)
	require.ErrorIs(t, err, apperrors.ErrNetwork)
	require.Equal(t, 1, store.opens)
}

func TestFetcher_CanceledContext(t *testing.T) {
	store := &memStore{files: map[string][]byte{"f1": []byte("data")}}
	dest := filepath.Join(t.TempDir(), "db.duckdb")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := remote.NewFetcher(0, zerolog.Nop()).Fetch(ctx, store, "f1", dest)
	require.ErrorIs(t, err, context.Canceled)
	require.NoFileExists(t, dest)
}
