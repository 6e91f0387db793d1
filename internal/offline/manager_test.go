package offline

import (
	"bytes"
	"context"
	"crypto/rand"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/JainamDedhia/Eduthon/internal/compress"
	"github.com/JainamDedhia/Eduthon/internal/material"
	"github.com/JainamDedhia/Eduthon/internal/storage/sqlite"
	"github.com/JainamDedhia/Eduthon/internal/viewer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testEnv struct {
	manager    *Manager
	repo       *sqlite.RecordRepository
	storageDir string
	scratchDir string
}

func newTestEnv(t *testing.T, codec Codec, viewers []viewer.Viewer) *testEnv {
	t.Helper()

	db, err := sqlite.InitDB(filepath.Join(t.TempDir(), "offline.db"))
	require.NoError(t, err)

	t.Cleanup(func() { db.Close() })

	repo := sqlite.NewRecordRepository(db)
	storageDir := filepath.Join(t.TempDir(), "durable")
	scratchDir := filepath.Join(t.TempDir(), "scratch")

	if codec == nil {
		codec = compress.NewZstd()
	}

	return &testEnv{
		manager:    NewManager(repo, codec, viewers, storageDir, scratchDir, 2, nil),
		repo:       repo,
		storageDir: storageDir,
		scratchDir: scratchDir,
	}
}

// serveBytes returns a test server handing out payload and a hit counter.
func serveBytes(t *testing.T, payload []byte) (*httptest.Server, *int32) {
	t.Helper()

	var mu sync.Mutex

	var hits int32

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		hits++
		mu.Unlock()

		_, _ = w.Write(payload)
	}))
	t.Cleanup(srv.Close)

	return srv, &hits
}

// failingCodec always errors, forcing the store-original fallback.
type failingCodec struct{}

func (failingCodec) Compress([]byte) ([]byte, error)   { return nil, errors.New("codec exploded") }
func (failingCodec) Decompress([]byte) ([]byte, error) { return nil, errors.New("codec exploded") }

// recordingViewer captures what it is asked to present.
type recordingViewer struct {
	mu      sync.Mutex
	path    string
	content []byte
}

func (v *recordingViewer) View(_ context.Context, path string) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	v.path = path
	v.content, _ = os.ReadFile(path)

	return nil
}

type unavailableViewer struct{}

func (unavailableViewer) View(context.Context, string) error { return viewer.ErrUnavailable }

func compressiblePayload() []byte {
	return bytes.Repeat([]byte("kinematics lecture notes, chapter 3. "), 5_000)
}

func TestDownload_CompressesAndRegisters(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	payload := compressiblePayload()
	srv, _ := serveBytes(t, payload)

	localPath, err := env.manager.Download(context.Background(), "ABC123", material.Material{
		Name: "syllabus.pdf",
		URL:  srv.URL + "/syllabus.pdf",
	})
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(env.storageDir, "syllabus.pdf"), localPath)

	info, err := os.Stat(localPath)
	require.NoError(t, err)
	assert.Less(t, info.Size(), int64(len(payload)))

	rec, err := env.repo.Get("ABC123", "syllabus.pdf")
	require.NoError(t, err)
	assert.True(t, rec.IsCompressed)
	assert.Equal(t, int64(len(payload)), rec.OriginalSizeBytes)
	assert.Equal(t, info.Size(), rec.CompressedSizeBytes)
	assert.Equal(t, srv.URL+"/syllabus.pdf", rec.SourceURL)
	assert.False(t, rec.SavedAt.IsZero())

	// The scratch work file was cleaned up.
	entries, err := os.ReadDir(env.scratchDir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestDownload_SecondAttemptRejectedBeforeIO(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	srv, hits := serveBytes(t, compressiblePayload())

	mat := material.Material{Name: "syllabus.pdf", URL: srv.URL + "/syllabus.pdf"}

	_, err := env.manager.Download(context.Background(), "ABC123", mat)
	require.NoError(t, err)
	require.Equal(t, int32(1), *hits)

	_, err = env.manager.Download(context.Background(), "ABC123", mat)

	var exists *material.AlreadyExistsError
	require.True(t, errors.As(err, &exists))
	assert.Equal(t, "syllabus.pdf", exists.Name)

	// No additional network I/O happened.
	assert.Equal(t, int32(1), *hits)

	// Same material in a different class is a different key.
	_, err = env.manager.Download(context.Background(), "XYZ789", mat)
	require.NoError(t, err)
}

func TestDownload_InvalidURL(t *testing.T) {
	env := newTestEnv(t, nil, nil)

	tests := []struct {
		name string
		mat  material.Material
	}{
		{name: "empty name", mat: material.Material{Name: "", URL: "https://x/a.pdf"}},
		{name: "relative url", mat: material.Material{Name: "a.pdf", URL: "notes/a.pdf"}},
		{name: "unsupported scheme", mat: material.Material{Name: "a.pdf", URL: "ftp://host/a.pdf"}},
		{name: "missing host", mat: material.Material{Name: "a.pdf", URL: "https:///a.pdf"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.manager.Download(context.Background(), "ABC123", tt.mat)

			var invalid *material.InvalidInputError
			assert.True(t, errors.As(err, &invalid), "got %v", err)
		})
	}
}

func TestDownload_ServerErrorLeavesNoArtifacts(t *testing.T) {
	env := newTestEnv(t, nil, nil)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "storage offline", http.StatusInternalServerError)
	}))
	defer srv.Close()

	_, err := env.manager.Download(context.Background(), "ABC123", material.Material{
		Name: "broken.pdf",
		URL:  srv.URL + "/broken.pdf",
	})

	var netErr *material.NetworkError
	require.True(t, errors.As(err, &netErr))
	assert.Equal(t, http.StatusInternalServerError, netErr.StatusCode)

	exists, err := env.repo.Exists("ABC123", "broken.pdf")
	require.NoError(t, err)
	assert.False(t, exists)

	assert.NoFileExists(t, filepath.Join(env.storageDir, "broken.pdf"))

	entries, _ := os.ReadDir(env.scratchDir)
	assert.Empty(t, entries)
}

func TestDownload_CodecFailureStoresOriginal(t *testing.T) {
	env := newTestEnv(t, failingCodec{}, nil)
	payload := compressiblePayload()
	srv, _ := serveBytes(t, payload)

	localPath, err := env.manager.Download(context.Background(), "ABC123", material.Material{
		Name: "syllabus.pdf",
		URL:  srv.URL + "/syllabus.pdf",
	})
	require.NoError(t, err)

	stored, err := os.ReadFile(localPath)
	require.NoError(t, err)
	assert.Equal(t, payload, stored)

	rec, err := env.repo.Get("ABC123", "syllabus.pdf")
	require.NoError(t, err)
	assert.False(t, rec.IsCompressed)
	assert.Equal(t, rec.OriginalSizeBytes, rec.CompressedSizeBytes)
}

func TestDownload_IncompressibleStoredPlain(t *testing.T) {
	env := newTestEnv(t, nil, nil)

	payload := make([]byte, 32*1024)
	_, err := rand.Read(payload)
	require.NoError(t, err)

	srv, _ := serveBytes(t, payload)

	localPath, err := env.manager.Download(context.Background(), "ABC123", material.Material{
		Name: "photo.jpg",
		URL:  srv.URL + "/photo.jpg",
	})
	require.NoError(t, err)

	stored, err := os.ReadFile(localPath)
	require.NoError(t, err)
	assert.Equal(t, payload, stored)

	rec, err := env.repo.Get("ABC123", "photo.jpg")
	require.NoError(t, err)
	assert.False(t, rec.IsCompressed)
}

func TestDownload_ConcurrentSameKey(t *testing.T) {
	env := newTestEnv(t, nil, nil)

	release := make(chan struct{})

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release

		_, _ = w.Write(compressiblePayload())
	}))
	defer srv.Close()

	mat := material.Material{Name: "syllabus.pdf", URL: srv.URL + "/syllabus.pdf"}

	errs := make(chan error, 2)

	var wg sync.WaitGroup

	for range 2 {
		wg.Add(1)

		go func() {
			defer wg.Done()

			_, err := env.manager.Download(context.Background(), "ABC123", mat)
			errs <- err
		}()
	}

	// Give both goroutines time to reach the guard, then let the fetch finish.
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()
	close(errs)

	var succeeded, rejected int

	for err := range errs {
		if err == nil {
			succeeded++

			continue
		}

		var exists *material.AlreadyExistsError
		require.True(t, errors.As(err, &exists), "unexpected error: %v", err)
		rejected++
	}

	assert.Equal(t, 1, succeeded)
	assert.Equal(t, 1, rejected)
}

func TestDownloadAll_SkipsAlreadyOffline(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	srv, _ := serveBytes(t, compressiblePayload())

	materials := []material.Material{
		{Name: "a.pdf", URL: srv.URL + "/a.pdf"},
		{Name: "b.pdf", URL: srv.URL + "/b.pdf"},
		{Name: "c.pdf", URL: srv.URL + "/c.pdf"},
	}

	_, err := env.manager.Download(context.Background(), "ABC123", materials[0])
	require.NoError(t, err)

	downloaded, err := env.manager.DownloadAll(context.Background(), "ABC123", materials)
	require.NoError(t, err)

	assert.Equal(t, 2, downloaded)

	records, err := env.repo.ListForClass("ABC123")
	require.NoError(t, err)
	assert.Len(t, records, 3)
}

func TestOpen_RestoresOriginalForViewer(t *testing.T) {
	view := &recordingViewer{}
	env := newTestEnv(t, nil, []viewer.Viewer{view})
	env.manager.ViewerGrace = 20 * time.Millisecond

	payload := compressiblePayload()
	srv, _ := serveBytes(t, payload)

	_, err := env.manager.Download(context.Background(), "ABC123", material.Material{
		Name: "syllabus.pdf",
		URL:  srv.URL + "/syllabus.pdf",
	})
	require.NoError(t, err)

	require.NoError(t, env.manager.Open(context.Background(), "ABC123", "syllabus.pdf"))

	// Viewer got a scratch copy keeping the original name and full content.
	assert.Equal(t, "syllabus.pdf", filepath.Base(view.path))
	assert.True(t, strings.HasPrefix(view.path, env.scratchDir))
	assert.Equal(t, payload, view.content)

	// The scratch copy disappears once the grace period has passed.
	assert.Eventually(t, func() bool {
		_, err := os.Stat(view.path)

		return os.IsNotExist(err)
	}, 2*time.Second, 20*time.Millisecond)
}

func TestOpen_MissingRecord(t *testing.T) {
	env := newTestEnv(t, nil, []viewer.Viewer{&recordingViewer{}})

	err := env.manager.Open(context.Background(), "ABC123", "ghost.pdf")

	var notFound *material.NotFoundError
	require.True(t, errors.As(err, &notFound))
	assert.Equal(t, "record", notFound.Kind)
}

func TestOpen_MissingDurableFile(t *testing.T) {
	env := newTestEnv(t, nil, []viewer.Viewer{&recordingViewer{}})

	require.NoError(t, env.repo.Create(material.Record{
		ClassID:   "ABC123",
		Name:      "gone.pdf",
		LocalPath: filepath.Join(env.storageDir, "gone.pdf"),
		SavedAt:   time.Now().UTC(),
	}))

	err := env.manager.Open(context.Background(), "ABC123", "gone.pdf")

	var notFound *material.NotFoundError
	require.True(t, errors.As(err, &notFound))
	assert.Equal(t, "file", notFound.Kind)
}

func TestOpen_NoViewerAvailable(t *testing.T) {
	env := newTestEnv(t, nil, []viewer.Viewer{unavailableViewer{}, unavailableViewer{}})

	srv, _ := serveBytes(t, compressiblePayload())

	_, err := env.manager.Download(context.Background(), "ABC123", material.Material{
		Name: "syllabus.pdf",
		URL:  srv.URL + "/syllabus.pdf",
	})
	require.NoError(t, err)

	err = env.manager.Open(context.Background(), "ABC123", "syllabus.pdf")

	var noViewer *material.NoViewerError
	assert.True(t, errors.As(err, &noViewer))
}

func TestOpen_CorruptCompressedCopyPassesThrough(t *testing.T) {
	view := &recordingViewer{}
	env := newTestEnv(t, nil, []viewer.Viewer{view})

	// A record claiming compression whose durable bytes are not valid zstd.
	garbage := []byte("definitely not zstd data")
	durablePath := filepath.Join(env.storageDir, "corrupt.pdf")
	require.NoError(t, os.MkdirAll(env.storageDir, 0o755))
	require.NoError(t, os.WriteFile(durablePath, garbage, 0o644))

	require.NoError(t, env.repo.Create(material.Record{
		ClassID:             "ABC123",
		Name:                "corrupt.pdf",
		LocalPath:           durablePath,
		OriginalSizeBytes:   int64(len(garbage)),
		CompressedSizeBytes: int64(len(garbage)),
		IsCompressed:        true,
		SavedAt:             time.Now().UTC(),
	}))

	require.NoError(t, env.manager.Open(context.Background(), "ABC123", "corrupt.pdf"))

	assert.Equal(t, garbage, view.content)
}

func TestDelete_RemovesFileAndRecord(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	srv, _ := serveBytes(t, compressiblePayload())

	localPath, err := env.manager.Download(context.Background(), "ABC123", material.Material{
		Name: "syllabus.pdf",
		URL:  srv.URL + "/syllabus.pdf",
	})
	require.NoError(t, err)

	require.NoError(t, env.manager.Delete(context.Background(), "ABC123", "syllabus.pdf"))

	assert.NoFileExists(t, localPath)

	exists, err := env.repo.Exists("ABC123", "syllabus.pdf")
	require.NoError(t, err)
	assert.False(t, exists)

	// Deleting again is a no-op, not an error.
	require.NoError(t, env.manager.Delete(context.Background(), "ABC123", "syllabus.pdf"))

	// And the material can be downloaded fresh afterwards.
	_, err = env.manager.Download(context.Background(), "ABC123", material.Material{
		Name: "syllabus.pdf",
		URL:  srv.URL + "/syllabus.pdf",
	})
	require.NoError(t, err)
}

func TestStats_ConsistentWithRecords(t *testing.T) {
	env := newTestEnv(t, nil, nil)

	now := time.Now().UTC()

	require.NoError(t, env.repo.Create(material.Record{
		ClassID: "ABC123", Name: "a.pdf", LocalPath: "/x/a.pdf",
		OriginalSizeBytes: 5_000_000, CompressedSizeBytes: 1_200_000,
		IsCompressed: true, SavedAt: now,
	}))
	require.NoError(t, env.repo.Create(material.Record{
		ClassID: "ABC123", Name: "b.jpg", LocalPath: "/x/b.jpg",
		OriginalSizeBytes: 2_000_000, CompressedSizeBytes: 2_000_000,
		IsCompressed: false, SavedAt: now,
	}))
	require.NoError(t, env.repo.Create(material.Record{
		ClassID: "XYZ789", Name: "c.pdf", LocalPath: "/x/c.pdf",
		OriginalSizeBytes: 1_000_000, CompressedSizeBytes: 400_000,
		IsCompressed: true, SavedAt: now,
	}))

	stats, err := env.manager.Stats()
	require.NoError(t, err)

	all, err := env.repo.ListAll()
	require.NoError(t, err)

	assert.Equal(t, len(all), stats.TotalFiles)
	assert.Equal(t, 2, stats.CompressedFiles)
	assert.Equal(t, int64(3_600_000), stats.TotalSpaceUsed)
	assert.Equal(t, int64(8_000_000), stats.EstimatedSpaceWithoutCompression)
	assert.Equal(t, int64(4_400_000), stats.SpaceSaved)
	assert.Equal(t, stats.EstimatedSpaceWithoutCompression-stats.TotalSpaceUsed, stats.SpaceSaved)
}

func TestSanitizeName(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{in: "syllabus.pdf", want: "syllabus.pdf"},
		{in: "week 1 notes.pdf", want: "week_1_notes.pdf"},
		{in: "../../etc/passwd", want: "passwd"},
		{in: "exam?*answers.docx", want: "exam__answers.docx"},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, sanitizeName(tt.in))
		})
	}
}
