// Package offline implements the pipelines that move class materials between
// the remote directory and durable on-device storage: download (fetch,
// compress, register), open (decompress, hand to a viewer), delete, and
// space statistics.
package offline

import (
	"net/http"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/JainamDedhia/Eduthon/internal/material"
	"github.com/JainamDedhia/Eduthon/internal/storage"
	"github.com/JainamDedhia/Eduthon/internal/telemetry"
	"github.com/JainamDedhia/Eduthon/internal/viewer"
)

const (
	dirPerm  = 0o755
	filePerm = 0o644

	defaultViewerGrace = 30 * time.Second
)

// Codec is the byte transform applied to durable copies. Compression
// failures are recovered by the pipelines (store-original fallback), so
// implementations may fail freely.
type Codec interface {
	Compress(data []byte) ([]byte, error)
	Decompress(data []byte) ([]byte, error)
}

// Manager owns the offline pipelines and the per-key in-flight guard that
// prevents concurrent duplicate downloads regardless of caller.
type Manager struct {
	repo        storage.RecordRepository
	codec       Codec
	viewers     []viewer.Viewer
	storageDir  string
	scratchDir  string
	maxParallel int
	tel         *telemetry.Telemetry

	// HTTPClient performs material fetches. Overridable in tests.
	HTTPClient *http.Client

	// ViewerGrace is how long an opened scratch copy survives before
	// cleanup, giving the external viewer time to read it.
	ViewerGrace time.Duration

	mu       sync.Mutex
	inflight map[string]struct{}

	OnDownloadFinished chan *material.Record
	OnDownloadError    chan *material.Material
}

func NewManager(
	repo storage.RecordRepository,
	codec Codec,
	viewers []viewer.Viewer,
	storageDir string,
	scratchDir string,
	maxParallel int,
	tel *telemetry.Telemetry,
) *Manager {
	if maxParallel < 1 {
		maxParallel = 1
	}

	return &Manager{
		repo:        repo,
		codec:       codec,
		viewers:     viewers,
		storageDir:  storageDir,
		scratchDir:  scratchDir,
		maxParallel: maxParallel,
		tel:         tel,
		HTTPClient:  &http.Client{},
		ViewerGrace: defaultViewerGrace,
		inflight:    make(map[string]struct{}),

		OnDownloadFinished: make(chan *material.Record, 16),
		OnDownloadError:    make(chan *material.Material, 16),
	}
}

func (m *Manager) Close() {
	close(m.OnDownloadFinished)
	close(m.OnDownloadError)
}

// ListForClass returns the offline records for a class, newest first.
func (m *Manager) ListForClass(classID string) ([]material.Record, error) {
	return m.repo.ListForClass(classID)
}

// claim marks a (class, material) key as in flight. It returns false when a
// download for the key is already running.
func (m *Manager) claim(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, busy := m.inflight[key]; busy {
		return false
	}

	m.inflight[key] = struct{}{}

	return true
}

func (m *Manager) release(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.inflight, key)
}

// emitFinished and emitError never block: when nobody consumes the event
// channels the events are dropped, not queued forever.
func (m *Manager) emitFinished(rec *material.Record) {
	select {
	case m.OnDownloadFinished <- rec:
	default:
	}
}

func (m *Manager) emitError(mat *material.Material) {
	select {
	case m.OnDownloadError <- mat:
	default:
	}
}

// durablePath is where the stored (possibly compressed) copy of a material
// lives. The record store key already disambiguates by class, so the durable
// key is the sanitized material name.
func (m *Manager) durablePath(name string) string {
	return filepath.Join(m.storageDir, sanitizeName(name))
}

// sanitizeName flattens a material name into a single safe path element.
func sanitizeName(name string) string {
	name = filepath.Base(name)

	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '.', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, name)
}
