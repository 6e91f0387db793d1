package offline

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/JainamDedhia/Eduthon/internal/logctx"
	"github.com/JainamDedhia/Eduthon/internal/material"
	"github.com/JainamDedhia/Eduthon/internal/offline/progress"
	"github.com/JainamDedhia/Eduthon/internal/storage"
	"github.com/dustin/go-humanize"
	"golang.org/x/sync/errgroup"
)

const progressInterval = int64(8 * 1024 * 1024) // 8MB

// Download fetches a material, compresses it, stores the durable copy, and
// registers the offline record. It returns the durable path. A second call
// for the same (class, name) key fails with AlreadyExistsError before any
// network or disk I/O, including while the first call is still in flight.
func (m *Manager) Download(ctx context.Context, classID string, mat material.Material) (string, error) {
	start := time.Now()

	var path string

	err := m.tel.InstrumentDownload(ctx, func(ctx context.Context) error {
		var derr error
		path, derr = m.download(ctx, classID, mat)

		return derr
	})

	status := "success"
	if err != nil {
		status = "error"

		var exists *material.AlreadyExistsError
		if errors.As(err, &exists) {
			status = "duplicate"
		}
	}

	m.tel.RecordDownload(status, time.Since(start))

	return path, err
}

func (m *Manager) download(ctx context.Context, classID string, mat material.Material) (string, error) {
	logger := logctx.LoggerFromContext(ctx).With("class_id", classID, "material", mat.Name)

	if mat.Name == "" {
		return "", &material.InvalidInputError{Field: "name", Reason: "material name is empty"}
	}

	key := storage.RecordKey(classID, mat.Name)
	if !m.claim(key) {
		return "", &material.AlreadyExistsError{ClassID: classID, Name: mat.Name, Reason: "download already in progress"}
	}
	defer m.release(key)

	exists, err := m.repo.Exists(classID, mat.Name)
	if err != nil {
		return "", fmt.Errorf("failed to check offline record: %w", err)
	}

	if exists {
		return "", &material.AlreadyExistsError{ClassID: classID, Name: mat.Name, Reason: "already downloaded"}
	}

	if err := validateURL(mat.URL); err != nil {
		return "", err
	}

	scratchPath, err := m.scratchPath(mat.Name)
	if err != nil {
		return "", err
	}

	originalSize, err := m.fetch(ctx, mat.URL, scratchPath)
	if err != nil {
		removeQuietly(scratchPath, logger)

		m.emitError(&mat)

		return "", err
	}

	raw, err := os.ReadFile(scratchPath)
	if err != nil {
		removeQuietly(scratchPath, logger)

		return "", &material.IOError{Operation: "read_scratch", Path: scratchPath, Err: err}
	}

	stored, compressed := m.encode(ctx, raw)

	durablePath := m.durablePath(mat.Name)

	if err := os.MkdirAll(m.storageDir, dirPerm); err != nil {
		removeQuietly(scratchPath, logger)

		return "", &material.IOError{Operation: "create_storage_dir", Path: m.storageDir, Err: err}
	}

	if err := os.WriteFile(durablePath, stored, filePerm); err != nil {
		removeQuietly(scratchPath, logger)
		removeQuietly(durablePath, logger)

		return "", &material.IOError{Operation: "write_durable", Path: durablePath, Err: err}
	}

	// Scratch cleanup is best-effort; a leftover file is reclaimed by the
	// scratch sweeper later.
	removeQuietly(scratchPath, logger)

	rec := material.Record{
		ClassID:             classID,
		Name:                mat.Name,
		LocalPath:           durablePath,
		SourceURL:           mat.URL,
		OriginalSizeBytes:   originalSize,
		CompressedSizeBytes: int64(len(stored)),
		IsCompressed:        compressed,
		SavedAt:             time.Now().UTC(),
	}

	if err := m.repo.Create(rec); err != nil {
		removeQuietly(durablePath, logger)

		return "", fmt.Errorf("failed to register offline record: %w", err)
	}

	logger.Info("material saved for offline use",
		"path", durablePath,
		"original_size", humanize.Bytes(uint64(originalSize)),
		"stored_size", humanize.Bytes(uint64(len(stored))),
		"compressed", compressed,
	)

	m.tel.RecordDownloadBytes(originalSize, int64(len(stored)))

	m.emitFinished(&rec)

	return durablePath, nil
}

// DownloadAll fetches every given material for a class with bounded
// parallelism. Materials that are already offline are skipped; it returns
// the number of newly downloaded files.
func (m *Manager) DownloadAll(ctx context.Context, classID string, materials []material.Material) (int, error) {
	logger := logctx.LoggerFromContext(ctx).With("class_id", classID)

	var downloaded int32

	wg, ctx := errgroup.WithContext(ctx)

	sem := make(chan struct{}, m.maxParallel)

	for i := range materials {
		mat := materials[i]
		sem <- struct{}{}

		wg.Go(func() error {
			defer func() { <-sem }() // release the slot

			if _, err := m.Download(ctx, classID, mat); err != nil {
				var exists *material.AlreadyExistsError
				if errors.As(err, &exists) {
					logger.Debug("material already offline", "material", mat.Name)

					return nil
				}

				logger.Error("failed to download material", "material", mat.Name, "err", err)

				return err
			}

			atomic.AddInt32(&downloaded, 1)

			return nil
		})
	}

	if err := wg.Wait(); err != nil {
		return int(downloaded), fmt.Errorf("failed to download class materials: %w", err)
	}

	return int(downloaded), nil
}

// fetch streams the remote material into scratchPath and returns the number
// of bytes written.
func (m *Manager) fetch(ctx context.Context, rawURL, scratchPath string) (int64, error) {
	logger := logctx.LoggerFromContext(ctx)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return 0, &material.InvalidInputError{Field: "url", Reason: err.Error()}
	}

	resp, err := m.HTTPClient.Do(req)
	if err != nil {
		return 0, &material.NetworkError{Operation: "fetch_material", APIMessage: err.Error(), Err: err}
	}

	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return 0, &material.NetworkError{Operation: "fetch_material", StatusCode: resp.StatusCode, APIMessage: resp.Status}
	}

	out, err := os.Create(scratchPath)
	if err != nil {
		return 0, &material.IOError{Operation: "create_scratch", Path: scratchPath, Err: err}
	}

	defer out.Close()

	logger.Debug("fetching material", "url", rawURL, "size", humanize.Bytes(uint64(max(resp.ContentLength, 0))))

	progressCb := func(written int64, total int64) {
		if total > 0 {
			logger.Debug("download progress",
				"url", rawURL,
				"downloaded", humanize.Bytes(uint64(written)),
				"total", humanize.Bytes(uint64(total)),
				"percent", humanize.FtoaWithDigits(float64(written)*100/float64(total), 2))
		} else {
			logger.Debug("download progress", "url", rawURL, "downloaded", humanize.Bytes(uint64(written)))
		}
	}
	pr := progress.NewReader(resp.Body, resp.ContentLength, progressInterval, progressCb)

	n, err := io.Copy(out, pr)
	if err != nil {
		return 0, &material.NetworkError{Operation: "fetch_material", APIMessage: "transfer interrupted", Err: err}
	}

	return n, nil
}

// encode compresses raw with the codec. Durability beats space savings: on
// codec failure, or when compression doesn't actually shrink the bytes, the
// original is stored unchanged.
func (m *Manager) encode(ctx context.Context, raw []byte) ([]byte, bool) {
	logger := logctx.LoggerFromContext(ctx)

	compressed, err := m.codec.Compress(raw)
	if err != nil {
		logger.Warn("compression failed, storing original bytes", "err", err)

		return raw, false
	}

	if len(compressed) >= len(raw) {
		return raw, false
	}

	return compressed, true
}

// scratchPath derives a per-invocation scratch location so concurrent
// downloads never share work files.
func (m *Manager) scratchPath(name string) (string, error) {
	if err := os.MkdirAll(m.scratchDir, dirPerm); err != nil {
		return "", &material.IOError{Operation: "create_scratch_dir", Path: m.scratchDir, Err: err}
	}

	suffix := make([]byte, 4)
	_, _ = rand.Read(suffix)

	return filepath.Join(m.scratchDir, "dl-"+sanitizeName(name)+"-"+hex.EncodeToString(suffix)), nil
}

func validateURL(rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return &material.InvalidInputError{Field: "url", Reason: err.Error()}
	}

	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return &material.InvalidInputError{Field: "url", Reason: fmt.Sprintf("not a fetchable reference: %q", rawURL)}
	}

	return nil
}

func removeQuietly(path string, logger *slog.Logger) {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		logger.Warn("failed to remove work file", "path", path, "err", err)
	}
}
