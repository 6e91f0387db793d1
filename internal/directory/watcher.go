package directory

import (
	"bytes"
	"context"
	"encoding/json"
	"runtime/debug"
	"time"

	"github.com/JainamDedhia/Eduthon/internal/logctx"
	"github.com/JainamDedhia/Eduthon/internal/material"
)

// Watcher turns the directory's pull API into a change subscription: it
// polls one class document and emits a ClassSnapshot whenever the document
// differs from the last observation. The sequence is infinite until the
// context is cancelled; a cancelled watcher is not restartable.
type Watcher struct {
	svc             Service
	classID         string
	pollingInterval time.Duration

	Snapshots chan *material.ClassSnapshot
}

func NewWatcher(svc Service, classID string, pollingInterval time.Duration) *Watcher {
	return &Watcher{
		svc:             svc,
		classID:         classID,
		pollingInterval: pollingInterval,

		Snapshots: make(chan *material.ClassSnapshot),
	}
}

func (w *Watcher) Close() {
	close(w.Snapshots)
}

// Watch starts the polling goroutine. The first poll runs immediately so
// subscribers see the current document without waiting a full interval.
func (w *Watcher) Watch(ctx context.Context) {
	logger := logctx.LoggerFromContext(ctx).With("class_id", w.classID)

	logger.Info("watching class directory", "polling_interval", w.pollingInterval)

	go func() {
		// Panic recovery (deferred last, executes first during unwind)
		defer func() {
			if r := recover(); r != nil {
				logger.Error("class watcher panic",
					"panic", r,
					"stack", string(debug.Stack()))

				// Restart with clean state if context not cancelled
				if ctx.Err() == nil {
					logger.Info("restarting class watcher after panic")
					time.Sleep(time.Second)
					w.Watch(ctx)
				}
			}
		}()

		ticker := time.NewTicker(w.pollingInterval)
		defer ticker.Stop()

		var last []byte

		poll := func() {
			snapshot, changed, err := w.observe(ctx, last)
			if err != nil {
				logger.Error("failed to poll class directory", "err", err)

				return
			}

			if !changed {
				return
			}

			last = snapshot

			var class material.Class
			if err := json.Unmarshal(snapshot, &class); err != nil {
				logger.Error("failed to decode class snapshot", "err", err)

				return
			}

			select {
			case w.Snapshots <- &material.ClassSnapshot{Class: class, ObservedAt: time.Now().UTC()}:
			case <-ctx.Done():
			}
		}

		poll()

		for {
			select {
			case <-ctx.Done():
				logger.Info("class watcher shutdown", "reason", "context_cancelled")

				return
			case <-ticker.C:
				poll()
			}
		}
	}()
}

// observe fetches the class document and reports whether it differs from the
// previous serialized form.
func (w *Watcher) observe(ctx context.Context, last []byte) ([]byte, bool, error) {
	class, err := w.svc.GetClass(ctx, w.classID)
	if err != nil {
		return nil, false, err
	}

	current, err := json.Marshal(class)
	if err != nil {
		return nil, false, err
	}

	if bytes.Equal(current, last) {
		return current, false, nil
	}

	return current, true, nil
}
