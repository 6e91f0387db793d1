// Package viewer hands decompressed material files over to whatever the host
// platform uses to display documents.
package viewer

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"runtime"

	"github.com/JainamDedhia/Eduthon/internal/logctx"
)

// ErrUnavailable signals that this viewer cannot run on the current host.
// Callers should try the next viewer in their chain.
var ErrUnavailable = errors.New("viewer unavailable on this platform")

// Viewer presents a local file to the user.
type Viewer interface {
	View(ctx context.Context, path string) error
}

// Platform launches the operating system's default application for the
// file's type. The file extension drives type detection, which is why the
// open pipeline preserves the original material name on scratch copies.
type Platform struct{}

func (Platform) View(ctx context.Context, path string) error {
	logger := logctx.LoggerFromContext(ctx)

	bin, args := openerCommand()

	if _, err := exec.LookPath(bin); err != nil {
		return ErrUnavailable
	}

	logger.Debug("handing file to platform viewer", "viewer", bin, "path", path)

	cmd := exec.CommandContext(ctx, bin, append(args, path)...)
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to launch viewer %s: %w", bin, err)
	}

	// The viewer outlives this call; reap it in the background so the
	// process table stays clean.
	go func() { _ = cmd.Wait() }()

	return nil
}

// LocationHandler is the generic fallback: it asks the system URL handler to
// resolve a file:// location instead of a type-specific application.
type LocationHandler struct{}

func (LocationHandler) View(ctx context.Context, path string) error {
	bin, args := openerCommand()

	if _, err := exec.LookPath(bin); err != nil {
		return ErrUnavailable
	}

	cmd := exec.CommandContext(ctx, bin, append(args, "file://"+path)...)
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to launch location handler %s: %w", bin, err)
	}

	go func() { _ = cmd.Wait() }()

	return nil
}

func openerCommand() (string, []string) {
	switch runtime.GOOS {
	case "darwin":
		return "open", nil
	case "windows":
		return "rundll32", []string{"url.dll,FileProtocolHandler"}
	default:
		return "xdg-open", nil
	}
}
