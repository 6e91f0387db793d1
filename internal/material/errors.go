package material

import "fmt"

// AlreadyExistsError signals a duplicate download attempt for a live
// (class, material) key, or one that is currently in flight. It is not
// retried automatically.
type AlreadyExistsError struct {
	ClassID string // Owning class of the material
	Name    string // Material name that collided
	Reason  string // Human-readable explanation (already saved vs. in flight)
}

func (e *AlreadyExistsError) Error() string {
	return fmt.Sprintf("material %q in class %s already exists: %s", e.Name, e.ClassID, e.Reason)
}

// InvalidInputError signals malformed material metadata such as an
// unparsable URL or a missing name.
type InvalidInputError struct {
	Field  string // The offending field ("name", "url", ...)
	Reason string // Human-readable explanation
}

func (e *InvalidInputError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// NetworkError represents transfer and remote API failures including non-2xx
// responses, connection errors, and timeouts.
type NetworkError struct {
	Operation  string // The operation that failed (e.g., "fetch_material")
	StatusCode int    // HTTP status code, if applicable (0 for transport errors)
	APIMessage string // Error message from the remote side or transport layer
	Err        error  // Underlying error, if any
}

func (e *NetworkError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("network error during %s (HTTP %d): %s", e.Operation, e.StatusCode, e.APIMessage)
	}

	return fmt.Sprintf("network error during %s: %s", e.Operation, e.APIMessage)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// NotFoundError signals that an operation referenced a record or durable
// file that does not exist. Deletions treat this condition as a no-op and
// never produce it.
type NotFoundError struct {
	Kind    string // "record" or "file"
	ClassID string
	Name    string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s for material %q in class %s not found", e.Kind, e.Name, e.ClassID)
}

// NoViewerError signals that no platform capability could present the file.
type NoViewerError struct {
	Path string // Scratch path that could not be presented
}

func (e *NoViewerError) Error() string {
	return fmt.Sprintf("no viewer available for %s: install an application that can open this file type", e.Path)
}

// IOError is the catch-all for disk and filesystem failures. Pipelines
// attempt best-effort cleanup before surfacing it.
type IOError struct {
	Operation string // The operation that failed (e.g., "write_durable")
	Path      string // Path involved, if any
	Err       error  // Underlying error
}

func (e *IOError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("i/o failure during %s on %s: %v", e.Operation, e.Path, e.Err)
	}

	return fmt.Sprintf("i/o failure during %s: %v", e.Operation, e.Err)
}

func (e *IOError) Unwrap() error {
	return e.Err
}
