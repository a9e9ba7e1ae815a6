// Package errdefs defines the failure kinds surfaced by the configuration
// transaction and the container supervisor. Callers classify an error with
// the Is* predicates rather than by inspecting messages.
package errdefs

import (
	"github.com/pkg/errors"
)

var (
	// ErrInvalidInput is returned for arguments rejected before any mutation.
	ErrInvalidInput = errors.New("invalid input")
	// ErrExternalTool is returned when an image pull or container engine call
	// fails.
	ErrExternalTool = errors.New("external tool failure")
	// ErrStartFailed is returned when the agent container started but was not
	// active once the settle window elapsed.
	ErrStartFailed = errors.New("agent failed to start")
	// ErrNoFallback is returned when a rollback is requested and there is no
	// backup configuration to restore.
	ErrNoFallback = errors.New("no fallback configuration")
	// ErrFilesystem is returned for any read, write or rename failure in the
	// configuration store.
	ErrFilesystem = errors.New("filesystem error")
)

// kindError attaches a kind to an underlying cause. Both are reachable
// through errors.Is.
type kindError struct {
	kind  error
	cause error
}

func (e *kindError) Error() string {
	return e.kind.Error() + ": " + e.cause.Error()
}

func (e *kindError) Unwrap() []error {
	return []error{e.kind, e.cause}
}

func classify(kind, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, kind) {
		return err
	}
	return &kindError{kind: kind, cause: err}
}

// InvalidInput marks err as ErrInvalidInput.
func InvalidInput(err error) error { return classify(ErrInvalidInput, err) }

// ExternalTool marks err as ErrExternalTool.
func ExternalTool(err error) error { return classify(ErrExternalTool, err) }

// StartFailed marks err as ErrStartFailed.
func StartFailed(err error) error { return classify(ErrStartFailed, err) }

// NoFallback marks err as ErrNoFallback.
func NoFallback(err error) error { return classify(ErrNoFallback, err) }

// Filesystem marks err as ErrFilesystem.
func Filesystem(err error) error { return classify(ErrFilesystem, err) }

// IsInvalidInput returns true if err is classified as ErrInvalidInput.
func IsInvalidInput(err error) bool { return errors.Is(err, ErrInvalidInput) }

// IsExternalTool returns true if err is classified as ErrExternalTool.
func IsExternalTool(err error) bool { return errors.Is(err, ErrExternalTool) }

// IsStartFailed returns true if err is classified as ErrStartFailed.
func IsStartFailed(err error) bool { return errors.Is(err, ErrStartFailed) }

// IsNoFallback returns true if err is classified as ErrNoFallback.
func IsNoFallback(err error) bool { return errors.Is(err, ErrNoFallback) }

// IsFilesystem returns true if err is classified as ErrFilesystem.
func IsFilesystem(err error) bool { return errors.Is(err, ErrFilesystem) }

// Kind returns a short name for the kind of err, or "unknown".
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case IsInvalidInput(err):
		return "invalid-input"
	case IsNoFallback(err):
		return "no-fallback"
	case IsStartFailed(err):
		return "start-failed"
	case IsFilesystem(err):
		return "filesystem"
	case IsExternalTool(err):
		return "external-tool"
	}
	return "unknown"
}

// FromKind returns the sentinel for a name produced by Kind, or nil.
func FromKind(kind string) error {
	switch kind {
	case "invalid-input":
		return ErrInvalidInput
	case "no-fallback":
		return ErrNoFallback
	case "start-failed":
		return ErrStartFailed
	case "filesystem":
		return ErrFilesystem
	case "external-tool":
		return ErrExternalTool
	}
	return nil
}

// remoteError carries a kind and a message received from another process.
type remoteError struct {
	kind    error
	message string
}

func (e *remoteError) Error() string { return e.message }

func (e *remoteError) Unwrap() error { return e.kind }

// FromMessage rebuilds an error from its kind name and message, as carried
// across a process boundary. Unknown kinds yield an unclassified error.
func FromMessage(kind, message string) error {
	sentinel := FromKind(kind)
	if sentinel == nil {
		return errors.New(message)
	}
	return &remoteError{kind: sentinel, message: message}
}
