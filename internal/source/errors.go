package source

import (
	"errors"
	"fmt"
)

// ErrClosed reports a capability call against a closed source.
var ErrClosed = errors.New("source is closed")

// LoadError wraps a failure while loading one extension package. Load
// errors are fatal for that extension only.
type LoadError struct {
	Path  string
	Stage string
	Err   error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("load %s: %s: %v", e.Path, e.Stage, e.Err)
}

func (e *LoadError) Unwrap() error {
	return e.Err
}

// ManifestError reports a missing or malformed source.json.
type ManifestError struct {
	Detail string
	Err    error
}

func (e *ManifestError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("manifest: %s: %v", e.Detail, e.Err)
	}
	return fmt.Sprintf("manifest: %s", e.Detail)
}

func (e *ManifestError) Unwrap() error {
	return e.Err
}

// CallError wraps a failed capability call with the source and
// capability it belongs to.
type CallError struct {
	SourceID   string
	Capability string
	Err        error
}

func (e *CallError) Error() string {
	return fmt.Sprintf("source %s: %s: %v", e.SourceID, e.Capability, e.Err)
}

func (e *CallError) Unwrap() error {
	return e.Err
}

// MissingExportError reports a capability whose guest export is absent.
type MissingExportError struct {
	Export string
}

func (e *MissingExportError) Error() string {
	return fmt.Sprintf("guest does not export %q", e.Export)
}

// AlreadyRegisteredError reports a duplicate source ID in the registry.
type AlreadyRegisteredError struct {
	SourceID string
}

func (e *AlreadyRegisteredError) Error() string {
	return fmt.Sprintf("source %q is already registered", e.SourceID)
}

// NotFoundError reports a registry miss.
type NotFoundError struct {
	SourceID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("source %q is not registered", e.SourceID)
}
