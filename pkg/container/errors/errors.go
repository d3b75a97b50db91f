// Package errors provides error types and error codes for the container
// storage layer. This is a leaf package with no internal dependencies so that
// the store variants, the handle cache and the lifecycle manager can share one
// error vocabulary without import cycles.
//
// Import graph: errors <- block, store <- dbcache <- container
package errors

import (
	"errors"
	"fmt"
)

// ErrorCode represents the type of error that occurred.
type ErrorCode int

const (
	// ErrDirectoryCreate indicates a container directory could not be created.
	ErrDirectoryCreate ErrorCode = iota + 1

	// ErrUnrecognizedSchemaVersion indicates a schema tag this build does not
	// know. It is never defaulted: it signals a config/software mismatch.
	ErrUnrecognizedSchemaVersion

	// ErrMissingStoreFile indicates the container's store is absent on disk.
	// Non-fatal for node startup: the container is skipped and left for repair.
	ErrMissingStoreFile

	// ErrChecksumMismatch indicates the container descriptor failed verification.
	ErrChecksumMismatch

	// ErrStoreOpen indicates the embedded store could not be opened.
	ErrStoreOpen

	// ErrResourceBusy indicates the store is already open incompatibly
	// (cached elsewhere, exclusively held, or the cache is at capacity).
	ErrResourceBusy

	// ErrBlockParse indicates a block record could not be decoded.
	ErrBlockParse

	// ErrContainerNotEmpty indicates a non-forced delete found remaining data.
	ErrContainerNotEmpty

	// ErrNotFound indicates the requested key or entry does not exist.
	ErrNotFound

	// ErrAlreadyExists indicates the entry already exists.
	ErrAlreadyExists

	// ErrClosed indicates the store or cache has been closed.
	ErrClosed

	// ErrInvalidArgument indicates an invalid argument was provided.
	ErrInvalidArgument

	// ErrIOError indicates a filesystem or store I/O error.
	ErrIOError
)

// String returns a human-readable name for the error code.
func (e ErrorCode) String() string {
	switch e {
	case ErrDirectoryCreate:
		return "DirectoryCreate"
	case ErrUnrecognizedSchemaVersion:
		return "UnrecognizedSchemaVersion"
	case ErrMissingStoreFile:
		return "MissingStoreFile"
	case ErrChecksumMismatch:
		return "ChecksumMismatch"
	case ErrStoreOpen:
		return "StoreOpen"
	case ErrResourceBusy:
		return "ResourceBusy"
	case ErrBlockParse:
		return "BlockParse"
	case ErrContainerNotEmpty:
		return "ContainerNotEmpty"
	case ErrNotFound:
		return "NotFound"
	case ErrAlreadyExists:
		return "AlreadyExists"
	case ErrClosed:
		return "Closed"
	case ErrInvalidArgument:
		return "InvalidArgument"
	case ErrIOError:
		return "IOError"
	default:
		return fmt.Sprintf("Unknown(%d)", e)
	}
}

// NotEmptyReason qualifies an ErrContainerNotEmpty error.
type NotEmptyReason int

const (
	ReasonNone NotEmptyReason = iota

	// ReasonFilesOnDisk means the chunks directory still has entries.
	ReasonFilesOnDisk

	// ReasonBlockTableNotEmpty means the block table still has live rows.
	ReasonBlockTableNotEmpty

	// ReasonBlockCountNonZero means the in-memory block count is not zero.
	ReasonBlockCountNonZero
)

func (r NotEmptyReason) String() string {
	switch r {
	case ReasonNone:
		return "None"
	case ReasonFilesOnDisk:
		return "FilesOnDisk"
	case ReasonBlockTableNotEmpty:
		return "BlockTableNotEmpty"
	case ReasonBlockCountNonZero:
		return "BlockCountNonZero"
	default:
		return fmt.Sprintf("Unknown(%d)", int(r))
	}
}

// StoreError represents a container storage error with an error code.
type StoreError struct {
	Code    ErrorCode
	Message string
	Path    string

	// Reason is only set for ErrContainerNotEmpty.
	Reason NotEmptyReason

	// Err is the underlying cause, if any.
	Err error
}

// Error implements the error interface.
func (e *StoreError) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Code, e.Message)
	if e.Reason != ReasonNone {
		msg = fmt.Sprintf("%s: %s (reason: %s)", e.Code, e.Message, e.Reason)
	}
	if e.Path != "" {
		msg += fmt.Sprintf(" (path: %s)", e.Path)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *StoreError) Unwrap() error {
	return e.Err
}

// Is reports whether target is a StoreError with the same code. This lets
// callers match with errors.Is(err, &StoreError{Code: ErrResourceBusy}).
func (e *StoreError) Is(target error) bool {
	t, ok := target.(*StoreError)
	if !ok {
		return false
	}
	return t.Code == e.Code && (t.Reason == ReasonNone || t.Reason == e.Reason)
}

// ============================================================================
// Factory Functions
// ============================================================================

// NewDirectoryCreateError creates a DirectoryCreate error.
func NewDirectoryCreateError(path string, cause error) *StoreError {
	return &StoreError{
		Code:    ErrDirectoryCreate,
		Message: "unable to create directory",
		Path:    path,
		Err:     cause,
	}
}

// NewUnrecognizedSchemaVersionError creates an UnrecognizedSchemaVersion error.
func NewUnrecognizedSchemaVersionError(version string) *StoreError {
	return &StoreError{
		Code:    ErrUnrecognizedSchemaVersion,
		Message: fmt.Sprintf("unrecognized schema version %q", version),
	}
}

// NewMissingStoreFileError creates a MissingStoreFile error.
func NewMissingStoreFileError(path string) *StoreError {
	return &StoreError{
		Code:    ErrMissingStoreFile,
		Message: "container store is missing",
		Path:    path,
	}
}

// NewChecksumMismatchError creates a ChecksumMismatch error.
func NewChecksumMismatchError(path, expected, actual string) *StoreError {
	return &StoreError{
		Code:    ErrChecksumMismatch,
		Message: fmt.Sprintf("checksum mismatch: stored %s, computed %s", expected, actual),
		Path:    path,
	}
}

// NewStoreOpenError creates a StoreOpen error.
func NewStoreOpenError(path string, cause error) *StoreError {
	return &StoreError{
		Code:    ErrStoreOpen,
		Message: "failed to open store",
		Path:    path,
		Err:     cause,
	}
}

// NewResourceBusyError creates a ResourceBusy error.
func NewResourceBusyError(path, message string) *StoreError {
	return &StoreError{
		Code:    ErrResourceBusy,
		Message: message,
		Path:    path,
	}
}

// NewBlockParseError creates a BlockParse error for the given block key.
func NewBlockParseError(key string, cause error) *StoreError {
	return &StoreError{
		Code:    ErrBlockParse,
		Message: fmt.Sprintf("failed to parse block %q", key),
		Err:     cause,
	}
}

// NewContainerNotEmptyError creates a ContainerNotEmpty error.
func NewContainerNotEmptyError(containerID int64, reason NotEmptyReason) *StoreError {
	return &StoreError{
		Code:    ErrContainerNotEmpty,
		Message: fmt.Sprintf("container %d is not empty", containerID),
		Reason:  reason,
	}
}

// NewNotFoundError creates a NotFound error.
func NewNotFoundError(key, resourceType string) *StoreError {
	return &StoreError{
		Code:    ErrNotFound,
		Message: fmt.Sprintf("%s %q not found", resourceType, key),
	}
}

// NewAlreadyExistsError creates an AlreadyExists error.
func NewAlreadyExistsError(path string) *StoreError {
	return &StoreError{
		Code:    ErrAlreadyExists,
		Message: "already exists",
		Path:    path,
	}
}

// NewClosedError creates a Closed error.
func NewClosedError(what string) *StoreError {
	return &StoreError{
		Code:    ErrClosed,
		Message: fmt.Sprintf("%s is closed", what),
	}
}

// NewInvalidArgumentError creates an InvalidArgument error.
func NewInvalidArgumentError(message string) *StoreError {
	return &StoreError{
		Code:    ErrInvalidArgument,
		Message: message,
	}
}

// NewIOError wraps a filesystem or store failure.
func NewIOError(path, message string, cause error) *StoreError {
	return &StoreError{
		Code:    ErrIOError,
		Message: message,
		Path:    path,
		Err:     cause,
	}
}

// ============================================================================
// Error Type Checking Helpers
// ============================================================================

// CodeOf returns the code of the first StoreError in err's chain, or 0.
func CodeOf(err error) ErrorCode {
	var storeErr *StoreError
	if errors.As(err, &storeErr) {
		return storeErr.Code
	}
	return 0
}

// ReasonOf returns the not-empty reason of err, or ReasonNone.
func ReasonOf(err error) NotEmptyReason {
	var storeErr *StoreError
	if errors.As(err, &storeErr) {
		return storeErr.Reason
	}
	return ReasonNone
}

// IsResourceBusy returns true if the error is a ResourceBusy error.
func IsResourceBusy(err error) bool {
	return CodeOf(err) == ErrResourceBusy
}

// IsMissingStoreFile returns true if the error is a MissingStoreFile error.
func IsMissingStoreFile(err error) bool {
	return CodeOf(err) == ErrMissingStoreFile
}

// IsNotFound returns true if the error is a NotFound error.
func IsNotFound(err error) bool {
	return CodeOf(err) == ErrNotFound
}

// IsContainerNotEmpty returns true if the error is a ContainerNotEmpty error.
func IsContainerNotEmpty(err error) bool {
	return CodeOf(err) == ErrContainerNotEmpty
}

// IsChecksumMismatch returns true if the error is a ChecksumMismatch error.
func IsChecksumMismatch(err error) bool {
	return CodeOf(err) == ErrChecksumMismatch
}

// IsBlockParse returns true if the error is a BlockParse error.
func IsBlockParse(err error) bool {
	return CodeOf(err) == ErrBlockParse
}
