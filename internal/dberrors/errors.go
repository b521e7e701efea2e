// Package dberrors classifies the error kinds the replication engine can
// raise, following the wrap-and-classify style
// Icinga-icinga-go-library uses github.com/pkg/errors for.
package dberrors

import "github.com/pkg/errors"

// Kind is one of the six error kinds the engine distinguishes.
type Kind string

const (
	// ConnectionFailed marks a failure to connect or reconnect an Adapter.
	ConnectionFailed Kind = "connection_failed"
	// QueryFailed marks a failure of any Adapter read or write call.
	QueryFailed Kind = "query_failed"
	// SchemaIncompatible marks an ALTER rejected by the target engine.
	SchemaIncompatible Kind = "schema_incompatible"
	// MissingKey marks an operation that needed a primary key and had none.
	MissingKey Kind = "missing_key"
	// ConfigurationInvalid marks invalid configuration: missing connection,
	// duplicate name, a pair referencing an unknown connection, etc.
	ConfigurationInvalid Kind = "configuration_invalid"
	// Fatal marks an unhandled error that triggers daemon shutdown.
	Fatal Kind = "fatal"
)

// Error wraps an underlying cause with a Kind.
type Error struct {
	Kind  Kind
	cause error
}

func (e *Error) Error() string {
	if e.cause == nil {
		return string(e.Kind)
	}
	return string(e.Kind) + ": " + e.cause.Error()
}

func (e *Error) Unwrap() error { return e.cause }

// New builds an Error of the given kind wrapping cause with msg, matching
// the pkg/errors "wrap with context, keep the original cause walkable"
// convention used throughout Icinga-icinga-go-library. With a nil cause,
// msg alone becomes the cause.
func New(kind Kind, cause error, msg string) *Error {
	if cause == nil {
		return &Error{Kind: kind, cause: errors.New(msg)}
	}
	return &Error{Kind: kind, cause: errors.Wrap(cause, msg)}
}

// Is reports whether err is a dberrors.Error of the given kind.
func Is(err error, kind Kind) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return e.Kind == kind
}
