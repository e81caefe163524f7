// Package dockerr defines the error-kind taxonomy shared across dockvirt's
// core packages and the exit codes the CLI maps them to. Kinds are sentinel
// values checked with errors.Is, not a hierarchy of error types: every
// producer still wraps with fmt.Errorf("...: %w", err) the way the rest of
// this codebase does.
package dockerr

import "errors"

// Kind identifies one of the error categories from the error-handling design.
type Kind string

const (
	ConfigInvalid    Kind = "ConfigInvalid"
	UnknownOS        Kind = "UnknownOS"
	ToolMissing      Kind = "ToolMissing"
	NetworkInactive  Kind = "NetworkInactive"
	PoolInactive     Kind = "PoolInactive"
	PermissionDenied Kind = "PermissionDenied"
	ImageFetch       Kind = "ImageFetch"
	DiskCreate       Kind = "DiskCreate"
	DomainCreate     Kind = "DomainCreate"
	SpecConflict     Kind = "SpecConflict"
	LeaseTimeout     Kind = "LeaseTimeout"
	HTTPTimeout      Kind = "HTTPTimeout"
	Cancelled        Kind = "Cancelled"
	Internal         Kind = "Internal"
)

// ExitCode maps a Kind to its documented process exit code.
func (k Kind) ExitCode() int {
	switch k {
	case ConfigInvalid, UnknownOS:
		return 2
	case ToolMissing, NetworkInactive, PoolInactive, PermissionDenied:
		return 3
	case DomainCreate, SpecConflict:
		return 4
	case LeaseTimeout, HTTPTimeout:
		return 5
	case Cancelled:
		return 6
	default:
		return 1
	}
}

// Error pairs a Kind with the offending value and a suggested next step, so
// every terminal error surfaces the kind, a human message, the concrete
// offending value, and a remediation hint.
type Error struct {
	Kind    Kind
	Value   string // the offending path, URL, or domain name
	Hint    string // suggested next step, often "run `dockvirt heal`"
	Err     error
}

func (e *Error) Error() string {
	msg := string(e.Kind)
	if e.Value != "" {
		msg += ": " + e.Value
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	if e.Hint != "" {
		msg += " (" + e.Hint + ")"
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// New builds an *Error for the given kind.
func New(kind Kind, value, hint string, err error) *Error {
	return &Error{Kind: kind, Value: value, Hint: hint, Err: err}
}

// Is reports whether err carries the given Kind.
func Is(err error, kind Kind) bool {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind == kind
	}
	return false
}

// KindOf extracts the Kind carried by err, defaulting to Internal.
func KindOf(err error) Kind {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return Internal
}
