// Package errs implements the error-kind taxonomy of spec §7: a small closed
// enum carried alongside a wrapped error, instead of trait-object style
// dynamic dispatch (Design Note, §9). Callers wrap at service boundaries with
// github.com/pkg/errors to keep a stack trace, then classify with Kind/Is.
package errs

import (
	"github.com/pkg/errors"
)

// Kind is the closed taxonomy from spec §7. It never grows a reflection-based
// dispatch table; front doors switch on it directly.
type Kind int

const (
	// KindUnknown is never a valid classification for a returned error; it
	// exists only as the zero value.
	KindUnknown Kind = iota
	// KindTransient covers queue, cache, DB and RPC failures that are
	// retried at the boundary before being surfaced.
	KindTransient
	// KindInvalidArgument covers precondition violations: bad id format,
	// duplicate friendship, malformed request fields.
	KindInvalidArgument
	// KindNotFound covers precondition violations where a referenced
	// entity does not exist.
	KindNotFound
	// KindAlreadyExists covers precondition violations where a referenced
	// entity already exists (e.g. duplicate friendship).
	KindAlreadyExists
	// KindAuthentication covers missing/invalid/expired token, bad issuer.
	KindAuthentication
	// KindPermissionDenied covers authorisation failures (admin/owner/
	// friendship required).
	KindPermissionDenied
	// KindInternal covers internal invariant violations: parse failure of
	// a queue record, missing mandatory field. These are logged and
	// dropped; they never block offset commit.
	KindInternal
	// KindUnavailable covers dependency unavailability surfaced after
	// bounded retries are exhausted.
	KindUnavailable
)

func (k Kind) String() string {
	switch k {
	case KindTransient:
		return "transient"
	case KindInvalidArgument:
		return "invalid_argument"
	case KindNotFound:
		return "not_found"
	case KindAlreadyExists:
		return "already_exists"
	case KindAuthentication:
		return "authentication"
	case KindPermissionDenied:
		return "permission_denied"
	case KindInternal:
		return "internal"
	case KindUnavailable:
		return "unavailable"
	default:
		return "unknown"
	}
}

// kindError is the concrete carrier; unexported so callers are forced to go
// through New/Wrap and inspect via Of.
type kindError struct {
	kind Kind
	err  error
}

func (e *kindError) Error() string { return e.err.Error() }
func (e *kindError) Unwrap() error { return e.err }

// New builds a fresh error of kind k with a stack trace attached.
func New(k Kind, msg string) error {
	return &kindError{kind: k, err: errors.New(msg)}
}

// Wrap attaches kind k, msg and a fresh stack trace to an existing error.
// Wrap(nil, ...) returns nil.
func Wrap(err error, k Kind, msg string) error {
	if err == nil {
		return nil
	}
	return &kindError{kind: k, err: errors.Wrap(err, msg)}
}

// Of returns the classified Kind of err, walking the Unwrap chain. Errors
// that never passed through New/Wrap classify as KindUnknown.
func Of(err error) Kind {
	var ke *kindError
	for err != nil {
		if k, ok := err.(*kindError); ok {
			ke = k
			break
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			break
		}
		err = u.Unwrap()
	}
	if ke == nil {
		return KindUnknown
	}
	return ke.kind
}

// Is reports whether err classifies as kind k.
func Is(err error, k Kind) bool { return Of(err) == k }
