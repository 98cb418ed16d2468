// Package fault defines the typed error taxonomy surfaced by core operations.
// Handlers map Kind to an HTTP status; Code carries the finer-grained reason.
package fault

import (
	"errors"
	"fmt"
)

type Kind int

const (
	KindUnknown Kind = iota
	// KindValidation covers missing or out-of-range input fields.
	KindValidation
	// KindPermissionDenied covers role and ownership mismatches.
	KindPermissionDenied
	// KindNotFound covers unknown or soft-deleted entities.
	KindNotFound
	// KindStateConflict covers transitions attempted from an incompatible
	// status, including the lost race on a conditional update.
	KindStateConflict
	// KindInvariant covers settlement invariant violations: a second invoice
	// for an order or a second earnings row for an invoice.
	KindInvariant
)

type Error struct {
	Kind Kind
	Code string
	Msg  string
}

func (e *Error) Error() string { return e.Msg }

func newf(kind Kind, code, format string, args ...any) *Error {
	return &Error{Kind: kind, Code: code, Msg: fmt.Sprintf(format, args...)}
}

func Validationf(format string, args ...any) *Error {
	return newf(KindValidation, "validation", format, args...)
}

func PermissionDeniedf(format string, args ...any) *Error {
	return newf(KindPermissionDenied, "permission_denied", format, args...)
}

// ForbiddenRolef rejects a caller whose role can never perform the operation,
// e.g. a provider creating an order or a customer bidding on their own request.
func ForbiddenRolef(format string, args ...any) *Error {
	return newf(KindPermissionDenied, "forbidden_role", format, args...)
}

func NotFoundf(format string, args ...any) *Error {
	return newf(KindNotFound, "not_found", format, args...)
}

func StateConflictf(format string, args ...any) *Error {
	return newf(KindStateConflict, "state_conflict", format, args...)
}

// AlreadyAssignedf rejects an accept attempt on an order bound to a different
// provider.
func AlreadyAssignedf(format string, args ...any) *Error {
	return newf(KindStateConflict, "already_assigned", format, args...)
}

func Invariantf(format string, args ...any) *Error {
	return newf(KindInvariant, "settlement_invariant", format, args...)
}

// KindOf extracts the Kind from err, or KindUnknown for untyped errors.
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return KindUnknown
}

// CodeOf extracts the Code from err, or "" for untyped errors.
func CodeOf(err error) string {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Code
	}
	return ""
}

func IsNotFound(err error) bool      { return KindOf(err) == KindNotFound }
func IsStateConflict(err error) bool { return KindOf(err) == KindStateConflict }
func IsInvariant(err error) bool     { return KindOf(err) == KindInvariant }
