// Package fault defines the error taxonomy shared by the lending core.
//
// Every refusal the engine can produce maps to exactly one Kind and one
// machine-readable Code, so callers can distinguish "the member does not
// exist" from "the member is suspended" without parsing messages.
package fault

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an error for callers.
type Kind int

const (
	KindUnknown Kind = iota
	// KindNotFound reports an absent Member, Document, or Loan.
	KindNotFound
	// KindConflict reports a state clash, e.g. the item is already on loan.
	KindConflict
	// KindDenied reports a business-rule refusal. Never transient.
	KindDenied
	// KindUnavailable reports a store/transaction failure. The whole
	// operation is safe to retry from scratch.
	KindUnavailable
	// KindInvariant reports internal inconsistency. Always a defect.
	KindInvariant
	// KindInvalid reports malformed caller input.
	KindInvalid
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindDenied:
		return "denied"
	case KindUnavailable:
		return "unavailable"
	case KindInvariant:
		return "invariant"
	case KindInvalid:
		return "invalid"
	default:
		return "unknown"
	}
}

// Codes for the individual refusals of the borrow lifecycle.
const (
	CodeItemUnavailable     = "item_unavailable"
	CodeBorrowLimitReached  = "borrow_limit_reached"
	CodeMemberSuspended     = "member_suspended_or_banned"
	CodeHasOverdueItems     = "has_overdue_items"
	CodeAlreadyReturned     = "already_returned"
	CodeDocumentOnRecord    = "document_on_record"
	CodeMemberOnRecord      = "member_on_record"
	CodeDuplicateISBN       = "duplicate_isbn"
	CodeRateLimited         = "rate_limited"
)

// Error carries a Kind, a stable Code, and a human-readable message.
type Error struct {
	Kind    Kind
	Code    string
	Message string
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	if e.Code != "" {
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.cause }

// NotFound reports that the named entity does not exist.
func NotFound(entity, id string) *Error {
	return &Error{
		Kind:    KindNotFound,
		Code:    entity + "_not_found",
		Message: fmt.Sprintf("no %s found with id %s", entity, id),
	}
}

// Conflict reports a state clash.
func Conflict(code, message string) *Error {
	return &Error{Kind: KindConflict, Code: code, Message: message}
}

// Denied reports a business-rule refusal.
func Denied(code, message string) *Error {
	return &Error{Kind: KindDenied, Code: code, Message: message}
}

// Unavailable reports a store failure; the caller may retry the operation.
func Unavailable(message string, cause error) *Error {
	return &Error{Kind: KindUnavailable, Code: "store_unavailable", Message: message, cause: cause}
}

// Invariant reports internal inconsistency that must surface loudly.
func Invariant(message string) *Error {
	return &Error{Kind: KindInvariant, Code: "invariant_violation", Message: message}
}

// Invalid reports malformed caller input.
func Invalid(err error) *Error {
	return &Error{Kind: KindInvalid, Code: "invalid_argument", Message: err.Error(), cause: err}
}

// KindOf extracts the Kind from err, or KindUnknown.
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return KindUnknown
}

// CodeOf extracts the stable code from err, or "".
func CodeOf(err error) string {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Code
	}
	return ""
}

// IsKind reports whether err carries the given Kind.
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// HTTPStatus maps an error to the status code the API layer responds with.
// Throttling is the one refusal that is transient for the caller, so it
// gets 429 rather than the business-denial status.
func HTTPStatus(err error) int {
	if CodeOf(err) == CodeRateLimited {
		return http.StatusTooManyRequests
	}
	switch KindOf(err) {
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	case KindDenied:
		return http.StatusUnprocessableEntity
	case KindUnavailable:
		return http.StatusServiceUnavailable
	case KindInvalid:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
