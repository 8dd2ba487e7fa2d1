package store

import "fmt"

// NotFoundError indicates the resource was not found (or user lacks access).
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Resource, e.ID)
}

// ValidationError indicates a client-side validation failure.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error on %s: %s", e.Field, e.Message)
}

// ConflictError indicates a uniqueness/conflict violation.
type ConflictError struct {
	Message string
}

func (e *ConflictError) Error() string {
	return e.Message
}

// ForbiddenError indicates insufficient access.
type ForbiddenError struct{}

func (e *ForbiddenError) Error() string {
	return "forbidden"
}

// AlreadyDeletedError indicates a mutation against a soft-deleted message.
// Re-deleting is normally an idempotent no-op; this error surfaces only for
// edits and for strict-mode deletes.
type AlreadyDeletedError struct {
	MessageID int64
}

func (e *AlreadyDeletedError) Error() string {
	return fmt.Sprintf("message already deleted: %d", e.MessageID)
}

// AlreadyErasedError indicates strict-mode erasure against an account that
// was already anonymized. Non-strict erasure returns a zero-count report
// instead.
type AlreadyErasedError struct {
	UserID int64
}

func (e *AlreadyErasedError) Error() string {
	return fmt.Sprintf("account already erased: %d", e.UserID)
}

// UnknownIdentityError indicates sentinel resolution against an id that never
// existed. This is fatal and distinct from "erased": an erased identity
// resolves to a sentinel, an unknown one does not resolve at all.
type UnknownIdentityError struct {
	UserID int64
}

func (e *UnknownIdentityError) Error() string {
	return fmt.Sprintf("unknown identity: %d", e.UserID)
}
