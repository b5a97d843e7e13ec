package core

import (
	"errors"
	"fmt"
	"unicode/utf8"
)

// ErrorKind classifies failures surfaced to the shell.
type ErrorKind string

// Error kinds.
const (
	KindDuplicateProfile    ErrorKind = "duplicate_profile"
	KindNotFound            ErrorKind = "not_found"
	KindProfileInUse        ErrorKind = "profile_in_use"
	KindInvalidProfile      ErrorKind = "invalid_profile"
	KindConnection          ErrorKind = "connection"
	KindNoActiveSession     ErrorKind = "no_active_session"
	KindQueryExecution      ErrorKind = "query_execution"
	KindQueryCancelled      ErrorKind = "query_cancelled"
	KindSchemaIntrospection ErrorKind = "schema_introspection"
	KindInternal            ErrorKind = "internal"
)

// Sentinels for errors.Is matching. Only the Kind is compared.
var (
	ErrDuplicateProfile    = &Error{Kind: KindDuplicateProfile}
	ErrNotFound            = &Error{Kind: KindNotFound}
	ErrProfileInUse        = &Error{Kind: KindProfileInUse}
	ErrInvalidProfile      = &Error{Kind: KindInvalidProfile}
	ErrConnection          = &Error{Kind: KindConnection}
	ErrNoActiveSession     = &Error{Kind: KindNoActiveSession}
	ErrQueryExecution      = &Error{Kind: KindQueryExecution}
	ErrQueryCancelled      = &Error{Kind: KindQueryCancelled}
	ErrSchemaIntrospection = &Error{Kind: KindSchemaIntrospection}
)

// Error is the single error type carried across component boundaries.
type Error struct {
	Kind    ErrorKind
	Subject string // profile name, entry id, table; may be empty
	Msg     string
	Cause   error
}

// NewError creates an Error with a formatted message.
func NewError(kind ErrorKind, subject, format string, args ...any) *Error {
	return &Error{Kind: kind, Subject: subject, Msg: fmt.Sprintf(format, args...)}
}

// WrapError creates an Error around cause.
func WrapError(kind ErrorKind, subject string, cause error, msg string) *Error {
	return &Error{Kind: kind, Subject: subject, Msg: msg, Cause: cause}
}

func (e *Error) Error() string {
	msg := e.Msg
	if msg == "" {
		msg = string(e.Kind)
	}
	if e.Subject != "" {
		msg = fmt.Sprintf("%s: %s", e.Subject, msg)
	}
	if e.Cause != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Cause }

// Is reports whether target is an *Error of the same kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

// KindOf returns the kind of err, KindInternal for foreign errors and "" for nil.
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// Truncate shortens s to at most limit bytes without splitting a rune.
// An ellipsis is appended when anything was cut.
func Truncate(s string, limit int) string {
	if limit <= 0 || len(s) <= limit {
		return s
	}
	const ellipsis = "…"
	cut := limit - len(ellipsis)
	if cut < 0 {
		cut = 0
	}
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + ellipsis
}
