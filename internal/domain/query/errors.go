package query

import (
	"errors"
	"strings"
)

var (
	// ErrInput indicates a missing or malformed query/SQL field.
	ErrInput = errors.New("invalid input")
	// ErrValidationRejected indicates the statement failed the SQL security policy.
	ErrValidationRejected = errors.New("query validation failed")
	// ErrAuthFailure indicates no warehouse credential could be obtained.
	ErrAuthFailure = errors.New("warehouse authentication failed")
	// ErrExecution indicates the warehouse rejected or failed the statement.
	ErrExecution = errors.New("warehouse execution failed")
	// ErrPollTimeout indicates an asynchronous statement did not finish within the poll budget.
	ErrPollTimeout = errors.New("warehouse poll timed out")
	// ErrSummaryUnavailable indicates the completion service could not narrate the result.
	ErrSummaryUnavailable = errors.New("summary service unavailable")
)

// Error carries a classified gateway failure. Kind is one of the sentinels
// above; Message and Detail are safe to show to callers.
type Error struct {
	Kind    error
	Message string
	Detail  string
	Query   string
	SQL     string
	Err     error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.Message)
	if e.Message == "" && e.Kind != nil {
		b.WriteString(e.Kind.Error())
	}
	if e.Detail != "" {
		b.WriteString(": ")
		b.WriteString(e.Detail)
	}
	if e.Err != nil {
		b.WriteString(" (")
		b.WriteString(e.Err.Error())
		b.WriteString(")")
	}
	return b.String()
}

func (e *Error) Unwrap() []error {
	out := make([]error, 0, 2)
	if e.Kind != nil {
		out = append(out, e.Kind)
	}
	if e.Err != nil {
		out = append(out, e.Err)
	}
	return out
}

// InputError builds an ErrInput failure with a user-facing message.
func InputError(msg string) *Error {
	return &Error{Kind: ErrInput, Message: msg}
}
