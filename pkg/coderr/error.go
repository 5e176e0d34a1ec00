// Copyright 2024 BrokerRouter Authors. Licensed under Apache-2.0.

// Package coderr provides typed, machine-checkable errors: every error
// declared with NewCodeError carries a stable Code() in addition to its
// message, so callers can branch on error kind without string matching.
package coderr

import "github.com/pkg/errors"

// Code identifies the kind of a CodeError, independent of its message.
type Code int

const (
	Internal Code = iota
	InvalidParams
	NotFound
	Conflict
	Unavailable
)

// CodeError is an error with an extra method Code().
type CodeError interface {
	error
	Code() Code
	// WithCause attaches an underlying cause, preserving Code().
	WithCause(cause error) CodeError
	// WithCausef attaches a formatted cause, preserving Code().
	WithCausef(format string, args ...any) CodeError
}

// EqualsByCode checks whether the cause of err is the kind of error
// specified by expectCode. Returns false if the cause of err is not a
// CodeError.
func EqualsByCode(err error, expectCode Code) bool {
	cause := errors.Cause(err)
	cerr, ok := cause.(CodeError)
	if !ok {
		return false
	}
	return expectCode == cerr.Code()
}

// EqualsByValue checks whether the cause of err is expectErr.
func EqualsByValue(err error, expectErr error) bool {
	cause := errors.Cause(err)
	return errors.Is(cause, expectErr)
}

// NewCodeError declares a new leaf CodeError, generated in this codebase.
func NewCodeError(code Code, msg string) CodeError {
	return &normalCodeError{code: code, msg: msg}
}
