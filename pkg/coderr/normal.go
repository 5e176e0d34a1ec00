// Copyright 2024 BrokerRouter Authors. Licensed under Apache-2.0.

package coderr

import (
	"fmt"

	"github.com/pkg/errors"
)

var _ CodeError = &normalCodeError{}

// normalCodeError is the leaf error in the error chain: the error is
// generated in our codebase rather than wrapping a third-party one.
type normalCodeError struct {
	code  Code
	msg   string
	cause error
}

func (e *normalCodeError) Error() string {
	if e.cause == nil {
		return fmt.Sprintf("code:%d, msg:%s", e.code, e.msg)
	}
	return fmt.Sprintf("code:%d, msg:%s, cause:%v", e.code, e.msg, e.cause)
}

func (e *normalCodeError) Code() Code {
	return e.code
}

func (e *normalCodeError) Unwrap() error {
	return e.cause
}

func (e *normalCodeError) WithCause(cause error) CodeError {
	return &normalCodeError{code: e.code, msg: e.msg, cause: errors.WithStack(cause)}
}

func (e *normalCodeError) WithCausef(format string, args ...any) CodeError {
	return &normalCodeError{code: e.code, msg: e.msg, cause: errors.Errorf(format, args...)}
}
