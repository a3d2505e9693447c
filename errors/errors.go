// Copyright © 2025 Prabhjot Singh Sethi, All Rights reserved
// Author: Prabhjot Singh Sethi <prabhjot.sethi@gmail.com>

package errors

import "fmt"

// GetErrCode returns the error code if the error is associated to a
// recognizable error type, Unknown otherwise.
func GetErrCode(err error) ErrCode {
	val, ok := err.(*Error)
	if ok {
		return val.code
	}
	return Unknown
}

// base error structure
type Error struct {
	code ErrCode
	msg  string
}

// Error() prints out the error message string
func (e *Error) Error() string {
	return e.msg
}

// Creates a new error msg without error code
func New(msg string) error {
	return &Error{
		msg: msg,
	}
}

// Wraps the error msg with recognized error codes
func Wrap(code ErrCode, msg string) error {
	return &Error{
		code: code,
		msg:  msg,
	}
}

// Wrapf wraps a formatted error msg with a recognized error code
func Wrapf(code ErrCode, format string, args ...interface{}) error {
	return &Error{
		code: code,
		msg:  fmt.Sprintf(format, args...),
	}
}

// Is reports whether err carries the given recognizable error code
func Is(err error, code ErrCode) bool {
	return GetErrCode(err) == code
}

// IsNotFound returns true if err
// item isn't found in the space
func IsNotFound(err error) bool {
	return GetErrCode(err) == NotFound
}

// IsAlreadyExists returns true if err
// item already exists in the space
func IsAlreadyExists(err error) bool {
	return GetErrCode(err) == AlreadyExists
}

// IsInvalidArgument returns true if err
// item is invalid argument
func IsInvalidArgument(err error) bool {
	return GetErrCode(err) == InvalidArgument
}

// IsClusterNotReady returns true if err represents a transient
// sink-cluster-unavailable condition
func IsClusterNotReady(err error) bool {
	return GetErrCode(err) == ClusterNotReady
}

// IsAuthFailure returns true if err represents an authentication failure
func IsAuthFailure(err error) bool {
	return GetErrCode(err) == AuthFailure
}

// IsConflict returns true if err represents a lost race against a
// concurrent owner
func IsConflict(err error) bool {
	return GetErrCode(err) == Conflict
}
