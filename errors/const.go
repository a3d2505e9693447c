// Copyright © 2025 Prabhjot Singh Sethi, All Rights reserved
// Author: Prabhjot Singh Sethi <prabhjot.sethi@gmail.com>

package errors

// ErrCode is type for multiple reconizable errors.
type ErrCode int

// error codes
const (
	// if error is unknown
	Unknown ErrCode = 0

	// if the item not found in the space
	NotFound ErrCode = 1

	// if the item already present in the space
	AlreadyExists ErrCode = 2

	// if the argument is not valid
	InvalidArgument ErrCode = 3

	// if the sink cluster is transiently unavailable, the caller
	// should proceed and let the next retry observe recovery
	ClusterNotReady ErrCode = 4

	// if authentication against the source or sink failed
	AuthFailure ErrCode = 5

	// if an operation lost a race with a concurrent owner
	// (e.g. supervisor leadership lease already held)
	Conflict ErrCode = 6
)
