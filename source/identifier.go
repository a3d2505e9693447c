// Copyright © 2025-2026 Prabhjot Singh Sethi, All Rights reserved
// Author: Prabhjot Singh Sethi <prabhjot.sethi@gmail.com>

package source

import (
	"sync"
)

const defaultAuthSourceIdentifier = "admin"

var (
	// authSourceIdentifier overrides the default SCRAM auth source database
	// used when connecting to mongo, if not set it falls back to
	// defaultAuthSourceIdentifier
	authSourceIdentifier = ""

	// once the auth source identifier has been used to establish a
	// connection, it can no longer be changed for the life of the program
	authSourceIdentifierUsed = false

	authSourceIdentifierLock sync.RWMutex
)

// SetAuthSourceIdentifier sets the auth source database to the specified
// value, returns false if a connection has already been established using
// the previous value
func SetAuthSourceIdentifier(identifier string) bool {
	authSourceIdentifierLock.Lock()
	defer authSourceIdentifierLock.Unlock()
	if authSourceIdentifierUsed {
		return false
	}
	authSourceIdentifier = identifier
	return true
}

// for internal use only, also marks the identifier as in use
func getAuthSourceIdentifier() string {
	authSourceIdentifierLock.RLock()
	defer authSourceIdentifierLock.RUnlock()
	authSourceIdentifierUsed = true
	if authSourceIdentifier != "" {
		return authSourceIdentifier
	}
	return defaultAuthSourceIdentifier
}
