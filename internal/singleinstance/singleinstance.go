// Package singleinstance keeps two gateways from sharing one database and
// one IRC nickname.
package singleinstance

import "errors"

// ErrLocked is returned by AcquireLock when another process holds the lock.
var ErrLocked = errors.New("another instance is running")
