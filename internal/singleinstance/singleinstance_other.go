//go:build !unix && !windows

package singleinstance

// AcquireLock is a no-op where neither flock nor named mutexes exist.
func AcquireLock(path string) (release func(), err error) {
	return func() {}, nil
}
