//go:build windows

package singleinstance

import (
	"crypto/sha256"
	"encoding/hex"
	"path/filepath"

	"golang.org/x/sys/windows"

	"github.com/graaaaa/sms900/internal/appinfo"
)

// AcquireLock creates a session-scoped named mutex derived from path.
// It returns ErrLocked if another process already created it.
func AcquireLock(path string) (release func(), err error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	sum := sha256.Sum256([]byte(abs))
	name, err := windows.UTF16PtrFromString(`Local\` + appinfo.AppName + "-" + hex.EncodeToString(sum[:8]))
	if err != nil {
		return nil, err
	}

	h, err := windows.CreateMutex(nil, false, name)
	if err != nil {
		if err == windows.ERROR_ALREADY_EXISTS {
			if h != 0 {
				windows.CloseHandle(h)
			}
			return nil, ErrLocked
		}
		return nil, err
	}

	return func() {
		windows.CloseHandle(h)
	}, nil
}
