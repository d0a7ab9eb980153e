//go:build !windows

package process

import (
	"errors"
	"syscall"
)

// terminate sends SIGTERM to a Unix process. A missing process counts as delivered.
func terminate(pid int) (Outcome, error) {
	err := syscall.Kill(pid, syscall.SIGTERM)
	switch {
	case err == nil, errors.Is(err, syscall.ESRCH):
		return Delivered, nil
	default:
		return Failed, err
	}
}
