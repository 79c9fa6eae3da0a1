package supervisor

import (
	"fmt"
	"os"
	"strconv"

	"golang.org/x/sys/unix"
)

// PidFile is an advisory-locked pid file: acquiring the lock fails fast if
// another wayclipd instance already holds it, instead of racing it for the
// control socket.
type PidFile struct {
	path string
	f    *os.File
}

// AcquirePidFile opens (creating if necessary) the file at path, takes a
// non-blocking exclusive flock on it, and writes the current pid.
func AcquirePidFile(path string) (*PidFile, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open pid file: %w", err)
	}

	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		f.Close()
		return nil, fmt.Errorf("another wayclipd instance already holds %s: %w", path, err)
	}

	if err := f.Truncate(0); err != nil {
		f.Close()
		return nil, fmt.Errorf("truncate pid file: %w", err)
	}
	if _, err := f.WriteAt([]byte(strconv.Itoa(os.Getpid())), 0); err != nil {
		f.Close()
		return nil, fmt.Errorf("write pid file: %w", err)
	}

	return &PidFile{path: path, f: f}, nil
}

// Release unlocks, closes, and removes the pid file. Best-effort: errors
// are returned only for the caller to log, never to block shutdown.
func (p *PidFile) Release() error {
	unix.Flock(int(p.f.Fd()), unix.LOCK_UN)
	p.f.Close()
	return os.Remove(p.path)
}
