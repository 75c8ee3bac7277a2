package library

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/dustin/go-humanize"
)

// WriteAccessError reports a destination that cannot receive downloads
type WriteAccessError struct {
	Path   string
	Reason string
	Err    error
}

func (e *WriteAccessError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("destination %s not writable: %s: %v", e.Path, e.Reason, e.Err)
	}
	return fmt.Sprintf("destination %s not writable: %s", e.Path, e.Reason)
}

func (e *WriteAccessError) Unwrap() error {
	return e.Err
}

// VerifyWriteAccess creates the destination if needed, then creates and
// removes a probe file in it and checks that at least minFree bytes are
// available. minFree of 0 skips the space check.
func VerifyWriteAccess(path string, minFree uint64) error {
	if path == "" {
		return &WriteAccessError{Path: path, Reason: "no destination path configured"}
	}
	if err := os.MkdirAll(path, 0o755); err != nil {
		return &WriteAccessError{Path: path, Reason: "cannot create directory", Err: err}
	}

	probe, err := os.CreateTemp(path, ".engawa-probe-*")
	if err != nil {
		return &WriteAccessError{Path: path, Reason: "cannot create probe file", Err: err}
	}
	name := probe.Name()
	probe.Close()
	if err := os.Remove(name); err != nil {
		return &WriteAccessError{Path: path, Reason: "cannot remove probe file " + filepath.Base(name), Err: err}
	}

	if minFree == 0 {
		return nil
	}
	free, err := freeSpace(path)
	if err != nil {
		// Unknown free space does not block downloads.
		return nil
	}
	if free < minFree {
		return &WriteAccessError{
			Path:   path,
			Reason: fmt.Sprintf("only %s free, need %s", humanize.IBytes(free), humanize.IBytes(minFree)),
		}
	}
	return nil
}
