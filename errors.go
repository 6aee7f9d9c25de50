package slowfs

import (
	"errors"
	"fmt"
	"syscall"
)

// Error taxonomy of the store. Every engine error wraps exactly one of these.
// None of them are retryable: the store is in memory, so every failure is a
// precondition violation by the caller.
var (
	ErrNotFound          = errors.New("no such entry")
	ErrIsDirectory       = errors.New("is a directory")
	ErrNotDirectory      = errors.New("not a directory")
	ErrDirectoryNotEmpty = errors.New("directory not empty")
	ErrInvalidArgument   = errors.New("invalid argument")
	ErrNotSupported      = errors.New("operation not supported")

	// ErrNameExists is the InvalidArgument raised for a duplicate name in a directory.
	// Kernels expect EEXIST for it, so it gets its own errno.
	ErrNameExists = fmt.Errorf("%w: name already exists", ErrInvalidArgument)
)

var errnos = []struct {
	err   error
	errno syscall.Errno
}{
	{ErrNotFound, syscall.ENOENT},
	{ErrIsDirectory, syscall.EISDIR},
	{ErrNotDirectory, syscall.ENOTDIR},
	{ErrDirectoryNotEmpty, syscall.ENOTEMPTY},
	{ErrNameExists, syscall.EEXIST},
	{ErrInvalidArgument, syscall.EINVAL},
	{ErrNotSupported, syscall.ENOSYS},
}

// Errno translates an error into the status the kernel expects. nil maps to 0 and
// anything outside the taxonomy to EIO.
func Errno(err error) syscall.Errno {
	if err == nil {
		return 0
	}
	for _, e := range errnos {
		if errors.Is(err, e.err) {
			return e.errno
		}
	}
	var errno syscall.Errno
	if errors.As(err, &errno) {
		return errno
	}
	return syscall.EIO
}
