package dispatch

import (
	"errors"
	"os"
	"syscall"

	"treemount/internal/common"
)

// Errno codes mapped from the core's sentinel errors. go-nfs and billy
// callers expect ordinary syscall.Errno values, not the package's own
// sentinels.
var (
	ENOENT    = syscall.ENOENT
	EEXIST    = syscall.EEXIST
	ENOTDIR   = syscall.ENOTDIR
	EISDIR    = syscall.EISDIR
	ENOTEMPTY = syscall.ENOTEMPTY
	EINVAL    = syscall.EINVAL
	EPERM     = syscall.EPERM
	ESTALE    = syscall.ESTALE
	EIO       = syscall.EIO
	EROFS     = syscall.EROFS
)

// toErrno translates a common.Err* sentinel (or a wrapped instance of one)
// into the syscall.Errno an NFS/billy client expects. An error that matches
// no sentinel (an errno the adapter already produced, io.EOF, a storage
// error) is returned unchanged.
func toErrno(err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, common.ErrNotFound):
		return ENOENT
	case errors.Is(err, common.ErrExists):
		return EEXIST
	case errors.Is(err, common.ErrNotDir):
		return ENOTDIR
	case errors.Is(err, common.ErrIsDir):
		return EISDIR
	case errors.Is(err, common.ErrNotEmpty):
		return ENOTEMPTY
	case errors.Is(err, common.ErrInvalidPath), errors.Is(err, common.ErrInvalid):
		return EINVAL
	case errors.Is(err, common.ErrInvalidHandle):
		return syscall.EBADF
	case errors.Is(err, common.ErrOperationNotPermitted):
		return EPERM
	case errors.Is(err, common.ErrReadOnly):
		return EROFS
	case errors.Is(err, common.ErrStale):
		return ESTALE
	case errors.Is(err, common.ErrIO), errors.Is(err, common.ErrBug):
		return EIO
	default:
		return err
	}
}

// isNotExist reports whether err (or its translated errno) means "no such
// file", the one case the adapter's Lookup negative-caching path needs to
// distinguish from every other failure.
func isNotExist(err error) bool {
	return errors.Is(err, common.ErrNotFound) || errors.Is(toErrno(err), os.ErrNotExist) || errors.Is(err, ENOENT)
}
