package common

import "errors"

var (
	ErrNotFound      = errors.New("not found")
	ErrExists        = errors.New("already exists")
	ErrNotDir        = errors.New("not a directory")
	ErrIsDir         = errors.New("is a directory")
	ErrNotEmpty      = errors.New("directory not empty")
	ErrInvalidPath   = errors.New("invalid path")
	ErrInvalidHandle = errors.New("invalid handle")
	ErrReadOnly      = errors.New("read-only filesystem")
	ErrIO            = errors.New("I/O error")

	// ErrInvalid covers rename-into-own-descendant and other structurally
	// invalid requests that are not simple not-found/exists cases.
	ErrInvalid = errors.New("invalid argument")

	// ErrOperationNotPermitted covers hard-link creation, edits under the
	// reserved directory, and mknod for anything but a unix-domain socket.
	ErrOperationNotPermitted = errors.New("operation not permitted")

	// ErrRetry signals that an entry changed shape under a caller who must
	// reload and retry (bounded by a retry limit at the call site).
	ErrRetry = errors.New("entry changed, retry")

	// ErrStale marks an inode that was unlinked out from under a caller
	// still holding a reference to it.
	ErrStale = errors.New("stale file handle")

	// ErrBug marks a condition the implementation never expects to reach.
	// Callers log it at high severity and surface ErrIO to their caller.
	ErrBug = errors.New("internal bug")
)
