// Package kernelerr defines the result taxonomy shared by every
// operation in the task and shared-memory subsystem. SUCCESS is the nil
// error; everything else is one of a small set of sentinel values so
// callers can compare with errors.Is instead of matching on type.
package kernelerr

import "errors"

var (
	// ErrTimeout is returned by a blocking call whose deadline elapsed
	// before its predicate became true.
	ErrTimeout = errors.New("kernelerr: timeout")

	// ErrNoSuchTask is returned when an operation names a task id that
	// is not present in the registry.
	ErrNoSuchTask = errors.New("kernelerr: no such task")

	// ErrNoSuchFileOrDirectory is returned when a path does not resolve
	// to a filesystem node.
	ErrNoSuchFileOrDirectory = errors.New("kernelerr: no such file or directory")

	// ErrNotADirectory is returned when a path resolves to a node that
	// is not a directory where one was required.
	ErrNotADirectory = errors.New("kernelerr: not a directory")

	// ErrBadAddress is returned when a shared-memory operation names a
	// virtual address or handle that does not correspond to a live
	// mapping or object.
	ErrBadAddress = errors.New("kernelerr: bad address")
)
