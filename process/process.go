// Package process defines the handle to a target process and the operations layered
// on it: region enumeration and raw memory transfer.
package process

import (
	"errors"
	"fmt"
)

var (
	// ErrAddressNotMapped is returned when a memory address is not found within any mapped region of a process.
	ErrAddressNotMapped = errors.New("address not mapped")

	// ErrProcessNotOpen is returned when an operation requiring an open process is attempted
	// before the process has been successfully opened or after it has been closed.
	ErrProcessNotOpen = errors.New("process not open")

	// ErrQueryFailed is returned when the OS region query itself fails.
	ErrQueryFailed = errors.New("region query failed")

	// ErrNoMoreRegions is returned by QueryRegion past the last mapped region.
	ErrNoMoreRegions = errors.New("no more regions")

	// ErrTransferFailed is returned when a read or write moved zero bytes or the OS
	// reported an unrecoverable error.
	ErrTransferFailed = errors.New("memory transfer failed")

	// ErrPermissionDenied is the TransferFailed variant that aborts a scan instead of
	// skipping the region.
	ErrPermissionDenied = errors.New("permission denied")

	// ErrPartialTransfer is returned by ReadMemoryAt when only a prefix of the range
	// could be transferred and nothing more is available.
	ErrPartialTransfer = errors.New("partial transfer")

	// ErrStringTooLong is returned when no NUL terminator is found within the limit.
	ErrStringTooLong = errors.New("string exceeds max length")

	ErrAmbiguousTarget = errors.New("more than one process matches")
	ErrNoSuchTarget    = errors.New("no process matches")
)

// TransferError describes a failed read or write at a given range.
type TransferError struct {
	Op      string
	Address ProcessMemoryAddress
	Length  ProcessMemorySize
	Err     error
}

func (e *TransferError) Error() string {
	return fmt.Sprintf("%s of %d bytes at 0x%X failed: %v", e.Op, e.Length, uint64(e.Address), e.Err)
}

func (e *TransferError) Unwrap() error {
	return e.Err
}

// Is makes every TransferError match ErrTransferFailed.
func (e *TransferError) Is(target error) bool {
	return target == ErrTransferFailed
}

// QueryError describes a failed region query.
type QueryError struct {
	Address ProcessMemoryAddress
	Err     error
}

func (e *QueryError) Error() string {
	return fmt.Sprintf("region query at 0x%X failed: %v", uint64(e.Address), e.Err)
}

func (e *QueryError) Unwrap() error {
	return e.Err
}

func (e *QueryError) Is(target error) bool {
	return target == ErrQueryFailed
}
