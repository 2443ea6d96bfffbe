package softsd

import "errors"

// These errors are the failure kinds reported by the stack. They are kept
// distinct because the orchestrator branches on them: frequency fallback is
// worth trying after transport or protocol failures but not after volume
// corruption.
var (
	ErrTransportTimeout = errors.New("card did not answer within the polling bound")
	ErrCommandRejected  = errors.New("card rejected the command")
	ErrCardInit         = errors.New("card initialization failed")
	ErrUnknownCard      = errors.New("unrecognized card")
	ErrNotMounted       = errors.New("card is not mounted")
	ErrVolume           = errors.New("no valid FAT32 volume found")
	ErrFileOpen         = errors.New("could not open the log file")
	ErrDirectoryFull    = errors.New("no free directory slot left")
	ErrWriteFailed      = errors.New("block write failed")
	ErrRecordTooLong    = errors.New("formatted record exceeds the line buffer")
	ErrClusterFull      = errors.New("log file reached the end of its cluster")
)

// ErrorCode maps an error to the numeric code recorded in the CSV output.
// The values match the error enum of the firmware whose log files this
// stack is meant to be compatible with.
func ErrorCode(err error) uint8 {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, ErrUnknownCard):
		return 10
	case errors.Is(err, ErrVolume):
		return 11
	case errors.Is(err, ErrRecordTooLong) || errors.Is(err, ErrClusterFull):
		return 12
	case errors.Is(err, ErrDirectoryFull) || errors.Is(err, ErrFileOpen):
		return 3
	case errors.Is(err, ErrWriteFailed):
		return 4
	case errors.Is(err, ErrNotMounted):
		return 2
	case errors.Is(err, ErrCardInit) || errors.Is(err, ErrTransportTimeout) || errors.Is(err, ErrCommandRejected):
		return 1
	default:
		return 255
	}
}
