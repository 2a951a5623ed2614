package errors

import "fmt"

var (
	ErrWorkerPanic   = fmt.Errorf("worker panic")
	ErrEmptyWords    = fmt.Errorf("no words have been found")
	ErrDecode        = fmt.Errorf("malformed chat line")
	ErrInvalidEvent  = fmt.Errorf("chat event without username")
	ErrSessionClosed = fmt.Errorf("session closed")
	ErrBind          = fmt.Errorf("unable to bind listener")
	ErrInvalidPort   = fmt.Errorf("invalid port")
	ErrArchiveFull   = fmt.Errorf("archive queue full")
	ErrCorruptRecord = fmt.Errorf("corrupt archive record")
)
