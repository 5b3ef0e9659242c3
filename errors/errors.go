package errors

import "fmt"

var (
	ErrWorkerPanic      = fmt.Errorf("worker panic")
	ErrUnknownEvent     = fmt.Errorf("unknown chat room event")
	ErrUnroutable       = fmt.Errorf("unroutable command")
	ErrBadEventID       = fmt.Errorf("unparseable event id")
	ErrAskTimeout       = fmt.Errorf("ask timed out")
	ErrDuplicateSession = fmt.Errorf("duplicate session id")
	ErrSessionClosed    = fmt.Errorf("session closed")
	ErrBadHandshake     = fmt.Errorf("missing user or room id")
)
