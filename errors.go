package syntree

import "errors"

var (
	// ErrClientClosed indicates the client has been closed.
	ErrClientClosed = errors.New("syntree: client is closed")
	// ErrNoDatabase indicates an operation that needs the database backend
	// on a client storing JSON lines.
	ErrNoDatabase = errors.New("syntree: no database configured")
	// ErrUnknownLanguage indicates a file no registered language applies to.
	ErrUnknownLanguage = errors.New("syntree: unknown language")
)
