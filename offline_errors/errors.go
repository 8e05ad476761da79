// Provides common offline errors definitions.
package offline_errors

import "errors"

var (
	ErrUnknownTable = errors.New("offline: unknown table")
	ErrTableExists  = errors.New("offline: table already registered")
	ErrBadTable     = errors.New("offline: bad table definition")
	ErrMissingKey   = errors.New("offline: row has no value at the key path")

	ErrTransactionAborted = errors.New("offline: transaction aborted")
	ErrPartialFlush       = errors.New("offline: commit failed after a partial flush")
	ErrSourceFailed       = errors.New("offline: delta source failed")
	ErrClosed             = errors.New("offline: store is closed")
)
