package application

import "errors"

var (
	// ErrStoreUnavailable wraps transport and driver failures reaching the
	// log store.
	ErrStoreUnavailable = errors.New("log store unavailable")

	// ErrQueryRejected wraps a store's refusal of a constraint set, for
	// example an unknown column.
	ErrQueryRejected = errors.New("query rejected")
)
