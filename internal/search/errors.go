package search

import "errors"

var (
	// ErrInvalidReturnFormat is returned by Fetch for a ReturnFormat it does
	// not know. It signals a programming error, not a network condition.
	ErrInvalidReturnFormat = errors.New("invalid return format")

	// ErrUnexpectedStatus is returned when the server answers with a non-2xx status.
	ErrUnexpectedStatus = errors.New("unexpected HTTP status")

	// ErrBodyTooLarge is returned when a response body exceeds the size limit.
	ErrBodyTooLarge = errors.New("response body too large")

	// ErrUnknownMode is returned by BuildRequest for a query mode it cannot encode.
	ErrUnknownMode = errors.New("unknown search mode")
)
