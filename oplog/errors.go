package oplog

import "errors"

var (
	// ErrMalformedNamespace is returned when a namespace is blank or does not
	// contain both a database and a collection part.
	ErrMalformedNamespace = errors.New("malformed namespace")

	// ErrMalformedRecord is returned when a record of a recognized shape is
	// missing a field required to translate it.
	ErrMalformedRecord = errors.New("malformed oplog record")

	// ErrInvalidSourceConfiguration is returned when a log source cannot
	// provide tailable reads.
	ErrInvalidSourceConfiguration = errors.New("invalid source configuration")
)
