package contacts

import "errors"

var (
	// ErrContactNotFound is returned when no contact matches the lookup.
	ErrContactNotFound = errors.New("contacts: contact not found")

	// ErrDuplicatePhone is returned when an insert or update would leave two
	// contacts on the same channel sharing a canonical phone.
	ErrDuplicatePhone = errors.New("contacts: canonical phone already taken on channel")
)
