package leads

import "errors"

var (
	// ErrMissingContact is returned when the contact id is missing.
	ErrMissingContact = errors.New("leads: contact id is required")

	// ErrInvalidCaseType is returned for an unknown case type.
	ErrInvalidCaseType = errors.New("leads: invalid case type")

	// ErrLeadNotFound is returned when a lead is not found.
	ErrLeadNotFound = errors.New("leads: lead not found")

	// ErrDuplicateLead is returned when the contact already has an open
	// lead of the same case type.
	ErrDuplicateLead = errors.New("leads: lead already exists for contact and case type")
)
