package models

import "fmt"

// ValidationError represents rejected input: a malformed date, identifier or record.
// Validation errors are permanent and must reach the caller.
type ValidationError struct {
	Field   string
	Value   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// IsTransient returns false as validation errors are permanent
func (e *ValidationError) IsTransient() bool {
	return false
}

// ConfigurationError reports a venue or month entry missing from the venue table.
// Callers degrade to a "no data" state instead of failing the request.
type ConfigurationError struct {
	VenueID string
	Month   int
	Reason  string
}

func (e *ConfigurationError) Error() string {
	if e.Month > 0 {
		return fmt.Sprintf("venue %q month %d: %s", e.VenueID, e.Month, e.Reason)
	}
	return fmt.Sprintf("venue %q: %s", e.VenueID, e.Reason)
}

// IsTransient returns false; configuration does not change during a run
func (e *ConfigurationError) IsTransient() bool {
	return false
}

// NotFoundError represents a stored resource that does not exist
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Resource, e.ID)
}

// IsTransient returns false as a missing row stays missing on retry
func (e *NotFoundError) IsTransient() bool {
	return false
}
