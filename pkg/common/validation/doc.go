// Package validation provides common validation utilities for configuration
// parameters across the stealflow library.
//
// The helpers return *errors.ValidationError values so constructors report
// rejected settings with a consistent message and can be matched with
// errors.Is against errors.ErrInvalidConfiguration.
package validation
