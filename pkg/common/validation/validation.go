package validation

import (
	"fmt"
	"math/bits"

	gferrors "github.com/vnykmshr/stealflow/pkg/common/errors"
)

// ValidatePositive validates that an integer value is positive (> 0).
func ValidatePositive(module, field string, value int) error {
	if value <= 0 {
		return gferrors.NewValidationError(module, field, value, "must be positive").
			WithHint("value must be greater than 0")
	}
	return nil
}

// ValidateNonNegative validates that an integer value is >= 0.
func ValidateNonNegative(module, field string, value int64) error {
	if value < 0 {
		return gferrors.NewValidationError(module, field, value, "cannot be negative").
			WithHint("use 0 or a positive value")
	}
	return nil
}

// ValidateRange validates that min <= value <= max.
func ValidateRange(module, field string, value, min, max int) error {
	if value < min || value > max {
		return gferrors.NewValidationError(module, field, value,
			fmt.Sprintf("must be between %d and %d", min, max))
	}
	return nil
}

// ValidatePowerOfTwo validates that value is a positive power of two.
// The returned error matches gferrors.ErrInvalidCapacity.
func ValidatePowerOfTwo(module, field string, value int) error {
	if value <= 0 || bits.OnesCount(uint(value)) != 1 {
		return gferrors.NewValidationError(module, field, value, "must be a positive power of two").
			WithHint(fmt.Sprintf("use %d", NextPowerOfTwo(value))).
			WithCause(gferrors.ErrInvalidCapacity)
	}
	return nil
}

// NextPowerOfTwo returns the smallest power of two >= n, or 1 for n <= 1.
func NextPowerOfTwo(n int) int {
	if n <= 1 {
		return 1
	}
	return 1 << bits.Len(uint(n-1))
}

// ValidateNotNil validates that an interface value is not nil.
func ValidateNotNil(module, field string, value interface{}) error {
	if value == nil {
		return gferrors.NewValidationError(module, field, nil, "cannot be nil").
			WithHint("provide a valid " + field)
	}
	return nil
}
