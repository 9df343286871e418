package validation

import (
	"fmt"

	dErrors "warden/pkg/domain-errors"
)

// MaxBodySize is the maximum allowed request body size (64 KB).
const MaxBodySize = 64 * 1024

// Field length limits for request-context inputs. Oversized values are
// rejected at the boundary so per-key maps never hold attacker-sized keys.
const (
	MaxIPLength          = 64
	MaxFingerprintLength = 256
	MaxUserAgentLength   = 1024
	MaxSessionIDLength   = 256
	MaxPathLength        = 2048
)

// CheckStringLength validates that a string does not exceed the maximum length.
func CheckStringLength(fieldName, value string, max int) error {
	if len(value) > max {
		return dErrors.New(dErrors.CodeValidation, fmt.Sprintf("%s exceeds max length of %d", fieldName, max))
	}
	return nil
}

// FieldLimit pairs a field with its value and limit for CheckLengths.
type FieldLimit struct {
	Name  string
	Value string
	Max   int
}

// CheckLengths returns the first length violation among fields.
func CheckLengths(fields ...FieldLimit) error {
	for _, f := range fields {
		if err := CheckStringLength(f.Name, f.Value, f.Max); err != nil {
			return err
		}
	}
	return nil
}
