// Package validation provides custom validation rules for the application.
package validation

import (
	"strings"

	validation "github.com/jellydator/validation"

	entitlementDomain "github.com/relaypass/relaypass/internal/entitlement/domain"
	apperrors "github.com/relaypass/relaypass/internal/errors"
)

// WrapValidationError wraps validation errors as domain ErrInvalidInput.
func WrapValidationError(err error) error {
	if err == nil {
		return nil
	}
	return apperrors.Wrap(apperrors.ErrInvalidInput, err.Error())
}

// NotBlank validates that a string is not empty after trimming whitespace.
var NotBlank = validation.NewStringRuleWithError(
	func(s string) bool {
		return strings.TrimSpace(s) != ""
	},
	validation.NewError("validation_not_blank", "must not be blank"),
)

// ClientID validates that a value is a well-formed client id: 32 to 64
// printable characters, either a generated 64-hex-char id or a
// provider-supplied obfuscated account id.
type ClientID struct{}

// Validate checks the value against the client id format.
func (ClientID) Validate(value interface{}) error {
	s, ok := value.(string)
	if !ok {
		return validation.NewError("validation_client_id", "client id must be a string")
	}
	if err := entitlementDomain.ValidateCID(s); err != nil {
		return validation.NewError("validation_client_id", "client id must be 32 to 64 printable characters")
	}
	return nil
}
