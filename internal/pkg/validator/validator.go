// Package validator wraps go-playground/validator with the project's error
// formatting and custom tags.
//
// Besides the stock tags it registers:
//
//	solana_address  base58 string decoding to a 32-byte public key
package validator

import (
	"errors"
	"fmt"

	gvalidator "github.com/go-playground/validator/v10"
	"github.com/mr-tron/base58"
)

// ErrValidationFailed is the first error of the chain returned when validation fails.
var ErrValidationFailed = errors.New("validation failed")

// validator is the package-wide instance, built on import.
var validator *gvalidator.Validate

// errStringFormat describes a single field failure.
const errStringFormat = "'%s': value '%v' does not meet the requirements for the '%s' validation"

// publicKeyLength is the decoded size of a ledger address.
const publicKeyLength = 32

func init() {
	validator = gvalidator.New(gvalidator.WithRequiredStructEnabled())

	if err := validator.RegisterValidation("solana_address", isSolanaAddress); err != nil {
		panic(err)
	}
}

// isSolanaAddress reports whether the field is a base58 encoded 32-byte key.
func isSolanaAddress(fl gvalidator.FieldLevel) bool {
	return IsPublicKey(fl.Field().String())
}

// IsPublicKey reports whether s is a base58 encoded 32-byte public key.
func IsPublicKey(s string) bool {
	if s == "" {
		return false
	}

	raw, err := base58.Decode(s)
	return err == nil && len(raw) == publicKeyLength
}

// formatError turns validator errors into ErrValidationFailed joined with one
// message per failing field. Other errors are returned unchanged.
func formatError(err error) error {
	var validationErrors gvalidator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		return err
	}

	errs := []error{ErrValidationFailed}
	for _, validationErr := range validationErrors {
		errs = append(errs, fmt.Errorf(errStringFormat,
			validationErr.Field(),
			validationErr.Value(),
			validationErr.Tag(),
		))
	}

	return errors.Join(errs...)
}

// Validate checks v against its `validate` struct tags.
//
//	type Input struct {
//	    Address string `validate:"required,solana_address"`
//	}
//
//	if err := validator.Validate(input); errors.Is(err, validator.ErrValidationFailed) {
//	    // reject input
//	}
func Validate(v any) error {
	if err := validator.Struct(v); err != nil {
		return formatError(err)
	}

	return nil
}

// Var checks a single value against tag, e.g. Var(addr, "required,solana_address").
func Var(value any, tag string) error {
	if err := validator.Var(value, tag); err != nil {
		return formatError(err)
	}

	return nil
}
