// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CodeBot Contributors

package auth

import (
	"regexp"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"
)

// Credential constraints.
const (
	MinUsernameLength = 3
	MaxUsernameLength = 50
	MinPasswordLength = 8
	MaxEmailLength    = 254
)

// Validation messages returned to clients.
const (
	MsgUsernameLength  = "username must be between 3 and 50 characters"
	MsgUsernameCharset = "username may contain only letters, numbers and underscores"
	MsgInvalidEmail    = "invalid email address"
	MsgPasswordLength  = "password must be at least 8 characters"
	MsgPasswordClasses = "password must contain a lowercase letter, an uppercase letter and a digit"
)

var usernameRegex = regexp.MustCompile(`^[A-Za-z0-9_]+$`)

// Password character classes are ASCII only.
var (
	lowerRegex = regexp.MustCompile(`[a-z]`)
	upperRegex = regexp.MustCompile(`[A-Z]`)
	digitRegex = regexp.MustCompile(`[0-9]`)
)

// validator.Validate caches struct metadata and is safe for concurrent use.
var validate = validator.New(validator.WithRequiredStructEnabled())

// ValidateUsername checks length and charset.
func ValidateUsername(username string) error {
	n := len(username)
	if n < MinUsernameLength || n > MaxUsernameLength {
		return ValidationError("username", MsgUsernameLength)
	}
	if !usernameRegex.MatchString(username) {
		return ValidationError("username", MsgUsernameCharset)
	}
	return nil
}

// ValidateEmail checks that email is a well-formed address.
func ValidateEmail(email string) error {
	if err := validate.Var(email, "required,email,max=254"); err != nil {
		return ValidationError("email", MsgInvalidEmail)
	}
	return nil
}

// ValidatePassword checks length (in characters) and character classes.
func ValidatePassword(password string) error {
	if utf8.RuneCountInString(password) < MinPasswordLength {
		return ValidationError("password", MsgPasswordLength)
	}

	if !lowerRegex.MatchString(password) || !upperRegex.MatchString(password) || !digitRegex.MatchString(password) {
		return ValidationError("password", MsgPasswordClasses)
	}
	return nil
}

// ValidateRegistration applies the registration checks in order and returns
// the first failure.
func ValidateRegistration(in RegisterInput) error {
	if err := ValidateUsername(in.Username); err != nil {
		return err
	}
	if err := ValidateEmail(in.Email); err != nil {
		return err
	}
	return ValidatePassword(in.Password)
}
