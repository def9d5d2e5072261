// Package passwords hashes and verifies account passwords with argon2id.
package passwords

import (
	"errors"
	"fmt"
	"strings"

	"github.com/alexedwards/argon2id"
	"github.com/go-playground/validator/v10"
)

const (
	MinPasswordLength = 8
	MaxPasswordLength = 512
)

var (
	ErrPasswordTooShort = errors.New("password is too short")
	ErrPasswordTooLong  = errors.New("password is too long")
	ErrPasswordMismatch = errors.New("passwords do not match")
)

// Password is an encoded argon2id hash.
type Password string

var params = &argon2id.Params{
	Memory:      64 * 1024,
	Iterations:  3,
	Parallelism: 2,
	SaltLength:  16,
	KeyLength:   32,
}

// Input is a plaintext password as submitted by a user.
type Input struct {
	Password string `validate:"required,min=8,max=512"`
	// Confirm is checked only when non-empty.
	Confirm string
}

var validate = validator.New()

// Validate applies the length rules and the confirmation check.
func (in Input) Validate() error {
	if err := validate.Struct(in); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			switch verrs[0].Tag() {
			case "required", "min":
				return ErrPasswordTooShort
			case "max":
				return ErrPasswordTooLong
			}
		}
		return err
	}
	if in.Confirm != "" && in.Confirm != in.Password {
		return ErrPasswordMismatch
	}
	return nil
}

// NewPassword validates in and hashes it.
func NewPassword(in Input) (Password, error) {
	if err := in.Validate(); err != nil {
		return "", err
	}
	hash, err := argon2id.CreateHash(in.Password, params)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return Password(hash), nil
}

// Matches reports whether plaintext hashes to p.
func (p Password) Matches(plaintext string) (bool, error) {
	if !IsArgonEncoded(string(p)) {
		return false, nil
	}
	return argon2id.ComparePasswordAndHash(plaintext, string(p))
}

// IsArgonEncoded returns true if the input is an argon2id hash
func IsArgonEncoded(input string) bool {
	return strings.HasPrefix(input, "$argon2id$")
}
