// Package storage defines the ICCID to PIN credentials used to unlock SIM
// cards. Implementations live in subpackages.
package storage

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrDuplicateICCID is returned when a credential for the ICCID exists.
	ErrDuplicateICCID = errors.New("iccid already registered")
	// ErrInvalidCredential is returned for a non-positive ICCID or a
	// malformed PIN.
	ErrInvalidCredential = errors.New("invalid credential")
)

// Credential pairs a SIM card's ICCID with its PIN.
type Credential struct {
	ICCID int64  `json:"iccid"`
	PIN   string `json:"pin"`
}

// Credentials is a read-only ICCID to PIN snapshot taken at the start of a
// scan and shared by all port workers.
type Credentials map[int64]string

// ValidPIN reports whether pin is 4 to 8 ASCII digits.
func ValidPIN(pin string) bool {
	if len(pin) < 4 || len(pin) > 8 {
		return false
	}
	for _, c := range pin {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

// Validate checks a credential before it is stored.
func (c Credential) Validate() error {
	if c.ICCID <= 0 {
		return fmt.Errorf("%w: iccid must be a positive integer", ErrInvalidCredential)
	}
	if !ValidPIN(c.PIN) {
		return fmt.Errorf("%w: pin must be 4-8 digits", ErrInvalidCredential)
	}
	return nil
}

// AllCredentials returns c itself, letting a fixed map stand in for a
// database when none is configured.
func (c Credentials) AllCredentials(ctx context.Context) (Credentials, error) {
	if c == nil {
		return Credentials{}, nil
	}
	return c, nil
}
