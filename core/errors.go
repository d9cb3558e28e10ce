package core

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrValidation is returned when a required field is missing or malformed
	ErrValidation = errors.New("validation failed")

	// ErrChallengeGeneration is returned when the remote service cannot issue a challenge
	ErrChallengeGeneration = errors.New("challenge generation failed")

	// ErrWrongSigner is returned when the signature does not match the challenged address
	ErrWrongSigner = errors.New("wrong signer")

	// ErrExpiredChallenge is returned when a challenge outlived its window or was already used
	ErrExpiredChallenge = errors.New("expired challenge")

	// ErrForbidden is returned when the role/address combination is rejected by policy
	ErrForbidden = errors.New("forbidden")

	// ErrTransport is returned on network or remote unavailability
	ErrTransport = errors.New("transport failure")

	// ErrBusinessRule is returned when the remote service rejects an operation on business grounds
	ErrBusinessRule = errors.New("business rule violated")

	// ErrNotFound is returned when the remote service has no such object
	ErrNotFound = errors.New("not found")

	// ErrWalletNotConnected is returned when no wallet or wallet address is available
	ErrWalletNotConnected = errors.New("wallet not connected")

	// ErrFlowInProgress is returned when an onboarding run for the same wallet is already running
	ErrFlowInProgress = errors.New("onboarding already in progress")
)

// ValidationError names the fields a request is missing
type ValidationError struct {
	Role   Role
	Fields []string
}

func (e *ValidationError) Error() string {
	if e.Role != "" {
		return fmt.Sprintf("%s: %s required for %s role", ErrValidation, strings.Join(e.Fields, ", "), e.Role)
	}
	return fmt.Sprintf("%s: %s required", ErrValidation, strings.Join(e.Fields, ", "))
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// Has reports whether name is one of the missing fields
func (e *ValidationError) Has(name string) bool {
	for _, f := range e.Fields {
		if f == name {
			return true
		}
	}
	return false
}

// ChallengeGenerationError wraps the remote failure behind a challenge request
type ChallengeGenerationError struct {
	Message string
	Err     error
}

func (e *ChallengeGenerationError) Error() string {
	return fmt.Sprintf("%s: %s", ErrChallengeGeneration, e.Message)
}

func (e *ChallengeGenerationError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrChallengeGeneration}
	}
	return []error{ErrChallengeGeneration, e.Err}
}

// AuthError is a typed authentication failure. Kind is one of ErrWrongSigner,
// ErrExpiredChallenge or ErrForbidden; Reason is the remote (or local) explanation.
type AuthError struct {
	Kind   error
	Reason string
}

func (e *AuthError) Error() string {
	if e.Reason == "" {
		return e.Kind.Error()
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Reason)
}

func (e *AuthError) Unwrap() error { return e.Kind }

// TransportError is a generic remote or network failure of one operation
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: %s: %v", ErrTransport, e.Op, e.Err)
}

func (e *TransportError) Unwrap() []error {
	return []error{ErrTransport, e.Err}
}

// BusinessRuleError is a union failure variant of an account mutation, e.g. UsernameTaken
type BusinessRuleError struct {
	Kind   string
	Reason string
}

func (e *BusinessRuleError) Error() string {
	return fmt.Sprintf("%s: %s: %s", ErrBusinessRule, e.Kind, e.Reason)
}

func (e *BusinessRuleError) Unwrap() error { return ErrBusinessRule }
