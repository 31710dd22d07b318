package domain

import "fmt"

// Error types for consistent error handling across the broker.

// ErrNotFound indicates a resource was not found.
type ErrNotFound struct {
	Resource string
	ID       string
}

func (e *ErrNotFound) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Resource, e.ID)
}

// ErrValidation indicates a validation error (bad input).
type ErrValidation struct {
	Field   string
	Message string
}

func (e *ErrValidation) Error() string {
	return fmt.Sprintf("validation error on '%s': %s", e.Field, e.Message)
}

// ErrUnauthorized indicates invalid credentials or token on our own API.
type ErrUnauthorized struct {
	Message string
}

func (e *ErrUnauthorized) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return "unauthorized"
}

// ErrExternalService indicates a failure in an external service call.
type ErrExternalService struct {
	Service string
	Err     error
}

func (e *ErrExternalService) Error() string {
	return fmt.Sprintf("external service error [%s]: %v", e.Service, e.Err)
}

func (e *ErrExternalService) Unwrap() error {
	return e.Err
}

// ErrCertificatesMissing indicates a tenant has no usable mTLS material,
// neither inline nor on disk.
type ErrCertificatesMissing struct {
	TenantID string
}

func (e *ErrCertificatesMissing) Error() string {
	return fmt.Sprintf("tenant %s: mTLS certificate/key material not configured", e.TenantID)
}

// ErrTransportConstruction indicates certificate/key bytes that are not
// valid PEM material for an mTLS transport.
type ErrTransportConstruction struct {
	Err error
}

func (e *ErrTransportConstruction) Error() string {
	return fmt.Sprintf("mTLS transport construction failed: %v", e.Err)
}

func (e *ErrTransportConstruction) Unwrap() error {
	return e.Err
}

// ErrAuthenticationFailed indicates the bank rejected the tenant's
// credentials during the OAuth token exchange, or kept rejecting a charge
// call even after a fresh token.
type ErrAuthenticationFailed struct {
	TenantID    string
	Code        string
	Description string
}

func (e *ErrAuthenticationFailed) Error() string {
	msg := fmt.Sprintf("tenant %s: bank authentication failed", e.TenantID)
	if e.Code != "" {
		msg += fmt.Sprintf(" [%s]", e.Code)
	}
	if e.Description != "" {
		msg += ": " + e.Description
	}
	return msg
}

// ErrChargeCreationFailed indicates the bank rejected a charge payload.
type ErrChargeCreationFailed struct {
	TxID       string
	StatusCode int
	Detail     string
}

func (e *ErrChargeCreationFailed) Error() string {
	return fmt.Sprintf("charge creation failed for txid %s (status %d): %s", e.TxID, e.StatusCode, e.Detail)
}

// ErrChargeQueryFailed indicates a charge lookup against the bank failed.
type ErrChargeQueryFailed struct {
	TxID       string
	StatusCode int
	Detail     string
}

func (e *ErrChargeQueryFailed) Error() string {
	return fmt.Sprintf("charge query failed for txid %s (status %d): %s", e.TxID, e.StatusCode, e.Detail)
}

// ErrDecryptionFailed indicates a stored credential could not be decrypted.
// Callers degrade to treating the value as plaintext; this is logged, never
// fatal.
type ErrDecryptionFailed struct {
	Field string
}

func (e *ErrDecryptionFailed) Error() string {
	return fmt.Sprintf("decryption failed for field '%s'", e.Field)
}
