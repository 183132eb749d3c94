// Package common defines shared constants and sentinel errors used across
// the mediavault pipeline layers. Callers should use errors.Is to match
// these values.
package common

import "errors"

var (
	// Repository-level errors.
	ErrorNotFound = errors.New("not found")

	// Generic/internal flow control.
	ErrorInternal = errors.New("internal error")

	// Validation errors surfaced before any network attempt. The
	// remediation text is part of the contract: the CLI prints it verbatim.
	ErrInvalidBlobID   = errors.New("invalid blob id, please re-upload")
	ErrInvalidPolicyID = errors.New("invalid seal policy id, please re-encrypt")

	// Blob store availability.
	ErrBlobNotFound = errors.New("blob not found")

	// Local persistence.
	ErrQuotaExceeded       = errors.New("local storage quota exceeded")
	ErrPersistenceDisabled = errors.New("persistence disabled for this session")

	// Ledger transaction rejection (wallet decline or on-chain abort).
	// Surfaced verbatim with no retry.
	ErrTransactionRejected = errors.New("transaction rejected")

	// Record state machine.
	ErrStatusRegression = errors.New("record status cannot regress")
)
