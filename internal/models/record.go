// Package models holds the shared data types of the publish pipeline.
package models

import "time"

// RecordStatus is the persisted pipeline stage of a file. Progression is
// monotonic forward: encrypting -> uploaded -> registered. A registered
// record is removed from the recovery ledger, never kept.
type RecordStatus string

const (
	StatusEncrypting RecordStatus = "encrypting"
	StatusUploaded   RecordStatus = "uploaded"
	StatusRegistered RecordStatus = "registered"
)

// rank maps statuses to their forward-progression order.
func (s RecordStatus) rank() int {
	switch s {
	case StatusEncrypting:
		return 0
	case StatusUploaded:
		return 1
	case StatusRegistered:
		return 2
	}
	return -1
}

// CanAdvanceTo reports whether a transition from s to next moves forward
// (or stays). Regressions are never allowed.
func (s RecordStatus) CanAdvanceTo(next RecordStatus) bool {
	return next.rank() >= s.rank() && next.rank() >= 0 && s.rank() >= 0
}

// PendingUploadRecord tracks one file's last-known pipeline stage in the
// recovery ledger. It is created when encryption starts, mutated at each
// stage transition, and destroyed on successful registration or explicit
// user discard. It is never destroyed on transient failure.
//
// Validation tags express the persisted-state invariants: a record past
// "encrypting" must carry a blob id and a seal policy id. Only metadata
// and ids are ever persisted here, never file bytes or ciphertext.
type PendingUploadRecord struct {
	FileID        string       `json:"fileId" validate:"required"`
	FileName      string       `json:"fileName"`
	FileSizeBytes int64        `json:"fileSizeBytes" validate:"gte=0"`
	Status        RecordStatus `json:"status" validate:"required,oneof=encrypting uploaded registered"`
	BlobID        string       `json:"blobId,omitempty" validate:"required_unless=Status encrypting"`
	PreviewBlobID string       `json:"previewBlobId,omitempty"`
	// PreviewChecksum is the blake3 digest of the preview blob, kept so a
	// resumed run can still hand it to the registrar.
	PreviewChecksum string `json:"previewChecksum,omitempty"`
	SealPolicyID    string `json:"sealPolicyId,omitempty" validate:"required_unless=Status encrypting"`
	// RegistrationID is the on-ledger intent object created by phase 1 of
	// the two-phase registration. Present only between phase 1 success and
	// phase 2 success.
	RegistrationID string    `json:"registrationId,omitempty"`
	Timestamp      time.Time `json:"timestamp"`
}
