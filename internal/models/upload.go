package models

// BlobUploadResult is the immutable outcome of a single blob upload.
// Two are produced per file (main ciphertext blob, preview blob), and both
// must exist before registration is attempted.
type BlobUploadResult struct {
	BlobID       string `json:"blobId"`
	Size         int64  `json:"size"`
	StorageID    string `json:"storageId,omitempty"`
	EncodingType string `json:"encodingType,omitempty"`
	Deletable    bool   `json:"deletable,omitempty"`
	// Checksum is the client-computed blake3 digest of the uploaded bytes,
	// hex-encoded. Not part of the store's response; carried for the
	// registrar's preview-hash argument.
	Checksum string `json:"-"`
}

// UploadProgress is transient, in-memory progress state. It is never
// persisted; after a reload it is reconstructed from the recovery ledger
// plus in-flight state.
type UploadProgress struct {
	TotalFiles     int
	CompletedFiles int
	CurrentFile    string
	Stage          Stage
	CurrentRetry   int
	MaxRetries     int
}
