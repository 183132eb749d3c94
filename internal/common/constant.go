package common

// VerifyTokenHeaderName is the HTTP header used to carry the bearer token
// on requests to the content verification service.
const VerifyTokenHeaderName = "Authorization"

// SealPolicyPrefix is the required prefix of every seal policy identity
// string produced by the encryption service.
const SealPolicyPrefix = "seal_"

// MinBlobIDLength is the minimum length of a blob store content id
// (URL-safe base64 of a 256-bit digest).
const MinBlobIDLength = 43
