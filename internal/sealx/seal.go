// Package sealx implements the client-side sealing capability: it encrypts
// media bytes under a random content key and binds the ciphertext to an
// access-control policy identity. The pipeline treats this as an opaque
// encrypt(data, policy) -> {ciphertext, identity, metadata} collaborator.
package sealx

import (
	"crypto/aes"
	"crypto/cipher"
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/zeebo/blake3"
	"golang.org/x/crypto/argon2"

	"github.com/dverbin/mediavault/internal/common"
)

// Policy describes the access-control rule the ciphertext is bound to.
// The fields are opaque to the pipeline; they only feed the policy identity.
type Policy struct {
	// Threshold is the number of key servers required to decrypt.
	Threshold int `json:"threshold"`
	// AllowlistID is the on-chain allowlist object gating access.
	AllowlistID string `json:"allowlistId,omitempty"`
}

// SealedMedia is the output of Seal. Metadata is an opaque JSON document
// shipped alongside the ciphertext at upload time; it carries everything
// needed to decrypt except the content key itself.
type SealedMedia struct {
	Ciphertext []byte
	Key        []byte
	PolicyID   string
	Metadata   []byte
}

type sealMetadata struct {
	Version   int    `json:"v"`
	Algorithm string `json:"alg"`
	Nonce     []byte `json:"nonce"`
	PolicyID  string `json:"policyId"`
	Threshold int    `json:"threshold"`
}

// Seal encrypts plaintext with AES-256-GCM under a fresh random key and
// derives the seal policy identity from the key and policy parameters.
//
// The policy id is "seal_" + URL-safe base64 of the blake3 digest of the
// key joined with the serialized policy, which makes the identity stable
// for a given (key, policy) pair and unguessable without the key.
func Seal(plaintext []byte, policy Policy) (*SealedMedia, error) {
	key := common.GenerateRandByteArray(32)

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	aesgcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}

	nonce := common.GenerateRandByteArray(aesgcm.NonceSize())
	ciphertext := aesgcm.Seal(nil, nonce, plaintext, nil)

	policyID, err := derivePolicyID(key, policy)
	if err != nil {
		return nil, err
	}

	metadata, err := json.Marshal(sealMetadata{
		Version:   1,
		Algorithm: "aes-256-gcm",
		Nonce:     nonce,
		PolicyID:  policyID,
		Threshold: policy.Threshold,
	})
	if err != nil {
		return nil, err
	}

	return &SealedMedia{
		Ciphertext: ciphertext,
		Key:        key,
		PolicyID:   policyID,
		Metadata:   metadata,
	}, nil
}

// Unseal decrypts ciphertext produced by Seal given the content key and the
// metadata document shipped with the blob.
func Unseal(ciphertext, key, metadata []byte) ([]byte, error) {
	var md sealMetadata
	if err := json.Unmarshal(metadata, &md); err != nil {
		return nil, fmt.Errorf("invalid seal metadata: %w", err)
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	aesgcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}

	return aesgcm.Open(nil, md.Nonce, ciphertext, nil)
}

// DeriveKeyFromPassphrase stretches a passphrase into a 32-byte key with
// argon2id. Used by the wallet keystore.
func DeriveKeyFromPassphrase(passphrase, salt []byte) []byte {
	return argon2.IDKey(passphrase, salt, 1, 64*1024, 4, 32)
}

func derivePolicyID(key []byte, policy Policy) (string, error) {
	params, err := json.Marshal(policy)
	if err != nil {
		return "", err
	}

	h := blake3.New()
	h.Write(key)
	h.Write(params)
	sum := h.Sum(nil)

	return common.SealPolicyPrefix + base64.RawURLEncoding.EncodeToString(sum), nil
}
