// Package wallet manages the local signing key used for ledger
// transactions. The ed25519 private key is sealed on disk with AES-GCM
// under an argon2id-derived key, so the keystore file alone is useless
// without the passphrase.
package wallet

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/ed25519"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"

	"github.com/zeebo/blake3"

	"github.com/dverbin/mediavault/internal/common"
	"github.com/dverbin/mediavault/internal/sealx"
)

type keystoreFile struct {
	Version    int    `json:"version"`
	Salt       []byte `json:"salt"`
	Nonce      []byte `json:"nonce"`
	Ciphertext []byte `json:"ciphertext"`
}

// Signer signs ledger transactions with an ed25519 key.
type Signer struct {
	priv ed25519.PrivateKey
}

// Generate creates a fresh key, seals it under the passphrase, and writes
// the keystore file at path with owner-only permissions.
func Generate(path string, passphrase []byte) (*Signer, error) {
	_, priv, err := ed25519.GenerateKey(nil)
	if err != nil {
		return nil, err
	}

	salt := common.GenerateRandByteArray(16)
	key := sealx.DeriveKeyFromPassphrase(passphrase, salt)
	defer common.WipeByteArray(key)

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	aesgcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}

	nonce := common.GenerateRandByteArray(aesgcm.NonceSize())
	ciphertext := aesgcm.Seal(nil, nonce, priv.Seed(), nil)

	data, err := json.Marshal(keystoreFile{Version: 1, Salt: salt, Nonce: nonce, Ciphertext: ciphertext})
	if err != nil {
		return nil, err
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return nil, fmt.Errorf("writing keystore: %w", err)
	}

	return &Signer{priv: priv}, nil
}

// Open unseals the keystore at path with the passphrase.
func Open(path string, passphrase []byte) (*Signer, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading keystore: %w", err)
	}

	var kf keystoreFile
	if err := json.Unmarshal(data, &kf); err != nil {
		return nil, fmt.Errorf("invalid keystore file: %w", err)
	}

	key := sealx.DeriveKeyFromPassphrase(passphrase, kf.Salt)
	defer common.WipeByteArray(key)

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	aesgcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}

	seed, err := aesgcm.Open(nil, kf.Nonce, kf.Ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("unsealing keystore (wrong passphrase?): %w", err)
	}

	return &Signer{priv: ed25519.NewKeyFromSeed(seed)}, nil
}

// Sign returns the ed25519 signature over msg, base64-encoded the way the
// ledger RPC expects it.
func (s *Signer) Sign(msg []byte) string {
	return base64.StdEncoding.EncodeToString(ed25519.Sign(s.priv, msg))
}

// PublicKey returns the base64-encoded public key.
func (s *Signer) PublicKey() string {
	pub := s.priv.Public().(ed25519.PublicKey)
	return base64.StdEncoding.EncodeToString(pub)
}

// Address derives the on-ledger account address: the blake3 digest of the
// scheme flag byte followed by the public key, hex-encoded with 0x prefix.
func (s *Signer) Address() string {
	pub := s.priv.Public().(ed25519.PublicKey)

	h := blake3.New()
	h.Write([]byte{0x00}) // ed25519 scheme flag
	h.Write(pub)
	return "0x" + hex.EncodeToString(h.Sum(nil))
}
