// Package vault implements at-rest encryption for third-party provider
// credentials. AES-256-GCM and HMAC-SHA256 key derivation are taken
// directly from the standard library: this is authenticated, widely
// reviewed primitive cryptography where reaching for a third-party
// wrapper would add a dependency without adding safety (see DESIGN.md).
package vault

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
)

// keyDerivationLabel is mixed into the HMAC key derivation
// (spec.md §4.I: HMAC-SHA256(secret, "credential-vault")).
const keyDerivationLabel = "credential-vault"

// nonceSize is the GCM-standard 12-byte IV (spec.md §4.I).
const nonceSize = 12

// ErrTampered is returned by Decrypt when authentication fails, meaning
// the ciphertext or auth tag was altered (spec.md §4.I, "fails closed on
// any tampering").
var ErrTampered = errors.New("vault: ciphertext failed authentication")

// deriveKey computes the 32-byte AES-256 key from a platform secret.
func deriveKey(secret []byte) []byte {
	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(keyDerivationLabel))
	return mac.Sum(nil)
}

// EncryptedValue is the bit-level payload stored for a credential
// (spec.md §6: "JSON object {iv, authTag, ciphertext} with each field
// lower-case hex; all three fields required for a value to be considered
// encrypted").
type EncryptedValue struct {
	IV         string `json:"iv"`
	AuthTag    string `json:"authTag"`
	Ciphertext string `json:"ciphertext"`
}

// cipherFor builds an AES-256-GCM AEAD from the platform secret.
func cipherFor(secret []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(deriveKey(secret))
	if err != nil {
		return nil, fmt.Errorf("constructing AES cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("constructing GCM mode: %w", err)
	}
	return gcm, nil
}

// Encrypt seals plaintext under the platform secret, returning a fresh
// random IV per call (spec.md §4.I).
func Encrypt(secret []byte, plaintext string) (EncryptedValue, error) {
	gcm, err := cipherFor(secret)
	if err != nil {
		return EncryptedValue{}, err
	}

	iv := make([]byte, nonceSize)
	if _, err := io.ReadFull(rand.Reader, iv); err != nil {
		return EncryptedValue{}, fmt.Errorf("generating iv: %w", err)
	}

	sealed := gcm.Seal(nil, iv, []byte(plaintext), nil)
	// Go's GCM Seal appends the tag to the end of the ciphertext; split it
	// back out so the wire format matches spec.md's separate iv/authTag/
	// ciphertext fields.
	tagStart := len(sealed) - gcm.Overhead()
	ciphertext := sealed[:tagStart]
	tag := sealed[tagStart:]

	return EncryptedValue{
		IV:         hex.EncodeToString(iv),
		AuthTag:    hex.EncodeToString(tag),
		Ciphertext: hex.EncodeToString(ciphertext),
	}, nil
}

// Decrypt opens an EncryptedValue, failing closed (returning ErrTampered)
// on any authentication failure.
func Decrypt(secret []byte, ev EncryptedValue) (string, error) {
	if ev.IV == "" || ev.AuthTag == "" || ev.Ciphertext == "" {
		return "", errors.New("vault: encrypted value missing iv, authTag, or ciphertext")
	}

	iv, err := hex.DecodeString(ev.IV)
	if err != nil {
		return "", fmt.Errorf("decoding iv: %w", err)
	}
	tag, err := hex.DecodeString(ev.AuthTag)
	if err != nil {
		return "", fmt.Errorf("decoding auth tag: %w", err)
	}
	ciphertext, err := hex.DecodeString(ev.Ciphertext)
	if err != nil {
		return "", fmt.Errorf("decoding ciphertext: %w", err)
	}

	gcm, err := cipherFor(secret)
	if err != nil {
		return "", err
	}

	sealed := append(append([]byte{}, ciphertext...), tag...)
	plaintext, err := gcm.Open(nil, iv, sealed, nil)
	if err != nil {
		return "", ErrTampered
	}
	return string(plaintext), nil
}
