// Package cryptox implements the client-side cryptographic core of
// filesoldier: AES-256-GCM encryption of file payloads and metadata,
// URL-fragment key transport, password-based key wrapping and public
// label generation.
//
// Every function that consumes randomness takes an explicit io.Reader as
// its first argument, following the crypto/rsa convention. Callers pass
// crypto/rand.Reader in production and a deterministic reader in tests.
// Keys exist only in memory; nothing in this package performs I/O.
package cryptox

import (
	"crypto/aes"
	"crypto/cipher"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
)

const (
	// KeySize is the length of a file encryption key in bytes (AES-256).
	KeySize = 32
	// IVSize is the AES-GCM nonce length in bytes.
	IVSize = 12
	// TagSize is the AES-GCM authentication tag length in bytes.
	TagSize = 16
)

// Envelope is the result of one authenticated encryption: a fresh random
// IV and the ciphertext with the 16-byte tag appended by GCM.
//
// Two envelopes produced under the same key always carry independently
// generated IVs; reuse of a (key, IV) pair is ruled out by construction
// because EncryptPayload draws a new IV on every call.
type Envelope struct {
	IV         []byte
	Ciphertext []byte
}

// GenerateKey returns a fresh 256-bit symmetric key read from rand.
//
// The same key is used for both the file payload and the metadata blob of
// one upload; the two encryptions differ only in their IVs.
func GenerateKey(rand io.Reader) ([]byte, error) {
	key := make([]byte, KeySize)
	if _, err := io.ReadFull(rand, key); err != nil {
		return nil, fmt.Errorf("generate key: %w", err)
	}
	return key, nil
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("new cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("new gcm: %w", err)
	}
	return aead, nil
}

// EncryptPayload encrypts plaintext under key with a freshly drawn 12-byte
// IV and returns the resulting envelope.
//
// The key must be KeySize bytes. A new IV is read from rand on every call,
// so encrypting the same plaintext twice yields different envelopes.
func EncryptPayload(rand io.Reader, key, plaintext []byte) (*Envelope, error) {
	aead, err := newGCM(key)
	if err != nil {
		return nil, err
	}

	iv := make([]byte, IVSize)
	if _, err := io.ReadFull(rand, iv); err != nil {
		return nil, fmt.Errorf("generate iv: %w", err)
	}

	return &Envelope{IV: iv, Ciphertext: aead.Seal(nil, iv, plaintext, nil)}, nil
}

// DecryptPayload authenticates and decrypts an envelope produced by
// EncryptPayload.
//
// It returns ErrAuthenticationFailed whenever the tag does not verify.
// No partial plaintext is ever returned.
func DecryptPayload(key []byte, env *Envelope) ([]byte, error) {
	aead, err := newGCM(key)
	if err != nil {
		return nil, err
	}

	plaintext, err := aead.Open(nil, env.IV, env.Ciphertext, nil)
	if err != nil {
		return nil, ErrAuthenticationFailed
	}
	return plaintext, nil
}

// EncryptMetadata serializes v to JSON, encrypts it under key with a fresh
// IV and returns base64(IV || ciphertext) as a single string. The IV drawn
// here is independent of the IV used for the file payload of the same
// upload, even though both share the key.
//
// Example:
//
//	meta := map[string]any{"name": "report.pdf", "type": "application/pdf"}
//	blob, err := cryptox.EncryptMetadata(rand.Reader, key, meta)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	// blob travels to the server as an opaque string
func EncryptMetadata(rand io.Reader, key []byte, v any) (string, error) {
	plaintext, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("marshal metadata: %w", err)
	}

	env, err := EncryptPayload(rand, key, plaintext)
	if err != nil {
		return "", err
	}

	blob := make([]byte, 0, len(env.IV)+len(env.Ciphertext))
	blob = append(blob, env.IV...)
	blob = append(blob, env.Ciphertext...)
	return base64.StdEncoding.EncodeToString(blob), nil
}

// DecryptMetadata reverses EncryptMetadata: it splits the 12-byte IV
// prefix from the decoded blob, decrypts the remainder under key and
// unmarshals the plaintext JSON into v.
//
// It returns ErrMalformedMetadata when the blob is not valid base64, is
// too short to contain an IV and a tag, or decrypts to something that is
// not JSON; and ErrAuthenticationFailed when the tag does not verify.
func DecryptMetadata(key []byte, blob string, v any) error {
	raw, err := base64.StdEncoding.DecodeString(blob)
	if err != nil {
		return ErrMalformedMetadata
	}
	if len(raw) < IVSize+TagSize {
		return ErrMalformedMetadata
	}

	plaintext, err := DecryptPayload(key, &Envelope{IV: raw[:IVSize], Ciphertext: raw[IVSize:]})
	if err != nil {
		return err
	}

	if err := json.Unmarshal(plaintext, v); err != nil {
		return ErrMalformedMetadata
	}
	return nil
}
