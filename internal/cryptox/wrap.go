package cryptox

import (
	"crypto/sha256"
	"fmt"
	"io"

	"golang.org/x/crypto/pbkdf2"
)

const (
	// DefaultIterations is the PBKDF2 work factor applied to new wrappings.
	// Raising it only affects records created afterwards; existing records
	// carry their own count.
	DefaultIterations = 600000

	// LegacyIterations is assumed for wrapping records that predate the
	// stored iteration count. Records written today always store theirs.
	LegacyIterations = 100000

	// WrappingVersion identifies the current wrapping scheme.
	WrappingVersion = 2

	wrapSaltSize = 16
)

// PasswordWrapping is the self-describing record produced by WrapKey and
// stored server-side next to the file record. It contains everything
// needed to re-derive the wrapping key except the password itself: the
// server can neither unwrap the file key nor verify a password guess
// offline, which is the point.
//
// Iterations is persisted verbatim so that raising DefaultIterations
// never breaks previously issued links.
type PasswordWrapping struct {
	Version    int    `json:"version"`
	Salt       []byte `json:"salt"`
	IV         []byte `json:"iv"`
	WrappedKey []byte `json:"wrappedKey"`
	Iterations int    `json:"iterations,omitempty"`
}

// DeriveWrappingKey runs PBKDF2-SHA256 over password and salt for the
// given iteration count and returns a 32-byte key-encryption-key.
// Deliberately slow; the iteration count is the brute-force budget.
func DeriveWrappingKey(password, salt []byte, iterations int) []byte {
	return pbkdf2.Key(password, salt, iterations, KeySize, sha256.New)
}

// WrapKey encrypts the raw bytes of key under a key derived from password
// and returns the wrapping record.
//
// A fresh 16-byte salt and 12-byte IV are read from rand for every call,
// and the record stores the iteration count actually used.
func WrapKey(rand io.Reader, key, password []byte) (*PasswordWrapping, error) {
	if len(key) != KeySize {
		return nil, fmt.Errorf("wrap key: expected %d bytes, got %d", KeySize, len(key))
	}

	salt := make([]byte, wrapSaltSize)
	if _, err := io.ReadFull(rand, salt); err != nil {
		return nil, fmt.Errorf("generate salt: %w", err)
	}

	kek := DeriveWrappingKey(password, salt, DefaultIterations)
	defer WipeBytes(kek)

	env, err := EncryptPayload(rand, kek, key)
	if err != nil {
		return nil, err
	}

	return &PasswordWrapping{
		Version:    WrappingVersion,
		Salt:       salt,
		IV:         env.IV,
		WrappedKey: env.Ciphertext,
		Iterations: DefaultIterations,
	}, nil
}

// UnwrapKey re-derives the wrapping key from password using the stored
// salt and iteration count and decrypts the wrapped file key.
//
// A record without a stored iteration count is treated as a legacy record
// and unwrapped with LegacyIterations. Every failure mode collapses into
// ErrIncorrectPassword; the caller must not learn whether the password,
// the salt or the record itself was at fault.
func UnwrapKey(w *PasswordWrapping, password []byte) ([]byte, error) {
	iterations := w.Iterations
	if iterations == 0 {
		iterations = LegacyIterations
	}

	kek := DeriveWrappingKey(password, w.Salt, iterations)
	defer WipeBytes(kek)

	key, err := DecryptPayload(kek, &Envelope{IV: w.IV, Ciphertext: w.WrappedKey})
	if err != nil {
		return nil, ErrIncorrectPassword
	}
	if len(key) != KeySize {
		return nil, ErrIncorrectPassword
	}
	return key, nil
}

// WipeBytes overwrites b with zeros. Use it to drop key material and
// passwords as soon as they are no longer needed. Nil-safe.
func WipeBytes(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
