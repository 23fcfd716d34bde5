package cryptox

import (
	"crypto/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWrapUnwrapKey_RoundTrip(t *testing.T) {
	key, err := GenerateKey(rand.Reader)
	require.NoError(t, err)

	w, err := WrapKey(rand.Reader, key, []byte("CorrectHorse1!"))
	require.NoError(t, err)

	require.Equal(t, WrappingVersion, w.Version)
	require.Len(t, w.Salt, wrapSaltSize)
	require.Len(t, w.IV, IVSize)
	require.Equal(t, DefaultIterations, w.Iterations)
	// The wrapped key is ciphertext of the raw key plus the tag.
	require.Len(t, w.WrappedKey, KeySize+TagSize)

	got, err := UnwrapKey(w, []byte("CorrectHorse1!"))
	require.NoError(t, err)
	require.Equal(t, key, got)
}

func TestUnwrapKey_UnwrappedKeyDecrypts(t *testing.T) {
	key, err := GenerateKey(rand.Reader)
	require.NoError(t, err)

	env, err := EncryptPayload(rand.Reader, key, []byte("wrapped-path payload"))
	require.NoError(t, err)

	w, err := WrapKey(rand.Reader, key, []byte("pw"))
	require.NoError(t, err)

	recovered, err := UnwrapKey(w, []byte("pw"))
	require.NoError(t, err)

	plaintext, err := DecryptPayload(recovered, env)
	require.NoError(t, err)
	require.Equal(t, []byte("wrapped-path payload"), plaintext)
}

func TestUnwrapKey_WrongPassword(t *testing.T) {
	key, err := GenerateKey(rand.Reader)
	require.NoError(t, err)

	w, err := WrapKey(rand.Reader, key, []byte("correct"))
	require.NoError(t, err)

	got, err := UnwrapKey(w, []byte("wrong"))
	require.ErrorIs(t, err, ErrIncorrectPassword)
	require.Nil(t, got)
}

func TestUnwrapKey_CorruptedRecord(t *testing.T) {
	key, err := GenerateKey(rand.Reader)
	require.NoError(t, err)

	w, err := WrapKey(rand.Reader, key, []byte("pw"))
	require.NoError(t, err)
	w.WrappedKey[0] ^= 0x01

	// A corrupted record and a wrong password are indistinguishable.
	_, err = UnwrapKey(w, []byte("pw"))
	require.ErrorIs(t, err, ErrIncorrectPassword)
}

func TestUnwrapKey_LegacyIterationFallback(t *testing.T) {
	key, err := GenerateKey(rand.Reader)
	require.NoError(t, err)
	password := []byte("old link password")

	// Build a record the way the pre-versioned scheme did: legacy work
	// factor, no stored iteration count.
	salt := make([]byte, wrapSaltSize)
	_, err = rand.Read(salt)
	require.NoError(t, err)

	kek := DeriveWrappingKey(password, salt, LegacyIterations)
	env, err := EncryptPayload(rand.Reader, kek, key)
	require.NoError(t, err)

	legacy := &PasswordWrapping{
		Version:    1,
		Salt:       salt,
		IV:         env.IV,
		WrappedKey: env.Ciphertext,
	}

	got, err := UnwrapKey(legacy, password)
	require.NoError(t, err)
	require.Equal(t, key, got)
}

func TestUnwrapKey_StoredIterationsWinOverDefault(t *testing.T) {
	key, err := GenerateKey(rand.Reader)
	require.NoError(t, err)
	password := []byte("pw")

	salt := make([]byte, wrapSaltSize)
	_, err = rand.Read(salt)
	require.NoError(t, err)

	// A record wrapped under an explicit non-default count must unwrap
	// with that count even after the default has moved on.
	const oldCount = 250000
	kek := DeriveWrappingKey(password, salt, oldCount)
	env, err := EncryptPayload(rand.Reader, kek, key)
	require.NoError(t, err)

	w := &PasswordWrapping{Version: WrappingVersion, Salt: salt, IV: env.IV, WrappedKey: env.Ciphertext, Iterations: oldCount}

	got, err := UnwrapKey(w, password)
	require.NoError(t, err)
	require.Equal(t, key, got)
}

func TestDeriveWrappingKey_Deterministic(t *testing.T) {
	password := []byte("secret-password")
	salt := []byte("fixed-salt-16byt")

	k1 := DeriveWrappingKey(password, salt, 1000)
	k2 := DeriveWrappingKey(password, salt, 1000)
	require.Equal(t, k1, k2)

	k3 := DeriveWrappingKey(password, []byte("another-salt-16b"), 1000)
	assert.NotEqual(t, k1, k3)

	k4 := DeriveWrappingKey(password, salt, 2000)
	assert.NotEqual(t, k1, k4)
}

func TestWipeBytes(t *testing.T) {
	buf := []byte{1, 2, 3, 4, 5}
	WipeBytes(buf)
	for i, v := range buf {
		require.Zerof(t, v, "buf[%d] not wiped", i)
	}
	WipeBytes(nil)
}
