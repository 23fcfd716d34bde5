package cryptox

import (
	"bytes"
	"crypto/rand"
	"regexp"
	"testing"

	"github.com/stretchr/testify/require"
)

var labelPattern = regexp.MustCompile(`^file-[a-z0-9]{8}$`)

func TestGeneratePublicLabel_Format(t *testing.T) {
	label, err := GeneratePublicLabel(rand.Reader)
	require.NoError(t, err)
	require.Regexp(t, labelPattern, label)
}

func TestGeneratePublicLabel_Deterministic(t *testing.T) {
	// With a fixed byte stream the mapping is byte mod alphabet size.
	src := bytes.NewReader([]byte{0, 1, 25, 26, 35, 36, 255, 128})
	label, err := GeneratePublicLabel(src)
	require.NoError(t, err)
	// 36 -> 'a' again, 255 mod 36 = 3 -> 'd', 128 mod 36 = 20 -> 'u'
	require.Equal(t, "file-abz09adu", label)
}

func TestGeneratePublicLabel_CollisionRate(t *testing.T) {
	const n = 10000
	seen := make(map[string]struct{}, n)
	collisions := 0

	for i := 0; i < n; i++ {
		label, err := GeneratePublicLabel(rand.Reader)
		require.NoError(t, err)
		require.Regexp(t, labelPattern, label)
		if _, ok := seen[label]; ok {
			collisions++
		}
		seen[label] = struct{}{}
	}

	// 36^8 ≈ 2.8e12 possible labels; for 1e4 draws the birthday bound
	// puts the expected collision count well below one.
	require.LessOrEqual(t, collisions, 1)
}

func TestGeneratePublicLabel_ExhaustedSource(t *testing.T) {
	_, err := GeneratePublicLabel(bytes.NewReader([]byte{1, 2, 3}))
	require.Error(t, err)
}
