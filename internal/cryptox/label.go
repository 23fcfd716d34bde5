package cryptox

import (
	"fmt"
	"io"
)

const (
	labelPrefix   = "file-"
	labelAlphabet = "abcdefghijklmnopqrstuvwxyz0123456789"
	labelLength   = 8
)

// GeneratePublicLabel returns a display name with no relationship to the
// real filename, for records where the real name must stay hidden from
// the server: a constant prefix followed by eight characters drawn from a
// lowercase-alphanumeric alphabet.
//
// rand must be a cryptographically secure source. Predictable labels
// would let an attacker enumerate stored blobs, so a PRNG seeded from
// time or similar is not acceptable here.
func GeneratePublicLabel(rand io.Reader) (string, error) {
	buf := make([]byte, labelLength)
	if _, err := io.ReadFull(rand, buf); err != nil {
		return "", fmt.Errorf("generate label: %w", err)
	}

	out := make([]byte, labelLength)
	for i, b := range buf {
		out[i] = labelAlphabet[int(b)%len(labelAlphabet)]
	}
	return labelPrefix + string(out), nil
}
