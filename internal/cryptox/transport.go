package cryptox

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
)

// jsonWebKey is the exported form of a symmetric key: an "oct" JSON Web
// Key carrying the raw key bytes base64url-encoded in the "k" member.
// The shape matches what browser WebCrypto produces for an extractable
// AES-GCM key, so links remain interchangeable with the web client.
type jsonWebKey struct {
	Kty    string   `json:"kty"`
	K      string   `json:"k"`
	Alg    string   `json:"alg"`
	Ext    bool     `json:"ext"`
	KeyOps []string `json:"key_ops"`
}

// EncodeKeyTransport serializes key into a URL-fragment-safe string:
// the JWK JSON, base64url-encoded without padding. The string is safe to
// place after '#' in a share link; a conforming user agent never sends
// the fragment over the network, which is what keeps the server blind.
func EncodeKeyTransport(key []byte) (string, error) {
	if len(key) != KeySize {
		return "", fmt.Errorf("encode key: expected %d bytes, got %d", KeySize, len(key))
	}

	jwk := jsonWebKey{
		Kty:    "oct",
		K:      base64.RawURLEncoding.EncodeToString(key),
		Alg:    "A256GCM",
		Ext:    true,
		KeyOps: []string{"encrypt", "decrypt"},
	}

	raw, err := json.Marshal(jwk)
	if err != nil {
		return "", fmt.Errorf("marshal jwk: %w", err)
	}

	return base64.RawURLEncoding.EncodeToString(raw), nil
}

// DecodeKeyTransport reverses EncodeKeyTransport and returns the raw key
// bytes. Padding and the standard base64 alphabet are tolerated on input,
// since fragments occasionally arrive mangled by copy-paste.
//
// Any decode, parse or shape failure yields ErrInvalidKeyEncoding. This
// signals a malformed link, which callers must keep distinct from a wrong
// key (ErrAuthenticationFailed) or wrong password (ErrIncorrectPassword).
func DecodeKeyTransport(s string) ([]byte, error) {
	raw, err := decodeLoose(s)
	if err != nil {
		return nil, ErrInvalidKeyEncoding
	}

	var jwk jsonWebKey
	if err := json.Unmarshal(raw, &jwk); err != nil {
		return nil, ErrInvalidKeyEncoding
	}
	if jwk.Kty != "oct" || jwk.K == "" {
		return nil, ErrInvalidKeyEncoding
	}

	key, err := decodeLoose(jwk.K)
	if err != nil {
		return nil, ErrInvalidKeyEncoding
	}
	if len(key) != KeySize {
		return nil, ErrInvalidKeyEncoding
	}
	return key, nil
}

// decodeLoose decodes base64url with or without padding, mapping the
// standard alphabet to the URL-safe one first.
func decodeLoose(s string) ([]byte, error) {
	s = strings.NewReplacer("+", "-", "/", "_").Replace(s)
	s = strings.TrimRight(s, "=")
	return base64.RawURLEncoding.DecodeString(s)
}
