package identity

import (
	"encoding/base32"
	"errors"
	"strings"

	"golang.org/x/crypto/blake2b"
)

// unitSeparator joins seed components. It cannot appear in validated
// components, so distinct component tuples never collide.
const unitSeparator = "\x1f"

// lowerBase32 encodes digests with the strict lowercase alphabet [a-z2-7].
var lowerBase32 = base32.StdEncoding.WithPadding(base32.NoPadding)

// CompactToken builds a deterministic token of the given length from seed,
// using a keyless BLAKE2b digest encoded as lowercase base32.
//
// The optional namespace is prepended to the seed so tokens from different
// domains never collide even for identical seeds.
func CompactToken(seed string, length int, namespace string) (string, error) {
	if strings.TrimSpace(seed) == "" {
		return "", errors.New("seed must not be empty")
	}
	if length < 1 {
		return "", errors.New("length must be >= 1")
	}

	content := strings.TrimSpace(seed)
	if namespace != "" {
		content = strings.TrimSpace(namespace) + unitSeparator + content
	}

	// 5 bits per base32 character, with a floor so short tokens still draw
	// on a reasonably wide digest.
	size := (length*5 + 7) / 8
	if size < 10 {
		size = 10
	}
	if size > blake2b.Size {
		size = blake2b.Size
	}

	h, err := blake2b.New(size, nil)
	if err != nil {
		return "", err
	}
	h.Write([]byte(content))

	encoded := strings.ToLower(lowerBase32.EncodeToString(h.Sum(nil)))
	if length > len(encoded) {
		length = len(encoded)
	}
	return encoded[:length], nil
}
