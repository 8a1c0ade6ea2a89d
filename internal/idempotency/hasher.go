package idempotency

import (
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"hash"
	"strings"

	"labor/internal/constants"
)

// Hasher derives idempotency keys.
type Hasher struct {
	algorithm string
}

func NewHasher(algorithm string) *Hasher {
	return &Hasher{algorithm: strings.ToLower(algorithm)}
}

// Key returns the explicit transport key when one was supplied, otherwise a hex digest
// of the payload prefixed with the algorithm name so that keys from different
// algorithms never collide.
func (h *Hasher) Key(explicit string, payload []byte) string {
	if explicit = strings.TrimSpace(explicit); explicit != "" {
		return explicit
	}

	var hasher hash.Hash
	algorithm := h.algorithm
	switch algorithm {
	case constants.HashAlgorithmSHA512:
		hasher = sha512.New()
	default:
		algorithm = constants.HashAlgorithmSHA256
		hasher = sha256.New()
	}
	hasher.Write(payload)
	return algorithm + ":" + hex.EncodeToString(hasher.Sum(nil))
}
