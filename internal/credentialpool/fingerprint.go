package credentialpool

import (
	"encoding/hex"

	"golang.org/x/crypto/blake2b"
)

// Fingerprint returns a stable, non-reversible identifier for a raw
// credential, used as the map/log key everywhere the raw key itself must
// not appear (metrics labels, slog fields, Redis keys).
func Fingerprint(rawKey string) string {
	sum := blake2b.Sum256([]byte(rawKey))
	return hex.EncodeToString(sum[:])[:16]
}

// Masked returns a short, human-safe form of a fingerprint for log lines.
func Masked(fingerprint string) string {
	if len(fingerprint) <= 8 {
		return fingerprint
	}
	return fingerprint[:8] + "…"
}
