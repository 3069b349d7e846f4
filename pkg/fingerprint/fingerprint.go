// Package fingerprint computes stable identifiers for dumped program binaries so repeated scans
// of the same deployment can be recognised.
package fingerprint

import (
	"encoding/hex"
	"fmt"

	sha256 "github.com/minio/sha256-simd"
	"github.com/twmb/murmur3"
)

// Result contains the hash variants of one binary
type Result struct {
	SHA256 string `json:"sha256"`
	MMH3   string `json:"mmh3"`
	Size   int    `json:"size"`
}

// Compute hashes data. An empty input still yields well-defined digests.
func Compute(data []byte) Result {
	sum := sha256.Sum256(data)
	return Result{
		SHA256: hex.EncodeToString(sum[:]),
		MMH3:   calculateMMH3(data),
		Size:   len(data),
	}
}

// calculateMMH3 renders murmur3 as a signed 32-bit integer, the same convention Shodan uses
func calculateMMH3(data []byte) string {
	return fmt.Sprintf("%d", int32(murmur3.Sum32(data)))
}

// Short returns the first 16 hex characters of the sha256 digest.
func (r Result) Short() string {
	if len(r.SHA256) < 16 {
		return r.SHA256
	}
	return r.SHA256[:16]
}
