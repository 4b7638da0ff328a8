package hashing

import (
	"crypto/sha1"
	"crypto/sha512"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"io"
)

// Digests are the checksums an npm client verifies a tarball against.
type Digests struct {
	Shasum    string // hex sha1, the legacy dist.shasum
	Integrity string // subresource integrity string, dist.integrity
	Size      int64
}

// ComputeDigests reads r to the end in a single pass.
func ComputeDigests(r io.Reader) (Digests, error) {
	s1 := sha1.New()
	s512 := sha512.New()
	n, err := io.Copy(io.MultiWriter(s1, s512), r)
	if err != nil {
		return Digests{}, fmt.Errorf("computing digests: %w", err)
	}
	return Digests{
		Shasum:    hex.EncodeToString(s1.Sum(nil)),
		Integrity: "sha512-" + base64.StdEncoding.EncodeToString(s512.Sum(nil)),
		Size:      n,
	}, nil
}
