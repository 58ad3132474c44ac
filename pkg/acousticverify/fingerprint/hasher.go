package fingerprint

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"math"

	"github.com/OneOfOne/xxhash"
	"github.com/himanishpuri/AcousticVerify/pkg/models"
)

// SampleBytes is the canonical byte form of samples: each float64 as 8
// little-endian IEEE-754 bytes. Digests are taken over exactly these bytes.
func SampleBytes(samples []float64) []byte {
	buf := make([]byte, 8*len(samples))
	for i, s := range samples {
		binary.LittleEndian.PutUint64(buf[i*8:], math.Float64bits(s))
	}
	return buf
}

// Digest returns the SHA-256 and xxHash64 digests of the sample bytes.
func Digest(samples []float64) models.ContentDigest {
	return DigestBytes(SampleBytes(samples))
}

func DigestBytes(b []byte) models.ContentDigest {
	sum := sha256.Sum256(b)
	return models.ContentDigest{
		SHA256:   hex.EncodeToString(sum[:]),
		XXHash64: fmt.Sprintf("%016x", xxhash.Checksum64(b)),
	}
}
