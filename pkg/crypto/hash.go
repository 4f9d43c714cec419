// Package crypto provides cryptographic primitives for AttestNet.
package crypto

import (
	"github.com/attestnet/attestnet/pkg/types"
	"github.com/zeebo/blake3"
)

// Hash computes a BLAKE3-256 hash of the input data.
func Hash(data []byte) types.Hash {
	return blake3.Sum256(data)
}
