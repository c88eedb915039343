// Package blobstore provides content-addressed storage for sealed artifact
// payloads. A reference is "blake3:" followed by the hex digest of the
// stored bytes, so the same payload always yields the same reference.
package blobstore

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/zeebo/blake3"
)

var (
	// ErrNotFound is returned when no blob exists for a reference
	ErrNotFound = errors.New("blob not found")

	// ErrInvalidReference is returned for malformed references
	ErrInvalidReference = errors.New("invalid blob reference")

	// ErrCorrupt is returned when stored bytes no longer match their reference
	ErrCorrupt = errors.New("blob content does not match reference")
)

const refPrefix = "blake3:"

// blobDomainKey keeps blob digests distinct from ledger hashes.
var blobDomainKey = [32]byte{
	'r', 'e', 'c', 'o', 'r', 'd', 'v', 'a', 'u', 'l', 't', '.', 'b', 'l', 'o', 'b',
	'.', 'v', '1', 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
}

// Store is a content-addressed blob store.
type Store interface {
	// Put stores data and returns its reference
	Put(ctx context.Context, data []byte) (string, error)

	// Get returns the bytes stored under ref
	Get(ctx context.Context, ref string) ([]byte, error)
}

// Reference computes the reference of data.
func Reference(data []byte) string {
	hasher, err := blake3.NewKeyed(blobDomainKey[:])
	if err != nil {
		panic("blobstore: BLAKE3 keyed hash initialization failed: " + err.Error())
	}
	hasher.Write(data)
	return refPrefix + hex.EncodeToString(hasher.Sum(nil))
}

// parseReference validates ref and returns its hex digest.
func parseReference(ref string) (string, error) {
	digest, ok := strings.CutPrefix(ref, refPrefix)
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrInvalidReference, ref)
	}
	raw, err := hex.DecodeString(digest)
	if err != nil || len(raw) != 32 {
		return "", fmt.Errorf("%w: %q", ErrInvalidReference, ref)
	}
	return digest, nil
}
