package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"
)

// Domain prefixes for content-addressed identity.
// Version suffix enables future algorithm migration.
const (
	DomainTree   = "fgdb/tree/v1"
	DomainBlock  = "fgdb/block/v1"
	DomainRoot   = "fgdb/root/v1"
	DomainOutput = "fgdb/output/v1"
)

// HashCodeLen is the length of a hash code: hex-encoded SHA-256.
const HashCodeLen = 64

// HeadLen is the length of the abbreviated hash code shown in listings.
const HeadLen = 8

// HashWithDomain computes SHA-256 hash with domain separation.
// Format: SHA256(domain + 0x00 + data)
// The null byte separator prevents domain/data boundary ambiguity.
func HashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// BlockID computes the identity of a registered block from its kind and
// payload digest. The kind is part of the identity so the same bytes
// registered as a function and as data are distinct blocks.
func BlockID(kind Kind, digest string) (string, error) {
	obj := map[string]any{
		"digest": digest,
		"kind":   string(kind),
	}
	canonical, err := MarshalCanonical(obj)
	if err != nil {
		return "", fmt.Errorf("BlockID: failed to marshal: %w", err)
	}
	return HashWithDomain(DomainBlock, canonical), nil
}

// RootID computes the identity of a graph root sentinel.
// Roots carry no payload, so the name and creation time stand in for content.
func RootID(name string, createdAt time.Time) (string, error) {
	obj := map[string]any{
		"created_at": FormatTime(createdAt),
		"name":       name,
	}
	canonical, err := MarshalCanonical(obj)
	if err != nil {
		return "", fmt.Errorf("RootID: failed to marshal: %w", err)
	}
	return HashWithDomain(DomainRoot, canonical), nil
}

// OutputID computes the identity of a data block produced by an execution.
//
// The function, the inputs and the commit seq are part of the identity, so an
// output is always a fresh node even when its bytes equal an existing block.
// Two executions of the same expression against identical graphs still yield
// the same ID, which keeps name-form and hash-form runs equivalent.
func OutputID(digest, function string, inputs []string, seq int64) (string, error) {
	obj := map[string]any{
		"digest":   digest,
		"function": function,
		"inputs":   inputs,
		"seq":      seq,
	}
	canonical, err := MarshalCanonical(obj)
	if err != nil {
		return "", fmt.Errorf("OutputID: failed to marshal: %w", err)
	}
	return HashWithDomain(DomainOutput, canonical), nil
}

// IsHashCode reports whether s has the syntactic shape of a hash code:
// exactly 64 lowercase hexadecimal characters.
func IsHashCode(s string) bool {
	if len(s) != HashCodeLen {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}

// Head returns the abbreviated form of a hash code used for display.
func Head(id string) string {
	if len(id) <= HeadLen {
		return id
	}
	return id[:HeadLen]
}

// MustBlockID is like BlockID but panics on error.
// Use only in tests or when inputs are known to be valid.
func MustBlockID(kind Kind, digest string) string {
	id, err := BlockID(kind, digest)
	if err != nil {
		panic(err)
	}
	return id
}

// MustOutputID is like OutputID but panics on error.
// Use only in tests or when inputs are known to be valid.
func MustOutputID(digest, function string, inputs []string, seq int64) string {
	id, err := OutputID(digest, function, inputs, seq)
	if err != nil {
		panic(err)
	}
	return id
}
