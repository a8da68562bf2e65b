// Package hashing computes the deterministic content hashes used for snapshot
// change detection and audit chaining.
//
// All hashes are SHA-256, hex encoded, over a versioned canonical string. Each
// canonical string starts with a record tag and a version, followed by
// length-prefixed fields in a fixed order:
//
//	AUDIT_ENTRY|v1|64:<prev>|14:snapshot_taken|...
//
// Length prefixes keep values containing the separator from colliding with
// a different field split. Changing field order or content is a new version.
package hashing

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Version is the canonical encoding version written into every hashed string.
const Version = "v1"

const (
	tagFields  = "FIELDS"
	tagPayload = "PAYLOAD"
)

// Sum returns the hex SHA-256 of s.
func Sum(s string) string {
	h := sha256.Sum256([]byte(s))
	return hex.EncodeToString(h[:])
}

// Canonical builds the versioned, length-prefixed encoding of parts under tag.
func Canonical(tag string, parts ...string) string {
	var b strings.Builder
	b.WriteString(tag)
	b.WriteString("|")
	b.WriteString(Version)
	for _, p := range parts {
		b.WriteString("|")
		b.WriteString(strconv.Itoa(len(p)))
		b.WriteString(":")
		b.WriteString(p)
	}
	return b.String()
}

// Record hashes the canonical encoding of parts under tag.
func Record(tag string, parts ...string) string {
	return Sum(Canonical(tag, parts...))
}

// Fields hashes a flat field map independent of map iteration order.
func Fields[K ~string](fields map[K]string) string {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, string(k))
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys)*2)
	for _, k := range keys {
		parts = append(parts, k, fields[K(k)])
	}
	return Record(tagFields, parts...)
}

// Payload encodes v as JSON and hashes it. encoding/json writes struct fields
// in declaration order and map keys sorted, so equal values hash equally.
// The encoded bytes are returned so callers can store exactly what was hashed.
func Payload(v any) (string, []byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return "", nil, fmt.Errorf("encode payload: %w", err)
	}
	return PayloadBytes(raw), raw, nil
}

// PayloadBytes hashes an already encoded payload.
func PayloadBytes(raw []byte) string {
	return Record(tagPayload, string(raw))
}

// Unit maps a hex hash onto [0, 1). Invalid input maps to 0.
func Unit(hash string) float64 {
	if len(hash) < 16 {
		return 0
	}
	b, err := hex.DecodeString(hash[:16])
	if err != nil {
		return 0
	}
	// Top 53 bits give a uniformly spaced float64.
	return float64(binary.BigEndian.Uint64(b)>>11) / float64(uint64(1)<<53)
}
