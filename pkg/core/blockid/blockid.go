// Package blockid provides the content-addressed block identifier used
// throughout restorefs. A block identifier is the base64 encoding of a
// block's SHA-256 hash. Two alphabets of the same value circulate in a
// backup: the standard alphabet inside the snapshot file listing, and the
// URL-safe alphabet used as member names inside dblock archives. This
// package normalises on the URL-safe form and converts at every boundary,
// so mixed forms never reach the block index.
package blockid

import (
	"encoding/base64"
	"fmt"
)

// HashSize is the length in bytes of a block hash (SHA-256).
const HashSize = 32

// ID is a block identifier in canonical (URL-safe base64) form.
type ID string

// FromURL validates a URL-safe base64 string and returns it as a canonical ID.
func FromURL(s string) (ID, error) {
	if _, err := base64.URLEncoding.DecodeString(s); err != nil {
		return "", fmt.Errorf("invalid url-safe block id %q: %w", s, err)
	}
	return ID(s), nil
}

// FromStandard converts a standard base64 string, as found in a snapshot
// file listing, into a canonical ID.
func FromStandard(s string) (ID, error) {
	raw, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return "", fmt.Errorf("invalid standard block id %q: %w", s, err)
	}
	return ID(base64.URLEncoding.EncodeToString(raw)), nil
}

// FromBytes returns the canonical ID for a raw hash, typically a HashSize
// slice cut out of a block-list payload.
func FromBytes(raw []byte) ID {
	return ID(base64.URLEncoding.EncodeToString(raw))
}

// URL returns the URL-safe base64 form, which is also the member name the
// block carries inside its dblock archive.
func (id ID) URL() string {
	return string(id)
}

// Standard returns the standard base64 form used in file listings.
func (id ID) Standard() (string, error) {
	raw, err := base64.URLEncoding.DecodeString(string(id))
	if err != nil {
		return "", fmt.Errorf("invalid block id %q: %w", string(id), err)
	}
	return base64.StdEncoding.EncodeToString(raw), nil
}

// Bytes returns the decoded hash.
func (id ID) Bytes() ([]byte, error) {
	raw, err := base64.URLEncoding.DecodeString(string(id))
	if err != nil {
		return nil, fmt.Errorf("invalid block id %q: %w", string(id), err)
	}
	return raw, nil
}

func (id ID) String() string {
	return string(id)
}
