package snapshot

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/restorefs/restorefs/pkg/core/blockid"
)

// Manifest is the per-snapshot manifest document stored inside a dlist
// archive. Only Blocksize feeds the restore geometry; the remaining fields
// are parsed for completeness and diagnostics.
type Manifest struct {
	Version    int    `json:"Version"`
	Created    string `json:"Created"`
	Encoding   string `json:"Encoding"`
	Blocksize  int64  `json:"Blocksize"`
	BlockHash  string `json:"BlockHash"`
	FileHash   string `json:"FileHash"`
	AppVersion string `json:"AppVersion"`
}

// Params holds the block geometry the reassembly engine works with.
type Params struct {
	// BlockSize is the maximum payload size of one content block.
	BlockSize int64
	// HashSize is the length of one hash inside a block-list payload.
	// Always blockid.HashSize for real snapshots.
	HashSize int64
}

// OffsetSize is the number of output bytes one complete block-list
// describes: (BlockSize / HashSize) hashes, each naming a BlockSize block.
func (p Params) OffsetSize() int64 {
	return p.BlockSize / p.HashSize * p.BlockSize
}

// ParseManifest decodes a manifest document. The text may carry a UTF-8
// byte-order mark and surrounding whitespace; both are stripped before
// decoding.
func ParseManifest(data []byte) (Manifest, Params, error) {
	data = bytes.TrimSpace(bytes.TrimPrefix(data, []byte{0xEF, 0xBB, 0xBF}))

	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return Manifest{}, Params{}, fmt.Errorf("malformed manifest: %w", err)
	}
	if m.Blocksize <= 0 {
		return Manifest{}, Params{}, fmt.Errorf("malformed manifest: block size %d must be positive", m.Blocksize)
	}
	if m.Blocksize%blockid.HashSize != 0 {
		return Manifest{}, Params{}, fmt.Errorf("malformed manifest: block size %d is not a multiple of %d", m.Blocksize, blockid.HashSize)
	}

	return m, Params{BlockSize: m.Blocksize, HashSize: blockid.HashSize}, nil
}
