package snapshot

import (
	"archive/zip"
	"encoding/json"
	"fmt"
	"io"
)

const (
	manifestMember = "manifest"
	filelistMember = "filelist.json"
)

// rawEntry mirrors the JSON shape of one listing row. Optional fields are
// pointers so a missing field can be told apart from a zero value.
type rawEntry struct {
	Type          string   `json:"type"`
	Path          string   `json:"path"`
	Hash          *string  `json:"hash"`
	Size          *int64   `json:"size"`
	Time          *string  `json:"time"`
	MetaHash      string   `json:"metahash"`
	MetaSize      int64    `json:"metasize"`
	MetaBlockHash *string  `json:"metablockhash"`
	BlockLists    []string `json:"blocklists"`
}

// ParseFileList decodes a filelist.json document into typed entries,
// preserving listing order. A missing required field for the declared type
// is an error naming the offending path.
func ParseFileList(data []byte) ([]Entry, error) {
	var raw []rawEntry
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("malformed file listing: %w", err)
	}

	entries := make([]Entry, 0, len(raw))
	for _, r := range raw {
		e := Entry{
			Path:       r.Path,
			MetaHash:   r.MetaHash,
			MetaSize:   r.MetaSize,
			BlockLists: r.BlockLists,
		}
		switch r.Type {
		case "File":
			if r.Hash == nil || r.Size == nil || r.Time == nil {
				return nil, fmt.Errorf("malformed file listing: file entry %q is missing hash, size or time", r.Path)
			}
			e.Type = TypeFile
			e.Hash = *r.Hash
			e.Size = *r.Size
			e.Time = *r.Time
		case "Folder":
			if r.MetaBlockHash == nil {
				return nil, fmt.Errorf("malformed file listing: folder entry %q is missing metablockhash", r.Path)
			}
			e.Type = TypeFolder
			e.MetaBlockHash = *r.MetaBlockHash
		default:
			// Symlinks and any other listing type carry no payload.
			e.Type = TypeSymlink
		}
		entries = append(entries, e)
	}

	return entries, nil
}

// ReadSnapshot opens a dlist archive and returns its block geometry and
// file entries.
func ReadSnapshot(dlistPath string) (Manifest, Params, []Entry, error) {
	zr, err := zip.OpenReader(dlistPath)
	if err != nil {
		return Manifest{}, Params{}, nil, fmt.Errorf("open dlist %s: %w", dlistPath, err)
	}
	defer zr.Close()

	manifestData, err := readZipMember(&zr.Reader, manifestMember)
	if err != nil {
		return Manifest{}, Params{}, nil, fmt.Errorf("dlist %s: %w", dlistPath, err)
	}
	manifest, params, err := ParseManifest(manifestData)
	if err != nil {
		return Manifest{}, Params{}, nil, fmt.Errorf("dlist %s: %w", dlistPath, err)
	}

	listData, err := readZipMember(&zr.Reader, filelistMember)
	if err != nil {
		return Manifest{}, Params{}, nil, fmt.Errorf("dlist %s: %w", dlistPath, err)
	}
	entries, err := ParseFileList(listData)
	if err != nil {
		return Manifest{}, Params{}, nil, fmt.Errorf("dlist %s: %w", dlistPath, err)
	}

	return manifest, params, entries, nil
}

func readZipMember(zr *zip.Reader, name string) ([]byte, error) {
	for _, f := range zr.File {
		if f.Name != name {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, fmt.Errorf("open member %s: %w", name, err)
		}
		defer rc.Close()
		data, err := io.ReadAll(rc)
		if err != nil {
			return nil, fmt.Errorf("read member %s: %w", name, err)
		}
		return data, nil
	}
	return nil, fmt.Errorf("member %s not found", name)
}
