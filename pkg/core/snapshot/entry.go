// Package snapshot reads the contents of a dlist archive: the manifest
// with the backup's block geometry, and the file listing describing every
// path the snapshot contains.
package snapshot

// EntryType distinguishes the three kinds of listing entries.
type EntryType int

const (
	// TypeFile is a regular file backed by one or more content blocks.
	TypeFile EntryType = iota
	// TypeFolder is a directory; only its path is materialised.
	TypeFolder
	// TypeSymlink covers every non-file, non-folder listing type. Symlinks
	// are recognised but never materialised.
	TypeSymlink
)

func (t EntryType) String() string {
	switch t {
	case TypeFile:
		return "file"
	case TypeFolder:
		return "folder"
	default:
		return "symlink"
	}
}

// Entry is one row of the snapshot file listing.
//
// Paths begin with a single separator and are treated as relative to the
// restore root once that separator is stripped. For files, Hash names the
// single content block when the file fits in one block (BlockLists empty),
// or the whole-file hash otherwise, in which case BlockLists holds the
// ordered block-list ids describing the content.
type Entry struct {
	Path     string
	MetaHash string
	MetaSize int64
	Type     EntryType

	// File fields.
	Hash string
	Size int64
	Time string

	// Folder fields.
	MetaBlockHash string

	// BlockLists is ordered: element i describes the file region starting
	// at byte offset i * Params.OffsetSize(). Ids are in standard base64.
	BlockLists []string
}

// IsFile reports whether the entry is a regular file.
func (e Entry) IsFile() bool {
	return e.Type == TypeFile
}

// IsFolder reports whether the entry is a directory.
func (e Entry) IsFolder() bool {
	return e.Type == TypeFolder
}
