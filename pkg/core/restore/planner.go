package restore

import (
	"path/filepath"

	"github.com/restorefs/restorefs/pkg/core/snapshot"
)

// Plan separates a snapshot listing into the two restore passes. Folders
// keep listing order, which is root-first because listings are pre-order
// traversals; once they are all created the files can be restored in
// parallel against a directory tree that already exists.
type Plan struct {
	Folders []snapshot.Entry
	Files   []snapshot.Entry
}

// BuildPlan filters a listing into folder and file passes. Symlinks are
// dropped: the listing records them but carries no target to materialise.
func BuildPlan(entries []snapshot.Entry) Plan {
	var p Plan
	for _, e := range entries {
		switch e.Type {
		case snapshot.TypeFolder:
			p.Folders = append(p.Folders, e)
		case snapshot.TypeFile:
			p.Files = append(p.Files, e)
		}
	}
	return p
}

// OutputPath resolves where an entry lands on disk: the restore root
// joined with the entry path minus its leading separator.
func OutputPath(root, entryPath string) string {
	if len(entryPath) > 0 && (entryPath[0] == '/' || entryPath[0] == '\\') {
		entryPath = entryPath[1:]
	}
	return filepath.Join(root, filepath.FromSlash(entryPath))
}
