package restore

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/restorefs/restorefs/pkg/core/blockid"
	"github.com/restorefs/restorefs/pkg/core/snapshot"
)

// mapSource is an in-memory BlockSource keyed by canonical id.
type mapSource map[blockid.ID][]byte

func (m mapSource) Fetch(id blockid.ID) ([]byte, bool, error) {
	data, ok := m[id]
	return data, ok, nil
}

// put stores a payload under its SHA-256 id and returns the standard
// base64 form a listing would carry.
func (m mapSource) put(payload []byte) string {
	sum := sha256.Sum256(payload)
	m[blockid.FromBytes(sum[:])] = payload
	return base64.StdEncoding.EncodeToString(sum[:])
}

// putList stores a block-list payload built from the hashes of the given
// content payloads and returns its standard-form id.
func (m mapSource) putList(payloads ...[]byte) string {
	var list []byte
	for _, p := range payloads {
		sum := sha256.Sum256(p)
		list = append(list, sum[:]...)
	}
	return m.put(list)
}

func fileEntry(path string, size int64, hash string, blockLists ...string) snapshot.Entry {
	return snapshot.Entry{
		Path:       path,
		Type:       snapshot.TypeFile,
		Hash:       hash,
		Size:       size,
		Time:       "20200202T000000Z",
		BlockLists: blockLists,
	}
}

func readFile(t *testing.T, path string) []byte {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return data
}

func TestRestoreSmallFile(t *testing.T) {
	src := mapSource{}
	hash := src.put([]byte("abc"))
	root := t.TempDir()

	r := NewRestorer(src, snapshot.Params{BlockSize: 4, HashSize: 32}, root)
	require.NoError(t, r.RestoreEntry(fileEntry("/a", 3, hash)))

	assert.Equal(t, []byte("abc"), readFile(t, filepath.Join(root, "a")))
	assert.Equal(t, int64(0), r.Stats().MissingBlocks)
}

func TestRestoreLargeFileOneBlockList(t *testing.T) {
	src := mapSource{}
	list := src.putList([]byte("0123"), []byte("45"))
	src.put([]byte("0123"))
	src.put([]byte("45"))
	wholeFile := src.put([]byte("012345"))
	root := t.TempDir()

	r := NewRestorer(src, snapshot.Params{BlockSize: 4, HashSize: 32}, root)
	require.NoError(t, r.RestoreEntry(fileEntry("/big", 6, wholeFile, list)))

	assert.Equal(t, []byte("012345"), readFile(t, filepath.Join(root, "big")))
}

func TestRestoreLargeFileTwoBlockLists(t *testing.T) {
	// Degenerate geometry: two-byte hashes and two-byte blocks, so one
	// block-list covers exactly one block and the file needs two lists.
	src := mapSource{}
	src[blockid.FromBytes([]byte("HA"))] = []byte("pq")
	src[blockid.FromBytes([]byte("HB"))] = []byte("rs")
	l0 := src.put([]byte("HA"))
	l1 := src.put([]byte("HB"))
	root := t.TempDir()

	r := NewRestorer(src, snapshot.Params{BlockSize: 2, HashSize: 2}, root)
	require.NoError(t, r.RestoreEntry(fileEntry("/two", 4, "ignored", l0, l1)))

	assert.Equal(t, []byte("pqrs"), readFile(t, filepath.Join(root, "two")))
}

func TestRestoreMissingContentBlock(t *testing.T) {
	// The second content block is absent: its region stays a hole of
	// zeros, the restore continues and reports exactly one missing block.
	src := mapSource{}
	missing := []byte("45")
	list := src.putList([]byte("0123"), missing)
	src.put([]byte("0123"))
	root := t.TempDir()

	r := NewRestorer(src, snapshot.Params{BlockSize: 4, HashSize: 32}, root)
	require.NoError(t, r.RestoreEntry(fileEntry("/holey", 6, "ignored", list)))

	assert.Equal(t, []byte("0123\x00\x00"), readFile(t, filepath.Join(root, "holey")))
	assert.Equal(t, int64(1), r.Stats().MissingBlocks)
}

func TestRestoreMissingBlockList(t *testing.T) {
	src := mapSource{}
	sum := sha256.Sum256([]byte("never stored list"))
	list := base64.StdEncoding.EncodeToString(sum[:])
	root := t.TempDir()

	r := NewRestorer(src, snapshot.Params{BlockSize: 4, HashSize: 32}, root)
	require.NoError(t, r.RestoreEntry(fileEntry("/gone", 6, "ignored", list)))

	// The whole described region is a hole.
	assert.Equal(t, make([]byte, 6), readFile(t, filepath.Join(root, "gone")))
	assert.Equal(t, int64(1), r.Stats().MissingBlocks)
}

func TestRestoreEmptyFileMissingBlockIsSilent(t *testing.T) {
	src := mapSource{}
	sum := sha256.Sum256([]byte("whatever"))
	hash := base64.StdEncoding.EncodeToString(sum[:])
	root := t.TempDir()

	r := NewRestorer(src, snapshot.Params{BlockSize: 4, HashSize: 32}, root)
	require.NoError(t, r.RestoreEntry(fileEntry("/empty", 0, hash)))

	assert.Empty(t, readFile(t, filepath.Join(root, "empty")))
	assert.Equal(t, int64(0), r.Stats().MissingBlocks)
}

func TestRestoreSmallFileMissingBlockDiagnosed(t *testing.T) {
	src := mapSource{}
	sum := sha256.Sum256([]byte("lost"))
	hash := base64.StdEncoding.EncodeToString(sum[:])
	root := t.TempDir()

	r := NewRestorer(src, snapshot.Params{BlockSize: 4, HashSize: 32}, root)
	require.NoError(t, r.RestoreEntry(fileEntry("/lost", 4, hash)))

	assert.Empty(t, readFile(t, filepath.Join(root, "lost")))
	assert.Equal(t, int64(1), r.Stats().MissingBlocks)
}

func TestRestoreFolder(t *testing.T) {
	root := t.TempDir()
	r := NewRestorer(mapSource{}, snapshot.Params{BlockSize: 4, HashSize: 32}, root)

	require.NoError(t, r.RestoreEntry(snapshot.Entry{
		Path: "/d/nested", Type: snapshot.TypeFolder, MetaBlockHash: "b",
	}))

	fi, err := os.Stat(filepath.Join(root, "d", "nested"))
	require.NoError(t, err)
	assert.True(t, fi.IsDir())
}

func TestRestoreSymlinkIsNoop(t *testing.T) {
	root := t.TempDir()
	r := NewRestorer(mapSource{}, snapshot.Params{BlockSize: 4, HashSize: 32}, root)

	require.NoError(t, r.RestoreEntry(snapshot.Entry{Path: "/l", Type: snapshot.TypeSymlink}))

	_, err := os.Lstat(filepath.Join(root, "l"))
	assert.True(t, os.IsNotExist(err))
}

func TestRunFolderBeforeFile(t *testing.T) {
	src := mapSource{}
	hash := src.put([]byte("abc"))
	root := t.TempDir()

	entries := []snapshot.Entry{
		{Path: "/d", Type: snapshot.TypeFolder, MetaBlockHash: "b"},
		fileEntry("/d/f", 3, hash),
	}
	plan := BuildPlan(entries)

	r := NewRestorer(src, snapshot.Params{BlockSize: 4, HashSize: 32}, root)
	require.NoError(t, r.Run(context.Background(), plan, 4))

	assert.Equal(t, []byte("abc"), readFile(t, filepath.Join(root, "d", "f")))
	stats := r.Stats()
	assert.Equal(t, int64(1), stats.FoldersCreated)
	assert.Equal(t, int64(1), stats.FilesRestored)
}

func TestRunManyFilesParallel(t *testing.T) {
	src := mapSource{}
	root := t.TempDir()

	entries := []snapshot.Entry{
		{Path: "/d", Type: snapshot.TypeFolder, MetaBlockHash: "b"},
	}
	want := map[string][]byte{}
	for i := 0; i < 50; i++ {
		payload := []byte{byte(i), byte(i >> 4), 'x'}
		hash := src.put(payload)
		name := string(rune('a'+i%26)) + string(rune('0'+i/26))
		entries = append(entries, fileEntry("/d/"+name, int64(len(payload)), hash))
		want[name] = payload
	}

	r := NewRestorer(src, snapshot.Params{BlockSize: 4, HashSize: 32}, root)
	require.NoError(t, r.Run(context.Background(), BuildPlan(entries), 8))

	for name, payload := range want {
		assert.Equal(t, payload, readFile(t, filepath.Join(root, "d", name)), "file %s", name)
	}
	assert.Equal(t, int64(50), r.Stats().FilesRestored)
}

func TestRestoreIdempotent(t *testing.T) {
	src := mapSource{}
	list := src.putList([]byte("0123"), []byte("45"))
	src.put([]byte("0123"))
	src.put([]byte("45"))
	root := t.TempDir()

	entry := fileEntry("/f", 6, "ignored", list)
	r := NewRestorer(src, snapshot.Params{BlockSize: 4, HashSize: 32}, root)

	require.NoError(t, r.RestoreEntry(entry))
	first := readFile(t, filepath.Join(root, "f"))
	require.NoError(t, r.RestoreEntry(entry))
	second := readFile(t, filepath.Join(root, "f"))

	assert.Equal(t, first, second)
}

func TestRestoreShrinksPreviousLongerFile(t *testing.T) {
	// A re-run into a dirty target truncates on create, so stale bytes
	// from an earlier, longer file cannot leak into the result.
	src := mapSource{}
	hash := src.put([]byte("abc"))
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "a"), []byte("previous longer content"), 0644))

	r := NewRestorer(src, snapshot.Params{BlockSize: 4, HashSize: 32}, root)
	require.NoError(t, r.RestoreEntry(fileEntry("/a", 3, hash)))

	assert.Equal(t, []byte("abc"), readFile(t, filepath.Join(root, "a")))
}
