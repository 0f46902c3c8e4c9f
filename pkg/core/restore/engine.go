// Package restore plans and executes the materialisation of a snapshot
// listing onto disk. Folders are created in a sequential pass, then files
// are reassembled in parallel: a small file from the single content block
// its entry names, a large file by walking its block lists and writing
// each referenced content block at its computed offset. Missing blocks
// are reported and leave holes; they never abort a run.
package restore

import (
	"context"
	"fmt"
	"os"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/restorefs/restorefs/pkg/core/blockid"
	"github.com/restorefs/restorefs/pkg/core/snapshot"
	"github.com/restorefs/restorefs/pkg/infrastructure/logging"
)

// BlockSource resolves a block id to its raw bytes. The boolean reports
// whether the block is known; errors cover failures distinct from plain
// absence, such as a stale index entry or an unreadable archive, and are
// treated by the engine as absence with a diagnostic.
type BlockSource interface {
	Fetch(id blockid.ID) ([]byte, bool, error)
}

// Stats is a snapshot of restore counters.
type Stats struct {
	FoldersCreated int64
	FilesRestored  int64
	FilesFailed    int64
	MissingBlocks  int64
	BytesWritten   int64
}

// Restorer reassembles file entries from a block source into a restore
// root. One Restorer serves a whole run; its methods are safe for
// concurrent use by the file-pass workers.
type Restorer struct {
	src    BlockSource
	params snapshot.Params
	root   string
	log    *logging.Logger

	// onFileDone, when set, is invoked after every finished file task.
	onFileDone func()

	foldersCreated atomic.Int64
	filesRestored  atomic.Int64
	filesFailed    atomic.Int64
	missingBlocks  atomic.Int64
	bytesWritten   atomic.Int64
}

// NewRestorer creates a restorer writing under root.
func NewRestorer(src BlockSource, params snapshot.Params, root string) *Restorer {
	return &Restorer{
		src:    src,
		params: params,
		root:   root,
		log:    logging.GetGlobalLogger().WithComponent("restore"),
	}
}

// OnFileDone registers a callback fired after each completed file task,
// successful or not. Must be set before Run.
func (r *Restorer) OnFileDone(fn func()) {
	r.onFileDone = fn
}

// Stats returns the current counter values.
func (r *Restorer) Stats() Stats {
	return Stats{
		FoldersCreated: r.foldersCreated.Load(),
		FilesRestored:  r.filesRestored.Load(),
		FilesFailed:    r.filesFailed.Load(),
		MissingBlocks:  r.missingBlocks.Load(),
		BytesWritten:   r.bytesWritten.Load(),
	}
}

// Run executes the plan: the folder pass runs to completion before the
// first file task starts, then files restore concurrently with at most
// workers tasks. Per-file failures are logged and counted; only context
// cancellation aborts the run.
func (r *Restorer) Run(ctx context.Context, plan Plan, workers int) error {
	for _, folder := range plan.Folders {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if err := r.RestoreEntry(folder); err != nil {
			r.log.Error("failed to create directory", map[string]interface{}{
				"path":  OutputPath(r.root, folder.Path),
				"error": err,
			})
		}
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for _, entry := range plan.Files {
		entry := entry
		g.Go(func() error {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}

			if err := r.RestoreEntry(entry); err != nil {
				r.filesFailed.Add(1)
				r.log.Error("file restore failed", map[string]interface{}{
					"path":  OutputPath(r.root, entry.Path),
					"error": err,
				})
			} else {
				r.filesRestored.Add(1)
			}
			if r.onFileDone != nil {
				r.onFileDone()
			}
			return nil
		})
	}

	return g.Wait()
}

// RestoreEntry materialises a single entry. Folders become directories,
// files are reassembled from blocks, symlinks are left alone. The
// returned error covers output I/O failures only; absent blocks are
// diagnosed and skipped.
func (r *Restorer) RestoreEntry(e snapshot.Entry) error {
	path := OutputPath(r.root, e.Path)

	switch e.Type {
	case snapshot.TypeFolder:
		if err := os.MkdirAll(path, 0755); err != nil {
			return fmt.Errorf("create directory %s: %w", path, err)
		}
		r.foldersCreated.Add(1)
		return nil
	case snapshot.TypeFile:
		return r.restoreFile(e, path)
	default:
		return nil
	}
}

func (r *Restorer) restoreFile(e snapshot.Entry, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create file %s: %w", path, err)
	}
	defer f.Close()

	if len(e.BlockLists) == 0 {
		return r.restoreDirect(f, e, path)
	}
	return r.restoreIndirect(f, e, path)
}

// restoreDirect writes a file that fits in one content block. An absent
// block leaves the file zero-length; that is only worth a diagnostic when
// the entry says there should have been bytes.
func (r *Restorer) restoreDirect(f *os.File, e snapshot.Entry, path string) error {
	id, err := blockid.FromStandard(e.Hash)
	if err != nil {
		r.reportMissing(e.Hash, path, err)
		return nil
	}

	data, found, err := r.src.Fetch(id)
	if err != nil {
		r.reportMissing(e.Hash, path, err)
		return nil
	}
	if !found {
		if e.Size > 0 {
			r.reportMissing(e.Hash, path, nil)
		}
		return nil
	}

	if _, err := f.Write(data); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	r.bytesWritten.Add(int64(len(data)))
	return nil
}

// restoreIndirect reassembles a file spanning multiple blocks. Block list
// i covers the region starting at i*offsetSize; hash j inside its payload
// names the content block belonging at i*offsetSize + j*blockSize. Writes
// land at their final offsets directly, so regions may complete in any
// order and skipped regions read as zeros.
func (r *Restorer) restoreIndirect(f *os.File, e snapshot.Entry, path string) error {
	offsetSize := r.params.OffsetSize()
	hashSize := int(r.params.HashSize)

	// Highest intended end among regions lost to missing blocks. A block
	// missing at the tail would otherwise leave the file short, so the
	// file is grown afterwards to make the hole read as zeros.
	var holeEnd int64

	for i, listHash := range e.BlockLists {
		base := int64(i) * offsetSize
		// The final list always describes through end-of-file; its hash
		// count is unknowable when the payload itself is missing.
		regionEnd := min(base+offsetSize, e.Size)
		if i == len(e.BlockLists)-1 {
			regionEnd = e.Size
		}

		listID, err := blockid.FromStandard(listHash)
		if err != nil {
			r.reportMissing(listHash, path, err)
			holeEnd = max(holeEnd, regionEnd)
			continue
		}
		payload, found, err := r.src.Fetch(listID)
		if err != nil || !found {
			r.reportMissing(listHash, path, err)
			holeEnd = max(holeEnd, regionEnd)
			continue
		}
		if len(payload)%hashSize != 0 {
			r.log.Warn("block list payload is not a whole number of hashes", map[string]interface{}{
				"block": listHash,
				"path":  path,
				"bytes": len(payload),
			})
		}

		for j := 0; (j+1)*hashSize <= len(payload); j++ {
			id := blockid.FromBytes(payload[j*hashSize : (j+1)*hashSize])
			off := base + int64(j)*r.params.BlockSize

			data, found, err := r.src.Fetch(id)
			if err != nil || !found {
				r.reportMissing(id.URL(), path, err)
				holeEnd = max(holeEnd, min(off+r.params.BlockSize, e.Size))
				continue
			}

			if _, err := f.WriteAt(data, off); err != nil {
				return fmt.Errorf("write %s at offset %d: %w", path, off, err)
			}
			r.bytesWritten.Add(int64(len(data)))
		}
	}

	if holeEnd > 0 {
		fi, err := f.Stat()
		if err != nil {
			return fmt.Errorf("stat %s: %w", path, err)
		}
		if fi.Size() < holeEnd {
			if err := f.Truncate(holeEnd); err != nil {
				return fmt.Errorf("extend %s to %d: %w", path, holeEnd, err)
			}
		}
	}

	return nil
}

// reportMissing emits the one diagnostic an absent block gets, naming the
// block and the affected output path.
func (r *Restorer) reportMissing(block, path string, cause error) {
	r.missingBlocks.Add(1)
	fields := map[string]interface{}{
		"block": block,
		"path":  path,
	}
	if cause != nil {
		fields["error"] = cause.Error()
	}
	r.log.Warn("missing block", fields)
}
