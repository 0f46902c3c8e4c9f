// Package index maintains the persistent mapping from canonical block id
// to the dblock archive that holds the block. The index is built once per
// run by scanning archive central directories in parallel, then serves
// concurrent lookups and block fetches for the restore phase.
package index

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	_ "github.com/mattn/go-sqlite3"
	"golang.org/x/sync/errgroup"

	"github.com/restorefs/restorefs/pkg/core/blockid"
	"github.com/restorefs/restorefs/pkg/infrastructure/logging"
	"github.com/restorefs/restorefs/pkg/storage"
)

// StaleError reports that the index names an archive which no longer
// contains the requested member. Callers treat it as an absent block.
type StaleError struct {
	ID      blockid.ID
	Archive string
}

func (e *StaleError) Error() string {
	return fmt.Sprintf("stale index: block %s no longer present in %s", e.ID, e.Archive)
}

// Index is a keyed store over (block id, archive number), persisted to a
// sqlite file inside the backup directory. Writes happen only during
// Build and are serialised; after Build returns, any number of readers
// may call Locate and Fetch concurrently.
type Index struct {
	db       *sql.DB
	archives []string
	mu       sync.Mutex
	log      *logging.Logger

	// onArchiveIndexed, when set, is invoked after each archive's batch
	// commits.
	onArchiveIndexed func()
}

// OnArchiveIndexed registers a progress callback fired once per archive
// during Build. Must be set before Build.
func (ix *Index) OnArchiveIndexed(fn func()) {
	ix.onArchiveIndexed = fn
}

// Open creates or reuses the index database at dbPath and binds it to an
// ordered archive list. Any rows from a previous run are cleared; the key
// index is in place before Build starts, so lookups are served from an
// indexed column from the first query on.
func Open(dbPath string, archives []string) (*Index, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open index %s: %w", dbPath, err)
	}

	stmts := []string{
		`CREATE TABLE IF NOT EXISTS BlockIdToFile (
			BlockId TEXT,
			FileNum INTEGER)`,
		`CREATE INDEX IF NOT EXISTS IxBlockId ON BlockIdToFile(BlockId)`,
		`DELETE FROM BlockIdToFile`,
	}
	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("prepare index %s: %w", dbPath, err)
		}
	}

	return &Index{
		db:       db,
		archives: archives,
		log:      logging.GetGlobalLogger().WithComponent("index"),
	}, nil
}

// Close releases the underlying database handle.
func (ix *Index) Close() error {
	return ix.db.Close()
}

// Build scans every archive's central directory and records one row per
// member. Archives are processed concurrently by at most workers tasks;
// each task does read-only work on its archive and then commits its batch
// in a single transaction under the write lock.
func (ix *Index) Build(ctx context.Context, workers int) error {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for num, path := range ix.archives {
		num, path := num, path
		g.Go(func() error {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}

			names, err := storage.ListMembers(path)
			if err != nil {
				return fmt.Errorf("index archive %d: %w", num, err)
			}
			if err := ix.commitBatch(num, names); err != nil {
				return fmt.Errorf("index archive %d (%s): %w", num, path, err)
			}
			ix.log.Debug("indexed archive", map[string]interface{}{
				"archive": path,
				"blocks":  len(names),
			})
			if ix.onArchiveIndexed != nil {
				ix.onArchiveIndexed()
			}
			return nil
		})
	}

	return g.Wait()
}

// commitBatch writes one archive's members in a single transaction. The
// mutex makes the sqlite connection effectively single-writer.
func (ix *Index) commitBatch(num int, names []string) error {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	tx, err := ix.db.Begin()
	if err != nil {
		return fmt.Errorf("begin batch: %w", err)
	}
	stmt, err := tx.Prepare(`INSERT INTO BlockIdToFile (BlockId, FileNum) VALUES (?, ?)`)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("prepare batch: %w", err)
	}
	defer stmt.Close()

	for _, name := range names {
		id, err := blockid.FromURL(name)
		if err != nil {
			// Non-block members (manifests copied into the wrong place,
			// stray files) are skipped rather than poisoning the index.
			ix.log.Warn("skipping non-block member", map[string]interface{}{
				"member":  name,
				"archive": ix.archives[num],
			})
			continue
		}
		if _, err := stmt.Exec(id.URL(), num); err != nil {
			tx.Rollback()
			return fmt.Errorf("insert %s: %w", id, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit batch: %w", err)
	}
	return nil
}

// Locate resolves a block id to the archive recorded as containing it at
// build time. The boolean reports whether a mapping exists; an unmapped id
// is not an error.
func (ix *Index) Locate(id blockid.ID) (string, bool, error) {
	var num int
	err := ix.db.QueryRow(
		`SELECT FileNum FROM BlockIdToFile WHERE BlockId = ? LIMIT 1`,
		id.URL(),
	).Scan(&num)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("locate %s: %w", id, err)
	}
	if num < 0 || num >= len(ix.archives) {
		return "", false, fmt.Errorf("locate %s: archive number %d out of range", id, num)
	}
	return ix.archives[num], true, nil
}

// Fetch resolves a block id and extracts its bytes from the owning
// archive. An id with no mapping returns (nil, false, nil); an id whose
// archive has lost the member returns a StaleError.
func (ix *Index) Fetch(id blockid.ID) ([]byte, bool, error) {
	archive, ok, err := ix.Locate(id)
	if err != nil || !ok {
		return nil, false, err
	}

	data, found, err := storage.ReadMember(archive, id.URL())
	if err != nil {
		return nil, false, err
	}
	if !found {
		return nil, false, &StaleError{ID: id, Archive: archive}
	}
	return data, true, nil
}
