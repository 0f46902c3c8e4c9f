// Command restorefs reconstructs a file tree from a Duplicati-style
// content-addressed backup directory. It indexes the dblock archives,
// parses the newest snapshot listing, and reassembles every file under
// the restore root.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/restorefs/restorefs/pkg/core/restore"
	"github.com/restorefs/restorefs/pkg/core/snapshot"
	"github.com/restorefs/restorefs/pkg/infrastructure/config"
	"github.com/restorefs/restorefs/pkg/infrastructure/logging"
	"github.com/restorefs/restorefs/pkg/storage"
	"github.com/restorefs/restorefs/pkg/storage/index"
	"github.com/restorefs/restorefs/pkg/util"
)

var version = "dev"

const indexFileName = "index.db"

func main() {
	var (
		configFile  = flag.String("config", "", "Configuration file path")
		backupDir   = flag.String("backup", "", "Backup directory containing dblock/dlist archives")
		restoreDir  = flag.String("restore", "", "Directory to restore the file tree into")
		workers     = flag.Int("workers", 0, "Number of parallel workers (overrides config, default = CPU count)")
		logLevel    = flag.String("log-level", "", "Log level: debug, info, warn, error (overrides config)")
		logFormat   = flag.String("log-format", "", "Log format: text or json (overrides config)")
		quiet       = flag.Bool("quiet", false, "Only log errors, no progress output")
		showVersion = flag.Bool("version", false, "Print version and exit")
	)
	flag.Parse()

	if *showVersion {
		fmt.Printf("restorefs %s\n", version)
		return
	}

	cfg, err := config.LoadConfig(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
	if *workers > 0 {
		cfg.Restore.Workers = *workers
	}
	if *logLevel != "" {
		cfg.Logging.Level = *logLevel
	}
	if *logFormat != "" {
		cfg.Logging.Format = *logFormat
	}
	if *quiet {
		cfg.Logging.Level = "error"
	}

	if err := logging.Init(cfg.Logging.Level, cfg.Logging.Format, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, *backupDir, *restoreDir, *quiet); err != nil {
		logging.Error("restore failed", map[string]interface{}{"error": err})
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, backupDir, restoreDir string, quiet bool) error {
	backupDir, err := resolvePath(backupDir, "Backup directory")
	if err != nil {
		return err
	}
	restoreDir, err = resolvePath(restoreDir, "Restore directory")
	if err != nil {
		return err
	}

	if fi, err := os.Stat(backupDir); err != nil {
		return fmt.Errorf("backup directory %s: %w", backupDir, err)
	} else if !fi.IsDir() {
		return fmt.Errorf("backup directory %s is not a directory", backupDir)
	}

	archives, err := storage.ScanBackupDir(backupDir)
	if err != nil {
		return err
	}
	logging.Infof("found %d dblock archives", len(archives.DBlocks))
	logging.Infof("using %s as newest dlist", filepath.Base(archives.Dlist))

	manifest, params, entries, err := snapshot.ReadSnapshot(archives.Dlist)
	if err != nil {
		return err
	}
	logging.Debug("snapshot manifest", map[string]interface{}{
		"version":    manifest.Version,
		"created":    manifest.Created,
		"blocksize":  manifest.Blocksize,
		"appversion": manifest.AppVersion,
	})

	ix, err := index.Open(filepath.Join(backupDir, indexFileName), archives.DBlocks)
	if err != nil {
		return err
	}
	defer ix.Close()

	logging.Infof("indexing %d dblock archives with %d workers", len(archives.DBlocks), cfg.Restore.Workers)
	var indexBar *util.ProgressBar
	if !quiet && util.StderrIsTerminal() && len(archives.DBlocks) > 0 {
		indexBar = util.NewProgressBar(int64(len(archives.DBlocks)), "indexing", os.Stderr)
		ix.OnArchiveIndexed(func() { indexBar.Add(1) })
	}
	if err := ix.Build(ctx, cfg.Restore.Workers); err != nil {
		return fmt.Errorf("index build: %w", err)
	}
	if indexBar != nil {
		indexBar.Finish()
	}

	plan := restore.BuildPlan(entries)
	logging.Infof("%d folders and %d files to be restored", len(plan.Folders), len(plan.Files))

	if err := os.MkdirAll(restoreDir, 0755); err != nil {
		return fmt.Errorf("create restore directory %s: %w", restoreDir, err)
	}

	restorer := restore.NewRestorer(ix, params, restoreDir)
	var bar *util.ProgressBar
	if !quiet && util.StderrIsTerminal() && len(plan.Files) > 0 {
		bar = util.NewProgressBar(int64(len(plan.Files)), "restoring", os.Stderr)
		restorer.OnFileDone(func() { bar.Add(1) })
	}

	if err := restorer.Run(ctx, plan, cfg.Restore.Workers); err != nil {
		return err
	}
	if bar != nil {
		bar.Finish()
	}

	stats := restorer.Stats()
	logging.Info("restore complete", map[string]interface{}{
		"folders":        stats.FoldersCreated,
		"files":          stats.FilesRestored,
		"failed_files":   stats.FilesFailed,
		"missing_blocks": stats.MissingBlocks,
		"bytes":          util.FormatBytes(stats.BytesWritten),
	})
	return nil
}

// resolvePath falls back to an interactive prompt when a path flag was not
// given and a terminal is attached.
func resolvePath(value, label string) (string, error) {
	if value != "" {
		return value, nil
	}
	if !util.IsInteractive() {
		return "", fmt.Errorf("%s not specified", label)
	}
	return util.PromptPath(label)
}
