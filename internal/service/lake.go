// Package service exposes the data lake contract consumed by the excluded
// I/O layer: ingest documents, reconcile staged extractions into the master
// ledger, and read or edit ledger rows.
package service

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/dimslalom/transacto/internal/extraction"
	"github.com/dimslalom/transacto/internal/model"
	"github.com/dimslalom/transacto/internal/store"
)

// DefaultFolder groups extractions when the caller does not name one.
const DefaultFolder = "transactions"

// Zone directory names under the lake root.
const (
	rawZone       = "raw"
	processedZone = "processed"
	stagingZone   = "staging"
)

// Lake is the document data lake: source files land in the raw zone,
// per-document canonical extractions are staged in the processed zone, and
// the master ledger reconciles the staged tables.
type Lake struct {
	root   string
	router *extraction.Router
	ledger *store.Ledger
}

// New opens (creating if needed) a lake rooted at dir.
func New(dir string) (*Lake, error) {
	for _, zone := range []string{rawZone, processedZone, stagingZone} {
		if err := os.MkdirAll(filepath.Join(dir, zone), 0o755); err != nil {
			return nil, fmt.Errorf("create lake zone %s: %w", zone, err)
		}
	}
	return &Lake{
		root:   dir,
		router: extraction.NewRouter(),
		ledger: store.Open(dir),
	}, nil
}

// Ledger exposes the shared ledger handle (for the merge watcher and direct
// entry operations). All access through it is serialized by its lock.
func (l *Lake) Ledger() *store.Ledger {
	return l.ledger
}

// Ingest copies a document into the raw zone, extracts it, and stages the
// canonical table as one JSON array mirroring the source's folder. The
// staged rows carry the raw file's lake-relative path as provenance.
func (l *Lake) Ingest(src, folder string) (model.Table, error) {
	if folder == "" {
		folder = DefaultFolder
	}

	rawDir := filepath.Join(l.root, rawZone, folder)
	if err := os.MkdirAll(rawDir, 0o755); err != nil {
		return nil, fmt.Errorf("create raw folder: %w", err)
	}
	rawPath := filepath.Join(rawDir, filepath.Base(src))
	// An aliased path to a file already in the raw zone must not reach
	// copyFile, whose create would truncate the source it is about to read.
	if !samePath(src, rawPath) {
		if err := copyFile(src, rawPath); err != nil {
			return nil, fmt.Errorf("copy to raw zone: %w", err)
		}
	}

	return l.processRawFile(rawPath, folder)
}

// ProcessRaw extracts every file in the raw zone folder. One file's failure
// never aborts its siblings: failures are logged per file and the first one
// is reported after the batch completes.
func (l *Lake) ProcessRaw(folder string) error {
	if folder == "" {
		folder = DefaultFolder
	}
	rawDir := filepath.Join(l.root, rawZone, folder)

	var firstErr error
	err := filepath.WalkDir(rawDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		if _, perr := l.processRawFile(path, folder); perr != nil {
			log.Printf("[lake] processing %s failed: %v", path, perr)
			if firstErr == nil {
				firstErr = perr
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("walk raw zone: %w", err)
	}
	return firstErr
}

func (l *Lake) processRawFile(rawPath, folder string) (model.Table, error) {
	table, err := l.router.Route(rawPath)
	if err != nil {
		return nil, err
	}

	provenance := l.relPath(rawPath)
	for i := range table {
		table[i].SourceFile = provenance
	}

	stem := strings.TrimSuffix(filepath.Base(rawPath), filepath.Ext(rawPath))
	outDir := filepath.Join(l.root, processedZone, folder)
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return nil, fmt.Errorf("create processed folder: %w", err)
	}
	if err := writeTable(filepath.Join(outDir, stem+".json"), table); err != nil {
		return nil, err
	}

	log.Printf("[lake] staged %d rows from %s", len(table), provenance)
	return table, nil
}

// Reconcile merges every staged table in the folder into the master ledger.
func (l *Lake) Reconcile(folder string) error {
	if folder == "" {
		folder = DefaultFolder
	}
	staged, err := l.readProcessed(folder, "")
	if err != nil {
		return err
	}
	return l.ledger.Merge(staged)
}

// Fetch returns canonical rows from the processed zone: the whole folder
// concatenated, or a single staged document by name (with or without its
// .json suffix).
func (l *Lake) Fetch(folder, name string) (model.Table, error) {
	if folder == "" {
		folder = DefaultFolder
	}
	return l.readProcessed(folder, name)
}

func (l *Lake) readProcessed(folder, name string) (model.Table, error) {
	dir := filepath.Join(l.root, processedZone, folder)

	if name != "" {
		if !strings.HasSuffix(name, ".json") {
			name += ".json"
		}
		return readTable(filepath.Join(dir, name))
	}

	entries, err := os.ReadDir(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return model.Table{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read processed zone: %w", err)
	}

	var out model.Table
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		table, err := readTable(filepath.Join(dir, e.Name()))
		if err != nil {
			// Unreadable staged files are skipped, mirroring per-file
			// isolation on the ingest side.
			log.Printf("[lake] skipping unreadable staged file %s: %v", e.Name(), err)
			continue
		}
		out = append(out, table...)
	}
	return out, nil
}

// Snapshot returns the full current merged ledger.
func (l *Lake) Snapshot() (model.Table, error) {
	return l.ledger.Snapshot()
}

// Find returns ledger rows matching the query over the given fields (the
// default text set when empty).
func (l *Lake) Find(query string, fields []string) (model.Table, error) {
	return l.ledger.Search(query, fields)
}

// Entry returns the first ledger entry keyed by date.
func (l *Lake) Entry(key string) (model.Transaction, bool, error) {
	return l.ledger.GetEntry(key)
}

// UpsertEntry creates or updates a ledger entry; true means created.
func (l *Lake) UpsertEntry(tx model.Transaction) (bool, error) {
	return l.ledger.UpsertEntry(tx)
}

// RemoveEntry deletes all entries keyed by date; true means something was
// removed.
func (l *Lake) RemoveEntry(key string) (bool, error) {
	return l.ledger.DeleteEntry(key)
}

// RemoveEntries deletes all entries matching any key and returns the count.
func (l *Lake) RemoveEntries(keys []string) (int, error) {
	return l.ledger.DeleteEntries(keys)
}

// relPath renders a lake-internal path as the slash-separated provenance
// identifier stored on ledger rows.
func (l *Lake) relPath(path string) string {
	rel, err := filepath.Rel(l.root, path)
	if err != nil {
		return filepath.ToSlash(path)
	}
	return filepath.ToSlash(rel)
}

// samePath reports whether two paths resolve to one existing file, seeing
// through relative/absolute aliasing and symlinked directories.
func samePath(a, b string) bool {
	ai, err := os.Stat(a)
	if err != nil {
		return false
	}
	bi, err := os.Stat(b)
	if err != nil {
		return false
	}
	return os.SameFile(ai, bi)
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

func writeTable(path string, table model.Table) error {
	if table == nil {
		table = model.Table{}
	}
	data, err := json.MarshalIndent(table, "", "    ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func readTable(path string) (model.Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var table model.Table
	if err := json.Unmarshal(data, &table); err != nil {
		return nil, fmt.Errorf("decode %s: %w", filepath.Base(path), err)
	}
	return table, nil
}
