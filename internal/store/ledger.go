// Package store owns the master ledger: a single persisted, merged,
// deduplicated transaction table. Every read and write serializes through
// one mutex; correctness over throughput, since the ledger is small and
// I/O-bound.
package store

import (
	"encoding/json"
	"errors"
	"io/fs"
	"log"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/dimslalom/transacto/internal/extraction"
	"github.com/dimslalom/transacto/internal/model"
)

// LedgerFileName is the master ledger file under the lake root.
const LedgerFileName = "master_ledger.json"

// defaultSearchFields is the field set searched when the caller passes none.
var defaultSearchFields = []string{model.FieldDescription, model.FieldPayee, model.FieldSourceFile}

// Ledger is the shared ledger resource handle. All access to the persisted
// ledger goes through its lock; no caller touches the file directly.
//
// TODO: entries are keyed by their date value, which is not unique for
// same-day transactions. A real unique identifier would fix Get/Update/
// Delete selecting by date, but it would change observable CRUD semantics,
// so the date key is kept.
type Ledger struct {
	mu    sync.Mutex
	path  string
	root  string // lake root, resolves provenance paths for existence checks
	retry RetryConfig
}

// Open returns a ledger handle rooted at the lake directory. The ledger file
// itself is created on first write.
func Open(root string) *Ledger {
	return &Ledger{
		path:  filepath.Join(root, LedgerFileName),
		root:  root,
		retry: DefaultReadRetry,
	}
}

// Merge reconciles staged rows into the persisted ledger: group by
// (date, amount), coalesce fields, prune rows whose provenance is broken,
// overwrite the ledger wholesale. A failed cycle leaves the previous ledger
// intact.
func (l *Ledger) Merge(staged model.Table) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	persisted, err := l.load()
	if err != nil {
		return err
	}
	merged := mergeTables(staged, persisted, l.sourceExists)
	if err := l.save(merged); err != nil {
		return err
	}
	log.Printf("[ledger] merged %d staged rows; ledger now holds %d entries", len(staged), len(merged))
	return nil
}

// Snapshot returns the full current ledger.
func (l *Ledger) Snapshot() (model.Table, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.load()
}

// Search returns rows where any requested field matches the query:
// case-insensitive substring for text fields, 2-decimal-rounded equality
// when "amount" is requested. The result is the union of per-field matches,
// never an intersection. Empty fields means the default text set.
func (l *Ledger) Search(query string, fields []string) (model.Table, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	entries, err := l.load()
	if err != nil {
		return nil, err
	}

	if len(fields) == 0 {
		fields = defaultSearchFields
	}
	needle := strings.ToLower(query)

	// When "amount" is requested the query is parsed as a number, rounded to
	// two decimals, and compared for equality. An unparsable query simply
	// contributes no amount matches.
	wantAmount := false
	queryAmount := 0.0
	for _, f := range fields {
		if f == model.FieldAmount {
			if v, err := strconv.ParseFloat(strings.TrimSpace(query), 64); err == nil {
				wantAmount = true
				queryAmount = math.Round(v*100) / 100
			}
		}
	}

	var out model.Table
	for _, tx := range entries {
		if matchesFields(tx, needle, fields) || (wantAmount && tx.Amount == queryAmount) {
			out = append(out, tx)
		}
	}
	return out, nil
}

func matchesFields(tx model.Transaction, needle string, fields []string) bool {
	for _, f := range fields {
		var value string
		switch f {
		case model.FieldDate:
			value = tx.Date
		case model.FieldDescription:
			value = tx.Description
		case model.FieldPayee:
			value = tx.Payee
		case model.FieldSourceFile:
			value = tx.SourceFile
		default:
			continue
		}
		if needle != "" && strings.Contains(strings.ToLower(value), needle) {
			return true
		}
	}
	return false
}

// GetEntry returns the first entry whose date equals key. Multiple rows can
// legitimately share a date; see the identity note on Ledger.
func (l *Ledger) GetEntry(key string) (model.Transaction, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	entries, err := l.load()
	if err != nil {
		return model.Transaction{}, false, err
	}
	for _, tx := range entries {
		if tx.Date == key {
			return tx, true, nil
		}
	}
	return model.Transaction{}, false, nil
}

// AddEntry validates and appends a new entry.
func (l *Ledger) AddEntry(tx model.Transaction) error {
	normalized, err := validateEntry(tx)
	if err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	entries, err := l.load()
	if err != nil {
		return err
	}
	return l.save(append(entries, normalized))
}

// UpdateEntry overwrites the canonical fields of every entry whose date
// equals key. Provenance is preserved: editing an entry does not detach it
// from its source files. Returns whether anything matched.
func (l *Ledger) UpdateEntry(key string, tx model.Transaction) (bool, error) {
	normalized, err := validateEntry(tx)
	if err != nil {
		return false, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	entries, err := l.load()
	if err != nil {
		return false, err
	}
	updated := false
	for i := range entries {
		if entries[i].Date == key {
			source := entries[i].SourceFile
			entries[i] = normalized
			entries[i].SourceFile = source
			updated = true
		}
	}
	if !updated {
		return false, nil
	}
	return true, l.save(entries)
}

// UpsertEntry updates all entries matching the payload's date, or appends
// the payload when none match. Returns true when a new entry was created.
func (l *Ledger) UpsertEntry(tx model.Transaction) (bool, error) {
	normalized, err := validateEntry(tx)
	if err != nil {
		return false, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	entries, err := l.load()
	if err != nil {
		return false, err
	}
	updated := false
	for i := range entries {
		if entries[i].Date == normalized.Date {
			source := entries[i].SourceFile
			entries[i] = normalized
			entries[i].SourceFile = source
			updated = true
		}
	}
	if !updated {
		entries = append(entries, normalized)
	}
	return !updated, l.save(entries)
}

// DeleteEntry removes every entry whose date equals key. Returns whether
// anything was removed.
func (l *Ledger) DeleteEntry(key string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	n, err := l.deleteLocked([]string{key})
	return n > 0, err
}

// DeleteEntries removes every entry matching any of the keys and returns the
// number of rows removed.
func (l *Ledger) DeleteEntries(keys []string) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.deleteLocked(keys)
}

func (l *Ledger) deleteLocked(keys []string) (int, error) {
	entries, err := l.load()
	if err != nil {
		return 0, err
	}

	keySet := map[string]struct{}{}
	for _, k := range keys {
		keySet[k] = struct{}{}
	}

	kept := entries[:0]
	removed := 0
	for _, tx := range entries {
		if _, hit := keySet[tx.Date]; hit {
			removed++
			continue
		}
		kept = append(kept, tx)
	}
	if removed == 0 {
		return 0, nil
	}
	return removed, l.save(kept)
}

// validateEntry rejects malformed CRUD payloads and normalizes the date to
// ISO form. The four canonical fields are always present on the result.
func validateEntry(tx model.Transaction) (model.Transaction, error) {
	if strings.TrimSpace(tx.Date) == "" {
		return model.Transaction{}, &ValidationError{Field: model.FieldDate, Reason: "must not be empty"}
	}
	iso, err := extraction.NormalizeDate(tx.Date)
	if err != nil {
		return model.Transaction{}, &ValidationError{Field: model.FieldDate, Reason: "unrecognized date format"}
	}
	tx.Date = iso
	tx.Description = strings.TrimSpace(tx.Description)
	tx.Payee = strings.TrimSpace(tx.Payee)
	return tx, nil
}

// load reads the persisted ledger under bounded retry. A missing file is an
// empty ledger, not an error; anything else (including a torn read racing a
// writer) retries before surfacing as a merge I/O failure.
func (l *Ledger) load() (model.Table, error) {
	return withRetry(l.retry, func() (model.Table, error) {
		data, err := os.ReadFile(l.path)
		if errors.Is(err, fs.ErrNotExist) {
			return model.Table{}, nil
		}
		if err != nil {
			return nil, &MergeIOError{Op: "read", Path: l.path, Cause: err}
		}

		var entries model.Table
		if err := json.Unmarshal(data, &entries); err != nil {
			return nil, &MergeIOError{Op: "decode", Path: l.path, Cause: err}
		}
		return entries, nil
	})
}

// save overwrites the ledger wholesale as a pretty-printed JSON array via a
// uniquely named temp file and rename, so readers never observe a partial
// write and a failed save leaves the previous ledger in place.
func (l *Ledger) save(entries model.Table) error {
	if entries == nil {
		entries = model.Table{}
	}
	data, err := json.MarshalIndent(entries, "", "    ")
	if err != nil {
		return &MergeIOError{Op: "encode", Path: l.path, Cause: err}
	}

	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return &MergeIOError{Op: "mkdir", Path: l.path, Cause: err}
	}
	tmp := l.path + ".tmp-" + uuid.NewString()
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return &MergeIOError{Op: "write", Path: tmp, Cause: err}
	}
	if err := os.Rename(tmp, l.path); err != nil {
		os.Remove(tmp)
		return &MergeIOError{Op: "rename", Path: l.path, Cause: err}
	}
	return nil
}

// sourceExists resolves a provenance identifier (a path relative to the lake
// root) against the filesystem.
func (l *Ledger) sourceExists(rel string) bool {
	_, err := os.Stat(filepath.Join(l.root, filepath.FromSlash(rel)))
	return err == nil
}
