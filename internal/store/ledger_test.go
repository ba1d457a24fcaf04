package store

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dimslalom/transacto/internal/model"
)

// newTestLedger returns a ledger over a fresh lake root with fast retry
// settings so failure paths do not slow the suite down.
func newTestLedger(t *testing.T) (*Ledger, string) {
	t.Helper()
	root := t.TempDir()
	l := Open(root)
	l.retry = RetryConfig{MaxRetries: 1, InitialDelay: 0, MaxDelay: 0, BackoffFactor: 1, JitterFraction: 0}
	return l, root
}

// touchSource creates a raw source file under the lake root and returns its
// lake-relative provenance path.
func touchSource(t *testing.T, root, name string) string {
	t.Helper()
	rel := "raw/transactions/" + name
	full := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
	require.NoError(t, os.WriteFile(full, []byte("x"), 0o644))
	return rel
}

func TestLedgerMergeAndSnapshot(t *testing.T) {
	l, root := newTestLedger(t)
	src := touchSource(t, root, "bank.csv")

	staged := model.Table{
		{Date: "2024-11-08", Amount: -16.0, Description: "Groceries", SourceFile: src},
	}
	require.NoError(t, l.Merge(staged))

	snap, err := l.Snapshot()
	require.NoError(t, err)
	require.Len(t, snap, 1)
	assert.Equal(t, "Groceries", snap[0].Description)
	assert.Equal(t, src, snap[0].SourceFile)

	// The ledger file is persisted under the lake root.
	_, err = os.Stat(filepath.Join(root, LedgerFileName))
	assert.NoError(t, err)
}

func TestLedgerMergePurgesDeletedSource(t *testing.T) {
	l, root := newTestLedger(t)
	src := touchSource(t, root, "bank.csv")

	require.NoError(t, l.Merge(model.Table{
		{Date: "2024-11-08", Amount: -16.0, Description: "Groceries", SourceFile: src},
	}))

	require.NoError(t, os.Remove(filepath.Join(root, filepath.FromSlash(src))))

	// Next merge cycle notices the broken provenance and expunges the row.
	require.NoError(t, l.Merge(nil))
	snap, err := l.Snapshot()
	require.NoError(t, err)
	assert.Empty(t, snap)
}

func TestLedgerMissingFileIsEmpty(t *testing.T) {
	l, _ := newTestLedger(t)
	snap, err := l.Snapshot()
	require.NoError(t, err)
	assert.Empty(t, snap)
}

func TestLedgerCorruptFileSurfacesMergeIOError(t *testing.T) {
	l, root := newTestLedger(t)
	require.NoError(t, os.WriteFile(filepath.Join(root, LedgerFileName), []byte("{not json"), 0o644))

	_, err := l.Snapshot()
	require.Error(t, err)
	var ioErr *MergeIOError
	require.ErrorAs(t, err, &ioErr)
	assert.Equal(t, "decode", ioErr.Op)
}

func TestLedgerSearch(t *testing.T) {
	l, _ := newTestLedger(t)
	require.NoError(t, l.AddEntry(model.Transaction{Date: "2024-11-08", Amount: -16.0, Description: "Groceries run", Payee: "Corner Store"}))
	require.NoError(t, l.AddEntry(model.Transaction{Date: "2024-11-09", Amount: 50.004, Description: "Refund"}))
	require.NoError(t, l.AddEntry(model.Transaction{Date: "2024-11-10", Amount: 50.0, Description: "Deposit"}))

	// Default field set: description, payee, source_file; case-insensitive.
	hits, err := l.Search("groceries", nil)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "Corner Store", hits[0].Payee)

	hits, err = l.Search("store", nil)
	require.NoError(t, err)
	assert.Len(t, hits, 1)

	// Date matches only when explicitly requested.
	hits, err = l.Search("2024-11-09", nil)
	require.NoError(t, err)
	assert.Empty(t, hits)
	hits, err = l.Search("2024-11-09", []string{model.FieldDate})
	require.NoError(t, err)
	assert.Len(t, hits, 1)

	// Amount search compares the rounded query against the stored value
	// exactly: 50.00 matches the stored 50.0 but not the stored 50.004.
	hits, err = l.Search("50.00", []string{model.FieldAmount})
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "Deposit", hits[0].Description)

	// Union across fields, not intersection.
	hits, err = l.Search("50.00", []string{model.FieldAmount, model.FieldDescription})
	require.NoError(t, err)
	assert.Len(t, hits, 1)

	hits, err = l.Search("not an amount", []string{model.FieldAmount})
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestLedgerAddEntryNormalizesDate(t *testing.T) {
	l, _ := newTestLedger(t)
	require.NoError(t, l.AddEntry(model.Transaction{Date: "08/11/2024", Amount: -16.0, Description: "  padded  "}))

	tx, found, err := l.GetEntry("2024-11-08")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "padded", tx.Description)
}

func TestLedgerAddEntryRejectsBadDate(t *testing.T) {
	l, _ := newTestLedger(t)

	err := l.AddEntry(model.Transaction{Date: "", Amount: 1})
	var vErr *ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, model.FieldDate, vErr.Field)

	err = l.AddEntry(model.Transaction{Date: "not a date", Amount: 1})
	require.ErrorAs(t, err, &vErr)
}

func TestLedgerDateKeyedCRUD(t *testing.T) {
	l, _ := newTestLedger(t)
	require.NoError(t, l.AddEntry(model.Transaction{Date: "2024-11-08", Amount: -16.0, Description: "first"}))
	require.NoError(t, l.AddEntry(model.Transaction{Date: "2024-11-08", Amount: -20.0, Description: "second"}))
	require.NoError(t, l.AddEntry(model.Transaction{Date: "2024-11-09", Amount: 5.0, Description: "other day"}))

	// Get returns the first same-day match.
	tx, found, err := l.GetEntry("2024-11-08")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "first", tx.Description)

	_, found, err = l.GetEntry("2024-01-01")
	require.NoError(t, err)
	assert.False(t, found)

	// Update rewrites every same-day entry.
	updated, err := l.UpdateEntry("2024-11-08", model.Transaction{Date: "2024-11-08", Amount: -99.0, Description: "edited"})
	require.NoError(t, err)
	assert.True(t, updated)

	snap, err := l.Snapshot()
	require.NoError(t, err)
	require.Len(t, snap, 3)
	assert.Equal(t, "edited", snap[0].Description)
	assert.Equal(t, "edited", snap[1].Description)
	assert.Equal(t, "other day", snap[2].Description)

	updated, err = l.UpdateEntry("2024-01-01", model.Transaction{Date: "2024-01-01", Amount: 1})
	require.NoError(t, err)
	assert.False(t, updated)

	// Delete removes every same-day entry.
	removed, err := l.DeleteEntry("2024-11-08")
	require.NoError(t, err)
	assert.True(t, removed)

	snap, err = l.Snapshot()
	require.NoError(t, err)
	require.Len(t, snap, 1)
}

func TestLedgerUpdatePreservesProvenance(t *testing.T) {
	l, root := newTestLedger(t)
	src := touchSource(t, root, "bank.csv")
	require.NoError(t, l.Merge(model.Table{
		{Date: "2024-11-08", Amount: -16.0, Description: "Groceries", SourceFile: src},
	}))

	_, err := l.UpdateEntry("2024-11-08", model.Transaction{Date: "2024-11-08", Amount: -16.0, Description: "edited"})
	require.NoError(t, err)

	tx, found, err := l.GetEntry("2024-11-08")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, src, tx.SourceFile, "editing must not detach provenance")
}

func TestLedgerUpsertEntry(t *testing.T) {
	l, _ := newTestLedger(t)

	created, err := l.UpsertEntry(model.Transaction{Date: "2024-11-08", Amount: -16.0, Description: "new"})
	require.NoError(t, err)
	assert.True(t, created)

	created, err = l.UpsertEntry(model.Transaction{Date: "2024-11-08", Amount: -20.0, Description: "replaced"})
	require.NoError(t, err)
	assert.False(t, created)

	snap, err := l.Snapshot()
	require.NoError(t, err)
	require.Len(t, snap, 1)
	assert.Equal(t, "replaced", snap[0].Description)
}

func TestLedgerDeleteEntries(t *testing.T) {
	l, _ := newTestLedger(t)
	require.NoError(t, l.AddEntry(model.Transaction{Date: "2024-11-08", Amount: 1}))
	require.NoError(t, l.AddEntry(model.Transaction{Date: "2024-11-09", Amount: 2}))
	require.NoError(t, l.AddEntry(model.Transaction{Date: "2024-11-10", Amount: 3}))

	n, err := l.DeleteEntries([]string{"2024-11-08", "2024-11-10", "2020-01-01"})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	snap, err := l.Snapshot()
	require.NoError(t, err)
	require.Len(t, snap, 1)
	assert.Equal(t, "2024-11-09", snap[0].Date)
}
