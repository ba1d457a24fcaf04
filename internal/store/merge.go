package store

import (
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/dimslalom/transacto/internal/model"
)

// mergeKey is the deduplication identity of a ledger row. Amounts compare at
// two decimals so grouping and amount search share one equality.
type mergeKey struct {
	date   string
	amount string
}

// amountKey renders an amount at 2-decimal precision for identity and
// equality checks.
func amountKey(a float64) string {
	s := strconv.FormatFloat(math.Round(a*100)/100, 'f', 2, 64)
	if s == "-0.00" {
		return "0.00"
	}
	return s
}

// mergeTables reconciles staged rows into the persisted ledger: rows are
// grouped by (date, amount), multi-valued fields coalesce as the set union
// of distinct non-empty values, and a grouped row survives only while every
// one of its contributing source files still exists. Rows with no recorded
// provenance (manually added entries) are never pruned.
//
// Output order follows first appearance in staged-then-persisted order, and
// unions are sorted before joining, so the result is deterministic and
// independent of contribution order.
func mergeTables(staged, persisted model.Table, sourceExists func(string) bool) model.Table {
	type group struct {
		first        model.Transaction
		descriptions map[string]struct{}
		payees       map[string]struct{}
		sources      map[string]struct{}
	}

	var order []mergeKey
	groups := map[mergeKey]*group{}

	for _, tx := range append(append(model.Table{}, staged...), persisted...) {
		key := mergeKey{date: tx.Date, amount: amountKey(tx.Amount)}
		g, ok := groups[key]
		if !ok {
			g = &group{
				first:        tx,
				descriptions: map[string]struct{}{},
				payees:       map[string]struct{}{},
				sources:      map[string]struct{}{},
			}
			groups[key] = g
			order = append(order, key)
		}
		addParts(g.descriptions, tx.Description)
		addParts(g.payees, tx.Payee)
		addParts(g.sources, tx.SourceFile)
	}

	var out model.Table
	for _, key := range order {
		g := groups[key]
		if !provenanceIntact(g.sources, sourceExists) {
			continue
		}
		out = append(out, model.Transaction{
			Date: g.first.Date,
			// The stored amount is the group identity itself, not whichever
			// contribution happened to arrive first, so merge output cannot
			// depend on contribution order below the grouping resolution.
			Amount:      math.Round(g.first.Amount*100) / 100,
			Description: joinSet(g.descriptions),
			Payee:       joinSet(g.payees),
			SourceFile:  joinSet(g.sources),
		})
	}
	return out
}

// provenanceIntact applies the "all must exist" semantic: a merged record is
// traceable only while its entire provenance chain is intact, so deleting
// any one contributing source file expunges the row on the next merge.
func provenanceIntact(sources map[string]struct{}, exists func(string) bool) bool {
	for src := range sources {
		if !exists(src) {
			return false
		}
	}
	return true
}

// addParts splits an already-coalesced field back into its distinct values
// before re-unioning, so repeated merges stay idempotent.
func addParts(set map[string]struct{}, joined string) {
	for _, part := range strings.Split(joined, model.SourceSeparator) {
		if p := strings.TrimSpace(part); p != "" {
			set[p] = struct{}{}
		}
	}
}

func joinSet(set map[string]struct{}) string {
	parts := make([]string, 0, len(set))
	for p := range set {
		parts = append(parts, p)
	}
	sort.Strings(parts)
	return strings.Join(parts, model.SourceSeparator)
}
