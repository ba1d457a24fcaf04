// Package extraction turns heterogeneous source documents into canonical
// transaction tables: per-format parsers, column role detection, and
// field/table normalization.
package extraction

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/dimslalom/transacto/internal/model"
)

// dateLayouts are tried in order; the first successful parse wins.
// Day-first layouts come before month-first so ambiguous input like
// "08/11/2024" resolves as 8 November. Two-digit years land in the 2000s.
var dateLayouts = []string{
	"2006-01-02",
	"2006/01/02",
	"02/01/2006",
	"2/1/2006",
	"02/01/06",
	"2/1/06",
	"02-01-2006",
	"2-1-2006",
	"02-01-06",
	"02.01.2006",
	"01/02/2006", // month-first, only reached when day-first fails
	"01-02-2006",
	"02 Jan 2006",
	"2 Jan 2006",
	"Jan 02 2006",
	"Jan 2 2006",
	"Jan 02, 2006",
	"Jan 2, 2006",
}

// NormalizeDate converts a raw date string to ISO form "YYYY-MM-DD".
// When no layout matches it returns a parse error rather than guessing;
// the caller decides whether a failed date disqualifies the row.
func NormalizeDate(raw string) (string, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return "", parseError(s, "empty date", nil)
	}
	for _, layout := range dateLayouts {
		t, err := time.Parse(layout, s)
		if err != nil {
			continue
		}
		// Go resolves "06" layouts to 1969-2068; sources using two-digit
		// years mean the 2000s, so shift the 19xx half forward.
		if !strings.Contains(layout, "2006") && t.Year() < 2000 {
			t = t.AddDate(100, 0, 0)
		}
		return t.Format("2006-01-02"), nil
	}
	return "", parseError(s, "unrecognized date layout", nil)
}

var nonAmountChars = regexp.MustCompile(`[^0-9.\-]`)

// NormalizeAmount converts an amount string to a signed float, stripping
// currency symbols and grouping characters. Malformed input degrades to 0
// rather than aborting ingestion of the row; this lossy recovery is
// deliberate and distinct from the fatal error kinds.
func NormalizeAmount(raw string) float64 {
	cleaned := nonAmountChars.ReplaceAllString(raw, "")
	if cleaned == "" {
		return 0
	}
	amount, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return 0
	}
	return amount
}

// DetectColumns classifies raw column names into semantic roles using
// case-insensitive substring rules. The first matching column per role wins;
// input order is the tie-break. Unmatched columns are ignored.
func DetectColumns(columns []string) model.ColumnMapping {
	mapping := model.ColumnMapping{}
	assign := func(role model.Role, col string) {
		if _, taken := mapping[role]; !taken {
			mapping[role] = col
		}
	}
	for _, col := range columns {
		lower := strings.ToLower(col)

		if strings.Contains(lower, "date") {
			assign(model.RoleDate, col)
		}
		if strings.Contains(lower, "debit") && strings.Contains(lower, "amount") {
			assign(model.RoleDebitAmount, col)
		} else if strings.Contains(lower, "credit") && strings.Contains(lower, "amount") {
			assign(model.RoleCreditAmount, col)
		}
		if strings.Contains(lower, "category") || strings.Contains(lower, "type") {
			assign(model.RoleSource, col)
		}
		if strings.Contains(lower, "payee") {
			assign(model.RolePayee, col)
		}
	}
	return mapping
}

// NormalizeTable applies a detected column mapping to a raw table and
// produces the canonical transaction table. The output always carries the
// four canonical fields regardless of which roles were detected.
//
// Sign convention: a non-zero debit always takes precedence over a
// simultaneously present credit, and debits are negative. A row whose date
// fails to parse keeps its place with an empty date field; rows are never
// dropped here.
func NormalizeTable(raw model.RawTable, mapping model.ColumnMapping) model.Table {
	out := make(model.Table, 0, len(raw.Rows))
	for _, row := range raw.Rows {
		var tx model.Transaction

		if col, ok := mapping[model.RoleDate]; ok {
			if iso, err := NormalizeDate(row[col]); err == nil {
				tx.Date = iso
			}
		}

		debit, hasDebit := 0.0, false
		if col, ok := mapping[model.RoleDebitAmount]; ok {
			debit = NormalizeAmount(row[col])
			hasDebit = true
		}
		credit, hasCredit := 0.0, false
		if col, ok := mapping[model.RoleCreditAmount]; ok {
			credit = NormalizeAmount(row[col])
			hasCredit = true
		}
		switch {
		case hasDebit && debit != 0:
			tx.Amount = -debit
		case hasCredit:
			tx.Amount = credit
		}

		if col, ok := mapping[model.RoleSource]; ok {
			tx.Description = strings.TrimSpace(row[col])
		}
		if col, ok := mapping[model.RolePayee]; ok {
			tx.Payee = strings.TrimSpace(row[col])
		}

		out = append(out, tx)
	}
	return out
}

// HasTransactions reports whether a normalized table recovered anything
// usable: at least one row with a parsed date and a non-zero amount. The
// router uses this to decide whether a fallback stage should run.
func HasTransactions(table model.Table) bool {
	for _, tx := range table {
		if tx.Date != "" && tx.Amount != 0 {
			return true
		}
	}
	return false
}
