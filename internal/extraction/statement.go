package extraction

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/dimslalom/transacto/internal/model"
)

// transactionMarker gates pages: a page without it carries no transaction
// table and is discarded before matching.
const transactionMarker = "Transaction Details"

// transactionRe is the statement line grammar:
//
//	<date> [<time>] <payee> <type keyword> [ID# token] <signed amount> <balance>
//
// The type keyword set is closed. Amounts use dot-grouped thousands
// ("-16.000") and parse as plain decimals; the grouping dot is the source
// format's decimal shift. Lines that do not match are skipped
// silently; only high-confidence matches are kept.
var transactionRe = regexp.MustCompile(
	`(?i)(\d{2}\s+\w+\s+\d{4})\s+` + // date
		`(\d{2}:\d{2})?\s*` + // optional time
		`([A-Za-z\s]+?)\s+` + // payee
		`(?:(?:Outgoing|Incoming)\s+Transfer|` + // transaction types
		`Payment\s+with\s+Jago\s+Pay|` +
		`POS\s+Transaction|` +
		`Movement\s+between\s+Pockets|` +
		`Cash\s+Withdrawal)\s*` +
		`(?:ID#\s*\S+)?\s*` + // optional reference
		`([+-]?\d+(?:\.\d{3})?)\s+` + // amount
		`(\d+(?:\.\d{3})?)`, // balance
)

var (
	statementFooterRe = regexp.MustCompile(`Pockets Transactions History Page \d+ of \d+.*?Balance`)
	statementHeaderRe = regexp.MustCompile(`Date & Time Source/Destination Transaction Details Notes Amount Balance`)
	whitespaceRe      = regexp.MustCompile(`\s+`)
)

// StatementParser extracts transaction lines from bank-statement text using
// a fixed grammar. Output is already canonical and needs no table
// normalization pass: date is ISO, the payee doubles as the description
// source, and the memo is synthesized from the time of day.
type StatementParser struct{}

// Parse scans per-page text for transaction lines. Pages without the
// transaction table marker are discarded. Zero matches across the whole
// document is a parse error so the router can fall back to another strategy.
func (p *StatementParser) Parse(pages []string, source string) (model.Table, error) {
	var out model.Table
	for _, page := range pages {
		if !strings.Contains(page, transactionMarker) {
			continue
		}
		text := preprocessStatementText(page)
		for _, m := range transactionRe.FindAllStringSubmatch(text, -1) {
			tx, ok := statementMatchToTransaction(m)
			if !ok {
				continue
			}
			out = append(out, tx)
		}
	}
	if len(out) == 0 {
		return nil, parseError(source, "statement grammar matched no lines", nil)
	}
	return out, nil
}

// preprocessStatementText strips the known header/footer boilerplate and
// collapses all whitespace so the grammar sees one continuous line stream.
func preprocessStatementText(text string) string {
	cleaned := statementFooterRe.ReplaceAllString(text, "")
	cleaned = statementHeaderRe.ReplaceAllString(cleaned, "")
	cleaned = strings.NewReplacer("\n", " ", "\r", " ", "\t", " ").Replace(cleaned)
	return strings.TrimSpace(whitespaceRe.ReplaceAllString(cleaned, " "))
}

func statementMatchToTransaction(m []string) (model.Transaction, bool) {
	date, err := time.Parse("02 Jan 2006", strings.TrimSpace(m[1]))
	if err != nil {
		return model.Transaction{}, false
	}
	amount, err := strconv.ParseFloat(m[4], 64)
	if err != nil {
		return model.Transaction{}, false
	}

	memo := "Transaction"
	if t := strings.TrimSpace(m[2]); t != "" {
		memo = fmt.Sprintf("Transaction at %s", t)
	}

	return model.Transaction{
		Date:        date.Format("2006-01-02"),
		Payee:       collapseSpaces(m[3]),
		Description: memo,
		Amount:      amount,
	}, true
}

func collapseSpaces(s string) string {
	return strings.TrimSpace(whitespaceRe.ReplaceAllString(s, " "))
}
