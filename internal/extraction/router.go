package extraction

import (
	"log"
	"path/filepath"
	"strings"

	"github.com/dimslalom/transacto/internal/model"
)

// Router dispatches a file to the correct parser by extension and, for
// page-oriented documents, runs an ordered fallback chain of strategies
// until one yields transactions.
type Router struct {
	tabular   TabularParser
	statement StatementParser
	freetext  FreeTextParser
}

// NewRouter returns a router over the built-in parser set.
func NewRouter() *Router {
	return &Router{}
}

// Route parses path into a canonical transaction table.
//
//	csv, xlsx, xls  -> tabular read, column detection, table normalization
//	pdf, docx       -> each discovered table through the normalizer (first
//	                   one with transactions wins), then statement grammar
//	                   over the plain text; both empty -> parse error
//	txt             -> free-text segmentation
//
// Any other extension fails with an unsupported-type error. That failure is
// fatal for this file only; batch callers keep processing siblings.
func (r *Router) Route(path string) (model.Table, error) {
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".csv", ".xlsx", ".xls":
		raw, err := r.tabular.Parse(path)
		if err != nil {
			return nil, err
		}
		mapping := DetectColumns(raw.Columns)
		return NormalizeTable(raw, mapping), nil

	case ".pdf", ".docx":
		var doc *DocumentText
		var err error
		if ext == ".pdf" {
			doc, err = ExtractPDF(path)
		} else {
			doc, err = ExtractDOCX(path)
		}
		if err != nil {
			return nil, err
		}
		return r.routeDocument(doc, path)

	case ".txt":
		return r.freetext.Parse(path)

	default:
		return nil, unsupportedTypeError(path, ext)
	}
}

// routeDocument runs the document fallback chain: structured tables first,
// then the statement grammar over unstructured text. Real-world statements
// switch between table and freeform layouts unpredictably, so both
// strategies are always available.
func (r *Router) routeDocument(doc *DocumentText, path string) (model.Table, error) {
	for i, raw := range doc.Tables {
		mapping := DetectColumns(raw.Columns)
		if len(mapping) == 0 {
			continue
		}
		table := NormalizeTable(raw, mapping)
		if HasTransactions(table) {
			log.Printf("[router] %s: table %d of %d yielded %d transactions", path, i+1, len(doc.Tables), len(table))
			return table, nil
		}
	}

	table, err := r.statement.Parse(doc.Pages, path)
	if err != nil {
		return nil, parseError(path, "no strategy recovered transactions", err)
	}
	log.Printf("[router] %s: statement text fallback yielded %d transactions", path, len(table))
	return table, nil
}
