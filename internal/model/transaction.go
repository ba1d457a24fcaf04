// Package model holds the canonical transaction record and the raw tabular
// shapes that format parsers produce before normalization.
package model

// Canonical field names, in the fixed output order of a normalized table.
const (
	FieldDate        = "date"
	FieldAmount      = "amount"
	FieldDescription = "description"
	FieldPayee       = "payee"
	FieldSourceFile  = "source_file"
)

// SourceSeparator joins multi-valued description/payee/source_file fields
// after merge coalescing.
const SourceSeparator = "; "

// Transaction is the canonical record every document converges on.
// The four non-source fields are always present: extraction failures leave a
// field empty (or a zero amount), they never omit it.
type Transaction struct {
	Date        string  `json:"date"`
	Amount      float64 `json:"amount"`
	Description string  `json:"description"`
	Payee       string  `json:"payee"`
	SourceFile  string  `json:"source_file,omitempty"`
}

// Table is an ordered sequence of canonical transactions.
type Table []Transaction

// RawRow maps a source column name to the cell value as found in the document.
type RawRow map[string]string

// RawTable is tabular input before normalization. Rows usually share the
// column set but upstream sources do not guarantee it; consumers must
// tolerate missing cells.
type RawTable struct {
	Columns []string
	Rows    []RawRow
}

// Role is a semantic column role recognized by the column detector.
type Role string

const (
	RoleDate         Role = "date"
	RoleDebitAmount  Role = "debit_amount"
	RoleCreditAmount Role = "credit_amount"
	// RoleSource is the category/type column feeding the description field.
	RoleSource Role = "source"
	RolePayee  Role = "payee"
)

// ColumnMapping maps canonical roles to originating raw column names.
// Partial: any role may be absent. Produced fresh per input table,
// never persisted.
type ColumnMapping map[Role]string
