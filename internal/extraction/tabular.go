package extraction

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/shakinm/xlsReader/xls"
	"github.com/xuri/excelize/v2"
	"golang.org/x/net/html/charset"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/transform"

	"github.com/dimslalom/transacto/internal/model"
)

// TabularParser reads delimited and spreadsheet documents into raw tables.
// Delimited text goes through an encoding fallback chain; spreadsheet formats
// are binary and carry no encoding ambiguity.
type TabularParser struct{}

// Parse reads path into a raw table. The first row is the header.
func (p *TabularParser) Parse(path string) (model.RawTable, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		return p.parseCSV(path)
	case ".xlsx":
		return p.parseXLSX(path)
	case ".xls":
		return p.parseXLS(path)
	default:
		return model.RawTable{}, unsupportedTypeError(path, filepath.Ext(path))
	}
}

// decodeCandidate is one entry of the CSV encoding fallback chain.
type decodeCandidate struct {
	name string
	enc  encoding.Encoding // nil means raw UTF-8 (validity-checked)
}

func (p *TabularParser) parseCSV(path string) (model.RawTable, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return model.RawTable{}, parseError(path, "read file", err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return model.RawTable{}, parseError(path, "empty file", nil)
	}

	// Sniffed encoding first, then the fixed fallback chain. Latin-1 and
	// ISO-8859-1 are the same table; both names are kept so failure messages
	// line up with the documented chain.
	sniffed, sniffedName, _ := charset.DetermineEncoding(data, "text/csv")
	candidates := []decodeCandidate{
		{sniffedName, sniffed},
		{"utf-8", nil},
		{"latin-1", charmap.ISO8859_1},
		{"iso-8859-1", charmap.ISO8859_1},
		{"windows-1252", charmap.Windows1252},
	}

	var lastErr error
	for _, cand := range candidates {
		table, err := readCSV(data, cand.enc)
		if err != nil {
			lastErr = fmt.Errorf("%s: %w", cand.name, err)
			continue
		}
		return table, nil
	}
	return model.RawTable{}, encodingError(path, lastErr)
}

func readCSV(data []byte, enc encoding.Encoding) (model.RawTable, error) {
	var r io.Reader = bytes.NewReader(data)
	if enc != nil {
		r = transform.NewReader(r, enc.NewDecoder())
	} else if !utf8.Valid(data) {
		return model.RawTable{}, fmt.Errorf("invalid UTF-8 byte sequence")
	}

	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	records, err := reader.ReadAll()
	if err != nil {
		return model.RawTable{}, err
	}
	if len(records) == 0 {
		return model.RawTable{}, fmt.Errorf("no rows")
	}
	return tableFromRows(records), nil
}

func (p *TabularParser) parseXLSX(path string) (model.RawTable, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return model.RawTable{}, parseError(path, "open workbook", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return model.RawTable{}, parseError(path, "workbook has no sheets", nil)
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return model.RawTable{}, parseError(path, "read sheet", err)
	}
	if len(rows) == 0 {
		return model.RawTable{}, parseError(path, "sheet is empty", nil)
	}
	return tableFromRows(rows), nil
}

func (p *TabularParser) parseXLS(path string) (model.RawTable, error) {
	workbook, err := xls.OpenFile(path)
	if err != nil {
		return model.RawTable{}, parseError(path, "open workbook", err)
	}

	sheet, err := workbook.GetSheet(0)
	if err != nil || sheet == nil {
		return model.RawTable{}, parseError(path, "workbook has no sheets", err)
	}

	var rows [][]string
	for i := 0; i <= int(sheet.GetNumberRows()); i++ {
		row, err := sheet.GetRow(i)
		if err != nil || row == nil {
			continue
		}
		var cells []string
		for _, col := range row.GetCols() {
			if col != nil {
				cells = append(cells, col.GetString())
			} else {
				cells = append(cells, "")
			}
		}
		rows = append(rows, cells)
	}
	if len(rows) == 0 {
		return model.RawTable{}, parseError(path, "sheet is empty", nil)
	}
	return tableFromRows(rows), nil
}

// tableFromRows builds a raw table from header+data rows. Short data rows
// leave the trailing columns empty; extra cells beyond the header are
// dropped, matching how ragged exports are usually meant.
func tableFromRows(rows [][]string) model.RawTable {
	header := rows[0]
	columns := make([]string, len(header))
	for i, h := range header {
		columns[i] = strings.TrimSpace(h)
	}

	table := model.RawTable{Columns: columns}
	for _, row := range rows[1:] {
		r := model.RawRow{}
		for i, col := range columns {
			if i < len(row) {
				r[col] = row[i]
			} else {
				r[col] = ""
			}
		}
		table.Rows = append(table.Rows, r)
	}
	return table
}
