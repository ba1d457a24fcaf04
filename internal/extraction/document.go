package extraction

import (
	"archive/zip"
	"encoding/xml"
	"fmt"
	"io"
	"log"
	"strings"

	"github.com/ledongthuc/pdf"

	"github.com/dimslalom/transacto/internal/model"
)

// DocumentText is the raw extraction of a page-oriented document: plain text
// per page plus any tables discovered in the layout. The router tries the
// tables first and falls back to the text.
type DocumentText struct {
	Pages  []string
	Tables []model.RawTable
}

// cellGapMin is the smallest horizontal gap (in PDF points) treated as a
// column boundary when regrouping positioned text into table cells.
const cellGapMin = 4.0

// ExtractPDF pulls per-page text and candidate tables out of a PDF. The pdf
// library panics on some malformed files, so the whole pass is wrapped in
// recover and reports the panic as an ordinary parse error.
func ExtractPDF(path string) (doc *DocumentText, err error) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[document] recovered from PDF panic: %v", r)
			doc = nil
			err = parseError(path, "PDF reader panic", fmt.Errorf("%v", r))
		}
	}()

	f, reader, err := pdf.Open(path)
	if err != nil {
		return nil, parseError(path, "open PDF", err)
	}
	defer f.Close()

	doc = &DocumentText{}
	for i := 1; i <= reader.NumPage(); i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}

		text, err := page.GetPlainText(nil)
		if err == nil {
			doc.Pages = append(doc.Pages, text)
		}

		rows, err := page.GetTextByRow()
		if err != nil {
			continue
		}
		var cellRows [][]string
		for _, row := range rows {
			cells := splitRowIntoCells(row.Content)
			if len(cells) > 0 {
				cellRows = append(cellRows, cells)
			}
		}
		// A single column is just text; a table needs at least a header row
		// and one data row with multiple cells.
		if len(cellRows) >= 2 && len(cellRows[0]) >= 2 {
			doc.Tables = append(doc.Tables, tableFromRows(cellRows))
		}
	}

	if len(doc.Pages) == 0 && len(doc.Tables) == 0 {
		return nil, parseError(path, "no extractable content", nil)
	}
	return doc, nil
}

// splitRowIntoCells regroups positioned text fragments of one visual row into
// cells, breaking wherever the horizontal gap exceeds the fragment's own font
// size. Fragments inside a word render nearly contiguous, so ordinary word
// spacing stays inside one cell while column gutters split.
func splitRowIntoCells(texts []pdf.Text) []string {
	var cells []string
	var cell strings.Builder
	prevEnd := 0.0

	for i, t := range texts {
		if i > 0 {
			gap := t.X - prevEnd
			threshold := t.FontSize * 1.5
			if threshold < cellGapMin {
				threshold = cellGapMin
			}
			if gap > threshold {
				if s := strings.TrimSpace(cell.String()); s != "" {
					cells = append(cells, s)
				}
				cell.Reset()
			} else if gap > t.FontSize*0.3 {
				cell.WriteByte(' ')
			}
		}
		cell.WriteString(t.S)
		prevEnd = t.X + t.W
	}
	if s := strings.TrimSpace(cell.String()); s != "" {
		cells = append(cells, s)
	}
	return cells
}

// ExtractDOCX pulls paragraph text and tables from a DOCX document. A DOCX
// file is a zip holding WordprocessingML; paragraphs become one text page,
// w:tbl elements become raw tables with the first row as header.
func ExtractDOCX(path string) (*DocumentText, error) {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return nil, parseError(path, "open DOCX archive", err)
	}
	defer zr.Close()

	var docXML io.ReadCloser
	for _, f := range zr.File {
		if f.Name == "word/document.xml" {
			docXML, err = f.Open()
			if err != nil {
				return nil, parseError(path, "open document.xml", err)
			}
			break
		}
	}
	if docXML == nil {
		return nil, parseError(path, "archive has no word/document.xml", nil)
	}
	defer docXML.Close()

	paragraphs, tables, err := parseDocumentXML(docXML)
	if err != nil {
		return nil, parseError(path, "decode document.xml", err)
	}
	if len(paragraphs) == 0 && len(tables) == 0 {
		return nil, parseError(path, "no extractable content", nil)
	}

	doc := &DocumentText{Tables: tables}
	if len(paragraphs) > 0 {
		doc.Pages = []string{strings.Join(paragraphs, "\n")}
	}
	return doc, nil
}

// parseDocumentXML walks the WordprocessingML token stream collecting
// paragraph text and table cell text. Only w:p, w:tbl, w:tr, w:tc and w:t
// matter; everything else is structural noise.
func parseDocumentXML(r io.Reader) ([]string, []model.RawTable, error) {
	dec := xml.NewDecoder(r)

	var paragraphs []string
	var tables []model.RawTable

	var tableRows [][]string
	var rowCells []string
	var text strings.Builder
	inTable := false

	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, nil, err
		}

		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "tbl":
				inTable = true
				tableRows = nil
			case "tr":
				rowCells = nil
			case "tc":
				text.Reset()
			case "p":
				if !inTable {
					text.Reset()
				}
			}
		case xml.CharData:
			text.Write(t)
		case xml.EndElement:
			switch t.Name.Local {
			case "p":
				if !inTable {
					if s := strings.TrimSpace(text.String()); s != "" {
						paragraphs = append(paragraphs, s)
					}
				}
			case "tc":
				rowCells = append(rowCells, strings.TrimSpace(text.String()))
			case "tr":
				if inTable && len(rowCells) > 0 {
					tableRows = append(tableRows, rowCells)
				}
			case "tbl":
				inTable = false
				if len(tableRows) >= 2 {
					tables = append(tables, tableFromRows(tableRows))
				}
			}
		}
	}
	return paragraphs, tables, nil
}
