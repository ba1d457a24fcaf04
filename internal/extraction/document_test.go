package extraction

import (
	"archive/zip"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ledongthuc/pdf"
)

func TestSplitRowIntoCells(t *testing.T) {
	row := []pdf.Text{
		{S: "Debit", X: 10, W: 25, FontSize: 10},
		{S: "Amount", X: 40, W: 30, FontSize: 10}, // word gap, same cell
		{S: "Gro", X: 150, W: 15, FontSize: 10},   // column gutter, new cell
		{S: "ceries", X: 165.5, W: 25, FontSize: 10},
	}
	cells := splitRowIntoCells(row)
	if len(cells) != 2 {
		t.Fatalf("expected 2 cells, got %v", cells)
	}
	if cells[0] != "Debit Amount" {
		t.Fatalf("first cell = %q", cells[0])
	}
	// Near-contiguous fragments join without a space.
	if cells[1] != "Groceries" {
		t.Fatalf("second cell = %q", cells[1])
	}
}

func TestSplitRowIntoCellsEmpty(t *testing.T) {
	if cells := splitRowIntoCells(nil); cells != nil {
		t.Fatalf("expected no cells, got %v", cells)
	}
	if cells := splitRowIntoCells([]pdf.Text{{S: "   ", X: 0, W: 5, FontSize: 10}}); cells != nil {
		t.Fatalf("whitespace-only fragment produced cells: %v", cells)
	}
}

// writeTempDOCX builds a minimal DOCX archive holding the given
// WordprocessingML body.
func writeTempDOCX(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "doc.docx")
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create docx: %v", err)
	}
	defer f.Close()

	zw := zip.NewWriter(f)
	w, err := zw.Create("word/document.xml")
	if err != nil {
		t.Fatalf("create entry: %v", err)
	}
	doc := `<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"><w:body>` +
		body + `</w:body></w:document>`
	if _, err := w.Write([]byte(doc)); err != nil {
		t.Fatalf("write entry: %v", err)
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("close archive: %v", err)
	}
	return path
}

func docxCell(text string) string {
	return `<w:tc><w:p><w:r><w:t>` + text + `</w:t></w:r></w:p></w:tc>`
}

func TestExtractDOCX(t *testing.T) {
	body := `<w:p><w:r><w:t>Monthly statement</w:t></w:r></w:p>` +
		`<w:tbl>` +
		`<w:tr>` + docxCell("Date") + docxCell("Debit Amount") + docxCell("Category") + `</w:tr>` +
		`<w:tr>` + docxCell("08/11/2024") + docxCell("16.000") + docxCell("Groceries") + `</w:tr>` +
		`</w:tbl>`

	doc, err := ExtractDOCX(writeTempDOCX(t, body))
	if err != nil {
		t.Fatalf("ExtractDOCX: %v", err)
	}

	if len(doc.Pages) != 1 || !strings.Contains(doc.Pages[0], "Monthly statement") {
		t.Fatalf("unexpected pages: %v", doc.Pages)
	}
	if len(doc.Tables) != 1 {
		t.Fatalf("expected 1 table, got %d", len(doc.Tables))
	}
	table := doc.Tables[0]
	if len(table.Columns) != 3 || table.Columns[1] != "Debit Amount" {
		t.Fatalf("unexpected columns: %v", table.Columns)
	}
	if table.Rows[0]["Category"] != "Groceries" {
		t.Fatalf("unexpected row: %v", table.Rows[0])
	}
}

func TestExtractDOCXHeaderOnlyTableIgnored(t *testing.T) {
	body := `<w:tbl><w:tr>` + docxCell("Date") + docxCell("Amount") + `</w:tr></w:tbl>` +
		`<w:p><w:r><w:t>some prose</w:t></w:r></w:p>`

	doc, err := ExtractDOCX(writeTempDOCX(t, body))
	if err != nil {
		t.Fatalf("ExtractDOCX: %v", err)
	}
	if len(doc.Tables) != 0 {
		t.Fatalf("header-only table should be dropped, got %v", doc.Tables)
	}
}

func TestExtractDOCXNotAnArchive(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.docx")
	if err := os.WriteFile(path, []byte("plain text"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	_, err := ExtractDOCX(path)
	if err == nil {
		t.Fatal("expected error for non-zip input")
	}
	if CodeOf(err) != ErrParse {
		t.Fatalf("error code = %v, want %v", CodeOf(err), ErrParse)
	}
}

func TestExtractPDFMissingFile(t *testing.T) {
	_, err := ExtractPDF(filepath.Join(t.TempDir(), "missing.pdf"))
	if err == nil {
		t.Fatal("expected error for missing file")
	}
}
