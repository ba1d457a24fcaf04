package extraction

import (
	"bufio"
	"bytes"
	"os"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	"golang.org/x/net/html/charset"
	"golang.org/x/text/transform"

	"github.com/dimslalom/transacto/internal/model"
)

// entryDateRe anchors a new free-text entry: day/month/year or
// year/month/day with 1-2 digit day/month and a 2-4 digit year, at the start
// of the line.
var entryDateRe = regexp.MustCompile(`^(\d{1,2}[/\-.]\d{1,2}[/\-.]\d{2,4}|\d{4}[/\-.]\d{1,2}[/\-.]\d{1,2})\b`)

// entryAmountRe matches amount tokens inside an entry line. A token needs an
// explicit sign or a decimal point to qualify; bare integers stay part of the
// description ("apartment 4B", "Office 365").
var entryAmountRe = regexp.MustCompile(`[+-]\d+(?:\.\d+)?|\d+\.\d+`)

// payeeMarkerRe finds an explicit payee annotation after the amount token.
var payeeMarkerRe = regexp.MustCompile(`(?i)Payee:\s*(\S[^,;]*)`)

// FreeTextParser segments line-oriented text into dated ledger entries.
//
// A line starts a new entry only when it leads with a recognizable date
// token. The remainder splits around the first amount token: text before it
// is the description, text after it is scanned for a "Payee:" marker. One
// immediately following non-date line is appended to the description; there
// is no deeper continuation. Entries with no parseable amount are discarded
// entirely rather than emitted as zero.
type FreeTextParser struct{}

type freeTextEntry struct {
	tx           model.Transaction
	hasAmount    bool
	continuation bool // next non-date line may still extend the description
}

// Parse reads path (with sniffed-encoding decode) and extracts entries.
func (p *FreeTextParser) Parse(path string) (model.Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, parseError(path, "read file", err)
	}

	var out model.Table
	var current *freeTextEntry

	flush := func() {
		if current != nil && current.hasAmount {
			out = append(out, current.tx)
		}
		current = nil
	}

	scanner := bufio.NewScanner(strings.NewReader(decodeText(data)))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			if current != nil {
				current.continuation = false
			}
			continue
		}

		token := entryDateRe.FindString(line)
		if token != "" {
			if iso, err := NormalizeDate(token); err == nil {
				flush()
				current = parseFreeTextEntry(iso, strings.TrimSpace(line[len(token):]))
				continue
			}
			// Leading date-shaped token that fails to normalize (e.g. 31/02)
			// does not open an entry; fall through as a plain line.
		}

		if current != nil && current.continuation {
			if current.tx.Description == "" {
				current.tx.Description = line
			} else {
				current.tx.Description += " - " + line
			}
			current.continuation = false
		}
	}
	flush()

	if len(out) == 0 {
		return nil, parseError(path, "no dated entries with amounts found", nil)
	}
	return out, nil
}

func parseFreeTextEntry(isoDate, remainder string) *freeTextEntry {
	entry := &freeTextEntry{
		tx:           model.Transaction{Date: isoDate},
		continuation: true,
	}

	loc := entryAmountRe.FindStringIndex(remainder)
	if loc == nil {
		return entry
	}

	amount, err := strconv.ParseFloat(remainder[loc[0]:loc[1]], 64)
	if err != nil {
		return entry
	}
	entry.hasAmount = true
	entry.tx.Amount = amount
	entry.tx.Description = strings.TrimSpace(remainder[:loc[0]])

	if m := payeeMarkerRe.FindStringSubmatch(remainder[loc[1]:]); m != nil {
		entry.tx.Payee = strings.TrimSpace(m[1])
	}
	return entry
}

// decodeText decodes raw bytes using the sniffed charset, falling back to
// treating the data as UTF-8 when sniffing or decoding fails.
func decodeText(data []byte) string {
	enc, _, certain := charset.DetermineEncoding(data, "text/plain")
	if enc != nil && (certain || !utf8.Valid(data)) {
		decoded, _, err := transform.Bytes(enc.NewDecoder(), data)
		if err == nil {
			return string(bytes.ToValidUTF8(decoded, []byte("?")))
		}
	}
	return string(data)
}
