package dataset

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/simplifiedchinese"
)

type csvLoader struct{}

func (csvLoader) CanLoad(name string) bool {
	n := strings.ToLower(name)
	return strings.HasSuffix(n, ".csv") || strings.HasSuffix(n, ".tsv") || strings.HasSuffix(n, ".txt")
}

func (csvLoader) Load(name string, data []byte, opt Options) (*Table, error) {
	text, _, err := DecodeText(data)
	if err != nil {
		return nil, err
	}
	delim := opt.Delimiter
	if delim == 0 {
		delim = sniffDelimiter(name, text)
	}
	r := csv.NewReader(strings.NewReader(text))
	r.Comma = delim
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true
	r.LazyQuotes = true
	records, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read csv: %w", err)
	}
	return build(records, opt), nil
}

// Encoding names reported by DecodeText.
const (
	EncodingUTF8   = "utf-8"
	EncodingGBK    = "gbk"
	EncodingLatin1 = "latin-1"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// DecodeText converts file bytes to UTF-8 trying UTF-8, then GBK, then
// Latin-1, and reports which one matched.
func DecodeText(data []byte) (string, string, error) {
	if b := bytes.TrimPrefix(data, utf8BOM); utf8.Valid(b) {
		return string(b), EncodingUTF8, nil
	}
	if s, ok := decodeStrict(simplifiedchinese.GBK, data); ok {
		return s, EncodingGBK, nil
	}
	out, err := charmap.ISO8859_1.NewDecoder().Bytes(data)
	if err != nil {
		return "", "", fmt.Errorf("decode latin-1: %w", err)
	}
	return string(out), EncodingLatin1, nil
}

// decodeStrict rejects decodes that had to substitute invalid sequences.
func decodeStrict(enc encoding.Encoding, data []byte) (string, bool) {
	out, err := enc.NewDecoder().Bytes(data)
	if err != nil || bytes.ContainsRune(out, utf8.RuneError) {
		return "", false
	}
	return string(out), true
}

// sniffDelimiter picks the most frequent of ',', ';' and tab in the first
// line. Ties favour the comma.
func sniffDelimiter(name, text string) rune {
	if strings.HasSuffix(strings.ToLower(name), ".tsv") {
		return '\t'
	}
	line := text
	if i := strings.IndexAny(text, "\r\n"); i >= 0 {
		line = text[:i]
	}
	best, bestN := ',', strings.Count(line, ",")
	for _, d := range []rune{';', '\t'} {
		if n := strings.Count(line, string(d)); n > bestN {
			best, bestN = d, n
		}
	}
	return best
}
