package ldt

import (
	"bytes"
	"fmt"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"

	"labor/internal/constants"
)

// Record 9106 declares the character set of a message.
const charsetRecordType = "9106"

// Values of record 9106.
const (
	Charset7Bit    = "1"
	CharsetIBM     = "2"
	CharsetISO8859 = "3"
)

var declaredCharsets = map[string]*charmap.Charmap{
	CharsetIBM:     charmap.CodePage437,
	CharsetISO8859: charmap.ISO8859_15,
}

var namedCharsets = map[string]*charmap.Charmap{
	constants.CharsetISO88591:  charmap.ISO8859_1,
	constants.CharsetISO885915: charmap.ISO8859_15,
	constants.CharsetCP437:     charmap.CodePage437,
}

// LookupCharset resolves a configured charset name.
func LookupCharset(name string) (*charmap.Charmap, bool) {
	cm, ok := namedCharsets[strings.ToLower(strings.TrimSpace(name))]
	return cm, ok
}

// DeclaredCharset returns the value of the first 9106 record, or "" when there is none.
func DeclaredCharset(payload []byte) string {
	for _, line := range bytes.Split(payload, []byte("\n")) {
		line = bytes.TrimRight(line, "\r")
		if len(line) > minLineLength-1 && string(line[3:7]) == charsetRecordType {
			return strings.TrimSpace(string(line[7:]))
		}
	}
	return ""
}

// ToUTF8 returns payload as UTF-8. Valid UTF-8 passes through unchanged. Anything else is
// read with the 8-bit table record 9106 declares, or with fallback when the message
// declares none or 7-bit text.
func ToUTF8(payload []byte, fallback *charmap.Charmap) ([]byte, error) {
	if utf8.Valid(payload) {
		return payload, nil
	}

	table := fallback
	if cm, ok := declaredCharsets[DeclaredCharset(payload)]; ok {
		table = cm
	}
	if table == nil {
		table = charmap.ISO8859_15
	}

	out, err := table.NewDecoder().Bytes(payload)
	if err != nil {
		return nil, fmt.Errorf("ldt: transcode from %s: %w", table, err)
	}
	return out, nil
}

// DecodePayload transcodes payload to UTF-8 and decodes it. The transcoded text is
// returned for the identifier scan.
func DecodePayload(payload []byte, fallback *charmap.Charmap) ([]Record, string, error) {
	text, err := ToUTF8(payload, fallback)
	if err != nil {
		return nil, "", &DecodeError{Excerpt: excerpt(string(payload)), Reason: ReasonInvalidEncoding, Field: FieldContent}
	}
	records, err := DecodeMessage(text)
	if err != nil {
		return nil, "", err
	}
	return records, string(text), nil
}
