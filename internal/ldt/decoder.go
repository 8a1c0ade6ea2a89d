package ldt

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"
)

const (
	minLineLength  = 8
	fullLineLength = 11
	maxExcerptLen  = 256
	// Declared lengths count the trailing CRLF of the original line.
	lineTerminatorLength = 2
)

var (
	lengthPattern       = regexp.MustCompile(`^[0-9]{3}$`)
	recordTypePattern   = regexp.MustCompile(`^[0-9]{4}$`)
	fieldIDPattern      = regexp.MustCompile(`^[A-Za-z0-9*]{4}$`)
	shortFieldIDPattern = regexp.MustCompile(`^[A-Za-z0-9]$`)
)

type Reason string

const (
	ReasonTooShort        Reason = "too_short"
	ReasonInvalidFormat   Reason = "invalid_format"
	ReasonEmptyMessage    Reason = "empty_message"
	// ReasonInvalidEncoding covers NUL bytes and text that is not valid UTF-8 after
	// transcoding. Postgres TEXT columns accept neither.
	ReasonInvalidEncoding Reason = "invalid_encoding"
)

const (
	FieldLength     = "length"
	FieldRecordType = "record_type"
	FieldFieldID    = "field_id"
	FieldContent    = "content"
)

// DecodeError describes the first line of a message that could not be decoded.
// Line is 1-based over the physical lines of the payload; 0 means the message as a whole.
type DecodeError struct {
	Line    int    `json:"line"`
	Excerpt string `json:"line_excerpt"`
	Reason  Reason `json:"reason"`
	Field   string `json:"field,omitempty"`
}

func (e *DecodeError) Error() string {
	switch e.Reason {
	case ReasonInvalidFormat:
		return fmt.Sprintf("ldt: line %d: invalid %s in %q", e.Line, e.Field, e.Excerpt)
	case ReasonEmptyMessage:
		return "ldt: message contains no records"
	case ReasonInvalidEncoding:
		return fmt.Sprintf("ldt: line %d: content is not valid text: %q", e.Line, e.Excerpt)
	default:
		return fmt.Sprintf("ldt: line %d: %s: %q", e.Line, e.Reason, e.Excerpt)
	}
}

// Record is one decoded LDT line.
type Record struct {
	Line       int    `json:"line"`
	Raw        string `json:"raw"`
	Length     string `json:"length"`
	RecordType string `json:"record_type"`
	FieldID    string `json:"field_id"`
	Content    string `json:"content"`
}

// Value returns everything after the record type column.
func (r Record) Value() string {
	return r.FieldID + r.Content
}

func (r Record) Short() bool {
	return utf8.RuneCountInString(r.FieldID) == 1
}

func (r Record) DeclaredLength() int {
	n, _ := strconv.Atoi(r.Length)
	return n
}

// LengthMatches reports whether the declared length agrees with the line, with or
// without the line terminator. It is diagnostic only.
func (r Record) LengthMatches() bool {
	actual := utf8.RuneCountInString(r.Raw)
	declared := r.DeclaredLength()
	return declared == actual || declared == actual+lineTerminatorLength
}

// DecodeLine decodes one non-blank line. lineNo is carried into the record and any error.
func DecodeLine(line string, lineNo int) (Record, error) {
	if !utf8.ValidString(line) || strings.ContainsRune(line, 0) {
		return Record{}, &DecodeError{Line: lineNo, Excerpt: excerpt(line), Reason: ReasonInvalidEncoding, Field: FieldContent}
	}

	offsets := runeOffsets(line, fullLineLength)
	if len(offsets) <= minLineLength {
		return Record{}, &DecodeError{Line: lineNo, Excerpt: excerpt(line), Reason: ReasonTooShort}
	}

	rec := Record{
		Line:       lineNo,
		Raw:        line,
		Length:     line[offsets[0]:offsets[3]],
		RecordType: line[offsets[3]:offsets[7]],
	}

	fieldPattern := fieldIDPattern
	if len(offsets) > fullLineLength {
		rec.FieldID = line[offsets[7]:offsets[11]]
		rec.Content = line[offsets[11]:]
	} else {
		rec.FieldID = line[offsets[7]:offsets[8]]
		fieldPattern = shortFieldIDPattern
	}

	switch {
	case !lengthPattern.MatchString(rec.Length):
		return Record{}, invalidFormat(line, lineNo, FieldLength)
	case !recordTypePattern.MatchString(rec.RecordType):
		return Record{}, invalidFormat(line, lineNo, FieldRecordType)
	case !fieldPattern.MatchString(rec.FieldID):
		return Record{}, invalidFormat(line, lineNo, FieldFieldID)
	}

	return rec, nil
}

// runeOffsets returns the byte offsets of the first n runes of s followed by the offset
// just past the last of them, so offsets[i]:offsets[j] spans runes i..j-1.
func runeOffsets(s string, n int) []int {
	offsets := make([]int, 0, n+1)
	for i := range s {
		if len(offsets) == n {
			break
		}
		offsets = append(offsets, i)
	}
	if len(offsets) < n {
		return append(offsets, len(s))
	}
	_, size := utf8.DecodeRuneInString(s[offsets[n-1]:])
	return append(offsets, offsets[n-1]+size)
}

// DecodeMessage splits a payload into lines, discards blank ones and decodes the rest.
// Any undecodable line fails the whole message.
func DecodeMessage(payload []byte) ([]Record, error) {
	lines := strings.Split(string(payload), "\n")
	records := make([]Record, 0, len(lines))

	for i, line := range lines {
		line = strings.TrimSuffix(line, "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		rec, err := DecodeLine(line, i+1)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}

	if len(records) == 0 {
		return nil, &DecodeError{Reason: ReasonEmptyMessage}
	}
	return records, nil
}

func invalidFormat(line string, lineNo int, field string) *DecodeError {
	return &DecodeError{Line: lineNo, Excerpt: excerpt(line), Reason: ReasonInvalidFormat, Field: field}
}

// excerpt is stored in JSONB, which rejects NUL and invalid UTF-8.
func excerpt(line string) string {
	line = strings.ToValidUTF8(strings.ReplaceAll(line, "\x00", "\uFFFD"), "\uFFFD")
	if utf8.RuneCountInString(line) <= maxExcerptLen {
		return line
	}
	return string([]rune(line)[:maxExcerptLen])
}
