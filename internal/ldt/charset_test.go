package ldt

import (
	"errors"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/encoding/charmap"
)

func TestToUTF8(t *testing.T) {
	tests := []struct {
		name     string
		payload  string
		fallback *charmap.Charmap
		want     string
	}{
		{
			name:    "utf-8 passes through",
			payload: "0203101Mustermann Müller",
			want:    "0203101Mustermann Müller",
		},
		{
			name:    "latin text without declaration uses the default table",
			payload: "0203101Mustermann M\xfcller",
			want:    "0203101Mustermann Müller",
		},
		{
			name:     "configured fallback",
			payload:  "0203101Mustermann M\x81ller",
			fallback: charmap.CodePage437,
			want:     "0203101Mustermann Müller",
		},
		{
			name:     "declared ibm table wins over fallback",
			payload:  "01091062\n0203101Mustermann M\x81ller",
			fallback: charmap.ISO8859_1,
			want:     "01091062\n0203101Mustermann Müller",
		},
		{
			name:    "declared iso table reads the euro sign",
			payload: "01091063\n0158410Preis \xa4",
			want:    "01091063\n0158410Preis €",
		},
		{
			name:     "7-bit declaration falls back",
			payload:  "01091061\r\n0203101Mustermann M\xfcller",
			fallback: charmap.ISO8859_1,
			want:     "01091061\r\n0203101Mustermann Müller",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ToUTF8([]byte(tt.payload), tt.fallback)
			require.NoError(t, err)
			assert.True(t, utf8.Valid(got))
			assert.Equal(t, tt.want, string(got))
		})
	}
}

func TestDeclaredCharset(t *testing.T) {
	assert.Equal(t, CharsetIBM, DeclaredCharset([]byte("01380008230\r\n01091062\r\n")))
	assert.Empty(t, DeclaredCharset([]byte("01380008230\n0180201793860200")))
}

func TestLookupCharset(t *testing.T) {
	cm, ok := LookupCharset(" ISO-8859-15 ")
	require.True(t, ok)
	assert.Equal(t, charmap.ISO8859_15, cm)

	_, ok = LookupCharset("koi8-r")
	assert.False(t, ok)
}

func TestDecodePayload_LatinPatientName(t *testing.T) {
	payload := []byte("01380008230\n0180201793860200\n0203101Mustermann M\xfcller\n")

	records, text, err := DecodePayload(payload, nil)
	require.NoError(t, err)
	assert.True(t, utf8.ValidString(text))

	fm := Assemble(records)
	assert.Equal(t, "Mustermann Müller", fm.Patient.LastName)
	require.NotNil(t, fm.BSNR)
	assert.Equal(t, "93860200", *fm.BSNR)
}

func TestDecodeLine_RejectsUnstorableText(t *testing.T) {
	for _, line := range []string{
		"0203101Mustermann\x00",
		"0203101Mustermann M\xfcller",
	} {
		_, err := DecodeLine(line, 3)

		var decodeErr *DecodeError
		require.True(t, errors.As(err, &decodeErr), "line %q", line)
		assert.Equal(t, ReasonInvalidEncoding, decodeErr.Reason)
		assert.Equal(t, FieldContent, decodeErr.Field)
		assert.Equal(t, 3, decodeErr.Line)
		assert.True(t, utf8.ValidString(decodeErr.Excerpt))
		assert.NotContains(t, decodeErr.Excerpt, "\x00")
	}
}

func TestDecodePayload_NulByteIsDecodeError(t *testing.T) {
	_, _, err := DecodePayload([]byte("01380008230\n0203101Muster\x00mann"), charmap.ISO8859_15)

	var decodeErr *DecodeError
	require.True(t, errors.As(err, &decodeErr))
	assert.Equal(t, ReasonInvalidEncoding, decodeErr.Reason)
	assert.Equal(t, 2, decodeErr.Line)
}
