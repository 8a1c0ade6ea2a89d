package ldt

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeAll(t *testing.T, lines ...string) []Record {
	t.Helper()
	records, err := DecodeMessage([]byte(strings.Join(lines, "\n")))
	require.NoError(t, err)
	return records
}

func TestAssemble_ExampleMessage(t *testing.T) {
	records := decodeAll(t, "01380008230", "0180201793860200", "0180212772720053")
	require.Len(t, records, 3)

	fm := Assemble(records)
	require.NotNil(t, fm.BSNR)
	require.NotNil(t, fm.LANR)
	assert.Equal(t, "93860200", *fm.BSNR)
	assert.Equal(t, "72720053", *fm.LANR)
	assert.Equal(t, "8230", fm.MessageKind)
	assert.Empty(t, fm.Unrecognized)
	assert.Zero(t, fm.LengthMismatches)
}

func TestAssemble_PatientLabAndTest(t *testing.T) {
	records := decodeAll(t,
		"0208320Labor Nord",
		"0308321Hauptstrasse 1, Kiel",
		"0133000P123",
		"0143101Meier",
		"0133102Anna",
		"017310319800101",
		"0153107Ring 5",
		"014311224103",
		"0133113Kiel",
		"0158310REQ77",
		"017843220240301",
		"0138410GLU1",
		"0168411Glucose",
		"01384200095",
		"0138421mgdl",
		"0168999whatever",
	)

	fm := Assemble(records)
	assert.Equal(t, "Labor Nord", fm.Lab.Name)
	assert.Equal(t, "Hauptstrasse 1, Kiel", fm.Lab.Address)
	assert.Equal(t, Patient{
		LastName:   "Meier",
		FirstName:  "Anna",
		BirthDate:  "19800101",
		PatientID:  "P123",
		Address:    "Ring 5",
		PostalCode: "24103",
		City:       "Kiel",
	}, fm.Patient)
	assert.Equal(t, "REQ77", fm.Test.RequestID)
	assert.Equal(t, "20240301", fm.Test.TestDate)
	assert.Equal(t, []Parameter{
		{RecordType: "8410", FieldID: "GLU1", Content: ""},
		{RecordType: "8411", FieldID: "Gluc", Content: "ose"},
		{RecordType: "8420", FieldID: "0095", Content: ""},
		{RecordType: "8421", FieldID: "mgdl", Content: ""},
	}, fm.Test.Parameters)

	require.Len(t, fm.Unrecognized, 1)
	assert.Equal(t, "8999", fm.Unrecognized[0].RecordType)
	assert.Nil(t, fm.BSNR)
	assert.Nil(t, fm.LANR)
}

func TestAssemble_LastWriteWins(t *testing.T) {
	fm := Assemble(decodeAll(t,
		"0143101Meier",
		"0180201111111111",
		"0153101Schulz",
		"017020122222222",
	))

	assert.Equal(t, "Schulz", fm.Patient.LastName)
	require.NotNil(t, fm.BSNR)
	assert.Equal(t, "22222222", *fm.BSNR)
}

func TestAssemble_InvalidIdentifierIsUnrecognized(t *testing.T) {
	fm := Assemble(decodeAll(t,
		"0130201ABCD",
		"0140212123456",
	))

	assert.Nil(t, fm.BSNR)
	assert.Nil(t, fm.LANR)
	require.Len(t, fm.Unrecognized, 2)
	assert.Equal(t, RecordTypeBSNR, fm.Unrecognized[0].RecordType)
	assert.Equal(t, RecordTypeLANR, fm.Unrecognized[1].RecordType)
}

func TestAssemble_CountsLengthMismatches(t *testing.T) {
	fm := Assemble(decodeAll(t, "0998000823x", "01380008230"))
	assert.Equal(t, 1, fm.LengthMismatches)
}

func TestNormalizeIdentifier(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{in: "793860200", want: "93860200"},
		{in: "93860200", want: "93860200"},
		{in: " 7272005 ", want: "7272005"},
		{in: "79386020A", want: "79386020A"},
		{in: "1234567890", want: "1234567890"},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeIdentifier(tt.in))
		})
	}
}
