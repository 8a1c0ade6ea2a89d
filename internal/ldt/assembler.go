package ldt

import (
	"regexp"
	"strings"
)

// Record types understood by the assembler.
const (
	RecordTypeMessageKind = "8000"

	RecordTypeBSNR = "0201"
	RecordTypeLANR = "0212"

	RecordTypeLabName    = "8320"
	RecordTypeLabAddress = "8321"

	RecordTypePatientID         = "3000"
	RecordTypePatientLastName   = "3101"
	RecordTypePatientFirstName  = "3102"
	RecordTypePatientBirthDate  = "3103"
	RecordTypePatientAddress    = "3107"
	RecordTypePatientPostalCode = "3112"
	RecordTypePatientCity       = "3113"

	RecordTypeRequestID = "8310"
	RecordTypeTestDate  = "8432"

	RecordTypeTestIdent     = "8410"
	RecordTypeTestName      = "8411"
	RecordTypeResultValue   = "8420"
	RecordTypeResultUnit    = "8421"
	RecordTypeReferenceText = "8460"
	RecordTypeResultText    = "8480"
)

var (
	bsnrPattern = regexp.MustCompile(`^[0-9]{8}$`)
	lanrPattern = regexp.MustCompile(`^[0-9]{7,8}$`)
	digitsOnly  = regexp.MustCompile(`^[0-9]+$`)
)

// qualifiedLength is the width of an identifier value that carries a leading
// one-digit region qualifier in front of the identifier itself.
const qualifiedLength = 9

// NormalizeIdentifier strips the region qualifier from a 9-digit identifier value and
// returns the remaining digits. Other values are returned trimmed but unchanged.
func NormalizeIdentifier(value string) string {
	value = strings.TrimSpace(value)
	if len(value) == qualifiedLength && digitsOnly.MatchString(value) {
		return value[1:]
	}
	return value
}

// ValidBSNR reports whether s is an 8-digit facility number.
func ValidBSNR(s string) bool { return bsnrPattern.MatchString(s) }

// ValidLANR reports whether s is a physician number: the 7-digit core, optionally
// followed by its check digit.
func ValidLANR(s string) bool { return lanrPattern.MatchString(s) }

type Patient struct {
	LastName   string `json:"last_name,omitempty"`
	FirstName  string `json:"first_name,omitempty"`
	BirthDate  string `json:"birth_date,omitempty"`
	PatientID  string `json:"patient_id,omitempty"`
	Address    string `json:"address,omitempty"`
	PostalCode string `json:"postal_code,omitempty"`
	City       string `json:"city,omitempty"`
}

type Lab struct {
	Name    string `json:"name,omitempty"`
	Address string `json:"address,omitempty"`
}

type Parameter struct {
	RecordType string `json:"record_type"`
	FieldID    string `json:"field_id"`
	Content    string `json:"content"`
}

type Test struct {
	RequestID  string      `json:"request_id,omitempty"`
	TestDate   string      `json:"test_date,omitempty"`
	Parameters []Parameter `json:"parameters,omitempty"`
}

// FieldMap accumulates the attributes of one logical message. Empty strings and nil
// pointers mean the attribute never appeared.
type FieldMap struct {
	MessageKind      string   `json:"message_kind,omitempty"`
	BSNR             *string  `json:"bsnr,omitempty"`
	LANR             *string  `json:"lanr,omitempty"`
	Patient          Patient  `json:"patient"`
	Lab              Lab      `json:"lab"`
	Test             Test     `json:"test"`
	Unrecognized     []Record `json:"unrecognized,omitempty"`
	LengthMismatches int      `json:"length_mismatches,omitempty"`
}

type assignFunc func(fm *FieldMap, rec Record) bool

func setString(target func(fm *FieldMap) *string) assignFunc {
	return func(fm *FieldMap, rec Record) bool {
		*target(fm) = strings.TrimSpace(rec.Value())
		return true
	}
}

func setIdentifier(valid func(string) bool, target func(fm *FieldMap) **string) assignFunc {
	return func(fm *FieldMap, rec Record) bool {
		value := NormalizeIdentifier(rec.Value())
		if !valid(value) {
			return false
		}
		*target(fm) = &value
		return true
	}
}

func appendParameter(fm *FieldMap, rec Record) bool {
	fm.Test.Parameters = append(fm.Test.Parameters, Parameter{
		RecordType: rec.RecordType,
		FieldID:    rec.FieldID,
		Content:    rec.Content,
	})
	return true
}

var dispatch = map[string]assignFunc{
	RecordTypeMessageKind: setString(func(fm *FieldMap) *string { return &fm.MessageKind }),

	RecordTypeBSNR: setIdentifier(ValidBSNR, func(fm *FieldMap) **string { return &fm.BSNR }),
	RecordTypeLANR: setIdentifier(ValidLANR, func(fm *FieldMap) **string { return &fm.LANR }),

	RecordTypeLabName:    setString(func(fm *FieldMap) *string { return &fm.Lab.Name }),
	RecordTypeLabAddress: setString(func(fm *FieldMap) *string { return &fm.Lab.Address }),

	RecordTypePatientID:         setString(func(fm *FieldMap) *string { return &fm.Patient.PatientID }),
	RecordTypePatientLastName:   setString(func(fm *FieldMap) *string { return &fm.Patient.LastName }),
	RecordTypePatientFirstName:  setString(func(fm *FieldMap) *string { return &fm.Patient.FirstName }),
	RecordTypePatientBirthDate:  setString(func(fm *FieldMap) *string { return &fm.Patient.BirthDate }),
	RecordTypePatientAddress:    setString(func(fm *FieldMap) *string { return &fm.Patient.Address }),
	RecordTypePatientPostalCode: setString(func(fm *FieldMap) *string { return &fm.Patient.PostalCode }),
	RecordTypePatientCity:       setString(func(fm *FieldMap) *string { return &fm.Patient.City }),

	RecordTypeRequestID: setString(func(fm *FieldMap) *string { return &fm.Test.RequestID }),
	RecordTypeTestDate:  setString(func(fm *FieldMap) *string { return &fm.Test.TestDate }),

	RecordTypeTestIdent:     appendParameter,
	RecordTypeTestName:      appendParameter,
	RecordTypeResultValue:   appendParameter,
	RecordTypeResultUnit:    appendParameter,
	RecordTypeReferenceText: appendParameter,
	RecordTypeResultText:    appendParameter,
}

// Assemble folds records into a FieldMap. Later records overwrite earlier ones for the
// same attribute. Records with an unknown type, or an identifier record whose value is
// not a valid identifier, are kept in Unrecognized.
func Assemble(records []Record) FieldMap {
	var fm FieldMap
	for _, rec := range records {
		if !rec.LengthMatches() {
			fm.LengthMismatches++
		}
		assign, ok := dispatch[rec.RecordType]
		if !ok || !assign(&fm, rec) {
			fm.Unrecognized = append(fm.Unrecognized, rec)
		}
	}
	return fm
}

// KnownRecordType reports whether the assembler maps the given record type.
func KnownRecordType(recordType string) bool {
	_, ok := dispatch[recordType]
	return ok
}
