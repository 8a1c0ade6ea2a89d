// Package result builds and commits the lab results derived from decoded messages. It
// is the only writer of the results and observations tables.
package result

import (
	"strconv"
	"time"

	"github.com/google/uuid"

	"labor/internal/ldt"
	"labor/internal/message"
	"labor/internal/owner"
)

var (
	resultNamespace      = uuid.NewSHA1(uuid.NameSpaceOID, []byte("labor.results"))
	observationNamespace = uuid.NewSHA1(uuid.NameSpaceOID, []byte("labor.observations"))
)

type Result struct {
	ID              string        `json:"id"`
	SourceMessageID string        `json:"source_message_id"`
	OwnerID         *string       `json:"owner_id"`
	TenantID        *string       `json:"tenant_id,omitempty"`
	BSNR            *string       `json:"bsnr,omitempty"`
	LANR            *string       `json:"lanr,omitempty"`
	BSNRSource      ldt.Source    `json:"bsnr_source"`
	LANRSource      ldt.Source    `json:"lanr_source"`
	MessageKind     string        `json:"message_kind,omitempty"`
	Patient         ldt.Patient   `json:"patient"`
	Lab             ldt.Lab       `json:"lab"`
	RequestID       string        `json:"request_id,omitempty"`
	TestDate        string        `json:"test_date,omitempty"`
	Observations    []Observation `json:"observations"`
	CreatedAt       time.Time     `json:"created_at"`
}

// Observation is one test parameter tuple, in message order.
type Observation struct {
	ID         string `json:"id"`
	ResultID   string `json:"result_id"`
	Position   int    `json:"position"`
	RecordType string `json:"record_type"`
	FieldID    string `json:"field_id"`
	Content    string `json:"content"`
}

// ResultID derives the result id from the raw message id, so replaying a message can
// never produce a second result.
func ResultID(rawMessageID string) string {
	return uuid.NewSHA1(resultNamespace, []byte(rawMessageID)).String()
}

func observationID(resultID string, position int) string {
	return uuid.NewSHA1(observationNamespace, []byte(resultID+":"+strconv.Itoa(position))).String()
}

// Build is deterministic in its inputs. o may be nil for an unassigned result.
func Build(fm ldt.FieldMap, ids ldt.Identifiers, o *owner.Owner, raw *message.Raw) *Result {
	id := ResultID(raw.ID)
	res := &Result{
		ID:              id,
		SourceMessageID: raw.ID,
		BSNR:            copyString(ids.BSNR),
		LANR:            copyString(ids.LANR),
		BSNRSource:      ids.BSNRSource,
		LANRSource:      ids.LANRSource,
		MessageKind:     fm.MessageKind,
		Patient:         fm.Patient,
		Lab:             fm.Lab,
		RequestID:       fm.Test.RequestID,
		TestDate:        fm.Test.TestDate,
		Observations:    make([]Observation, 0, len(fm.Test.Parameters)),
	}
	if o != nil {
		res.OwnerID = copyString(&o.ID)
		res.TenantID = copyString(&o.TenantID)
	}

	for i, p := range fm.Test.Parameters {
		position := i + 1
		res.Observations = append(res.Observations, Observation{
			ID:         observationID(id, position),
			ResultID:   id,
			Position:   position,
			RecordType: p.RecordType,
			FieldID:    p.FieldID,
			Content:    p.Content,
		})
	}
	return res
}

func copyString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}
