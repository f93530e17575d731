package entity

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/nsyy/eye-pacs/constants"
)

// Report is one row of the ehp_reports catalog.
type Report struct {
	ID         uuid.UUID       `json:"report_id"`
	Name       string          `json:"report_name"`
	Addr       string          `json:"report_addr"` // path token
	Time       time.Time       `json:"report_time"`
	Machine    string          `json:"report_machine"`
	RegisterID *string         `json:"register_id,omitempty"`
	PatientID  *string         `json:"patient_id,omitempty"`
	Value      json.RawMessage `json:"report_value,omitempty"` // nil until parsed
}

// State reports whether the extraction pipeline has written report_value.
func (r *Report) State() constants.ReportState {
	if r.Value == nil {
		return constants.ReportUnparsed
	}
	return constants.ReportParsed
}

// Fields decodes report_value into a flat map; unparsed rows yield nil.
func (r *Report) Fields() (map[string]any, error) {
	if r.Value == nil {
		return nil, nil
	}
	out := map[string]any{}
	if len(r.Value) == 0 {
		return out, nil
	}
	if err := json.Unmarshal(r.Value, &out); err != nil {
		return nil, err
	}
	return out, nil
}
