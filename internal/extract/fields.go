// Package extract turns a rasterized report page into a flat field map using
// per-report-type region templates and labelled patterns.
package extract

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Fields is the flat mapping persisted as report_value.
type Fields map[string]string

// NameKey is the patient name field, prepended to report_name when set.
const NameKey = "name"

const fieldsSchema = `{
  "type": "object",
  "propertyNames": {"pattern": "^[a-z][a-z0-9_]*$"},
  "additionalProperties": {"type": "string"}
}`

var schema = jsonschema.MustCompileString("fields.json", fieldsSchema)

// Marshal validates f and encodes it as a JSON object. A nil map encodes as {}.
func (f Fields) Marshal() (json.RawMessage, error) {
	if f == nil {
		f = Fields{}
	}
	b, err := json.Marshal(f)
	if err != nil {
		return nil, fmt.Errorf("marshal fields: %w", err)
	}
	if err := Validate(b); err != nil {
		return nil, err
	}
	return b, nil
}

// Validate checks that data is a flat object of snake_case keys to strings.
func Validate(data []byte) error {
	var v any
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&v); err != nil {
		return fmt.Errorf("unmarshal fields: %w", err)
	}
	if err := schema.Validate(v); err != nil {
		return fmt.Errorf("fields do not match schema: %w", err)
	}
	return nil
}

// DisplayName returns "<name>_<reportName>" when a patient name was extracted.
func DisplayName(f Fields, reportName string) string {
	if n := f[NameKey]; n != "" {
		return n + "_" + reportName
	}
	return reportName
}
