package analysis

import (
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
)

// WriteLocalDocument serializes the full field set to a JSON document at
// path, overwriting existing content. Required-field validation runs first
// but is advisory: an incomplete record is logged and still written.
func (r *Record) WriteLocalDocument(path string) error {
	r.ValidateRequiredFields()

	data, err := json.Marshal(r.fields)
	if err != nil {
		return eris.Wrap(err, "analysis: encode document")
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return eris.Wrapf(err, "analysis: write document %s", path)
	}
	return nil
}

// ReadLocalDocument loads a JSON document and applies its fields to the
// record. Keys outside the known field set are logged and dropped.
func (r *Record) ReadLocalDocument(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return eris.Wrapf(err, "analysis: read document %s", path)
	}

	var in map[string]any
	if err := json.Unmarshal(data, &in); err != nil {
		return eris.Wrapf(err, "analysis: decode document %s", path)
	}

	r.applyFields(in)
	return nil
}
