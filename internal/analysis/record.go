// Package analysis builds, validates, and persists Onyx analysis records
// describing a single pipeline run.
package analysis

import (
	"encoding/json"
	"reflect"
	"sort"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/climb-tre/onyx-analysis-cli/internal/resilience"
)

// Server identifies the execution environment an analysis is filed under.
type Server string

const (
	ServerMscape     Server = "mscape"
	ServerSynthscape Server = "synthscape"
)

// Valid reports whether s is a recognized server identity.
func (s Server) Valid() bool {
	switch s {
	case ServerMscape, ServerSynthscape:
		return true
	}
	return false
}

// recordsField is the analysis field holding sample records for s.
func (s Server) recordsField() string {
	return string(s) + "_records"
}

// requiredFields must all be present before a record is durably written.
var requiredFields = []string{
	"analysis_date",
	"name",
	"pipeline_name",
	"pipeline_version",
	"result",
	"identifiers",
}

// outputFields: at least one must be present before a record is written.
var outputFields = []string{"report", "outputs"}

// validFields is the closed set of field names accepted from any inbound
// record, whether read from a local document or fetched from Onyx.
var validFields = map[string]struct{}{
	"published_date":     {},
	"site":               {},
	"analysis_id":        {},
	"analysis_date":      {},
	"name":               {},
	"description":        {},
	"pipeline_name":      {},
	"pipeline_url":       {},
	"pipeline_version":   {},
	"pipeline_command":   {},
	"methods":            {},
	"result":             {},
	"result_metrics":     {},
	"report":             {},
	"outputs":            {},
	"upstream_analyses":  {},
	"downstream_analyses": {},
	"identifiers":        {},
	"mscape_records":     {},
	"synthscape_records": {},
}

// stringListFields hold ordered string sequences. Inbound values for these
// keys arrive as []any from JSON decoding and are normalized to []string so
// mutators like AddIdentifier can append to them regardless of whether the
// record was built by hand or loaded from a document or Onyx payload.
var stringListFields = map[string]struct{}{
	"identifiers":        {},
	"mscape_records":     {},
	"synthscape_records": {},
}

// Record is a mutable analysis record. Fields live behind the closed key
// set above; mutators populate them incrementally and the write paths
// snapshot the full set.
type Record struct {
	fields map[string]any
	retry  resilience.Policy
}

// New returns an empty record with the default Onyx retry policy.
func New() *Record {
	return &Record{
		fields: map[string]any{
			"identifiers": []string{},
		},
		retry: resilience.DefaultPolicy(),
	}
}

// SetRetryPolicy overrides the retry policy used for remote calls.
func (r *Record) SetRetryPolicy(p resilience.Policy) {
	r.retry = p
}

// Field returns the current value of a field and whether it is set.
func (r *Record) Field(name string) (any, bool) {
	v, ok := r.fields[name]
	return v, ok
}

// Fields returns a snapshot copy of the current field set.
func (r *Record) Fields() map[string]any {
	out := make(map[string]any, len(r.fields))
	for k, v := range r.fields {
		out[k] = v
	}
	return out
}

// SetIdentity sets the analysis name and description. The analysis date is
// set to today unless the caller already set one.
func (r *Record) SetIdentity(name, description string) {
	r.fields["name"] = name
	r.fields["description"] = description
	if _, ok := r.fields["analysis_date"]; !ok {
		r.fields["analysis_date"] = time.Now().Format("2006-01-02")
	}
}

// SetAnalysisDate overrides the analysis date (ISO 8601 date).
func (r *Record) SetAnalysisDate(date string) {
	r.fields["analysis_date"] = date
}

// SetPipelineCommand records the command line the pipeline ran with.
func (r *Record) SetPipelineCommand(command string) {
	r.fields["pipeline_command"] = command
}

// SetReport records the path to the pipeline's report.
func (r *Record) SetReport(path string) {
	r.fields["report"] = path
}

// SetOutputs records the path to the pipeline's output folder.
func (r *Record) SetOutputs(path string) {
	r.fields["outputs"] = path
}

// SetUpstreamAnalyses links analyses this run consumed.
func (r *Record) SetUpstreamAnalyses(v any) {
	r.fields["upstream_analyses"] = v
}

// SetDownstreamAnalyses links analyses consuming this run.
func (r *Record) SetDownstreamAnalyses(v any) {
	r.fields["downstream_analyses"] = v
}

// AddIdentifier appends an identifier to the record.
func (r *Record) AddIdentifier(id string) {
	ids, _ := r.fields["identifiers"].([]string)
	r.fields["identifiers"] = append(ids, id)
}

// SetMethods stores the pipeline methods as a JSON-encoded string. Anything
// other than a mapping is rejected: the field is left untouched, the
// rejection is logged, and a non-nil error is returned.
func (r *Record) SetMethods(v any) error {
	enc, err := encodeMapping(v)
	if err != nil {
		zap.L().Error("methods must be a mapping", zap.Error(err))
		return eris.Wrap(err, "analysis: set methods")
	}
	r.fields["methods"] = enc
	return nil
}

// SetResults stores the headline result and the result metrics as a
// JSON-encoded string. A non-mapping metrics value is rejected the same way
// SetMethods rejects one, and neither field is set.
func (r *Record) SetResults(headline string, metrics any) error {
	enc, err := encodeMapping(metrics)
	if err != nil {
		zap.L().Error("result metrics must be a mapping", zap.Error(err))
		return eris.Wrap(err, "analysis: set results")
	}
	r.fields["result"] = headline
	r.fields["result_metrics"] = enc
	return nil
}

// SetServerRecords files sampleID under the records field for server,
// replacing any previous value with the one-element list [sampleID].
func (r *Record) SetServerRecords(sampleID string, server Server) error {
	if !server.Valid() {
		zap.L().Error("unknown server identity", zap.String("server", string(server)))
		return eris.Errorf("analysis: unknown server %q", server)
	}
	r.fields[server.recordsField()] = []string{sampleID}
	return nil
}

// ValidateRequiredFields checks that every required field is present and
// that at least one output field (report, outputs) is set. Each violation
// is logged; the returned flag is true when validation FAILED. Validation
// is advisory: the write paths log and proceed.
func (r *Record) ValidateRequiredFields() bool {
	failed := false

	var missing []string
	for _, f := range requiredFields {
		if _, ok := r.fields[f]; !ok {
			missing = append(missing, f)
		}
	}
	if len(missing) > 0 {
		zap.L().Error("missing required fields", zap.Strings("fields", missing))
		failed = true
	}

	hasOutput := false
	for _, f := range outputFields {
		if _, ok := r.fields[f]; ok {
			hasOutput = true
			break
		}
	}
	if !hasOutput {
		zap.L().Error("fields must contain one of", zap.Strings("fields", outputFields))
		failed = true
	}

	return failed
}

// applyFields filters an inbound field mapping against the closed key set
// and applies the keys that pass. Rejected keys are logged together and
// never applied. Returns true when any key was rejected.
func (r *Record) applyFields(in map[string]any) bool {
	var invalid []string
	for k, v := range in {
		if _, ok := validFields[k]; ok {
			if _, ok := stringListFields[k]; ok {
				v = normalizeStringList(v)
			}
			r.fields[k] = v
		} else {
			invalid = append(invalid, k)
		}
	}
	if len(invalid) > 0 {
		sort.Strings(invalid)
		zap.L().Error("invalid attribute in onyx analysis", zap.Strings("fields", invalid))
		return true
	}
	return false
}

// normalizeStringList converts a JSON-decoded []any of strings to []string.
// Values of any other shape pass through unchanged.
func normalizeStringList(v any) any {
	items, ok := v.([]any)
	if !ok {
		return v
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		s, ok := item.(string)
		if !ok {
			return v
		}
		out = append(out, s)
	}
	return out
}

// encodeMapping JSON-encodes v, accepting only mapping types. A typed nil
// map is rejected like any non-mapping: it would encode to "null".
func encodeMapping(v any) (string, error) {
	rv := reflect.ValueOf(v)
	if v == nil || rv.Kind() != reflect.Map || rv.IsNil() {
		return "", eris.Errorf("value of type %T is not a mapping", v)
	}
	data, err := json.Marshal(v)
	if err != nil {
		return "", eris.Wrap(err, "encode mapping")
	}
	return string(data), nil
}
