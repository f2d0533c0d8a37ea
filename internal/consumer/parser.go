package consumer

import (
	"fmt"
	"strings"

	"github.com/medstream-labs/export-analytics-cli/internal/domain"
)

// Column names the aggregation key is read from. Every other column is
// accepted and ignored, so schema additions never break older clients.
const (
	columnPatientID = "patient_id"
	columnEventType = "event_type"
)

// MalformedRowError reports a line that cannot produce a valid event record:
// a header missing the key columns, a row whose field count disagrees with
// the header, an empty key field, or a CSV syntax error. Lines are 1-based
// and include the header line.
type MalformedRowError struct {
	Line   int
	Reason string
	Err    error
}

func (e *MalformedRowError) Error() string {
	return fmt.Sprintf("malformed row at line %d: %s", e.Line, e.Reason)
}

func (e *MalformedRowError) Unwrap() error {
	return e.Err
}

// RowParser converts raw CSV records into event records using the column
// layout declared by the file's header. It is a pure function of
// (header, record): no state beyond the column indexes, no side effects.
type RowParser struct {
	fields       int
	patientIDCol int
	eventTypeCol int
}

// NewRowParser builds a parser for the given header. The header must declare
// the patient_id and event_type columns, in any order; a header without them
// can never yield a valid record, so it is rejected as malformed up front.
// A UTF-8 BOM on the first column name is tolerated.
func NewRowParser(header []string) (*RowParser, error) {
	p := &RowParser{fields: len(header), patientIDCol: -1, eventTypeCol: -1}

	for i, name := range header {
		if i == 0 {
			name = strings.TrimPrefix(name, "\ufeff")
		}
		switch strings.TrimSpace(name) {
		case columnPatientID:
			p.patientIDCol = i
		case columnEventType:
			p.eventTypeCol = i
		}
	}

	if p.patientIDCol < 0 || p.eventTypeCol < 0 {
		return nil, &MalformedRowError{
			Line:   1,
			Reason: fmt.Sprintf("header %v does not declare %s and %s", header, columnPatientID, columnEventType),
		}
	}

	return p, nil
}

// Parse converts one data record into an EventRecord. The record must carry
// exactly as many fields as the header declared and both key fields must be
// non-empty; anything else is malformed. line is the record's 1-based line
// number, used for error reporting only.
func (p *RowParser) Parse(record []string, line int) (domain.EventRecord, error) {
	if len(record) != p.fields {
		return domain.EventRecord{}, &MalformedRowError{
			Line:   line,
			Reason: fmt.Sprintf("header declares %d fields, row has %d", p.fields, len(record)),
		}
	}

	rec := domain.EventRecord{
		PatientID: record[p.patientIDCol],
		EventType: record[p.eventTypeCol],
	}

	if rec.PatientID == "" {
		return domain.EventRecord{}, &MalformedRowError{Line: line, Reason: "empty " + columnPatientID}
	}
	if rec.EventType == "" {
		return domain.EventRecord{}, &MalformedRowError{Line: line, Reason: "empty " + columnEventType}
	}

	return rec, nil
}
