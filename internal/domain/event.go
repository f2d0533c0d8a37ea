package domain

// EventRecord represents one parsed row of an export CSV: the patient and
// event category the aggregation counts by. Export rows carry more columns
// (event_time, value, ...) but everything outside the key pair is ignored.
//
// A record is valid only when both fields are non-empty; the row parser
// never emits an invalid one. Records are transient: folded into the
// aggregator and dropped, never retained.
type EventRecord struct {
	PatientID string
	EventType string
}
