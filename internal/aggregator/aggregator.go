package aggregator

// Aggregator owns the two-level count table for one export run: patient id
// to event type to number of events seen. It is the only mutable state in
// the pipeline, and its memory grows with the number of distinct
// (patient, event type) pairs, never with the number of rows consumed.
//
// The baseline pipeline has exactly one writer, so the Aggregator does no
// locking. A concurrent variant would give each worker its own Aggregator
// and combine them with Merge at the end of the run.
type Aggregator struct {
	patients map[string]map[string]uint64
	totals   map[string]uint64
}

// New creates an empty Aggregator.
func New() *Aggregator {
	return &Aggregator{
		patients: make(map[string]map[string]uint64),
		totals:   make(map[string]uint64),
	}
}

// Increment records one event for the given patient and event type. This is
// the sole mutation applied per parsed row: O(1) amortized, allocating a
// patient bucket only on that patient's first event. Unknown event types are
// counted like any other; the category set is open.
func (a *Aggregator) Increment(patientID, eventType string) {
	byType, ok := a.patients[patientID]
	if !ok {
		byType = make(map[string]uint64)
		a.patients[patientID] = byType
	}
	byType[eventType]++
	a.totals[eventType]++
}

// Merge folds the counts of another Aggregator into this one by addition.
// Addition commutes, so merging per-file or per-worker tables in any order
// yields the same result.
func (a *Aggregator) Merge(other *Aggregator) {
	for patientID, byType := range other.patients {
		dst, ok := a.patients[patientID]
		if !ok {
			dst = make(map[string]uint64, len(byType))
			a.patients[patientID] = dst
		}
		for eventType, n := range byType {
			dst[eventType] += n
			a.totals[eventType] += n
		}
	}
}

// Pairs returns the number of distinct (patient, event type) pairs observed
// so far. This, not the row count, is what bounds the Aggregator's memory.
func (a *Aggregator) Pairs() int {
	n := 0
	for _, byType := range a.patients {
		n += len(byType)
	}
	return n
}

// Snapshot returns the current state as a Report. The read is pure: the
// Aggregator is not mutated, repeated calls without intervening increments
// return equal reports, and the returned maps are deep copies so callers
// cannot corrupt the table.
func (a *Aggregator) Snapshot() *Report {
	patients := make(map[string]map[string]uint64, len(a.patients))
	for patientID, byType := range a.patients {
		counts := make(map[string]uint64, len(byType))
		for eventType, n := range byType {
			counts[eventType] = n
		}
		patients[patientID] = counts
	}

	totals := make(map[string]uint64, len(a.totals))
	for eventType, n := range a.totals {
		totals[eventType] = n
	}

	return &Report{Patients: patients, Totals: totals}
}
