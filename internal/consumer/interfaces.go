package consumer

// EventCounter defines the aggregation seam the stream consumer folds parsed
// records into. The aggregator package satisfies it; tests substitute mocks.
type EventCounter interface {
	Increment(patientID, eventType string)
}
