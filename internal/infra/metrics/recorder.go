// Package metrics exposes the counters and histograms the pairing services emit.
package metrics

// Recorder is the metrics surface consumed by the application services.
type Recorder interface {
	// RecordCycle observes one cycle run. trigger is "scheduled" or "manual";
	// result is "success", "conflict" or "failure".
	RecordCycle(trigger, result string, seconds float64)
	AddPairsFormed(n int)
	SetUnpaired(n int)
	// IncRematch counts on-demand rematches by result ("paired" or "pooled").
	IncRematch(result string)
	IncFeedbackResponse(outcome string)
	AddFeedbackExpired(n int)
	IncFeedbackMismatch()
	IncAttrition()
	// IncNotifierFailure counts failed deliveries by kind (announce, dm, prompt).
	IncNotifierFailure(kind string)
}
