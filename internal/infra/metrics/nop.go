package metrics

// NopMetrics discards everything. Used by tests and the operator CLI.
type NopMetrics struct{}

var _ Recorder = (*NopMetrics)(nil)

// NewNop creates a new no-op recorder.
func NewNop() *NopMetrics {
	return &NopMetrics{}
}

func (n *NopMetrics) RecordCycle(_, _ string, _ float64) {}
func (n *NopMetrics) AddPairsFormed(_ int)               {}
func (n *NopMetrics) SetUnpaired(_ int)                  {}
func (n *NopMetrics) IncRematch(_ string)                {}
func (n *NopMetrics) IncFeedbackResponse(_ string)       {}
func (n *NopMetrics) AddFeedbackExpired(_ int)           {}
func (n *NopMetrics) IncFeedbackMismatch()               {}
func (n *NopMetrics) IncAttrition()                      {}
func (n *NopMetrics) IncNotifierFailure(_ string)        {}
