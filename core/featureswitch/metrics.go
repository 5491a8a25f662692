package featureswitch

// Resolution outcomes reported to Metrics.
const (
	OutcomeReady    = "ready"
	OutcomeDegraded = "degraded"
	OutcomeBypass   = "bypass"
	OutcomeStale    = "stale"
	OutcomeCanceled = "canceled"
)

// Metrics captures gate resolution metrics.
type Metrics interface {
	IncResolutions(outcome string)
	ObserveFetch(durationSeconds float64, failed bool)
	SetSessions(n int)
}

// NoopMetrics implements Metrics without emitting anything.
type NoopMetrics struct{}

func (NoopMetrics) IncResolutions(string)      {}
func (NoopMetrics) ObserveFetch(float64, bool) {}
func (NoopMetrics) SetSessions(int)            {}
