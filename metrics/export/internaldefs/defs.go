package internaldefs

import (
	goIssuer "github.com/MrEthical07/goIssuer"
)

// CounterDef maps an engine counter onto an exported metric name.
type CounterDef struct {
	ID   goIssuer.MetricID
	Name string
	Help string
}

// HistogramDef maps an engine histogram onto an exported metric name.
type HistogramDef struct {
	ID   goIssuer.MetricID
	Name string
	Help string
}

// CounterDefs lists every exported counter. Names are stable.
var CounterDefs = []CounterDef{
	{ID: goIssuer.MetricSessionCreated, Name: "goissuer_session_created_total", Help: "Created sessions."},
	{ID: goIssuer.MetricSessionCreateFailure, Name: "goissuer_session_create_failure_total", Help: "Failed session creations."},
	{ID: goIssuer.MetricSessionEvicted, Name: "goissuer_session_evicted_total", Help: "Sessions revoked by the per-user ceiling."},
	{ID: goIssuer.MetricRefreshSuccess, Name: "goissuer_refresh_success_total", Help: "Successful refresh rotations."},
	{ID: goIssuer.MetricRefreshFailure, Name: "goissuer_refresh_failure_total", Help: "Rejected or failed refresh rotations."},
	{ID: goIssuer.MetricRefreshRace, Name: "goissuer_refresh_race_total", Help: "Refresh attempts that lost a concurrent rotation."},
	{ID: goIssuer.MetricValidateSuccess, Name: "goissuer_validate_success_total", Help: "Accepted bearer validations."},
	{ID: goIssuer.MetricValidateFailure, Name: "goissuer_validate_failure_total", Help: "Rejected bearer validations."},
	{ID: goIssuer.MetricValidateRotated, Name: "goissuer_validate_rotated_total", Help: "Bearer validations served by the refresh fallback."},
	{ID: goIssuer.MetricSessionExpired, Name: "goissuer_session_expired_total", Help: "Sessions moved to expired on validation."},
	{ID: goIssuer.MetricSessionRevoked, Name: "goissuer_session_revoked_total", Help: "Explicit session revocations."},
	{ID: goIssuer.MetricKeyRotated, Name: "goissuer_key_rotated_total", Help: "Signing key rotations."},
	{ID: goIssuer.MetricKeyRevoked, Name: "goissuer_key_revoked_total", Help: "Signing key revocations."},
	{ID: goIssuer.MetricStoreFailure, Name: "goissuer_store_failure_total", Help: "Operations failed by an unavailable store."},
}

// HistogramDefs lists every exported histogram.
var HistogramDefs = []HistogramDef{
	{ID: goIssuer.MetricValidateLatency, Name: "goissuer_validate_latency_seconds", Help: "ValidateBearer latency."},
}

// HistogramBounds are the upper bounds, in seconds, of the engine's fixed
// latency buckets.
var HistogramBounds = []string{
	"0.005",
	"0.01",
	"0.025",
	"0.05",
	"0.1",
	"0.25",
	"0.5",
	"+Inf",
}

// NormalizeBuckets copies raw into a fixed array, zero-padding short input.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets turns per-bucket counts into the running totals
// Prometheus expects.
func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
