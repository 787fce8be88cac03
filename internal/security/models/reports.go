package models

import (
	"time"

	dErrors "edgeguard/pkg/domain-errors"
)

// TimeRange is a half-open interval [Start, End).
type TimeRange struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// LastHours returns the range ending at now and spanning hours.
func LastHours(now time.Time, hours int) TimeRange {
	return TimeRange{Start: now.Add(-time.Duration(hours) * time.Hour), End: now}
}

func (r TimeRange) Contains(t time.Time) bool {
	return !t.Before(r.Start) && t.Before(r.End)
}

func (r TimeRange) Duration() time.Duration {
	return r.End.Sub(r.Start)
}

// Midpoint splits the range for trend comparison.
func (r TimeRange) Midpoint() time.Time {
	return r.Start.Add(r.Duration() / 2)
}

func (r TimeRange) Validate() error {
	if r.Start.IsZero() || r.End.IsZero() {
		return dErrors.New(dErrors.CodeValidation, "time range requires start and end")
	}
	if !r.End.After(r.Start) {
		return dErrors.New(dErrors.CodeValidation, "time range end must be after start")
	}
	return nil
}

type Trend string

const (
	TrendIncreasing Trend = "increasing"
	TrendDecreasing Trend = "decreasing"
	TrendStable     Trend = "stable"
)

type KeyCount struct {
	Key   string `json:"key"`
	Count int    `json:"count"`
}

type ThreatTrend struct {
	Type  EventType `json:"type"`
	Count int       `json:"count"`
	Trend Trend     `json:"trend"`
}

type Percentiles struct {
	P50 float64 `json:"p50"`
	P95 float64 `json:"p95"`
	P99 float64 `json:"p99"`
}

// SecurityMetrics is derived on demand from stored events and audit entries.
type SecurityMetrics struct {
	Range            TimeRange         `json:"range"`
	TotalRequests    int               `json:"total_requests"`
	TotalEvents      int               `json:"total_events"`
	BlockedRequests  int               `json:"blocked_requests"`
	EventsByType     map[EventType]int `json:"events_by_type"`
	EventsBySeverity map[Severity]int  `json:"events_by_severity"`
	TopOffenders     []KeyCount        `json:"top_offenders"`
	TopEndpoints     []KeyCount        `json:"top_endpoints"`
	ResponseTimeMs   Percentiles       `json:"response_time_ms"`
	AvgResponseMs    float64           `json:"avg_response_ms"`
	ErrorRate        float64           `json:"error_rate"`
	Threats          []ThreatTrend     `json:"threats"`
	ComplianceFlags  map[string]int    `json:"compliance_flags"`
	Sink             SinkStats         `json:"sink"`
}

// SinkStats reports the audit pipeline's own health.
type SinkStats struct {
	Queued            int   `json:"queued"`
	Written           int64 `json:"written"`
	Dropped           int64 `json:"dropped"`
	DroppedAfterRetry int64 `json:"dropped_after_retry"`
	Retries           int64 `json:"retries"`
}

type ReportKind string

const (
	ReportGDPR     ReportKind = "gdpr"
	ReportPCIDSS   ReportKind = "pci_dss"
	ReportSOC2     ReportKind = "soc2"
	ReportSecurity ReportKind = "security"
)

func (k ReportKind) IsValid() bool {
	switch k {
	case ReportGDPR, ReportPCIDSS, ReportSOC2, ReportSecurity:
		return true
	}
	return false
}

// Compliance flags attached to audit entries.
const (
	FlagGDPRDataAccess    = "GDPR_DATA_ACCESS"
	FlagPCIDSSPaymentData = "PCI_DSS_PAYMENT_DATA"
	FlagSOC2SensitiveData = "SOC2_SENSITIVE_DATA"
)

// FlagFor returns the audit flag a report kind focuses on, "" for the full security report.
func (k ReportKind) FlagFor() string {
	switch k {
	case ReportGDPR:
		return FlagGDPRDataAccess
	case ReportPCIDSS:
		return FlagPCIDSSPaymentData
	case ReportSOC2:
		return FlagSOC2SensitiveData
	}
	return ""
}

type Violation struct {
	Timestamp   time.Time `json:"timestamp"`
	Type        EventType `json:"type"`
	Severity    Severity  `json:"severity"`
	ClientKey   string    `json:"client_key"`
	Endpoint    string    `json:"endpoint"`
	Description string    `json:"description"`
}

type ReportSummary struct {
	TotalRequests   int     `json:"total_requests"`
	FlaggedRequests int     `json:"flagged_requests"`
	FailedRequests  int     `json:"failed_requests"`
	TotalEvents     int     `json:"total_events"`
	BlockedRequests int     `json:"blocked_requests"`
	CriticalEvents  int     `json:"critical_events"`
	HighEvents      int     `json:"high_events"`
	UniqueClients   int     `json:"unique_clients"`
	ErrorRate       float64 `json:"error_rate"`
}

// ComplianceReport is a derived view; it is never the source of truth.
type ComplianceReport struct {
	ID              string         `json:"id"`
	ReportType      ReportKind     `json:"report_type"`
	Period          TimeRange      `json:"period"`
	GeneratedAt     time.Time      `json:"generated_at"`
	Summary         ReportSummary  `json:"summary"`
	FlagCounts      map[string]int `json:"flag_counts"`
	TopEndpoints    []KeyCount     `json:"top_endpoints"`
	TopOffenders    []KeyCount     `json:"top_offenders"`
	Threats         []ThreatTrend  `json:"threats"`
	Violations      []Violation    `json:"violations"`
	Recommendations []string       `json:"recommendations"`
}
