package models

import (
	"net/http"
	"time"
)

// Stage names a pipeline step. Stages run in the order listed.
type Stage string

const (
	StageBlockCheck      Stage = "block_check"
	StageDDoSCheck       Stage = "ddos_check"
	StageRateLimitCheck  Stage = "rate_limit_check"
	StageInputValidation Stage = "input_validation"
	StageAnomalyCheck    Stage = "anomaly_check"
	StageAllow           Stage = "allow"
)

// Stable client-facing denial reasons.
const (
	ReasonBlocked            = "IP address is blocked"
	ReasonDDoS               = "Too many requests - potential DDoS detected"
	ReasonRateLimited        = "Rate limit exceeded"
	ReasonUnsupportedType    = "Unsupported content type"
	ReasonBodyTooLarge       = "Request body too large"
	ReasonMalformedJSON      = "Malformed JSON body"
	ReasonXSS                = "XSS attempt detected"
	ReasonSQLInjection       = "SQL injection attempt detected"
	ReasonSuspiciousActivity = "Suspicious activity detected"
)

// Decision is the pipeline verdict for one request.
type Decision struct {
	Allowed    bool
	Reason     string
	Status     int
	Code       string
	Stage      Stage
	RetryAfter time.Duration
	// FailOpen marks an allow produced because a dependency or stage failed.
	FailOpen bool
	Event    *SecurityEvent
}

// Allow returns the default decision for a request that passed every stage.
func Allow() *Decision {
	return &Decision{Allowed: true, Status: http.StatusOK, Stage: StageAllow}
}

// Deny builds a denial at stage with a client-safe reason.
func Deny(stage Stage, status int, code, reason string) *Decision {
	return &Decision{Allowed: false, Reason: reason, Status: status, Code: code, Stage: stage}
}
