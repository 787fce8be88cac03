package models

import "time"

type DetailsKind string

const (
	DetailsRateLimit DetailsKind = "rate_limit"
	DetailsDDoS      DetailsKind = "ddos"
	DetailsInput     DetailsKind = "input"
	DetailsAnomaly   DetailsKind = "anomaly"
	DetailsBlock     DetailsKind = "block"
	DetailsError     DetailsKind = "error"
	DetailsExtra     DetailsKind = "extra"
)

// EventDetails is a tagged union: Kind names the one populated variant.
// Extra carries fields no variant models yet.
type EventDetails struct {
	Kind      DetailsKind       `json:"kind"`
	RateLimit *RateLimitDetails `json:"rate_limit,omitempty"`
	DDoS      *DDoSDetails      `json:"ddos,omitempty"`
	Input     *InputDetails     `json:"input,omitempty"`
	Anomaly   *AnomalyDetails   `json:"anomaly,omitempty"`
	Block     *BlockDetails     `json:"block,omitempty"`
	Error     *ErrorDetails     `json:"error,omitempty"`
	Extra     map[string]string `json:"extra,omitempty"`
}

type RateLimitDetails struct {
	Limiter   string    `json:"limiter"` // "window" or "token_bucket"
	Limit     int       `json:"limit"`
	Count     int       `json:"count"`
	WindowMs  int64     `json:"window_ms"`
	ResetAt   time.Time `json:"reset_at"`
	WaitedMs  int64     `json:"waited_ms,omitempty"`
	Remaining float64   `json:"remaining_tokens,omitempty"`
}

type DDoSDetails struct {
	Threshold       int       `json:"threshold"`
	Count           int       `json:"count"`
	WindowMs        int64     `json:"window_ms"`
	BlockDurationMs int64     `json:"block_duration_ms"`
	BlockedUntil    time.Time `json:"blocked_until"`
}

type InputDetails struct {
	Check       string `json:"check"` // content_type, size, json, xss, sql
	Pattern     string `json:"pattern,omitempty"`
	ContentType string `json:"content_type,omitempty"`
	Size        int64  `json:"size,omitempty"`
	Limit       int64  `json:"limit,omitempty"`
	Location    string `json:"location,omitempty"` // body or query
}

type AnomalyDetails struct {
	Reasons           []string `json:"reasons"`
	UserAgent         string   `json:"user_agent,omitempty"`
	RecentRequests    int      `json:"recent_requests,omitempty"`
	DistinctEndpoints int      `json:"distinct_endpoints,omitempty"`
	BlockRecommended  bool     `json:"block_recommended"`
}

type BlockDetails struct {
	Reason    string      `json:"reason"`
	Source    BlockSource `json:"source"`
	Actor     string      `json:"actor,omitempty"`
	ExpiresAt *time.Time  `json:"expires_at,omitempty"`
}

type ErrorDetails struct {
	Stage      string `json:"stage"`
	Dependency string `json:"dependency,omitempty"`
	Message    string `json:"message"`
}

func RateLimitInfo(d RateLimitDetails) EventDetails {
	return EventDetails{Kind: DetailsRateLimit, RateLimit: &d}
}

func DDoSInfo(d DDoSDetails) EventDetails {
	return EventDetails{Kind: DetailsDDoS, DDoS: &d}
}

func InputInfo(d InputDetails) EventDetails {
	return EventDetails{Kind: DetailsInput, Input: &d}
}

func AnomalyInfo(d AnomalyDetails) EventDetails {
	return EventDetails{Kind: DetailsAnomaly, Anomaly: &d}
}

func BlockInfo(d BlockDetails) EventDetails {
	return EventDetails{Kind: DetailsBlock, Block: &d}
}

func ErrorInfo(d ErrorDetails) EventDetails {
	return EventDetails{Kind: DetailsError, Error: &d}
}

func ExtraInfo(fields map[string]string) EventDetails {
	return EventDetails{Kind: DetailsExtra, Extra: fields}
}

// Summary returns a one-line description used in reports.
func (d EventDetails) Summary() string {
	switch d.Kind {
	case DetailsRateLimit:
		return "rate limit exceeded (" + d.RateLimit.Limiter + ")"
	case DetailsDDoS:
		return "request burst over DDoS threshold"
	case DetailsInput:
		if d.Input.Pattern != "" {
			return d.Input.Check + " pattern " + d.Input.Pattern
		}
		return d.Input.Check + " check failed"
	case DetailsAnomaly:
		if len(d.Anomaly.Reasons) > 0 {
			return d.Anomaly.Reasons[0]
		}
		return "anomalous request"
	case DetailsBlock:
		return d.Block.Reason
	case DetailsError:
		return d.Error.Stage + ": " + d.Error.Message
	}
	return ""
}
