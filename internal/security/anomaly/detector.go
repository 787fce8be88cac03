// Package anomaly scores requests for automation and endpoint scanning
// using the client's recent audit history.
package anomaly

import (
	"fmt"
	"time"

	"edgeguard/internal/security/models"
	dErrors "edgeguard/pkg/domain-errors"
)

type Config struct {
	ScanWindow            time.Duration
	ScanRequestThreshold  int
	ScanDistinctEndpoints int
}

// Assessment is the detector's verdict. A zero Assessment means nothing
// suspicious was seen.
type Assessment struct {
	Flagged           bool
	Severity          models.Severity
	BlockRecommended  bool
	Reasons           []string
	UserAgent         string
	RecentRequests    int
	DistinctEndpoints int
}

// Details converts the assessment into event details.
func (a Assessment) Details() models.EventDetails {
	return models.AnomalyInfo(models.AnomalyDetails{
		Reasons:           a.Reasons,
		UserAgent:         a.UserAgent,
		RecentRequests:    a.RecentRequests,
		DistinctEndpoints: a.DistinctEndpoints,
		BlockRecommended:  a.BlockRecommended,
	})
}

func (a *Assessment) flag(sev models.Severity, reason string) {
	a.Flagged = true
	a.Severity = a.Severity.Max(sev)
	a.Reasons = append(a.Reasons, reason)
}

type Detector struct {
	cfg Config
}

func New(cfg Config) (*Detector, error) {
	if cfg.ScanWindow <= 0 {
		return nil, dErrors.Configuration(fmt.Sprintf("anomaly scan window must be positive, got %s", cfg.ScanWindow))
	}
	if cfg.ScanRequestThreshold <= 0 || cfg.ScanDistinctEndpoints <= 0 {
		return nil, dErrors.Configuration("anomaly scan thresholds must be positive")
	}
	return &Detector{cfg: cfg}, nil
}

// Window is how far back Assess looks; callers fetch history for it.
func (d *Detector) Window() time.Duration {
	return d.cfg.ScanWindow
}

// Assess scores req against history, the key's audit entries. Entries
// outside (now-ScanWindow, now] are ignored. The current request counts
// towards the scan thresholds.
func (d *Detector) Assess(req *models.RequestDescriptor, history []models.AuditEntry, now time.Time) Assessment {
	var a Assessment

	client := ClassifyUserAgent(req.UserAgent)
	if client.Automation {
		missing := 0
		if req.Headers.Get("Accept") == "" {
			missing++
		}
		if req.Headers.Get("Accept-Language") == "" {
			missing++
		}
		switch missing {
		case 1:
			a.flag(models.SeverityLow, "automated client with incomplete browser headers")
		case 2:
			a.flag(models.SeverityMedium, "automated client without browser headers")
		}
		if missing > 0 {
			a.UserAgent = client.Name
		}
	}

	cutoff := now.Add(-d.cfg.ScanWindow)
	endpoints := map[string]struct{}{req.Path: {}}
	count := 1
	for _, entry := range history {
		if !entry.Timestamp.After(cutoff) || entry.Timestamp.After(now) {
			continue
		}
		count++
		endpoints[entry.Endpoint] = struct{}{}
	}
	a.RecentRequests = count
	a.DistinctEndpoints = len(endpoints)

	if count > d.cfg.ScanRequestThreshold && len(endpoints) > d.cfg.ScanDistinctEndpoints {
		a.flag(models.SeverityHigh, fmt.Sprintf("endpoint scanning: %d requests across %d endpoints in %s",
			count, len(endpoints), d.cfg.ScanWindow))
		a.BlockRecommended = true
	}
	return a
}
