package handler

import (
	"fmt"
	"net/netip"
	"strings"
	"time"

	"edgeguard/internal/security/models"
	dErrors "edgeguard/pkg/domain-errors"
	"edgeguard/pkg/platform/validation"
)

// BlockRequest is the body of POST /ip/block. A missing durationHours
// blocks until an operator unblocks.
type BlockRequest struct {
	IP            string `json:"ip" validate:"required,ip"`
	Reason        string `json:"reason" validate:"required"`
	DurationHours *int   `json:"durationHours,omitempty" validate:"omitempty,min=1,max=8760"`
}

func (r *BlockRequest) Normalize() {
	r.IP = canonicalIP(r.IP)
	r.Reason = strings.TrimSpace(r.Reason)
}

func (r *BlockRequest) Validate() error {
	return validation.CheckStringLength("reason", r.Reason, validation.MaxReasonLength)
}

func (r *BlockRequest) Duration() time.Duration {
	if r.DurationHours == nil {
		return 0
	}
	return time.Duration(*r.DurationHours) * time.Hour
}

// UnblockRequest is the body of POST /ip/unblock.
type UnblockRequest struct {
	IP string `json:"ip" validate:"required,ip"`
}

func (r *UnblockRequest) Normalize() {
	r.IP = canonicalIP(r.IP)
}

// ReportRequest is the body of POST /compliance/report.
type ReportRequest struct {
	ReportType string    `json:"reportType" validate:"required,oneof=gdpr pci_dss soc2 security"`
	StartDate  time.Time `json:"startDate" validate:"required"`
	EndDate    time.Time `json:"endDate" validate:"required"`
}

func (r *ReportRequest) Normalize() {
	r.ReportType = strings.ToLower(strings.TrimSpace(r.ReportType))
}

func (r *ReportRequest) Validate() error {
	if !r.EndDate.After(r.StartDate) {
		return dErrors.New(dErrors.CodeValidation, "endDate must be after startDate")
	}
	if r.EndDate.Sub(r.StartDate) > validation.MaxReportDays*24*time.Hour {
		return dErrors.New(dErrors.CodeValidation, fmt.Sprintf("report period exceeds %d days", validation.MaxReportDays))
	}
	return nil
}

func (r *ReportRequest) Range() models.TimeRange {
	return models.TimeRange{Start: r.StartDate, End: r.EndDate}
}

// canonicalIP rewrites parseable addresses to their canonical form so
// "::FFFF:10.0.0.1" and "10.0.0.1" name the same block key. Anything else is
// left for the validator to reject.
func canonicalIP(raw string) string {
	raw = strings.TrimSpace(raw)
	addr, err := netip.ParseAddr(raw)
	if err != nil {
		return raw
	}
	return addr.Unmap().String()
}

type BlockResponse struct {
	Blocked   bool       `json:"blocked"`
	IP        string     `json:"ip"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

type UnblockResponse struct {
	Unblocked  bool   `json:"unblocked"`
	IP         string `json:"ip"`
	WasBlocked bool   `json:"was_blocked"`
}

type BlockedListResponse struct {
	Blocked []models.BlockEntry `json:"blocked"`
	Count   int                 `json:"count"`
}
