package audit

import (
	"strings"

	"edgeguard/internal/audit/sanitize"
	"edgeguard/internal/security/models"
)

var (
	gdprPathMarkers    = []string{"/user", "/profile", "/account", "/conversation", "/export"}
	paymentPathMarkers = []string{"/payment", "/billing", "/checkout", "/card"}
	soc2PathMarkers    = []string{"/admin", "/security", "/ip/", "/compliance"}
)

// ComplianceFlags tags a request by the path it touched and the sensitive
// fields it carried before redaction. Flags are returned in a fixed order.
func ComplianceFlags(path string, redacted sanitize.Report) []string {
	lower := strings.ToLower(path)
	flags := make([]string, 0, 3)

	if containsAny(lower, gdprPathMarkers) {
		flags = append(flags, models.FlagGDPRDataAccess)
	}
	if containsAny(lower, paymentPathMarkers) || redacted.HasKey("card") || redacted.HasKey("cvv") {
		flags = append(flags, models.FlagPCIDSSPaymentData)
	}
	if containsAny(lower, soc2PathMarkers) || len(redacted.SensitiveKeys) > 0 {
		flags = append(flags, models.FlagSOC2SensitiveData)
	}
	return flags
}

func containsAny(s string, markers []string) bool {
	for _, m := range markers {
		if strings.Contains(s, m) {
			return true
		}
	}
	return false
}
