// Package privacy keeps client addresses out of logs and exported events.
package privacy

import (
	"fmt"
	"net"
)

// AnonymizeIP masks an address to its /24 (IPv4) or /48 (IPv6) network.
// "192.168.1.47" becomes "192.168.1.0", "2001:db8:85a3::8a2e:370:7334" becomes "2001:0db8:85a3::".
//
// Returns "unknown" for empty or unknown client keys and "invalid" for anything unparseable.
func AnonymizeIP(ip string) string {
	if ip == "" || ip == "unknown" {
		return "unknown"
	}

	parsed := net.ParseIP(ip)
	if parsed == nil {
		return "invalid"
	}

	if v4 := parsed.To4(); v4 != nil {
		return fmt.Sprintf("%d.%d.%d.0", v4[0], v4[1], v4[2])
	}

	// first 6 bytes = /48
	return fmt.Sprintf("%02x%02x:%02x%02x:%02x%02x::",
		parsed[0], parsed[1],
		parsed[2], parsed[3],
		parsed[4], parsed[5])
}

// AnonymizeKeys masks a list of client keys, preserving order.
func AnonymizeKeys(keys []string) []string {
	out := make([]string, len(keys))
	for i, k := range keys {
		out[i] = AnonymizeIP(k)
	}
	return out
}
