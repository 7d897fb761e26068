// Package privacy reduces personal data before it reaches logs.
package privacy

import (
	"net"
	"strings"
)

// AnonymizeIP truncates IPv4 to /24 and IPv6 to /48. Anything unparseable is
// returned as "invalid" so raw input never reaches the log line.
func AnonymizeIP(ip string) string {
	parsed := net.ParseIP(strings.TrimSpace(ip))
	if parsed == nil {
		if ip == "" || ip == "unknown" {
			return ip
		}
		return "invalid"
	}
	if v4 := parsed.To4(); v4 != nil {
		return v4.Mask(net.CIDRMask(24, 32)).String()
	}
	return parsed.Mask(net.CIDRMask(48, 128)).String()
}

// MaskEmail keeps the first character of the local part and the domain.
func MaskEmail(email string) string {
	local, domain, ok := strings.Cut(email, "@")
	if !ok || local == "" {
		return ""
	}
	return local[:1] + "***@" + domain
}
