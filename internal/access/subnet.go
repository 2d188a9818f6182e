package access

import (
	"net/netip"
	"strconv"
	"strings"

	"github.com/stemsi/exstem-quiz/internal/model"
)

// SubnetRule restricts access to a list of addresses.
type SubnetRule struct {
	base
	subnet   string
	remoteIP string
}

// NewSubnetRule returns nil when the quiz has no subnet restriction.
func NewSubnetRule(policy model.EffectivePolicy, remoteIP string) *SubnetRule {
	if strings.TrimSpace(policy.Subnet) == "" {
		return nil
	}
	return &SubnetRule{subnet: policy.Subnet, remoteIP: remoteIP}
}

func (r *SubnetRule) Name() string { return "ipaddress" }

func (r *SubnetRule) PreventAccess(int64) string {
	if AddressInSubnet(r.remoteIP, r.subnet) {
		return ""
	}
	return "This quiz is only accessible from certain locations, and this computer is not on the allowed list."
}

// AddressInSubnet matches addr against a comma-separated list whose entries are
// CIDR blocks (10.0.0.0/8), exact addresses, dotted prefixes (172.16.) or
// last-octet ranges (10.1.2.3-10).
func AddressInSubnet(addr, list string) bool {
	ip, err := netip.ParseAddr(strings.TrimSpace(addr))
	if err != nil {
		return false
	}
	ip = ip.Unmap()
	for _, entry := range strings.Split(list, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		if matchEntry(ip, entry) {
			return true
		}
	}
	return false
}

func matchEntry(ip netip.Addr, entry string) bool {
	if strings.Contains(entry, "/") {
		prefix, err := netip.ParsePrefix(entry)
		if err != nil {
			return false
		}
		return prefix.Masked().Contains(ip)
	}
	if exact, err := netip.ParseAddr(entry); err == nil {
		return exact.Unmap() == ip
	}
	if ip.Is4() && strings.Contains(entry, "-") {
		return matchRange(ip, entry)
	}
	if ip.Is4() {
		prefix := strings.TrimSuffix(entry, ".") + "."
		return strings.HasPrefix(ip.String()+".", prefix)
	}
	return false
}

// matchRange handles a.b.c.x-y, inclusive in the last octet.
func matchRange(ip netip.Addr, entry string) bool {
	startStr, endStr, _ := strings.Cut(entry, "-")
	start, err := netip.ParseAddr(startStr)
	if err != nil || !start.Is4() {
		return false
	}
	end, err := strconv.Atoi(endStr)
	if err != nil || end < 0 || end > 255 {
		return false
	}
	s, a := start.As4(), ip.As4()
	if s[0] != a[0] || s[1] != a[1] || s[2] != a[2] {
		return false
	}
	return int(a[3]) >= int(s[3]) && int(a[3]) <= end
}
