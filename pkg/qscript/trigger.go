package qscript

import (
	"fmt"
	"net/http"
	"net/netip"
	"strings"
	"time"
)

// Methods accepted as a trigger's HttpMethod.
var Methods = []string{
	http.MethodGet,
	http.MethodPost,
	http.MethodPut,
	http.MethodPatch,
	http.MethodDelete,
}

// ParseClock parses HH:MM or HH:MM:SS into an offset from midnight.
func ParseClock(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	for _, layout := range []string{"15:04:05", "15:04"} {
		if t, err := time.Parse(layout, s); err == nil {
			return time.Duration(t.Hour())*time.Hour +
				time.Duration(t.Minute())*time.Minute +
				time.Duration(t.Second())*time.Second, nil
		}
	}
	return 0, fmt.Errorf("invalid time of day %q, want HH:MM or HH:MM:SS", s)
}

// Contains reports whether now's local time of day falls inside the frame.
// Start is inclusive and End exclusive. A frame whose End is before its Start
// wraps past midnight; Start equal to End covers the whole day.
func (f TimeFrame) Contains(now time.Time) (bool, error) {
	start, err := ParseClock(f.Start)
	if err != nil {
		return false, err
	}
	end, err := ParseClock(f.End)
	if err != nil {
		return false, err
	}

	h, m, s := now.Clock()
	tod := time.Duration(h)*time.Hour + time.Duration(m)*time.Minute + time.Duration(s)*time.Second

	switch {
	case start == end:
		return true, nil
	case start < end:
		return tod >= start && tod < end, nil
	default:
		return tod >= start || tod < end, nil
	}
}

func (f TimeFrame) String() string {
	return f.Start + "-" + f.End
}

// ParsePrefix parses an allowlist entry, either a single address or a CIDR
// prefix. Single addresses become full-length prefixes.
func ParsePrefix(entry string) (netip.Prefix, error) {
	entry = strings.TrimSpace(entry)
	if strings.Contains(entry, "/") {
		p, err := netip.ParsePrefix(entry)
		if err != nil {
			return netip.Prefix{}, err
		}
		return p.Masked(), nil
	}
	addr, err := netip.ParseAddr(entry)
	if err != nil {
		return netip.Prefix{}, err
	}
	addr = addr.Unmap()
	return netip.PrefixFrom(addr, addr.BitLen()), nil
}

// AllowsAddr reports whether addr matches an entry of the IP allowlist.
// Unparseable entries never match.
func (t *Trigger) AllowsAddr(addr netip.Addr) bool {
	addr = addr.Unmap()
	for _, entry := range t.IpAddresses {
		p, err := ParsePrefix(entry)
		if err != nil {
			continue
		}
		if p.Contains(addr) {
			return true
		}
	}
	return false
}
