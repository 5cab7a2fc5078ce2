package skill

import (
	"net/netip"
	"net/url"
	"regexp"
	"strings"
)

// MaxTargetLength bounds targets and string parameters.
const MaxTargetLength = 255

// Characters with meaning to a POSIX shell. Arguments never pass through a
// shell; rejecting them keeps a misconfigured skill from becoming one.
const (
	shellMeta = " \t;&|`$()<>\\'\"*?[]{}!#~^"
	urlMeta   = " \t;|`$()<>\\'\"{}^"
)

var labelRE = regexp.MustCompile(`^[A-Za-z0-9]([A-Za-z0-9-]{0,61}[A-Za-z0-9])?$`)

func knownTarget(c TargetClass) bool {
	switch c {
	case TargetHostname, TargetIP, TargetCIDR, TargetHostOrCIDR, TargetURL:
		return true
	}
	return false
}

func metaFor(c TargetClass) string {
	if c == TargetURL {
		return urlMeta
	}
	return shellMeta
}

// firstForbidden returns the first control or listed character in s.
func firstForbidden(s, set string) (rune, bool) {
	for _, r := range s {
		if r < 0x20 || r == 0x7f || strings.ContainsRune(set, r) {
			return r, true
		}
	}
	return 0, false
}

func isHostname(s string) bool {
	s = strings.TrimSuffix(s, ".")
	if s == "" || len(s) > 253 {
		return false
	}
	labels := strings.Split(s, ".")
	for _, label := range labels {
		if !labelRE.MatchString(label) {
			return false
		}
	}
	// An all-numeric top label is a malformed address, not a name.
	return strings.Trim(labels[len(labels)-1], "0123456789") != ""
}

func isIP(s string) bool {
	addr, err := netip.ParseAddr(s)
	return err == nil && addr.Zone() == ""
}

func isCIDR(s string) bool {
	_, err := netip.ParsePrefix(s)
	return err == nil
}

func isURL(s string) bool {
	u, err := url.Parse(s)
	if err != nil || !u.IsAbs() || u.User != nil || u.Opaque != "" {
		return false
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return false
	}
	host := u.Hostname()
	return host != "" && (isHostname(host) || isIP(host))
}

// checkTarget validates the syntax of target for class c.
func checkTarget(c TargetClass, target string) bool {
	switch c {
	case TargetHostname:
		return isHostname(target)
	case TargetIP:
		return isIP(target)
	case TargetCIDR:
		return isCIDR(target)
	case TargetHostOrCIDR:
		return isIP(target) || isCIDR(target) || isHostname(target)
	case TargetURL:
		return isURL(target)
	}
	return false
}
