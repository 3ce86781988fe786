// Package patterns canonicalizes user-agents, IPs, and paths into stable
// pattern IDs. The same rules are used by the fast-path reputation lookup and
// by the long-term maintenance service — if they ever diverged, a client
// would earn reputation under one ID and be looked up under another.
package patterns

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net"
	"regexp"
	"sort"
	"strings"
)

var browserTokens = []string{"chrome", "firefox", "safari", "edge"}
var osTokens = []string{"windows", "macos", "mac os", "linux", "android", "ios", "iphone", "ipad"}
var automationTokens = []string{"bot", "crawler", "spider", "scraper", "headless", "python", "curl", "wget"}

// osAliases folds UA spellings onto a single OS family token.
var osAliases = map[string]string{
	"mac os": "macos",
	"iphone": "ios",
	"ipad":   "ios",
}

var (
	guidRE    = regexp.MustCompile(`[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}`)
	numSegRE  = regexp.MustCompile(`/\d+(/|$)`)
)

// hash16 returns the first 16 hex chars of SHA-256.
func hash16(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])[:16]
}

// lengthBucket classifies the UA string length. Version churn inside a UA
// never moves it more than one bucket, so pattern IDs survive point releases.
func lengthBucket(n int) string {
	switch {
	case n == 0:
		return "len:tiny"
	case n < 20:
		return "len:tiny"
	case n < 60:
		return "len:short"
	case n < 150:
		return "len:normal"
	case n < 300:
		return "len:long"
	default:
		return "len:huge"
	}
}

// NormalizeUA reduces a user-agent to its ordered indicator set:
// browser family, OS family, automation tokens, length bucket.
// Two UAs differing only in version numbers collapse to the same string.
func NormalizeUA(ua string) string {
	lower := strings.ToLower(ua)
	set := map[string]bool{}

	for _, b := range browserTokens {
		if strings.Contains(lower, b) {
			set["browser:"+b] = true
		}
	}
	// Safari appears in almost every WebKit UA; only count it when Chrome
	// and Edge are absent.
	if set["browser:chrome"] || set["browser:edge"] {
		delete(set, "browser:safari")
	}

	for _, o := range osTokens {
		if strings.Contains(lower, o) {
			canonical := o
			if alias, ok := osAliases[o]; ok {
				canonical = alias
			}
			set["os:"+canonical] = true
		}
	}

	for _, a := range automationTokens {
		if strings.Contains(lower, a) {
			set["auto:"+a] = true
		}
	}

	set[lengthBucket(len(ua))] = true

	indicators := make([]string, 0, len(set))
	for k := range set {
		indicators = append(indicators, k)
	}
	sort.Strings(indicators)
	return strings.Join(indicators, ",")
}

// UAPatternID returns `ua:<hash16>` of the normalized user-agent.
func UAPatternID(ua string) string {
	return "ua:" + hash16(NormalizeUA(ua))
}

// IPPatternID returns `ip:a.b.c.0/24` for IPv4 and `ip:g1:g2:g3::/48` for
// IPv6. Unparseable input hashes to a stable opaque bucket so it still earns
// reputation without poisoning a real network's record.
func IPPatternID(ipStr string) string {
	ip := net.ParseIP(ipStr)
	if ip == nil {
		return "ip:unknown/" + hash16(ipStr)
	}
	if v4 := ip.To4(); v4 != nil {
		return fmt.Sprintf("ip:%d.%d.%d.0/24", v4[0], v4[1], v4[2])
	}
	masked := ip.Mask(net.CIDRMask(48, 128))
	return fmt.Sprintf("ip:%x:%x:%x::/48",
		uint16(masked[0])<<8|uint16(masked[1]),
		uint16(masked[2])<<8|uint16(masked[3]),
		uint16(masked[4])<<8|uint16(masked[5]))
}

// NormalizePath replaces GUIDs with {guid} and purely numeric segments with
// {id} so that /user/123/orders and /user/456/orders share a pattern.
func NormalizePath(path string) string {
	out := guidRE.ReplaceAllString(path, "{guid}")
	// Repeated application handles adjacent numeric segments (/1/2/3).
	for {
		next := numSegRE.ReplaceAllString(out, "/{id}$1")
		if next == out {
			return out
		}
		out = next
	}
}

// CombinedPatternID returns `combined:<hash16>` of the (ua, ip, path)
// normalization triple.
func CombinedPatternID(ua, ip, path string) string {
	return "combined:" + hash16(NormalizeUA(ua)+"|"+IPPatternID(ip)+"|"+NormalizePath(path))
}

// Signature derives the sliding-window store key for a client:
// `{clientIp}:{shortHash(userAgent)}`.
func Signature(ip, ua string) string {
	return ip + ":" + hash16(ua)[:8]
}
