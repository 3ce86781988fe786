// Package botlist knows who the honest bots are. Verification is two-layer:
// published IP ranges first (cheap, authoritative where vendors publish
// them), then forward-confirmed reverse DNS — the PTR record must land in a
// domain the operator owns AND forward-resolve back to the client IP.
// A UA that claims a crawler identity and fails both checks is a spoof.
package botlist

import (
	"context"
	"net"
	"strings"
	"time"
)

// Verification is the outcome of a bot identity check.
type Verification struct {
	BotName            string `json:"botName"`
	IsVerified         bool   `json:"isVerified"`
	VerificationMethod string `json:"verificationMethod"` // "ip_range" | "fcrdns" | "failed"
}

// Registry is the verified-bot contract the verified_bot contributor
// consumes.
type Registry interface {
	// MatchBotUserAgent reports the canonical bot name a UA claims, if any.
	MatchBotUserAgent(ua string) (string, bool)
	// VerifyBot checks the claimed identity against ranges and FCrDNS.
	VerifyBot(ctx context.Context, ua, ip string) (*Verification, error)
}

// Resolver abstracts DNS so tests can fake PTR/A lookups.
type Resolver interface {
	LookupAddr(ctx context.Context, addr string) ([]string, error)
	LookupIPAddr(ctx context.Context, host string) ([]net.IPAddr, error)
}

type knownBot struct {
	Name        string
	UATokens    []string // any of these in the lowercased UA claims the identity
	CIDRs       []string
	RDNSDomains []string // PTR must end in one of these
	SearchBot   bool
}

// knownBots is the shipped vendor table. CIDRs are representative published
// ranges; operators extend them via LoadRanges.
var knownBots = []knownBot{
	{
		Name:        "Googlebot",
		UATokens:    []string{"googlebot"},
		CIDRs:       []string{"66.249.64.0/19", "64.233.160.0/19", "216.239.32.0/19"},
		RDNSDomains: []string{".googlebot.com", ".google.com"},
		SearchBot:   true,
	},
	{
		Name:        "Bingbot",
		UATokens:    []string{"bingbot", "msnbot"},
		CIDRs:       []string{"40.77.167.0/24", "157.55.39.0/24", "207.46.13.0/24"},
		RDNSDomains: []string{".search.msn.com"},
		SearchBot:   true,
	},
	{
		Name:        "DuckDuckBot",
		UATokens:    []string{"duckduckbot"},
		CIDRs:       []string{"20.191.45.212/32", "40.88.21.235/32"},
		RDNSDomains: []string{".duckduckgo.com"},
		SearchBot:   true,
	},
	{
		Name:        "YandexBot",
		UATokens:    []string{"yandexbot"},
		CIDRs:       []string{"5.45.192.0/18", "77.88.0.0/18"},
		RDNSDomains: []string{".yandex.ru", ".yandex.net", ".yandex.com"},
		SearchBot:   true,
	},
	{
		Name:        "Applebot",
		UATokens:    []string{"applebot"},
		CIDRs:       []string{"17.0.0.0/8"},
		RDNSDomains: []string{".applebot.apple.com"},
		SearchBot:   true,
	},
	{
		Name:        "GPTBot",
		UATokens:    []string{"gptbot"},
		CIDRs:       []string{"20.171.206.0/24", "52.230.152.0/24"},
		RDNSDomains: []string{".openai.com"},
	},
	{
		Name:        "ClaudeBot",
		UATokens:    []string{"claudebot"},
		CIDRs:       []string{"160.79.104.0/23"},
		RDNSDomains: []string{".anthropic.com"},
	},
	{
		Name:        "FacebookBot",
		UATokens:    []string{"facebookexternalhit", "facebookbot"},
		CIDRs:       []string{"31.13.24.0/21", "66.220.144.0/20", "69.63.176.0/20"},
		RDNSDomains: []string{".fbsv.net"},
	},
}

// StaticRegistry is the shipped Registry implementation.
type StaticRegistry struct {
	bots     []knownBot
	nets     map[string][]*net.IPNet
	resolver Resolver
	timeout  time.Duration
}

// NewRegistry builds a registry over the shipped vendor table. A nil
// resolver uses the system DNS.
func NewRegistry(resolver Resolver) *StaticRegistry {
	if resolver == nil {
		resolver = net.DefaultResolver
	}
	r := &StaticRegistry{
		bots:     knownBots,
		nets:     make(map[string][]*net.IPNet),
		resolver: resolver,
		timeout:  500 * time.Millisecond,
	}
	for _, b := range knownBots {
		for _, cidr := range b.CIDRs {
			if _, n, err := net.ParseCIDR(cidr); err == nil {
				r.nets[b.Name] = append(r.nets[b.Name], n)
			}
		}
	}
	return r
}

// MatchBotUserAgent reports the canonical bot name a UA claims.
func (r *StaticRegistry) MatchBotUserAgent(ua string) (string, bool) {
	lower := strings.ToLower(ua)
	for _, b := range r.bots {
		for _, tok := range b.UATokens {
			if strings.Contains(lower, tok) {
				return b.Name, true
			}
		}
	}
	return "", false
}

// IsSearchBot reports whether the named bot is a search-engine crawler.
func (r *StaticRegistry) IsSearchBot(name string) bool {
	for _, b := range r.bots {
		if b.Name == name {
			return b.SearchBot
		}
	}
	return false
}

// VerifyBot checks a claimed identity. Returns nil when the UA claims no
// known bot at all.
func (r *StaticRegistry) VerifyBot(ctx context.Context, ua, ip string) (*Verification, error) {
	name, claimed := r.MatchBotUserAgent(ua)
	if !claimed {
		return nil, nil
	}

	parsed := net.ParseIP(ip)
	if parsed == nil {
		return &Verification{BotName: name, IsVerified: false, VerificationMethod: "failed"}, nil
	}

	for _, n := range r.nets[name] {
		if n.Contains(parsed) {
			return &Verification{BotName: name, IsVerified: true, VerificationMethod: "ip_range"}, nil
		}
	}

	verified, err := r.fcrdns(ctx, name, parsed)
	if err != nil {
		return &Verification{BotName: name, IsVerified: false, VerificationMethod: "failed"}, err
	}
	if verified {
		return &Verification{BotName: name, IsVerified: true, VerificationMethod: "fcrdns"}, nil
	}
	return &Verification{BotName: name, IsVerified: false, VerificationMethod: "failed"}, nil
}

// fcrdns runs the forward-confirmed reverse DNS check: PTR must land in an
// expected domain and one of its A/AAAA records must equal the client IP.
func (r *StaticRegistry) fcrdns(ctx context.Context, botName string, ip net.IP) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var domains []string
	for _, b := range r.bots {
		if b.Name == botName {
			domains = b.RDNSDomains
			break
		}
	}

	// No PTR record is the common case for spoofed crawlers; it conclusively
	// fails the check rather than erroring out of it.
	ptrs, err := r.resolver.LookupAddr(ctx, ip.String())
	if err != nil {
		return false, nil
	}

	for _, ptr := range ptrs {
		host := strings.TrimSuffix(ptr, ".")
		if !hostInDomains(host, domains) {
			continue
		}
		addrs, err := r.resolver.LookupIPAddr(ctx, host)
		if err != nil {
			continue
		}
		for _, a := range addrs {
			if a.IP.Equal(ip) {
				return true, nil
			}
		}
	}
	return false, nil
}

func hostInDomains(host string, domains []string) bool {
	lower := strings.ToLower(host)
	for _, d := range domains {
		if strings.HasSuffix(lower, d) {
			return true
		}
	}
	return false
}
