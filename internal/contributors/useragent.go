package contributors

import (
	"context"
	"strings"

	"github.com/rawblock/sentinel-engine/internal/blackboard"
	"github.com/rawblock/sentinel-engine/internal/signals"
	"github.com/rawblock/sentinel-engine/pkg/models"
)

// Client libraries and CLI tools that honest browsers never present.
var toolTokens = []string{
	"curl", "wget", "python-requests", "python-urllib", "python/", "aiohttp",
	"go-http-client", "java/", "okhttp", "libwww", "scrapy", "httpclient",
	"axios", "node-fetch", "guzzle", "ruby", "perl", "php",
}

var genericBotTokens = []string{"bot", "crawler", "spider", "scraper", "headless", "phantomjs", "selenium", "puppeteer", "playwright"}

var browserFamilies = []struct{ token, name string }{
	{"edg/", "edge"},
	{"firefox", "firefox"},
	{"chrome", "chrome"},
	{"safari", "safari"},
}

var osFamilies = []struct{ token, name string }{
	{"windows", "windows"},
	{"mac os", "macos"},
	{"iphone", "ios"},
	{"ipad", "ios"},
	{"android", "android"},
	{"linux", "linux"},
}

// UserAgent is the first identity read: tool/bot token extraction, browser
// and OS family, structural sanity of the UA string. Most later contributors
// gate on or cross-check its signals.
type UserAgent struct {
	base
}

func NewUserAgent(d Deps) *UserAgent {
	return &UserAgent{base: newBase(d.Config, "useragent", 10, 50)}
}

func (u *UserAgent) Contribute(_ context.Context, s *blackboard.State) ([]models.DetectionContribution, error) {
	ua := s.Request.UserAgent()
	lower := strings.ToLower(ua)

	sigs := map[string]any{
		signals.UALengthBucket: uaLengthBucket(len(ua)),
	}

	if strings.TrimSpace(ua) == "" {
		sigs[signals.UAIsMissing] = true
		sigs[signals.UAIsBot] = true
		c := blackboard.Bot(u.name, CatIdentity, "no User-Agent header", u.conf("missing_ua", 0.75))
		return []models.DetectionContribution{blackboard.WithSignals(blackboard.WithType(c, models.BotTypeScraper, ""), sigs)}, nil
	}

	browser := matchFamily(lower, browserFamilies)
	// Safari is claimed by every WebKit UA; only stands alone.
	if browser == "safari" && (strings.Contains(lower, "chrome") || strings.Contains(lower, "edg/")) {
		browser = matchFamily(strings.ReplaceAll(lower, "safari", ""), browserFamilies)
	}
	osName := matchFamily(lower, osFamilies)
	sigs[signals.UABrowser] = browser
	sigs[signals.UAOS] = osName

	if tool := matchToken(lower, toolTokens); tool != "" {
		sigs[signals.UAIsTool] = true
		sigs[signals.UAToolName] = tool
		sigs[signals.UAIsBot] = true
		c := blackboard.StrongBot(u.name, CatIdentity, "HTTP client library UA: "+tool, u.conf("tool_ua", 0.85))
		return []models.DetectionContribution{blackboard.WithSignals(blackboard.WithType(c, models.BotTypeScraper, tool), sigs)}, nil
	}

	if tok := matchToken(lower, genericBotTokens); tok != "" {
		sigs[signals.UAIsBot] = true
		sigs[signals.UAClaimedBot] = true
		sigs[signals.UABotName] = tok
		// Self-identified crawlers are honest until verification says
		// otherwise; verified_bot owns the spoof call.
		c := blackboard.Bot(u.name, CatIdentity, "UA self-identifies as automated ("+tok+")", u.conf("claimed_bot", 0.55))
		return []models.DetectionContribution{blackboard.WithSignals(blackboard.WithType(c, models.BotTypeGoodBot, ""), sigs)}, nil
	}

	if browser != "" && osName != "" {
		c := blackboard.Human(u.name, CatIdentity, "coherent browser UA ("+browser+"/"+osName+")", u.conf("browser_ua", 0.35))
		return []models.DetectionContribution{blackboard.WithSignals(c, sigs)}, nil
	}

	// Neither browser nor known automation: odd but not damning.
	c := blackboard.Bot(u.name, CatIdentity, "unrecognized UA structure", u.conf("odd_ua", 0.30))
	return []models.DetectionContribution{blackboard.WithSignals(c, sigs)}, nil
}

func matchFamily(lower string, table []struct{ token, name string }) string {
	for _, f := range table {
		if strings.Contains(lower, f.token) {
			return f.name
		}
	}
	return ""
}

func matchToken(lower string, tokens []string) string {
	for _, t := range tokens {
		if strings.Contains(lower, t) {
			return strings.TrimSuffix(t, "/")
		}
	}
	return ""
}

func uaLengthBucket(n int) string {
	switch {
	case n < 20:
		return "tiny"
	case n < 60:
		return "short"
	case n < 150:
		return "normal"
	case n < 300:
		return "long"
	default:
		return "huge"
	}
}
