package contributors

import (
	"context"
	"net/url"
	"regexp"
	"strings"

	"github.com/rawblock/sentinel-engine/internal/blackboard"
	"github.com/rawblock/sentinel-engine/internal/signals"
	"github.com/rawblock/sentinel-engine/pkg/models"
)

// Attack payload classes. Patterns are compiled once at init; the fast
// pre-check below keeps the clean-traffic cost to one strings scan.
type attackClass struct {
	name string
	res  []*regexp.Regexp
}

var attackClasses = []attackClass{
	{"sqli", compileAll(
		`(?i)\bunion\b.{0,40}\bselect\b`,
		`(?i)\bor\b\s+\d+\s*=\s*\d+`,
		`(?i)'\s*(or|and)\s*'[^']*'\s*=\s*'`,
		`(?i)\b(sleep|benchmark|pg_sleep|waitfor\s+delay)\s*\(`,
		`(?i);\s*(drop|truncate|alter)\s+(table|database)\b`,
	)},
	{"xss", compileAll(
		`(?i)<script[\s>]`,
		`(?i)\bon(error|load|click|mouseover)\s*=`,
		`(?i)javascript\s*:`,
		`(?i)<(img|svg|iframe)[^>]+(onerror|onload)`,
	)},
	{"traversal", compileAll(
		`\.\./\.\./`,
		`(?i)%2e%2e[/%5c]`,
		`(?i)/etc/(passwd|shadow)\b`,
		`(?i)\\windows\\system32`,
	)},
	{"cmdi", compileAll(
		`(?i)[;|&]\s*(cat|ls|id|whoami|wget|curl|bash|sh)\b`,
		"`[^`]+`",
		`(?i)\$\((cat|id|whoami|wget|curl)[^)]*\)`,
	)},
	{"ssrf", compileAll(
		`(?i)=https?://(127\.0\.0\.1|localhost|0\.0\.0\.0|169\.254\.169\.254)`,
		`(?i)=file://`,
		`(?i)=gopher://`,
	)},
	{"template", compileAll(
		`\{\{\s*[\w.]+\s*\}\}`,
		`\$\{[^}]{1,60}\}`,
		`(?i)<%=`,
	)},
}

// Endpoints only probes visit: CMS admin panels, dotfiles, backup drops.
var probePaths = []string{
	"/wp-admin", "/wp-login.php", "/xmlrpc.php", "/phpmyadmin", "/pma/",
	"/.env", "/.git/", "/.aws/", "/.ssh/", "/config.php", "/backup",
	"/admin.php", "/shell.php", "/cgi-bin/", "/actuator/", "/.DS_Store",
}

// Characters/fragments that appear in essentially every payload; absence of
// all of them lets clean traffic skip the regex battery entirely.
const suspiciousChars = "<>'\"`;|{}$%\\"

func compileAll(patterns ...string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		out = append(out, regexp.MustCompile(p))
	}
	return out
}

// Haxxor inspects the URL, query, and a few attacker-controlled headers for
// injection payloads and probe paths. A positive here dominates the threat
// score and weighs heavily on bot probability: humans do not hand-type SQLi.
type Haxxor struct {
	base
}

func NewHaxxor(d Deps) *Haxxor {
	return &Haxxor{base: newBase(d.Config, "haxxor", 23, 100)}
}

func (h *Haxxor) Contribute(_ context.Context, s *blackboard.State) ([]models.DetectionContribution, error) {
	req := s.Request

	decodedQuery := req.Query
	if dq, err := url.QueryUnescape(req.Query); err == nil {
		decodedQuery = dq
	}
	surface := req.Path + "?" + decodedQuery + "\n" +
		req.Header("Referer") + "\n" + req.Header("X-Forwarded-For") + "\n" + req.UserAgent()

	var cats []string
	hits := 0

	if strings.ContainsAny(surface, suspiciousChars) || strings.Contains(surface, "..") {
		for _, class := range attackClasses {
			matched := 0
			for _, re := range class.res {
				if re.MatchString(surface) {
					matched++
				}
			}
			if matched > 0 {
				cats = append(cats, class.name)
				hits += matched
			}
		}
	}

	lowerPath := strings.ToLower(req.Path)
	probe := false
	for _, p := range probePaths {
		if strings.Contains(lowerPath, p) {
			probe = true
			break
		}
	}

	if len(cats) == 0 && !probe {
		return []models.DetectionContribution{blackboard.Info(h.name, CatPayload, "no attack indicators")}, nil
	}

	sigs := map[string]any{
		signals.AttackHitCount: hits,
	}
	if len(cats) > 0 {
		sigs[signals.AttackDetected] = true
		sigs[signals.AttackCategories] = strings.Join(cats, ",")
		c := blackboard.StrongBot(h.name, CatPayload, "attack payload: "+strings.Join(cats, ","), h.conf("attack_payload", 0.90))
		return []models.DetectionContribution{blackboard.WithSignals(blackboard.WithType(c, models.BotTypeMalicious, ""), sigs)}, nil
	}

	// Probe path without a payload: reconnaissance, not yet an attack.
	c := blackboard.Bot(h.name, CatPayload, "probe of "+req.Path, h.conf("probe_path", 0.70))
	return []models.DetectionContribution{blackboard.WithSignals(blackboard.WithType(c, models.BotTypeMalicious, ""), sigs)}, nil
}
