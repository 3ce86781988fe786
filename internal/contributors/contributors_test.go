package contributors

import (
	"context"
	"errors"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/rawblock/sentinel-engine/internal/blackboard"
	"github.com/rawblock/sentinel-engine/internal/botlist"
	"github.com/rawblock/sentinel-engine/internal/patterns"
	"github.com/rawblock/sentinel-engine/internal/reputation"
	"github.com/rawblock/sentinel-engine/internal/signals"
	"github.com/rawblock/sentinel-engine/internal/windows"
	"github.com/rawblock/sentinel-engine/pkg/models"
)

func snapshot(method, path, ua string, headers map[string]string) *models.RequestSnapshot {
	h := map[string][]string{}
	if ua != "" {
		h["User-Agent"] = []string{ua}
	}
	for k, v := range headers {
		h[k] = []string{v}
	}
	return &models.RequestSnapshot{
		Method:     method,
		Path:       path,
		Proto:      "HTTP/1.1",
		Host:       "example.com",
		ClientIP:   "203.0.113.7",
		Headers:    canonicalize(h),
		ReceivedAt: time.Now(),
	}
}

func canonicalize(h map[string][]string) map[string][]string {
	out := map[string][]string{}
	for k, v := range h {
		out[textprotoCanonical(k)] = v
	}
	return out
}

// textprotoCanonical mirrors the middleware's header canonicalization.
func textprotoCanonical(k string) string {
	parts := strings.Split(k, "-")
	for i, p := range parts {
		if p == "" {
			continue
		}
		parts[i] = strings.ToUpper(p[:1]) + strings.ToLower(p[1:])
	}
	return strings.Join(parts, "-")
}

const chromeUA = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

func run(t *testing.T, c blackboard.Contributor, s *blackboard.State) []models.DetectionContribution {
	t.Helper()
	out, err := c.Contribute(context.Background(), s)
	if err != nil {
		t.Fatalf("%s failed: %v", c.Name(), err)
	}
	if len(out) == 0 {
		t.Fatalf("%s returned no contributions", c.Name())
	}
	s.Append(c.Name(), out)
	return out
}

func totalDelta(contribs []models.DetectionContribution) float64 {
	var sum float64
	for _, c := range contribs {
		sum += c.Delta * c.Weight
	}
	return sum
}

func TestUserAgent_Tool(t *testing.T) {
	s := blackboard.NewState(snapshot("GET", "/", "curl/8.1.2", nil))
	out := run(t, NewUserAgent(Deps{}), s)

	if totalDelta(out) <= 0 {
		t.Error("curl UA must lean bot")
	}
	if !s.SignalBool(signals.UAIsTool) || s.SignalString(signals.UAToolName) != "curl" {
		t.Errorf("tool signals not written: %v", s.SignalsCopy())
	}
}

func TestUserAgent_Browser(t *testing.T) {
	s := blackboard.NewState(snapshot("GET", "/", chromeUA, nil))
	out := run(t, NewUserAgent(Deps{}), s)

	if totalDelta(out) >= 0 {
		t.Error("coherent browser UA must lean human")
	}
	if s.SignalString(signals.UABrowser) != "chrome" || s.SignalString(signals.UAOS) != "macos" {
		t.Errorf("browser/os = %q/%q", s.SignalString(signals.UABrowser), s.SignalString(signals.UAOS))
	}
}

func TestUserAgent_Missing(t *testing.T) {
	s := blackboard.NewState(snapshot("GET", "/", "", nil))
	out := run(t, NewUserAgent(Deps{}), s)

	if !s.SignalBool(signals.UAIsMissing) {
		t.Error("missing UA signal not set")
	}
	if totalDelta(out) <= 0 {
		t.Error("missing UA must lean bot")
	}
}

func TestHeader_SparseVsRich(t *testing.T) {
	// Browser UA but only two headers: scripted client wearing a costume.
	sparse := blackboard.NewState(snapshot("GET", "/", chromeUA, nil))
	sparse.WriteSignal(signals.UABrowser, "chrome")
	if totalDelta(run(t, NewHeader(Deps{}), sparse)) <= 0 {
		t.Error("sparse header set with browser UA must lean bot")
	}

	rich := blackboard.NewState(snapshot("GET", "/", chromeUA, map[string]string{
		"Accept":          "text/html",
		"Accept-Language": "en-US,en;q=0.9",
		"Accept-Encoding": "gzip, deflate, br",
		"Sec-Ch-Ua":       `"Chromium";v="120"`,
		"Cookie":          "session=abc",
	}))
	rich.WriteSignal(signals.UABrowser, "chrome")
	if totalDelta(run(t, NewHeader(Deps{}), rich)) >= 0 {
		t.Error("full browser header set must lean human")
	}
}

func TestHaxxor_SQLi(t *testing.T) {
	req := snapshot("GET", "/products", "sqlclient", nil)
	req.Query = "id=1'+UNION+SELECT+password+FROM+users--"
	s := blackboard.NewState(req)

	out := run(t, NewHaxxor(Deps{}), s)
	if !s.SignalBool(signals.AttackDetected) {
		t.Fatal("SQLi payload not detected")
	}
	if cats := s.SignalString(signals.AttackCategories); !strings.Contains(cats, "sqli") {
		t.Errorf("categories = %q", cats)
	}
	if totalDelta(out) <= 0 {
		t.Error("attack payload must lean bot")
	}
}

func TestHaxxor_Clean(t *testing.T) {
	s := blackboard.NewState(snapshot("GET", "/products?page=2", chromeUA, nil))
	out := run(t, NewHaxxor(Deps{}), s)
	if s.SignalBool(signals.AttackDetected) {
		t.Error("clean request flagged as attack")
	}
	if out[0].Weight != 0 {
		t.Error("clean request should yield only an Info record")
	}
}

func TestHaxxor_ProbePath(t *testing.T) {
	s := blackboard.NewState(snapshot("GET", "/wp-admin/setup.php", "Mozilla/5.0", nil))
	out := run(t, NewHaxxor(Deps{}), s)
	if totalDelta(out) <= 0 {
		t.Error("admin probe must lean bot")
	}
	if s.SignalBool(signals.AttackDetected) {
		t.Error("bare probe is reconnaissance, not an attack payload")
	}
}

// scriptedResolver fakes DNS for the verified-bot checks. Empty maps mean
// every lookup fails, which is what a spoofed crawler's address looks like.
type scriptedResolver struct {
	ptrs    map[string][]string
	forward map[string][]net.IPAddr
}

func (r *scriptedResolver) LookupAddr(_ context.Context, addr string) ([]string, error) {
	if p, ok := r.ptrs[addr]; ok {
		return p, nil
	}
	return nil, errors.New("nxdomain")
}

func (r *scriptedResolver) LookupIPAddr(_ context.Context, host string) ([]net.IPAddr, error) {
	if ips, ok := r.forward[host]; ok {
		return ips, nil
	}
	return nil, errors.New("nxdomain")
}

func TestVerifiedBot_SpoofAndVerified(t *testing.T) {
	t.Run("spoof", func(t *testing.T) {
		reg := botlist.NewRegistry(&scriptedResolver{})
		v := NewVerifiedBot(Deps{Registry: reg})
		s := blackboard.NewState(snapshot("GET", "/", "Mozilla/5.0 (compatible; Googlebot/2.1)", nil))
		out := run(t, v, s)

		if !s.SignalBool(signals.BotSpoofed) {
			t.Fatal("spoof signal not set")
		}
		if totalDelta(out) <= 0 {
			t.Error("spoofed crawler must lean strongly bot")
		}
		for _, c := range out {
			if c.Verdict == models.VerdictVerifiedGoodBot {
				t.Error("spoof must not produce a good-bot verdict")
			}
		}
	})

	t.Run("verified", func(t *testing.T) {
		reg := botlist.NewRegistry(&scriptedResolver{})
		v := NewVerifiedBot(Deps{Registry: reg})
		req := snapshot("GET", "/", "Mozilla/5.0 (compatible; Googlebot/2.1)", nil)
		req.ClientIP = "66.249.66.1" // inside Google's published range
		s := blackboard.NewState(req)
		out := run(t, v, s)

		found := false
		for _, c := range out {
			if c.Verdict == models.VerdictVerifiedGoodBot {
				found = true
				if c.BotType != models.BotTypeSearchEngine {
					t.Errorf("verified Googlebot type = %s", c.BotType)
				}
			}
		}
		if !found {
			t.Error("range-verified crawler must produce a VerifiedGoodBot verdict")
		}
	})
}

func TestFastPathReputation(t *testing.T) {
	t.Run("confirmed-bad address aborts", func(t *testing.T) {
		cache := reputation.NewMemoryCache()
		req := snapshot("GET", "/", "badbot/1.0", nil)
		cache.Set(models.PatternReputation{
			PatternID: patterns.IPPatternID(req.ClientIP),
			State:     models.StateConfirmedBad,
			BotScore:  0.97,
			Support:   50,
		})

		s := blackboard.NewState(req)
		out := run(t, NewFastPathReputation(Deps{Reputation: cache}), s)

		if out[0].Verdict != models.VerdictVerifiedBot {
			t.Errorf("confirmed-bad address must emit the authoritative bot verdict, got %v", out[0].Verdict)
		}
		if s.SignalString(signals.RepFastPath) != "abort" {
			t.Error("fast-path abort signal not set")
		}
	})

	t.Run("confirmed-bad UA leans without aborting", func(t *testing.T) {
		cache := reputation.NewMemoryCache()
		req := snapshot("GET", "/", "badbot/1.0", nil)
		cache.Set(models.PatternReputation{
			PatternID: patterns.UAPatternID(req.UserAgent()),
			State:     models.StateConfirmedBad,
			BotScore:  0.97,
			Support:   50,
		})

		s := blackboard.NewState(req)
		out := run(t, NewFastPathReputation(Deps{Reputation: cache}), s)

		// The UA is shared across clients, so it never carries the
		// authoritative verdict; it leans hard and leaves the decision to
		// the rest of the fleet.
		if out[0].Verdict != models.VerdictNormal {
			t.Errorf("UA hit verdict = %v, want Normal", out[0].Verdict)
		}
		if out[0].Delta <= 0 || out[0].Weight != 2 {
			t.Errorf("UA hit should be a double-weight bot lean, got delta=%f weight=%f", out[0].Delta, out[0].Weight)
		}
		if s.SignalString(signals.RepFastPath) == "abort" {
			t.Error("UA hit must not raise the fast-path abort signal")
		}
	})

	t.Run("confirmed-good UA leans human without allowing", func(t *testing.T) {
		cache := reputation.NewMemoryCache()
		req := snapshot("GET", "/", chromeUA, nil)
		cache.Set(models.PatternReputation{
			PatternID: patterns.UAPatternID(req.UserAgent()),
			State:     models.StateManuallyAllowed,
		})

		s := blackboard.NewState(req)
		out := run(t, NewFastPathReputation(Deps{Reputation: cache}), s)

		if out[0].Verdict != models.VerdictNormal {
			t.Errorf("good UA hit verdict = %v, want Normal", out[0].Verdict)
		}
		if out[0].Delta >= 0 || out[0].Weight != 2 {
			t.Errorf("good UA hit should be a double-weight human lean, got delta=%f weight=%f", out[0].Delta, out[0].Weight)
		}
		if s.SignalString(signals.RepFastPath) != "" {
			t.Error("UA hit must not raise a fast-path signal")
		}
	})
}

func TestAccountTakeover_Stuffing(t *testing.T) {
	store := windows.NewStore(windows.Options{})
	deps := Deps{Windows: store}
	ato := NewAccountTakeover(deps)

	req := snapshot("POST", "/login", "python-requests/2.31", nil)
	sig := patterns.Signature(req.ClientIP, req.UserAgent())
	now := time.Now()
	for i := 0; i < 6; i++ {
		store.RecordLogin(sig, windows.LoginAttempt{Timestamp: now.Add(time.Duration(i) * time.Second), Method: "POST", Failed: true})
	}

	s := blackboard.NewState(req)
	out := run(t, ato, s)

	if !s.SignalBool(signals.AtoDetected) {
		t.Fatal("credential stuffing not flagged")
	}
	if totalDelta(out) <= 0 {
		t.Error("stuffing must lean bot")
	}
}

func TestAccountTakeover_OffPath(t *testing.T) {
	s := blackboard.NewState(snapshot("GET", "/products", chromeUA, nil))
	out := run(t, NewAccountTakeover(Deps{Windows: windows.NewStore(windows.Options{})}), s)
	if out[0].Weight != 0 {
		t.Error("non-auth path should only produce an Info record")
	}
}

// A volley that both matches the stuffing shape and piles up auth failures
// must surface as two findings, not one collapsed record.
func TestAccountTakeover_StuffingAndBruteForce(t *testing.T) {
	store := windows.NewStore(windows.Options{})
	ato := NewAccountTakeover(Deps{Windows: store})

	req := snapshot("POST", "/login", "python-requests/2.31", nil)
	sig := patterns.Signature(req.ClientIP, req.UserAgent())
	now := time.Now()
	for i := 0; i < 8; i++ {
		store.RecordLogin(sig, windows.LoginAttempt{Timestamp: now.Add(time.Duration(i) * 15 * time.Second), Method: "POST", Failed: true})
	}

	s := blackboard.NewState(req)
	out := run(t, ato, s)

	if len(out) != 2 {
		t.Fatalf("want stuffing + brute-force records, got %d: %+v", len(out), out)
	}
	var stuffing, brute bool
	for _, c := range out {
		if c.BotType != models.BotTypeMalicious {
			t.Errorf("%s record typed %s, want MaliciousBot", c.Reason, c.BotType)
		}
		switch c.Weight {
		case 2:
			stuffing = true
		case 1:
			brute = true
		}
	}
	if !stuffing || !brute {
		t.Errorf("missing record: stuffing=%v brute=%v", stuffing, brute)
	}
	if !s.SignalBool(signals.AtoDetected) {
		t.Error("takeover signal not set")
	}
}

type fixedHistory struct {
	stats models.TimeSeriesStats
}

func (f fixedHistory) GetReputation(context.Context, string) (models.TimeSeriesStats, error) {
	return f.stats, nil
}

// Months of mostly-human history attenuate the drift: the same burst that
// flags a fresh signature stays under the stuffing line for a regular.
func TestAccountTakeover_BaselineTrustAttenuation(t *testing.T) {
	store := windows.NewStore(windows.Options{})
	ato := NewAccountTakeover(Deps{
		Windows:    store,
		TimeSeries: fixedHistory{stats: models.TimeSeriesStats{DaysActive: 90, BotRatio: 0.05, HitCount: 400}},
	})

	req := snapshot("POST", "/login", chromeUA, nil)
	sig := patterns.Signature(req.ClientIP, req.UserAgent())
	now := time.Now()
	for i := 0; i < 6; i++ {
		store.RecordLogin(sig, windows.LoginAttempt{Timestamp: now.Add(time.Duration(i) * time.Second), Method: "POST"})
	}

	s := blackboard.NewState(req)
	out := run(t, ato, s)

	for _, c := range out {
		if c.Weight == 2 {
			t.Fatalf("trusted signature still produced a stuffing record: %+v", c)
		}
	}
	if drift := s.SignalFloat(signals.AtoDriftScore); drift >= 0.70 {
		t.Errorf("drift = %.3f, want attenuated below the stuffing line", drift)
	}
}

func TestHTTP2Fingerprint_Http1Downgrade(t *testing.T) {
	req := snapshot("GET", "/", chromeUA, nil)
	req.Transport = &models.TransportInfo{TLS: &models.TLSInfo{Version: "TLS1.3", ALPN: "http/1.1"}}
	out := run(t, NewHTTP2Fingerprint(Deps{}), blackboard.NewState(req))
	if out[0].Delta <= 0 {
		t.Error("negotiated HTTP/1.1 should lean bot")
	}
	if out[0].Delta > 0.5 || out[0].Weight != 1 {
		t.Errorf("downgrade lean should stay mild, got delta=%f weight=%f", out[0].Delta, out[0].Weight)
	}

	// Without transport visibility there is nothing to conclude.
	out2 := run(t, NewHTTP2Fingerprint(Deps{}), blackboard.NewState(snapshot("GET", "/", chromeUA, nil)))
	if out2[0].Weight != 0 {
		t.Errorf("missing transport data must stay an Info record, got weight=%f", out2[0].Weight)
	}
}

func TestWaveform_Metronomic(t *testing.T) {
	store := windows.NewStore(windows.Options{})
	req := snapshot("GET", "/page", "scraper/1.0", nil)
	sig := patterns.Signature(req.ClientIP, req.UserAgent())
	base := time.Now().Add(-5 * time.Minute)
	for i := 0; i < 20; i++ {
		store.Update(sig, windows.RequestEvent{
			Timestamp:    base.Add(time.Duration(i) * 2 * time.Second), // exactly 2s apart
			Method:       "GET",
			Path:         "/page",
			UserAgent:    req.UserAgent(),
			ContentClass: windows.ClassPage,
		})
	}

	s := blackboard.NewState(req)
	out := run(t, NewWaveform(Deps{Windows: store}), s)

	if cv := s.SignalFloat(signals.WaveTimingCV); cv > 0.05 {
		t.Errorf("cv = %f for perfectly regular timing", cv)
	}
	if totalDelta(out) <= 0 {
		t.Error("metronomic timing must lean bot")
	}
}

func TestWaveform_SequentialScan(t *testing.T) {
	store := windows.NewStore(windows.Options{})
	req := snapshot("GET", "/items/9", "scraper/1.0", nil)
	sig := patterns.Signature(req.ClientIP, req.UserAgent())
	base := time.Now().Add(-3 * time.Minute)
	for i := 0; i < 9; i++ {
		store.Update(sig, windows.RequestEvent{
			Timestamp:    base.Add(time.Duration(i*i) * time.Second), // irregular timing, ordered paths
			Method:       "GET",
			Path:         "/items/" + string(rune('1'+i)),
			UserAgent:    req.UserAgent(),
			ContentClass: windows.ClassPage,
		})
	}

	s := blackboard.NewState(req)
	run(t, NewWaveform(Deps{Windows: store}), s)
	if !s.SignalBool(signals.WaveSequentialScan) {
		t.Error("sequential enumeration not flagged")
	}
}

func TestCorrelation_Mismatch(t *testing.T) {
	s := blackboard.NewState(snapshot("GET", "/", chromeUA, nil))
	s.WriteSignals(map[string]any{
		signals.UAOS:         "windows",
		signals.UABrowser:    "chrome",
		signals.TCPInferredOS: "linux",
	})
	for i := 0; i < 5; i++ {
		s.Append(string(rune('a'+i)), []models.DetectionContribution{blackboard.Info("x", CatIdentity, "pad")})
	}

	c := NewCorrelation(Deps{})
	if !blackboard.Eligible(c, s) {
		t.Fatal("correlation should be eligible after five detectors")
	}
	out := run(t, c, s)
	if !s.SignalBool(signals.CorrOSMismatch) {
		t.Error("OS mismatch not flagged")
	}
	if totalDelta(out) <= 0 {
		t.Error("cross-layer mismatch must lean bot")
	}
}

func TestCorrelation_Consistent(t *testing.T) {
	s := blackboard.NewState(snapshot("GET", "/", chromeUA, nil))
	s.WriteSignals(map[string]any{
		signals.UAOS:          "macos",
		signals.UABrowser:     "chrome",
		signals.TCPInferredOS: "macos",
		signals.TLSClientLabel: "chrome",
	})
	out, err := NewCorrelation(Deps{}).Contribute(context.Background(), s)
	if err != nil {
		t.Fatal(err)
	}
	if totalDelta(out) >= 0 {
		t.Error("agreeing layers must lean human")
	}
}

func TestHeuristic_Scorecard(t *testing.T) {
	bot := blackboard.NewState(snapshot("GET", "/", "curl/8.1.2", nil))
	bot.WriteSignals(map[string]any{
		signals.UAIsTool:              true,
		signals.HeaderMissingLanguage: true,
		signals.IPIsDatacenter:        true,
	})
	out, err := NewHeuristic(Deps{}).Contribute(context.Background(), bot)
	if err != nil {
		t.Fatal(err)
	}
	if totalDelta(out) <= 0 {
		t.Error("scorecard must convict tool+datacenter+sparse headers")
	}

	human := blackboard.NewState(snapshot("GET", "/", chromeUA, nil))
	human.WriteSignals(map[string]any{
		signals.UABrowser:          "chrome",
		signals.HeaderHasCookies:   true,
		signals.HeaderHasSecChUA:   true,
	})
	out, err = NewHeuristic(Deps{}).Contribute(context.Background(), human)
	if err != nil {
		t.Fatal(err)
	}
	if totalDelta(out) >= 0 {
		t.Error("scorecard must acquit a full browser profile")
	}
}

func TestLlm_Unconfigured(t *testing.T) {
	s := blackboard.NewState(snapshot("GET", "/", chromeUA, nil))
	out, err := NewLlm(Deps{}).Contribute(context.Background(), s)
	if err != nil {
		t.Fatal(err)
	}
	if out[0].Weight != 0 {
		t.Error("unconfigured LLM must not move the score")
	}
	if avail, ok := out[0].Signals[signals.ModelLlmAvailable].(bool); !ok || avail {
		t.Error("availability signal must be false")
	}
}

func TestTransportProtocol_WebSocket(t *testing.T) {
	good := snapshot("GET", "/ws", chromeUA, map[string]string{
		"Upgrade":               "websocket",
		"Connection":            "Upgrade",
		"Sec-Websocket-Key":     "dGhlIHNhbXBsZSBub25jZQ==",
		"Sec-Websocket-Version": "13",
		"Origin":                "https://example.com",
	})
	s := blackboard.NewState(good)
	out := run(t, NewTransportProtocol(Deps{Windows: windows.NewStore(windows.Options{})}), s)
	if s.SignalBool(signals.ProtoViolation) {
		t.Error("well-formed upgrade flagged")
	}
	if s.SignalString(signals.ProtoKind) != "websocket" {
		t.Error("protocol kind not classified")
	}
	_ = out

	bad := snapshot("GET", "/ws", "wsclient/1.0", map[string]string{"Upgrade": "websocket"})
	s2 := blackboard.NewState(bad)
	out2 := run(t, NewTransportProtocol(Deps{Windows: windows.NewStore(windows.Options{})}), s2)
	if !s2.SignalBool(signals.ProtoViolation) {
		t.Error("handshake missing key/version not flagged")
	}
	if totalDelta(out2) <= 0 {
		t.Error("malformed handshake must lean bot")
	}
}

func TestDefaultSet_Complete(t *testing.T) {
	set := DefaultSet(Deps{})
	if len(set) != 26 {
		t.Fatalf("fleet size = %d, want 26", len(set))
	}
	names := map[string]bool{}
	for _, c := range set {
		if names[c.Name()] {
			t.Errorf("duplicate contributor name %s", c.Name())
		}
		names[c.Name()] = true
		if c.ExecutionTimeout() <= 0 {
			t.Errorf("%s has no timeout", c.Name())
		}
	}
}

func TestTriggers_WaveMembership(t *testing.T) {
	s := blackboard.NewState(snapshot("GET", "/", chromeUA, nil))

	// Fresh state: unconditional contributors only.
	if !blackboard.Eligible(NewUserAgent(Deps{}), s) {
		t.Error("useragent must run in the first wave")
	}
	if blackboard.Eligible(NewCorrelation(Deps{}), s) {
		t.Error("correlation must wait for the identity wave")
	}
	if blackboard.Eligible(NewLlm(Deps{}), s) {
		t.Error("llm must wait for Medium risk")
	}

	for i := 0; i < 12; i++ {
		s.Append(string(rune('a'+i)), []models.DetectionContribution{blackboard.Info("x", CatIdentity, "pad")})
	}
	s.SetScore(0.80)

	if !blackboard.Eligible(NewCorrelation(Deps{}), s) || !blackboard.Eligible(NewLlm(Deps{}), s) {
		t.Error("gated contributors must become eligible once their conditions hold")
	}
}
