package config

import "testing"

const sampleManifests = `
useragent:
  priority: 10
  timing:
    timeout_ms: 50
  defaults:
    confidence:
      bot_detected: 0.80
      human_signal: 0.30
  parameters:
    missing_ua_confidence: 0.75
    max_tokens: 12
    strict: true
    label: "primary"
    suspicious_tokens: [curl, wget, python-requests]

haxxor:
  priority: 20
`

func TestYAMLProvider_Lookups(t *testing.T) {
	p, err := LoadBytes([]byte(sampleManifests))
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}

	if got := p.Priority("useragent", 99); got != 10 {
		t.Errorf("priority = %d, want 10", got)
	}
	if got := p.TimeoutMS("useragent", 100); got != 50 {
		t.Errorf("timeout = %d, want 50", got)
	}
	if got := p.Confidence("useragent", "bot_detected", 0.5); got != 0.80 {
		t.Errorf("confidence = %f, want 0.80", got)
	}
	if got := p.Param("useragent", "missing_ua_confidence", 0.1); got != 0.75 {
		t.Errorf("param = %f, want 0.75", got)
	}
	if got := p.IntParam("useragent", "max_tokens", 1); got != 12 {
		t.Errorf("int param = %d, want 12", got)
	}
	if !p.BoolParam("useragent", "strict", false) {
		t.Error("bool param should be true")
	}
	if got := p.StringParam("useragent", "label", "x"); got != "primary" {
		t.Errorf("string param = %q, want primary", got)
	}
	tokens := p.StringListParam("useragent", "suspicious_tokens")
	if len(tokens) != 3 || tokens[0] != "curl" {
		t.Errorf("string list = %v", tokens)
	}
}

func TestYAMLProvider_Defaults(t *testing.T) {
	p, err := LoadBytes([]byte(sampleManifests))
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}

	// haxxor has a priority but no timing section: timeout falls back.
	if got := p.TimeoutMS("haxxor", 120); got != 120 {
		t.Errorf("missing timing should fall back: got %d", got)
	}
	// Unknown detector: everything falls back.
	if got := p.Priority("nonexistent", 42); got != 42 {
		t.Errorf("unknown detector should fall back: got %d", got)
	}
	if got := p.Confidence("nonexistent", "bot_detected", 0.7); got != 0.7 {
		t.Errorf("unknown detector confidence should fall back: got %f", got)
	}
}

func TestStaticProvider(t *testing.T) {
	var s Static
	if s.Priority("x", 7) != 7 || s.Param("x", "y", 0.3) != 0.3 {
		t.Error("static provider must echo defaults")
	}
	if s.StringListParam("x", "y") != nil {
		t.Error("static provider returns nil lists")
	}
}
