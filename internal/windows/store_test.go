package windows

import (
	"testing"
	"time"
)

func TestUpdate_PruneAndCap(t *testing.T) {
	s := NewStore(Options{Window: 10 * time.Minute, MaxEvents: 5})
	sig := "203.0.113.5:abcd1234"
	base := time.Now()

	// Two stale events, then a burst of fresh ones past the cap.
	s.Update(sig, RequestEvent{Timestamp: base.Add(-20 * time.Minute), Path: "/old1", ContentClass: ClassPage})
	s.Update(sig, RequestEvent{Timestamp: base.Add(-15 * time.Minute), Path: "/old2", ContentClass: ClassPage})
	for i := 0; i < 8; i++ {
		s.Update(sig, RequestEvent{Timestamp: base.Add(time.Duration(i) * time.Second), Path: "/fresh", ContentClass: ClassPage})
	}

	e, ok := s.Peek(sig)
	if !ok {
		t.Fatal("entry should exist")
	}
	e.Visit(func(e *Entry) {
		if len(e.Requests) != 5 {
			t.Errorf("deque should be capped at 5, got %d", len(e.Requests))
		}
		for _, ev := range e.Requests {
			if ev.Path != "/fresh" {
				t.Errorf("stale event survived prune: %s", ev.Path)
			}
		}
	})
}

func TestUpdateLast_Reclassify(t *testing.T) {
	s := NewStore(Options{})
	sig := "sig"
	now := time.Now()

	// Request to /feed looks like a Page until the response says JSON.
	s.Update(sig, RequestEvent{Timestamp: now, Path: "/feed", ContentClass: ClassPage})

	ok := s.UpdateLast(sig, func(ev *RequestEvent) {
		ev.Status = 200
		ev.ContentClass = ClassAPI
	})
	if !ok {
		t.Fatal("UpdateLast should find the entry")
	}

	e, _ := s.Peek(sig)
	e.Visit(func(e *Entry) {
		if e.Requests[0].ContentClass != ClassAPI || e.Requests[0].Status != 200 {
			t.Error("amendment not applied")
		}
		if e.PageCount != 0 || e.APICount != 1 {
			t.Errorf("class counters not adjusted: pages=%d api=%d", e.PageCount, e.APICount)
		}
	})

	if s.UpdateLast("missing", func(*RequestEvent) {}) {
		t.Error("UpdateLast on unknown signature must report false")
	}
}

func TestSweep(t *testing.T) {
	s := NewStore(Options{Window: 5 * time.Minute})
	now := time.Now()

	s.Update("stale", RequestEvent{Timestamp: now.Add(-10 * time.Minute), Path: "/"})
	s.Update("live", RequestEvent{Timestamp: now, Path: "/"})

	if n := s.Sweep(now); n != 1 {
		t.Errorf("swept %d, want 1", n)
	}
	if _, ok := s.Peek("stale"); ok {
		t.Error("stale signature should be evicted")
	}
	if _, ok := s.Peek("live"); !ok {
		t.Error("live signature must survive the sweep")
	}
}

func TestSignatureCap(t *testing.T) {
	s := NewStore(Options{MaxSignatures: 4})
	now := time.Now()
	for i := 0; i < 10; i++ {
		s.Update(string(rune('a'+i)), RequestEvent{Timestamp: now, Path: "/"})
	}
	if s.Len() > 4 {
		t.Errorf("store exceeded signature cap: %d", s.Len())
	}
}

func TestRecordCountry(t *testing.T) {
	s := NewStore(Options{})
	now := time.Now()

	if changed := s.RecordCountry("sig", "DE", now); changed {
		t.Error("first country observation is not a change")
	}
	if changed := s.RecordCountry("sig", "DE", now.Add(time.Minute)); changed {
		t.Error("same country is not a change")
	}
	if changed := s.RecordCountry("sig", "BR", now.Add(2*time.Minute)); !changed {
		t.Error("country switch must report a change")
	}

	e, _ := s.Peek("sig")
	e.Visit(func(e *Entry) {
		if len(e.Countries) != 2 {
			t.Errorf("distinct countries = %v", e.Countries)
		}
		if len(e.CountryChanges) != 1 {
			t.Errorf("change timestamps = %d, want 1", len(e.CountryChanges))
		}
	})
}

func TestLoginAndStreamWindows(t *testing.T) {
	s := NewStore(Options{Window: 10 * time.Minute})
	now := time.Now()

	s.RecordLogin("sig", LoginAttempt{Timestamp: now.Add(-20 * time.Minute), Method: "POST", Failed: true})
	s.RecordLogin("sig", LoginAttempt{Timestamp: now, Method: "POST", Failed: true})
	s.RecordWSUpgrade("sig", now)
	s.RecordSSEReconnect("sig", now)

	e, _ := s.Peek("sig")
	e.Visit(func(e *Entry) {
		if len(e.LoginAttempts) != 1 {
			t.Errorf("stale login attempt should be pruned, have %d", len(e.LoginAttempts))
		}
		if len(e.WSUpgrades) != 1 || len(e.SSEReconnects) != 1 {
			t.Error("stream events not recorded")
		}
		if e.StreamCount != 2 {
			t.Errorf("stream count = %d, want 2", e.StreamCount)
		}
	})
}

func TestMarkLastLoginFailed(t *testing.T) {
	s := NewStore(Options{})
	now := time.Now()

	if s.MarkLastLoginFailed("missing") {
		t.Error("unknown signature must report false")
	}

	s.RecordLogin("sig", LoginAttempt{Timestamp: now.Add(-time.Minute), Method: "POST"})
	s.RecordLogin("sig", LoginAttempt{Timestamp: now, Method: "POST"})
	if !s.MarkLastLoginFailed("sig") {
		t.Fatal("amendment should find the attempt")
	}

	e, _ := s.Peek("sig")
	e.Visit(func(e *Entry) {
		if e.LoginAttempts[0].Failed {
			t.Error("only the most recent attempt should be amended")
		}
		if !e.LoginAttempts[1].Failed {
			t.Error("latest attempt not marked failed")
		}
	})
}

func TestClassifyContentType(t *testing.T) {
	cases := map[string]ContentClass{
		"text/html; charset=utf-8":       ClassPage,
		"application/json":               ClassAPI,
		"application/problem+json":       ClassAPI,
		"application/javascript":         ClassAsset,
		"image/png":                      ClassAsset,
		"application/octet-stream":       "",
		"":                               "",
	}
	for ct, want := range cases {
		if got := ClassifyContentType(ct); got != want {
			t.Errorf("ClassifyContentType(%q) = %q, want %q", ct, got, want)
		}
	}
}

func TestIsLoginPath(t *testing.T) {
	for _, p := range []string{"/login", "/LOGIN", "/oauth/token", "/auth/callback"} {
		if !IsLoginPath(p) {
			t.Errorf("IsLoginPath(%q) = false", p)
		}
	}
	for _, p := range []string{"/products", "/loginfo", "/api/users"} {
		if IsLoginPath(p) {
			t.Errorf("IsLoginPath(%q) = true", p)
		}
	}
}

func TestClassifyPath(t *testing.T) {
	cases := map[string]ContentClass{
		"/index.html":   ClassPage,
		"/":             ClassPage,
		"/app.js":       ClassAsset,
		"/fonts/x.woff": ClassAsset,
		"/api/users":    ClassAPI,
		"/graphql":      ClassAPI,
	}
	for path, want := range cases {
		if got := ClassifyPath(path); got != want {
			t.Errorf("ClassifyPath(%q) = %s, want %s", path, got, want)
		}
	}
}
