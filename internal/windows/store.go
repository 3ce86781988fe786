// Package windows provides the per-signature sliding-window history caches
// that history-sensitive contributors (waveform, stream abuse, account
// takeover, geo change, cache behavior) read and update.
//
// Keying: `{clientIp}:{shortHash(userAgent)}` — see patterns.Signature.
// Each entry holds bounded deques of recent events with a sliding
// expiration; the store as a whole is capped by an LRU so a spray of
// one-request signatures cannot exhaust memory.
package windows

import (
	"context"
	"log"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru"
)

// ContentClass coarsely classifies what a request was for.
type ContentClass string

const (
	ClassPage  ContentClass = "Page"  // HTML navigation
	ClassAsset ContentClass = "Asset" // JS/CSS/image/font
	ClassAPI   ContentClass = "API"   // JSON/XML/GraphQL
)

// ClassifyPath infers the content class from the request path. UpdateLast
// refines it once response headers are known.
func ClassifyPath(path string) ContentClass {
	for _, ext := range []string{".js", ".css", ".png", ".jpg", ".jpeg", ".gif", ".svg", ".ico", ".woff", ".woff2", ".ttf", ".webp", ".map"} {
		if len(path) > len(ext) && path[len(path)-len(ext):] == ext {
			return ClassAsset
		}
	}
	if len(path) >= 5 && path[:5] == "/api/" {
		return ClassAPI
	}
	if len(path) >= 8 && path[:8] == "/graphql" {
		return ClassAPI
	}
	return ClassPage
}

var loginPaths = []string{
	"/login", "/signin", "/sign-in", "/auth", "/api/auth", "/api/login",
	"/session", "/sessions", "/oauth/token", "/wp-login.php", "/account/login",
}

// IsLoginPath reports whether the path is an authentication endpoint. Both
// the account-takeover contributor and the response backfill key on it.
func IsLoginPath(path string) bool {
	lower := strings.ToLower(path)
	for _, p := range loginPaths {
		if lower == p || strings.HasPrefix(lower, p+"/") {
			return true
		}
	}
	return false
}

// ClassifyContentType maps a response Content-Type onto a content class,
// overriding the path-based guess once the response is known. Returns ""
// for types that say nothing either way.
func ClassifyContentType(contentType string) ContentClass {
	ct := strings.ToLower(strings.TrimSpace(contentType))
	if i := strings.Index(ct, ";"); i >= 0 {
		ct = strings.TrimSpace(ct[:i])
	}
	switch {
	case ct == "text/html" || ct == "application/xhtml+xml":
		return ClassPage
	case ct == "application/json" || ct == "application/xml" || ct == "text/xml" ||
		ct == "application/graphql" || strings.HasSuffix(ct, "+json") || strings.HasSuffix(ct, "+xml"):
		return ClassAPI
	case ct == "text/css" || strings.Contains(ct, "javascript") ||
		strings.HasPrefix(ct, "image/") || strings.HasPrefix(ct, "font/"):
		return ClassAsset
	}
	return ""
}

// RequestEvent is one observed request in a signature's history.
type RequestEvent struct {
	Timestamp    time.Time
	Method       string
	Path         string
	Status       int // 0 until the response is known
	UserAgent    string
	RefererHash  string
	ContentClass ContentClass
}

// LoginAttempt records activity against a login endpoint.
type LoginAttempt struct {
	Timestamp time.Time
	Method    string
	Failed    bool
}

// Entry is the full sliding-window state for one signature. All access goes
// through the entry's mutex; the store hands out pointers, not copies.
type Entry struct {
	mu sync.Mutex

	Signature string
	LastSeen  time.Time

	Requests      []RequestEvent
	LoginAttempts []LoginAttempt
	WSUpgrades    []time.Time
	SSEReconnects []time.Time
	Endpoints     map[string]struct{}

	PageCount   int
	AssetCount  int
	APICount    int
	StreamCount int

	LastCountry    string
	Countries      []string // ordered distinct
	CountryChanges []time.Time
}

// Store is the signature-keyed sliding-window cache.
type Store struct {
	entries   *lru.Cache
	window    time.Duration
	maxEvents int
}

// Options tunes a store. Zero values take the defaults (30 min window,
// 100 events per entry, 10k signatures).
type Options struct {
	Window        time.Duration
	MaxEvents     int
	MaxSignatures int
}

// NewStore builds a store.
func NewStore(opts Options) *Store {
	if opts.Window <= 0 {
		opts.Window = 30 * time.Minute
	}
	if opts.MaxEvents <= 0 {
		opts.MaxEvents = 100
	}
	if opts.MaxSignatures <= 0 {
		opts.MaxSignatures = 10000
	}
	cache, _ := lru.New(opts.MaxSignatures)
	return &Store{
		entries:   cache,
		window:    opts.Window,
		maxEvents: opts.MaxEvents,
	}
}

// Window returns the sliding window duration.
func (s *Store) Window() time.Duration { return s.window }

// GetOrCreate returns the entry for a signature, creating it on first sight.
func (s *Store) GetOrCreate(signature string) *Entry {
	if v, ok := s.entries.Get(signature); ok {
		return v.(*Entry)
	}
	e := &Entry{
		Signature: signature,
		Endpoints: make(map[string]struct{}),
		LastSeen:  time.Now(),
	}
	// Racing creators: ContainsOrAdd keeps the first one.
	if existed, _ := s.entries.ContainsOrAdd(signature, e); existed {
		if v, ok := s.entries.Get(signature); ok {
			return v.(*Entry)
		}
	}
	return e
}

// Peek returns the entry without creating one.
func (s *Store) Peek(signature string) (*Entry, bool) {
	if v, ok := s.entries.Get(signature); ok {
		return v.(*Entry), true
	}
	return nil, false
}

// Update appends a request event to the signature's window: prune events
// older than the cutoff, append, cap the deque.
func (s *Store) Update(signature string, ev RequestEvent) *Entry {
	e := s.GetOrCreate(signature)
	cutoff := ev.Timestamp.Add(-s.window)

	e.mu.Lock()
	defer e.mu.Unlock()

	e.Requests = pruneEvents(e.Requests, cutoff)
	e.Requests = append(e.Requests, ev)
	if len(e.Requests) > s.maxEvents {
		e.Requests = e.Requests[len(e.Requests)-s.maxEvents:]
	}

	e.Endpoints[ev.Path] = struct{}{}
	switch ev.ContentClass {
	case ClassPage:
		e.PageCount++
	case ClassAsset:
		e.AssetCount++
	case ClassAPI:
		e.APICount++
	}
	e.LastSeen = ev.Timestamp
	return e
}

// UpdateLast amends the most recent event, typically to backfill the status
// code and reclassify the content class from the actual response
// Content-Type.
func (s *Store) UpdateLast(signature string, amend func(*RequestEvent)) bool {
	e, ok := s.Peek(signature)
	if !ok {
		return false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.Requests) == 0 {
		return false
	}
	last := &e.Requests[len(e.Requests)-1]
	before := last.ContentClass
	amend(last)
	if last.ContentClass != before {
		// Keep the per-class counters consistent with the reclassification.
		decClass(e, before)
		incClass(e, last.ContentClass)
	}
	return true
}

// MarkLastLoginFailed flags the most recent login attempt as failed, once the
// response status is known. Returns false when there is nothing to amend.
func (s *Store) MarkLastLoginFailed(signature string) bool {
	e, ok := s.Peek(signature)
	if !ok {
		return false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.LoginAttempts) == 0 {
		return false
	}
	e.LoginAttempts[len(e.LoginAttempts)-1].Failed = true
	return true
}

// Visit runs fn under the entry's lock. History-sensitive contributors use
// this to read and amend window state in one critical section.
func (e *Entry) Visit(fn func(*Entry)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	fn(e)
}

// RecordLogin appends a login attempt, pruned to the window.
func (s *Store) RecordLogin(signature string, attempt LoginAttempt) {
	e := s.GetOrCreate(signature)
	cutoff := attempt.Timestamp.Add(-s.window)
	e.mu.Lock()
	defer e.mu.Unlock()
	kept := e.LoginAttempts[:0]
	for _, a := range e.LoginAttempts {
		if a.Timestamp.After(cutoff) {
			kept = append(kept, a)
		}
	}
	e.LoginAttempts = append(kept, attempt)
	e.LastSeen = attempt.Timestamp
}

// RecordWSUpgrade appends a WebSocket upgrade timestamp.
func (s *Store) RecordWSUpgrade(signature string, at time.Time) {
	e := s.GetOrCreate(signature)
	e.mu.Lock()
	defer e.mu.Unlock()
	e.WSUpgrades = pruneTimes(e.WSUpgrades, at.Add(-s.window))
	e.WSUpgrades = append(e.WSUpgrades, at)
	e.StreamCount++
	e.LastSeen = at
}

// RecordSSEReconnect appends an SSE reconnect timestamp.
func (s *Store) RecordSSEReconnect(signature string, at time.Time) {
	e := s.GetOrCreate(signature)
	e.mu.Lock()
	defer e.mu.Unlock()
	e.SSEReconnects = pruneTimes(e.SSEReconnects, at.Add(-s.window))
	e.SSEReconnects = append(e.SSEReconnects, at)
	e.StreamCount++
	e.LastSeen = at
}

// RecordCountry updates the geo history; returns true when the country
// changed from the previous observation.
func (s *Store) RecordCountry(signature, country string, at time.Time) bool {
	if country == "" {
		return false
	}
	e := s.GetOrCreate(signature)
	e.mu.Lock()
	defer e.mu.Unlock()
	e.LastSeen = at

	if e.LastCountry == country {
		return false
	}
	changed := e.LastCountry != ""
	e.LastCountry = country
	seen := false
	for _, c := range e.Countries {
		if c == country {
			seen = true
			break
		}
	}
	if !seen {
		e.Countries = append(e.Countries, country)
	}
	if changed {
		e.CountryChanges = pruneTimes(e.CountryChanges, at.Add(-s.window))
		e.CountryChanges = append(e.CountryChanges, at)
	}
	return changed
}

// Sweep evicts signatures idle for longer than the window. Returns the
// number evicted.
func (s *Store) Sweep(now time.Time) int {
	evicted := 0
	for _, key := range s.entries.Keys() {
		v, ok := s.entries.Peek(key)
		if !ok {
			continue
		}
		e := v.(*Entry)
		e.mu.Lock()
		idle := now.Sub(e.LastSeen)
		e.mu.Unlock()
		if idle > s.window {
			s.entries.Remove(key)
			evicted++
		}
	}
	return evicted
}

// RunSweeper runs Sweep on an interval until ctx is done.
func (s *Store) RunSweeper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if n := s.Sweep(now); n > 0 {
				log.Printf("[Windows] Swept %d stale signatures (%d live)", n, s.entries.Len())
			}
		}
	}
}

// Len returns the number of live signatures.
func (s *Store) Len() int { return s.entries.Len() }

func pruneEvents(events []RequestEvent, cutoff time.Time) []RequestEvent {
	kept := events[:0]
	for _, ev := range events {
		if ev.Timestamp.After(cutoff) {
			kept = append(kept, ev)
		}
	}
	return kept
}

func pruneTimes(times []time.Time, cutoff time.Time) []time.Time {
	kept := times[:0]
	for _, t := range times {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	return kept
}

func incClass(e *Entry, c ContentClass) {
	switch c {
	case ClassPage:
		e.PageCount++
	case ClassAsset:
		e.AssetCount++
	case ClassAPI:
		e.APICount++
	}
}

func decClass(e *Entry, c ContentClass) {
	switch c {
	case ClassPage:
		if e.PageCount > 0 {
			e.PageCount--
		}
	case ClassAsset:
		if e.AssetCount > 0 {
			e.AssetCount--
		}
	case ClassAPI:
		if e.APICount > 0 {
			e.APICount--
		}
	}
}
