package botlist

import (
	"bufio"
	"context"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"
)

// Fetcher supplies the UA substring lists the botlist contributor matches
// against: offensive security tooling and AI content scrapers. The shipped
// lists are embedded; an HTTP source can replace them on a refresh interval.
type Fetcher interface {
	SecurityToolPatterns() []string
	AiScraperPatterns() []string
}

// Shipped defaults. All lowercase; matching is case-insensitive substring.
var defaultSecurityTools = []string{
	"sqlmap", "nikto", "nmap", "masscan", "zgrab", "nuclei", "gobuster",
	"dirbuster", "wfuzz", "ffuf", "feroxbuster", "httpx", "whatweb",
	"wpscan", "joomscan", "acunetix", "nessus", "openvas", "qualys",
	"burp", "zaproxy", "arachni", "metasploit", "hydra",
}

var defaultAiScrapers = []string{
	"gptbot", "claudebot", "ccbot", "google-extended", "anthropic-ai",
	"bytespider", "img2dataset", "omgili", "diffbot", "cohere-ai",
	"perplexitybot", "youbot", "timpibot", "amazonbot",
}

// StaticLists serves the embedded lists.
type StaticLists struct{}

func (StaticLists) SecurityToolPatterns() []string { return defaultSecurityTools }
func (StaticLists) AiScraperPatterns() []string    { return defaultAiScrapers }

// HTTPFetcher pulls newline-delimited pattern lists from two URLs on an
// interval, falling back to the shipped defaults until the first successful
// fetch and across fetch failures.
type HTTPFetcher struct {
	securityURL string
	aiURL       string
	interval    time.Duration
	client      *http.Client

	mu       sync.RWMutex
	security []string
	ai       []string
}

// NewHTTPFetcher creates a fetcher. Call Run to start the refresh loop.
func NewHTTPFetcher(securityURL, aiURL string, interval time.Duration) *HTTPFetcher {
	if interval <= 0 {
		interval = 6 * time.Hour
	}
	return &HTTPFetcher{
		securityURL: securityURL,
		aiURL:       aiURL,
		interval:    interval,
		client:      &http.Client{Timeout: 10 * time.Second},
		security:    defaultSecurityTools,
		ai:          defaultAiScrapers,
	}
}

func (f *HTTPFetcher) SecurityToolPatterns() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.security
}

func (f *HTTPFetcher) AiScraperPatterns() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.ai
}

// Run refreshes both lists until ctx is done. The first refresh happens
// immediately.
func (f *HTTPFetcher) Run(ctx context.Context) {
	f.refresh(ctx)
	ticker := time.NewTicker(f.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			f.refresh(ctx)
		}
	}
}

func (f *HTTPFetcher) refresh(ctx context.Context) {
	if list, err := f.fetchList(ctx, f.securityURL); err == nil && len(list) > 0 {
		f.mu.Lock()
		f.security = list
		f.mu.Unlock()
		log.Printf("[BotList] Refreshed %d security-tool patterns", len(list))
	} else if err != nil {
		log.Printf("[BotList] Security list refresh failed, keeping previous: %v", err)
	}

	if list, err := f.fetchList(ctx, f.aiURL); err == nil && len(list) > 0 {
		f.mu.Lock()
		f.ai = list
		f.mu.Unlock()
		log.Printf("[BotList] Refreshed %d AI-scraper patterns", len(list))
	} else if err != nil {
		log.Printf("[BotList] AI list refresh failed, keeping previous: %v", err)
	}
}

func (f *HTTPFetcher) fetchList(ctx context.Context, url string) ([]string, error) {
	if url == "" {
		return nil, nil
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var out []string
	sc := bufio.NewScanner(resp.Body)
	for sc.Scan() {
		line := strings.ToLower(strings.TrimSpace(sc.Text()))
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		out = append(out, line)
	}
	return out, sc.Err()
}
