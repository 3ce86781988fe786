package contributors

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/rawblock/sentinel-engine/internal/blackboard"
	"github.com/rawblock/sentinel-engine/internal/patterns"
	"github.com/rawblock/sentinel-engine/internal/signals"
	"github.com/rawblock/sentinel-engine/internal/windows"
	"github.com/rawblock/sentinel-engine/pkg/models"
)

// Waveform reads the signature's request history and scores its shape:
// inter-arrival regularity, burst rates, path diversity, crawl order, and
// the page/asset mix. Humans are bursty, repetitive, and drag a tail of
// asset loads behind every page; crawlers are metronomic, wide, and skip
// the assets.
type Waveform struct {
	base
	windows *windows.Store
}

func NewWaveform(d Deps) *Waveform {
	return &Waveform{
		base:    newBase(d.Config, "waveform", 26, 50),
		windows: d.Windows,
	}
}

func (w *Waveform) Contribute(_ context.Context, s *blackboard.State) ([]models.DetectionContribution, error) {
	if w.windows == nil {
		return []models.DetectionContribution{blackboard.Info(w.name, CatBehavioral, "window store not configured")}, nil
	}

	req := s.Request
	sig := patterns.Signature(req.ClientIP, req.UserAgent())
	entry, ok := w.windows.Peek(sig)
	if !ok {
		return []models.DetectionContribution{blackboard.Info(w.name, CatBehavioral, "first request from this signature")}, nil
	}

	var (
		events                 []windows.RequestEvent
		pages, assets, apiHits int
		endpoints              int
	)
	entry.Visit(func(e *windows.Entry) {
		events = append([]windows.RequestEvent(nil), e.Requests...)
		pages, assets, apiHits = e.PageCount, e.AssetCount, e.APICount
		endpoints = len(e.Endpoints)
	})

	n := len(events)
	minHistory := w.intParam("min_history", 5)
	if n < minHistory {
		return []models.DetectionContribution{blackboard.Info(w.name, CatBehavioral, "insufficient history")}, nil
	}

	cv := timingCV(events)
	burst10 := countSince(events, req.ReceivedAt.Add(-10*time.Second))
	burst60 := countSince(events, req.ReceivedAt.Add(-60*time.Second))
	diversity := float64(endpoints) / float64(n)
	sequential := isSequentialScan(events)
	depthFirst := isDepthFirst(events)
	markov := pageToPageRatio(events)
	uaStable := uaStable(events)

	sigs := map[string]any{
		signals.WaveRequestCount:   n,
		signals.WaveTimingCV:       cv,
		signals.WaveBurst10s:       burst10,
		signals.WaveBurst60s:       burst60,
		signals.WavePathDiversity:  diversity,
		signals.WaveSequentialScan: sequential,
		signals.WaveDepthFirst:     depthFirst,
		signals.WaveMarkovScraper:  markov >= w.param("markov_threshold", 0.85),
		signals.WaveUAStable:       uaStable,
	}

	var out []models.DetectionContribution
	add := func(c models.DetectionContribution) {
		if sigs != nil {
			c = blackboard.WithSignals(c, sigs)
			sigs = nil
		}
		out = append(out, c)
	}

	if cv >= 0 && cv < w.param("metronome_cv", 0.10) && n >= 10 {
		add(blackboard.StrongBot(w.name, CatBehavioral, fmt.Sprintf("metronomic timing (cv=%.3f over %d requests)", cv, n), w.conf("metronomic", 0.80)))
	}
	if burst10 >= w.intParam("burst_10s", 30) {
		add(blackboard.Bot(w.name, CatBehavioral, fmt.Sprintf("%d requests in 10s", burst10), w.conf("burst", 0.70)))
	} else if burst60 >= w.intParam("burst_60s", 120) {
		add(blackboard.Bot(w.name, CatBehavioral, fmt.Sprintf("%d requests in 60s", burst60), w.conf("burst", 0.60)))
	}
	if sequential {
		add(blackboard.Bot(w.name, CatBehavioral, "sequential enumeration of paths", w.conf("sequential", 0.70)))
	}
	if pages >= w.intParam("min_pages_no_assets", 10) && assets == 0 {
		add(blackboard.Bot(w.name, CatBehavioral, fmt.Sprintf("%d pages fetched without a single asset", pages), w.conf("no_assets", 0.65)))
	}
	if markov >= w.param("markov_threshold", 0.85) && n >= 15 {
		add(blackboard.Bot(w.name, CatBehavioral, "page-to-page crawl with no interleaved loads", w.conf("markov", 0.55)))
	}
	if !uaStable {
		add(blackboard.Bot(w.name, CatBehavioral, "user-agent changed within the session", w.conf("ua_rotation", 0.60)))
	}

	if len(out) == 0 {
		human := pages > 0 && assets > pages
		if human {
			add(blackboard.Human(w.name, CatBehavioral, "organic page/asset cadence", w.conf("organic", 0.35)))
		} else {
			add(blackboard.Neutral(w.name, CatBehavioral, "unremarkable request rhythm"))
		}
	}
	_ = apiHits
	return out, nil
}

// timingCV is the coefficient of variation of inter-arrival intervals.
// Below ~0.1 means machine-regular; human traffic typically exceeds 1.
func timingCV(events []windows.RequestEvent) float64 {
	if len(events) < 3 {
		return -1
	}
	var gaps []float64
	for i := 1; i < len(events); i++ {
		gaps = append(gaps, events[i].Timestamp.Sub(events[i-1].Timestamp).Seconds())
	}
	var sum float64
	for _, g := range gaps {
		sum += g
	}
	mean := sum / float64(len(gaps))
	if mean <= 0 {
		return 0
	}
	var sq float64
	for _, g := range gaps {
		sq += (g - mean) * (g - mean)
	}
	return math.Sqrt(sq/float64(len(gaps))) / mean
}

func countSince(events []windows.RequestEvent, cutoff time.Time) int {
	n := 0
	for _, ev := range events {
		if ev.Timestamp.After(cutoff) {
			n++
		}
	}
	return n
}

// isSequentialScan detects ordered enumeration: trailing numeric path
// segments incrementing, or a long run of lexicographically sorted paths.
func isSequentialScan(events []windows.RequestEvent) bool {
	var nums []int
	sortedRun, longestRun := 1, 1
	for i, ev := range events {
		if v, ok := trailingInt(ev.Path); ok {
			nums = append(nums, v)
		}
		if i > 0 {
			if events[i].Path > events[i-1].Path {
				sortedRun++
				if sortedRun > longestRun {
					longestRun = sortedRun
				}
			} else {
				sortedRun = 1
			}
		}
	}
	if longestRun >= 8 {
		return true
	}
	if len(nums) < 5 {
		return false
	}
	increasing := 0
	for i := 1; i < len(nums); i++ {
		if nums[i] > nums[i-1] {
			increasing++
		}
	}
	return float64(increasing)/float64(len(nums)-1) >= 0.8
}

func trailingInt(path string) (int, bool) {
	idx := strings.LastIndex(path, "/")
	if idx < 0 || idx == len(path)-1 {
		return 0, false
	}
	v, err := strconv.Atoi(path[idx+1:])
	return v, err == nil
}

// isDepthFirst reports whether the crawl order tracks a sorted directory
// walk: most transitions either descend into the previous path or move to
// its sorted successor.
func isDepthFirst(events []windows.RequestEvent) bool {
	if len(events) < 10 {
		return false
	}
	paths := make([]string, len(events))
	for i, ev := range events {
		paths[i] = ev.Path
	}
	sorted := append([]string(nil), paths...)
	sort.Strings(sorted)
	matches := 0
	for i := range paths {
		if paths[i] == sorted[i] {
			matches++
		}
	}
	return float64(matches)/float64(len(paths)) >= 0.9
}

// pageToPageRatio is the fraction of transitions that go Page→Page. Browsers
// interleave asset and API loads between navigations; scrapers do not.
func pageToPageRatio(events []windows.RequestEvent) float64 {
	if len(events) < 2 {
		return 0
	}
	pp, total := 0, 0
	for i := 1; i < len(events); i++ {
		total++
		if events[i-1].ContentClass == windows.ClassPage && events[i].ContentClass == windows.ClassPage {
			pp++
		}
	}
	return float64(pp) / float64(total)
}

func uaStable(events []windows.RequestEvent) bool {
	first := ""
	for _, ev := range events {
		if ev.UserAgent == "" {
			continue
		}
		if first == "" {
			first = ev.UserAgent
		} else if ev.UserAgent != first {
			return false
		}
	}
	return true
}
