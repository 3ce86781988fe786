package reputation

import (
	"sort"
	"sync"
)

// CountryTracker keeps a per-country bot-rate EMA. It feeds the correlation
// contributor (Accept-Language vs origin country plausibility) and the
// dashboard's top-offender view.
type CountryTracker struct {
	mu    sync.RWMutex
	rates map[string]*countryStat
	alpha float64
}

type countryStat struct {
	BotRate float64
	Seen    int64
}

// CountryRate is one row of the top-offenders report.
type CountryRate struct {
	Country string  `json:"country"`
	BotRate float64 `json:"botRate"`
	Seen    int64   `json:"seen"`
}

// NewCountryTracker creates an empty tracker.
func NewCountryTracker() *CountryTracker {
	return &CountryTracker{rates: make(map[string]*countryStat), alpha: 0.05}
}

// RecordDetection folds one verdict into the country's rate.
func (t *CountryTracker) RecordDetection(countryCode, _ string, isBot bool, probability float64) {
	if countryCode == "" {
		return
	}
	observed := probability
	if isBot && observed < 0.5 {
		observed = 0.5
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	stat, ok := t.rates[countryCode]
	if !ok {
		stat = &countryStat{BotRate: observed}
		t.rates[countryCode] = stat
	} else {
		stat.BotRate = t.alpha*observed + (1-t.alpha)*stat.BotRate
	}
	stat.Seen++
}

// GetCountryBotRate returns the EMA bot rate for a country, 0 when unseen.
func (t *CountryTracker) GetCountryBotRate(code string) float64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if stat, ok := t.rates[code]; ok {
		return stat.BotRate
	}
	return 0
}

// GetTopBotCountries returns the n countries with the highest bot rates,
// requiring a minimum observation count so one-off hits don't top the list.
func (t *CountryTracker) GetTopBotCountries(n int) []CountryRate {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]CountryRate, 0, len(t.rates))
	for code, stat := range t.rates {
		if stat.Seen < 5 {
			continue
		}
		out = append(out, CountryRate{Country: code, BotRate: stat.BotRate, Seen: stat.Seen})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].BotRate != out[j].BotRate {
			return out[i].BotRate > out[j].BotRate
		}
		return out[i].Country < out[j].Country
	})
	if n > 0 && len(out) > n {
		out = out[:n]
	}
	return out
}
