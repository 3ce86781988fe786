// Package blackboard holds the shared per-request working state that
// contributors read from and write to, the trigger predicates that gate
// contributor eligibility, and the factory helpers for canonical
// contributions.
//
// Ownership model: the orchestrator exclusively owns one State per request.
// Contributors run concurrently within a wave, so every mutation goes through
// the State's mutex; reads see a snapshot consistent with all writes of
// previously completed contributors. There is no read-your-writes contract
// between siblings in the same wave.
package blackboard

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rawblock/sentinel-engine/pkg/models"
)

// State is the per-request blackboard.
type State struct {
	Request   *models.RequestSnapshot
	RequestID string
	StartedAt time.Time

	mu            sync.RWMutex
	signals       map[string]any
	contributions []models.DetectionContribution
	failed        map[string]bool
	completed     map[string]bool
	currentScore  float64
	earlyExit     models.Verdict
	earlyExitSet  bool
}

// NewState builds a fresh blackboard for one request.
func NewState(req *models.RequestSnapshot) *State {
	return &State{
		Request:      req,
		RequestID:    uuid.NewString(),
		StartedAt:    time.Now(),
		signals:      make(map[string]any),
		failed:       make(map[string]bool),
		completed:    make(map[string]bool),
		currentScore: 0.5, // undecided until the first wave aggregates
	}
}

// WriteSignal sets one signal. Last write wins; keys are partitioned by
// convention so same-wave collisions do not occur.
func (s *State) WriteSignal(key string, value any) {
	s.mu.Lock()
	s.signals[key] = value
	s.mu.Unlock()
}

// WriteSignals merges a batch of signals atomically.
func (s *State) WriteSignals(batch map[string]any) {
	if len(batch) == 0 {
		return
	}
	s.mu.Lock()
	for k, v := range batch {
		s.signals[k] = v
	}
	s.mu.Unlock()
}

// SignalExists reports whether the key has been written.
func (s *State) SignalExists(key string) bool {
	s.mu.RLock()
	_, ok := s.signals[key]
	s.mu.RUnlock()
	return ok
}

// Signal returns the raw value for a key.
func (s *State) Signal(key string) (any, bool) {
	s.mu.RLock()
	v, ok := s.signals[key]
	s.mu.RUnlock()
	return v, ok
}

// SignalBool returns a bool signal, false when absent or mistyped.
func (s *State) SignalBool(key string) bool {
	v, ok := s.Signal(key)
	if !ok {
		return false
	}
	b, _ := v.(bool)
	return b
}

// SignalString returns a string signal, "" when absent or mistyped.
func (s *State) SignalString(key string) string {
	v, ok := s.Signal(key)
	if !ok {
		return ""
	}
	str, _ := v.(string)
	return str
}

// SignalInt returns an int signal, 0 when absent. Accepts int or float64
// because signals that travel through JSON come back as float64.
func (s *State) SignalInt(key string) int {
	v, ok := s.Signal(key)
	if !ok {
		return 0
	}
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	}
	return 0
}

// SignalFloat returns a float signal, 0 when absent.
func (s *State) SignalFloat(key string) float64 {
	v, ok := s.Signal(key)
	if !ok {
		return 0
	}
	switch n := v.(type) {
	case float64:
		return n
	case int:
		return float64(n)
	case int64:
		return float64(n)
	}
	return 0
}

// SignalsCopy returns a point-in-time copy of the signal map.
func (s *State) SignalsCopy() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]any, len(s.signals))
	for k, v := range s.signals {
		out[k] = v
	}
	return out
}

// Append records a contributor's contributions and merges any attached
// signals in the same critical section, so a later reader never sees the
// contribution without its signals.
func (s *State) Append(detector string, contribs []models.DetectionContribution) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range contribs {
		s.contributions = append(s.contributions, c)
		for k, v := range c.Signals {
			s.signals[k] = v
		}
	}
	s.completed[detector] = true
}

// MarkFailed records a contributor that timed out, panicked, or errored.
func (s *State) MarkFailed(detector string) {
	s.mu.Lock()
	s.failed[detector] = true
	s.mu.Unlock()
}

// Contributions returns a copy of the ledger in completion order.
func (s *State) Contributions() []models.DetectionContribution {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.DetectionContribution, len(s.contributions))
	copy(out, s.contributions)
	return out
}

// CompletedCount reports how many contributors have finished successfully.
func (s *State) CompletedCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.completed)
}

// CompletedList returns the names of successfully completed contributors.
func (s *State) CompletedList() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.completed))
	for name := range s.completed {
		out = append(out, name)
	}
	return out
}

// FailedList returns the names of failed contributors.
func (s *State) FailedList() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.failed))
	for name := range s.failed {
		out = append(out, name)
	}
	return out
}

// SetScore updates the aggregate probability between waves.
func (s *State) SetScore(p float64) {
	s.mu.Lock()
	s.currentScore = p
	s.mu.Unlock()
}

// Score returns the aggregate probability as of the last completed wave.
func (s *State) Score() float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.currentScore
}

// SetEarlyExit records an authoritative verdict. Only the first one sticks.
func (s *State) SetEarlyExit(v models.Verdict) {
	s.mu.Lock()
	if !s.earlyExitSet {
		s.earlyExit = v
		s.earlyExitSet = true
	}
	s.mu.Unlock()
}

// EarlyExit returns the early-exit verdict, if any.
func (s *State) EarlyExit() (models.Verdict, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.earlyExit, s.earlyExitSet
}

// Elapsed is the wall-clock time since the blackboard was created.
func (s *State) Elapsed() time.Duration {
	return time.Since(s.StartedAt)
}
