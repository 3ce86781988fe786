package blackboard

import "github.com/rawblock/sentinel-engine/pkg/models"

// Trigger is a pure predicate over the blackboard. A contributor with an
// empty trigger list runs unconditionally in the first wave; otherwise it
// becomes eligible in the first wave where all its triggers evaluate true.
// Evaluation must be deterministic given the state.
type Trigger interface {
	Eval(s *State) bool
}

// SignalExists is true iff the key is present on the blackboard.
type SignalExists string

func (t SignalExists) Eval(s *State) bool {
	return s.SignalExists(string(t))
}

// AllOf is true iff every child is true. An empty AllOf is true.
type AllOf []Trigger

func (t AllOf) Eval(s *State) bool {
	for _, child := range t {
		if !child.Eval(s) {
			return false
		}
	}
	return true
}

// AnyOf is true iff at least one child is true. An empty AnyOf is false.
type AnyOf []Trigger

func (t AnyOf) Eval(s *State) bool {
	for _, child := range t {
		if child.Eval(s) {
			return true
		}
	}
	return false
}

// DetectorCount is true once at least n contributors have completed.
type DetectorCount int

func (t DetectorCount) Eval(s *State) bool {
	return s.CompletedCount() >= int(t)
}

// RiskThreshold is true once the current aggregate probability has reached
// the named band or a higher one.
type RiskThreshold models.RiskBand

var bandOrder = map[models.RiskBand]int{
	models.RiskNone:     0,
	models.RiskLow:      1,
	models.RiskElevated: 2,
	models.RiskMedium:   3,
	models.RiskHigh:     4,
	models.RiskCritical: 5,
}

func (t RiskThreshold) Eval(s *State) bool {
	current := models.RiskBandFor(s.Score())
	return bandOrder[current] >= bandOrder[models.RiskBand(t)]
}
