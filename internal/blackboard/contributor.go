package blackboard

import (
	"context"
	"time"

	"github.com/rawblock/sentinel-engine/pkg/models"
)

// Contributor is the contract every analyzer implements.
//
// Rules:
//   - Contribute must be idempotent within a single request.
//   - It must respect ctx cancellation and never block unboundedly.
//   - It may write signals via State.WriteSignal/WriteSignals; those writes
//     become visible to later waves.
//   - It should return at least one Info contribution so its execution is
//     observable in the ledger; returning an error (or panicking) records it
//     in failed_detectors instead.
//   - It must not mutate contributions other contributors produced.
type Contributor interface {
	Name() string
	Priority() int // lower runs earlier when wave membership ties
	TriggerConditions() []Trigger
	ExecutionTimeout() time.Duration
	Contribute(ctx context.Context, s *State) ([]models.DetectionContribution, error)
}

// Eligible reports whether all the contributor's triggers pass. An empty
// trigger list is unconditionally eligible.
func Eligible(c Contributor, s *State) bool {
	for _, t := range c.TriggerConditions() {
		if !t.Eval(s) {
			return false
		}
	}
	return true
}
