package contributors

import (
	"context"
	"fmt"
	"sync"

	"github.com/rawblock/sentinel-engine/internal/blackboard"
	"github.com/rawblock/sentinel-engine/internal/signals"
	"github.com/rawblock/sentinel-engine/pkg/models"
)

// Cluster groups requests online by a coarse quantization of the feature
// vector and tracks each bucket's running bot rate. A botnet rotating IPs
// still lands its members in one bucket; the bucket's record then indicts
// every member. State is process-local and bounded.
type Cluster struct {
	base

	mu       sync.Mutex
	clusters map[string]*clusterStat
	maxSize  int
}

type clusterStat struct {
	size     int
	botRate  float64 // EMA of the running score observed at membership time
}

func NewCluster(d Deps) *Cluster {
	return &Cluster{
		base:     newBase(d.Config, "cluster", 52, 50, blackboard.DetectorCount(8)),
		clusters: make(map[string]*clusterStat),
		maxSize:  5000,
	}
}

// quantize buckets each vector dimension to one decimal so near-identical
// clients collide.
func quantize(vec []float64) string {
	out := make([]byte, 0, len(vec)*3)
	for _, v := range vec {
		out = append(out, byte('0'+int(v*9.999)), ',')
	}
	return string(out)
}

func (c *Cluster) Contribute(_ context.Context, s *blackboard.State) ([]models.DetectionContribution, error) {
	id := quantize(featureVector(s))
	score := s.Score()

	c.mu.Lock()
	stat, ok := c.clusters[id]
	if !ok {
		if len(c.clusters) >= c.maxSize {
			// Full table: drop the observation rather than evicting under the
			// request path.
			c.mu.Unlock()
			return []models.DetectionContribution{blackboard.Info(c.name, CatModel, "cluster table full")}, nil
		}
		stat = &clusterStat{botRate: score}
		c.clusters[id] = stat
	} else {
		const alpha = 0.2
		stat.botRate = alpha*score + (1-alpha)*stat.botRate
	}
	stat.size++
	size, rate := stat.size, stat.botRate
	c.mu.Unlock()

	// Write through the state so the signals land even when the
	// contribution below is informational.
	s.WriteSignals(map[string]any{
		signals.ClusterID:       id,
		signals.ClusterSize:     size,
		signals.ClusterBotRatio: rate,
	})

	minSize := c.intParam("min_cluster_size", 10)
	switch {
	case size >= minSize && rate >= c.param("bot_rate", 0.80):
		contrib := blackboard.StrongBot(c.name, CatModel, fmt.Sprintf("member of a %d-strong cluster running %.0f%% bot", size, rate*100), c.conf("bot_cluster", 0.70))
		return []models.DetectionContribution{contrib}, nil
	case size >= minSize && rate <= c.param("human_rate", 0.20):
		contrib := blackboard.Human(c.name, CatModel, fmt.Sprintf("member of a clean %d-strong cluster", size), c.conf("human_cluster", 0.30))
		return []models.DetectionContribution{contrib}, nil
	}
	return []models.DetectionContribution{blackboard.Info(c.name, CatModel, "cluster membership recorded")}, nil
}
