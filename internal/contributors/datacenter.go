package contributors

import (
	"context"
	"net"

	"github.com/rawblock/sentinel-engine/internal/blackboard"
	"github.com/rawblock/sentinel-engine/internal/signals"
	"github.com/rawblock/sentinel-engine/pkg/models"
)

// Representative hosting-provider ranges shipped as a fallback when no
// DatacenterResolver is wired. Real deployments plug in a full ASN feed.
var fallbackDCRanges = []struct {
	cidr string
	org  string
}{
	{"3.0.0.0/9", "AWS"},
	{"13.32.0.0/12", "AWS"},
	{"34.64.0.0/10", "GCP"},
	{"35.184.0.0/13", "GCP"},
	{"20.33.0.0/16", "Azure"},
	{"40.74.0.0/15", "Azure"},
	{"104.16.0.0/13", "Cloudflare"},
	{"159.65.0.0/16", "DigitalOcean"},
	{"167.99.0.0/16", "DigitalOcean"},
	{"135.181.0.0/16", "Hetzner"},
	{"65.108.0.0/15", "Hetzner"},
	{"51.68.0.0/16", "OVH"},
	{"145.239.0.0/16", "OVH"},
}

// Datacenter flags clients connecting from hosting-provider address space.
// Humans browse from residential and mobile networks; an origin inside AWS
// or Hetzner is a mild bot lean on its own and a strong one in combination
// with a consumer browser UA (the correlation contributor owns that cross).
type Datacenter struct {
	base
	resolver DatacenterResolver
	nets     []*net.IPNet
	orgs     []string
}

func NewDatacenter(d Deps) *Datacenter {
	dc := &Datacenter{
		base:     newBase(d.Config, "datacenter", 19, 30),
		resolver: d.Datacenter,
	}
	for _, r := range fallbackDCRanges {
		if _, n, err := net.ParseCIDR(r.cidr); err == nil {
			dc.nets = append(dc.nets, n)
			dc.orgs = append(dc.orgs, r.org)
		}
	}
	return dc
}

func (d *Datacenter) lookup(ip string) (bool, string) {
	if d.resolver != nil {
		return d.resolver.IsDatacenter(ip)
	}
	parsed := net.ParseIP(ip)
	if parsed == nil {
		return false, ""
	}
	for i, n := range d.nets {
		if n.Contains(parsed) {
			return true, d.orgs[i]
		}
	}
	return false, ""
}

func (d *Datacenter) Contribute(_ context.Context, s *blackboard.State) ([]models.DetectionContribution, error) {
	isDC, org := d.lookup(s.Request.ClientIP)
	if !isDC {
		return []models.DetectionContribution{
			blackboard.WithSignals(blackboard.Info(d.name, CatReputation, "not a known hosting range"), map[string]any{signals.IPIsDatacenter: false}),
		}, nil
	}

	sigs := map[string]any{
		signals.IPIsDatacenter: true,
		signals.IPASNOrg:       org,
	}
	c := blackboard.Bot(d.name, CatReputation, "client address in "+org+" hosting range", d.conf("datacenter_ip", 0.35))
	return []models.DetectionContribution{blackboard.WithSignals(c, sigs)}, nil
}
