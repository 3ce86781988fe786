package contributors

import (
	"context"
	"strings"

	"github.com/rawblock/sentinel-engine/internal/blackboard"
	"github.com/rawblock/sentinel-engine/internal/botlist"
	"github.com/rawblock/sentinel-engine/internal/signals"
	"github.com/rawblock/sentinel-engine/pkg/models"
)

// BotList matches the UA against the curated pattern lists: offensive
// security tooling (conclusive on its own) and AI content scrapers (bot, but
// a policy question rather than an attack).
type BotList struct {
	base
	lists botlist.Fetcher
}

func NewBotList(d Deps) *BotList {
	lists := d.Lists
	if lists == nil {
		lists = botlist.StaticLists{}
	}
	return &BotList{
		base:  newBase(d.Config, "botlist", 18, 30),
		lists: lists,
	}
}

func (b *BotList) Contribute(_ context.Context, s *blackboard.State) ([]models.DetectionContribution, error) {
	lower := strings.ToLower(s.Request.UserAgent())
	if lower == "" {
		return []models.DetectionContribution{blackboard.Info(b.name, CatReputation, "no UA to match")}, nil
	}

	for _, pat := range b.lists.SecurityToolPatterns() {
		if strings.Contains(lower, pat) {
			c := blackboard.StrongBot(b.name, CatReputation, "security tool UA: "+pat, b.conf("security_tool", 0.95))
			c = blackboard.WithType(c, models.BotTypeMalicious, pat)
			return []models.DetectionContribution{blackboard.WithSignals(c, map[string]any{signals.BotSecurityTool: pat})}, nil
		}
	}

	for _, pat := range b.lists.AiScraperPatterns() {
		if strings.Contains(lower, pat) {
			c := blackboard.Bot(b.name, CatReputation, "AI scraper UA: "+pat, b.conf("ai_scraper", 0.70))
			c = blackboard.WithType(c, models.BotTypeAiBot, pat)
			return []models.DetectionContribution{blackboard.WithSignals(c, map[string]any{signals.BotAiScraper: pat})}, nil
		}
	}

	return []models.DetectionContribution{blackboard.Info(b.name, CatReputation, "UA not on any list")}, nil
}
