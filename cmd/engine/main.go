package main

import (
	"context"
	"log"
	"os"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rawblock/sentinel-engine/internal/aggregate"
	"github.com/rawblock/sentinel-engine/internal/alerts"
	"github.com/rawblock/sentinel-engine/internal/api"
	"github.com/rawblock/sentinel-engine/internal/botlist"
	"github.com/rawblock/sentinel-engine/internal/config"
	"github.com/rawblock/sentinel-engine/internal/contributors"
	"github.com/rawblock/sentinel-engine/internal/orchestrator"
	"github.com/rawblock/sentinel-engine/internal/reputation"
	"github.com/rawblock/sentinel-engine/internal/shadow"
	"github.com/rawblock/sentinel-engine/internal/windows"
)

func main() {
	log.Println("Starting Sentinel Bot Detection Engine...")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ─── Configuration ──────────────────────────────────────────────────
	// Detector manifests are optional; every threshold has a shipped
	// default. Credentials MUST come from environment variables; use a
	// .env file for local development: cp .env.example .env && edit .env
	// ────────────────────────────────────────────────────────────────────

	cfg, err := config.Load(getEnvOrDefault("DETECTOR_CONFIG_DIR", "configs"))
	if err != nil {
		log.Fatalf("FATAL: Invalid detector manifests: %v", err)
	}

	// Verdict history store. Optional: without DATABASE_URL the engine runs
	// purely in-memory and the reputation_bias contributor stays dormant.
	var history *reputation.PostgresStore
	if dbURL := os.Getenv("DATABASE_URL"); dbURL != "" {
		history, err = reputation.Connect(dbURL)
		if err != nil {
			log.Printf("Warning: Failed to connect to PostgreSQL, continuing without verdict history. Error: %v", err)
			history = nil
		} else {
			defer history.Close()
			if err := history.InitSchema(); err != nil {
				log.Printf("Warning: DB schema init failed: %v", err)
			}
		}
	}

	// Reputation cache: Redis when configured (shared across replicas),
	// in-process otherwise.
	var repCache reputation.Cache = reputation.NewMemoryCache()
	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		redisCache, err := reputation.NewRedisCache(addr, os.Getenv("REDIS_PASSWORD"), 0)
		if err != nil {
			log.Printf("Warning: Failed to connect to Redis at %s, falling back to in-memory reputation cache: %v", addr, err)
		} else {
			defer redisCache.Close()
			repCache = redisCache
		}
	}

	maintainer := reputation.NewMaintainer(repCache, cfg)
	countries := reputation.NewCountryTracker()

	// Sliding behavior windows with a background sweeper.
	win := windows.NewStore(windows.Options{})
	go win.RunSweeper(ctx, time.Minute)

	// Bot list: static shipped patterns, refreshed remotely when URLs are
	// configured.
	var lists botlist.Fetcher = botlist.StaticLists{}
	if secURL := os.Getenv("BOTLIST_SECURITY_URL"); secURL != "" {
		fetcher := botlist.NewHTTPFetcher(secURL, os.Getenv("BOTLIST_AI_URL"), 6*time.Hour)
		go fetcher.Run(ctx)
		lists = fetcher
	}
	registry := botlist.NewRegistry(nil)

	fleet := contributors.DefaultSet(contributors.Deps{
		Config:     cfg,
		Reputation: repCache,
		TimeSeries: timeSeriesOrNil(history),
		Windows:    win,
		Registry:   registry,
		Lists:      lists,
		Countries:  countries,
	})

	agg := aggregate.New(cfg)
	engine := orchestrator.New(fleet, agg, win, orchestrator.Options{
		Budget:     envDuration("REQUEST_BUDGET", 2*time.Second),
		Maintainer: maintainer,
		History:    verdictRecorderOrNil(history),
		Countries:  countries,
	})

	// WebSocket hub for the live verdict/alert stream.
	wsHub := api.NewHub()
	go wsHub.Run()

	alertMgr := alerts.NewManager(api.BroadcastAlert(wsHub))
	registerWebhooks(alertMgr)

	// Shadow mode: re-score every ledger under a candidate aggregator
	// loaded from its own manifest directory.
	var shadowRun *shadow.Runner
	if api.IsShadowEnabled() {
		shadowCfg, err := config.Load(getEnvOrDefault("SHADOW_CONFIG_DIR", "configs/shadow"))
		if err != nil {
			log.Fatalf("FATAL: Invalid shadow manifests: %v", err)
		}
		candidateID := getEnvOrDefault("SHADOW_CANDIDATE_ID", "candidate")
		var pool *pgxpool.Pool
		if history != nil {
			pool = history.Pool()
		}
		shadowRun = shadow.NewRunner(pool, candidateID, aggregate.New(shadowCfg))
		log.Printf("Shadow mode enabled, candidate: %s", candidateID)
	}

	r := api.SetupRouter(api.Deps{
		Engine:    engine,
		RepCache:  repCache,
		History:   history,
		Countries: countries,
		Windows:   win,
		Alerts:    alertMgr,
		Hub:       wsHub,
		Shadow:    shadowRun,
	})

	port := getEnvOrDefault("PORT", "8470")
	log.Printf("Engine running on :%s\n", port)
	if err := r.Run(":" + port); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}

// registerWebhooks wires alert receivers from ALERT_WEBHOOKS, a
// comma-separated list of name=url pairs. ALERT_WEBHOOK_MIN_SEVERITY applies
// to all of them.
func registerWebhooks(am *alerts.Manager) {
	raw := os.Getenv("ALERT_WEBHOOKS")
	if raw == "" {
		return
	}
	minSeverity := getEnvOrDefault("ALERT_WEBHOOK_MIN_SEVERITY", "high")
	for _, pair := range strings.Split(raw, ",") {
		name, url, ok := strings.Cut(strings.TrimSpace(pair), "=")
		if !ok || name == "" || url == "" {
			log.Printf("Warning: skipping malformed ALERT_WEBHOOKS entry %q", pair)
			continue
		}
		am.RegisterWebhook(name, url, minSeverity, nil)
	}
}

// timeSeriesOrNil avoids handing contributors a typed nil interface.
func timeSeriesOrNil(s *reputation.PostgresStore) reputation.TimeSeriesProvider {
	if s == nil {
		return nil
	}
	return s
}

func verdictRecorderOrNil(s *reputation.PostgresStore) orchestrator.VerdictRecorder {
	if s == nil {
		return nil
	}
	return s
}

// getEnvOrDefault returns the env var value or a safe default for non-secret settings.
func getEnvOrDefault(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
		log.Printf("Warning: invalid duration in %s, using %v", key, fallback)
	}
	return fallback
}
