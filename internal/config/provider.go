// Package config loads per-detector manifests. Each contributor has one
// logical YAML document:
//
//	useragent:
//	  priority: 10
//	  timing:
//	    timeout_ms: 50
//	  defaults:
//	    confidence:
//	      bot_detected: 0.80
//	      strong_signal: 0.90
//	      human_signal: 0.30
//	  parameters:
//	    missing_ua_confidence: 0.75
//	    suspicious_tokens: [curl, wget, python-requests]
//
// Every numeric threshold in the engine is a default that a manifest can
// override; contributors never hard-code tunables.
package config

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"
)

// Provider is the read interface contributors consume.
type Provider interface {
	Priority(detector string, def int) int
	TimeoutMS(detector string, def int) int
	Confidence(detector, kind string, def float64) float64
	Param(detector, name string, def float64) float64
	IntParam(detector, name string, def int) int
	BoolParam(detector, name string, def bool) bool
	StringParam(detector, name, def string) string
	StringListParam(detector, name string) []string
}

type manifest struct {
	Priority *int `yaml:"priority"`
	Timing   struct {
		TimeoutMS *int `yaml:"timeout_ms"`
	} `yaml:"timing"`
	Defaults struct {
		Confidence map[string]float64 `yaml:"confidence"`
	} `yaml:"defaults"`
	Parameters map[string]any `yaml:"parameters"`
}

// YAMLProvider holds the parsed manifests. Reads are lock-free after load;
// Reload swaps the whole map under the mutex.
type YAMLProvider struct {
	mu        sync.RWMutex
	manifests map[string]manifest
}

// Load parses every *.yaml / *.yml file in dir. Each file may contain one or
// more top-level detector entries. Missing directory yields an empty provider
// (all defaults apply), not an error: the engine must run unconfigured.
func Load(dir string) (*YAMLProvider, error) {
	p := &YAMLProvider{manifests: map[string]manifest{}}
	if dir == "" {
		return p, nil
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			log.Printf("[Config] Manifest directory %s not found, running on defaults", dir)
			return p, nil
		}
		return nil, fmt.Errorf("reading manifest dir: %w", err)
	}

	for _, e := range entries {
		ext := filepath.Ext(e.Name())
		if e.IsDir() || (ext != ".yaml" && ext != ".yml") {
			continue
		}
		raw, err := os.ReadFile(filepath.Join(dir, e.Name()))
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", e.Name(), err)
		}
		if err := p.mergeDocument(raw); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", e.Name(), err)
		}
	}
	log.Printf("[Config] Loaded %d detector manifests from %s", len(p.manifests), dir)
	return p, nil
}

// LoadBytes parses a single YAML document of detector manifests.
func LoadBytes(raw []byte) (*YAMLProvider, error) {
	p := &YAMLProvider{manifests: map[string]manifest{}}
	if err := p.mergeDocument(raw); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *YAMLProvider) mergeDocument(raw []byte) error {
	var doc map[string]manifest
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	for name, m := range doc {
		p.manifests[name] = m
	}
	return nil
}

func (p *YAMLProvider) get(detector string) (manifest, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	m, ok := p.manifests[detector]
	return m, ok
}

func (p *YAMLProvider) Priority(detector string, def int) int {
	if m, ok := p.get(detector); ok && m.Priority != nil {
		return *m.Priority
	}
	return def
}

func (p *YAMLProvider) TimeoutMS(detector string, def int) int {
	if m, ok := p.get(detector); ok && m.Timing.TimeoutMS != nil {
		return *m.Timing.TimeoutMS
	}
	return def
}

func (p *YAMLProvider) Confidence(detector, kind string, def float64) float64 {
	if m, ok := p.get(detector); ok {
		if v, ok := m.Defaults.Confidence[kind]; ok {
			return v
		}
	}
	return def
}

func (p *YAMLProvider) Param(detector, name string, def float64) float64 {
	m, ok := p.get(detector)
	if !ok {
		return def
	}
	switch v := m.Parameters[name].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	default:
		return def
	}
}

func (p *YAMLProvider) IntParam(detector, name string, def int) int {
	m, ok := p.get(detector)
	if !ok {
		return def
	}
	switch v := m.Parameters[name].(type) {
	case int:
		return v
	case float64:
		return int(v)
	default:
		return def
	}
}

func (p *YAMLProvider) BoolParam(detector, name string, def bool) bool {
	if m, ok := p.get(detector); ok {
		if v, ok := m.Parameters[name].(bool); ok {
			return v
		}
	}
	return def
}

func (p *YAMLProvider) StringParam(detector, name, def string) string {
	if m, ok := p.get(detector); ok {
		if v, ok := m.Parameters[name].(string); ok {
			return v
		}
	}
	return def
}

func (p *YAMLProvider) StringListParam(detector, name string) []string {
	m, ok := p.get(detector)
	if !ok {
		return nil
	}
	raw, ok := m.Parameters[name].([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

// Static is a fixed-value provider used by tests and by the engine when no
// manifests are configured. The zero value answers every lookup with the
// caller's default.
type Static struct{}

func (Static) Priority(_ string, def int) int                 { return def }
func (Static) TimeoutMS(_ string, def int) int                { return def }
func (Static) Confidence(_, _ string, def float64) float64    { return def }
func (Static) Param(_, _ string, def float64) float64         { return def }
func (Static) IntParam(_, _ string, def int) int              { return def }
func (Static) BoolParam(_, _ string, def bool) bool           { return def }
func (Static) StringParam(_, _, def string) string            { return def }
func (Static) StringListParam(_, _ string) []string           { return nil }
