package provider

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sync"
)

// Simulated is a stand-in analyzer producing plausible payloads without
// touching the network. All five capability kinds share the same
// machinery; the payload shape varies per kind. A fixed seed makes the
// output deterministic for tests.
type Simulated struct {
	kind Kind

	mu  sync.Mutex
	rng *rand.Rand
}

// NewSimulated creates a simulated provider for the given kind.
func NewSimulated(kind Kind, seed uint64) *Simulated {
	return &Simulated{
		kind: kind,
		rng:  rand.New(rand.NewPCG(seed, seed)),
	}
}

// SimulatedSet returns a registry holding a simulated provider for every
// capability kind.
func SimulatedSet(seed uint64) *Registry {
	reg := NewRegistry()
	for i, kind := range Kinds {
		_ = reg.Register(NewSimulated(kind, seed+uint64(i)))
	}
	return reg
}

func (s *Simulated) Name() string { return "simulated_" + string(s.kind) }

func (s *Simulated) Kind() Kind { return s.kind }

// Analyze produces the payload for the provider's kind.
func (s *Simulated) Analyze(ctx context.Context, target string) (map[string]any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if target == "" {
		return nil, fmt.Errorf("%s: empty target", s.Name())
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.kind {
	case KindPerformance:
		return map[string]any{
			"url":                    target,
			"performanceScore":       s.score(),
			"accessibilityScore":     s.score(),
			"bestPracticesScore":     s.score(),
			"seoScore":               s.score(),
			"largestContentfulPaint": 800 + s.rng.IntN(3200), // ms
			"cumulativeLayoutShift":  float64(s.rng.IntN(25)) / 100,
			"totalBlockingTime":      s.rng.IntN(600), // ms
		}, nil
	case KindKeyword:
		keywords := make([]map[string]any, 0, 5)
		for i := 0; i < 5; i++ {
			trend := "down"
			if s.rng.IntN(2) == 0 {
				trend = "up"
			}
			keywords = append(keywords, map[string]any{
				"keyword":    fmt.Sprintf("term-%d", i+1),
				"volume":     s.rng.IntN(10000),
				"difficulty": s.rng.IntN(100),
				"trend":      trend,
			})
		}
		return map[string]any{"url": target, "keywords": keywords}, nil
	case KindContent:
		return map[string]any{
			"url":         target,
			"wordCount":   500 + s.rng.IntN(1000),
			"readability": s.rng.IntN(100),
			"headings": map[string]any{
				"h1": s.rng.IntN(3),
				"h2": s.rng.IntN(10),
				"h3": s.rng.IntN(15),
			},
		}, nil
	case KindBacklink:
		return map[string]any{
			"url":              target,
			"referringDomains": s.rng.IntN(500),
			"newLinks":         s.rng.IntN(40),
			"lostLinks":        s.rng.IntN(20),
		}, nil
	default: // KindSEO
		return map[string]any{
			"url":           target,
			"overallScore":  s.score(),
			"indexedPages":  1 + s.rng.IntN(2000),
			"crawlWarnings": s.rng.IntN(15),
		}, nil
	}
}

func (s *Simulated) score() int { return 40 + s.rng.IntN(61) }
