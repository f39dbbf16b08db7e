package engine

import (
	"errors"
	"sync/atomic"

	"firestige.xyz/scanguard/internal/classifier"
	"firestige.xyz/scanguard/internal/core"
)

// Extract error labels.
const (
	ExtractTruncated = "truncated"
	ExtractNotIPv4   = "not-ipv4"
	ExtractOther     = "other"
)

var reasons = []classifier.Reason{
	classifier.ReasonMatched,
	classifier.ReasonNoMatch,
	classifier.ReasonWindowGate,
	classifier.ReasonNotTCP,
	classifier.ReasonExtractError,
}

// counters holds the engine's packet counters. The maps are filled once at
// construction and only read afterwards.
type counters struct {
	received atomic.Uint64
	accepted atomic.Uint64
	dropped  atomic.Uint64

	extractErrors map[string]*atomic.Uint64
	rules         map[string]*atomic.Uint64
	reasons       map[classifier.Reason]*atomic.Uint64

	latencyNanos atomic.Uint64
}

func newCounters(ruleNames []string) *counters {
	c := &counters{
		extractErrors: make(map[string]*atomic.Uint64, 3),
		rules:         make(map[string]*atomic.Uint64, len(ruleNames)),
		reasons:       make(map[classifier.Reason]*atomic.Uint64, len(reasons)),
	}
	for _, name := range []string{ExtractTruncated, ExtractNotIPv4, ExtractOther} {
		c.extractErrors[name] = new(atomic.Uint64)
	}
	for _, name := range ruleNames {
		c.rules[name] = new(atomic.Uint64)
	}
	for _, r := range reasons {
		c.reasons[r] = new(atomic.Uint64)
	}
	return c
}

func (c *counters) record(d classifier.Decision, latencyNanos uint64) {
	c.received.Add(1)
	c.latencyNanos.Add(latencyNanos)

	if d.Verdict == core.VerdictDrop {
		c.dropped.Add(1)
	} else {
		c.accepted.Add(1)
	}
	if n, ok := c.reasons[d.Reason]; ok {
		n.Add(1)
	}
	if d.Rule != "" {
		if n, ok := c.rules[d.Rule]; ok {
			n.Add(1)
		}
	}
	if d.Err != nil {
		c.extractErrors[ExtractReason(d.Err)].Add(1)
	}
}

func (c *counters) snapshot() Stats {
	s := Stats{
		Received:      c.received.Load(),
		Accepted:      c.accepted.Load(),
		Dropped:       c.dropped.Load(),
		ExtractErrors: make(map[string]uint64, len(c.extractErrors)),
		RuleMatches:   make(map[string]uint64, len(c.rules)),
		Reasons:       make(map[string]uint64, len(c.reasons)),
	}
	for k, v := range c.extractErrors {
		s.ExtractErrors[k] = v.Load()
	}
	for k, v := range c.rules {
		s.RuleMatches[k] = v.Load()
	}
	for k, v := range c.reasons {
		s.Reasons[string(k)] = v.Load()
	}
	if s.Received > 0 {
		s.AvgLatencyNanos = c.latencyNanos.Load() / s.Received
	}
	return s
}

// ExtractReason maps an extraction error to its label.
func ExtractReason(err error) string {
	switch {
	case errors.Is(err, core.ErrTruncated):
		return ExtractTruncated
	case errors.Is(err, core.ErrNotIPv4):
		return ExtractNotIPv4
	default:
		return ExtractOther
	}
}

// Stats is a point-in-time copy of the engine counters.
type Stats struct {
	Received        uint64            `json:"received"`
	Accepted        uint64            `json:"accepted"`
	Dropped         uint64            `json:"dropped"`
	ExtractErrors   map[string]uint64 `json:"extract_errors"`
	RuleMatches     map[string]uint64 `json:"rule_matches"`
	Reasons         map[string]uint64 `json:"reasons"`
	AvgLatencyNanos uint64            `json:"avg_latency_ns"`
}
