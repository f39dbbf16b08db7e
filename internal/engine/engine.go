// Package engine runs packets through the classifier and reports the outcome.
package engine

import (
	"time"

	"firestige.xyz/scanguard/internal/classifier"
	"firestige.xyz/scanguard/internal/core"
)

// Event is one classified packet as seen by reporters.
type Event struct {
	Decision classifier.Decision
	Packet   core.RawPacket
	Latency  time.Duration
}

// Reporter receives every classification event. Report is called on the
// packet path and must not block.
type Reporter interface {
	Name() string
	Report(ev *Event)
}

// Engine classifies packets, counts outcomes and fans events out to reporters.
// It is safe for concurrent use.
type Engine struct {
	classifier *classifier.Classifier
	reporters  []Reporter
	counters   *counters
}

// New creates an engine over c.
func New(c *classifier.Classifier, reporters ...Reporter) *Engine {
	return &Engine{
		classifier: c,
		reporters:  reporters,
		counters:   newCounters(c.Table().RuleNames()),
	}
}

// Classifier returns the underlying classifier.
func (e *Engine) Classifier() *classifier.Classifier {
	return e.classifier
}

// Verdict classifies raw and returns its verdict. It never fails: packets
// whose headers cannot be extracted are accepted.
func (e *Engine) Verdict(raw core.RawPacket) core.Verdict {
	return e.Process(raw).Verdict
}

// Process classifies raw and returns the full decision.
func (e *Engine) Process(raw core.RawPacket) classifier.Decision {
	start := time.Now()
	d := e.classifier.ClassifyPacket(raw)
	latency := time.Since(start)

	e.counters.record(d, uint64(latency.Nanoseconds()))

	if len(e.reporters) > 0 {
		ev := Event{Decision: d, Packet: raw, Latency: latency}
		for _, r := range e.reporters {
			r.Report(&ev)
		}
	}
	return d
}

// Stats returns a snapshot of the counters.
func (e *Engine) Stats() Stats {
	return e.counters.snapshot()
}
