// Package classifier decides whether a packet is a reconnaissance scan packet.
//
// A Classifier is stateless apart from its read-only signature table and may
// be shared by any number of goroutines.
package classifier

import (
	"firestige.xyz/scanguard/internal/core"
	"firestige.xyz/scanguard/internal/core/decoder"
)

// Reason says why a decision came out the way it did.
type Reason string

const (
	ReasonMatched      Reason = "matched"
	ReasonNoMatch      Reason = "no-match"
	ReasonWindowGate   Reason = "window-gate"
	ReasonNotTCP       Reason = "not-tcp"
	ReasonExtractError Reason = "extract-error"
)

// Decision is the classification event for one packet.
type Decision struct {
	Verdict core.Verdict
	Rule    string // matched rule name, empty when none matched
	Reason  Reason
	Err     error // extraction error, set only for ReasonExtractError
	View    core.HeaderView
}

// Matched reports whether a signature matched.
func (d Decision) Matched() bool {
	return d.Reason == ReasonMatched
}

// Classifier evaluates a signature table.
type Classifier struct {
	table Table
}

// New creates a classifier over table. The table is copied.
func New(table Table) *Classifier {
	t := Table{
		Gate:  table.Gate,
		Rules: append([]Rule(nil), table.Rules...),
	}
	t.Gate.Windows = append([]uint16(nil), table.Gate.Windows...)
	return &Classifier{table: t}
}

// Table returns a copy of the signature table.
func (c *Classifier) Table() Table {
	return New(c.table).table
}

// Classify returns the verdict of the first matching rule, or accept.
func (c *Classifier) Classify(view core.HeaderView) Decision {
	d := Decision{Verdict: core.VerdictAccept, View: view}

	if view.Protocol != core.ProtocolTCP {
		d.Reason = ReasonNotTCP
		return d
	}
	if !c.table.Gate.Allows(&view) {
		d.Reason = ReasonWindowGate
		return d
	}

	for i := range c.table.Rules {
		rule := &c.table.Rules[i]
		if rule.Match(&view) {
			d.Verdict = rule.Verdict
			d.Rule = rule.Name
			d.Reason = ReasonMatched
			return d
		}
	}

	d.Reason = ReasonNoMatch
	return d
}

// ClassifyPacket extracts the header view from raw and classifies it.
// Packets that cannot be extracted are accepted.
func (c *Classifier) ClassifyPacket(raw core.RawPacket) Decision {
	view, err := decoder.Decode(raw)
	if err != nil {
		return Decision{
			Verdict: core.VerdictAccept,
			Reason:  ReasonExtractError,
			Err:     err,
		}
	}
	return c.Classify(view)
}
