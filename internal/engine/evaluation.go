package engine

import (
	"fmt"
)

// Label is the ground truth of a replayed capture.
type Label string

const (
	// LabelScan marks scan traffic that should be dropped.
	LabelScan Label = "scan"
	// LabelBenign marks normal traffic that should be accepted.
	LabelBenign Label = "benign"
)

// ParseLabel validates a label name.
func ParseLabel(s string) (Label, error) {
	switch l := Label(s); l {
	case LabelScan, LabelBenign:
		return l, nil
	}
	return "", fmt.Errorf("unknown label %q (must be %s/%s)", s, LabelScan, LabelBenign)
}

// RuleScore rates one rule against labelled traffic.
type RuleScore struct {
	Rule          string  `json:"rule" yaml:"rule"`
	ScanMatches   uint64  `json:"scan_matches" yaml:"scan_matches"`
	BenignMatches uint64  `json:"benign_matches" yaml:"benign_matches"`
	Precision     float64 `json:"precision" yaml:"precision"`
	Recall        float64 `json:"recall" yaml:"recall"`
}

// Evaluation scores the drop verdict against labelled traffic, treating
// scan as the positive class.
type Evaluation struct {
	TruePositives  uint64      `json:"true_positives" yaml:"true_positives"`
	FalsePositives uint64      `json:"false_positives" yaml:"false_positives"`
	TrueNegatives  uint64      `json:"true_negatives" yaml:"true_negatives"`
	FalseNegatives uint64      `json:"false_negatives" yaml:"false_negatives"`
	Precision      float64     `json:"precision" yaml:"precision"`
	Recall         float64     `json:"recall" yaml:"recall"`
	F1             float64     `json:"f1" yaml:"f1"`
	Accuracy       float64     `json:"accuracy" yaml:"accuracy"`
	Rules          []RuleScore `json:"rules" yaml:"rules"`
}

// Evaluate compares the stats of scan-labelled and benign-labelled traffic.
// A rule's recall is the share of all scan packets it matched.
func Evaluate(ruleNames []string, scan, benign Stats) Evaluation {
	e := Evaluation{
		TruePositives:  scan.Dropped,
		FalseNegatives: scan.Accepted,
		FalsePositives: benign.Dropped,
		TrueNegatives:  benign.Accepted,
	}
	e.Precision = ratio(e.TruePositives, e.TruePositives+e.FalsePositives)
	e.Recall = ratio(e.TruePositives, e.TruePositives+e.FalseNegatives)
	if e.Precision+e.Recall > 0 {
		e.F1 = 2 * e.Precision * e.Recall / (e.Precision + e.Recall)
	}
	e.Accuracy = ratio(e.TruePositives+e.TrueNegatives, scan.Received+benign.Received)

	for _, name := range ruleNames {
		s, b := scan.RuleMatches[name], benign.RuleMatches[name]
		e.Rules = append(e.Rules, RuleScore{
			Rule:          name,
			ScanMatches:   s,
			BenignMatches: b,
			Precision:     ratio(s, s+b),
			Recall:        ratio(s, scan.Received),
		})
	}
	return e
}

func ratio(n, d uint64) float64 {
	if d == 0 {
		return 0
	}
	return float64(n) / float64(d)
}

// Merge adds the counters of o to s.
func (s Stats) Merge(o Stats) Stats {
	out := Stats{
		Received:      s.Received + o.Received,
		Accepted:      s.Accepted + o.Accepted,
		Dropped:       s.Dropped + o.Dropped,
		ExtractErrors: mergeCounts(s.ExtractErrors, o.ExtractErrors),
		RuleMatches:   mergeCounts(s.RuleMatches, o.RuleMatches),
		Reasons:       mergeCounts(s.Reasons, o.Reasons),
	}
	if out.Received > 0 {
		out.AvgLatencyNanos = (s.AvgLatencyNanos*s.Received + o.AvgLatencyNanos*o.Received) / out.Received
	}
	return out
}

func mergeCounts(a, b map[string]uint64) map[string]uint64 {
	out := make(map[string]uint64, len(a))
	for k, v := range a {
		out[k] += v
	}
	for k, v := range b {
		out[k] += v
	}
	return out
}
