package classifier

import (
	"fmt"
	"slices"

	"firestige.xyz/scanguard/internal/core"
)

// Signature names as reported in decisions, logs and metrics.
const (
	GateWindow = "window gate"
	RuleXMAS   = "XMAS scan"
	RuleFIN    = "FIN scan"
	RuleNULL   = "NULL scan"
	RuleSYN    = "SYN scan"
)

// Predicate is a pure function over a TCP header view.
type Predicate func(view *core.HeaderView) bool

// Rule is one named scan signature.
type Rule struct {
	Name        string
	Description string
	Match       Predicate
	Verdict     core.Verdict
}

// Gate is the precondition every rule sits behind: the advertised window
// must be one of Windows, otherwise no rule is evaluated.
type Gate struct {
	Name        string
	Description string
	Windows     []uint16
}

// Allows reports whether the view passes the gate.
func (g Gate) Allows(view *core.HeaderView) bool {
	for _, w := range g.Windows {
		if view.Window == w {
			return true
		}
	}
	return false
}

// Table is the ordered signature table. Rules are evaluated top to bottom and
// the first match wins.
type Table struct {
	Gate  Gate
	Rules []Rule
}

// DefaultWindowGate returns the window sizes the gate lets through.
// These match the defaults of common scanning tools, so scans with any other
// window are never examined.
func DefaultWindowGate() []uint16 {
	return []uint16{1024, 2048, 3072, 4096}
}

// DefaultRules returns the scan signatures in priority order.
//
// The last rule drops any FIN packet the earlier rules let through and is
// reported as a SYN scan although it never looks at SYN. Both that label and
// the window gate are kept as deployed.
func DefaultRules() []Rule {
	return []Rule{
		{
			Name:        RuleXMAS,
			Description: "FIN, PSH and URG all set",
			Verdict:     core.VerdictDrop,
			Match: func(v *core.HeaderView) bool {
				return v.Flags.Has(core.FlagFIN | core.FlagPSH | core.FlagURG)
			},
		},
		{
			Name:        RuleFIN,
			Description: "FIN set, CWR ECE URG ACK PSH RST SYN clear",
			Verdict:     core.VerdictDrop,
			Match: func(v *core.HeaderView) bool {
				return v.Flags.Only(core.FlagFIN)
			},
		},
		{
			Name:        RuleNULL,
			Description: "no control flag set",
			Verdict:     core.VerdictDrop,
			Match: func(v *core.HeaderView) bool {
				return v.Flags == 0
			},
		},
		{
			Name:        RuleSYN,
			Description: "FIN set",
			Verdict:     core.VerdictDrop,
			Match: func(v *core.HeaderView) bool {
				return v.Flags.Has(core.FlagFIN)
			},
		},
	}
}

// DefaultTable returns the deployed signature table.
func DefaultTable() Table {
	t, _ := NewTable(DefaultWindowGate())
	return t
}

// NewTable builds the signature table with the given window gate.
func NewTable(windows []uint16) (Table, error) {
	if len(windows) == 0 {
		return Table{}, fmt.Errorf("%w: window gate must not be empty", core.ErrConfigInvalid)
	}

	gate := slices.Clone(windows)
	slices.Sort(gate)
	gate = slices.Compact(gate)

	return Table{
		Gate: Gate{
			Name:        GateWindow,
			Description: fmt.Sprintf("window in %v", gate),
			Windows:     gate,
		},
		Rules: DefaultRules(),
	}, nil
}

// RuleNames lists rule names in evaluation order.
func (t Table) RuleNames() []string {
	names := make([]string, len(t.Rules))
	for i, r := range t.Rules {
		names[i] = r.Name
	}
	return names
}

// RuleInfo is the printable form of a table row.
type RuleInfo struct {
	Name      string `json:"name" yaml:"name"`
	Predicate string `json:"predicate" yaml:"predicate"`
	Verdict   string `json:"verdict" yaml:"verdict"`
}

// Describe lists the gate followed by the rules in evaluation order. The gate
// row has no verdict of its own: failing it accepts the packet.
func (t Table) Describe() []RuleInfo {
	rows := make([]RuleInfo, 0, len(t.Rules)+1)
	rows = append(rows, RuleInfo{
		Name:      t.Gate.Name,
		Predicate: t.Gate.Description,
		Verdict:   "accept if false",
	})
	for _, r := range t.Rules {
		rows = append(rows, RuleInfo{Name: r.Name, Predicate: r.Description, Verdict: r.Verdict.String()})
	}
	return rows
}
