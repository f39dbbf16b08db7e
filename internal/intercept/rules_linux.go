//go:build linux

package intercept

import (
	"fmt"

	"github.com/coreos/go-iptables/iptables"
)

// ruleTable is the part of *iptables.IPTables the queue rule needs.
type ruleTable interface {
	Exists(table, chain string, rulespec ...string) (bool, error)
	Insert(table, chain string, pos int, rulespec ...string) error
	Delete(table, chain string, rulespec ...string) error
}

func newRuleTable() (ruleTable, error) {
	ipt, err := iptables.NewWithProtocol(iptables.ProtocolIPv4)
	if err != nil {
		return nil, fmt.Errorf("iptables: %w", err)
	}
	return ipt, nil
}

// installRule puts the queue rule at the head of the chain unless it is
// already there.
func installRule(t ruleTable, ops HookOps) error {
	spec := ops.RuleSpec()
	ok, err := t.Exists(ops.Table, ops.Chain, spec...)
	if err != nil {
		return fmt.Errorf("check rule in %s/%s: %w", ops.Table, ops.Chain, err)
	}
	if ok {
		return nil
	}
	if err := t.Insert(ops.Table, ops.Chain, 1, spec...); err != nil {
		return fmt.Errorf("insert rule into %s/%s: %w", ops.Table, ops.Chain, err)
	}
	return nil
}

// removeRule deletes the queue rule if present.
func removeRule(t ruleTable, ops HookOps) error {
	spec := ops.RuleSpec()
	ok, err := t.Exists(ops.Table, ops.Chain, spec...)
	if err != nil {
		return fmt.Errorf("check rule in %s/%s: %w", ops.Table, ops.Chain, err)
	}
	if !ok {
		return nil
	}
	if err := t.Delete(ops.Table, ops.Chain, spec...); err != nil {
		return fmt.Errorf("delete rule from %s/%s: %w", ops.Table, ops.Chain, err)
	}
	return nil
}
