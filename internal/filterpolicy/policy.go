// Package filterpolicy implements the Filter Policy: a hot-reloadable
// set of allow/deny rules the Order Poller consults before ever
// invoking a handler.
package filterpolicy

import (
	"github.com/ethereum/go-ethereum/common"
)

// Action is the outcome of evaluating a conditional order against the
// policy.
type Action string

const (
	// ActionAllow lets the poll proceed to the handler library.
	ActionAllow Action = "allow"
	// ActionSkip withholds this block's poll but keeps the conditional
	// order in the registry for a future block.
	ActionSkip Action = "skip"
	// ActionDrop deletes the conditional order from the registry
	// entirely.
	ActionDrop Action = "drop"
)

// Policy is the wire/config shape of a filter policy document: a
// default action plus four optional override dictionaries.
// Evaluation order, most specific first: conditional-order ID,
// transaction hash, owner address, handler address, then the default.
type Policy struct {
	DefaultAction Action `yaml:"defaultAction" json:"defaultAction"`

	ByConditionalOrderID map[string]Action `yaml:"byConditionalOrderId" json:"byConditionalOrderId"`
	ByTransaction        map[string]Action `yaml:"byTransaction" json:"byTransaction"`
	ByOwner              map[string]Action `yaml:"byOwner" json:"byOwner"`
	ByHandler            map[string]Action `yaml:"byHandler" json:"byHandler"`
}

// Empty returns the permissive default policy: allow everything,
// override nothing. Used before the first successful reload.
func Empty() *Policy {
	return &Policy{DefaultAction: ActionAllow}
}

// Query names the identifiers an evaluation needs, let through as
// plain values rather than forcing callers to build a struct keyed
// off the registry's internal types.
type Query struct {
	ConditionalOrderID common.Hash
	Transaction        common.Hash
	Owner              common.Address
	Handler            common.Address
}

// Evaluate returns the action for a query, walking the override
// dictionaries from most to least specific before falling back to the
// default action.
func (p *Policy) Evaluate(q Query) Action {
	if p == nil {
		return ActionAllow
	}

	if action, ok := lookup(p.ByConditionalOrderID, q.ConditionalOrderID.Hex()); ok {
		return action
	}
	if action, ok := lookup(p.ByTransaction, q.Transaction.Hex()); ok {
		return action
	}
	if action, ok := lookup(p.ByOwner, q.Owner.Hex()); ok {
		return action
	}
	if action, ok := lookup(p.ByHandler, q.Handler.Hex()); ok {
		return action
	}

	if p.DefaultAction == "" {
		return ActionAllow
	}
	return p.DefaultAction
}

func lookup(m map[string]Action, key string) (Action, bool) {
	if m == nil {
		return "", false
	}
	action, ok := m[key]
	return action, ok
}
