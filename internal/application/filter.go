package application

import "time"

// Column names understood by every LogStore implementation.
const (
	FieldNetwork     = "network"
	FieldStrategy    = "strategy"
	FieldBlockNumber = "block_number"
	FieldTxHash      = "tx_hash"
	FieldRemoved     = "removed"
	FieldCreatedAt   = "created_at"
)

type ConstraintOp int

const (
	OpEquals ConstraintOp = iota
	// OpSubstring is case-insensitive containment.
	OpSubstring
	OpGreaterOrEqual
	OpInSet
)

// Constraint is one atomic condition applied to the store. A query is the
// logical AND of its constraints. Built per refresh, consumed once.
type Constraint struct {
	Op     ConstraintOp
	Field  string
	Value  any
	Values []string // OpInSet only
}

// FilterState holds the operator's current criteria. Any zero field means
// "no constraint". Removed is tri-state: nil, true and false are three
// distinct outcomes.
type FilterState struct {
	Network        string
	Strategy       string
	BlockNumber    uint64
	TxHash         string
	Removed        *bool
	CreatedAfter   *time.Time
	ShowDuplicates bool
}

// BuildConstraints maps a FilterState to its constraint list. Constraints
// are ANDed, so emission order does not affect results, but the fixed field
// order below is kept deterministic.
//
// BlockNumber 0 is treated as unset: an operator cannot filter for block 0.
// This mirrors the original operator tooling and is kept on purpose.
func BuildConstraints(state FilterState) []Constraint {
	constraints := make([]Constraint, 0, 6)

	if state.Network != "" {
		constraints = append(constraints, Constraint{Op: OpEquals, Field: FieldNetwork, Value: state.Network})
	}
	if state.Strategy != "" {
		constraints = append(constraints, Constraint{Op: OpEquals, Field: FieldStrategy, Value: state.Strategy})
	}
	if state.BlockNumber != 0 {
		constraints = append(constraints, Constraint{Op: OpEquals, Field: FieldBlockNumber, Value: state.BlockNumber})
	}
	if state.TxHash != "" {
		constraints = append(constraints, Constraint{Op: OpSubstring, Field: FieldTxHash, Value: state.TxHash})
	}
	if state.Removed != nil {
		constraints = append(constraints, Constraint{Op: OpEquals, Field: FieldRemoved, Value: *state.Removed})
	}
	if state.CreatedAfter != nil {
		constraints = append(constraints, Constraint{Op: OpGreaterOrEqual, Field: FieldCreatedAt, Value: state.CreatedAfter.UTC()})
	}
	return constraints
}
