// Package spell implements composable block transformations and an engine
// that applies them across an object graph. A spell inspects or rewrites
// blocks one at a time; the engine owns traversal order, cycle handling
// and the bookkeeping around deletions.
package spell

import "github.com/formaproject/forma/model"

// Action tells the engine what to do with a block after a spell ran on it.
type Action int

const (
	// ActionNone leaves the block untouched.
	ActionNone Action = iota
	// ActionReplace swaps the block's value for Result.Value.
	ActionReplace
	// ActionDelete detaches the block from the graph.
	ActionDelete
)

func (a Action) String() string {
	switch a {
	case ActionNone:
		return "none"
	case ActionReplace:
		return "replace"
	case ActionDelete:
		return "delete"
	default:
		return "unknown"
	}
}

// Result is the outcome of applying a spell to a single block.
type Result struct {
	Action Action
	// Value is the replacement value when Action is ActionReplace.
	Value *model.Value
}

// Spell is a single transformation over blocks. Spells are applied in
// registration order; composing spells whose effects do not commute, such
// as one deleting a block another still expects to see, is the caller's
// responsibility.
type Spell interface {
	// Name identifies the spell in reports and logs.
	Name() string

	// Applicable reports whether the spell wants to see blocks of the
	// given type. The engine still visits inapplicable blocks to reach
	// their children, it just skips the Entry call.
	Applicable(typeName string) bool

	// Entry runs the spell on one block. An error aborts the whole run.
	Entry(b *model.Block) (Result, error)

	// Recurse reports whether the walk may descend into b's children.
	// The engine descends when at least one registered spell allows it.
	Recurse(b *model.Block) bool
}

// Base is a no-op Spell meant for embedding. Overriding Entry, and
// usually Applicable, gives a working spell without restating the rest.
type Base struct {
	SpellName string
}

func (s Base) Name() string {
	if s.SpellName != "" {
		return s.SpellName
	}
	return "spell"
}

func (Base) Applicable(string) bool { return true }

func (Base) Entry(*model.Block) (Result, error) { return Result{}, nil }

func (Base) Recurse(*model.Block) bool { return true }
