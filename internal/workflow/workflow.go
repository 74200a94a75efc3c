// Package workflow provides the status transition tables shared by the
// appointment, document, e-signature, e-stamp, and payment lifecycles.
package workflow

import (
	"errors"
	"fmt"
)

// Status is a lifecycle state of a workflow entity.
type Status string

// Action is a named operation that moves an entity between states.
type Action string

// ErrInvalidTransition indicates the requested action is not allowed from the
// entity's current status.
var ErrInvalidTransition = errors.New("invalid status transition")

type key struct {
	from   Status
	action Action
}

// Edge declares that Action applied in From yields To.
type Edge struct {
	From   Status
	Action Action
	To     Status
}

// Table is an immutable (status, action) -> status map for one entity type.
type Table struct {
	entity string
	next   map[key]Status
}

// New builds a transition table. Duplicate (from, action) pairs panic: tables
// are package-level constants and a duplicate is a programming error.
func New(entity string, edges ...Edge) *Table {
	t := &Table{entity: entity, next: make(map[key]Status, len(edges))}
	for _, e := range edges {
		k := key{from: e.From, action: e.Action}
		if _, dup := t.next[k]; dup {
			panic(fmt.Sprintf("workflow: duplicate edge %s/%s for %s", e.From, e.Action, entity))
		}
		t.next[k] = e.To
	}
	return t
}

// Apply returns the status reached by performing action in from, or
// ErrInvalidTransition (wrapped with entity, status, and action) when the
// table has no such edge.
func (t *Table) Apply(from Status, action Action) (Status, error) {
	to, ok := t.next[key{from: from, action: action}]
	if !ok {
		return "", fmt.Errorf("%w: %s cannot %s while %s", ErrInvalidTransition, t.entity, action, from)
	}
	return to, nil
}

// Can reports whether action is allowed from the given status.
func (t *Table) Can(from Status, action Action) bool {
	_, ok := t.next[key{from: from, action: action}]
	return ok
}
