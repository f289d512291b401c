// Package conditions decides whether an entity is worth committing.
//
// A chain is an ordered predicate list evaluated short-circuit AND,
// bracketed by two built-in checks the list cannot override: the entity
// must still be valid, and it must actually carry unsaved changes.
package conditions

import (
	"fmt"
	"strings"

	"autosaved/internal/host"
	"autosaved/pkg/logx"
)

// Predicate is one configured eligibility check. Checks must be free of
// side effects: the chain stops at the first false and later predicates
// never run.
type Predicate struct {
	Name  string
	Check func(h host.Host, id host.EntityID) bool
}

// Chain evaluates predicates in insertion order. Convention puts cheap
// structural checks first and diagnostic lookups last, but order is the
// caller's to choose.
type Chain struct {
	host  host.Host
	preds []Predicate
	log   logx.Logger
}

func NewChain(h host.Host, preds []Predicate, log logx.Logger) *Chain {
	return &Chain{host: h, preds: append([]Predicate(nil), preds...), log: log}
}

// ShouldSave reports whether id is currently eligible for a commit.
// Entities that vanished between scheduling and checking are simply not
// eligible; that race is expected, not an error.
func (c *Chain) ShouldSave(id host.EntityID) bool {
	if id == host.None || !c.host.IsValid(id) {
		return false
	}
	for _, p := range c.preds {
		if !p.Check(c.host, id) {
			c.log.Trace("conditions: rejected",
				logx.Int64("entity", int64(id)), logx.String("condition", p.Name))
			return false
		}
	}
	// The floor: never commit an entity with nothing to commit.
	return c.host.IsModified(id)
}

// ---- stock predicates ----

// FileExists requires the entity's backing file to exist.
func FileExists() Predicate {
	return Predicate{Name: "file_exists", Check: func(h host.Host, id host.EntityID) bool {
		return h.FileExists(id)
	}}
}

// Named requires a non-empty entity name (unnamed scratch entities have
// nowhere to be written).
func Named() Predicate {
	return Predicate{Name: "named", Check: func(h host.Host, id host.EntityID) bool {
		return strings.TrimSpace(h.Name(id)) != ""
	}}
}

// NoErrors requires the entity to carry no error diagnostics.
func NoErrors() Predicate {
	return Predicate{Name: "no_errors", Check: func(h host.Host, id host.EntityID) bool {
		return !h.HasErrors(id)
	}}
}

// Modified mirrors the built-in floor as an explicit list entry, useful
// for placing it early to cut off expensive later checks.
func Modified() Predicate {
	return Predicate{Name: "modified", Check: func(h host.Host, id host.EntityID) bool {
		return h.IsModified(id)
	}}
}

// FiletypeNot rejects entities whose filetype is in the given list.
// Matching is case-insensitive.
func FiletypeNot(types ...string) Predicate {
	deny := make(map[string]struct{}, len(types))
	for _, ft := range types {
		deny[strings.ToLower(strings.TrimSpace(ft))] = struct{}{}
	}
	return Predicate{Name: "filetype_not", Check: func(h host.Host, id host.EntityID) bool {
		_, blocked := deny[strings.ToLower(h.Filetype(id))]
		return !blocked
	}}
}

// NameNot rejects entities whose name is in the given list.
func NameNot(names ...string) Predicate {
	deny := toSet(names)
	return Predicate{Name: "name_not", Check: func(h host.Host, id host.EntityID) bool {
		_, blocked := deny[h.Name(id)]
		return !blocked
	}}
}

func toSet(items []string) map[string]struct{} {
	m := make(map[string]struct{}, len(items))
	for _, it := range items {
		m[strings.TrimSpace(it)] = struct{}{}
	}
	return m
}

// FromSpec resolves a configured condition name (plus optional
// arguments) to a stock predicate. Unknown names are a configuration
// error.
func FromSpec(name string, args []string) (Predicate, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "file_exists":
		return FileExists(), nil
	case "named":
		return Named(), nil
	case "no_errors":
		return NoErrors(), nil
	case "modified":
		return Modified(), nil
	case "filetype_not":
		return FiletypeNot(args...), nil
	case "name_not":
		return NameNot(args...), nil
	default:
		return Predicate{}, fmt.Errorf("unknown condition %q", name)
	}
}
