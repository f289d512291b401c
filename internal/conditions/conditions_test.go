package conditions

import (
	"testing"

	"autosaved/internal/host"
	"autosaved/internal/host/hosttest"
	"autosaved/pkg/logx"
)

func TestEmptyChainStillRequiresModified(t *testing.T) {
	h := hosttest.New()
	e := h.Add(1, "a.txt")
	c := NewChain(h, nil, logx.Nop())

	if !c.ShouldSave(1) {
		t.Fatalf("modified entity with empty chain must be eligible")
	}
	e.Modified = false
	if c.ShouldSave(1) {
		t.Fatalf("unmodified entity must never be eligible")
	}
}

func TestInvalidEntityIsNeverEligible(t *testing.T) {
	h := hosttest.New()
	h.Add(1, "a.txt")
	c := NewChain(h, []Predicate{FileExists()}, logx.Nop())

	if c.ShouldSave(99) {
		t.Fatalf("unknown entity reported eligible")
	}
	if c.ShouldSave(host.None) {
		t.Fatalf("None reported eligible")
	}
	h.Destroy(1)
	if c.ShouldSave(1) {
		t.Fatalf("destroyed entity reported eligible")
	}
}

func TestShortCircuitOrder(t *testing.T) {
	h := hosttest.New()
	e := h.Add(1, "a.txt")
	e.Exists = false

	var ran []string
	spy := func(name string, pass bool) Predicate {
		return Predicate{Name: name, Check: func(host.Host, host.EntityID) bool {
			ran = append(ran, name)
			return pass
		}}
	}

	c := NewChain(h, []Predicate{spy("first", false), spy("second", true)}, logx.Nop())
	if c.ShouldSave(1) {
		t.Fatalf("expected ineligible")
	}
	if len(ran) != 1 || ran[0] != "first" {
		t.Fatalf("expected short-circuit after first predicate, ran %v", ran)
	}
}

func TestStockPredicates(t *testing.T) {
	h := hosttest.New()
	e := h.Add(1, "notes.md")
	e.Filetype = "markdown"

	cases := []struct {
		name string
		pred Predicate
		prep func()
		want bool
	}{
		{"file_exists pass", FileExists(), func() { e.Exists = true }, true},
		{"file_exists fail", FileExists(), func() { e.Exists = false }, false},
		{"named pass", Named(), func() { e.Name = "notes.md" }, true},
		{"named fail", Named(), func() { e.Name = "  " }, false},
		{"no_errors pass", NoErrors(), func() { e.Errors = false }, true},
		{"no_errors fail", NoErrors(), func() { e.Errors = true }, false},
		{"modified fail", Modified(), func() { e.Modified = false }, false},
		{"filetype_not fail", FiletypeNot("Markdown"), func() {}, false},
		{"filetype_not pass", FiletypeNot("gitcommit"), func() {}, true},
		{"name_not fail", NameNot("notes.md"), func() { e.Name = "notes.md" }, false},
		{"name_not pass", NameNot("other.md"), func() { e.Name = "notes.md" }, true},
	}
	for _, tc := range cases {
		tc.prep()
		if got := tc.pred.Check(h, 1); got != tc.want {
			t.Errorf("%s: got %v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestFromSpec(t *testing.T) {
	if _, err := FromSpec("no_errors", nil); err != nil {
		t.Fatalf("no_errors: %v", err)
	}
	if p, err := FromSpec("filetype_not", []string{"gitcommit"}); err != nil || p.Name != "filetype_not" {
		t.Fatalf("filetype_not: %v", err)
	}
	if _, err := FromSpec("definitely_not_a_condition", nil); err == nil {
		t.Fatalf("expected error for unknown condition name")
	}
}
