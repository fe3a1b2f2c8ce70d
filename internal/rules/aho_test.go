package rules

import "testing"

func TestAhoMatcherFindAll(t *testing.T) {
	m, err := NewAhoMatcher([]string{"sql", "injection", "path"})
	if err != nil {
		t.Fatalf("aho build: %v", err)
	}

	found := m.FindAll("sqli-001 sql injection in login")
	if !found["sql"] || !found["injection"] || found["path"] {
		t.Fatalf("unexpected keywords %v", found)
	}

	ok, keyword := m.Match("xpath query")
	if !ok || keyword != "path" {
		t.Fatalf("expected path, got %v %q", ok, keyword)
	}
}

func TestCategorize(t *testing.T) {
	cats := categorize("XSS-01", "Reflected Cross-Site Scripting")
	if !cats.xss || cats.sql || cats.traversal {
		t.Fatalf("unexpected categories %+v", cats)
	}
	cats = categorize("lfi", "Directory Traversal")
	if !cats.traversal {
		t.Fatalf("expected traversal category")
	}
}
