package classifier

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"finsight/pkg/errors"
)

func TestClassify_DefaultRules(t *testing.T) {
	c := NewDefaultClassifier()

	tests := []struct {
		description string
		expected    string
	}{
		{"WALMART SUPERCENTER #123", "Groceries"},
		{"Shell Oil 5543", "Transportation"},
		{"Starbucks Coffee", "Dining"},
		{"AMAZON MKTPLACE", "Shopping"},
		{"Netflix.com", "Entertainment"},
		{"City Water Dept", "Utilities"},
		{"Monthly Rent Payment", "Housing"},
		{"ACME Payroll", "Income"},
		{"Transfer to savings", "Savings"},
		{"Local bookshop", "Other"},
		{"", "Other"},
	}

	for _, tt := range tests {
		t.Run(tt.description, func(t *testing.T) {
			if got := c.Classify(tt.description); got != tt.expected {
				t.Errorf("Classify(%q) = %s, want %s", tt.description, got, tt.expected)
			}
		})
	}
}

func TestClassify_FirstMatchWins(t *testing.T) {
	rules := []CategoryRule{
		{Pattern: ".*walmart.*", Category: "Groceries"},
		{Pattern: ".*mart.*", Category: "Shopping"},
	}
	c, err := NewClassifier(rules)
	if err != nil {
		t.Fatalf("NewClassifier: %v", err)
	}
	if got := c.Classify("Walmart Supercenter"); got != "Groceries" {
		t.Errorf("expected Groceries, got %s", got)
	}
	if got := c.Classify("Kmart"); got != "Shopping" {
		t.Errorf("expected Shopping, got %s", got)
	}

	reversed, err := NewClassifier([]CategoryRule{rules[1], rules[0]})
	if err != nil {
		t.Fatalf("NewClassifier: %v", err)
	}
	if got := reversed.Classify("Walmart Supercenter"); got != "Shopping" {
		t.Errorf("expected order to decide, got %s", got)
	}
}

func TestClassify_UppercasePatternMatches(t *testing.T) {
	c, err := NewClassifier([]CategoryRule{{Pattern: "UBER", Category: "Transportation"}})
	if err != nil {
		t.Fatalf("NewClassifier: %v", err)
	}
	if got := c.Classify("uber trip"); got != "Transportation" {
		t.Errorf("expected case-insensitive match, got %s", got)
	}
}

func TestClassify_Deterministic(t *testing.T) {
	c := NewDefaultClassifier()
	first := c.Classify("Costco Wholesale")
	for i := 0; i < 10; i++ {
		if got := c.Classify("Costco Wholesale"); got != first {
			t.Fatalf("classification changed between calls: %s vs %s", first, got)
		}
	}
}

func TestNewClassifier_InvalidRules(t *testing.T) {
	tests := []struct {
		name  string
		rules []CategoryRule
	}{
		{"bad regex", []CategoryRule{{Pattern: "([a-z", Category: "X"}}},
		{"empty label", []CategoryRule{{Pattern: "abc", Category: " "}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewClassifier(tt.rules)
			if err == nil {
				t.Fatal("expected error")
			}
			if !errors.IsCategory(err, errors.CategoryConfiguration) {
				t.Errorf("expected configuration error, got %v", err)
			}
		})
	}
}

func TestRulesAndLabels(t *testing.T) {
	c := NewDefaultClassifier()

	rules := c.Rules()
	rules[0].Category = "Mutated"
	if c.Rules()[0].Category != "Groceries" {
		t.Error("Rules must return a copy")
	}

	labels := c.Labels()
	if labels[0] != "Groceries" || labels[len(labels)-1] != OtherCategory {
		t.Errorf("unexpected labels %v", labels)
	}
}

func TestParseAndSaveRules(t *testing.T) {
	doc := `rules:
  - pattern: "uber|lyft"
    category: Transportation
  - pattern: "whole foods"
    category: Groceries
`
	rules, err := ParseRules(strings.NewReader(doc))
	if err != nil {
		t.Fatalf("ParseRules: %v", err)
	}
	if len(rules) != 2 || rules[0].Category != "Transportation" || rules[1].Pattern != "whole foods" {
		t.Fatalf("unexpected rules %+v", rules)
	}

	var buf bytes.Buffer
	if err := SaveRules(&buf, rules); err != nil {
		t.Fatalf("SaveRules: %v", err)
	}
	again, err := ParseRules(&buf)
	if err != nil {
		t.Fatalf("ParseRules(saved): %v", err)
	}
	if len(again) != 2 || again[0] != rules[0] || again[1] != rules[1] {
		t.Errorf("order or content changed: %+v", again)
	}
}

func TestParseRules_Errors(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"empty document", ""},
		{"no rules", "rules: []\n"},
		{"unknown field", "rules:\n  - pattern: a\n    label: b\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParseRules(strings.NewReader(tt.doc)); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestLoadRules(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rules.yaml")
	if err := os.WriteFile(path, []byte("rules:\n  - pattern: gym\n    category: Health\n"), 0644); err != nil {
		t.Fatalf("write rules: %v", err)
	}

	rules, err := LoadRules(path)
	if err != nil {
		t.Fatalf("LoadRules: %v", err)
	}
	if len(rules) != 1 || rules[0].Category != "Health" {
		t.Errorf("unexpected rules %+v", rules)
	}

	_, err = LoadRules(filepath.Join(dir, "missing.yaml"))
	if !errors.IsCategory(err, errors.CategoryFile) {
		t.Errorf("expected file error, got %v", err)
	}
}
