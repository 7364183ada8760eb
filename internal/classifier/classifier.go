// Package classifier assigns category labels to transaction descriptions.
//
// Rules are evaluated in the order given and the first matching pattern
// wins. Rule order is part of the contract: reordering rules can change the
// label of a description that matches more than one pattern.
package classifier

import (
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"

	"finsight/pkg/errors"

	"gopkg.in/yaml.v3"
)

// OtherCategory is returned when no rule matches
const OtherCategory = "Other"

// CategoryRule pairs a regular expression with the label it assigns
type CategoryRule struct {
	Pattern  string `yaml:"pattern" json:"pattern"`
	Category string `yaml:"category" json:"category"`
}

type compiledRule struct {
	rule CategoryRule
	re   *regexp.Regexp
}

// Classifier is an immutable ordered rule list
type Classifier struct {
	rules []compiledRule
}

// DefaultRules returns the built-in rule list
func DefaultRules() []CategoryRule {
	return []CategoryRule{
		{Pattern: `walmart|target|costco`, Category: "Groceries"},
		{Pattern: `shell|exxon|chevron|gas`, Category: "Transportation"},
		{Pattern: `starbucks|mcdonalds|restaurant`, Category: "Dining"},
		{Pattern: `amazon|ebay|shopping`, Category: "Shopping"},
		{Pattern: `netflix|spotify|subscription`, Category: "Entertainment"},
		{Pattern: `electric|water|utility`, Category: "Utilities"},
		{Pattern: `rent|mortgage|housing`, Category: "Housing"},
		{Pattern: `salary|payroll|income`, Category: "Income"},
		{Pattern: `savings|investment|401k`, Category: "Savings"},
	}
}

// NewClassifier compiles rules in order. Patterns match case-insensitively.
func NewClassifier(rules []CategoryRule) (*Classifier, error) {
	compiled := make([]compiledRule, 0, len(rules))
	for i, rule := range rules {
		if strings.TrimSpace(rule.Category) == "" {
			return nil, errors.ConfigurationError(errors.CodeInvalidConfig,
				fmt.Sprintf("rules[%d].category", i), rule.Category, nil)
		}
		re, err := regexp.Compile("(?i)" + rule.Pattern)
		if err != nil {
			return nil, errors.ConfigurationError(errors.CodeInvalidConfig,
				fmt.Sprintf("rules[%d].pattern", i), rule.Pattern, err)
		}
		compiled = append(compiled, compiledRule{rule: rule, re: re})
	}
	return &Classifier{rules: compiled}, nil
}

// NewDefaultClassifier builds a classifier from DefaultRules
func NewDefaultClassifier() *Classifier {
	c, err := NewClassifier(DefaultRules())
	if err != nil {
		panic(fmt.Sprintf("default category rules do not compile: %v", err))
	}
	return c
}

// Classify returns the label of the first rule matching the lowered description
func (c *Classifier) Classify(description string) string {
	lowered := strings.ToLower(description)
	for _, r := range c.rules {
		if r.re.MatchString(lowered) {
			return r.rule.Category
		}
	}
	return OtherCategory
}

// Rules returns a copy of the rule list in evaluation order
func (c *Classifier) Rules() []CategoryRule {
	out := make([]CategoryRule, len(c.rules))
	for i, r := range c.rules {
		out[i] = r.rule
	}
	return out
}

// Labels returns the distinct labels the classifier can assign, including OtherCategory
func (c *Classifier) Labels() []string {
	seen := map[string]bool{}
	var labels []string
	for _, r := range c.rules {
		if !seen[r.rule.Category] {
			seen[r.rule.Category] = true
			labels = append(labels, r.rule.Category)
		}
	}
	if !seen[OtherCategory] {
		labels = append(labels, OtherCategory)
	}
	return labels
}

type rulesFile struct {
	Rules []CategoryRule `yaml:"rules"`
}

// ParseRules decodes a YAML document of the form
//
//	rules:
//	  - pattern: "walmart|costco"
//	    category: Groceries
func ParseRules(r io.Reader) ([]CategoryRule, error) {
	var file rulesFile
	decoder := yaml.NewDecoder(r)
	decoder.KnownFields(true)
	if err := decoder.Decode(&file); err != nil {
		if err == io.EOF {
			return nil, errors.ConfigurationError(errors.CodeMissingConfig, "rules", nil, nil)
		}
		return nil, errors.ConfigurationError(errors.CodeInvalidConfig, "rules", nil, err)
	}
	if len(file.Rules) == 0 {
		return nil, errors.ConfigurationError(errors.CodeMissingConfig, "rules", nil, nil)
	}
	return file.Rules, nil
}

// LoadRules reads a YAML rule file from disk
func LoadRules(path string) ([]CategoryRule, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.FileError(errors.CodeFileNotFound, path, err)
		}
		return nil, errors.FileError(errors.CodeFilePermission, path, err)
	}
	defer f.Close()

	return ParseRules(f)
}

// SaveRules writes rules as YAML in evaluation order
func SaveRules(w io.Writer, rules []CategoryRule) error {
	encoder := yaml.NewEncoder(w)
	encoder.SetIndent(2)
	if err := encoder.Encode(rulesFile{Rules: rules}); err != nil {
		return fmt.Errorf("encode rules: %w", err)
	}
	return encoder.Close()
}
