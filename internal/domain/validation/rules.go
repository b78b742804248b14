package validation

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Rule is a named, config-defined validation rule. The expression is a
// CEL boolean over the variables `param` (the value under check),
// `key` (the parameter name), and `client` (the client id). A rule
// rejects the parameter when its expression evaluates to false.
//
// Rules are static: loaded once at startup and compiled by the rule
// evaluator adapter.
type Rule struct {
	// Name identifies the rule in verdicts and audit records.
	Name string `yaml:"name"`

	// Expr is the CEL expression that must hold for the parameter.
	Expr string `yaml:"expr"`

	// Params restricts the rule to specific parameter names.
	// Empty means the rule applies to every parameter.
	Params []string `yaml:"params,omitempty"`
}

// AppliesTo reports whether the rule covers the given parameter name.
func (r Rule) AppliesTo(key string) bool {
	if len(r.Params) == 0 {
		return true
	}
	for _, p := range r.Params {
		if p == key {
			return true
		}
	}
	return false
}

// ruleFile is the on-disk shape of a rules file.
type ruleFile struct {
	Rules []Rule `yaml:"rules"`
}

// LoadRules reads config-defined rules from a YAML file.
func LoadRules(path string) ([]Rule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading rules file: %w", err)
	}
	var f ruleFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parsing rules file %s: %w", path, err)
	}
	for i, r := range f.Rules {
		if r.Name == "" {
			return nil, fmt.Errorf("rules file %s: rule %d has no name", path, i)
		}
		if r.Expr == "" {
			return nil, fmt.Errorf("rules file %s: rule %q has no expression", path, r.Name)
		}
	}
	return f.Rules, nil
}
