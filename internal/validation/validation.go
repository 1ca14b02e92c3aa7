// Package validation implements the composable rule engine behind every
// credential-mutating operation. A field carries an ordered rule chain and
// an evaluation mode; failures aggregate into one FieldError per field.
package validation

import "gatekey.org/internal/result"

// Mode controls how a field's rule chain reacts to a failing rule.
type Mode int

const (
	// Cascade stops evaluating the field after its first failing rule.
	Cascade Mode = iota
	// Accumulate evaluates every rule and collects each failing reason.
	Accumulate
)

// Rule pairs a predicate with the reason reported when it fails.
type Rule struct {
	Check   func(string) bool
	Message string
}

// Field is a named value with its rule chain.
type Field struct {
	Name  string
	Value string
	Mode  Mode
	Rules []Rule
}

// Validate evaluates all fields and returns nil or a single validation
// failure carrying one FieldError per failing field with every collected
// reason in rule order. Per-field failures merge keyed by field name, so a
// field listed twice still reports one entry.
func Validate(fields ...Field) error {
	var failure *result.Failure
	for _, f := range fields {
		var reasons []string
		for _, rule := range f.Rules {
			if rule.Check(f.Value) {
				continue
			}
			reasons = append(reasons, rule.Message)
			if f.Mode == Cascade {
				break
			}
		}
		if len(reasons) > 0 {
			failure = result.Merge(failure,
				result.Validation(result.FieldError{Field: f.Name, Reasons: reasons}))
		}
	}
	if failure == nil {
		return nil
	}
	return failure
}
