package validation

import (
	"fmt"
	"net/mail"
	"strings"
)

// Reason strings are part of the public error contract; clients assert on
// them verbatim.
const (
	MsgNotEmpty        = "must not be empty"
	MsgUsernameLength  = "must be between 3 and 20 characters"
	MsgEmail           = "is not a valid email address"
	MsgRequireDigit    = "must contain a digit"
	MsgRequireLower    = "must contain a lower case ASCII character"
	MsgRequireUpper    = "must contain an upper case ASCII character"
	MsgRequireNonAlnum = "must contain a non-alphanumeric character"
)

// PasswordPolicy mirrors the configured password requirements. Consumed
// read-only.
type PasswordPolicy struct {
	RequireDigit           bool
	RequireLowercase       bool
	RequireUppercase       bool
	RequireNonAlphanumeric bool
	MinLength              int
}

// MsgMinLength renders the minimum-length reason for the given policy.
func MsgMinLength(n int) string {
	return fmt.Sprintf("must be at least %d characters long", n)
}

// Username builds the cascading username rule chain: non-empty, then length
// within [3,20].
func Username(name, value string) Field {
	return Field{
		Name:  name,
		Value: value,
		Mode:  Cascade,
		Rules: []Rule{
			{Check: notEmpty, Message: MsgNotEmpty},
			{Check: func(v string) bool { n := len([]rune(v)); return n >= 3 && n <= 20 }, Message: MsgUsernameLength},
		},
	}
}

// Email builds the cascading email rule chain: non-empty, then RFC-shaped.
func Email(name, value string) Field {
	return Field{
		Name:  name,
		Value: value,
		Mode:  Cascade,
		Rules: []Rule{
			{Check: notEmpty, Message: MsgNotEmpty},
			{Check: isEmail, Message: MsgEmail},
		},
	}
}

// Password builds the password rule chain for the given policy. An empty
// value reports only the emptiness reason; otherwise every configured
// character-class rule plus the length rule is evaluated, accumulating all
// failing reasons so the caller sees the full set at once.
func Password(name, value string, policy PasswordPolicy) Field {
	if value == "" {
		return Field{
			Name:  name,
			Value: value,
			Mode:  Cascade,
			Rules: []Rule{{Check: notEmpty, Message: MsgNotEmpty}},
		}
	}
	var rules []Rule
	if policy.RequireDigit {
		rules = append(rules, Rule{Check: containsClass(isDigit), Message: MsgRequireDigit})
	}
	if policy.RequireLowercase {
		rules = append(rules, Rule{Check: containsClass(isLower), Message: MsgRequireLower})
	}
	if policy.RequireUppercase {
		rules = append(rules, Rule{Check: containsClass(isUpper), Message: MsgRequireUpper})
	}
	if policy.RequireNonAlphanumeric {
		rules = append(rules, Rule{
			Check:   func(v string) bool { return !allOf(v, isAlnum) },
			Message: MsgRequireNonAlnum,
		})
	}
	rules = append(rules, Rule{
		Check:   func(v string) bool { return len([]rune(v)) >= policy.MinLength },
		Message: MsgMinLength(policy.MinLength),
	})
	return Field{Name: name, Value: value, Mode: Accumulate, Rules: rules}
}

func notEmpty(v string) bool { return strings.TrimSpace(v) != "" }

func isEmail(v string) bool {
	addr, err := mail.ParseAddress(v)
	// Reject the name-addr form ("Bob <bob@x>"); only a bare address is a
	// valid account email.
	return err == nil && addr.Address == v
}

// Character classes are ASCII on purpose, matching how stored password
// requirements are expressed.
func isDigit(c rune) bool { return c >= '0' && c <= '9' }
func isLower(c rune) bool { return c >= 'a' && c <= 'z' }
func isUpper(c rune) bool { return c >= 'A' && c <= 'Z' }
func isAlnum(c rune) bool { return isDigit(c) || isLower(c) || isUpper(c) }

func containsClass(class func(rune) bool) func(string) bool {
	return func(v string) bool {
		for _, c := range v {
			if class(c) {
				return true
			}
		}
		return false
	}
}

func allOf(v string, class func(rune) bool) bool {
	for _, c := range v {
		if !class(c) {
			return false
		}
	}
	return true
}
