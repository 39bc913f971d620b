package security

import (
	"fmt"
	"strings"
	"unicode"

	zxcvbn "github.com/nbutton23/zxcvbn-go"
)

// PasswordRule is a single named policy requirement.
type PasswordRule struct {
	Code        string
	Description string
	Check       func(password string) bool
}

// PasswordRuleResult reports whether one policy rule was satisfied.
type PasswordRuleResult struct {
	Code        string `json:"code"`
	Description string `json:"description"`
	Satisfied   bool   `json:"satisfied"`
}

// PasswordPolicyError carries the full checklist so clients can render
// every unmet requirement at once rather than one failure at a time.
type PasswordPolicyError struct {
	Results []PasswordRuleResult
}

// Error implements error for PasswordPolicyError.
func (e *PasswordPolicyError) Error() string {
	if e == nil {
		return ""
	}
	unmet := make([]string, 0, len(e.Results))
	for _, r := range e.Results {
		if !r.Satisfied {
			unmet = append(unmet, r.Code)
		}
	}
	return fmt.Sprintf("password does not satisfy policy: %s", strings.Join(unmet, ", "))
}

// PasswordValidator applies a sequence of password rules.
type PasswordValidator struct {
	rules []PasswordRule
}

// NewPasswordValidator constructs a validator with the provided rules.
func NewPasswordValidator(rules ...PasswordRule) *PasswordValidator {
	copied := make([]PasswordRule, len(rules))
	copy(copied, rules)
	return &PasswordValidator{rules: copied}
}

// Evaluate runs every rule and returns the full checklist.
func (v *PasswordValidator) Evaluate(password string) []PasswordRuleResult {
	results := make([]PasswordRuleResult, 0, len(v.rules))
	for _, rule := range v.rules {
		results = append(results, PasswordRuleResult{
			Code:        rule.Code,
			Description: rule.Description,
			Satisfied:   rule.Check(password),
		})
	}
	return results
}

// Validate evaluates all rules and returns a PasswordPolicyError carrying
// the complete checklist when any rule is unmet.
func (v *PasswordValidator) Validate(password string) error {
	if v == nil {
		return fmt.Errorf("password validator not configured")
	}

	results := v.Evaluate(password)
	for _, r := range results {
		if !r.Satisfied {
			return &PasswordPolicyError{Results: results}
		}
	}
	return nil
}

// DefaultPasswordRules returns the customer password policy.
func DefaultPasswordRules() []PasswordRule {
	return []PasswordRule{
		MinLengthRule(12),
		UppercaseRule(),
		LowercaseRule(),
		DigitRule(),
		SymbolRule(),
		StrengthRule(2),
	}
}

// MinLengthRule requires at least min characters.
func MinLengthRule(min int) PasswordRule {
	return PasswordRule{
		Code:        "min_length",
		Description: fmt.Sprintf("at least %d characters", min),
		Check: func(password string) bool {
			return len([]rune(password)) >= min
		},
	}
}

// UppercaseRule requires at least one uppercase letter.
func UppercaseRule() PasswordRule {
	return PasswordRule{
		Code:        "uppercase",
		Description: "at least one uppercase letter",
		Check: func(password string) bool {
			return containsClass(password, unicode.IsUpper)
		},
	}
}

// LowercaseRule requires at least one lowercase letter.
func LowercaseRule() PasswordRule {
	return PasswordRule{
		Code:        "lowercase",
		Description: "at least one lowercase letter",
		Check: func(password string) bool {
			return containsClass(password, unicode.IsLower)
		},
	}
}

// DigitRule requires at least one digit.
func DigitRule() PasswordRule {
	return PasswordRule{
		Code:        "digit",
		Description: "at least one digit",
		Check: func(password string) bool {
			return containsClass(password, unicode.IsDigit)
		},
	}
}

// SymbolRule requires at least one symbol or punctuation character.
func SymbolRule() PasswordRule {
	return PasswordRule{
		Code:        "symbol",
		Description: "at least one symbol",
		Check: func(password string) bool {
			return containsClass(password, func(r rune) bool {
				return unicode.IsSymbol(r) || unicode.IsPunct(r)
			})
		},
	}
}

// StrengthRule enforces a minimum zxcvbn score to reject guessable passwords.
func StrengthRule(minScore int, userInputs ...string) PasswordRule {
	if minScore > 4 {
		minScore = 4
	}
	return PasswordRule{
		Code:        "strength",
		Description: "not a commonly guessable password",
		Check: func(password string) bool {
			if minScore <= 0 {
				return true
			}
			return zxcvbn.PasswordStrength(password, userInputs).Score >= minScore
		},
	}
}

func containsClass(password string, match func(rune) bool) bool {
	for _, r := range password {
		if match(r) {
			return true
		}
	}
	return false
}
