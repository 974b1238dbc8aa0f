// Package policy turns a server-supplied password-policy document into a
// user-facing requirements message.
//
// The document arrives embedded as JSON inside a challenge's challengeInfo
// bag. Parsing never panics past this package: a malformed document yields
// the generic fallback message instead of an error on screen.
package policy

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	json "github.com/goccy/go-json"
)

// Fallback is returned when the document is malformed or carries no active
// constraints.
const Fallback = "Enter a secure password"

// InvalidSentinel is the literal the server uses for an unusable policy.
// A ServerMessage equal to it is ignored rather than shown verbatim.
const InvalidSentinel = "Invalid policy"

// Policy is a password-policy document. Numeric fields ≤ 0 mean
// "no constraint".
type Policy struct {
	MinLength                int    `json:"minLength"`
	MaxLength                int    `json:"maxLength"`
	MinDigits                int    `json:"minDigits"`
	MinUpper                 int    `json:"minUpper"`
	MinLower                 int    `json:"minLower"`
	MinSpecial               int    `json:"minSpecial"`
	DisallowedChars          string `json:"disallowedChars"`
	MaxRepeat                int    `json:"maxRepeat"`
	DisallowUserIDInPassword bool   `json:"disallowUserIDInPassword"`
	DisallowSequential       bool   `json:"disallowSequential"`
	DisallowCommonPassword   bool   `json:"disallowCommonPassword"`
	ServerMessage            string `json:"serverMessage,omitempty"`
}

// Parse decodes a policy document from raw JSON.
func Parse(raw string) (Policy, error) {
	var p Policy
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		return Policy{}, fmt.Errorf("policy: decode: %w", err)
	}
	return p, nil
}

// MessageFromJSON parses raw and renders its message, falling back to the
// generic sentence when the document cannot be decoded.
func MessageFromJSON(raw string) string {
	p, err := Parse(raw)
	if err != nil {
		return Fallback
	}
	return Message(p)
}

// Message renders the policy as a single requirements sentence.
//
// A non-empty server-supplied message wins verbatim, unless it is the
// invalid-policy sentinel. Otherwise one clause is built per active
// constraint, in fixed order, and the clauses are joined with a final "and"
// (the clause after the "and" is lower-cased at the join).
func Message(p Policy) string {
	if p.ServerMessage != "" && p.ServerMessage != InvalidSentinel {
		return p.ServerMessage
	}

	var clauses []string

	switch {
	case p.MinLength > 0 && p.MaxLength > 0 && p.MinLength == p.MaxLength:
		clauses = append(clauses, fmt.Sprintf("Must be exactly %s long", count(p.MinLength, "character")))
	case p.MinLength > 0 && p.MaxLength > 0:
		clauses = append(clauses, fmt.Sprintf("Must be between %d and %d characters long", p.MinLength, p.MaxLength))
	case p.MinLength > 0:
		clauses = append(clauses, fmt.Sprintf("Must be at least %s long", count(p.MinLength, "character")))
	case p.MaxLength > 0:
		clauses = append(clauses, fmt.Sprintf("Must be at most %s long", count(p.MaxLength, "character")))
	}

	if p.MinDigits > 0 {
		clauses = append(clauses, "Must contain at least "+count(p.MinDigits, "digit"))
	}
	if p.MinUpper > 0 {
		clauses = append(clauses, "Must contain at least "+count(p.MinUpper, "uppercase letter"))
	}
	if p.MinLower > 0 {
		clauses = append(clauses, "Must contain at least "+count(p.MinLower, "lowercase letter"))
	}
	if p.MinSpecial > 0 {
		clauses = append(clauses, "Must contain at least "+count(p.MinSpecial, "special character"))
	}
	if p.DisallowedChars != "" {
		clauses = append(clauses, fmt.Sprintf("Must not contain any of the characters %q", p.DisallowedChars))
	}
	if p.MaxRepeat > 0 {
		clauses = append(clauses, fmt.Sprintf("Must not repeat the same character more than %s in a row", count(p.MaxRepeat, "time")))
	}
	if p.DisallowUserIDInPassword {
		clauses = append(clauses, "Must not contain your username")
	}
	if p.DisallowSequential {
		clauses = append(clauses, "Must not contain sequential characters")
	}
	if p.DisallowCommonPassword {
		clauses = append(clauses, "Must not be a commonly used password")
	}

	return join(clauses)
}

// join assembles clauses into one sentence: zero clauses fall back to the
// generic sentence, one is returned as-is, and two or more are joined with a
// final "and" before the last clause, which is lower-cased at the join.
func join(clauses []string) string {
	switch len(clauses) {
	case 0:
		return Fallback
	case 1:
		return clauses[0]
	}
	last := len(clauses) - 1
	return strings.Join(clauses[:last], ", ") + " and " + lowerFirst(clauses[last])
}

func lowerFirst(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return s
	}
	return string(unicode.ToLower(r)) + s[size:]
}

// count renders "1 digit", "2 digits", "8 characters", ...
func count(n int, noun string) string {
	if n == 1 {
		return fmt.Sprintf("1 %s", noun)
	}
	return fmt.Sprintf("%d %ss", n, noun)
}
