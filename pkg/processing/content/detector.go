package content

import (
	"fmt"
	"regexp"
	"slices"
	"strings"
)

// PII types.
const (
	TypeEmail      = "email"
	TypePhone      = "phone"
	TypeSSN        = "ssn"
	TypeCreditCard = "credit_card"
	TypeIPAddress  = "ip_address"
)

// Types lists every supported PII type in detection order.
var Types = []string{TypeEmail, TypePhone, TypeSSN, TypeCreditCard, TypeIPAddress}

var patterns = map[string]*regexp.Regexp{
	TypeEmail:      regexp.MustCompile(`\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}\b`),
	TypePhone:      regexp.MustCompile(`(?:\+?1[-.\s]?)?(?:\(\d{3}\)|\b\d{3})[-.\s]?\d{3}[-.\s]?\d{4}\b`),
	TypeSSN:        regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`),
	TypeCreditCard: regexp.MustCompile(`\b\d{4}[\s-]?\d{4}[\s-]?\d{4}[\s-]?\d{4}\b`),
	TypeIPAddress:  regexp.MustCompile(`\b(?:(?:25[0-5]|2[0-4]\d|1?\d?\d)\.){3}(?:25[0-5]|2[0-4]\d|1?\d?\d)\b`),
}

// validators reject regex matches that are not real instances of a type.
var validators = map[string]func(string) bool{
	TypeCreditCard: luhn,
}

// Match is one detected PII instance. Start and End are byte offsets.
type Match struct {
	Type  string
	Start int
	End   int
}

// Detector finds PII of a fixed set of types.
type Detector struct {
	types []string
}

// NewDetector returns a detector for the given types, or for every type when
// none are given.
func NewDetector(types ...string) (*Detector, error) {
	if len(types) == 0 {
		return &Detector{types: slices.Clone(Types)}, nil
	}

	var out []string
	for _, t := range Types {
		if slices.Contains(types, t) {
			out = append(out, t)
		}
	}
	for _, t := range types {
		if _, ok := patterns[t]; !ok {
			return nil, fmt.Errorf("unknown pii type %q (supported: %s)", t, strings.Join(Types, ", "))
		}
	}
	return &Detector{types: out}, nil
}

// Types returns the types the detector looks for.
func (d *Detector) Types() []string {
	return slices.Clone(d.types)
}

// Detect returns every match ordered by position. When matches of different
// types overlap, the type listed first in Types wins.
func (d *Detector) Detect(text string) []Match {
	if text == "" {
		return nil
	}

	var matches []Match
	for _, t := range d.types {
		valid := validators[t]
		for _, loc := range patterns[t].FindAllStringIndex(text, -1) {
			if valid != nil && !valid(text[loc[0]:loc[1]]) {
				continue
			}
			m := Match{Type: t, Start: loc[0], End: loc[1]}
			if !overlaps(matches, m) {
				matches = append(matches, m)
			}
		}
	}

	slices.SortFunc(matches, func(a, b Match) int { return a.Start - b.Start })
	return matches
}

// Counts returns the number of matches per type.
func (d *Detector) Counts(text string) map[string]int {
	counts := make(map[string]int)
	for _, m := range d.Detect(text) {
		counts[m.Type]++
	}
	return counts
}

// Redact replaces every match with its upper-cased type in brackets.
func (d *Detector) Redact(text string) string {
	matches := d.Detect(text)
	if len(matches) == 0 {
		return text
	}

	var b strings.Builder
	last := 0
	for _, m := range matches {
		b.WriteString(text[last:m.Start])
		b.WriteString("[" + strings.ToUpper(m.Type) + "]")
		last = m.End
	}
	b.WriteString(text[last:])
	return b.String()
}

func overlaps(matches []Match, m Match) bool {
	for _, o := range matches {
		if m.Start < o.End && o.Start < m.End {
			return true
		}
	}
	return false
}

// luhn validates a card number, ignoring spaces and dashes.
func luhn(s string) bool {
	sum, n := 0, 0
	for i := len(s) - 1; i >= 0; i-- {
		c := s[i]
		if c == ' ' || c == '-' {
			continue
		}
		d := int(c - '0')
		if n%2 == 1 {
			d *= 2
			if d > 9 {
				d -= 9
			}
		}
		sum += d
		n++
	}
	return n > 0 && sum%10 == 0
}
