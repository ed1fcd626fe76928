// Package identity resolves the portal's numeric employee identifier from a
// rendered document. The portal embeds it inconsistently, so resolution
// tries several independent strategies in a fixed priority order and takes
// the first hit.
package identity

import (
	"log/slog"
	"regexp"
	"strconv"
	"strings"

	"github.com/rgaerlan/attendctl/internal/htmldoc"
)

// dataAttrKey is the data attribute some portal pages stamp on
// employee-scoped elements.
const dataAttrKey = "data-employee-id"

// scriptPatterns match the known spellings of the employee id variable in
// embedded script content, e.g. `var EmployeeID = 4521;` or
// `"employeeId": "4521"`. Order matters: the first pattern with a match wins.
var scriptPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)EmployeeID["']?\s*[:=]\s*["']?(\d+)`),
	regexp.MustCompile(`(?i)employeeId["']?\s*[:=]\s*["']?(\d+)`),
	regexp.MustCompile(`(?i)empId["']?\s*[:=]\s*["']?(\d+)`),
	regexp.MustCompile(`(?i)UserID["']?\s*[:=]\s*["']?(\d+)`),
}

// strategy is one independent resolution attempt. It reports the id and
// whether it found one.
type strategy struct {
	name string
	fn   func(doc *htmldoc.Document, raw string) (int, bool)
}

// strategies are tried in order; the first hit wins. If two strategies would
// disagree, the earlier one is authoritative: later strategies are never
// consulted after a hit.
var strategies = []strategy{
	{name: "script-variable", fn: fromScripts},
	{name: "hidden-input", fn: fromHiddenInputs},
	{name: "data-attribute", fn: fromDataAttribute},
}

// Resolve extracts the employee id from a document. ok is false when no
// strategy finds a positive integer; callers must treat that as a hard
// precondition failure for any submission.
func Resolve(document []byte) (id int, ok bool) {
	raw := string(document)
	doc, err := htmldoc.ParseString(raw)
	if err != nil {
		return 0, false
	}

	for _, s := range strategies {
		if id, ok := s.fn(doc, raw); ok {
			slog.Debug("employee id resolved", "strategy", s.name, "employee_id", id)
			return id, true
		}
	}
	return 0, false
}

// fromScripts pattern-matches the raw document for known script variable
// spellings. The raw text is scanned rather than only <script> nodes because
// the portal also inlines ids in on* attributes and JSON islands.
func fromScripts(_ *htmldoc.Document, raw string) (int, bool) {
	for _, pattern := range scriptPatterns {
		m := pattern.FindStringSubmatch(raw)
		if m == nil {
			continue
		}
		if id, err := strconv.Atoi(m[1]); err == nil && id > 0 {
			return id, true
		}
	}
	return 0, false
}

// fromHiddenInputs scans hidden form fields for one whose name mentions
// "employee" and whose value is all digits.
func fromHiddenInputs(doc *htmldoc.Document, _ string) (int, bool) {
	for _, input := range doc.HiddenInputs() {
		if !strings.Contains(strings.ToLower(input.Name), "employee") {
			continue
		}
		if id, ok := parseAllDigits(input.Value); ok {
			return id, true
		}
	}
	return 0, false
}

// fromDataAttribute takes the first element carrying the data attribute key
// if its value is all digits.
func fromDataAttribute(doc *htmldoc.Document, _ string) (int, bool) {
	v, ok := doc.AttrValue(dataAttrKey)
	if !ok {
		return 0, false
	}
	return parseAllDigits(v)
}

// parseAllDigits parses a value composed entirely of decimal digits into a
// positive integer. Signs, spaces, and empty strings all fail.
func parseAllDigits(v string) (int, bool) {
	if v == "" {
		return 0, false
	}
	for _, r := range v {
		if r < '0' || r > '9' {
			return 0, false
		}
	}
	id, err := strconv.Atoi(v)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}
