// Package normalize maps source-native exam labels onto canonical values.
// Everything here is pure and deterministic; records that cannot be
// normalized fail individually, never the whole run.
package normalize

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/antzucaro/matchr"
)

// Error marks a single record as non-normalizable. Callers count and
// skip, they do not abort.
type Error struct {
	Field string
	Value string
}

func (e *Error) Error() string {
	return fmt.Sprintf("cannot normalize %s: %q", e.Field, e.Value)
}

// Japanese calendar eras and the offset added to the era year to obtain
// the Gregorian year.
var eraOffsets = []struct {
	Name   string
	Offset int
}{
	{"令和", 2018},
	{"平成", 1988},
	{"昭和", 1925},
}

var digits = regexp.MustCompile(`\d+`)
var fourDigits = regexp.MustCompile(`\d{4}`)

// EraToGregorian converts an era-labeled year string ("令和7年春期") to a
// four digit Gregorian year. Labels that already carry a four digit year
// pass through. Unrecognized era tokens are a per-record failure.
func EraToGregorian(label string) (int, error) {
	for _, era := range eraOffsets {
		if !strings.Contains(label, era.Name) {
			continue
		}
		match := digits.FindString(label)
		if match == "" {
			break
		}
		n, err := strconv.Atoi(match)
		if err != nil {
			break
		}
		return era.Offset + n, nil
	}

	if match := fourDigits.FindString(label); match != "" {
		year, err := strconv.Atoi(match)
		if err == nil {
			return year, nil
		}
	}

	return 0, &Error{Field: "year", Value: label}
}

// PathSeparator joins canonical category path segments.
const PathSeparator = " » "

// canonical single-segment categories and the raw keywords that map to
// them. Keyword checks run on the lowercased input; Japanese fragments
// are matched verbatim.
var categoryKeywords = []struct {
	Canonical string
	Keywords  []string
}{
	{"network", []string{"network", "ネット"}},
	{"security", []string{"sec", "セキュ"}},
	{"database", []string{"db", "data", "データ"}},
	{"management", []string{"manage", "project", "マネジ"}},
}

// similarity above which a raw label is considered a misspelling of a
// canonical category rather than a novel one.
const categorySimilarity = 0.9

// Category maps raw category text to a canonical single-segment value.
// Unmapped input passes through trimmed so novel categories surface in
// reports instead of vanishing. Empty input becomes "unknown".
func Category(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "unknown"
	}

	lower := strings.ToLower(trimmed)
	for _, c := range categoryKeywords {
		for _, kw := range c.Keywords {
			if strings.Contains(lower, kw) {
				return c.Canonical
			}
		}
	}

	for _, c := range categoryKeywords {
		if matchr.JaroWinkler(lower, c.Canonical, false) >= categorySimilarity {
			return c.Canonical
		}
	}

	return trimmed
}

// CategoryPath normalizes a raw category path (as extracted from the
// source's breadcrumb) into the canonical delimited form. Single-segment
// paths additionally go through the Category mapping.
func CategoryPath(segments []string) string {
	var cleaned []string
	for _, s := range segments {
		s = strings.TrimSpace(s)
		if s != "" {
			cleaned = append(cleaned, s)
		}
	}
	switch len(cleaned) {
	case 0:
		return "unknown"
	case 1:
		return Category(cleaned[0])
	default:
		return strings.Join(cleaned, PathSeparator)
	}
}

// SanitizeChoices trims choices, drops blank entries, and re-aims the
// answer index across the resulting shift. The sanitized record must
// still have at least two choices and a resolvable answer.
func SanitizeChoices(choices []string, answerIndex int) ([]string, int, error) {
	sanitized := make([]string, 0, len(choices))
	newIndex := -1
	for i, c := range choices {
		c = strings.TrimSpace(c)
		if c == "" {
			if i == answerIndex {
				// the answer itself was blank, unresolvable
				return nil, -1, &Error{Field: "answerIndex", Value: strconv.Itoa(answerIndex)}
			}
			continue
		}
		if i == answerIndex {
			newIndex = len(sanitized)
		}
		sanitized = append(sanitized, c)
	}

	if len(sanitized) < 2 {
		return nil, -1, &Error{Field: "choices", Value: strings.Join(choices, "|")}
	}
	if newIndex < 0 {
		return nil, -1, &Error{Field: "answerIndex", Value: strconv.Itoa(answerIndex)}
	}
	return sanitized, newIndex, nil
}
