package domain

import (
	"regexp"
	"sort"
	"strings"
)

// nonWordChar matches any character that cannot continue a word. Go's \b only
// knows ASCII, so "Bogotá" or "Île-de-France" would never match with it.
const nonWordChar = `[^\p{L}\p{M}\p{N}_]`

// compileTerms builds a case-insensitive whole-word matcher whose first group
// is the matched term. It returns nil for an empty term list.
func compileTerms(terms []string) *regexp.Regexp {
	pattern := alternation(terms)
	if pattern == "" {
		return nil
	}
	return regexp.MustCompile(`(?i)(?:^|` + nonWordChar + `)(` + pattern + `)(?:$|` + nonWordChar + `)`)
}

// eachTerm calls fn with every whole-word term occurrence in text, left to
// right, until fn returns false. The boundary after a term is not consumed,
// so adjacent terms separated by one character are all seen.
func eachTerm(re *regexp.Regexp, text string, fn func(term string) bool) {
	if re == nil {
		return
	}
	for pos := 0; pos < len(text); {
		loc := re.FindStringSubmatchIndex(text[pos:])
		if loc == nil {
			return
		}
		if !fn(text[pos+loc[2] : pos+loc[3]]) {
			return
		}
		pos += loc[3]
	}
}

// keywordSet matches whole words or phrases, case-insensitively.
type keywordSet struct {
	re *regexp.Regexp // nil when the set is empty
}

func newKeywordSet(terms []string) keywordSet {
	return keywordSet{re: compileTerms(terms)}
}

func (k keywordSet) matchAny(text string) bool {
	return k.re != nil && k.re.MatchString(text)
}

// count returns how many distinct terms occur in text. Repeating a word does
// not count twice.
func (k keywordSet) count(text string) int {
	seen := make(map[string]struct{})
	eachTerm(k.re, text, func(term string) bool {
		seen[normalizeTerm(term)] = struct{}{}
		return true
	})
	return len(seen)
}

// alternation builds a regexp alternation with longer terms first, so that
// "new york city" wins over "new york" at the same position.
func alternation(terms []string) string {
	cleaned := make([]string, 0, len(terms))
	seen := make(map[string]bool, len(terms))
	for _, t := range terms {
		t = normalizeTerm(t)
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		cleaned = append(cleaned, t)
	}
	sort.Slice(cleaned, func(i, j int) bool {
		if len(cleaned[i]) != len(cleaned[j]) {
			return len(cleaned[i]) > len(cleaned[j])
		}
		return cleaned[i] < cleaned[j]
	})

	quoted := make([]string, len(cleaned))
	for i, t := range cleaned {
		// Collapse internal whitespace so "new  york" in the text still matches.
		quoted[i] = strings.ReplaceAll(regexp.QuoteMeta(t), " ", `\s+`)
	}
	return strings.Join(quoted, "|")
}

func normalizeTerm(t string) string {
	return strings.Join(strings.Fields(strings.ToLower(t)), " ")
}
