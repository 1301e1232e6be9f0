package textutil

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/antzucaro/matchr"
)

var whitespaceRegex = regexp.MustCompile(`\s+`)

func NormalizeName(name string) string {
	name = strings.ToLower(name)
	name = strings.Trim(name, " \n\t")
	name = whitespaceRegex.ReplaceAllString(name, "")
	return name
}

// MatchName reports whether the normalized form of name contains any of the
// matchers, matchers are expected to already be normalized.
func MatchName(name string, matchers []string) bool {
	name = NormalizeName(name)
	for _, m := range matchers {
		if strings.Contains(name, m) {
			return true
		}
	}
	return false
}

// elidedPrefix strips an elided article like the l' of l'Ouest.
func elidedPrefix(word string, skip map[string]bool) string {
	idx := strings.IndexAny(word, "'’")
	if idx <= 0 {
		return word
	}
	prefix := strings.ToLower(word[:idx])
	if utf8.RuneCountInString(prefix) == 1 || skip[prefix] {
		_, size := utf8.DecodeRuneInString(word[idx:])
		return word[idx+size:]
	}
	return word
}

func notAlphanumeric(r rune) bool {
	return !unicode.IsLetter(r) && !unicode.IsDigit(r)
}

// Initials joins the uppercased first letter or digit of every whitespace
// separated word of name, words found in skip (lowercase) are left out.
func Initials(name string, skip map[string]bool) string {
	var out strings.Builder
	for _, word := range strings.Fields(name) {
		word = strings.TrimFunc(word, notAlphanumeric)
		word = strings.TrimFunc(elidedPrefix(word, skip), notAlphanumeric)
		if word == "" || skip[strings.ToLower(word)] {
			continue
		}
		r, _ := utf8.DecodeRuneInString(word)
		out.WriteRune(unicode.ToUpper(r))
	}
	return out.String()
}

// ClosestMatch returns the candidate most similar to query by Jaro-Winkler
// similarity of the normalized strings, similarity is 0 when there are no
// candidates.
func ClosestMatch(query string, candidates []string) (string, float64) {
	query = NormalizeName(query)
	closest := ""
	similarity := 0.0
	for _, c := range candidates {
		score := matchr.JaroWinkler(query, NormalizeName(c), false)
		if score > similarity {
			similarity = score
			closest = c
		}
	}
	return closest, similarity
}
