package volleymanager

import (
	"encoding/json"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf16"
	"unicode/utf8"
	"volleymanager-backend/lib/htmlutil"

	"github.com/PuerkitoBio/goquery"
)

// PartyMatcher produces candidate json payloads for the active party from a
// page, candidates are returned in document order.
type PartyMatcher struct {
	Name       string
	Candidates func(doc *goquery.Document) []string
}

var activePartyScriptRegex = regexp.MustCompile(
	`activeParty\s*=\s*JSON\.parse\(\s*(?:'((?:[^'\\]|\\.)*)'|"((?:[^"\\]|\\.)*)")\s*\)`,
)

func scriptCandidates(doc *goquery.Document) []string {
	var candidates []string
	for _, script := range doc.Find("script").Nodes {
		text := htmlutil.GetText(script)
		if !strings.Contains(text, "activeParty") {
			continue
		}
		for _, groups := range activePartyScriptRegex.FindAllStringSubmatch(text, -1) {
			literal := groups[1]
			if literal == "" {
				literal = groups[2]
			}
			candidates = append(candidates, unescapeJsString(literal))
		}
	}
	return candidates
}

func attributeMatcher(name, attr string) PartyMatcher {
	return PartyMatcher{
		Name: name,
		Candidates: func(doc *goquery.Document) []string {
			return htmlutil.AttrValues(doc, attr)
		},
	}
}

// DefaultPartyMatchers are the embedding conventions used by the backend's
// page templates, in the order they are tried.
func DefaultPartyMatchers() []PartyMatcher {
	return []PartyMatcher{
		{Name: "script", Candidates: scriptCandidates},
		attributeMatcher("active-party-attribute", ":active-party"),
		attributeMatcher("party-attribute", ":party"),
	}
}

var activePartyKeys = []string{
	"__identity",
	"eligibleAttributeValues",
	"groupedEligibleAttributeValues",
	"eligibleRoles",
}

// parsePartyCandidate decodes a candidate, trying the raw payload before the
// entity decoded one.
func parsePartyCandidate(candidate string) *ActiveParty {
	candidate = strings.TrimSpace(candidate)
	if candidate == "" {
		return nil
	}

	attempts := []string{candidate}
	if decoded := htmlutil.DecodeEntities(candidate); decoded != candidate {
		attempts = append(attempts, decoded)
	}

	for _, payload := range attempts {
		var keys map[string]json.RawMessage
		if json.Unmarshal([]byte(payload), &keys) != nil {
			continue
		}
		looksLikeParty := false
		for _, k := range activePartyKeys {
			if _, ok := keys[k]; ok {
				looksLikeParty = true
				break
			}
		}
		if !looksLikeParty {
			continue
		}

		var party ActiveParty
		if json.Unmarshal([]byte(payload), &party) != nil {
			continue
		}
		return &party
	}
	return nil
}

func ExtractActiveParty(html string) *ActiveParty {
	return ExtractActivePartyWith(html, DefaultPartyMatchers())
}

// ExtractActivePartyWith tries every matcher in order and returns the first
// candidate that decodes to an active party.
func ExtractActivePartyWith(html string, matchers []PartyMatcher) *ActiveParty {
	return extractActiveParty(htmlutil.ParseDocument(html), matchers)
}

func extractActiveParty(doc *goquery.Document, matchers []PartyMatcher) *ActiveParty {
	if doc == nil {
		return nil
	}
	for _, m := range matchers {
		for _, candidate := range m.Candidates(doc) {
			party := parsePartyCandidate(candidate)
			if party != nil {
				return party
			}
		}
	}
	return nil
}

// unescapeJsString resolves the escapes of a javascript string literal body.
func unescapeJsString(s string) string {
	if !strings.Contains(s, `\`) {
		return s
	}

	var out strings.Builder
	out.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c != '\\' || i+1 >= len(s) {
			out.WriteByte(c)
			continue
		}
		i++
		switch s[i] {
		case 'n':
			out.WriteByte('\n')
		case 'r':
			out.WriteByte('\r')
		case 't':
			out.WriteByte('\t')
		case 'b':
			out.WriteByte('\b')
		case 'f':
			out.WriteByte('\f')
		case 'v':
			out.WriteByte('\v')
		case '0':
			out.WriteByte(0)
		case 'x':
			if r, ok := parseHex(s, i+1, 2); ok {
				out.WriteRune(r)
				i += 2
				continue
			}
			out.WriteByte('x')
		case 'u':
			r, ok := parseHex(s, i+1, 4)
			if !ok {
				out.WriteByte('u')
				continue
			}
			i += 4
			if utf16.IsSurrogate(r) && i+2 < len(s) && s[i+1] == '\\' && s[i+2] == 'u' {
				if low, ok := parseHex(s, i+3, 4); ok {
					if combined := utf16.DecodeRune(r, low); combined != utf8.RuneError {
						out.WriteRune(combined)
						i += 6
						continue
					}
				}
			}
			out.WriteRune(r)
		default:
			// \' \" \\ \/ and unknown escapes stand for the character itself
			out.WriteByte(s[i])
		}
	}
	return out.String()
}

func parseHex(s string, start, length int) (rune, bool) {
	if start+length > len(s) {
		return 0, false
	}
	n, err := strconv.ParseUint(s[start:start+length], 16, 32)
	if err != nil {
		return 0, false
	}
	return rune(n), true
}
