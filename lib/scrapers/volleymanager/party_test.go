package volleymanager

import (
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/require"
)

const scriptPartyHtml = `<html><head><script>
	window.csrf = 'x';
	window.activeParty = JSON.parse('{"__identity":"party-script","eligibleAttributeValues":[{"__identity":"att-9","roleIdentifier":"Indoorvolleyball.RefAdmin:Referee","inflatedValue":{"name":"Association de Volleyball"}}]}');
</script></head><body></body></html>`

func TestExtractActivePartyFromAttribute(t *testing.T) {
	party := ExtractActiveParty(dashboardHtml)
	require.NotNil(t, party)
	require.Equal(t, "party-7", party.Identity)
	require.Len(t, party.EligibleAttributeValues, 3)

	first := party.EligibleAttributeValues[0]
	require.Equal(t, "Indoorvolleyball.RefAdmin:Referee", first.RoleIdentifier)
	require.True(t, first.isAssociationMembership())
	require.Equal(t, &InflatedAssociationValue{
		Identity:  "assoc-1",
		Name:      "Swiss Volley",
		ShortName: "SV",
	}, first.InflatedValue)

	flag := party.EligibleAttributeValues[2]
	require.Nil(t, flag.InflatedValue)
	require.False(t, flag.isAssociationMembership())
}

func TestExtractActivePartyFromScript(t *testing.T) {
	party := ExtractActiveParty(scriptPartyHtml)
	require.NotNil(t, party)
	require.Equal(t, "party-script", party.Identity)
	require.Len(t, party.EligibleAttributeValues, 1)
	require.Equal(t, "Association de Volleyball", party.EligibleAttributeValues[0].InflatedValue.Name)
}

func TestExtractActivePartyOrder(t *testing.T) {
	html := `<div :party="{&quot;__identity&quot;:&quot;from-party&quot;}"></div>` +
		`<div :active-party="{&quot;__identity&quot;:&quot;from-active-party&quot;}"></div>` +
		scriptPartyHtml
	party := ExtractActiveParty(html)
	require.NotNil(t, party)
	require.Equal(t, "party-script", party.Identity)

	html = `<div :party="{&quot;__identity&quot;:&quot;from-party&quot;}"></div>` +
		`<div :active-party="{&quot;__identity&quot;:&quot;from-active-party&quot;}"></div>`
	party = ExtractActiveParty(html)
	require.NotNil(t, party)
	require.Equal(t, "from-active-party", party.Identity)
}

func TestExtractActivePartySkipsMalformed(t *testing.T) {
	html := `<div :active-party="{&quot;__identity&quot;: broken"></div>` +
		`<div :active-party="{&quot;unrelated&quot;:1}"></div>` +
		`<div :active-party="[1,2]"></div>` +
		`<div :party="{&quot;__identity&quot;:&quot;fallback&quot;}"></div>`
	party := ExtractActiveParty(html)
	require.NotNil(t, party)
	require.Equal(t, "fallback", party.Identity)
}

func TestExtractActivePartyAbsent(t *testing.T) {
	require.Nil(t, ExtractActiveParty(""))
	require.Nil(t, ExtractActiveParty(loginPageHtml))
	require.Nil(t, ExtractActiveParty(`<script>window.activeParty = JSON.parse('not json');</script>`))
}

func TestExtractActivePartyWithCustomMatcher(t *testing.T) {
	matchers := append(DefaultPartyMatchers(), PartyMatcher{
		Name: "json-script",
		Candidates: func(doc *goquery.Document) []string {
			return doc.Find(`script[type="application/json"]#party`).Map(func(_ int, s *goquery.Selection) string {
				return s.Text()
			})
		},
	})
	html := `<script type="application/json" id="party">{"__identity":"custom"}</script>`
	party := ExtractActivePartyWith(html, matchers)
	require.NotNil(t, party)
	require.Equal(t, "custom", party.Identity)
}

func TestUnescapeJsString(t *testing.T) {
	cases := []struct {
		input    string
		expected string
	}{
		{input: `plain`, expected: "plain"},
		{input: `it\'s`, expected: "it's"},
		{input: `"q"`, expected: `"q"`},
		{input: `a\\b`, expected: `a\b`},
		{input: `\/path\/`, expected: "/path/"},
		{input: `Z\u00fcrich`, expected: "Zürich"},
		{input: `\x41`, expected: "A"},
		{input: `\ud83c\udfd0`, expected: "\U0001F3D0"},
		{input: `line\nbreak`, expected: "line\nbreak"},
		{input: `trailing\`, expected: `trailing\`},
	}
	for _, test := range cases {
		require.Equal(t, test.expected, unescapeJsString(test.input), test.input)
	}
}
