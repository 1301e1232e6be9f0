package volleymanager

import (
	"fmt"
	"strings"
	"volleymanager-backend/lib/htmlutil"
	"volleymanager-backend/lib/textutil"

	"github.com/PuerkitoBio/goquery"
)

const (
	fieldCsrfToken          = "__csrfToken"
	fieldReferrerPackage    = "__referrer[@package]"
	fieldReferrerSubpackage = "__referrer[@subpackage]"
	fieldReferrerController = "__referrer[@controller]"
	fieldReferrerAction     = "__referrer[@action]"
	fieldReferrerArguments  = "__referrer[arguments]"
	fieldTrustedProperties  = "__trustedProperties"

	fieldUsername = "__authentication[Neos][Flow][Security][Authentication][Token][UsernamePassword][username]"
	fieldPassword = "__authentication[Neos][Flow][Security][Authentication][Token][UsernamePassword][password]"

	sessionTokenAttr = "data-csrf-token"
)

// defaults used when the login page omits a routing field
const (
	defaultReferrerPackage    = "SportManager.Volleyball"
	defaultReferrerSubpackage = ""
	defaultReferrerController = "Public"
	defaultReferrerAction     = "login"
	defaultReferrerArguments  = "YTowOnt9"
)

func inputSelector(name string) string {
	return fmt.Sprintf(`input[name=%q]`, name)
}

func inputValue(doc *goquery.Document, name string) (string, bool) {
	sel := doc.Find(inputSelector(name)).First()
	if sel.Length() == 0 {
		return "", false
	}
	return sel.AttrOr("value", ""), true
}

func inputValueOr(doc *goquery.Document, name, fallback string) string {
	value, ok := inputValue(doc, name)
	if !ok {
		return fallback
	}
	return value
}

// ExtractLoginFormFields reads the hidden fields of the login form, nil is
// returned when the csrf token is missing.
func ExtractLoginFormFields(html string) *LoginFormFields {
	doc := htmlutil.ParseDocument(html)
	if doc == nil {
		return nil
	}
	return extractLoginFormFields(doc)
}

func extractLoginFormFields(doc *goquery.Document) *LoginFormFields {
	token, _ := inputValue(doc, fieldCsrfToken)
	if strings.TrimSpace(token) == "" {
		return nil
	}
	trusted, _ := inputValue(doc, fieldTrustedProperties)

	return &LoginFormFields{
		CsrfToken:          token,
		ReferrerPackage:    inputValueOr(doc, fieldReferrerPackage, defaultReferrerPackage),
		ReferrerSubpackage: inputValueOr(doc, fieldReferrerSubpackage, defaultReferrerSubpackage),
		ReferrerController: inputValueOr(doc, fieldReferrerController, defaultReferrerController),
		ReferrerAction:     inputValueOr(doc, fieldReferrerAction, defaultReferrerAction),
		ReferrerArguments:  inputValueOr(doc, fieldReferrerArguments, defaultReferrerArguments),
		TrustedProperties:  trusted,
	}
}

// formData renders the authenticate post body, the field names must match
// the backend's token naming exactly.
func (f LoginFormFields) formData(username, password string) map[string]string {
	data := map[string]string{
		fieldCsrfToken:          f.CsrfToken,
		fieldReferrerPackage:    f.ReferrerPackage,
		fieldReferrerSubpackage: f.ReferrerSubpackage,
		fieldReferrerController: f.ReferrerController,
		fieldReferrerAction:     f.ReferrerAction,
		fieldReferrerArguments:  f.ReferrerArguments,
		fieldUsername:           username,
		fieldPassword:           password,
	}
	if f.TrustedProperties != "" {
		data[fieldTrustedProperties] = f.TrustedProperties
	}
	return data
}

// ExtractSessionToken returns the first non-empty session token in document
// order or "".
func ExtractSessionToken(html string) string {
	return extractSessionToken(htmlutil.ParseDocument(html))
}

func extractSessionToken(doc *goquery.Document) string {
	for _, value := range htmlutil.AttrValues(doc, sessionTokenAttr) {
		value = strings.TrimSpace(value)
		if value != "" {
			return value
		}
	}
	return ""
}

func hasLoginForm(doc *goquery.Document) bool {
	if doc == nil {
		return false
	}
	if doc.Find(inputSelector(fieldUsername)).Length() > 0 {
		return true
	}
	return doc.Find(fmt.Sprintf(`form[action*=%q]`, authenticatePath)).Length() > 0
}

type pageKind int

const (
	pageOther pageKind = iota
	pageDashboard
	pageLogin
)

// classify resolves a page carrying both a session token and a login form
// as a dashboard, the session is live even if a login shell was rendered.
func classify(doc *goquery.Document) pageKind {
	if extractSessionToken(doc) != "" {
		return pageDashboard
	}
	if hasLoginForm(doc) {
		return pageLogin
	}
	return pageOther
}

func IsDashboardContent(html string) bool {
	return classify(htmlutil.ParseDocument(html)) == pageDashboard
}

func IsLoginPageContent(html string) bool {
	return classify(htmlutil.ParseDocument(html)) == pageLogin
}

type ResponseAnalysis struct {
	HasAuthError bool
	HasTfaPage   bool
}

// markers are matched against textutil.NormalizeName(html), so they are
// lowercase and contain no whitespace.
var authErrorMarkers = []string{
	`color="error"`,
	"invalidusernameorpassword",
	"authenticationfailed",
	"falscherbenutzernameoderpasswort",
	"benutzernameoderpasswortfalsch",
	"nomd'utilisateuroumotdepasseinvalide",
}

// second factor markers are only looked for in form field names, form
// actions and visible headings, links to help pages don't count.
var tfaFieldMarkers = []string{
	"secondfactor",
	"twofactor",
	"totp",
	"onetimepassword",
}

var tfaHeadingMarkers = []string{
	"two-factor",
	"twofactor",
	"secondfactor",
	"zwei-faktor",
	"zweifaktor",
	"authenticatorapp",
	"onetimepassword",
	"einmalpasswort",
	"doubleauthentification",
}

func hasTfaForm(doc *goquery.Document) bool {
	if doc == nil {
		return false
	}
	found := false
	doc.Find("input[name]").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		found = textutil.MatchName(sel.AttrOr("name", ""), tfaFieldMarkers)
		return !found
	})
	if found {
		return true
	}
	doc.Find("form[action]").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		action := strings.ReplaceAll(sel.AttrOr("action", ""), "-", "")
		found = textutil.MatchName(action, tfaFieldMarkers)
		return !found
	})
	if found {
		return true
	}
	doc.Find("title, h1, h2, h3, h4, legend, label").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		found = textutil.MatchName(sel.Text(), tfaHeadingMarkers)
		return !found
	})
	return found
}

func AnalyzeResponse(html string) ResponseAnalysis {
	return ResponseAnalysis{
		HasAuthError: textutil.MatchName(html, authErrorMarkers),
		HasTfaPage:   hasTfaForm(htmlutil.ParseDocument(html)),
	}
}
