package volleymanager

import (
	"bytes"
	"encoding/json"
	"strings"
)

// LoginFormFields are the hidden fields the login form must echo back on
// the authenticate post.
type LoginFormFields struct {
	CsrfToken          string
	ReferrerPackage    string
	ReferrerSubpackage string
	ReferrerController string
	ReferrerAction     string
	ReferrerArguments  string
	// TrustedProperties is only sent when the login page rendered it.
	TrustedProperties string
}

type InflatedAssociationValue struct {
	Identity  string `json:"__identity"`
	Name      string `json:"name"`
	ShortName string `json:"shortName"`
}

// AttributeValue is a single membership or flag attribute of a party.
type AttributeValue struct {
	Identity       string `json:"__identity"`
	RoleIdentifier string `json:"roleIdentifier"`
	Type           string `json:"type"`
	// InflatedValue is only set for association memberships, primitive flag
	// attributes carry a scalar there which is dropped.
	InflatedValue *InflatedAssociationValue `json:"-"`
}

func (a *AttributeValue) UnmarshalJSON(data []byte) error {
	type plain AttributeValue
	var raw struct {
		plain
		InflatedValue json.RawMessage `json:"inflatedValue"`
	}
	err := json.Unmarshal(data, &raw)
	if err != nil {
		return err
	}
	*a = AttributeValue(raw.plain)

	trimmed := bytes.TrimSpace(raw.InflatedValue)
	if len(trimmed) > 0 && trimmed[0] == '{' {
		var inflated InflatedAssociationValue
		if json.Unmarshal(trimmed, &inflated) == nil {
			a.InflatedValue = &inflated
		}
	}
	return nil
}

func (a AttributeValue) MarshalJSON() ([]byte, error) {
	type plain AttributeValue
	return json.Marshal(struct {
		plain
		InflatedValue *InflatedAssociationValue `json:"inflatedValue,omitempty"`
	}{plain: plain(a), InflatedValue: a.InflatedValue})
}

// isAssociationMembership distinguishes memberships from primitive flag
// attributes like booleans or dates.
func (a AttributeValue) isAssociationMembership() bool {
	if a.InflatedValue != nil {
		return true
	}
	return strings.Contains(strings.ToLower(a.Type), "association")
}

// ActiveParty is the identity blob the backend embeds into rendered pages.
type ActiveParty struct {
	Identity                       string           `json:"__identity"`
	GroupedEligibleAttributeValues []AttributeValue `json:"groupedEligibleAttributeValues"`
	EligibleAttributeValues        []AttributeValue `json:"eligibleAttributeValues"`
}

type OccupationType string

const (
	OCCUPATION_REFEREE           OccupationType = "referee"
	OCCUPATION_PLAYER            OccupationType = "player"
	OCCUPATION_CLUB_ADMIN        OccupationType = "clubAdmin"
	OCCUPATION_ASSOCIATION_ADMIN OccupationType = "associationAdmin"
	OCCUPATION_LINESMEN          OccupationType = "linesmen"
)

type Occupation struct {
	Id              string         `json:"id"`
	Type            OccupationType `json:"type"`
	AssociationCode string         `json:"associationCode,omitempty"`
}

type UserProfile struct {
	Id          string       `json:"id"`
	FirstName   string       `json:"firstName"`
	LastName    string       `json:"lastName"`
	Occupations []Occupation `json:"occupations"`
}

// LoginResult is what a successful login produces.
type LoginResult struct {
	CsrfToken     string
	DashboardHtml string
	ActiveParty   *ActiveParty
}

type SessionStatus struct {
	Valid       bool
	CsrfToken   string
	ActiveParty *ActiveParty
}
