package volleymanager

import (
	"regexp"
	"strings"
	"volleymanager-backend/lib/textutil"
)

const placeholderUserId = "user"

var refereeRoleRegex = regexp.MustCompile(`:Referee$`)

// articles and conjunctions of the languages used in association names,
// they never contribute to an association code
var associationStopWords = map[string]bool{
	"de": true, "du": true, "des": true, "la": true, "le": true, "les": true,
	"l": true, "et": true, "der": true, "die": true, "das": true, "und": true,
	"von": true, "van": true, "of": true, "the": true, "and": true,
	"di": true, "del": true, "della": true, "e": true,
}

// DeriveAssociationCode turns "Regionalverband Nordostschweiz" into "RN".
func DeriveAssociationCode(name string) string {
	return textutil.Initials(name, associationStopWords)
}

// OccupationTypeFromRole maps a backend role identifier to the occupation
// type it stands for.
func OccupationTypeFromRole(roleIdentifier string) (OccupationType, bool) {
	role := roleIdentifier
	if idx := strings.LastIndex(role, ":"); idx >= 0 {
		role = role[idx+1:]
	}
	switch strings.ToLower(role) {
	case "referee":
		return OCCUPATION_REFEREE, true
	case "player":
		return OCCUPATION_PLAYER, true
	case "clubadmin", "clubadministrator":
		return OCCUPATION_CLUB_ADMIN, true
	case "associationadmin", "associationadministrator":
		return OCCUPATION_ASSOCIATION_ADMIN, true
	case "linesman", "linesmen":
		return OCCUPATION_LINESMEN, true
	}
	return "", false
}

func associationCode(attr AttributeValue) string {
	if attr.InflatedValue == nil {
		return ""
	}
	if code := strings.TrimSpace(attr.InflatedValue.ShortName); code != "" {
		return code
	}
	return DeriveAssociationCode(attr.InflatedValue.Name)
}

func attributeCollection(party *ActiveParty) []AttributeValue {
	if party == nil {
		return nil
	}
	if len(party.GroupedEligibleAttributeValues) > 0 {
		return party.GroupedEligibleAttributeValues
	}
	return party.EligibleAttributeValues
}

// refereeOccupations keeps the first occupation per association code, or
// per id when there is no code.
func refereeOccupations(party *ActiveParty) []Occupation {
	var occupations []Occupation
	seen := map[string]bool{}
	for _, attr := range attributeCollection(party) {
		if !refereeRoleRegex.MatchString(attr.RoleIdentifier) {
			continue
		}
		occupationType, ok := OccupationTypeFromRole(attr.RoleIdentifier)
		if !ok {
			continue
		}
		occupation := Occupation{
			Id:              attr.Identity,
			Type:            occupationType,
			AssociationCode: associationCode(attr),
		}
		key := occupation.AssociationCode
		if key == "" {
			key = "id:" + occupation.Id
		}
		if seen[key] {
			continue
		}
		seen[key] = true
		occupations = append(occupations, occupation)
	}
	return occupations
}

type DerivedUser struct {
	User UserProfile
	// ActiveOccupationId is "" when the user has no occupation.
	ActiveOccupationId string
}

// DeriveUser computes the user and the active occupation from a freshly
// scraped party and the previously known state. It is pure, the caller owns
// persisting the result.
func DeriveUser(party *ActiveParty, previous *UserProfile, previousActiveOccupationId string) DerivedUser {
	occupations := refereeOccupations(party)
	if len(occupations) == 0 && previous != nil {
		occupations = previous.Occupations
	}
	occupations = append([]Occupation(nil), occupations...)

	activeId := ""
	for _, o := range occupations {
		if previousActiveOccupationId != "" && o.Id == previousActiveOccupationId {
			activeId = o.Id
			break
		}
	}
	if activeId == "" && len(occupations) > 0 {
		activeId = occupations[0].Id
	}

	user := UserProfile{Id: placeholderUserId, Occupations: occupations}
	if previous != nil {
		user.FirstName = previous.FirstName
		user.LastName = previous.LastName
		if previous.Id != "" {
			user.Id = previous.Id
		}
	}
	if party != nil && party.Identity != "" {
		user.Id = party.Identity
	}

	return DerivedUser{User: user, ActiveOccupationId: activeId}
}
