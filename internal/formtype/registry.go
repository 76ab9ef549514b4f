// Package formtype maps OS2Forms webform ids to their journalization rules.
// New form types are registry additions, not new branches in the pipeline.
package formtype

import (
	"fmt"
	"strings"

	"github.com/mbu-rpa/journalize/internal/formdata"
)

// Family groups form types for notification routing.
type Family int

const (
	// FamilyNone gets no stakeholder notification on success.
	FamilyNone Family = iota
	// FamilyRespekt is the boundary-violation report family.
	FamilyRespekt
	// FamilySkole is the school application family (transport, home schooling,
	// mother-tongue teaching, reception classes).
	FamilySkole
)

// TitleInput is the data a title rule may draw on.
type TitleInput struct {
	FullName string
	SSN      string
	Payload  *formdata.Value
}

// Definition is the journalization rule set for one form type.
type Definition struct {
	ID           string
	Family       Family
	SSNFields    []string // payload field candidates for the citizen identifier
	EmailSubject string   // success notification subject for FamilySkole

	title       func(TitleInput) string
	profileName func(*formdata.Value) string
}

// CaseTitle derives the case title for this form type.
func (d Definition) CaseTitle(in TitleInput) string {
	return d.title(in)
}

// ProfileName derives the case-profile name from the payload, or "" when the
// form type has no profile rule.
func (d Definition) ProfileName(payload *formdata.Value) string {
	if d.profileName == nil {
		return ""
	}
	return d.profileName(payload)
}

// ExtractSSN returns the first non-empty citizen identifier among the form
// type's candidate fields, with dashes and spaces stripped.
func (d Definition) ExtractSSN(payload *formdata.Value) string {
	for _, field := range d.SSNFields {
		if raw := payload.DataField(field); raw != "" {
			cleaned := strings.ReplaceAll(raw, "-", "")
			return strings.ReplaceAll(cleaned, " ", "")
		}
	}
	return ""
}

// ApplyTitleTemplate substitutes the metadata title-template placeholders.
// Longer placeholders are replaced first so placeholder_ssn does not clobber
// placeholder_ssn_first_6.
func ApplyTitleTemplate(template, fullName, ssn string) string {
	replacements := []struct{ placeholder, value string }{
		{"placeholder_ssn_first_6", firstN(ssn, 6)},
		{"placeholder_ssn", ssn},
		{"placeholder_person_full_name", fullName},
	}
	for _, r := range replacements {
		template = strings.ReplaceAll(template, r.placeholder, r.value)
	}
	return template
}

func firstN(s string, n int) string {
	if len(s) < n {
		return s
	}
	return s[:n]
}

var registry = map[string]Definition{
	"tilmelding_til_modersmaalsunderv": {
		ID:           "tilmelding_til_modersmaalsunderv",
		Family:       FamilySkole,
		SSNFields:    []string{"barnets_cpr_nummer", "cpr_nummer"},
		EmailSubject: "Ny journaliseret tilmelding: Modersmålsundervisning",
		title: func(in TitleInput) string {
			return fmt.Sprintf("Modersmålsundervisning %s", in.FullName)
		},
	},
	"indmeldelse_i_modtagelsesklasse": {
		ID:           "indmeldelse_i_modtagelsesklasse",
		Family:       FamilySkole,
		SSNFields:    []string{"barnets_cpr_nummer", "cpr_nummer"},
		EmailSubject: "Ny journaliseret indmeldelse: Modtagelsesklasse",
		title: func(in TitleInput) string {
			return fmt.Sprintf("Visitering af %s %s", in.FullName, in.SSN)
		},
	},
	"ansoegning_om_koersel_af_skoleel": {
		ID:           "ansoegning_om_koersel_af_skoleel",
		Family:       FamilySkole,
		SSNFields:    []string{"barnets_cpr_nummer", "cpr_nummer"},
		EmailSubject: "Ny journaliseret ansøgning: Kørsel af skoleelever",
		title: func(in TitleInput) string {
			return fmt.Sprintf("Kørsel til %s", in.FullName)
		},
	},
	"ansoegning_om_midlertidig_koerse": {
		ID:           "ansoegning_om_midlertidig_koerse",
		Family:       FamilySkole,
		SSNFields:    []string{"barnets_cpr_nummer", "cpr_nummer"},
		EmailSubject: "Ny journaliseret ansøgning: Midlertidig kørsel",
		title: func(in TitleInput) string {
			return fmt.Sprintf("Kørsel til %s", in.FullName)
		},
	},
	"anmeldelse_om_hjemmeundervisning": {
		ID:           "anmeldelse_om_hjemmeundervisning",
		Family:       FamilySkole,
		SSNFields:    []string{"barnets_cpr_nummer", "cpr_nummer"},
		EmailSubject: "Ny journaliseret anmeldelse: Hjemmeundervisning",
		title: func(in TitleInput) string {
			return fmt.Sprintf("Hjemmeundervisning af %s", in.FullName)
		},
	},
	"indmeld_kraenkelser_af_boern": {
		ID:          "indmeld_kraenkelser_af_boern",
		Family:      FamilyRespekt,
		SSNFields:   []string{"barnets_cpr_nummer"},
		title:       respektTitle("Forældre/pårørendehenvendelse"),
		profileName: respektProfileName,
	},
	"respekt_for_graenser_privat": {
		ID:          "respekt_for_graenser_privat",
		Family:      FamilyRespekt,
		SSNFields:   []string{"barnets_cpr_nummer"},
		title:       respektTitle("Privat skole/privat dagtilbud-henvendelse"),
		profileName: respektProfileName,
	},
	"respekt_for_graenser": {
		ID:          "respekt_for_graenser",
		Family:      FamilyRespekt,
		SSNFields:   []string{"barnets_cpr_nummer"},
		title:       respektTitle("BU-henvendelse"),
		profileName: respektProfileName,
	},
}

// Lookup returns the definition for a webform id.
func Lookup(id string) (Definition, bool) {
	def, ok := registry[id]
	return def, ok
}

// respektTitle builds a boundary-violation title rule: the reported
// department, a dash, and the form type's fixed suffix.
func respektTitle(suffix string) func(TitleInput) string {
	return func(in TitleInput) string {
		return fmt.Sprintf("%s - %s", respektDepartment(in.Payload), suffix)
	}
}

// respektDepartment resolves the department named in the report's area field,
// falling back to a literal unknown-department string per area.
func respektDepartment(payload *formdata.Value) string {
	switch payload.DataField("omraade") {
	case "Skole":
		return fieldOrDefault(payload, "Ukendt skole", "skole")
	case "Dagtilbud":
		return fieldOrDefault(payload, "Ukendt dagtilbud", "dagtilbud", "daginstitution_udv_")
	case "Ungdomsskole":
		return fieldOrDefault(payload, "Ukendt ungdomsskole", "ungdomsskole")
	case "Klub":
		return fieldOrDefault(payload, "Ukendt klub", "klub")
	default:
		return "Ukendt afdeling"
	}
}

func fieldOrDefault(payload *formdata.Value, fallback string, fields ...string) string {
	for _, field := range fields {
		if v := payload.DataField(field); v != "" {
			return v
		}
	}
	return fallback
}

func respektProfileName(payload *formdata.Value) string {
	switch payload.DataField("omraade") {
	case "Skole":
		return "MBU PPR Respekt for grænser Skole"
	case "Dagtilbud":
		return "MBU PPR Respekt for grænser Dagtilbud"
	case "Ungdomsskole", "Klub":
		return "MBU PPR Respekt for grænser UngiAarhus"
	default:
		return ""
	}
}
