// internal/models/clinician.go
package models

import (
	"regexp"
	"strings"
)

// Discipline is the normalized therapy discipline code.
type Discipline string

const (
	DisciplinePT    Discipline = "PT"
	DisciplineOT    Discipline = "OT"
	DisciplineST    Discipline = "ST"
	DisciplineOther Discipline = "Other"
)

// Coordinates is a validated lat/lon pair. A nil *Coordinates means the
// location is unknown; NaN/Inf inputs are rejected at construction.
type Coordinates struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Clinician is the request-scoped clinician profile resolved from the
// case-management service.
type Clinician struct {
	ProviderID      string       `json:"providerId"`
	Name            string       `json:"name"`
	FirstName       string       `json:"firstName"`
	LastName        string       `json:"lastName"`
	Discipline      Discipline   `json:"discipline"`
	DisciplineName  string       `json:"disciplineName"`
	Specialties     []string     `json:"specialties"`
	Subspecialty    string       `json:"subspecialty"`
	Coordinates     *Coordinates `json:"coordinates,omitempty"`
	FacilityCoords  *Coordinates `json:"facilityCoordinates,omitempty"`
	Address         string       `json:"address,omitempty"`
	City            string       `json:"city,omitempty"`
	State           string       `json:"state,omitempty"`
	ActiveCaseCount int          `json:"activeCaseCount"`
}

// HasActiveCases reports whether the clinician carries at least one
// currently assigned case.
func (c *Clinician) HasActiveCases() bool {
	return c.ActiveCaseCount > 0
}

// ResolvedCoordinates returns the clinician location used for distance
// calculations: individual coordinates first, facility as fallback.
func (c *Clinician) ResolvedCoordinates() *Coordinates {
	if c.Coordinates != nil {
		return c.Coordinates
	}
	return c.FacilityCoords
}

var (
	caseNoPrefix = regexp.MustCompile(`^(OT|PT|ST)[-_ ]?\d+`)
	ptWord       = regexp.MustCompile(`\bpt\b`)
	otWord       = regexp.MustCompile(`\bot\b`)
	stWord       = regexp.MustCompile(`\bst\b`)
)

// DisciplineFromCaseNo derives the case discipline from the case-number
// prefix (leading PT/OT/ST token, optionally separated from the digits by
// '-', '_' or a space). Unmatched prefixes map to DisciplineOther.
func DisciplineFromCaseNo(caseNo string) Discipline {
	s := strings.ToUpper(strings.TrimSpace(caseNo))
	if s == "" {
		return DisciplineOther
	}
	if m := caseNoPrefix.FindStringSubmatch(s); m != nil {
		return Discipline(m[1])
	}
	switch {
	case strings.HasPrefix(s, "OT"):
		return DisciplineOT
	case strings.HasPrefix(s, "PT"):
		return DisciplinePT
	case strings.HasPrefix(s, "ST"):
		return DisciplineST
	}
	return DisciplineOther
}

// NormalizeDiscipline maps the free-text discipline from the clinician
// record onto a canonical code. Returns DisciplineOther when the text is
// not recognizable as PT/OT/ST.
func NormalizeDiscipline(raw string) Discipline {
	d := strings.ToLower(strings.TrimSpace(raw))
	if d == "" {
		return DisciplineOther
	}
	switch {
	case strings.Contains(d, "physical") || ptWord.MatchString(d):
		return DisciplinePT
	case strings.Contains(d, "occupational") || otWord.MatchString(d):
		return DisciplineOT
	case strings.Contains(d, "speech") || stWord.MatchString(d):
		return DisciplineST
	}
	return DisciplineOther
}
