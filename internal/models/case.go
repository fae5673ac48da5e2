// internal/models/case.go
package models

import "strings"

// PatientCase is one open patient case as returned by the case-management
// service, prior to scoring.
type PatientCase struct {
	CaseID           string       `json:"caseId"`
	CaseNo           string       `json:"caseNo"`
	PatientID        string       `json:"patientId"`
	PatientName      string       `json:"patientName"`
	Status           string       `json:"status"`
	Discipline       Discipline   `json:"discipline"`
	Conditions       []string     `json:"conditions"`
	Diagnosis        string       `json:"diagnosis,omitempty"`
	Address          string       `json:"address,omitempty"`
	City             string       `json:"city,omitempty"`
	State            string       `json:"state,omitempty"`
	ZipCode          string       `json:"zipCode,omitempty"`
	Coordinates      *Coordinates `json:"coordinates,omitempty"`
	PrevProviderID   string       `json:"prevProviderId,omitempty"`
	PrevProviderName string       `json:"prevProviderName,omitempty"`
	AdmissionDate    string       `json:"admissionDate,omitempty"`
	DischargeDate    string       `json:"dischargeDate,omitempty"`
	NonAdmitDate     string       `json:"nonAdmitDate,omitempty"`
	HoldDate         string       `json:"holdDate,omitempty"`
}

// HasDate reports whether a raw date field carries a usable value. The
// upstream service emits placeholder strings for absent dates.
func HasDate(raw string) bool {
	s := strings.ToLower(strings.TrimSpace(raw))
	switch s {
	case "", "nan", "none", "null":
		return false
	}
	return true
}

// StatusIsOpen reports whether the case status counts as open or pending
// for scoring purposes. Matching is case-insensitive and substring-based
// ("Re-Open", "Pending Eval" both qualify).
func StatusIsOpen(status string) bool {
	s := strings.ToLower(status)
	return strings.Contains(s, "open") || strings.Contains(s, "pending")
}

// CaseFeatures is a PatientCase enriched with the distance and continuity
// features the scorers consume. Distances are in miles, rounded to two
// decimal places; nil means the distance could not be computed.
type CaseFeatures struct {
	PatientCase

	// DistanceToClinician is the direct distance from the clinician's own
	// location to the case.
	DistanceToClinician *float64 `json:"distanceToClinician,omitempty"`

	// DistanceToNearestActive is the distance from the clinician's nearest
	// active case to this case.
	DistanceToNearestActive *float64 `json:"distanceToNearestActive,omitempty"`

	// NearestActiveCaseID identifies the active case behind
	// DistanceToNearestActive.
	NearestActiveCaseID string `json:"nearestActiveCaseId,omitempty"`

	// PrimaryDistance is the distance the ranking and the radius filter
	// use. When the clinician has at least one active case and a nearest
	// active distance exists it is DistanceToNearestActive, otherwise
	// DistanceToClinician, otherwise nil.
	PrimaryDistance *float64 `json:"primaryDistance,omitempty"`

	// PrimaryDistanceBasis records which distance PrimaryDistance carries:
	// "active_case", "clinician", or "" when unknown.
	PrimaryDistanceBasis string `json:"primaryDistanceBasis,omitempty"`

	IsPreviousProviderMatch bool `json:"isPreviousProviderMatch"`

	HasAdmissionDate bool `json:"hasAdmissionDate"`
	HasDischargeDate bool `json:"hasDischargeDate"`
	HasNonAdmitDate  bool `json:"hasNonAdmitDate"`
	HasHoldDate      bool `json:"hasHoldDate"`
}

// PrimaryDistanceBasis values.
const (
	DistanceBasisActiveCase = "active_case"
	DistanceBasisClinician  = "clinician"
)

// ActiveCase is a case currently assigned to the clinician, used to
// derive nearest-active distances.
type ActiveCase struct {
	CaseID      string       `json:"caseId"`
	CaseNo      string       `json:"caseNo"`
	PatientName string       `json:"patientName"`
	Coordinates *Coordinates `json:"coordinates,omitempty"`
}
