// internal/clients/fox/models.go
package fox

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// FlexFloat unmarshals a float that the upstream API serializes
// inconsistently: as a number, a quoted number, null, or an empty string.
// Unusable values decode to NaN.
type FlexFloat float64

func (f *FlexFloat) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || string(data) == "null" {
		*f = FlexFloat(math.NaN())
		return nil
	}

	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			*f = FlexFloat(math.NaN())
			return nil
		}
		s = strings.TrimSpace(s)
		if s == "" {
			*f = FlexFloat(math.NaN())
			return nil
		}
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			*f = FlexFloat(math.NaN())
			return nil
		}
		*f = FlexFloat(v)
		return nil
	}

	var v float64
	if err := json.Unmarshal(data, &v); err != nil {
		*f = FlexFloat(math.NaN())
		return nil
	}
	*f = FlexFloat(v)
	return nil
}

// clinicianDTO mirrors the provider payload.
type clinicianDTO struct {
	ProviderID      string    `json:"provider_id"`
	FirstName       string    `json:"first_name"`
	LastName        string    `json:"last_name"`
	Discipline      string    `json:"discipline"`
	DisciplineName  string    `json:"discipline_name"`
	Specialties     []string  `json:"specialties"`
	Subspecialty    string    `json:"subspecialty"`
	Latitude        FlexFloat `json:"latitude"`
	Longitude       FlexFloat `json:"longitude"`
	FacilityLat     FlexFloat `json:"facility_latitude"`
	FacilityLon     FlexFloat `json:"facility_longitude"`
	Address         string    `json:"address"`
	City            string    `json:"city"`
	State           string    `json:"state"`
	ActiveCaseCount int       `json:"active_case_count"`
}

// caseDTO mirrors one nearby open patient case.
type caseDTO struct {
	CaseID           string    `json:"case_id"`
	CaseNo           string    `json:"case_no"`
	PatientID        string    `json:"patient_id"`
	PatientName      string    `json:"patient_name"`
	Status           string    `json:"status"`
	Conditions       []string  `json:"conditions"`
	Diagnosis        string    `json:"diagnosis"`
	Address          string    `json:"address"`
	City             string    `json:"city"`
	State            string    `json:"state"`
	ZipCode          string    `json:"zip_code"`
	Latitude         FlexFloat `json:"latitude"`
	Longitude        FlexFloat `json:"longitude"`
	PrevProviderID   string    `json:"prev_provider_id"`
	PrevProviderName string    `json:"prev_provider_name"`
	AdmissionDate    string    `json:"admission_date"`
	DischargeDate    string    `json:"discharge_date"`
	NonAdmitDate     string    `json:"non_admit_date"`
	HoldDate         string    `json:"hold_date"`
}

type activeCaseDTO struct {
	CaseID      string    `json:"case_id"`
	CaseNo      string    `json:"case_no"`
	PatientName string    `json:"patient_name"`
	Latitude    FlexFloat `json:"latitude"`
	Longitude   FlexFloat `json:"longitude"`
}

// caseGroupDTO pairs one of the clinician's active cases with the open
// cases found near it.
type caseGroupDTO struct {
	ActiveCase  *activeCaseDTO `json:"active_case"`
	NearbyCases []caseDTO      `json:"nearby_cases"`
}

type caseGroupsResponse struct {
	Groups []caseGroupDTO `json:"groups"`
}
