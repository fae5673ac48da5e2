// internal/stages/score-cases-ai/prompt.go
package scorecasesai

import (
	"encoding/json"
	"fmt"
	"strings"

	"caserank/internal/models"
)

// promptClinician is the clinician view embedded in the scoring prompt.
type promptClinician struct {
	ID              string   `json:"ID"`
	Name            string   `json:"Name"`
	Discipline      string   `json:"Discipline"`
	DisciplineName  string   `json:"DisciplineName"`
	Subspecialty    string   `json:"Subspecialty"`
	Specialties     []string `json:"Professional_Specialties"`
	HasActiveCases  bool     `json:"Has_Active_Cases"`
	ActiveCaseCount int      `json:"Active_Case_Count"`
}

// promptCase is the candidate view embedded in the scoring prompt. Only
// fields the rubric consumes are included; internal identifiers stay out.
type promptCase struct {
	ID                    string   `json:"ID"`
	Status                string   `json:"Status"`
	Conditions            []string `json:"Conditions,omitempty"`
	Diagnosis             string   `json:"Diagnosis,omitempty"`
	PreviousProviderMatch bool     `json:"Previous_Provider_Match"`
	DistanceMiles         *float64 `json:"Distance_Miles,omitempty"`
	DistanceBasis         string   `json:"Distance_Basis,omitempty"`
	HasAdmission          bool     `json:"Has_Admission"`
	HasDischarge          bool     `json:"Has_Discharge"`
	HasNonAdmit           bool     `json:"Has_NonAdmit"`
	HasHold               bool     `json:"Has_Hold"`
}

// buildPrompt assembles the scoring instructions for one batch. The model
// is asked for a JSON array of {id, score, reason} objects, one per
// candidate, with per-factor point contributions spelled out in the reason.
func buildPrompt(clin *models.Clinician, batch []models.CaseFeatures) (string, error) {
	cj, err := json.MarshalIndent(promptClinician{
		ID:              clin.ProviderID,
		Name:            clin.Name,
		Discipline:      string(clin.Discipline),
		DisciplineName:  clin.DisciplineName,
		Subspecialty:    clin.Subspecialty,
		Specialties:     clin.Specialties,
		HasActiveCases:  clin.HasActiveCases(),
		ActiveCaseCount: clin.ActiveCaseCount,
	}, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal clinician: %w", err)
	}

	cases := make([]promptCase, 0, len(batch))
	for _, cf := range batch {
		cases = append(cases, promptCase{
			ID:                    cf.CaseID,
			Status:                cf.Status,
			Conditions:            cf.Conditions,
			Diagnosis:             cf.Diagnosis,
			PreviousProviderMatch: cf.IsPreviousProviderMatch,
			DistanceMiles:         cf.PrimaryDistance,
			DistanceBasis:         cf.PrimaryDistanceBasis,
			HasAdmission:          cf.HasAdmissionDate,
			HasDischarge:          cf.HasDischargeDate,
			HasNonAdmit:           cf.HasNonAdmitDate,
			HasHold:               cf.HasHoldDate,
		})
	}
	bj, err := json.MarshalIndent(cases, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal candidates: %w", err)
	}

	var b strings.Builder
	b.WriteString(promptHeader)
	b.WriteString("\n=== CLINICIAN ===\n")
	b.Write(cj)
	b.WriteString("\n\n=== PATIENT CANDIDATES (JSON) ===\n")
	b.Write(bj)
	b.WriteString("\n")
	b.WriteString(promptRubric)
	b.WriteString(subspecialtyReference(clin.Discipline))
	b.WriteString(promptOutputFormat)
	return b.String(), nil
}

const promptHeader = `You are an AI assistant with 20 years experience of US home-health care that RANKS and SCORES patient cases for a specific clinician using DETERMINISTIC SCORING.

=== OBJECTIVE ===
Given a clinician and a set of patient cases, produce a JSON array where each element contains:
  - "id": the candidate's ID as a string
  - "score": a 0..100 numeric score (higher = better fit) using the EXACT weightings below
  - "reason": a concise explanation (<= 160 chars) of the key factors with per-factor points in "Npts" form

You MUST:
  - Return ONLY valid JSON (no prose outside JSON, no code fences).
  - Include EVERY candidate exactly once.
  - Use the EXACT percentage weightings defined below.
`

const promptRubric = `
=== DETERMINISTIC SCORING SYSTEM (TOTAL = 100%) ===

**1. ALREADY TREATED CLINICIAN - 30%**
- If "Previous_Provider_Match" is true: 30 points
- Otherwise: 0 points

**2. PATIENT SPECIFIC CONDITIONS - 25% (5% each condition)**
Check the candidate's Conditions and Diagnosis for:
- Recent surgery: 5 points if mentioned
- Recently discharged from hospitalization: 5 points if mentioned
- Recent home health discharge: 5 points if mentioned
- Recent fall: 5 points if mentioned
- Recently discharged from same discipline: 5 points if mentioned
Total possible: 25 points

**3. DISTANCE - 20%**
Use "Distance_Miles" as given (it already reflects the nearest active case when the clinician has active cases).

Scoring:
- 0-2 miles: 20 points
- 2-5 miles: 17 points
- 5-10 miles: 15 points
- 10-20 miles: 10 points
- 20+ miles: 7 points
- 40+ miles or missing distance: 3 points

**4. PATIENT PROFILE AND CLINICIAN PROFILE MATCHING - 15%**
Match patient conditions/needs with the clinician's subspecialty and specialties:
- Perfect match (condition exactly matches clinician specialty): 15 points
- Good match (related specialty): 10 points
- Partial match (somewhat related): 5 points
- No match: 0 points

**5. CASE STATUS - 10%**
- Status contains "Open" or "Pending": 10 points
- Other statuses: 5 points
`

const ptSubspecialties = `
**PT Subspecialties:**
- Cardiovascular and Pulmonary Clinical Specialist (CCS)
- Neurologic Clinical Specialist (NCS)
- Orthopedic Clinical Specialist (OCS)
- Geriatric Clinical Specialist (GCS)
- Pediatric Clinical Specialist (PCS)
- Oncologic Clinical Specialist (OCS)
- Sports Clinical Specialist (SCS)
- Electrophysiologic Clinical Specialist (ECS)
- Wound Management Specialist (WMS)
- Women's Health Specialist (WCS)
- Certified Orthopedic Manual Therapist (COMT)
- Advanced Certified Orthopedic Manual Therapist (ACOMT)
- Dry Needling (DN)
- Certified Lymphedema Therapist (CLT)
- Certified Strength and Conditioning Specialist (CSCS)
- Certified Hand Therapist (CHT)
- Certified Aging In Place Specialist (CAPS)
- Certified Functional Capacity Evaluator (CFCE)
- Certified Clinical Instructor (CCI)
- Lee Silverman Voice Treatment- BIG (LSVT BIG)
- Seating and Mobility Specialist (ATP/SMS)
`

const stSubspecialties = `
**ST Subspecialties:**
- Board-Certified Specialist Certification (BCS)
- Child Language and Language Disorders Certification (BCS-CL)
- Board-Certified Specialist in Fluency and Fluency Disorders Certification (BCS-F)
- Board-Certified Specialist in Swallowing and Swallowing Disorders (BCS-S)
- Lee Silverman Voice Treatment (LSVT LOUD)
- PROMPT for Restructuring Oral Muscular Phonetic Targets Certification
- Picture Exchange Communication System (PECS)
- Certification for Motor Skills for Language Development
`

const otSubspecialties = `
**OT Subspecialties:**
- Seating and Mobility Specialist (ATP/SMS)
- Aquatic Therapeutic Exercise Certification (ATRIC)
- Basic DIRFloortime Certification
- Neuro-Developmental Treatment Certification (C/NDT)
- Certified Autism Specialist (CAS)
- Certified Aging in Place Specialist (CAPS)
- Certified Brain Injury Specialist (CBIS)
- Certified Diabetes Care and Education Specialist (CDCES)
- Certified Hand Therapist (CHT)
- Certified Industrial Ergonomic Evaluator (CIEE)
- Certified Industrial Rehabilitation Specialist (CIRS)
- Certified Kinesio Taping Practitioner (CKTP)
- Certified Lifestyle Medicine Diplomate
- Certified Living in Place Professional (CLIPP)
- Certified Lymphedema Therapist (CLT)
- Certified Low Vision Therapist (CLVT)
- Certified Perinatal Health Specialist Training (PHS)
- Certified Neuro Specialist (CNS)
- Certified Psychiatric Rehabilitation Practitioner (CPRP)
- Certified Driver Rehabilitation Specialist (CDRS)
- Certified Hippotherapy Clinical Specialist (HPSC)
- Cognitive Behavioral Therapy for Insomnia (CBT-I)
- Lee Silverman Voice Treatment- BIG (LSVT BIG)
- Physical Agent Modalities (PAM) Certification
- Skills2Care Certification
- Trauma-Informed Practice Health Certification (TIPHC)
`

// subspecialtyReference returns the reference list for the clinician's
// discipline, or all lists when the discipline is not recognized.
func subspecialtyReference(d models.Discipline) string {
	header := "\n=== SUBSPECIALTY REFERENCE ===\n"
	switch d {
	case models.DisciplinePT:
		return header + ptSubspecialties
	case models.DisciplineST:
		return header + stSubspecialties
	case models.DisciplineOT:
		return header + otSubspecialties
	}
	return header + ptSubspecialties + stSubspecialties + otSubspecialties
}

const promptOutputFormat = `
=== SCORING EXAMPLES ===
Example 1: Previous provider match (30) + all conditions (25) + close distance (20) + perfect specialty match (15) + open case (10) = 100 points
Example 2: No previous provider (0) + 2 conditions (10) + medium distance (10) + good specialty match (10) + pending case (10) = 40 points

=== OUTPUT FORMAT (STRICT) ===
Return a JSON array like:
[
  {"id":"53416001","score":93,"reason":"Previous provider 30pts + surgery+discharge 10pts + close 20pts + ortho match 15pts + open 10pts"},
  {"id":"53416015","score":65,"reason":"No prev provider 0pts + fall 5pts + medium dist 10pts + good match 10pts + pending 10pts"}
]

ONLY the JSON array. No markdown, no backticks, no extra commentary.
Calculate scores precisely using the percentage weights above.
`
