// internal/repository/store.go
package repository

import (
	"context"
	"database/sql"
	"math"

	"github.com/lib/pq"

	"caserank/internal/clients/fox"
	"caserank/internal/common/errors"
	"caserank/internal/common/geo"
	"caserank/internal/common/logger"
	"caserank/internal/models"
)

// Store is a Postgres-backed CaseSource for deployments that mirror the
// case-management data locally instead of calling the fox API.
type Store struct {
	db     *sql.DB
	logger logger.Logger
}

func NewStore(db *sql.DB, log logger.Logger) *Store {
	return &Store{
		db:     db,
		logger: log.WithFields(map[string]interface{}{"component": "case-store"}),
	}
}

const clinicianQuery = `
	SELECT provider_id, name, discipline, discipline_name, subspecialty,
	       specialties, latitude, longitude, facility_latitude,
	       facility_longitude, city, state, active_case_count
	FROM clinicians
	WHERE provider_id = $1`

func (s *Store) GetClinician(ctx context.Context, providerID string) (*models.Clinician, error) {
	var (
		clin                 models.Clinician
		disciplineRaw        string
		specialties          []string
		lat, lon             sql.NullFloat64
		facilityLat, facLon  sql.NullFloat64
		city, state, subspec sql.NullString
	)

	err := s.db.QueryRowContext(ctx, clinicianQuery, providerID).Scan(
		&clin.ProviderID, &clin.Name, &disciplineRaw, &clin.DisciplineName,
		&subspec, pq.Array(&specialties), &lat, &lon, &facilityLat, &facLon,
		&city, &state, &clin.ActiveCaseCount,
	)
	if err == sql.ErrNoRows {
		return nil, errors.NewClinicianNotFoundError(providerID)
	}
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return nil, errors.NewClinicianLookupTimeoutError()
		}
		return nil, errors.NewClinicianLookupFailedError(err)
	}

	clin.Discipline = models.NormalizeDiscipline(disciplineRaw)
	clin.Subspecialty = subspec.String
	clin.Specialties = specialties
	clin.City = city.String
	clin.State = state.String
	clin.Coordinates = nullCoords(lat, lon)
	clin.FacilityCoords = nullCoords(facilityLat, facLon)
	return &clin, nil
}

const activeCasesQuery = `
	SELECT case_id, case_no, patient_name, latitude, longitude
	FROM patient_cases
	WHERE assigned_provider_id = $1 AND is_active`

const openCasesQuery = `
	SELECT case_id, case_no, patient_id, patient_name, status, conditions,
	       diagnosis, city, state, zip_code, latitude, longitude,
	       prev_provider_id, prev_provider_name, admission_date,
	       discharge_date, non_admit_date, hold_date
	FROM patient_cases
	WHERE NOT is_active
	  AND discipline = $1
	  AND (latitude IS NULL
	       OR (latitude BETWEEN $2 AND $3 AND longitude BETWEEN $4 AND $5))`

// GetCaseGroups returns the clinician's active cases and the open cases in
// their discipline. Open candidates are pre-bounded with a latitude and
// longitude box around the clinician; the exact radius cut happens in the
// pipeline. Cases without coordinates are always included.
func (s *Store) GetCaseGroups(ctx context.Context, providerID string, discipline models.Discipline, radiusMiles float64) (*fox.CaseGroups, error) {
	groups := &fox.CaseGroups{}

	rows, err := s.db.QueryContext(ctx, activeCasesQuery, providerID)
	if err != nil {
		return nil, errors.NewCaseLookupFailedError(err)
	}
	defer rows.Close()

	center := (*models.Coordinates)(nil)
	for rows.Next() {
		var (
			ac       models.ActiveCase
			lat, lon sql.NullFloat64
		)
		if err := rows.Scan(&ac.CaseID, &ac.CaseNo, &ac.PatientName, &lat, &lon); err != nil {
			return nil, errors.NewCaseLookupFailedError(err)
		}
		ac.Coordinates = nullCoords(lat, lon)
		groups.Active = append(groups.Active, ac)
		if center == nil && ac.Coordinates != nil {
			center = ac.Coordinates
		}
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewCaseLookupFailedError(err)
	}

	if center == nil {
		if c, err := s.clinicianCoords(ctx, providerID); err == nil {
			center = c
		}
	}

	minLat, maxLat, minLon, maxLon := boundingBox(center, radiusMiles)
	open, err := s.queryOpenCases(ctx, discipline, minLat, maxLat, minLon, maxLon)
	if err != nil {
		return nil, err
	}
	groups.Nearby = open
	return groups, nil
}

func (s *Store) queryOpenCases(ctx context.Context, discipline models.Discipline, minLat, maxLat, minLon, maxLon float64) ([]models.PatientCase, error) {
	rows, err := s.db.QueryContext(ctx, openCasesQuery, string(discipline), minLat, maxLat, minLon, maxLon)
	if err != nil {
		return nil, errors.NewCaseLookupFailedError(err)
	}
	defer rows.Close()

	var cases []models.PatientCase
	for rows.Next() {
		var (
			pc                          models.PatientCase
			conditions                  []string
			diagnosis, city, state      sql.NullString
			zip, prevID, prevName       sql.NullString
			admDate, disDate            sql.NullString
			nonAdmitDate, holdDate      sql.NullString
			lat, lon                    sql.NullFloat64
		)
		err := rows.Scan(
			&pc.CaseID, &pc.CaseNo, &pc.PatientID, &pc.PatientName,
			&pc.Status, pq.Array(&conditions), &diagnosis, &city, &state,
			&zip, &lat, &lon, &prevID, &prevName, &admDate, &disDate,
			&nonAdmitDate, &holdDate,
		)
		if err != nil {
			return nil, errors.NewCaseLookupFailedError(err)
		}
		if conditions == nil {
			conditions = []string{}
		}
		pc.Conditions = conditions
		pc.Diagnosis = diagnosis.String
		pc.City = city.String
		pc.State = state.String
		pc.ZipCode = zip.String
		pc.PrevProviderID = prevID.String
		pc.PrevProviderName = prevName.String
		pc.AdmissionDate = admDate.String
		pc.DischargeDate = disDate.String
		pc.NonAdmitDate = nonAdmitDate.String
		pc.HoldDate = holdDate.String
		pc.Coordinates = nullCoords(lat, lon)
		pc.Discipline = models.DisciplineFromCaseNo(pc.CaseNo)
		cases = append(cases, pc)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewCaseLookupFailedError(err)
	}
	return cases, nil
}

const clinicianCoordsQuery = `
	SELECT latitude, longitude, facility_latitude, facility_longitude
	FROM clinicians
	WHERE provider_id = $1`

func (s *Store) clinicianCoords(ctx context.Context, providerID string) (*models.Coordinates, error) {
	var lat, lon, facLat, facLon sql.NullFloat64
	err := s.db.QueryRowContext(ctx, clinicianCoordsQuery, providerID).Scan(&lat, &lon, &facLat, &facLon)
	if err != nil {
		return nil, err
	}
	if c := nullCoords(lat, lon); c != nil {
		return c, nil
	}
	return nullCoords(facLat, facLon), nil
}

// milesPerDegreeLat is close enough for a coarse pre-filter box.
const milesPerDegreeLat = 69.0

// boundingBox converts a radius around a center point into latitude and
// longitude ranges. With no usable center the box spans the globe.
func boundingBox(center *models.Coordinates, radiusMiles float64) (minLat, maxLat, minLon, maxLon float64) {
	if center == nil || radiusMiles <= 0 {
		return -90, 90, -180, 180
	}
	dLat := radiusMiles / milesPerDegreeLat
	cosLat := math.Cos(center.Latitude * math.Pi / 180)
	if cosLat < 0.01 {
		cosLat = 0.01
	}
	dLon := radiusMiles / (milesPerDegreeLat * cosLat)
	return center.Latitude - dLat, center.Latitude + dLat,
		center.Longitude - dLon, center.Longitude + dLon
}

func nullCoords(lat, lon sql.NullFloat64) *models.Coordinates {
	if !lat.Valid || !lon.Valid {
		return nil
	}
	return geo.NewCoordinates(lat.Float64, lon.Float64)
}
