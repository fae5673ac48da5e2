// internal/stages/build-case-features/handler.go
package buildcasefeatures

import (
	"context"

	"caserank/internal/common/errors"
	"caserank/internal/common/geo"
	"caserank/internal/common/logger"
	"caserank/internal/models"
)

const StageName = "build-case-features"

type Handler struct {
	config *Config
	logger logger.Logger
}

func NewHandler(config *Config, log logger.Logger) *Handler {
	return &Handler{
		config: config,
		logger: log.WithFields(map[string]interface{}{"stage": StageName}),
	}
}

// Execute filters open cases to the clinician's discipline and enriches
// each survivor with distance and continuity features.
func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	if input.Clinician == nil {
		return nil, errors.NewInvalidRequestError("clinician is required")
	}
	clin := input.Clinician

	if clin.Discipline == models.DisciplineOther {
		return nil, errors.NewUnsupportedDisciplineError(clin.DisciplineName)
	}

	clinCoords := clin.ResolvedCoordinates()
	hasActive := clin.HasActiveCases() || len(input.ActiveCases) > 0

	out := &Output{TotalOpenCases: len(input.OpenCases)}

	for _, pc := range input.OpenCases {
		if err := ctx.Err(); err != nil {
			return nil, errors.NewInternalError(err)
		}

		if pc.CaseID == "" {
			out.DroppedBlankID++
			continue
		}

		if pc.Discipline != clin.Discipline {
			if pc.Discipline != models.DisciplineOther || !h.config.IncludeOtherDiscipline {
				continue
			}
		}
		out.DisciplineMatched++

		cf := models.CaseFeatures{
			PatientCase:             pc,
			IsPreviousProviderMatch: pc.PrevProviderID != "" && pc.PrevProviderID == clin.ProviderID,
			HasAdmissionDate:        models.HasDate(pc.AdmissionDate),
			HasDischargeDate:        models.HasDate(pc.DischargeDate),
			HasNonAdmitDate:         models.HasDate(pc.NonAdmitDate),
			HasHoldDate:             models.HasDate(pc.HoldDate),
		}

		cf.DistanceToClinician = geo.Distance(clinCoords, pc.Coordinates)
		cf.DistanceToNearestActive, cf.NearestActiveCaseID = nearestActiveDistance(input.ActiveCases, pc.Coordinates)

		switch {
		case hasActive && cf.DistanceToNearestActive != nil:
			cf.PrimaryDistance = cf.DistanceToNearestActive
			cf.PrimaryDistanceBasis = models.DistanceBasisActiveCase
		case cf.DistanceToClinician != nil:
			cf.PrimaryDistance = cf.DistanceToClinician
			cf.PrimaryDistanceBasis = models.DistanceBasisClinician
		}

		out.Features = append(out.Features, cf)
	}

	h.logger.Info("case features built", map[string]interface{}{
		"providerId":        clin.ProviderID,
		"discipline":        string(clin.Discipline),
		"totalOpenCases":    out.TotalOpenCases,
		"disciplineMatched": out.DisciplineMatched,
		"droppedBlankId":    out.DroppedBlankID,
		"activeCases":       len(input.ActiveCases),
	})

	return out, nil
}

// nearestActiveDistance returns the smallest case-to-active-case distance
// and the active case it came from. Active cases without usable coordinates
// are skipped.
func nearestActiveDistance(active []models.ActiveCase, caseCoords *models.Coordinates) (*float64, string) {
	var best *float64
	var bestID string

	for _, ac := range active {
		d := geo.Distance(ac.Coordinates, caseCoords)
		if d == nil {
			continue
		}
		if best == nil || *d < *best {
			best = d
			bestID = ac.CaseID
		}
	}
	return best, bestID
}
