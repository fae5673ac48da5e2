// internal/clients/fox/client.go
package fox

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"caserank/internal/common/geo"
	"caserank/internal/common/logger"
	"caserank/internal/models"

	stderrors "caserank/internal/common/errors"
	commonhttp "caserank/internal/common/http"
)

// Client talks to the case-management service.
type Client struct {
	baseURL    string
	apiKey     string
	timeout    time.Duration
	httpClient *commonhttp.Client
	logger     logger.Logger
}

func NewClient(baseURL, apiKey string, timeout time.Duration, log logger.Logger) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		timeout:    timeout,
		httpClient: commonhttp.NewClient(timeout),
		logger:     log,
	}
}

// CaseGroups is the flattened result of the case-group lookup: the
// clinician's active cases as proximity reference points and the nearby
// open cases as recommendation candidates.
type CaseGroups struct {
	Active []models.ActiveCase
	Nearby []models.PatientCase
}

// GetClinician resolves a clinician profile by provider ID. The endpoint
// returns either a single object or an array; an empty array means the
// provider does not exist.
func (c *Client) GetClinician(ctx context.Context, providerID string) (*models.Clinician, error) {
	raw, err := c.getRaw(ctx, fmt.Sprintf("/api/v1/providers/%s", url.PathEscape(providerID)), nil)
	if err != nil {
		var httpErr *httpStatusError
		if errors.As(err, &httpErr) && httpErr.status == http.StatusNotFound {
			return nil, stderrors.NewClinicianNotFoundError(providerID)
		}
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, stderrors.NewClinicianLookupTimeoutError()
		}
		return nil, stderrors.NewClinicianLookupFailedError(err)
	}

	dto, err := decodeClinician(raw)
	if err != nil {
		return nil, stderrors.NewClinicianLookupFailedError(err)
	}
	if dto == nil {
		return nil, stderrors.NewClinicianNotFoundError(providerID)
	}

	name := strings.TrimSpace(dto.FirstName + " " + dto.LastName)
	clin := &models.Clinician{
		ProviderID:      dto.ProviderID,
		Name:            name,
		FirstName:       dto.FirstName,
		LastName:        dto.LastName,
		Discipline:      models.NormalizeDiscipline(coalesce(dto.Discipline, dto.DisciplineName)),
		DisciplineName:  coalesce(dto.DisciplineName, dto.Discipline),
		Specialties:     dto.Specialties,
		Subspecialty:    dto.Subspecialty,
		Coordinates:     geo.NewCoordinates(float64(dto.Latitude), float64(dto.Longitude)),
		FacilityCoords:  geo.NewCoordinates(float64(dto.FacilityLat), float64(dto.FacilityLon)),
		Address:         dto.Address,
		City:            dto.City,
		State:           dto.State,
		ActiveCaseCount: dto.ActiveCaseCount,
	}
	if clin.ProviderID == "" {
		clin.ProviderID = providerID
	}
	return clin, nil
}

// decodeClinician handles both object and array payload shapes.
func decodeClinician(raw []byte) (*clinicianDTO, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return nil, nil
	}

	if trimmed[0] == '[' {
		var list []clinicianDTO
		if err := json.Unmarshal(trimmed, &list); err != nil {
			return nil, fmt.Errorf("decode provider list: %w", err)
		}
		if len(list) == 0 {
			return nil, nil
		}
		return &list[0], nil
	}

	var dto clinicianDTO
	if err := json.Unmarshal(trimmed, &dto); err != nil {
		return nil, fmt.Errorf("decode provider: %w", err)
	}
	return &dto, nil
}

// GetCaseGroups fetches the clinician's active cases and the open cases near
// them, bounded by discipline and radius. Missing or empty groups are
// tolerated and simply contribute nothing.
func (c *Client) GetCaseGroups(ctx context.Context, providerID string, discipline models.Discipline, radiusMiles float64) (*CaseGroups, error) {
	query := url.Values{
		"discipline": {string(discipline)},
		"radius":     {strconv.FormatFloat(radiusMiles, 'f', -1, 64)},
	}
	path := fmt.Sprintf("/api/v1/providers/%s/case-groups", url.PathEscape(providerID))

	raw, err := c.getRaw(ctx, path, query)
	if err != nil {
		return nil, stderrors.NewCaseLookupFailedError(err)
	}

	var resp caseGroupsResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, stderrors.NewCaseLookupFailedError(fmt.Errorf("decode case groups: %w", err))
	}

	out := &CaseGroups{}
	seenActive := make(map[string]bool)
	for _, group := range resp.Groups {
		if ac := group.ActiveCase; ac != nil && ac.CaseID != "" && !seenActive[ac.CaseID] {
			seenActive[ac.CaseID] = true
			out.Active = append(out.Active, models.ActiveCase{
				CaseID:      ac.CaseID,
				CaseNo:      ac.CaseNo,
				PatientName: ac.PatientName,
				Coordinates: geo.NewCoordinates(float64(ac.Latitude), float64(ac.Longitude)),
			})
		}

		for _, dto := range group.NearbyCases {
			if dto.CaseID == "" {
				continue
			}
			conditions := dto.Conditions
			if conditions == nil {
				conditions = []string{}
			}
			out.Nearby = append(out.Nearby, models.PatientCase{
				CaseID:           dto.CaseID,
				CaseNo:           dto.CaseNo,
				PatientID:        dto.PatientID,
				PatientName:      dto.PatientName,
				Status:           dto.Status,
				Discipline:       models.DisciplineFromCaseNo(dto.CaseNo),
				Conditions:       conditions,
				Diagnosis:        dto.Diagnosis,
				Address:          dto.Address,
				City:             dto.City,
				State:            dto.State,
				ZipCode:          dto.ZipCode,
				Coordinates:      geo.NewCoordinates(float64(dto.Latitude), float64(dto.Longitude)),
				PrevProviderID:   dto.PrevProviderID,
				PrevProviderName: dto.PrevProviderName,
				AdmissionDate:    dto.AdmissionDate,
				DischargeDate:    dto.DischargeDate,
				NonAdmitDate:     dto.NonAdmitDate,
				HoldDate:         dto.HoldDate,
			})
		}
	}
	return out, nil
}

type httpStatusError struct {
	status int
	body   string
}

func (e *httpStatusError) Error() string {
	return fmt.Sprintf("unexpected status %d: %s", e.status, e.body)
}

func (c *Client) getRaw(ctx context.Context, path string, query url.Values) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	c.logger.Debug("Upstream call completed", map[string]interface{}{
		"path":       path,
		"status":     resp.StatusCode,
		"durationMs": time.Since(start).Milliseconds(),
	})

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, &httpStatusError{status: resp.StatusCode, body: string(body)}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	return body, nil
}

func coalesce(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
