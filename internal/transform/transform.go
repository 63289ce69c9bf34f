// Package transform maps one raw source row into the per-row entity bundle
// the load pipeline works with. Expected row-level failures are returned as
// *RowError values; the orchestrator counts and skips them without stopping
// the run.
package transform

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"

	"github.com/yungbote/learnergraph-backend/internal/domain"
	"github.com/yungbote/learnergraph-backend/internal/history"
	"github.com/yungbote/learnergraph-backend/internal/normalization"
	"github.com/yungbote/learnergraph-backend/internal/platform/logger"
	"github.com/yungbote/learnergraph-backend/internal/source"
)

// Canonical column names. Sources with different headers are expected to be
// renamed upstream; the readers lowercase headers, nothing more.
const (
	ColFullName          = "full_name"
	ColEmail             = "email"
	ColGender            = "gender"
	ColCountry           = "country"
	ColCountryRegion     = "country_region"
	ColCountryLat        = "country_lat"
	ColCountryLng        = "country_lng"
	ColCity              = "city"
	ColCityLat           = "city_lat"
	ColCityLng           = "city_lng"
	ColSkills            = "skills"
	ColEducationHistory  = "education_history"
	ColEmploymentHistory = "employment_history"
	ColIsEmployed        = "is_employed"
	ColIsStudying        = "is_studying"
)

// RowError marks a malformed or inconsistent source row. Recoverable: the
// row is skipped and counted as invalid.
type RowError struct {
	Row    int64
	Field  string
	Reason string
}

func (e *RowError) Error() string {
	return fmt.Sprintf("transform: row %d: %s: %s", e.Row, e.Field, e.Reason)
}

type Transformer struct {
	log             *logger.Logger
	learningCfg     history.LearningConfig
	professionalCfg history.ProfessionalConfig
}

func NewTransformer(log *logger.Logger, learningCfg history.LearningConfig, professionalCfg history.ProfessionalConfig) *Transformer {
	return &Transformer{
		log:             log.With("component", "Transformer"),
		learningCfg:     learningCfg,
		professionalCfg: professionalCfg,
	}
}

// Transform maps one row into its entity bundle.
func (t *Transformer) Transform(row source.Row) (*domain.RecordBundle, error) {
	fullName := row.Get(ColFullName)
	email := row.Get(ColEmail)
	if normalization.IsBlank(fullName) && normalization.IsBlank(email) {
		return nil, &RowError{Row: row.Index, Field: "identity", Reason: "neither full_name nor email present"}
	}

	learner := domain.Learner{
		Key:         LearnerKey(email, fullName),
		FullName:    strings.TrimSpace(fullName),
		Email:       normalization.ParseInputString(email),
		Gender:      normalization.ParseInputString(row.Get(ColGender)),
		EmployedNow: normalization.ParseBool(row.Get(ColIsEmployed)),
		StudyingNow: normalization.ParseBool(row.Get(ColIsStudying)),
		RowIndex:    row.Index,
	}

	bundle := &domain.RecordBundle{}

	if code, ok := NormalizeCountry(row.Get(ColCountry)); ok {
		learner.CountryCode = code
		bundle.Countries = append(bundle.Countries, domain.Country{
			Code:   code,
			Name:   strings.TrimSpace(row.Get(ColCountry)),
			Region: strings.TrimSpace(row.Get(ColCountryRegion)),
			Lat:    parseFloat(row.Get(ColCountryLat)),
			Lng:    parseFloat(row.Get(ColCountryLng)),
		})

		if cityID := CityID(row.Get(ColCity), code); cityID != "" {
			learner.CityID = cityID
			bundle.Cities = append(bundle.Cities, domain.City{
				ID:          cityID,
				Name:        strings.TrimSpace(row.Get(ColCity)),
				CountryCode: code,
				Lat:         parseFloat(row.Get(ColCityLat)),
				Lng:         parseFloat(row.Get(ColCityLng)),
			})
		}
	}

	for _, skill := range TokenizeSkills(row.Get(ColSkills)) {
		bundle.Skills = append(bundle.Skills, skill)
		bundle.SkillLinks = append(bundle.SkillLinks, domain.SkillLink{
			LearnerKey: learner.Key,
			SkillID:    skill.ID,
			Source:     "profile",
		})
	}

	eduEntries, err := ParseEducationEntries(row.Get(ColEducationHistory))
	if err != nil {
		return nil, &RowError{Row: row.Index, Field: ColEducationHistory, Reason: err.Error()}
	}
	for _, e := range eduEntries {
		if e.ProgramID == "" {
			continue
		}
		bundle.Programs = append(bundle.Programs, domain.Program{ID: e.ProgramID, Name: e.Program})
		bundle.Enrollments = append(bundle.Enrollments, domain.Enrollment{
			LearnerKey: learner.Key,
			ProgramID:  e.ProgramID,
			StartDate:  normalizeOrRaw(e.RawStart),
			EndDate:    normalizeOrRaw(e.RawEnd),
			Status:     strings.TrimSpace(e.Status),
		})
	}

	empEntries, err := ParseEmploymentEntries(row.Get(ColEmploymentHistory))
	if err != nil {
		return nil, &RowError{Row: row.Index, Field: ColEmploymentHistory, Reason: err.Error()}
	}
	for _, e := range empEntries {
		if e.CompanyID == "" {
			continue
		}
		bundle.Companies = append(bundle.Companies, domain.Company{ID: e.CompanyID, Name: e.Organization})
		bundle.Employments = append(bundle.Employments, domain.Employment{
			LearnerKey: learner.Key,
			CompanyID:  e.CompanyID,
			Title:      strings.TrimSpace(e.Title),
			StartDate:  normalizeOrRaw(e.RawStart),
			EndDate:    normalizeOrRaw(e.RawEnd),
			IsCurrent:  e.IsCurrent,
		})
	}

	bundle.Learner = learner

	bundle.LearningHistory = history.BuildLearningStates(eduEntries, t.learningCfg)
	if len(bundle.LearningHistory) == 0 {
		bundle.LearningHistory = fallbackLearningSnapshot(learner.StudyingNow)
	}
	bundle.ProfessionalHistory = history.BuildProfessionalStatuses(empEntries, t.professionalCfg)
	if len(bundle.ProfessionalHistory) == 0 {
		bundle.ProfessionalHistory = fallbackProfessionalSnapshot(learner.EmployedNow)
	}

	return bundle, nil
}

// LearnerKey derives the stable hashed identifier for a learner from its
// identity columns. Distinct rows with identical identity columns collide;
// the pipeline surfaces that as a data-quality count instead of merging.
func LearnerKey(email, fullName string) string {
	h := sha256.New()
	_, _ = h.Write([]byte(normalization.ParseInputString(email)))
	_, _ = h.Write([]byte("|"))
	_, _ = h.Write([]byte(normalization.ParseInputString(fullName)))
	return hex.EncodeToString(h.Sum(nil))[:32]
}

// fallbackLearningSnapshot is the single current-state interval used when no
// history could be built from the row's entries.
func fallbackLearningSnapshot(studying bool) []domain.StateInterval {
	value := domain.LearningInactive
	if studying {
		value = domain.LearningActive
	}
	return []domain.StateInterval{{
		Value:       value,
		DateUnknown: true,
		IsCurrent:   true,
		Note:        "derived from profile flags",
	}}
}

func fallbackProfessionalSnapshot(employed bool) []domain.StateInterval {
	value := domain.StatusUnemployed
	if employed {
		value = domain.StatusWageEmployed
	}
	return []domain.StateInterval{{
		Value:       value,
		DateUnknown: true,
		IsCurrent:   true,
		Note:        "derived from profile flags",
	}}
}

func normalizeOrRaw(raw string) string {
	if t, ok := normalization.ParseDate(raw); ok {
		return normalization.FormatDate(t)
	}
	return strings.TrimSpace(raw)
}

func parseFloat(raw string) float64 {
	if normalization.IsBlank(raw) {
		return 0
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return 0
	}
	return f
}
