package graphload

import (
	"context"

	"github.com/yungbote/learnergraph-backend/internal/domain"
	"github.com/yungbote/learnergraph-backend/internal/platform/logger"
)

// Runner runs one auto-commit statement; satisfied by the neo4jdb client.
type Runner interface {
	Run(ctx context.Context, cypher string, params map[string]any) error
}

// EnsureSchema creates the uniqueness constraints and indexes backing the
// merge keys. Best-effort: restricted users may not be allowed to, and the
// load works without them, just slower.
func EnsureSchema(ctx context.Context, runner Runner, log *logger.Logger) {
	for _, stmt := range schemaStatements {
		if err := runner.Run(ctx, stmt, nil); err != nil && log != nil {
			log.Warn("schema init failed (continuing)", "error", err)
		}
	}
}

func countryRow(c domain.Country) map[string]any {
	return map[string]any{
		"code":   c.Code,
		"name":   c.Name,
		"region": c.Region,
		"lat":    c.Lat,
		"lng":    c.Lng,
	}
}

func cityRow(c domain.City) map[string]any {
	return map[string]any{
		"id":           c.ID,
		"name":         c.Name,
		"country_code": c.CountryCode,
		"lat":          c.Lat,
		"lng":          c.Lng,
	}
}

func skillRow(s domain.Skill) map[string]any {
	return map[string]any{
		"id":       s.ID,
		"name":     s.Name,
		"category": s.Category,
	}
}

func programRow(p domain.Program) map[string]any {
	return map[string]any{
		"id":       p.ID,
		"name":     p.Name,
		"provider": p.Provider,
	}
}

func companyRow(c domain.Company) map[string]any {
	return map[string]any{
		"id":       c.ID,
		"name":     c.Name,
		"industry": c.Industry,
	}
}

func learnerRow(l domain.Learner) map[string]any {
	return map[string]any{
		"key":          l.Key,
		"full_name":    l.FullName,
		"email":        l.Email,
		"gender":       l.Gender,
		"country_code": l.CountryCode,
		"city_id":      l.CityID,
		"employed_now": l.EmployedNow,
		"studying_now": l.StudyingNow,
		"row_index":    l.RowIndex,
	}
}

// stateRow renders a temporal-state interval as node properties. valueProp
// is "state" for learning states and "status" for professional statuses.
func stateRow(iv domain.StateInterval, valueProp string) map[string]any {
	row := map[string]any{
		valueProp:      iv.Value,
		"start_date":   iv.StartDate,
		"date_unknown": iv.DateUnknown,
	}
	if iv.EndDate != "" {
		row["end_date"] = iv.EndDate
	}
	if iv.Note != "" {
		row["note"] = iv.Note
	}
	return row
}

func skillLinkRecord(l domain.SkillLink) RelRecord {
	return RelRecord{
		FromKey: l.LearnerKey,
		ToKey:   l.SkillID,
		Props:   map[string]any{"source": l.Source},
	}
}

func enrollmentRecord(e domain.Enrollment) RelRecord {
	return RelRecord{
		FromKey: e.LearnerKey,
		ToKey:   e.ProgramID,
		Props: map[string]any{
			"start_date": e.StartDate,
			"end_date":   e.EndDate,
			"status":     e.Status,
		},
	}
}

func employmentRecord(e domain.Employment) RelRecord {
	return RelRecord{
		FromKey: e.LearnerKey,
		ToKey:   e.CompanyID,
		Props: map[string]any{
			"title":      e.Title,
			"start_date": e.StartDate,
			"end_date":   e.EndDate,
			"is_current": e.IsCurrent,
		},
	}
}

// stateRelRecord targets the shared temporal-state node for the interval.
// Dateless intervals carry their raw start value; they match no node and the
// edge is silently not created, which mirrors the merge-key exclusion.
func stateRelRecord(assoc StateAssociation) StateRelRecord {
	start := assoc.Interval.StartDate
	if assoc.Interval.DateUnknown {
		start = assoc.Interval.RawStart
	}
	return StateRelRecord{
		FromKey: assoc.LearnerKey,
		ToValue: assoc.Interval.Value,
		ToStart: start,
		Props: map[string]any{
			"end_date":   assoc.Interval.EndDate,
			"is_current": assoc.Interval.IsCurrent,
		},
	}
}

// stateMergeKey is the composite key for the shared temporal-state maps.
func stateMergeKey(iv domain.StateInterval) string {
	return iv.Value + "|" + iv.StartDate
}
