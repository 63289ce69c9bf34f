package transform

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/yungbote/learnergraph-backend/internal/domain"
	"github.com/yungbote/learnergraph-backend/internal/normalization"
)

// Source exports store education and employment history as JSON cells with
// inconsistent key names and shapes: sometimes a list, sometimes a single
// object, sometimes a null sentinel. The parsers below accept all of them and
// keep date fields raw; interpreting dates is the history builders' job.

func ParseEducationEntries(raw string) ([]domain.EducationEntry, error) {
	objects, err := parseEntryObjects(raw)
	if err != nil {
		return nil, fmt.Errorf("education entries: %w", err)
	}
	var out []domain.EducationEntry
	for _, m := range objects {
		e := domain.EducationEntry{
			Program:       firstString(m, "program", "degree", "school", "name", "course"),
			RawStart:      firstString(m, "start_date", "start", "from", "enrolled_at"),
			RawEnd:        firstString(m, "end_date", "end", "to"),
			RawGraduation: firstString(m, "graduation_date", "graduated_at", "graduation"),
			Status:        firstString(m, "status", "state"),
		}
		e.ProgramID = normalization.Slug(e.Program)
		if e == (domain.EducationEntry{}) {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

func ParseEmploymentEntries(raw string) ([]domain.EmploymentEntry, error) {
	objects, err := parseEntryObjects(raw)
	if err != nil {
		return nil, fmt.Errorf("employment entries: %w", err)
	}
	var out []domain.EmploymentEntry
	for _, m := range objects {
		e := domain.EmploymentEntry{
			Organization: firstString(m, "organization", "company", "employer", "org"),
			Title:        firstString(m, "title", "position", "role", "job_title"),
			RawStart:     firstString(m, "start_date", "start", "from"),
			RawEnd:       firstString(m, "end_date", "end", "to"),
			IsCurrent:    firstBool(m, "is_current", "current"),
		}
		e.CompanyID = normalization.Slug(e.Organization)
		if e == (domain.EmploymentEntry{}) {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

// parseEntryObjects accepts a JSON list of objects or a single bare object.
func parseEntryObjects(raw string) ([]map[string]any, error) {
	if normalization.IsBlank(raw) {
		return nil, nil
	}
	trimmed := strings.TrimSpace(raw)

	var list []map[string]any
	if err := json.Unmarshal([]byte(trimmed), &list); err == nil {
		return list, nil
	}
	var single map[string]any
	if err := json.Unmarshal([]byte(trimmed), &single); err == nil {
		return []map[string]any{single}, nil
	}
	return nil, fmt.Errorf("malformed json")
}

func firstString(m map[string]any, keys ...string) string {
	for _, k := range keys {
		v, ok := m[k]
		if !ok || v == nil {
			continue
		}
		switch t := v.(type) {
		case string:
			if s := strings.TrimSpace(t); s != "" && !normalization.IsBlank(s) {
				return s
			}
		case float64:
			// Bare years arrive as numbers.
			return strconv.FormatFloat(t, 'f', -1, 64)
		case bool:
			return strconv.FormatBool(t)
		}
	}
	return ""
}

func firstBool(m map[string]any, keys ...string) bool {
	for _, k := range keys {
		v, ok := m[k]
		if !ok || v == nil {
			continue
		}
		switch t := v.(type) {
		case bool:
			return t
		case string:
			return normalization.ParseBool(t)
		case float64:
			return t != 0
		}
	}
	return false
}
