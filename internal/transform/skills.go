package transform

import (
	"strings"

	"github.com/yungbote/learnergraph-backend/internal/domain"
	"github.com/yungbote/learnergraph-backend/internal/normalization"
)

var skillSeparators = []string{",", ";", "|", "/"}

// TokenizeSkills splits a free-text skills cell into distinct skills. Tokens
// are keyed by slug; repeats within one row collapse to the first occurrence.
func TokenizeSkills(raw string) []domain.Skill {
	if normalization.IsBlank(raw) {
		return nil
	}
	tokens := []string{raw}
	for _, sep := range skillSeparators {
		var next []string
		for _, t := range tokens {
			next = append(next, strings.Split(t, sep)...)
		}
		tokens = next
	}

	seen := map[string]bool{}
	var out []domain.Skill
	for _, t := range tokens {
		name := strings.TrimSpace(t)
		if name == "" || normalization.IsBlank(name) {
			continue
		}
		id := normalization.Slug(name)
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, domain.Skill{ID: id, Name: name})
	}
	return out
}
