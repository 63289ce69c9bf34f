package history

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/yungbote/learnergraph-backend/internal/domain"
	"github.com/yungbote/learnergraph-backend/internal/normalization"
)

type ProfessionalConfig struct {
	// UnemployedGapMonths is the longest silence, in months, tolerated
	// between two consecutive jobs before an Unemployed interval fills it.
	UnemployedGapMonths int
	// SynthesizeInitialUnemployed prepends an Unemployed interval starting
	// InitialUnemployedYears before the first dated job.
	SynthesizeInitialUnemployed bool
	InitialUnemployedYears      int
	// Snapshot is "now": jobs without a terminal date, or with an open-ended
	// sentinel date, are treated as ongoing as of this date.
	Snapshot time.Time

	// Keyword tables for job classification, lowercased substrings matched
	// against title and organization.
	EntrepreneurKeywords []string
	FreelancerKeywords   []string
}

func DefaultProfessionalConfig() ProfessionalConfig {
	return ProfessionalConfig{
		UnemployedGapMonths:         1,
		SynthesizeInitialUnemployed: true,
		InitialUnemployedYears:      1,
		Snapshot:                    time.Now().UTC(),
		EntrepreneurKeywords:        []string{"founder", "co-founder", "cofounder", "entrepreneur", "owner", "venture", "startup"},
		FreelancerKeywords:          []string{"freelance", "freelancer", "consultant", "contractor", "self-employed", "self employed"},
	}
}

// BuildProfessionalStatuses turns an unordered list of employment entries
// into a chronologically ordered, non-overlapping professional-status
// timeline. Mirrors BuildLearningStates: dateless entries first, dated
// entries sorted ascending with stable input-order tie-break, gaps longer
// than the threshold filled with Unemployed intervals. Overlapping jobs are
// truncated at the next job's start so intervals never overlap. The final
// interval reflects current evidence: two or more concurrently ongoing jobs
// resolve to Multiple, one to its own classification, none to Unemployed; a
// trailing interval starts at the latest recorded end across all jobs.
func BuildProfessionalStatuses(entries []domain.EmploymentEntry, cfg ProfessionalConfig) []domain.StateInterval {
	if len(entries) == 0 {
		return nil
	}
	if cfg.Snapshot.IsZero() {
		cfg.Snapshot = time.Now().UTC()
	}

	type datedEntry struct {
		entry domain.EmploymentEntry
		start time.Time
	}
	var dated []datedEntry
	var out []domain.StateInterval

	for _, e := range entries {
		start, ok := normalization.ParseDate(e.RawStart)
		if !ok {
			out = append(out, datelessEmploymentInterval(e, cfg))
			continue
		}
		dated = append(dated, datedEntry{entry: e, start: start})
	}

	sort.SliceStable(dated, func(i, j int) bool {
		return dated[i].start.Before(dated[j].start)
	})

	if len(dated) > 0 && cfg.SynthesizeInitialUnemployed && cfg.InitialUnemployedYears > 0 {
		first := dated[0].start
		out = append(out, domain.StateInterval{
			Value:     domain.StatusUnemployed,
			StartDate: normalization.FormatDate(first.AddDate(-cfg.InitialUnemployedYears, 0, 0)),
			EndDate:   normalization.FormatDate(first),
			Note:      "before first known job",
		})
	}

	// maxEnd is the latest recorded end across all dated jobs. Overlapping
	// jobs get truncated in the timeline, so the last interval's end can
	// undershoot the date the learner actually stopped working.
	var maxEnd time.Time
	for _, d := range dated {
		e := d.entry

		out = truncateAt(out, d.start)
		if prevEnd, ok := lastClosedEnd(out); ok && gapExceeded(prevEnd, d.start, cfg.UnemployedGapMonths) {
			out = append(out, domain.StateInterval{
				Value:     domain.StatusUnemployed,
				StartDate: normalization.FormatDate(prevEnd),
				EndDate:   normalization.FormatDate(d.start),
				Note:      "between jobs",
			})
		}

		iv := domain.StateInterval{
			Value:     ClassifyJob(e.Title, e.Organization, cfg),
			StartDate: normalization.FormatDate(d.start),
			RawStart:  e.RawStart,
			Note:      employmentNote(e),
		}
		if end, ok := employmentEndDate(e); ok {
			iv.EndDate = normalization.FormatDate(end)
			if end.After(maxEnd) {
				maxEnd = end
			}
		}
		out = append(out, iv)
	}

	count, sole := currentEvidence(entries, cfg)

	if len(out) > 0 {
		last := &out[len(out)-1]
		switch {
		case last.EndDate == "" && !last.DateUnknown:
			// An ongoing job closes the timeline; several concurrent ones
			// collapse into Multiple.
			if count >= 2 {
				last.Value = domain.StatusMultiple
				last.Note = "multiple concurrent jobs"
			}
		case last.EndDate != "" && !last.DateUnknown:
			start := last.EndDate
			if !maxEnd.IsZero() {
				start = normalization.FormatDate(maxEnd)
			}
			final := domain.StateInterval{
				StartDate: start,
				Note:      "after last known job",
			}
			switch {
			case count >= 2:
				final.Value = domain.StatusMultiple
				final.Note = "multiple concurrent jobs"
			case count == 1:
				final.Value = sole
			default:
				final.Value = domain.StatusUnemployed
			}
			out = append(out, final)
		}
	}

	return markCurrent(out)
}

// ClassifyJob buckets a job by keyword match on its title and organization.
func ClassifyJob(title, organization string, cfg ProfessionalConfig) string {
	haystack := normalization.ParseInputString(title + " " + organization)
	for _, kw := range cfg.EntrepreneurKeywords {
		if kw != "" && strings.Contains(haystack, kw) {
			return domain.StatusEntrepreneur
		}
	}
	for _, kw := range cfg.FreelancerKeywords {
		if kw != "" && strings.Contains(haystack, kw) {
			return domain.StatusFreelancer
		}
	}
	return domain.StatusWageEmployed
}

// employmentOngoing reports whether a job is still held as of the snapshot:
// flagged current, missing a terminal date, or bearing an open-ended sentinel.
func employmentOngoing(e domain.EmploymentEntry) bool {
	if e.IsCurrent {
		return true
	}
	if normalization.IsOpenEndedDate(e.RawEnd) {
		return true
	}
	_, ok := normalization.ParseDate(e.RawEnd)
	return !ok
}

func employmentEndDate(e domain.EmploymentEntry) (time.Time, bool) {
	if normalization.IsOpenEndedDate(e.RawEnd) {
		return time.Time{}, false
	}
	return normalization.ParseDate(e.RawEnd)
}

// currentEvidence counts concurrently ongoing jobs and, when exactly one,
// returns its classification.
func currentEvidence(entries []domain.EmploymentEntry, cfg ProfessionalConfig) (int, string) {
	count := 0
	sole := ""
	for _, e := range entries {
		if employmentOngoing(e) {
			count++
			sole = ClassifyJob(e.Title, e.Organization, cfg)
		}
	}
	if count != 1 {
		sole = ""
	}
	return count, sole
}

func datelessEmploymentInterval(e domain.EmploymentEntry, cfg ProfessionalConfig) domain.StateInterval {
	iv := domain.StateInterval{
		Value:       ClassifyJob(e.Title, e.Organization, cfg),
		RawStart:    e.RawStart,
		DateUnknown: true,
		Note:        employmentNote(e),
	}
	if end, ok := employmentEndDate(e); ok {
		iv.EndDate = normalization.FormatDate(end)
	}
	return iv
}

func employmentNote(e domain.EmploymentEntry) string {
	title := strings.TrimSpace(e.Title)
	org := strings.TrimSpace(e.Organization)
	switch {
	case title != "" && org != "":
		return fmt.Sprintf("%s at %s", title, org)
	case org != "":
		return org
	default:
		return title
	}
}
