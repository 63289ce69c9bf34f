package history

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/yungbote/learnergraph-backend/internal/domain"
	"github.com/yungbote/learnergraph-backend/internal/normalization"
)

type LearningConfig struct {
	// InactiveGapMonths is the longest silence, in months, tolerated between
	// two consecutive dated intervals before an explicit Inactive interval is
	// synthesized to fill it.
	InactiveGapMonths int
	// Snapshot is "now" for the purpose of deciding whether an end date is in
	// the past.
	Snapshot time.Time
}

func DefaultLearningConfig() LearningConfig {
	return LearningConfig{
		InactiveGapMonths: 6,
		Snapshot:          time.Now().UTC(),
	}
}

// BuildLearningStates turns an unordered list of enrollment entries into a
// chronologically ordered, non-overlapping learning-state timeline.
//
// Entries without a parsable start date are emitted first, flagged
// DateUnknown, and contribute no ordering constraint. Dated entries are
// sorted by start date ascending; entries sharing a start date keep their
// input order (stable sort). Each dated entry opens an Active interval; a
// recognized terminal status closes it and appends the terminal interval. An
// open interval is closed by the next entry's start, and an interval whose
// recorded range runs past the next start is truncated there, so intervals
// never overlap. The last interval is the learner's current state.
func BuildLearningStates(entries []domain.EducationEntry, cfg LearningConfig) []domain.StateInterval {
	if len(entries) == 0 {
		return nil
	}
	if cfg.Snapshot.IsZero() {
		cfg.Snapshot = time.Now().UTC()
	}

	type datedEntry struct {
		entry domain.EducationEntry
		start time.Time
	}
	var dated []datedEntry
	var out []domain.StateInterval

	for _, e := range entries {
		start, ok := normalization.ParseDate(e.RawStart)
		if !ok {
			out = append(out, datelessLearningInterval(e))
			continue
		}
		dated = append(dated, datedEntry{entry: e, start: start})
	}

	sort.SliceStable(dated, func(i, j int) bool {
		return dated[i].start.Before(dated[j].start)
	})

	for _, d := range dated {
		e := d.entry

		out = truncateAt(out, d.start)
		if prevEnd, ok := lastClosedEnd(out); ok && gapExceeded(prevEnd, d.start, cfg.InactiveGapMonths) {
			out = append(out, domain.StateInterval{
				Value:     domain.LearningInactive,
				StartDate: normalization.FormatDate(prevEnd),
				EndDate:   normalization.FormatDate(d.start),
				Note:      "no enrollment activity",
			})
		}

		endState := learningEndState(e.Status)
		endDate, ended := learningEndDate(e, endState, cfg.Snapshot)

		active := domain.StateInterval{
			Value:     domain.LearningActive,
			StartDate: normalization.FormatDate(d.start),
			RawStart:  e.RawStart,
			Note:      learningNote(e),
		}
		if ended {
			active.EndDate = normalization.FormatDate(endDate)
		}
		out = append(out, active)

		if ended && endState != domain.LearningActive {
			out = append(out, domain.StateInterval{
				Value:     endState,
				StartDate: normalization.FormatDate(endDate),
				Note:      learningNote(e),
			})
		}
	}

	return markCurrent(out)
}

// datelessLearningInterval renders an entry with no parsable start date as a
// single interval at the head of the timeline.
func datelessLearningInterval(e domain.EducationEntry) domain.StateInterval {
	endState := learningEndState(e.Status)
	iv := domain.StateInterval{
		Value:       endState,
		RawStart:    e.RawStart,
		DateUnknown: true,
		Note:        learningNote(e),
	}
	if endState == domain.LearningGraduate {
		if g, ok := normalization.ParseDate(e.RawGraduation); ok {
			iv.EndDate = normalization.FormatDate(g)
			return iv
		}
	}
	if end, ok := normalization.ParseDate(e.RawEnd); ok {
		iv.EndDate = normalization.FormatDate(end)
	}
	return iv
}

// learningEndState classifies a free-text status label. Unrecognized labels
// mean the enrollment is simply active.
func learningEndState(status string) string {
	s := normalization.ParseInputString(status)
	switch {
	case strings.Contains(s, "graduate"), strings.Contains(s, "completed"):
		return domain.LearningGraduate
	case strings.Contains(s, "drop"), strings.Contains(s, "withdraw"):
		return domain.LearningDroppedOut
	default:
		return domain.LearningActive
	}
}

// learningEndDate resolves the date an enrollment ended, if it did. Priority:
// graduation date for graduates, then the entry's end date; an otherwise-open
// Active interval is only closed by an end date already in the past.
func learningEndDate(e domain.EducationEntry, endState string, snapshot time.Time) (time.Time, bool) {
	if endState == domain.LearningGraduate {
		if g, ok := normalization.ParseDate(e.RawGraduation); ok {
			return g, true
		}
		if end, ok := normalization.ParseDate(e.RawEnd); ok {
			return end, true
		}
		return time.Time{}, false
	}
	if endState == domain.LearningDroppedOut {
		if end, ok := normalization.ParseDate(e.RawEnd); ok {
			return end, true
		}
		return time.Time{}, false
	}
	if end, ok := normalization.ParseDate(e.RawEnd); ok && end.Before(snapshot) {
		return end, true
	}
	return time.Time{}, false
}

func learningNote(e domain.EducationEntry) string {
	program := strings.TrimSpace(e.Program)
	status := strings.TrimSpace(e.Status)
	switch {
	case program != "" && status != "":
		return fmt.Sprintf("%s (%s)", program, status)
	case program != "":
		return program
	default:
		return status
	}
}
