// Package history rebuilds coherent, time-ordered state timelines from the
// fragmented and unordered entry lists found in learner records. Both
// builders are pure: same entries and config in, same timeline out.
package history

import (
	"time"

	"github.com/yungbote/learnergraph-backend/internal/domain"
	"github.com/yungbote/learnergraph-backend/internal/normalization"
)

// gapExceeded reports whether the silence between a closed interval's end and
// the next start is longer than the threshold. The threshold is months*30
// days; a gap of exactly that many days does not count as exceeded.
func gapExceeded(prevEnd, nextStart time.Time, months int) bool {
	if months <= 0 {
		return false
	}
	if !nextStart.After(prevEnd) {
		return false
	}
	threshold := time.Duration(months) * 30 * 24 * time.Hour
	return nextStart.Sub(prevEnd) > threshold
}

// truncateAt makes room for an interval starting at the given date. An open
// interval is closed there; a closed interval reaching past it is cut back to
// it, never below its own start (intervals are half-open, so an equal-start
// clamp leaves a zero-length interval); an interval starting after the date
// is dropped outright. Dateless intervals carry no ordering constraint and
// stop the walk. The builders append intervals in ascending start order, so
// only a suffix of the timeline can ever reach past the new start.
func truncateAt(out []domain.StateInterval, at time.Time) []domain.StateInterval {
	for len(out) > 0 {
		last := &out[len(out)-1]
		if last.DateUnknown {
			return out
		}
		start, ok := normalization.ParseDate(last.StartDate)
		if !ok {
			return out
		}
		if start.After(at) {
			out = out[:len(out)-1]
			continue
		}
		if last.EndDate == "" {
			last.EndDate = normalization.FormatDate(at)
			return out
		}
		if end, ok := normalization.ParseDate(last.EndDate); ok && end.After(at) {
			last.EndDate = normalization.FormatDate(at)
		}
		return out
	}
	return out
}

// lastClosedEnd returns the end date of the last interval when it is closed
// and dated. Gap intervals are only inserted after such intervals; an open
// interval is closed at the next start instead.
func lastClosedEnd(out []domain.StateInterval) (time.Time, bool) {
	if len(out) == 0 {
		return time.Time{}, false
	}
	last := out[len(out)-1]
	if last.DateUnknown || last.EndDate == "" {
		return time.Time{}, false
	}
	return normalization.ParseDate(last.EndDate)
}

func markCurrent(out []domain.StateInterval) []domain.StateInterval {
	if len(out) == 0 {
		return out
	}
	out[len(out)-1].IsCurrent = true
	return out
}
