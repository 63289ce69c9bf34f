package graphload

import (
	"github.com/yungbote/learnergraph-backend/internal/domain"
)

// keyedSet keeps the first value seen per key, in insertion order. The
// conflict flag reports a later value that differed from the stored one:
// first writer wins, and the discard is surfaced as a quality count.
type keyedSet[T comparable] struct {
	order []string
	items map[string]T
}

func newKeyedSet[T comparable]() *keyedSet[T] {
	return &keyedSet[T]{items: map[string]T{}}
}

func (s *keyedSet[T]) add(key string, v T) (inserted, conflict bool) {
	if key == "" {
		return false, false
	}
	if existing, ok := s.items[key]; ok {
		return false, existing != v
	}
	s.items[key] = v
	s.order = append(s.order, key)
	return true, false
}

func (s *keyedSet[T]) values() []T {
	out := make([]T, 0, len(s.order))
	for _, k := range s.order {
		out = append(out, s.items[k])
	}
	return out
}

func (s *keyedSet[T]) len() int {
	return len(s.order)
}

// StateAssociation binds one learner to one interval of its reconstructed
// timeline, for relationship creation.
type StateAssociation struct {
	LearnerKey string
	Interval   domain.StateInterval
}

// Batch is one flush unit handed off by the accumulator.
type Batch struct {
	Learners []domain.Learner

	Countries []domain.Country
	Cities    []domain.City
	Skills    []domain.Skill
	Programs  []domain.Program
	Companies []domain.Company

	SkillLinks  []domain.SkillLink
	Enrollments []domain.Enrollment
	Employments []domain.Employment

	LearningAssociations     []StateAssociation
	ProfessionalAssociations []StateAssociation
}

// Accumulator buffers per-row transform output into one batch. The five
// reference-entity kinds are de-duplicated by natural key; learners and
// relationship payloads are appended unconditionally. Fullness tracks the
// learner count only. After Clear the dedup maps restart empty: entities
// already flushed in a prior batch are not tracked here, the storage layer's
// idempotent merge key absorbs the repeats.
type Accumulator struct {
	batchSize int

	countries *keyedSet[domain.Country]
	cities    *keyedSet[domain.City]
	skills    *keyedSet[domain.Skill]
	programs  *keyedSet[domain.Program]
	companies *keyedSet[domain.Company]

	learners    []domain.Learner
	skillLinks  []domain.SkillLink
	enrollments []domain.Enrollment
	employments []domain.Employment

	learningAssocs     []StateAssociation
	professionalAssocs []StateAssociation

	conflicts int64
}

func NewAccumulator(batchSize int) *Accumulator {
	if batchSize <= 0 {
		batchSize = 100
	}
	a := &Accumulator{batchSize: batchSize}
	a.Clear()
	return a
}

// Add merges one row's bundle into the current batch.
func (a *Accumulator) Add(bundle *domain.RecordBundle) {
	if bundle == nil {
		return
	}
	for _, c := range bundle.Countries {
		a.track(a.countries.add(c.Code, c))
	}
	for _, c := range bundle.Cities {
		a.track(a.cities.add(c.ID, c))
	}
	for _, s := range bundle.Skills {
		a.track(a.skills.add(s.ID, s))
	}
	for _, p := range bundle.Programs {
		a.track(a.programs.add(p.ID, p))
	}
	for _, c := range bundle.Companies {
		a.track(a.companies.add(c.ID, c))
	}

	a.learners = append(a.learners, bundle.Learner)
	a.skillLinks = append(a.skillLinks, bundle.SkillLinks...)
	a.enrollments = append(a.enrollments, bundle.Enrollments...)
	a.employments = append(a.employments, bundle.Employments...)

	for _, iv := range bundle.LearningHistory {
		a.learningAssocs = append(a.learningAssocs, StateAssociation{LearnerKey: bundle.Learner.Key, Interval: iv})
	}
	for _, iv := range bundle.ProfessionalHistory {
		a.professionalAssocs = append(a.professionalAssocs, StateAssociation{LearnerKey: bundle.Learner.Key, Interval: iv})
	}
}

func (a *Accumulator) track(_ bool, conflict bool) {
	if conflict {
		a.conflicts++
	}
}

func (a *Accumulator) IsFull() bool {
	return len(a.learners) >= a.batchSize
}

func (a *Accumulator) IsEmpty() bool {
	return len(a.learners) == 0
}

// Conflicts reports reference-entity key collisions with differing payloads
// observed since the last Clear.
func (a *Accumulator) Conflicts() int64 {
	return a.conflicts
}

// Batch hands off the buffered batch. Callers usually follow with Clear.
func (a *Accumulator) Batch() *Batch {
	return &Batch{
		Learners:                 a.learners,
		Countries:                a.countries.values(),
		Cities:                   a.cities.values(),
		Skills:                   a.skills.values(),
		Programs:                 a.programs.values(),
		Companies:                a.companies.values(),
		SkillLinks:               a.skillLinks,
		Enrollments:              a.enrollments,
		Employments:              a.employments,
		LearningAssociations:     a.learningAssocs,
		ProfessionalAssociations: a.professionalAssocs,
	}
}

func (a *Accumulator) Clear() {
	a.countries = newKeyedSet[domain.Country]()
	a.cities = newKeyedSet[domain.City]()
	a.skills = newKeyedSet[domain.Skill]()
	a.programs = newKeyedSet[domain.Program]()
	a.companies = newKeyedSet[domain.Company]()
	a.learners = nil
	a.skillLinks = nil
	a.enrollments = nil
	a.employments = nil
	a.learningAssocs = nil
	a.professionalAssocs = nil
	a.conflicts = 0
}
