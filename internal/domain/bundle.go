package domain

// RecordBundle is the per-row output of the transform: one learner plus the
// reference entities, relationship payloads, and derived state histories that
// the row contributed. Bundles are buffered during the phase-1 scan and
// replayed by phase-2 workers, so the row source is only read once.
type RecordBundle struct {
	Learner Learner

	Countries []Country
	Cities    []City
	Skills    []Skill
	Programs  []Program
	Companies []Company

	SkillLinks  []SkillLink
	Enrollments []Enrollment
	Employments []Employment

	LearningHistory     []StateInterval
	ProfessionalHistory []StateInterval
}
