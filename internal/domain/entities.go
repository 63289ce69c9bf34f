package domain

// Reference entities are shared across learners and keyed by a natural key.
// Each key is written to the graph at most once per load run; later rows that
// carry the same key are discarded by the dedup maps (first writer wins).

type Country struct {
	Code   string
	Name   string
	Region string
	Lat    float64
	Lng    float64
}

type City struct {
	ID          string
	Name        string
	CountryCode string
	Lat         float64
	Lng         float64
}

type Skill struct {
	ID       string
	Name     string
	Category string
}

type Program struct {
	ID       string
	Name     string
	Provider string
}

type Company struct {
	ID       string
	Name     string
	Industry string
}

// Learner is one node per source row. Learners are never de-duplicated: two
// rows hashing to the same key is a data-quality condition, not a merge.
type Learner struct {
	Key         string
	FullName    string
	Email       string
	Gender      string
	CountryCode string
	CityID      string
	EmployedNow bool
	StudyingNow bool
	RowIndex    int64
}

// Relationship payloads carry the learner key, the target natural key, and
// the edge properties. They are only ever written in phase 2, after every
// node they reference exists.

type SkillLink struct {
	LearnerKey string
	SkillID    string
	Source     string
}

type Enrollment struct {
	LearnerKey string
	ProgramID  string
	StartDate  string
	EndDate    string
	Status     string
}

type Employment struct {
	LearnerKey string
	CompanyID  string
	Title      string
	StartDate  string
	EndDate    string
	IsCurrent  bool
}
