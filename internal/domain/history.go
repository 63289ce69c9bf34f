package domain

// Learning state values.
const (
	LearningActive     = "Active"
	LearningGraduate   = "Graduate"
	LearningDroppedOut = "Dropped Out"
	LearningInactive   = "Inactive"
)

// Professional status values.
const (
	StatusWageEmployed = "Wage Employed"
	StatusFreelancer   = "Freelancer"
	StatusEntrepreneur = "Entrepreneur"
	StatusUnemployed   = "Unemployed"
	StatusMultiple     = "Multiple"
)

// StateInterval is one contiguous interval of a categorical state in a
// learner's reconstructed timeline (SCD type 2 style). The same shape backs
// both LearningState and ProfessionalStatus nodes; the graph label and
// property name are decided at the writer boundary.
//
// StartDate and EndDate are normalized YYYY-MM-DD strings. An empty EndDate
// means the interval is ongoing. Intervals whose source entry had no parsable
// start date carry DateUnknown=true, sort to the beginning of the timeline,
// and are excluded from the shared (value, start_date) merge key.
type StateInterval struct {
	Value       string
	StartDate   string
	RawStart    string
	EndDate     string
	IsCurrent   bool
	DateUnknown bool
	Note        string
}

// MergeKeyed reports whether the interval participates in the shared
// temporal-state node map.
func (s StateInterval) MergeKeyed() bool {
	return !s.DateUnknown && s.StartDate != ""
}

// EducationEntry is one raw enrollment record parsed out of a source row's
// education column. Dates are kept raw; parsing them is the history builder's
// concern.
type EducationEntry struct {
	Program       string
	ProgramID     string
	RawStart      string
	RawEnd        string
	RawGraduation string
	Status        string
}

// EmploymentEntry is one raw job record parsed out of a source row's
// employment column.
type EmploymentEntry struct {
	Organization string
	CompanyID    string
	Title        string
	RawStart     string
	RawEnd       string
	IsCurrent    bool
}
