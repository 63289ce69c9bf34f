package graphload

import "fmt"

// Node labels and their merge keys. Every write is an idempotent upsert on
// the label's natural key; blind inserts are never issued.
const (
	LabelCountry            = "Country"
	LabelCity               = "City"
	LabelSkill              = "Skill"
	LabelProgram            = "Program"
	LabelCompany            = "Company"
	LabelLearner            = "Learner"
	LabelLearningState      = "LearningState"
	LabelProfessionalStatus = "ProfessionalStatus"
)

const (
	RelHasSkill              = "HAS_SKILL"
	RelEnrolledIn            = "ENROLLED_IN"
	RelWorksFor              = "WORKS_FOR"
	RelHasLearningState      = "HAS_LEARNING_STATE"
	RelHasProfessionalStatus = "HAS_PROFESSIONAL_STATUS"
)

// Endpoint names one side of a relationship: the node label and the property
// it is matched on.
type Endpoint struct {
	Label string
	Key   string
}

func upsertNodesQuery(label, mergeKey string) string {
	return fmt.Sprintf(`
UNWIND $rows AS row
MERGE (n:%s {%s: row.%s})
SET n += row
`, label, mergeKey, mergeKey)
}

func upsertRelationshipsQuery(relType string, from, to Endpoint) string {
	return fmt.Sprintf(`
UNWIND $rows AS row
MATCH (a:%s {%s: row.from_key})
MATCH (b:%s {%s: row.to_key})
MERGE (a)-[r:%s]->(b)
SET r += row.props
`, from.Label, from.Key, to.Label, to.Key, relType)
}

// Temporal-state nodes are merge-keyed on the composite (value, start_date).
func upsertStateNodesQuery(stateLabel, valueProp string) string {
	return fmt.Sprintf(`
UNWIND $rows AS row
MERGE (n:%s {%s: row.%s, start_date: row.start_date})
SET n += row
`, stateLabel, valueProp, valueProp)
}

// Temporal-state relationships match on both merge-key properties.
func upsertStateRelationshipsQuery(relType, stateLabel, valueProp string) string {
	return fmt.Sprintf(`
UNWIND $rows AS row
MATCH (a:%s {key: row.from_key})
MATCH (b:%s {%s: row.to_value, start_date: row.to_start})
MERGE (a)-[r:%s]->(b)
SET r += row.props
`, LabelLearner, stateLabel, valueProp, relType)
}

// schemaStatements are best-effort uniqueness constraints per merge key; they
// may fail for restricted users and the load continues without them.
var schemaStatements = []string{
	`CREATE CONSTRAINT country_code_unique IF NOT EXISTS FOR (n:Country) REQUIRE n.code IS UNIQUE`,
	`CREATE CONSTRAINT city_id_unique IF NOT EXISTS FOR (n:City) REQUIRE n.id IS UNIQUE`,
	`CREATE CONSTRAINT skill_id_unique IF NOT EXISTS FOR (n:Skill) REQUIRE n.id IS UNIQUE`,
	`CREATE CONSTRAINT program_id_unique IF NOT EXISTS FOR (n:Program) REQUIRE n.id IS UNIQUE`,
	`CREATE CONSTRAINT company_id_unique IF NOT EXISTS FOR (n:Company) REQUIRE n.id IS UNIQUE`,
	`CREATE CONSTRAINT learner_key_unique IF NOT EXISTS FOR (n:Learner) REQUIRE n.key IS UNIQUE`,
	`CREATE INDEX learning_state_key_idx IF NOT EXISTS FOR (n:LearningState) ON (n.state, n.start_date)`,
	`CREATE INDEX professional_status_key_idx IF NOT EXISTS FOR (n:ProfessionalStatus) ON (n.status, n.start_date)`,
}
