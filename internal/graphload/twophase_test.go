package graphload

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/yungbote/learnergraph-backend/internal/domain"
	"github.com/yungbote/learnergraph-backend/internal/source"
)

// memSource serves a fixed bundle count as rows; the stub transformer below
// maps each row back to its bundle.
type memSource struct {
	rows   []source.Row
	closed bool
}

func newMemSource(n int) *memSource {
	rows := make([]source.Row, n)
	for i := range rows {
		rows[i] = source.Row{Index: int64(i), Values: map[string]string{"id": fmt.Sprintf("%d", i)}}
	}
	return &memSource{rows: rows}
}

func (m *memSource) Columns() []string { return []string{"id"} }

func (m *memSource) TotalRows(ctx context.Context) (int64, error) {
	return int64(len(m.rows)), nil
}

func (m *memSource) ReadChunks(ctx context.Context, startRow, maxRows int64, fn func([]source.Row) error) error {
	if maxRows <= 0 {
		maxRows = 500
	}
	for start := startRow; start < int64(len(m.rows)); start += maxRows {
		end := start + maxRows
		if end > int64(len(m.rows)) {
			end = int64(len(m.rows))
		}
		if err := fn(m.rows[start:end]); err != nil {
			return err
		}
	}
	return nil
}

func (m *memSource) Close(ctx context.Context) error {
	m.closed = true
	return nil
}

// stubTransformer returns the bundle at the row's index, or an error for
// indexes in failRows.
type stubTransformer struct {
	bundles  []*domain.RecordBundle
	failRows map[int64]bool
}

func (s *stubTransformer) Transform(row source.Row) (*domain.RecordBundle, error) {
	if s.failRows[row.Index] {
		return nil, fmt.Errorf("stub: row %d malformed", row.Index)
	}
	return s.bundles[row.Index], nil
}

func fullBundle(key, country, skill string) *domain.RecordBundle {
	b := &domain.RecordBundle{
		Learner: domain.Learner{Key: key, CountryCode: country},
	}
	if country != "" {
		b.Countries = []domain.Country{{Code: country, Name: country}}
	}
	if skill != "" {
		b.Skills = []domain.Skill{{ID: skill, Name: skill}}
		b.SkillLinks = []domain.SkillLink{{LearnerKey: key, SkillID: skill, Source: "profile"}}
	}
	b.LearningHistory = []domain.StateInterval{
		{Value: domain.LearningActive, StartDate: "2020-01-01", IsCurrent: true},
	}
	b.ProfessionalHistory = []domain.StateInterval{
		{Value: domain.StatusWageEmployed, StartDate: "2021-01-01", IsCurrent: true},
	}
	return b
}

func newTwoPhaseHarness(t *testing.T, bundles []*domain.RecordBundle, failRows map[int64]bool, cfg TwoPhaseConfig) (*TwoPhaseLoader, *fakeSink, *memSource) {
	t.Helper()
	sink := &fakeSink{}
	log := testLogger(t)
	writer := NewWriter(sink, log, 500, fastPolicy(3))
	src := newMemSource(len(bundles))
	tf := &stubTransformer{bundles: bundles, failRows: failRows}
	return NewTwoPhaseLoader(src, tf, writer, log, cfg), sink, src
}

func TestTwoPhase_SharedNodesFlushBeforeLearnerWrites(t *testing.T) {
	bundles := []*domain.RecordBundle{
		fullBundle("a", "EG", "python"),
		fullBundle("b", "EG", "sql"),
		fullBundle("c", "SA", "python"),
	}
	loader, sink, src := newTwoPhaseHarness(t, bundles, nil, TwoPhaseConfig{BatchSize: 2, Workers: 1})

	metrics, err := loader.Run(context.Background())
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}

	firstLearner := -1
	lastShared := -1
	for i, call := range sink.calls {
		switch {
		case strings.Contains(call.cypher, "MERGE (n:Learner"):
			if firstLearner == -1 {
				firstLearner = i
			}
		case strings.Contains(call.cypher, "MERGE (n:"):
			lastShared = i
		case strings.Contains(call.cypher, "MATCH (a:Learner"):
			if firstLearner == -1 {
				t.Fatalf("relationship write before any learner write at call %d", i)
			}
		}
	}
	if firstLearner == -1 {
		t.Fatalf("no learner writes recorded: %+v", sink.calls)
	}
	if lastShared > firstLearner {
		t.Fatalf("shared node write at %d after first learner write at %d", lastShared, firstLearner)
	}
	if !src.closed {
		t.Fatalf("source should be closed by the loader")
	}
	if metrics.ValidRecords != 3 || metrics.InvalidRecords != 0 {
		t.Fatalf("unexpected metrics: %+v", metrics)
	}
}

func TestTwoPhase_SharedEntitiesWrittenOnce(t *testing.T) {
	bundles := []*domain.RecordBundle{
		fullBundle("a", "EG", "python"),
		fullBundle("b", "EG", "python"),
		fullBundle("c", "EG", "python"),
	}
	loader, sink, _ := newTwoPhaseHarness(t, bundles, nil, TwoPhaseConfig{BatchSize: 10, Workers: 1})

	metrics, err := loader.Run(context.Background())
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}

	countryRows, skillRows := 0, 0
	for _, call := range sink.calls {
		if strings.Contains(call.cypher, "MERGE (n:Country") {
			countryRows += call.rows
		}
		if strings.Contains(call.cypher, "MERGE (n:Skill") {
			skillRows += call.rows
		}
	}
	if countryRows != 1 || skillRows != 1 {
		t.Fatalf("shared entities written more than once: countries=%d skills=%d", countryRows, skillRows)
	}
	if metrics.NodesCreated[LabelCountry] != 1 || metrics.NodesCreated[LabelLearner] != 3 {
		t.Fatalf("unexpected node counts: %v", metrics.NodesCreated)
	}
	// Identical state intervals across all three learners collapse into one
	// shared node each, while every learner keeps its own relationship.
	if metrics.NodesCreated[LabelLearningState] != 1 {
		t.Fatalf("expected one shared learning state, got %v", metrics.NodesCreated)
	}
	if metrics.RelationshipsCreated[RelHasLearningState] != 3 {
		t.Fatalf("expected three state relationships, got %v", metrics.RelationshipsCreated)
	}
}

func TestTwoPhase_InvalidRowsSkipped(t *testing.T) {
	bundles := []*domain.RecordBundle{
		fullBundle("a", "EG", "python"),
		nil,
		fullBundle("c", "SA", "sql"),
	}
	loader, _, _ := newTwoPhaseHarness(t, bundles, map[int64]bool{1: true}, TwoPhaseConfig{BatchSize: 10, Workers: 1})

	metrics, err := loader.Run(context.Background())
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if metrics.RowsProcessed != 3 || metrics.ValidRecords != 2 || metrics.InvalidRecords != 1 {
		t.Fatalf("unexpected metrics: %+v", metrics)
	}
	if metrics.NodesCreated[LabelLearner] != 2 {
		t.Fatalf("invalid rows must not reach the graph: %v", metrics.NodesCreated)
	}
	if metrics.ErrorRate() < 0.3 || metrics.ErrorRate() > 0.4 {
		t.Fatalf("unexpected error rate %f", metrics.ErrorRate())
	}
}

func TestTwoPhase_ReferenceConflictCounted(t *testing.T) {
	conflicting := fullBundle("b", "EG", "")
	conflicting.Countries[0].Name = "Arab Republic of Egypt"
	bundles := []*domain.RecordBundle{
		fullBundle("a", "EG", ""),
		conflicting,
	}
	loader, _, _ := newTwoPhaseHarness(t, bundles, nil, TwoPhaseConfig{BatchSize: 10, Workers: 1})

	metrics, err := loader.Run(context.Background())
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if metrics.ReferenceConflicts != 1 {
		t.Fatalf("expected one reference conflict, got %d", metrics.ReferenceConflicts)
	}
}

func TestTwoPhase_WriteFailureIsFatal(t *testing.T) {
	bundles := []*domain.RecordBundle{fullBundle("a", "EG", "python")}
	sink := &fakeSink{}
	log := testLogger(t)
	// Every call fails with a non-transient error; the first shared flush
	// should abort the run.
	fatal := errors.New("boom")
	sink.script = []error{fatal, fatal, fatal, fatal}
	writer := NewWriter(sink, log, 500, fastPolicy(3))
	src := newMemSource(1)
	loader := NewTwoPhaseLoader(src, &stubTransformer{bundles: bundles}, writer, log, TwoPhaseConfig{Workers: 1})

	if _, err := loader.Run(context.Background()); !errors.Is(err, fatal) {
		t.Fatalf("expected the write error to surface, got %v", err)
	}
}

func TestTwoPhase_ParallelWorkersCompleteAllBatches(t *testing.T) {
	var bundles []*domain.RecordBundle
	for i := 0; i < 40; i++ {
		bundles = append(bundles, fullBundle(fmt.Sprintf("learner-%d", i), "EG", "python"))
	}
	loader, _, _ := newTwoPhaseHarness(t, bundles, nil, TwoPhaseConfig{BatchSize: 5, Workers: 4})

	metrics, err := loader.Run(context.Background())
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if metrics.NodesCreated[LabelLearner] != 40 {
		t.Fatalf("every batch should be written: %v", metrics.NodesCreated)
	}
	if metrics.RelationshipsCreated[RelHasSkill] != 40 {
		t.Fatalf("every skill link should be written: %v", metrics.RelationshipsCreated)
	}
}

func TestTwoPhase_DatelessIntervalExcludedFromSharedNodes(t *testing.T) {
	b := fullBundle("a", "", "")
	b.LearningHistory = []domain.StateInterval{
		{Value: domain.LearningActive, RawStart: "unknown", DateUnknown: true, IsCurrent: true},
	}
	loader, sink, _ := newTwoPhaseHarness(t, []*domain.RecordBundle{b}, nil, TwoPhaseConfig{Workers: 1})

	metrics, err := loader.Run(context.Background())
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if metrics.NodesCreated[LabelLearningState] != 0 {
		t.Fatalf("dateless interval must not produce a shared node: %v", metrics.NodesCreated)
	}
	// The association is still attempted; its MATCH simply finds no node.
	found := false
	for _, call := range sink.calls {
		if strings.Contains(call.cypher, "HAS_LEARNING_STATE") && call.rows == 1 {
			found = true
		}
	}
	if !found {
		t.Fatalf("state relationship rows should still be issued: %+v", sink.calls)
	}
}
