package graphload

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/yungbote/learnergraph-backend/internal/platform/logger"
)

type sinkCall struct {
	cypher string
	rows   int
}

// fakeSink records every ExecuteWrite and fails according to a script: the
// nth call returns script[n], calls past the script succeed.
type fakeSink struct {
	mu     sync.Mutex
	calls  []sinkCall
	script []error
}

func (f *fakeSink) ExecuteWrite(ctx context.Context, cypher string, params map[string]any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	if rows, ok := params["rows"].([]map[string]any); ok {
		n = len(rows)
	}
	idx := len(f.calls)
	f.calls = append(f.calls, sinkCall{cypher: cypher, rows: n})
	if idx < len(f.script) {
		return f.script[idx]
	}
	return nil
}

func (f *fakeSink) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func testLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New("development")
	if err != nil {
		t.Fatalf("logger init: %v", err)
	}
	return log
}

func fastPolicy(maxRetries int) RetryPolicy {
	return RetryPolicy{MaxRetries: maxRetries, BaseDelay: time.Millisecond}
}

func transientErr() error {
	return &neo4j.Neo4jError{Code: "Neo.TransientError.Transaction.DeadlockDetected", Msg: "deadlock"}
}

func nodeRows(n int) []map[string]any {
	rows := make([]map[string]any, n)
	for i := range rows {
		rows[i] = map[string]any{"id": i}
	}
	return rows
}

func TestWriter_SucceedsFirstAttempt(t *testing.T) {
	sink := &fakeSink{}
	w := NewWriter(sink, testLogger(t), 500, fastPolicy(5))

	n, err := w.CreateNodes(context.Background(), LabelSkill, "id", nodeRows(3))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 3 || sink.callCount() != 1 {
		t.Fatalf("expected one write of 3 rows, got n=%d calls=%d", n, sink.callCount())
	}
}

func TestWriter_EmptyInputWritesNothing(t *testing.T) {
	sink := &fakeSink{}
	w := NewWriter(sink, testLogger(t), 500, fastPolicy(5))

	if n, err := w.CreateNodes(context.Background(), LabelSkill, "id", nil); err != nil || n != 0 {
		t.Fatalf("empty input should be a no-op, got n=%d err=%v", n, err)
	}
	if sink.callCount() != 0 {
		t.Fatalf("no sink call expected, got %d", sink.callCount())
	}
}

func TestWriter_RetriesTransientThenSucceeds(t *testing.T) {
	sink := &fakeSink{script: []error{transientErr(), transientErr()}}
	w := NewWriter(sink, testLogger(t), 500, fastPolicy(5))

	n, err := w.CreateNodes(context.Background(), LabelSkill, "id", nodeRows(1))
	if err != nil {
		t.Fatalf("expected recovery, got %v", err)
	}
	if n != 1 || sink.callCount() != 3 {
		t.Fatalf("expected 3 attempts, got %d", sink.callCount())
	}
}

func TestWriter_ExhaustsRetriesAndReturnsOriginalError(t *testing.T) {
	script := make([]error, 10)
	for i := range script {
		script[i] = transientErr()
	}
	sink := &fakeSink{script: script}
	w := NewWriter(sink, testLogger(t), 500, fastPolicy(4))

	_, err := w.CreateNodes(context.Background(), LabelSkill, "id", nodeRows(1))
	if err == nil {
		t.Fatalf("expected failure after exhausting retries")
	}
	if sink.callCount() != 4 {
		t.Fatalf("MaxRetries bounds total attempts: expected 4, got %d", sink.callCount())
	}
	var neoErr *neo4j.Neo4jError
	if !errors.As(err, &neoErr) || neoErr.Code != "Neo.TransientError.Transaction.DeadlockDetected" {
		t.Fatalf("original sink error should be returned unwrapped, got %v", err)
	}
}

func TestWriter_NonTransientFailsImmediately(t *testing.T) {
	fatal := &neo4j.Neo4jError{Code: "Neo.ClientError.Statement.SyntaxError", Msg: "bad cypher"}
	sink := &fakeSink{script: []error{fatal}}
	w := NewWriter(sink, testLogger(t), 500, fastPolicy(5))

	_, err := w.CreateNodes(context.Background(), LabelSkill, "id", nodeRows(1))
	if !errors.Is(err, fatal) {
		t.Fatalf("expected the client error back, got %v", err)
	}
	if sink.callCount() != 1 {
		t.Fatalf("non-transient errors must not be retried, got %d attempts", sink.callCount())
	}
}

func TestWriter_ChunksLargeBatches(t *testing.T) {
	sink := &fakeSink{}
	w := NewWriter(sink, testLogger(t), 10, fastPolicy(1))

	n, err := w.CreateNodes(context.Background(), LabelSkill, "id", nodeRows(25))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 25 || sink.callCount() != 3 {
		t.Fatalf("expected 3 chunks of <=10 rows, got calls=%d", sink.callCount())
	}
	if sink.calls[0].rows != 10 || sink.calls[1].rows != 10 || sink.calls[2].rows != 5 {
		t.Fatalf("unexpected chunk sizes: %+v", sink.calls)
	}
}

func TestWriter_RelationshipRowsCarryEndpointKeys(t *testing.T) {
	sink := &fakeSink{}
	w := NewWriter(sink, testLogger(t), 500, fastPolicy(1))

	records := []RelRecord{{FromKey: "learner-1", ToKey: "python", Props: map[string]any{"source": "profile"}}}
	n, err := w.CreateRelationships(context.Background(), RelHasSkill,
		Endpoint{LabelLearner, "key"}, Endpoint{LabelSkill, "id"}, records)
	if err != nil || n != 1 {
		t.Fatalf("unexpected result: n=%d err=%v", n, err)
	}
	q := sink.calls[0].cypher
	for _, want := range []string{"MATCH (a:Learner {key: row.from_key})", "MATCH (b:Skill {id: row.to_key})", "MERGE (a)-[r:HAS_SKILL]->(b)"} {
		if !strings.Contains(q, want) {
			t.Fatalf("query missing %q:\n%s", want, q)
		}
	}
}

func TestWriter_StateNodesUseCompositeMergeKey(t *testing.T) {
	sink := &fakeSink{}
	w := NewWriter(sink, testLogger(t), 500, fastPolicy(1))

	rows := []map[string]any{{"state": "Active", "start_date": "2020-01-01"}}
	if _, err := w.CreateStateNodes(context.Background(), LabelLearningState, "state", rows); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	q := sink.calls[0].cypher
	if !strings.Contains(q, "MERGE (n:LearningState {state: row.state, start_date: row.start_date})") {
		t.Fatalf("state node query lacks the composite merge key:\n%s", q)
	}
}

func TestBackoffDelay_Bounds(t *testing.T) {
	base := 100 * time.Millisecond
	for attempt := 0; attempt < 4; attempt++ {
		d := backoffDelay(base, attempt)
		lo := base << uint(attempt)
		hi := lo + lo/2
		if d < lo || d > hi {
			t.Fatalf("attempt %d: delay %v outside [%v, %v]", attempt, d, lo, hi)
		}
	}
}

func TestIsTransientWriteError(t *testing.T) {
	if !isTransientWriteError(transientErr()) {
		t.Fatalf("transient code should be retryable")
	}
	if !isTransientWriteError(&neo4j.Neo4jError{Code: "Neo.DatabaseError.General.ServiceUnavailable"}) {
		t.Fatalf("service unavailable should be retryable")
	}
	if isTransientWriteError(&neo4j.Neo4jError{Code: "Neo.ClientError.Statement.SyntaxError"}) {
		t.Fatalf("client errors are not retryable")
	}
	if isTransientWriteError(errors.New("plain")) {
		t.Fatalf("unknown errors are not retryable")
	}
	if !isDeadlockError(transientErr()) {
		t.Fatalf("deadlock code should be flagged")
	}
	if isDeadlockError(&neo4j.Neo4jError{Code: "Neo.TransientError.General.OutOfMemoryError"}) {
		t.Fatalf("non-deadlock transient should not be flagged")
	}
}
