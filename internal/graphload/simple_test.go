package graphload

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/yungbote/learnergraph-backend/internal/domain"
)

type savedCheckpoint struct {
	lastRow int64
	totals  map[string]int64
	status  string
}

type fakeCheckpointStore struct {
	lastRow int64
	status  string
	loadErr error
	saves   []savedCheckpoint
}

func (f *fakeCheckpointStore) Load(ctx context.Context) (int64, string, error) {
	return f.lastRow, f.status, f.loadErr
}

func (f *fakeCheckpointStore) Save(ctx context.Context, lastRow int64, totals map[string]int64, status string) error {
	f.saves = append(f.saves, savedCheckpoint{lastRow: lastRow, totals: totals, status: status})
	return nil
}

func newSimpleHarness(t *testing.T, bundles []*bundleFixture, ckpt *fakeCheckpointStore, cfg SimpleConfig) (*SimpleLoader, *fakeSink, *memSource) {
	t.Helper()
	sink := &fakeSink{}
	log := testLogger(t)
	writer := NewWriter(sink, log, 500, fastPolicy(3))
	src := newMemSource(len(bundles))
	tf := &stubTransformer{}
	for _, b := range bundles {
		tf.bundles = append(tf.bundles, fullBundle(b.key, b.country, b.skill))
	}
	return NewSimpleLoader(src, tf, writer, ckpt, log, cfg), sink, src
}

type bundleFixture struct {
	key, country, skill string
}

func fixtures(n int) []*bundleFixture {
	out := make([]*bundleFixture, n)
	for i := range out {
		out[i] = &bundleFixture{key: fmt.Sprintf("learner-%d", i), country: "EG", skill: "python"}
	}
	return out
}

func TestSimple_CompletesAndCheckpoints(t *testing.T) {
	ckpt := &fakeCheckpointStore{}
	loader, _, src := newSimpleHarness(t, fixtures(5), ckpt, SimpleConfig{BatchSize: 2})

	metrics, err := loader.Run(context.Background())
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if metrics.RowsProcessed != 5 || metrics.NodesCreated[LabelLearner] != 5 {
		t.Fatalf("unexpected metrics: %+v", metrics)
	}
	if !src.closed {
		t.Fatalf("source should be closed")
	}
	if len(ckpt.saves) == 0 {
		t.Fatalf("expected checkpoint saves")
	}
	last := ckpt.saves[len(ckpt.saves)-1]
	if last.status != CheckpointCompleted || last.lastRow != 5 {
		t.Fatalf("final checkpoint should be completed at row 5: %+v", last)
	}
	for _, s := range ckpt.saves[:len(ckpt.saves)-1] {
		if s.status != CheckpointInProgress {
			t.Fatalf("intermediate checkpoints should be in_progress: %+v", ckpt.saves)
		}
	}
}

func TestSimple_ResumesFromCheckpoint(t *testing.T) {
	ckpt := &fakeCheckpointStore{lastRow: 3, status: CheckpointInProgress}
	loader, _, _ := newSimpleHarness(t, fixtures(5), ckpt, SimpleConfig{BatchSize: 10, Resume: true})

	metrics, err := loader.Run(context.Background())
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if metrics.RowsProcessed != 2 {
		t.Fatalf("resume should skip the first 3 rows, processed %d", metrics.RowsProcessed)
	}
	if metrics.NodesCreated[LabelLearner] != 2 {
		t.Fatalf("only the remaining learners should be written: %v", metrics.NodesCreated)
	}
}

func TestSimple_CompletedCheckpointRestartsFromZero(t *testing.T) {
	ckpt := &fakeCheckpointStore{lastRow: 5, status: CheckpointCompleted}
	loader, _, _ := newSimpleHarness(t, fixtures(5), ckpt, SimpleConfig{BatchSize: 10, Resume: true})

	metrics, err := loader.Run(context.Background())
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if metrics.RowsProcessed != 5 {
		t.Fatalf("a completed run is not resumed, it restarts: processed %d", metrics.RowsProcessed)
	}
}

func TestSimple_ResumeDisabledIgnoresCheckpoint(t *testing.T) {
	ckpt := &fakeCheckpointStore{lastRow: 3, status: CheckpointInProgress}
	loader, _, _ := newSimpleHarness(t, fixtures(5), ckpt, SimpleConfig{BatchSize: 10, Resume: false})

	metrics, err := loader.Run(context.Background())
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if metrics.RowsProcessed != 5 {
		t.Fatalf("resume disabled should start from zero, processed %d", metrics.RowsProcessed)
	}
}

func TestSimple_WriteFailureMarksCheckpointFailed(t *testing.T) {
	ckpt := &fakeCheckpointStore{}
	fatal := errors.New("boom")
	sink := &fakeSink{script: []error{fatal}}
	log := testLogger(t)
	writer := NewWriter(sink, log, 500, fastPolicy(3))
	src := newMemSource(1)
	tf := &stubTransformer{bundles: []*domain.RecordBundle{fullBundle("a", "EG", "python")}}
	loader := NewSimpleLoader(src, tf, writer, ckpt, log, SimpleConfig{BatchSize: 1})

	if _, err := loader.Run(context.Background()); !errors.Is(err, fatal) {
		t.Fatalf("expected the write error to surface, got %v", err)
	}
	if len(ckpt.saves) == 0 || ckpt.saves[len(ckpt.saves)-1].status != CheckpointFailed {
		t.Fatalf("final checkpoint should be failed: %+v", ckpt.saves)
	}
}
