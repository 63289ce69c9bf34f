package graphload

import (
	"context"
	"fmt"
	"time"

	"github.com/yungbote/learnergraph-backend/internal/domain"
	"github.com/yungbote/learnergraph-backend/internal/platform/logger"
	"github.com/yungbote/learnergraph-backend/internal/source"
)

// Checkpoint statuses.
const (
	CheckpointInProgress = "in_progress"
	CheckpointCompleted  = "completed"
	CheckpointFailed     = "failed"
)

// CheckpointStore persists load progress for resumable runs.
type CheckpointStore interface {
	// Load returns the last persisted progress, or (0, "", nil) when none.
	Load(ctx context.Context) (lastRow int64, status string, err error)
	Save(ctx context.Context, lastRow int64, totals map[string]int64, status string) error
}

type SimpleConfig struct {
	BatchSize     int
	ReadChunkSize int
	// Resume continues an interrupted run from its checkpoint instead of
	// starting over.
	Resume bool
}

// SimpleLoader is the single-phase, single-threaded variant: accumulate rows
// into batches, flush each batch (nodes then relationships) as it fills, and
// checkpoint after every flush. It cannot be parallelized safely because
// concurrent batches would race to MERGE the same shared nodes; the
// two-phase loader exists for that. Kept for small loads and for resume.
type SimpleLoader struct {
	src    source.RowSource
	tf     RowTransformer
	writer *Writer
	ckpt   CheckpointStore
	log    *logger.Logger
	cfg    SimpleConfig
}

func NewSimpleLoader(src source.RowSource, tf RowTransformer, writer *Writer, ckpt CheckpointStore, log *logger.Logger, cfg SimpleConfig) *SimpleLoader {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if cfg.ReadChunkSize <= 0 {
		cfg.ReadChunkSize = 500
	}
	return &SimpleLoader{
		src:    src,
		tf:     tf,
		writer: writer,
		ckpt:   ckpt,
		log:    log.With("component", "SimpleLoader"),
		cfg:    cfg,
	}
}

func (l *SimpleLoader) Run(ctx context.Context) (*domain.LoadMetrics, error) {
	started := time.Now()
	metrics := domain.NewLoadMetrics()
	defer func() {
		if err := l.src.Close(ctx); err != nil {
			l.log.Warn("row source close failed", "error", err)
		}
	}()

	startRow := int64(0)
	if l.cfg.Resume && l.ckpt != nil {
		lastRow, status, err := l.ckpt.Load(ctx)
		if err != nil {
			return nil, fmt.Errorf("graphload: load checkpoint: %w", err)
		}
		if status == CheckpointInProgress || status == CheckpointFailed {
			startRow = lastRow
			l.log.Info("resuming from checkpoint", "start_row", startRow, "status", status)
		}
	}

	acc := NewAccumulator(l.cfg.BatchSize)
	lastRow := startRow

	runErr := l.src.ReadChunks(ctx, startRow, int64(l.cfg.ReadChunkSize), func(rows []source.Row) error {
		for _, row := range rows {
			metrics.RowsProcessed++
			lastRow = row.Index + 1
			bundle, err := l.tf.Transform(row)
			if err != nil {
				metrics.InvalidRecords++
				l.log.Warn("row skipped", "row", row.Index, "error", err)
				continue
			}
			metrics.ValidRecords++
			acc.Add(bundle)

			if acc.IsFull() {
				if err := l.flush(ctx, acc, metrics, lastRow); err != nil {
					return err
				}
			}
		}
		return nil
	})
	if runErr == nil && !acc.IsEmpty() {
		runErr = l.flush(ctx, acc, metrics, lastRow)
	}

	if runErr != nil {
		l.saveCheckpoint(ctx, lastRow, metrics, CheckpointFailed)
		return nil, runErr
	}

	l.saveCheckpoint(ctx, lastRow, metrics, CheckpointCompleted)
	metrics.Duration = time.Since(started)
	l.log.Info("graph load complete",
		"rows", metrics.RowsProcessed,
		"nodes", metrics.TotalNodes(),
		"relationships", metrics.TotalRelationships(),
		"duration", metrics.Duration.String())
	return metrics, nil
}

// flush writes the accumulated batch, nodes first, then relationships, and
// checkpoints. Shared entities repeated across batches are absorbed by the
// storage-layer merge key, not tracked here.
func (l *SimpleLoader) flush(ctx context.Context, acc *Accumulator, metrics *domain.LoadMetrics, lastRow int64) error {
	batch := acc.Batch()
	metrics.ReferenceConflicts += acc.Conflicts()
	acc.Clear()

	type nodeFlush struct {
		label string
		write func() (int, error)
	}
	flushes := []nodeFlush{
		{LabelCountry, func() (int, error) {
			return l.writer.CreateNodes(ctx, LabelCountry, "code", mapRows(batch.Countries, countryRow))
		}},
		{LabelCity, func() (int, error) {
			return l.writer.CreateNodes(ctx, LabelCity, "id", mapRows(batch.Cities, cityRow))
		}},
		{LabelSkill, func() (int, error) {
			return l.writer.CreateNodes(ctx, LabelSkill, "id", mapRows(batch.Skills, skillRow))
		}},
		{LabelProgram, func() (int, error) {
			return l.writer.CreateNodes(ctx, LabelProgram, "id", mapRows(batch.Programs, programRow))
		}},
		{LabelCompany, func() (int, error) {
			return l.writer.CreateNodes(ctx, LabelCompany, "id", mapRows(batch.Companies, companyRow))
		}},
		{LabelLearningState, func() (int, error) {
			return l.writer.CreateStateNodes(ctx, LabelLearningState, "state", stateNodeRows(batch.LearningAssociations, "state"))
		}},
		{LabelProfessionalStatus, func() (int, error) {
			return l.writer.CreateStateNodes(ctx, LabelProfessionalStatus, "status", stateNodeRows(batch.ProfessionalAssociations, "status"))
		}},
		{LabelLearner, func() (int, error) {
			return l.writer.CreateNodes(ctx, LabelLearner, "key", mapRows(batch.Learners, learnerRow))
		}},
	}
	for _, f := range flushes {
		n, err := f.write()
		if err != nil {
			return fmt.Errorf("graphload: flush %s nodes: %w", f.label, err)
		}
		metrics.NodesCreated[f.label] += int64(n)
	}

	learnerEP := Endpoint{Label: LabelLearner, Key: "key"}
	rels := []struct {
		relType string
		to      Endpoint
		records []RelRecord
	}{
		{RelHasSkill, Endpoint{LabelSkill, "id"}, mapRecords(batch.SkillLinks, skillLinkRecord)},
		{RelEnrolledIn, Endpoint{LabelProgram, "id"}, mapRecords(batch.Enrollments, enrollmentRecord)},
		{RelWorksFor, Endpoint{LabelCompany, "id"}, mapRecords(batch.Employments, employmentRecord)},
	}
	for _, r := range rels {
		n, err := l.writer.CreateRelationships(ctx, r.relType, learnerEP, r.to, r.records)
		if err != nil {
			return fmt.Errorf("graphload: flush %s relationships: %w", r.relType, err)
		}
		metrics.RelationshipsCreated[r.relType] += int64(n)
	}

	n, err := l.writer.CreateStateRelationships(ctx, RelHasLearningState, LabelLearningState, "state", mapRecords(batch.LearningAssociations, stateRelRecord))
	if err != nil {
		return fmt.Errorf("graphload: flush %s relationships: %w", RelHasLearningState, err)
	}
	metrics.RelationshipsCreated[RelHasLearningState] += int64(n)

	n, err = l.writer.CreateStateRelationships(ctx, RelHasProfessionalStatus, LabelProfessionalStatus, "status", mapRecords(batch.ProfessionalAssociations, stateRelRecord))
	if err != nil {
		return fmt.Errorf("graphload: flush %s relationships: %w", RelHasProfessionalStatus, err)
	}
	metrics.RelationshipsCreated[RelHasProfessionalStatus] += int64(n)

	l.saveCheckpoint(ctx, lastRow, metrics, CheckpointInProgress)
	return nil
}

// stateNodeRows de-duplicates the batch's merge-keyed intervals into node
// rows. Unlike the five reference kinds the accumulator dedups on Add, state
// intervals stay attached to their learner association and are only
// collapsed here, at write time.
func stateNodeRows(assocs []StateAssociation, valueProp string) []map[string]any {
	set := newKeyedSet[domain.StateInterval]()
	for _, a := range assocs {
		if a.Interval.MergeKeyed() {
			set.add(stateMergeKey(a.Interval), a.Interval)
		}
	}
	return mapRows(set.values(), func(iv domain.StateInterval) map[string]any { return stateRow(iv, valueProp) })
}

func (l *SimpleLoader) saveCheckpoint(ctx context.Context, lastRow int64, metrics *domain.LoadMetrics, status string) {
	if l.ckpt == nil {
		return
	}
	totals := map[string]int64{
		"rows_processed":  metrics.RowsProcessed,
		"valid_records":   metrics.ValidRecords,
		"invalid_records": metrics.InvalidRecords,
		"nodes":           metrics.TotalNodes(),
		"relationships":   metrics.TotalRelationships(),
	}
	if err := l.ckpt.Save(ctx, lastRow, totals, status); err != nil {
		l.log.Warn("checkpoint save failed", "last_row", lastRow, "status", status, "error", err)
	}
}

func mapRecords[T any, R any](items []T, fn func(T) R) []R {
	out := make([]R, 0, len(items))
	for _, it := range items {
		out = append(out, fn(it))
	}
	return out
}
