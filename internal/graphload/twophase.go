// Package graphload drives the population of the learner property graph.
//
// The load is split into two phases. Phase 1 scans the whole row source
// sequentially, building dedup maps of every shared entity and buffering the
// per-row bundles, then flushes the shared nodes kind by kind. Phase 2
// replays the buffered bundles on a fixed worker pool, creating learner nodes
// and relationships only. Because no phase-2 worker ever creates a shared
// node, concurrent workers cannot race to MERGE the same key — the historical
// cause of write-write deadlocks under the single-phase design.
package graphload

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/yungbote/learnergraph-backend/internal/domain"
	"github.com/yungbote/learnergraph-backend/internal/platform/logger"
	"github.com/yungbote/learnergraph-backend/internal/source"
)

// RowTransformer maps one source row to its entity bundle. An error marks
// the row invalid; the scan logs, counts, and continues.
type RowTransformer interface {
	Transform(row source.Row) (*domain.RecordBundle, error)
}

type TwoPhaseConfig struct {
	// BatchSize is the number of learner bundles per phase-2 work unit.
	BatchSize int
	// ReadChunkSize is the number of rows pulled from the source at a time.
	ReadChunkSize int
	// Workers bounds the phase-2 pool.
	Workers int
}

func DefaultTwoPhaseConfig() TwoPhaseConfig {
	return TwoPhaseConfig{BatchSize: 100, ReadChunkSize: 500, Workers: 4}
}

type TwoPhaseLoader struct {
	src    source.RowSource
	tf     RowTransformer
	writer *Writer
	log    *logger.Logger
	cfg    TwoPhaseConfig
	tracer trace.Tracer
}

func NewTwoPhaseLoader(src source.RowSource, tf RowTransformer, writer *Writer, log *logger.Logger, cfg TwoPhaseConfig) *TwoPhaseLoader {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if cfg.ReadChunkSize <= 0 {
		cfg.ReadChunkSize = 500
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	return &TwoPhaseLoader{
		src:    src,
		tf:     tf,
		writer: writer,
		log:    log.With("component", "TwoPhaseLoader"),
		cfg:    cfg,
		tracer: otel.Tracer("graphload"),
	}
}

// sharedEntities are the phase-1 dedup maps. They are never mutated after
// the scan completes, so phase-2 workers read them without locks.
type sharedEntities struct {
	countries            *keyedSet[domain.Country]
	cities               *keyedSet[domain.City]
	skills               *keyedSet[domain.Skill]
	programs             *keyedSet[domain.Program]
	companies            *keyedSet[domain.Company]
	learningStates       *keyedSet[domain.StateInterval]
	professionalStatuses *keyedSet[domain.StateInterval]
}

func newSharedEntities() *sharedEntities {
	return &sharedEntities{
		countries:            newKeyedSet[domain.Country](),
		cities:               newKeyedSet[domain.City](),
		skills:               newKeyedSet[domain.Skill](),
		programs:             newKeyedSet[domain.Program](),
		companies:            newKeyedSet[domain.Company](),
		learningStates:       newKeyedSet[domain.StateInterval](),
		professionalStatuses: newKeyedSet[domain.StateInterval](),
	}
}

// Run consumes the entire row source once and loads the graph. It returns
// the aggregate metrics, or the first fatal error: a batch write that
// exhausted its retries, or a failure of the source itself. Row-level
// transform failures are not fatal.
func (l *TwoPhaseLoader) Run(ctx context.Context) (*domain.LoadMetrics, error) {
	started := time.Now()
	metrics := domain.NewLoadMetrics()

	ctx, span := l.tracer.Start(ctx, "graphload.run")
	defer span.End()

	shared, batches, err := l.scan(ctx, metrics)
	if err != nil {
		return nil, fmt.Errorf("graphload: phase 1 scan: %w", err)
	}
	l.log.Info("phase 1 scan complete",
		"rows", metrics.RowsProcessed,
		"valid", metrics.ValidRecords,
		"invalid", metrics.InvalidRecords,
		"batches", len(batches))

	if err := l.flushShared(ctx, shared, metrics); err != nil {
		return nil, fmt.Errorf("graphload: phase 1 flush: %w", err)
	}

	// The source is released before the slow write phase so its connection
	// is not left idling; phase 2 never reads it.
	if err := l.src.Close(ctx); err != nil {
		l.log.Warn("row source close failed", "error", err)
	}

	if err := l.loadBatches(ctx, batches, metrics); err != nil {
		return nil, err
	}
	batches = nil

	metrics.Duration = time.Since(started)
	span.SetAttributes(
		attribute.Int64("rows.processed", metrics.RowsProcessed),
		attribute.Int64("rows.invalid", metrics.InvalidRecords),
	)
	l.log.Info("graph load complete",
		"rows", metrics.RowsProcessed,
		"nodes", metrics.TotalNodes(),
		"relationships", metrics.TotalRelationships(),
		"error_rate", metrics.ErrorRate(),
		"duration", metrics.Duration.String())
	return metrics, nil
}

// scan is phase 1's single sequential pass: transform every row, merge
// shared entities into the dedup maps, and buffer bundles for phase 2.
func (l *TwoPhaseLoader) scan(ctx context.Context, metrics *domain.LoadMetrics) (*sharedEntities, [][]*domain.RecordBundle, error) {
	ctx, span := l.tracer.Start(ctx, "graphload.phase1.scan")
	defer span.End()

	shared := newSharedEntities()
	var batches [][]*domain.RecordBundle
	var current []*domain.RecordBundle

	err := l.src.ReadChunks(ctx, 0, int64(l.cfg.ReadChunkSize), func(rows []source.Row) error {
		for _, row := range rows {
			metrics.RowsProcessed++
			bundle, err := l.tf.Transform(row)
			if err != nil {
				metrics.InvalidRecords++
				l.log.Warn("row skipped", "row", row.Index, "error", err)
				continue
			}
			metrics.ValidRecords++
			l.mergeShared(shared, bundle, metrics)

			current = append(current, bundle)
			if len(current) >= l.cfg.BatchSize {
				batches = append(batches, current)
				current = nil
			}
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	if len(current) > 0 {
		batches = append(batches, current)
	}
	return shared, batches, nil
}

// mergeShared folds one bundle's shared entities into the dedup maps. First
// occurrence wins; a later occurrence with a different payload is discarded
// and counted as a reference conflict.
func (l *TwoPhaseLoader) mergeShared(shared *sharedEntities, bundle *domain.RecordBundle, metrics *domain.LoadMetrics) {
	for _, c := range bundle.Countries {
		if _, conflict := shared.countries.add(c.Code, c); conflict {
			metrics.ReferenceConflicts++
			l.log.Warn("reference entity conflict, keeping first seen", "label", LabelCountry, "id", c.Code)
		}
	}
	for _, c := range bundle.Cities {
		if _, conflict := shared.cities.add(c.ID, c); conflict {
			metrics.ReferenceConflicts++
			l.log.Warn("reference entity conflict, keeping first seen", "label", LabelCity, "id", c.ID)
		}
	}
	for _, s := range bundle.Skills {
		if _, conflict := shared.skills.add(s.ID, s); conflict {
			metrics.ReferenceConflicts++
			l.log.Warn("reference entity conflict, keeping first seen", "label", LabelSkill, "id", s.ID)
		}
	}
	for _, p := range bundle.Programs {
		if _, conflict := shared.programs.add(p.ID, p); conflict {
			metrics.ReferenceConflicts++
			l.log.Warn("reference entity conflict, keeping first seen", "label", LabelProgram, "id", p.ID)
		}
	}
	for _, c := range bundle.Companies {
		if _, conflict := shared.companies.add(c.ID, c); conflict {
			metrics.ReferenceConflicts++
			l.log.Warn("reference entity conflict, keeping first seen", "label", LabelCompany, "id", c.ID)
		}
	}

	// Temporal states are calendar-scoped facts shared across learners.
	// Intervals without a parsable start date cannot be merge-keyed and are
	// left out of the shared map; the per-learner association on the bundle
	// still carries them.
	for _, iv := range bundle.LearningHistory {
		if iv.MergeKeyed() {
			shared.learningStates.add(stateMergeKey(iv), iv)
		}
	}
	for _, iv := range bundle.ProfessionalHistory {
		if iv.MergeKeyed() {
			shared.professionalStatuses.add(stateMergeKey(iv), iv)
		}
	}
}

// flushShared writes every shared map sequentially, node kind by node kind.
// This ordering is the hard barrier that lets phase-2 workers run without
// node-creation races.
func (l *TwoPhaseLoader) flushShared(ctx context.Context, shared *sharedEntities, metrics *domain.LoadMetrics) error {
	ctx, span := l.tracer.Start(ctx, "graphload.phase1.flush")
	defer span.End()

	type nodeFlush struct {
		label string
		write func() (int, error)
	}
	flushes := []nodeFlush{
		{LabelCountry, func() (int, error) {
			return l.writer.CreateNodes(ctx, LabelCountry, "code", mapRows(shared.countries.values(), countryRow))
		}},
		{LabelCity, func() (int, error) {
			return l.writer.CreateNodes(ctx, LabelCity, "id", mapRows(shared.cities.values(), cityRow))
		}},
		{LabelSkill, func() (int, error) {
			return l.writer.CreateNodes(ctx, LabelSkill, "id", mapRows(shared.skills.values(), skillRow))
		}},
		{LabelProgram, func() (int, error) {
			return l.writer.CreateNodes(ctx, LabelProgram, "id", mapRows(shared.programs.values(), programRow))
		}},
		{LabelCompany, func() (int, error) {
			return l.writer.CreateNodes(ctx, LabelCompany, "id", mapRows(shared.companies.values(), companyRow))
		}},
		{LabelLearningState, func() (int, error) {
			return l.writer.CreateStateNodes(ctx, LabelLearningState, "state",
				mapRows(shared.learningStates.values(), func(iv domain.StateInterval) map[string]any { return stateRow(iv, "state") }))
		}},
		{LabelProfessionalStatus, func() (int, error) {
			return l.writer.CreateStateNodes(ctx, LabelProfessionalStatus, "status",
				mapRows(shared.professionalStatuses.values(), func(iv domain.StateInterval) map[string]any { return stateRow(iv, "status") }))
		}},
	}
	for _, f := range flushes {
		n, err := f.write()
		if err != nil {
			return fmt.Errorf("flush %s nodes: %w", f.label, err)
		}
		metrics.NodesCreated[f.label] += int64(n)
	}
	return nil
}

// loadBatches is phase 2: the buffered batches fan out over a fixed worker
// pool. Workers write learner nodes and relationships only. The first fatal
// error cancels the group; batches not yet submitted are not scheduled.
func (l *TwoPhaseLoader) loadBatches(ctx context.Context, batches [][]*domain.RecordBundle, metrics *domain.LoadMetrics) error {
	ctx, span := l.tracer.Start(ctx, "graphload.phase2")
	defer span.End()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(l.cfg.Workers)
	var mu sync.Mutex

	for i, batch := range batches {
		if gctx.Err() != nil {
			break
		}
		i, batch := i, batch
		g.Go(func() error {
			counts, err := l.loadBatch(gctx, batch)
			if err != nil {
				return fmt.Errorf("graphload: batch %d: %w", i, err)
			}
			mu.Lock()
			metrics.NodesCreated[LabelLearner] += counts.learners
			for rel, n := range counts.relationships {
				metrics.RelationshipsCreated[rel] += n
			}
			mu.Unlock()
			return nil
		})
	}
	return g.Wait()
}

type batchCounts struct {
	learners      int64
	relationships map[string]int64
}

// loadBatch writes one batch: learner nodes first, then every relationship
// type. All node endpoints other than learners were created in phase 1.
func (l *TwoPhaseLoader) loadBatch(ctx context.Context, batch []*domain.RecordBundle) (batchCounts, error) {
	counts := batchCounts{relationships: map[string]int64{}}

	learnerRows := make([]map[string]any, 0, len(batch))
	var skillLinks []RelRecord
	var enrollments []RelRecord
	var employments []RelRecord
	var learningRels []StateRelRecord
	var professionalRels []StateRelRecord

	for _, bundle := range batch {
		learnerRows = append(learnerRows, learnerRow(bundle.Learner))
		for _, link := range bundle.SkillLinks {
			skillLinks = append(skillLinks, skillLinkRecord(link))
		}
		for _, e := range bundle.Enrollments {
			enrollments = append(enrollments, enrollmentRecord(e))
		}
		for _, e := range bundle.Employments {
			employments = append(employments, employmentRecord(e))
		}
		for _, iv := range bundle.LearningHistory {
			learningRels = append(learningRels, stateRelRecord(StateAssociation{LearnerKey: bundle.Learner.Key, Interval: iv}))
		}
		for _, iv := range bundle.ProfessionalHistory {
			professionalRels = append(professionalRels, stateRelRecord(StateAssociation{LearnerKey: bundle.Learner.Key, Interval: iv}))
		}
	}

	n, err := l.writer.CreateNodes(ctx, LabelLearner, "key", learnerRows)
	if err != nil {
		return counts, err
	}
	counts.learners = int64(n)

	learnerEP := Endpoint{Label: LabelLearner, Key: "key"}
	rels := []struct {
		relType string
		to      Endpoint
		records []RelRecord
	}{
		{RelHasSkill, Endpoint{LabelSkill, "id"}, skillLinks},
		{RelEnrolledIn, Endpoint{LabelProgram, "id"}, enrollments},
		{RelWorksFor, Endpoint{LabelCompany, "id"}, employments},
	}
	for _, r := range rels {
		n, err := l.writer.CreateRelationships(ctx, r.relType, learnerEP, r.to, r.records)
		if err != nil {
			return counts, err
		}
		counts.relationships[r.relType] += int64(n)
	}

	n, err = l.writer.CreateStateRelationships(ctx, RelHasLearningState, LabelLearningState, "state", learningRels)
	if err != nil {
		return counts, err
	}
	counts.relationships[RelHasLearningState] += int64(n)

	n, err = l.writer.CreateStateRelationships(ctx, RelHasProfessionalStatus, LabelProfessionalStatus, "status", professionalRels)
	if err != nil {
		return counts, err
	}
	counts.relationships[RelHasProfessionalStatus] += int64(n)

	return counts, nil
}

func mapRows[T any](items []T, fn func(T) map[string]any) []map[string]any {
	rows := make([]map[string]any, 0, len(items))
	for _, it := range items {
		rows = append(rows, fn(it))
	}
	return rows
}
