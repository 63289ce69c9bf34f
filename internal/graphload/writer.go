package graphload

import (
	"context"
	"errors"
	"math/rand"
	"strings"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/yungbote/learnergraph-backend/internal/platform/logger"
)

// Sink is the one operation the writer needs from the graph store: run one
// parameterized upsert statement to completion.
type Sink interface {
	ExecuteWrite(ctx context.Context, cypher string, params map[string]any) error
}

type RetryPolicy struct {
	// MaxRetries bounds the total number of attempts, not the retries after
	// the first one. A policy of 5 issues at most 5 attempts.
	MaxRetries int
	BaseDelay  time.Duration
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxRetries: 5, BaseDelay: 500 * time.Millisecond}
}

// Writer issues grouped idempotent upserts against the graph store, chunking
// large record sets and retrying transient failures with exponential backoff
// plus jitter. Deadlocks get their own log flag but the same backoff; there
// is no separate deadlock policy.
type Writer struct {
	sink      Sink
	log       *logger.Logger
	chunkSize int
	policy    RetryPolicy
}

func NewWriter(sink Sink, log *logger.Logger, chunkSize int, policy RetryPolicy) *Writer {
	if chunkSize <= 0 {
		chunkSize = 500
	}
	if policy.MaxRetries <= 0 {
		policy.MaxRetries = 1
	}
	if policy.BaseDelay <= 0 {
		policy.BaseDelay = 500 * time.Millisecond
	}
	return &Writer{
		sink:      sink,
		log:       log.With("component", "BatchWriter"),
		chunkSize: chunkSize,
		policy:    policy,
	}
}

// CreateNodes upserts one node per record under the given label, merge-keyed
// on mergeKey. Returns the number of records written.
func (w *Writer) CreateNodes(ctx context.Context, label, mergeKey string, records []map[string]any) (int, error) {
	if len(records) == 0 {
		return 0, nil
	}
	query := upsertNodesQuery(label, mergeKey)
	if err := w.writeChunked(ctx, query, records, "label", label); err != nil {
		return 0, err
	}
	return len(records), nil
}

// CreateStateNodes upserts temporal-state nodes merge-keyed on the composite
// (valueProp, start_date).
func (w *Writer) CreateStateNodes(ctx context.Context, label, valueProp string, records []map[string]any) (int, error) {
	if len(records) == 0 {
		return 0, nil
	}
	query := upsertStateNodesQuery(label, valueProp)
	if err := w.writeChunked(ctx, query, records, "label", label); err != nil {
		return 0, err
	}
	return len(records), nil
}

// RelRecord is one relationship upsert: endpoint keys plus edge properties.
type RelRecord struct {
	FromKey string
	ToKey   string
	Props   map[string]any
}

// CreateRelationships matches both endpoints by key and upserts the edge
// between them. Endpoints must already exist; no relationship write ever
// creates a node.
func (w *Writer) CreateRelationships(ctx context.Context, relType string, from, to Endpoint, records []RelRecord) (int, error) {
	if len(records) == 0 {
		return 0, nil
	}
	rows := make([]map[string]any, 0, len(records))
	for _, r := range records {
		rows = append(rows, map[string]any{
			"from_key": r.FromKey,
			"to_key":   r.ToKey,
			"props":    nonNilProps(r.Props),
		})
	}
	query := upsertRelationshipsQuery(relType, from, to)
	if err := w.writeChunked(ctx, query, rows, "rel_type", relType); err != nil {
		return 0, err
	}
	return len(records), nil
}

// StateRelRecord is one learner-to-temporal-state relationship upsert.
type StateRelRecord struct {
	FromKey string
	ToValue string
	ToStart string
	Props   map[string]any
}

// CreateStateRelationships links learners to temporal-state nodes by the
// composite (value, start_date) key. Associations whose start date never
// parsed carry the raw value and match nothing; that is recorded upstream as
// a data-quality count, not an error.
func (w *Writer) CreateStateRelationships(ctx context.Context, relType, stateLabel, valueProp string, records []StateRelRecord) (int, error) {
	if len(records) == 0 {
		return 0, nil
	}
	rows := make([]map[string]any, 0, len(records))
	for _, r := range records {
		rows = append(rows, map[string]any{
			"from_key": r.FromKey,
			"to_value": r.ToValue,
			"to_start": r.ToStart,
			"props":    nonNilProps(r.Props),
		})
	}
	query := upsertStateRelationshipsQuery(relType, stateLabel, valueProp)
	if err := w.writeChunked(ctx, query, rows, "rel_type", relType); err != nil {
		return 0, err
	}
	return len(records), nil
}

func (w *Writer) writeChunked(ctx context.Context, query string, rows []map[string]any, kvs ...any) error {
	for start := 0; start < len(rows); start += w.chunkSize {
		end := start + w.chunkSize
		if end > len(rows) {
			end = len(rows)
		}
		params := map[string]any{"rows": rows[start:end]}
		if err := w.executeWithRetry(ctx, query, params, kvs...); err != nil {
			return err
		}
	}
	return nil
}

// executeWithRetry applies the backoff policy and, after the final attempt
// fails, returns the last sink error as-is so the cause stays visible.
func (w *Writer) executeWithRetry(ctx context.Context, query string, params map[string]any, kvs ...any) error {
	var lastErr error
	for attempt := 0; attempt < w.policy.MaxRetries; attempt++ {
		err := w.sink.ExecuteWrite(ctx, query, params)
		if err == nil {
			if attempt > 0 {
				w.log.Info("write succeeded after retry", append([]any{"attempts", attempt + 1}, kvs...)...)
			}
			return nil
		}
		lastErr = err
		if !isTransientWriteError(err) {
			return err
		}
		if attempt == w.policy.MaxRetries-1 {
			break
		}
		delay := backoffDelay(w.policy.BaseDelay, attempt)
		w.log.Warn("transient write failure, backing off",
			append([]any{
				"attempt", attempt + 1,
				"max_retries", w.policy.MaxRetries,
				"delay", delay.String(),
				"deadlock", isDeadlockError(err),
				"error", err,
			}, kvs...)...)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
	return lastErr
}

// backoffDelay is baseDelay * 2^attempt plus a uniformly random jitter of
// 0-50% of that delay, desynchronizing concurrently retrying workers.
func backoffDelay(base time.Duration, attempt int) time.Duration {
	d := base << uint(attempt)
	jitter := time.Duration(rand.Int63n(int64(d)/2 + 1))
	return d + jitter
}

func isTransientWriteError(err error) bool {
	if err == nil {
		return false
	}
	if neo4j.IsConnectivityError(err) {
		return true
	}
	var neoErr *neo4j.Neo4jError
	if errors.As(err, &neoErr) {
		return strings.HasPrefix(neoErr.Code, "Neo.TransientError") ||
			strings.Contains(neoErr.Code, "ServiceUnavailable")
	}
	return false
}

func isDeadlockError(err error) bool {
	var neoErr *neo4j.Neo4jError
	return errors.As(err, &neoErr) && strings.Contains(neoErr.Code, "DeadlockDetected")
}

func nonNilProps(props map[string]any) map[string]any {
	if props == nil {
		return map[string]any{}
	}
	return props
}
