// Package source provides chunked, forward-only readers over tabular learner
// records. The loader reads a source exactly once, in fixed-size chunks, and
// closes it explicitly before the slow write phase begins.
package source

import (
	"context"
	"strings"
)

// Row is one source record, keyed by column name, with its 0-based position
// in the source.
type Row struct {
	Index  int64
	Values map[string]string
}

// Get returns the trimmed value of a column, or "" when absent.
func (r Row) Get(column string) string {
	return strings.TrimSpace(r.Values[column])
}

// RowSource yields rows in fixed-size chunks. Implementations are not safe
// for concurrent use; the phase-1 scan is the only reader.
type RowSource interface {
	// Columns returns the source's column names.
	Columns() []string
	// TotalRows returns the number of data rows, when cheaply knowable.
	TotalRows(ctx context.Context) (int64, error)
	// ReadChunks streams rows starting at startRow (0-based), at most
	// maxRows per callback invocation. A maxRows <= 0 uses the default
	// chunk size. The callback's error stops the scan and is returned.
	ReadChunks(ctx context.Context, startRow, maxRows int64, fn func(rows []Row) error) error
	// Close releases the underlying file or connection. Safe to call more
	// than once.
	Close(ctx context.Context) error
}

const defaultChunkRows = 500
