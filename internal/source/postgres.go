package source

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/yungbote/learnergraph-backend/internal/platform/logger"
)

// PostgresSource reads learner records from a Postgres table in ordered
// chunks. One connection is held for the duration of the phase-1 scan and
// released by Close, so it is not left idle across the slow write phase.
type PostgresSource struct {
	conn    *pgx.Conn
	table   string
	orderBy string
	columns []string
	closed  bool
	log     *logger.Logger
}

func NewPostgresSourceFromEnv(ctx context.Context, log *logger.Logger) (*PostgresSource, error) {
	if log == nil {
		return nil, fmt.Errorf("source: logger required")
	}
	dsn := strings.TrimSpace(os.Getenv("SOURCE_POSTGRES_DSN"))
	if dsn == "" {
		return nil, fmt.Errorf("source: missing SOURCE_POSTGRES_DSN")
	}
	table := strings.TrimSpace(os.Getenv("SOURCE_TABLE"))
	if table == "" {
		table = "learner_records"
	}
	orderBy := strings.TrimSpace(os.Getenv("SOURCE_ORDER_COLUMN"))
	if orderBy == "" {
		orderBy = "id"
	}

	conn, err := pgx.Connect(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("source: connect postgres: %w", err)
	}

	s := &PostgresSource{
		conn:    conn,
		table:   table,
		orderBy: orderBy,
		log:     log.With("source", "Postgres", "table", table),
	}
	if err := s.loadColumns(ctx); err != nil {
		_ = conn.Close(ctx)
		return nil, err
	}
	return s, nil
}

func (s *PostgresSource) loadColumns(ctx context.Context) error {
	rows, err := s.conn.Query(ctx, `
SELECT column_name
FROM information_schema.columns
WHERE table_name = $1
ORDER BY ordinal_position`, s.table)
	if err != nil {
		return fmt.Errorf("source: list columns: %w", err)
	}
	defer rows.Close()

	var columns []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return fmt.Errorf("source: scan column name: %w", err)
		}
		columns = append(columns, strings.ToLower(name))
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("source: list columns: %w", err)
	}
	if len(columns) == 0 {
		return fmt.Errorf("source: table %q has no columns", s.table)
	}
	s.columns = columns
	return nil
}

func (s *PostgresSource) Columns() []string {
	return s.columns
}

func (s *PostgresSource) TotalRows(ctx context.Context) (int64, error) {
	if s.closed {
		return 0, fmt.Errorf("source: postgres source closed")
	}
	var count int64
	// Table and order column come from config, not user input.
	q := fmt.Sprintf(`SELECT COUNT(*) FROM %s`, pgx.Identifier{s.table}.Sanitize())
	if err := s.conn.QueryRow(ctx, q).Scan(&count); err != nil {
		return 0, fmt.Errorf("source: count rows: %w", err)
	}
	return count, nil
}

func (s *PostgresSource) ReadChunks(ctx context.Context, startRow, maxRows int64, fn func(rows []Row) error) error {
	if s.closed {
		return fmt.Errorf("source: postgres source closed")
	}
	if maxRows <= 0 {
		maxRows = defaultChunkRows
	}

	q := fmt.Sprintf(`SELECT * FROM %s ORDER BY %s OFFSET $1 LIMIT $2`,
		pgx.Identifier{s.table}.Sanitize(),
		pgx.Identifier{s.orderBy}.Sanitize())

	offset := startRow
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		chunk, err := s.readChunk(ctx, q, offset, maxRows)
		if err != nil {
			return err
		}
		if len(chunk) == 0 {
			return nil
		}
		if err := fn(chunk); err != nil {
			return err
		}
		offset += int64(len(chunk))
		if int64(len(chunk)) < maxRows {
			return nil
		}
	}
}

func (s *PostgresSource) readChunk(ctx context.Context, q string, offset, limit int64) ([]Row, error) {
	rows, err := s.conn.Query(ctx, q, offset, limit)
	if err != nil {
		return nil, fmt.Errorf("source: read chunk at %d: %w", offset, err)
	}
	defer rows.Close()

	fields := rows.FieldDescriptions()
	chunk := make([]Row, 0, limit)
	for rows.Next() {
		raw, err := rows.Values()
		if err != nil {
			return nil, fmt.Errorf("source: scan row at %d: %w", offset+int64(len(chunk)), err)
		}
		values := make(map[string]string, len(fields))
		for i, fd := range fields {
			if i >= len(raw) || raw[i] == nil {
				continue
			}
			values[strings.ToLower(fd.Name)] = strings.TrimSpace(fmt.Sprint(raw[i]))
		}
		chunk = append(chunk, Row{Index: offset + int64(len(chunk)), Values: values})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("source: read chunk at %d: %w", offset, err)
	}
	return chunk, nil
}

func (s *PostgresSource) Close(ctx context.Context) error {
	if s.closed || s.conn == nil {
		return nil
	}
	s.closed = true
	if err := s.conn.Close(ctx); err != nil {
		return fmt.Errorf("source: close postgres: %w", err)
	}
	s.log.Debug("postgres source connection released")
	return nil
}
