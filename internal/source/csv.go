package source

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/yungbote/learnergraph-backend/internal/platform/logger"
)

// CSVSource reads learner records from a header-mapped CSV file.
type CSVSource struct {
	path    string
	file    *os.File
	reader  *csv.Reader
	columns []string
	nextRow int64
	closed  bool
	log     *logger.Logger
}

func NewCSVSource(path string, log *logger.Logger) (*CSVSource, error) {
	if log == nil {
		return nil, fmt.Errorf("source: logger required")
	}
	s := &CSVSource{
		path: path,
		log:  log.With("source", "CSV", "path", path),
	}
	if err := s.open(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *CSVSource) open() error {
	file, err := os.Open(s.path)
	if err != nil {
		return fmt.Errorf("source: open csv: %w", err)
	}
	reader := csv.NewReader(file)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		_ = file.Close()
		return fmt.Errorf("source: read csv header: %w", err)
	}
	columns := make([]string, len(header))
	for i, h := range header {
		columns[i] = strings.ToLower(strings.TrimSpace(h))
	}

	s.file = file
	s.reader = reader
	s.columns = columns
	s.nextRow = 0
	s.closed = false
	return nil
}

func (s *CSVSource) Columns() []string {
	return s.columns
}

// TotalRows counts data rows with a separate pass; the scan position of the
// main reader is untouched.
func (s *CSVSource) TotalRows(ctx context.Context) (int64, error) {
	file, err := os.Open(s.path)
	if err != nil {
		return 0, fmt.Errorf("source: open csv: %w", err)
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.FieldsPerRecord = -1
	var count int64 = -1 // header
	for {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		if _, err := reader.Read(); err == io.EOF {
			break
		} else if err != nil {
			return 0, fmt.Errorf("source: count csv rows: %w", err)
		}
		count++
	}
	if count < 0 {
		count = 0
	}
	return count, nil
}

func (s *CSVSource) ReadChunks(ctx context.Context, startRow, maxRows int64, fn func(rows []Row) error) error {
	if s.closed {
		return fmt.Errorf("source: csv source closed")
	}
	if maxRows <= 0 {
		maxRows = defaultChunkRows
	}
	if startRow < s.nextRow {
		// Forward-only reader; restart from the top to honor an earlier
		// start position.
		_ = s.file.Close()
		if err := s.open(); err != nil {
			return err
		}
	}

	chunk := make([]Row, 0, maxRows)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		record, err := s.reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("source: read csv row %d: %w", s.nextRow, err)
		}
		idx := s.nextRow
		s.nextRow++
		if idx < startRow {
			continue
		}

		values := make(map[string]string, len(s.columns))
		for i, col := range s.columns {
			if i < len(record) {
				values[col] = strings.TrimSpace(record[i])
			}
		}
		chunk = append(chunk, Row{Index: idx, Values: values})

		if int64(len(chunk)) >= maxRows {
			if err := fn(chunk); err != nil {
				return err
			}
			chunk = make([]Row, 0, maxRows)
		}
	}
	if len(chunk) > 0 {
		if err := fn(chunk); err != nil {
			return err
		}
	}
	return nil
}

func (s *CSVSource) Close(ctx context.Context) error {
	if s.closed || s.file == nil {
		return nil
	}
	s.closed = true
	if err := s.file.Close(); err != nil {
		return fmt.Errorf("source: close csv: %w", err)
	}
	s.log.Debug("csv source closed")
	return nil
}
