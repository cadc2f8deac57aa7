package reference

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

var (
	// ErrMissingTable means a required reference table could not be found.
	ErrMissingTable = errors.New("missing reference table")

	// ErrMissingColumn means a table lacks one of its required columns.
	ErrMissingColumn = errors.New("missing required column")

	// ErrDuplicateKey means a base table carries the same primary key twice.
	// Duplicates are rejected rather than silently overwritten.
	ErrDuplicateKey = errors.New("duplicate primary key")
)

// Row is one record of a reference table, keyed by column name. Column
// order in the source is irrelevant.
type Row map[string]string

// Get returns a trimmed column value.
func (r Row) Get(col string) string {
	return strings.TrimSpace(r[col])
}

// TableSource supplies named reference tables. Implementations exist for
// pipe-delimited files (DirSource), Postgres (DBSource) and in-memory rows
// (MapSource, used by tests and embedded fixtures).
type TableSource interface {
	// Load returns the rows of a required table, verifying the required
	// columns are present. A missing table is ErrMissingTable.
	Load(table string, required []string) ([]Row, error)

	// LoadOptional is Load for tables that may legitimately be absent,
	// such as user override tables. ok is false when the table does not
	// exist.
	LoadOptional(table string, required []string) (rows []Row, ok bool, err error)
}

// DirSource reads pipe-delimited tables with a heading row from a
// directory. Table "state" is the file state.psv.
type DirSource struct {
	Dir string
}

func (d DirSource) Load(table string, required []string) ([]Row, error) {
	rows, ok, err := d.LoadOptional(table, required)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s (looked for %s)", ErrMissingTable, table, d.path(table))
	}
	return rows, nil
}

func (d DirSource) LoadOptional(table string, required []string) ([]Row, bool, error) {
	f, err := os.Open(d.path(table))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("open table %s: %w", table, err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.Comma = '|'
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return nil, false, fmt.Errorf("read heading of %s: %w", table, err)
	}
	for i := range header {
		header[i] = strings.TrimSpace(header[i])
	}
	if err := checkColumns(table, header, required); err != nil {
		return nil, false, err
	}

	var rows []Row
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, false, fmt.Errorf("read %s: %w", table, err)
		}
		row := make(Row, len(header))
		for i, col := range header {
			if i < len(record) {
				row[col] = record[i]
			}
		}
		rows = append(rows, row)
	}
	return rows, true, nil
}

func (d DirSource) path(table string) string {
	return filepath.Join(d.Dir, table+".psv")
}

// MapSource serves tables from memory.
type MapSource map[string][]Row

func (m MapSource) Load(table string, required []string) ([]Row, error) {
	rows, ok, err := m.LoadOptional(table, required)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrMissingTable, table)
	}
	return rows, nil
}

func (m MapSource) LoadOptional(table string, required []string) ([]Row, bool, error) {
	rows, ok := m[table]
	if !ok {
		return nil, false, nil
	}
	if len(rows) > 0 {
		header := make([]string, 0, len(rows[0]))
		for col := range rows[0] {
			header = append(header, col)
		}
		if err := checkColumns(table, header, required); err != nil {
			return nil, false, err
		}
	}
	return rows, true, nil
}

func checkColumns(table string, header, required []string) error {
	have := make(map[string]bool, len(header))
	for _, col := range header {
		have[col] = true
	}
	for _, col := range required {
		if !have[col] {
			return fmt.Errorf("%w: %s in table %s", ErrMissingColumn, col, table)
		}
	}
	return nil
}
